package countdown

import (
	"sync"
	"time"
)

// Countdown is a single visible timer. Starting it again replaces the running
// one; reaching zero only hides it.
type Countdown struct {
	Interval time.Duration
	OnTick   func(remaining int)

	mu        sync.Mutex
	remaining int
	visible   bool
	gen       uint64
	stop      chan struct{}
}

func New(onTick func(remaining int)) *Countdown {
	return &Countdown{Interval: time.Second, OnTick: onTick}
}

func (c *Countdown) Start(seconds int) {
	c.mu.Lock()
	c.cancelLocked()
	if seconds <= 0 {
		c.mu.Unlock()
		c.emit(0)
		return
	}
	c.gen++
	gen := c.gen
	stop := make(chan struct{})
	c.stop = stop
	c.remaining = seconds
	c.visible = true
	interval := c.Interval
	c.mu.Unlock()

	c.emit(seconds)
	go c.run(gen, interval, stop)
}

func (c *Countdown) Cancel() {
	c.mu.Lock()
	c.cancelLocked()
	c.mu.Unlock()
}

func (c *Countdown) cancelLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.visible = false
	c.remaining = 0
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

func (c *Countdown) run(gen uint64, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.gen != gen || c.stop != stop {
				c.mu.Unlock()
				return
			}
			c.remaining--
			left := c.remaining
			if left <= 0 {
				c.remaining = 0
				c.visible = false
				c.stop = nil
			}
			c.mu.Unlock()

			c.emit(left)
			if left <= 0 {
				return
			}
		}
	}
}

func (c *Countdown) emit(remaining int) {
	if c.OnTick != nil {
		c.OnTick(remaining)
	}
}
