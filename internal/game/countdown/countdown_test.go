package countdown

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type tickLog struct {
	mu    sync.Mutex
	ticks []int
}

func (l *tickLog) add(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticks = append(l.ticks, n)
}

func (l *tickLog) get() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.ticks...)
}

func TestCountdownRunsToZeroAndHides(t *testing.T) {
	log := &tickLog{}
	c := New(log.add)
	c.Interval = 10 * time.Millisecond

	c.Start(3)
	assert.True(t, c.Visible())
	assert.Equal(t, 3, c.Remaining())

	assert.Eventually(t, func() bool { return len(log.get()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{3, 2, 1, 0}, log.get())
	assert.False(t, c.Visible())
	assert.Equal(t, 0, c.Remaining())
}

func TestCountdownRestartReplacesPrevious(t *testing.T) {
	log := &tickLog{}
	c := New(log.add)
	c.Interval = 20 * time.Millisecond

	c.Start(100)
	c.Start(2)

	assert.Eventually(t, func() bool { return len(log.get()) == 4 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	ticks := log.get()
	assert.Equal(t, []int{100, 2, 1, 0}, ticks, "the first countdown must not keep ticking")
}

func TestCountdownCancel(t *testing.T) {
	log := &tickLog{}
	c := New(log.add)
	c.Interval = 10 * time.Millisecond

	c.Start(50)
	c.Cancel()
	assert.False(t, c.Visible())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, []int{50}, log.get())
}

func TestCountdownDoesNotLeakGoroutines(t *testing.T) {
	c := New(nil)
	c.Interval = time.Hour

	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		c.Start(10)
	}
	c.Cancel()

	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before+1 }, time.Second, 10*time.Millisecond)
}

func TestCountdownStartZeroHides(t *testing.T) {
	log := &tickLog{}
	c := New(log.add)

	c.Start(5)
	c.Start(0)
	assert.False(t, c.Visible())
	assert.Equal(t, []int{5, 0}, log.get())
}
