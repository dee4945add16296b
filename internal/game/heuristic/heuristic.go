// Package heuristic guesses, ahead of the server, that a betting street is over.
// The guess only ever leads to a force_showdown request; the server decides.
package heuristic

import (
	"sync"
	"time"

	"SekaTable/internal/game/table"
)

// ActivePlayers returns seats that are still contesting the pot with chips behind.
func ActivePlayers(players []table.Player) []table.Player {
	out := make([]table.Player, 0, len(players))
	for _, p := range players {
		if p.IsActive && !p.HasFolded && p.Balance > 0 {
			out = append(out, p)
		}
	}
	return out
}

// StreetComplete reports whether every active player has called. It never fires
// with one or zero active players.
func StreetComplete(players []table.Player, called table.UserSet) bool {
	active := ActivePlayers(players)
	if len(active) <= 1 {
		return false
	}
	for _, p := range active {
		if !called.Has(p.UserID) {
			return false
		}
	}
	return true
}

// Trigger debounces the completion signal so a burst of broadcasts produces at
// most one fire.
type Trigger struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	fire  func()
}

func NewTrigger(delay time.Duration, fire func()) *Trigger {
	return &Trigger{delay: delay, fire: fire}
}

// Observe cancels any pending fire and schedules a new one when complete.
func (t *Trigger) Observe(complete bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if complete {
		t.timer = time.AfterFunc(t.delay, t.fire)
	}
}

// Pending reports whether a fire is scheduled.
func (t *Trigger) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

func (t *Trigger) Stop() {
	t.Observe(false)
}
