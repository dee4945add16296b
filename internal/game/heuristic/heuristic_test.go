package heuristic

import (
	"sync/atomic"
	"testing"
	"time"

	"SekaTable/internal/game/table"

	"github.com/stretchr/testify/assert"
)

func seat(id string, balance float64) table.Player {
	return table.Player{UserID: id, IsActive: true, Balance: balance}
}

func TestStreetComplete(t *testing.T) {
	players := []table.Player{seat("a", 100), seat("b", 50), seat("c", 10)}

	assert.False(t, StreetComplete(players, table.NewUserSet("a", "b")))
	assert.True(t, StreetComplete(players, table.NewUserSet("a", "b", "c")))
}

func TestStreetCompleteIgnoresFoldedAndBroke(t *testing.T) {
	folded := seat("b", 50)
	folded.HasFolded = true
	broke := seat("c", 0)
	inactive := seat("d", 40)
	inactive.IsActive = false

	players := []table.Player{seat("a", 100), folded, broke, inactive, seat("e", 20)}
	assert.True(t, StreetComplete(players, table.NewUserSet("a", "e")))
}

func TestStreetCompleteNeverWithSingleActivePlayer(t *testing.T) {
	folded := seat("b", 50)
	folded.HasFolded = true
	players := []table.Player{seat("a", 100), folded}

	assert.False(t, StreetComplete(players, table.NewUserSet("a")))
	assert.False(t, StreetComplete(nil, table.NewUserSet()))
}

func TestTriggerDebounces(t *testing.T) {
	var fired int32
	tr := NewTrigger(30*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	tr.Observe(true)
	tr.Observe(true)
	tr.Observe(true)
	assert.True(t, tr.Pending())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestTriggerCancelledByIncompleteObservation(t *testing.T) {
	var fired int32
	tr := NewTrigger(30*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	tr.Observe(true)
	tr.Observe(false)
	assert.False(t, tr.Pending())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}
