package persist

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"SekaTable/internal/game/table"
	"SekaTable/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inProgress() table.HandState {
	s := table.NewHandState()
	s.Phase = table.PhaseInProgress
	s.Pot = 120
	s.CurrentBet = 20
	s.CurrentTurn = "u2"
	s.Players = []table.Player{
		{UserID: "u1", Username: "alice", Balance: 80, IsActive: true, HasSeenCards: true},
		{UserID: "u2", Username: "bob", Balance: 60, IsActive: true},
	}
	s.PlayerCards["u1"] = []table.Card{{Rank: "A", Suit: "hearts"}, {Rank: "K", Suit: "hearts"}, {Rank: "Q", Suit: "hearts"}}
	s.CardViewers = table.NewUserSet("u1")
	s.HasViewedCards = true
	s.CardsDealt = true
	s.ControlsVisible = true
	return s
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewBridge(storage.NewMemoryStore(), time.Hour)
	s := inProgress()

	require.NoError(t, b.Save(ctx, "t1", "u1", s))
	got, err := b.Restore(ctx, "t1", "u1")
	require.NoError(t, err)

	assert.Equal(t, s.Phase, got.Phase)
	assert.Equal(t, s.Pot, got.Pot)
	assert.Equal(t, s.CurrentBet, got.CurrentBet)
	assert.Equal(t, s.CurrentTurn, got.CurrentTurn)
	assert.Equal(t, s.Players, got.Players)
	assert.Equal(t, s.PlayerCards, got.PlayerCards)
	assert.Equal(t, s.CardViewers, got.CardViewers)
	assert.Equal(t, s.HasViewedCards, got.HasViewedCards)
	assert.Equal(t, s.CardsDealt, got.CardsDealt)
	assert.False(t, got.ShowCards)
}

func TestSaveNeverPersistsShowCardsOrForeignHands(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	b := NewBridge(store, time.Hour)

	s := inProgress()
	s.Phase = table.PhaseShowdown
	s.ShowCards = true
	s.PlayerCards["u2"] = []table.Card{{Rank: "2", Suit: "clubs"}}
	s.Players[1].Hand = []table.Card{{Rank: "2", Suit: "clubs"}}

	require.NoError(t, b.Save(ctx, "t1", "u1", s))

	raw, ok, err := store.Get(ctx, SnapshotKey("t1"))
	require.NoError(t, err)
	require.True(t, ok)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	assert.Equal(t, false, m["showCards"])

	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &snap))
	assert.NotContains(t, snap.PlayerCards, "u2")
	assert.Nil(t, snap.Players[1].Hand)

	got, err := b.Restore(ctx, "t1", "u1")
	require.NoError(t, err)
	assert.False(t, got.ShowCards)
}

func TestSnapshotLayoutFields(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	b := NewBridge(store, time.Hour)
	require.NoError(t, b.Save(ctx, "t1", "u1", inProgress()))

	raw, _, _ := store.Get(ctx, SnapshotKey("t1"))
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	for _, k := range []string{"tableId", "userId", "gameStatus", "players", "playerCards", "pot",
		"currentBet", "currentTurnUserId", "hasViewedCards", "cardViewers", "cardsDealt", "showCards", "timestamp"} {
		assert.Contains(t, m, k)
	}
}

func TestRestoreStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	b := NewBridge(store, time.Hour)

	now := time.Now()
	b.now = func() time.Time { return now }
	require.NoError(t, b.Save(ctx, "t1", "u1", inProgress()))

	b.now = func() time.Time { return now.Add(time.Hour + time.Millisecond) }
	_, err := b.Restore(ctx, "t1", "u1")
	assert.True(t, errors.Is(err, ErrStaleSnapshot))

	// the stale key is discarded; a second attempt finds nothing
	_, err = b.Restore(ctx, "t1", "u1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRestoreWithinWindow(t *testing.T) {
	ctx := context.Background()
	b := NewBridge(storage.NewMemoryStore(), time.Hour)

	now := time.Now()
	b.now = func() time.Time { return now }
	require.NoError(t, b.Save(ctx, "t1", "u1", inProgress()))

	b.now = func() time.Time { return now.Add(59 * time.Minute) }
	_, err := b.Restore(ctx, "t1", "u1")
	assert.NoError(t, err)
}

func TestRestoreNotFoundAndForeignOwner(t *testing.T) {
	ctx := context.Background()
	b := NewBridge(storage.NewMemoryStore(), time.Hour)

	_, err := b.Restore(ctx, "t1", "u1")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, b.Save(ctx, "t1", "u1", inProgress()))
	_, err = b.Restore(ctx, "t1", "someone-else")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	b := NewBridge(storage.NewMemoryStore(), time.Hour)
	require.NoError(t, b.Save(ctx, "t1", "u1", inProgress()))
	require.NoError(t, b.Clear(ctx, "t1"))

	_, err := b.Restore(ctx, "t1", "u1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMembershipLifecycle(t *testing.T) {
	ctx := context.Background()
	b := NewBridge(storage.NewMemoryStore(), time.Hour)

	_, ok, err := b.Membership(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.SaveMembership(ctx, "t1", "u1"))
	require.NoError(t, b.Save(ctx, "t1", "u1", inProgress()))

	m, ok, err := b.Membership(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u1", m.UserID)

	cur, ok, _ := b.CurrentTable(ctx)
	assert.True(t, ok)
	assert.Equal(t, "t1", cur)

	require.NoError(t, b.ClearMembership(ctx, "t1"))
	_, ok, _ = b.Membership(ctx, "t1")
	assert.False(t, ok)
	_, ok, _ = b.CurrentTable(ctx)
	assert.False(t, ok)
	_, err = b.Restore(ctx, "t1", "u1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRedisBackedSnapshotExpires(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewBridge(storage.NewRedisStore(rdb), time.Hour)

	require.NoError(t, b.Save(ctx, "t1", "u1", inProgress()))
	assert.True(t, mr.Exists(SnapshotKey("t1")))
	assert.Equal(t, time.Hour, mr.TTL(SnapshotKey("t1")))

	mr.FastForward(time.Hour + time.Second)
	_, err = b.Restore(ctx, "t1", "u1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestResumeTable(t *testing.T) {
	ctx := context.Background()
	b := NewBridge(storage.NewMemoryStore(), time.Hour)

	_, ok, err := b.ResumeTable(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.SaveMembership(ctx, "t1", "u1"))
	id, ok, err := b.ResumeTable(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "t1", id)

	_, ok, _ = b.ResumeTable(ctx, "u2")
	assert.False(t, ok, "another user's seat is not resumed")

	require.NoError(t, b.ClearMembership(ctx, "t1"))
	_, ok, _ = b.ResumeTable(ctx, "u1")
	assert.False(t, ok)
}
