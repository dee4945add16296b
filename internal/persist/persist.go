// Package persist mirrors the in-progress hand into the per-session store so a
// restarted client can resume without rejoining.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SekaTable/internal/game/table"
	"SekaTable/internal/storage"
)

// DefaultTTL is how long a snapshot stays restorable.
const DefaultTTL = time.Hour

var (
	ErrNotFound      = errors.New("snapshot not found")
	ErrStaleSnapshot = errors.New("snapshot is stale")
)

// Snapshot is the persisted layout. ShowCards is always written false.
type Snapshot struct {
	TableID        string                  `json:"tableId"`
	UserID         string                  `json:"userId"`
	GameStatus     table.Phase             `json:"gameStatus"`
	Players        []table.Player          `json:"players"`
	PlayerCards    map[string][]table.Card `json:"playerCards"`
	Pot            float64                 `json:"pot"`
	CurrentBet     float64                 `json:"currentBet"`
	CurrentTurn    string                  `json:"currentTurnUserId"`
	HasViewedCards bool                    `json:"hasViewedCards"`
	CardViewers    table.UserSet           `json:"cardViewers"`
	CardsDealt     bool                    `json:"cardsDealt"`
	ShowCards      bool                    `json:"showCards"`
	Timestamp      int64                   `json:"timestamp"`
}

// Membership marks the table this client sits at.
type Membership struct {
	TableID  string `json:"tableId"`
	UserID   string `json:"userId"`
	JoinedAt int64  `json:"joinedAt"`
}

type Bridge struct {
	store storage.KeyValueStore
	ttl   time.Duration
	now   func() time.Time
}

func NewBridge(store storage.KeyValueStore, ttl time.Duration) *Bridge {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Bridge{store: store, ttl: ttl, now: time.Now}
}

func SnapshotKey(tableID string) string {
	return fmt.Sprintf("seka:table:%s:state", tableID)
}

func MembershipKey(tableID string) string {
	return fmt.Sprintf("seka:membership:%s", tableID)
}

const currentTableKey = "seka:current_table"

// Save writes the snapshot of s. Only the local player's cards are kept:
// other hands are public only at showdown and must not survive a reload.
func (b *Bridge) Save(ctx context.Context, tableID, userID string, s table.HandState) error {
	snap := Snapshot{
		TableID:        tableID,
		UserID:         userID,
		GameStatus:     s.Phase,
		Players:        stripHands(s.Players, userID),
		PlayerCards:    map[string][]table.Card{},
		Pot:            s.Pot,
		CurrentBet:     s.CurrentBet,
		CurrentTurn:    s.CurrentTurn,
		HasViewedCards: s.HasViewedCards,
		CardViewers:    s.CardViewers.Clone(),
		CardsDealt:     s.CardsDealt,
		ShowCards:      false,
		Timestamp:      b.now().UnixMilli(),
	}
	if own, ok := s.PlayerCards[userID]; ok && len(own) > 0 {
		snap.PlayerCards[userID] = append([]table.Card(nil), own...)
	}
	if snap.CardViewers == nil {
		snap.CardViewers = table.NewUserSet()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return b.store.Set(ctx, SnapshotKey(tableID), string(data), b.ttl)
}

// Load returns the raw snapshot, enforcing ownership and age.
func (b *Bridge) Load(ctx context.Context, tableID, userID string) (Snapshot, error) {
	var snap Snapshot
	raw, ok, err := b.store.Get(ctx, SnapshotKey(tableID))
	if err != nil {
		return snap, err
	}
	if !ok {
		return snap, ErrNotFound
	}
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		_ = b.store.Del(ctx, SnapshotKey(tableID))
		return snap, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if snap.UserID != userID || snap.TableID != tableID {
		return Snapshot{}, ErrNotFound
	}
	if b.now().UnixMilli()-snap.Timestamp > b.ttl.Milliseconds() {
		_ = b.store.Del(ctx, SnapshotKey(tableID))
		return Snapshot{}, ErrStaleSnapshot
	}
	snap.ShowCards = false
	return snap, nil
}

// Restore rebuilds a HandState from a snapshot within the TTL window.
func (b *Bridge) Restore(ctx context.Context, tableID, userID string) (table.HandState, error) {
	snap, err := b.Load(ctx, tableID, userID)
	if err != nil {
		return table.HandState{}, err
	}
	s := table.NewHandState()
	s.Phase = snap.GameStatus
	s.Players = snap.Players
	s.Pot = snap.Pot
	s.CurrentBet = snap.CurrentBet
	s.CurrentTurn = snap.CurrentTurn
	s.HasViewedCards = snap.HasViewedCards
	s.CardsDealt = snap.CardsDealt
	s.ControlsVisible = snap.CardsDealt
	s.ShowCards = false
	if snap.CardViewers != nil {
		s.CardViewers = snap.CardViewers
	}
	if own, ok := snap.PlayerCards[userID]; ok && len(own) > 0 {
		s.PlayerCards[userID] = own
	}
	return s, nil
}

func (b *Bridge) Clear(ctx context.Context, tableID string) error {
	return b.store.Del(ctx, SnapshotKey(tableID))
}

func (b *Bridge) SaveMembership(ctx context.Context, tableID, userID string) error {
	data, err := json.Marshal(Membership{TableID: tableID, UserID: userID, JoinedAt: b.now().UnixMilli()})
	if err != nil {
		return err
	}
	if err := b.store.Set(ctx, MembershipKey(tableID), string(data), 0); err != nil {
		return err
	}
	return b.store.Set(ctx, currentTableKey, tableID, 0)
}

// Membership returns the persisted marker for tableID.
func (b *Bridge) Membership(ctx context.Context, tableID string) (Membership, bool, error) {
	var m Membership
	raw, ok, err := b.store.Get(ctx, MembershipKey(tableID))
	if err != nil || !ok {
		return m, false, err
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return m, false, nil
	}
	return m, true, nil
}

// CurrentTable is the table the client last sat at, if any.
func (b *Bridge) CurrentTable(ctx context.Context) (string, bool, error) {
	return b.store.Get(ctx, currentTableKey)
}

// ResumeTable is the table userID was last seated at, when its membership
// marker is still present. It lets a restarted client rejoin without being
// told the table again.
func (b *Bridge) ResumeTable(ctx context.Context, userID string) (string, bool, error) {
	tableID, ok, err := b.CurrentTable(ctx)
	if err != nil || !ok || tableID == "" {
		return "", false, err
	}
	m, ok, err := b.Membership(ctx, tableID)
	if err != nil || !ok || m.UserID != userID {
		return "", false, err
	}
	return tableID, true, nil
}

// ClearMembership drops every trace of the client sitting at tableID,
// including the hand snapshot.
func (b *Bridge) ClearMembership(ctx context.Context, tableID string) error {
	keys := []string{MembershipKey(tableID), SnapshotKey(tableID)}
	if cur, ok, err := b.store.Get(ctx, currentTableKey); err == nil && ok && cur == tableID {
		keys = append(keys, currentTableKey)
	}
	return b.store.Del(ctx, keys...)
}

func stripHands(players []table.Player, self string) []table.Player {
	out := table.ClonePlayers(players)
	for i := range out {
		if out[i].UserID != self {
			out[i].Hand = nil
			out[i].HandScore = nil
			out[i].HandDescription = ""
		}
	}
	return out
}
