package table

import (
	"encoding/json"
	"sort"
	"strings"
)

// Identity is the local participant, fixed for the lifetime of a session.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

type TableStatus string

const (
	StatusWaiting    TableStatus = "waiting"
	StatusInProgress TableStatus = "in_progress"
	StatusFinished   TableStatus = "finished"
)

// Session is the client's read-only copy of the server-owned table record.
type Session struct {
	ID         string      `json:"tableId"`
	Name       string      `json:"tableName"`
	MaxPlayers int         `json:"maxPlayers"`
	EntryFee   float64     `json:"entryFee"`
	Status     TableStatus `json:"status"`
}

// Player is one seat as last broadcast by the server.
type Player struct {
	UserID          string   `json:"userId"`
	Username        string   `json:"username"`
	Avatar          string   `json:"avatar,omitempty"`
	Balance         float64  `json:"balance"`
	HasSeenCards    bool     `json:"hasSeenCards"`
	IsActive        bool     `json:"isActive"`
	HasFolded       bool     `json:"hasFolded"`
	HandScore       *float64 `json:"handScore,omitempty"`
	HandDescription string   `json:"handDescription,omitempty"`
	Hand            []Card   `json:"hand,omitempty"`
}

// Card is a display value only (e.g. {"rank":"A","suit":"hearts"}).
type Card struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

func (c Card) String() string {
	return fmtCard(c)
}

func fmtCard(c Card) string {
	suits := map[string]string{
		"clubs":    "♣",
		"diamonds": "♦",
		"hearts":   "♥",
		"spades":   "♠",
	}
	suitStr, ok := suits[strings.ToLower(c.Suit)]
	if !ok {
		suitStr = "?"
	}
	return c.Rank + suitStr
}

// UserSet is a set of user ids. It encodes as a sorted JSON array.
type UserSet map[string]struct{}

func NewUserSet(ids ...string) UserSet {
	s := make(UserSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s UserSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s UserSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s UserSet) Clone() UserSet {
	out := make(UserSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s UserSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *UserSet) UnmarshalJSON(b []byte) error {
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*s = NewUserSet(ids...)
	return nil
}

// ClonePlayers deep-copies a player list so later mutation of one copy never
// leaks into another.
func ClonePlayers(in []Player) []Player {
	if in == nil {
		return nil
	}
	out := make([]Player, len(in))
	for i, p := range in {
		out[i] = p
		if p.HandScore != nil {
			v := *p.HandScore
			out[i].HandScore = &v
		}
		out[i].Hand = append([]Card(nil), p.Hand...)
	}
	return out
}

// FindPlayer returns the index of userID in players or -1.
func FindPlayer(players []Player, userID string) int {
	for i := range players {
		if players[i].UserID == userID {
			return i
		}
	}
	return -1
}
