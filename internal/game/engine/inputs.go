package engine

import "SekaTable/internal/game/table"

// Input is anything folded into the hand state: a decoded server event
// (events.Event) or one of the local inputs below.
type Input interface{}

// Resync replaces local belief with a freshly fetched table snapshot.
type Resync struct {
	Session     table.Session
	Players     []table.Player
	Phase       table.Phase // empty: derived from Session.Status
	Pot         float64
	CurrentBet  float64
	CurrentTurn string
	DealerID    string
	CardViewers []string
}

// SeedPlayers carries the player list from a join acknowledgement.
type SeedPlayers struct {
	Players []table.Player
}

// CardsViewed is the result of a successful player_view_cards exchange.
type CardsViewed struct {
	Hand            []table.Card
	HandScore       *float64
	HandDescription string
	Players         []table.Player
}

// Restore seeds the state from a persisted snapshot.
type Restore struct {
	State table.HandState
}

// Timer-driven inputs carry the hand they were scheduled for.
type (
	DealingComplete  struct{ HandSeq uint64 }
	ControlsFallback struct{ HandSeq uint64 }
	RevealWinner     struct{ HandSeq uint64 }
	ShowdownDue      struct{ HandSeq uint64 }
)

// Effect is a side effect requested by the reducer and executed by Engine.
type Effect interface{}

type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "info"
}

type (
	StartCountdown  struct{ Seconds int }
	CancelCountdown struct{}
	BeginDealing    struct {
		HandSeq uint64
		Seats   []string
	}
	CancelDealing     struct{}
	ScheduleReveal    struct{ HandSeq uint64 }
	SaveSnapshot      struct{}
	ClearSnapshot     struct{}
	ClearMembership   struct{}
	ObserveCompletion struct {
		HandSeq  uint64
		Complete bool
	}
	RequestShowdown struct{ Reason string }
	Notify          struct {
		Level   Level
		Message string
	}
	// Exit means the session at this table is over; the caller should leave.
	Exit struct{ Reason string }
)
