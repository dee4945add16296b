package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"SekaTable/internal/game/table"
)

// Inbound event names pushed by the table server.
const (
	GameStarting                     = "game_starting"
	GameStartFailed                  = "game_start_failed"
	GameStarted                      = "game_started"
	GameTerminated                   = "game_terminated"
	GameStateUpdated                 = "game_state_updated"
	PlayerActionBroadcast            = "player_action_broadcast"
	Showdown                         = "showdown"
	GameCompleted                    = "game_completed"
	PlayerRemovedInsufficientBalance = "player_removed_insufficient_balance"
	TableResetForNewGame             = "table_reset_for_new_game"
	GameRestartCountdown             = "game_restart_countdown"
	BalanceUpdated                   = "balance_updated"
	PlayerSeenCards                  = "player_seen_cards"
	PlayerListUpdated                = "player_list_updated"
	TableChatMessage                 = "table_chat_message"
	TableUpdated                     = "table_updated"
	TableClosed                      = "table_closed"
)

var ErrUnknownEvent = errors.New("unknown event")

// Event is one decoded server push.
type Event interface {
	Name() string
	// Table is the table the event refers to; empty when the payload omits it.
	Table() string
}

type tableRef struct {
	TableID string `json:"tableId"`
}

func (t tableRef) Table() string { return t.TableID }

type GameStartingEvent struct {
	tableRef
	Countdown *int `json:"countdown"`
}

type GameStartFailedEvent struct {
	tableRef
	Message string `json:"message"`
}

type GameStartedEvent struct {
	tableRef
	DealerID    string         `json:"dealerId"`
	Pot         float64        `json:"pot"`
	CurrentBet  float64        `json:"currentBet"`
	CurrentTurn string         `json:"currentTurn"`
	Players     []table.Player `json:"players"`
}

type GameTerminatedEvent struct {
	tableRef
	Reason string `json:"reason"`
}

type GameStateUpdatedEvent struct {
	tableRef
	Pot         *float64       `json:"pot"`
	CurrentBet  *float64       `json:"currentBet"`
	CurrentTurn *string        `json:"currentTurn"`
	Players     []table.Player `json:"players"`
	CardViewers []string       `json:"cardViewers"`
	Phase       string         `json:"phase"`
}

type PlayerActionBroadcastEvent struct {
	tableRef
	UserID      string         `json:"userId"`
	Action      string         `json:"action"`
	Amount      float64        `json:"amount"`
	Pot         *float64       `json:"pot"`
	CurrentBet  *float64       `json:"currentBet"`
	CurrentTurn *string        `json:"currentTurn"`
	Players     []table.Player `json:"players"`
	CardViewers []string       `json:"cardViewers"`
}

type ShowdownEvent struct {
	tableRef
	Players []table.Player `json:"players"`
	Winners []table.Winner `json:"winners"`
	Pot     float64        `json:"pot"`
}

type GameCompletedEvent struct {
	tableRef
	Winners []table.Winner `json:"winners"`
	Players []table.Player `json:"players"`
}

type PlayerRemovedEvent struct {
	tableRef
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type TableResetEvent struct {
	tableRef
	Players []table.Player `json:"players"`
}

type GameRestartCountdownEvent struct {
	tableRef
	Countdown int `json:"countdown"`
}

type BalanceUpdatedEvent struct {
	tableRef
	UserID  string  `json:"userId"`
	Balance float64 `json:"balance"`
}

type PlayerSeenCardsEvent struct {
	tableRef
	UserID          string         `json:"userId"`
	Hand            []table.Card   `json:"hand"`
	HandScore       *float64       `json:"handScore"`
	HandDescription string         `json:"handDescription"`
	Players         []table.Player `json:"players"`
	CardViewers     []string       `json:"cardViewers"`
}

type PlayerListUpdatedEvent struct {
	tableRef
	Players []table.Player `json:"players"`
}

type TableChatMessageEvent struct {
	tableRef
	table.ChatMessage
}

type TableUpdatedEvent struct {
	tableRef
	Session table.Session `json:"table"`
}

type TableClosedEvent struct {
	tableRef
	Reason string `json:"reason"`
}

func (GameStartingEvent) Name() string          { return GameStarting }
func (GameStartFailedEvent) Name() string       { return GameStartFailed }
func (GameStartedEvent) Name() string           { return GameStarted }
func (GameTerminatedEvent) Name() string        { return GameTerminated }
func (GameStateUpdatedEvent) Name() string      { return GameStateUpdated }
func (PlayerActionBroadcastEvent) Name() string { return PlayerActionBroadcast }
func (ShowdownEvent) Name() string              { return Showdown }
func (GameCompletedEvent) Name() string         { return GameCompleted }
func (PlayerRemovedEvent) Name() string         { return PlayerRemovedInsufficientBalance }
func (TableResetEvent) Name() string            { return TableResetForNewGame }
func (GameRestartCountdownEvent) Name() string  { return GameRestartCountdown }
func (BalanceUpdatedEvent) Name() string        { return BalanceUpdated }
func (PlayerSeenCardsEvent) Name() string       { return PlayerSeenCards }
func (PlayerListUpdatedEvent) Name() string     { return PlayerListUpdated }
func (TableChatMessageEvent) Name() string      { return TableChatMessage }
func (TableUpdatedEvent) Name() string          { return TableUpdated }
func (TableClosedEvent) Name() string           { return TableClosed }

// Decode parses the payload of the named event into its typed form.
func Decode(name string, raw json.RawMessage) (Event, error) {
	var target Event
	switch name {
	case GameStarting:
		target = &GameStartingEvent{}
	case GameStartFailed:
		target = &GameStartFailedEvent{}
	case GameStarted:
		target = &GameStartedEvent{}
	case GameTerminated:
		target = &GameTerminatedEvent{}
	case GameStateUpdated:
		target = &GameStateUpdatedEvent{}
	case PlayerActionBroadcast:
		target = &PlayerActionBroadcastEvent{}
	case Showdown:
		target = &ShowdownEvent{}
	case GameCompleted:
		target = &GameCompletedEvent{}
	case PlayerRemovedInsufficientBalance:
		target = &PlayerRemovedEvent{}
	case TableResetForNewGame:
		target = &TableResetEvent{}
	case GameRestartCountdown:
		target = &GameRestartCountdownEvent{}
	case BalanceUpdated:
		target = &BalanceUpdatedEvent{}
	case PlayerSeenCards:
		target = &PlayerSeenCardsEvent{}
	case PlayerListUpdated:
		target = &PlayerListUpdatedEvent{}
	case TableChatMessage:
		target = &TableChatMessageEvent{}
	case TableUpdated:
		target = &TableUpdatedEvent{}
	case TableClosed:
		target = &TableClosedEvent{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}

	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	if err := validate(target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return deref(target), nil
}

// validate rejects payloads missing the field the handler keys on.
func validate(ev Event) error {
	switch e := ev.(type) {
	case *PlayerActionBroadcastEvent:
		if e.UserID == "" || e.Action == "" {
			return errors.New("missing userId or action")
		}
	case *PlayerSeenCardsEvent:
		if e.UserID == "" {
			return errors.New("missing userId")
		}
	case *BalanceUpdatedEvent:
		if e.UserID == "" {
			return errors.New("missing userId")
		}
	case *PlayerRemovedEvent:
		if e.UserID == "" {
			return errors.New("missing userId")
		}
	}
	return nil
}

// deref hands out value types so reducers can switch on them directly.
func deref(ev Event) Event {
	switch e := ev.(type) {
	case *GameStartingEvent:
		return *e
	case *GameStartFailedEvent:
		return *e
	case *GameStartedEvent:
		return *e
	case *GameTerminatedEvent:
		return *e
	case *GameStateUpdatedEvent:
		return *e
	case *PlayerActionBroadcastEvent:
		return *e
	case *ShowdownEvent:
		return *e
	case *GameCompletedEvent:
		return *e
	case *PlayerRemovedEvent:
		return *e
	case *TableResetEvent:
		return *e
	case *GameRestartCountdownEvent:
		return *e
	case *BalanceUpdatedEvent:
		return *e
	case *PlayerSeenCardsEvent:
		return *e
	case *PlayerListUpdatedEvent:
		return *e
	case *TableChatMessageEvent:
		return *e
	case *TableUpdatedEvent:
		return *e
	case *TableClosedEvent:
		return *e
	}
	return ev
}
