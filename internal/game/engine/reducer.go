package engine

import (
	"fmt"
	"strings"

	"SekaTable/internal/game/events"
	"SekaTable/internal/game/heuristic"
	"SekaTable/internal/game/table"
)

const maxChat = 50

// Env is the fixed context the reducer runs in.
type Env struct {
	Self             string
	DefaultCountdown int // seconds
}

// Apply folds one input into s. It never mutates s and never performs I/O;
// everything outside the state is returned as effects.
func Apply(s table.HandState, in Input, env Env) (table.HandState, []Effect) {
	if s.Closed {
		return s, nil
	}
	n := s.Clone()
	if n.PlayerCards == nil {
		n.PlayerCards = make(map[string][]table.Card)
	}
	if n.CardViewers == nil {
		n.CardViewers = table.NewUserSet()
	}
	if n.CalledPlayers == nil {
		n.CalledPlayers = table.NewUserSet()
	}

	switch ev := in.(type) {
	case events.GameStartingEvent:
		secs := env.DefaultCountdown
		if ev.Countdown != nil && *ev.Countdown > 0 {
			secs = *ev.Countdown
		}
		n.Phase = table.PhaseStarting
		return n, []Effect{CancelCountdown{}, StartCountdown{Seconds: secs}}

	case events.GameStartFailedEvent:
		n.Phase = table.PhaseWaiting
		msg := ev.Message
		if msg == "" {
			msg = "game failed to start"
		}
		return n, []Effect{CancelCountdown{}, Notify{Level: LevelError, Message: msg}}

	case events.GameStartedEvent:
		return gameStarted(s, n, ev)

	case events.GameStateUpdatedEvent:
		mergeNumbers(&n, ev.Pot, ev.CurrentBet, ev.CurrentTurn)
		if ev.Players != nil {
			n.Players = table.ClonePlayers(ev.Players)
		}
		if ev.CardViewers != nil {
			n.CardViewers = table.NewUserSet(ev.CardViewers...)
		}
		switch ev.Phase {
		case "showdown":
			n.Phase = table.PhaseShowdown
		case "completed", "finished":
			n.Phase = table.PhaseFinished
		}
		return n, persistIfInHand(n)

	case events.PlayerActionBroadcastEvent:
		return playerAction(n, ev)

	case events.PlayerSeenCardsEvent:
		if ev.UserID == env.Self {
			n.HasViewedCards = true
			revealOwn(&n, env.Self, ev.Hand)
		}
		if ev.Players != nil {
			n.Players = table.ClonePlayers(ev.Players)
		}
		if ev.CardViewers != nil {
			n.CardViewers = table.NewUserSet(ev.CardViewers...)
		}
		return n, persistIfInHand(n)

	case events.ShowdownEvent:
		return showdown(n, ev)

	case events.GameCompletedEvent:
		n.Phase = table.PhaseFinished
		n.Session.Status = table.StatusFinished
		if ev.Players != nil {
			n.Players = table.ClonePlayers(ev.Players)
		}
		if n.Showdown == nil && len(ev.Winners) > 0 {
			n.Showdown = &table.ShowdownResult{Winners: append([]table.Winner(nil), ev.Winners...), Pot: n.Pot}
		}
		effects := []Effect{ObserveCompletion{HandSeq: n.HandSeq}}
		effects = append(effects, scheduleReveal(&n)...)
		return n, append(effects, ClearSnapshot{})

	case events.TableResetEvent:
		resetHand(&n)
		n.HandSeq++
		n.Session.Status = table.StatusWaiting
		if ev.Players != nil {
			n.Players = table.ClonePlayers(ev.Players)
		}
		return n, []Effect{CancelDealing{}, ObserveCompletion{HandSeq: n.HandSeq}, ClearSnapshot{}}

	case events.GameRestartCountdownEvent:
		if ev.Countdown <= 0 {
			return n, []Effect{CancelCountdown{}}
		}
		return n, []Effect{StartCountdown{Seconds: ev.Countdown}}

	case events.TableClosedEvent:
		return closeTable(n, orDefault(ev.Reason, "table closed"))

	case events.GameTerminatedEvent:
		return closeTable(n, orDefault(ev.Reason, "game terminated"))

	case events.PlayerRemovedEvent:
		if ev.UserID != env.Self {
			return s, nil
		}
		return closeTable(n, orDefault(ev.Message, "removed for insufficient balance"))

	case events.BalanceUpdatedEvent:
		if ev.UserID != env.Self {
			return s, nil
		}
		i := table.FindPlayer(n.Players, env.Self)
		if i < 0 {
			return s, nil
		}
		n.Players[i].Balance = ev.Balance
		return n, persistIfInHand(n)

	case events.PlayerListUpdatedEvent:
		if ev.Players == nil {
			return s, nil
		}
		n.Players = table.ClonePlayers(ev.Players)
		return n, persistIfInHand(n)

	case events.TableChatMessageEvent:
		n.Chat = append(n.Chat, ev.ChatMessage)
		if len(n.Chat) > maxChat {
			n.Chat = n.Chat[len(n.Chat)-maxChat:]
		}
		return n, nil

	case events.TableUpdatedEvent:
		if ev.Session.ID == "" {
			return s, nil
		}
		n.Session = ev.Session
		return n, nil

	case Resync:
		return resync(s, n, ev, env)

	case SeedPlayers:
		if ev.Players == nil {
			return s, nil
		}
		n.Players = table.ClonePlayers(ev.Players)
		return n, nil

	case CardsViewed:
		n.HasViewedCards = true
		revealOwn(&n, env.Self, ev.Hand)
		if ev.Players != nil {
			n.Players = table.ClonePlayers(ev.Players)
		}
		return n, persistIfInHand(n)

	case Restore:
		r := ev.State.Clone()
		r.Session = n.Session
		r.Chat = n.Chat
		r.HandSeq = n.HandSeq + 1
		r.ShowCards = false
		r.RevealScheduled = false
		if r.PlayerCards == nil {
			r.PlayerCards = make(map[string][]table.Card)
		}
		if r.CardViewers == nil {
			r.CardViewers = table.NewUserSet()
		}
		if r.CalledPlayers == nil {
			r.CalledPlayers = table.NewUserSet()
		}
		return r, nil

	case DealingComplete:
		if ev.HandSeq != n.HandSeq || !n.Phase.InHand() || n.CardsDealt {
			return s, nil
		}
		n.CardsDealt = true
		n.ControlsVisible = true
		if len(n.PendingHand) > 0 {
			n.PlayerCards[env.Self] = n.PendingHand
			n.PendingHand = nil
		}
		return n, []Effect{SaveSnapshot{}}

	case ControlsFallback:
		if ev.HandSeq != n.HandSeq || !n.Phase.InHand() || n.ControlsVisible {
			return s, nil
		}
		n.ControlsVisible = true
		return n, []Effect{Notify{Level: LevelWarn, Message: "dealer display did not finish; showing controls"}}

	case RevealWinner:
		if ev.HandSeq != n.HandSeq || n.Showdown == nil || n.WinnerRevealed {
			return s, nil
		}
		n.WinnerRevealed = true
		return n, []Effect{Notify{Level: LevelInfo, Message: winnerSummary(n.Showdown)}}

	case ShowdownDue:
		if ev.HandSeq != n.HandSeq || n.Phase != table.PhaseInProgress {
			return s, nil
		}
		if !heuristic.StreetComplete(n.Players, n.CalledPlayers) {
			return s, nil
		}
		return s, []Effect{RequestShowdown{Reason: "all_players_called"}}
	}

	return s, nil
}

func gameStarted(prev, n table.HandState, ev events.GameStartedEvent) (table.HandState, []Effect) {
	if prev.Phase.InHand() && prev.DealerID != "" && prev.DealerID == ev.DealerID {
		// redelivery of the current hand's start; betting may already have
		// moved pot and turn on, and restarting the deal would hide our cards
		if ev.Players != nil {
			n.Players = table.ClonePlayers(ev.Players)
		}
		return n, nil
	}

	resetHand(&n)
	n.HandSeq++
	n.Phase = table.PhaseInProgress
	n.Session.Status = table.StatusInProgress
	n.DealerID = ev.DealerID
	n.Pot = ev.Pot
	n.CurrentBet = ev.CurrentBet
	n.CurrentTurn = ev.CurrentTurn
	if ev.Players != nil {
		n.Players = table.ClonePlayers(ev.Players)
	}

	seats := make([]string, 0, len(n.Players))
	for _, p := range n.Players {
		if p.IsActive {
			seats = append(seats, p.UserID)
		}
	}
	return n, []Effect{
		CancelCountdown{},
		ObserveCompletion{HandSeq: n.HandSeq},
		BeginDealing{HandSeq: n.HandSeq, Seats: seats},
		SaveSnapshot{},
	}
}

func playerAction(n table.HandState, ev events.PlayerActionBroadcastEvent) (table.HandState, []Effect) {
	n.LastAction = &table.Action{UserID: ev.UserID, Action: ev.Action, Amount: ev.Amount}

	switch normalizeAction(ev.Action) {
	case "call":
		n.CalledPlayers[ev.UserID] = struct{}{}
	case "raise", "bet":
		n.CalledPlayers = table.NewUserSet()
	}

	mergeNumbers(&n, ev.Pot, ev.CurrentBet, ev.CurrentTurn)
	if ev.Players != nil {
		n.Players = table.ClonePlayers(ev.Players)
	}
	if ev.CardViewers != nil {
		n.CardViewers = table.NewUserSet(ev.CardViewers...)
	}

	complete := n.Phase == table.PhaseInProgress && heuristic.StreetComplete(n.Players, n.CalledPlayers)
	effects := []Effect{ObserveCompletion{HandSeq: n.HandSeq, Complete: complete}}
	return n, append(effects, persistIfInHand(n)...)
}

func showdown(n table.HandState, ev events.ShowdownEvent) (table.HandState, []Effect) {
	n.Phase = table.PhaseShowdown
	n.ShowCards = true
	if ev.Players != nil {
		n.Players = table.ClonePlayers(ev.Players)
	}
	for _, p := range n.Players {
		if len(p.Hand) > 0 {
			n.PlayerCards[p.UserID] = append([]table.Card(nil), p.Hand...)
		}
	}
	if ev.Pot > 0 {
		n.Pot = ev.Pot
	}
	n.Showdown = &table.ShowdownResult{Winners: append([]table.Winner(nil), ev.Winners...), Pot: n.Pot}

	effects := []Effect{CancelCountdown{}, ObserveCompletion{HandSeq: n.HandSeq}}
	effects = append(effects, scheduleReveal(&n)...)
	return n, append(effects, SaveSnapshot{})
}

// scheduleReveal starts the winner reveal once per hand, whichever of
// showdown or game_completed brings the result.
func scheduleReveal(n *table.HandState) []Effect {
	if n.Showdown == nil || n.WinnerRevealed || n.RevealScheduled {
		return nil
	}
	n.RevealScheduled = true
	return []Effect{ScheduleReveal{HandSeq: n.HandSeq}}
}

func resync(prev, n table.HandState, ev Resync, env Env) (table.HandState, []Effect) {
	wasInHand := prev.Phase.InHand()

	phase := ev.Phase
	if phase == "" {
		switch ev.Session.Status {
		case table.StatusInProgress:
			phase = table.PhaseInProgress
		case table.StatusFinished:
			phase = table.PhaseFinished
		default:
			phase = table.PhaseWaiting
		}
	}

	n.Session = ev.Session
	if !phase.InHand() {
		resetHand(&n)
	}
	n.Phase = phase
	n.Players = table.ClonePlayers(ev.Players)
	n.Pot = ev.Pot
	n.CurrentBet = ev.CurrentBet
	n.CurrentTurn = ev.CurrentTurn
	n.DealerID = ev.DealerID
	n.CardViewers = table.NewUserSet(ev.CardViewers...)

	if !phase.InHand() {
		return n, []Effect{CancelDealing{}, ObserveCompletion{HandSeq: n.HandSeq}, ClearSnapshot{}}
	}

	// other players' cards are only public at showdown
	own := n.PlayerCards[env.Self]
	n.PlayerCards = make(map[string][]table.Card)
	if phase == table.PhaseShowdown {
		for _, p := range n.Players {
			if len(p.Hand) > 0 {
				n.PlayerCards[p.UserID] = append([]table.Card(nil), p.Hand...)
			}
		}
	}
	if len(own) > 0 {
		n.PlayerCards[env.Self] = own
	}
	if !wasInHand {
		// joined mid-hand: there is no deal to watch
		n.CalledPlayers = table.NewUserSet()
		n.ShowCards = phase == table.PhaseShowdown
		n.CardsDealt = true
		n.ControlsVisible = true
	}
	return n, []Effect{SaveSnapshot{}}
}

func closeTable(n table.HandState, reason string) (table.HandState, []Effect) {
	n.Closed = true
	n.CloseReason = reason
	return n, []Effect{
		CancelCountdown{},
		CancelDealing{},
		ObserveCompletion{HandSeq: n.HandSeq},
		ClearMembership{},
		Notify{Level: LevelError, Message: reason},
		Exit{Reason: reason},
	}
}

// resetHand clears everything that only lives for one hand.
func resetHand(n *table.HandState) {
	n.Phase = table.PhaseWaiting
	n.Pot = 0
	n.CurrentBet = 0
	n.CurrentTurn = ""
	n.DealerID = ""
	n.PlayerCards = make(map[string][]table.Card)
	n.CardViewers = table.NewUserSet()
	n.CalledPlayers = table.NewUserSet()
	n.HasViewedCards = false
	n.CardsDealt = false
	n.ControlsVisible = false
	n.ShowCards = false
	n.PendingHand = nil
	n.LastAction = nil
	n.Showdown = nil
	n.WinnerRevealed = false
	n.RevealScheduled = false
}

// revealOwn shows the local hand, or parks it until the deal has finished.
func revealOwn(n *table.HandState, self string, hand []table.Card) {
	if len(hand) == 0 {
		return
	}
	cards := append([]table.Card(nil), hand...)
	if n.CardsDealt || !n.Phase.InHand() {
		n.PlayerCards[self] = cards
		return
	}
	n.PendingHand = cards
}

func mergeNumbers(n *table.HandState, pot, bet *float64, turn *string) {
	if pot != nil {
		n.Pot = *pot
	}
	if bet != nil {
		n.CurrentBet = *bet
	}
	if turn != nil {
		n.CurrentTurn = *turn
	}
}

func persistIfInHand(n table.HandState) []Effect {
	if n.Phase.InHand() {
		return []Effect{SaveSnapshot{}}
	}
	return nil
}

// normalizeAction folds blind variants ("blind_call") onto their seen form.
func normalizeAction(a string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	return strings.TrimPrefix(a, "blind_")
}

func winnerSummary(sd *table.ShowdownResult) string {
	if len(sd.Winners) == 0 {
		return "hand finished with no winner"
	}
	names := make([]string, 0, len(sd.Winners))
	for _, w := range sd.Winners {
		name := w.Username
		if name == "" {
			name = w.UserID
		}
		if w.HandDescription != "" {
			name += " (" + w.HandDescription + ")"
		}
		names = append(names, name)
	}
	return fmt.Sprintf("%s won %.2f", strings.Join(names, ", "), sd.Pot)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
