// Package dealer runs the local card-dealing presentation that gates the reveal
// of a freshly started hand.
package dealer

import (
	"sync"
	"time"
)

// CardsPerPlayer is the size of a Seka hand.
const CardsPerPlayer = 3

// DealOrder returns the seat receiving each card, one card per seat per pass.
func DealOrder(players []string, cardsPerPlayer int) []string {
	out := make([]string, 0, len(players)*cardsPerPlayer)
	for i := 0; i < cardsPerPlayer; i++ {
		out = append(out, players...)
	}
	return out
}

// Stage animates one deal per hand. OnCard fires as each card lands, OnComplete
// once all have landed. OnFallback fires after Fallback regardless, so the
// betting controls appear even when the dealer signal never arrives.
type Stage struct {
	CardDelay time.Duration
	Fallback  time.Duration

	OnCard     func(handSeq uint64, seat string, n int)
	OnComplete func(handSeq uint64)
	OnFallback func(handSeq uint64)

	mu       sync.Mutex
	stop     chan struct{}
	fallback *time.Timer
}

// Begin cancels any running deal and starts a new one for handSeq.
func (s *Stage) Begin(handSeq uint64, players []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()

	stop := make(chan struct{})
	s.stop = stop
	if s.Fallback > 0 && s.OnFallback != nil {
		// workaround: the dealer display has been seen to never show up
		s.fallback = time.AfterFunc(s.Fallback, func() { s.OnFallback(handSeq) })
	}
	go s.deal(handSeq, DealOrder(players, CardsPerPlayer), stop)
}

func (s *Stage) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *Stage) cancelLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	if s.fallback != nil {
		s.fallback.Stop()
		s.fallback = nil
	}
}

func (s *Stage) deal(handSeq uint64, order []string, stop chan struct{}) {
	for i, seat := range order {
		if s.CardDelay > 0 {
			select {
			case <-stop:
				return
			case <-time.After(s.CardDelay):
			}
		}
		select {
		case <-stop:
			return
		default:
		}
		if s.OnCard != nil {
			s.OnCard(handSeq, seat, i)
		}
	}

	s.mu.Lock()
	if s.stop != stop {
		s.mu.Unlock()
		return
	}
	s.stop = nil
	if s.fallback != nil {
		s.fallback.Stop()
		s.fallback = nil
	}
	s.mu.Unlock()

	if s.OnComplete != nil {
		s.OnComplete(handSeq)
	}
}
