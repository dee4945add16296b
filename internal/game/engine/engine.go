package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"SekaTable/config"
	"SekaTable/internal/game/countdown"
	"SekaTable/internal/game/dealer"
	"SekaTable/internal/game/events"
	"SekaTable/internal/game/heuristic"
	"SekaTable/internal/game/table"
	"SekaTable/internal/utils"

	log1 "github.com/charmbracelet/log"
)

// ---------------------
//     COLLABORATORS
// ---------------------

// Snapshots is the persistence the engine mirrors committed state into.
type Snapshots interface {
	Save(ctx context.Context, tableID, userID string, s table.HandState) error
	Clear(ctx context.Context, tableID string) error
	ClearMembership(ctx context.Context, tableID string) error
}

// Emitter sends fire-and-forget requests to the table server.
type Emitter interface {
	Notify(event string, payload any) error
}

// Notifier surfaces user-facing messages.
type Notifier interface {
	Notify(level Level, message string)
}

// LogNotifier writes notifications to the component logger.
type LogNotifier struct{ Log *log1.Logger }

func (n LogNotifier) Notify(level Level, message string) {
	switch level {
	case LevelError:
		n.Log.Error(message)
	case LevelWarn:
		n.Log.Warn(message)
	default:
		n.Log.Info(message)
	}
}

type Options struct {
	TableID string
	Self    string
	Timing  config.Timing

	Snapshots Snapshots
	Emitter   Emitter
	Notifier  Notifier

	// OnExit runs once when the table session ends.
	OnExit func(reason string)
	// OnChange runs after every transition that produced effects.
	OnChange func(s table.HandState)
}

// ---------------------
//       ENGINE
// ---------------------

// Engine owns the hand state. Server events and timer inputs are applied one
// at a time from a single loop; readers get copies.
type Engine struct {
	opts Options
	env  Env

	mu    sync.RWMutex
	state table.HandState

	inputs chan Input
	done   chan struct{}
	exited atomic.Bool

	countdown     *countdown.Countdown
	stage         *dealer.Stage
	trigger       *heuristic.Trigger
	completionSeq atomic.Uint64
	revealMu      sync.Mutex
	reveal        *time.Timer

	log *log1.Logger
}

func New(opts Options) *Engine {
	e := &Engine{
		opts:   opts,
		env:    Env{Self: opts.Self, DefaultCountdown: int(opts.Timing.DefaultCountdown / time.Second)},
		state:  table.NewHandState(),
		inputs: make(chan Input, 256),
		done:   make(chan struct{}),
		log:    utils.Named("engine"),
	}
	if e.env.DefaultCountdown <= 0 {
		e.env.DefaultCountdown = 10
	}
	if e.opts.Notifier == nil {
		e.opts.Notifier = LogNotifier{Log: e.log}
	}
	e.state.Session.ID = opts.TableID

	e.countdown = countdown.New(func(remaining int) {
		e.log.Debug("countdown", "remaining", remaining)
	})
	e.stage = &dealer.Stage{
		CardDelay:  opts.Timing.DealCardDelay,
		Fallback:   opts.Timing.ControlsFallback,
		OnCard:     func(seq uint64, seat string, n int) { e.log.Debug("card dealt", "hand", seq, "seat", seat, "n", n) },
		OnComplete: func(seq uint64) { e.Post(DealingComplete{HandSeq: seq}) },
		OnFallback: func(seq uint64) { e.Post(ControlsFallback{HandSeq: seq}) },
	}
	e.trigger = heuristic.NewTrigger(opts.Timing.ShowdownDebounce, func() {
		e.Post(ShowdownDue{HandSeq: e.completionSeq.Load()})
	})
	return e
}

// State returns a copy of the current hand state.
func (e *Engine) State() table.HandState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Countdown exposes the visible start/restart timer.
func (e *Engine) Countdown() *countdown.Countdown {
	return e.countdown
}

// Dispatch decodes a raw server push and queues it. Unknown or malformed
// events are logged and dropped.
func (e *Engine) Dispatch(name string, raw json.RawMessage) {
	ev, err := events.Decode(name, raw)
	if err != nil {
		e.log.Warn("dropping event", "event", name, "err", err)
		return
	}
	e.Post(ev)
}

// Post queues an input for the loop.
func (e *Engine) Post(in Input) {
	select {
	case e.inputs <- in:
	case <-e.done:
	}
}

// Run applies queued inputs until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		close(e.done)
		e.countdown.Cancel()
		e.stage.Cancel()
		e.trigger.Stop()
		e.stopReveal()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in := <-e.inputs:
			e.Process(in)
		}
	}
}

// Process applies one input synchronously and runs its effects.
func (e *Engine) Process(in Input) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("input handler panicked", "input", fmt.Sprintf("%T", in), "panic", r)
		}
	}()

	if ev, ok := in.(events.Event); ok {
		if id := ev.Table(); id != "" && id != e.opts.TableID {
			e.log.Debug("ignoring event for another table", "event", ev.Name(), "table", id)
			return
		}
	}

	e.mu.Lock()
	next, effects := Apply(e.state, in, e.env)
	e.state = next
	e.mu.Unlock()

	for _, eff := range effects {
		e.run(eff, next)
	}
	if e.opts.OnChange != nil && len(effects) > 0 {
		e.opts.OnChange(next.Clone())
	}
}

func (e *Engine) run(eff Effect, s table.HandState) {
	switch eff := eff.(type) {
	case StartCountdown:
		e.countdown.Start(eff.Seconds)
	case CancelCountdown:
		e.countdown.Cancel()
	case BeginDealing:
		e.stage.Begin(eff.HandSeq, eff.Seats)
	case CancelDealing:
		e.stage.Cancel()
	case ScheduleReveal:
		e.scheduleReveal(eff.HandSeq)
	case ObserveCompletion:
		e.completionSeq.Store(eff.HandSeq)
		e.trigger.Observe(eff.Complete)
	case RequestShowdown:
		e.requestShowdown(eff.Reason)
	case SaveSnapshot:
		e.persist(func(ctx context.Context, p Snapshots) error {
			return p.Save(ctx, e.opts.TableID, e.opts.Self, s)
		})
	case ClearSnapshot:
		e.persist(func(ctx context.Context, p Snapshots) error {
			return p.Clear(ctx, e.opts.TableID)
		})
	case ClearMembership:
		e.persist(func(ctx context.Context, p Snapshots) error {
			return p.ClearMembership(ctx, e.opts.TableID)
		})
	case Notify:
		e.opts.Notifier.Notify(eff.Level, eff.Message)
	case Exit:
		if e.exited.CompareAndSwap(false, true) && e.opts.OnExit != nil {
			go e.opts.OnExit(eff.Reason)
		}
	default:
		e.log.Warn("unknown effect", "effect", fmt.Sprintf("%T", eff))
	}
}

func (e *Engine) persist(fn func(ctx context.Context, p Snapshots) error) {
	if e.opts.Snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := fn(ctx, e.opts.Snapshots); err != nil {
		e.log.Warn("persist failed", "table", e.opts.TableID, "err", err)
	}
}

func (e *Engine) requestShowdown(reason string) {
	if e.opts.Emitter == nil {
		return
	}
	e.log.Info("all active players called, requesting showdown", "table", e.opts.TableID)
	payload := map[string]string{"tableId": e.opts.TableID, "reason": reason}
	if err := e.opts.Emitter.Notify("force_showdown", payload); err != nil {
		e.log.Warn("force_showdown not sent", "err", err)
	}
}

func (e *Engine) scheduleReveal(seq uint64) {
	e.revealMu.Lock()
	defer e.revealMu.Unlock()
	if e.reveal != nil {
		e.reveal.Stop()
	}
	e.reveal = time.AfterFunc(e.opts.Timing.WinnerRevealDelay, func() {
		e.Post(RevealWinner{HandSeq: seq})
	})
}

func (e *Engine) stopReveal() {
	e.revealMu.Lock()
	defer e.revealMu.Unlock()
	if e.reveal != nil {
		e.reveal.Stop()
		e.reveal = nil
	}
}
