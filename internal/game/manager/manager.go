package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"SekaTable/config"
	"SekaTable/internal/game/engine"
	"SekaTable/internal/game/table"
	"SekaTable/internal/persist"
	"SekaTable/internal/utils"
	"SekaTable/internal/websocket"

	log1 "github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrTableNotFound = errors.New("table not found")
	// ErrExited is returned by Run after the session at the table has ended.
	ErrExited = errors.New("left table")
)

// Transport is the request/ack channel to the table server.
type Transport interface {
	Call(ctx context.Context, event string, payload, out any) error
	Notify(event string, payload any) error
}

// Store is the durable state the manager keeps about its table.
type Store interface {
	engine.Snapshots
	SaveMembership(ctx context.Context, tableID, userID string) error
	Restore(ctx context.Context, tableID, userID string) (table.HandState, error)
}

// TableInfo is the table this client was pointed at.
type TableInfo struct {
	ID       string
	Name     string
	EntryFee float64
}

type Options struct {
	Table    TableInfo
	Identity table.Identity
	Timing   config.Timing
	Notifier engine.Notifier
}

// TableManager joins one table, keeps the engine in sync with the server and
// forwards the local player's actions.
type TableManager struct {
	conn   Transport
	store  Store
	engine *engine.Engine
	opts   Options

	joined atomic.Bool

	resyncMu     sync.Mutex
	resyncSeq    uint64
	cancelResync context.CancelFunc

	exitOnce sync.Once
	done     chan struct{}
	mu       sync.RWMutex
	reason   string

	log *log1.Logger
}

func New(conn Transport, store Store, opts Options) *TableManager {
	m := &TableManager{
		conn:  conn,
		store: store,
		opts:  opts,
		done:  make(chan struct{}),
		log:   utils.Named("table").With("table", opts.Table.ID),
	}
	m.engine = engine.New(engine.Options{
		TableID:   opts.Table.ID,
		Self:      opts.Identity.UserID,
		Timing:    opts.Timing,
		Snapshots: store,
		Emitter:   conn,
		Notifier:  opts.Notifier,
		OnExit:    m.exit,
	})
	return m
}

// Attach wires the client's connection lifecycle and pushes to the manager.
func (m *TableManager) Attach(c *websocket.Client) {
	c.OnEvent = m.engine.Dispatch
	c.OnConnect = func() {
		if err := m.Join(context.Background()); err != nil {
			m.log.Error("join failed", "err", err)
		}
	}
	c.OnReconnect = func() {
		if !m.joined.Load() {
			if err := m.Join(context.Background()); err != nil {
				m.log.Error("join after reconnect failed", "err", err)
			}
			return
		}
		if err := m.RequestFullState(context.Background()); err != nil {
			m.log.Error("resync after reconnect failed", "err", err)
		}
	}
	c.OnDisconnect = func(err error) {
		if err != nil {
			m.opts.notify(engine.LevelWarn, "connection lost, reconnecting")
		}
	}
}

func (o Options) notify(level engine.Level, msg string) {
	if o.Notifier != nil {
		o.Notifier.Notify(level, msg)
	}
}

func (m *TableManager) Engine() *engine.Engine {
	return m.engine
}

func (m *TableManager) State() table.HandState {
	return m.engine.State()
}

func (m *TableManager) Identity() table.Identity {
	return m.opts.Identity
}

// Countdown reports the start/restart timer as it is currently shown.
func (m *TableManager) Countdown() (remaining int, visible bool) {
	cd := m.engine.Countdown()
	return cd.Remaining(), cd.Visible()
}

// Done is closed once the session at the table is over.
func (m *TableManager) Done() <-chan struct{} {
	return m.done
}

// ExitReason is why the session ended, empty while it is running.
func (m *TableManager) ExitReason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reason
}

func (m *TableManager) exit(reason string) {
	m.exitOnce.Do(func() {
		m.mu.Lock()
		m.reason = reason
		m.mu.Unlock()
		m.log.Info("leaving table", "reason", reason)
		close(m.done)
	})
}

// Run drives the engine and the heartbeat until ctx is done or the session
// ends, in which case it returns ErrExited.
func (m *TableManager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.engine.Run(gctx)
	})
	g.Go(func() error {
		return m.heartbeat(gctx)
	})
	g.Go(func() error {
		select {
		case <-m.done:
			return ErrExited
		case <-gctx.Done():
			return nil
		}
	})
	return g.Wait()
}

func (m *TableManager) heartbeat(ctx context.Context) error {
	if m.opts.Timing.HeartbeatInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.opts.Timing.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := m.conn.Notify("heartbeat", map[string]string{
				"tableId": m.opts.Table.ID,
				"userId":  m.opts.Identity.UserID,
			})
			if err != nil {
				m.log.Debug("heartbeat skipped", "err", err)
			}
		}
	}
}

// Restore seeds the engine from a persisted snapshot, if one is still fresh.
func (m *TableManager) Restore(ctx context.Context) error {
	s, err := m.store.Restore(ctx, m.opts.Table.ID, m.opts.Identity.UserID)
	switch {
	case errors.Is(err, persist.ErrNotFound):
		return nil
	case errors.Is(err, persist.ErrStaleSnapshot):
		m.log.Info("discarded stale snapshot")
		return nil
	case err != nil:
		return err
	}
	m.log.Info("restored hand from snapshot", "phase", s.Phase, "pot", s.Pot)
	m.engine.Post(engine.Restore{State: s})
	return nil
}

// ---------------------
//     JOIN / RESYNC
// ---------------------

type joinAck struct {
	Players []table.Player `json:"players"`
}

// Join sits the local player at the table. Only the first call per manager
// sends join_table; later calls are no-ops. A join lost to the transport
// (not connected, no ack) releases the latch so the next connect retries it.
func (m *TableManager) Join(ctx context.Context) error {
	if !m.joined.CompareAndSwap(false, true) {
		return nil
	}
	id := m.opts.Identity
	payload := map[string]any{
		"tableId":   m.opts.Table.ID,
		"userId":    id.UserID,
		"userEmail": id.Email,
		"username":  id.DisplayName,
		"avatar":    id.Avatar,
		"tableName": m.opts.Table.Name,
		"entryFee":  m.opts.Table.EntryFee,
	}
	var ack joinAck
	if err := m.conn.Call(ctx, "join_table", payload, &ack); err != nil {
		if errors.Is(err, websocket.ErrNotConnected) || errors.Is(err, websocket.ErrTimeout) {
			m.joined.Store(false)
		}
		m.opts.notify(engine.LevelError, "could not join table: "+errMessage(err))
		return fmt.Errorf("join table %s: %w", m.opts.Table.ID, err)
	}
	m.log.Info("joined table", "user", id.UserID, "players", len(ack.Players))
	if ack.Players != nil {
		m.engine.Post(engine.SeedPlayers{Players: ack.Players})
	}
	return m.RequestFullState(ctx)
}

type tableDetails struct {
	table.Session
	Players     []table.Player `json:"players"`
	Pot         float64        `json:"pot"`
	CurrentBet  float64        `json:"currentBet"`
	CurrentTurn string         `json:"currentTurn"`
	DealerID    string         `json:"dealerId"`
	CardViewers []string       `json:"cardViewers"`
	Phase       table.Phase    `json:"phase"`
}

type detailsAck struct {
	Table *tableDetails `json:"table"`
}

// RequestFullState fetches the table and replaces the engine's belief with it.
// Issuing a new request cancels the one in flight; a response that arrives
// after a newer request was issued is dropped.
func (m *TableManager) RequestFullState(ctx context.Context) error {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.resyncMu.Lock()
	m.resyncSeq++
	seq := m.resyncSeq
	if m.cancelResync != nil {
		m.cancelResync()
	}
	m.cancelResync = cancel
	m.resyncMu.Unlock()

	var ack detailsAck
	err := m.conn.Call(callCtx, "get_table_details", map[string]string{"tableId": m.opts.Table.ID}, &ack)
	if !m.latestResync(seq) {
		m.log.Debug("discarding superseded table details", "seq", seq)
		return nil
	}

	var rejected *websocket.ActionRejectedError
	switch {
	case errors.As(err, &rejected):
		return m.tableNotFound(ctx, rejected.Message)
	case err != nil:
		return fmt.Errorf("get table details: %w", err)
	case ack.Table == nil:
		return m.tableNotFound(ctx, "")
	}

	d := ack.Table
	if d.ID == "" {
		d.ID = m.opts.Table.ID
	}
	m.engine.Post(engine.Resync{
		Session:     d.Session,
		Players:     d.Players,
		Phase:       d.Phase,
		Pot:         d.Pot,
		CurrentBet:  d.CurrentBet,
		CurrentTurn: d.CurrentTurn,
		DealerID:    d.DealerID,
		CardViewers: d.CardViewers,
	})

	switch d.Status {
	case table.StatusInProgress:
		err = m.store.SaveMembership(ctx, d.ID, m.opts.Identity.UserID)
	case table.StatusWaiting:
		// a lobby table must not be silently rejoined later
		err = m.store.ClearMembership(ctx, d.ID)
	}
	if err != nil {
		m.log.Warn("membership not updated", "status", d.Status, "err", err)
	}
	m.log.Debug("table resynced", "seq", seq, "status", d.Status, "players", len(d.Players))
	return nil
}

func (m *TableManager) latestResync(seq uint64) bool {
	m.resyncMu.Lock()
	defer m.resyncMu.Unlock()
	return seq == m.resyncSeq
}

func (m *TableManager) tableNotFound(ctx context.Context, msg string) error {
	if err := m.store.ClearMembership(ctx, m.opts.Table.ID); err != nil {
		m.log.Warn("membership not cleared", "err", err)
	}
	if msg == "" {
		msg = "table not found"
	}
	m.opts.notify(engine.LevelError, msg)
	return fmt.Errorf("%w: %s", ErrTableNotFound, msg)
}

// ---------------------
//     PLAYER ACTIONS
// ---------------------

func (m *TableManager) actionPayload(extra map[string]any) map[string]any {
	p := map[string]any{
		"tableId": m.opts.Table.ID,
		"userId":  m.opts.Identity.UserID,
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

// Act sends a betting action (call, raise, fold, ...).
func (m *TableManager) Act(ctx context.Context, action string, amount float64) error {
	return m.call(ctx, "player_action", m.actionPayload(map[string]any{"action": action, "amount": amount}), nil)
}

// PlayBlind sends a blind action for a player who has not looked at their cards.
func (m *TableManager) PlayBlind(ctx context.Context, action string, amount float64) error {
	return m.call(ctx, "player_play_blind", m.actionPayload(map[string]any{"action": action, "amount": amount}), nil)
}

type viewAck struct {
	Hand            []table.Card `json:"hand"`
	HandScore       *float64     `json:"handScore"`
	HandDescription string       `json:"handDescription"`
	GameState       *struct {
		Players []table.Player `json:"players"`
	} `json:"gameState"`
}

// ViewResult is what the server revealed to the local player.
type ViewResult struct {
	Hand            []table.Card `json:"hand"`
	HandScore       *float64     `json:"handScore,omitempty"`
	HandDescription string       `json:"handDescription,omitempty"`
}

// ViewCards looks at the local hand. The revealed cards go through the engine
// so they still wait for the deal to finish.
func (m *TableManager) ViewCards(ctx context.Context) (ViewResult, error) {
	var ack viewAck
	if err := m.call(ctx, "player_view_cards", m.actionPayload(nil), &ack); err != nil {
		return ViewResult{}, err
	}
	in := engine.CardsViewed{Hand: ack.Hand, HandScore: ack.HandScore, HandDescription: ack.HandDescription}
	if ack.GameState != nil {
		in.Players = ack.GameState.Players
	}
	m.engine.Post(in)
	return ViewResult{Hand: ack.Hand, HandScore: ack.HandScore, HandDescription: ack.HandDescription}, nil
}

func (m *TableManager) Chat(ctx context.Context, message string) error {
	return m.call(ctx, "send_table_chat", m.actionPayload(map[string]any{
		"username": m.opts.Identity.DisplayName,
		"message":  message,
	}), nil)
}

// ForceShowdown asks the server to settle the street now.
func (m *TableManager) ForceShowdown(reason string) error {
	return m.conn.Notify("force_showdown", map[string]string{"tableId": m.opts.Table.ID, "reason": reason})
}

// Leave stands up from the table and forgets it locally.
func (m *TableManager) Leave(ctx context.Context) error {
	err := m.conn.Notify("leave_table", m.actionPayload(map[string]any{"userEmail": m.opts.Identity.Email}))
	if err != nil {
		m.log.Warn("leave_table not sent", "err", err)
	}
	if cerr := m.store.ClearMembership(ctx, m.opts.Table.ID); cerr != nil {
		m.log.Warn("membership not cleared", "err", cerr)
	}
	m.exit("left table")
	return err
}

// call sends a request and surfaces a failure to the notifier as well as to
// the caller.
func (m *TableManager) call(ctx context.Context, event string, payload, out any) error {
	err := m.conn.Call(ctx, event, payload, out)
	if err != nil {
		m.log.Warn("request failed", "event", event, "err", err)
		m.opts.notify(engine.LevelError, errMessage(err))
	}
	return err
}

func errMessage(err error) string {
	var rejected *websocket.ActionRejectedError
	switch {
	case errors.As(err, &rejected) && rejected.Message != "":
		return rejected.Message
	case errors.Is(err, websocket.ErrNotConnected):
		return "connection lost, refresh to reconnect"
	case errors.Is(err, websocket.ErrTimeout):
		return "the server did not answer in time"
	}
	return err.Error()
}
