package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"SekaTable/internal/utils"

	log1 "github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second    // single write deadline
	pongWait   = 60 * time.Second    // read deadline without a pong
	pingPeriod = (pongWait * 9) / 10 // ping cadence
	sendBuffer = 32
)

// Client keeps one connection to the table server alive, redialing after
// failures. Pushes are delivered to OnEvent from a single goroutine in the
// order they were read.
type Client struct {
	URL        string
	Header     http.Header
	AckTimeout time.Duration
	Backoff    time.Duration
	Dialer     *websocket.Dialer

	// OnConnect and OnReconnect run in their own goroutine so they may Call.
	OnConnect    func()
	OnReconnect  func()
	OnDisconnect func(err error)
	OnEvent      func(event string, data json.RawMessage)

	mu      sync.RWMutex
	sess    *session
	nextAck atomic.Uint64
	log     *log1.Logger
}

// session is one live connection.
type session struct {
	conn *websocket.Conn
	send chan Message
	done chan struct{}

	mu      sync.Mutex
	pending map[uint64]chan Message
	closed  bool
}

func NewClient(url string, ackTimeout, backoff time.Duration) *Client {
	return &Client{
		URL:        url,
		AckTimeout: ackTimeout,
		Backoff:    backoff,
		Dialer:     websocket.DefaultDialer,
		log:        utils.Named("ws"),
	}
}

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess != nil
}

// Run dials and redials until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	connectedOnce := false
	for {
		conn, _, err := c.Dialer.DialContext(ctx, c.URL, c.Header)
		if err != nil {
			c.log.Warn("dial failed", "url", c.URL, "err", err)
			if !c.wait(ctx) {
				return ctx.Err()
			}
			continue
		}

		sess := c.attach(conn)
		if !connectedOnce {
			connectedOnce = true
			c.log.Info("connected", "url", c.URL)
			if c.OnConnect != nil {
				go c.OnConnect()
			}
		} else {
			c.log.Info("reconnected", "url", c.URL)
			if c.OnReconnect != nil {
				go c.OnReconnect()
			}
		}

		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		err = c.readPump(sess)
		stop()
		c.detach(sess)

		if c.OnDisconnect != nil {
			c.OnDisconnect(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("disconnected", "err", err)
		if !c.wait(ctx) {
			return ctx.Err()
		}
	}
}

func (c *Client) wait(ctx context.Context) bool {
	t := time.NewTimer(c.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) attach(conn *websocket.Conn) *session {
	sess := &session{
		conn:    conn,
		send:    make(chan Message, sendBuffer),
		done:    make(chan struct{}),
		pending: make(map[uint64]chan Message),
	}
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	go c.writePump(sess)
	return sess
}

// detach fails every in-flight request of the session with ErrNotConnected.
func (c *Client) detach(sess *session) {
	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
	}
	c.mu.Unlock()

	sess.mu.Lock()
	if !sess.closed {
		sess.closed = true
		close(sess.done)
		for id, ch := range sess.pending {
			close(ch)
			delete(sess.pending, id)
		}
	}
	sess.mu.Unlock()
	_ = sess.conn.Close()
}

func (c *Client) current() *session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

func (c *Client) writePump(sess *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sess.conn.Close()
	}()

	for {
		select {
		case <-sess.done:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = sess.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-sess.send:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteJSON(msg); err != nil {
				c.log.Warn("write failed", "event", msg.Event, "err", err)
				return
			}

		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(sess *session) error {
	_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := sess.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.log.Warn("dropping malformed frame", "err", err)
				continue
			}
			return err
		}
		_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))

		if msg.Event == AckEvent {
			sess.resolve(msg)
			continue
		}
		if c.OnEvent != nil {
			c.OnEvent(msg.Event, msg.Data)
		}
	}
}

func (s *session) resolve(ack Message) {
	s.mu.Lock()
	ch, ok := s.pending[ack.AckID]
	delete(s.pending, ack.AckID)
	s.mu.Unlock()
	if ok {
		ch <- ack
	}
}

func (s *session) register(id uint64) (chan Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	ch := make(chan Message, 1)
	s.pending[id] = ch
	return ch, true
}

func (s *session) forget(id uint64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *session) enqueue(ctx context.Context, msg Message) error {
	select {
	case s.send <- msg:
		return nil
	case <-s.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call sends event and waits for its acknowledgement. A success=false ack is
// returned as *ActionRejectedError; on success the ack payload is decoded into
// out when out is non-nil.
func (c *Client) Call(ctx context.Context, event string, payload, out any) error {
	sess := c.current()
	if sess == nil {
		return ErrNotConnected
	}
	msg, err := NewMessage(event, payload)
	if err != nil {
		return err
	}
	msg.AckID = c.nextAck.Add(1)

	ch, ok := sess.register(msg.AckID)
	if !ok {
		return ErrNotConnected
	}
	defer sess.forget(msg.AckID)

	if c.AckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.AckTimeout)
		defer cancel()
	}
	if err := sess.enqueue(ctx, msg); err != nil {
		return timeoutOr(err)
	}

	select {
	case ack, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}
		return decodeAck(event, ack.Data, out)
	case <-ctx.Done():
		return timeoutOr(ctx.Err())
	}
}

// Notify sends event without waiting for any reply.
func (c *Client) Notify(event string, payload any) error {
	sess := c.current()
	if sess == nil {
		return ErrNotConnected
	}
	msg, err := NewMessage(event, payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	return timeoutOr(sess.enqueue(ctx, msg))
}

func decodeAck(event string, data json.RawMessage, out any) error {
	var ack Ack
	if len(data) > 0 {
		if err := json.Unmarshal(data, &ack); err != nil {
			return &ActionRejectedError{Event: event, Message: "malformed acknowledgement"}
		}
	}
	if !ack.Success {
		msg := ack.Message
		if msg == "" {
			msg = ack.Error
		}
		return &ActionRejectedError{Event: event, Message: msg}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return err
		}
	}
	return nil
}

func timeoutOr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
