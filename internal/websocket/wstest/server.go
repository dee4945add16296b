// Package wstest runs an in-process table server speaking the client's wire
// envelope, for tests.
package wstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	ws "SekaTable/internal/websocket"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandlerFunc answers one request. Returning nil sends no ack.
type HandlerFunc func(conn *Conn, data json.RawMessage) any

// Conn is one connected client as seen by the server.
type Conn struct {
	ID   int
	conn *websocket.Conn
	send chan ws.Message
	hub  *Server
}

// Received is one inbound message with its arrival order.
type Received struct {
	ConnID int
	ws.Message
}

// Server fans pushes out to every connected client and dispatches requests
// to registered handlers.
type Server struct {
	*httptest.Server

	register   chan *Conn
	unregister chan *Conn
	broadcast  chan ws.Message
	quit       chan struct{}

	mu       sync.RWMutex
	conns    map[int]*Conn
	nextID   int
	handlers map[string]HandlerFunc
	received []Received
}

func NewServer() *Server {
	s := &Server{
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		broadcast:  make(chan ws.Message),
		quit:       make(chan struct{}),
		conns:      make(map[int]*Conn),
		handlers:   make(map[string]HandlerFunc),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveWS))
	go s.run()
	return s
}

// WSURL is the ws:// endpoint of the server.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *Server) Close() {
	close(s.quit)
	s.DropAll()
	s.Server.Close()
}

func (s *Server) run() {
	for {
		select {
		case c := <-s.register:
			s.mu.Lock()
			s.conns[c.ID] = c
			s.mu.Unlock()

		case c := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.conns[c.ID]; ok {
				delete(s.conns, c.ID)
				close(c.send)
			}
			s.mu.Unlock()

		case msg := <-s.broadcast:
			s.mu.RLock()
			for _, c := range s.conns {
				select {
				case c.send <- msg:
				default:
				}
			}
			s.mu.RUnlock()

		case <-s.quit:
			return
		}
	}
}

func (s *Server) Handle(event string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

// Push broadcasts a server event to every client.
func (s *Server) Push(event string, data any) {
	msg, err := ws.NewMessage(event, data)
	if err != nil {
		panic(err)
	}
	s.broadcast <- msg
}

// PushRaw broadcasts a payload as-is, malformed or not.
func (s *Server) PushRaw(event string, raw string) {
	s.broadcast <- ws.Message{Event: event, Data: json.RawMessage(raw)}
}

// Received returns the payloads of every inbound message named event.
func (s *Server) Received(event string) []json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []json.RawMessage
	for _, r := range s.received {
		if r.Event == event {
			out = append(out, r.Data)
		}
	}
	return out
}

// Count is the number of inbound messages named event.
func (s *Server) Count(event string) int {
	return len(s.Received(event))
}

func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// DropAll closes every client connection, simulating a network drop.
func (s *Server) DropAll() {
	s.mu.RLock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()
	for _, c := range conns {
		_ = c.conn.Close()
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.nextID++
	c := &Conn{ID: s.nextID, conn: conn, send: make(chan ws.Message, 64), hub: s}
	s.mu.Unlock()

	s.register <- c
	go c.writePump()
	go c.readPump()
}

// Send pushes an event to this client only.
func (c *Conn) Send(event string, data any) {
	msg, err := ws.NewMessage(event, data)
	if err != nil {
		panic(err)
	}
	defer func() { _ = recover() }() // send on a connection already gone
	c.send <- msg
}

func (c *Conn) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (c *Conn) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ws.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		c.hub.mu.Lock()
		c.hub.received = append(c.hub.received, Received{ConnID: c.ID, Message: msg})
		h := c.hub.handlers[msg.Event]
		c.hub.mu.Unlock()

		if h == nil {
			continue
		}
		// handlers may block (to hold an ack back) without stalling the reader
		go func(msg ws.Message) {
			ack := h(c, msg.Data)
			if ack == nil || msg.AckID == 0 {
				return
			}
			reply, err := ws.NewMessage(ws.AckEvent, ack)
			if err != nil {
				return
			}
			reply.AckID = msg.AckID
			defer func() { _ = recover() }()
			c.send <- reply
		}(msg)
	}
}
