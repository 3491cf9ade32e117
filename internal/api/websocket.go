package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/lcdcanvas/internal/display"
	"github.com/nerrad567/lcdcanvas/internal/infrastructure/config"
	"github.com/nerrad567/lcdcanvas/internal/infrastructure/logging"
	"github.com/nerrad567/lcdcanvas/internal/monitor"
	"github.com/nerrad567/lcdcanvas/internal/screen"
)

// Client operations.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPing        = "ping"
)

// Server message kinds.
const (
	KindEvent = "event"
	KindState = "state"
	KindPong  = "pong"
	KindError = "error"
)

// AllEvents subscribes to every event type.
const AllEvents = "*"

// streamBuffer is the per-client queue length. Frame events are only
// queued while it is less than half full.
const streamBuffer = 64

// ClientMessage is what a WebSocket client sends.
//
//	{"op": "subscribe", "id": "1", "events": ["display.failure"], "screen": "WCH32"}
//
// Screen narrows delivery to one panel; an empty string removes the filter
// and an absent field leaves it unchanged.
type ClientMessage struct {
	Op     string   `json:"op"`
	ID     string   `json:"id,omitempty"`
	Events []string `json:"events,omitempty"`
	Screen *string  `json:"screen,omitempty"`
}

// ServerMessage is what the server sends. A subscribe is answered with a
// state message carrying the current session, so clients need no extra
// GET /display to draw their first view.
type ServerMessage struct {
	Kind       string           `json:"kind"`
	ID         string           `json:"id,omitempty"`
	Event      *monitor.Event   `json:"event,omitempty"`
	Session    *display.Session `json:"session,omitempty"`
	Subscribed []string         `json:"subscribed,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// eventStream fans monitor events out to WebSocket clients. It implements
// monitor.Notifier.
type eventStream struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger
	state  func() display.Session

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

func newEventStream(cfg config.WebSocketConfig, logger *logging.Logger, state func() display.Session) *eventStream {
	return &eventStream{
		cfg:     cfg,
		logger:  logger,
		state:   state,
		clients: make(map[*streamClient]struct{}),
	}
}

// Notify queues ev for every matching client. A client whose queue is full
// of anything but frames is too slow to keep in step and is dropped.
func (es *eventStream) Notify(ev monitor.Event) {
	data, err := json.Marshal(ServerMessage{Kind: KindEvent, Event: &ev})
	if err != nil {
		es.logger.Error("encoding websocket event", "type", ev.Type, "error", err)
		return
	}

	es.mu.RLock()
	targets := make([]*streamClient, 0, len(es.clients))
	for c := range es.clients {
		if c.wants(ev) {
			targets = append(targets, c)
		}
	}
	es.mu.RUnlock()

	frame := ev.Type == monitor.EventDisplayFrame
	for _, c := range targets {
		if frame && len(c.out) >= streamBuffer/2 {
			continue
		}
		if !c.enqueue(data) && !frame {
			es.logger.Warn("websocket client too slow, disconnecting", "remote", c.remote)
			c.stop()
		}
	}
}

func (es *eventStream) add(c *streamClient) {
	es.mu.Lock()
	es.clients[c] = struct{}{}
	n := len(es.clients)
	es.mu.Unlock()
	es.logger.Debug("websocket client connected", "remote", c.remote, "clients", n)
}

func (es *eventStream) remove(c *streamClient) {
	es.mu.Lock()
	delete(es.clients, c)
	n := len(es.clients)
	es.mu.Unlock()
	es.logger.Debug("websocket client disconnected", "remote", c.remote, "clients", n)
}

// Len returns the number of connected clients.
func (es *eventStream) Len() int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return len(es.clients)
}

// run disconnects every client once ctx is cancelled.
func (es *eventStream) run(ctx context.Context) {
	<-ctx.Done()
	es.mu.RLock()
	all := make([]*streamClient, 0, len(es.clients))
	for c := range es.clients {
		all = append(all, c)
	}
	es.mu.RUnlock()
	for _, c := range all {
		c.stop()
	}
}

// streamClient is one WebSocket connection. out is never closed; done
// signals shutdown so late enqueues are harmless.
type streamClient struct {
	stream *eventStream
	conn   *websocket.Conn
	remote string
	out    chan []byte
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	events map[string]struct{}
	screen screen.Identity
}

func newStreamClient(es *eventStream, conn *websocket.Conn, remote string) *streamClient {
	return &streamClient{
		stream: es,
		conn:   conn,
		remote: remote,
		out:    make(chan []byte, streamBuffer),
		done:   make(chan struct{}),
		events: make(map[string]struct{}),
	}
}

func (c *streamClient) wants(ev monitor.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.screen != "" && ev.Screen != c.screen {
		return false
	}
	_, all := c.events[AllEvents]
	_, one := c.events[ev.Type]
	return all || one
}

// enqueue reports false when the queue is full.
func (c *streamClient) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

func (c *streamClient) stop() {
	c.once.Do(func() {
		close(c.done)
		c.stream.remove(c)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *streamClient) reply(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *streamClient) fail(id, message string) {
	c.reply(ServerMessage{Kind: KindError, ID: id, Error: message})
}

// handle applies one client message.
func (c *streamClient) handle(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.fail("", "invalid JSON message")
		return
	}

	switch msg.Op {
	case OpPing:
		c.reply(ServerMessage{Kind: KindPong, ID: msg.ID})
	case OpSubscribe, OpUnsubscribe:
		c.mu.Lock()
		for _, e := range msg.Events {
			if msg.Op == OpSubscribe {
				c.events[e] = struct{}{}
			} else {
				delete(c.events, e)
			}
		}
		if msg.Screen != nil {
			c.screen = screen.Identity(*msg.Screen)
		}
		subscribed := make([]string, 0, len(c.events))
		for e := range c.events {
			subscribed = append(subscribed, e)
		}
		c.mu.Unlock()
		slices.Sort(subscribed)

		session := c.stream.state()
		c.reply(ServerMessage{Kind: KindState, ID: msg.ID, Session: &session, Subscribed: subscribed})
	default:
		c.fail(msg.ID, "unknown op: "+msg.Op)
	}
}

// serve runs the connection until either side gives up. Reads happen on a
// second goroutine; writes and keepalive pings on this one.
func (c *streamClient) serve(cfg config.WebSocketConfig) {
	defer c.stop()

	ping := time.Duration(cfg.PingInterval) * time.Second
	wait := time.Duration(cfg.PongTimeout) * time.Second
	if ping <= 0 {
		ping = 30 * time.Second
	}
	if wait <= 0 {
		wait = 10 * time.Second
	}

	go c.readLoop(int64(cfg.MaxMessageSize), ping+wait)

	ticker := time.NewTicker(ping)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wait))
			return
		case data := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wait)); err != nil {
				return
			}
		}
	}
}

func (c *streamClient) readLoop(limit int64, idle time.Duration) {
	defer c.stop()

	if limit > 0 {
		c.conn.SetReadLimit(limit)
	}
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.stream.logger.Debug("websocket read ended", "remote", c.remote, "error", err)
			}
			return
		}
		_ = extend("")
		c.handle(data)
	}
}

// handleWebSocket upgrades the connection. With authentication enabled a
// ticket from POST /auth/ws-ticket is required, since browsers cannot set
// headers on an upgrade.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.authEnabled() {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		if !s.tickets.redeem(ticket) {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := newStreamClient(s.stream, conn, r.RemoteAddr)
	s.stream.add(c)
	c.serve(s.wsCfg)
}
