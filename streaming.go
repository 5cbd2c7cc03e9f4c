package txwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// StreamConfig configures the WebSocket frame stream.
type StreamConfig struct {
	// Enabled serves /ws when the HTTP API runs.
	Enabled bool `yaml:"enabled"`
	// BufferSize is the message buffer per subscription. Frames are
	// dropped for a subscriber whose buffer is full.
	BufferSize int `yaml:"buffer_size"`
	// PingInterval is how often idle clients are pinged.
	PingInterval time.Duration `yaml:"ping_interval"`
	// WriteTimeout bounds every WebSocket write.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultStreamConfig returns default streaming configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Enabled:      true,
		BufferSize:   256,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Stream message types.
const (
	MessageSubscribe    = "subscribe"
	MessageUnsubscribe  = "unsubscribe"
	MessageSubscribed   = "subscribed"
	MessageUnsubscribed = "unsubscribed"
	MessageSnapshot     = "snapshot"
	MessageFrame        = "frame"
	MessageFinished     = "finished"
	MessageError        = "error"
)

// StreamMessage is the JSON envelope exchanged over /ws.
type StreamMessage struct {
	Type          string           `json:"type"`
	SubID         string           `json:"sub_id,omitempty"`
	Statuses      []string         `json:"statuses,omitempty"`
	AnomaliesOnly bool             `json:"anomalies_only,omitempty"`
	Frame         *Frame           `json:"frame,omitempty"`
	Snapshot      *SessionSnapshot `json:"snapshot,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// Subscription receives the frames of a set of statuses.
type Subscription struct {
	ID            string
	Statuses      []string
	AnomaliesOnly bool

	ch      chan StreamMessage
	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
}

// C returns the message channel. It is closed by Close.
func (s *Subscription) C() <-chan StreamMessage {
	return s.ch
}

// Dropped returns how many messages were discarded on a full buffer.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close closes the subscription.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func (s *Subscription) offer(msg StreamMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
	default:
		s.dropped.Add(1)
	}
}

func (s *Subscription) matches(f Frame) bool {
	if s.AnomaliesOnly && !f.Verdict.IsAnomalous {
		return false
	}
	return len(s.Statuses) == 0 || slices.Contains(s.Statuses, f.Status)
}

// Snapshotter provides the committed state sent to new WebSocket clients.
type Snapshotter interface {
	Snapshot() SessionSnapshot
}

// StreamHub fans committed frames out to subscribers. It implements
// RenderSink and FinishSink.
type StreamHub struct {
	config StreamConfig
	source Snapshotter
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	subs   map[string]*Subscription
	nextID uint64
}

// NewStreamHub creates a hub. source may be nil, in which case WebSocket
// clients get no initial snapshot.
func NewStreamHub(cfg StreamConfig, source Snapshotter) *StreamHub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultStreamConfig().BufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &StreamHub{
		config: cfg,
		source: source,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*Subscription),
	}
}

// Close ends every WebSocket connection and subscription.
func (h *StreamHub) Close() error {
	h.cancel()
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

// SetSource sets the snapshot source. It must be called before the hub
// serves clients.
func (h *StreamHub) SetSource(source Snapshotter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.source = source
}

// Subscribe registers a subscription. An empty statuses list receives
// every status.
func (h *StreamHub) Subscribe(statuses []string, anomaliesOnly bool) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		ID:            fmt.Sprintf("sub-%d", h.nextID),
		Statuses:      append([]string(nil), statuses...),
		AnomaliesOnly: anomaliesOnly,
		ch:            make(chan StreamMessage, h.config.BufferSize),
	}
	h.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes and closes a subscription.
func (h *StreamHub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()

	if ok {
		sub.Close()
	}
}

// Render implements RenderSink.
func (h *StreamHub) Render(f Frame) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.matches(f) {
			sub.offer(StreamMessage{Type: MessageFrame, SubID: sub.ID, Frame: &f})
		}
	}
	return nil
}

// Finish implements FinishSink. Every subscriber gets the final snapshot.
func (h *StreamHub) Finish(snap SessionSnapshot) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		sub.offer(StreamMessage{Type: MessageFinished, SubID: sub.ID, Snapshot: &snap})
	}
	return nil
}

// Count returns the number of active subscriptions.
func (h *StreamHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// List returns all active subscription IDs, sorted.
func (h *StreamHub) List() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn serialises writes; gorilla connections allow one writer at a time.
type wsConn struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	timeout time.Duration
}

func (c *wsConn) send(msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) ping() error {
	timeout := c.timeout
	if timeout <= 0 {
		timeout = DefaultStreamConfig().WriteTimeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// connSubscriptions tracks the hub subscriptions of one WebSocket
// connection. Once closed it refuses new subscriptions, so nothing added
// while the connection unwinds outlives it.
type connSubscriptions struct {
	hub    *StreamHub
	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

func newConnSubscriptions(hub *StreamHub) *connSubscriptions {
	return &connSubscriptions{hub: hub, subs: make(map[string]*Subscription)}
}

// add subscribes on the hub. It returns false once the connection is closed.
func (c *connSubscriptions) add(statuses []string, anomaliesOnly bool) (*Subscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false
	}
	sub := c.hub.Subscribe(statuses, anomaliesOnly)
	c.subs[sub.ID] = sub
	return sub, true
}

// remove unsubscribes id if this connection owns it.
func (c *connSubscriptions) remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[id]; !ok {
		return false
	}
	delete(c.subs, id)
	c.hub.Unsubscribe(id)
	return true
}

func (c *connSubscriptions) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id := range c.subs {
		c.hub.Unsubscribe(id)
	}
	clear(c.subs)
}

// WebSocketHandler serves the frame stream. A client first receives the
// current snapshot, then sends subscribe / unsubscribe commands:
//
//	{"type":"subscribe","statuses":["denied"],"anomalies_only":true}
//	{"type":"unsubscribe","sub_id":"sub-1"}
func (h *StreamHub) WebSocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Debug("websocket upgrade failed", "err", err)
			return
		}
		defer func() { _ = raw.Close() }()

		conn := &wsConn{conn: raw, timeout: h.config.WriteTimeout}
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		stop := context.AfterFunc(h.ctx, cancel)
		defer stop()

		h.mu.RLock()
		source := h.source
		h.mu.RUnlock()
		if source != nil {
			snap := source.Snapshot()
			if err := conn.send(StreamMessage{Type: MessageSnapshot, Snapshot: &snap}); err != nil {
				return
			}
		}

		subs := newConnSubscriptions(h)
		defer subs.close()

		go func() {
			defer cancel()
			for {
				_, data, err := raw.ReadMessage()
				if err != nil {
					return
				}
				var cmd StreamMessage
				if err := json.Unmarshal(data, &cmd); err != nil {
					_ = conn.send(StreamMessage{Type: MessageError, Error: "invalid message format"})
					continue
				}

				switch cmd.Type {
				case MessageSubscribe:
					sub, ok := subs.add(cmd.Statuses, cmd.AnomaliesOnly)
					if !ok {
						return
					}
					_ = conn.send(StreamMessage{Type: MessageSubscribed, SubID: sub.ID, Statuses: sub.Statuses})
					go h.forward(ctx, conn, sub)

				case MessageUnsubscribe:
					if !subs.remove(cmd.SubID) {
						_ = conn.send(StreamMessage{Type: MessageError, SubID: cmd.SubID, Error: "unknown subscription"})
						continue
					}
					_ = conn.send(StreamMessage{Type: MessageUnsubscribed, SubID: cmd.SubID})

				default:
					_ = conn.send(StreamMessage{Type: MessageError, Error: "unknown command: " + cmd.Type})
				}
			}
		}()

		var pings <-chan time.Time
		if h.config.PingInterval > 0 {
			ticker := time.NewTicker(h.config.PingInterval)
			defer ticker.Stop()
			pings = ticker.C
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-pings:
				if err := conn.ping(); err != nil {
					return
				}
			}
		}
	}
}

func (h *StreamHub) forward(ctx context.Context, conn *wsConn, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.ch:
			if !ok {
				return
			}
			if err := conn.send(msg); err != nil {
				return
			}
		}
	}
}
