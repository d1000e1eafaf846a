package server

//go:generate mockgen -source=events.go -destination=mock_wsconn_test.go -package=server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alexjbarnes/backoffice/internal/models"
	"github.com/coder/websocket"
)

const (
	// eventBuffer is how many events a slow subscriber may fall behind
	// before it is disconnected.
	eventBuffer = 16

	writeTimeout = 5 * time.Second
)

// Event types on the flow stream.
const (
	EventState   = "state"
	EventSuccess = "success"
	EventError   = "error"
)

// Event is one message on the flow stream.
type Event struct {
	Type      string       `json:"type"`
	Flow      string       `json:"flow,omitempty"`
	State     string       `json:"state,omitempty"`
	User      *models.User `json:"user,omitempty"`
	IsNewUser bool         `json:"isNewUser,omitempty"`
	Error     string       `json:"error,omitempty"`
	Time      time.Time    `json:"time"`
}

// wsConn abstracts the WebSocket connection so the writer loop can be
// tested without a real client. *websocket.Conn satisfies this
// interface.
type wsConn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Hub fans flow events out to WebSocket subscribers.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan []byte]struct{}

	// snapshot produces the first event sent to a new subscriber.
	snapshot func() Event
}

// NewHub creates a Hub. snapshot may be nil.
func NewHub(snapshot func() Event, logger *slog.Logger) *Hub {
	return &Hub{
		logger:   logger,
		subs:     make(map[chan []byte]struct{}),
		snapshot: snapshot,
	}
}

// Publish sends ev to every subscriber. Subscribers whose buffer is
// full are dropped.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encoding event", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		h.sendLocked(ch, data)
	}
}

// deliver sends data to one subscriber if it is still registered.
func (h *Hub) deliver(ch chan []byte, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[ch]; ok {
		h.sendLocked(ch, data)
	}
}

// sendLocked must be called with h.mu held.
func (h *Hub) sendLocked(ch chan []byte, data []byte) {
	select {
	case ch <- data:
	default:
		h.logger.Warn("dropping slow event subscriber")
		delete(h.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

func (h *Hub) subscribe() chan []byte {
	ch := make(chan []byte, eventBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// ServeHTTP upgrades the request and streams events until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	// Clients never send anything; CloseRead handles their close frames.
	ctx := conn.CloseRead(r.Context())

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	if h.snapshot != nil {
		ev := h.snapshot()
		ev.Time = time.Now().UTC()

		if data, err := json.Marshal(ev); err == nil {
			h.deliver(ch, data)
		}
	}

	if err := h.stream(ctx, conn, ch); err != nil {
		h.logger.Debug("event stream ended", slog.String("error", err.Error()))
	}
}

// stream writes events from ch to conn until ctx ends or ch is closed.
func (h *Hub) stream(ctx context.Context, conn wsConn, ch <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return nil
		case data, ok := <-ch:
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, "too slow")
				return nil
			}

			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()

			if err != nil {
				return err
			}
		}
	}
}
