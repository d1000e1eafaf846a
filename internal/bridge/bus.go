// Package bridge is the cross-window message channel between the popup
// relay page and the window that opened it. A Bus stands for the
// receiving window: posts are delivered only when the sender names the
// bus origin as target, and every delivered Message carries the sender
// origin so subscribers can check it.
package bridge

import (
	"log/slog"
	"sync"

	apperrors "github.com/alexjbarnes/backoffice/internal/errors"
)

// Message is one delivered post.
type Message struct {
	Origin string
	Data   []byte
}

// Handler receives delivered messages. Handlers run on the posting
// goroutine and must not block.
type Handler func(Message)

// Bus is the message port of a single window.
type Bus struct {
	origin string
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[uint64]Handler
	next uint64
}

// NewBus creates the port for a window served from origin.
func NewBus(origin string, logger *slog.Logger) *Bus {
	return &Bus{
		origin: origin,
		logger: logger,
		subs:   make(map[uint64]Handler),
	}
}

// Origin returns the origin of the window this bus belongs to.
func (b *Bus) Origin() string {
	return b.origin
}

// Subscribe registers h and returns a function that removes it. The
// returned function may be called any number of times.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Subscribers returns the number of registered handlers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

// Post sends data from a window at senderOrigin. targetOrigin must be
// explicit; "*" is refused. A post whose target does not match this
// bus is dropped without error, the same way a browser drops a
// postMessage aimed at the wrong origin.
func (b *Bus) Post(data []byte, senderOrigin, targetOrigin string) error {
	if targetOrigin == "" || targetOrigin == "*" {
		return apperrors.ErrWildcardOrigin
	}

	if targetOrigin != b.origin {
		b.logger.Debug("dropping post for other origin",
			slog.String("target", targetOrigin),
			slog.String("origin", b.origin),
		)

		return nil
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	msg := Message{Origin: senderOrigin, Data: data}
	for _, h := range handlers {
		h(msg)
	}

	return nil
}
