// internal/events/handler.go
package events

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Handler consumes events delivered by the bus. Handlers run on the
// dispatcher goroutine and must not block for long.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f(ctx, event).
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// ForCurve wraps h so that it only sees CurveEvents of one curve.
func ForCurve(curveID common.Address, h Handler) Handler {
	return HandlerFunc(func(ctx context.Context, event Event) error {
		ce, ok := event.(*CurveEvent)
		if !ok || ce.CurveID != curveID {
			return nil
		}
		return h.Handle(ctx, event)
	})
}

// Subscription is returned by Subscribe.
type Subscription interface {
	ID() string
	// Unsubscribe removes the handler. Calling it twice is harmless.
	Unsubscribe()
}

type subscription struct {
	id       string
	eventBus *Bus
	typ      EventType
	once     sync.Once
}

func (s *subscription) ID() string { return s.id }

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.eventBus.unsubscribe(s.id, s.typ)
	})
}
