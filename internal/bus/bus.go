package bus

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler consumes a delivered message. Handlers run on the publisher's
// goroutine, which is what preserves per-sender delivery order.
type Handler func(Message)

// Bus is the in-process typed dispatcher every component talks through.
// Publish is synchronous call-through: messages from one sender reach each
// subscriber in publication order. There is no ordering guarantee across
// senders publishing from different goroutines.
type Bus struct {
	mu   sync.RWMutex
	subs map[MessageType][]Handler
	taps []Handler
	log  *zap.SugaredLogger
}

// New builds an empty bus.
func New(log *zap.SugaredLogger) *Bus {
	return &Bus{
		subs: make(map[MessageType][]Handler),
		log:  log,
	}
}

// Subscribe registers a handler for one message type.
func (b *Bus) Subscribe(t MessageType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// SubscribeAll registers a tap that sees every message regardless of type.
// Taps exist for observers (status stream, metrics); components route by
// type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.taps = append(b.taps, h)
}

// Publish delivers the message to every subscriber of its type, then to the
// taps. Publishing with no subscribers is not an error. A panicking handler
// is recovered and reported back as a status message addressed to the
// coordinator; it never takes the bus down.
func (b *Bus) Publish(m Message) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[m.Type])+len(b.taps))
	handlers = append(handlers, b.subs[m.Type]...)
	handlers = append(handlers, b.taps...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, m)
	}
}

func (b *Bus) deliver(h Handler, m Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorw("handler panicked", "type", m.Type, "sender", m.Sender, "panic", r)
			if m.Type == TypeStatus {
				// Failure report itself failed; log only, don't loop.
				return
			}
			b.Publish(Message{
				Type:          TypeStatus,
				Sender:        "bus",
				Recipient:     "coordinator",
				CorrelationID: m.CorrelationID,
				Payload: StatusPayload{
					Detail: fmt.Sprintf("handler failed for %s message from %s", m.Type, m.Sender),
					Err:    fmt.Sprint(r),
				},
			})
		}
	}()
	h(m)
}
