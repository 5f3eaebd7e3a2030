package events

import (
	"sync"
	"time"

	"whipcast/internal/core/domain"

	"go.uber.org/zap"
)

// Type identifies a publisher lifecycle event.
type Type string

const (
	TypePublishStarted      Type = "publish.started"
	TypePublishStopped      Type = "publish.stopped"
	TypePublishDisconnected Type = "publish.disconnected"
	TypeResumeCompleted     Type = "resume.completed"
	TypeResumeFailed        Type = "resume.failed"
	TypeHeartbeatMissed     Type = "heartbeat.missed"
)

// Event is one publisher lifecycle notification.
type Event struct {
	Type      Type           `json:"type"`
	RoomID    domain.RoomID  `json:"room_id"`
	InputID   domain.InputID `json:"input_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const subscriberBuffer = 16

// Bus is an in-process typed publish/subscribe channel between the publish
// services and anything watching them (the websocket event feed). Delivery
// is best-effort: a slow subscriber loses events rather than blocking the
// publisher.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	logger *zap.SugaredLogger
}

func NewBus(logger *zap.SugaredLogger) *Bus {
	return &Bus{
		subs:   make(map[int]chan Event),
		logger: logger,
	}
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.Warnw("dropping event for slow subscriber",
				"subscriber", id,
				"type", event.Type,
			)
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called to release it; the channel is closed on cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}
