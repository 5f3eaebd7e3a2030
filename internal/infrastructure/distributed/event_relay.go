package distributed

import (
	"context"
	"encoding/json"
	"time"

	"whipcast/internal/infrastructure/events"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventChannel = "whipcast:events"

// relayedEvent is the wire form published to Redis: the in-process event
// plus the identity of the agent instance that emitted it.
type relayedEvent struct {
	events.Event
	InstanceID string `json:"instance_id"`
}

// EventRelay mirrors the agent's lifecycle events onto a Redis pub/sub
// channel so external systems (dashboards, other agents) can observe them
// without holding a websocket to this instance.
type EventRelay struct {
	client     *redis.Client
	bus        *events.Bus
	instanceID string
	logger     *zap.SugaredLogger
}

func NewEventRelay(client *redis.Client, bus *events.Bus, instanceID string, logger *zap.SugaredLogger) *EventRelay {
	return &EventRelay{
		client:     client,
		bus:        bus,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Run forwards bus events to Redis until the context is cancelled. Publish
// failures are logged and skipped; the relay is observability, not state.
func (r *EventRelay) Run(ctx context.Context) {
	ch, cancel := r.bus.Subscribe()
	defer cancel()

	r.logger.Infow("event relay started", "channel", eventChannel, "instance_id", r.instanceID)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("event relay stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			r.publish(ctx, event)
		}
	}
}

func (r *EventRelay) publish(ctx context.Context, event events.Event) {
	data, err := json.Marshal(relayedEvent{Event: event, InstanceID: r.instanceID})
	if err != nil {
		r.logger.Warnw("failed to marshal relayed event", "type", event.Type, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.client.Publish(pubCtx, eventChannel, data).Err(); err != nil {
		r.logger.Warnw("failed to relay event to redis", "type", event.Type, "error", err)
	}
}
