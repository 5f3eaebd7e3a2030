package services

import (
	"context"
	"sync"
	"time"

	"whipcast/internal/core/domain"
	"whipcast/internal/core/ports"
	"whipcast/internal/infrastructure/events"

	"go.uber.org/zap"
)

// After this many consecutive failed acks an event is emitted so watchers
// can react before the backend expires the input.
const missedAckThreshold = 3

// HeartbeatRecorder is the slice of the collector the heartbeat loop
// reports to.
type HeartbeatRecorder interface {
	RecordHeartbeat(err error)
}

// HeartbeatService keeps the active input alive by acking it against the
// control backend, once immediately on start and then on every interval
// tick. Ack failures are reported and counted but never stop the loop: the
// publish stays up and the next tick retries.
type HeartbeatService struct {
	control  ports.ControlClient
	interval time.Duration
	metrics  HeartbeatRecorder
	bus      *events.Bus
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewHeartbeatService(
	control ports.ControlClient,
	interval time.Duration,
	metrics HeartbeatRecorder,
	bus *events.Bus,
	logger *zap.SugaredLogger,
) *HeartbeatService {
	return &HeartbeatService{
		control:  control,
		interval: interval,
		metrics:  metrics,
		bus:      bus,
		logger:   logger,
	}
}

// Start begins heartbeating for the input. A previous loop, if any, is
// stopped first.
func (h *HeartbeatService) Start(roomID domain.RoomID, inputID domain.InputID) {
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.mu.Unlock()

	go h.run(ctx, roomID, inputID)
}

// Stop ends the current heartbeat loop. Safe to call when none is running.
func (h *HeartbeatService) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

func (h *HeartbeatService) run(ctx context.Context, roomID domain.RoomID, inputID domain.InputID) {
	log := h.logger.With("room_id", roomID, "input_id", inputID)
	log.Infow("heartbeat started", "interval", h.interval)

	consecutiveFailures := 0
	h.ack(ctx, roomID, inputID, &consecutiveFailures, log)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Infow("heartbeat stopped")
			return
		case <-ticker.C:
			h.ack(ctx, roomID, inputID, &consecutiveFailures, log)
		}
	}
}

func (h *HeartbeatService) ack(ctx context.Context, roomID domain.RoomID, inputID domain.InputID, consecutiveFailures *int, log *zap.SugaredLogger) {
	ackCtx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	err := h.control.AckInput(ackCtx, roomID, inputID)
	if ctx.Err() != nil {
		return // loop is shutting down, not a real failure
	}
	h.metrics.RecordHeartbeat(err)

	if err != nil {
		*consecutiveFailures++
		log.Warnw("heartbeat ack failed",
			"consecutive_failures", *consecutiveFailures,
			"error", err,
		)
		if *consecutiveFailures == missedAckThreshold {
			h.bus.Publish(events.Event{
				Type:    events.TypeHeartbeatMissed,
				RoomID:  roomID,
				InputID: inputID,
			})
		}
		return
	}
	*consecutiveFailures = 0
}
