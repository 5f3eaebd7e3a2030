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

const disconnectCleanupTimeout = 10 * time.Second

// SessionGauge is the slice of the collector the manager reports to.
type SessionGauge interface {
	SetActiveSessions(n int)
}

// PublisherManager owns the agent's single publish slot. It drives the
// publish service, starts and stops the heartbeat alongside the session, and
// emits lifecycle events.
type PublisherManager struct {
	publish   *PublishService
	heartbeat *HeartbeatService
	metrics   SessionGauge
	bus       *events.Bus
	logger    *zap.SugaredLogger

	slot publishSlot
}

func NewPublisherManager(
	publish *PublishService,
	heartbeat *HeartbeatService,
	metrics SessionGauge,
	bus *events.Bus,
	logger *zap.SugaredLogger,
) *PublisherManager {
	return &PublisherManager{
		publish:   publish,
		heartbeat: heartbeat,
		metrics:   metrics,
		bus:       bus,
		logger:    logger,
	}
}

var _ ports.Publisher = (*PublisherManager)(nil)

func (m *PublisherManager) Start(ctx context.Context, roomID domain.RoomID) (*domain.PublishSession, error) {
	if m.slot.Current() != nil {
		return nil, domain.ErrAlreadyPublishing
	}

	// The disconnect callback can fire before Start returns; it reads the
	// handle through the ref, which stays nil until setup succeeded.
	ref := &handleRef{}
	handle, err := m.publish.Start(ctx, roomID, func() {
		m.handleDisconnect(ref.get())
	})
	if err != nil {
		return nil, err
	}

	if err := m.slot.Attach(handle); err != nil {
		// Lost the race to a concurrent Start; release what was built.
		m.publish.Stop(ctx, handle)
		return nil, err
	}
	ref.set(handle)

	m.heartbeat.Start(handle.Session.RoomID, handle.Session.InputID)
	m.metrics.SetActiveSessions(1)
	m.bus.Publish(events.Event{
		Type:    events.TypePublishStarted,
		RoomID:  roomID,
		InputID: handle.Session.InputID,
	})
	return handle.Session, nil
}

func (m *PublisherManager) Stop(ctx context.Context) error {
	handle := m.slot.Detach()
	if handle == nil {
		return domain.ErrNotPublishing
	}

	m.heartbeat.Stop()
	m.publish.Stop(ctx, handle)
	m.metrics.SetActiveSessions(0)
	m.bus.Publish(events.Event{
		Type:    events.TypePublishStopped,
		RoomID:  handle.Session.RoomID,
		InputID: handle.Session.InputID,
	})
	return nil
}

func (m *PublisherManager) Status() ports.PublisherStatus {
	handle := m.slot.Current()
	if handle == nil {
		return ports.PublisherStatus{}
	}
	return ports.PublisherStatus{Active: true, Session: handle.Session}
}

// handleDisconnect reacts to a dropped peer connection. The callback fires
// on every terminal state transition, including the one caused by our own
// teardown, so everything past DetachIf must run at most once per handle.
func (m *PublisherManager) handleDisconnect(handle *PublishHandle) {
	if handle == nil {
		return
	}
	if !m.slot.DetachIf(handle) {
		return // already stopped, or a newer publish owns the slot
	}

	m.logger.Warnw("publish connection lost",
		"room_id", handle.Session.RoomID,
		"input_id", handle.Session.InputID,
	)
	m.heartbeat.Stop()

	// Teardown off the signaling callback goroutine.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectCleanupTimeout)
		defer cancel()
		m.publish.Stop(ctx, handle)
		m.metrics.SetActiveSessions(0)
		m.bus.Publish(events.Event{
			Type:    events.TypePublishDisconnected,
			RoomID:  handle.Session.RoomID,
			InputID: handle.Session.InputID,
		})
	}()
}

type handleRef struct {
	mu sync.Mutex
	h  *PublishHandle
}

func (r *handleRef) set(h *PublishHandle) {
	r.mu.Lock()
	r.h = h
	r.mu.Unlock()
}

func (r *handleRef) get() *PublishHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.h
}
