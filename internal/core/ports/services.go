package ports

import (
	"context"

	"whipcast/internal/core/domain"
)

// PublisherStatus is a snapshot of the agent's publish state for the status
// API and the event feed.
type PublisherStatus struct {
	Active  bool                   `json:"active"`
	Session *domain.PublishSession `json:"session,omitempty"`
}

// Publisher is the surface the HTTP control API drives.
type Publisher interface {
	Start(ctx context.Context, roomID domain.RoomID) (*domain.PublishSession, error)
	Stop(ctx context.Context) error
	Status() PublisherStatus
}
