package ports

import (
	"context"

	"whipcast/internal/core/domain"
)

// ControlClient talks to the room/compositing backend that owns input
// registration and liveness.
type ControlClient interface {
	RegisterInput(ctx context.Context, roomID domain.RoomID) (*domain.InputGrant, error)
	RemoveInput(ctx context.Context, roomID domain.RoomID, inputID domain.InputID) error
	AckInput(ctx context.Context, roomID domain.RoomID, inputID domain.InputID) error
}

// IngestClient covers the two HTTP operations of the WHIP protocol surface
// this agent uses.
type IngestClient interface {
	// SendOffer posts an SDP offer for the input and returns the answer SDP
	// plus the resource location (may be empty when the server omits the
	// Location header).
	SendOffer(ctx context.Context, inputID domain.InputID, bearerToken, sdp string) (answer string, location string, err error)

	// DeleteResource releases a previously created ingest resource. Callers
	// treat failures as best-effort cleanup.
	DeleteResource(ctx context.Context, location, bearerToken string) error
}
