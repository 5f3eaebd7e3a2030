package domain

import (
	"time"
)

type RoomID string
type InputID string

// PublishSession records one active (or recently active) outgoing WHIP
// publish. It is persisted per room so that a restarted agent can find and
// replace the session it was running before it died.
type PublishSession struct {
	RoomID      RoomID    `json:"room_id"`
	InputID     InputID   `json:"input_id"`
	BearerToken string    `json:"bearer_token"`
	Location    string    `json:"location"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsStale reports whether the session is older than ttl.
func (s *PublishSession) IsStale(ttl time.Duration) bool {
	return time.Since(s.CreatedAt) > ttl
}

// InputGrant carries the credentials minted by the control API when a new
// input is registered for a room.
type InputGrant struct {
	InputID     InputID `json:"input_id"`
	BearerToken string  `json:"bearer_token"`
}

// StartKind classifies how the current process came up. StartRestart means a
// previous agent instance for the room terminated without a clean shutdown,
// which is the only situation where auto-resume may run.
type StartKind int

const (
	StartFresh StartKind = iota
	StartRestart
)

func (k StartKind) String() string {
	if k == StartRestart {
		return "restart"
	}
	return "fresh"
}
