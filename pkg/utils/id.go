package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateRequestID generates a unique request ID for control API calls.
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}

// GenerateLockValue generates the unique holder value stored under a resume
// lock key, so unlock can verify ownership.
func GenerateLockValue() string {
	return uuid.NewString()
}

// GenerateInstanceID identifies one agent process in logs and events.
func GenerateInstanceID() string {
	return "agent_" + uuid.NewString()
}
