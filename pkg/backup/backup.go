package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

const nameTimeLayout = "20060102-150405"

// Snapshot is one point-in-time copy of the agent's persisted room state.
// Session payloads are kept as raw JSON so this package does not depend on
// the domain types that produce them.
type Snapshot struct {
	Version    string                     `json:"version"`
	Timestamp  time.Time                  `json:"timestamp"`
	Sessions   map[string]json.RawMessage `json:"sessions,omitempty"`
	LastInputs map[string]string          `json:"last_inputs,omitempty"`
	Metadata   map[string]interface{}     `json:"metadata,omitempty"`
}

// Storage abstracts where snapshot files live.
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Service writes and reads snapshots on a Storage backend.
type Service struct {
	storage Storage
	version string
}

func NewService(storage Storage, version string) *Service {
	return &Service{
		storage: storage,
		version: version,
	}
}

// Create stamps the snapshot and writes it under a timestamped name.
func (s *Service) Create(ctx context.Context, snap *Snapshot) (string, error) {
	snap.Version = s.version
	snap.Timestamp = time.Now()

	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	name := fmt.Sprintf("snapshot-%s.json", snap.Timestamp.Format(nameTimeLayout))
	if err := s.storage.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}
	return name, nil
}

// Load reads a snapshot back by name.
func (s *Service) Load(ctx context.Context, name string) (*Snapshot, error) {
	reader, err := s.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// List returns the names of all stored snapshots.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.storage.List(ctx, "snapshot-")
}

// Delete removes a snapshot by name.
func (s *Service) Delete(ctx context.Context, name string) error {
	return s.storage.Delete(ctx, name)
}

// ParseSnapshotTime extracts the creation time encoded in a snapshot name.
func ParseSnapshotTime(name string) (time.Time, error) {
	const prefix = "snapshot-"
	if len(name) < len(prefix)+len(nameTimeLayout) {
		return time.Time{}, fmt.Errorf("malformed snapshot name: %s", name)
	}
	stamp := name[len(prefix) : len(prefix)+len(nameTimeLayout)]
	t, err := time.Parse(nameTimeLayout, stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed snapshot name %s: %w", name, err)
	}
	return t, nil
}
