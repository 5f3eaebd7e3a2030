package services

import (
	"sync"

	"whipcast/internal/core/domain"
)

// publishSlot holds the single active publish. The agent publishes one
// session at a time; the slot makes that exclusivity explicit and race-free.
type publishSlot struct {
	mu     sync.Mutex
	handle *PublishHandle
}

// Attach claims the slot for the handle. Fails when a publish is already
// active.
func (s *publishSlot) Attach(handle *PublishHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		return domain.ErrAlreadyPublishing
	}
	s.handle = handle
	return nil
}

// Detach releases the slot and returns the handle that occupied it, or nil
// when the slot was empty.
func (s *publishSlot) Detach() *PublishHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := s.handle
	s.handle = nil
	return handle
}

// DetachIf releases the slot only if it still holds the given handle. Keeps
// a late disconnect callback from tearing down a newer publish.
func (s *publishSlot) DetachIf(handle *PublishHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != handle {
		return false
	}
	s.handle = nil
	return true
}

// Current returns the active handle without releasing it.
func (s *publishSlot) Current() *PublishHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}
