package domain

import "errors"

var (
	ErrSessionNotFound    = errors.New("publish session not found")
	ErrLastInputNotFound  = errors.New("last input id not found")
	ErrCaptureUnavailable = errors.New("media source unavailable")
	ErrNoLocalDescription = errors.New("no local description after ICE wait")
	ErrAlreadyPublishing  = errors.New("publish session already active")
	ErrNotPublishing      = errors.New("no active publish session")
)
