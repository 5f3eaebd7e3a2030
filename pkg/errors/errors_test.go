package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	expected := "INVALID_INPUT: test error"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("original error")
	err := WrapError(originalErr, ErrCodeInternal, "wrapped error", 500)

	if err.Cause != originalErr {
		t.Errorf("Cause = %v, want %v", err.Cause, originalErr)
	}
	if !strings.Contains(err.Error(), "original error") {
		t.Errorf("Error() should contain cause, got: %v", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("errors.Is should match the cause through Unwrap")
	}
}

func TestNewUpstreamError(t *testing.T) {
	cause := errors.New("whip endpoint returned 500")
	err := NewUpstreamError(cause, "offer exchange failed")
	if err.Code != ErrCodeUpstream {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeUpstream)
	}
	if err.HTTPStatus != 502 {
		t.Errorf("HTTPStatus = %v, want 502", err.HTTPStatus)
	}
}

func TestGetAppError(t *testing.T) {
	app := NewNotFoundError("session")
	wrapped := fmt.Errorf("loading: %w", app)

	got := GetAppError(wrapped)
	if got == nil {
		t.Fatal("GetAppError should find the AppError in the chain")
	}
	if got.Code != ErrCodeNotFound {
		t.Errorf("Code = %v, want %v", got.Code, ErrCodeNotFound)
	}

	if GetAppError(errors.New("plain")) != nil {
		t.Error("GetAppError on a plain error should return nil")
	}
}
