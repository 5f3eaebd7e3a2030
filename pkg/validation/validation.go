package validation

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

var (
	// RoomIDRegex validates room ID format
	RoomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// InputIDRegex validates input ID format
	InputIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateRoomID validates a room identifier
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room ID is required")
	}
	if len(roomID) > 100 {
		return fmt.Errorf("room ID is too long (max 100 characters)")
	}
	if !RoomIDRegex.MatchString(roomID) {
		return fmt.Errorf("invalid room ID format (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateInputID validates a backend-minted input identifier
func ValidateInputID(inputID string) error {
	if inputID == "" {
		return fmt.Errorf("input ID is required")
	}
	if len(inputID) > 100 {
		return fmt.Errorf("input ID is too long (max 100 characters)")
	}
	if !InputIDRegex.MatchString(inputID) {
		return fmt.Errorf("invalid input ID format")
	}
	return nil
}

// ValidateBaseURL validates an http(s) base URL
func ValidateBaseURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("base URL is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base URL: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base URL must use http or https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	return nil
}

// ValidateListenAddress validates a host:port listen address
func ValidateListenAddress(address string) error {
	if address == "" {
		return fmt.Errorf("listen address is required")
	}
	_, port, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid listen address: %v", err)
	}
	if port == "" {
		return fmt.Errorf("listen address must include a port")
	}
	return nil
}
