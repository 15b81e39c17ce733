package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Request limits
const (
	MaxSourceSize  = 256 * 1024       // 256KB - default script size limit
	MaxMessageSize = 1 * 1024 * 1024  // 1MB - inbound websocket frame limit
	MinTimeout     = time.Millisecond // smallest accepted run timeout
)

var (
	ErrSourceTooLarge = errors.New("source too large")
	ErrInvalidSource  = errors.New("invalid source")
	ErrInvalidTimeout = errors.New("invalid timeout")
)

// ValidateSource checks the size and encoding of submitted code. Empty
// source is valid and produces an empty transcript.
func ValidateSource(source string, maxBytes int) error {
	if maxBytes <= 0 {
		maxBytes = MaxSourceSize
	}
	if len(source) > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds maximum %d bytes", ErrSourceTooLarge, len(source), maxBytes)
	}
	if !utf8.ValidString(source) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidSource)
	}
	// Check for null bytes (security issue)
	if strings.ContainsRune(source, 0) {
		return fmt.Errorf("%w: contains null bytes", ErrInvalidSource)
	}
	return nil
}

// ResolveTimeout applies the default to a zero timeout and clamps to max.
// Negative timeouts are rejected.
func ResolveTimeout(requested, def, limit time.Duration) (time.Duration, error) {
	if requested < 0 {
		return 0, fmt.Errorf("%w: %s is negative", ErrInvalidTimeout, requested)
	}
	if requested == 0 {
		requested = def
	}
	if requested < MinTimeout {
		return 0, fmt.Errorf("%w: %s is below %s", ErrInvalidTimeout, requested, MinTimeout)
	}
	if limit > 0 && requested > limit {
		requested = limit
	}
	return requested, nil
}
