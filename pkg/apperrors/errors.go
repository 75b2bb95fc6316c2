package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrDiscoveryFailed = errors.New("schema discovery failed")
	ErrWriteFailed     = errors.New("report write failed")
	ErrNotConfigured   = errors.New("not configured")
	ErrCatalog         = errors.New("catalog unavailable")
	ErrPreview         = errors.New("preview failed")
	ErrPublish         = errors.New("publish failed")
	ErrInvalidMapping  = errors.New("invalid mapping")
)

// TierFailure records why a single discovery tier did not produce a schema.
type TierFailure struct {
	Tier  string
	Cause error
}

// DiscoveryError is returned when every schema discovery tier was exhausted.
type DiscoveryError struct {
	Attempted []TierFailure
}

func (e *DiscoveryError) Error() string {
	parts := make([]string, 0, len(e.Attempted))
	for _, f := range e.Attempted {
		if f.Cause != nil {
			parts = append(parts, fmt.Sprintf("%s (%v)", f.Tier, f.Cause))
		} else {
			parts = append(parts, f.Tier)
		}
	}
	return fmt.Sprintf("%s: tiers attempted: %s", ErrDiscoveryFailed, strings.Join(parts, ", "))
}

// Tiers returns the names of the attempted tiers in order.
func (e *DiscoveryError) Tiers() []string {
	names := make([]string, len(e.Attempted))
	for i, f := range e.Attempted {
		names[i] = f.Tier
	}
	return names
}

func (e *DiscoveryError) Unwrap() error {
	return ErrDiscoveryFailed
}

// Validation wraps a message as a validation failure.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Summarize returns the first line of an error message capped at 200 characters,
// suitable for returning to API callers.
func Summarize(err error) string {
	if err == nil {
		return ""
	}
	detail := strings.TrimSpace(err.Error())
	if idx := strings.IndexAny(detail, "\r\n"); idx >= 0 {
		detail = detail[:idx]
	}
	if len(detail) > 200 {
		detail = detail[:200]
	}
	return detail
}
