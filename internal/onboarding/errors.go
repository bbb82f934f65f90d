package onboarding

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrAttemptRequired    = errors.New("registration attempt is required")
	ErrAlreadyCompleted   = errors.New("registration is already completed")
	ErrProvisioningFailed = errors.New("trading account could not be opened, please try again")
	ErrUnknownStep        = errors.New("unknown registration step")
)

// ValidationError maps field names to user-facing messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// RedirectError sends the client to the lowest incomplete step.
type RedirectError struct {
	Step int
	Path string
}

func (e *RedirectError) Error() string {
	return "step prerequisites not met, continue at " + e.Path
}

func redirectTo(step int) *RedirectError {
	return &RedirectError{Step: step, Path: PathFor(step)}
}
