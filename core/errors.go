package core

import (
	"errors"
	"fmt"
)

// NotFoundError reports a missing conversation or message. It is fatal to the
// current operation and never retried internally.
type NotFoundError struct {
	Resource string // "conversation" or "message"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// IsNotFound reports whether err (or anything it wraps) is a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// NetworkError wraps a transport failure reaching a provider. Step-fatal;
// retry policy is the caller's responsibility.
type NetworkError struct {
	Provider string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error reaching provider %s: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RateLimitError is distinguished from APIError so callers can apply backoff.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider %s rate limited: %s", e.Provider, e.Message)
}

// APIError reports a non-2xx provider response, carrying status and body.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider %s api error (status %d): %s", e.Provider, e.Status, e.Body)
}

// ValidationError reports a missing credential or malformed configuration.
// Fatal, not retried.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error [%s]: %s", e.Code, e.Message)
}

// ToolError reports a failure inside tool execution. It is the one error
// class the engine fully absorbs: the tool-round loop converts it into a
// tool-role error message fed back to the model instead of propagating it.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a ToolError with the given categorization code.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
