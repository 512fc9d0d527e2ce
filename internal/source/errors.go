package source

import (
	"errors"
	"fmt"
)

// ErrorKind classifies adapter failures so callers can react differently:
// unavailable sources are retried, expired authorizations flag the plugin
// for attention, malformed payloads are surfaced as-is.
type ErrorKind int

const (
	KindUnavailable ErrorKind = iota
	KindAuthExpired
	KindMalformed
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindAuthExpired:
		return "auth expired"
	case KindMalformed:
		return "malformed"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// Error represents a failure inside a source adapter.
type Error struct {
	PluginID  string
	Operation string
	Kind      ErrorKind
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("source %s: %s: %s: %s: %v", e.PluginID, e.Operation, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("source %s: %s: %s: %s", e.PluginID, e.Operation, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an adapter error. Message may be empty when the cause
// already carries enough detail.
func NewError(pluginID, operation string, kind ErrorKind, message string, cause error) *Error {
	return &Error{
		PluginID:  pluginID,
		Operation: operation,
		Kind:      kind,
		Message:   message,
		Cause:     cause,
	}
}

// KindOf returns the classification of err, or KindUnavailable when err is
// not a source error. Transient by default: an unclassified failure should
// be retried, not treated as a revoked credential.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnavailable
}
