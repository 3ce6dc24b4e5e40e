// Package errors provides the broker's error taxonomy.
//
// Each type carries enough context (operation, address, topic, config key)
// for the boundary that handles it to log or report the failure without
// re-deriving where it came from.
package errors

import (
	"errors"
	"fmt"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrSessionClosed  = errors.New("session is closed")
	ErrSlowSubscriber = errors.New("subscriber outbound queue is full")
	ErrDisconnected   = errors.New("connection to server lost")
	ErrNotConnected   = errors.New("not connected")
	ErrRequestPending = errors.New("another request is already pending")
)

// ── Structured error types ───────────────────────────────────────────

// ConnectionError represents an accept, read, write or dial failure.
type ConnectionError struct {
	Op   string // "accept", "read", "write", "dial", "listen"
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError describes a line that could not be decoded into a command.
type ProtocolError struct {
	Line   string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("bad request %q: %s", e.Line, e.Reason)
}

// ConfigError represents a missing or invalid configuration value.
type ConfigError struct {
	Key     string
	Value   interface{} // nil if missing
	Message string
	Hint    string
}

func (e *ConfigError) Error() string {
	msg := "config"
	if e.Key != "" {
		msg += ": " + e.Key
	}
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// DeliveryError is a failed hand-off of a published message to one subscriber.
type DeliveryError struct {
	Topic      string
	Subscriber string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver ( %s ) to %s: %v", e.Topic, e.Subscriber, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a ConnectionError.
func Wrap(op, addr string, err error) *ConnectionError {
	return &ConnectionError{Op: op, Addr: addr, Err: err}
}

// ── Re-exports ───────────────────────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
