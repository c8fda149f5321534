// Package wmerr defines the closed set of error kinds surfaced by the
// WorkMesh core. Front-ends dispatch on Kind; the message is for humans.
package wmerr

import (
	"errors"
	"fmt"
)

// Kind classifies a core error.
type Kind string

const (
	NotFound          Kind = "not_found"
	DuplicateID       Kind = "duplicate_id"
	DuplicateUID      Kind = "duplicate_uid"
	ParseError        Kind = "parse_error"
	InvalidTransition Kind = "invalid_transition"
	Leased            Kind = "leased"
	NotOwner          Kind = "not_owner"
	CycleDetected     Kind = "cycle_detected"
	DanglingReference Kind = "dangling_reference"
	ProjectionDrift   Kind = "projection_drift"
	IOError           Kind = "io_error"
	GitError          Kind = "git_error"
	ConfigError       Kind = "config_error"
	ConcurrencyError  Kind = "concurrency_error"
)

// Error carries a kind, a message, and the identifiers relevant to the
// failure. All id fields are optional.
type Error struct {
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
	TaskID    string `json:"task_id,omitempty"`
	TruthID   string `json:"truth_id,omitempty"`
	Path      string `json:"path,omitempty"`
	Line      int    `json:"line,omitempty"`
	Owner     string `json:"owner,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Wrapped   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// IO wraps a filesystem failure.
func IO(err error, format string, args ...interface{}) *Error {
	return Wrap(IOError, err, format, args...)
}

// WithTask attaches a task id.
func (e *Error) WithTask(id string) *Error {
	e.TaskID = id
	return e
}

// WithTruth attaches a truth id.
func (e *Error) WithTruth(id string) *Error {
	e.TruthID = id
	return e
}

// WithPath attaches a path and optional line.
func (e *Error) WithPath(path string, line int) *Error {
	e.Path = path
	e.Line = line
	return e
}

// WithLease attaches lease holder details.
func (e *Error) WithLease(owner, expiresAt string) *Error {
	e.Owner = owner
	e.ExpiresAt = expiresAt
	return e
}

// KindOf returns the kind of err, or IOError for plain errors so every
// failure maps into the closed set.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return IOError
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
