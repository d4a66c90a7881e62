package common

import (
	"errors"
	"fmt"
)

// ErrType classifies the failures of the messaging engine.
type ErrType uint32

const (
	// NotFound is a resolution failure: unknown key, identity or empty query.
	NotFound ErrType = iota
	// KeyAlreadyExists is returned by "only if absent" writes.
	KeyAlreadyExists
	// Conflict is returned when a conditional write lost a race.
	Conflict
	// InvalidSignature ...
	InvalidSignature
	// InvalidMessageFormat ...
	InvalidMessageFormat
	// HandshakeFailed ...
	HandshakeFailed
	// Duplicate signals that an identical message was already accepted. It
	// should be acknowledged as a no-op.
	Duplicate
	// TimeTravel signals a message whose time does not advance past the
	// author's previous message.
	TimeTravel
	// PutFailed is returned when sequencing conflicts exhausted all retries.
	PutFailed
	// Collision is returned when an identity claims keys that already belong
	// to another identity.
	Collision
	// InvalidInput is a malformed request from an internal caller.
	InvalidInput
	// DeadlineExceeded is returned when a retry loop ran out of execution
	// budget.
	DeadlineExceeded
)

var errTypeNames = []string{
	"Not Found",
	"Key Already Exists",
	"Conflict",
	"Invalid Signature",
	"Invalid Message Format",
	"Handshake Failed",
	"Duplicate",
	"Time Travel",
	"Put Failed",
	"Collision",
	"Invalid Input",
	"Deadline Exceeded",
}

// String ...
func (t ErrType) String() string {
	if int(t) < len(errTypeNames) {
		return errTypeNames[t]
	}
	return fmt.Sprintf("ErrType(%d)", uint32(t))
}

// Err is the error type returned by every package of the engine. subject
// names the kind of data involved (Event, PubKey, Session...), key the item.
type Err struct {
	subject   string
	errType   ErrType
	key       string
	reason    string
	retryable bool
}

// NewErr ...
func NewErr(subject string, errType ErrType, key string) *Err {
	return &Err{
		subject: subject,
		errType: errType,
		key:     key,
	}
}

// Errorf creates an Err with a formatted reason.
func Errorf(subject string, errType ErrType, key string, format string, args ...interface{}) *Err {
	e := NewErr(subject, errType, key)
	e.reason = fmt.Sprintf(format, args...)
	return e
}

// WithRetryable marks the error as safe to retry at a higher level.
func (e *Err) WithRetryable(retryable bool) *Err {
	e.retryable = retryable
	return e
}

// Type ...
func (e *Err) Type() ErrType {
	return e.errType
}

// Key ...
func (e *Err) Key() string {
	return e.key
}

// Reason ...
func (e *Err) Reason() string {
	return e.reason
}

// Error implements the error interface.
func (e *Err) Error() string {
	m := fmt.Sprintf("%s, %s, %s", e.subject, e.key, e.errType)
	if e.reason != "" {
		m += ": " + e.reason
	}
	return m
}

// Is checks whether err, or any error it wraps, is an Err of the given type.
func Is(err error, t ErrType) bool {
	var e *Err
	return errors.As(err, &e) && e.errType == t
}

// IsRetryable reports whether err is marked retryable.
func IsRetryable(err error) bool {
	var e *Err
	return errors.As(err, &e) && e.retryable
}

// IsRemote reports whether err is a protocol violation by a remote party, as
// opposed to an internal failure. Remote errors are safe to report back to the
// party, internal ones are not.
func IsRemote(err error) bool {
	var e *Err
	if !errors.As(err, &e) {
		return false
	}
	switch e.errType {
	case InvalidSignature, InvalidMessageFormat, HandshakeFailed,
		Duplicate, TimeTravel, Collision, NotFound:
		return true
	}
	return false
}
