package adiskd

import (
	"errors"
	"fmt"
)

// Kind is the high-level error category returned to clients, matching
// spec §7's error kind table.
type Kind string

const (
	KindInvalidArgument Kind = "invalid argument"
	KindNotFound        Kind = "not found"
	KindLoadFailed      Kind = "load failed"
	KindOutOfMemory     Kind = "out of memory"
	KindQueueFull       Kind = "queue full"
	KindQueueEmpty      Kind = "queue empty"
	KindFilterProtocol  Kind = "filter protocol"
	KindTransportClosed Kind = "transport closed"
)

// Error is a structured adiskd error: the operation that failed, the
// session and filter it happened under (when applicable), its kind, and
// any wrapped cause.
type Error struct {
	Op         string
	SessionID  string
	FilterName string
	Kind       Kind
	Msg        string
	Inner      error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.SessionID))
	}
	if e.FilterName != "" {
		parts = append(parts, fmt.Sprintf("filter=%s", e.FilterName))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("adiskd: %s", msg)
	}
	return fmt.Sprintf("adiskd: %s (%s)", msg, parts[0])
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison against another *Error by Kind.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

// NewError builds a structured error with no session/filter context.
func NewError(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// NewSessionError builds a structured error scoped to sessionID.
func NewSessionError(op, sessionID string, kind Kind, msg string) *Error {
	return &Error{Op: op, SessionID: sessionID, Kind: kind, Msg: msg}
}

// NewFilterError builds a structured error scoped to a session's filter.
func NewFilterError(op, sessionID, filterName string, kind Kind, msg string) *Error {
	return &Error{Op: op, SessionID: sessionID, FilterName: filterName, Kind: kind, Msg: msg}
}

// WrapError wraps inner under op, carrying its Kind forward if inner is
// already a structured error, otherwise classifying it as LoadFailed.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ae, ok := inner.(*Error); ok {
		return &Error{
			Op:         op,
			SessionID:  ae.SessionID,
			FilterName: ae.FilterName,
			Kind:       ae.Kind,
			Msg:        ae.Msg,
			Inner:      ae.Inner,
		}
	}
	return &Error{Op: op, Kind: KindLoadFailed, Msg: inner.Error(), Inner: inner}
}

// IsKind reports whether err is a structured error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}
