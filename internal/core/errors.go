// Package core implements the agent-mail domain model: projects, agents,
// messages, file reservations, and the dual-store (SQLite + Git archive)
// commit protocol that backs them.
package core

import (
	"fmt"
)

// Kind classifies an Error for transport mapping. Go has no tagged union,
// so Kind plus the typed payload fields below stand in for one.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindQuotaExceeded
	KindAuthError
	KindLockTimeout
	KindConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindAuthError:
		return "auth_error"
	case KindLockTimeout:
		return "lock_timeout"
	case KindConflict:
		return "conflict"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the single error type every core operation returns. It satisfies
// the error interface and carries enough structure for transports to map it
// to JSON-RPC codes or HTTP statuses without string-matching messages.
type Error struct {
	Kind    Kind
	Message string

	// NotFound payload.
	EntityType string
	Identifier string
	Similar    []string

	// Validation payload.
	Field      string
	Provided   string
	Reason     string
	Suggestion string
	Pattern    string

	// Quota payload.
	Limit   int
	Current int

	// LockTimeout payload.
	LockPath string
	OwnerPID int

	Err error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("%s %q not found", e.EntityType, e.Identifier)
	case KindValidation:
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Provided, e.Reason)
	case KindQuotaExceeded:
		return fmt.Sprintf("quota exceeded: %d/%d", e.Current, e.Limit)
	case KindLockTimeout:
		return fmt.Sprintf("timed out acquiring lock %s (held by pid %d)", e.LockPath, e.OwnerPID)
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Context returns a JSON-friendly payload describing the error, mirroring
// the `.context()` convention used throughout the original validation model.
func (e *Error) Context() map[string]any {
	m := map[string]any{"kind": e.Kind.String(), "message": e.Error()}
	switch e.Kind {
	case KindNotFound:
		m["entity_type"] = e.EntityType
		m["identifier"] = e.Identifier
		if len(e.Similar) > 0 {
			m["similar"] = e.Similar
		}
	case KindValidation:
		m["field"] = e.Field
		m["provided"] = e.Provided
		m["reason"] = e.Reason
		if e.Suggestion != "" {
			m["suggestion"] = e.Suggestion
		}
		if e.Pattern != "" {
			m["pattern"] = e.Pattern
		}
	case KindQuotaExceeded:
		m["limit"] = e.Limit
		m["current"] = e.Current
	case KindLockTimeout:
		m["path"] = e.LockPath
		m["owner_pid"] = e.OwnerPID
	}
	return m
}

func NotFound(entityType, identifier string, similar ...string) *Error {
	return &Error{Kind: KindNotFound, EntityType: entityType, Identifier: identifier, Similar: similar}
}

func Validation(field, provided, reason, suggestion string) *Error {
	return &Error{Kind: KindValidation, Field: field, Provided: provided, Reason: reason, Suggestion: suggestion}
}

func QuotaExceeded(current, limit int) *Error {
	return &Error{Kind: KindQuotaExceeded, Current: current, Limit: limit}
}

func AuthError(message string) *Error {
	return &Error{Kind: KindAuthError, Message: message}
}

func LockTimeout(path string, ownerPID int) *Error {
	return &Error{Kind: KindLockTimeout, LockPath: path, OwnerPID: ownerPID}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Err: err}
}

// JSONRPCCode maps an Error to the application error code JSON-RPC transport
// responses use (see SPEC_FULL.md §6).
func (e *Error) JSONRPCCode() int {
	switch e.Kind {
	case KindNotFound:
		return 1404
	case KindQuotaExceeded:
		return 1403
	case KindAuthError:
		return 1401
	case KindLockTimeout:
		return 1408
	case KindValidation:
		return 1422
	case KindConflict:
		return 1409
	default:
		return 1500
	}
}

// HTTPStatus maps an Error to the HTTP status the REST transport uses.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return 404
	case KindQuotaExceeded:
		return 403
	case KindAuthError:
		return 401
	case KindLockTimeout:
		return 408
	case KindValidation:
		return 422
	case KindConflict:
		return 409
	default:
		return 500
	}
}

// AsError unwraps err into a *Error, wrapping foreign errors as KindInternal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if e, ok := err.(*Error); ok {
		ce = e
	} else {
		ce = Internal(err)
	}
	return ce
}
