// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package errors defines the CORE's error-kind taxonomy. The ring's
// single-element Enqueue/Dequeue return [code.hybscloud.com/iox.ErrWouldBlock]
// directly for ecosystem consistency; everything else, including mempool's
// Get and Put, returns a [*Error] carrying one of the [Kind] values below so
// callers can branch on semantics instead of string-matching messages.
package errors

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

// Kind classifies a CORE error. See spec §7.
type Kind int

const (
	// KindAlreadyInitialized means Init/Attach was called twice.
	KindAlreadyInitialized Kind = iota
	// KindUnsupported means a required CPU or platform feature is missing.
	KindUnsupported
	// KindInvalidArgument means a malformed option, bad alignment, name
	// too long, missing ops callback, or oversized cache.
	KindInvalidArgument
	// KindAlreadyExists means a name collision (memzone, mempool, ring,
	// or ops registration).
	KindAlreadyExists
	// KindNotFound means a lookup miss.
	KindNotFound
	// KindNoMemory means no free span large enough, no directory slot,
	// the segment table is exhausted, or the ops table is full.
	KindNoMemory
	// KindPermissionDenied means huge-page access was denied, or lock
	// acquisition failed against a foreign primary when a role was forced.
	KindPermissionDenied
	// KindRoleConflict means SECONDARY was requested but no primary is
	// alive, or vice versa.
	KindRoleConflict
	// KindFatal means shared-region re-map mismatch, magic corruption, or
	// (debug builds only) a detected double-free.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindAlreadyInitialized:
		return "already initialized"
	case KindUnsupported:
		return "unsupported"
	case KindInvalidArgument:
		return "invalid argument"
	case KindAlreadyExists:
		return "already exists"
	case KindNotFound:
		return "not found"
	case KindNoMemory:
		return "no memory"
	case KindPermissionDenied:
		return "permission denied"
	case KindRoleConflict:
		return "role conflict"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a CORE error carrying a [Kind] and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a [*Error] for op with the given kind, optionally wrapping err.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Is reports whether err is a [*Error] of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ErrWouldBlock indicates a data-path operation cannot proceed immediately
// (ring full/empty, backend dequeue miss). It is a control-flow signal, not
// a failure — callers retry, they don't propagate it as an error kind.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency, same
// as the teacher package does for its queue variants.
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err indicates the operation would block.
func IsWouldBlock(err error) bool { return iox.IsWouldBlock(err) }

// IsSemantic reports whether err is a control-flow signal, not a failure.
func IsSemantic(err error) bool { return iox.IsSemantic(err) }

// IsNonFailure reports whether err represents a non-failure condition.
func IsNonFailure(err error) bool { return iox.IsNonFailure(err) }
