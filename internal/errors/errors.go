// Package errors provides error handling for regulus.
//
// It re-exports github.com/cockroachdb/errors so that every package gets
// stack traces, wrapping and user-facing hints from a single import, and it
// defines the sentinel taxonomy used to map failures onto API statuses.
//
// Usage:
//
//	// Domain error tied to a sentinel
//	return errors.InvalidArgumentf("thresholdKm must be positive, got %g", v)
//
//	// Wrap with context
//	if err := db.Ping(); err != nil {
//	    return errors.Wrap(err, "ping conjunction store")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrNotFound) {
//	    // 404
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	WithStack   = crdb.WithStack
	WithMessage = crdb.WithMessage
	Mark        = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is               = crdb.Is
	IsAny            = crdb.IsAny
	As               = crdb.As
	Unwrap           = crdb.Unwrap
	UnwrapAll        = crdb.UnwrapAll
	GetAllHints      = crdb.GetAllHints
	FlattenHints     = crdb.FlattenHints
	GetStack         = crdb.GetReportableStackTrace
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors. Match with errors.Is; never compare messages.
var (
	// ErrInvalidArgument marks malformed or missing request fields.
	ErrInvalidArgument = New("invalid argument")

	// ErrNotFound marks a missing object or element set.
	ErrNotFound = New("not found")

	// ErrConflict marks a uniqueness violation. The conjunction store
	// absorbs these; they should not reach callers.
	ErrConflict = New("conflict")

	// ErrUnavailable marks a dependency that is not ready yet (no catalog
	// loaded, store closed).
	ErrUnavailable = New("unavailable")
)

// InvalidArgumentf returns a formatted error marked as ErrInvalidArgument.
func InvalidArgumentf(format string, args ...interface{}) error {
	return Mark(crdb.NewWithDepthf(1, format, args...), ErrInvalidArgument)
}

// NotFoundf returns a formatted error marked as ErrNotFound.
func NotFoundf(format string, args ...interface{}) error {
	return Mark(crdb.NewWithDepthf(1, format, args...), ErrNotFound)
}

// Unavailablef returns a formatted error marked as ErrUnavailable.
func Unavailablef(format string, args ...interface{}) error {
	return Mark(crdb.NewWithDepthf(1, format, args...), ErrUnavailable)
}

// IsInvalidArgument reports whether err is or wraps ErrInvalidArgument.
func IsInvalidArgument(err error) bool {
	return err != nil && Is(err, ErrInvalidArgument)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}
