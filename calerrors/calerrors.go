// Package calerrors defines the error kinds the association engine raises,
// in the shape of topdown.Error: an integer Kind plus a Message, constructed
// through unexported helpers so call sites can only produce well-formed
// values.
package calerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an association-engine error.
type Kind int

const (
	// UnknownDescriptor means a rule or query referenced a descriptor name
	// the schema does not recognize at all. This aborts the rule.
	UnknownDescriptor Kind = iota
	// MissingTargetValue means a descriptor is known but absent/null on the
	// target bundle. Callers normally handle this by skipping the affected
	// predicate rather than constructing this error — it exists so tests
	// and diagnostics can name the condition.
	MissingTargetValue
	// CatalogUnavailable wraps a failure to reach or query the catalog
	// adapter (connection, timeout, driver error).
	CatalogUnavailable
	// UnsupportedCalibration means the instrument has no rule registered
	// for the requested calibration type.
	UnsupportedCalibration
)

func (k Kind) String() string {
	switch k {
	case UnknownDescriptor:
		return "unknown_descriptor"
	case MissingTargetValue:
		return "missing_target_value"
	case CatalogUnavailable:
		return "catalog_unavailable"
	case UnsupportedCalibration:
		return "unsupported_calibration"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by this module's packages.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether err is a *Error of the given kind, so callers can write
// calerrors.Is(err, calerrors.UnknownDescriptor) without type-asserting.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

func newUnknownDescriptor(name string) error {
	return &Error{Kind: UnknownDescriptor, Message: fmt.Sprintf("unknown descriptor %q", name)}
}

// NewUnknownDescriptor reports that name is not a recognized descriptor for
// the schema in play. Exported: the query package raises this directly when
// a rule names a field outside the registry.
func NewUnknownDescriptor(name string) error { return newUnknownDescriptor(name) }

func newMissingTargetValue(name string) error {
	return &Error{Kind: MissingTargetValue, Message: fmt.Sprintf("target has no value for %q", name)}
}

// NewMissingTargetValue is exposed for diagnostics (calcheck's per-predicate
// table); the query builder itself treats this condition as "skip", not as
// a returned error.
func NewMissingTargetValue(name string) error { return newMissingTargetValue(name) }

func newCatalogUnavailable(message string, cause error) error {
	return &Error{Kind: CatalogUnavailable, Message: message, cause: cause}
}

// NewCatalogUnavailable wraps a low-level catalog/driver failure. cause is
// expected to already carry stack context from github.com/pkg/errors at the
// point the adapter raised it.
func NewCatalogUnavailable(message string, cause error) error {
	return newCatalogUnavailable(message, cause)
}

func newUnsupportedCalibration(instrument, calType string) error {
	return &Error{
		Kind:    UnsupportedCalibration,
		Message: fmt.Sprintf("instrument %q has no rule for calibration type %q", instrument, calType),
	}
}

// NewUnsupportedCalibration reports that an instrument's rule set has no
// entry for calType.
func NewUnsupportedCalibration(instrument, calType string) error {
	return newUnsupportedCalibration(instrument, calType)
}

// Wrap attaches stack context to a low-level error (typically a driver
// error from database/sql) the way the catalog adapter does before
// reclassifying it as CatalogUnavailable.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, message)
}
