// Package errors defines the error taxonomy of a parcel sync run.
// Record-level errors (DataShapeError, LookupError) are collected and the run
// continues; run-level errors (ConcurrencyConflict, TransportError) abort it.
package errors

import (
	"errors"
	"fmt"
)

// New is errors.New re-exported so callers need a single import.
var New = errors.New

// Sentinel errors matched through errors.Is.
var (
	// ErrDataShape marks a malformed identifier, date or value on one record.
	ErrDataShape = errors.New("data shape")

	// ErrLookup marks a value missing from a fixed lookup table.
	ErrLookup = errors.New("lookup failed")

	// ErrConcurrencyConflict marks a target store held by another writer.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrTransport marks an I/O failure talking to a collaborator.
	ErrTransport = errors.New("transport failure")

	// ErrInvalidConfig marks configuration that failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DataShapeError reports a single record whose field could not be parsed.
type DataShapeError struct {
	Stage string
	PIN   string
	Field string
	Value string
	Err   error
}

// Error implements the error interface
func (e *DataShapeError) Error() string {
	msg := fmt.Sprintf("%s: malformed %s %q", e.Stage, e.Field, e.Value)
	if e.PIN != "" {
		msg += " (PIN " + e.PIN + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements errors.Unwrap
func (e *DataShapeError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *DataShapeError) Is(target error) bool {
	return target == ErrDataShape
}

// NewDataShapeError creates a new DataShapeError
func NewDataShapeError(stage, pin, field, value string, err error) *DataShapeError {
	return &DataShapeError{Stage: stage, PIN: pin, Field: field, Value: value, Err: err}
}

// LookupError reports a parcel number prefix that has no entry in the
// municipality table. It needs operator attention.
type LookupError struct {
	PIN    string
	Table  string
	Prefix string
}

// Error implements the error interface
func (e *LookupError) Error() string {
	if e.PIN != "" {
		return fmt.Sprintf("no %s entry for prefix %q (PIN %s)", e.Table, e.Prefix, e.PIN)
	}
	return fmt.Sprintf("no %s entry for prefix %q", e.Table, e.Prefix)
}

// Is implements errors.Is support
func (e *LookupError) Is(target error) bool {
	return target == ErrLookup
}

// NewLookupError creates a new LookupError
func NewLookupError(pin, table, prefix string) *LookupError {
	return &LookupError{PIN: pin, Table: table, Prefix: prefix}
}

// ConcurrencyConflict reports a target store locked by another writer.
type ConcurrencyConflict struct {
	Store  string
	Holder string
	Err    error
}

// Error implements the error interface
func (e *ConcurrencyConflict) Error() string {
	msg := fmt.Sprintf("target %s is locked", e.Store)
	if e.Holder != "" {
		msg += " by " + e.Holder
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements errors.Unwrap
func (e *ConcurrencyConflict) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConcurrencyConflict) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// NewConcurrencyConflict creates a new ConcurrencyConflict
func NewConcurrencyConflict(store, holder string, err error) *ConcurrencyConflict {
	return &ConcurrencyConflict{Store: store, Holder: holder, Err: err}
}

// TransportError reports a failed call to the spatial source, the tabular
// export or the target store.
type TransportError struct {
	Collaborator string
	Op           string
	Err          error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Collaborator, e.Op, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// NewTransportError creates a new TransportError
func NewTransportError(collaborator, op string, err error) *TransportError {
	return &TransportError{Collaborator: collaborator, Op: op, Err: err}
}

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Message)
	}
	return "configuration error: " + e.Message
}

// Is implements errors.Is support
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewConfigError creates a new ConfigError
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// IsDataShape reports whether err is a DataShapeError.
func IsDataShape(err error) bool {
	return errors.Is(err, ErrDataShape)
}

// IsLookup reports whether err is a LookupError.
func IsLookup(err error) bool {
	return errors.Is(err, ErrLookup)
}

// IsConcurrencyConflict reports whether err is a ConcurrencyConflict.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// Is and As are re-exported from the standard library.
var (
	Is = errors.Is
	As = errors.As
)
