// Package errs provides structured error types and helpers for prefixd services.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies an error category within the range directory.
type Code string

const (
	// CodeMalformedCIDR indicates a CIDR literal that could not be parsed.
	CodeMalformedCIDR Code = "malformed_cidr"
	// CodeMalformedAddress indicates an IP address literal that could not be parsed.
	CodeMalformedAddress Code = "malformed_address"
	// CodeDatasetUnparsable indicates an upstream document that could not be decoded.
	CodeDatasetUnparsable Code = "dataset_unparsable"
	// CodeFetchFailure indicates a transport failure while retrieving the upstream document.
	CodeFetchFailure Code = "fetch_failure"
	// CodeNotLoaded indicates a query issued before the first successful refresh.
	CodeNotLoaded Code = "not_loaded"
	// CodeNotFound indicates a valid query with no matching directory data.
	CodeNotFound Code = "not_found"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeUnavailable indicates the component is temporarily unable to serve.
	CodeUnavailable Code = "unavailable"
)

// E captures structured error information produced across the prefixd stack.
type E struct {
	Source  string
	Code    Code
	Message string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the source component and error code.
func New(source string, code Code, opts ...Option) *E {
	e := &E{
		Source:  strings.TrimSpace(source),
		Code:    code,
		Message: "",
		cause:   nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	source := strings.TrimSpace(e.Source)
	if source == "" {
		source = "unknown"
	}
	parts = append(parts, "source="+source)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the error code from err, unwrapping as needed.
// Errors outside the envelope taxonomy report CodeUnavailable.
func CodeOf(err error) Code {
	var envelope *E
	if errors.As(err, &envelope) {
		return envelope.Code
	}
	return CodeUnavailable
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var envelope *E
	if errors.As(err, &envelope) {
		return envelope.Code == code
	}
	return false
}
