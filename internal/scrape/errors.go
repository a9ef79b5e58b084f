package scrape

import (
	"errors"
	"strings"
)

var (
	// ErrValidation marks malformed query parameters.
	ErrValidation = errors.New("validation error")
	// ErrAuth marks a missing token or a failed token refresh.
	ErrAuth = errors.New("authentication failed")
	// ErrProviderTransport marks a network or HTTP failure talking to the mail provider.
	ErrProviderTransport = errors.New("provider transport error")
	// ErrMalformedMessage marks a message without a required header or with an undecodable body.
	ErrMalformedMessage = errors.New("malformed message")
)

// FieldError describes a single invalid query parameter.
type FieldError struct {
	Field string
	Msg   string
	Type  string
}

// ValidationError collects every invalid parameter of a query.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Msg)
	}
	return "invalid query: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// For returns the errors reported for field. It is safe on a nil receiver.
func (e *ValidationError) For(field string) []FieldError {
	if e == nil {
		return nil
	}
	var out []FieldError
	for _, f := range e.Fields {
		if f.Field == field {
			out = append(out, f)
		}
	}
	return out
}
