package uriutils

import "fmt"

// DecodeError reports a percent-encoded token that could not be decoded.
type DecodeError struct {
	Token string // the raw, undecoded text
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("uriutils: decoding %q: %v", e.Token, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ReadError reports a failure reading from the underlying input.
// The input was unreadable, as opposed to malformed (DecodeError).
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return "uriutils: reading parameters: " + e.Err.Error()
}

func (e *ReadError) Unwrap() error { return e.Err }

// DuplicateNameError reports a parameter name that occurred more than once
// while collapsing into a single-valued map under FailOnDuplicate.
type DuplicateNameError struct {
	Name     string
	Existing string
	Incoming string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("uriutils: duplicate parameter name %q: existing value %q, new value %q",
		e.Name, e.Existing, e.Incoming)
}

// NilValuesError reports a nil values container in a map-backed stream.
// It surfaces from the terminal operation that reaches the entry.
type NilValuesError struct {
	Name string
}

func (e *NilValuesError) Error() string {
	return fmt.Sprintf("uriutils: parameter %q has a nil values container", e.Name)
}
