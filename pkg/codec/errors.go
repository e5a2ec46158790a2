package codec

import (
	"errors"
	"fmt"
)

// ErrEnvelope matches every *EnvelopeError via errors.Is.
var ErrEnvelope = errors.New("envelope decode failed")

// EnvelopeError reports a structurally invalid envelope: a missing required
// field, a field of the wrong type, or wire bytes that cannot be parsed.
type EnvelopeError struct {
	// Index is the position in a batch, or -1 for a single message.
	Index int
	// Field is the offending envelope key; empty when the message as a whole
	// could not be parsed.
	Field string
	Err   error
}

func (e *EnvelopeError) Error() string {
	var where string
	if e.Index >= 0 {
		where = fmt.Sprintf("batch element %d: ", e.Index)
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s%v", ErrEnvelope, where, e.Err)
	}
	return fmt.Sprintf("%s: %sfield %q: %v", ErrEnvelope, where, e.Field, e.Err)
}

func (e *EnvelopeError) Unwrap() error {
	return e.Err
}

func (e *EnvelopeError) Is(target error) bool {
	return target == ErrEnvelope
}

// ErrMissingField is wrapped by EnvelopeError when a required key is absent.
var ErrMissingField = errors.New("required field missing")

// UnsupportedFormatError is returned at construction time for codec option
// combinations that have no registered variant.
type UnsupportedFormatError struct {
	Format Format
	Keys   KeyMode
	Batch  bool
}

func (e *UnsupportedFormatError) Error() string {
	mode := "single"
	if e.Batch {
		mode = "batch"
	}
	return fmt.Sprintf("unsupported codec: format=%q keys=%q mode=%s", e.Format, e.Keys, mode)
}
