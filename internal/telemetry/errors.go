package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEnvelope is returned when a raw payload is not a valid JSON envelope
	ErrInvalidEnvelope = errors.New("invalid envelope")

	// ErrStructureMismatch is returned when the message has the wrong number of
	// segments or a segment has the wrong number of sub-fields
	ErrStructureMismatch = errors.New("structure mismatch")

	// ErrFieldParse is returned when a sub-field cannot be parsed as the
	// numeric type its position requires
	ErrFieldParse = errors.New("field parse error")
)

// StructureError describes which part of the message had the wrong arity
type StructureError struct {
	Segment string // "message" for the top level, otherwise the segment name
	Want    int
	Got     int
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%s: %s: want %d fields, got %d", ErrStructureMismatch, e.Segment, e.Want, e.Got)
}

func (e *StructureError) Is(target error) bool {
	return target == ErrStructureMismatch
}

// FieldParseError identifies the sub-field that failed to parse
type FieldParseError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: invalid value %q", ErrFieldParse, e.Field, e.Value)
	}
	return fmt.Sprintf("%s: %s: invalid value %q: %s", ErrFieldParse, e.Field, e.Value, e.Err)
}

func (e *FieldParseError) Is(target error) bool {
	return target == ErrFieldParse
}

func (e *FieldParseError) Unwrap() error {
	return e.Err
}
