package normalizer

import (
	"fmt"

	"pulse_etl/internal/domain"
)

// Reasons carried by FieldError.
const (
	ReasonMissing    = "missing"
	ReasonEmpty      = "empty"
	ReasonWrongType  = "wrong type"
	ReasonUnparsable = "unparsable timestamp"
)

// FieldError reports a single invalid field. It matches domain.ErrValidation.
type FieldError struct {
	Field  string
	Reason string
	Value  any
}

func (e *FieldError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("%v: %s: %s (%v)", domain.ErrValidation, e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("%v: %s: %s", domain.ErrValidation, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return domain.ErrValidation
}
