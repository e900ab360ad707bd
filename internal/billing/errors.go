package billing

import (
	"errors"
	"fmt"
)

// Error kinds reported by the engine and by the collaborators around it.
// Callers match them with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidTariffConfig = errors.New("invalid tariff config")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ValidationError names the offending field and the constraint it broke so
// that a UI can point the user at the right input.
type ValidationError struct {
	Kind       error
	Field      string
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s %s", e.Kind, e.Field, e.Constraint)
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func invalidInput(field, constraint string) error {
	return &ValidationError{Kind: ErrInvalidInput, Field: field, Constraint: constraint}
}

func invalidConfig(field, constraint string) error {
	return &ValidationError{Kind: ErrInvalidTariffConfig, Field: field, Constraint: constraint}
}
