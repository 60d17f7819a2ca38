package validation

import (
	"errors"
	"fmt"
	"strconv"
)

// Failure is a write rejected by the gate. Message is meant for the person
// filling in the form.
type Failure struct {
	Field   string
	Message string
}

func (f *Failure) Error() string {
	return f.Message
}

func failf(field, format string, args ...any) *Failure {
	return &Failure{Field: field, Message: fmt.Sprintf(format, args...)}
}

// MonotonicityViolation rejects an HM reading below the unit's highest
// recorded value.
type MonotonicityViolation struct {
	UnitID    int64
	Previous  float64
	Submitted float64
}

func (v *MonotonicityViolation) Error() string {
	return fmt.Sprintf("HM cannot be less than previous recording (%s)", strconv.FormatFloat(v.Previous, 'f', -1, 64))
}

// IsRejected reports whether err came from the gate rather than the store.
func IsRejected(err error) bool {
	var f *Failure
	var m *MonotonicityViolation
	return errors.As(err, &f) || errors.As(err, &m)
}
