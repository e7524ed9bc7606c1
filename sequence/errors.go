package sequence

import (
	"errors"
	"fmt"
)

// ErrSequenceExhausted is returned when contention prevented an allocation
// within the retry budget.
var ErrSequenceExhausted = errors.New("docmap: sequence exhausted")

// ExhaustedError reports which sequence gave up and after how many attempts.
type ExhaustedError struct {
	Sequence string
	Attempts int
	LastSeen int64
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("docmap: sequence %q exhausted after %d attempts (last value %d)",
		e.Sequence, e.Attempts, e.LastSeen)
}

// Unwrap lets errors.Is match ErrSequenceExhausted.
func (e *ExhaustedError) Unwrap() error {
	return ErrSequenceExhausted
}
