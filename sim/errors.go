package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOptions is matched by every *InvalidOptionsError.
	ErrInvalidOptions = errors.New("invalid simulation options")
	// ErrSimulationStalled reports a run that cannot make progress even though
	// nodes remain. It indicates an internal scheduling bug, never bad input.
	ErrSimulationStalled = errors.New("simulation stalled")
)

// InvalidOptionsError describes an option value outside its valid domain.
type InvalidOptionsError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidOptionsError) Error() string {
	return fmt.Sprintf("invalid option %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidOptionsError) Is(target error) bool { return target == ErrInvalidOptions }
