package psys

import (
	"errors"
	"fmt"
)

// Sentinel errors for the three fatal-to-the-step failure kinds. Use
// errors.Is against these; the concrete types below carry the offending
// value for diagnostics.
var (
	// ErrPrototypeMissing is returned when a Creator rule references a
	// label absent from System.Prototypes. Fatal to the step; no
	// partial commit occurs.
	ErrPrototypeMissing = errors.New("psys: unknown prototype")

	// ErrMalformedRoutingKey is returned when a product key matches the
	// "_in_" infix but splits into an empty base or target. Fatal to
	// the step.
	ErrMalformedRoutingKey = errors.New("psys: malformed routing key")

	// ErrInvariantViolation indicates a structural invariant was found
	// broken at commit time (a caller bug, e.g. a dangling parent
	// reference). Fatal to the step.
	ErrInvariantViolation = errors.New("psys: invariant violation")
)

// PrototypeMissingError names the unregistered prototype label a
// Creator rule referenced.
type PrototypeMissingError struct {
	Label Label
}

func (e *PrototypeMissingError) Error() string {
	return fmt.Sprintf("psys: unknown prototype %q", e.Label)
}

func (e *PrototypeMissingError) Unwrap() error { return ErrPrototypeMissing }

// MalformedRoutingKeyError names the product symbol that failed to
// parse as a routing key.
type MalformedRoutingKeyError struct {
	Symbol Symbol
}

func (e *MalformedRoutingKeyError) Error() string {
	return fmt.Sprintf("psys: malformed routing key %q", e.Symbol)
}

func (e *MalformedRoutingKeyError) Unwrap() error { return ErrMalformedRoutingKey }

// InvariantViolationError describes the broken invariant found at
// commit time.
type InvariantViolationError struct {
	Description string
}

func (e *InvariantViolationError) Error() string {
	return "psys: invariant violation: " + e.Description
}

func (e *InvariantViolationError) Unwrap() error { return ErrInvariantViolation }
