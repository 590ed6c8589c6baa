// Package emit provides pluggable observability sinks for the psys
// step engine and recorder.
package emit

import "context"

// Emitter receives observability events produced while stepping a
// System. Implementations should be non-blocking and must not panic;
// Step and Recorder callers treat emission as best-effort and never
// fail a run because an emitter misbehaves.
type Emitter interface {
	// Emit sends a single event to the backend.
	Emit(event Event)

	// EmitBatch sends multiple events, preserving order. Returns an
	// error only on catastrophic, non-per-event failures.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until buffered events are delivered, or returns ctx's
	// error if it is cancelled first. Safe to call more than once.
	Flush(ctx context.Context) error
}
