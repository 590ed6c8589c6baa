package emit

// Event is one observability event emitted while stepping a System.
type Event struct {
	// RunID identifies the recorder run that emitted this event.
	RunID string

	// Step is the 1-indexed step number. Zero for run-level events
	// (run_start, run_complete).
	Step int

	// MembraneID identifies which membrane this event concerns. Empty
	// for step-level or run-level events.
	MembraneID string

	// Msg names the event kind. The recorder emits "run_start",
	// "step_commit", "step_error", "run_complete" and "csv_sink_error".
	Msg string

	// Meta carries event-specific structured data. Keys the recorder
	// sets:
	//   - "n_steps": requested step count, on "run_start"
	//   - "created": count of membranes created this step
	//   - "dissolved": count of membranes dissolved this step
	//   - "error": error message, on "step_error" and "csv_sink_error"
	Meta map[string]interface{}
}
