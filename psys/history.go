package psys

// History persists completed recorder runs in memory, keyed by run id.
// psys/history.Store implements this interface; it is declared here,
// next to Table, so Recorder can depend on the interface without
// importing the concrete store package.
type History interface {
	SaveRun(runID string, table Table)
}
