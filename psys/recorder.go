package psys

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cellmesh/psystem/psys/emit"
)

// Row is one (step, membrane) record of a recorder run, matching the
// sole stable persisted schema (see Table.WriteCSV).
type Row struct {
	Step            int
	Membrane        MembId
	ResidualResources string
	Productions       string
	Applications      string
	CreatedGlobal     string
	DissolvedGlobal   string
}

// Table is the in-memory result of a Recorder run: one Row per (step,
// membrane) pair that appeared in that step's StepResult.Consumed.
type Table struct {
	Rows []Row

	// FailedAtStep is non-zero when the run stopped early because Step
	// returned an error; Rows still holds every row committed before
	// the failure.
	FailedAtStep int
	Err          error
}

// header is the CSV schema's fixed column order (spec.md §6). It is
// part of the stable, sole persisted artifact and must never change.
var header = []string{
	"step", "membrane", "residual_resources", "productions",
	"applications", "created_global", "dissolved_global",
}

// WriteCSV writes t as CSV to w using the stable schema, quoting any
// field containing a comma.
func (t Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range t.Rows {
		record := []string{
			strconv.Itoa(r.Step),
			string(r.Membrane),
			r.ResidualResources,
			r.Productions,
			r.Applications,
			r.CreatedGlobal,
			r.DissolvedGlobal,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Recorder drives a System through repeated Step calls and materializes
// a Table, optionally emitting observability events, Prometheus
// metrics, OpenTelemetry spans, and an in-memory run history entry.
// Configured with functional options, in the teacher's style.
type Recorder struct {
	emitter emit.Emitter
	metrics *Metrics
	tracer  Tracer
	history History
	runID   string
	csvPath string
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithEmitter attaches an observability sink. Defaults to a no-op
// emitter.
func WithEmitter(e emit.Emitter) Option {
	return func(r *Recorder) { r.emitter = e }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithTracer attaches OpenTelemetry span-per-step tracing.
func WithTracer(t Tracer) Option {
	return func(r *Recorder) { r.tracer = t }
}

// WithHistory attaches an in-memory run-history store; Record saves the
// resulting Table under the run's generated id.
func WithHistory(h History) Option {
	return func(r *Recorder) { r.history = h }
}

// WithRunID overrides the recorder's generated run id (useful for
// tests asserting on emitted event/metric labels).
func WithRunID(id string) Option {
	return func(r *Recorder) { r.runID = id }
}

// WithCSVSink additionally writes the produced Table to path as CSV
// once Record completes (even on a failed run, so rows committed
// before the failure are not lost).
func WithCSVSink(path string) Option {
	return func(r *Recorder) { r.csvPath = path }
}

// NewRecorder builds a Recorder from opts. A fresh uuid run id is
// generated unless overridden by WithRunID.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		emitter: emit.NewNullEmitter(),
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record drives nSteps sequential steps against sys. The k-th step
// (1-indexed) uses PRNG seed *baseSeed + k - 1 when baseSeed is
// non-nil, else nondeterministic seeding (spec.md §4.6). If a step
// fails, Record stops, returns the rows committed so far in the
// Table, and sets Table.FailedAtStep/Err; the returned error is also
// non-nil.
func (r *Recorder) Record(ctx context.Context, sys *System, nSteps int, baseSeed *int64) (Table, error) {
	var table Table
	if r.csvPath != "" {
		defer func() { r.writeCSVSink(table) }()
	}
	r.emitter.Emit(emit.Event{RunID: r.runID, Msg: "run_start", Meta: map[string]interface{}{"n_steps": nSteps}})

	for k := 1; k <= nSteps; k++ {
		var seed *int64
		if baseSeed != nil {
			s := *baseSeed + int64(k-1)
			seed = &s
		}

		start := time.Now()
		stepCtx := ctx
		var endSpan func(error)
		if r.tracer != nil {
			stepCtx, endSpan = r.tracer.StartStep(ctx, r.runID, k)
		}
		res, err := Step(stepCtx, sys, seed)
		latency := time.Since(start)
		if endSpan != nil {
			endSpan(err)
		}

		if err != nil {
			status := "error"
			if r.metrics != nil {
				r.metrics.RecordStep(r.runID, latency, status, res, len(sys.Membranes))
				r.metrics.RecordStepError(r.runID, stepErrorKind(err))
			}
			r.emitter.Emit(emit.Event{
				RunID: r.runID, Step: k, Msg: "step_error",
				Meta: map[string]interface{}{"error": err.Error()},
			})
			table.FailedAtStep = k
			table.Err = err
			if r.history != nil {
				r.history.SaveRun(r.runID, table)
			}
			return table, err
		}

		if r.metrics != nil {
			r.metrics.RecordStep(r.runID, latency, "ok", res, len(sys.Membranes))
		}
		r.emitter.Emit(emit.Event{
			RunID: r.runID, Step: k, Msg: "step_commit",
			Meta: map[string]interface{}{
				"created":   len(res.Created),
				"dissolved": len(res.Dissolved),
			},
		})

		table.Rows = append(table.Rows, rowsForStep(k, res)...)
	}

	if r.history != nil {
		r.history.SaveRun(r.runID, table)
	}
	r.emitter.Emit(emit.Event{RunID: r.runID, Msg: "run_complete"})
	return table, nil
}

// RunID returns the run id this Recorder tags every event, metric
// sample, span, and history entry with.
func (r *Recorder) RunID() string { return r.runID }

// writeCSVSink writes table to r.csvPath. A failure here is logged via
// the configured emitter rather than surfaced as Record's error: the
// CSV sink is a convenience on top of the in-memory Table, which the
// caller already has regardless of whether the file write succeeds.
func (r *Recorder) writeCSVSink(table Table) {
	f, err := os.Create(r.csvPath)
	if err != nil {
		r.emitter.Emit(emit.Event{RunID: r.runID, Msg: "csv_sink_error", Meta: map[string]interface{}{"error": err.Error()}})
		return
	}
	defer f.Close()
	if err := table.WriteCSV(f); err != nil {
		r.emitter.Emit(emit.Event{RunID: r.runID, Msg: "csv_sink_error", Meta: map[string]interface{}{"error": err.Error()}})
	}
}

func stepErrorKind(err error) string {
	switch {
	case asPrototypeMissing(err):
		return "prototype_missing"
	case asMalformedRoutingKey(err):
		return "malformed_routing_key"
	case asInvariantViolation(err):
		return "invariant_violation"
	default:
		return "unknown"
	}
}

func asPrototypeMissing(err error) bool {
	_, ok := err.(*PrototypeMissingError)
	return ok
}

func asMalformedRoutingKey(err error) bool {
	_, ok := err.(*MalformedRoutingKeyError)
	return ok
}

func asInvariantViolation(err error) bool {
	_, ok := err.(*InvariantViolationError)
	return ok
}

// rowsForStep builds one Row per membrane id present in res.Consumed,
// in the step's snapshot insertion order (res.Order), so CSV output is
// reproducible regardless of map iteration.
func rowsForStep(step int, res StepResult) []Row {
	ids := make([]MembId, 0, len(res.Consumed))
	for _, id := range res.Order {
		if _, ok := res.Consumed[id]; ok {
			ids = append(ids, id)
		}
	}

	createdGlobal := formatCreated(res.Created)
	dissolvedGlobal := formatDissolved(res.Dissolved)

	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, Row{
			Step:              step,
			Membrane:          id,
			ResidualResources: res.Consumed[id].String(),
			Productions:       formatProductions(res.Productions[id]),
			Applications:      formatApplications(res.Selection[id]),
			CreatedGlobal:     createdGlobal,
			DissolvedGlobal:   dissolvedGlobal,
		})
	}
	return rows
}

func formatProductions(m Multiset) string {
	if m == nil {
		return NewMultiset().String()
	}
	return m.String()
}

// formatApplications renders v as "[(s1,n1)]->[(t1,m1)] × k" entries
// joined by ";", per spec.md §6.
func formatApplications(v Vector) string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, 0, len(v))
	for _, app := range v {
		parts = append(parts, fmt.Sprintf("%s->%s × %d", app.Rule.Left.String(), app.Rule.Right.String(), app.Count))
	}
	return strings.Join(parts, ";")
}

func formatCreated(created []CreatedEdge) string {
	if len(created) == 0 {
		return ""
	}
	parts := make([]string, 0, len(created))
	for _, c := range created {
		parts = append(parts, fmt.Sprintf("%s->%s", c.Parent, c.New))
	}
	return strings.Join(parts, ";")
}

func formatDissolved(dissolved []MembId) string {
	if len(dissolved) == 0 {
		return ""
	}
	parts := make([]string, 0, len(dissolved))
	for _, d := range dissolved {
		parts = append(parts, string(d))
	}
	return strings.Join(parts, ";")
}
