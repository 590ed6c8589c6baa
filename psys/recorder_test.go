package psys_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cellmesh/psystem/psys"
)

func buildDivisionSystem(t *testing.T) *psys.System {
	t.Helper()
	sys := psys.NewSystem()
	m1, err := sys.AddMembrane(nil, "m1")
	if err != nil {
		t.Fatal(err)
	}
	m1.Resources = ms(map[psys.Symbol]int{"a": 10})
	m1.Rules = []psys.Rule{
		psys.NewRewrite(ms(map[psys.Symbol]int{"a": 3}), ms(map[psys.Symbol]int{"b": 1}), 2),
		psys.NewRewrite(ms(map[psys.Symbol]int{"a": 1}), ms(map[psys.Symbol]int{"r": 1}), 1),
	}
	return sys
}

func TestRecorderProducesOneRowPerMembranePerStep(t *testing.T) {
	rec := psys.NewRecorder()
	table, err := rec.Record(context.Background(), buildDivisionSystem(t), 5, seed(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != 5 {
		t.Fatalf("expected 5 rows (1 membrane x 5 steps), got %d", len(table.Rows))
	}
	for i, row := range table.Rows {
		if row.Step != i+1 {
			t.Fatalf("row %d has Step=%d, want %d", i, row.Step, i+1)
		}
		if row.Membrane != "m1" {
			t.Fatalf("row %d has Membrane=%q, want m1", i, row.Membrane)
		}
	}
}

// TestRecorderDeterministicCSV is scenario S6: identical (system,
// seed) produce byte-identical CSVs.
func TestRecorderDeterministicCSV(t *testing.T) {
	base := int64(42)

	recA := psys.NewRecorder()
	tableA, err := recA.Record(context.Background(), buildDivisionSystem(t), 20, &base)
	if err != nil {
		t.Fatal(err)
	}
	recB := psys.NewRecorder()
	tableB, err := recB.Record(context.Background(), buildDivisionSystem(t), 20, &base)
	if err != nil {
		t.Fatal(err)
	}

	var bufA, bufB bytes.Buffer
	if err := tableA.WriteCSV(&bufA); err != nil {
		t.Fatal(err)
	}
	if err := tableB.WriteCSV(&bufB); err != nil {
		t.Fatal(err)
	}
	if bufA.String() != bufB.String() {
		t.Fatalf("CSVs diverge:\n--- A ---\n%s\n--- B ---\n%s", bufA.String(), bufB.String())
	}
}

func TestRecorderCSVSchema(t *testing.T) {
	rec := psys.NewRecorder()
	table, err := rec.Record(context.Background(), buildDivisionSystem(t), 1, seed(1))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	want := "step,membrane,residual_resources,productions,applications,created_global,dissolved_global"
	if lines[0] != want {
		t.Fatalf("header = %q, want %q", lines[0], want)
	}
}

func TestRecorderWithCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	rec := psys.NewRecorder(psys.WithCSVSink(path))
	table, err := rec.Record(context.Background(), buildDivisionSystem(t), 3, seed(1))
	if err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("csv sink file not written: %v", err)
	}

	var want bytes.Buffer
	if err := table.WriteCSV(&want); err != nil {
		t.Fatal(err)
	}
	if string(got) != want.String() {
		t.Fatalf("csv sink contents diverge from table.WriteCSV:\n--- sink ---\n%s\n--- table ---\n%s", got, want.String())
	}
}

func TestRecorderStopsAndReportsFailure(t *testing.T) {
	sys := psys.NewSystem()
	m1, err := sys.AddMembrane(nil, "m1")
	if err != nil {
		t.Fatal(err)
	}
	m1.Resources = ms(map[psys.Symbol]int{"a": 1})
	m1.Rules = []psys.Rule{
		psys.NewCreator(ms(map[psys.Symbol]int{"a": 1}), 0, psys.CreateSpec{Prototype: "ghost"}),
	}

	rec := psys.NewRecorder()
	table, err := rec.Record(context.Background(), sys, 5, seed(1))
	if err == nil {
		t.Fatal("expected an error from the failing step")
	}
	if table.FailedAtStep != 1 {
		t.Fatalf("FailedAtStep = %d, want 1", table.FailedAtStep)
	}
	if table.Err == nil {
		t.Fatal("table.Err should be set")
	}
}
