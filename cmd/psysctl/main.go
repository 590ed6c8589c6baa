// Command psysctl drives one of the built-in example P-systems through
// the recorder and prints its CSV trace.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cellmesh/psystem/psys"
	"github.com/cellmesh/psystem/psys/emit"
	"github.com/cellmesh/psystem/psys/history"
)

func main() {
	scenario := flag.String("scenario", "division", "scenario to run: division, parity, routing, dissolution, split")
	steps := flag.Int("steps", 20, "number of steps to run")
	seed := flag.Int64("seed", 42, "base PRNG seed (use -seed=-1 for nondeterministic)")
	jsonLog := flag.Bool("json", false, "emit JSON event log to stderr instead of text")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090) until the run completes")
	flag.Parse()

	sys, err := buildScenario(*scenario)
	if err != nil {
		log.Fatalf("psysctl: %v", err)
	}

	var baseSeed *int64
	if *seed >= 0 {
		baseSeed = seed
	}

	opts := []psys.Option{
		psys.WithEmitter(emit.NewLogEmitter(os.Stderr, *jsonLog)),
		psys.WithHistory(history.NewStore()),
	}

	if *metricsAddr != "" {
		registry := prometheus.NewRegistry()
		metrics := psys.NewMetrics(registry)
		opts = append(opts, psys.WithMetrics(metrics))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("psysctl: metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	rec := psys.NewRecorder(opts...)

	table, err := rec.Record(context.Background(), sys, *steps, baseSeed)
	if err != nil {
		log.Printf("psysctl: run %s failed at step %d: %v", rec.RunID(), table.FailedAtStep, err)
	}

	if err := table.WriteCSV(os.Stdout); err != nil {
		log.Fatalf("psysctl: writing csv: %v", err)
	}
}

// buildScenario constructs one of spec.md §8's literal end-to-end
// scenarios (S1-S5).
func buildScenario(name string) (*psys.System, error) {
	switch name {
	case "division":
		return buildIntegerDivision()
	case "parity":
		return buildParity()
	case "routing":
		return buildRouting()
	case "dissolution":
		return buildDissolution()
	case "split":
		return buildSplit()
	default:
		return nil, fmt.Errorf("unknown scenario %q", name)
	}
}

// buildIntegerDivision is S1: m1={a:10}, {a:3}->{b:1} pri 2,
// {a:1}->{r:1} pri 1; quiesces to {b:3,r:1}.
func buildIntegerDivision() (*psys.System, error) {
	sys := psys.NewSystem()
	m1, err := sys.AddMembrane(nil, "m1")
	if err != nil {
		return nil, err
	}
	m1.Resources = psys.MultisetOf(map[psys.Symbol]int{"a": 10})
	m1.Rules = []psys.Rule{
		psys.NewRewrite(psys.MultisetOf(map[psys.Symbol]int{"a": 3}), psys.MultisetOf(map[psys.Symbol]int{"b": 1}), 2),
		psys.NewRewrite(psys.MultisetOf(map[psys.Symbol]int{"a": 1}), psys.MultisetOf(map[psys.Symbol]int{"r": 1}), 1),
	}
	return sys, nil
}

// buildParity is S2: m1={a:7}, {a:2}->{} pri 2, {a:1}->{i:1} pri 1;
// quiesces to {i:1}.
func buildParity() (*psys.System, error) {
	sys := psys.NewSystem()
	m1, err := sys.AddMembrane(nil, "m1")
	if err != nil {
		return nil, err
	}
	m1.Resources = psys.MultisetOf(map[psys.Symbol]int{"a": 7})
	m1.Rules = []psys.Rule{
		psys.NewRewrite(psys.MultisetOf(map[psys.Symbol]int{"a": 2}), psys.NewMultiset(), 2),
		psys.NewRewrite(psys.MultisetOf(map[psys.Symbol]int{"a": 1}), psys.MultisetOf(map[psys.Symbol]int{"i": 1}), 1),
	}
	return sys, nil
}

// buildRouting is S3: m1 parent of m2; m1={x:3}, {x:2}->{y_out:1} pri
// 2, {x:1}->{z_in_m2:1} pri 2; m2={}.
func buildRouting() (*psys.System, error) {
	sys := psys.NewSystem()
	m1, err := sys.AddMembrane(nil, "m1")
	if err != nil {
		return nil, err
	}
	if _, err := sys.AddMembrane(idPtr("m1"), "m2"); err != nil {
		return nil, err
	}
	m1.Resources = psys.MultisetOf(map[psys.Symbol]int{"x": 3})
	m1.Rules = []psys.Rule{
		psys.NewRewrite(psys.MultisetOf(map[psys.Symbol]int{"x": 2}), psys.MultisetOf(map[psys.Symbol]int{"y_out": 1}), 2),
		psys.NewRewrite(psys.MultisetOf(map[psys.Symbol]int{"x": 1}), psys.MultisetOf(map[psys.Symbol]int{"z_in_m2": 1}), 2),
	}
	return sys, nil
}

// buildDissolution is S4: m1 parent of m2; m2={q:5}; m1 has
// {t:1}->{} pri 1 dissolve=[m2]; m1={t:1}.
func buildDissolution() (*psys.System, error) {
	sys := psys.NewSystem()
	m1, err := sys.AddMembrane(nil, "m1")
	if err != nil {
		return nil, err
	}
	m2, err := sys.AddMembrane(idPtr("m1"), "m2")
	if err != nil {
		return nil, err
	}
	m2.Resources = psys.MultisetOf(map[psys.Symbol]int{"q": 5})
	m1.Resources = psys.MultisetOf(map[psys.Symbol]int{"t": 1})
	m1.Rules = []psys.Rule{
		psys.NewDissolver(psys.MultisetOf(map[psys.Symbol]int{"t": 1}), 1, "m2"),
	}
	return sys, nil
}

// buildSplit is S5: m1 child of root r; m1={a:4}, rule
// {a:2}->divide=({b:1},{c:1}).
func buildSplit() (*psys.System, error) {
	sys := psys.NewSystem()
	if _, err := sys.AddMembrane(nil, "r"); err != nil {
		return nil, err
	}
	m1, err := sys.AddMembrane(idPtr("r"), "m1")
	if err != nil {
		return nil, err
	}
	m1.Resources = psys.MultisetOf(map[psys.Symbol]int{"a": 4})
	m1.Rules = []psys.Rule{
		psys.NewDivider(
			psys.MultisetOf(map[psys.Symbol]int{"a": 2}), 1,
			psys.MultisetOf(map[psys.Symbol]int{"b": 1}),
			psys.MultisetOf(map[psys.Symbol]int{"c": 1}),
		),
	}
	return sys, nil
}

func idPtr(id psys.MembId) *psys.MembId { return &id }
