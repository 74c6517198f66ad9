package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/hdrreg/internal/canon"
)

// TraceSnapshot captures the trace of a scenario execution.
// Snapshot bytes are canonical JSON, so equal traces compare byte-equal.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot to the shape canon.Marshal accepts,
// dropping empty optional fields the same way the JSON tags do.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":       ev.Seq,
			"op":        ev.Op,
			"outcome":   ev.Outcome,
			"version":   ev.Version,
			"ref_count": ev.RefCount,
			"size":      ev.Size,
		}
		if ev.Node != "" {
			m["node"] = ev.Node
		}
		if ev.SuiteID != 0 {
			m["suite_id"] = ev.SuiteID
		}
		if ev.StoreName != "" {
			m["store_name"] = ev.StoreName
		}
		if ev.LookupID != 0 {
			m["lookup_id"] = ev.LookupID
		}
		if ev.Digest != "" {
			m["digest"] = ev.Digest
		}
		trace[i] = m
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
	}
}

// Snapshot returns the canonical golden bytes for a scenario result.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	s := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	return canon.Marshal(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, Options{})
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
