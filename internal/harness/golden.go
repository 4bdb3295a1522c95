package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rulesql/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string      `json:"scenario_name"`
	FinalState   string      `json:"final_state"`
	Trace        []StepTrace `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, step := range s.Trace {
		stepMap := map[string]any{
			"step":     step.Step,
			"op":       step.Op,
			"affected": step.Affected,
			"state":    step.State,
		}
		if step.Entity != "" {
			stepMap["entity"] = step.Entity
		}
		if step.SQL != "" {
			stepMap["sql"] = step.SQL
			stepMap["statement_id"] = statementID(step)
		}
		if len(step.Params) > 0 {
			stepMap["params"] = step.Params
		}
		if len(step.Rows) > 0 {
			rows := make([]any, len(step.Rows))
			for j, row := range step.Rows {
				rows[j] = row
			}
			stepMap["rows"] = rows
		}
		if step.Value != nil {
			stepMap["value"] = *step.Value
		}
		if step.Error != "" {
			stepMap["error"] = step.Error
		}
		traceList[i] = stepMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"final_state":   s.FinalState,
		"trace":         traceList,
	}
}

// statementID fingerprints the step's rendered statement.
func statementID(step StepTrace) string {
	id, err := ir.StatementID(step.SQL, step.Params)
	if err != nil {
		return ""
	}
	return id
}

// MarshalSnapshot renders a result as canonical JSON.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		FinalState:   result.FinalState,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass and Errors.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
