package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rulesql/internal/rules"
)

// Scenario defines a conformance test scenario.
// A scenario binds entity definitions to requests, runs them through a
// transaction against a fresh database and checks the rendered statements,
// the returned rows and the final table contents.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists entity definition files (.cue, .yaml or .yml).
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs"`

	// Setup holds raw SQL run before the first step, outside any
	// transaction, so schema and seed rows survive a rollback.
	Setup []string `yaml:"setup,omitempty"`

	// Steps are the operations executed inside the transaction.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final table contents.
	// Supported types: trace_contains, trace_count, final_state, row_count
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// Commit controls how the run ends. Nil or true commits; false rolls
	// back so final_state sees only the setup rows.
	Commit *bool `yaml:"commit,omitempty"`

	// TxID is the fixed transaction id used in logs.
	// Defaults to "test-tx-default".
	TxID string `yaml:"tx_id,omitempty"`
}

// Step is one operation against an entity.
type Step struct {
	// Entity names the entity definition to bind. Not used by the
	// escape-hatch operations.
	Entity string `yaml:"entity,omitempty"`

	// Op is create, read, update or delete, or one of the escape hatches
	// last_insert_id and row_count.
	Op string `yaml:"op"`

	// Values are the creation/update attribute values.
	Values map[string]any `yaml:"values,omitempty"`

	// Filter selects rows for read, update and delete.
	Filter map[string]any `yaml:"filter,omitempty"`

	// Columns is the read projection. Empty selects every column.
	Columns []string `yaml:"columns,omitempty"`

	// Expect specifies what the step must produce.
	// If nil, the step only has to succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the expected outcome of a step. Unset fields are not
// checked.
type Expect struct {
	// SQL is the exact rendered statement, with ? placeholders.
	SQL string `yaml:"sql,omitempty"`

	// Params are the bind parameters in placeholder order.
	Params []any `yaml:"params,omitempty"`

	// Rows are the rows returned by a read, in order.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Affected is the affected-row count of a write.
	Affected *int64 `yaml:"affected,omitempty"`

	// Value is the scalar returned by an escape hatch.
	Value *int64 `yaml:"value,omitempty"`

	// Error is an attribute error code (e.g. MISSING_REQUIRED_ATTRIBUTE)
	// or a fragment of the error message. When set the step must fail.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a step rendered exactly SQL
	// - "trace_count": Op on Entity ran successfully exactly Count times
	// - "final_state": Query table and verify expected values
	// - "row_count": table holds exactly Count rows matching Where
	Type string `yaml:"type"`

	// SQL is the rendered statement (used by trace_contains).
	SQL string `yaml:"sql,omitempty"`

	// Entity and Op select steps (used by trace_count).
	Entity string `yaml:"entity,omitempty"`
	Op     string `yaml:"op,omitempty"`

	// Table is the table name (used by final_state and row_count).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state and row_count).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of matches (trace_count, row_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRowCount      = "row_count"
)

// Escape-hatch step operations.
const (
	OpLastInsertID = "last_insert_id"
	OpRowCount     = "row_count"
)

// DefaultTxID is the transaction id used when a scenario sets none.
const DefaultTxID = "test-tx-default"

// ShouldCommit reports whether the run ends with a commit.
func (s *Scenario) ShouldCommit() bool {
	return s.Commit == nil || *s.Commit
}

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "step:" vs "steps:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	for i, stmt := range s.Setup {
		if stmt == "" {
			return fmt.Errorf("setup[%d]: statement is empty", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks a step's operation and the fields it needs.
func validateStep(index int, step *Step) error {
	switch step.Op {
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	case OpLastInsertID, OpRowCount:
		return nil
	}

	if _, err := rules.ParseOperation(step.Op); err != nil {
		return fmt.Errorf("steps[%d]: %w", index, err)
	}
	if step.Entity == "" {
		return fmt.Errorf("steps[%d]: entity is required for %s", index, step.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.SQL == "" {
			return fmt.Errorf("assertions[%d]: sql is required for trace_contains", index)
		}
	case AssertTraceCount:
		if a.Entity == "" || a.Op == "" {
			return fmt.Errorf("assertions[%d]: entity and op are required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
