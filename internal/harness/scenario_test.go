package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestSpec writes a minimal entity spec and returns its path.
func createTestSpec(t *testing.T, dir, name string) string {
	t.Helper()
	specsDir := filepath.Join(dir, "specs")
	require.NoError(t, os.MkdirAll(specsDir, 0755))
	specPath := filepath.Join(specsDir, name)
	content := "entity: users: attributes: {id: {create: \"absent\"}, name: {create: \"required\"}}\n"
	require.NoError(t, os.WriteFile(specPath, []byte(content), 0644))
	return specPath
}

// writeScenario writes content to dir/test.yaml and loads it.
func writeScenario(t *testing.T, dir, content string) (*Scenario, error) {
	t.Helper()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return LoadScenario(path)
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	createTestSpec(t, dir, "users.cue")

	scenario, err := writeScenario(t, dir, `
name: test_scenario
description: "Test scenario for validation"
specs:
  - specs/users.cue
setup:
  - "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)"
steps:
  - entity: users
    op: create
    values: {name: widget}
    expect:
      sql: "INSERT INTO users (name) VALUES (?)"
      params: [widget]
      affected: 1
assertions:
  - type: row_count
    table: users
    count: 1
`)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, []string{filepath.Join(dir, "specs/users.cue")}, scenario.Specs)
	assert.Len(t, scenario.Setup, 1)
	require.Len(t, scenario.Steps, 1)
	assert.Len(t, scenario.Assertions, 1)

	step := scenario.Steps[0]
	assert.Equal(t, "users", step.Entity)
	assert.Equal(t, "create", step.Op)
	assert.Equal(t, "widget", step.Values["name"])
	require.NotNil(t, step.Expect)
	assert.Equal(t, []any{"widget"}, step.Expect.Params)
	require.NotNil(t, step.Expect.Affected)
	assert.Equal(t, int64(1), *step.Expect.Affected)
	assert.True(t, scenario.ShouldCommit())
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: d
specs: [specs/users.cue]
steps: [{entity: users, op: read}]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: n
specs: [specs/users.cue]
steps: [{entity: users, op: read}]
`,
			wantErr: "description is required",
		},
		{
			name: "missing specs",
			content: `
name: n
description: d
steps: [{entity: users, op: read}]
`,
			wantErr: "specs list is required",
		},
		{
			name: "missing steps",
			content: `
name: n
description: d
specs: [specs/users.cue]
`,
			wantErr: "steps list is required",
		},
		{
			name: "spec not found",
			content: `
name: n
description: d
specs: [specs/missing.cue]
steps: [{entity: users, op: read}]
`,
			wantErr: "spec file not found",
		},
		{
			name: "empty setup statement",
			content: `
name: n
description: d
specs: [specs/users.cue]
setup: [""]
steps: [{entity: users, op: read}]
`,
			wantErr: "setup[0]: statement is empty",
		},
		{
			name: "step without op",
			content: `
name: n
description: d
specs: [specs/users.cue]
steps: [{entity: users}]
`,
			wantErr: "steps[0]: op is required",
		},
		{
			name: "unknown op",
			content: `
name: n
description: d
specs: [specs/users.cue]
steps: [{entity: users, op: upsert}]
`,
			wantErr: "unknown operation",
		},
		{
			name: "step without entity",
			content: `
name: n
description: d
specs: [specs/users.cue]
steps: [{op: read}]
`,
			wantErr: "entity is required for read",
		},
		{
			name: "unknown assertion type",
			content: `
name: n
description: d
specs: [specs/users.cue]
steps: [{entity: users, op: read}]
assertions: [{type: eventually}]
`,
			wantErr: `unknown assertion type "eventually"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			createTestSpec(t, dir, "users.cue")

			_, err := writeScenario(t, dir, tt.content)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_EscapeHatchStepsNeedNoEntity(t *testing.T) {
	dir := t.TempDir()
	createTestSpec(t, dir, "users.cue")

	scenario, err := writeScenario(t, dir, `
name: n
description: d
specs: [specs/users.cue]
steps:
  - {op: last_insert_id}
  - {op: row_count, expect: {value: 0}}
`)
	require.NoError(t, err)
	require.Len(t, scenario.Steps, 2)
	require.NotNil(t, scenario.Steps[1].Expect.Value)
	assert.Equal(t, int64(0), *scenario.Steps[1].Expect.Value)
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	_, err := writeScenario(t, dir, "name: [unclosed\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_UnknownFieldsRejected(t *testing.T) {
	dir := t.TempDir()
	createTestSpec(t, dir, "users.cue")

	_, err := writeScenario(t, dir, `
name: n
description: d
specs: [specs/users.cue]
step:
  - {entity: users, op: read}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field step not found")
}

func TestLoadScenario_Commit(t *testing.T) {
	dir := t.TempDir()
	createTestSpec(t, dir, "users.cue")

	scenario, err := writeScenario(t, dir, `
name: n
description: d
specs: [specs/users.cue]
commit: false
tx_id: fixed-tx
steps: [{entity: users, op: read}]
`)
	require.NoError(t, err)
	assert.False(t, scenario.ShouldCommit())
	assert.Equal(t, "fixed-tx", scenario.TxID)
}

func TestLoadScenario_AssertionTypes(t *testing.T) {
	tests := []struct {
		name      string
		assertion string
		wantErr   string
	}{
		{"trace_contains ok", `{type: trace_contains, sql: "SELECT 1"}`, ""},
		{"trace_contains without sql", `{type: trace_contains}`, "sql is required"},
		{"trace_count ok", `{type: trace_count, entity: users, op: create, count: 0}`, ""},
		{"trace_count without op", `{type: trace_count, entity: users}`, "entity and op are required"},
		{"trace_count negative", `{type: trace_count, entity: users, op: create, count: -1}`, "count must be non-negative"},
		{"final_state ok", `{type: final_state, table: users, expect: {name: a}}`, ""},
		{"final_state without table", `{type: final_state, expect: {name: a}}`, "table is required"},
		{"final_state without expect", `{type: final_state, table: users}`, "expect is required"},
		{"row_count ok", `{type: row_count, table: users, count: 2}`, ""},
		{"row_count without table", `{type: row_count, count: 2}`, "table is required"},
		{"missing type", `{table: users}`, "type is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			createTestSpec(t, dir, "users.cue")

			_, err := writeScenario(t, dir, `
name: n
description: d
specs: [specs/users.cue]
steps: [{entity: users, op: read}]
assertions:
  - `+tt.assertion+"\n")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	dir := t.TempDir()
	specPath := createTestSpec(t, dir, "users.cue")

	scenarioDir := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarioDir, 0755))
	path := filepath.Join(scenarioDir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: n
description: d
specs: [users.cue]
steps: [{entity: users, op: read}]
`), 0644))

	scenario, err := LoadScenarioWithBasePath(path, filepath.Dir(specPath))
	require.NoError(t, err)
	assert.Equal(t, []string{specPath}, scenario.Specs)
}

func TestLoadExampleScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			require.NoError(t, err)
		})
	}
}
