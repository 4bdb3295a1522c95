package harness

import "github.com/roach88/rulesql/internal/ir"

// StepTrace records what one step rendered and produced.
type StepTrace struct {
	Step   int    `json:"step"`
	Entity string `json:"entity,omitempty"`
	Op     string `json:"op"`

	// SQL and Params are the statement as rendered, before dialect
	// rebinding. Empty when binding failed.
	SQL    string `json:"sql,omitempty"`
	Params []any  `json:"params,omitempty"`

	Rows     []ir.IRObject `json:"rows,omitempty"`
	Affected int64         `json:"affected"`

	// Value is the scalar returned by an escape hatch.
	Value *int64 `json:"value,omitempty"`

	// Error is the step failure, if any.
	Error string `json:"error,omitempty"`

	// State is the transaction state after the step.
	State string `json:"state"`
}

// Failed reports whether the step returned an error.
func (s StepTrace) Failed() bool {
	return s.Error != ""
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains one entry per step, in order.
	Trace []StepTrace `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// FinalState is the transaction state when the run ended.
	FinalState string `json:"final_state"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []StepTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step to the trace.
func (r *Result) AddStep(step StepTrace) {
	r.Trace = append(r.Trace, step)
}
