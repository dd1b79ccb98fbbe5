package harness

import (
	"fmt"
	"maps"
	"slices"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is false when an Expect check failed.
	Pass bool `json:"pass"`

	RunID string `json:"run_id"`

	// Cases lists case ids in the order they were written.
	Cases []string `json:"cases"`

	// Drivers counts cases per driver id.
	Drivers map[string]int `json:"drivers"`

	Failed int `json:"failed"`

	// Variables is the recorder's catalog. Only Record fills it.
	Variables []string `json:"variables,omitempty"`

	// Errors contains Expect mismatches. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Cases:   []string{},
		Drivers: make(map[string]int),
		Errors:  []string{},
	}
}

// AddError adds a mismatch and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

func (r *Result) check(e *Expect) {
	if e == nil {
		return
	}
	if e.Cases != nil && *e.Cases != len(r.Cases) {
		r.AddError("cases: expected %d, got %d", *e.Cases, len(r.Cases))
	}
	if e.Failed != nil && *e.Failed != r.Failed {
		r.AddError("failed: expected %d, got %d", *e.Failed, r.Failed)
	}
	for _, id := range slices.Sorted(maps.Keys(e.Drivers)) {
		want := e.Drivers[id]
		if got := r.Drivers[id]; got != want {
			r.AddError("driver %s: expected %d cases, got %d", id, want, got)
		}
	}
}
