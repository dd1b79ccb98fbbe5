// Package record defines the three record kinds a case file holds:
// SimulationInfo, DriverInfo and IterationCase.
//
// Records are created once, appended, and never mutated. Variable values
// are held in Vars, an insertion-ordered name to value mapping.
package record

import (
	"strings"

	"github.com/roach88/casestore/internal/value"
)

// Field names with fixed meaning inside records.
const (
	FieldID           = "_id"
	FieldParentID     = "_parent_id"
	FieldDriverID     = "_driver_id"
	FieldUUID         = "uuid"
	FieldTimestamp    = "timestamp"
	FieldErrorStatus  = "error_status"
	FieldErrorMessage = "error_message"
	FieldPcompName    = "pcomp_name"
)

// PseudoPrefix starts the names of pseudo objectives and constraints.
const PseudoPrefix = "_pseudo_"

// Format versions written into simulation_info.
const (
	FormatVersion = "1"
	// LibraryVersion identifies the writer.
	LibraryVersion = "casestore-1"
)

// Bookkeeping lists the per-case names every query exposes first, in order.
var Bookkeeping = []string{
	FieldID,
	FieldParentID,
	FieldDriverID,
	FieldTimestamp,
	FieldErrorStatus,
	FieldErrorMessage,
}

// IsBookkeeping reports whether name is one of the per-case bookkeeping
// fields. Such names cannot be used as variable names.
func IsBookkeeping(name string) bool {
	for _, b := range Bookkeeping {
		if b == name {
			return true
		}
	}
	return false
}

// IsPseudo reports whether name is a pseudo objective or constraint.
func IsPseudo(name string) bool {
	return strings.HasPrefix(name, PseudoPrefix)
}

// Var is one named value.
type Var struct {
	Name  string
	Value value.Value
}

// Vars is an insertion-ordered mapping from name to Value.
// Names are unique; lookups are linear, which is fine for per-case sizes.
type Vars []Var

// Get returns the value for name.
func (vs Vars) Get(name string) (value.Value, bool) {
	for _, v := range vs {
		if v.Name == name {
			return v.Value, true
		}
	}
	return value.Value{}, false
}

// Has reports whether name is defined.
func (vs Vars) Has(name string) bool {
	_, ok := vs.Get(name)
	return ok
}

// Names returns the names in insertion order.
func (vs Vars) Names() []string {
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = v.Name
	}
	return names
}

// Equal reports whether vs and o hold the same names in the same order with
// equal values.
func (vs Vars) Equal(o Vars) bool {
	if len(vs) != len(o) {
		return false
	}
	for i := range vs {
		if vs[i].Name != o[i].Name || !vs[i].Value.Equal(o[i].Value) {
			return false
		}
	}
	return true
}

// ExpressionKind says whether a pseudo variable is an objective or a
// constraint.
type ExpressionKind string

const (
	Objective  ExpressionKind = "objective"
	Constraint ExpressionKind = "constraint"
)

// Expression describes a pseudo variable.
type Expression struct {
	Name      string         // _pseudo_N
	Expr      string         // source expression text, e.g. "comp1.z**2"
	Kind      ExpressionKind // objective or constraint
	PcompName string         // pseudo component that evaluates it
}

// SimulationInfo is the single header record of a run.
type SimulationInfo struct {
	UUID        string
	Name        string
	Version     string
	Variables   []string
	Constants   Vars
	Expressions []Expression
}

// DriverInfo describes one driver instance.
type DriverInfo struct {
	ID          string
	Name        string
	Parameters  []string
	Objectives  []string
	Constraints []string
	Responses   []string
	Recording   []string
}

// Declared returns every variable name the driver declares, de-duplicated,
// in the order parameters, objectives, constraints, responses, recording.
func (d DriverInfo) Declared() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, group := range [][]string{d.Parameters, d.Objectives, d.Constraints, d.Responses, d.Recording} {
		for _, n := range group {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

// IterationCase is one recorded driver iteration.
type IterationCase struct {
	ID           string
	ParentID     string // empty for top-level cases
	DriverID     string
	Timestamp    float64 // seconds since the Unix epoch
	ErrorStatus  *int    // nil on success
	ErrorMessage string
	Values       Vars
}

// TopLevel reports whether the case has no parent.
func (c IterationCase) TopLevel() bool { return c.ParentID == "" }

// Failed reports whether the case carries an error status.
func (c IterationCase) Failed() bool { return c.ErrorStatus != nil }
