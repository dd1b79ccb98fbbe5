package query

import (
	"fmt"
	"strings"
)

// Op is one step of a query chain.
//
// This is a sealed interface - only types in this package implement it.
// The marker method keeps type switches over Op exhaustive.
type Op interface {
	queryOp() // Marker method - seals interface to this package
	String() string
}

// VarsOp projects onto exactly Names, in order.
type VarsOp struct {
	Names []string
}

// DriverOp scopes to the cases of drivers named Name and of every driver
// they invoke, transitively.
type DriverOp struct {
	Name string
}

// ParentCaseOp scopes to the history of a run up to and including ID.
type ParentCaseOp struct {
	ID string
}

// LocalOp marks variables a case does not define as missing instead of
// carrying their last value forward.
type LocalOp struct{}

// ByVariableOp makes Fetch return one series per variable.
type ByVariableOp struct{}

func (VarsOp) queryOp()       {}
func (DriverOp) queryOp()     {}
func (ParentCaseOp) queryOp() {}
func (LocalOp) queryOp()      {}
func (ByVariableOp) queryOp() {}

func (o VarsOp) String() string {
	quoted := make([]string, len(o.Names))
	for i, n := range o.Names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return "vars(" + strings.Join(quoted, ", ") + ")"
}

func (o DriverOp) String() string     { return fmt.Sprintf("driver(%q)", o.Name) }
func (o ParentCaseOp) String() string { return fmt.Sprintf("parent_case(%q)", o.ID) }
func (LocalOp) String() string        { return "local()" }
func (ByVariableOp) String() string   { return "by_variable()" }
