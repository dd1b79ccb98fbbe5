// Package query answers projection, scoping and transpose queries over a
// loaded dataset.
//
// A Query is an immutable value: a dataset pointer plus the list of steps
// applied so far. Every step returns a new Query and leaves the receiver
// untouched, so partial queries can be shared and extended freely. Steps
// that reference a driver, case or variable check the reference at once and
// fail with a *ScopeError; nothing is evaluated until Fetch.
//
//	q, err := query.New(ds).Driver("localopt1")
//	rows := q.Local().Fetch()
//
// Results keep the dataset's iteration order restricted to the cases in
// scope. ByVariable only transposes.
//
// Thread-safety: queries and tables are safe for concurrent use; Fetch only
// reads the dataset.
package query

import (
	"strings"

	"github.com/roach88/casestore/internal/dataset"
	"github.com/roach88/casestore/internal/record"
	"github.com/roach88/casestore/internal/value"
)

// Query is a chain of steps over a dataset.
type Query struct {
	ds  *dataset.Dataset
	ops []Op
}

// New starts a query over every case in ds.
func New(ds *dataset.Dataset) Query {
	return Query{ds: ds}
}

func (q Query) with(op Op) Query {
	ops := make([]Op, len(q.ops), len(q.ops)+1)
	copy(ops, q.ops)
	return Query{ds: q.ds, ops: append(ops, op)}
}

// Vars restricts the projection to exactly names, in order. Bookkeeping
// names are accepted alongside variable names.
func (q Query) Vars(names ...string) (Query, error) {
	for _, n := range names {
		if !record.IsBookkeeping(n) && !q.ds.Known(n) {
			return Query{}, &ScopeError{Op: "vars", Ref: n}
		}
	}
	return q.with(VarsOp{Names: append([]string{}, names...)}), nil
}

// Driver restricts the scope to cases of every driver named name and of the
// drivers they invoke, at any depth.
func (q Query) Driver(name string) (Query, error) {
	if len(q.ds.DriversNamed(name)) == 0 {
		return Query{}, &ScopeError{Op: "driver", Ref: name}
	}
	return q.with(DriverOp{Name: name}), nil
}

// ParentCase restricts the scope to the run history leading up to and
// including case id: every case of the same run at or before it in
// iteration order. In a file holding one run the result has as many rows as
// id's 1-based position.
func (q Query) ParentCase(id string) (Query, error) {
	if _, ok := q.ds.Position(id); !ok {
		return Query{}, &ScopeError{Op: "parent_case", Ref: id}
	}
	return q.with(ParentCaseOp{ID: id}), nil
}

// Local substitutes the missing-value marker for variables a case does not
// define itself, instead of the last value seen in earlier cases.
func (q Query) Local() Query {
	return q.with(LocalOp{})
}

// ByVariable makes Fetch return one series per variable.
func (q Query) ByVariable() Query {
	return q.with(ByVariableOp{})
}

// Ops returns a copy of the steps applied so far.
func (q Query) Ops() []Op {
	return append([]Op(nil), q.ops...)
}

// String renders the chain, e.g. data.driver("opt").local().
func (q Query) String() string {
	var b strings.Builder
	b.WriteString("data")
	for _, op := range q.ops {
		b.WriteByte('.')
		b.WriteString(op.String())
	}
	return b.String()
}

// plan is the evaluated form of the step list.
type plan struct {
	scope      []bool // nil means every case
	declared   map[string]struct{}
	vars       []string
	projected  bool // a VarsOp was applied; vars may be empty
	local      bool
	byVariable bool
}

func (p *plan) narrow(mask []bool) {
	if p.scope == nil {
		p.scope = mask
		return
	}
	for i := range p.scope {
		p.scope[i] = p.scope[i] && mask[i]
	}
}

func (p *plan) in(i int) bool {
	return p.scope == nil || p.scope[i]
}

func (q Query) plan() plan {
	var p plan
	for _, op := range q.ops {
		switch o := op.(type) {
		case VarsOp:
			p.vars = o.Names
			p.projected = true
		case DriverOp:
			p.narrow(q.driverMask(o.Name, &p))
		case ParentCaseOp:
			p.narrow(q.parentMask(o.ID))
		case LocalOp:
			p.local = true
		case ByVariableOp:
			p.byVariable = true
		}
	}
	return p
}

func (q Query) driverMask(name string, p *plan) []bool {
	ds := q.ds
	var roots []string
	for _, d := range ds.DriversNamed(name) {
		roots = append(roots, d.ID)
	}

	if p.declared == nil {
		p.declared = make(map[string]struct{})
	}
	mask := make([]bool, ds.Len())
	for _, id := range ds.Subtree(roots...) {
		for _, cid := range ds.CasesOfDriver(id) {
			pos, _ := ds.Position(cid)
			mask[pos-1] = true
		}
		d, _ := ds.Driver(id)
		for _, n := range d.Declared() {
			if ds.Known(n) {
				p.declared[n] = struct{}{}
			}
		}
	}
	return mask
}

func (q Query) parentMask(id string) []bool {
	ds := q.ds
	mask := make([]bool, ds.Len())
	pos, _ := ds.Position(id)
	run, _ := ds.RootDriver(id)
	for i := 0; i < pos; i++ {
		if rd, _ := ds.RootDriver(ds.Cases[i].ID); rd == run {
			mask[i] = true
		}
	}
	return mask
}

// Cases returns the ids of the cases in scope, in iteration order.
func (q Query) Cases() []string {
	p := q.plan()
	out := []string{}
	for i, c := range q.ds.Cases {
		if p.in(i) {
			out = append(out, c.ID)
		}
	}
	return out
}

// Len returns the number of cases in scope.
func (q Query) Len() int {
	p := q.plan()
	n := 0
	for i := range q.ds.Cases {
		if p.in(i) {
			n++
		}
	}
	return n
}

// VarNames returns the names Fetch projects onto. After Vars it is exactly
// that list. Otherwise it is the bookkeeping names, then any uuid and
// pseudo variable names in scope, then the other variable names in scope in
// catalog order.
func (q Query) VarNames() []string {
	return q.varNames(q.plan())
}

func (q Query) varNames(p plan) []string {
	if p.projected {
		return append([]string{}, p.vars...)
	}

	present := make(map[string]struct{})
	for n := range p.declared {
		present[n] = struct{}{}
	}
	for i, c := range q.ds.Cases {
		if !p.in(i) {
			continue
		}
		for _, v := range c.Values {
			present[v.Name] = struct{}{}
		}
	}

	names := append([]string(nil), record.Bookkeeping...)
	catalog := q.ds.Names()
	for _, n := range catalog {
		if _, ok := present[n]; ok && isMeta(n) {
			names = append(names, n)
		}
	}
	for _, n := range catalog {
		if _, ok := present[n]; ok && !isMeta(n) {
			names = append(names, n)
		}
	}
	return names
}

func isMeta(name string) bool {
	return name == record.FieldUUID || record.IsPseudo(name)
}

// Fetch evaluates the query. It holds no cursor state: calling it again
// returns an equal Table.
func (q Query) Fetch() Table {
	p := q.plan()
	names := q.varNames(p)

	var ids []string
	var rows [][]value.Value
	last := make(map[string]value.Value)
	for i, c := range q.ds.Cases {
		if !p.in(i) {
			continue
		}
		row := make([]value.Value, len(names))
		for k, n := range names {
			row[k] = q.cell(c, n, p.local, last)
		}
		for _, v := range c.Values {
			last[v.Name] = v.Value
		}
		ids = append(ids, c.ID)
		rows = append(rows, row)
	}

	t := newTable(ByCase, names, ids, rows)
	if p.byVariable {
		return t.Transpose()
	}
	return t
}

func (q Query) cell(c record.IterationCase, name string, local bool, last map[string]value.Value) value.Value {
	if record.IsBookkeeping(name) {
		return bookkeeping(c, name)
	}
	if v, ok := c.Values.Get(name); ok {
		return v
	}
	if !local {
		if v, ok := last[name]; ok {
			return v
		}
	}
	return value.MissingFor(q.ds.KindOf(name))
}

func bookkeeping(c record.IterationCase, name string) value.Value {
	switch name {
	case record.FieldID:
		return value.NewText(c.ID)
	case record.FieldParentID:
		if c.ParentID == "" {
			return value.Missing()
		}
		return value.NewText(c.ParentID)
	case record.FieldDriverID:
		return value.NewText(c.DriverID)
	case record.FieldTimestamp:
		return value.NewReal(c.Timestamp)
	case record.FieldErrorStatus:
		if c.ErrorStatus == nil {
			return value.MissingFor(value.KindInt)
		}
		return value.NewInt(int64(*c.ErrorStatus))
	case record.FieldErrorMessage:
		if c.ErrorMessage == "" {
			return value.Missing()
		}
		return value.NewText(c.ErrorMessage)
	}
	return value.Missing()
}
