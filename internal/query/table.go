package query

import (
	"github.com/roach88/casestore/internal/value"
)

// Layout says whether a Table holds one series per case or per variable.
type Layout int

const (
	ByCase Layout = iota
	ByVariable
)

func (l Layout) String() string {
	if l == ByVariable {
		return "by_variable"
	}
	return "by_case"
}

// Table is a materialized query result. In ByCase layout series i is the
// row of case i; in ByVariable layout series i is the column of variable i.
// Tables are immutable.
type Table struct {
	layout  Layout
	names   []string
	ids     []string
	data    [][]value.Value
	nameIdx map[string]int
	idIdx   map[string]int
}

func newTable(layout Layout, names, ids []string, data [][]value.Value) Table {
	if names == nil {
		names = []string{}
	}
	if ids == nil {
		ids = []string{}
	}
	if data == nil {
		data = [][]value.Value{}
	}
	return Table{
		layout:  layout,
		names:   names,
		ids:     ids,
		data:    data,
		nameIdx: indexOf(names),
		idIdx:   indexOf(ids),
	}
}

func indexOf(keys []string) map[string]int {
	idx := make(map[string]int, len(keys))
	for i, k := range keys {
		if _, dup := idx[k]; !dup {
			idx[k] = i
		}
	}
	return idx
}

// Layout returns the table layout.
func (t Table) Layout() Layout { return t.layout }

// Names returns the variable names, in projection order.
func (t Table) Names() []string { return append([]string(nil), t.names...) }

// CaseIDs returns the case ids, in iteration order.
func (t Table) CaseIDs() []string { return append([]string(nil), t.ids...) }

// Len returns the number of series: cases for ByCase, variables for
// ByVariable.
func (t Table) Len() int { return len(t.data) }

// At returns series i. A row is keyed by variable name, a column by case id.
func (t Table) At(i int) Series {
	if t.layout == ByVariable {
		return Series{keys: t.ids, index: t.idIdx, values: t.data[i]}
	}
	return Series{keys: t.names, index: t.nameIdx, values: t.data[i]}
}

// Column returns the values of one variable across every case, whatever
// the layout.
func (t Table) Column(name string) (Series, bool) {
	j, ok := t.nameIdx[name]
	if !ok {
		return Series{}, false
	}
	if t.layout == ByVariable {
		return t.At(j), true
	}
	vals := make([]value.Value, len(t.data))
	for i, row := range t.data {
		vals[i] = row[j]
	}
	return Series{keys: t.ids, index: t.idIdx, values: vals}, true
}

// Row returns the values of one case, whatever the layout.
func (t Table) Row(caseID string) (Series, bool) {
	i, ok := t.idIdx[caseID]
	if !ok {
		return Series{}, false
	}
	if t.layout == ByCase {
		return t.At(i), true
	}
	vals := make([]value.Value, len(t.data))
	for j, col := range t.data {
		vals[j] = col[i]
	}
	return Series{keys: t.names, index: t.nameIdx, values: vals}, true
}

// Transpose swaps the layout. Transposing twice gives back an equal table.
func (t Table) Transpose() Table {
	outer, inner := len(t.ids), len(t.names)
	if t.layout == ByVariable {
		outer, inner = inner, outer
	}
	data := make([][]value.Value, inner)
	for j := range data {
		data[j] = make([]value.Value, outer)
		for i := 0; i < outer; i++ {
			data[j][i] = t.data[i][j]
		}
	}
	layout := ByVariable
	if t.layout == ByVariable {
		layout = ByCase
	}
	return Table{
		layout:  layout,
		names:   t.names,
		ids:     t.ids,
		data:    data,
		nameIdx: t.nameIdx,
		idIdx:   t.idIdx,
	}
}

// Equal reports whether t and o have the same layout, names, case ids and
// values. Missing markers compare equal.
func (t Table) Equal(o Table) bool {
	if t.layout != o.layout || !equalStrings(t.names, o.names) || !equalStrings(t.ids, o.ids) {
		return false
	}
	if len(t.data) != len(o.data) {
		return false
	}
	for i := range t.data {
		if len(t.data[i]) != len(o.data[i]) {
			return false
		}
		for j := range t.data[i] {
			if !t.data[i][j].Equal(o.data[i][j]) {
				return false
			}
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Series is one row or column of a Table.
type Series struct {
	keys   []string
	index  map[string]int
	values []value.Value
}

// Len returns the number of values.
func (s Series) Len() int { return len(s.values) }

// At returns value i.
func (s Series) At(i int) value.Value { return s.values[i] }

// Get returns the value under key: a variable name for rows, a case id for
// columns.
func (s Series) Get(key string) (value.Value, bool) {
	i, ok := s.index[key]
	if !ok {
		return value.Value{}, false
	}
	return s.values[i], true
}

// Keys returns the key of each value.
func (s Series) Keys() []string { return append([]string(nil), s.keys...) }

// Values returns a copy of the values.
func (s Series) Values() []value.Value { return append([]value.Value(nil), s.values...) }

// Floats returns the numeric reading of every value, NaN where a value is
// not numeric.
func (s Series) Floats() []float64 {
	out := make([]float64, len(s.values))
	for i, v := range s.values {
		out[i] = v.Float()
	}
	return out
}
