// Package dataset loads a case file into an immutable in-memory index.
//
// Records live in arenas (Drivers and Cases slices in file order) and every
// cross reference is resolved once, at load time, into index-based
// adjacency: children by parent, cases by driver, sub-drivers by driver and
// the lineage root of every case. File order is the canonical iteration
// order used by every query.
//
// Thread-safety: a Dataset is never modified after Load returns and may be
// read from any number of goroutines. Callers must not modify the exported
// slices.
package dataset

import (
	"github.com/roach88/casestore/internal/record"
	"github.com/roach88/casestore/internal/value"
)

// Dataset is a loaded case file.
type Dataset struct {
	Simulation record.SimulationInfo
	Drivers    []record.DriverInfo    // file order
	Cases      []record.IterationCase // file order = iteration order

	caseIdx   map[string]int
	driverIdx map[string]int
	named     map[string][]int // driver name -> driver indices

	caseDriver []int   // case -> driver index
	parent     []int   // case -> parent case index, -1 at top level
	children   [][]int // case -> child case indices
	root       []int   // case -> root case index
	byDriver   [][]int // driver -> case indices
	subDrivers [][]int // driver -> drivers whose cases its cases invoked

	kinds map[string]value.Kind
	names []string
	known map[string]struct{}
}

func newDataset() *Dataset {
	return &Dataset{
		caseIdx:   make(map[string]int),
		driverIdx: make(map[string]int),
		named:     make(map[string][]int),
		kinds:     make(map[string]value.Kind),
		known:     make(map[string]struct{}),
	}
}

// Len returns the number of iteration cases.
func (d *Dataset) Len() int { return len(d.Cases) }

// Empty reports whether the file held no records at all.
func (d *Dataset) Empty() bool {
	return d.Simulation.UUID == "" && len(d.Drivers) == 0 && len(d.Cases) == 0
}

// Case returns the case with the given id.
func (d *Dataset) Case(id string) (record.IterationCase, bool) {
	i, ok := d.caseIdx[id]
	if !ok {
		return record.IterationCase{}, false
	}
	return d.Cases[i], true
}

// Driver returns the driver with the given id.
func (d *Dataset) Driver(id string) (record.DriverInfo, bool) {
	i, ok := d.driverIdx[id]
	if !ok {
		return record.DriverInfo{}, false
	}
	return d.Drivers[i], true
}

// DriversNamed returns every driver instance with the given name, in file
// order.
func (d *Dataset) DriversNamed(name string) []record.DriverInfo {
	idx := d.named[name]
	out := make([]record.DriverInfo, len(idx))
	for i, di := range idx {
		out[i] = d.Drivers[di]
	}
	return out
}

// Position returns the 1-based position of a case in iteration order.
func (d *Dataset) Position(id string) (int, bool) {
	i, ok := d.caseIdx[id]
	return i + 1, ok
}

// Children returns the ids of the cases whose parent is id, in file order.
func (d *Dataset) Children(id string) []string {
	i, ok := d.caseIdx[id]
	if !ok {
		return []string{}
	}
	return d.caseIDs(d.children[i])
}

// Parent returns the parent id of a case, empty at top level.
func (d *Dataset) Parent(id string) string {
	c, _ := d.Case(id)
	return c.ParentID
}

// Root returns the id of the top-level case at the head of id's lineage.
func (d *Dataset) Root(id string) (string, bool) {
	i, ok := d.caseIdx[id]
	if !ok {
		return "", false
	}
	return d.Cases[d.root[i]].ID, true
}

// RootDriver returns the id of the driver that produced the root of id's
// lineage. Cases sharing a root driver belong to the same run.
func (d *Dataset) RootDriver(id string) (string, bool) {
	i, ok := d.caseIdx[id]
	if !ok {
		return "", false
	}
	return d.Drivers[d.caseDriver[d.root[i]]].ID, true
}

// CasesOfDriver returns the ids of the cases a driver produced, in file
// order.
func (d *Dataset) CasesOfDriver(driverID string) []string {
	i, ok := d.driverIdx[driverID]
	if !ok {
		return []string{}
	}
	return d.caseIDs(d.byDriver[i])
}

// SubDrivers returns the ids of the drivers invoked directly from the given
// driver's iterations, in file order.
func (d *Dataset) SubDrivers(driverID string) []string {
	i, ok := d.driverIdx[driverID]
	if !ok {
		return []string{}
	}
	out := make([]string, len(d.subDrivers[i]))
	for k, di := range d.subDrivers[i] {
		out[k] = d.Drivers[di].ID
	}
	return out
}

// Subtree returns the given driver ids plus every driver transitively
// invoked from them, de-duplicated, in file order.
func (d *Dataset) Subtree(driverIDs ...string) []string {
	seen := make([]bool, len(d.Drivers))
	var stack []int
	for _, id := range driverIDs {
		if i, ok := d.driverIdx[id]; ok && !seen[i] {
			seen[i] = true
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, sub := range d.subDrivers[i] {
			if !seen[sub] {
				seen[sub] = true
				stack = append(stack, sub)
			}
		}
	}
	var out []string
	for i, ok := range seen {
		if ok {
			out = append(out, d.Drivers[i].ID)
		}
	}
	return out
}

// KindOf returns the kind of the first defined value recorded under name,
// or KindUndefined if none was recorded.
func (d *Dataset) KindOf(name string) value.Kind {
	return d.kinds[name]
}

// Names returns every known variable name: the simulation catalog in order.
func (d *Dataset) Names() []string {
	return append([]string(nil), d.names...)
}

// Known reports whether name is in the simulation catalog.
func (d *Dataset) Known(name string) bool {
	_, ok := d.known[name]
	return ok
}

func (d *Dataset) caseIDs(idx []int) []string {
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = d.Cases[i].ID
	}
	return out
}
