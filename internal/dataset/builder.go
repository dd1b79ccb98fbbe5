package dataset

import (
	"fmt"
	"slices"

	"github.com/roach88/casestore/internal/codec"
	"github.com/roach88/casestore/internal/value"
)

// Builder assembles a Dataset from records fed in file order. Load uses it
// for both wire formats; the archive uses it to rebuild stored runs.
type Builder struct {
	ds      *Dataset
	started bool
	err     error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{ds: newDataset()}
}

func formatErr(key, reason string, err error) *FormatError {
	return &FormatError{Record: key, Offset: -1, Reason: reason, Err: err}
}

// Add appends one record. Keys must arrive in sequence: simulation_info
// first, then driver_info_k and iteration_case_k with each k one more than
// the last of its kind. A case must reference a driver added earlier and
// name only variables listed in simulation_info.
// After the first error the Builder rejects everything.
func (b *Builder) Add(key string, doc codec.Doc) error {
	if b.err != nil {
		return b.err
	}
	if err := b.add(key, doc); err != nil {
		b.err = err
		return err
	}
	return nil
}

func (b *Builder) add(key string, doc codec.Doc) *FormatError {
	kind, n, err := codec.ParseKey(key)
	if err != nil {
		return formatErr(key, "unknown top-level key", err)
	}
	ds := b.ds

	if !b.started {
		if kind != codec.KindSimulation {
			return formatErr(key, "first record is not simulation_info", nil)
		}
		info, err := codec.DecodeSimulation(doc)
		if err != nil {
			return formatErr(key, "bad simulation_info", err)
		}
		ds.Simulation = info
		for _, name := range info.Variables {
			b.addName(name)
		}
		b.started = true
		return nil
	}

	switch kind {
	case codec.KindSimulation:
		return formatErr(key, "second simulation_info", nil)

	case codec.KindDriver:
		if n != len(ds.Drivers)+1 {
			return formatErr(key, fmt.Sprintf("out of sequence, expected %s", codec.DriverKey(len(ds.Drivers)+1)), nil)
		}
		info, err := codec.DecodeDriver(doc)
		if err != nil {
			return formatErr(key, "bad driver_info", err)
		}
		if _, dup := ds.driverIdx[info.ID]; dup {
			return formatErr(key, fmt.Sprintf("duplicate driver id %q", info.ID), nil)
		}
		di := len(ds.Drivers)
		ds.Drivers = append(ds.Drivers, info)
		ds.driverIdx[info.ID] = di
		ds.named[info.Name] = append(ds.named[info.Name], di)
		ds.byDriver = append(ds.byDriver, nil)
		ds.subDrivers = append(ds.subDrivers, nil)

	case codec.KindCase:
		if n != len(ds.Cases)+1 {
			return formatErr(key, fmt.Sprintf("out of sequence, expected %s", codec.CaseKey(len(ds.Cases)+1)), nil)
		}
		c, err := codec.DecodeCase(doc)
		if err != nil {
			return formatErr(key, "bad iteration_case", err)
		}
		if _, dup := ds.caseIdx[c.ID]; dup {
			return formatErr(key, fmt.Sprintf("duplicate case id %q", c.ID), nil)
		}
		di, ok := ds.driverIdx[c.DriverID]
		if !ok {
			return formatErr(key, fmt.Sprintf("case %q references unknown driver %q", c.ID, c.DriverID), nil)
		}
		for _, v := range c.Values {
			if _, ok := ds.known[v.Name]; !ok {
				return formatErr(key, fmt.Sprintf("case %q value %q is not in the simulation_info variables", c.ID, v.Name), nil)
			}
		}
		ci := len(ds.Cases)
		ds.Cases = append(ds.Cases, c)
		ds.caseIdx[c.ID] = ci
		ds.caseDriver = append(ds.caseDriver, di)
		ds.byDriver[di] = append(ds.byDriver[di], ci)
		for _, v := range c.Values {
			if _, known := ds.kinds[v.Name]; !known && v.Value.Kind() != value.KindUndefined {
				ds.kinds[v.Name] = v.Value.Kind()
			}
		}
	}
	return nil
}

func (b *Builder) addName(name string) {
	if _, ok := b.ds.known[name]; ok {
		return
	}
	b.ds.known[name] = struct{}{}
	b.ds.names = append(b.ds.names, name)
}

// Finish resolves parent references and derives the adjacency index.
// Parents may appear anywhere in the file, since a driver writes its own
// case after the cases of the drivers it invoked.
func (b *Builder) Finish() (*Dataset, error) {
	if b.err != nil {
		return nil, b.err
	}
	ds := b.ds
	n := len(ds.Cases)
	ds.parent = make([]int, n)
	ds.children = make([][]int, n)
	ds.root = make([]int, n)

	for i, c := range ds.Cases {
		if c.ParentID == "" {
			ds.parent[i] = -1
			continue
		}
		p, ok := ds.caseIdx[c.ParentID]
		if !ok {
			return nil, formatErr(codec.CaseKey(i+1), fmt.Sprintf("case %q references unknown parent %q", c.ID, c.ParentID), nil)
		}
		ds.parent[i] = p
		ds.children[p] = append(ds.children[p], i)

		pd, cd := ds.caseDriver[p], ds.caseDriver[i]
		if pd != cd && !slices.Contains(ds.subDrivers[pd], cd) {
			ds.subDrivers[pd] = append(ds.subDrivers[pd], cd)
		}
	}
	for _, subs := range ds.subDrivers {
		slices.Sort(subs)
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, n)
	var resolve func(i int) error
	resolve = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return formatErr(codec.CaseKey(i+1), fmt.Sprintf("case %q is its own ancestor", ds.Cases[i].ID), nil)
		}
		state[i] = visiting
		if p := ds.parent[i]; p < 0 {
			ds.root[i] = i
		} else {
			if err := resolve(p); err != nil {
				return err
			}
			ds.root[i] = ds.root[p]
		}
		state[i] = done
		return nil
	}
	for i := range ds.Cases {
		if err := resolve(i); err != nil {
			return nil, err
		}
	}

	b.err = fmt.Errorf("builder already finished")
	return ds, nil
}
