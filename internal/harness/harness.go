package harness

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/roach88/casestore/internal/codec"
	"github.com/roach88/casestore/internal/record"
	"github.com/roach88/casestore/internal/recorder"
	"github.com/roach88/casestore/internal/testutil"
)

// IterNameSuffix is appended to a driver name to form the variable holding
// its iteration coordinate.
const IterNameSuffix = ".workflow.itername"

// Record runs a scenario into w with a deterministic recorder and closes
// the recorder.
func Record(s *Scenario, w io.Writer, f codec.Format, opts ...recorder.Option) (*Result, error) {
	opts = append([]recorder.Option{
		recorder.WithClock(testutil.NewDeterministicClock()),
		recorder.WithIDGenerator(testutil.NewSequentialIDs("run")),
	}, opts...)
	rec, err := recorder.New(w, f, opts...)
	if err != nil {
		return nil, err
	}
	res, err := Run(s, rec)
	if cerr := rec.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		return nil, err
	}
	res.RunID = rec.RunID()
	res.Variables = rec.Catalog()
	return res, nil
}

// Run drives rec through the scenario. It writes simulation_info, every
// driver_info up front, then the cases. The caller closes rec.
func Run(s *Scenario, rec recorder.CaseRecorder) (*Result, error) {
	r := &runner{
		rec:   rec,
		ids:   testutil.NewSequentialIDs("case"),
		res:   NewResult(),
		plans: make(map[*DriverSpec]*driverPlan),
		count: make(map[*DriverSpec]int),
	}
	r.res.RunID = s.UUID

	var exprs []record.Expression
	var catalog []string
	r.prepare(&s.Driver, &exprs, &catalog)

	constants := make([]recorder.Field, len(s.Constants))
	for i, c := range s.Constants {
		constants[i] = recorder.F(c.Name, c.value(0))
	}
	err := rec.WriteSimulationInfo(recorder.Simulation{
		UUID:        s.UUID,
		Name:        s.Model,
		Variables:   catalog,
		Constants:   constants,
		Expressions: exprs,
	})
	if err != nil {
		return nil, fmt.Errorf("simulation_info: %w", err)
	}
	if err := r.writeDrivers(&s.Driver); err != nil {
		return nil, err
	}
	if err := r.runDriver(&s.Driver, "", "1"); err != nil {
		return nil, err
	}

	r.res.check(s.Expect)
	return r.res, nil
}

type driverPlan struct {
	id          string
	itername    string
	objectives  []string // pseudo names
	constraints []string
	info        record.DriverInfo
}

type runner struct {
	rec    recorder.CaseRecorder
	ids    *testutil.SequentialIDs
	res    *Result
	plans  map[*DriverSpec]*driverPlan
	count  map[*DriverSpec]int
	pseudo int
}

// prepare assigns pseudo names depth-first and collects the catalog.
func (r *runner) prepare(d *DriverSpec, exprs *[]record.Expression, catalog *[]string) {
	p := &driverPlan{id: d.ID, itername: d.Name + IterNameSuffix}
	if p.id == "" {
		p.id = d.Name
	}
	add := func(kind record.ExpressionKind, specs []ExprSpec) []string {
		names := make([]string, len(specs))
		for i, e := range specs {
			name := fmt.Sprintf("%s%d", record.PseudoPrefix, r.pseudo)
			r.pseudo++
			names[i] = name
			*exprs = append(*exprs, record.Expression{Name: name, Expr: e.Expr, Kind: kind, PcompName: name})
		}
		return names
	}
	p.objectives = add(record.Objective, d.Objectives)
	p.constraints = add(record.Constraint, d.Constraints)

	recording := []string{p.itername}
	recording = append(recording, varNames(d.Parameters)...)
	recording = append(recording, p.objectives...)
	recording = append(recording, p.constraints...)
	recording = append(recording, varNames(d.Responses)...)
	p.info = record.DriverInfo{
		ID:          p.id,
		Name:        d.Name,
		Parameters:  varNames(d.Parameters),
		Objectives:  p.objectives,
		Constraints: p.constraints,
		Responses:   varNames(d.Responses),
		Recording:   recording,
	}
	for _, n := range recording {
		if !slices.Contains(*catalog, n) {
			*catalog = append(*catalog, n)
		}
	}
	r.plans[d] = p

	for i := range d.Drivers {
		r.prepare(&d.Drivers[i], exprs, catalog)
	}
}

func (r *runner) writeDrivers(d *DriverSpec) error {
	p := r.plans[d]
	if err := r.rec.WriteDriverInfo(p.info); err != nil {
		return fmt.Errorf("driver %s: %w", p.id, err)
	}
	for i := range d.Drivers {
		if err := r.writeDrivers(&d.Drivers[i]); err != nil {
			return err
		}
	}
	return nil
}

// runDriver records every iteration of d. Sub-driver cases are written
// before the iteration that invoked them.
func (r *runner) runDriver(d *DriverSpec, parentID, coord string) error {
	p := r.plans[d]
	for it := 1; it <= d.Iterations; it++ {
		id := r.ids.Generate()
		here := fmt.Sprintf("%s-%s.%d", coord, d.Name, it)
		for i := range d.Drivers {
			if err := r.runDriver(&d.Drivers[i], id, here); err != nil {
				return err
			}
		}

		n := r.count[d]
		r.count[d]++
		values := []recorder.Field{recorder.F(p.itername, here)}
		for _, v := range d.Parameters {
			values = append(values, recorder.F(v.Name, v.value(n)))
		}
		for i, e := range d.Objectives {
			values = append(values, recorder.F(p.objectives[i], e.value(n)))
		}
		for i, e := range d.Constraints {
			values = append(values, recorder.F(p.constraints[i], e.value(n)))
		}
		for _, v := range d.Responses {
			values = append(values, recorder.F(v.Name, v.value(n)))
		}

		c := recorder.Case{ID: id, ParentID: parentID, DriverID: p.id, Values: values}
		if slices.Contains(d.FailAt, it) {
			status := 1
			c.ErrorStatus = &status
			c.ErrorMessage = fmt.Sprintf("iteration %d failed", it)
			r.res.Failed++
		}
		if err := r.rec.WriteCase(c); err != nil {
			return fmt.Errorf("case %s: %w", id, err)
		}
		r.res.Cases = append(r.res.Cases, id)
		r.res.Drivers[p.id]++
	}
	return nil
}

func varNames(specs []VarSpec) []string {
	names := make([]string, len(specs))
	for i, v := range specs {
		names[i] = v.Name
	}
	return names
}

func (v VarSpec) value(n int) any {
	x := v.Start + float64(n)*v.Step
	switch v.Kind {
	case KindInt:
		return int64(x)
	case KindText:
		return fmt.Sprintf("%s-%d", v.Name, n+1)
	case KindBool:
		return n%2 == 1
	case KindArray:
		return []float64{x, x + 1}
	}
	return x
}

func (e ExprSpec) value(n int) any {
	return e.Start + float64(n)*e.Step
}
