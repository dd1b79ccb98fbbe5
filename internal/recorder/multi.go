package recorder

import (
	"errors"

	"github.com/roach88/casestore/internal/record"
)

type multiRecorder []CaseRecorder

// Multi returns a CaseRecorder that forwards every write to each of rs, in
// order. Every recorder sees every write; the errors are joined.
func Multi(rs ...CaseRecorder) CaseRecorder {
	return multiRecorder(append([]CaseRecorder(nil), rs...))
}

func (m multiRecorder) each(fn func(CaseRecorder) error) error {
	var errs []error
	for _, r := range m {
		if err := fn(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiRecorder) WriteSimulationInfo(s Simulation) error {
	return m.each(func(r CaseRecorder) error { return r.WriteSimulationInfo(s) })
}

func (m multiRecorder) WriteDriverInfo(d record.DriverInfo) error {
	return m.each(func(r CaseRecorder) error { return r.WriteDriverInfo(d) })
}

func (m multiRecorder) WriteCase(c Case) error {
	return m.each(func(r CaseRecorder) error { return r.WriteCase(c) })
}

func (m multiRecorder) Close() error {
	return m.each(func(r CaseRecorder) error { return r.Close() })
}
