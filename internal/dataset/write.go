package dataset

import (
	"fmt"
	"io"

	"github.com/roach88/casestore/internal/codec"
	"github.com/roach88/casestore/internal/metrics"
)

// Write streams ds to w in format f, keeping every id. The simulation info
// comes first, then the driver infos, then the cases, each in file order.
// An empty dataset writes nothing.
func Write(w io.Writer, ds *Dataset, f codec.Format) error {
	enc, err := codec.NewEncoder(f)
	if err != nil {
		return err
	}
	if ds.Empty() {
		return nil
	}

	wrote := false
	emit := func(key string, kind codec.RecordKind, doc codec.Doc) error {
		b, err := enc.Encode(key, doc, !wrote)
		if err != nil {
			metrics.SerializationFailed(f.String())
			return fmt.Errorf("encode %s: %w", key, err)
		}
		if _, err := w.Write(b); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		wrote = true
		metrics.RecordWritten(f.String(), kind.String(), len(b))
		return nil
	}

	if err := emit(codec.SimulationKey, codec.KindSimulation, codec.SimulationDoc(ds.Simulation)); err != nil {
		return err
	}
	for i, d := range ds.Drivers {
		if err := emit(codec.DriverKey(i+1), codec.KindDriver, codec.DriverDoc(d)); err != nil {
			return err
		}
	}
	for i, c := range ds.Cases {
		if err := emit(codec.CaseKey(i+1), codec.KindCase, codec.CaseDoc(c)); err != nil {
			return err
		}
	}
	if trailer := enc.Trailer(wrote); len(trailer) > 0 {
		if _, err := w.Write(trailer); err != nil {
			return fmt.Errorf("write trailer: %w", err)
		}
	}
	return nil
}
