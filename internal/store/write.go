package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/casestore/internal/codec"
	"github.com/roach88/casestore/internal/dataset"
)

// ErrNoRun is returned when importing a dataset without a simulation_info.
var ErrNoRun = errors.New("dataset has no simulation_info")

// Import writes a loaded dataset as one run, in a single transaction.
// Uses ON CONFLICT(uuid) DO NOTHING for idempotency: importing a run that is
// already archived changes nothing and reports false.
func (s *Store) Import(ctx context.Context, ds *dataset.Dataset) (bool, error) {
	if ds.Simulation.UUID == "" {
		return false, ErrNoRun
	}

	simJSON, err := codec.SimulationDoc(ds.Simulation).MarshalJSON()
	if err != nil {
		return false, fmt.Errorf("import run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("import run: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (uuid, name, version, imported_seq, simulation)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(imported_seq), 0) + 1 FROM runs), ?)
		ON CONFLICT(uuid) DO NOTHING
	`,
		ds.Simulation.UUID,
		ds.Simulation.Name,
		ds.Simulation.Version,
		string(simJSON),
	)
	if err != nil {
		return false, fmt.Errorf("import run %s: %w", ds.Simulation.UUID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, fmt.Errorf("import run %s: %w", ds.Simulation.UUID, err)
	} else if n == 0 {
		return false, nil
	}

	for i, d := range ds.Drivers {
		doc, err := codec.DriverDoc(d).MarshalJSON()
		if err != nil {
			return false, fmt.Errorf("import driver %s: %w", d.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO drivers (run_uuid, seq, id, name, doc)
			VALUES (?, ?, ?, ?, ?)
		`, ds.Simulation.UUID, i+1, d.ID, d.Name, string(doc)); err != nil {
			return false, fmt.Errorf("import driver %s: %w", d.ID, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cases (run_uuid, seq, id, parent_id, driver_id, timestamp, error_status, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return false, fmt.Errorf("import cases: %w", err)
	}
	defer stmt.Close()

	for i, c := range ds.Cases {
		doc, err := codec.CaseDoc(c).MarshalJSON()
		if err != nil {
			return false, fmt.Errorf("import case %s: %w", c.ID, err)
		}
		var status sql.NullInt64
		if c.ErrorStatus != nil {
			status = sql.NullInt64{Int64: int64(*c.ErrorStatus), Valid: true}
		}
		parent := sql.NullString{String: c.ParentID, Valid: c.ParentID != ""}
		if _, err := stmt.ExecContext(ctx,
			ds.Simulation.UUID, i+1, c.ID, parent, c.DriverID, c.Timestamp, status, string(doc),
		); err != nil {
			return false, fmt.Errorf("import case %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("import run %s: commit: %w", ds.Simulation.UUID, err)
	}
	return true, nil
}
