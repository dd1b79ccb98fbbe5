package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/casestore/internal/codec"
	"github.com/roach88/casestore/internal/dataset"
)

// ErrRunNotFound is returned when a run uuid is not in the archive.
var ErrRunNotFound = errors.New("run not found")

// RunSummary describes one archived run.
type RunSummary struct {
	UUID    string `json:"uuid"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Drivers int    `json:"drivers"`
	Cases   int    `json:"cases"`
	Failed  int    `json:"failed"`
}

// ListRuns returns every archived run in import order.
//
// Returns an empty slice (not nil) if the archive is empty.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.uuid, r.name, r.version,
			(SELECT COUNT(*) FROM drivers d WHERE d.run_uuid = r.uuid),
			(SELECT COUNT(*) FROM cases c WHERE c.run_uuid = r.uuid),
			(SELECT COUNT(*) FROM cases c WHERE c.run_uuid = r.uuid
				AND c.error_status IS NOT NULL AND c.error_status != 0)
		FROM runs r
		ORDER BY r.imported_seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.UUID, &r.Name, &r.Version, &r.Drivers, &r.Cases, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadDataset rebuilds an archived run. The stored documents are replayed
// as a text-format stream through dataset.Load, so the result is indexed
// and checked exactly like a file.
func (s *Store) ReadDataset(ctx context.Context, uuid string) (*dataset.Dataset, error) {
	var sim string
	err := s.db.QueryRowContext(ctx, `SELECT simulation FROM runs WHERE uuid = ?`, uuid).Scan(&sim)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, uuid)
	}
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", uuid, err)
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")
	writeRecord(&buf, codec.SimulationKey, sim, true)

	drivers, err := s.docs(ctx, `SELECT doc FROM drivers WHERE run_uuid = ? ORDER BY seq ASC`, uuid)
	if err != nil {
		return nil, fmt.Errorf("read drivers of %s: %w", uuid, err)
	}
	for i, doc := range drivers {
		writeRecord(&buf, codec.DriverKey(i+1), doc, false)
	}

	cases, err := s.docs(ctx, `SELECT doc FROM cases WHERE run_uuid = ? ORDER BY seq ASC`, uuid)
	if err != nil {
		return nil, fmt.Errorf("read cases of %s: %w", uuid, err)
	}
	for i, doc := range cases {
		writeRecord(&buf, codec.CaseKey(i+1), doc, false)
	}
	buf.WriteString("\n}\n")

	ds, err := dataset.Load(&buf, codec.Text)
	if err != nil {
		return nil, fmt.Errorf("rebuild run %s: %w", uuid, err)
	}
	return ds, nil
}

func writeRecord(buf *bytes.Buffer, key, doc string, first bool) {
	if !first {
		buf.WriteString(",\n")
	}
	fmt.Fprintf(buf, "%q: %s", key, doc)
}

func (s *Store) docs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Children returns the ids of the cases whose parent is caseID within a
// run, in file order.
//
// Returns an empty slice (not nil) if the case has no children.
func (s *Store) Children(ctx context.Context, uuid, caseID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM cases
		WHERE run_uuid = ? AND parent_id = ?
		ORDER BY seq ASC
	`, uuid, caseID)
	if err != nil {
		return nil, fmt.Errorf("query children: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children: %w", err)
	}
	return ids, nil
}
