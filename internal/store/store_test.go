package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/roach88/casestore/internal/codec"
	"github.com/roach88/casestore/internal/dataset"
	"github.com/roach88/casestore/internal/harness"
	"github.com/roach88/casestore/internal/record"
	"github.com/roach88/casestore/internal/value"
)

const nested = `
name: nested
model: sellar
uuid: sellar-run
constants:
  - {name: dis1.c, kind: real, start: 0.5}
driver:
  name: driver
  iterations: 2
  parameters:
    - {name: dis1.z, kind: array, start: 5, step: 1}
  objectives:
    - {expr: "dis1.obj", start: 30, step: -5}
  fail_at: [2]
  drivers:
    - id: localopt1
      name: localopt
      iterations: 3
      parameters:
        - {name: dis1.x, kind: real, start: 1, step: 0.5}
      responses:
        - {name: dis2.n, kind: int, start: 4}
`

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func loadNested(t *testing.T, f codec.Format) *dataset.Dataset {
	t.Helper()
	s, err := harness.ParseScenario([]byte(nested))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := harness.Record(s, &buf, f); err != nil {
		t.Fatal(err)
	}
	ds, err := dataset.Load(&buf, f)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"foreign_keys": "1",
		"busy_timeout": "5000",
		"user_version": strconv.Itoa(SchemaVersion),
	} {
		got, err := s.pragma(name)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("PRAGMA %s = %q, want %q", name, got, want)
		}
	}
}

func TestOpen_MigratesOldArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`DROP INDEX idx_cases_failed; PRAGMA user_version = 1`); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("Open() of a v1 archive failed: %v", err)
	}
	defer s.Close()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_cases_failed'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("idx_cases_failed not recreated")
	}
}

func TestOpen_RejectsNewerArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion+1)); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("Open() of an archive from a newer version succeeded")
	}
}

func TestImportAndReadBack(t *testing.T) {
	for _, f := range []codec.Format{codec.Text, codec.Binary} {
		t.Run(f.String(), func(t *testing.T) {
			ctx := context.Background()
			s := createTestStore(t)
			ds := loadNested(t, f)

			imported, err := s.Import(ctx, ds)
			if err != nil {
				t.Fatalf("Import() failed: %v", err)
			}
			if !imported {
				t.Fatal("Import() = false on first import")
			}

			got, err := s.ReadDataset(ctx, "sellar-run")
			if err != nil {
				t.Fatalf("ReadDataset() failed: %v", err)
			}

			opts := cmp.Options{
				cmp.Comparer(func(a, b value.Value) bool { return a.Equal(b) }),
				cmpopts.EquateEmpty(),
			}
			if diff := cmp.Diff(ds.Simulation, got.Simulation, opts); diff != "" {
				t.Errorf("simulation mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(ds.Drivers, got.Drivers, opts); diff != "" {
				t.Errorf("drivers mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(ds.Cases, got.Cases, opts); diff != "" {
				t.Errorf("cases mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestImportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	ds := loadNested(t, codec.Text)

	if _, err := s.Import(ctx, ds); err != nil {
		t.Fatal(err)
	}
	imported, err := s.Import(ctx, ds)
	if err != nil {
		t.Fatalf("second Import() failed: %v", err)
	}
	if imported {
		t.Error("second Import() = true, want false")
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRuns() returned %d runs, want 1", len(runs))
	}
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if runs == nil || len(runs) != 0 {
		t.Fatalf("ListRuns() on empty archive = %#v, want empty slice", runs)
	}

	if _, err := s.Import(ctx, loadNested(t, codec.Binary)); err != nil {
		t.Fatal(err)
	}
	runs, err = s.ListRuns(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []RunSummary{{
		UUID:    "sellar-run",
		Name:    "sellar",
		Version: record.FormatVersion,
		Drivers: 2,
		Cases:   8,
		Failed:  1,
	}}
	if diff := cmp.Diff(want, runs); diff != "" {
		t.Errorf("ListRuns() mismatch (-want +got):\n%s", diff)
	}
}

func TestChildren(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	ds := loadNested(t, codec.Text)
	if _, err := s.Import(ctx, ds); err != nil {
		t.Fatal(err)
	}

	for _, top := range []string{"case-0001", "case-0005"} {
		got, err := s.Children(ctx, "sellar-run", top)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(ds.Children(top), got); diff != "" {
			t.Errorf("Children(%s) mismatch (-want +got):\n%s", top, diff)
		}
	}

	got, err := s.Children(ctx, "sellar-run", "case-0002")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Children of a leaf = %#v, want empty slice", got)
	}
}

func TestReadDataset_NotFound(t *testing.T) {
	_, err := createTestStore(t).ReadDataset(context.Background(), "nope")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("ReadDataset() error = %v, want ErrRunNotFound", err)
	}
}

func TestImport_EmptyDataset(t *testing.T) {
	ds, err := dataset.Load(bytes.NewReader(nil), codec.Auto)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := createTestStore(t).Import(context.Background(), ds); !errors.Is(err, ErrNoRun) {
		t.Fatalf("Import() error = %v, want ErrNoRun", err)
	}
}

func TestImport_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := createTestStore(t)
	if _, err := s.Import(ctx, loadNested(t, codec.Text)); err == nil {
		t.Fatal("Import() with cancelled context succeeded")
	}
	runs, err := s.ListRuns(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("cancelled import left %d runs", len(runs))
	}
}
