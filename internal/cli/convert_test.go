package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/casestore/internal/codec"
	"github.com/roach88/casestore/internal/config"
	"github.com/roach88/casestore/internal/dataset"
	"github.com/roach88/casestore/internal/value"
)

var datasetOpts = cmp.Options{
	cmp.Comparer(func(a, b value.Value) bool { return a.Equal(b) }),
	cmpopts.EquateEmpty(),
}

func assertSameRun(t *testing.T, want, got *dataset.Dataset) {
	t.Helper()
	if diff := cmp.Diff(want.Simulation, got.Simulation, datasetOpts); diff != "" {
		t.Errorf("simulation mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Drivers, got.Drivers, datasetOpts); diff != "" {
		t.Errorf("drivers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Cases, got.Cases, datasetOpts); diff != "" {
		t.Errorf("cases mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertBetweenFormats(t *testing.T) {
	in := writeFixture(t, codec.Text)
	dir := t.TempDir()
	bin := filepath.Join(dir, "run.bson")
	text := filepath.Join(dir, "run.json")

	out, err := execute(t, NewConvertCommand(&RootOptions{Format: "text"}), "--to", "binary", in, bin)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Wrote 8 case(s)")

	_, err = execute(t, NewConvertCommand(&RootOptions{Format: "text"}), "--to", "text", bin, text)
	require.NoError(t, err)

	want, err := dataset.LoadFile(in, codec.Text)
	require.NoError(t, err)
	gotBin, err := dataset.LoadFile(bin, codec.Binary)
	require.NoError(t, err)
	gotText, err := dataset.LoadFile(text, codec.Text)
	require.NoError(t, err)

	assertSameRun(t, want, gotBin)
	assertSameRun(t, want, gotText)
}

func TestConvertDefaultsToConfiguredFormat(t *testing.T) {
	in := writeFixture(t, codec.Binary)
	out := filepath.Join(t.TempDir(), "run.out")

	cfg := config.Default()
	cfg.Format = "text"
	_, err := execute(t, NewConvertCommand(&RootOptions{Format: "text", Config: cfg}), in, out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, codec.Text, codec.DetectFormat(data))
}

func TestConvertRejectsAutoTarget(t *testing.T) {
	in := writeFixture(t, codec.Text)

	_, err := execute(t, NewConvertCommand(&RootOptions{Format: "text"}), "--to", "auto", in, filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConvertBadInput(t *testing.T) {
	in := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(in, []byte(`{"simulation_info": {"uuid": "r"}, "iteration_case_1": `), 0644))
	out := filepath.Join(t.TempDir(), "out.bson")

	_, err := execute(t, NewConvertCommand(&RootOptions{Format: "json"}), in, out)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeLoadFailed)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "nothing is written when the input does not load")
}
