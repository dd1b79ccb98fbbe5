package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/casestore/internal/codec"
)

func TestVarsCommand(t *testing.T) {
	path := writeFixture(t, codec.Binary)

	out, err := execute(t, NewVarsCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "_id", lines[0])
	assert.Contains(t, lines, "dis1.x")
	assert.Contains(t, lines, "_pseudo_0")
}

func TestVarsCommandJSON(t *testing.T) {
	path := writeFixture(t, codec.Text)

	out, err := execute(t, NewVarsCommand(&RootOptions{Format: "json"}), "--driver", "localopt", path)
	require.NoError(t, err)

	var resp struct {
		Status string   `json:"status"`
		Data   []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Contains(t, resp.Data, "dis2.label")
	assert.NotContains(t, resp.Data, "dis1.z", "driver-level parameters are out of a sub-driver's scope")
}

func TestVarsCommandUnknownDriver(t *testing.T) {
	path := writeFixture(t, codec.Text)

	out, err := execute(t, NewVarsCommand(&RootOptions{Format: "text"}), "--driver", "nope", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeScope)
	assert.Contains(t, out, "Error [E003]")
}

func TestVarsCommandMissingFile(t *testing.T) {
	_, err := execute(t, NewVarsCommand(&RootOptions{Format: "text"}), "/nonexistent/run.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestFetchCommandText(t *testing.T) {
	path := writeFixture(t, codec.Text)

	out, err := execute(t, NewFetchCommand(&RootOptions{Format: "text"}),
		"--driver", "localopt", "--vars", "dis1.x", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 7, "header plus one row per local optimizer case")
	assert.Equal(t, []string{"case", "dis1.x"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"case-0002", "1"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"case-0008", "3.5"}, strings.Fields(lines[6]))
}

func TestFetchCommandCarriesForward(t *testing.T) {
	path := writeFixture(t, codec.Text)

	out, err := execute(t, NewFetchCommand(&RootOptions{Format: "text"}),
		"--vars", "dis1.x,dis2.label", "--parent", "case-0001", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"case-0001", "2", "dis2.label-3"}, strings.Fields(lines[4]))

	out, err = execute(t, NewFetchCommand(&RootOptions{Format: "text"}),
		"--vars", "dis1.x,dis2.label", "--parent", "case-0001", "--local", path)
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"case-0001", "NaN", "-"}, strings.Fields(lines[4]))
}

func TestFetchCommandJSONByVariable(t *testing.T) {
	path := writeFixture(t, codec.Binary)

	out, err := execute(t, NewFetchCommand(&RootOptions{Format: "json"}),
		"--vars", "dis1.x,dis2.label", "--local", "--by-variable", path)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Query   string  `json:"query"`
			Layout  string  `json:"layout"`
			Names   []string `json:"names"`
			CaseIDs []string `json:"case_ids"`
			Rows    [][]any  `json:"rows"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "by_variable", resp.Data.Layout)
	assert.Equal(t, []string{"dis1.x", "dis2.label"}, resp.Data.Names)
	require.Len(t, resp.Data.CaseIDs, 8)
	require.Len(t, resp.Data.Rows, 2)
	require.Len(t, resp.Data.Rows[0], 8)

	assert.Equal(t, 1.0, resp.Data.Rows[0][0])
	assert.Equal(t, map[string]any{"$numberDouble": "NaN"}, resp.Data.Rows[0][3], "the driver case has no local dis1.x")
	assert.Nil(t, resp.Data.Rows[1][3])
	assert.Contains(t, resp.Data.Query, "by_variable()")
}

func TestFetchCommandUnknownVariable(t *testing.T) {
	path := writeFixture(t, codec.Text)

	_, err := execute(t, NewFetchCommand(&RootOptions{Format: "text"}), "--vars", "nope", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeScope)
}
