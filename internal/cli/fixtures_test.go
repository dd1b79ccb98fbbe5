package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/casestore/internal/codec"
	"github.com/roach88/casestore/internal/harness"
)

// nestedScenario is a top driver running a three-step local optimizer in
// each of its two iterations:
//
//	pos 1..3  case-0002..0004  localopt1, parent case-0001
//	pos 4     case-0001        driver
//	pos 5..7  case-0006..0008  localopt1, parent case-0005
//	pos 8     case-0005        driver
const nestedScenario = `
name: nested
model: sellar
uuid: sellar-run
driver:
  name: driver
  iterations: 2
  parameters:
    - {name: dis1.z, kind: array, start: 5, step: 1}
  objectives:
    - {expr: "dis1.obj", start: 30, step: -5}
  drivers:
    - id: localopt1
      name: localopt
      iterations: 3
      parameters:
        - {name: dis1.x, kind: real, start: 1, step: 0.5}
      responses:
        - {name: dis2.label, kind: text}
`

// writeFixture records the nested scenario to a file in format f.
func writeFixture(t *testing.T, f codec.Format) string {
	t.Helper()
	s, err := harness.ParseScenario([]byte(nestedScenario))
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = harness.Record(s, &buf, f)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "run."+f.String())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

// execute runs cmd with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeEmpty(path string) error {
	return os.WriteFile(path, nil, 0644)
}
