package schema

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/casestore/internal/codec"
	"github.com/roach88/casestore/internal/harness"
	"github.com/roach88/casestore/internal/value"
)

const scenario = `
name: schema
model: m
constants:
  - {name: m.c, kind: real, start: 2}
driver:
  name: driver
  iterations: 2
  parameters:
    - {name: m.x, kind: array, start: 1}
  objectives:
    - {expr: "m.f", start: 1}
  fail_at: [1]
  drivers:
    - name: sub
      iterations: 2
      responses:
        - {name: m.s, kind: text}
`

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	require.NoError(t, err)
	return v
}

func TestRecordedFilesAreValid(t *testing.T) {
	s, err := harness.ParseScenario([]byte(scenario))
	require.NoError(t, err)

	for _, f := range []codec.Format{codec.Text, codec.Binary} {
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			_, err := harness.Record(s, &buf, f)
			require.NoError(t, err)

			problems, n, err := newValidator(t).ValidateReader(&buf, codec.Auto)
			require.NoError(t, err)
			assert.Equal(t, 1+2+6, n)
			assert.Empty(t, problems)
		})
	}
}

func TestValidateCase(t *testing.T) {
	v := newValidator(t)
	valid := codec.Doc{
		{Key: "_id", Val: "c1"},
		{Key: "_parent_id", Val: nil},
		{Key: "_driver_id", Val: "d"},
		{Key: "timestamp", Val: value.NewReal(1.5)},
		{Key: "error_status", Val: nil},
		{Key: "error_message", Val: nil},
		{Key: "a.nan", Val: value.NewReal(math.NaN())},
		{Key: "a.seq", Val: value.MustSeq(value.NewInt(1), value.MustSeq(value.NewText("x")))},
	}
	assert.Empty(t, v.Validate("iteration_case_1", valid))

	tests := []struct {
		name  string
		doc   codec.Doc
		field string
	}{
		{"missing driver", codec.Doc{{Key: "_id", Val: "c1"}, {Key: "timestamp", Val: int64(1)}}, "_driver_id"},
		{"empty id", codec.Doc{{Key: "_id", Val: ""}, {Key: "_driver_id", Val: "d"}, {Key: "timestamp", Val: int64(1)}}, "_id"},
		{"negative timestamp", codec.Doc{{Key: "_id", Val: "c"}, {Key: "_driver_id", Val: "d"}, {Key: "timestamp", Val: float64(-1)}}, "timestamp"},
		{"text error status", codec.Doc{{Key: "_id", Val: "c"}, {Key: "_driver_id", Val: "d"}, {Key: "timestamp", Val: int64(1)}, {Key: "error_status", Val: "bad"}}, "error_status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := v.Validate("iteration_case_3", tt.doc)
			require.NotEmpty(t, problems)
			var fields []string
			for _, p := range problems {
				assert.Equal(t, ErrSchemaMismatch, p.Code)
				assert.Equal(t, "iteration_case_3", p.Record)
				fields = append(fields, p.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidateAcceptsNumericIDs(t *testing.T) {
	v := newValidator(t)
	assert.Empty(t, v.Validate("simulation_info", codec.Doc{{Key: "uuid", Val: int64(17)}}))
	assert.Empty(t, v.Validate("driver_info_1", codec.Doc{{Key: "_id", Val: int64(1)}}))
	assert.Empty(t, v.Validate("iteration_case_1", codec.Doc{
		{Key: "_id", Val: int64(2)},
		{Key: "_parent_id", Val: int64(3)},
		{Key: "_driver_id", Val: int64(1)},
		{Key: "timestamp", Val: int64(1)},
	}))
	assert.NotEmpty(t, v.Validate("iteration_case_1", codec.Doc{
		{Key: "_id", Val: 2.5},
		{Key: "_driver_id", Val: int64(1)},
		{Key: "timestamp", Val: int64(1)},
	}))

	file := `{
"simulation_info": {"uuid": 17, "variables": ["a"]},
"driver_info_1": {"_id": 1, "name": "d"},
"iteration_case_1": {"_id": 2, "_parent_id": null, "_driver_id": 1, "timestamp": 1.0, "a": 1}
}
`
	problems, n, err := v.ValidateReader(strings.NewReader(file), codec.Auto)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, problems)
}

func TestValidateSimulationIsClosed(t *testing.T) {
	v := newValidator(t)
	doc := codec.Doc{
		{Key: "uuid", Val: "run"},
		{Key: "bogus", Val: "x"},
	}
	problems := v.Validate("simulation_info", doc)
	require.NotEmpty(t, problems)
	var fields []string
	for _, p := range problems {
		fields = append(fields, p.Field)
	}
	assert.Contains(t, fields, "bogus")

	doc = codec.Doc{
		{Key: "uuid", Val: "run"},
		{Key: "expressions", Val: codec.Doc{{Key: "obj", Val: codec.Doc{
			{Key: "data_type", Val: "objective"},
			{Key: "expr", Val: "x"},
			{Key: "pcomp_name", Val: "obj"},
		}}}},
	}
	assert.NotEmpty(t, v.Validate("simulation_info", doc), "expression keys must be pseudo names")
}

func TestValidateDriver(t *testing.T) {
	v := newValidator(t)
	assert.Empty(t, v.Validate("driver_info_1", codec.Doc{
		{Key: "_id", Val: "d"},
		{Key: "parameters", Val: []string{"a"}},
	}))
	assert.NotEmpty(t, v.Validate("driver_info_1", codec.Doc{
		{Key: "_id", Val: "d"},
		{Key: "parameters", Val: []any{int64(3)}},
	}))
}

func TestValidateUnknownKey(t *testing.T) {
	problems := newValidator(t).Validate("case_1", codec.Doc{})
	require.Len(t, problems, 1)
	assert.Equal(t, ErrUnknownRecord, problems[0].Code)
	assert.True(t, strings.HasPrefix(problems[0].Error(), "[E200] case_1: "))
}

func TestValidateReaderStopsOnBadRecord(t *testing.T) {
	_, n, err := newValidator(t).ValidateReader(strings.NewReader(`{"simulation_info": {"uuid": "r"}, "iteration_case_1": `), codec.Text)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, codec.ErrTruncated)
}

func TestValidateReaderEmpty(t *testing.T) {
	problems, n, err := newValidator(t).ValidateReader(strings.NewReader(""), codec.Auto)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, problems)
}
