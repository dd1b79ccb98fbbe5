package query

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/casestore/internal/codec"
	"github.com/roach88/casestore/internal/dataset"
	"github.com/roach88/casestore/internal/harness"
	"github.com/roach88/casestore/internal/record"
	"github.com/roach88/casestore/internal/recorder"
	"github.com/roach88/casestore/internal/testutil"
	"github.com/roach88/casestore/internal/value"
)

// Two top iterations, each running three local optimizer iterations:
//
//	pos 1..3  case-0002..0004  localopt1, parent case-0001
//	pos 4     case-0001        driver
//	pos 5..7  case-0006..0008  localopt1, parent case-0005
//	pos 8     case-0005        driver
const nestedYAML = `
name: nested
model: sellar
driver:
  name: driver
  iterations: 2
  parameters:
    - {name: dis1.z, kind: array, start: 5, step: 1}
  objectives:
    - {expr: "dis1.obj", start: 30, step: -5}
  constraints:
    - {expr: "dis1.con1 < 0", start: -1, step: 0.25}
  drivers:
    - id: localopt1
      name: localopt
      iterations: 3
      parameters:
        - {name: dis1.x, kind: real, start: 1, step: 0.5}
      responses:
        - {name: dis2.y2, kind: real, start: 12, step: -1}
        - {name: dis2.label, kind: text}
`

const deepYAML = `
name: deep
model: deep
driver:
  name: outer
  iterations: 2
  parameters:
    - {name: a.p, kind: int, start: 1, step: 1}
  drivers:
    - name: middle
      iterations: 2
      parameters:
        - {name: b.p, kind: real, start: 0.5, step: 0.5}
      drivers:
        - name: inner
          iterations: 2
          parameters:
            - {name: c.p, kind: real, start: 10, step: 1}
`

func load(t *testing.T, scenario string, f codec.Format) *dataset.Dataset {
	t.Helper()
	s, err := harness.ParseScenario([]byte(scenario))
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = harness.Record(s, &buf, f)
	require.NoError(t, err)
	ds, err := dataset.Load(&buf, f)
	require.NoError(t, err)
	return ds
}

func must(t *testing.T) func(Query, error) Query {
	return func(q Query, err error) Query {
		t.Helper()
		require.NoError(t, err)
		return q
	}
}

var nestedNames = []string{
	"_id", "_parent_id", "_driver_id", "timestamp", "error_status", "error_message",
	"_pseudo_0", "_pseudo_1",
	"driver.workflow.itername", "dis1.z",
	"localopt.workflow.itername", "dis1.x", "dis2.y2", "dis2.label",
}

func TestVarNames(t *testing.T) {
	ds := load(t, nestedYAML, codec.Text)
	q := New(ds)

	if diff := cmp.Diff(nestedNames, q.VarNames()); diff != "" {
		t.Errorf("VarNames mismatch (-want +got):\n%s", diff)
	}

	local := must(t)(q.Driver("localopt"))
	assert.Equal(t, []string{
		"_id", "_parent_id", "_driver_id", "timestamp", "error_status", "error_message",
		"localopt.workflow.itername", "dis1.x", "dis2.y2", "dis2.label",
	}, local.VarNames())

	// The top driver's scope includes the cases of the drivers it invoked.
	top := must(t)(q.Driver("driver"))
	assert.Equal(t, nestedNames, top.VarNames())
}

func TestRowWidthMatchesVarNames(t *testing.T) {
	for _, f := range []codec.Format{codec.Text, codec.Binary} {
		ds := load(t, nestedYAML, f)
		for _, q := range []Query{
			New(ds),
			must(t)(New(ds).Driver("localopt")),
			must(t)(New(ds).ParentCase("case-0003")),
			must(t)(New(ds).Vars("dis1.x", "_id")),
		} {
			tbl := q.Fetch()
			width := len(q.VarNames())
			require.Equal(t, q.Len(), tbl.Len(), q.String())
			for i := 0; i < tbl.Len(); i++ {
				assert.Equal(t, width, tbl.At(i).Len(), "%s row %d", q, i)
			}
		}
	}
}

func TestDriverScope(t *testing.T) {
	ds := load(t, nestedYAML, codec.Binary)

	assert.Equal(t, 8, New(ds).Len())
	assert.Equal(t, 8, must(t)(New(ds).Driver("driver")).Len())

	local := must(t)(New(ds).Driver("localopt"))
	assert.Equal(t, 6, local.Len())
	assert.Equal(t, []string{
		"case-0002", "case-0003", "case-0004",
		"case-0006", "case-0007", "case-0008",
	}, local.Cases())
}

func TestDriverScopeDeepNesting(t *testing.T) {
	ds := load(t, deepYAML, codec.Text)

	tests := []struct {
		driver string
		want   int
	}{
		{"outer", 14},
		{"middle", 12},
		{"inner", 8},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			q := must(t)(New(ds).Driver(tt.driver))
			assert.Equal(t, tt.want, q.Len())
			assert.Equal(t, tt.want, q.Fetch().Len())
		})
	}

	inner := must(t)(New(ds).Driver("inner"))
	assert.NotContains(t, inner.VarNames(), "b.p")
	assert.Contains(t, must(t)(New(ds).Driver("middle")).VarNames(), "c.p")
}

func TestParentCaseLengthIsPosition(t *testing.T) {
	ds := load(t, nestedYAML, codec.Text)
	for _, c := range ds.Cases {
		pos, ok := ds.Position(c.ID)
		require.True(t, ok)
		q := must(t)(New(ds).ParentCase(c.ID))
		assert.Equal(t, pos, q.Len(), c.ID)
		assert.Equal(t, pos, q.Fetch().Len(), c.ID)
	}

	q := must(t)(New(ds).ParentCase("case-0003"))
	assert.Equal(t, []string{"case-0002", "case-0003"}, q.Cases())
}

func TestParentCaseStaysInItsRun(t *testing.T) {
	// Two independent top-level drivers recorded into one file.
	var buf bytes.Buffer
	r, err := recorder.New(&buf, codec.Text,
		recorder.WithClock(testutil.NewDeterministicClock()),
		recorder.WithIDGenerator(testutil.NewSequentialIDs("run")))
	require.NoError(t, err)
	require.NoError(t, r.WriteSimulationInfo(recorder.Simulation{Name: "two", Variables: []string{"a.x", "b.x"}}))
	require.NoError(t, r.WriteDriverInfo(record.DriverInfo{ID: "a", Name: "a"}))
	require.NoError(t, r.WriteDriverInfo(record.DriverInfo{ID: "b", Name: "b"}))
	for _, c := range []struct{ id, driver string }{{"a1", "a"}, {"a2", "a"}, {"b1", "b"}, {"b2", "b"}} {
		require.NoError(t, r.WriteCase(recorder.Case{
			ID: c.id, DriverID: c.driver,
			Values: []recorder.Field{recorder.F(c.driver+".x", 1.0)},
		}))
	}
	require.NoError(t, r.Close())

	ds, err := dataset.Load(&buf, codec.Text)
	require.NoError(t, err)

	q := must(t)(New(ds).ParentCase("b2"))
	assert.Equal(t, []string{"b1", "b2"}, q.Cases())
	assert.Equal(t, []string{"a1", "a2"}, must(t)(New(ds).ParentCase("a2")).Cases())
}

func TestCarryForwardAndLocal(t *testing.T) {
	ds := load(t, nestedYAML, codec.Binary)

	// case-0001 is the first top iteration at position 4. It defines no
	// dis1.x of its own; the last local optimizer iteration set it to 2.0.
	tbl := New(ds).Fetch()
	row, ok := tbl.Row("case-0001")
	require.True(t, ok)
	x, _ := row.Get("dis1.x")
	assert.Equal(t, value.NewReal(2.0), x)
	label, _ := row.Get("dis2.label")
	assert.Equal(t, value.NewText("dis2.label-3"), label)

	// Nothing earlier defines the top driver's variables.
	first := tbl.At(0)
	z, _ := first.Get("dis1.z")
	assert.True(t, z.IsMissing())

	local := New(ds).Local().Fetch()
	row, _ = local.Row("case-0001")
	x, _ = row.Get("dis1.x")
	assert.True(t, x.IsMissing())
	assert.Equal(t, value.KindReal, x.Kind(), "numeric gaps are NaN")
	label, _ = row.Get("dis2.label")
	assert.True(t, label.IsMissing())
	assert.Equal(t, value.KindUndefined, label.Kind())

	obj, _ := row.Get("_pseudo_0")
	assert.Equal(t, value.NewReal(30), obj)
}

func TestBookkeepingCells(t *testing.T) {
	ds := load(t, nestedYAML, codec.Text)
	tbl := New(ds).Fetch()

	row := tbl.At(0)
	id, _ := row.Get("_id")
	assert.Equal(t, value.NewText("case-0002"), id)
	parent, _ := row.Get("_parent_id")
	assert.Equal(t, value.NewText("case-0001"), parent)
	drv, _ := row.Get("_driver_id")
	assert.Equal(t, value.NewText("localopt1"), drv)
	ts, _ := row.Get("timestamp")
	assert.Equal(t, value.NewReal(float64(testutil.Epoch.Unix())), ts)
	status, _ := row.Get("error_status")
	assert.True(t, status.IsMissing())

	top, _ := tbl.Row("case-0001")
	parent, _ = top.Get("_parent_id")
	assert.True(t, parent.IsMissing())
}

func TestByVariableTransposes(t *testing.T) {
	ds := load(t, nestedYAML, codec.Text)
	q := must(t)(New(ds).Driver("localopt"))

	rows := q.Fetch()
	cols := q.ByVariable().Fetch()

	assert.Equal(t, ByCase, rows.Layout())
	assert.Equal(t, ByVariable, cols.Layout())
	assert.Equal(t, len(q.VarNames()), cols.Len())
	assert.True(t, rows.Transpose().Equal(cols))
	assert.True(t, cols.Transpose().Equal(rows))
	assert.True(t, rows.Transpose().Transpose().Equal(rows))

	for i := 0; i < rows.Len(); i++ {
		for j, name := range rows.Names() {
			assert.True(t, rows.At(i).At(j).Equal(cols.At(j).At(i)), "%s[%d]", name, i)
		}
	}

	x, ok := cols.Column("dis1.x")
	require.True(t, ok)
	assert.Equal(t, q.Cases(), x.Keys())
	assert.Equal(t, []float64{1, 1.5, 2, 2.5, 3, 3.5}, x.Floats())
	fromRows, _ := rows.Column("dis1.x")
	assert.Equal(t, x.Values(), fromRows.Values())

	v, ok := x.Get("case-0006")
	require.True(t, ok)
	assert.Equal(t, value.NewReal(2.5), v)
}

func TestFetchIsIdempotent(t *testing.T) {
	ds := load(t, nestedYAML, codec.Binary)
	q := New(ds).Local()
	assert.True(t, q.Fetch().Equal(q.Fetch()))

	qv := must(t)(New(ds).ParentCase("case-0005"))
	assert.True(t, qv.Fetch().Equal(qv.Fetch()))
}

func TestVarsIsExact(t *testing.T) {
	ds := load(t, nestedYAML, codec.Text)
	q := must(t)(New(ds).Vars("dis2.y2", "_id", "dis1.x"))
	assert.Equal(t, []string{"dis2.y2", "_id", "dis1.x"}, q.VarNames())
	assert.Equal(t, []string{"dis2.y2", "_id", "dis1.x"}, q.Fetch().Names())

	_, ok := q.Fetch().Column("dis1.z")
	assert.False(t, ok)
}

func TestVarsWithNoNamesProjectsNothing(t *testing.T) {
	ds := load(t, nestedYAML, codec.Text)
	q := must(t)(New(ds).Vars())
	assert.Empty(t, q.VarNames())
	assert.NotNil(t, q.VarNames())

	tbl := q.Fetch()
	assert.Empty(t, tbl.Names())
	assert.Equal(t, ds.Len(), tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		assert.Zero(t, tbl.At(i).Len())
	}
}

func TestScopeErrors(t *testing.T) {
	ds := load(t, nestedYAML, codec.Text)

	tests := []struct {
		name string
		run  func() (Query, error)
		want string
	}{
		{"driver", func() (Query, error) { return New(ds).Driver("nope") }, `scope error: no driver named "nope"`},
		{"driver id is not a name", func() (Query, error) { return New(ds).Driver("localopt1") }, `scope error: no driver named "localopt1"`},
		{"parent case", func() (Query, error) { return New(ds).ParentCase("case-9999") }, `scope error: no case with id "case-9999"`},
		{"vars", func() (Query, error) { return New(ds).Vars("dis1.x", "missing.var") }, `scope error: unknown variable "missing.var"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.run()
			require.Error(t, err)
			assert.True(t, IsScopeError(err))
			assert.EqualError(t, err, tt.want)
		})
	}
}

func TestQueriesAreImmutable(t *testing.T) {
	ds := load(t, nestedYAML, codec.Text)
	base := New(ds)
	scoped := must(t)(base.Driver("localopt"))
	_ = scoped.Local()

	assert.Empty(t, base.Ops())
	assert.Len(t, scoped.Ops(), 1)
	assert.Equal(t, 8, base.Len())
	assert.Equal(t, `data.driver("localopt").local().by_variable()`, scoped.Local().ByVariable().String())
}

func TestDriverThenParentCaseIntersects(t *testing.T) {
	ds := load(t, nestedYAML, codec.Text)
	q := must(t)(must(t)(New(ds).Driver("localopt")).ParentCase("case-0006"))
	assert.Equal(t, []string{"case-0002", "case-0003", "case-0004", "case-0006"}, q.Cases())
}

func TestEmptyDataset(t *testing.T) {
	ds, err := dataset.Load(bytes.NewReader(nil), codec.Auto)
	require.NoError(t, err)

	q := New(ds)
	assert.Equal(t, record.Bookkeeping, q.VarNames())
	tbl := q.Fetch()
	assert.Equal(t, 0, tbl.Len())
	// One empty column per bookkeeping name.
	assert.Equal(t, len(record.Bookkeeping), q.ByVariable().Fetch().Len())
}

func TestConcurrentFetch(t *testing.T) {
	defer goleak.VerifyNone(t)

	ds := load(t, nestedYAML, codec.Binary)
	want := must(t)(New(ds).Driver("localopt")).Local().Fetch()

	var g errgroup.Group
	results := make([]Table, 16)
	for i := range results {
		g.Go(func() error {
			q, err := New(ds).Driver("localopt")
			if err != nil {
				return err
			}
			results[i] = q.Local().Fetch()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for i, got := range results {
		assert.True(t, want.Equal(got), "goroutine %d", i)
	}
}
