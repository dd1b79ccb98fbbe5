package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/casestore/internal/dataset"
	"github.com/roach88/casestore/internal/query"
	"github.com/roach88/casestore/internal/value"
)

// ScopeFlags are the query filters shared by vars and fetch.
type ScopeFlags struct {
	Driver string
	Parent string
}

func (s *ScopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.Driver, "driver", "", "limit to cases of the named driver and its sub-drivers")
	cmd.Flags().StringVar(&s.Parent, "parent", "", "limit to the lineage of the given case id")
}

// apply narrows q. Driver is applied before parent case, so giving both
// intersects them.
func (s *ScopeFlags) apply(q query.Query) (query.Query, error) {
	var err error
	if s.Driver != "" {
		if q, err = q.Driver(s.Driver); err != nil {
			return q, err
		}
	}
	if s.Parent != "" {
		if q, err = q.ParentCase(s.Parent); err != nil {
			return q, err
		}
	}
	return q, nil
}

// VarsOptions holds flags for the vars command.
type VarsOptions struct {
	*RootOptions
	Scope ScopeFlags
}

// NewVarsCommand creates the vars command.
func NewVarsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VarsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "vars <case-file>",
		Short: "List the variable names in scope",
		Long: `List the variable names a fetch would return, bookkeeping fields first.

Example:
  casestore vars run.json
  casestore vars --driver localopt run.bson`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVars(opts, args[0], cmd)
		},
	}
	opts.Scope.register(cmd)
	return cmd
}

func runVars(opts *VarsOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	ds, err := loadCaseFile(opts.RootOptions, formatter, path)
	if err != nil {
		return err
	}
	q, err := opts.Scope.apply(query.New(ds))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeScope, "invalid query", err)
	}

	names := q.VarNames()
	if formatter.JSON() {
		return formatter.Success(names)
	}
	for _, n := range names {
		fmt.Fprintln(formatter.Writer, n)
	}
	return nil
}

// FetchOptions holds flags for the fetch command.
type FetchOptions struct {
	*RootOptions
	Scope      ScopeFlags
	Vars       []string
	Local      bool
	ByVariable bool
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fetch <case-file>",
		Short: "Print a table of case values",
		Long: `Print the values of the cases in scope, one row per case.

Without --local a variable a case did not record carries forward the last
value seen earlier in scope. With --local it is shown as missing (NaN for
numeric variables, null otherwise).

Example:
  casestore fetch run.json --vars dis1.x,dis2.y2
  casestore fetch run.bson --driver driver --by-variable --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(opts, args[0], cmd)
		},
	}
	opts.Scope.register(cmd)
	cmd.Flags().StringSliceVar(&opts.Vars, "vars", nil, "comma-separated variables to project")
	cmd.Flags().BoolVar(&opts.Local, "local", false, "do not carry values forward from earlier cases")
	cmd.Flags().BoolVar(&opts.ByVariable, "by-variable", false, "one row per variable instead of per case")
	return cmd
}

func (o *FetchOptions) build(ds *dataset.Dataset) (query.Query, error) {
	q := query.New(ds)
	if len(o.Vars) > 0 {
		var err error
		if q, err = q.Vars(o.Vars...); err != nil {
			return q, err
		}
	}
	q, err := o.Scope.apply(q)
	if err != nil {
		return q, err
	}
	if o.Local {
		q = q.Local()
	}
	if o.ByVariable {
		q = q.ByVariable()
	}
	return q, nil
}

// TableJSON is the JSON rendering of a fetched table.
type TableJSON struct {
	Query   string          `json:"query"`
	Layout  string          `json:"layout"`
	Names   []string        `json:"names"`
	CaseIDs []string        `json:"case_ids"`
	Rows    [][]value.Value `json:"rows"`
}

func runFetch(opts *FetchOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	ds, err := loadCaseFile(opts.RootOptions, formatter, path)
	if err != nil {
		return err
	}
	q, err := opts.build(ds)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeScope, "invalid query", err)
	}
	opts.logger().Debug("fetch", zap.Stringer("query", q))
	formatter.VerboseLog("Query: %s", q)

	t := q.Fetch()
	if formatter.JSON() {
		out := TableJSON{
			Query:   q.String(),
			Layout:  t.Layout().String(),
			Names:   t.Names(),
			CaseIDs: t.CaseIDs(),
			Rows:    make([][]value.Value, t.Len()),
		}
		for i := range t.Len() {
			out.Rows[i] = t.At(i).Values()
		}
		return formatter.Success(out)
	}
	return writeTable(formatter.Writer, t)
}

// writeTable renders t as aligned columns. In the by-variable layout the
// first column holds the variable name and the header lists case ids.
func writeTable(w io.Writer, t query.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	names, ids := t.Names(), t.CaseIDs()
	header := append([]string{"case"}, names...)
	labels := ids
	if t.Layout() == query.ByVariable {
		header = append([]string{"variable"}, ids...)
		labels = names
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for i := range t.Len() {
		cells := []string{labels[i]}
		for _, v := range t.At(i).Values() {
			cells = append(cells, cell(v))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func cell(v value.Value) string {
	if v.Kind() == value.KindUndefined {
		return "-"
	}
	return v.String()
}
