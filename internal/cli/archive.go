package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/casestore/internal/store"
)

// ArchiveOptions holds flags for the commands that use the SQLite archive.
type ArchiveOptions struct {
	*RootOptions
	Database string
}

func (o *ArchiveOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to SQLite archive (default: store.path from config)")
}

func (o *ArchiveOptions) open(f *OutputFormatter) (*store.Store, error) {
	path := o.Database
	if path == "" {
		path = o.cfg().Store.Path
	}
	f.VerboseLog("Opening archive %s", path)
	st, err := store.Open(path, store.WithLogger(o.logger()))
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeArchive, "failed to open archive", err)
	}
	return st, nil
}

func (o *ArchiveOptions) close(st *store.Store) {
	if err := st.Close(); err != nil {
		o.logger().Error("error closing archive", zap.Error(err))
	}
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ArchiveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <case-file>",
		Short: "Archive a case file in the SQLite store",
		Long: `Load a case file and store it as one run, keyed by its simulation uuid.
Importing a run that is already archived changes nothing.

Example:
  casestore import --db ./cases.db run.bson`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}
	opts.register(cmd)
	return cmd
}

func runImport(opts *ArchiveOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	ds, err := loadCaseFile(opts.RootOptions, formatter, path)
	if err != nil {
		return err
	}
	st, err := opts.open(formatter)
	if err != nil {
		return err
	}
	defer opts.close(st)

	imported, err := st.Import(cmd.Context(), ds)
	if err != nil {
		if errors.Is(err, store.ErrNoRun) {
			return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "nothing to import", err)
		}
		return formatter.Fail(ExitCommandError, ErrCodeArchive, "import failed", err)
	}

	uuid := ds.Simulation.UUID
	opts.logger().Info("run imported",
		zap.String("uuid", uuid),
		zap.Bool("new", imported),
		zap.Int("cases", ds.Len()))

	if formatter.JSON() {
		return formatter.Success(map[string]any{
			"uuid":     uuid,
			"imported": imported,
			"cases":    ds.Len(),
		})
	}
	if !imported {
		return formatter.Success(fmt.Sprintf("Run %s already archived", uuid))
	}
	return formatter.Success(fmt.Sprintf("✓ Imported run %s (%d case(s))", uuid, ds.Len()))
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ArchiveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "runs",
		Short:         "List archived runs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}
	opts.register(cmd)
	return cmd
}

func runRuns(opts *ArchiveOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := opts.open(formatter)
	if err != nil {
		return err
	}
	defer opts.close(st)

	runs, err := st.ListRuns(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArchive, "failed to list runs", err)
	}

	if formatter.JSON() {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		return formatter.Success("No runs archived")
	}
	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UUID\tNAME\tVERSION\tDRIVERS\tCASES\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n", r.UUID, r.Name, r.Version, r.Drivers, r.Cases, r.Failed)
	}
	return tw.Flush()
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	ArchiveOptions
	To string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{ArchiveOptions: ArchiveOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "export <run-uuid> <out>",
		Short: "Write an archived run back out as a case file",
		Long: `Rebuild an archived run and write it as a case file in the format given
by --to (default: the configured format).

Example:
  casestore export --db ./cases.db sellar-run run.json --to text`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0], args[1], cmd)
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&opts.To, "to", "", "output format (text|binary)")
	return cmd
}

func runExport(opts *ExportOptions, uuid, out string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	to, err := parseWriteFormat(opts.RootOptions, opts.To)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid --to", err)
	}

	st, err := opts.open(formatter)
	if err != nil {
		return err
	}
	defer opts.close(st)

	ds, err := st.ReadDataset(cmd.Context(), uuid)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, "run not archived", err)
		}
		return formatter.Fail(ExitCommandError, ErrCodeArchive, "failed to read run", err)
	}

	if err := writeCaseFile(formatter, ds, out, to); err != nil {
		return err
	}

	if formatter.JSON() {
		return formatter.Success(map[string]any{"uuid": uuid, "out": out, "cases": ds.Len()})
	}
	return formatter.Success(fmt.Sprintf("✓ Exported run %s to %s (%s)", uuid, out, to))
}
