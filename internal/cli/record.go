package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/casestore/internal/harness"
	"github.com/roach88/casestore/internal/recorder"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	To       string
	FreshIDs bool
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record <scenario.yaml> <out>",
		Short: "Record a scripted driver run to a case file",
		Long: `Drive the recorder through a YAML scenario of nested drivers and write the
resulting case file. Timestamps and ids are deterministic unless
--fresh-ids is given, so the same scenario always produces the same file.

If the scenario has an expect block, a mismatch exits with status 1.

Example:
  casestore record testdata/scenarios/nested.yaml run.json --to text`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts, args[0], args[1], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.To, "to", "", "output format (text|binary)")
	cmd.Flags().BoolVar(&opts.FreshIDs, "fresh-ids", false, "use a UUIDv7 run id instead of a sequential one")
	return cmd
}

func runRecord(opts *RecordOptions, scenarioPath, out string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	to, err := parseWriteFormat(opts.RootOptions, opts.To)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid --to", err)
	}

	s, err := harness.LoadScenario(scenarioPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, "scenario not found", err)
		}
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "invalid scenario", err)
	}

	recOpts := []recorder.Option{recorder.WithLogger(opts.logger())}
	if opts.FreshIDs {
		recOpts = append(recOpts, recorder.WithIDGenerator(recorder.UUIDv7Generator{}))
	}

	file, err := os.Create(out)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to create "+out, err)
	}
	res, err := harness.Record(s, file, to, recOpts...)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to record "+out, err)
	}

	opts.logger().Info("scenario recorded",
		zap.String("scenario", s.Name),
		zap.String("run", res.RunID),
		zap.Stringer("format", to),
		zap.Int("cases", len(res.Cases)),
		zap.Int("failed", res.Failed))

	if !res.Pass {
		if formatter.JSON() {
			_ = formatter.Error(ErrCodeInvalid, "expectations not met", res)
		} else {
			fmt.Fprintf(formatter.Writer, "✗ %s: expectations not met\n", s.Name)
			for _, e := range res.Errors {
				fmt.Fprintf(formatter.Writer, "  %s\n", e)
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("[%s] scenario %s: %d mismatch(es)", ErrCodeInvalid, s.Name, len(res.Errors)))
	}

	if formatter.JSON() {
		return formatter.Success(res)
	}
	return formatter.Success(fmt.Sprintf("✓ Recorded %d case(s) from %s to %s (%s)", len(res.Cases), s.Name, out, to))
}
