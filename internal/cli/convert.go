package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	To string
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Re-encode a case file in the other wire format",
		Long: `Load a case file in either format and write it again in the format
given by --to (default: the configured format). Ids, timestamps and values
are kept as recorded.

Example:
  casestore convert run.bson run.json --to text`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(opts, args[0], args[1], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.To, "to", "", "output format (text|binary)")
	return cmd
}

func runConvert(opts *ConvertOptions, in, out string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	to, err := parseWriteFormat(opts.RootOptions, opts.To)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid --to", err)
	}

	ds, err := loadCaseFile(opts.RootOptions, formatter, in)
	if err != nil {
		return err
	}

	if err := writeCaseFile(formatter, ds, out, to); err != nil {
		return err
	}

	opts.logger().Info("case file converted",
		zap.String("in", in),
		zap.String("out", out),
		zap.Stringer("format", to),
		zap.Int("cases", ds.Len()))

	if formatter.JSON() {
		return formatter.Success(map[string]any{
			"out":    out,
			"format": to.String(),
			"cases":  ds.Len(),
		})
	}
	return formatter.Success(fmt.Sprintf("✓ Wrote %d case(s) to %s (%s)", ds.Len(), out, to))
}
