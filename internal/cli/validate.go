package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/casestore/internal/codec"
	"github.com/roach88/casestore/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                     `json:"valid"`
	Records int                      `json:"records"`
	Errors  []schema.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <case-file>",
		Short: "Check every record of a case file against the record schema",
		Long: `Decode a case file record by record and check each one against the CUE
record schema, without building a dataset. Reports every violation found;
a file that cannot be decoded stops at the first bad record.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	v, err := schema.New()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to compile record schema", err)
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, "case file not found", err)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to open "+path, err)
	}
	defer file.Close()

	problems, n, err := v.ValidateReader(file, codec.Auto)
	formatter.VerboseLog("Checked %d record(s) in %s", n, path)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeLoadFailed,
			fmt.Sprintf("decode failed after %d record(s)", n), err)
	}

	if len(problems) > 0 {
		opts.logger().Debug("schema violations", zap.String("path", path), zap.Int("count", len(problems)))
		return outputValidationErrors(formatter, n, problems)
	}

	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Records: n})
	}
	return formatter.Success(fmt.Sprintf("✓ %d record(s) valid", n))
}

func outputValidationErrors(formatter *OutputFormatter, n int, errs []schema.ValidationError) error {
	if formatter.JSON() {
		_ = formatter.Error(ErrCodeInvalid, "validation failed", ValidationResult{
			Valid:   false,
			Records: n,
			Errors:  errs,
		})
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %d violation(s) in %d record(s)\n", len(errs), n)
		for _, e := range errs {
			fmt.Fprintf(formatter.Writer, "  %s\n", e.Error())
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("[%s] %d schema violation(s)", ErrCodeInvalid, len(errs)))
}
