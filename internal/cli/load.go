package cli

import (
	"errors"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/roach88/casestore/internal/codec"
	"github.com/roach88/casestore/internal/dataset"
)

// loadCaseFile loads path, detecting its format. Failures are reported
// through the formatter and returned as command errors.
func loadCaseFile(opts *RootOptions, f *OutputFormatter, path string) (*dataset.Dataset, error) {
	log := opts.logger()
	ds, err := dataset.LoadFile(path, codec.Auto, dataset.WithLogger(log))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, f.Fail(ExitCommandError, ErrCodeNotFound, "case file not found", err)
		}
		return nil, f.Fail(ExitCommandError, ErrCodeLoadFailed, "failed to load "+path, err)
	}
	log.Debug("case file loaded",
		zap.String("path", path),
		zap.Int("drivers", len(ds.Drivers)),
		zap.Int("cases", ds.Len()))
	f.VerboseLog("Loaded %d case(s) from %s", ds.Len(), path)
	return ds, nil
}

// parseWriteFormat resolves a --to flag, falling back to the configured
// format when the flag is empty.
func parseWriteFormat(opts *RootOptions, to string) (codec.Format, error) {
	if to == "" {
		return opts.cfg().WireFormat(), nil
	}
	wf, err := codec.ParseFormat(to)
	if err != nil {
		return codec.Auto, err
	}
	if wf == codec.Auto {
		return codec.Auto, errors.New("--to must be text or binary")
	}
	return wf, nil
}

// writeCaseFile writes ds to out in format to. A partially written file is
// removed.
func writeCaseFile(f *OutputFormatter, ds *dataset.Dataset, out string, to codec.Format) error {
	file, err := os.Create(out)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to create "+out, err)
	}
	if err := dataset.Write(file, ds, to); err != nil {
		file.Close()
		os.Remove(out)
		return f.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write "+out, err)
	}
	if err := file.Close(); err != nil {
		return f.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to close "+out, err)
	}
	return nil
}
