package dataset

import (
	"errors"
	"fmt"
)

// FormatError reports a case file that cannot be loaded: bad framing, an
// undecodable record, a missing required field, or broken id references.
// A load that fails with a FormatError returns no Dataset.
type FormatError struct {
	Record string // top-level key of the offending record, if known
	Offset int64  // input byte offset where the record starts
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	where := fmt.Sprintf("offset %d", e.Offset)
	if e.Record != "" {
		where = e.Record + " at " + where
	}
	if e.Err != nil {
		return fmt.Sprintf("format error in %s: %s: %v", where, e.Reason, e.Err)
	}
	return fmt.Sprintf("format error in %s: %s", where, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// IsFormatError reports whether err is or wraps a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
