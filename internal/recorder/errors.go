package recorder

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfOrder reports a record written before the records it depends
	// on, or a second simulation_info.
	ErrOutOfOrder = errors.New("record out of order")
	// ErrDuplicateID reports a driver or case id that was already written.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrMissingID reports a case without an id.
	ErrMissingID = errors.New("missing id")
	// ErrReservedName reports a variable named like a bookkeeping field.
	ErrReservedName = errors.New("reserved variable name")
	// ErrDuplicateName reports a variable given twice in one record.
	ErrDuplicateName = errors.New("duplicate variable name")
	// ErrNotInCatalog reports a case value whose name simulation_info does
	// not list in its variables.
	ErrNotInCatalog = errors.New("variable not in catalog")
)

// SerializationError reports a record that could not be encoded because of
// one or more of its values. Nothing of the record reaches the sink.
type SerializationError struct {
	Record string   // simulation_info.constants or iteration_case_<k>
	Keys   []string // offending variable names, in record order
	Err    error    // first underlying cause
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("write failed for %s: keys %v: %v", e.Record, e.Keys, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// IsSerializationError reports whether err is or wraps a SerializationError.
func IsSerializationError(err error) bool {
	var se *SerializationError
	return errors.As(err, &se)
}
