package query

import (
	"errors"
	"fmt"
)

// ScopeError reports a query step that references a driver name, case id
// or variable name the dataset does not contain. It is returned by the
// step itself, never deferred to Fetch.
type ScopeError struct {
	Op  string // driver, parent_case or vars
	Ref string // the missing name or id
}

func (e *ScopeError) Error() string {
	switch e.Op {
	case "driver":
		return fmt.Sprintf("scope error: no driver named %q", e.Ref)
	case "parent_case":
		return fmt.Sprintf("scope error: no case with id %q", e.Ref)
	case "vars":
		return fmt.Sprintf("scope error: unknown variable %q", e.Ref)
	}
	return fmt.Sprintf("scope error in %s: %q", e.Op, e.Ref)
}

// IsScopeError reports whether err is or wraps a ScopeError.
func IsScopeError(err error) bool {
	var se *ScopeError
	return errors.As(err, &se)
}
