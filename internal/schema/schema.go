// Package schema validates case file records against an embedded CUE
// schema.
//
// The schema (records.cue) declares one definition per record kind. A
// record is encoded into CUE, unified with its definition and checked for
// concreteness; every violation is reported, not just the first.
package schema

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/casestore/internal/codec"
	"github.com/roach88/casestore/internal/value"
)

//go:embed records.cue
var source string

// Validation error codes.
const (
	ErrUnknownRecord  = "E200" // key is not a record key
	ErrSchemaMismatch = "E201" // record does not satisfy its definition
	ErrEncode         = "E202" // record could not be encoded for checking
)

// ValidationError is one schema violation in one record.
type ValidationError struct {
	Record  string `json:"record"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Record, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Record, e.Message)
}

// Validator checks records against the compiled schema.
//
// Thread-safety: a Validator is not safe for concurrent use.
type Validator struct {
	ctx  *cue.Context
	defs map[codec.RecordKind]cue.Value
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(source, cue.Filename("records.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile record schema: %w", err)
	}

	v := &Validator{ctx: ctx, defs: make(map[codec.RecordKind]cue.Value)}
	for kind, name := range map[codec.RecordKind]string{
		codec.KindSimulation: "#SimulationInfo",
		codec.KindDriver:     "#DriverInfo",
		codec.KindCase:       "#IterationCase",
	} {
		def := root.LookupPath(cue.ParsePath(name))
		if !def.Exists() {
			return nil, fmt.Errorf("record schema has no %s", name)
		}
		v.defs[kind] = def
	}
	return v, nil
}

// Validate checks one record. It returns every violation found, or nil.
func (v *Validator) Validate(key string, doc codec.Doc) []ValidationError {
	kind, _, err := codec.ParseKey(key)
	if err != nil {
		return []ValidationError{{Record: key, Message: err.Error(), Code: ErrUnknownRecord}}
	}

	data := v.ctx.Encode(plain(doc))
	if err := data.Err(); err != nil {
		return []ValidationError{{Record: key, Message: err.Error(), Code: ErrEncode}}
	}

	unified := v.defs[kind].Unify(data)
	err = unified.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		out = append(out, ValidationError{
			Record:  key,
			Field:   fieldPath(e.Path()),
			Message: message(e),
			Code:    ErrSchemaMismatch,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// fieldPath joins CUE selectors, unquoting labels such as "_id".
func fieldPath(sels []string) string {
	out := make([]string, len(sels))
	for i, s := range sels {
		if u, err := strconv.Unquote(s); err == nil {
			s = u
		}
		out[i] = s
	}
	return strings.Join(out, ".")
}

func message(e cueerrors.Error) string {
	format, args := e.Msg()
	return fmt.Sprintf(format, args...)
}

// plain converts document contents to values CUE can encode. Non-finite
// reals have no CUE literal and are checked as their wire spelling.
func plain(x any) any {
	switch val := x.(type) {
	case codec.Doc:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = plain(e.Val)
		}
		return m
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = plain(e)
		}
		return out
	case value.Value:
		return plain(val.Interface())
	case float64:
		switch {
		case math.IsNaN(val):
			return "NaN"
		case math.IsInf(val, 1):
			return "Infinity"
		case math.IsInf(val, -1):
			return "-Infinity"
		}
	}
	return x
}

// ValidateReader checks every record of a case file. It returns the
// violations found and the number of records read. A record that cannot be
// decoded ends the scan with an error.
func (v *Validator) ValidateReader(r io.Reader, f codec.Format) ([]ValidationError, int, error) {
	br := bufio.NewReader(r)
	if f == codec.Auto {
		prefix, _ := br.Peek(64)
		if len(prefix) == 0 {
			return nil, 0, nil
		}
		f = codec.DetectFormat(prefix)
	}
	dec, err := codec.NewDecoder(br, f)
	if err != nil {
		return nil, 0, err
	}

	var out []ValidationError
	n := 0
	for {
		key, doc, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return out, n, nil
		}
		if err != nil {
			return out, n, fmt.Errorf("record %d at offset %d: %w", n+1, dec.Offset(), err)
		}
		n++
		out = append(out, v.Validate(key, doc)...)
	}
}
