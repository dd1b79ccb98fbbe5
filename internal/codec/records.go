package codec

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/casestore/internal/record"
	"github.com/roach88/casestore/internal/value"
)

// ErrMissingField reports a record without one of its required fields.
var ErrMissingField = errors.New("missing required field")

// Fields of simulation_info and driver_info records.
const (
	fieldName        = "name"
	fieldVersion     = "version"
	fieldVariables   = "variables"
	fieldConstants   = "constants"
	fieldExpressions = "expressions"
	fieldExpr        = "expr"
	fieldDataType    = "data_type"
	fieldParameters  = "parameters"
	fieldObjectives  = "objectives"
	fieldConstraints = "constraints"
	fieldResponses   = "responses"
	fieldRecording   = "recording"
)

// NormalizeName returns the NFC form of a variable name, so the same name
// typed with different Unicode compositions is one variable in both formats.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

func normalizeNames(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = NormalizeName(n)
	}
	return out
}

// SimulationDoc builds the simulation_info document.
func SimulationDoc(info record.SimulationInfo) Doc {
	constants := make(Doc, 0, len(info.Constants))
	for _, c := range info.Constants {
		constants = append(constants, Elem{Key: NormalizeName(c.Name), Val: c.Value})
	}
	exprs := make(Doc, 0, len(info.Expressions))
	for _, e := range info.Expressions {
		exprs = append(exprs, Elem{Key: e.Name, Val: Doc{
			{Key: fieldDataType, Val: string(e.Kind)},
			{Key: fieldExpr, Val: e.Expr},
			{Key: record.FieldPcompName, Val: e.PcompName},
		}})
	}
	return Doc{
		{Key: record.FieldUUID, Val: info.UUID},
		{Key: fieldName, Val: info.Name},
		{Key: fieldVersion, Val: info.Version},
		{Key: fieldVariables, Val: normalizeNames(info.Variables)},
		{Key: fieldConstants, Val: constants},
		{Key: fieldExpressions, Val: exprs},
	}
}

// DriverDoc builds a driver_info document. Every name list is present,
// empty or not.
func DriverDoc(info record.DriverInfo) Doc {
	return Doc{
		{Key: record.FieldID, Val: info.ID},
		{Key: fieldName, Val: info.Name},
		{Key: fieldParameters, Val: normalizeNames(info.Parameters)},
		{Key: fieldObjectives, Val: normalizeNames(info.Objectives)},
		{Key: fieldConstraints, Val: normalizeNames(info.Constraints)},
		{Key: fieldResponses, Val: normalizeNames(info.Responses)},
		{Key: fieldRecording, Val: normalizeNames(info.Recording)},
	}
}

// CaseDoc builds an iteration_case document: the bookkeeping fields in
// fixed order, then the values in insertion order. Absent parent and error
// fields are written as null.
func CaseDoc(c record.IterationCase) Doc {
	doc := make(Doc, 0, 6+len(c.Values))
	doc = append(doc, Elem{Key: record.FieldID, Val: c.ID})
	doc = append(doc, Elem{Key: record.FieldParentID, Val: nullable(c.ParentID)})
	doc = append(doc, Elem{Key: record.FieldDriverID, Val: c.DriverID})
	doc = append(doc, Elem{Key: record.FieldTimestamp, Val: value.NewReal(c.Timestamp)})
	if c.ErrorStatus != nil {
		doc = append(doc, Elem{Key: record.FieldErrorStatus, Val: value.NewInt(int64(*c.ErrorStatus))})
	} else {
		doc = append(doc, Elem{Key: record.FieldErrorStatus, Val: nil})
	}
	doc = append(doc, Elem{Key: record.FieldErrorMessage, Val: nullable(c.ErrorMessage)})
	for _, v := range c.Values {
		doc = append(doc, Elem{Key: NormalizeName(v.Name), Val: v.Value})
	}
	return doc
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// DecodeSimulation reads a simulation_info document. uuid is required.
func DecodeSimulation(doc Doc) (record.SimulationInfo, error) {
	var info record.SimulationInfo
	var err error
	if info.UUID, err = requiredID(doc, record.FieldUUID); err != nil {
		return info, err
	}
	if info.Name, err = optionalString(doc, fieldName); err != nil {
		return info, err
	}
	if info.Version, err = optionalString(doc, fieldVersion); err != nil {
		return info, err
	}
	if info.Variables, err = stringList(doc, fieldVariables); err != nil {
		return info, err
	}

	if raw, ok := doc.Get(fieldConstants); ok && raw != nil {
		consts, ok := raw.(Doc)
		if !ok {
			return info, fmt.Errorf("%w: %s is %T, want object", ErrMalformed, fieldConstants, raw)
		}
		info.Constants, err = decodeVars(consts)
		if err != nil {
			return info, fmt.Errorf("%s: %w", fieldConstants, err)
		}
	}

	if raw, ok := doc.Get(fieldExpressions); ok && raw != nil {
		exprs, ok := raw.(Doc)
		if !ok {
			return info, fmt.Errorf("%w: %s is %T, want object", ErrMalformed, fieldExpressions, raw)
		}
		for _, e := range exprs {
			body, ok := e.Val.(Doc)
			if !ok {
				return info, fmt.Errorf("%w: expression %s is %T, want object", ErrMalformed, e.Key, e.Val)
			}
			x := record.Expression{Name: e.Key}
			kind, err := optionalString(body, fieldDataType)
			if err != nil {
				return info, err
			}
			x.Kind = record.ExpressionKind(kind)
			if x.Expr, err = optionalString(body, fieldExpr); err != nil {
				return info, err
			}
			if x.PcompName, err = optionalString(body, record.FieldPcompName); err != nil {
				return info, err
			}
			info.Expressions = append(info.Expressions, x)
		}
	}
	return info, nil
}

// DecodeDriver reads a driver_info document. _id is required.
func DecodeDriver(doc Doc) (record.DriverInfo, error) {
	var info record.DriverInfo
	var err error
	if info.ID, err = requiredID(doc, record.FieldID); err != nil {
		return info, err
	}
	if info.Name, err = optionalString(doc, fieldName); err != nil {
		return info, err
	}
	lists := []struct {
		key string
		dst *[]string
	}{
		{fieldParameters, &info.Parameters},
		{fieldObjectives, &info.Objectives},
		{fieldConstraints, &info.Constraints},
		{fieldResponses, &info.Responses},
		{fieldRecording, &info.Recording},
	}
	for _, l := range lists {
		if *l.dst, err = stringList(doc, l.key); err != nil {
			return info, err
		}
	}
	return info, nil
}

// DecodeCase reads an iteration_case document. _id, _driver_id and
// timestamp are required; every key that is not a bookkeeping field is a
// value.
func DecodeCase(doc Doc) (record.IterationCase, error) {
	var c record.IterationCase
	var err error
	if c.ID, err = requiredID(doc, record.FieldID); err != nil {
		return c, err
	}
	if c.DriverID, err = requiredID(doc, record.FieldDriverID); err != nil {
		return c, err
	}
	if c.ParentID, err = optionalID(doc, record.FieldParentID); err != nil {
		return c, err
	}

	ts, ok := doc.Get(record.FieldTimestamp)
	if !ok || ts == nil {
		return c, fmt.Errorf("%w: %s", ErrMissingField, record.FieldTimestamp)
	}
	switch t := ts.(type) {
	case float64:
		c.Timestamp = t
	case int64:
		c.Timestamp = float64(t)
	default:
		return c, fmt.Errorf("%w: %s is %T, want number", ErrMalformed, record.FieldTimestamp, ts)
	}

	if raw, ok := doc.Get(record.FieldErrorStatus); ok && raw != nil {
		switch s := raw.(type) {
		case int64:
			status := int(s)
			c.ErrorStatus = &status
		case float64:
			if !math.IsNaN(s) {
				status := int(s)
				c.ErrorStatus = &status
			}
		default:
			return c, fmt.Errorf("%w: %s is %T, want integer", ErrMalformed, record.FieldErrorStatus, raw)
		}
	}
	if c.ErrorMessage, err = optionalString(doc, record.FieldErrorMessage); err != nil {
		return c, err
	}

	var values Doc
	for _, e := range doc {
		if record.IsBookkeeping(e.Key) {
			continue
		}
		values = append(values, e)
	}
	if c.Values, err = decodeVars(values); err != nil {
		return c, err
	}
	return c, nil
}

func decodeVars(doc Doc) (record.Vars, error) {
	vars := make(record.Vars, 0, len(doc))
	for _, e := range doc {
		v, err := toValue(e.Val, 0)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Key, err)
		}
		vars = append(vars, record.Var{Name: NormalizeName(e.Key), Value: v})
	}
	return vars, nil
}

// toValue converts a decoded generic value into a Value.
func toValue(raw any, depth int) (value.Value, error) {
	switch v := raw.(type) {
	case nil:
		return value.Missing(), nil
	case int64:
		return value.NewInt(v), nil
	case float64:
		return value.NewReal(v), nil
	case string:
		return value.NewText(v), nil
	case bool:
		return value.NewBool(v), nil
	case []any:
		if depth >= value.MaxDepth {
			return value.Value{}, fmt.Errorf("%w: %w", ErrMalformed, value.ErrUnsupported)
		}
		elems := make([]value.Value, len(v))
		for i, e := range v {
			ev, err := toValue(e, depth+1)
			if err != nil {
				return value.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			elems[i] = ev
		}
		seq, err := value.NewSeq(elems...)
		if err != nil {
			return value.Value{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return seq, nil
	}
	return value.Value{}, fmt.Errorf("%w: value of type %T", ErrMalformed, raw)
}

// requiredID reads an identifier field that must be present and non-null.
// Numeric identifiers are accepted and rendered in decimal.
func requiredID(doc Doc, key string) (string, error) {
	id, err := optionalID(doc, key)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	return id, nil
}

func optionalID(doc Doc, key string) (string, error) {
	raw, ok := doc.Get(key)
	if !ok || raw == nil {
		return "", nil
	}
	switch v := raw.(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	}
	return "", fmt.Errorf("%w: %s is %T, want string", ErrMalformed, key, raw)
}

func optionalString(doc Doc, key string) (string, error) {
	raw, ok := doc.Get(key)
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, want string", ErrMalformed, key, raw)
	}
	return s, nil
}

func stringList(doc Doc, key string) ([]string, error) {
	raw, ok := doc.Get(key)
	if !ok || raw == nil {
		return nil, nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T, want list", ErrMalformed, key, raw)
	}
	out := make([]string, len(arr))
	for i, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] is %T, want string", ErrMalformed, key, i, e)
		}
		out[i] = NormalizeName(s)
	}
	return out, nil
}
