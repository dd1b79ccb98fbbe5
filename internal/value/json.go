package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// extended JSON key for doubles JSON cannot express.
const numberDoubleKey = "$numberDouble"

// MarshalJSON writes v in the text wire form.
//
// Integers are written as JSON integers. Reals always carry a fraction or an
// exponent so a reader can tell them apart from integers. NaN and infinities
// are written as {"$numberDouble": "NaN" | "Infinity" | "-Infinity"}.
// The undefined marker is written as null.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.appendJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) appendJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindUndefined:
		buf.WriteString("null")
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindReal:
		buf.WriteString(formatReal(v.f))
	case KindText:
		b, err := marshalString(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindSeq:
		buf.WriteByte('[')
		for i, e := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.appendJSON(buf); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("unknown kind %v", v.kind)
	}
	return nil
}

func formatReal(f float64) string {
	switch {
	case math.IsNaN(f):
		return `{"` + numberDoubleKey + `":"NaN"}`
	case math.IsInf(f, 1):
		return `{"` + numberDoubleKey + `":"Infinity"}`
	case math.IsInf(f, -1):
		return `{"` + numberDoubleKey + `":"-Infinity"}`
	}
	// Same cutoffs as encoding/json: plain decimals between 1e-6 and 1e21.
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	s := strconv.FormatFloat(f, format, -1, 64)
	if format == 'e' {
		// clean up e-09 to e-9
		if n := len(s); n >= 4 && s[n-4] == 'e' && s[n-3] == '-' && s[n-2] == '0' {
			s = s[:n-2] + s[n-1:]
		}
	}
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// marshalString encodes s without HTML escaping.
func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON reads the text wire form written by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out, err := FromJSON(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// FromJSON converts a value decoded with json.Decoder.UseNumber into a
// Value. json.Number is an integer unless its literal holds '.', 'e' or 'E'.
// An object is accepted only in the {"$numberDouble": ...} form.
// A JSON null becomes the undefined marker.
func FromJSON(raw any) (Value, error) {
	return fromJSON(raw, 0)
}

func fromJSON(raw any, depth int) (Value, error) {
	switch val := raw.(type) {
	case nil:
		return Value{}, nil
	case json.Number:
		return ParseNumber(string(val))
	case float64:
		return NewReal(val), nil
	case int64:
		return NewInt(val), nil
	case string:
		return NewText(val), nil
	case bool:
		return NewBool(val), nil
	case map[string]any:
		if len(val) == 1 {
			if s, ok := val[numberDoubleKey].(string); ok {
				return ParseNumberDouble(s)
			}
		}
		return Value{}, fmt.Errorf("%w: JSON object", ErrUnsupported)
	case []any:
		if depth >= MaxDepth {
			return Value{}, fmt.Errorf("%w: sequence nested deeper than %d", ErrUnsupported, MaxDepth)
		}
		seq := make([]Value, len(val))
		for i, e := range val {
			ev, err := fromJSON(e, depth+1)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			seq[i] = ev
		}
		return Value{kind: KindSeq, seq: seq}, nil
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupported, raw)
}

// ParseNumber parses a JSON number literal, keeping integer literals as
// integers.
func ParseNumber(lit string) (Value, error) {
	if !strings.ContainsAny(lit, ".eE") {
		if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return NewInt(n), nil
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return Value{}, fmt.Errorf("parse number %q: %w", lit, err)
	}
	return NewReal(f), nil
}

// ParseNumberDouble parses the string payload of a $numberDouble wrapper.
func ParseNumberDouble(s string) (Value, error) {
	switch s {
	case "NaN":
		return NewReal(math.NaN()), nil
	case "Infinity":
		return NewReal(math.Inf(1)), nil
	case "-Infinity":
		return NewReal(math.Inf(-1)), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("parse %s %q: %w", numberDoubleKey, s, err)
	}
	return NewReal(f), nil
}
