package value

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxDepth is the deepest sequence nesting a Value may carry:
// sequence of sequence of sequence of scalars.
const MaxDepth = 3

// ErrUnsupported is returned when a producer value cannot be represented.
var ErrUnsupported = errors.New("value not representable")

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	// KindUndefined marks a missing value. It is never recorded.
	KindUndefined Kind = iota
	KindInt
	KindReal
	KindText
	KindBool
	KindSeq
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindInt:       "int",
	KindReal:      "real",
	KindText:      "text",
	KindBool:      "bool",
	KindSeq:       "seq",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Numeric reports whether values of this kind have a float reading.
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindReal
}

// Value is a recordable value. Construct with NewInt, NewReal, NewText,
// NewBool, NewSeq or From; the zero Value is undefined.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    bool
	seq  []Value
}

// NewInt creates an integer value.
func NewInt(n int64) Value {
	return Value{kind: KindInt, i: n}
}

// NewReal creates a real value.
func NewReal(f float64) Value {
	return Value{kind: KindReal, f: f}
}

// NewText creates a text value.
func NewText(s string) Value {
	return Value{kind: KindText, s: s}
}

// NewBool creates a boolean value.
func NewBool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// NewSeq creates a sequence value. It returns ErrUnsupported when the
// elements would nest deeper than MaxDepth or contain an undefined value.
func NewSeq(elems ...Value) (Value, error) {
	v := Value{kind: KindSeq, seq: append([]Value(nil), elems...)}
	if v.Depth() > MaxDepth {
		return Value{}, fmt.Errorf("%w: sequence nested %d levels (max %d)", ErrUnsupported, v.Depth(), MaxDepth)
	}
	for i, e := range elems {
		if e.kind == KindUndefined {
			return Value{}, fmt.Errorf("%w: seq[%d] is undefined", ErrUnsupported, i)
		}
	}
	return v, nil
}

// MustSeq is like NewSeq but panics on error.
// Use only in tests or when the elements are known to be valid.
func MustSeq(elems ...Value) Value {
	v, err := NewSeq(elems...)
	if err != nil {
		panic(err)
	}
	return v
}

// Missing returns the undefined marker.
func Missing() Value {
	return Value{}
}

// MissingFor returns the missing-value marker for a variable of kind k:
// NaN for numeric variables, the undefined marker otherwise.
func MissingFor(k Kind) Value {
	if k.Numeric() {
		return NewReal(math.NaN())
	}
	return Value{}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Int returns the integer held by v and whether v is an integer.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Real returns the real held by v and whether v is a real.
func (v Value) Real() (float64, bool) { return v.f, v.kind == KindReal }

// Text returns the text held by v and whether v is text.
func (v Value) Text() (string, bool) { return v.s, v.kind == KindText }

// Bool returns the boolean held by v and whether v is a boolean.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Seq returns a copy of the elements held by v and whether v is a sequence.
func (v Value) Seq() ([]Value, bool) {
	if v.kind != KindSeq {
		return nil, false
	}
	return append([]Value(nil), v.seq...), true
}

// Len returns the number of elements of a sequence, 0 for scalars.
func (v Value) Len() int { return len(v.seq) }

// Index returns element i of a sequence.
func (v Value) Index(i int) Value { return v.seq[i] }

// Depth returns the sequence nesting depth: 0 for scalars, 1 for a sequence
// of scalars and so on.
func (v Value) Depth() int {
	if v.kind != KindSeq {
		return 0
	}
	d := 0
	for _, e := range v.seq {
		if ed := e.Depth(); ed > d {
			d = ed
		}
	}
	return d + 1
}

// Float returns the numeric reading of v, or NaN when v is not numeric.
func (v Value) Float() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindReal:
		return v.f
	default:
		return math.NaN()
	}
}

// IsMissing reports whether v is a missing-value marker: undefined, or a
// NaN real.
func (v Value) IsMissing() bool {
	return v.kind == KindUndefined || (v.kind == KindReal && math.IsNaN(v.f))
}

// IsMissing reports whether v is a missing-value marker.
func IsMissing(v Value) bool { return v.IsMissing() }

// Equal reports whether v and o hold the same kind and data.
// NaN reals compare equal to each other so results stay comparable.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindUndefined:
		return true
	case KindInt:
		return v.i == o.i
	case KindReal:
		if math.IsNaN(v.f) || math.IsNaN(o.f) {
			return math.IsNaN(v.f) && math.IsNaN(o.f)
		}
		return v.f == o.f
	case KindText:
		return v.s == o.s
	case KindBool:
		return v.b == o.b
	case KindSeq:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface returns v as a plain Go value: int64, float64, string, bool,
// []any, or nil when undefined.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindReal:
		return v.f
	case KindText:
		return v.s
	case KindBool:
		return v.b
	case KindSeq:
		out := make([]any, len(v.seq))
		for i, e := range v.seq {
			out[i] = e.Interface()
		}
		return out
	}
	return nil
}

// String renders v for display.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindSeq:
		parts := make([]string, len(v.seq))
		for i, e := range v.seq {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "undefined"
}

// From converts a producer value into a Value.
//
// Accepted: Value, signed and unsigned integers, floats, strings, bools,
// and slices or arrays of those nested at most MaxDepth levels (including
// typed slices such as []float64 or [][]int). Everything else, nil
// included, fails with ErrUnsupported, as does text that is not valid
// UTF-8.
func From(x any) (Value, error) {
	return from(x, 0)
}

func from(x any, depth int) (Value, error) {
	switch val := x.(type) {
	case nil:
		return Value{}, fmt.Errorf("%w: nil", ErrUnsupported)
	case Value:
		if val.kind == KindUndefined {
			return Value{}, fmt.Errorf("%w: undefined", ErrUnsupported)
		}
		if depth+val.Depth() > MaxDepth {
			return Value{}, fmt.Errorf("%w: sequence nested deeper than %d", ErrUnsupported, MaxDepth)
		}
		if !val.validUTF8() {
			return Value{}, errInvalidUTF8
		}
		return val, nil
	case int:
		return NewInt(int64(val)), nil
	case int64:
		return NewInt(val), nil
	case int32:
		return NewInt(int64(val)), nil
	case float64:
		return NewReal(val), nil
	case float32:
		return NewReal(float64(val)), nil
	case string:
		return fromString(val)
	case bool:
		return NewBool(val), nil
	case []any:
		return fromElems(len(val), func(i int) any { return val[i] }, depth)
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return NewInt(int64(rv.Uint())), nil
	case reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: %d overflows int64", ErrUnsupported, u)
		}
		return NewInt(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return NewReal(rv.Float()), nil
	case reflect.String:
		return fromString(rv.String())
	case reflect.Bool:
		return NewBool(rv.Bool()), nil
	case reflect.Slice, reflect.Array:
		return fromElems(rv.Len(), func(i int) any { return rv.Index(i).Interface() }, depth)
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupported, x)
}

var errInvalidUTF8 = fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupported)

func fromString(s string) (Value, error) {
	if !utf8.ValidString(s) {
		return Value{}, errInvalidUTF8
	}
	return NewText(s), nil
}

func (v Value) validUTF8() bool {
	switch v.kind {
	case KindText:
		return utf8.ValidString(v.s)
	case KindSeq:
		for _, e := range v.seq {
			if !e.validUTF8() {
				return false
			}
		}
	}
	return true
}

func fromElems(n int, elem func(int) any, depth int) (Value, error) {
	if depth >= MaxDepth {
		return Value{}, fmt.Errorf("%w: sequence nested deeper than %d", ErrUnsupported, MaxDepth)
	}
	seq := make([]Value, n)
	for i := 0; i < n; i++ {
		e, err := from(elem(i), depth+1)
		if err != nil {
			return Value{}, fmt.Errorf("[%d]: %w", i, err)
		}
		seq[i] = e
	}
	return Value{kind: KindSeq, seq: seq}, nil
}

// MustFrom is like From but panics on error.
// Use only in tests or when the input is known to be valid.
func MustFrom(x any) Value {
	v, err := From(x)
	if err != nil {
		panic(err)
	}
	return v
}
