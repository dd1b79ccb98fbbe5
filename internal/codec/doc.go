package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/casestore/internal/value"
)

// Elem is one key of a Doc.
type Elem struct {
	Key string
	Val any
}

// Doc is an ordered document, the unit both formats encode.
//
// When encoding, Val must be nil, string, []string, value.Value or Doc.
// Decoded documents hold nil, string, int64, float64, bool, []any or Doc.
type Doc []Elem

// Get returns the value stored under key.
func (d Doc) Get(key string) (any, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Val, true
		}
	}
	return nil, false
}

// Has reports whether key is present.
func (d Doc) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Keys returns the keys in order.
func (d Doc) Keys() []string {
	keys := make([]string, len(d))
	for i, e := range d {
		keys[i] = e.Key
	}
	return keys
}

// MarshalJSON writes d as a compact JSON object in key order.
func (d Doc) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.appendJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d Doc) appendJSON(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, e := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(e.Key)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := appendJSONVal(buf, e.Val); err != nil {
			return fmt.Errorf("%s: %w", e.Key, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func appendJSONVal(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		b, err := marshalNoEscape(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	case []string:
		buf.WriteByte('[')
		for i, s := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := marshalNoEscape(s)
			if err != nil {
				return err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
	case value.Value:
		b, err := val.MarshalJSON()
		if err != nil {
			return err
		}
		buf.Write(b)
	case Doc:
		return val.appendJSON(buf)
	default:
		return fmt.Errorf("cannot encode %T", v)
	}
	return nil
}

func marshalNoEscape(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// BSON converts d into a bson.D ready for bson.Marshal.
func (d Doc) BSON() (bson.D, error) {
	out := make(bson.D, 0, len(d))
	for _, e := range d {
		v, err := bsonVal(e.Val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Key, err)
		}
		out = append(out, bson.E{Key: e.Key, Value: v})
	}
	return out, nil
}

func bsonVal(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return val, nil
	case []string:
		arr := make(bson.A, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return arr, nil
	case value.Value:
		return val.BSON(), nil
	case Doc:
		return val.BSON()
	}
	return nil, fmt.Errorf("cannot encode %T", v)
}

// docFromBSON converts a decoded bson.D into the generic Doc form.
func docFromBSON(d bson.D) (Doc, error) {
	out := make(Doc, 0, len(d))
	for _, e := range d {
		v, err := genericFromBSON(e.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Key, err)
		}
		out = append(out, Elem{Key: e.Key, Val: v})
	}
	return out, nil
}

func genericFromBSON(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, int64, float64, bool:
		return val, nil
	case int32:
		return int64(val), nil
	case bson.D:
		return docFromBSON(val)
	case bson.A:
		out := make([]any, len(val))
		for i, e := range val {
			g, err := genericFromBSON(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = g
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported BSON type %T", v)
}
