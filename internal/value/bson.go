package value

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// BSON returns v in the form the bson package encodes natively:
// int64, float64, string, bool, bson.A, or nil for the undefined marker.
func (v Value) BSON() any {
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
		arr := make(bson.A, len(v.seq))
		for i, e := range v.seq {
			arr[i] = e.BSON()
		}
		return arr
	}
	return nil
}

// FromBSON converts a value produced by bson.Unmarshal into a bson.D back
// into a Value. BSON int32 and int64 both become integers.
func FromBSON(raw any) (Value, error) {
	return fromBSON(raw, 0)
}

func fromBSON(raw any, depth int) (Value, error) {
	switch val := raw.(type) {
	case nil:
		return Value{}, nil
	case int32:
		return NewInt(int64(val)), nil
	case int64:
		return NewInt(val), nil
	case float64:
		return NewReal(val), nil
	case string:
		return NewText(val), nil
	case bool:
		return NewBool(val), nil
	case bson.A:
		return fromBSONArray([]any(val), depth)
	case []any:
		return fromBSONArray(val, depth)
	}
	return Value{}, fmt.Errorf("%w: BSON %T", ErrUnsupported, raw)
}

func fromBSONArray(arr []any, depth int) (Value, error) {
	if depth >= MaxDepth {
		return Value{}, fmt.Errorf("%w: sequence nested deeper than %d", ErrUnsupported, MaxDepth)
	}
	seq := make([]Value, len(arr))
	for i, e := range arr {
		ev, err := fromBSON(e, depth+1)
		if err != nil {
			return Value{}, fmt.Errorf("[%d]: %w", i, err)
		}
		seq[i] = ev
	}
	return Value{kind: KindSeq, seq: seq}, nil
}
