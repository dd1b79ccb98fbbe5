package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/bson"
)

// Indent is the text format indentation unit.
const Indent = "    "

// Encoder turns records into the bytes appended to a stream.
//
// Encoders are stateless: the caller tracks whether a record is the first
// in the stream, since a record is only counted once its bytes reach the
// sink.
type Encoder interface {
	Format() Format
	// Encode returns the complete bytes for one record.
	Encode(key string, doc Doc, first bool) ([]byte, error)
	// Trailer returns the bytes that end the stream, or nil.
	// wrote reports whether any record was written.
	Trailer(wrote bool) []byte
}

// NewEncoder returns the encoder for f.
func NewEncoder(f Format) (Encoder, error) {
	switch f {
	case Text:
		return textEncoder{}, nil
	case Binary:
		return binaryEncoder{}, nil
	}
	return nil, fmt.Errorf("no encoder for format %s", f)
}

type textEncoder struct{}

func (textEncoder) Format() Format { return Text }

func (textEncoder) Encode(key string, doc Doc, first bool) ([]byte, error) {
	compact, err := doc.MarshalJSON()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if first {
		buf.WriteString("{\n")
	} else {
		buf.WriteString(",\n")
	}
	k, err := marshalNoEscape(key)
	if err != nil {
		return nil, err
	}
	buf.Write(k)
	buf.WriteString(": ")
	if err := json.Indent(&buf, compact, "", Indent); err != nil {
		return nil, fmt.Errorf("indent %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

func (textEncoder) Trailer(wrote bool) []byte {
	if !wrote {
		return nil
	}
	return []byte("\n}\n")
}

// MaxFrame bounds the size of a single binary frame.
const MaxFrame = 64 << 20

type binaryEncoder struct{}

func (binaryEncoder) Format() Format { return Binary }

func (binaryEncoder) Encode(key string, doc Doc, _ bool) ([]byte, error) {
	d, err := doc.BSON()
	if err != nil {
		return nil, err
	}
	body, err := bson.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("bson %s: %w", key, err)
	}
	if len(body) > MaxFrame || uint64(len(body)) > math.MaxUint32 {
		return nil, fmt.Errorf("record %s is %d bytes, over the %d byte frame limit", key, len(body), MaxFrame)
	}
	out := make([]byte, 4, 4+len(body))
	binary.LittleEndian.PutUint32(out, uint32(len(body)))
	return append(out, body...), nil
}

func (binaryEncoder) Trailer(bool) []byte { return nil }
