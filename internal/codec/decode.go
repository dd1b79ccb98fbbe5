package codec

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/casestore/internal/record"
	"github.com/roach88/casestore/internal/value"
)

var (
	// ErrTruncated reports a stream that ends inside a record.
	ErrTruncated = errors.New("truncated stream")
	// ErrMalformed reports bytes that do not decode as a record.
	ErrMalformed = errors.New("malformed record")
)

// Decoder reads records in file order.
type Decoder interface {
	// Next returns the next record and its top-level key.
	// It returns io.EOF after the last record.
	Next() (string, Doc, error)
	// Offset is the input byte offset reached so far.
	Offset() int64
}

// NewDecoder returns a decoder for f. Auto is not accepted; callers detect
// the format first.
func NewDecoder(r io.Reader, f Format) (Decoder, error) {
	switch f {
	case Text:
		return newTextDecoder(r), nil
	case Binary:
		return newBinaryDecoder(r), nil
	}
	return nil, fmt.Errorf("no decoder for format %s", f)
}

type textDecoder struct {
	dec     *json.Decoder
	started bool
	done    bool
}

func newTextDecoder(r io.Reader) *textDecoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &textDecoder{dec: dec}
}

func (d *textDecoder) Offset() int64 { return d.dec.InputOffset() }

func (d *textDecoder) Next() (string, Doc, error) {
	if d.done {
		return "", nil, io.EOF
	}
	if !d.started {
		tok, err := d.dec.Token()
		if err == io.EOF {
			d.done = true
			return "", nil, io.EOF
		}
		if err != nil {
			return "", nil, d.wrap(err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '{' {
			return "", nil, fmt.Errorf("%w: expected '{' at start of document, got %v", ErrMalformed, tok)
		}
		d.started = true
	}

	if !d.dec.More() {
		tok, err := d.dec.Token()
		if err != nil {
			return "", nil, d.wrap(err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '}' {
			return "", nil, fmt.Errorf("%w: expected '}' at end of document, got %v", ErrMalformed, tok)
		}
		if _, err := d.dec.Token(); err != io.EOF {
			return "", nil, fmt.Errorf("%w: data after end of document", ErrMalformed)
		}
		d.done = true
		return "", nil, io.EOF
	}

	tok, err := d.dec.Token()
	if err != nil {
		return "", nil, d.wrap(err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", nil, fmt.Errorf("%w: expected record key, got %v", ErrMalformed, tok)
	}
	v, err := d.readValue()
	if err != nil {
		return key, nil, err
	}
	doc, ok := v.(Doc)
	if !ok {
		return key, nil, fmt.Errorf("%w: record %s is not an object", ErrMalformed, key)
	}
	return key, doc, nil
}

func (d *textDecoder) wrap(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

// readValue reads one JSON value, keeping object key order.
func (d *textDecoder) readValue() (any, error) {
	tok, err := d.dec.Token()
	if err != nil {
		return nil, d.wrap(err)
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return d.readObject()
		case '[':
			return d.readArray()
		}
		return nil, fmt.Errorf("%w: unexpected %v", ErrMalformed, t)
	case json.Number:
		v, err := value.ParseNumber(string(t))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return v.Interface(), nil
	case nil, string, bool:
		return t, nil
	}
	return nil, fmt.Errorf("%w: unexpected token %v", ErrMalformed, tok)
}

func (d *textDecoder) readObject() (any, error) {
	doc := Doc{}
	for d.dec.More() {
		tok, err := d.dec.Token()
		if err != nil {
			return nil, d.wrap(err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected object key, got %v", ErrMalformed, tok)
		}
		v, err := d.readValue()
		if err != nil {
			return nil, err
		}
		doc = append(doc, Elem{Key: key, Val: v})
	}
	if _, err := d.dec.Token(); err != nil {
		return nil, d.wrap(err)
	}

	// Non-finite doubles use the extended JSON wrapper.
	if len(doc) == 1 && doc[0].Key == "$numberDouble" {
		s, ok := doc[0].Val.(string)
		if !ok {
			return nil, fmt.Errorf("%w: $numberDouble must be a string", ErrMalformed)
		}
		v, err := value.ParseNumberDouble(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return v.Interface(), nil
	}
	return doc, nil
}

func (d *textDecoder) readArray() (any, error) {
	arr := []any{}
	for d.dec.More() {
		v, err := d.readValue()
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	if _, err := d.dec.Token(); err != nil {
		return nil, d.wrap(err)
	}
	return arr, nil
}

type binaryDecoder struct {
	r       *bufio.Reader
	offset  int64
	records int
	drivers int
	cases   int
}

func newBinaryDecoder(r io.Reader) *binaryDecoder {
	return &binaryDecoder{r: bufio.NewReader(r)}
}

func (d *binaryDecoder) Offset() int64 { return d.offset }

func (d *binaryDecoder) Next() (string, Doc, error) {
	var prefix [4]byte
	n, err := io.ReadFull(d.r, prefix[:])
	if err == io.EOF {
		return "", nil, io.EOF
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: length prefix has %d of 4 bytes", ErrTruncated, n)
	}
	size := binary.LittleEndian.Uint32(prefix[:])
	if size > MaxFrame {
		return "", nil, fmt.Errorf("%w: frame length %d exceeds %d", ErrMalformed, size, MaxFrame)
	}

	body := make([]byte, size)
	if n, err := io.ReadFull(d.r, body); err != nil {
		return "", nil, fmt.Errorf("%w: frame of %d bytes runs past end of stream after %d", ErrTruncated, size, n)
	}

	if err := bson.Raw(body).Validate(); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var raw bson.D
	if err := bson.Unmarshal(body, &raw); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	doc, err := docFromBSON(raw)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	d.offset += int64(4 + size)
	d.records++
	var key string
	switch {
	case d.records == 1:
		key = SimulationKey
	case doc.Has(record.FieldDriverID):
		d.cases++
		key = CaseKey(d.cases)
	default:
		d.drivers++
		key = DriverKey(d.drivers)
	}
	return key, doc, nil
}
