// Package recorder appends case records to a sink in one of the two wire
// formats.
//
// A Recorder is driven synchronously by a single producer. The producer
// writes one simulation_info, then driver_info records and iteration cases
// as drivers run, then closes the recorder. Each record is encoded in full
// and appended with a single Write, so a failed record leaves nothing
// behind. Once closed, a Recorder silently discards every write.
//
// Thread-safety: a Recorder is not safe for concurrent use.
package recorder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/roach88/casestore/internal/codec"
	"github.com/roach88/casestore/internal/metrics"
	"github.com/roach88/casestore/internal/record"
	"github.com/roach88/casestore/internal/value"
)

// Field is one producer-supplied name and raw value.
type Field struct {
	Name  string
	Value any
}

// F is shorthand for Field{name, v}.
func F(name string, v any) Field {
	return Field{Name: name, Value: v}
}

// Simulation is the producer-side simulation_info.
// An empty UUID is replaced by the recorder's run id.
type Simulation struct {
	UUID        string
	Name        string
	Variables   []string
	Constants   []Field
	Expressions []record.Expression
}

// Case is the producer-side iteration case.
// A zero Timestamp is replaced by the recorder's clock.
type Case struct {
	ID           string
	ParentID     string
	DriverID     string
	Timestamp    time.Time
	ErrorStatus  *int
	ErrorMessage string
	Values       []Field
}

// CaseRecorder is the producer-facing write API.
type CaseRecorder interface {
	WriteSimulationInfo(Simulation) error
	WriteDriverInfo(record.DriverInfo) error
	WriteCase(Case) error
	Close() error
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock sets the clock used for cases without a timestamp.
func WithClock(c Clock) Option {
	return func(r *Recorder) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithIDGenerator sets the generator for the run id.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Recorder) {
		if g != nil {
			r.ids = g
		}
	}
}

// Recorder writes records to one sink.
type Recorder struct {
	w      io.Writer
	closer io.Closer
	enc    codec.Encoder
	log    *zap.Logger
	clock  Clock
	ids    IDGenerator

	runID   string
	closed  bool
	wrote   bool
	simDone bool

	drivers  map[string]struct{}
	caseIDs  map[string]struct{}
	nDrivers int
	nCases   int

	catalog   []string
	inCatalog map[string]struct{}
}

var _ CaseRecorder = (*Recorder)(nil)

// New creates a Recorder writing format f to w. The caller keeps ownership
// of w; Close does not close it.
func New(w io.Writer, f codec.Format, opts ...Option) (*Recorder, error) {
	enc, err := codec.NewEncoder(f)
	if err != nil {
		return nil, err
	}
	r := &Recorder{
		w:         w,
		enc:       enc,
		log:       zap.NewNop(),
		clock:     systemClock{},
		ids:       UUIDv7Generator{},
		drivers:   make(map[string]struct{}),
		caseIDs:   make(map[string]struct{}),
		inCatalog: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.runID = r.ids.Generate()
	return r, nil
}

// OpenFile creates path and returns a Recorder writing to it.
// Close closes the file.
func OpenFile(path string, f codec.Format, opts ...Option) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create case file: %w", err)
	}
	r, err := New(file, f, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// RunID returns the run identifier written as simulation_info.uuid.
func (r *Recorder) RunID() string { return r.runID }

// Format returns the wire format.
func (r *Recorder) Format() codec.Format { return r.enc.Format() }

// Closed reports whether Close has been called.
func (r *Recorder) Closed() bool { return r.closed }

// Catalog returns the variable names written in simulation_info, normalized
// and de-duplicated. Every case value must be named in it.
func (r *Recorder) Catalog() []string {
	return append([]string(nil), r.catalog...)
}

func (r *Recorder) note(names ...string) {
	for _, n := range names {
		n = codec.NormalizeName(n)
		if _, ok := r.inCatalog[n]; ok {
			continue
		}
		r.inCatalog[n] = struct{}{}
		r.catalog = append(r.catalog, n)
	}
}

// dropped reports whether the recorder is closed, counting the discarded
// write.
func (r *Recorder) dropped(what string) bool {
	if !r.closed {
		return false
	}
	metrics.WriteDropped(r.enc.Format().String())
	r.log.Debug("write after close discarded", zap.String("record", what))
	return true
}

// WriteSimulationInfo writes the header record. It must be the first write
// and happen once.
func (r *Recorder) WriteSimulationInfo(in Simulation) error {
	if r.dropped(codec.SimulationKey) {
		return nil
	}
	if r.simDone {
		return fmt.Errorf("%w: simulation_info already written", ErrOutOfOrder)
	}

	constants, err := r.convert(codec.SimulationKey+".constants", in.Constants)
	if err != nil {
		return err
	}
	if in.UUID != "" {
		r.runID = in.UUID
	}
	info := record.SimulationInfo{
		UUID:        r.runID,
		Name:        in.Name,
		Version:     record.FormatVersion,
		Variables:   in.Variables,
		Constants:   constants,
		Expressions: in.Expressions,
	}
	if err := r.append(codec.SimulationKey, codec.KindSimulation, codec.SimulationDoc(info)); err != nil {
		return err
	}
	r.simDone = true
	r.note(in.Variables...)
	return nil
}

// WriteDriverInfo writes a driver record. It must follow simulation_info
// and precede the driver's first case.
func (r *Recorder) WriteDriverInfo(info record.DriverInfo) error {
	key := codec.DriverKey(r.nDrivers + 1)
	if r.dropped(key) {
		return nil
	}
	if !r.simDone {
		return fmt.Errorf("%w: driver %q before simulation_info", ErrOutOfOrder, info.ID)
	}
	if info.ID == "" {
		return fmt.Errorf("%s: %w", key, ErrMissingID)
	}
	if _, ok := r.drivers[info.ID]; ok {
		return fmt.Errorf("%s: driver %q: %w", key, info.ID, ErrDuplicateID)
	}

	if err := r.append(key, codec.KindDriver, codec.DriverDoc(info)); err != nil {
		return err
	}
	r.drivers[info.ID] = struct{}{}
	r.nDrivers++
	return nil
}

// WriteCase writes one iteration case. Its driver must already be written.
// The parent may be written later: a driver's case follows the cases of the
// drivers it invoked.
func (r *Recorder) WriteCase(c Case) error {
	key := codec.CaseKey(r.nCases + 1)
	if r.dropped(key) {
		return nil
	}
	if !r.simDone {
		return fmt.Errorf("%w: case %q before simulation_info", ErrOutOfOrder, c.ID)
	}
	if c.ID == "" {
		return fmt.Errorf("%s: %w", key, ErrMissingID)
	}
	if _, ok := r.caseIDs[c.ID]; ok {
		return fmt.Errorf("%s: case %q: %w", key, c.ID, ErrDuplicateID)
	}
	if _, ok := r.drivers[c.DriverID]; !ok {
		return fmt.Errorf("%w: case %q references unwritten driver %q", ErrOutOfOrder, c.ID, c.DriverID)
	}

	values, err := r.convert(key, c.Values)
	if err != nil {
		return err
	}
	var unknown []string
	for _, n := range values.Names() {
		if _, ok := r.inCatalog[n]; !ok {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%s: case %q: %w: %v", key, c.ID, ErrNotInCatalog, unknown)
	}
	ts := c.Timestamp
	if ts.IsZero() {
		ts = r.clock.Now()
	}
	ic := record.IterationCase{
		ID:           c.ID,
		ParentID:     c.ParentID,
		DriverID:     c.DriverID,
		Timestamp:    unixSeconds(ts),
		ErrorStatus:  c.ErrorStatus,
		ErrorMessage: c.ErrorMessage,
		Values:       values,
	}
	if err := r.append(key, codec.KindCase, codec.CaseDoc(ic)); err != nil {
		return err
	}
	r.caseIDs[c.ID] = struct{}{}
	r.nCases++
	return nil
}

// convert turns producer fields into Vars. Every offending name is
// collected into one SerializationError.
func (r *Recorder) convert(recordName string, fields []Field) (record.Vars, error) {
	vars := make(record.Vars, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	var badKeys []string
	var cause error
	fail := func(name string, err error) {
		badKeys = append(badKeys, name)
		if cause == nil {
			cause = err
		}
	}

	for _, f := range fields {
		name := codec.NormalizeName(f.Name)
		switch {
		case name == "":
			fail(f.Name, fmt.Errorf("empty variable name"))
			continue
		case !utf8.ValidString(name):
			fail(f.Name, fmt.Errorf("%w: variable name is not valid UTF-8", value.ErrUnsupported))
			continue
		case record.IsBookkeeping(name):
			fail(f.Name, ErrReservedName)
			continue
		}
		if _, dup := seen[name]; dup {
			fail(f.Name, ErrDuplicateName)
			continue
		}
		seen[name] = struct{}{}

		v, err := value.From(f.Value)
		if err != nil {
			fail(f.Name, err)
			continue
		}
		vars = append(vars, record.Var{Name: name, Value: v})
	}

	if len(badKeys) > 0 {
		metrics.SerializationFailed(r.enc.Format().String())
		serr := &SerializationError{Record: recordName, Keys: badKeys, Err: cause}
		r.log.Warn("record not written",
			zap.String("record", recordName),
			zap.Strings("keys", badKeys),
			zap.Error(cause))
		return nil, serr
	}
	return vars, nil
}

// append encodes one record and writes it with a single Write call.
func (r *Recorder) append(key string, kind codec.RecordKind, doc codec.Doc) error {
	b, err := r.enc.Encode(key, doc, !r.wrote)
	if err != nil {
		metrics.SerializationFailed(r.enc.Format().String())
		return &SerializationError{Record: key, Keys: doc.Keys(), Err: err}
	}
	if _, err := r.w.Write(b); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	r.wrote = true
	metrics.RecordWritten(r.enc.Format().String(), kind.String(), len(b))
	r.log.Debug("record written", zap.String("record", key), zap.Int("bytes", len(b)))
	return nil
}

// Close ends the stream. It is idempotent. A text stream that received at
// least one record gets its closing brace; one that received none stays
// empty. A file opened by OpenFile is closed.
func (r *Recorder) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if trailer := r.enc.Trailer(r.wrote); len(trailer) > 0 {
		if _, err := r.w.Write(trailer); err != nil {
			errs = append(errs, fmt.Errorf("write trailer: %w", err))
		}
	}
	if r.closer != nil {
		if err := r.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close case file: %w", err))
		}
	}
	r.log.Debug("recorder closed",
		zap.String("run", r.runID),
		zap.Int("drivers", r.nDrivers),
		zap.Int("cases", r.nCases))
	return errors.Join(errs...)
}
