package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/roach88/casestore/internal/codec"
	"github.com/roach88/casestore/internal/metrics"
)

// sniffLen is how many bytes Auto inspects to pick a format.
const sniffLen = 64

type loadConfig struct {
	log *zap.Logger
}

// Option configures Load.
type Option func(*loadConfig)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *loadConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// Load reads a complete case file. Format Auto sniffs the first bytes.
// Empty input yields an empty Dataset. Any framing or structural problem
// fails the whole load with a *FormatError.
func Load(r io.Reader, f codec.Format, opts ...Option) (*Dataset, error) {
	cfg := loadConfig{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	br := bufio.NewReader(r)
	if f == codec.Auto {
		prefix, err := br.Peek(sniffLen)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read case file: %w", err)
		}
		if len(prefix) == 0 {
			cfg.log.Debug("empty case file")
			return NewBuilder().Finish()
		}
		f = codec.DetectFormat(prefix)
	}

	ds, err := load(br, f)
	metrics.Loaded(f.String(), lenOrZero(ds), err)
	if err != nil {
		cfg.log.Debug("load failed", zap.Stringer("format", f), zap.Error(err))
		return nil, err
	}
	cfg.log.Debug("case file loaded",
		zap.Stringer("format", f),
		zap.String("run", ds.Simulation.UUID),
		zap.Int("drivers", len(ds.Drivers)),
		zap.Int("cases", len(ds.Cases)))
	return ds, nil
}

func lenOrZero(ds *Dataset) int {
	if ds == nil {
		return 0
	}
	return ds.Len()
}

func load(r io.Reader, f codec.Format) (*Dataset, error) {
	dec, err := codec.NewDecoder(r, f)
	if err != nil {
		return nil, err
	}
	b := NewBuilder()
	for {
		offset := dec.Offset()
		key, doc, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &FormatError{Record: key, Offset: offset, Reason: "cannot decode record", Err: err}
		}
		if err := b.Add(key, doc); err != nil {
			return nil, withOffset(err, offset)
		}
	}
	ds, err := b.Finish()
	if err != nil {
		return nil, withOffset(err, dec.Offset())
	}
	return ds, nil
}

func withOffset(err error, offset int64) error {
	var fe *FormatError
	if errors.As(err, &fe) && fe.Offset < 0 {
		fe.Offset = offset
	}
	return err
}

// LoadFile opens path and loads it.
func LoadFile(path string, f codec.Format, opts ...Option) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open case file: %w", err)
	}
	defer file.Close()
	return Load(file, f, opts...)
}
