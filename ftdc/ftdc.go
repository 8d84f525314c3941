package ftdc

import (
	"io"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/spatialaccel/logging"
)

// Statser returns a struct of numeric fields, possibly nested. Non-numeric fields are ignored.
type Statser interface {
	Stats() any
}

// StatserFunc adapts a function to a Statser.
type StatserFunc func() any

// Stats calls f.
func (f StatserFunc) Stats() any {
	return f()
}

// datum is one capture: the Stats of every statser keyed by name.
type datum struct {
	Time int64
	Data map[string]any
}

// FTDC pulls stats from registered statsers on each Capture and appends them to a writer.
type FTDC struct {
	mu       sync.Mutex
	statsers map[string]Statser
	out      io.Writer
	clock    clock.Clock
	logger   logging.Logger

	current    *schema
	prevValues []float32
	captures   int
}

// Option configures an FTDC.
type Option func(*FTDC)

// WithClock sets the clock used to timestamp datums.
func WithClock(c clock.Clock) Option {
	return func(f *FTDC) {
		f.clock = c
	}
}

// New returns a recorder writing to out.
func New(out io.Writer, logger logging.Logger, opts ...Option) *FTDC {
	f := &FTDC{
		statsers: map[string]Statser{},
		out:      out,
		clock:    clock.New(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Add registers a statser. Names must be unique, non-empty and free of dots.
func (f *FTDC) Add(name string, statser Statser) error {
	if name == "" || strings.Contains(name, ".") {
		return errors.Errorf("invalid statser name %q", name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.statsers[name]; exists {
		return errors.Errorf("statser %q already registered", name)
	}
	f.statsers[name] = statser
	return nil
}

// Remove unregisters a statser. The next capture writes a new schema.
func (f *FTDC) Remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.statsers, name)
}

// Captures returns how many datums have been written.
func (f *FTDC) Captures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captures
}

// Capture reads every statser and writes one datum, preceded by a schema when the set of fields
// changed. Statsers that do not return a struct are skipped with a warning.
func (f *FTDC) Capture() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statsers) == 0 {
		return nil
	}

	d := datum{Time: f.clock.Now().UnixNano(), Data: make(map[string]any, len(f.statsers))}
	for name, statser := range f.statsers {
		d.Data[name] = statser.Stats()
	}

	next, err := getSchema(d.Data)
	var serr *schemaError
	for errors.As(err, &serr) {
		f.logger.Warnw("skipping statser without struct stats", "statser", serr.statserName, "error", serr.err)
		delete(d.Data, serr.statserName)
		next, err = getSchema(d.Data)
	}
	if err != nil {
		return err
	}
	if len(next.fieldOrder) == 0 {
		return nil
	}

	if !next.equal(f.current) {
		if err := writeSchema(next, f.out); err != nil {
			return err
		}
		f.current = next
		f.prevValues = nil
	}

	values, err := flatten(d, f.current)
	if err != nil {
		return err
	}
	if err := writeDatum(d.Time, f.prevValues, values, f.out); err != nil {
		return err
	}
	f.prevValues = values
	f.captures++
	return nil
}
