package ftdc

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/spatialaccel/logging"
)

// FlatDatum is one parsed datum with fully qualified metric names.
type FlatDatum struct {
	// Time is nanoseconds since the epoch.
	Time     int64
	Readings []Reading
}

// Reading is a metric name paired with its value.
type Reading struct {
	MetricName string
	Value      float32
}

// ConvertedTime returns Time in UTC.
func (fd *FlatDatum) ConvertedTime() time.Time {
	return time.Unix(0, fd.Time).UTC()
}

// Value returns the reading for a fully qualified metric name.
func (fd *FlatDatum) Value(metricName string) (float32, bool) {
	for _, r := range fd.Readings {
		if r.MetricName == metricName {
			return r.Value, true
		}
	}
	return 0, false
}

// asDatum regroups the readings by statser name.
func (fd *FlatDatum) asDatum() datum {
	names := make([]string, len(fd.Readings))
	values := make([]float32, len(fd.Readings))
	for i, r := range fd.Readings {
		names[i] = r.MetricName
		values[i] = r.Value
	}
	return datum{Time: fd.Time, Data: hydrate(names, values)}
}

// Parse reads every document from rawReader. On error the datums parsed so far are returned
// along with the error.
func Parse(rawReader io.Reader) ([]FlatDatum, error) {
	logger := logging.NewBlankLogger("ftdc")
	logger.SetLevel(logging.ERROR)
	return ParseWithLogger(rawReader, logger)
}

// ParseWithLogger is Parse with debug output for each document.
func ParseWithLogger(rawReader io.Reader, logger logging.Logger) ([]FlatDatum, error) {
	ret := make([]FlatDatum, 0)
	reader := bufio.NewReader(rawReader)

	var (
		current    *schema
		prevValues []float32
	)
	for {
		peek, err := reader.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ret, nil
			}
			return ret, err
		}

		if peek[0] == 0x1 {
			// Peek succeeded, so ReadByte cannot fail.
			_, _ = reader.ReadByte()
			current, reader, err = readSchema(reader)
			if err != nil {
				return ret, err
			}
			logger.Debugw("read schema", "fields", current.fieldOrder)
			prevValues = nil
			continue
		}
		if current == nil {
			return ret, errors.New("ftdc data must start with a schema document")
		}

		changed, err := readDiffBits(reader, current)
		if err != nil {
			return ret, err
		}
		var timeNanos int64
		if err := binary.Read(reader, binary.BigEndian, &timeNanos); err != nil {
			return ret, errors.Wrap(err, "error reading time")
		}
		values, err := readData(reader, current, changed, prevValues)
		if err != nil {
			return ret, err
		}
		logger.Debugw("read datum", "time", timeNanos, "changed", current.FieldNamesForIndexes(changed))

		prevValues = values
		ret = append(ret, FlatDatum{Time: timeNanos, Readings: current.Zip(values)})
	}
}

// readSchema reads the JSON field list and returns a reader positioned at the next document.
func readSchema(reader *bufio.Reader) (*schema, *bufio.Reader, error) {
	decoder := json.NewDecoder(reader)
	var fields []string
	if err := decoder.Decode(&fields); err != nil {
		return nil, nil, errors.Wrap(err, "error reading schema")
	}

	// The decoder may have buffered past the end of the array.
	next := bufio.NewReader(io.MultiReader(decoder.Buffered(), reader))
	if ch, err := next.ReadByte(); err != nil || ch != '\n' {
		return nil, nil, errors.New("schema is not terminated by a newline")
	}

	s := &schema{fieldOrder: fields}
	seen := map[string]struct{}{}
	for _, field := range fields {
		dot := strings.Index(field, ".")
		if dot <= 0 {
			return nil, nil, errors.Errorf("metric name %q has no statser prefix", field)
		}
		if _, ok := seen[field[:dot]]; !ok {
			seen[field[:dot]] = struct{}{}
			s.mapOrder = append(s.mapOrder, field[:dot])
		}
	}
	return s, next, nil
}

// readDiffBits returns the schema indexes of the metrics that changed.
func readDiffBits(reader *bufio.Reader, s *schema) ([]int, error) {
	bits := make([]byte, diffBitBytes(len(s.fieldOrder)))
	if _, err := io.ReadFull(reader, bits); err != nil {
		return nil, errors.Wrap(err, "error reading diff bits")
	}
	var changed []int
	for idx := range s.fieldOrder {
		bit := idx + 1
		if bits[bit/8]&(1<<(bit%8)) != 0 {
			changed = append(changed, idx)
		}
	}
	return changed, nil
}

// readData returns the full value list for a datum, carrying unchanged metrics over from
// prevValues, or zero right after a schema.
func readData(reader *bufio.Reader, s *schema, changed []int, prevValues []float32) ([]float32, error) {
	if prevValues != nil && len(prevValues) != len(s.fieldOrder) {
		return nil, errors.Errorf("previous values have %d entries for a schema of %d fields",
			len(prevValues), len(s.fieldOrder))
	}
	out := make([]float32, len(s.fieldOrder))
	copy(out, prevValues)
	for _, idx := range changed {
		if err := binary.Read(reader, binary.BigEndian, &out[idx]); err != nil {
			return nil, errors.Wrap(err, "error reading values")
		}
	}
	return out, nil
}

// hydrate regroups fully qualified names into a statser name -> metric name -> value map.
func hydrate(metricNames []string, values []float32) map[string]any {
	ret := make(map[string]any)
	for idx, full := range metricNames {
		statser, metric, _ := strings.Cut(full, ".")
		group, ok := ret[statser].(map[string]float32)
		if !ok {
			group = map[string]float32{}
			ret[statser] = group
		}
		group[metric] = values[idx]
	}
	return ret
}

// Zip pairs schema names with values.
func (s *schema) Zip(data []float32) []Reading {
	ret := make([]Reading, len(s.fieldOrder))
	for idx, name := range s.fieldOrder {
		ret[idx] = Reading{name, data[idx]}
	}
	return ret
}

// FieldNamesForIndexes maps schema indexes to metric names.
func (s *schema) FieldNamesForIndexes(idxs []int) []string {
	ret := make([]string, len(idxs))
	for i, idx := range idxs {
		ret[i] = s.fieldOrder[idx]
	}
	return ret
}
