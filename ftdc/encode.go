package ftdc

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"reflect"
	"slices"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// epsilon below which a float32 difference counts as unchanged.
const epsilon = 1e-9

type schema struct {
	// mapOrder is the order statsers are walked when flattening a datum.
	mapOrder []string
	// fieldOrder is the flattened, dot separated metric names in the order values are written.
	fieldOrder []string
}

func (s *schema) equal(o *schema) bool {
	return o != nil && slices.Equal(s.mapOrder, o.mapOrder) && slices.Equal(s.fieldOrder, o.fieldOrder)
}

func writeSchema(s *schema, output io.Writer) error {
	if _, err := output.Write([]byte{0x1}); err != nil {
		return errors.Wrap(err, "error writing schema byte")
	}
	// Encode appends the trailing newline the format requires.
	if err := json.NewEncoder(output).Encode(s.fieldOrder); err != nil {
		return errors.Wrap(err, "error writing schema")
	}
	return nil
}

// diffBitBytes is the number of bytes needed for numFields diff bits plus the marker bit.
func diffBitBytes(numFields int) int {
	return 1 + numFields/8
}

// writeDatum writes one datum. prev may be empty, meaning all zeroes; otherwise it must be the
// same length as curr.
func writeDatum(timeNanos int64, prev, curr []float32, output io.Writer) error {
	if len(prev) != 0 && len(prev) != len(curr) {
		return errors.Errorf("mismatched datum sizes, prev: %d curr: %d", len(prev), len(curr))
	}

	changed := make([]bool, len(curr))
	bits := make([]byte, diffBitBytes(len(curr)))
	for idx, value := range curr {
		var before float32
		if len(prev) != 0 {
			before = prev[idx]
		}
		if math.Abs(float64(value-before)) > epsilon {
			changed[idx] = true
			bit := idx + 1
			bits[bit/8] |= 1 << (bit % 8)
		}
	}

	if _, err := output.Write(bits); err != nil {
		return errors.Wrap(err, "error writing diff bits")
	}
	if err := binary.Write(output, binary.BigEndian, timeNanos); err != nil {
		return errors.Wrap(err, "error writing time")
	}
	for idx, value := range curr {
		if !changed[idx] {
			continue
		}
		if err := binary.Write(output, binary.BigEndian, value); err != nil {
			return errors.Wrap(err, "error writing values")
		}
	}
	return nil
}

var errNotStruct = errors.New("stats object is not a struct")

func deref(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v
		}
		v = v.Elem()
	}
	return v
}

func isNumeric(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// fieldsForStruct returns the dot separated names of every numeric leaf of a stats struct, in
// field order. Non-numeric fields such as strings are ignored.
func fieldsForStruct(item reflect.Value) ([]string, error) {
	v := deref(item)
	if v.Kind() != reflect.Struct {
		return nil, errNotStruct
	}
	var fields []string
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := deref(v.Field(i))
		name := t.Field(i).Name
		switch {
		case isNumeric(field.Kind()):
			fields = append(fields, name)
		case field.Kind() == reflect.Struct:
			sub, err := fieldsForStruct(field)
			if err != nil {
				return nil, err
			}
			for _, s := range sub {
				fields = append(fields, name+"."+s)
			}
		}
	}
	return fields, nil
}

// flattenStruct returns the numeric leaves of a stats struct in the same order as
// fieldsForStruct names them.
func flattenStruct(item reflect.Value) []float32 {
	v := deref(item)
	if v.Kind() != reflect.Struct {
		return nil
	}
	var numbers []float32
	for i := 0; i < v.NumField(); i++ {
		field := deref(v.Field(i))
		switch {
		case field.CanUint():
			numbers = append(numbers, float32(field.Uint()))
		case field.CanInt():
			numbers = append(numbers, float32(field.Int()))
		case field.CanFloat():
			numbers = append(numbers, float32(field.Float()))
		case field.Kind() == reflect.Bool:
			numbers = append(numbers, lo.Ternary[float32](field.Bool(), 1, 0))
		case field.Kind() == reflect.Struct:
			numbers = append(numbers, flattenStruct(field)...)
		}
	}
	return numbers
}

type schemaError struct {
	statserName string
	err         error
}

func (err *schemaError) Error() string {
	return "schema error for statser " + err.statserName + ": " + err.err.Error()
}

func (err *schemaError) Unwrap() error {
	return err.err
}

// getSchema walks statsers in name order so that equal field sets always produce equal schemas.
func getSchema(data map[string]any) (*schema, error) {
	names := lo.Keys(data)
	slices.Sort(names)

	s := &schema{mapOrder: names}
	for _, name := range names {
		fields, err := fieldsForStruct(reflect.ValueOf(data[name]))
		if err != nil {
			return nil, &schemaError{name, err}
		}
		for _, field := range fields {
			s.fieldOrder = append(s.fieldOrder, name+"."+field)
		}
	}
	return s, nil
}

func flatten(d datum, s *schema) ([]float32, error) {
	out := make([]float32, 0, len(s.fieldOrder))
	for _, name := range s.mapOrder {
		stats, ok := d.Data[name]
		if !ok {
			return nil, errors.Errorf("missing statser %q", name)
		}
		out = append(out, flattenStruct(reflect.ValueOf(stats))...)
	}
	if len(out) != len(s.fieldOrder) {
		return nil, errors.Errorf("flattened %d values for a schema of %d fields", len(out), len(s.fieldOrder))
	}
	return out, nil
}
