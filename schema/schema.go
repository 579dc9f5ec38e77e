// Package schema defines the five sunglass store entities and validates generic records against them.
package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/etlerr"
	"github.com/relloyd/sunglass-etl/stream"
)

// Kind is the semantic type of a field.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindBool
	KindDate
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	}
	return "unknown"
}

// Field describes one column of an entity.
type Field struct {
	Name        string
	Kind        Kind
	Optional    bool // may be absent or null
	NonNegative bool
}

// Entity is a validated, typed record.
type Entity interface {
	// Record returns the entity's column values keyed by field name.
	Record() stream.Record
}

// Definition describes an entity and the table it loads into.
type Definition struct {
	Entity    string
	Table     string
	Key       string
	Fields    []Field
	newEntity func() Entity
}

// Field returns the field called name.
func (d *Definition) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the field names in column order.
func (d *Definition) FieldNames() []string {
	retval := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		retval[i] = f.Name
	}
	return retval
}

// Validate checks rec against the definition and decodes it into the typed entity.
// It fails with *etlerr.SchemaViolation naming the offending field and constraint.
func (d *Definition) Validate(rec stream.Record) (Entity, error) {
	normalised, err := d.Normalise(rec)
	if err != nil {
		return nil, err
	}
	e := d.newEntity()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  e,
		TagName: "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(normalised.GetDataMap()); err != nil {
		return nil, &etlerr.SchemaViolation{Entity: d.Entity, Field: "*", Constraint: fmt.Sprintf("could not be decoded: %v", err)}
	}
	return e, nil
}

// Normalise returns a new record holding only the entity's fields, each converted to its canonical Go type:
// int64, float64, string, bool or time.Time. Missing optional fields are set to nil.
func (d *Definition) Normalise(rec stream.Record) (stream.Record, error) {
	out := stream.NewRecord()
	for _, f := range d.Fields {
		v, ok := rec.GetDataOk(f.Name)
		if !ok || v == nil {
			if f.Optional {
				out.SetData(f.Name, nil)
				continue
			}
			return stream.Record{}, &etlerr.SchemaViolation{Entity: d.Entity, Field: f.Name, Constraint: "is required"}
		}
		nv, err := normaliseValue(f.Kind, v)
		if err != nil {
			return stream.Record{}, &etlerr.SchemaViolation{Entity: d.Entity, Field: f.Name, Constraint: err.Error(), Value: v}
		}
		if f.NonNegative && isNegative(nv) {
			return stream.Record{}, &etlerr.SchemaViolation{Entity: d.Entity, Field: f.Name, Constraint: "must be >= 0", Value: v}
		}
		out.SetData(f.Name, nv)
	}
	return out, nil
}

func normaliseValue(k Kind, v interface{}) (interface{}, error) {
	switch k {
	case KindInt:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int8:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		case uint8:
			return int64(x), nil
		case uint16:
			return int64(x), nil
		case uint32:
			return int64(x), nil
		case uint64:
			if x > math.MaxInt64 {
				return nil, fmt.Errorf("overflows a 64 bit integer")
			}
			return int64(x), nil
		case float32:
			return floatToInt(float64(x))
		case float64:
			return floatToInt(x)
		}
	case KindFloat:
		switch x := v.(type) {
		case float32:
			return float64(x), nil
		case float64:
			return x, nil
		case int, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
			i, err := normaliseValue(KindInt, x)
			if err != nil {
				return nil, err
			}
			return float64(i.(int64)), nil
		}
	case KindString:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindDate:
		switch x := v.(type) {
		case time.Time:
			return truncateToDate(x), nil
		case string:
			return parseDate(x)
		}
	case KindTimestamp:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(x))
			if err != nil {
				return nil, fmt.Errorf("must be an RFC3339 timestamp")
			}
			return t.UTC(), nil
		}
	}
	return nil, fmt.Errorf("must be of type %v", k)
}

func floatToInt(f float64) (interface{}, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("must be of type %v", KindInt)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is out of range.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("overflows a 64 bit integer")
	}
	return int64(f), nil
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDate(s string) (interface{}, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(constants.TimeFormatDate, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return truncateToDate(t), nil
	}
	return nil, fmt.Errorf("must be a date in the form YYYY-MM-DD")
}

func isNegative(v interface{}) bool {
	switch x := v.(type) {
	case int64:
		return x < 0
	case float64:
		return x < 0
	}
	return false
}

func optionalTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func optionalString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// FormatValue renders a normalised value of kind k as text that ParseValue reads back.
// Used to persist high-water marks.
func FormatValue(k Kind, v interface{}) (string, error) {
	nv, err := normaliseValue(k, v)
	if err != nil {
		return "", err
	}
	switch x := nv.(type) {
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		if k == KindDate {
			return x.Format(constants.TimeFormatDate), nil
		}
		return x.Format(time.RFC3339Nano), nil
	case string:
		return x, nil
	}
	return "", fmt.Errorf("unable to format %v value %v", k, v)
}

// ParseValue converts text written by FormatValue back to the canonical Go type of kind k.
func ParseValue(k Kind, s string) (interface{}, error) {
	switch k {
	case KindInt:
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	case KindFloat:
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	case KindBool:
		return strconv.ParseBool(strings.TrimSpace(s))
	}
	return normaliseValue(k, s)
}
