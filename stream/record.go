package stream

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	om "github.com/cevaris/ordered_map"
	h "github.com/relloyd/sunglass-etl/helper"
	"github.com/relloyd/sunglass-etl/logger"
)

// NewRecord creates a new Record and returns it by value as we expect these records to go over
// channels by value too.
func NewRecord() Record {
	return Record{
		data: make(map[string]interface{}),
	}
}

func NewNilRecord() Record {
	return Record{}
}

// NewRecordFromMap wraps a copy of m.
func NewRecordFromMap(m map[string]interface{}) Record {
	r := NewRecord()
	for k, v := range m {
		r.data[k] = v
	}
	return r
}

func (sr Record) RecordIsNil() bool {
	return sr.data == nil
}

// Record is used to communicate data between components.
type Record struct {
	data map[string]interface{} // raw data values, which can represent null database values as nil interfaces.
}

func (sr Record) SetData(name string, value interface{}) {
	sr.data[name] = value
}

func (sr Record) GetData(name string) interface{} {
	val, ok := sr.data[name]
	if !ok {
		panic(fmt.Sprintf("Invalid key name %q supplied while trying to fetch value from record: %v", name, sr.data))
	}
	return val
}

// GetDataOk returns the value of field name and whether it exists.
func (sr Record) GetDataOk(name string) (interface{}, bool) {
	val, ok := sr.data[name]
	return val, ok
}

func (sr Record) GetDataMap() map[string]interface{} {
	return sr.data
}

func (sr Record) GetDataLen() int {
	return len(sr.data)
}

// GetDataAsStringUseUtcTime will convert the field value to a string for the purposes of comparison.
// Times will be converted to UTC.
func (sr Record) GetDataAsStringUseUtcTime(name string) (string, error) {
	v, ok := sr.data[name]
	if !ok {
		return "", fmt.Errorf("unexpected field %q does not exist in the input stream", name)
	}
	return h.GetStringFromInterface(v, true)
}

// GetDataKeysAsSlice builds a slice of strings containing the values found in sr.data for each of the supplied
// keys in slice keys.
func (sr Record) GetDataKeysAsSlice(keys []string) ([]string, error) {
	retval := make([]string, 0, len(keys))
	for _, k := range keys {
		s, err := sr.GetDataAsStringUseUtcTime(k)
		if err != nil {
			return nil, err
		}
		retval = append(retval, s)
	}
	return retval, nil
}

// GetSortedDataMapKeys will return a slice of the keys found in map sr.data.
func (sr Record) GetSortedDataMapKeys() []string {
	retval := make([]string, 0, len(sr.data))
	for k := range sr.data {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval
}

func (sr Record) CopyTo(t Record) {
	for k, v := range sr.data {
		t.SetData(k, v)
	}
}

// DataCanJoinByKeyFields compares two records using key fields for equality (return 0)
// less-than (return -1) or greater-than (return 1) status where return values are:
// -1 if sr is less than targetRec
//
//	0 if sr matches targetRec
//	1 if sr is greater than targetRec
//
// joinKeys maps field names in sr to field names in targetRec.
func (sr Record) DataCanJoinByKeyFields(log logger.Logger, targetRec Record, joinKeys *om.OrderedMap) (retval int) {
	iter := joinKeys.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() { // for each key to compare...
		m1v := sr.data[kv.Key.(string)]
		m2v := targetRec.data[kv.Value.(string)]
		retval = CompareValues(m1v, m2v)
		if retval != 0 { // exit early as we have found a difference.
			break
		}
	}
	log.Trace("DataCanJoinByKeyFields() returning ", retval, " (0 is equal)")
	return
}

// DataIsDeepEqual compares the values of the fields named in compareKeys.
// Example: use contents of compareKeys["X"]="Y" to check if m1["X"] == m2["Y"] and repeat for all of the map contents.
func (sr Record) DataIsDeepEqual(log logger.Logger, targetRec Record, compareKeys *om.OrderedMap) (retval bool) {
	retval = true
	iter := compareKeys.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() { // while we have more keys to compare...
		if CompareValues(sr.data[kv.Key.(string)], targetRec.data[kv.Value.(string)]) != 0 {
			retval = false
			break
		}
	}
	log.Trace("DataIsDeepEqual() returning ", retval)
	return
}

// GetJson returns the JSON representation of sr.data using the supplied keys to fetch the data.
func (sr Record) GetJson(keys []string) (string, error) {
	out := make([]string, len(keys))
	for idx, key := range keys {
		jsonValue, err := json.Marshal(sr.data[key])
		if err != nil {
			return "", fmt.Errorf("error marshalling the value of key %q to JSON: %w", key, err)
		}
		keyValue, _ := json.Marshal(key)
		out[idx] = fmt.Sprintf("%s: %s", keyValue, jsonValue)
	}
	return fmt.Sprintf("{%v}", strings.Join(out, ", ")), nil
}

// MarshalJSON renders all fields.
func (sr Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(sr.data)
}

// MergeDataStreams will combine records from s1 into a new record, followed by s2 into the new record before
// returning it. You can supply a nil s2 to create a copy of s1 that is returned.
// If allowOverwrite is false, an error is returned if a field in s2 already exists in s1.
func MergeDataStreams(s1 Record, s2 Record, allowOverwrite bool) (Record, error) {
	retval := NewRecord()
	for k, v := range s1.GetDataMap() {
		retval.data[k] = v
	}
	if !s2.RecordIsNil() {
		for k, v := range s2.GetDataMap() {
			_, ok := retval.data[k]
			if ok && !allowOverwrite {
				return Record{}, fmt.Errorf("field %v exists in stream record", k)
			}
			retval.data[k] = v
		}
	}
	return retval, nil
}

// CompareValues orders two field values.
// Nil sorts first. Integers compare numerically, including integers held in strings as returned by some
// database drivers. Times compare chronologically. Anything else compares by its string form.
func CompareValues(a interface{}, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	sa, _ := h.GetStringFromInterface(a, true)
	sb, _ := h.GetStringFromInterface(b, true)
	return strings.Compare(sa, sb)
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, !math.IsNaN(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case []uint8:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		return f, err == nil
	}
	return 0, false
}

// SortRecordsByKeys sorts recs in place using CompareValues over the named key fields.
func SortRecordsByKeys(recs []Record, keys []string) {
	sort.SliceStable(recs, func(i, j int) bool {
		for _, k := range keys {
			if c := CompareValues(recs[i].data[k], recs[j].data[k]); c != 0 {
				return c < 0
			}
		}
		return false
	})
}
