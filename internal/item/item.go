// Package item models the heterogeneous values a single-select control
// offers: primitives (strings, numbers, booleans, dates) and records.
package item

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind tags the payload an Item carries.
type Kind int

const (
	KindUndefined Kind = iota // No value supplied (zero value)
	KindNull                  // Explicit "no selection"
	KindString
	KindNumber
	KindBool
	KindDate
	KindRecord
)

var kindNames = [...]string{"undefined", "null", "string", "number", "bool", "date", "record"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// Item is an immutable tagged union. The zero value is Undefined.
type Item struct {
	kind Kind
	str  string
	num  float64
	b    bool
	t    time.Time
	rec  map[string]any
}

// Null returns the explicit empty item.
func Null() Item { return Item{kind: KindNull} }

// String returns a string item.
func String(s string) Item { return Item{kind: KindString, str: s} }

// Number returns a numeric item.
func Number(n float64) Item { return Item{kind: KindNumber, num: n} }

// Bool returns a boolean item.
func Bool(b bool) Item { return Item{kind: KindBool, b: b} }

// Date returns a date item.
func Date(t time.Time) Item { return Item{kind: KindDate, t: t} }

// Record returns a record item holding a normalized deep copy of fields.
func Record(fields map[string]any) Item {
	if fields == nil {
		fields = map[string]any{}
	}
	return Item{kind: KindRecord, rec: normalize(fields).(map[string]any)}
}

// FromAny converts a decoded JSON/YAML value into an Item.
// Unsupported types are kept as their fmt string form.
func FromAny(v any) Item {
	switch x := v.(type) {
	case nil:
		return Null()
	case Item:
		return x
	case *Item:
		if x == nil {
			return Null()
		}
		return *x
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case time.Time:
		return Date(x)
	case *time.Time:
		if x == nil {
			return Null()
		}
		return Date(*x)
	case map[string]any:
		return Record(x)
	case map[any]any:
		return Item{kind: KindRecord, rec: normalize(x).(map[string]any)}
	}
	if n, ok := toFloat(v); ok {
		return Number(n)
	}
	return String(fmt.Sprint(v))
}

// Kind reports the item's tag.
func (it Item) Kind() Kind { return it.kind }

// IsNil reports whether the item is Undefined or Null.
func (it Item) IsNil() bool { return it.kind == KindUndefined || it.kind == KindNull }

// IsDefined reports whether a value (possibly Null) was supplied.
func (it Item) IsDefined() bool { return it.kind != KindUndefined }

// IsPrimitive reports whether the item is a string, number, bool or date.
func (it Item) IsPrimitive() bool {
	switch it.kind {
	case KindString, KindNumber, KindBool, KindDate:
		return true
	}
	return false
}

// Num returns the numeric payload; ok is false for non-numbers.
func (it Item) Num() (float64, bool) { return it.num, it.kind == KindNumber }

// Time returns the date payload; ok is false for non-dates.
func (it Item) Time() (time.Time, bool) { return it.t, it.kind == KindDate }

// Field returns a record field as an Item. Absent fields and non-records
// report ok=false.
func (it Item) Field(name string) (Item, bool) {
	if it.kind != KindRecord {
		return Item{}, false
	}
	v, ok := it.rec[name]
	if !ok {
		return Item{}, false
	}
	return FromAny(v), true
}

// Fields returns a deep copy of a record's fields, or nil.
func (it Item) Fields() map[string]any {
	if it.kind != KindRecord {
		return nil
	}
	return deepCopy(it.rec).(map[string]any)
}

// Clone returns a deep copy.
func (it Item) Clone() Item {
	if it.kind == KindRecord {
		it.rec = deepCopy(it.rec).(map[string]any)
	}
	return it
}

// String is the default string conversion used when no display name can be
// read from the item.
func (it Item) String() string {
	switch it.kind {
	case KindNull:
		return "null"
	case KindString:
		return it.str
	case KindNumber:
		return formatNumber(it.num)
	case KindBool:
		return strconv.FormatBool(it.b)
	case KindDate:
		return it.t.Format(time.RFC3339)
	case KindRecord:
		data, err := json.Marshal(jsonSafe(it.rec))
		if err != nil {
			return fmt.Sprint(it.rec)
		}
		return string(data)
	}
	return ""
}

// Any returns a JSON-compatible representation: dates become RFC 3339
// strings, records become map[string]any.
func (it Item) Any() any {
	switch it.kind {
	case KindString:
		return it.str
	case KindNumber:
		return it.num
	case KindBool:
		return it.b
	case KindDate:
		return it.t.Format(time.RFC3339Nano)
	case KindRecord:
		return jsonSafe(it.rec)
	}
	return nil
}

// Equal reports strict equality: same kind and same payload. Records are
// compared deeply.
func Equal(a, b Item) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindString:
		return a.str == b.str
	case KindNumber:
		return a.num == b.num
	case KindBool:
		return a.b == b.b
	case KindDate:
		return a.t.Equal(b.t)
	case KindRecord:
		return reflect.DeepEqual(a.rec, b.rec)
	}
	return true
}

// Clean returns a copy of a record without top-level keys that start with
// prefix. Non-records are returned unchanged.
func Clean(it Item, prefix string) Item {
	if it.kind != KindRecord || prefix == "" {
		return it.Clone()
	}
	out := make(map[string]any, len(it.rec))
	for k, v := range it.rec {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			continue
		}
		out[k] = deepCopy(v)
	}
	return Item{kind: KindRecord, rec: out}
}

// MarshalJSON implements json.Marshaler.
func (it Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(it.Any())
}

// UnmarshalJSON implements json.Unmarshaler.
func (it *Item) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("item: %w", err)
	}
	*it = FromAny(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (it Item) MarshalYAML() (any, error) {
	if it.kind == KindDate {
		return it.t, nil
	}
	return it.Any(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (it *Item) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!timestamp" {
		var t time.Time
		if err := node.Decode(&t); err == nil {
			*it = Date(t)
			return nil
		}
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return fmt.Errorf("item: %w", err)
	}
	*it = FromAny(v)
	return nil
}

// Slice converts decoded values into items.
func Slice(values []any) []Item {
	out := make([]Item, len(values))
	for i, v := range values {
		out[i] = FromAny(v)
	}
	return out
}

// CloneAll deep-copies a list of items into a fresh slice.
func CloneAll(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

func formatNumber(n float64) string {
	if math.IsInf(n, 1) {
		return "Infinity"
	}
	if math.IsInf(n, -1) {
		return "-Infinity"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
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
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// normalize deep-copies v, folding every numeric type into float64 so that
// values decoded from YAML and JSON compare equal.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case Item:
		return normalize(x.Any())
	}
	if n, ok := toFloat(v); ok {
		return n
	}
	return v
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopy(e)
		}
		return out
	}
	return v
}

func jsonSafe(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = jsonSafe(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = jsonSafe(e)
		}
		return out
	case time.Time:
		return x.Format(time.RFC3339Nano)
	}
	return v
}
