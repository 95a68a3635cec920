package trace

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind discriminates the payload of a Value.
type ValueKind int

const (
	KindInvalid ValueKind = iota
	KindString
	KindInt64
	KindFloat64
	KindBool
	KindStringSlice
)

// Value is a typed attribute value. The zero Value is invalid and is ignored
// by span setters.
type Value struct {
	kind  ValueKind
	str   string
	num   int64
	flt   float64
	b     bool
	slice []string
}

// StringValue wraps a string attribute.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// Int64Value wraps an integer attribute.
func Int64Value(n int64) Value {
	return Value{kind: KindInt64, num: n}
}

// Float64Value wraps a float attribute.
func Float64Value(f float64) Value {
	return Value{kind: KindFloat64, flt: f}
}

// BoolValue wraps a boolean attribute.
func BoolValue(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// StringSliceValue wraps a string-array attribute. The slice is copied.
func StringSliceValue(s []string) Value {
	out := make([]string, len(s))
	copy(out, s)
	return Value{kind: KindStringSlice, slice: out}
}

// Kind returns the payload discriminator.
func (v Value) Kind() ValueKind { return v.kind }

// IsValid reports whether the value holds a payload.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Str returns the string payload, or "" for other kinds.
func (v Value) Str() string { return v.str }

// Int64 returns the integer payload, or 0 for other kinds.
func (v Value) Int64() int64 { return v.num }

// Float64 returns the float payload, or 0 for other kinds.
func (v Value) Float64() float64 { return v.flt }

// Bool returns the boolean payload, or false for other kinds.
func (v Value) Bool() bool { return v.b }

// StringSlice returns a copy of the string-array payload.
func (v Value) StringSlice() []string {
	if v.slice == nil {
		return nil
	}
	out := make([]string, len(v.slice))
	copy(out, v.slice)
	return out
}

// Text renders the value for logs and debug output.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt64:
		return strconv.FormatInt(v.num, 10)
	case KindFloat64:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindStringSlice:
		return strings.Join(v.slice, ",")
	default:
		return ""
	}
}

// valueOf coerces common Go types into a Value. Unsupported types fall back
// to their fmt rendering so setter call sites never fail.
func valueOf(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Value{}
	case Value:
		return x
	case string:
		return StringValue(x)
	case bool:
		return BoolValue(x)
	case int:
		return Int64Value(int64(x))
	case int32:
		return Int64Value(int64(x))
	case int64:
		return Int64Value(x)
	case float32:
		return Float64Value(float64(x))
	case float64:
		return Float64Value(x)
	case []string:
		return StringSliceValue(x)
	default:
		return StringValue(fmt.Sprintf("%v", x))
	}
}
