// Package value contains the scalar type system of the engine: the Type
// enumeration, the Value tagged union, coercion between types, and the
// ISO-8601 date/time parsing shared by rows and expressions.
package value

import (
	"math"
	"strconv"
	"strings"
	"time"

	"pesadb/internal/dberr"
)

// Type is a column data type.
type Type string

const (
	TypeInt      Type = "INT"
	TypeFloat    Type = "FLOAT"
	TypeString   Type = "STRING"
	TypeBool     Type = "BOOL"
	TypeDate     Type = "DATE"
	TypeTime     Type = "TIME"
	TypeDateTime Type = "DATETIME"
)

// ParseType converts a type name into a Type. Aliases REAL, DOUBLE and
// DECIMAL map to FLOAT; TIMESTAMP maps to DATETIME.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(s) {
	case "INT":
		return TypeInt, nil
	case "FLOAT", "REAL", "DOUBLE", "DECIMAL":
		return TypeFloat, nil
	case "STRING":
		return TypeString, nil
	case "BOOL":
		return TypeBool, nil
	case "DATE":
		return TypeDate, nil
	case "TIME":
		return TypeTime, nil
	case "DATETIME", "TIMESTAMP":
		return TypeDateTime, nil
	}
	return "", dberr.New(dberr.KindSchema,
		"unsupported data type %q; supported types: INT, FLOAT, STRING, BOOL, DATE, TIME, DATETIME", s)
}

// kind tags the active variant of a Value.
type kind uint8

const (
	kindNull kind = iota
	kindInt
	kindFloat
	kindString
	kindBool
	kindDate
	kindTime
	kindDateTime
)

// Value is a tagged scalar. The zero Value is NULL.
type Value struct {
	k kind
	i int64
	f float64
	s string
	b bool
	t time.Time
}

// Null returns the NULL value.
func Null() Value { return Value{} }

// Int wraps an int64.
func Int(i int64) Value { return Value{k: kindInt, i: i} }

// Float wraps a float64.
func Float(f float64) Value { return Value{k: kindFloat, f: f} }

// Str wraps a string.
func Str(s string) Value { return Value{k: kindString, s: s} }

// Bool wraps a bool.
func Bool(b bool) Value { return Value{k: kindBool, b: b} }

// Date wraps a calendar date. The time-of-day part of t is discarded.
func Date(t time.Time) Value {
	y, m, d := t.Date()
	return Value{k: kindDate, t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Time wraps a time of day.
func Time(t time.Time) Value { return Value{k: kindTime, t: t} }

// DateTime wraps a point in time.
func DateTime(t time.Time) Value { return Value{k: kindDateTime, t: t} }

// IsNull reports whether v is the NULL value.
func (v Value) IsNull() bool { return v.k == kindNull }

// TypeOf returns the Type of v, or false for NULL, which has no type.
func (v Value) TypeOf() (Type, bool) {
	switch v.k {
	case kindInt:
		return TypeInt, true
	case kindFloat:
		return TypeFloat, true
	case kindString:
		return TypeString, true
	case kindBool:
		return TypeBool, true
	case kindDate:
		return TypeDate, true
	case kindTime:
		return TypeTime, true
	case kindDateTime:
		return TypeDateTime, true
	}
	return "", false
}

// IntVal returns the int64 payload; ok is false when v is not an INT.
func (v Value) IntVal() (int64, bool) { return v.i, v.k == kindInt }

// FloatVal returns the float64 payload; ok is false when v is not a FLOAT.
func (v Value) FloatVal() (float64, bool) { return v.f, v.k == kindFloat }

// StrVal returns the string payload; ok is false when v is not a STRING.
func (v Value) StrVal() (string, bool) { return v.s, v.k == kindString }

// BoolVal returns the bool payload; ok is false when v is not a BOOL.
func (v Value) BoolVal() (bool, bool) { return v.b, v.k == kindBool }

// TimeVal returns the temporal payload; ok is false when v is not a
// DATE, TIME, or DATETIME.
func (v Value) TimeVal() (time.Time, bool) {
	return v.t, v.k == kindDate || v.k == kindTime || v.k == kindDateTime
}

// Numeric returns v as a float64 when v is INT or FLOAT.
func (v Value) Numeric() (float64, bool) {
	switch v.k {
	case kindInt:
		return float64(v.i), true
	case kindFloat:
		return v.f, true
	}
	return 0, false
}

// Truthy reports whether v counts as true in a WHERE/HAVING context:
// BOOL true, any non-zero number, any non-empty string. NULL is false.
func (v Value) Truthy() bool {
	switch v.k {
	case kindBool:
		return v.b
	case kindInt:
		return v.i != 0
	case kindFloat:
		return v.f != 0
	case kindString:
		return v.s != ""
	case kindDate, kindTime, kindDateTime:
		return true
	}
	return false
}

// String renders v for display and for string-coerced comparison.
func (v Value) String() string {
	switch v.k {
	case kindNull:
		return "NULL"
	case kindInt:
		return strconv.FormatInt(v.i, 10)
	case kindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case kindString:
		return v.s
	case kindBool:
		if v.b {
			return "true"
		}
		return "false"
	case kindDate:
		return v.t.Format(dateLayout)
	case kindTime:
		return formatTimeOfDay(v.t)
	case kindDateTime:
		return formatDateTime(v.t)
	}
	return "NULL"
}

// Key returns a canonical comparable representation for use as an index
// map key. Equal INT and FLOAT values share a key (integral floats below
// 1e15 use the integer key). Values of different non-numeric types, or a
// number and a string, get distinct keys even where Compare finds them
// equal after string coercion.
func (v Value) Key() string {
	switch v.k {
	case kindNull:
		return "n"
	case kindInt:
		return "d:" + strconv.FormatInt(v.i, 10)
	case kindFloat:
		// Integral floats collapse onto the integer key so that 1 and
		// 1.0 index identically, matching comparison semantics.
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) && math.Abs(v.f) < 1e15 {
			return "d:" + strconv.FormatInt(int64(v.f), 10)
		}
		return "f:" + strconv.FormatFloat(v.f, 'g', -1, 64)
	case kindString:
		return "s:" + v.s
	case kindBool:
		if v.b {
			return "b:1"
		}
		return "b:0"
	case kindDate, kindTime, kindDateTime:
		return "t:" + v.String()
	}
	return "n"
}

// Compare orders a against b: -1, 0, or +1. Numeric pairs compare
// numerically; temporal pairs of the same type compare chronologically;
// everything else coerces both sides to string. Comparing a NULL is the
// caller's concern and returns an error here.
func Compare(a, b Value) (int, error) {
	if a.IsNull() || b.IsNull() {
		return 0, dberr.New(dberr.KindExecution, "cannot compare NULL values")
	}

	if af, aok := a.Numeric(); aok {
		if bf, bok := b.Numeric(); bok {
			return cmpFloat(af, bf), nil
		}
	}

	if a.k == b.k {
		switch a.k {
		case kindBool:
			return cmpBool(a.b, b.b), nil
		case kindDate, kindTime, kindDateTime:
			return cmpTime(a.t, b.t), nil
		case kindString:
			return strings.Compare(a.s, b.s), nil
		}
	}

	return strings.Compare(a.String(), b.String()), nil
}

// Equal reports whether a and b compare equal. Any NULL operand yields
// false: two NULLs are not equal under `=`.
func Equal(a, b Value) bool {
	if a.IsNull() || b.IsNull() {
		return false
	}
	c, err := Compare(a, b)
	return err == nil && c == 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// Coerce converts v to the given column type. Coercion follows the row
// construction rules: numeric widening and truncation between INT and
// FLOAT, lenient string forms for BOOL, and ISO-8601 parsing for the
// temporal types. NULL passes through unchanged.
func Coerce(v Value, t Type) (Value, error) {
	if v.IsNull() {
		return v, nil
	}

	switch t {
	case TypeInt:
		switch v.k {
		case kindInt:
			return v, nil
		case kindFloat:
			return Int(int64(math.Trunc(v.f))), nil
		case kindString:
			if i, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64); err == nil {
				return Int(i), nil
			}
		}
		return Value{}, coerceErr(v, t)

	case TypeFloat:
		switch v.k {
		case kindInt:
			return Float(float64(v.i)), nil
		case kindFloat:
			return v, nil
		case kindString:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64); err == nil {
				return Float(f), nil
			}
		}
		return Value{}, coerceErr(v, t)

	case TypeString:
		if v.k == kindString {
			return v, nil
		}
		return Value{}, coerceErr(v, t)

	case TypeBool:
		switch v.k {
		case kindBool:
			return v, nil
		case kindString:
			switch strings.ToLower(v.s) {
			case "true", "1", "yes":
				return Bool(true), nil
			case "false", "0", "no":
				return Bool(false), nil
			}
		}
		return Value{}, coerceErr(v, t)

	case TypeDate:
		switch v.k {
		case kindDate:
			return v, nil
		case kindString:
			t, err := ParseDate(v.s)
			if err != nil {
				return Value{}, err
			}
			return Date(t), nil
		}
		return Value{}, coerceErr(v, t)

	case TypeTime:
		switch v.k {
		case kindTime:
			return v, nil
		case kindString:
			t, err := ParseTimeOfDay(v.s)
			if err != nil {
				return Value{}, err
			}
			return Time(t), nil
		}
		return Value{}, coerceErr(v, t)

	case TypeDateTime:
		switch v.k {
		case kindDateTime:
			return v, nil
		case kindDate:
			return DateTime(v.t), nil
		case kindString:
			t, err := ParseDateTime(v.s)
			if err != nil {
				return Value{}, err
			}
			return DateTime(t), nil
		}
		return Value{}, coerceErr(v, t)
	}

	return Value{}, dberr.New(dberr.KindSchema, "unknown column type %q", string(t))
}

func coerceErr(v Value, t Type) error {
	got := "NULL"
	if vt, ok := v.TypeOf(); ok {
		got = string(vt)
	}
	return dberr.New(dberr.KindSchema, "expected %s, got %s value '%s'", string(t), got, v.String())
}

// FromAny converts a decoded JSON scalar into a Value. Numbers arrive as
// float64 from encoding/json; integral ones become INT.
func FromAny(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(v), nil
	case string:
		return Str(v), nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return Int(int64(v)), nil
		}
		return Float(v), nil
	case int:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	}
	return Value{}, dberr.New(dberr.KindSchema, "unsupported value of type %T", x)
}

// ToAny returns the natural JSON representation of v: nil, int64,
// float64, string, or bool. Temporal values encode as ISO-8601 strings.
func (v Value) ToAny() any {
	switch v.k {
	case kindNull:
		return nil
	case kindInt:
		return v.i
	case kindFloat:
		return v.f
	case kindString:
		return v.s
	case kindBool:
		return v.b
	case kindDate, kindTime, kindDateTime:
		return v.String()
	}
	return nil
}

// MarshalJSON encodes v by its natural JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.k {
	case kindNull:
		return []byte("null"), nil
	case kindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case kindFloat:
		return []byte(strconv.FormatFloat(v.f, 'g', -1, 64)), nil
	case kindBool:
		return []byte(strconv.FormatBool(v.b)), nil
	default:
		return []byte(strconv.Quote(v.String())), nil
	}
}

func formatTimeOfDay(t time.Time) string {
	if t.Nanosecond() != 0 {
		return t.Format("15:04:05.000")
	}
	return t.Format("15:04:05")
}

func formatDateTime(t time.Time) string {
	_, off := t.Zone()
	if off == 0 && t.Location() == time.UTC {
		if t.Nanosecond() != 0 {
			return t.Format("2006-01-02T15:04:05.000")
		}
		return t.Format("2006-01-02T15:04:05")
	}
	if t.Nanosecond() != 0 {
		return t.Format("2006-01-02T15:04:05.000-07:00")
	}
	return t.Format("2006-01-02T15:04:05-07:00")
}
