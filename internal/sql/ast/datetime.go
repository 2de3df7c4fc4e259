package ast

import (
	"fmt"
	"strings"
	"time"

	"pesadb/internal/dberr"
	"pesadb/internal/value"
)

// dateTimeFuncs maps each function name to its argument count.
var dateTimeFuncs = map[string]int{
	"NOW": 0, "CURRENT_DATE": 0, "CURRENT_TIME": 0,
	"DATE": 1, "TIME": 1,
	"YEAR": 1, "MONTH": 1, "DAY": 1,
	"HOUR": 1, "MINUTE": 1, "SECOND": 1,
	"DATE_ADD": 2, "DATE_SUB": 2, "DATEDIFF": 2,
}

// IsDateTimeFunc reports whether name (case-insensitive) is a known
// date/time function.
func IsDateTimeFunc(name string) bool {
	_, ok := dateTimeFuncs[strings.ToUpper(name)]
	return ok
}

// timeNow is swapped out by clock-sensitive tests.
var timeNow = time.Now

// DateTimeFunc is a date/time function call. The clock functions take
// no arguments; the extraction and arithmetic functions take one or
// two. Any NULL argument makes the result NULL.
type DateTimeFunc struct {
	Name string
	Args []Expr
}

func (e *DateTimeFunc) Eval(row Env) (value.Value, error) {
	want, ok := dateTimeFuncs[e.Name]
	if !ok {
		return value.Value{}, dberr.New(dberr.KindExecution, "unknown date/time function %s", e.Name)
	}
	if len(e.Args) != want {
		return value.Value{}, dberr.New(dberr.KindExecution,
			"%s() requires exactly %d argument(s), got %d", e.Name, want, len(e.Args))
	}

	args := make([]value.Value, len(e.Args))
	for i, a := range e.Args {
		v, err := a.Eval(row)
		if err != nil {
			return value.Value{}, err
		}
		if v.IsNull() {
			return value.Null(), nil
		}
		args[i] = v
	}

	switch e.Name {
	case "NOW":
		return value.DateTime(timeNow()), nil
	case "CURRENT_DATE":
		return value.Date(timeNow()), nil
	case "CURRENT_TIME":
		return value.Time(timeNow()), nil

	case "DATE":
		t, _, err := e.temporal(args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.Date(t), nil

	case "TIME":
		t, _, err := e.temporal(args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.Time(time.Date(0, 1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)), nil

	case "YEAR":
		t, _, err := e.temporal(args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.Int(int64(t.Year())), nil
	case "MONTH":
		t, _, err := e.temporal(args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.Int(int64(t.Month())), nil
	case "DAY":
		t, _, err := e.temporal(args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.Int(int64(t.Day())), nil
	case "HOUR":
		t, _, err := e.temporal(args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.Int(int64(t.Hour())), nil
	case "MINUTE":
		t, _, err := e.temporal(args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.Int(int64(t.Minute())), nil
	case "SECOND":
		t, _, err := e.temporal(args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.Int(int64(t.Second())), nil

	case "DATE_ADD", "DATE_SUB":
		t, isDateTime, err := e.temporal(args[0])
		if err != nil {
			return value.Value{}, err
		}
		days, err := e.dayCount(args[1])
		if err != nil {
			return value.Value{}, err
		}
		if e.Name == "DATE_SUB" {
			days = -days
		}
		shifted := t.AddDate(0, 0, int(days))
		if isDateTime {
			return value.DateTime(shifted), nil
		}
		return value.Date(shifted), nil

	case "DATEDIFF":
		t1, _, err := e.temporal(args[0])
		if err != nil {
			return value.Value{}, err
		}
		t2, _, err := e.temporal(args[1])
		if err != nil {
			return value.Value{}, err
		}
		d1 := time.Date(t1.Year(), t1.Month(), t1.Day(), 0, 0, 0, 0, time.UTC)
		d2 := time.Date(t2.Year(), t2.Month(), t2.Day(), 0, 0, 0, 0, time.UTC)
		return value.Int(int64(d1.Sub(d2).Hours() / 24)), nil
	}

	return value.Value{}, dberr.New(dberr.KindExecution, "unknown date/time function %s", e.Name)
}

// temporal converts an argument to a time.Time. Strings are parsed as
// datetime with a date fallback; isDateTime reports whether the input
// carried a time-of-day part.
func (e *DateTimeFunc) temporal(v value.Value) (time.Time, bool, error) {
	if t, ok := v.TimeVal(); ok {
		typ, _ := v.TypeOf()
		return t, typ == value.TypeDateTime || typ == value.TypeTime, nil
	}
	if s, ok := v.StrVal(); ok {
		if t, err := value.ParseDateTime(s); err == nil {
			hasClock := strings.ContainsAny(s, ": ")
			return t, hasClock || strings.Contains(s, "T"), nil
		}
	}
	return time.Time{}, false, dberr.New(dberr.KindExecution,
		"%s(): invalid date/datetime value '%s'", e.Name, v.String())
}

func (e *DateTimeFunc) dayCount(v value.Value) (int64, error) {
	if i, ok := v.IntVal(); ok {
		return i, nil
	}
	if f, ok := v.FloatVal(); ok {
		return int64(f), nil
	}
	return 0, dberr.New(dberr.KindExecution, "%s(): day count must be a number, got '%s'", e.Name, v.String())
}

func (e *DateTimeFunc) String() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(parts, ", "))
}
