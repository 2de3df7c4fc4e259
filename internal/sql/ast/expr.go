package ast

import (
	"fmt"
	"regexp"
	"strings"

	"pesadb/internal/dberr"
	"pesadb/internal/value"
)

// Env is the row an expression evaluates against: result keys mapped to
// values, possibly table-qualified after a join.
type Env map[string]value.Value

// Expr is an evaluatable expression node.
type Expr interface {
	// Eval computes the expression for one row. Aggregates refuse
	// row-level evaluation unless their materialized value is present
	// in the row.
	Eval(row Env) (value.Value, error)
	fmt.Stringer
}

// Literal is a constant value.
type Literal struct {
	Val value.Value
}

func (e *Literal) Eval(Env) (value.Value, error) { return e.Val, nil }

func (e *Literal) String() string {
	if s, ok := e.Val.StrVal(); ok {
		return "'" + s + "'"
	}
	if e.Val.IsNull() {
		return "NULL"
	}
	if b, ok := e.Val.BoolVal(); ok {
		if b {
			return "TRUE"
		}
		return "FALSE"
	}
	return e.Val.String()
}

// Column is a column reference, possibly table-qualified. A qualified
// name missing from the row falls back to its unqualified tail.
type Column struct {
	Name string
}

func (e *Column) Eval(row Env) (value.Value, error) {
	return LookupColumn(row, e.Name)
}

func (e *Column) String() string { return e.Name }

// LookupColumn resolves a column name in a row with the qualified
// fallback rule.
func LookupColumn(row Env, name string) (value.Value, error) {
	if v, ok := row[name]; ok {
		return v, nil
	}
	if i := strings.IndexByte(name, '.'); i >= 0 {
		if v, ok := row[name[i+1:]]; ok {
			return v, nil
		}
	}
	return value.Value{}, dberr.New(dberr.KindLookup, "column '%s' not found", name)
}

// Comparison applies one of = != <> < > <= >=. Any NULL operand makes
// the comparison false.
type Comparison struct {
	Op    string
	Left  Expr
	Right Expr
}

func (e *Comparison) Eval(row Env) (value.Value, error) {
	left, err := e.Left.Eval(row)
	if err != nil {
		return value.Value{}, err
	}
	right, err := e.Right.Eval(row)
	if err != nil {
		return value.Value{}, err
	}

	if left.IsNull() || right.IsNull() {
		return value.Bool(false), nil
	}

	c, err := value.Compare(left, right)
	if err != nil {
		return value.Value{}, err
	}

	switch e.Op {
	case "=":
		return value.Bool(c == 0), nil
	case "!=", "<>":
		return value.Bool(c != 0), nil
	case "<":
		return value.Bool(c < 0), nil
	case ">":
		return value.Bool(c > 0), nil
	case "<=":
		return value.Bool(c <= 0), nil
	case ">=":
		return value.Bool(c >= 0), nil
	}
	return value.Value{}, dberr.New(dberr.KindExecution, "invalid comparison operator %q", e.Op)
}

func (e *Comparison) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

// Logical applies AND, OR, or NOT with short-circuit evaluation.
type Logical struct {
	Op       string
	Operands []Expr
}

func (e *Logical) Eval(row Env) (value.Value, error) {
	switch e.Op {
	case "NOT":
		v, err := e.Operands[0].Eval(row)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(!v.Truthy()), nil
	case "AND":
		for _, op := range e.Operands {
			v, err := op.Eval(row)
			if err != nil {
				return value.Value{}, err
			}
			if !v.Truthy() {
				return value.Bool(false), nil
			}
		}
		return value.Bool(true), nil
	case "OR":
		for _, op := range e.Operands {
			v, err := op.Eval(row)
			if err != nil {
				return value.Value{}, err
			}
			if v.Truthy() {
				return value.Bool(true), nil
			}
		}
		return value.Bool(false), nil
	}
	return value.Value{}, dberr.New(dberr.KindExecution, "invalid logical operator %q", e.Op)
}

func (e *Logical) String() string {
	if e.Op == "NOT" {
		return "NOT " + e.Operands[0].String()
	}
	parts := make([]string, len(e.Operands))
	for i, op := range e.Operands {
		parts[i] = op.String()
	}
	return "(" + strings.Join(parts, " "+e.Op+" ") + ")"
}

// IsNull tests for NULL, independent of column type.
type IsNull struct {
	Inner  Expr
	Negate bool
}

func (e *IsNull) Eval(row Env) (value.Value, error) {
	v, err := e.Inner.Eval(row)
	if err != nil {
		return value.Value{}, err
	}
	return value.Bool(v.IsNull() != e.Negate), nil
}

func (e *IsNull) String() string {
	if e.Negate {
		return fmt.Sprintf("(%s IS NOT NULL)", e.Inner)
	}
	return fmt.Sprintf("(%s IS NULL)", e.Inner)
}

// Between is low <= inner <= high. A NULL anywhere yields false.
type Between struct {
	Inner  Expr
	Low    Expr
	High   Expr
	Negate bool
}

func (e *Between) Eval(row Env) (value.Value, error) {
	v, err := e.Inner.Eval(row)
	if err != nil {
		return value.Value{}, err
	}
	low, err := e.Low.Eval(row)
	if err != nil {
		return value.Value{}, err
	}
	high, err := e.High.Eval(row)
	if err != nil {
		return value.Value{}, err
	}
	if v.IsNull() || low.IsNull() || high.IsNull() {
		return value.Bool(false), nil
	}
	cl, err := value.Compare(low, v)
	if err != nil {
		return value.Value{}, err
	}
	ch, err := value.Compare(v, high)
	if err != nil {
		return value.Value{}, err
	}
	in := cl <= 0 && ch <= 0
	return value.Bool(in != e.Negate), nil
}

func (e *Between) String() string {
	not := ""
	if e.Negate {
		not = " NOT"
	}
	return fmt.Sprintf("(%s%s BETWEEN %s AND %s)", e.Inner, not, e.Low, e.High)
}

// In tests membership in an evaluated value list.
type In struct {
	Inner  Expr
	List   []Expr
	Negate bool
}

func (e *In) Eval(row Env) (value.Value, error) {
	v, err := e.Inner.Eval(row)
	if err != nil {
		return value.Value{}, err
	}
	found := false
	for _, item := range e.List {
		iv, err := item.Eval(row)
		if err != nil {
			return value.Value{}, err
		}
		if value.Equal(v, iv) {
			found = true
			break
		}
	}
	return value.Bool(found != e.Negate), nil
}

func (e *In) String() string {
	parts := make([]string, len(e.List))
	for i, item := range e.List {
		parts[i] = item.String()
	}
	not := ""
	if e.Negate {
		not = " NOT"
	}
	return fmt.Sprintf("(%s%s IN (%s))", e.Inner, not, strings.Join(parts, ", "))
}

// Like matches SQL patterns: % is any run, _ is any single character.
// Matching is case-insensitive and anchored at both ends. NULL never
// matches.
type Like struct {
	Inner   Expr
	Pattern string
	Negate  bool
}

func (e *Like) Eval(row Env) (value.Value, error) {
	v, err := e.Inner.Eval(row)
	if err != nil {
		return value.Value{}, err
	}
	if v.IsNull() {
		return value.Bool(false), nil
	}
	re, err := likeRegexp(e.Pattern)
	if err != nil {
		return value.Value{}, err
	}
	return value.Bool(re.MatchString(v.String()) != e.Negate), nil
}

func likeRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, dberr.New(dberr.KindExecution, "invalid LIKE pattern %q", pattern)
	}
	return re, nil
}

func (e *Like) String() string {
	not := ""
	if e.Negate {
		not = " NOT"
	}
	return fmt.Sprintf("(%s%s LIKE '%s')", e.Inner, not, e.Pattern)
}

// Aggregate is COUNT/SUM/AVG/MIN/MAX over a group of rows. It cannot be
// computed for a single row: Eval only succeeds when the executor has
// already materialized the aggregate's value in the row under its
// canonical name, which is how HAVING sees aggregate results.
type Aggregate struct {
	Func string
	Arg  Expr
	Star bool
}

func (e *Aggregate) Eval(row Env) (value.Value, error) {
	if v, ok := row[e.String()]; ok {
		return v, nil
	}
	return value.Value{}, dberr.New(dberr.KindExecution,
		"aggregate %s cannot be evaluated on a single row", e.String())
}

// Apply computes the aggregate over a group. COUNT(*) counts rows;
// COUNT(expr), SUM, and AVG skip NULLs; SUM/AVG require numeric input;
// MIN/MAX order the non-NULL values naturally. An empty group yields 0
// for COUNT and NULL otherwise.
func (e *Aggregate) Apply(rows []Env) (value.Value, error) {
	if e.Func == "COUNT" && e.Star {
		return value.Int(int64(len(rows))), nil
	}

	var values []value.Value
	for _, row := range rows {
		v, err := e.Arg.Eval(row)
		if err != nil {
			// A column absent from this row contributes nothing.
			continue
		}
		if !v.IsNull() {
			values = append(values, v)
		}
	}

	switch e.Func {
	case "COUNT":
		return value.Int(int64(len(values))), nil

	case "SUM", "AVG":
		if len(values) == 0 {
			return value.Null(), nil
		}
		sum := 0.0
		allInts := true
		for _, v := range values {
			f, ok := v.Numeric()
			if !ok {
				return value.Value{}, dberr.New(dberr.KindExecution,
					"%s requires numeric values", e.Func)
			}
			if _, isInt := v.IntVal(); !isInt {
				allInts = false
			}
			sum += f
		}
		if e.Func == "AVG" {
			return value.Float(sum / float64(len(values))), nil
		}
		if allInts {
			return value.Int(int64(sum)), nil
		}
		return value.Float(sum), nil

	case "MIN", "MAX":
		if len(values) == 0 {
			return value.Null(), nil
		}
		best := values[0]
		for _, v := range values[1:] {
			c, err := value.Compare(v, best)
			if err != nil {
				return value.Value{}, err
			}
			if (e.Func == "MIN" && c < 0) || (e.Func == "MAX" && c > 0) {
				best = v
			}
		}
		return best, nil
	}

	return value.Value{}, dberr.New(dberr.KindExecution, "invalid aggregate function %q", e.Func)
}

func (e *Aggregate) String() string {
	if e.Star {
		return e.Func + "(*)"
	}
	return fmt.Sprintf("%s(%s)", e.Func, e.Arg)
}

// CollectAggregates walks an expression tree and returns every
// aggregate node it contains.
func CollectAggregates(e Expr) []*Aggregate {
	var out []*Aggregate
	walk(e, func(n Expr) {
		if agg, ok := n.(*Aggregate); ok {
			out = append(out, agg)
		}
	})
	return out
}

func walk(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch n := e.(type) {
	case *Comparison:
		walk(n.Left, fn)
		walk(n.Right, fn)
	case *Logical:
		for _, op := range n.Operands {
			walk(op, fn)
		}
	case *IsNull:
		walk(n.Inner, fn)
	case *Between:
		walk(n.Inner, fn)
		walk(n.Low, fn)
		walk(n.High, fn)
	case *In:
		walk(n.Inner, fn)
		for _, item := range n.List {
			walk(item, fn)
		}
	case *Like:
		walk(n.Inner, fn)
	case *Aggregate:
		walk(n.Arg, fn)
	case *DateTimeFunc:
		for _, arg := range n.Args {
			walk(arg, fn)
		}
	}
}
