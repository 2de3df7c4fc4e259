package parser

import (
	"strings"

	"pesadb/internal/sql/ast"
	"pesadb/internal/sql/token"
)

// parseExpr parses a WHERE/HAVING expression. Precedence, low to high:
// OR, AND, NOT, comparison level, primary. Aggregate calls are only
// legal when allowAggregates is set (HAVING).
func (p *parser) parseExpr(allowAggregates bool) (ast.Expr, error) {
	return p.parseOr(allowAggregates)
}

func (p *parser) parseOr(agg bool) (ast.Expr, error) {
	left, err := p.parseAnd(agg)
	if err != nil {
		return nil, err
	}
	operands := []ast.Expr{left}
	for p.accept("OR") {
		next, err := p.parseAnd(agg)
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return operands[0], nil
	}
	return &ast.Logical{Op: "OR", Operands: operands}, nil
}

func (p *parser) parseAnd(agg bool) (ast.Expr, error) {
	left, err := p.parseNot(agg)
	if err != nil {
		return nil, err
	}
	operands := []ast.Expr{left}
	for p.accept("AND") {
		next, err := p.parseNot(agg)
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return operands[0], nil
	}
	return &ast.Logical{Op: "AND", Operands: operands}, nil
}

func (p *parser) parseNot(agg bool) (ast.Expr, error) {
	if p.accept("NOT") {
		inner, err := p.parseNot(agg)
		if err != nil {
			return nil, err
		}
		return &ast.Logical{Op: "NOT", Operands: []ast.Expr{inner}}, nil
	}
	return p.parseComparison(agg)
}

func (p *parser) parseComparison(agg bool) (ast.Expr, error) {
	left, err := p.parsePrimary(agg)
	if err != nil {
		return nil, err
	}

	tok := p.peek()

	switch tok.Value {
	case "IS":
		p.next()
		negate := p.accept("NOT")
		if _, err := p.expectValue("NULL"); err != nil {
			return nil, err
		}
		return &ast.IsNull{Inner: left, Negate: negate}, nil

	case "LIKE":
		p.next()
		pattern, err := p.expectKind(token.STRING)
		if err != nil {
			return nil, err
		}
		return &ast.Like{Inner: left, Pattern: pattern.Value}, nil

	case "IN":
		p.next()
		return p.parseInList(left, false, agg)

	case "BETWEEN":
		p.next()
		return p.parseBetween(left, false, agg)

	case "NOT":
		switch p.peek(1).Value {
		case "LIKE":
			p.next()
			p.next()
			pattern, err := p.expectKind(token.STRING)
			if err != nil {
				return nil, err
			}
			return &ast.Like{Inner: left, Pattern: pattern.Value, Negate: true}, nil
		case "IN":
			p.next()
			p.next()
			return p.parseInList(left, true, agg)
		case "BETWEEN":
			p.next()
			p.next()
			return p.parseBetween(left, true, agg)
		}
	}

	if tok.Kind == token.COMPARISON || tok.Kind == token.EQUALS {
		p.next()
		right, err := p.parsePrimary(agg)
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Op: tok.Value, Left: left, Right: right}, nil
	}

	return left, nil
}

func (p *parser) parseInList(left ast.Expr, negate, agg bool) (ast.Expr, error) {
	if _, err := p.expectKind(token.LPAREN); err != nil {
		return nil, err
	}
	var list []ast.Expr
	for {
		item, err := p.parsePrimary(agg)
		if err != nil {
			return nil, err
		}
		list = append(list, item)
		if !p.accept(",") {
			break
		}
	}
	if _, err := p.expectKind(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.In{Inner: left, List: list, Negate: negate}, nil
}

func (p *parser) parseBetween(left ast.Expr, negate, agg bool) (ast.Expr, error) {
	low, err := p.parsePrimary(agg)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectValue("AND"); err != nil {
		return nil, err
	}
	high, err := p.parsePrimary(agg)
	if err != nil {
		return nil, err
	}
	return &ast.Between{Inner: left, Low: low, High: high, Negate: negate}, nil
}

// parsePrimary parses a literal, column reference, parenthesized
// expression, date/time function call, or — in HAVING — an aggregate
// call.
func (p *parser) parsePrimary(agg bool) (ast.Expr, error) {
	tok := p.peek()

	switch {
	case tok.Kind == token.LPAREN:
		p.next()
		inner, err := p.parseExpr(agg)
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKind(token.RPAREN); err != nil {
			return nil, err
		}
		return inner, nil

	case tok.Kind == token.NUMBER,
		tok.Kind == token.STRING,
		tok.Value == "TRUE", tok.Value == "FALSE", tok.Value == "NULL":
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &ast.Literal{Val: v}, nil
	}

	if agg && p.isAggregateCall() {
		return p.parseAggregate()
	}

	if (tok.Kind == token.IDENT || tok.Kind == token.KEYWORD) && ast.IsDateTimeFunc(tok.Value) && p.peek(1).Kind == token.LPAREN {
		return p.parseDateTimeFunc()
	}

	if tok.Kind == token.IDENT {
		name, err := p.parseColumnName()
		if err != nil {
			return nil, err
		}
		return &ast.Column{Name: name}, nil
	}

	return nil, p.errorf("unexpected token in expression")
}

var aggregateFuncs = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
}

// isAggregateCall reports whether the upcoming tokens form an aggregate
// function call.
func (p *parser) isAggregateCall() bool {
	tok := p.peek()
	if tok.Kind != token.IDENT && tok.Kind != token.KEYWORD {
		return false
	}
	return aggregateFuncs[strings.ToUpper(tok.Value)] && p.peek(1).Kind == token.LPAREN
}

// parseAggregate parses COUNT(*) or FUNC(column).
func (p *parser) parseAggregate() (*ast.Aggregate, error) {
	fn := strings.ToUpper(p.next().Value)
	if _, err := p.expectKind(token.LPAREN); err != nil {
		return nil, err
	}

	agg := &ast.Aggregate{Func: fn}
	if p.peek().Kind == token.STAR {
		if fn != "COUNT" {
			return nil, p.errorf("%s(*) is not valid, only COUNT(*) is allowed", fn)
		}
		p.next()
		agg.Star = true
	} else {
		arg, err := p.parseAggregateArg()
		if err != nil {
			return nil, err
		}
		agg.Arg = arg
	}

	if _, err := p.expectKind(token.RPAREN); err != nil {
		return nil, err
	}
	return agg, nil
}

// parseAggregateArg parses the column inside an aggregate. Keyword
// tokens are accepted too, for columns whose names collide with
// reserved words.
func (p *parser) parseAggregateArg() (ast.Expr, error) {
	tok := p.peek()
	if tok.Kind != token.IDENT && tok.Kind != token.KEYWORD {
		return nil, p.errorf("expected a column name in aggregate function")
	}
	p.next()
	name := tok.Value

	if p.peek().Kind == token.DOT {
		p.next()
		second := p.peek()
		if second.Kind != token.IDENT && second.Kind != token.KEYWORD {
			return nil, p.errorf("expected a column name after '.'")
		}
		p.next()
		name = name + "." + second.Value
	}

	return &ast.Column{Name: name}, nil
}

// parseDateTimeFunc parses NOW(), DATE_ADD(d, n), and friends. Argument
// counts are validated at evaluation.
func (p *parser) parseDateTimeFunc() (ast.Expr, error) {
	fn := p.next().Value
	if _, err := p.expectKind(token.LPAREN); err != nil {
		return nil, err
	}

	var args []ast.Expr
	if p.peek().Kind != token.RPAREN {
		for {
			arg, err := p.parsePrimary(false)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.accept(",") {
				break
			}
		}
	}

	if _, err := p.expectKind(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.DateTimeFunc{Name: strings.ToUpper(fn), Args: args}, nil
}
