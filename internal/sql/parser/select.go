package parser

import (
	"strconv"

	"pesadb/internal/sql/ast"
	"pesadb/internal/sql/token"
)

func (p *parser) parseSelect() (ast.Command, error) {
	p.next() // SELECT
	sel := &ast.Select{}

	sel.Distinct = p.accept("DISTINCT")

	if p.peek().Kind == token.STAR {
		p.next()
		sel.Star = true
	} else {
		for {
			item, err := p.parseSelectItem()
			if err != nil {
				return nil, err
			}
			sel.Items = append(sel.Items, item)
			if !p.accept(",") {
				break
			}
		}
	}

	if _, err := p.expectValue("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectKind(token.IDENT)
	if err != nil {
		return nil, err
	}
	sel.Table = table.Value

	join, err := p.parseJoin()
	if err != nil {
		return nil, err
	}
	sel.Join = join

	if p.accept("WHERE") {
		sel.Where, err = p.parseExpr(false)
		if err != nil {
			return nil, err
		}
	}

	if p.accept("GROUP") {
		if _, err := p.expectValue("BY"); err != nil {
			return nil, err
		}
		for {
			col, err := p.parseColumnName()
			if err != nil {
				return nil, err
			}
			sel.GroupBy = append(sel.GroupBy, col)
			if !p.accept(",") {
				break
			}
		}
	}

	if p.accept("HAVING") {
		sel.Having, err = p.parseExpr(true)
		if err != nil {
			return nil, err
		}
	}

	if p.accept("ORDER") {
		if _, err := p.expectValue("BY"); err != nil {
			return nil, err
		}
		for {
			col, err := p.parseColumnName()
			if err != nil {
				return nil, err
			}
			key := ast.OrderKey{Column: col}
			switch p.peek().Value {
			case "ASC":
				p.next()
			case "DESC":
				p.next()
				key.Desc = true
			}
			sel.OrderBy = append(sel.OrderBy, key)
			if !p.accept(",") {
				break
			}
		}
	}

	if p.accept("LIMIT") {
		n, err := p.parseNonNegative("LIMIT")
		if err != nil {
			return nil, err
		}
		sel.Limit = &n
	}

	if p.accept("OFFSET") {
		n, err := p.parseNonNegative("OFFSET")
		if err != nil {
			return nil, err
		}
		sel.Offset = &n
	}

	return sel, nil
}

// parseSelectItem parses one projection element: an aggregate call or a
// (possibly table-qualified) column, with an optional AS alias.
func (p *parser) parseSelectItem() (ast.SelectItem, error) {
	var item ast.SelectItem

	if p.isAggregateCall() {
		agg, err := p.parseAggregate()
		if err != nil {
			return item, err
		}
		item.Aggregate = agg
	} else {
		col, err := p.parseColumnName()
		if err != nil {
			return item, err
		}
		item.Column = col
	}

	if p.accept("AS") {
		alias, err := p.expectKind(token.IDENT)
		if err != nil {
			return item, err
		}
		item.Alias = alias.Value
	}

	return item, nil
}

// parseColumnName parses <ident> or <ident>.<ident> into its textual
// form.
func (p *parser) parseColumnName() (string, error) {
	first, err := p.expectKind(token.IDENT)
	if err != nil {
		return "", err
	}
	if p.peek().Kind == token.DOT {
		p.next()
		second, err := p.expectKind(token.IDENT)
		if err != nil {
			return "", err
		}
		return first.Value + "." + second.Value, nil
	}
	return first.Value, nil
}

// parseJoin parses at most one join clause:
//
//	[INNER | LEFT [OUTER] | RIGHT [OUTER] | FULL OUTER] JOIN <table>
//	ON <table>.<col> = <table>.<col>
func (p *parser) parseJoin() (*ast.Join, error) {
	join := &ast.Join{Type: ast.JoinInner}

	switch p.peek().Value {
	case "JOIN":
		p.next()
	case "INNER":
		p.next()
		if _, err := p.expectValue("JOIN"); err != nil {
			return nil, err
		}
	case "LEFT":
		p.next()
		join.Type = ast.JoinLeft
		p.accept("OUTER")
		if _, err := p.expectValue("JOIN"); err != nil {
			return nil, err
		}
	case "RIGHT":
		p.next()
		join.Type = ast.JoinRight
		p.accept("OUTER")
		if _, err := p.expectValue("JOIN"); err != nil {
			return nil, err
		}
	case "FULL":
		p.next()
		join.Type = ast.JoinFull
		if _, err := p.expectValue("OUTER"); err != nil {
			return nil, err
		}
		if _, err := p.expectValue("JOIN"); err != nil {
			return nil, err
		}
	default:
		return nil, nil
	}

	table, err := p.expectKind(token.IDENT)
	if err != nil {
		return nil, err
	}
	join.Table = table.Value

	if _, err := p.expectValue("ON"); err != nil {
		return nil, err
	}

	left, err := p.parseQualifiedColumn()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKind(token.EQUALS); err != nil {
		return nil, err
	}
	right, err := p.parseQualifiedColumn()
	if err != nil {
		return nil, err
	}
	join.LeftCol = left
	join.RightCol = right

	return join, nil
}

// parseQualifiedColumn requires the <table>.<column> form.
func (p *parser) parseQualifiedColumn() (string, error) {
	table, err := p.expectKind(token.IDENT)
	if err != nil {
		return "", err
	}
	if _, err := p.expectKind(token.DOT); err != nil {
		return "", err
	}
	col, err := p.expectKind(token.IDENT)
	if err != nil {
		return "", err
	}
	return table.Value + "." + col.Value, nil
}

func (p *parser) parseNonNegative(clause string) (int, error) {
	tok, err := p.expectKind(token.NUMBER)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(tok.Value)
	if err != nil || n < 0 {
		return 0, p.errorf("%s must be a non-negative integer, got '%s'", clause, tok.Value)
	}
	return n, nil
}
