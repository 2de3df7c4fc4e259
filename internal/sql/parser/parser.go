// Package parser turns a token stream into a command tree. It is a
// hand-written recursive-descent parser dispatching on the leading
// keyword of the statement.
package parser

import (
	"strconv"
	"strings"

	"pesadb/internal/dberr"
	"pesadb/internal/engine"
	"pesadb/internal/sql/ast"
	"pesadb/internal/sql/lexer"
	"pesadb/internal/sql/token"
	"pesadb/internal/value"
)

// ParseQuery tokenizes and parses a single statement.
func ParseQuery(sql string) (ast.Command, error) {
	tokens, err := lexer.Tokenize(sql)
	if err != nil {
		return nil, err
	}
	return Parse(tokens)
}

// Parse consumes a token sequence and returns the command tree.
func Parse(tokens []token.Token) (ast.Command, error) {
	p := &parser{tokens: tokens}
	if len(tokens) == 0 {
		return nil, dberr.New(dberr.KindParse, "empty statement")
	}

	var cmd ast.Command
	var err error
	switch p.peek().Value {
	case "CREATE":
		cmd, err = p.parseCreate()
	case "DROP":
		cmd, err = p.parseDrop()
	case "USE":
		cmd, err = p.parseUse()
	case "SHOW":
		cmd, err = p.parseShow()
	case "DESCRIBE", "DESC":
		cmd, err = p.parseDescribe()
	case "INSERT":
		cmd, err = p.parseInsert()
	case "SELECT":
		cmd, err = p.parseSelect()
	case "UPDATE":
		cmd, err = p.parseUpdate()
	case "DELETE":
		cmd, err = p.parseDelete()
	default:
		return nil, p.errorf("unexpected command '%s'", p.peek().Value)
	}
	if err != nil {
		return nil, err
	}

	p.skipSemicolon()
	if p.pos < len(p.tokens) {
		return nil, p.errorf("unexpected input after statement near '%s'", p.peek().Value)
	}
	return cmd, nil
}

type parser struct {
	tokens []token.Token
	pos    int
}

// peek returns the token at the current position plus an optional
// offset, or a zero Token past the end.
func (p *parser) peek(offset ...int) token.Token {
	i := p.pos
	if len(offset) > 0 {
		i += offset[0]
	}
	if i < len(p.tokens) {
		return p.tokens[i]
	}
	return token.Token{Kind: token.EOF}
}

func (p *parser) next() token.Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expectValue consumes the next token, requiring its value.
func (p *parser) expectValue(want string) (token.Token, error) {
	tok := p.peek()
	if tok.Kind == token.EOF {
		return tok, dberr.New(dberr.KindParse, "expected '%s' but reached end of statement", want)
	}
	if tok.Value != want {
		return tok, p.errorf("expected '%s'", want)
	}
	p.pos++
	return tok, nil
}

// expectKind consumes the next token, requiring its kind.
func (p *parser) expectKind(want token.Kind) (token.Token, error) {
	tok := p.peek()
	if tok.Kind == token.EOF {
		return tok, dberr.New(dberr.KindParse, "expected %s but reached end of statement", want)
	}
	if tok.Kind != want {
		return tok, p.errorf("expected %s", want)
	}
	p.pos++
	return tok, nil
}

func (p *parser) accept(value string) bool {
	if p.peek().Value == value {
		p.pos++
		return true
	}
	return false
}

func (p *parser) skipSemicolon() {
	for p.peek().Kind == token.SEMICOLON {
		p.pos++
	}
}

// errorf builds a parse error citing the offending token.
func (p *parser) errorf(format string, args ...any) error {
	base := dberr.New(dberr.KindParse, format, args...)
	tok := p.peek()
	if tok.Kind == token.EOF {
		return base
	}
	return dberr.New(dberr.KindParse, "%s near '%s'", base.Msg, tok.Value)
}

func (p *parser) parseCreate() (ast.Command, error) {
	p.next() // CREATE
	switch p.peek().Value {
	case "DATABASE":
		p.next()
		name, err := p.expectKind(token.IDENT)
		if err != nil {
			return nil, err
		}
		return &ast.CreateDatabase{Name: name.Value}, nil
	case "TABLE":
		return p.parseCreateTable()
	}
	return nil, p.errorf("expected DATABASE or TABLE after CREATE")
}

func (p *parser) parseDrop() (ast.Command, error) {
	p.next() // DROP
	switch p.peek().Value {
	case "DATABASE":
		p.next()
		name, err := p.expectKind(token.IDENT)
		if err != nil {
			return nil, err
		}
		return &ast.DropDatabase{Name: name.Value}, nil
	case "TABLE":
		p.next()
		name, err := p.expectKind(token.IDENT)
		if err != nil {
			return nil, err
		}
		return &ast.DropTable{Name: name.Value}, nil
	}
	return nil, p.errorf("expected DATABASE or TABLE after DROP")
}

func (p *parser) parseUse() (ast.Command, error) {
	p.next() // USE
	name, err := p.expectKind(token.IDENT)
	if err != nil {
		return nil, err
	}
	return &ast.UseDatabase{Name: name.Value}, nil
}

func (p *parser) parseShow() (ast.Command, error) {
	p.next() // SHOW
	switch p.peek().Value {
	case "DATABASES":
		p.next()
		return &ast.ShowDatabases{}, nil
	case "TABLES":
		p.next()
		return &ast.ShowTables{}, nil
	}
	return nil, p.errorf("expected DATABASES or TABLES after SHOW")
}

func (p *parser) parseDescribe() (ast.Command, error) {
	p.next() // DESCRIBE or DESC
	name, err := p.expectKind(token.IDENT)
	if err != nil {
		return nil, err
	}
	return &ast.DescribeTable{Name: name.Value}, nil
}

func (p *parser) parseCreateTable() (ast.Command, error) {
	p.next() // TABLE
	name, err := p.expectKind(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKind(token.LPAREN); err != nil {
		return nil, err
	}

	var columns []engine.Column
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
		if !p.accept(",") {
			break
		}
	}

	if _, err := p.expectKind(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.CreateTable{Name: name.Value, Columns: columns}, nil
}

// parseColumnDef parses
//
//	<ident> <type> [PRIMARY KEY | UNIQUE]
//	        [REFERENCES <table>(<column>) [ON DELETE <action>] [ON UPDATE <action>]]
//
// A missing PRIMARY KEY across the table is caught at table
// construction, not here.
func (p *parser) parseColumnDef() (engine.Column, error) {
	var col engine.Column

	name, err := p.expectKind(token.IDENT)
	if err != nil {
		return col, err
	}
	col.Name = name.Value

	typeTok := p.peek()
	if typeTok.Kind != token.KEYWORD {
		return col, p.errorf("expected a data type for column '%s'", col.Name)
	}
	typ, err := value.ParseType(typeTok.Value)
	if err != nil {
		return col, dberr.New(dberr.KindSchema,
			"invalid data type '%s' for column '%s'", typeTok.Value, col.Name)
	}
	p.next()
	col.Type = typ

	if p.accept("PRIMARY") {
		if _, err := p.expectValue("KEY"); err != nil {
			return col, err
		}
		col.PrimaryKey = true
	} else if p.accept("UNIQUE") {
		col.Unique = true
	}

	if p.accept("REFERENCES") {
		fkTable, err := p.expectKind(token.IDENT)
		if err != nil {
			return col, err
		}
		if _, err := p.expectKind(token.LPAREN); err != nil {
			return col, err
		}
		fkColumn, err := p.expectKind(token.IDENT)
		if err != nil {
			return col, err
		}
		if _, err := p.expectKind(token.RPAREN); err != nil {
			return col, err
		}
		col.FKTable = fkTable.Value
		col.FKColumn = fkColumn.Value

		for p.peek().Value == "ON" {
			p.next()
			switch p.peek().Value {
			case "DELETE":
				p.next()
				action, err := p.parseRefAction()
				if err != nil {
					return col, err
				}
				col.OnDelete = action
			case "UPDATE":
				p.next()
				action, err := p.parseRefAction()
				if err != nil {
					return col, err
				}
				col.OnUpdate = action
			default:
				return col, p.errorf("expected DELETE or UPDATE after ON")
			}
		}
	}

	return col, nil
}

func (p *parser) parseRefAction() (engine.RefAction, error) {
	switch p.peek().Value {
	case "CASCADE":
		p.next()
		return engine.ActionCascade, nil
	case "RESTRICT":
		p.next()
		return engine.ActionRestrict, nil
	case "SET":
		p.next()
		if _, err := p.expectValue("NULL"); err != nil {
			return "", err
		}
		return engine.ActionSetNull, nil
	case "NO":
		p.next()
		if _, err := p.expectValue("ACTION"); err != nil {
			return "", err
		}
		return engine.ActionNoAction, nil
	}
	return "", p.errorf("expected CASCADE, RESTRICT, SET NULL, or NO ACTION")
}

func (p *parser) parseInsert() (ast.Command, error) {
	p.next() // INSERT
	if _, err := p.expectValue("INTO"); err != nil {
		return nil, err
	}
	table, err := p.expectKind(token.IDENT)
	if err != nil {
		return nil, err
	}

	var columns []string
	if p.peek().Kind == token.LPAREN && p.isColumnList() {
		p.next() // (
		for {
			col, err := p.expectKind(token.IDENT)
			if err != nil {
				return nil, err
			}
			columns = append(columns, col.Value)
			if !p.accept(",") {
				break
			}
		}
		if _, err := p.expectKind(token.RPAREN); err != nil {
			return nil, err
		}
	}

	if _, err := p.expectValue("VALUES"); err != nil {
		return nil, err
	}
	if _, err := p.expectKind(token.LPAREN); err != nil {
		return nil, err
	}

	var values []value.Value
	for {
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if !p.accept(",") {
			break
		}
	}
	if _, err := p.expectKind(token.RPAREN); err != nil {
		return nil, err
	}

	return &ast.Insert{Table: table.Value, Columns: columns, Values: values}, nil
}

// isColumnList looks ahead past an LPAREN for identifiers and commas
// closed by an RPAREN that is followed by VALUES.
func (p *parser) isColumnList() bool {
	i := p.pos + 1
	for i < len(p.tokens) {
		switch p.tokens[i].Kind {
		case token.RPAREN:
			return i+1 < len(p.tokens) && p.tokens[i+1].Value == "VALUES"
		case token.IDENT, token.COMMA:
			i++
		default:
			return false
		}
	}
	return false
}

// parseLiteral consumes a literal value: number, string, TRUE, FALSE,
// or NULL. Numbers pick the narrowest fit, integer before float.
func (p *parser) parseLiteral() (value.Value, error) {
	tok := p.peek()
	switch {
	case tok.Kind == token.NUMBER:
		p.next()
		return parseNumber(tok.Value)
	case tok.Kind == token.STRING:
		p.next()
		return value.Str(tok.Value), nil
	case tok.Value == "TRUE":
		p.next()
		return value.Bool(true), nil
	case tok.Value == "FALSE":
		p.next()
		return value.Bool(false), nil
	case tok.Value == "NULL":
		p.next()
		return value.Null(), nil
	}
	return value.Value{}, p.errorf("expected a literal value")
}

func parseNumber(s string) (value.Value, error) {
	if !strings.Contains(s, ".") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return value.Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return value.Value{}, dberr.New(dberr.KindParse, "invalid number '%s'", s)
	}
	return value.Float(f), nil
}

func (p *parser) parseUpdate() (ast.Command, error) {
	p.next() // UPDATE
	table, err := p.expectKind(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectValue("SET"); err != nil {
		return nil, err
	}
	col, err := p.expectKind(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKind(token.EQUALS); err != nil {
		return nil, err
	}
	val, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}

	var where ast.Expr
	if p.accept("WHERE") {
		where, err = p.parseExpr(false)
		if err != nil {
			return nil, err
		}
	}

	return &ast.Update{Table: table.Value, SetColumn: col.Value, SetValue: val, Where: where}, nil
}

func (p *parser) parseDelete() (ast.Command, error) {
	p.next() // DELETE
	if _, err := p.expectValue("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectKind(token.IDENT)
	if err != nil {
		return nil, err
	}

	var where ast.Expr
	if p.accept("WHERE") {
		var err error
		where, err = p.parseExpr(false)
		if err != nil {
			return nil, err
		}
	}

	return &ast.Delete{Table: table.Value, Where: where}, nil
}
