package executor

import (
	"strings"

	"pesadb/internal/dberr"
	"pesadb/internal/engine"
	"pesadb/internal/sql/ast"
	"pesadb/internal/value"
)

// joinRows computes the two-table equi-join. Output rows carry
// table-prefixed keys for every column of both sides; for LEFT, RIGHT,
// and FULL joins, unmatched rows appear with the opposite side's
// columns set to NULL — unmatched left rows in their original position,
// unmatched right rows appended at the end.
func (e *Executor) joinRows(db *engine.Database, c *ast.Select) ([]ast.Env, []string, error) {
	left, err := db.Table(c.Table)
	if err != nil {
		return nil, nil, err
	}
	right, err := db.Table(c.Join.Table)
	if err != nil {
		return nil, nil, err
	}

	leftCol, rightCol, err := resolveJoinCondition(c)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := left.Column(leftCol); !ok {
		return nil, nil, dberr.New(dberr.KindLookup,
			"column '%s' does not exist in table '%s'", leftCol, left.Name)
	}
	if _, ok := right.Column(rightCol); !ok {
		return nil, nil, dberr.New(dberr.KindLookup,
			"column '%s' does not exist in table '%s'", rightCol, right.Name)
	}

	leftRows := left.Rows()
	rightRows := right.Rows()

	var out []ast.Env
	rightMatched := make([]bool, len(rightRows))

	for _, lrow := range leftRows {
		lval := lrow[leftCol]
		matched := false
		for ri, rrow := range rightRows {
			if value.Equal(lval, rrow[rightCol]) {
				matched = true
				rightMatched[ri] = true
				out = append(out, mergeRows(left, lrow, right, rrow))
			}
		}
		if !matched && (c.Join.Type == ast.JoinLeft || c.Join.Type == ast.JoinFull) {
			out = append(out, mergeRows(left, lrow, right, nil))
		}
	}

	if c.Join.Type == ast.JoinRight || c.Join.Type == ast.JoinFull {
		for ri, rrow := range rightRows {
			if !rightMatched[ri] {
				out = append(out, mergeRows(left, nil, right, rrow))
			}
		}
	}

	cols := make([]string, 0, len(left.Columns)+len(right.Columns))
	for _, name := range left.ColumnNames() {
		cols = append(cols, left.Name+"."+name)
	}
	for _, name := range right.ColumnNames() {
		cols = append(cols, right.Name+"."+name)
	}
	return out, cols, nil
}

// mergeRows builds a joined row with table-prefixed keys. A nil side
// contributes NULL for each of its columns.
func mergeRows(left *engine.Table, lrow map[string]value.Value, right *engine.Table, rrow map[string]value.Value) ast.Env {
	row := make(ast.Env, len(left.Columns)+len(right.Columns))
	for _, name := range left.ColumnNames() {
		if lrow != nil {
			row[left.Name+"."+name] = lrow[name]
		} else {
			row[left.Name+"."+name] = value.Null()
		}
	}
	for _, name := range right.ColumnNames() {
		if rrow != nil {
			row[right.Name+"."+name] = rrow[name]
		} else {
			row[right.Name+"."+name] = value.Null()
		}
	}
	return row
}

// resolveJoinCondition matches the two qualified sides of the ON clause
// to the FROM table and the joined table, in either order.
func resolveJoinCondition(c *ast.Select) (string, string, error) {
	lTable, lCol, ok := splitQualified(c.Join.LeftCol)
	if !ok {
		return "", "", dberr.New(dberr.KindParse, "JOIN condition must use table.column format")
	}
	rTable, rCol, ok := splitQualified(c.Join.RightCol)
	if !ok {
		return "", "", dberr.New(dberr.KindParse, "JOIN condition must use table.column format")
	}

	switch {
	case lTable == c.Table && rTable == c.Join.Table:
		return lCol, rCol, nil
	case lTable == c.Join.Table && rTable == c.Table:
		return rCol, lCol, nil
	}
	return "", "", dberr.New(dberr.KindLookup,
		"JOIN condition references '%s' and '%s', expected '%s' and '%s'",
		lTable, rTable, c.Table, c.Join.Table)
}

func splitQualified(name string) (string, string, bool) {
	i := strings.IndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}
