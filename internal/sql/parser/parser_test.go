package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pesadb/internal/dberr"
	"pesadb/internal/engine"
	"pesadb/internal/sql/ast"
	"pesadb/internal/value"
)

func parse(t *testing.T, sql string) ast.Command {
	t.Helper()
	cmd, err := ParseQuery(sql)
	require.NoError(t, err, sql)
	return cmd
}

func TestParseDatabaseCommands(t *testing.T) {
	cmd := parse(t, "CREATE DATABASE shop;")
	assert.Equal(t, &ast.CreateDatabase{Name: "shop"}, cmd)

	cmd = parse(t, "DROP DATABASE shop")
	assert.Equal(t, &ast.DropDatabase{Name: "shop"}, cmd)

	cmd = parse(t, "USE shop;")
	assert.Equal(t, &ast.UseDatabase{Name: "shop"}, cmd)

	assert.Equal(t, &ast.ShowDatabases{}, parse(t, "SHOW DATABASES"))
	assert.Equal(t, &ast.ShowTables{}, parse(t, "SHOW TABLES;"))
	assert.Equal(t, &ast.DescribeTable{Name: "users"}, parse(t, "DESCRIBE users"))
	assert.Equal(t, &ast.DescribeTable{Name: "users"}, parse(t, "DESC users;"))
}

func TestParseCreateTable(t *testing.T) {
	cmd := parse(t, `CREATE TABLE users (
		id INT PRIMARY KEY,
		name STRING UNIQUE,
		team INT REFERENCES teams(id) ON DELETE CASCADE ON UPDATE SET NULL,
		active BOOL
	);`)

	ct, ok := cmd.(*ast.CreateTable)
	require.True(t, ok)
	assert.Equal(t, "users", ct.Name)
	require.Len(t, ct.Columns, 4)

	assert.Equal(t, engine.Column{Name: "id", Type: value.TypeInt, PrimaryKey: true}, ct.Columns[0])
	assert.Equal(t, engine.Column{Name: "name", Type: value.TypeString, Unique: true}, ct.Columns[1])
	assert.Equal(t, engine.Column{
		Name: "team", Type: value.TypeInt,
		FKTable: "teams", FKColumn: "id",
		OnDelete: engine.ActionCascade, OnUpdate: engine.ActionSetNull,
	}, ct.Columns[2])
	assert.Equal(t, engine.Column{Name: "active", Type: value.TypeBool}, ct.Columns[3])
}

func TestParseCreateTableTypeAliases(t *testing.T) {
	cmd := parse(t, "CREATE TABLE m (id INT PRIMARY KEY, ratio REAL, seen TIMESTAMP)")
	ct := cmd.(*ast.CreateTable)
	assert.Equal(t, value.TypeFloat, ct.Columns[1].Type)
	assert.Equal(t, value.TypeDateTime, ct.Columns[2].Type)
}

func TestParseCreateTableBadType(t *testing.T) {
	_, err := ParseQuery("CREATE TABLE t (id WIDGET PRIMARY KEY)")
	require.Error(t, err)
}

func TestParseInsert(t *testing.T) {
	cmd := parse(t, "INSERT INTO t VALUES (1, 'a', TRUE, NULL, 2.5);")
	ins := cmd.(*ast.Insert)
	assert.Equal(t, "t", ins.Table)
	assert.Nil(t, ins.Columns)
	require.Len(t, ins.Values, 5)
	assert.True(t, value.Equal(value.Int(1), ins.Values[0]))
	assert.True(t, value.Equal(value.Str("a"), ins.Values[1]))
	assert.True(t, value.Equal(value.Bool(true), ins.Values[2]))
	assert.True(t, ins.Values[3].IsNull())
	assert.True(t, value.Equal(value.Float(2.5), ins.Values[4]))
}

func TestParseInsertWithColumnList(t *testing.T) {
	cmd := parse(t, "INSERT INTO t (id, name) VALUES (1, 'a')")
	ins := cmd.(*ast.Insert)
	assert.Equal(t, []string{"id", "name"}, ins.Columns)
	require.Len(t, ins.Values, 2)
}

func TestParseSelectStar(t *testing.T) {
	cmd := parse(t, "SELECT * FROM users")
	sel := cmd.(*ast.Select)
	assert.True(t, sel.Star)
	assert.Equal(t, "users", sel.Table)
	assert.Nil(t, sel.Where)
	assert.Nil(t, sel.Join)
}

func TestParseSelectFullClause(t *testing.T) {
	cmd := parse(t, `SELECT DISTINCT dept, COUNT(*) AS n, AVG(salary) AS a
		FROM emp WHERE active = TRUE GROUP BY dept HAVING COUNT(*) >= 2
		ORDER BY dept ASC, n DESC LIMIT 10 OFFSET 5;`)

	sel := cmd.(*ast.Select)
	assert.True(t, sel.Distinct)
	require.Len(t, sel.Items, 3)
	assert.Equal(t, "dept", sel.Items[0].Column)
	require.NotNil(t, sel.Items[1].Aggregate)
	assert.Equal(t, "COUNT(*)", sel.Items[1].Aggregate.String())
	assert.Equal(t, "n", sel.Items[1].Alias)
	assert.Equal(t, "AVG(salary)", sel.Items[2].Aggregate.String())
	assert.Equal(t, "a", sel.Items[2].Alias)

	require.NotNil(t, sel.Where)
	assert.Equal(t, []string{"dept"}, sel.GroupBy)
	require.NotNil(t, sel.Having)
	require.Len(t, sel.OrderBy, 2)
	assert.Equal(t, ast.OrderKey{Column: "dept"}, sel.OrderBy[0])
	assert.Equal(t, ast.OrderKey{Column: "n", Desc: true}, sel.OrderBy[1])
	require.NotNil(t, sel.Limit)
	assert.Equal(t, 10, *sel.Limit)
	require.NotNil(t, sel.Offset)
	assert.Equal(t, 5, *sel.Offset)
}

func TestParseJoins(t *testing.T) {
	tests := []struct {
		sql  string
		want ast.JoinType
	}{
		{"SELECT * FROM a JOIN b ON a.x = b.y", ast.JoinInner},
		{"SELECT * FROM a INNER JOIN b ON a.x = b.y", ast.JoinInner},
		{"SELECT * FROM a LEFT JOIN b ON a.x = b.y", ast.JoinLeft},
		{"SELECT * FROM a LEFT OUTER JOIN b ON a.x = b.y", ast.JoinLeft},
		{"SELECT * FROM a RIGHT JOIN b ON a.x = b.y", ast.JoinRight},
		{"SELECT * FROM a RIGHT OUTER JOIN b ON a.x = b.y", ast.JoinRight},
		{"SELECT * FROM a FULL OUTER JOIN b ON a.x = b.y", ast.JoinFull},
	}
	for _, tt := range tests {
		sel := parse(t, tt.sql).(*ast.Select)
		require.NotNil(t, sel.Join, tt.sql)
		assert.Equal(t, tt.want, sel.Join.Type, tt.sql)
		assert.Equal(t, "b", sel.Join.Table, tt.sql)
		assert.Equal(t, "a.x", sel.Join.LeftCol, tt.sql)
		assert.Equal(t, "b.y", sel.Join.RightCol, tt.sql)
	}

	// FULL requires OUTER.
	_, err := ParseQuery("SELECT * FROM a FULL JOIN b ON a.x = b.y")
	require.Error(t, err)
}

func TestParseUpdate(t *testing.T) {
	cmd := parse(t, "UPDATE t SET name = 'x' WHERE id = 2")
	up := cmd.(*ast.Update)
	assert.Equal(t, "t", up.Table)
	assert.Equal(t, "name", up.SetColumn)
	assert.True(t, value.Equal(value.Str("x"), up.SetValue))
	require.NotNil(t, up.Where)

	cmd = parse(t, "UPDATE t SET age = NULL")
	up = cmd.(*ast.Update)
	assert.True(t, up.SetValue.IsNull())
	assert.Nil(t, up.Where)
}

func TestParseDelete(t *testing.T) {
	cmd := parse(t, "DELETE FROM t WHERE id = 1;")
	del := cmd.(*ast.Delete)
	assert.Equal(t, "t", del.Table)
	require.NotNil(t, del.Where)

	cmd = parse(t, "DELETE FROM t")
	del = cmd.(*ast.Delete)
	assert.Nil(t, del.Where)
}

func TestParseExpressionPrecedence(t *testing.T) {
	sel := parse(t, "SELECT id FROM t WHERE a = 1 OR b = 2 AND NOT c = 3").(*ast.Select)
	or, ok := sel.Where.(*ast.Logical)
	require.True(t, ok)
	assert.Equal(t, "OR", or.Op)
	require.Len(t, or.Operands, 2)

	and, ok := or.Operands[1].(*ast.Logical)
	require.True(t, ok)
	assert.Equal(t, "AND", and.Op)

	not, ok := and.Operands[1].(*ast.Logical)
	require.True(t, ok)
	assert.Equal(t, "NOT", not.Op)
}

func TestParseComparisonForms(t *testing.T) {
	sel := parse(t, `SELECT id FROM t WHERE
		a IS NULL AND b IS NOT NULL AND c LIKE 'x%' AND d NOT LIKE '_y'
		AND e IN (1, 2) AND f NOT IN ('a') AND g BETWEEN 1 AND 10
		AND h NOT BETWEEN 2 AND 3`).(*ast.Select)

	and, ok := sel.Where.(*ast.Logical)
	require.True(t, ok)
	require.Len(t, and.Operands, 8)

	assert.IsType(t, &ast.IsNull{}, and.Operands[0])
	assert.False(t, and.Operands[0].(*ast.IsNull).Negate)
	assert.True(t, and.Operands[1].(*ast.IsNull).Negate)
	assert.IsType(t, &ast.Like{}, and.Operands[2])
	assert.True(t, and.Operands[3].(*ast.Like).Negate)
	assert.IsType(t, &ast.In{}, and.Operands[4])
	assert.True(t, and.Operands[5].(*ast.In).Negate)
	assert.IsType(t, &ast.Between{}, and.Operands[6])
	assert.True(t, and.Operands[7].(*ast.Between).Negate)
}

func TestParseDateTimeFunctions(t *testing.T) {
	sel := parse(t, "SELECT id FROM t WHERE YEAR(created) = 2024 AND DATEDIFF(due, created) > 7").(*ast.Select)
	and := sel.Where.(*ast.Logical)
	cmp := and.Operands[0].(*ast.Comparison)
	fn, ok := cmp.Left.(*ast.DateTimeFunc)
	require.True(t, ok)
	assert.Equal(t, "YEAR", fn.Name)
	require.Len(t, fn.Args, 1)
}

func TestParseAggregateOnlyInHaving(t *testing.T) {
	// Aggregates are not legal in WHERE.
	_, err := ParseQuery("SELECT id FROM t WHERE COUNT(*) > 1")
	require.Error(t, err)

	sel := parse(t, "SELECT dept FROM t GROUP BY dept HAVING SUM(x) > 10").(*ast.Select)
	aggs := ast.CollectAggregates(sel.Having)
	require.Len(t, aggs, 1)
	assert.Equal(t, "SUM(x)", aggs[0].String())
}

func TestParseStarAggregateOnlyCount(t *testing.T) {
	_, err := ParseQuery("SELECT SUM(*) FROM t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COUNT(*)")
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"FROBNICATE the database",
		"CREATE",
		"CREATE WIDGET x",
		"SELECT FROM t",
		"SELECT id FROM",
		"INSERT INTO t VALUES 1, 2",
		"UPDATE t SET",
		"DELETE t",
		"SELECT id FROM t WHERE",
		"SELECT id FROM t LIMIT -1",
		"SELECT id FROM t extra garbage",
	}
	for _, sql := range tests {
		_, err := ParseQuery(sql)
		require.Error(t, err, sql)
		assert.True(t,
			dberr.IsKind(err, dberr.KindParse) || dberr.IsKind(err, dberr.KindSchema) || dberr.IsKind(err, dberr.KindLex),
			sql)
	}
}

func TestParseErrorCitesToken(t *testing.T) {
	_, err := ParseQuery("SELECT id FROM t WHERE id = = 2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'='")
}

func TestParseDeterministic(t *testing.T) {
	sql := "SELECT a, b FROM t WHERE a > 1 ORDER BY b DESC LIMIT 3"
	first := parse(t, sql)
	second := parse(t, sql)
	assert.Equal(t, first, second)
}
