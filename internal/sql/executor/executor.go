// Package executor interprets command trees against the catalog. It
// dispatches on the command variant, drives table operations through
// the active database, and saves the affected database after every
// successful mutation.
package executor

import (
	"fmt"
	"log/slog"
	"regexp"

	"pesadb/internal/audit"
	"pesadb/internal/dberr"
	"pesadb/internal/engine"
	"pesadb/internal/sql/ast"
	"pesadb/internal/sql/token"
	"pesadb/internal/value"
)

// Result is the outcome of one command. Mutators set Status; SELECT and
// the metadata queries set Columns and Rows.
type Result struct {
	Status  string
	Columns []string
	Rows    []map[string]value.Value
}

// identRe is the accepted shape of table names.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Executor runs commands against a catalog. It carries the currently
// selected database, set by USE; catalog-level commands work without
// one.
type Executor struct {
	catalog *engine.Catalog
	current string
	audit   *audit.Log
	logger  *slog.Logger
}

// New builds an executor. The audit log may be nil to disable auditing.
func New(catalog *engine.Catalog, auditLog *audit.Log, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{catalog: catalog, audit: auditLog, logger: logger}
}

// Use selects the active database without going through a USE command.
func (e *Executor) Use(name string) error {
	if _, err := e.catalog.Get(name); err != nil {
		return err
	}
	e.current = name
	return nil
}

// Current returns the active database name, empty when none selected.
func (e *Executor) Current() string { return e.current }

// Execute runs one command and returns its result. Errors carry the
// dberr taxonomy; nothing is swallowed.
func (e *Executor) Execute(cmd ast.Command) (*Result, error) {
	switch c := cmd.(type) {
	case *ast.CreateDatabase:
		return e.createDatabase(c)
	case *ast.DropDatabase:
		return e.dropDatabase(c)
	case *ast.UseDatabase:
		return e.useDatabase(c)
	case *ast.ShowDatabases:
		return e.showDatabases()
	case *ast.ShowTables:
		return e.showTables()
	case *ast.DescribeTable:
		return e.describeTable(c)
	case *ast.CreateTable:
		return e.createTable(c)
	case *ast.DropTable:
		return e.dropTable(c)
	case *ast.Insert:
		return e.insert(c)
	case *ast.Select:
		return e.query(c)
	case *ast.Update:
		return e.update(c)
	case *ast.Delete:
		return e.delete(c)
	}
	return nil, dberr.New(dberr.KindExecution, "unknown command type %T", cmd)
}

// activeDatabase resolves the selected database for commands that need
// one.
func (e *Executor) activeDatabase() (*engine.Database, error) {
	if e.current == "" {
		return nil, dberr.New(dberr.KindExecution, "no database selected; run USE <database> first")
	}
	return e.catalog.Get(e.current)
}

// saveActive persists the selected database after a successful
// mutation. In-memory state is ahead of disk if this fails; the error
// is surfaced to the caller.
func (e *Executor) saveActive() error {
	return e.catalog.Save(e.current)
}

func (e *Executor) record(table string, action audit.Action, rows int) {
	if e.audit != nil {
		e.audit.Record(e.current, table, action, rows)
	}
}

func (e *Executor) createDatabase(c *ast.CreateDatabase) (*Result, error) {
	if _, err := e.catalog.Create(c.Name); err != nil {
		return nil, err
	}
	return &Result{Status: fmt.Sprintf("Database '%s' created successfully.", c.Name)}, nil
}

func (e *Executor) dropDatabase(c *ast.DropDatabase) (*Result, error) {
	if err := e.catalog.Drop(c.Name); err != nil {
		return nil, err
	}
	if e.current == c.Name {
		e.current = ""
	}
	return &Result{Status: fmt.Sprintf("Database '%s' dropped successfully.", c.Name)}, nil
}

func (e *Executor) useDatabase(c *ast.UseDatabase) (*Result, error) {
	if err := e.Use(c.Name); err != nil {
		return nil, err
	}
	return &Result{Status: fmt.Sprintf("Using database '%s'.", c.Name)}, nil
}

func (e *Executor) showDatabases() (*Result, error) {
	res := &Result{Columns: []string{"Database"}}
	for _, name := range e.catalog.Names() {
		res.Rows = append(res.Rows, map[string]value.Value{"Database": value.Str(name)})
	}
	return res, nil
}

func (e *Executor) showTables() (*Result, error) {
	db, err := e.activeDatabase()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: []string{"Table"}}
	for _, name := range db.TableNames() {
		res.Rows = append(res.Rows, map[string]value.Value{"Table": value.Str(name)})
	}
	return res, nil
}

func (e *Executor) describeTable(c *ast.DescribeTable) (*Result, error) {
	db, err := e.activeDatabase()
	if err != nil {
		return nil, err
	}
	t, err := db.Table(c.Name)
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: []string{"field", "type", "key", "references"}}
	for i := range t.Columns {
		col := &t.Columns[i]
		key := ""
		switch {
		case col.PrimaryKey:
			key = "PRI"
		case col.Unique:
			key = "UNI"
		}
		refs := ""
		if col.IsForeignKey() {
			refs = fmt.Sprintf("%s(%s)", col.FKTable, col.FKColumn)
		}
		res.Rows = append(res.Rows, map[string]value.Value{
			"field":      value.Str(col.Name),
			"type":       value.Str(string(col.Type)),
			"key":        value.Str(key),
			"references": value.Str(refs),
		})
	}
	return res, nil
}

func (e *Executor) createTable(c *ast.CreateTable) (*Result, error) {
	db, err := e.activeDatabase()
	if err != nil {
		return nil, err
	}
	if err := validateTableName(c.Name); err != nil {
		return nil, err
	}

	t, err := engine.NewTable(c.Name, c.Columns)
	if err != nil {
		return nil, err
	}
	if err := db.CreateTable(t); err != nil {
		return nil, err
	}
	if err := e.saveActive(); err != nil {
		return nil, err
	}
	e.record(c.Name, audit.ActionCreateTable, 0)
	return &Result{Status: fmt.Sprintf("Table '%s' created successfully.", c.Name)}, nil
}

func (e *Executor) dropTable(c *ast.DropTable) (*Result, error) {
	db, err := e.activeDatabase()
	if err != nil {
		return nil, err
	}
	if err := db.DropTable(c.Name); err != nil {
		return nil, err
	}
	if err := e.saveActive(); err != nil {
		return nil, err
	}
	e.record(c.Name, audit.ActionDropTable, 0)
	return &Result{Status: fmt.Sprintf("Table '%s' dropped successfully.", c.Name)}, nil
}

func (e *Executor) insert(c *ast.Insert) (*Result, error) {
	db, err := e.activeDatabase()
	if err != nil {
		return nil, err
	}
	t, err := db.Table(c.Table)
	if err != nil {
		return nil, err
	}

	columns := c.Columns
	if columns == nil {
		columns = t.ColumnNames()
	}
	if len(c.Values) != len(columns) {
		return nil, dberr.New(dberr.KindSchema,
			"value count mismatch: expected %d values for columns %v, got %d",
			len(columns), columns, len(c.Values))
	}

	values := make(map[string]value.Value, len(columns))
	for i, col := range columns {
		values[col] = c.Values[i]
	}
	// An explicit column list must still cover the schema: rows have no
	// default values.
	for _, name := range t.ColumnNames() {
		if _, ok := values[name]; !ok {
			return nil, dberr.New(dberr.KindSchema, "missing value for column '%s'", name)
		}
	}

	if err := t.Insert(values); err != nil {
		return nil, err
	}
	if err := e.saveActive(); err != nil {
		return nil, err
	}
	e.record(c.Table, audit.ActionInsert, 1)
	return &Result{Status: fmt.Sprintf("1 row inserted into '%s'.", c.Table)}, nil
}

func (e *Executor) update(c *ast.Update) (*Result, error) {
	db, err := e.activeDatabase()
	if err != nil {
		return nil, err
	}
	t, err := db.Table(c.Table)
	if err != nil {
		return nil, err
	}

	count, err := e.mutateMatching(t, c.Where, func(whereCol string, whereVal value.Value) (int, error) {
		return t.Update(c.SetColumn, c.SetValue, whereCol, whereVal)
	})
	if err != nil {
		return nil, err
	}
	if err := e.saveActive(); err != nil {
		return nil, err
	}
	e.record(c.Table, audit.ActionUpdate, count)
	return &Result{Status: fmt.Sprintf("%d row(s) updated in '%s'.", count, c.Table)}, nil
}

func (e *Executor) delete(c *ast.Delete) (*Result, error) {
	db, err := e.activeDatabase()
	if err != nil {
		return nil, err
	}
	t, err := db.Table(c.Table)
	if err != nil {
		return nil, err
	}

	count, err := e.mutateMatching(t, c.Where, func(whereCol string, whereVal value.Value) (int, error) {
		return t.Delete(whereCol, whereVal)
	})
	if err != nil {
		return nil, err
	}
	if err := e.saveActive(); err != nil {
		return nil, err
	}
	e.record(c.Table, audit.ActionDelete, count)
	return &Result{Status: fmt.Sprintf("%d row(s) deleted from '%s'.", count, c.Table)}, nil
}

// mutateMatching applies op to the rows matching where. A single
// equality on a column is pushed down to the table; any other predicate
// is resolved row-by-row through the primary key.
func (e *Executor) mutateMatching(t *engine.Table, where ast.Expr, op func(string, value.Value) (int, error)) (int, error) {
	if where == nil {
		return op("", value.Value{})
	}

	if col, val, ok := simpleEquality(where); ok {
		return op(col, val)
	}

	// General predicate: evaluate over a snapshot of the rows, then
	// apply the operation per primary-key value so positions shifting
	// under deletion cannot skip rows.
	pk := t.PrimaryKey()
	var keys []value.Value
	for _, row := range t.Rows() {
		v, err := where.Eval(ast.Env(row))
		if err != nil {
			return 0, err
		}
		if v.Truthy() {
			keys = append(keys, row[pk])
		}
	}

	total := 0
	for _, key := range keys {
		n, err := op(pk, key)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// simpleEquality recognizes `column = literal` (either side) for index
// pushdown.
func simpleEquality(expr ast.Expr) (string, value.Value, bool) {
	cmp, ok := expr.(*ast.Comparison)
	if !ok || cmp.Op != "=" {
		return "", value.Value{}, false
	}
	if col, ok := cmp.Left.(*ast.Column); ok {
		if lit, ok := cmp.Right.(*ast.Literal); ok {
			return unqualify(col.Name), lit.Val, true
		}
	}
	if col, ok := cmp.Right.(*ast.Column); ok {
		if lit, ok := cmp.Left.(*ast.Literal); ok {
			return unqualify(col.Name), lit.Val, true
		}
	}
	return "", value.Value{}, false
}

func unqualify(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}

// validateTableName enforces the identifier shape and rejects reserved
// words, so a table cannot shadow the query vocabulary.
func validateTableName(name string) error {
	if !identRe.MatchString(name) {
		return dberr.New(dberr.KindSchema, "invalid table name '%s'", name)
	}
	if len(name) > 64 {
		return dberr.New(dberr.KindSchema, "table name too long (max 64 characters): '%s'", name)
	}
	if token.IsKeyword(name) {
		return dberr.New(dberr.KindSchema, "'%s' is a reserved keyword and cannot name a table", name)
	}
	return nil
}
