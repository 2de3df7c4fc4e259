package engine

import (
	"fmt"
	"sort"

	"pesadb/internal/dberr"
	"pesadb/internal/value"
)

// Table owns an ordered row list and the indexes over it. It keeps a
// back-reference to its database so foreign-key checks and referential
// actions can reach sibling tables.
type Table struct {
	Name    string
	Columns []Column

	db      *Database
	schema  map[string]*Column
	pk      string
	rows    []*Row
	indexes map[string]*Index
}

// NewTable validates the schema and builds an empty table. Every table
// needs at least one column, unique column names, and exactly one
// PRIMARY KEY. The primary key and each UNIQUE column get a unique
// index; each foreign-key column gets a non-unique index.
func NewTable(name string, columns []Column) (*Table, error) {
	if len(columns) == 0 {
		return nil, dberr.New(dberr.KindSchema, "table must have at least one column")
	}

	t := &Table{
		Name:    name,
		Columns: columns,
		schema:  make(map[string]*Column, len(columns)),
		indexes: make(map[string]*Index),
	}

	for i := range columns {
		col := &t.Columns[i]
		if _, dup := t.schema[col.Name]; dup {
			return nil, dberr.New(dberr.KindSchema, "duplicate column name '%s'", col.Name)
		}
		t.schema[col.Name] = col

		if col.OnDelete == "" {
			col.OnDelete = ActionRestrict
		}
		if col.OnUpdate == "" {
			col.OnUpdate = ActionRestrict
		}

		if col.PrimaryKey {
			if t.pk != "" {
				return nil, dberr.New(dberr.KindSchema, "table can have only one PRIMARY KEY column")
			}
			t.pk = col.Name
			col.Unique = true
		}
	}
	if t.pk == "" {
		return nil, dberr.New(dberr.KindSchema, "table must have exactly one PRIMARY KEY column")
	}

	for i := range t.Columns {
		col := &t.Columns[i]
		if col.PrimaryKey || col.Unique {
			t.indexes[col.Name] = newIndex(col.Name, true)
		} else if col.IsForeignKey() {
			t.indexes[col.Name] = newIndex(col.Name, false)
		}
	}

	return t, nil
}

// PrimaryKey returns the primary-key column name.
func (t *Table) PrimaryKey() string { return t.pk }

// ColumnNames returns the column names in schema order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i := range t.Columns {
		names[i] = t.Columns[i].Name
	}
	return names
}

// Column returns the schema entry for a column name.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.schema[name]
	return c, ok
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int { return len(t.rows) }

// Rows returns each row as a plain map, in insertion order.
func (t *Table) Rows() []map[string]value.Value {
	out := make([]map[string]value.Value, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Snapshot()
	}
	return out
}

// Insert validates foreign keys, constructs a row against the schema,
// inserts into every index, and appends the row. When an index insert
// fails the entries already made are rolled back and the row is not
// appended.
func (t *Table) Insert(values map[string]value.Value) error {
	for name := range values {
		if _, ok := t.schema[name]; !ok {
			return dberr.New(dberr.KindLookup,
				"column '%s' does not exist in table '%s'", name, t.Name)
		}
	}

	if err := t.validateForeignKeys(values); err != nil {
		return err
	}

	row, err := newRow(t.Columns, values)
	if err != nil {
		return err
	}

	rowID := len(t.rows)
	var inserted []*Index
	for _, ix := range t.indexOrder() {
		if err := ix.Insert(row.Get(ix.column), rowID); err != nil {
			for _, done := range inserted {
				done.Remove(row.Get(done.column), rowID)
			}
			return err
		}
		inserted = append(inserted, ix)
	}

	t.rows = append(t.rows, row)
	return nil
}

// Select returns the rows matching a single optional equality, projected
// to the requested columns (nil means all, in schema order). An indexed
// where column is answered from its index; otherwise the table is
// scanned. General predicate filtering is the executor's concern.
func (t *Table) Select(columns []string, whereCol string, whereVal value.Value) ([]map[string]value.Value, error) {
	if columns == nil {
		columns = t.ColumnNames()
	} else {
		for _, c := range columns {
			if _, ok := t.schema[c]; !ok {
				return nil, dberr.New(dberr.KindLookup,
					"column '%s' does not exist in table '%s'", c, t.Name)
			}
		}
	}

	matched, err := t.matchRows(whereCol, whereVal)
	if err != nil {
		return nil, err
	}

	result := make([]map[string]value.Value, 0, len(matched))
	for _, id := range matched {
		row := t.rows[id]
		m := make(map[string]value.Value, len(columns))
		for _, c := range columns {
			m[c] = row.Get(c)
		}
		result = append(result, m)
	}
	return result, nil
}

// Update sets one column on every matching row and returns the affected
// count. Updating a referenced PRIMARY KEY or UNIQUE value applies the
// referencing columns' ON UPDATE actions first; updating a foreign-key
// column re-validates the target.
func (t *Table) Update(setCol string, setVal value.Value, whereCol string, whereVal value.Value) (int, error) {
	col, ok := t.schema[setCol]
	if !ok {
		return 0, dberr.New(dberr.KindLookup,
			"column '%s' does not exist in table '%s'", setCol, t.Name)
	}

	newVal, err := value.Coerce(setVal, col.Type)
	if err != nil {
		return 0, dberr.Wrap(dberr.KindSchema, err, "column '%s'", setCol)
	}
	if err := checkTimestampText(col, newVal); err != nil {
		return 0, err
	}

	if col.IsForeignKey() && !newVal.IsNull() {
		if err := t.checkForeignKeyTarget(col, newVal); err != nil {
			return 0, err
		}
	}

	matched, err := t.matchRows(whereCol, whereVal)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, id := range matched {
		row := t.rows[id]
		oldVal := row.Get(setCol)

		if (col.PrimaryKey || col.Unique) && t.db != nil && !value.Equal(oldVal, newVal) {
			if err := t.db.applyOnUpdate(t, setCol, oldVal, newVal); err != nil {
				return updated, err
			}
		}

		if ix, ok := t.indexes[setCol]; ok {
			if err := ix.Update(oldVal, newVal, id); err != nil {
				return updated, err
			}
		}

		row.set(setCol, newVal)
		updated++
	}
	return updated, nil
}

// Delete removes every matching row and returns the affected count.
// Rows referenced from other tables have their referencing columns' ON
// DELETE actions applied: RESTRICT/NO ACTION abort before any mutation,
// CASCADE collects transitive deletes, SET NULL clears the referencing
// values. Row ids are reindexed afterwards.
func (t *Table) Delete(whereCol string, whereVal value.Value) (int, error) {
	matched, err := t.matchRows(whereCol, whereVal)
	if err != nil {
		return 0, err
	}
	if len(matched) == 0 {
		return 0, nil
	}

	if t.db != nil {
		return t.db.deleteWithActions(t, matched)
	}

	t.removeRows(matched)
	return len(matched), nil
}

// removeRows drops the given row ids and rebuilds every index so that
// positions stay dense in [0, N).
func (t *Table) removeRows(ids []int) {
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := t.rows[:0]
	for i, row := range t.rows {
		if !drop[i] {
			kept = append(kept, row)
		}
	}
	t.rows = kept
	t.reindex()
}

// reindex rebuilds every index from the current rows.
func (t *Table) reindex() {
	for _, ix := range t.indexes {
		ix.rebuild(t.rows)
	}
}

// matchRows resolves an optional single-column equality to row ids, via
// index when one exists. An empty whereCol matches every row.
func (t *Table) matchRows(whereCol string, whereVal value.Value) ([]int, error) {
	if whereCol == "" {
		ids := make([]int, len(t.rows))
		for i := range t.rows {
			ids[i] = i
		}
		return ids, nil
	}

	col, ok := t.schema[whereCol]
	if !ok {
		return nil, dberr.New(dberr.KindLookup,
			"column '%s' does not exist in table '%s'", whereCol, t.Name)
	}

	val, err := value.Coerce(whereVal, col.Type)
	if err != nil {
		// A value that cannot take the column's type is used as given: an
		// index lookup finds nothing, a scan compares with value.Equal.
		val = whereVal
	}

	if ix, ok := t.indexes[whereCol]; ok {
		ids := ix.Lookup(val)
		out := make([]int, len(ids))
		copy(out, ids)
		sort.Ints(out)
		return out, nil
	}

	var ids []int
	for i, row := range t.rows {
		if value.Equal(row.Get(whereCol), val) {
			ids = append(ids, i)
		}
	}
	return ids, nil
}

// validateForeignKeys confirms every non-NULL foreign-key value in the
// insert set exists in its referenced table.
func (t *Table) validateForeignKeys(values map[string]value.Value) error {
	for i := range t.Columns {
		col := &t.Columns[i]
		if !col.IsForeignKey() {
			continue
		}
		v, ok := values[col.Name]
		if !ok || v.IsNull() {
			continue
		}
		coerced, err := value.Coerce(v, col.Type)
		if err != nil {
			return dberr.Wrap(dberr.KindSchema, err, "column '%s'", col.Name)
		}
		if err := t.checkForeignKeyTarget(col, coerced); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) checkForeignKeyTarget(col *Column, v value.Value) error {
	if t.db == nil {
		return nil
	}
	ref, err := t.db.Table(col.FKTable)
	if err != nil {
		return dberr.New(dberr.KindConstraint,
			"foreign key on '%s.%s' references missing table '%s'", t.Name, col.Name, col.FKTable)
	}
	refCol, ok := ref.schema[col.FKColumn]
	if !ok {
		return dberr.New(dberr.KindConstraint,
			"foreign key on '%s.%s' references missing column '%s.%s'",
			t.Name, col.Name, col.FKTable, col.FKColumn)
	}
	target, err := value.Coerce(v, refCol.Type)
	if err != nil {
		target = v
	}
	if len(ref.lookupRows(col.FKColumn, target)) == 0 {
		return dberr.New(dberr.KindConstraint,
			"foreign key violation: value '%s' for '%s.%s' not found in '%s.%s'",
			v.String(), t.Name, col.Name, col.FKTable, col.FKColumn)
	}
	return nil
}

// lookupRows answers a plain equality without coercion, via index when
// possible.
func (t *Table) lookupRows(col string, v value.Value) []int {
	if ix, ok := t.indexes[col]; ok {
		return ix.Lookup(v)
	}
	var ids []int
	for i, row := range t.rows {
		if value.Equal(row.Get(col), v) {
			ids = append(ids, i)
		}
	}
	return ids
}

// indexOrder returns the indexes in a stable order, primary key first,
// so error messages and rollbacks are deterministic.
func (t *Table) indexOrder() []*Index {
	out := make([]*Index, 0, len(t.indexes))
	if ix, ok := t.indexes[t.pk]; ok {
		out = append(out, ix)
	}
	for i := range t.Columns {
		name := t.Columns[i].Name
		if name == t.pk {
			continue
		}
		if ix, ok := t.indexes[name]; ok {
			out = append(out, ix)
		}
	}
	return out
}

// CheckIntegrity verifies the index invariant: every row id appears in
// each index under the row's value. It exists for tests.
func (t *Table) CheckIntegrity() error {
	for name, ix := range t.indexes {
		for id, row := range t.rows {
			v := row.Get(name)
			if v.IsNull() {
				continue
			}
			found := false
			for _, got := range ix.Lookup(v) {
				if got == id {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("engine: index '%s' of table '%s' is missing row %d", name, t.Name, id)
			}
		}
	}
	return nil
}
