package engine

import (
	"sort"

	"pesadb/internal/dberr"
	"pesadb/internal/value"
)

// Database maps table names to tables. Table creation order is kept for
// SHOW TABLES; a database loaded from its snapshot lists its tables
// sorted by name, since the snapshot does not record creation order.
type Database struct {
	Name string

	tables map[string]*Table
	order  []string
}

// NewDatabase builds an empty database.
func NewDatabase(name string) *Database {
	return &Database{
		Name:   name,
		tables: make(map[string]*Table),
	}
}

// CreateTable registers a table and wires its back-reference.
func (db *Database) CreateTable(t *Table) error {
	if _, exists := db.tables[t.Name]; exists {
		return dberr.New(dberr.KindSchema, "table '%s' already exists", t.Name)
	}
	t.db = db
	db.tables[t.Name] = t
	db.order = append(db.order, t.Name)
	return nil
}

// Table looks a table up by name.
func (db *Database) Table(name string) (*Table, error) {
	t, ok := db.tables[name]
	if !ok {
		return nil, dberr.New(dberr.KindLookup, "table '%s' does not exist", name)
	}
	return t, nil
}

// DropTable removes a table unconditionally. Referencing tables are the
// caller's responsibility.
func (db *Database) DropTable(name string) error {
	if _, ok := db.tables[name]; !ok {
		return dberr.New(dberr.KindLookup, "table '%s' does not exist", name)
	}
	delete(db.tables, name)
	for i, n := range db.order {
		if n == name {
			db.order = append(db.order[:i], db.order[i+1:]...)
			break
		}
	}
	return nil
}

// TableNames lists tables in creation order.
func (db *Database) TableNames() []string {
	out := make([]string, len(db.order))
	copy(out, db.order)
	return out
}

// rowRef identifies a row by table and current position.
type rowRef struct {
	table string
	id    int
}

// deleteWithActions deletes the given rows of origin, applying ON DELETE
// actions across referencing tables. The walk is an iterative depth-first
// worklist with a visited set per (table, row id) so schema cycles
// terminate. RESTRICT/NO ACTION anywhere aborts before any mutation.
func (db *Database) deleteWithActions(origin *Table, ids []int) (int, error) {
	deletes := make(map[string]map[int]bool)
	type setNull struct {
		table string
		id    int
		col   string
	}
	var setNulls []setNull

	mark := func(table string, id int) bool {
		m := deletes[table]
		if m == nil {
			m = make(map[int]bool)
			deletes[table] = m
		}
		if m[id] {
			return false
		}
		m[id] = true
		return true
	}

	// Depth-first: the worklist is a stack seeded with the origin rows.
	stack := make([]rowRef, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		stack = append(stack, rowRef{origin.Name, ids[i]})
	}
	for _, ref := range stack {
		mark(ref.table, ref.id)
	}

	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		t := db.tables[ref.table]
		row := t.rows[ref.id]

		for _, refTable := range db.referencingTables(t.Name) {
			for i := range refTable.Columns {
				col := &refTable.Columns[i]
				if col.FKTable != t.Name {
					continue
				}
				target := row.Get(col.FKColumn)
				if target.IsNull() {
					continue
				}
				for _, rid := range refTable.lookupRows(col.Name, target) {
					if deletes[refTable.Name][rid] {
						continue
					}
					switch col.OnDelete {
					case ActionCascade:
						if mark(refTable.Name, rid) {
							stack = append(stack, rowRef{refTable.Name, rid})
						}
					case ActionSetNull:
						setNulls = append(setNulls, setNull{refTable.Name, rid, col.Name})
					default:
						return 0, dberr.New(dberr.KindConstraint,
							"cannot delete from '%s': value '%s' is referenced by '%s.%s' (ON DELETE %s)",
							t.Name, target.String(), refTable.Name, col.Name, string(col.OnDelete))
					}
				}
			}
		}
	}

	for _, sn := range setNulls {
		if deletes[sn.table][sn.id] {
			continue
		}
		t := db.tables[sn.table]
		row := t.rows[sn.id]
		if ix, ok := t.indexes[sn.col]; ok {
			ix.Remove(row.Get(sn.col), sn.id)
		}
		row.set(sn.col, value.Null())
	}

	for name, ids := range deletes {
		t := db.tables[name]
		ordered := make([]int, 0, len(ids))
		for id := range ids {
			ordered = append(ordered, id)
		}
		sort.Ints(ordered)
		t.removeRows(ordered)
	}

	return len(deletes[origin.Name]), nil
}

// applyOnUpdate propagates a key change on table.col from old to new
// through referencing tables per each column's ON UPDATE action. The
// worklist carries (table, column, old value) edges; a visited set keeps
// cyclic schemas terminating.
func (db *Database) applyOnUpdate(origin *Table, col string, oldVal, newVal value.Value) error {
	type edge struct {
		table  string
		column string
		oldVal value.Value
		newVal value.Value
	}

	visited := make(map[string]bool)
	stack := []edge{{origin.Name, col, oldVal, newVal}}

	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		key := e.table + "\x00" + e.column + "\x00" + e.oldVal.Key()
		if visited[key] {
			continue
		}
		visited[key] = true

		t := db.tables[e.table]

		for _, refTable := range db.referencingTables(e.table) {
			for i := range refTable.Columns {
				fk := &refTable.Columns[i]
				if fk.FKTable != e.table || fk.FKColumn != e.column {
					continue
				}
				ids := refTable.lookupRows(fk.Name, e.oldVal)
				if len(ids) == 0 {
					continue
				}
				switch fk.OnUpdate {
				case ActionCascade:
					for _, rid := range ids {
						row := refTable.rows[rid]
						if ix, ok := refTable.indexes[fk.Name]; ok {
							if err := ix.Update(row.Get(fk.Name), e.newVal, rid); err != nil {
								return err
							}
						}
						row.set(fk.Name, e.newVal)
					}
					if fk.PrimaryKey || fk.Unique {
						stack = append(stack, edge{refTable.Name, fk.Name, e.oldVal, e.newVal})
					}
				case ActionSetNull:
					for _, rid := range ids {
						row := refTable.rows[rid]
						if ix, ok := refTable.indexes[fk.Name]; ok {
							ix.Remove(row.Get(fk.Name), rid)
						}
						row.set(fk.Name, value.Null())
					}
				default:
					return dberr.New(dberr.KindConstraint,
						"cannot update '%s.%s': value '%s' is referenced by '%s.%s' (ON UPDATE %s)",
						t.Name, e.column, e.oldVal.String(), refTable.Name, fk.Name, string(fk.OnUpdate))
				}
			}
		}
	}

	return nil
}

// referencingTables returns the tables holding a foreign key into the
// named table, in creation order.
func (db *Database) referencingTables(name string) []*Table {
	var out []*Table
	for _, tn := range db.order {
		t := db.tables[tn]
		for i := range t.Columns {
			if t.Columns[i].FKTable == name {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
