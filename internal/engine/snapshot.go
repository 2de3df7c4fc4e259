package engine

import (
	"encoding/json"
	"sort"

	"pesadb/internal/dberr"
	"pesadb/internal/value"
)

// Snapshot documents mirror the on-disk JSON layout: a database is one
// self-describing file holding its name, each table's column definitions
// with FK metadata, and each table's rows in insertion order.

type snapshotDoc struct {
	Name   string              `json:"name"`
	Tables map[string]tableDoc `json:"tables"`
}

type tableDoc struct {
	Columns []columnDoc      `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

type columnDoc struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	IsPrimaryKey     bool   `json:"is_primary_key"`
	IsUnique         bool   `json:"is_unique"`
	ForeignKeyTable  string `json:"foreign_key_table,omitempty"`
	ForeignKeyColumn string `json:"foreign_key_column,omitempty"`
	OnDelete         string `json:"on_delete,omitempty"`
	OnUpdate         string `json:"on_update,omitempty"`
}

// MarshalSnapshot encodes the database as its snapshot document.
func (db *Database) MarshalSnapshot() ([]byte, error) {
	doc := snapshotDoc{
		Name:   db.Name,
		Tables: make(map[string]tableDoc, len(db.tables)),
	}

	for _, name := range db.order {
		t := db.tables[name]
		td := tableDoc{
			Columns: make([]columnDoc, 0, len(t.Columns)),
			Rows:    make([]map[string]any, 0, len(t.rows)),
		}
		for i := range t.Columns {
			col := &t.Columns[i]
			cd := columnDoc{
				Name:         col.Name,
				Type:         string(col.Type),
				IsPrimaryKey: col.PrimaryKey,
				IsUnique:     col.Unique,
			}
			if col.IsForeignKey() {
				cd.ForeignKeyTable = col.FKTable
				cd.ForeignKeyColumn = col.FKColumn
				cd.OnDelete = string(col.OnDelete)
				cd.OnUpdate = string(col.OnUpdate)
			}
			td.Columns = append(td.Columns, cd)
		}
		for _, row := range t.rows {
			m := make(map[string]any, len(t.Columns))
			for i := range t.Columns {
				cn := t.Columns[i].Name
				m[cn] = row.Get(cn).ToAny()
			}
			td.Rows = append(td.Rows, m)
		}
		doc.Tables[name] = td
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, dberr.Wrap(dberr.KindIO, err, "encode snapshot of database '%s'", db.Name)
	}
	return data, nil
}

// UnmarshalSnapshot reconstructs a database from a snapshot document.
// Rows are re-inserted bypassing uniqueness checks — the snapshot is
// assumed consistent — and indexes are rebuilt at the end.
func UnmarshalSnapshot(data []byte) (*Database, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, dberr.Wrap(dberr.KindIO, err, "invalid database snapshot")
	}

	db := NewDatabase(doc.Name)

	// JSON map order is unspecified; recreate tables sorted by name.
	names := make([]string, 0, len(doc.Tables))
	for name := range doc.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		td := doc.Tables[name]
		columns := make([]Column, 0, len(td.Columns))
		for _, cd := range td.Columns {
			typ, err := value.ParseType(cd.Type)
			if err != nil {
				return nil, dberr.Wrap(dberr.KindIO, err, "table '%s'", name)
			}
			onDelete, err := ParseRefAction(cd.OnDelete)
			if err != nil {
				return nil, dberr.Wrap(dberr.KindIO, err, "table '%s' column '%s'", name, cd.Name)
			}
			onUpdate, err := ParseRefAction(cd.OnUpdate)
			if err != nil {
				return nil, dberr.Wrap(dberr.KindIO, err, "table '%s' column '%s'", name, cd.Name)
			}
			columns = append(columns, Column{
				Name:       cd.Name,
				Type:       typ,
				PrimaryKey: cd.IsPrimaryKey,
				Unique:     cd.IsUnique,
				FKTable:    cd.ForeignKeyTable,
				FKColumn:   cd.ForeignKeyColumn,
				OnDelete:   onDelete,
				OnUpdate:   onUpdate,
			})
		}

		t, err := NewTable(name, columns)
		if err != nil {
			return nil, dberr.Wrap(dberr.KindIO, err, "table '%s'", name)
		}

		for _, raw := range td.Rows {
			values := make(map[string]value.Value, len(raw))
			for col, x := range raw {
				v, err := value.FromAny(x)
				if err != nil {
					return nil, dberr.Wrap(dberr.KindIO, err, "table '%s' column '%s'", name, col)
				}
				values[col] = v
			}
			row, err := newRow(t.Columns, values)
			if err != nil {
				return nil, dberr.Wrap(dberr.KindIO, err, "table '%s'", name)
			}
			t.rows = append(t.rows, row)
		}
		t.reindex()

		if err := db.CreateTable(t); err != nil {
			return nil, err
		}
	}

	return db, nil
}
