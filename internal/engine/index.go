package engine

import (
	"slices"

	"pesadb/internal/dberr"
	"pesadb/internal/value"
)

// Index is an equality hash map from column value to row positions.
// A unique index rejects duplicate values. NULL is never indexed:
// uniqueness does not apply to absent values, so a unique column may
// hold any number of NULLs.
type Index struct {
	column  string
	unique  bool
	entries map[string][]int
}

func newIndex(column string, unique bool) *Index {
	return &Index{
		column:  column,
		unique:  unique,
		entries: make(map[string][]int),
	}
}

// Insert adds a (value, row id) pair. A unique index fails when the
// value is already present.
func (ix *Index) Insert(v value.Value, rowID int) error {
	if v.IsNull() {
		return nil
	}
	key := v.Key()
	if ix.unique && len(ix.entries[key]) > 0 {
		return dberr.New(dberr.KindConstraint,
			"UNIQUE constraint violation: value '%s' already exists in column '%s'", v.String(), ix.column)
	}
	ix.entries[key] = append(ix.entries[key], rowID)
	return nil
}

// Lookup returns the row ids holding v, in insertion order. NULL never
// matches.
func (ix *Index) Lookup(v value.Value) []int {
	if v.IsNull() {
		return nil
	}
	return ix.entries[v.Key()]
}

// Remove drops a (value, row id) pair if present.
func (ix *Index) Remove(v value.Value, rowID int) {
	if v.IsNull() {
		return
	}
	key := v.Key()
	ids := ix.entries[key]
	if i := slices.Index(ids, rowID); i >= 0 {
		ids = slices.Delete(ids, i, i+1)
		if len(ids) == 0 {
			delete(ix.entries, key)
		} else {
			ix.entries[key] = ids
		}
	}
}

// Update moves rowID from old to new. A unique index fails when new is
// a different, already-present value.
func (ix *Index) Update(old, new value.Value, rowID int) error {
	if value.Equal(old, new) || (old.IsNull() && new.IsNull()) {
		return nil
	}
	if ix.unique && !new.IsNull() && len(ix.entries[new.Key()]) > 0 {
		return dberr.New(dberr.KindConstraint,
			"UNIQUE constraint violation: value '%s' already exists in column '%s'", new.String(), ix.column)
	}
	ix.Remove(old, rowID)
	return ix.Insert(new, rowID)
}

// Clear drops every entry.
func (ix *Index) Clear() {
	ix.entries = make(map[string][]int)
}

// rebuild repopulates the index from the given rows. Uniqueness is not
// re-checked: the rows are assumed consistent (snapshot load, reindex
// after deletion).
func (ix *Index) rebuild(rows []*Row) {
	ix.Clear()
	for id, row := range rows {
		v := row.Get(ix.column)
		if v.IsNull() {
			continue
		}
		key := v.Key()
		ix.entries[key] = append(ix.entries[key], id)
	}
}
