package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pesadb/internal/dberr"
	"pesadb/internal/value"
)

func seededDatabase(t *testing.T) *Database {
	t.Helper()
	db := NewDatabase("shop")

	users := mustTable(t, "users", []Column{
		{Name: "id", Type: value.TypeInt, PrimaryKey: true},
		{Name: "name", Type: value.TypeString, Unique: true},
		{Name: "joined", Type: value.TypeDate},
	})
	require.NoError(t, db.CreateTable(users))

	orders := mustTable(t, "orders", []Column{
		{Name: "oid", Type: value.TypeInt, PrimaryKey: true},
		{Name: "uid", Type: value.TypeInt, FKTable: "users", FKColumn: "id", OnDelete: ActionCascade, OnUpdate: ActionSetNull},
		{Name: "total", Type: value.TypeFloat},
	})
	require.NoError(t, db.CreateTable(orders))

	require.NoError(t, users.Insert(row("id", value.Int(1), "name", value.Str("ada"), "joined", value.Str("2024-01-15"))))
	require.NoError(t, users.Insert(row("id", value.Int(2), "name", value.Str("bob"), "joined", value.Str("2024-02-20"))))
	require.NoError(t, orders.Insert(row("oid", value.Int(10), "uid", value.Int(1), "total", value.Float(99.5))))

	return db
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := seededDatabase(t)

	data, err := db.MarshalSnapshot()
	require.NoError(t, err)

	back, err := UnmarshalSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, "shop", back.Name)

	users, err := back.Table("users")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "joined"}, users.ColumnNames())
	assert.Equal(t, 2, users.RowCount())

	rows, err := users.Select(nil, "id", value.Int(1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, value.Equal(value.Str("ada"), rows[0]["name"]))
	assert.Equal(t, "2024-01-15", rows[0]["joined"].String())

	orders, err := back.Table("orders")
	require.NoError(t, err)
	col, ok := orders.Column("uid")
	require.True(t, ok)
	assert.Equal(t, "users", col.FKTable)
	assert.Equal(t, "id", col.FKColumn)
	assert.Equal(t, ActionCascade, col.OnDelete)
	assert.Equal(t, ActionSetNull, col.OnUpdate)

	// Indexes are rebuilt and the FK still enforces after reload.
	require.NoError(t, users.CheckIntegrity())
	err = orders.Insert(row("oid", value.Int(11), "uid", value.Int(99), "total", value.Float(1)))
	require.Error(t, err)
	assert.True(t, dberr.IsKind(err, dberr.KindConstraint))
}

func TestSnapshotLayout(t *testing.T) {
	db := seededDatabase(t)
	data, err := db.MarshalSnapshot()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "shop", doc["name"])

	tables, ok := doc["tables"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, tables, "users")
	require.Contains(t, tables, "orders")

	users := tables["users"].(map[string]any)
	cols := users["columns"].([]any)
	first := cols[0].(map[string]any)
	assert.Equal(t, "id", first["name"])
	assert.Equal(t, "INT", first["type"])
	assert.Equal(t, true, first["is_primary_key"])
}

func TestUnmarshalSnapshotMalformed(t *testing.T) {
	_, err := UnmarshalSnapshot([]byte("{not json"))
	require.Error(t, err)
	assert.True(t, dberr.IsKind(err, dberr.KindIO))
}

func TestCatalogLifecycle(t *testing.T) {
	dir := t.TempDir()

	cat, err := OpenCatalog(dir, nil)
	require.NoError(t, err)
	assert.Empty(t, cat.Names())

	_, err = cat.Create("alpha")
	require.NoError(t, err)
	_, err = cat.Create("beta")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, cat.Names())

	// Both layout files exist.
	assert.FileExists(t, filepath.Join(dir, "catalog.json"))
	assert.FileExists(t, filepath.Join(dir, "alpha.json"))

	_, err = cat.Create("alpha")
	require.Error(t, err)

	_, err = cat.Create("bad name")
	require.Error(t, err)
	assert.True(t, dberr.IsKind(err, dberr.KindSchema))

	require.NoError(t, cat.Drop("beta"))
	assert.NoFileExists(t, filepath.Join(dir, "beta.json"))

	err = cat.Drop("ghost")
	require.Error(t, err)
	assert.True(t, dberr.IsKind(err, dberr.KindLookup))
}

func TestCatalogReopenPreservesState(t *testing.T) {
	dir := t.TempDir()

	cat, err := OpenCatalog(dir, nil)
	require.NoError(t, err)
	db, err := cat.Create("shop")
	require.NoError(t, err)

	users := mustTable(t, "users", []Column{
		{Name: "id", Type: value.TypeInt, PrimaryKey: true},
		{Name: "name", Type: value.TypeString},
	})
	require.NoError(t, db.CreateTable(users))
	require.NoError(t, users.Insert(row("id", value.Int(1), "name", value.Str("ada"))))
	require.NoError(t, cat.Save("shop"))
	require.NoError(t, cat.Close())

	reopened, err := OpenCatalog(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"shop"}, reopened.Names())

	db2, err := reopened.Get("shop")
	require.NoError(t, err)
	t2, err := db2.Table("users")
	require.NoError(t, err)
	rows, err := t2.Select(nil, "", value.Value{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, value.Equal(value.Str("ada"), rows[0]["name"]))
}

func TestCatalogSkipsCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()

	cat, err := OpenCatalog(dir, nil)
	require.NoError(t, err)
	_, err = cat.Create("good")
	require.NoError(t, err)
	_, err = cat.Create("bad")
	require.NoError(t, err)
	require.NoError(t, cat.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{broken"), 0o644))

	reopened, err := OpenCatalog(dir, nil)
	require.NoError(t, err)
	assert.True(t, reopened.Exists("good"))
	assert.False(t, reopened.Exists("bad"))
}

func TestWriteFileAtomicLeavesNoTempOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	require.NoError(t, writeFileAtomic(path, []byte(`{"a":1}`)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// Overwrite goes through the same dance.
	require.NoError(t, writeFileAtomic(path, []byte(`{"a":2}`)))
	data, _ = os.ReadFile(path)
	assert.Equal(t, `{"a":2}`, string(data))
}
