package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pesadb/internal/dberr"
	"pesadb/internal/value"
)

// fkDatabase builds u(id) <- o(oid, uid) with the given ON DELETE
// action on o.uid.
func fkDatabase(t *testing.T, onDelete RefAction) *Database {
	t.Helper()
	db := NewDatabase("d")

	u := mustTable(t, "u", []Column{
		{Name: "id", Type: value.TypeInt, PrimaryKey: true},
	})
	require.NoError(t, db.CreateTable(u))

	o := mustTable(t, "o", []Column{
		{Name: "oid", Type: value.TypeInt, PrimaryKey: true},
		{Name: "uid", Type: value.TypeInt, FKTable: "u", FKColumn: "id", OnDelete: onDelete},
	})
	require.NoError(t, db.CreateTable(o))

	require.NoError(t, u.Insert(row("id", value.Int(1))))
	require.NoError(t, u.Insert(row("id", value.Int(2))))
	require.NoError(t, o.Insert(row("oid", value.Int(10), "uid", value.Int(1))))
	require.NoError(t, o.Insert(row("oid", value.Int(11), "uid", value.Int(1))))
	require.NoError(t, o.Insert(row("oid", value.Int(12), "uid", value.Int(2))))

	return db
}

func TestForeignKeyInsertValidation(t *testing.T) {
	db := fkDatabase(t, ActionCascade)
	o, err := db.Table("o")
	require.NoError(t, err)

	err = o.Insert(row("oid", value.Int(13), "uid", value.Int(99)))
	require.Error(t, err)
	assert.True(t, dberr.IsKind(err, dberr.KindConstraint))
	assert.Contains(t, err.Error(), "foreign key")

	// NULL foreign keys are allowed: absence references nothing.
	require.NoError(t, o.Insert(row("oid", value.Int(14), "uid", value.Null())))
}

func TestForeignKeyMissingTable(t *testing.T) {
	db := NewDatabase("d")
	bad := mustTable(t, "bad", []Column{
		{Name: "id", Type: value.TypeInt, PrimaryKey: true},
		{Name: "ref", Type: value.TypeInt, FKTable: "ghost", FKColumn: "id"},
	})
	require.NoError(t, db.CreateTable(bad))

	err := bad.Insert(row("id", value.Int(1), "ref", value.Int(1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing table")
}

func TestOnDeleteCascade(t *testing.T) {
	db := fkDatabase(t, ActionCascade)
	u, _ := db.Table("u")
	o, _ := db.Table("o")

	n, err := u.Delete("id", value.Int(1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := o.Select(nil, "", value.Value{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, value.Equal(value.Int(12), rows[0]["oid"]))
	assert.True(t, value.Equal(value.Int(2), rows[0]["uid"]))

	require.NoError(t, u.CheckIntegrity())
	require.NoError(t, o.CheckIntegrity())
}

func TestOnDeleteRestrict(t *testing.T) {
	db := fkDatabase(t, ActionRestrict)
	u, _ := db.Table("u")
	o, _ := db.Table("o")

	_, err := u.Delete("id", value.Int(1))
	require.Error(t, err)
	assert.True(t, dberr.IsKind(err, dberr.KindConstraint))
	assert.Contains(t, err.Error(), "o.uid")

	// Nothing moved.
	assert.Equal(t, 2, u.RowCount())
	assert.Equal(t, 3, o.RowCount())
}

func TestOnDeleteNoActionBehavesLikeRestrict(t *testing.T) {
	db := fkDatabase(t, ActionNoAction)
	u, _ := db.Table("u")

	_, err := u.Delete("id", value.Int(1))
	require.Error(t, err)
	assert.True(t, dberr.IsKind(err, dberr.KindConstraint))
}

func TestOnDeleteSetNull(t *testing.T) {
	db := fkDatabase(t, ActionSetNull)
	u, _ := db.Table("u")
	o, _ := db.Table("o")

	n, err := u.Delete("id", value.Int(1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, o.RowCount())

	rows, err := o.Select(nil, "oid", value.Int(10))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0]["uid"].IsNull())
	require.NoError(t, o.CheckIntegrity())
}

// Three-table chain: a <- b <- c, both links CASCADE. Deleting the a
// row removes all transitive rows.
func TestCascadeChain(t *testing.T) {
	db := NewDatabase("d")

	a := mustTable(t, "a", []Column{{Name: "id", Type: value.TypeInt, PrimaryKey: true}})
	require.NoError(t, db.CreateTable(a))
	b := mustTable(t, "b", []Column{
		{Name: "id", Type: value.TypeInt, PrimaryKey: true},
		{Name: "aid", Type: value.TypeInt, FKTable: "a", FKColumn: "id", OnDelete: ActionCascade},
	})
	require.NoError(t, db.CreateTable(b))
	c := mustTable(t, "c", []Column{
		{Name: "id", Type: value.TypeInt, PrimaryKey: true},
		{Name: "bid", Type: value.TypeInt, FKTable: "b", FKColumn: "id", OnDelete: ActionCascade},
	})
	require.NoError(t, db.CreateTable(c))

	require.NoError(t, a.Insert(row("id", value.Int(1))))
	require.NoError(t, b.Insert(row("id", value.Int(10), "aid", value.Int(1))))
	require.NoError(t, c.Insert(row("id", value.Int(100), "bid", value.Int(10))))
	require.NoError(t, c.Insert(row("id", value.Int(101), "bid", value.Int(10))))

	n, err := a.Delete("id", value.Int(1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, b.RowCount())
	assert.Equal(t, 0, c.RowCount())
}

// Same chain but with RESTRICT on the last link: the whole operation
// aborts and no table changes.
func TestCascadeChainBlockedByRestrict(t *testing.T) {
	db := NewDatabase("d")

	a := mustTable(t, "a", []Column{{Name: "id", Type: value.TypeInt, PrimaryKey: true}})
	require.NoError(t, db.CreateTable(a))
	b := mustTable(t, "b", []Column{
		{Name: "id", Type: value.TypeInt, PrimaryKey: true},
		{Name: "aid", Type: value.TypeInt, FKTable: "a", FKColumn: "id", OnDelete: ActionCascade},
	})
	require.NoError(t, db.CreateTable(b))
	c := mustTable(t, "c", []Column{
		{Name: "id", Type: value.TypeInt, PrimaryKey: true},
		{Name: "bid", Type: value.TypeInt, FKTable: "b", FKColumn: "id", OnDelete: ActionRestrict},
	})
	require.NoError(t, db.CreateTable(c))

	require.NoError(t, a.Insert(row("id", value.Int(1))))
	require.NoError(t, b.Insert(row("id", value.Int(10), "aid", value.Int(1))))
	require.NoError(t, c.Insert(row("id", value.Int(100), "bid", value.Int(10))))

	_, err := a.Delete("id", value.Int(1))
	require.Error(t, err)
	assert.Equal(t, 1, a.RowCount())
	assert.Equal(t, 1, b.RowCount())
	assert.Equal(t, 1, c.RowCount())
}

func TestOnUpdateCascade(t *testing.T) {
	db := NewDatabase("d")
	u := mustTable(t, "u", []Column{{Name: "id", Type: value.TypeInt, PrimaryKey: true}})
	require.NoError(t, db.CreateTable(u))
	o := mustTable(t, "o", []Column{
		{Name: "oid", Type: value.TypeInt, PrimaryKey: true},
		{Name: "uid", Type: value.TypeInt, FKTable: "u", FKColumn: "id", OnUpdate: ActionCascade},
	})
	require.NoError(t, db.CreateTable(o))

	require.NoError(t, u.Insert(row("id", value.Int(1))))
	require.NoError(t, o.Insert(row("oid", value.Int(10), "uid", value.Int(1))))

	n, err := u.Update("id", value.Int(5), "id", value.Int(1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := o.Select(nil, "", value.Value{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, value.Equal(value.Int(5), rows[0]["uid"]))
	require.NoError(t, o.CheckIntegrity())
}

func TestOnUpdateRestrict(t *testing.T) {
	db := NewDatabase("d")
	u := mustTable(t, "u", []Column{{Name: "id", Type: value.TypeInt, PrimaryKey: true}})
	require.NoError(t, db.CreateTable(u))
	o := mustTable(t, "o", []Column{
		{Name: "oid", Type: value.TypeInt, PrimaryKey: true},
		{Name: "uid", Type: value.TypeInt, FKTable: "u", FKColumn: "id"},
	})
	require.NoError(t, db.CreateTable(o))

	require.NoError(t, u.Insert(row("id", value.Int(1))))
	require.NoError(t, o.Insert(row("oid", value.Int(10), "uid", value.Int(1))))

	_, err := u.Update("id", value.Int(5), "id", value.Int(1))
	require.Error(t, err)
	assert.True(t, dberr.IsKind(err, dberr.KindConstraint))

	rows, err := u.Select(nil, "", value.Value{})
	require.NoError(t, err)
	assert.True(t, value.Equal(value.Int(1), rows[0]["id"]))
}

func TestOnUpdateSetNull(t *testing.T) {
	db := NewDatabase("d")
	u := mustTable(t, "u", []Column{{Name: "id", Type: value.TypeInt, PrimaryKey: true}})
	require.NoError(t, db.CreateTable(u))
	o := mustTable(t, "o", []Column{
		{Name: "oid", Type: value.TypeInt, PrimaryKey: true},
		{Name: "uid", Type: value.TypeInt, FKTable: "u", FKColumn: "id", OnUpdate: ActionSetNull},
	})
	require.NoError(t, db.CreateTable(o))

	require.NoError(t, u.Insert(row("id", value.Int(1))))
	require.NoError(t, o.Insert(row("oid", value.Int(10), "uid", value.Int(1))))

	_, err := u.Update("id", value.Int(5), "id", value.Int(1))
	require.NoError(t, err)

	rows, err := o.Select(nil, "", value.Value{})
	require.NoError(t, err)
	assert.True(t, rows[0]["uid"].IsNull())
}

func TestDropTableUnconditional(t *testing.T) {
	db := fkDatabase(t, ActionRestrict)
	require.NoError(t, db.DropTable("u"))
	_, err := db.Table("u")
	require.Error(t, err)
	assert.True(t, dberr.IsKind(err, dberr.KindLookup))
	assert.Equal(t, []string{"o"}, db.TableNames())
}
