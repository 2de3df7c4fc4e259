// Package engine is the storage core: tables of typed rows with hash
// indexes, uniqueness and foreign-key enforcement with referential
// actions, databases grouping tables, and the catalog that persists each
// database as an atomic JSON snapshot.
package engine

import (
	"strings"

	"pesadb/internal/dberr"
	"pesadb/internal/value"
)

// RefAction is the referential action applied when a referenced row is
// deleted or its key updated.
type RefAction string

const (
	ActionRestrict RefAction = "RESTRICT"
	ActionCascade  RefAction = "CASCADE"
	ActionSetNull  RefAction = "SET NULL"
	ActionNoAction RefAction = "NO ACTION"
)

// ParseRefAction converts the textual form of a referential action.
// Empty input means the default, RESTRICT.
func ParseRefAction(s string) (RefAction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(ActionRestrict):
		return ActionRestrict, nil
	case string(ActionCascade):
		return ActionCascade, nil
	case string(ActionSetNull):
		return ActionSetNull, nil
	case string(ActionNoAction):
		return ActionNoAction, nil
	}
	return "", dberr.New(dberr.KindSchema, "invalid referential action %q", s)
}

// blocks reports whether the action rejects the triggering operation.
// NO ACTION behaves like RESTRICT: the engine has no deferred checking.
func (a RefAction) blocks() bool {
	return a == ActionRestrict || a == ActionNoAction
}

// Column describes one column of a table schema.
type Column struct {
	Name       string
	Type       value.Type
	PrimaryKey bool
	Unique     bool

	// FKTable/FKColumn name the referenced table and column; both empty
	// when the column is not a foreign key.
	FKTable  string
	FKColumn string
	OnDelete RefAction
	OnUpdate RefAction
}

// IsForeignKey reports whether the column references another table.
func (c *Column) IsForeignKey() bool { return c.FKTable != "" }

// isTimestampName reports whether a STRING column name falls under the
// legacy ISO-8601 validation rule.
func isTimestampName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, "_at") ||
		strings.HasSuffix(lower, "_date") ||
		strings.Contains(lower, "timestamp")
}
