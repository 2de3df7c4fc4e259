package engine

import (
	"pesadb/internal/dberr"
	"pesadb/internal/value"
)

// Row is one record of a table. Values are keyed by column name and
// ordered by the owning table's schema.
type Row struct {
	values map[string]value.Value
}

// newRow validates values against the schema and builds a row. Every
// declared column must be present (NULL counts as present); each value
// is coerced to its column's type. STRING columns whose names look like
// timestamps must hold ISO-8601 parseable text.
func newRow(columns []Column, values map[string]value.Value) (*Row, error) {
	r := &Row{values: make(map[string]value.Value, len(columns))}
	for i := range columns {
		col := &columns[i]
		v, ok := values[col.Name]
		if !ok {
			return nil, dberr.New(dberr.KindSchema, "missing value for column '%s'", col.Name)
		}
		coerced, err := value.Coerce(v, col.Type)
		if err != nil {
			return nil, dberr.Wrap(dberr.KindSchema, err, "column '%s'", col.Name)
		}
		if err := checkTimestampText(col, coerced); err != nil {
			return nil, err
		}
		r.values[col.Name] = coerced
	}
	return r, nil
}

func checkTimestampText(col *Column, v value.Value) error {
	if col.Type != value.TypeString || !isTimestampName(col.Name) {
		return nil
	}
	s, ok := v.StrVal()
	if !ok {
		return nil
	}
	if !value.ValidISODateTime(s) {
		return dberr.New(dberr.KindSchema,
			"column '%s' expects an ISO-8601 timestamp string, got '%s'", col.Name, s)
	}
	return nil
}

// Get returns the value of a column; missing columns read as NULL.
func (r *Row) Get(col string) value.Value { return r.values[col] }

// set stores an already-coerced value. Callers coerce first.
func (r *Row) set(col string, v value.Value) { r.values[col] = v }

// Snapshot copies the row as a plain map.
func (r *Row) Snapshot() map[string]value.Value {
	out := make(map[string]value.Value, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}
