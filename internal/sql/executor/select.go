package executor

import (
	"sort"
	"strings"

	"pesadb/internal/dberr"
	"pesadb/internal/engine"
	"pesadb/internal/sql/ast"
	"pesadb/internal/value"
)

// resultRow pairs a projected row with the row it was projected from.
// ORDER BY resolves keys against the projection first and falls back to
// the source, so sorting by a column the projection dropped still works.
type resultRow struct {
	proj   ast.Env
	source ast.Env
}

// query runs the SELECT pipeline: source (with join), WHERE,
// grouping/aggregation, HAVING, projection, ORDER BY, DISTINCT, and
// OFFSET/LIMIT.
func (e *Executor) query(c *ast.Select) (*Result, error) {
	db, err := e.activeDatabase()
	if err != nil {
		return nil, err
	}

	source, baseCols, filtered, err := e.sourceRows(db, c)
	if err != nil {
		return nil, err
	}

	if !filtered && c.Where != nil {
		kept := source[:0:0]
		for _, row := range source {
			v, err := c.Where.Eval(row)
			if err != nil {
				return nil, err
			}
			if v.Truthy() {
				kept = append(kept, row)
			}
		}
		source = kept
	}

	var rows []resultRow
	if c.HasAggregates() || len(c.GroupBy) > 0 {
		if c.Join != nil {
			return nil, dberr.New(dberr.KindExecution,
				"aggregate functions cannot be combined with JOIN")
		}
		rows, err = e.aggregateRows(c, source)
		if err != nil {
			return nil, err
		}
	} else {
		rows, err = projectRows(c, source, baseCols)
		if err != nil {
			return nil, err
		}
	}

	if err := orderRows(rows, c.OrderBy); err != nil {
		return nil, err
	}

	if c.Distinct {
		rows = distinctRows(rows)
	}

	rows = sliceRows(rows, c.Offset, c.Limit)

	res := &Result{Columns: resultColumns(c, baseCols)}
	res.Rows = make([]map[string]value.Value, len(rows))
	for i, r := range rows {
		res.Rows[i] = r.proj
	}
	return res, nil
}

// sourceRows produces the candidate rows: the single table's rows, or
// the join output with table-prefixed keys. filtered reports that a
// single-equality WHERE was already answered by index pushdown.
func (e *Executor) sourceRows(db *engine.Database, c *ast.Select) ([]ast.Env, []string, bool, error) {
	if c.Join != nil {
		rows, cols, err := e.joinRows(db, c)
		return rows, cols, false, err
	}

	t, err := db.Table(c.Table)
	if err != nil {
		return nil, nil, false, err
	}
	baseCols := t.ColumnNames()

	if col, val, ok := simpleEquality(c.Where); ok {
		if _, exists := t.Column(col); exists {
			raw, err := t.Select(nil, col, val)
			if err != nil {
				return nil, nil, false, err
			}
			return toEnvs(raw), baseCols, true, nil
		}
	}

	return toEnvs(t.Rows()), baseCols, false, nil
}

func toEnvs(raw []map[string]value.Value) []ast.Env {
	out := make([]ast.Env, len(raw))
	for i, m := range raw {
		out[i] = ast.Env(m)
	}
	return out
}

// aggregateRows groups the filtered rows, computes every aggregate
// mentioned in the projection or HAVING under its canonical name, and
// applies HAVING. Without GROUP BY all rows form one group.
func (e *Executor) aggregateRows(c *ast.Select, source []ast.Env) ([]resultRow, error) {
	if c.Star {
		return nil, dberr.New(dberr.KindSchema,
			"SELECT * cannot be combined with aggregate functions or GROUP BY")
	}

	// Non-aggregate projection items must be grouping columns.
	for i := range c.Items {
		item := &c.Items[i]
		if item.Aggregate != nil {
			continue
		}
		if !containsColumn(c.GroupBy, item.Column) {
			return nil, dberr.New(dberr.KindSchema,
				"column '%s' must appear in GROUP BY or inside an aggregate function", item.Column)
		}
	}

	aggs := collectAllAggregates(c)

	type group struct {
		key  string
		rows []ast.Env
	}
	var groups []*group

	if len(c.GroupBy) == 0 {
		groups = append(groups, &group{rows: source})
	} else {
		index := make(map[string]*group)
		for _, row := range source {
			var parts []string
			for _, col := range c.GroupBy {
				v, err := ast.LookupColumn(row, col)
				if err != nil {
					return nil, err
				}
				parts = append(parts, v.Key())
			}
			key := strings.Join(parts, "\x00")
			g, ok := index[key]
			if !ok {
				g = &group{key: key}
				index[key] = g
				groups = append(groups, g)
			}
			g.rows = append(g.rows, row)
		}
	}

	var out []resultRow
	for _, g := range groups {
		materialized := make(ast.Env)
		if len(c.GroupBy) > 0 {
			first := g.rows[0]
			for _, col := range c.GroupBy {
				v, err := ast.LookupColumn(first, col)
				if err != nil {
					return nil, err
				}
				materialized[col] = v
				if tail := unqualify(col); tail != col {
					materialized[tail] = v
				}
			}
		}
		for _, agg := range aggs {
			v, err := agg.Apply(g.rows)
			if err != nil {
				return nil, err
			}
			materialized[agg.String()] = v
		}

		if c.Having != nil {
			v, err := c.Having.Eval(materialized)
			if err != nil {
				return nil, err
			}
			if !v.Truthy() {
				continue
			}
		}

		// Project: group-by columns keep their (unqualified) names,
		// aggregates land under alias or canonical name.
		proj := make(ast.Env, len(c.Items))
		for i := range c.Items {
			item := &c.Items[i]
			v, err := ast.LookupColumn(materialized, item.Key())
			if err != nil {
				return nil, err
			}
			proj[projectionKey(item)] = v
		}
		out = append(out, resultRow{proj: proj, source: materialized})
	}

	return out, nil
}

// collectAllAggregates gathers the aggregates of the projection and the
// HAVING clause, deduplicated by canonical name.
func collectAllAggregates(c *ast.Select) []*ast.Aggregate {
	var out []*ast.Aggregate
	seen := make(map[string]bool)
	add := func(agg *ast.Aggregate) {
		if !seen[agg.String()] {
			seen[agg.String()] = true
			out = append(out, agg)
		}
	}
	for i := range c.Items {
		if c.Items[i].Aggregate != nil {
			add(c.Items[i].Aggregate)
		}
	}
	for _, agg := range ast.CollectAggregates(c.Having) {
		add(agg)
	}
	return out
}

func containsColumn(groupBy []string, col string) bool {
	for _, g := range groupBy {
		if g == col || unqualify(g) == col || g == unqualify(col) {
			return true
		}
	}
	return false
}

// projectRows applies the plain (non-aggregate) projection. Star keeps
// every base column; named items land under alias or unqualified name.
func projectRows(c *ast.Select, source []ast.Env, baseCols []string) ([]resultRow, error) {
	out := make([]resultRow, 0, len(source))
	for _, row := range source {
		var proj ast.Env
		if c.Star {
			proj = make(ast.Env, len(baseCols))
			for _, col := range baseCols {
				proj[col] = row[col]
			}
		} else {
			proj = make(ast.Env, len(c.Items))
			for i := range c.Items {
				item := &c.Items[i]
				v, err := ast.LookupColumn(row, item.Column)
				if err != nil {
					return nil, err
				}
				proj[projectionKey(item)] = v
			}
		}
		out = append(out, resultRow{proj: proj, source: row})
	}
	return out, nil
}

// projectionKey is the output key of a projection item: its alias when
// given, the canonical name for aggregates, and the unqualified column
// name otherwise.
func projectionKey(item *ast.SelectItem) string {
	if item.Alias != "" {
		return item.Alias
	}
	if item.Aggregate != nil {
		return item.Aggregate.String()
	}
	return unqualify(item.Column)
}

// resultColumns lists the output keys in projection order.
func resultColumns(c *ast.Select, baseCols []string) []string {
	if c.Star && !c.HasAggregates() {
		return baseCols
	}
	out := make([]string, len(c.Items))
	for i := range c.Items {
		out[i] = projectionKey(&c.Items[i])
	}
	return out
}

// orderRows stable-sorts by each key in reverse declaration order so
// the first key is most significant. NULLs sort last in both
// directions.
func orderRows(rows []resultRow, keys []ast.OrderKey) error {
	if len(keys) == 0 {
		return nil
	}

	// Resolve sort values up front so lookup errors surface instead of
	// silently mis-sorting.
	cache := make([]map[string]value.Value, len(rows))
	for i := range rows {
		cache[i] = make(map[string]value.Value, len(keys))
		for _, key := range keys {
			v, err := resolveOrderKey(&rows[i], key.Column)
			if err != nil {
				return err
			}
			cache[i][key.Column] = v
		}
	}

	indices := make([]int, len(rows))
	for i := range indices {
		indices[i] = i
	}

	for k := len(keys) - 1; k >= 0; k-- {
		key := keys[k]
		sort.SliceStable(indices, func(a, b int) bool {
			va := cache[indices[a]][key.Column]
			vb := cache[indices[b]][key.Column]
			switch {
			case va.IsNull() && vb.IsNull():
				return false
			case va.IsNull():
				return false
			case vb.IsNull():
				return true
			}
			c, err := value.Compare(va, vb)
			if err != nil {
				return false
			}
			if key.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	sorted := make([]resultRow, len(rows))
	for i, idx := range indices {
		sorted[i] = rows[idx]
	}
	copy(rows, sorted)
	return nil
}

func resolveOrderKey(r *resultRow, name string) (value.Value, error) {
	if v, err := ast.LookupColumn(r.proj, name); err == nil {
		return v, nil
	}
	v, err := ast.LookupColumn(r.source, name)
	if err != nil {
		return value.Value{}, dberr.New(dberr.KindExecution,
			"ORDER BY column '%s' not found in result", name)
	}
	return v, nil
}

// distinctRows deduplicates by the sorted key/value tuple of the
// projected row, keeping first occurrences in order.
func distinctRows(rows []resultRow) []resultRow {
	seen := make(map[string]bool, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		keys := make([]string, 0, len(r.proj))
		for k := range r.proj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(r.proj[k].Key())
			b.WriteByte('\x00')
		}
		sig := b.String()
		if !seen[sig] {
			seen[sig] = true
			out = append(out, r)
		}
	}
	return out
}

// sliceRows applies OFFSET then LIMIT, clamped to the result bounds.
func sliceRows(rows []resultRow, offset, limit *int) []resultRow {
	start := 0
	if offset != nil {
		start = min(*offset, len(rows))
	}
	end := len(rows)
	if limit != nil {
		end = min(start+*limit, len(rows))
	}
	return rows[start:end]
}
