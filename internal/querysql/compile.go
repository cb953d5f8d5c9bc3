package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/rekey/internal/queryir"
)

// Page bounds one keyset-paginated read. After is the last seq already seen.
type Page struct {
	After int64
	Limit int
}

// SQLCompiler compiles QueryIR to parameterized SQL over the generic records table:
//
//	records(seq INTEGER PRIMARY KEY, table_name TEXT, id TEXT, fields TEXT /* JSON */)
//
// CRITICAL: ALL queries ORDER BY seq for deterministic, resumable pagination.
// CRITICAL: All values and JSON paths are parameterized, never interpolated.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a Select to (sql, params). The query selects seq, id and
// fields; projection of Select.Fields is left to the caller.
func (c *SQLCompiler) Compile(q queryir.Select, page Page) (string, []any, error) {
	if errs := queryir.Validate(q); len(errs) > 0 {
		return "", nil, fmt.Errorf("invalid query: %w", errs[0])
	}

	where := "table_name = ? AND seq > ?"
	params := []any{q.From, page.After}

	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where += " AND " + filterSQL
		params = append(params, filterParams...)
	}

	sql := "SELECT seq, id, fields FROM records WHERE " + where + " ORDER BY seq ASC"
	if page.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, page.Limit)
	}
	return sql, params, nil
}

// CompileCount converts a Select to a COUNT(*) query.
func (c *SQLCompiler) CompileCount(q queryir.Select) (string, []any, error) {
	sql, params, err := c.Compile(q, Page{})
	if err != nil {
		return "", nil, err
	}
	sql = strings.Replace(sql, "SELECT seq, id, fields", "SELECT COUNT(*)", 1)
	sql = strings.TrimSuffix(sql, " ORDER BY seq ASC")
	return sql, params, nil
}

// compilePredicate compiles a predicate to a WHERE fragment.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileEquals(pred)
	case queryir.Contains:
		return "instr(COALESCE(json_extract(fields, ?), ''), ?) > 0",
			[]any{jsonPath(pred.Field), pred.Substring}, nil
	case queryir.HasLink:
		return "EXISTS (SELECT 1 FROM json_each(records.fields, ?) WHERE json_each.value = ?)",
			[]any{jsonPath(pred.Field), pred.RecordID}, nil
	case queryir.And:
		return c.compileJunction(pred.Predicates, " AND ", "1 = 1")
	case queryir.Or:
		return c.compileJunction(pred.Predicates, " OR ", "1 = 0")
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals compiles field = literal. SQLite's json_extract yields 0/1 for
// JSON booleans, so bools are bound as integers.
func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	var param any
	switch v := eq.Value.(type) {
	case string:
		param = v
	case int64:
		param = v
	case bool:
		if v {
			param = int64(1)
		} else {
			param = int64(0)
		}
	default:
		return "", nil, fmt.Errorf("unsupported literal type: %T", eq.Value)
	}
	return "json_extract(fields, ?) = ?", []any{jsonPath(eq.Field), param}, nil
}

// compileJunction joins sub-predicates; empty junctions compile to their identity.
func (c *SQLCompiler) compileJunction(preds []queryir.Predicate, op, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}

	parts := make([]string, 0, len(preds))
	var params []any
	for _, p := range preds {
		sql, ps, err := c.compilePredicate(p)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	return "(" + strings.Join(parts, op) + ")", params, nil
}

// jsonPath quotes a field name as a JSON path key: status → $."status".
// Validate has already rejected names containing quotes.
func jsonPath(field string) string {
	return `$."` + field + `"`
}
