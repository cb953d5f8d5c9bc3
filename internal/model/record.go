package model

import (
	"encoding/json"
	"math"
	"strings"
)

// Fields is the typed-field payload of a store record.
type Fields map[string]any

// Record is a single row of a store table.
type Record struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

// String returns a text field trimmed of surrounding whitespace.
// Missing or non-text fields yield "".
func (r Record) String(field string) string {
	switch v := r.Fields[field].(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		// Lookup fields come back as single-element arrays.
		if len(v) == 1 {
			if s, ok := v[0].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	case []string:
		if len(v) == 1 {
			return strings.TrimSpace(v[0])
		}
	}
	return ""
}

// Raw returns a text field exactly as stored.
func (r Record) Raw(field string) string {
	if s, ok := r.Fields[field].(string); ok {
		return s
	}
	return r.String(field)
}

// Links returns a linked-record field as record ids.
func (r Record) Links(field string) []string {
	switch v := r.Fields[field].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			if s, ok := elem.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

// Int returns a numeric field as int64. Fractions are truncated.
func (r Record) Int(field string) int64 {
	switch v := r.Fields[field].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(math.Trunc(v))
	case json.Number:
		n, err := v.Int64()
		if err == nil {
			return n
		}
		f, _ := v.Float64()
		return int64(math.Trunc(f))
	}
	return 0
}

// Clone returns a deep-enough copy: the Fields map is copied, values are shared.
func (r Record) Clone() Record {
	f := make(Fields, len(r.Fields))
	for k, v := range r.Fields {
		f[k] = v
	}
	return Record{ID: r.ID, Fields: f}
}

// LinkIDs converts a []string of record ids to the wire form used by stores.
func LinkIDs(ids ...string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
