package db

import (
	"fmt"
	"strconv"
)

// GraphResult is a decoded GRAPH.QUERY reply.
// Cell values are string, int64, float64, bool, nil, []any or map[string]any.
type GraphResult struct {
	Columns []string
	Rows    [][]any
	Stats   map[string]string
}

// Column returns the values of the named column, or nil if absent.
func (r *GraphResult) Column(name string) []any {
	if r == nil {
		return nil
	}
	idx := -1
	for i, c := range r.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		if idx < len(row) {
			out = append(out, row[idx])
		}
	}
	return out
}

// Get returns the cell of row i in the named column.
func (r *GraphResult) Get(i int, name string) (any, bool) {
	if r == nil || i < 0 || i >= len(r.Rows) {
		return nil, false
	}
	for j, c := range r.Columns {
		if c == name && j < len(r.Rows[i]) {
			return r.Rows[i][j], true
		}
	}
	return nil, false
}

// AsString converts a graph cell to string; nil becomes "".
func AsString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// AsInt64 converts a graph cell to int64. Strings are parsed; anything else is 0.
func AsInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	default:
		return 0
	}
}

// AsFloat64 converts a graph cell to float64. Doubles arrive as strings over RESP2.
func AsFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	default:
		return 0
	}
}

// AsStrings converts an array cell to []string.
func AsStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, AsString(it))
	}
	return out
}
