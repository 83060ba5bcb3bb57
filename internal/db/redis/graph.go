package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/evergreen/internal/db"
)

// GraphQuery runs a read-write Cypher query via GRAPH.QUERY.
func (s *Store) GraphQuery(
	ctx context.Context, graph, query string, params map[string]any,
) (*db.GraphResult, error) {
	return s.graphCommand(ctx, "GRAPH.QUERY", db.OpGraphQuery, graph, query, params)
}

// GraphReadQuery runs a read-only Cypher query via GRAPH.RO_QUERY.
func (s *Store) GraphReadQuery(
	ctx context.Context, graph, query string, params map[string]any,
) (*db.GraphResult, error) {
	return s.graphCommand(ctx, "GRAPH.RO_QUERY", db.OpGraphROQuery, graph, query, params)
}

// GraphDelete drops the whole graph. A missing graph is ErrGraphNotFound.
func (s *Store) GraphDelete(ctx context.Context, graph string) error {
	cmd := s.b().Arbitrary("GRAPH.DELETE").Keys(graph).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "empty key", "does not exist") {
			return db.ErrGraphNotFound
		}
		return &db.Error{Op: db.OpGraphDelete, Err: err}
	}
	return nil
}

func (s *Store) graphCommand(
	ctx context.Context, name, op, graph, query string, params map[string]any,
) (*db.GraphResult, error) {
	if graph == "" {
		return nil, errors.New("graph name is required")
	}
	if query == "" {
		return nil, errors.New("query is required")
	}

	header, err := buildParamsHeader(params)
	if err != nil {
		return nil, &db.Error{Op: op, Err: err}
	}

	cmd := s.b().Arbitrary(name).Keys(graph).Args(header + query).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		// Read-only queries against a graph that was never written.
		if isRedisErr(err, "empty key") {
			return &db.GraphResult{}, nil
		}
		return nil, &db.Error{Op: op, Err: err}
	}

	return parseGraphResult(raw)
}

// buildParamsHeader renders the "CYPHER k=v ..." prefix, keys sorted.
func buildParamsHeader(params map[string]any) (string, error) {
	if len(params) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if !db.IsValidIdentifier(k) || strings.Contains(k, ":") || strings.Contains(k, "-") {
			return "", fmt.Errorf("invalid parameter name %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("CYPHER ")
	for _, k := range keys {
		lit, err := cypherLiteral(params[k])
		if err != nil {
			return "", fmt.Errorf("parameter %s: %w", k, err)
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(lit)
		sb.WriteByte(' ')
	}
	return sb.String(), nil
}

func cypherLiteral(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "null", nil
	case string:
		return quoteCypher(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case []string:
		parts := make([]string, len(x))
		for i, s := range x {
			parts[i] = quoteCypher(s)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			lit, err := cypherLiteral(item)
			if err != nil {
				return "", err
			}
			parts[i] = lit
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

var cypherQuoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quoteCypher(s string) string {
	return `"` + cypherQuoter.Replace(s) + `"`
}

// parseGraphResult decodes the verbose reply: [header, rows, stats] or just [stats]
// for queries without RETURN.
func parseGraphResult(raw []rueidis.RedisMessage) (*db.GraphResult, error) {
	res := &db.GraphResult{}
	if len(raw) == 0 {
		return res, nil
	}

	statsIdx := len(raw) - 1
	if len(raw) == 3 {
		header, err := raw[0].ToArray()
		if err != nil {
			return nil, fmt.Errorf("parse header: %w", err)
		}
		for _, h := range header {
			name, err := columnName(h)
			if err != nil {
				return nil, err
			}
			res.Columns = append(res.Columns, name)
		}

		rows, err := raw[1].ToArray()
		if err != nil {
			return nil, fmt.Errorf("parse rows: %w", err)
		}
		res.Rows = make([][]any, 0, len(rows))
		for _, r := range rows {
			cells, err := r.ToArray()
			if err != nil {
				return nil, fmt.Errorf("parse row: %w", err)
			}
			row := make([]any, len(cells))
			for i := range cells {
				row[i] = graphValue(&cells[i])
			}
			res.Rows = append(res.Rows, row)
		}
	}

	stats, err := raw[statsIdx].ToArray()
	if err != nil {
		return nil, fmt.Errorf("parse stats: %w", err)
	}
	res.Stats = make(map[string]string, len(stats))
	for _, st := range stats {
		line, err := st.ToString()
		if err != nil {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			res.Stats[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}

	return res, nil
}

// columnName accepts both the verbose form ("name") and compact form ([type, "name"]).
func columnName(m rueidis.RedisMessage) (string, error) {
	if m.IsArray() {
		parts, err := m.ToArray()
		if err != nil || len(parts) < 2 {
			return "", fmt.Errorf("parse column: %w", err)
		}
		return parts[1].ToString()
	}
	return m.ToString()
}

func graphValue(m *rueidis.RedisMessage) any {
	switch {
	case m.IsNil():
		return nil
	case m.IsInt64():
		v, _ := m.AsInt64()
		return v
	case m.IsFloat64():
		v, _ := m.AsFloat64()
		return v
	case m.IsArray():
		items, _ := m.ToArray()
		out := make([]any, len(items))
		for i := range items {
			out[i] = graphValue(&items[i])
		}
		return out
	default:
		v, err := m.ToString()
		if err != nil {
			return nil
		}
		return v
	}
}
