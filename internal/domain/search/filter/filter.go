// Package filter is the backend-neutral metadata filter model. The Redis
// store renders it as RediSearch query syntax, the pgvector store as SQL.
package filter

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/kailas-cloud/evergreen/internal/domain"
)

// Limits on a single Expression.
const (
	MaxConditionsPerGroup = 32
	MaxValuesPerCondition = 64
)

// Expression combines conditions: all of must, at least one of should (when
// present), none of mustNot.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	groups := []struct {
		name  string
		conds []Condition
	}{{"must", must}, {"should", should}, {"must_not", mustNot}}
	for _, g := range groups {
		if len(g.conds) > MaxConditionsPerGroup {
			return Expression{}, fmt.Errorf("%d %s conditions, at most %d allowed",
				len(g.conds), g.name, MaxConditionsPerGroup)
		}
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

func (e Expression) Must() []Condition    { return e.must }
func (e Expression) Should() []Condition  { return e.should }
func (e Expression) MustNot() []Condition { return e.mustNot }

func (e Expression) IsEmpty() bool {
	return len(e.must)+len(e.should)+len(e.mustNot) == 0
}

// Exclude returns e with conds added to mustNot. e is left untouched.
func (e Expression) Exclude(conds ...Condition) Expression {
	mustNot := make([]Condition, 0, len(e.mustNot)+len(conds))
	mustNot = append(append(mustNot, e.mustNot...), conds...)
	return Expression{must: e.must, should: e.should, mustNot: mustNot}
}

// Condition constrains one field: either to a set of tag values or to a
// numeric range.
type Condition struct {
	key    string
	values []string
	bounds *Range
}

// NewMatch is NewMatchAny with a single value.
func NewMatch(key, value string) (Condition, error) {
	return NewMatchAny(key, value)
}

func NewMatchAny(key string, values ...string) (Condition, error) {
	switch {
	case key == "":
		return Condition{}, errors.New("filter key is required")
	case len(values) == 0 || slices.Contains(values, ""):
		return Condition{}, fmt.Errorf("match value is required for key %q", key)
	case len(values) > MaxValuesPerCondition:
		return Condition{}, fmt.Errorf("%d values for key %q, at most %d allowed",
			len(values), key, MaxValuesPerCondition)
	}
	return Condition{key: key, values: values}, nil
}

func NewRange(key string, r Range) (Condition, error) {
	if key == "" {
		return Condition{}, errors.New("filter key is required")
	}
	return Condition{key: key, bounds: &r}, nil
}

func (c Condition) Key() string      { return c.key }
func (c Condition) Values() []string { return c.values }
func (c Condition) Range() *Range    { return c.bounds }
func (c Condition) IsMatch() bool    { return len(c.values) > 0 }
func (c Condition) IsRange() bool    { return c.bounds != nil }

// Match is the first accepted value, or "" for a range.
func (c Condition) Match() string {
	if len(c.values) == 0 {
		return ""
	}
	return c.values[0]
}

// Range bounds a numeric field. A nil bound is open.
type Range struct {
	gt, gte, lt, lte *float64
}

// NewRangeFilter needs at least one bound and at most one per side.
func NewRangeFilter(gt, gte, lt, lte *float64) (Range, error) {
	switch {
	case gt == nil && gte == nil && lt == nil && lte == nil:
		return Range{}, errors.New("at least one range boundary is required")
	case gt != nil && gte != nil:
		return Range{}, errors.New("cannot specify both gt and gte")
	case lt != nil && lte != nil:
		return Range{}, errors.New("cannot specify both lt and lte")
	}
	return Range{gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

func (r Range) GT() *float64  { return r.gt }
func (r Range) GTE() *float64 { return r.gte }
func (r Range) LT() *float64  { return r.lt }
func (r Range) LTE() *float64 { return r.lte }

// FieldKind tells FromMap how to interpret a filter value.
type FieldKind int

// Filterable field kinds.
const (
	KindTag FieldKind = iota
	KindNumeric
)

// Schema lists the filterable fields of a collection.
type Schema map[string]FieldKind

// FromMap converts caller-supplied filters into an Expression.
// A scalar is an equality match, a list matches any of its values,
// and fields are combined with AND. Numeric fields also accept
// an object with gt/gte/lt/lte bounds. Unknown fields fail with ErrInvalidFilter.
func FromMap(m map[string]any, schema Schema) (Expression, error) {
	if len(m) == 0 {
		return Expression{}, nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	must := make([]Condition, 0, len(keys))
	for _, key := range keys {
		kind, ok := schema[key]
		if !ok {
			return Expression{}, fmt.Errorf("unknown filter field %q: %w", key, domain.ErrInvalidFilter)
		}
		cond, err := conditionFromValue(key, kind, m[key])
		if err != nil {
			return Expression{}, fmt.Errorf("%w: %w", domain.ErrInvalidFilter, err)
		}
		must = append(must, cond)
	}

	expr, err := NewExpression(must, nil, nil)
	if err != nil {
		return Expression{}, fmt.Errorf("%w: %w", domain.ErrInvalidFilter, err)
	}
	return expr, nil
}

func conditionFromValue(key string, kind FieldKind, v any) (Condition, error) {
	if kind == KindNumeric {
		return numericCondition(key, v)
	}

	switch val := v.(type) {
	case []string:
		return NewMatchAny(key, val...)
	case []any:
		values := make([]string, 0, len(val))
		for _, item := range val {
			s, err := scalarString(item)
			if err != nil {
				return Condition{}, fmt.Errorf("field %q: %w", key, err)
			}
			values = append(values, s)
		}
		return NewMatchAny(key, values...)
	default:
		s, err := scalarString(val)
		if err != nil {
			return Condition{}, fmt.Errorf("field %q: %w", key, err)
		}
		return NewMatch(key, s)
	}
}

func numericCondition(key string, v any) (Condition, error) {
	if bounds, ok := v.(map[string]any); ok {
		var gt, gte, lt, lte *float64
		for name, raw := range bounds {
			f, err := toFloat(raw)
			if err != nil {
				return Condition{}, fmt.Errorf("field %q bound %q: %w", key, name, err)
			}
			switch name {
			case "gt":
				gt = &f
			case "gte":
				gte = &f
			case "lt":
				lt = &f
			case "lte":
				lte = &f
			default:
				return Condition{}, fmt.Errorf("field %q: unknown bound %q", key, name)
			}
		}
		r, err := NewRangeFilter(gt, gte, lt, lte)
		if err != nil {
			return Condition{}, fmt.Errorf("field %q: %w", key, err)
		}
		return NewRange(key, r)
	}

	f, err := toFloat(v)
	if err != nil {
		return Condition{}, fmt.Errorf("field %q: %w", key, err)
	}
	r, _ := NewRangeFilter(nil, &f, nil, &f)
	return NewRange(key, r)
}

func scalarString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", val)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
