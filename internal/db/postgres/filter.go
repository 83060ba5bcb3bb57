package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/chunk"
	"github.com/kailas-cloud/evergreen/internal/domain/search/filter"
)

// buildWhere renders expr as a WHERE clause, appending bind values to args.
// Placeholders continue from len(args).
func buildWhere(expr filter.Expression, args []any) (string, []any, error) {
	if expr.IsEmpty() {
		return "", args, nil
	}

	var parts []string
	for _, cond := range expr.Must() {
		sql, err := conditionSQL(cond, &args)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
	}

	if should := expr.Should(); len(should) > 0 {
		alts := make([]string, 0, len(should))
		for _, cond := range should {
			sql, err := conditionSQL(cond, &args)
			if err != nil {
				return "", nil, err
			}
			alts = append(alts, sql)
		}
		parts = append(parts, "("+strings.Join(alts, " OR ")+")")
	}

	for _, cond := range expr.MustNot() {
		sql, err := conditionSQL(cond, &args)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "NOT ("+sql+")")
	}

	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func conditionSQL(cond filter.Condition, args *[]any) (string, error) {
	col := cond.Key()
	if _, ok := chunk.FilterSchema[col]; !ok {
		return "", fmt.Errorf("unknown filter field %q: %w", col, domain.ErrInvalidFilter)
	}

	if cond.IsMatch() {
		*args = append(*args, cond.Values())
		return col + " = ANY($" + strconv.Itoa(len(*args)) + ")", nil
	}

	r := cond.Range()
	var bounds []string
	add := func(op string, v *float64) {
		if v == nil {
			return
		}
		*args = append(*args, *v)
		bounds = append(bounds, col+" "+op+" $"+strconv.Itoa(len(*args)))
	}
	add(">", r.GT())
	add(">=", r.GTE())
	add("<", r.LT())
	add("<=", r.LTE())
	return strings.Join(bounds, " AND "), nil
}
