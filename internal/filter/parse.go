package filter

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"planbase/internal/domain"
	"planbase/internal/ident"
)

// DefaultMaxLimit caps the page size when no maximum is configured.
const DefaultMaxLimit = 100

// scalarOps maps the <op>.<column> key prefixes that take a single value.
var scalarOps = map[string]Operator{
	"eq":    OpEq,
	"neq":   OpNeq,
	"gt":    OpGt,
	"gte":   OpGte,
	"lt":    OpLt,
	"lte":   OpLte,
	"like":  OpLike,
	"ilike": OpILike,
}

// Parse builds a Spec from flat query parameters.
//
// Recognized keys: select, order, limit, offset, and <operator>.<column>
// pairs. Unknown keys are ignored for forward compatibility. maxLimit bounds
// the page size (DefaultMaxLimit when <= 0); an over-large limit is clamped,
// not rejected.
//
// Keys are processed in sorted order so that repeated parses of the same
// input produce identical Specs; values under a single key keep their
// request order. Conditions are conjunctive, so ordering never changes the
// meaning of the filter.
func Parse(values url.Values, maxLimit int) (*Spec, error) {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	spec := &Spec{Limit: -1}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		vals := values[key]
		if len(vals) == 0 {
			continue
		}
		switch key {
		case "select":
			proj, err := parseProjection(vals[len(vals)-1])
			if err != nil {
				return nil, err
			}
			spec.Projection = proj
			continue
		case "order":
			order, err := parseOrder(vals[len(vals)-1])
			if err != nil {
				return nil, err
			}
			spec.Order = order
			continue
		case "limit":
			n, err := parseNonNegative("limit", vals[len(vals)-1])
			if err != nil {
				return nil, err
			}
			if n > maxLimit {
				n = maxLimit
			}
			spec.Limit = n
			continue
		case "offset":
			n, err := parseNonNegative("offset", vals[len(vals)-1])
			if err != nil {
				return nil, err
			}
			spec.Offset = n
			continue
		}

		opName, column, ok := strings.Cut(key, ".")
		if !ok {
			continue // unknown bare key
		}
		op, known := scalarOps[opName]
		if !known && opName != "in" && opName != "is" {
			continue // unknown operator prefix
		}
		if err := ident.Validate(column); err != nil {
			return nil, err
		}

		for _, raw := range vals {
			cond, err := buildCondition(opName, op, column, raw)
			if err != nil {
				return nil, err
			}
			spec.Conditions = append(spec.Conditions, cond)
		}
	}

	return spec, nil
}

func buildCondition(opName string, op Operator, column, raw string) (Condition, error) {
	switch opName {
	case "in":
		return Condition{Column: column, Op: OpIn, Values: splitList(raw)}, nil
	case "is":
		switch raw {
		case "null":
			return Condition{Column: column, Op: OpIsNull}, nil
		case "true":
			return Condition{Column: column, Op: OpIsTrue}, nil
		case "false":
			return Condition{Column: column, Op: OpIsFalse}, nil
		default:
			return Condition{}, domain.ErrValidation("is.%s accepts null, true or false", column)
		}
	default:
		return Condition{Column: column, Op: op, Value: raw}, nil
	}
}

func parseProjection(raw string) ([]string, error) {
	cols := splitList(raw)
	for _, c := range cols {
		if err := ident.Validate(c); err != nil {
			return nil, err
		}
	}
	return cols, nil
}

func parseOrder(raw string) ([]OrderTerm, error) {
	var order []OrderTerm
	for _, term := range splitList(raw) {
		column, dir, hasDir := strings.Cut(term, ".")
		if err := ident.Validate(column); err != nil {
			return nil, err
		}
		t := OrderTerm{Column: column}
		if hasDir {
			switch dir {
			case "asc":
			case "desc":
				t.Descending = true
			default:
				return nil, domain.ErrValidation("order direction must be asc or desc")
			}
		}
		order = append(order, t)
	}
	return order, nil
}

func parseNonNegative(name, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, domain.ErrValidation("%s must be a non-negative integer", name)
	}
	return n, nil
}

// splitList comma-splits and trims a list value, dropping empty segments.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
