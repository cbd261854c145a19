package query

import (
	"sort"
	"strconv"
	"strings"

	"planbase/internal/domain"
	"planbase/internal/filter"
	"planbase/internal/ident"
)

// Query is a compiled, parameterized statement ready for execution.
type Query struct {
	SQL  string
	Args []any
}

// scalarSQLOps maps filter operators to their native predicate form.
var scalarSQLOps = map[filter.Operator]string{
	filter.OpEq:   "=",
	filter.OpNeq:  "<>",
	filter.OpGt:   ">",
	filter.OpGte:  ">=",
	filter.OpLt:   "<",
	filter.OpLte:  "<=",
	filter.OpLike: "LIKE",
}

// CondExpr converts a single parsed condition into a predicate node.
func CondExpr(c filter.Condition) (Expr, error) {
	if err := ident.Validate(c.Column); err != nil {
		return nil, err
	}
	switch c.Op {
	case filter.OpILike:
		return ILike(c.Column, c.Value), nil
	case filter.OpIn:
		vals := make([]any, len(c.Values))
		for i, v := range c.Values {
			vals[i] = v
		}
		return In(c.Column, vals), nil
	case filter.OpIsNull:
		return IsNull(c.Column), nil
	case filter.OpIsTrue:
		return IsBool(c.Column, true), nil
	case filter.OpIsFalse:
		return IsBool(c.Column, false), nil
	default:
		sqlOp, ok := scalarSQLOps[c.Op]
		if !ok {
			return nil, domain.ErrValidation("unsupported operator %q", c.Op)
		}
		return Compare(c.Column, sqlOp, c.Value), nil
	}
}

// whereExpr combines the caller's conditions with the policy predicate.
// Returns nil when neither contributes (unrestricted, unfiltered query).
func whereExpr(spec *filter.Spec, policy Expr) (Expr, error) {
	parts := make([]Expr, 0, len(spec.Conditions)+1)
	for _, c := range spec.Conditions {
		e, err := CondExpr(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, e)
	}
	if policy != nil {
		parts = append(parts, policy)
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return And(parts...), nil
}

// Select compiles a list query. policy is the effective visibility
// predicate: nil means unrestricted, False() means deny all.
func Select(table string, spec *filter.Spec, policy Expr) (Query, error) {
	if err := ident.Validate(table); err != nil {
		return Query{}, err
	}

	var b strings.Builder
	var args []any

	b.WriteString("SELECT ")
	proj, err := projection(spec.Projection)
	if err != nil {
		return Query{}, err
	}
	b.WriteString(proj)
	b.WriteString(" FROM ")
	b.WriteString(table)

	where, err := whereExpr(spec, policy)
	if err != nil {
		return Query{}, err
	}
	if where != nil {
		b.WriteString(" WHERE ")
		where.render(&b, &args)
	}

	if len(spec.Order) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range spec.Order {
			if err := ident.Validate(o.Column); err != nil {
				return Query{}, err
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(o.Column)
			if o.Descending {
				b.WriteString(" DESC")
			}
		}
	}

	if spec.HasLimit() {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(spec.Limit))
	}
	if spec.Offset > 0 {
		if !spec.HasLimit() {
			// SQLite requires LIMIT before OFFSET; -1 means no limit.
			b.WriteString(" LIMIT -1")
		}
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(spec.Offset))
	}

	return Query{SQL: b.String(), Args: args}, nil
}

// SelectCount compiles the matching COUNT(*) query for the same filter and
// policy, ignoring projection, ordering and pagination.
func SelectCount(table string, spec *filter.Spec, policy Expr) (Query, error) {
	if err := ident.Validate(table); err != nil {
		return Query{}, err
	}

	var b strings.Builder
	var args []any
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(table)

	where, err := whereExpr(spec, policy)
	if err != nil {
		return Query{}, err
	}
	if where != nil {
		b.WriteString(" WHERE ")
		where.render(&b, &args)
	}

	return Query{SQL: b.String(), Args: args}, nil
}

// Insert compiles an INSERT for the given row. Column order is sorted so
// that identical rows compile to identical SQL.
func Insert(table string, row map[string]any) (Query, error) {
	if err := ident.Validate(table); err != nil {
		return Query{}, err
	}
	if len(row) == 0 {
		return Query{}, domain.ErrValidation("insert requires at least one column")
	}

	cols := sortedColumns(row)
	args := make([]any, 0, len(cols))

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range cols {
		if err := ident.Validate(c); err != nil {
			return Query{}, err
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c)
		args = append(args, row[c])
	}
	b.WriteString(") VALUES (")
	b.WriteString(placeholders(len(cols)))
	b.WriteString(")")

	return Query{SQL: b.String(), Args: args}, nil
}

// Update compiles an UPDATE restricted by the given predicate. A predicate
// is mandatory: unscoped updates through the generic path are never valid.
func Update(table string, set map[string]any, where Expr) (Query, error) {
	if err := ident.Validate(table); err != nil {
		return Query{}, err
	}
	if len(set) == 0 {
		return Query{}, domain.ErrValidation("update requires at least one column")
	}
	if where == nil {
		return Query{}, domain.ErrValidation("update requires a predicate")
	}

	cols := sortedColumns(set)
	var b strings.Builder
	var args []any

	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")
	for i, c := range cols {
		if err := ident.Validate(c); err != nil {
			return Query{}, err
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c)
		b.WriteString(" = ?")
		args = append(args, set[c])
	}
	b.WriteString(" WHERE ")
	where.render(&b, &args)

	return Query{SQL: b.String(), Args: args}, nil
}

// Delete compiles a DELETE restricted by the given predicate. As with
// Update, the predicate is mandatory.
func Delete(table string, where Expr) (Query, error) {
	if err := ident.Validate(table); err != nil {
		return Query{}, err
	}
	if where == nil {
		return Query{}, domain.ErrValidation("delete requires a predicate")
	}

	var b strings.Builder
	var args []any
	b.WriteString("DELETE FROM ")
	b.WriteString(table)
	b.WriteString(" WHERE ")
	where.render(&b, &args)

	return Query{SQL: b.String(), Args: args}, nil
}

func projection(cols []string) (string, error) {
	if len(cols) == 0 {
		return "*", nil
	}
	for _, c := range cols {
		if err := ident.Validate(c); err != nil {
			return "", err
		}
	}
	return strings.Join(cols, ", "), nil
}

func sortedColumns(m map[string]any) []string {
	cols := make([]string, 0, len(m))
	for c := range m {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
