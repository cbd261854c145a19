// Package query compiles filter specifications and policy predicates into
// parameterized SQL against a single validated target table.
//
// Predicates are built as a small tagged expression tree so that the
// caller's filter and the policy-derived visibility filter can be composed
// as pure data before any SQL text exists. Identifiers inside the tree must
// have passed ident.Validate before construction; values are always emitted
// as bind parameters.
package query

import "strings"

// Expr is a node in a boolean predicate tree.
type Expr interface {
	render(b *strings.Builder, args *[]any)
}

type andExpr struct{ children []Expr }

type orExpr struct{ children []Expr }

type notExpr struct{ child Expr }

type cmpExpr struct {
	column string
	sqlOp  string
	value  any
}

type ilikeExpr struct {
	column  string
	pattern string
}

type inExpr struct {
	column string
	values []any
}

type isNullExpr struct{ column string }

type boolColExpr struct {
	column string
	truth  bool
}

type falseExpr struct{}

// memberExpr matches rows whose resource column appears in the membership
// join table for the given user.
type memberExpr struct {
	column         string
	joinTable      string
	userColumn     string
	resourceColumn string
	userID         string
}

// And combines expressions conjunctively. nil children are dropped; an
// empty And renders as a tautology and is normalized away by the compiler.
func And(children ...Expr) Expr {
	return andExpr{children: compact(children)}
}

// Or combines expressions disjunctively.
func Or(children ...Expr) Expr {
	return orExpr{children: compact(children)}
}

// Not negates an expression.
func Not(child Expr) Expr { return notExpr{child: child} }

// Compare builds a scalar comparison with the given SQL operator.
func Compare(column, sqlOp string, value any) Expr {
	return cmpExpr{column: column, sqlOp: sqlOp, value: value}
}

// Eq builds an equality comparison.
func Eq(column string, value any) Expr { return Compare(column, "=", value) }

// ILike builds a case-insensitive pattern match.
func ILike(column, pattern string) Expr {
	return ilikeExpr{column: column, pattern: pattern}
}

// In builds a membership test against a literal value list.
func In(column string, values []any) Expr {
	return inExpr{column: column, values: values}
}

// IsNull tests a column for NULL.
func IsNull(column string) Expr { return isNullExpr{column: column} }

// IsBool tests a boolean column against a truth value.
func IsBool(column string, truth bool) Expr {
	return boolColExpr{column: column, truth: truth}
}

// False is a predicate that can never match a row. Deny-all filters compile
// through here so that denial is an explicit constant falsehood rather than
// a missing WHERE clause.
func False() Expr { return falseExpr{} }

// MemberOf matches rows whose resourceColumn value appears in joinTable for
// the given user: column IN (SELECT resourceColumn FROM joinTable WHERE
// userColumn = ?).
func MemberOf(column, joinTable, userColumn, resourceColumn, userID string) Expr {
	return memberExpr{
		column:         column,
		joinTable:      joinTable,
		userColumn:     userColumn,
		resourceColumn: resourceColumn,
		userID:         userID,
	}
}

func compact(children []Expr) []Expr {
	out := make([]Expr, 0, len(children))
	for _, c := range children {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (e andExpr) render(b *strings.Builder, args *[]any) {
	renderJoined(b, args, e.children, " AND ", "1 = 1")
}

func (e orExpr) render(b *strings.Builder, args *[]any) {
	renderJoined(b, args, e.children, " OR ", "0 = 1")
}

func renderJoined(b *strings.Builder, args *[]any, children []Expr, sep, empty string) {
	switch len(children) {
	case 0:
		b.WriteString(empty)
	case 1:
		children[0].render(b, args)
	default:
		for i, c := range children {
			if i > 0 {
				b.WriteString(sep)
			}
			b.WriteString("(")
			c.render(b, args)
			b.WriteString(")")
		}
	}
}

func (e notExpr) render(b *strings.Builder, args *[]any) {
	b.WriteString("NOT (")
	e.child.render(b, args)
	b.WriteString(")")
}

func (e cmpExpr) render(b *strings.Builder, args *[]any) {
	b.WriteString(e.column)
	b.WriteString(" ")
	b.WriteString(e.sqlOp)
	b.WriteString(" ?")
	*args = append(*args, e.value)
}

func (e ilikeExpr) render(b *strings.Builder, args *[]any) {
	b.WriteString("LOWER(")
	b.WriteString(e.column)
	b.WriteString(") LIKE LOWER(?)")
	*args = append(*args, e.pattern)
}

func (e inExpr) render(b *strings.Builder, args *[]any) {
	if len(e.values) == 0 {
		// IN over an empty list matches nothing.
		b.WriteString("0 = 1")
		return
	}
	b.WriteString(e.column)
	b.WriteString(" IN (")
	b.WriteString(placeholders(len(e.values)))
	b.WriteString(")")
	*args = append(*args, e.values...)
}

func (e isNullExpr) render(b *strings.Builder, _ *[]any) {
	b.WriteString(e.column)
	b.WriteString(" IS NULL")
}

func (e boolColExpr) render(b *strings.Builder, _ *[]any) {
	b.WriteString(e.column)
	if e.truth {
		b.WriteString(" = 1")
	} else {
		b.WriteString(" = 0")
	}
}

func (e falseExpr) render(b *strings.Builder, _ *[]any) {
	b.WriteString("0 = 1")
}

func (e memberExpr) render(b *strings.Builder, args *[]any) {
	b.WriteString(e.column)
	b.WriteString(" IN (SELECT ")
	b.WriteString(e.resourceColumn)
	b.WriteString(" FROM ")
	b.WriteString(e.joinTable)
	b.WriteString(" WHERE ")
	b.WriteString(e.userColumn)
	b.WriteString(" = ?)")
	*args = append(*args, e.userID)
}

func placeholders(n int) string {
	if n == 1 {
		return "?"
	}
	var b strings.Builder
	b.Grow(n*3 - 2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
	}
	return b.String()
}

// RenderExpr compiles a predicate tree to SQL text and bind arguments. It is
// exported for point queries (record guard) that need a bare predicate.
func RenderExpr(e Expr) (string, []any) {
	var b strings.Builder
	var args []any
	e.render(&b, &args)
	return b.String(), args
}
