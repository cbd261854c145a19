// Package filter parses flat, untyped query parameters into a structured
// filter specification for the generic data endpoints.
//
// A Spec is built once by Parse, carries only validated column names and
// known operators, and is never mutated afterwards.
package filter

import (
	"net/url"
	"strconv"
	"strings"
)

// Operator identifies a comparison in a filter condition.
type Operator string

// Supported condition operators. These are the only values that ever appear
// in Condition.Op; anything else fails at parse time.
const (
	OpEq      Operator = "eq"
	OpNeq     Operator = "neq"
	OpGt      Operator = "gt"
	OpGte     Operator = "gte"
	OpLt      Operator = "lt"
	OpLte     Operator = "lte"
	OpLike    Operator = "like"
	OpILike   Operator = "ilike"
	OpIn      Operator = "in"
	OpIsNull  Operator = "is_null"
	OpIsTrue  Operator = "is_true"
	OpIsFalse Operator = "is_false"
)

// Condition is a single column comparison. Value is used by scalar
// operators, Values by OpIn. The is_* operators carry neither.
type Condition struct {
	Column string
	Op     Operator
	Value  string
	Values []string
}

// OrderTerm is one ORDER BY entry.
type OrderTerm struct {
	Column     string
	Descending bool
}

// Spec is the parsed representation of a list query.
//
// Projection, Conditions and Order contain only identifiers that passed
// validation. Limit is -1 when the caller did not specify one; otherwise it
// is already clamped to the configured maximum.
type Spec struct {
	Projection []string
	Conditions []Condition
	Order      []OrderTerm
	Limit      int
	Offset     int
}

// HasLimit reports whether the caller supplied a limit.
func (s *Spec) HasLimit() bool { return s.Limit >= 0 }

// Encode renders the Spec back into canonical query-parameter form. It is
// used for debug logging and round-trip tests; Parse(s.Encode()) yields an
// equivalent Spec.
func (s *Spec) Encode() url.Values {
	v := url.Values{}
	if len(s.Projection) > 0 {
		v.Set("select", strings.Join(s.Projection, ","))
	}
	for _, c := range s.Conditions {
		switch c.Op {
		case OpIn:
			v.Add("in."+c.Column, strings.Join(c.Values, ","))
		case OpIsNull:
			v.Add("is."+c.Column, "null")
		case OpIsTrue:
			v.Add("is."+c.Column, "true")
		case OpIsFalse:
			v.Add("is."+c.Column, "false")
		default:
			v.Add(string(c.Op)+"."+c.Column, c.Value)
		}
	}
	if len(s.Order) > 0 {
		terms := make([]string, len(s.Order))
		for i, o := range s.Order {
			dir := "asc"
			if o.Descending {
				dir = "desc"
			}
			terms[i] = o.Column + "." + dir
		}
		v.Set("order", strings.Join(terms, ","))
	}
	if s.HasLimit() {
		v.Set("limit", strconv.Itoa(s.Limit))
	}
	if s.Offset > 0 {
		v.Set("offset", strconv.Itoa(s.Offset))
	}
	return v
}

// String renders the Spec as a query string for logging.
func (s *Spec) String() string {
	return s.Encode().Encode()
}
