// Package ident validates SQL identifiers supplied as runtime data.
//
// Table and column names arrive from URL segments, query parameters, and
// request bodies. Every identifier-shaped input must pass Validate before it
// is used to build query text; values never go through this gate — they are
// always bound as query parameters.
package ident

import "planbase/internal/domain"

// MaxLength bounds identifier length. SQLite has no hard limit but nothing
// legitimate in the schema comes close.
const MaxLength = 64

// reserved is a short deny-list of statement keywords. Identifiers matching
// the shape rule but colliding with these are rejected as an extra safety
// margin on top of parameterization.
var reserved = map[string]bool{
	"select": true, "insert": true, "update": true, "delete": true,
	"drop": true, "create": true, "alter": true, "table": true,
	"from": true, "where": true, "join": true, "union": true,
	"and": true, "or": true, "not": true, "null": true,
	"order": true, "group": true, "limit": true, "offset": true,
	"pragma": true, "attach": true, "detach": true, "vacuum": true,
}

// Validate checks that name matches [A-Za-z_][A-Za-z0-9_]* and is not a
// reserved word. The same generic error is returned for every rejection so
// error messages cannot be used to probe the schema.
func Validate(name string) error {
	if !isValidShape(name) || reserved[lower(name)] {
		return domain.ErrValidation("invalid identifier")
	}
	return nil
}

// IsValid reports whether name would pass Validate.
func IsValid(name string) bool {
	return Validate(name) == nil
}

func isValidShape(name string) bool {
	if len(name) == 0 || len(name) > MaxLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// lower avoids pulling in strings for a hot single-pass ASCII fold.
func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
