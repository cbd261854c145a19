// Package policy declares per-table row-visibility rules and compiles them
// into effective query predicates.
//
// The registry replaces database-native row-level security: every table
// reachable through the generic data endpoints either has an entry here or
// is implicitly visible to admins only. Entries are loaded once at startup
// from a versioned YAML file and never mutated at runtime.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"planbase/internal/domain"
	"planbase/internal/ident"
)

// MembershipRule describes membership-based visibility: a join table mapping
// users to the resources they may access. The governed table must carry a
// column named ResourceColumn.
type MembershipRule struct {
	JoinTable      string `yaml:"join_table"`
	UserColumn     string `yaml:"user_column"`
	ResourceColumn string `yaml:"resource_column"`
}

// Entry is the visibility policy for one table.
type Entry struct {
	Table       string          `yaml:"table"`
	AdminRoles  []string        `yaml:"admin_roles"`
	OwnerColumn string          `yaml:"owner_column"`
	Membership  *MembershipRule `yaml:"membership"`
}

// HasAdminRole reports whether role bypasses filtering for this table.
func (e Entry) HasAdminRole(role string) bool {
	for _, r := range e.AdminRoles {
		if r == role {
			return true
		}
	}
	return false
}

// validate checks entry identifiers at registration time so that policy
// configuration can never smuggle unsafe identifiers into query text.
func (e Entry) validate() error {
	if err := ident.Validate(e.Table); err != nil {
		return fmt.Errorf("policy table %q: %w", e.Table, err)
	}
	if e.OwnerColumn != "" {
		if err := ident.Validate(e.OwnerColumn); err != nil {
			return fmt.Errorf("policy table %q owner_column: %w", e.Table, err)
		}
	}
	if m := e.Membership; m != nil {
		for _, col := range []string{m.JoinTable, m.UserColumn, m.ResourceColumn} {
			if err := ident.Validate(col); err != nil {
				return fmt.Errorf("policy table %q membership: %w", e.Table, err)
			}
		}
	}
	return nil
}

// Registry is the process-wide, read-only table of per-table policy.
type Registry struct {
	entries map[string]Entry
}

// New builds a Registry from static entries. Registering a table twice or
// using a malformed identifier anywhere in an entry is a startup error.
func New(entries []Entry) (*Registry, error) {
	reg := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return nil, err
		}
		if _, exists := reg.entries[e.Table]; exists {
			return nil, fmt.Errorf("policy table %q registered twice", e.Table)
		}
		if len(e.AdminRoles) == 0 {
			e.AdminRoles = []string{domain.RoleAdmin}
		}
		reg.entries[e.Table] = e
	}
	return reg, nil
}

// Lookup returns the entry for table. ok is false when the table is
// ungoverned, which callers must treat as admin-only (default deny).
func (r *Registry) Lookup(table string) (Entry, bool) {
	e, ok := r.entries[table]
	return e, ok
}

// Tables returns the number of governed tables, for startup logging.
func (r *Registry) Tables() int { return len(r.entries) }

type policyFile struct {
	Tables []Entry `yaml:"tables"`
}

// LoadFile reads a YAML policy file and builds the registry.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path comes from server config
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(raw)
}

// Parse builds a registry from raw YAML policy bytes.
func Parse(raw []byte) (*Registry, error) {
	var f policyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	return New(f.Tables)
}
