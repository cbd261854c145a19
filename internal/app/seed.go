package app

import (
	"context"
	"database/sql"
	"fmt"
)

// seedDevData populates the store with demo users, projects, memberships and
// tasks for local development. Idempotent: skipped when users exist.
func seedDevData(ctx context.Context, db *sql.DB) error {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return fmt.Errorf("check seed state: %w", err)
	}
	if n > 0 {
		return nil // already seeded
	}

	stmts := []struct {
		q    string
		args []any
	}{
		// --- Users ---
		{"INSERT INTO users (id, email, name, role) VALUES (?, ?, ?, ?)",
			[]any{"user-admin", "admin@planbase.dev", "Admin", "admin"}},
		{"INSERT INTO users (id, email, name, role) VALUES (?, ?, ?, ?)",
			[]any{"user-owner", "owner@planbase.dev", "Olive Owner", "user"}},
		{"INSERT INTO users (id, email, name, role) VALUES (?, ?, ?, ?)",
			[]any{"user-member", "member@planbase.dev", "Max Member", "user"}},
		{"INSERT INTO users (id, email, name, role) VALUES (?, ?, ?, ?)",
			[]any{"user-outsider", "outsider@planbase.dev", "Oscar Outsider", "user"}},

		// --- Projects ---
		{"INSERT INTO projects (id, name, description, status, created_by) VALUES (?, ?, ?, ?, ?)",
			[]any{"proj-kitchen", "Kitchen Remodel", "Full kitchen renovation", "active", "user-owner"}},
		{"INSERT INTO projects (id, name, description, status, created_by) VALUES (?, ?, ?, ?, ?)",
			[]any{"proj-deck", "Deck Build", "Backyard deck", "active", "user-owner"}},

		// --- Memberships ---
		{"INSERT INTO project_members (id, project_id, user_id) VALUES (?, ?, ?)",
			[]any{"pm-1", "proj-kitchen", "user-member"}},

		// --- Milestones and tasks ---
		{"INSERT INTO milestones (id, project_id, name, status, created_by) VALUES (?, ?, ?, ?, ?)",
			[]any{"ms-demo", "proj-kitchen", "Demolition complete", "open", "user-owner"}},
		{"INSERT INTO tasks (id, project_id, milestone_id, title, status, created_by) VALUES (?, ?, ?, ?, ?, ?)",
			[]any{"task-demo", "proj-kitchen", "ms-demo", "Remove old cabinets", "open", "user-owner"}},
		{"INSERT INTO tasks (id, project_id, milestone_id, title, status, created_by) VALUES (?, ?, ?, ?, ?, ?)",
			[]any{"task-plumbing", "proj-kitchen", "ms-demo", "Rough-in plumbing", "open", "user-owner"}},
		{"INSERT INTO task_dependencies (id, task_id, depends_on_id) VALUES (?, ?, ?)",
			[]any{"dep-1", "task-plumbing", "task-demo"}},
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s.q, s.args...); err != nil {
			return fmt.Errorf("seed insert: %w", err)
		}
	}
	return nil
}
