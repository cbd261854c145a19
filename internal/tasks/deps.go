// Package tasks implements task-graph operations that the generic data
// endpoints cannot express, such as acyclic dependency management.
package tasks

import (
	"context"
	"database/sql"
	"log/slog"

	"planbase/internal/domain"
	"planbase/internal/policy"
)

// Auditor records mutations. Recording is best-effort.
type Auditor interface {
	Record(ctx context.Context, actorID, action, table, recordID string)
}

// DependencyService manages edges in the task dependency graph. Every write
// is preceded by a point permission check and a cycle check.
type DependencyService struct {
	writeDB *sql.DB
	readDB  *sql.DB
	guard   *policy.Guard
	audit   Auditor
	logger  *slog.Logger
}

// NewDependencyService wires the service. audit may be nil.
func NewDependencyService(writeDB, readDB *sql.DB, guard *policy.Guard, audit Auditor, logger *slog.Logger) *DependencyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DependencyService{writeDB: writeDB, readDB: readDB, guard: guard, audit: audit, logger: logger}
}

// Add creates a dependency edge: taskID depends on dependsOnID. The edge is
// rejected if it is a self-loop, already exists, or would close a cycle.
// Both endpoints must be accessible to the caller.
func (s *DependencyService) Add(ctx context.Context, user domain.UserContext, taskID, dependsOnID string) (string, error) {
	if taskID == "" || dependsOnID == "" {
		return "", domain.ErrValidation("task id and dependency id are required")
	}
	if taskID == dependsOnID {
		return "", domain.ErrValidation("a task cannot depend on itself")
	}

	for _, id := range []string{taskID, dependsOnID} {
		ok, err := s.guard.CanAccess(ctx, user, "tasks", id, policy.ActionUpdate)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", domain.ErrNotFound("task not found")
		}
	}

	edges, err := s.loadEdges(ctx)
	if err != nil {
		s.logger.Error("load dependency edges failed", "error", err)
		return "", domain.ErrStore(err)
	}
	if containsEdge(edges, taskID, dependsOnID) {
		return "", domain.ErrConflict("dependency already exists")
	}
	if WouldCreateCycle(edges, taskID, dependsOnID) {
		return "", domain.ErrConflict("dependency would create a cycle")
	}

	id := domain.NewID()
	_, err = s.writeDB.ExecContext(ctx,
		"INSERT INTO task_dependencies (id, task_id, depends_on_id) VALUES (?, ?, ?)",
		id, taskID, dependsOnID)
	if err != nil {
		s.logger.Error("insert dependency failed", "task_id", taskID, "error", err)
		return "", domain.ErrStore(err)
	}
	s.record(ctx, user.UserID, "insert", id)
	return id, nil
}

// Remove deletes a dependency edge.
func (s *DependencyService) Remove(ctx context.Context, user domain.UserContext, taskID, dependsOnID string) error {
	ok, err := s.guard.CanAccess(ctx, user, "tasks", taskID, policy.ActionUpdate)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound("task not found")
	}

	res, err := s.writeDB.ExecContext(ctx,
		"DELETE FROM task_dependencies WHERE task_id = ? AND depends_on_id = ?",
		taskID, dependsOnID)
	if err != nil {
		s.logger.Error("delete dependency failed", "task_id", taskID, "error", err)
		return domain.ErrStore(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("dependency not found")
	}
	s.record(ctx, user.UserID, "delete", taskID+"->"+dependsOnID)
	return nil
}

// loadEdges reads the full dependency graph as an adjacency list keyed by
// task id, each entry listing the tasks it depends on.
func (s *DependencyService) loadEdges(ctx context.Context) (map[string][]string, error) {
	rows, err := s.readDB.QueryContext(ctx, "SELECT task_id, depends_on_id FROM task_dependencies")
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	edges := make(map[string][]string)
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		edges[from] = append(edges[from], to)
	}
	return edges, rows.Err()
}

// WouldCreateCycle reports whether adding the edge taskID -> dependsOnID to
// the graph closes a cycle, i.e. taskID is already reachable from
// dependsOnID by following existing edges.
func WouldCreateCycle(edges map[string][]string, taskID, dependsOnID string) bool {
	if taskID == dependsOnID {
		return true
	}
	seen := map[string]bool{}
	stack := []string{dependsOnID}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == taskID {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, edges[cur]...)
	}
	return false
}

func containsEdge(edges map[string][]string, from, to string) bool {
	for _, t := range edges[from] {
		if t == to {
			return true
		}
	}
	return false
}

func (s *DependencyService) record(ctx context.Context, actorID, action, recordID string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, actorID, action, "task_dependencies", recordID)
}
