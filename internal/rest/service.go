// Package rest implements the generic data service: parsed filters and
// policy predicates are compiled to SQL and executed against the store.
package rest

import (
	"context"
	"database/sql"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"planbase/internal/domain"
	"planbase/internal/filter"
	"planbase/internal/policy"
	"planbase/internal/query"
)

// Auditor records data-plane mutations. Implementations must not fail the
// request; recording is best-effort.
type Auditor interface {
	Record(ctx context.Context, actorID, action, table, recordID string)
}

// ListResult is one page of rows plus the total match count for the same
// filter and policy.
type ListResult struct {
	Rows   []map[string]any `json:"rows"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// Service exposes generic table operations. All reads go through the read
// pool, all writes through the write pool.
type Service struct {
	writeDB  *sql.DB
	readDB   *sql.DB
	reg      *policy.Registry
	compiler *policy.Compiler
	guard    *policy.Guard
	audit    Auditor
	logger   *slog.Logger
}

// NewService wires the data service. audit may be nil.
func NewService(writeDB, readDB *sql.DB, reg *policy.Registry, compiler *policy.Compiler, guard *policy.Guard, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		writeDB:  writeDB,
		readDB:   readDB,
		reg:      reg,
		compiler: compiler,
		guard:    guard,
		audit:    audit,
		logger:   logger,
	}
}

// List returns the rows visible to user on table that match spec, together
// with the total count for the same predicate. The two queries run
// concurrently against the read pool.
func (s *Service) List(ctx context.Context, user domain.UserContext, table string, spec *filter.Spec) (*ListResult, error) {
	eff := s.compiler.Compile(ctx, user, table)

	rowsQ, err := query.Select(table, spec, eff.Expr())
	if err != nil {
		return nil, err
	}
	countQ, err := query.SelectCount(table, spec, eff.Expr())
	if err != nil {
		return nil, err
	}

	var (
		rows  []map[string]any
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.queryRows(gctx, rowsQ)
		return err
	})
	g.Go(func() error {
		return s.readDB.QueryRowContext(gctx, countQ.SQL, countQ.Args...).Scan(&total)
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("list query failed", "table", table, "error", err)
		return nil, domain.ErrStore(err)
	}

	limit := spec.Limit
	if !spec.HasLimit() {
		limit = 0
	}
	return &ListResult{Rows: rows, Total: total, Limit: limit, Offset: spec.Offset}, nil
}

// Get returns a single record by id. Rows outside the caller's visibility
// are reported as not found, identically to rows that do not exist.
func (s *Service) Get(ctx context.Context, user domain.UserContext, table, id string) (map[string]any, error) {
	eff := s.compiler.Compile(ctx, user, table)

	spec := &filter.Spec{
		Conditions: []filter.Condition{{Column: "id", Op: filter.OpEq, Value: id}},
		Limit:      1,
	}
	q, err := query.Select(table, spec, eff.Expr())
	if err != nil {
		return nil, err
	}

	rows, err := s.queryRows(ctx, q)
	if err != nil {
		s.logger.Error("get query failed", "table", table, "error", err)
		return nil, domain.ErrStore(err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound("record not found")
	}
	return rows[0], nil
}

// Insert creates a record. Non-admin callers may only create rows in tables
// whose policy declares an owner column, and the owner column is always
// stamped with the caller's id so ownership cannot be spoofed.
func (s *Service) Insert(ctx context.Context, user domain.UserContext, table string, row map[string]any) (map[string]any, error) {
	if len(row) == 0 {
		return nil, domain.ErrValidation("empty record body")
	}

	entry, registered := s.reg.Lookup(table)
	isAdmin := registered && entry.HasAdminRole(user.Role) ||
		!registered && user.Role == domain.RoleAdmin

	if !isAdmin {
		if !registered || entry.OwnerColumn == "" {
			return nil, domain.ErrAccessDenied("cannot create records in this table")
		}
		row[entry.OwnerColumn] = user.UserID
	} else if registered && entry.OwnerColumn != "" {
		if _, ok := row[entry.OwnerColumn]; !ok {
			row[entry.OwnerColumn] = user.UserID
		}
	}

	id, ok := row["id"].(string)
	if !ok || id == "" {
		id = domain.NewID()
		row["id"] = id
	}

	q, err := query.Insert(table, row)
	if err != nil {
		return nil, err
	}
	if _, err := s.writeDB.ExecContext(ctx, q.SQL, q.Args...); err != nil {
		s.logger.Error("insert failed", "table", table, "error", err)
		return nil, domain.ErrStore(err)
	}
	s.record(ctx, user.UserID, "insert", table, id)

	return s.fetchByID(ctx, table, id)
}

// Update mutates a single record after a point permission check. A denied
// record is reported exactly like a missing one.
func (s *Service) Update(ctx context.Context, user domain.UserContext, table, id string, set map[string]any) (map[string]any, error) {
	if len(set) == 0 {
		return nil, domain.ErrValidation("empty record body")
	}
	delete(set, "id")
	if len(set) == 0 {
		return nil, domain.ErrValidation("no updatable columns")
	}

	ok, err := s.guard.CanAccess(ctx, user, table, id, policy.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound("record not found")
	}

	q, err := query.Update(table, set, query.Eq("id", id))
	if err != nil {
		return nil, err
	}
	res, err := s.writeDB.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		s.logger.Error("update failed", "table", table, "error", err)
		return nil, domain.ErrStore(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrNotFound("record not found")
	}
	s.record(ctx, user.UserID, "update", table, id)

	return s.fetchByID(ctx, table, id)
}

// Delete removes a single record after a point permission check.
func (s *Service) Delete(ctx context.Context, user domain.UserContext, table, id string) error {
	ok, err := s.guard.CanAccess(ctx, user, table, id, policy.ActionDelete)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound("record not found")
	}

	q, err := query.Delete(table, query.Eq("id", id))
	if err != nil {
		return err
	}
	res, err := s.writeDB.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		s.logger.Error("delete failed", "table", table, "error", err)
		return domain.ErrStore(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("record not found")
	}
	s.record(ctx, user.UserID, "delete", table, id)
	return nil
}

// fetchByID reads a row back without a policy predicate. Only called after
// the caller's right to the row has been established.
func (s *Service) fetchByID(ctx context.Context, table, id string) (map[string]any, error) {
	spec := &filter.Spec{
		Conditions: []filter.Condition{{Column: "id", Op: filter.OpEq, Value: id}},
		Limit:      1,
	}
	q, err := query.Select(table, spec, nil)
	if err != nil {
		return nil, err
	}
	rows, err := s.queryRows(ctx, q)
	if err != nil {
		return nil, domain.ErrStore(err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound("record not found")
	}
	return rows[0], nil
}

func (s *Service) record(ctx context.Context, actorID, action, table, recordID string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, actorID, action, table, recordID)
}

// queryRows executes a compiled select and scans every row into a map.
// Column types are whatever the driver reports; []byte values are converted
// to string so they serialize as JSON text rather than base64.
func (s *Service) queryRows(ctx context.Context, q query.Query) ([]map[string]any, error) {
	rows, err := s.readDB.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, 16)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				m[c] = string(b)
			} else {
				m[c] = vals[i]
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
