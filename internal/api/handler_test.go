package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planbase/internal/audit"
	internaldb "planbase/internal/db"
	"planbase/internal/middleware"
	"planbase/internal/policy"
	"planbase/internal/rest"
	"planbase/internal/tasks"
)

const testSecret = "test-secret-32-bytes-long-xxxxx"

func signToken(t *testing.T, sub, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func setupAPI(t *testing.T) (http.Handler, *sql.DB) {
	t.Helper()
	writeDB, readDB := internaldb.OpenTestSQLite(t)

	reg, err := policy.New([]policy.Entry{
		{Table: "projects", OwnerColumn: "created_by"},
		{Table: "tasks", OwnerColumn: "created_by", Membership: &policy.MembershipRule{
			JoinTable: "project_members", UserColumn: "user_id", ResourceColumn: "project_id"}},
	})
	require.NoError(t, err)

	logger := slog.Default()
	resolver := policy.NewStoreMembershipResolver(readDB)
	compiler := policy.NewCompiler(reg, resolver, logger)
	guard := policy.NewGuard(reg, readDB, logger)
	recorder := audit.NewRecorder(writeDB, logger)

	data := rest.NewService(writeDB, readDB, reg, compiler, guard, recorder, logger)
	deps := tasks.NewDependencyService(writeDB, readDB, guard, recorder, logger)

	validator, err := middleware.NewTokenValidator(testSecret)
	require.NoError(t, err)

	handler := NewHandler(data, deps, 100, logger)
	router := NewRouter(handler, RouterConfig{Validator: validator})

	seedAPIFixtures(t, writeDB)
	return router, writeDB
}

func seedAPIFixtures(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	stmts := []struct {
		q    string
		args []any
	}{
		{"INSERT INTO users (id, email, name, role) VALUES (?, ?, ?, ?)", []any{"u-alice", "alice@example.com", "Alice", "user"}},
		{"INSERT INTO users (id, email, name, role) VALUES (?, ?, ?, ?)", []any{"u-bob", "bob@example.com", "Bob", "user"}},
		{"INSERT INTO projects (id, name, status, created_by) VALUES (?, ?, ?, ?)", []any{"p-1", "Skylight", "active", "u-alice"}},
		{"INSERT INTO projects (id, name, status, created_by) VALUES (?, ?, ?, ?)", []any{"p-2", "Garage", "active", "u-bob"}},
		{"INSERT INTO tasks (id, project_id, title, created_by) VALUES (?, ?, ?, ?)", []any{"t-1", "p-1", "Frame", "u-alice"}},
		{"INSERT INTO tasks (id, project_id, title, created_by) VALUES (?, ?, ?, ?)", []any{"t-2", "p-1", "Glaze", "u-alice"}},
	}
	for _, s := range stmts {
		_, err := db.ExecContext(ctx, s.q, s.args...)
		require.NoError(t, err)
	}
}

func doRequest(t *testing.T, router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsPublic(t *testing.T) {
	router, _ := setupAPI(t)

	rec := doRequest(t, router, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDataEndpointsRequireAuth(t *testing.T) {
	router, _ := setupAPI(t)

	rec := doRequest(t, router, http.MethodGet, "/v1/data/projects", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListRecords_FiltersByOwner(t *testing.T) {
	router, _ := setupAPI(t)

	rec := doRequest(t, router, http.MethodGet,
		"/v1/data/projects?eq.status=active&order=created_at.desc&limit=10",
		signToken(t, "u-alice", "user"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Rows  []map[string]any `json:"rows"`
		Total int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "p-1", res.Rows[0]["id"])
	assert.Equal(t, int64(1), res.Total)
}

func TestListRecords_BadFilterIs400(t *testing.T) {
	router, _ := setupAPI(t)

	rec := doRequest(t, router, http.MethodGet,
		"/v1/data/projects?eq.bad--column=x", signToken(t, "u-alice", "user"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid identifier")
}

func TestGetRecord_ForeignRowIs404(t *testing.T) {
	router, _ := setupAPI(t)
	token := signToken(t, "u-alice", "user")

	visible := doRequest(t, router, http.MethodGet, "/v1/data/projects/p-1", token, "")
	assert.Equal(t, http.StatusOK, visible.Code)

	foreign := doRequest(t, router, http.MethodGet, "/v1/data/projects/p-2", token, "")
	missing := doRequest(t, router, http.MethodGet, "/v1/data/projects/p-nope", token, "")
	assert.Equal(t, http.StatusNotFound, foreign.Code)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	// Denied and missing must be indistinguishable on the wire.
	assert.JSONEq(t, missing.Body.String(), foreign.Body.String())
}

func TestCreateRecord_StampsOwner(t *testing.T) {
	router, _ := setupAPI(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/data/projects",
		signToken(t, "u-bob", "user"), `{"name": "Rooftop", "created_by": "u-alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var row map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	assert.Equal(t, "u-bob", row["created_by"])
	assert.NotEmpty(t, row["id"])
}

func TestCreateRecord_BadJSONIs400(t *testing.T) {
	router, _ := setupAPI(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/data/projects",
		signToken(t, "u-bob", "user"), `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateRecord_ForeignRowIs404(t *testing.T) {
	router, db := setupAPI(t)

	rec := doRequest(t, router, http.MethodPatch, "/v1/data/projects/p-2",
		signToken(t, "u-alice", "user"), `{"status": "archived"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var status string
	require.NoError(t, db.QueryRow("SELECT status FROM projects WHERE id = 'p-2'").Scan(&status))
	assert.Equal(t, "active", status)
}

func TestUpdateRecord_OwnerSucceeds(t *testing.T) {
	router, _ := setupAPI(t)

	rec := doRequest(t, router, http.MethodPatch, "/v1/data/projects/p-1",
		signToken(t, "u-alice", "user"), `{"status": "archived"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var row map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	assert.Equal(t, "archived", row["status"])
}

func TestDeleteRecord_OwnerSucceeds(t *testing.T) {
	router, db := setupAPI(t)

	rec := doRequest(t, router, http.MethodDelete, "/v1/data/tasks/t-2",
		signToken(t, "u-alice", "user"), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM tasks WHERE id = 't-2'").Scan(&n))
	assert.Zero(t, n)
}

func TestAdminSeesEverything(t *testing.T) {
	router, _ := setupAPI(t)

	rec := doRequest(t, router, http.MethodGet, "/v1/data/projects",
		signToken(t, "u-root", "admin"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, int64(2), res.Total)
}

func TestAddTaskDependency(t *testing.T) {
	router, db := setupAPI(t)
	token := signToken(t, "u-alice", "user")

	rec := doRequest(t, router, http.MethodPost, "/v1/tasks/t-2/dependencies",
		token, `{"depends_on_id": "t-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var n int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM task_dependencies WHERE task_id = 't-2' AND depends_on_id = 't-1'").Scan(&n))
	assert.Equal(t, 1, n)

	// The reverse edge closes a cycle.
	rec = doRequest(t, router, http.MethodPost, "/v1/tasks/t-1/dependencies",
		token, `{"depends_on_id": "t-2"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "cycle")
}

func TestRemoveTaskDependency(t *testing.T) {
	router, _ := setupAPI(t)
	token := signToken(t, "u-alice", "user")

	rec := doRequest(t, router, http.MethodPost, "/v1/tasks/t-2/dependencies",
		token, `{"depends_on_id": "t-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodDelete, "/v1/tasks/t-2/dependencies/t-1", token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, router, http.MethodDelete, "/v1/tasks/t-2/dependencies/t-1", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditEndpoint_AdminOnly(t *testing.T) {
	router, _ := setupAPI(t)

	rec := doRequest(t, router, http.MethodPatch, "/v1/data/projects/p-1",
		signToken(t, "u-alice", "user"), `{"status": "archived"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	admin := doRequest(t, router, http.MethodGet, "/v1/audit", signToken(t, "u-root", "admin"), "")
	require.Equal(t, http.StatusOK, admin.Code)
	var adminRes struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(admin.Body.Bytes(), &adminRes))
	assert.Equal(t, int64(1), adminRes.Total)

	// Non-admin callers see an empty log, not an error.
	user := doRequest(t, router, http.MethodGet, "/v1/audit", signToken(t, "u-alice", "user"), "")
	require.Equal(t, http.StatusOK, user.Code)
	var userRes struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(user.Body.Bytes(), &userRes))
	assert.Zero(t, userRes.Total)
}

func TestMutationsAreAudited(t *testing.T) {
	router, db := setupAPI(t)

	rec := doRequest(t, router, http.MethodPatch, "/v1/data/projects/p-1",
		signToken(t, "u-alice", "user"), `{"status": "archived"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var actor, action string
	require.NoError(t, db.QueryRow(
		"SELECT actor_id, action FROM audit_log WHERE table_name = 'projects'").Scan(&actor, &action))
	assert.Equal(t, "u-alice", actor)
	assert.Equal(t, "update", action)
}
