package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateCmd(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.sqlite")

	out, err := runCommand(t, "migrate", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied")

	// Idempotent.
	_, err = runCommand(t, "migrate", "--db", dbPath)
	require.NoError(t, err)
}

func TestPolicyCheckCmd(t *testing.T) {
	good := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(good, []byte(
		"tables:\n  - table: projects\n    owner_column: created_by\n"), 0o600))

	out, err := runCommand(t, "policy", "check", good)
	require.NoError(t, err)
	assert.Contains(t, out, "1 table(s)")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(
		"tables:\n  - table: \"pro jects\"\n"), 0o600))

	_, err = runCommand(t, "policy", "check", bad)
	assert.Error(t, err)
}

func TestTokenCmd(t *testing.T) {
	out, err := runCommand(t, "token", "--sub", "u-1", "--role", "admin", "--secret", "s3cret", "--ttl", "1h")
	require.NoError(t, err)

	tokenStr := out[:len(out)-1] // trailing newline
	tok, err := jwt.Parse(tokenStr, func(*jwt.Token) (interface{}, error) {
		return []byte("s3cret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	require.True(t, tok.Valid)

	claims := tok.Claims.(jwt.MapClaims)
	assert.Equal(t, "u-1", claims["sub"])
	assert.Equal(t, "admin", claims["role"])

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp.Time, time.Minute)
}

func TestTokenCmd_RequiresSubAndSecret(t *testing.T) {
	os.Unsetenv("JWT_SECRET") //nolint:errcheck

	_, err := runCommand(t, "token", "--sub", "u-1")
	assert.Error(t, err)

	_, err = runCommand(t, "token", "--secret", "s3cret")
	assert.Error(t, err)
}
