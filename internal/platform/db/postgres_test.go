package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsCreateAuditLogs(t *testing.T) {
	names, err := fs.Glob(Migrations(), "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	raw, err := fs.ReadFile(Migrations(), names[0])
	require.NoError(t, err)
	body := string(raw)
	assert.True(t, strings.HasPrefix(body, "-- +goose Up"))
	assert.Contains(t, body, "CREATE TABLE IF NOT EXISTS audit_logs")
	for _, col := range []string{"actor", "action", "entity", "entity_id", "meta", "occurred_at"} {
		assert.Contains(t, body, col)
	}
	assert.Contains(t, body, "-- +goose Down")
}
