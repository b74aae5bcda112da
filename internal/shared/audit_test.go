package shared

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExec struct {
	sql  string
	args []any
}

func (r *recordingExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAuditRecord(t *testing.T) {
	db := &recordingExec{}
	logger := NewAuditLogger(db)
	err := logger.Record(context.Background(), AuditLog{
		Actor:    "admin@example.com",
		Action:   "status",
		Entity:   "donation_request",
		EntityID: "r1",
		Meta:     map[string]any{"status": "done"},
	})
	require.NoError(t, err)
	assert.Contains(t, db.sql, "INSERT INTO audit_logs")
	require.Len(t, db.args, 6)
	assert.Equal(t, "admin@example.com", db.args[0])
	assert.Equal(t, []byte(`{"status":"done"}`), db.args[4])
}

func TestAuditRecordRequiresEntity(t *testing.T) {
	err := NewAuditLogger(&recordingExec{}).Record(context.Background(), AuditLog{Action: "delete"})
	assert.Error(t, err)
}

func TestNilAuditLoggerDiscards(t *testing.T) {
	var logger *AuditLogger
	assert.NoError(t, logger.Record(context.Background(), AuditLog{}))
}

func TestUserSafeMessage(t *testing.T) {
	assert.Equal(t, "Your session has expired. Please sign in again.", UserSafeMessage(&AuthExpiredError{Status: 401}))
	assert.Equal(t, "Request already taken", UserSafeMessage(&MutationError{Status: 409, Message: "Request already taken"}))
	assert.Equal(t, "The change could not be saved. Please try again.", UserSafeMessage(&MutationError{Status: 502, Message: "bad gateway"}))
	assert.Equal(t, "We could not load this data. Please try again.", UserSafeMessage(&FetchError{Message: "request failed"}))
	assert.Equal(t, "", UserSafeMessage(nil))
}
