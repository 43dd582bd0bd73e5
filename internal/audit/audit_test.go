package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRecordAndRecent(t *testing.T) {
	r := openTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, ActionAdd, "example.com", StatusSuccess, ""))
	require.NoError(t, r.Record(ctx, ActionDelete, "example.com", StatusFailure, "network down"))
	require.NoError(t, r.Record(ctx, ActionLogout, "", StatusSuccess, ""))

	entries, err := r.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, ActionLogout, entries[0].Action)
	assert.Equal(t, ActionDelete, entries[1].Action)
	assert.Equal(t, "network down", entries[1].Note)
	assert.False(t, entries[0].Time.IsZero())
}

func TestRecentOnEmptyTrail(t *testing.T) {
	r := openTestRecorder(t)

	entries, err := r.Recent(context.Background(), 10)

	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Record(context.Background(), ActionLogin, "", StatusSuccess, ""))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	entries, err := second.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecordFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("INSERT INTO audit_log").WillReturnError(errors.New("disk full"))

	r := newRecorder(db)
	err = r.Record(context.Background(), ActionAdd, "example.com", StatusSuccess, "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "record audit entry")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT at, action, site, status, note FROM audit_log").
		WillReturnError(errors.New("table vanished"))

	r := newRecorder(db)
	_, err = r.Recent(context.Background(), 5)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read audit entries")
	assert.NoError(t, mock.ExpectationsWereMet())
}
