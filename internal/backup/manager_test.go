package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirk1998/stocktalk/internal/audit"
	"github.com/amirk1998/stocktalk/internal/database"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type recorder struct{ events []*audit.Event }

func (r *recorder) Log(e *audit.Event) error {
	r.events = append(r.events, e)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *database.DB, *recorder) {
	t.Helper()
	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "live.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	rec := &recorder{}
	m, err := NewManager(db, filepath.Join(t.TempDir(), "backups"), testKey, 7, zerolog.Nop(), rec)
	require.NoError(t, err)
	return m, db, rec
}

func TestManager_CreateVerifyRestore(t *testing.T) {
	m, db, rec := newTestManager(t)
	ctx := context.Background()

	now := time.Now().UTC()
	_, err := db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?)",
		"alice", "hash", now, now)
	require.NoError(t, err)

	path, err := m.CreateBackup(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.FileExists(t, path+".sha256")
	require.NoError(t, m.VerifyBackup(path))

	require.Len(t, rec.events, 1)
	assert.Equal(t, audit.ActionBackupCreated, rec.events[0].Action)
	assert.True(t, rec.events[0].Success)

	// no plaintext snapshot left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	restored := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, Restore(path, restored, testKey))

	// an existing file is never overwritten
	assert.Error(t, Restore(path, restored, testKey))
	assert.Error(t, Restore(path, filepath.Join(t.TempDir(), "wrong-key.db"), []byte("fedcba9876543210fedcba9876543210")))

	copyDB, err := database.Connect(database.Config{Driver: database.DriverSQLite, Path: restored})
	require.NoError(t, err)
	defer copyDB.Close()

	var username string
	require.NoError(t, copyDB.QueryRow("SELECT username FROM users").Scan(&username))
	assert.Equal(t, "alice", username)
}

func TestManager_VerifyDetectsCorruption(t *testing.T) {
	m, _, _ := newTestManager(t)

	path, err := m.CreateBackup(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0600))

	assert.Error(t, m.VerifyBackup(path))
	assert.Error(t, Restore(path, filepath.Join(t.TempDir(), "x.db"), testKey))
}

func TestManager_CleanOldBackups(t *testing.T) {
	m, _, _ := newTestManager(t)

	path, err := m.CreateBackup(context.Background())
	require.NoError(t, err)

	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(path, old, old))
	require.NoError(t, os.Chtimes(path+".sha256", old, old))

	unrelated := filepath.Join(m.backupDir, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0600))
	require.NoError(t, os.Chtimes(unrelated, old, old))

	fresh, err := m.CreateBackup(context.Background())
	require.NoError(t, err)

	n, err := m.CleanOldBackups()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoFileExists(t, path)
	assert.FileExists(t, fresh)
	assert.FileExists(t, unrelated)
}

func TestNewManager_Validation(t *testing.T) {
	_, db, _ := newTestManager(t)

	_, err := NewManager(db, t.TempDir(), []byte("short"), 7, zerolog.Nop(), nil)
	assert.Error(t, err)
}
