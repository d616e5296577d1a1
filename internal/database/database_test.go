package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Connect(Config{
		Driver: DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, Migrate(context.Background(), db))

	for _, table := range []string{"users", "posts", "post_likes", "chats", "audit_log"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestRebind(t *testing.T) {
	sqlite := &DB{driver: DriverSQLite}
	pg := &DB{driver: DriverPostgres}

	q := "SELECT id FROM post_likes WHERE user_id = ? AND post_id = ?"
	assert.Equal(t, q, sqlite.Rebind(q))
	assert.Equal(t, "SELECT id FROM post_likes WHERE user_id = $1 AND post_id = $2", pg.Rebind(q))
}

func TestTranslate(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	out := pg.translate("id INTEGER PRIMARY KEY AUTOINCREMENT, created_at DATETIME NOT NULL")
	assert.Equal(t, "id SERIAL PRIMARY KEY, created_at TIMESTAMPTZ NOT NULL", out)
}

func insertUser(t *testing.T, db *DB, username string) (int, error) {
	t.Helper()
	now := time.Now().UTC()
	return db.InsertID(context.Background(), db,
		"INSERT INTO users (username, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?)",
		username, "hash", now, now)
}

func TestInsertID_AndUniqueViolation(t *testing.T) {
	db := newTestDB(t)

	id1, err := insertUser(t, db, "alice")
	require.NoError(t, err)
	id2, err := insertUser(t, db, "bob")
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	_, err = insertUser(t, db, "alice")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestForeignKeyCascade(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	uid, err := insertUser(t, db, "alice")
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, "INSERT INTO chats (user_id, message, created_at) VALUES (?, ?, ?)", uid, "hi", now)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", uid)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM chats").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestTransactionManager_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	tm := NewTransactionManager(db)
	failure := errors.New("second write failed")

	err := tm.Execute(context.Background(), func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.Exec("INSERT INTO users (username, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?)", "carol", "h", now, now); err != nil {
			return err
		}
		return failure
	})
	assert.ErrorIs(t, err, failure)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM users WHERE username = 'carol'").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestTransactionManager_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	tm := NewTransactionManager(db)

	assert.Panics(t, func() {
		tm.Execute(context.Background(), func(tx *sql.Tx) error {
			now := time.Now().UTC()
			tx.Exec("INSERT INTO users (username, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?)", "dave", "h", now, now)
			panic("boom")
		})
	})

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 0, count)
}
