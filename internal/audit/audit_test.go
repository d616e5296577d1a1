package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirk1998/stocktalk/internal/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "audit.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

func TestLogger_SyncWriteAndQuery(t *testing.T) {
	db := newTestDB(t)
	path := filepath.Join(t.TempDir(), "logs", "audit.log")

	logger, err := NewLogger(db, zerolog.Nop(), path, false)
	require.NoError(t, err)

	require.NoError(t, logger.Log(&Event{Action: ActionLoginFailed, Resource: "authentication", Subject: "alice", IPAddress: "10.0.0.1"}))
	require.NoError(t, logger.Log(&Event{Action: ActionSignup, Resource: "authentication", Subject: "bob", Success: true}))
	require.NoError(t, logger.Close())

	events, err := logger.QueryLogs(context.Background(), QueryFilters{Action: ActionLoginFailed})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].Subject)
	assert.Equal(t, LevelInfo, events[0].Level)
	assert.False(t, events[0].Success)
	assert.Nil(t, events[0].UserID)

	all, err := logger.QueryLogs(context.Background(), QueryFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, ActionLoginFailed, lines[0]["action"])
	assert.Equal(t, "10.0.0.1", lines[0]["ip_address"])

	assert.Error(t, logger.Log(&Event{Action: ActionSignup}), "closed logger rejects events")
}

func TestLogger_AsyncDrainsOnClose(t *testing.T) {
	db := newTestDB(t)

	logger, err := NewLogger(db, zerolog.Nop(), "", true)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, logger.Log(&Event{Action: ActionRateLimited, Resource: "rate_limit", IPAddress: "10.0.0.9"}))
	}
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&n))
	assert.Equal(t, 50, n)
}

func TestLogger_QueryTimeRange(t *testing.T) {
	db := newTestDB(t)
	logger, err := NewLogger(db, zerolog.Nop(), "", false)
	require.NoError(t, err)
	defer logger.Close()

	now := time.Now().UTC()
	require.NoError(t, logger.Log(&Event{Timestamp: now.Add(-time.Hour), Action: ActionLogin, Resource: "authentication"}))
	require.NoError(t, logger.Log(&Event{Timestamp: now, Action: ActionLogin, Resource: "authentication"}))

	since := now.Add(-time.Minute)
	events, err := logger.QueryLogs(context.Background(), QueryFilters{StartTime: &since})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestMonitor_Thresholds(t *testing.T) {
	db := newTestDB(t)
	logger, err := NewLogger(db, zerolog.Nop(), "", false)
	require.NoError(t, err)
	defer logger.Close()

	for i := 0; i < AlertThreshold; i++ {
		require.NoError(t, logger.Log(&Event{Action: ActionLoginFailed, Resource: "authentication", Subject: "alice"}))
		require.NoError(t, logger.Log(&Event{Action: ActionRateLimited, Resource: "rate_limit", IPAddress: "10.0.0.1"}))
	}
	for i := 0; i < AlertThreshold-1; i++ {
		require.NoError(t, logger.Log(&Event{Action: ActionLoginFailed, Resource: "authentication", Subject: "bob"}))
	}
	// outside the window
	old := time.Now().UTC().Add(-2 * DetectionWindow)
	for i := 0; i < AlertThreshold; i++ {
		require.NoError(t, logger.Log(&Event{Timestamp: old, Action: ActionLoginFailed, Resource: "authentication", Subject: "carol"}))
	}

	monitor := NewMonitor(logger, zerolog.Nop())
	alerts := monitor.DetectSuspiciousActivity(context.Background())

	assert.ElementsMatch(t, []Alert{
		{Action: ActionLoginFailed, Subject: "alice", Count: AlertThreshold},
		{Action: ActionRateLimited, Subject: "10.0.0.1", Count: AlertThreshold},
	}, alerts)

	critical, err := logger.QueryLogs(context.Background(), QueryFilters{Level: LevelCritical})
	require.NoError(t, err)
	assert.Len(t, critical, 2)
}
