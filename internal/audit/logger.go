package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirk1998/stocktalk/internal/database"
)

const (
	queueSize    = 1000
	writeTimeout = 5 * time.Second
)

// Logger records security events in the audit_log table, mirrors them to the
// application log and, when a path is configured, to a JSON lines file.
type Logger struct {
	db         *database.DB
	log        zerolog.Logger
	file       *os.File
	fileLog    zerolog.Logger
	asyncMode  bool
	eventQueue chan *Event
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewLogger creates a new audit logger
func NewLogger(db *database.DB, log zerolog.Logger, logFilePath string, asyncMode bool) (*Logger, error) {
	ctx, cancel := context.WithCancel(context.Background())

	logger := &Logger{
		db:        db,
		log:       log.With().Str("component", "audit").Logger(),
		fileLog:   zerolog.Nop(),
		asyncMode: asyncMode,
		ctx:       ctx,
		cancel:    cancel,
	}

	if logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0700); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.file = file
		logger.fileLog = zerolog.New(file)
	}

	if asyncMode {
		logger.eventQueue = make(chan *Event, queueSize)
		logger.startAsyncLogger()
	}

	return logger, nil
}

// Log records an audit event. In async mode it only enqueues and fails
// when the queue is full.
func (al *Logger) Log(event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Level == "" {
		event.Level = LevelInfo
	}

	al.mu.RLock()
	defer al.mu.RUnlock()

	if al.closed {
		return fmt.Errorf("audit logger is closed")
	}

	if al.asyncMode {
		select {
		case al.eventQueue <- event:
			return nil
		default:
			al.log.Warn().Str("action", event.Action).Msg("audit queue full, event dropped")
			return fmt.Errorf("audit log queue is full")
		}
	}

	return al.writeEvent(event)
}

// writeEvent writes event to the database and the log sinks
func (al *Logger) writeEvent(event *Event) error {
	query := al.db.Rebind(`
        INSERT INTO audit_log (
            timestamp, level, user_id, action, resource, subject,
            ip_address, success, error_msg, metadata
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, dbErr := al.db.ExecContext(ctx, query,
		event.Timestamp,
		string(event.Level),
		event.UserID,
		event.Action,
		event.Resource,
		event.Subject,
		event.IPAddress,
		event.Success,
		event.ErrorMsg,
		event.Metadata,
	)
	if dbErr != nil {
		// keep the log sinks even when the table write fails
		al.log.Error().Err(dbErr).Str("action", event.Action).Msg("failed to write audit event to database")
	}

	al.emit(al.log.WithLevel(zerologLevel(event)), event)
	al.emit(al.fileLog.Log(), event)

	if dbErr != nil {
		return fmt.Errorf("failed to write audit event: %w", dbErr)
	}
	return nil
}

func (al *Logger) emit(e *zerolog.Event, event *Event) {
	if e == nil {
		return
	}
	if event.UserID != nil {
		e = e.Int("user_id", *event.UserID)
	}
	e.Time("timestamp", event.Timestamp).
		Str("severity", string(event.Level)).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("subject", event.Subject).
		Str("ip_address", event.IPAddress).
		Bool("success", event.Success).
		Str("error_msg", event.ErrorMsg).
		Str("metadata", event.Metadata).
		Msg("audit")
}

func zerologLevel(event *Event) zerolog.Level {
	switch event.Level {
	case LevelCritical, LevelError:
		return zerolog.ErrorLevel
	case LevelWarning:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// startAsyncLogger starts async logging worker
func (al *Logger) startAsyncLogger() {
	al.wg.Add(1)
	go func() {
		defer al.wg.Done()
		for {
			select {
			case event := <-al.eventQueue:
				al.writeEvent(event)
			case <-al.ctx.Done():
				// Drain remaining events
				for {
					select {
					case event := <-al.eventQueue:
						al.writeEvent(event)
					default:
						return
					}
				}
			}
		}
	}()
}

// QueryLogs returns events matching filters, newest first
func (al *Logger) QueryLogs(ctx context.Context, filters QueryFilters) ([]*Event, error) {
	query := `
        SELECT id, timestamp, level, user_id, action, resource, subject,
               ip_address, success, error_msg, metadata
        FROM audit_log
        WHERE 1=1
    `

	args := []any{}

	if filters.StartTime != nil {
		query += " AND timestamp >= ?"
		args = append(args, filters.StartTime.UTC())
	}

	if filters.EndTime != nil {
		query += " AND timestamp <= ?"
		args = append(args, filters.EndTime.UTC())
	}

	if filters.UserID != nil {
		query += " AND user_id = ?"
		args = append(args, *filters.UserID)
	}

	if filters.Action != "" {
		query += " AND action = ?"
		args = append(args, filters.Action)
	}

	if filters.Level != "" {
		query += " AND level = ?"
		args = append(args, string(filters.Level))
	}

	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	if filters.Limit <= 0 {
		filters.Limit = 100
	}
	args = append(args, filters.Limit)

	rows, err := al.db.QueryContext(ctx, al.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		var level string
		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&level,
			&event.UserID,
			&event.Action,
			&event.Resource,
			&event.Subject,
			&event.IPAddress,
			&event.Success,
			&event.ErrorMsg,
			&event.Metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		event.Level = LogLevel(level)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return events, nil
}

// Close flushes queued events and closes the file sink
func (al *Logger) Close() error {
	al.mu.Lock()
	if al.closed {
		al.mu.Unlock()
		return nil
	}
	al.closed = true
	al.mu.Unlock()

	al.cancel()
	al.wg.Wait()

	if al.file != nil {
		return al.file.Close()
	}
	return nil
}
