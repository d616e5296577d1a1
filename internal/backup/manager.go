package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirk1998/stocktalk/internal/audit"
	"github.com/amirk1998/stocktalk/internal/database"
	"github.com/amirk1998/stocktalk/internal/security"
	"github.com/amirk1998/stocktalk/pkg/errors"
)

const (
	filePrefix   = "backup_"
	fileSuffix   = ".db.enc.gz"
	checksumExt  = ".sha256"
	fileStampFmt = "20060102_150405.000000000"
)

// EventRecorder receives backup outcomes for the audit trail
type EventRecorder interface {
	Log(event *audit.Event) error
}

// Manager writes encrypted, compressed snapshots of a SQLite store
type Manager struct {
	db            *database.DB
	backupDir     string
	encryptor     *security.Encryptor
	retentionDays int
	log           zerolog.Logger
	recorder      EventRecorder
	now           func() time.Time
}

// NewManager creates a new backup manager. key must be 32 bytes.
func NewManager(db *database.DB, backupDir string, key []byte, retentionDays int, log zerolog.Logger, recorder EventRecorder) (*Manager, error) {
	if db.Driver() != database.DriverSQLite {
		return nil, fmt.Errorf("backups are only supported for the %s driver", database.DriverSQLite)
	}

	encryptor, err := security.NewEncryptor(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup encryptor: %w", err)
	}

	// Ensure backup directory exists with secure permissions
	if err := os.MkdirAll(backupDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	return &Manager{
		db:            db,
		backupDir:     backupDir,
		encryptor:     encryptor,
		retentionDays: retentionDays,
		log:           log.With().Str("component", "backup").Logger(),
		recorder:      recorder,
		now:           time.Now,
	}, nil
}

// CreateBackup snapshots the database and returns the path of the sealed file
func (m *Manager) CreateBackup(ctx context.Context) (string, error) {
	path, err := m.createBackup(ctx)
	m.record(path, err)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrBackupFailed, err)
	}

	m.log.Info().Str("path", path).Msg("backup created")
	return path, nil
}

func (m *Manager) createBackup(ctx context.Context) (string, error) {
	stamp := m.now().UTC().Format(fileStampFmt)
	snapshotPath := filepath.Join(m.backupDir, filePrefix+stamp+".db")
	sealedPath := filepath.Join(m.backupDir, filePrefix+stamp+fileSuffix)

	// VACUUM INTO takes no bound parameters
	quoted := strings.ReplaceAll(snapshotPath, "'", "''")
	if _, err := m.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return "", fmt.Errorf("failed to snapshot database: %w", err)
	}
	defer os.Remove(snapshotPath)

	if err := m.sealFile(snapshotPath, sealedPath); err != nil {
		os.Remove(sealedPath)
		return "", err
	}

	if err := m.createChecksumFile(sealedPath); err != nil {
		return "", fmt.Errorf("failed to create checksum: %w", err)
	}

	return sealedPath, nil
}

// sealFile encrypts srcPath and writes it gzip-compressed to dstPath
func (m *Manager) sealFile(srcPath, dstPath string) error {
	plaintext, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	ciphertext, err := m.encryptor.Seal(plaintext)
	if err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dstFile.Close()

	gzWriter := gzip.NewWriter(dstFile)
	if _, err := gzWriter.Write(ciphertext); err != nil {
		return fmt.Errorf("failed to write compressed data: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush compressed data: %w", err)
	}

	return dstFile.Sync()
}

// createChecksumFile creates SHA-256 checksum file
func (m *Manager) createChecksumFile(filePath string) error {
	sum, err := checksum(filePath)
	if err != nil {
		return err
	}
	return os.WriteFile(filePath+checksumExt, []byte(sum), 0600)
}

func checksum(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read backup file: %w", err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

// VerifyBackup checks the file against its checksum sidecar
func (m *Manager) VerifyBackup(backupPath string) error {
	return verifyChecksum(backupPath)
}

func verifyChecksum(backupPath string) error {
	stored, err := os.ReadFile(backupPath + checksumExt)
	if err != nil {
		return fmt.Errorf("failed to read checksum file: %w", err)
	}

	current, err := checksum(backupPath)
	if err != nil {
		return err
	}

	if current != strings.TrimSpace(string(stored)) {
		return fmt.Errorf("checksum mismatch: backup file may be corrupted")
	}

	return nil
}

// Restore verifies, decompresses and decrypts backupPath into a new database
// file at dstPath. It needs no open database and never overwrites dstPath.
func Restore(backupPath, dstPath string, key []byte) error {
	encryptor, err := security.NewEncryptor(key)
	if err != nil {
		return fmt.Errorf("failed to create backup encryptor: %w", err)
	}

	if err := verifyChecksum(backupPath); err != nil {
		return err
	}

	compressed, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}

	gzReader, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("failed to open compressed data: %w", err)
	}
	defer gzReader.Close()

	ciphertext, err := io.ReadAll(gzReader)
	if err != nil {
		return fmt.Errorf("failed to decompress backup: %w", err)
	}

	plaintext, err := encryptor.Open(ciphertext)
	if err != nil {
		return err
	}

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create restore target: %w", err)
	}
	if _, err := dst.Write(plaintext); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return fmt.Errorf("failed to write restored database: %w", err)
	}
	return dst.Close()
}

// CleanOldBackups removes backups older than the retention period
func (m *Manager) CleanOldBackups() (int, error) {
	cutoffTime := m.now().AddDate(0, 0, -m.retentionDays)

	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read backup directory: %w", err)
	}

	deletedCount := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoffTime) {
			filePath := filepath.Join(m.backupDir, entry.Name())
			if err := os.Remove(filePath); err != nil {
				m.log.Warn().Err(err).Str("path", filePath).Msg("failed to delete old backup")
				continue
			}
			deletedCount++
		}
	}

	if deletedCount > 0 {
		m.log.Info().Int("count", deletedCount).Msg("cleaned old backup files")
	}

	return deletedCount, nil
}

func (m *Manager) record(path string, err error) {
	if m.recorder == nil {
		return
	}

	event := &audit.Event{
		Action:   audit.ActionBackupCreated,
		Resource: "backup",
		Subject:  filepath.Base(path),
		Success:  err == nil,
	}
	if err != nil {
		event.Level = audit.LevelError
		event.Action = audit.ActionBackupFailed
		event.Subject = ""
		event.ErrorMsg = err.Error()
	}
	m.recorder.Log(event)
}

// StartAutomatedBackups creates a backup and prunes old ones every interval
func (m *Manager) StartAutomatedBackups(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", interval).Msg("automated backups started")

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("stopping automated backups")
			return
		case <-ticker.C:
			if _, err := m.CreateBackup(ctx); err != nil {
				m.log.Error().Err(err).Msg("scheduled backup failed")
			}

			if _, err := m.CleanOldBackups(); err != nil {
				m.log.Error().Err(err).Msg("backup cleanup failed")
			}
		}
	}
}
