package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirk1998/stocktalk/internal/api"
	"github.com/amirk1998/stocktalk/internal/audit"
	"github.com/amirk1998/stocktalk/internal/backup"
	"github.com/amirk1998/stocktalk/internal/config"
	"github.com/amirk1998/stocktalk/internal/database"
	"github.com/amirk1998/stocktalk/internal/ratelimit"
	"github.com/amirk1998/stocktalk/internal/repository"
	"github.com/amirk1998/stocktalk/internal/security"
	"github.com/amirk1998/stocktalk/internal/service"
)

const (
	monitorInterval       = 5 * time.Minute
	windowCleanupInterval = time.Minute
	loginCleanupInterval  = time.Hour
)

type Application struct {
	config       *config.Config
	log          zerolog.Logger
	db           *database.DB
	auditLogger  *audit.Logger
	auditMonitor *audit.Monitor
	backupMgr    *backup.Manager
	loginLimiter *ratelimit.RateLimiter
	limiter      *ratelimit.WindowLimiter
	server       *http.Server
}

var (
	restoreFrom = flag.String("restore", "", "decrypt this backup file and exit")
	restoreTo   = flag.String("restore-to", "", "database file to create from -restore")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	if *restoreFrom != "" {
		if err := restore(cfg, *restoreFrom, *restoreTo); err != nil {
			logger.Fatal().Err(err).Msg("restore failed")
		}
		logger.Info().Str("backup", *restoreFrom).Str("database", *restoreTo).Msg("backup restored")
		return
	}

	app, err := initializeApplication(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}
	defer app.cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.startWorkers(ctx)

	if err := app.serve(ctx); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
	}
}

// restore writes a backup out as a plain database file; point DB_PATH at it
// to serve from the restored data
func restore(cfg *config.Config, from, to string) error {
	if to == "" {
		return fmt.Errorf("-restore-to is required with -restore")
	}

	keys, err := security.NewKeyManager(cfg.JWTSecret, cfg.BackupEncryptionKey)
	if err != nil {
		return err
	}
	if keys.BackupKey() == nil {
		return fmt.Errorf("BACKUP_ENCRYPTION_KEY is not set")
	}

	return backup.Restore(from, to, keys.BackupKey())
}

// newLogger writes JSON in production and a console format otherwise
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var logger zerolog.Logger
	if cfg.IsProduction() {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger.Level(level).With().Timestamp().Str("service", "stocktalk").Logger()
}

// initializeApplication sets up all application components
func initializeApplication(cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	db, err := database.Connect(database.Config{
		Driver:        cfg.DBDriver,
		Path:          cfg.DBPath,
		EncryptionKey: cfg.DBEncryptionKey,
		URL:           cfg.DatabaseURL,
		MaxOpenConns:  25,
		MaxIdleConns:  5,
		MaxLifetime:   1 * time.Hour,
		MaxIdleTime:   10 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := database.Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	keys, err := security.NewKeyManager(cfg.JWTSecret, cfg.BackupEncryptionKey)
	if err != nil {
		db.Close()
		return nil, err
	}

	tokens, err := security.NewTokenService(keys.TokenKey(), security.DefaultTokenTTL)
	if err != nil {
		db.Close()
		return nil, err
	}

	auditLogger, err := audit.NewLogger(db, logger, cfg.AuditLogPath, cfg.AuditAsyncMode)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	app := &Application{
		config:       cfg,
		log:          logger,
		db:           db,
		auditLogger:  auditLogger,
		auditMonitor: audit.NewMonitor(auditLogger, logger),
		loginLimiter: ratelimit.NewRateLimiter(cfg.LoginAttemptsPerMinute, cfg.LoginBurst),
		limiter:      ratelimit.NewWindowLimiter(),
	}

	if cfg.BackupsEnabled() {
		app.backupMgr, err = backup.NewManager(db, cfg.BackupDir, keys.BackupKey(), cfg.BackupRetentionDays, logger, auditLogger)
		if err != nil {
			app.cleanup()
			return nil, fmt.Errorf("failed to initialize backups: %w", err)
		}
	}

	srv := api.NewServer(
		api.Config{CORSOrigins: cfg.CORSOrigins, TrustProxy: cfg.TrustProxy},
		service.NewAuthService(repository.NewUserRepository(db), tokens, app.loginLimiter, auditLogger),
		service.NewPostService(repository.NewPostRepository(db), auditLogger),
		service.NewChatService(repository.NewChatRepository(db)),
		app.limiter,
		auditLogger,
		logger,
	)

	app.server = &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return app, nil
}

// startWorkers runs the background jobs until ctx is done
func (app *Application) startWorkers(ctx context.Context) {
	go app.limiter.StartCleanupWorker(ctx, windowCleanupInterval)
	go app.loginLimiter.StartCleanupWorker(ctx, loginCleanupInterval)
	go app.auditMonitor.Run(ctx, monitorInterval)

	if app.backupMgr != nil {
		go app.backupMgr.StartAutomatedBackups(ctx, app.config.BackupInterval)
	} else {
		app.log.Info().Str("driver", app.config.DBDriver).Msg("automated backups disabled")
	}
}

// serve blocks until the listener fails or ctx is cancelled, then drains
// in-flight requests
func (app *Application) serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		app.log.Info().
			Str("addr", app.server.Addr).
			Str("env", app.config.Environment).
			Str("driver", app.config.DBDriver).
			Msg("stocktalk API listening")
		errCh <- app.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	app.log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()

	return app.server.Shutdown(shutdownCtx)
}

// cleanup performs cleanup operations
func (app *Application) cleanup() {
	if app.auditLogger != nil {
		if err := app.auditLogger.Close(); err != nil {
			app.log.Error().Err(err).Msg("failed to close audit logger")
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.log.Error().Err(err).Msg("failed to close database")
		}
	}

	app.log.Info().Msg("shutdown complete")
}
