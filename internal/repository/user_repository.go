package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/amirk1998/stocktalk/internal/database"
	"github.com/amirk1998/stocktalk/internal/models"
	"github.com/amirk1998/stocktalk/pkg/errors"
)

type UserRepository struct {
	db *database.DB
	tm *database.TransactionManager
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db, tm: database.NewTransactionManager(db)}
}

// Create inserts a user. A taken username yields ErrUserAlreadyExists.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
        INSERT INTO users (username, password_hash, created_at, updated_at)
        VALUES (?, ?, ?, ?)`

	now := time.Now().UTC()
	id, err := r.db.InsertID(ctx, r.db, query,
		user.Username,
		user.PasswordHash,
		now,
		now,
	)
	if database.IsUniqueViolation(err) {
		return errors.ErrUserAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	query := r.db.Rebind(`
        SELECT id, username, password_hash, created_at, updated_at
        FROM users
        WHERE id = ?
    `)

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := r.db.Rebind(`
        SELECT id, username, password_hash, created_at, updated_at
        FROM users
        WHERE username = ?
    `)

	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

// Exists reports whether the username is taken
func (r *UserRepository) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool
	query := r.db.Rebind("SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)")
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// Delete removes the user; posts, likes and chats go with it through the
// foreign keys. Like counters on other users' posts are decremented in the
// same transaction so they keep matching their post_likes rows.
func (r *UserRepository) Delete(ctx context.Context, userID int) error {
	return r.tm.Execute(ctx, func(tx *sql.Tx) error {
		release := r.db.Rebind(`
            UPDATE posts
            SET likes = likes - 1
            WHERE id IN (SELECT post_id FROM post_likes WHERE user_id = ?)
              AND user_id <> ?
        `)
		if _, err := tx.ExecContext(ctx, release, userID, userID); err != nil {
			return fmt.Errorf("failed to release likes: %w", err)
		}

		result, err := tx.ExecContext(ctx, r.db.Rebind("DELETE FROM users WHERE id = ?"), userID)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}

		if rows == 0 {
			return errors.ErrUserNotFound
		}

		return nil
	})
}
