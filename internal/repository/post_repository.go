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

const postColumns = `p.id, p.user_id, u.username, p.title, p.content, p.likes, p.created_at, p.updated_at`

type PostRepository struct {
	db *database.DB
	tm *database.TransactionManager
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *database.DB) *PostRepository {
	return &PostRepository{db: db, tm: database.NewTransactionManager(db)}
}

// Create creates a new post with a zero like counter
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	query := `
        INSERT INTO posts (user_id, title, content, likes, created_at, updated_at)
        VALUES (?, ?, ?, 0, ?, ?)`

	now := time.Now().UTC()
	id, err := r.db.InsertID(ctx, r.db, query,
		post.UserID,
		post.Title,
		post.Content,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}

	post.ID = id
	post.Likes = 0
	post.CreatedAt = now
	post.UpdatedAt = now

	return nil
}

// GetByID retrieves a post with its author's username
func (r *PostRepository) GetByID(ctx context.Context, id int) (*models.Post, error) {
	query := r.db.Rebind(`
        SELECT ` + postColumns + `
        FROM posts p
        JOIN users u ON p.user_id = u.id
        WHERE p.id = ?
    `)

	post := &models.Post{}
	err := scanPost(r.db.QueryRowContext(ctx, query, id), post)
	if err == sql.ErrNoRows {
		return nil, errors.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	return post, nil
}

// List returns posts newest first
func (r *PostRepository) List(ctx context.Context, filters models.PostListFilters) ([]*models.Post, error) {
	query := `
        SELECT ` + postColumns + `
        FROM posts p
        JOIN users u ON p.user_id = u.id
        ORDER BY p.created_at DESC, p.id DESC`

	var args []any
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)

		if filters.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filters.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := []*models.Post{}
	for rows.Next() {
		post := &models.Post{}
		if err := scanPost(rows, post); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, post)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return posts, nil
}

// GetOwnerID returns the id of the user who created the post
func (r *PostRepository) GetOwnerID(ctx context.Context, postID int) (int, error) {
	var ownerID int
	err := r.db.QueryRowContext(ctx, r.db.Rebind("SELECT user_id FROM posts WHERE id = ?"), postID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return 0, errors.ErrRecordNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get post owner: %w", err)
	}
	return ownerID, nil
}

// Update rewrites title and content. The owner is part of the WHERE clause so
// a post that changed hands or vanished since the ownership check is not touched.
func (r *PostRepository) Update(ctx context.Context, post *models.Post) error {
	query := r.db.Rebind(`
        UPDATE posts
        SET title = ?, content = ?, updated_at = ?
        WHERE id = ? AND user_id = ?
    `)

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		post.Title,
		post.Content,
		now,
		post.ID,
		post.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return errors.ErrRecordNotFound
	}

	post.UpdatedAt = now

	return nil
}

// Delete deletes a post owned by userID
func (r *PostRepository) Delete(ctx context.Context, id int, userID int) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM posts WHERE id = ? AND user_id = ?"), id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return errors.ErrRecordNotFound
	}

	return nil
}

// ToggleLike flips the (user, post) like relation and moves the post's
// counter with it inside one transaction.
//
// The no-op UPDATE takes the post's row lock first, so concurrent toggles on
// the same post run one after another, and a missing post is reported before
// the relation is touched.
func (r *PostRepository) ToggleLike(ctx context.Context, userID, postID int) (*models.LikeResult, error) {
	result := &models.LikeResult{}

	err := r.tm.Execute(ctx, func(tx *sql.Tx) error {
		lock, err := tx.ExecContext(ctx, r.db.Rebind("UPDATE posts SET likes = likes WHERE id = ?"), postID)
		if err != nil {
			return fmt.Errorf("failed to lock post: %w", err)
		}
		if n, err := lock.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		} else if n == 0 {
			return errors.ErrRecordNotFound
		}

		removed, err := tx.ExecContext(ctx, r.db.Rebind("DELETE FROM post_likes WHERE user_id = ? AND post_id = ?"), userID, postID)
		if err != nil {
			return fmt.Errorf("failed to remove like: %w", err)
		}
		n, err := removed.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}

		delta := -1
		if n == 0 {
			insert := r.db.Rebind("INSERT INTO post_likes (user_id, post_id, created_at) VALUES (?, ?, ?)")
			if _, err := tx.ExecContext(ctx, insert, userID, postID, time.Now().UTC()); err != nil {
				return fmt.Errorf("failed to add like: %w", err)
			}
			delta = 1
			result.Liked = true
		}

		update := r.db.Rebind("UPDATE posts SET likes = likes + ? WHERE id = ?")
		if _, err := tx.ExecContext(ctx, update, delta, postID); err != nil {
			return fmt.Errorf("failed to update like counter: %w", err)
		}

		return tx.QueryRowContext(ctx, r.db.Rebind("SELECT likes FROM posts WHERE id = ?"), postID).Scan(&result.Likes)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// IsLiked reports whether userID currently likes postID
func (r *PostRepository) IsLiked(ctx context.Context, userID, postID int) (bool, error) {
	var liked bool
	query := r.db.Rebind("SELECT EXISTS(SELECT 1 FROM post_likes WHERE user_id = ? AND post_id = ?)")
	if err := r.db.QueryRowContext(ctx, query, userID, postID).Scan(&liked); err != nil {
		return false, fmt.Errorf("failed to get like status: %w", err)
	}
	return liked, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner, post *models.Post) error {
	return row.Scan(
		&post.ID,
		&post.UserID,
		&post.Username,
		&post.Title,
		&post.Content,
		&post.Likes,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
}
