package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/amirk1998/stocktalk/internal/database"
	"github.com/amirk1998/stocktalk/internal/models"
)

type ChatRepository struct {
	db *database.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *database.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Create appends a message to the shared room
func (r *ChatRepository) Create(ctx context.Context, chat *models.ChatMessage) error {
	now := time.Now().UTC()
	id, err := r.db.InsertID(ctx, r.db,
		"INSERT INTO chats (user_id, message, created_at) VALUES (?, ?, ?)",
		chat.UserID, chat.Message, now)
	if err != nil {
		return fmt.Errorf("failed to create chat message: %w", err)
	}

	chat.ID = id
	chat.CreatedAt = now

	return nil
}

// ListLatest returns the newest limit messages, oldest first
func (r *ChatRepository) ListLatest(ctx context.Context, limit int) ([]*models.ChatMessage, error) {
	query := r.db.Rebind(`
        SELECT c.id, c.user_id, u.username, c.message, c.created_at
        FROM chats c
        JOIN users u ON c.user_id = u.id
        ORDER BY c.created_at DESC, c.id DESC
        LIMIT ?
    `)

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	chats := []*models.ChatMessage{}
	for rows.Next() {
		c := &models.ChatMessage{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.Username, &c.Message, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		chats = append(chats, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	slices.Reverse(chats)
	return chats, nil
}
