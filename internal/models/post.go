package models

import (
	"time"
)

// Post is owned by the user who created it. Likes mirrors the number of
// post_likes rows for the post and is only changed together with them.
type Post struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreatePostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type UpdatePostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type PostListFilters struct {
	Limit  int
	Offset int
}

// LikeResult is the state of a (user, post) pair after a toggle
type LikeResult struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}
