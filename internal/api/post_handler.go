package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/amirk1998/stocktalk/internal/models"
	"github.com/amirk1998/stocktalk/pkg/errors"
)

// postID reads the {id} route variable. The route pattern only admits digits,
// so a parse failure means the number does not fit and no such post exists.
func postID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		return 0, errors.NotFound("post")
	}
	return id, nil
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.posts.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"posts":   posts,
	})
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, err := postID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	post, err := s.posts.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"post":    post,
	})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req models.CreatePostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	post, err := s.posts.Create(r.Context(), userID, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "post created",
		"post":    post,
	})
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	id, err := postID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	decode := func(req *models.UpdatePostRequest) error {
		return decodeJSON(w, r, req)
	}

	post, err := s.posts.Update(r.Context(), userID, id, decode)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "post updated",
		"post":    post,
	})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	id, err := postID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.posts.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "post deleted",
	})
}

func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	id, err := postID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.posts.ToggleLike(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"liked":   result.Liked,
		"likes":   result.Likes,
	})
}

func (s *Server) handleLikeStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	id, err := postID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	liked, err := s.posts.LikeStatus(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"liked":   liked,
	})
}
