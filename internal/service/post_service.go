package service

import (
	"context"
	"strconv"

	"github.com/amirk1998/stocktalk/internal/audit"
	"github.com/amirk1998/stocktalk/internal/database"
	"github.com/amirk1998/stocktalk/internal/models"
	"github.com/amirk1998/stocktalk/internal/repository"
	"github.com/amirk1998/stocktalk/pkg/errors"
	"github.com/amirk1998/stocktalk/pkg/validator"
)

// FeedLimit caps list responses
const FeedLimit = 100

type PostService struct {
	postRepo    *repository.PostRepository
	validator   *validator.Validator
	auditLogger AuditLogger
}

// NewPostService creates a new post service
func NewPostService(postRepo *repository.PostRepository, auditLogger AuditLogger) *PostService {
	return &PostService{
		postRepo:    postRepo,
		validator:   validator.New(),
		auditLogger: auditLogger,
	}
}

// List returns the newest posts first
func (s *PostService) List(ctx context.Context) ([]*models.Post, error) {
	return s.postRepo.List(ctx, models.PostListFilters{Limit: FeedLimit})
}

// Get returns one post
func (s *PostService) Get(ctx context.Context, postID int) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if errors.Is(err, errors.ErrRecordNotFound) {
		return nil, errors.NotFound("post")
	}
	return post, err
}

// Create publishes a post owned by userID
func (s *PostService) Create(ctx context.Context, userID int, req *models.CreatePostRequest) (*models.Post, error) {
	req.Title = s.validator.SanitizeString(req.Title)
	req.Content = s.validator.SanitizeString(req.Content)

	if err := s.validator.ValidatePost(req.Title, req.Content); err != nil {
		return nil, err
	}

	post := &models.Post{
		UserID:  userID,
		Title:   req.Title,
		Content: req.Content,
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, userGone(err)
	}

	s.audit(ctx, userID, audit.ActionPostCreated, post.ID, true)
	return post, nil
}

// Update rewrites a post. The owner is checked once, before decode reads the
// payload, so a non-owner is refused whatever the body holds.
func (s *PostService) Update(ctx context.Context, userID, postID int, decode func(*models.UpdatePostRequest) error) (*models.Post, error) {
	if err := s.authorize(ctx, userID, postID); err != nil {
		return nil, err
	}

	req := &models.UpdatePostRequest{}
	if err := decode(req); err != nil {
		return nil, err
	}

	req.Title = s.validator.SanitizeString(req.Title)
	req.Content = s.validator.SanitizeString(req.Content)

	if err := s.validator.ValidatePost(req.Title, req.Content); err != nil {
		return nil, err
	}

	post := &models.Post{
		ID:      postID,
		UserID:  userID,
		Title:   req.Title,
		Content: req.Content,
	}

	if err := s.postRepo.Update(ctx, post); err != nil {
		if errors.Is(err, errors.ErrRecordNotFound) {
			return nil, errors.NotFound("post")
		}
		return nil, err
	}

	s.audit(ctx, userID, audit.ActionPostUpdated, postID, true)
	return s.Get(ctx, postID)
}

// Delete removes a post owned by userID
func (s *PostService) Delete(ctx context.Context, userID, postID int) error {
	if err := s.authorize(ctx, userID, postID); err != nil {
		return err
	}

	if err := s.postRepo.Delete(ctx, postID, userID); err != nil {
		if errors.Is(err, errors.ErrRecordNotFound) {
			return errors.NotFound("post")
		}
		return err
	}

	s.audit(ctx, userID, audit.ActionPostDeleted, postID, true)
	return nil
}

// ToggleLike flips userID's like on the post. Any user may like any post.
func (s *PostService) ToggleLike(ctx context.Context, userID, postID int) (*models.LikeResult, error) {
	result, err := s.postRepo.ToggleLike(ctx, userID, postID)
	if errors.Is(err, errors.ErrRecordNotFound) {
		return nil, errors.NotFound("post")
	}
	if err != nil {
		return nil, userGone(err)
	}
	return result, nil
}

// LikeStatus reports whether userID likes the post; an unknown post is simply not liked
func (s *PostService) LikeStatus(ctx context.Context, userID, postID int) (bool, error) {
	return s.postRepo.IsLiked(ctx, userID, postID)
}

// authorize loads the owner: 404 for a missing post, 403 for someone else's
func (s *PostService) authorize(ctx context.Context, userID, postID int) error {
	ownerID, err := s.postRepo.GetOwnerID(ctx, postID)
	if errors.Is(err, errors.ErrRecordNotFound) {
		return errors.NotFound("post")
	}
	if err != nil {
		return err
	}

	if err := CheckOwnership(ownerID, userID); err != nil {
		s.auditLogger.Log(&audit.Event{
			Level:     audit.LevelWarning,
			UserID:    &userID,
			Action:    audit.ActionPostForbidden,
			Resource:  "post:" + strconv.Itoa(postID),
			IPAddress: audit.ClientIP(ctx),
			ErrorMsg:  "not the owner",
		})
		return errors.Forbidden("you can only modify your own posts")
	}

	return nil
}

func (s *PostService) audit(ctx context.Context, userID int, action string, postID int, success bool) {
	s.auditLogger.Log(&audit.Event{
		UserID:    &userID,
		Action:    action,
		Resource:  "post:" + strconv.Itoa(postID),
		IPAddress: audit.ClientIP(ctx),
		Success:   success,
	})
}

// userGone maps a foreign key failure on the caller's id to an invalid token:
// the token outlived the account it was issued for.
func userGone(err error) error {
	if database.IsForeignKeyViolation(err) {
		return errors.ErrInvalidToken
	}
	return err
}
