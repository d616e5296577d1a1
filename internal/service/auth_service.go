package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/amirk1998/stocktalk/internal/audit"
	"github.com/amirk1998/stocktalk/internal/models"
	"github.com/amirk1998/stocktalk/internal/ratelimit"
	"github.com/amirk1998/stocktalk/internal/repository"
	"github.com/amirk1998/stocktalk/internal/security"
	"github.com/amirk1998/stocktalk/pkg/errors"
	"github.com/amirk1998/stocktalk/pkg/validator"
)

// AuditLogger records security events
type AuditLogger interface {
	Log(event *audit.Event) error
}

type AuthService struct {
	userRepo     *repository.UserRepository
	hasher       *security.PasswordHasher
	tokens       *security.TokenService
	validator    *validator.Validator
	loginLimiter *ratelimit.RateLimiter
	auditLogger  AuditLogger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	userRepo *repository.UserRepository,
	tokens *security.TokenService,
	loginLimiter *ratelimit.RateLimiter,
	auditLogger AuditLogger,
) *AuthService {
	return &AuthService{
		userRepo:     userRepo,
		hasher:       security.NewPasswordHasher(),
		tokens:       tokens,
		validator:    validator.New(),
		loginLimiter: loginLimiter,
		auditLogger:  auditLogger,
	}
}

// Signup creates an account and signs the new user in
func (s *AuthService) Signup(ctx context.Context, req *models.CreateUserRequest) (*models.LoginResponse, error) {
	req.Username = s.validator.SanitizeString(req.Username)

	if err := s.validator.ValidateUsername(req.Username); err != nil {
		return nil, err
	}

	if err := s.validator.ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	exists, err := s.userRepo.Exists(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		s.audit(ctx, &audit.Event{
			Level:    audit.LevelWarning,
			Action:   audit.ActionSignup,
			Subject:  req.Username,
			ErrorMsg: "username already exists",
		})
		return nil, errors.ErrUserAlreadyExists
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     req.Username,
		PasswordHash: passwordHash,
	}

	// a concurrent signup can still win the race; Create maps that to ErrUserAlreadyExists
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.audit(ctx, &audit.Event{
		UserID:  &user.ID,
		Action:  audit.ActionSignup,
		Subject: user.Username,
		Success: true,
	})

	return s.issue(user)
}

// Login checks credentials and issues a token
func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.ValidateCredentialsPresent(req.Username, req.Password); err != nil {
		return nil, err
	}

	// Rate limiting per username
	if err := s.loginLimiter.CheckLimit("login:" + req.Username); err != nil {
		s.audit(ctx, &audit.Event{
			Level:    audit.LevelWarning,
			Action:   audit.ActionLoginThrottled,
			Subject:  req.Username,
			ErrorMsg: "rate limit exceeded",
		})
		return nil, err
	}

	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if errors.Is(err, errors.ErrUserNotFound) {
		// same cost as a wrong password so timing does not reveal which usernames exist
		s.hasher.VerifyDummy(req.Password)
		s.loginFailed(ctx, req.Username, nil, "unknown username")
		return nil, errors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	valid, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}

	if !valid {
		s.loginFailed(ctx, req.Username, &user.ID, "invalid password")
		return nil, errors.ErrInvalidCredentials
	}

	s.audit(ctx, &audit.Event{
		UserID:  &user.ID,
		Action:  audit.ActionLogin,
		Subject: user.Username,
		Success: true,
	})

	return s.issue(user)
}

func (s *AuthService) loginFailed(ctx context.Context, username string, userID *int, reason string) {
	s.audit(ctx, &audit.Event{
		Level:    audit.LevelWarning,
		UserID:   userID,
		Action:   audit.ActionLoginFailed,
		Subject:  username,
		ErrorMsg: reason,
	})
}

func (s *AuthService) issue(user *models.User) (*models.LoginResponse, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	return &models.LoginResponse{
		User:      user,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// Authenticate resolves a bearer token to a user id. An empty token is
// ErrMissingToken; the token service decides between invalid and expired.
func (s *AuthService) Authenticate(ctx context.Context, token string) (int, error) {
	if token == "" {
		s.audit(ctx, &audit.Event{
			Level:    audit.LevelWarning,
			Action:   audit.ActionAuthMissingToken,
			ErrorMsg: errors.ErrMissingToken.Error(),
		})
		return 0, errors.ErrMissingToken
	}

	userID, err := s.tokens.Verify(token)
	if err != nil {
		action := audit.ActionAuthInvalidToken
		if errors.Is(err, errors.ErrTokenExpired) {
			action = audit.ActionAuthExpiredToken
		}
		s.audit(ctx, &audit.Event{
			Level:    audit.LevelWarning,
			Action:   action,
			ErrorMsg: err.Error(),
		})
		return 0, err
	}

	return userID, nil
}

// CurrentUser loads the account behind a verified token. A token that outlived
// its account is reported as invalid.
func (s *AuthService) CurrentUser(ctx context.Context, userID int) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if errors.Is(err, errors.ErrUserNotFound) {
		s.audit(ctx, &audit.Event{
			Level:    audit.LevelWarning,
			Action:   audit.ActionAuthInvalidToken,
			Subject:  strconv.Itoa(userID),
			ErrorMsg: "account no longer exists",
		})
		return nil, errors.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteAccount removes the user with everything they own.
// Tokens already issued to the user stay valid until they expire.
func (s *AuthService) DeleteAccount(ctx context.Context, userID int) error {
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		return err
	}

	// the row is gone, so the id goes in Subject rather than the foreign key
	s.audit(ctx, &audit.Event{
		Action:  audit.ActionAccountDeleted,
		Subject: strconv.Itoa(userID),
		Success: true,
	})

	return nil
}

func (s *AuthService) audit(ctx context.Context, event *audit.Event) {
	if event.Resource == "" {
		event.Resource = "authentication"
	}
	event.IPAddress = audit.ClientIP(ctx)
	s.auditLogger.Log(event)
}
