package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/amirk1998/stocktalk/pkg/errors"
)

const (
	UsernameMinLength = 3
	UsernameMaxLength = 50
	PasswordMinLength = 6
	TitleMaxLength    = 255
	MessageMaxLength  = 500
)

// Username: letters, digits and underscores only
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateUsername checks presence, length and charset, in that order
func (v *Validator) ValidateUsername(username string) error {
	if username == "" {
		return errors.NewValidationError("username is required")
	}

	n := utf8.RuneCountInString(username)
	if n < UsernameMinLength || n > UsernameMaxLength {
		return errors.NewValidationError("username must be between 3 and 50 characters")
	}

	if !usernameRegex.MatchString(username) {
		return errors.NewValidationError("username may only contain letters, numbers and underscores")
	}

	return nil
}

// ValidatePassword checks presence and minimum length
func (v *Validator) ValidatePassword(password string) error {
	if password == "" {
		return errors.NewValidationError("password is required")
	}

	if utf8.RuneCountInString(password) < PasswordMinLength {
		return errors.NewValidationError("password must be at least 6 characters")
	}

	return nil
}

// ValidateCredentialsPresent is the login-side check: both fields must be sent,
// but signup's shape rules are not re-applied.
func (v *Validator) ValidateCredentialsPresent(username, password string) error {
	if username == "" || password == "" {
		return errors.NewValidationError("username and password are required")
	}
	return nil
}

// ValidatePostTitle validates post title
func (v *Validator) ValidatePostTitle(title string) error {
	if title == "" {
		return errors.NewValidationError("title is required")
	}

	if utf8.RuneCountInString(title) > TitleMaxLength {
		return errors.NewValidationError("title must be 255 characters or fewer")
	}

	return nil
}

// ValidatePostContent validates post content
func (v *Validator) ValidatePostContent(content string) error {
	if content == "" {
		return errors.NewValidationError("content is required")
	}
	return nil
}

// ValidatePost runs the title rule then the content rule.
func (v *Validator) ValidatePost(title, content string) error {
	if err := v.ValidatePostTitle(title); err != nil {
		return err
	}
	return v.ValidatePostContent(content)
}

// ValidateChatMessage rejects blank messages and anything over 500 characters.
// The length is measured on the message as sent, not the trimmed form.
func (v *Validator) ValidateChatMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.NewValidationError("message is required")
	}

	if utf8.RuneCountInString(message) > MessageMaxLength {
		return errors.NewValidationError("message must be 500 characters or fewer")
	}

	return nil
}

// SanitizeString removes null bytes
func (v *Validator) SanitizeString(input string) string {
	return strings.ReplaceAll(input, "\x00", "")
}
