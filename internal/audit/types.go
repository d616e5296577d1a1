package audit

import "time"

type LogLevel string

const (
	LevelInfo     LogLevel = "INFO"
	LevelWarning  LogLevel = "WARNING"
	LevelError    LogLevel = "ERROR"
	LevelCritical LogLevel = "CRITICAL"
)

// Actions recorded in the trail
const (
	ActionSignup           = "SIGNUP"
	ActionLogin            = "LOGIN"
	ActionLoginFailed      = "LOGIN_FAILED"
	ActionLoginThrottled   = "LOGIN_THROTTLED"
	ActionAccountDeleted   = "ACCOUNT_DELETED"
	ActionAuthMissingToken = "AUTH_MISSING_TOKEN"
	ActionAuthInvalidToken = "AUTH_INVALID_TOKEN"
	ActionAuthExpiredToken = "AUTH_EXPIRED_TOKEN"
	ActionPostCreated      = "POST_CREATED"
	ActionPostUpdated      = "POST_UPDATED"
	ActionPostDeleted      = "POST_DELETED"
	ActionPostForbidden    = "POST_FORBIDDEN"
	ActionRateLimited      = "RATE_LIMITED"
	ActionFailedLoginAlert = "FAILED_LOGIN_THRESHOLD"
	ActionRateLimitAlert   = "RATE_LIMIT_THRESHOLD"
	ActionBackupCreated    = "BACKUP_CREATED"
	ActionBackupFailed     = "BACKUP_FAILED"
)

// Event is one audit record. Subject names what the event is about when
// that is not a live user id, e.g. the username of a failed login.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	UserID    *int      `json:"user_id,omitempty"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Subject   string    `json:"subject,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	Success   bool      `json:"success"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
	Metadata  string    `json:"metadata,omitempty"`
}

type QueryFilters struct {
	StartTime *time.Time
	EndTime   *time.Time
	UserID    *int
	Action    string
	Level     LogLevel
	Limit     int
}

// UserRef returns a pointer to id for Event.UserID
func UserRef(id int) *int {
	return &id
}
