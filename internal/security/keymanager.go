package security

import (
	"crypto/sha256"
	"fmt"
)

// KeyManager holds the process secrets derived from configuration
type KeyManager struct {
	tokenKey  []byte
	backupKey []byte
}

// NewKeyManager takes the token signing secret and the optional backup
// passphrase. The signing secret is used as is; the backup passphrase is
// stretched to an AES-256 key.
func NewKeyManager(tokenSecret, backupPassphrase string) (*KeyManager, error) {
	if len(tokenSecret) < 32 {
		return nil, fmt.Errorf("token secret too short (minimum 32 characters)")
	}

	km := &KeyManager{tokenKey: []byte(tokenSecret)}
	if backupPassphrase != "" {
		km.backupKey = deriveKey(backupPassphrase)
	}

	return km, nil
}

// TokenKey returns the HMAC key for session tokens
func (km *KeyManager) TokenKey() []byte {
	return km.tokenKey
}

// BackupKey returns the 32-byte backup key, or nil if backups are not keyed
func (km *KeyManager) BackupKey() []byte {
	return km.backupKey
}

// deriveKey derives a 32-byte key from a string using SHA-256
func deriveKey(keyStr string) []byte {
	hash := sha256.Sum256([]byte(keyStr))
	return hash[:]
}
