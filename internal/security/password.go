package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters (OWASP recommendations)
	argon2Time      = 3
	argon2Memory    = 64 * 1024 // 64 MB
	argon2Threads   = 2
	argon2KeyLength = 32
	saltLength      = 16
)

type PasswordHasher struct {
	time      uint32
	memory    uint32
	threads   uint8
	keyLength uint32

	dummyOnce sync.Once
	dummy     string
}

func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{
		time:      argon2Time,
		memory:    argon2Memory,
		threads:   argon2Threads,
		keyLength: argon2KeyLength,
	}
}

// Hash generates a salted Argon2id hash in PHC string format
func (ph *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		ph.time,
		ph.memory,
		ph.threads,
		ph.keyLength,
	)

	encodedHash := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		ph.memory,
		ph.time,
		ph.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return encodedHash, nil
}

// Verify checks if password matches the hash
func (ph *PasswordHasher) Verify(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("invalid hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("failed to parse version: %w", err)
	}

	if version != argon2.Version {
		return false, fmt.Errorf("incompatible argon2 version")
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, fmt.Errorf("failed to parse parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("failed to decode salt: %w", err)
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("failed to decode hash: %w", err)
	}

	testHash := argon2.IDKey(
		[]byte(password),
		salt,
		time,
		memory,
		threads,
		uint32(len(hash)),
	)

	return subtle.ConstantTimeCompare(hash, testHash) == 1, nil
}

// VerifyDummy burns one verification against a fixed hash. Used when the
// username does not exist so the response takes as long as a real miss.
func (ph *PasswordHasher) VerifyDummy(password string) {
	ph.dummyOnce.Do(func() {
		ph.dummy, _ = ph.Hash("stocktalk-dummy-password")
	})
	if ph.dummy != "" {
		_, _ = ph.Verify(password, ph.dummy)
	}
}
