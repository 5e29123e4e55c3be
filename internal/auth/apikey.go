// Package auth implements API key generation and verification for the
// trigger API. Keys are random, carry a recognizable prefix, and are
// stored only as bcrypt hashes in the configuration.
package auth

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyLength is the length of the random part of an API key.
	APIKeyLength = 32
	// APIKeyPrefix marks scanward API keys.
	APIKeyPrefix = "sw"

	// BcryptCost balances verification latency against brute-force
	// resistance for the low request rates of a trigger API.
	BcryptCost = 12
	// BcryptMaxInputLength is the bcrypt input limit in bytes.
	BcryptMaxInputLength = 72
)

// GenerateAPIKey creates a new random API key and its bcrypt hash. The
// plaintext key is shown once; only the hash goes into the config file.
func GenerateAPIKey() (key, hash string, err error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random key: %w", err)
	}

	// base32 avoids ambiguous characters in keys people paste around.
	randomPart := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(randomBytes))
	if len(randomPart) > APIKeyLength {
		randomPart = randomPart[:APIKeyLength]
	}
	key = fmt.Sprintf("%s_%s", APIKeyPrefix, randomPart)

	hash, err = HashAPIKey(key)
	if err != nil {
		return "", "", err
	}
	return key, hash, nil
}

// HashAPIKey returns the bcrypt hash for a key.
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key cannot be empty")
	}
	if len(key) > BcryptMaxInputLength {
		return "", fmt.Errorf("key exceeds %d bytes", BcryptMaxInputLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}

// VerifyAPIKey reports whether key matches any of the configured
// hashes. bcrypt comparison is constant-time per hash.
func VerifyAPIKey(key string, hashes []string) bool {
	if key == "" {
		return false
	}
	for _, hash := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil {
			return true
		}
	}
	return false
}

// DisplayPrefix returns a truncated form of a key safe for logs.
func DisplayPrefix(key string) string {
	const visible = 8
	if len(key) <= visible {
		return key
	}
	return key[:visible] + "..."
}
