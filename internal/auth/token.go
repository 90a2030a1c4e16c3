// Package auth provides the credential primitives for FlakeWatch: API token
// generation and validation. Tokens are long-lived project-scoped secrets with
// bcrypt hashing; the raw value exists only in the issuance response.
// See internal/middleware/auth.go for the request-time authentication logic that uses these primitives.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// TokenLength is the length of the random part of the token in bytes
	TokenLength = 32

	// DisplayPrefixLength is the number of characters to show in displays and
	// to store plaintext for indexed candidate lookup
	DisplayPrefixLength = 10

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// GenerateToken creates a new random API token with the given prefix
// Returns: full token (to show once), bcrypt hash (to store), display prefix
func GenerateToken(prefix string) (token string, hash string, displayPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	_, err = rand.Read(randomBytes)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	// Encode to base64 (URL-safe)
	randomPart := base64.RawURLEncoding.EncodeToString(randomBytes)

	// Construct full token: prefix_randomPart
	fullToken := fmt.Sprintf("%s_%s", prefix, randomPart)

	// Hash the full token with bcrypt
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullToken), BcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash token: %w", err)
	}

	displayPrefixStr := fullToken
	if len(fullToken) > DisplayPrefixLength {
		displayPrefixStr = fullToken[:DisplayPrefixLength]
	}

	return fullToken, string(hashBytes), displayPrefixStr, nil
}

// ValidateToken checks if a presented token matches the stored hash.
// bcrypt.CompareHashAndPassword is constant-time with respect to the presented
// value, so this comparison does not leak timing information.
func ValidateToken(providedToken, storedHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedToken))
	return err == nil
}

// ExtractTokenFromHeader extracts the API token from an Authorization header
// Expected format: "Bearer fw_abc123xyz..."
func ExtractTokenFromHeader(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)

	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}

// DisplayPrefix returns the candidate-lookup prefix for a presented token.
func DisplayPrefix(token string) string {
	if len(token) > DisplayPrefixLength {
		return token[:DisplayPrefixLength]
	}
	return token
}
