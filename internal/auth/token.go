package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// TokenSecretLen is the hex length of the token secret.
const TokenSecretLen = 48

var (
	// ErrInvalidTokenFormat indicates the token format is invalid.
	ErrInvalidTokenFormat = errors.New("invalid ingest token format")

	tokenFormatRegex = regexp.MustCompile(`^plt_[a-f0-9]{48}$`)
)

// GeneratedToken contains a newly generated ingest token.
type GeneratedToken struct {
	Plaintext string // shown once
	Hash      string // value for INGEST_TOKEN_HASH
}

// GenerateToken creates a new ingest token of the form plt_{secret}.
func GenerateToken() (*GeneratedToken, error) {
	secret := make([]byte, TokenSecretLen/2)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	plaintext := "plt_" + hex.EncodeToString(secret)

	hash, err := HashToken(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash token: %w", err)
	}
	return &GeneratedToken{Plaintext: plaintext, Hash: hash}, nil
}

// ValidateTokenFormat checks if the token matches the expected format.
func ValidateTokenFormat(token string) bool {
	return tokenFormatRegex.MatchString(token)
}

// Verifier checks presented tokens against one configured hash. Successful
// verifications are remembered by QuickHash so argon2 runs once per token.
type Verifier struct {
	hash     string
	verified sync.Map
}

// NewVerifier returns a Verifier for encodedHash.
func NewVerifier(encodedHash string) (*Verifier, error) {
	if err := CheckHash(encodedHash); err != nil {
		return nil, err
	}
	return &Verifier{hash: encodedHash}, nil
}

// Verify reports whether token is the configured ingest token.
func (v *Verifier) Verify(token string) bool {
	if !ValidateTokenFormat(token) {
		return false
	}

	key := QuickHash(token)
	if _, ok := v.verified.Load(key); ok {
		return true
	}

	ok, err := VerifyToken(token, v.hash)
	if err != nil || !ok {
		return false
	}
	v.verified.Store(key, struct{}{})
	return true
}
