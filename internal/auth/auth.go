package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix starts every user API key.
const KeyPrefix = "jeton_"

// Account is the authenticated caller of the metered API.
type Account struct {
	ID        string
	Name      string
	Email     string
	RateLimit int
}

// APIKey holds the hashed key and a short prefix for identification.
type APIKey struct {
	Hash   string
	Prefix string // first 12 characters of the plaintext key
}

// AccountLookup is the interface for retrieving accounts by their key hash.
type AccountLookup interface {
	GetByKeyHash(ctx context.Context, hash string) (*Account, error)
}

// MetricsRecorder is an optional interface for recording auth outcomes.
type MetricsRecorder interface {
	IncAuthFailure(authType string)
	IncAuthSuccess(authType string)
}

// Service provides authentication operations backed by an account store.
type Service struct {
	store   AccountLookup
	metrics MetricsRecorder
}

// NewService creates a new authentication service.
func NewService(store AccountLookup) *Service {
	return &Service{store: store}
}

// SetMetrics sets the optional metrics recorder.
func (s *Service) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// Authenticate resolves a plaintext API key to its account.
func (s *Service) Authenticate(ctx context.Context, plaintext string) (*Account, error) {
	acct, err := s.store.GetByKeyHash(ctx, HashKey(plaintext))
	if err != nil || acct == nil {
		s.observe("user", false)
		return nil, errors.New("invalid api key")
	}
	s.observe("user", true)
	return acct, nil
}

func (s *Service) observe(authType string, ok bool) {
	if s.metrics == nil {
		return
	}
	if ok {
		s.metrics.IncAuthSuccess(authType)
	} else {
		s.metrics.IncAuthFailure(authType)
	}
}

// GenerateAPIKey creates a new API key with the "jeton_" prefix followed by
// 32 URL-safe random characters. It returns the APIKey struct (containing the
// hash and prefix) and the full plaintext key.
func GenerateAPIKey() (APIKey, string, error) {
	b := make([]byte, 24) // 24 bytes -> 32 base64url chars
	if _, err := rand.Read(b); err != nil {
		return APIKey{}, "", fmt.Errorf("generating random bytes: %w", err)
	}

	plaintext := KeyPrefix + base64.RawURLEncoding.EncodeToString(b)
	return APIKey{
		Hash:   HashKey(plaintext),
		Prefix: plaintext[:12],
	}, plaintext, nil
}

// HashKey returns the hex-encoded SHA-256 hash of the given plaintext key.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

// HashAdminKey returns the bcrypt hash stored in configuration for an admin key.
func HashAdminKey(plaintext string) (string, error) {
	if len(plaintext) < 16 {
		return "", errors.New("admin key must be at least 16 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing admin key: %w", err)
	}
	return string(hash), nil
}

// CheckAdminKey reports whether plaintext matches the bcrypt hash.
func CheckAdminKey(hash, plaintext string) bool {
	if hash == "" || plaintext == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
