package user

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("user already exists")
	ErrInvalid   = errors.New("invalid user")
)

// User is an API-key holder with a points account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	APIKeyHash   string    `json:"-"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	RateLimit    int       `json:"rate_limit"` // requests per minute, 0 uses the server default
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUserInput holds the fields required to register a new user.
type CreateUserInput struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	RateLimit int    `json:"rate_limit"`
}

// Store persists users. Create expects ID and CreatedAt to be set.
type Store interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByKeyHash(ctx context.Context, hash string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Delete(ctx context.Context, id string) error
}
