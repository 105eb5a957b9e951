package user

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alecgard/jeton/internal/auth"
	"github.com/alecgard/jeton/internal/ledger"
)

// Accounts is the part of the ledger that registration needs.
type Accounts interface {
	OpenAccount(ctx context.Context, userID string) error
	Credit(ctx context.Context, userID string, amount int64, reason string, txType ledger.TxType) (int64, error)
}

// Registration is a newly created user with its one-time plaintext API key.
type Registration struct {
	User    *User  `json:"user"`
	APIKey  string `json:"api_key"`
	Balance int64  `json:"balance"`
}

// Service registers users and opens their points accounts.
type Service struct {
	store       Store
	accounts    Accounts
	signupBonus int64
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a Service. signupBonus points are credited as a BONUS
// transaction to every new account; zero disables the bonus.
func NewService(store Store, accounts Accounts, signupBonus int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		accounts:    accounts,
		signupBonus: signupBonus,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Register validates in, creates the user with a fresh API key, opens the
// account and credits the signup bonus. The user is removed again if the
// account cannot be opened.
func (s *Service) Register(ctx context.Context, in CreateUserInput) (*Registration, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, fmt.Errorf("%w: email %q", ErrInvalid, in.Email)
	}
	if in.RateLimit < 0 {
		return nil, fmt.Errorf("%w: rate_limit must not be negative", ErrInvalid)
	}

	key, plaintext, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		APIKeyHash:   key.Hash,
		APIKeyPrefix: key.Prefix,
		RateLimit:    in.RateLimit,
		CreatedAt:    s.now(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}

	if err := s.accounts.OpenAccount(ctx, u.ID); err != nil {
		if delErr := s.store.Delete(ctx, u.ID); delErr != nil {
			s.logger.Error("removing user after failed account open", "user_id", u.ID, "error", delErr)
		}
		return nil, err
	}

	var balance int64
	if s.signupBonus > 0 {
		balance, err = s.accounts.Credit(ctx, u.ID, s.signupBonus, "signup bonus", ledger.Bonus)
		if err != nil {
			return nil, fmt.Errorf("crediting signup bonus: %w", err)
		}
	}

	s.logger.Info("user registered", "user_id", u.ID, "email", u.Email, "balance", balance)
	return &Registration{User: u, APIKey: plaintext, Balance: balance}, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.store.GetByID(ctx, id)
}

// List returns all users, newest first.
func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.store.List(ctx)
}
