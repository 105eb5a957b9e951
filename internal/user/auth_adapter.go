package user

import (
	"context"

	"github.com/alecgard/jeton/internal/auth"
)

// AuthAdapter adapts a user Store to the auth.AccountLookup interface.
type AuthAdapter struct {
	store Store
}

// NewAuthAdapter creates a new AuthAdapter wrapping the given user store.
func NewAuthAdapter(store Store) *AuthAdapter {
	return &AuthAdapter{store: store}
}

// GetByKeyHash looks up a user by API key hash and returns it as an auth.Account.
func (a *AuthAdapter) GetByKeyHash(ctx context.Context, hash string) (*auth.Account, error) {
	u, err := a.store.GetByKeyHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return &auth.Account{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		RateLimit: u.RateLimit,
	}, nil
}
