package user

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecgard/jeton/internal/auth"
	"github.com/alecgard/jeton/internal/ledger"
	"github.com/alecgard/jeton/internal/sqlitedb"
)

type backend struct {
	name   string
	stores func(t *testing.T) (Store, ledger.Store)
}

func backends() []backend {
	return []backend{
		{
			name: "memory",
			stores: func(t *testing.T) (Store, ledger.Store) {
				return NewMemoryStore(), ledger.NewMemoryStore(0)
			},
		},
		{
			name: "sqlite",
			stores: func(t *testing.T) (Store, ledger.Store) {
				db, err := sqlitedb.Open(context.Background(), filepath.Join(t.TempDir(), "jeton.db"))
				require.NoError(t, err)
				t.Cleanup(func() { _ = db.Close() })
				return NewSQLiteStore(db), ledger.NewSQLiteStore(db)
			},
		},
	}
}

func TestRegister(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			us, ls := b.stores(t)
			l := ledger.New(ls, nil)
			svc := NewService(us, l, 100, nil)

			reg, err := svc.Register(ctx, CreateUserInput{Name: "Ada", Email: "ada@example.com", RateLimit: 30})
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(reg.APIKey, auth.KeyPrefix))
			assert.Equal(t, int64(100), reg.Balance)
			assert.Equal(t, auth.HashKey(reg.APIKey), reg.User.APIKeyHash)

			bal, err := l.Balance(ctx, reg.User.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(100), bal)

			txns, _, err := l.History(ctx, ledger.TransactionQuery{UserID: reg.User.ID})
			require.NoError(t, err)
			require.Len(t, txns, 1)
			assert.Equal(t, ledger.Bonus, txns[0].Type)
			assert.Equal(t, int64(100), txns[0].BalanceAfter)

			got, err := us.GetByKeyHash(ctx, auth.HashKey(reg.APIKey))
			require.NoError(t, err)
			assert.Equal(t, reg.User.ID, got.ID)
			assert.Equal(t, 30, got.RateLimit)
			assert.WithinDuration(t, reg.User.CreatedAt, got.CreatedAt, 0)
		})
	}
}

func TestRegister_NoBonus(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(ledger.NewMemoryStore(0), nil)
	svc := NewService(NewMemoryStore(), l, 0, nil)

	reg, err := svc.Register(ctx, CreateUserInput{Name: "Bob", Email: "bob@example.com"})
	require.NoError(t, err)
	assert.Zero(t, reg.Balance)

	txns, _, err := l.History(ctx, ledger.TransactionQuery{UserID: reg.User.ID})
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestRegister_Validation(t *testing.T) {
	svc := NewService(NewMemoryStore(), ledger.New(ledger.NewMemoryStore(0), nil), 0, nil)

	tests := []struct {
		name string
		in   CreateUserInput
	}{
		{"missing name", CreateUserInput{Email: "a@example.com"}},
		{"bad email", CreateUserInput{Name: "A", Email: "not-an-email"}},
		{"negative rate limit", CreateUserInput{Name: "A", Email: "a@example.com", RateLimit: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			us, ls := b.stores(t)
			svc := NewService(us, ledger.New(ls, nil), 10, nil)

			_, err := svc.Register(context.Background(), CreateUserInput{Name: "A", Email: "dup@example.com"})
			require.NoError(t, err)
			_, err = svc.Register(context.Background(), CreateUserInput{Name: "B", Email: "dup@example.com"})
			assert.ErrorIs(t, err, ErrDuplicate)
		})
	}
}

type failingAccounts struct{}

func (failingAccounts) OpenAccount(context.Context, string) error {
	return errors.New("ledger down")
}

func (failingAccounts) Credit(context.Context, string, int64, string, ledger.TxType) (int64, error) {
	return 0, errors.New("ledger down")
}

func TestRegister_RollsBackUserWhenAccountFails(t *testing.T) {
	us := NewMemoryStore()
	svc := NewService(us, failingAccounts{}, 10, nil)

	_, err := svc.Register(context.Background(), CreateUserInput{Name: "A", Email: "a@example.com"})
	require.Error(t, err)

	users, err := us.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestStore_NotFound(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			us, _ := b.stores(t)
			_, err := us.GetByID(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = us.GetByKeyHash(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, us.Delete(context.Background(), "missing"), ErrNotFound)
		})
	}
}

func TestAuthAdapter(t *testing.T) {
	ctx := context.Background()
	us := NewMemoryStore()
	svc := NewService(us, ledger.New(ledger.NewMemoryStore(0), nil), 0, nil)
	reg, err := svc.Register(ctx, CreateUserInput{Name: "Ada", Email: "ada@example.com", RateLimit: 5})
	require.NoError(t, err)

	authSvc := auth.NewService(NewAuthAdapter(us))
	acct, err := authSvc.Authenticate(ctx, reg.APIKey)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, acct.ID)
	assert.Equal(t, 5, acct.RateLimit)

	_, err = authSvc.Authenticate(ctx, "jeton_bogus")
	assert.Error(t, err)
}
