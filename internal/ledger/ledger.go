// Package ledger owns every points balance mutation. Each mutation updates
// the balance and appends exactly one Transaction in the same atomic unit.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrInsufficientPoints matches any *InsufficientPointsError.
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidType        = errors.New("invalid transaction type")
)

// InsufficientPointsError reports a balance below the required amount.
type InsufficientPointsError struct {
	Required int64
	Current  int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: required %d, current %d", e.Required, e.Current)
}

func (e *InsufficientPointsError) Is(target error) bool {
	return target == ErrInsufficientPoints
}

// MetricsRecorder is an optional interface for recording ledger metrics.
type MetricsRecorder interface {
	AddPointsDeducted(function string, n int64)
	AddPointsCredited(txType string, n int64)
	IncInsufficientPoints(function string)
}

// Ledger applies balance mutations through a Store.
type Ledger struct {
	store   Store
	logger  *slog.Logger
	metrics MetricsRecorder
	now     func() time.Time
	newID   func() string
}

// New creates a Ledger. A nil logger uses slog.Default().
func New(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return ulid.Make().String() },
	}
}

// SetMetrics sets the optional metrics recorder.
func (l *Ledger) SetMetrics(m MetricsRecorder) {
	l.metrics = m
}

// OpenAccount creates an empty account for userID.
func (l *Ledger) OpenAccount(ctx context.Context, userID string) error {
	if err := l.store.OpenAccount(ctx, userID); err != nil {
		return fmt.Errorf("opening account: %w", err)
	}
	return nil
}

// Balance returns the committed balance of userID.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	return l.store.Balance(ctx, userID)
}

// CheckSufficient fails with *InsufficientPointsError when the balance is
// below required. It is advisory only; Deduct re-checks under the lock.
func (l *Ledger) CheckSufficient(ctx context.Context, userID string, required int64) error {
	current, err := l.store.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if current < required {
		return &InsufficientPointsError{Required: required, Current: current}
	}
	return nil
}

// Deduct removes amount points from userID and records a CONSUME
// transaction, returning the new balance. The balance read, sufficiency
// check, update and insert happen in one atomic unit. A zero amount still
// records a zero-amount CONSUME.
func (l *Ledger) Deduct(ctx context.Context, userID string, amount int64, reason, function string) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: deduct %d", ErrInvalidAmount, amount)
	}

	var newBalance int64
	err := l.store.WithAccount(ctx, userID, func(acct AccountTx) error {
		current, err := acct.GetBalance(ctx)
		if err != nil {
			return err
		}
		if current < amount {
			return &InsufficientPointsError{Required: amount, Current: current}
		}
		newBalance = current - amount
		if err := acct.SetBalance(ctx, newBalance); err != nil {
			return err
		}
		return acct.InsertTransaction(ctx, &Transaction{
			ID:           l.newID(),
			UserID:       userID,
			Type:         Consume,
			Amount:       -amount,
			BalanceAfter: newBalance,
			Description:  reason,
			FunctionName: function,
			CreatedAt:    l.now(),
		})
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientPoints) {
			if l.metrics != nil {
				l.metrics.IncInsufficientPoints(function)
			}
			return 0, err
		}
		return 0, fmt.Errorf("deducting points: %w", err)
	}

	if l.metrics != nil {
		l.metrics.AddPointsDeducted(function, amount)
	}
	l.logger.Info("points deducted", "user_id", userID, "function", function, "amount", amount, "balance", newBalance)
	return newBalance, nil
}

// Credit adds amount points to userID and records a transaction of the
// given type, returning the new balance. CONSUME is not a valid credit type.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, reason string, txType TxType) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: credit %d", ErrInvalidAmount, amount)
	}
	if !txType.Valid() || txType == Consume {
		return 0, fmt.Errorf("%w: %q", ErrInvalidType, txType)
	}

	var newBalance int64
	err := l.store.WithAccount(ctx, userID, func(acct AccountTx) error {
		current, err := acct.GetBalance(ctx)
		if err != nil {
			return err
		}
		if amount > math.MaxInt64-current {
			return fmt.Errorf("%w: credit %d overflows balance %d", ErrInvalidAmount, amount, current)
		}
		newBalance = current + amount
		if err := acct.SetBalance(ctx, newBalance); err != nil {
			return err
		}
		return acct.InsertTransaction(ctx, &Transaction{
			ID:           l.newID(),
			UserID:       userID,
			Type:         txType,
			Amount:       amount,
			BalanceAfter: newBalance,
			Description:  reason,
			CreatedAt:    l.now(),
		})
	})
	if err != nil {
		return 0, fmt.Errorf("crediting points: %w", err)
	}

	if l.metrics != nil {
		l.metrics.AddPointsCredited(string(txType), amount)
	}
	l.logger.Info("points credited", "user_id", userID, "type", txType, "amount", amount, "balance", newBalance)
	return newBalance, nil
}

// History returns a page of userID's transactions, newest first, and the
// cursor for the next page.
func (l *Ledger) History(ctx context.Context, q TransactionQuery) ([]*Transaction, string, error) {
	if q.Type != "" && !q.Type.Valid() {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidType, q.Type)
	}
	return l.store.ListTransactions(ctx, q)
}

// Totals sums transaction amounts per type for userID within [from, to].
// Zero times leave that side unbounded.
func (l *Ledger) Totals(ctx context.Context, userID string, from, to time.Time) (map[TxType]int64, error) {
	return l.store.SumByType(ctx, userID, from, to)
}
