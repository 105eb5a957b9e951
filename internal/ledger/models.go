package ledger

import (
	"context"
	"time"
)

// TxType classifies a ledger mutation.
type TxType string

const (
	Recharge TxType = "RECHARGE"
	Consume  TxType = "CONSUME"
	Refund   TxType = "REFUND"
	Bonus    TxType = "BONUS"
)

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	switch t {
	case Recharge, Consume, Refund, Bonus:
		return true
	}
	return false
}

// Transaction is one immutable ledger entry. Amount is negative for CONSUME.
type Transaction struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Type         TxType    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Description  string    `json:"description"`
	FunctionName string    `json:"function_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TransactionQuery filters and paginates a user's transaction history.
type TransactionQuery struct {
	UserID string    `json:"user_id"`
	Type   TxType    `json:"type,omitempty"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	Cursor string    `json:"cursor,omitempty"`
	Limit  int       `json:"limit"`
}

// AccountTx is a single user's account inside one atomic unit. Everything
// written through it commits together or not at all.
type AccountTx interface {
	GetBalance(ctx context.Context) (int64, error)
	SetBalance(ctx context.Context, balance int64) error
	InsertTransaction(ctx context.Context, tx *Transaction) error
}

// Store is the account storage the ledger composes. WithAccount must
// serialize calls for the same user and must not block calls for other
// users.
type Store interface {
	OpenAccount(ctx context.Context, userID string) error
	Balance(ctx context.Context, userID string) (int64, error)
	WithAccount(ctx context.Context, userID string, fn func(AccountTx) error) error
	ListTransactions(ctx context.Context, q TransactionQuery) ([]*Transaction, string, error)
	SumByType(ctx context.Context, userID string, from, to time.Time) (map[TxType]int64, error)
}
