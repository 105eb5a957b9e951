package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alecgard/jeton/internal/cursor"
)

// SQLiteStore keeps accounts in a SQLite database opened by sqlitedb.Open.
// That database begins every transaction with BEGIN IMMEDIATE, so WithAccount
// holds the write lock from its first read. The handle has a single
// connection, so units for different users run one at a time.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on db.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenAccount implements Store.
func (s *SQLiteStore) OpenAccount(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, balance, updated_at) VALUES (?, 0, ?) ON CONFLICT (user_id) DO NOTHING`,
		userID, time.Now().UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return ErrAccountNotFound
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountExists
	}
	return nil
}

// Balance implements Store.
func (s *SQLiteStore) Balance(ctx context.Context, userID string) (int64, error) {
	var bal int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = ?`, userID).Scan(&bal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("getting balance: %w", err)
	}
	return bal, nil
}

// WithAccount implements Store.
func (s *SQLiteStore) WithAccount(ctx context.Context, userID string, fn func(AccountTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var bal int64
	err = tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = ?`, userID).Scan(&bal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("reading account: %w", err)
	}

	if err := fn(&sqliteAccountTx{tx: tx, userID: userID, balance: bal}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type sqliteAccountTx struct {
	tx      *sql.Tx
	userID  string
	balance int64
}

func (a *sqliteAccountTx) GetBalance(context.Context) (int64, error) { return a.balance, nil }

func (a *sqliteAccountTx) SetBalance(ctx context.Context, balance int64) error {
	_, err := a.tx.ExecContext(ctx,
		`UPDATE accounts SET balance = ?, updated_at = ? WHERE user_id = ?`,
		balance, time.Now().UnixNano(), a.userID,
	)
	if err != nil {
		return fmt.Errorf("updating balance: %w", err)
	}
	a.balance = balance
	return nil
}

func (a *sqliteAccountTx) InsertTransaction(ctx context.Context, t *Transaction) error {
	_, err := a.tx.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, type, amount, balance_after, description, function_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, string(t.Type), t.Amount, t.BalanceAfter, t.Description, t.FunctionName, t.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}
	return nil
}

// ListTransactions implements Store.
func (s *SQLiteStore) ListTransactions(ctx context.Context, q TransactionQuery) ([]*Transaction, string, error) {
	limit := cursor.Limit(q.Limit)

	conditions := []string{"user_id = ?"}
	args := []any{q.UserID}
	if q.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(q.Type))
	}
	if !q.From.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, q.From.UnixNano())
	}
	if !q.To.IsZero() {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, q.To.UnixNano())
	}
	if q.Cursor != "" {
		ts, id, err := cursor.Decode(q.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		conditions = append(conditions, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, ts.UnixNano(), ts.UnixNano(), id)
	}

	query := `SELECT id, user_id, type, amount, balance_after, description, function_name, created_at
	FROM transactions WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		var t Transaction
		var typ string
		var created int64
		if err := rows.Scan(&t.ID, &t.UserID, &typ, &t.Amount, &t.BalanceAfter,
			&t.Description, &t.FunctionName, &created); err != nil {
			return nil, "", fmt.Errorf("scanning transaction row: %w", err)
		}
		t.Type = TxType(typ)
		t.CreatedAt = time.Unix(0, created).UTC()
		txns = append(txns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating transaction rows: %w", err)
	}

	var next string
	if len(txns) > limit {
		last := txns[limit-1]
		next = cursor.Encode(last.CreatedAt, last.ID)
		txns = txns[:limit]
	}
	return txns, next, nil
}

// SumByType implements Store.
func (s *SQLiteStore) SumByType(ctx context.Context, userID string, from, to time.Time) (map[TxType]int64, error) {
	query := `SELECT type, COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = ?`
	args := []any{userID}
	if !from.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, from.UnixNano())
	}
	if !to.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, to.UnixNano())
	}
	query += ` GROUP BY type`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summing transactions: %w", err)
	}
	defer rows.Close()

	out := make(map[TxType]int64)
	for rows.Next() {
		var typ string
		var sum int64
		if err := rows.Scan(&typ, &sum); err != nil {
			return nil, fmt.Errorf("scanning transaction sum: %w", err)
		}
		out[TxType(typ)] = sum
	}
	return out, rows.Err()
}
