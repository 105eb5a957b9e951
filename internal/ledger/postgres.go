package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/jeton/internal/cursor"
)

// PostgresStore keeps accounts in Postgres. Per-user serialization is a
// SELECT ... FOR UPDATE row lock on the account held for the length of the
// transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenAccount implements Store.
func (s *PostgresStore) OpenAccount(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (user_id, balance) VALUES ($1, 0) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrAccountNotFound
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountExists
	}
	return nil
}

// Balance implements Store.
func (s *PostgresStore) Balance(ctx context.Context, userID string) (int64, error) {
	var bal int64
	err := s.pool.QueryRow(ctx, `SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&bal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("getting balance: %w", err)
	}
	return bal, nil
}

// WithAccount implements Store.
func (s *PostgresStore) WithAccount(ctx context.Context, userID string, fn func(AccountTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var bal int64
	err = tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&bal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("locking account: %w", err)
	}

	if err := fn(&pgAccountTx{tx: tx, userID: userID, balance: bal}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type pgAccountTx struct {
	tx      pgx.Tx
	userID  string
	balance int64
}

func (a *pgAccountTx) GetBalance(context.Context) (int64, error) { return a.balance, nil }

func (a *pgAccountTx) SetBalance(ctx context.Context, balance int64) error {
	_, err := a.tx.Exec(ctx,
		`UPDATE accounts SET balance = $2, updated_at = NOW() WHERE user_id = $1`,
		a.userID, balance,
	)
	if err != nil {
		return fmt.Errorf("updating balance: %w", err)
	}
	a.balance = balance
	return nil
}

func (a *pgAccountTx) InsertTransaction(ctx context.Context, t *Transaction) error {
	_, err := a.tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, type, amount, balance_after, description, function_name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.UserID, string(t.Type), t.Amount, t.BalanceAfter, t.Description, t.FunctionName, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}
	return nil
}

// ListTransactions implements Store.
func (s *PostgresStore) ListTransactions(ctx context.Context, q TransactionQuery) ([]*Transaction, string, error) {
	limit := cursor.Limit(q.Limit)

	conditions := []string{"user_id = $1"}
	args := []any{q.UserID}
	if q.Type != "" {
		args = append(args, string(q.Type))
		conditions = append(conditions, "type = $"+strconv.Itoa(len(args)))
	}
	if !q.From.IsZero() {
		args = append(args, q.From)
		conditions = append(conditions, "created_at >= $"+strconv.Itoa(len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		conditions = append(conditions, "created_at <= $"+strconv.Itoa(len(args)))
	}
	if q.Cursor != "" {
		ts, id, err := cursor.Decode(q.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		args = append(args, ts, id)
		conditions = append(conditions, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	query := `SELECT id, user_id, type, amount, balance_after, description, function_name, created_at
	FROM transactions WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		var t Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.UserID, &typ, &t.Amount, &t.BalanceAfter,
			&t.Description, &t.FunctionName, &t.CreatedAt); err != nil {
			return nil, "", fmt.Errorf("scanning transaction row: %w", err)
		}
		t.Type = TxType(typ)
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
func (s *PostgresStore) SumByType(ctx context.Context, userID string, from, to time.Time) (map[TxType]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT type, COALESCE(SUM(amount), 0)::BIGINT
		 FROM transactions
		 WHERE user_id = $1
		   AND ($2::timestamptz IS NULL OR created_at >= $2)
		   AND ($3::timestamptz IS NULL OR created_at <= $3)
		 GROUP BY type`,
		userID, nullTime(from), nullTime(to),
	)
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

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
