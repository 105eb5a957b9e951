package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore keeps users in a SQLite database opened by sqlitedb.Open.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on db.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func scanSQLiteUser(scan func(dest ...any) error) (*User, error) {
	u := &User{}
	var created int64
	err := scan(&u.ID, &u.Name, &u.Email, &u.APIKeyHash, &u.APIKeyPrefix, &u.RateLimit, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = time.Unix(0, created).UTC()
	return u, nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.APIKeyHash, u.APIKeyPrefix, u.RateLimit, u.CreatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetByID implements Store.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := scanSQLiteUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id).Scan)
	if err != nil {
		return nil, fmt.Errorf("getting user by id: %w", err)
	}
	return u, nil
}

// GetByKeyHash implements Store.
func (s *SQLiteStore) GetByKeyHash(ctx context.Context, hash string) (*User, error) {
	u, err := scanSQLiteUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE api_key_hash = ?`, hash).Scan)
	if err != nil {
		return nil, fmt.Errorf("getting user by key hash: %w", err)
	}
	return u, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanSQLiteUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
