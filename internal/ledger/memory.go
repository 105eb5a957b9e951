package ledger

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/alecgard/jeton/internal/cursor"
)

// DefaultLockStripes is the stripe count used when none is configured.
const DefaultLockStripes = 64

// MemoryStore keeps accounts in process memory. Per-user serialization uses
// a fixed set of lock stripes keyed by a hash of the user ID; users on
// different stripes never contend.
type MemoryStore struct {
	stripes []sync.Mutex

	mu       sync.RWMutex
	accounts map[string]int64
	txns     map[string][]*Transaction
}

// NewMemoryStore creates a MemoryStore with n lock stripes.
func NewMemoryStore(n int) *MemoryStore {
	if n <= 0 {
		n = DefaultLockStripes
	}
	return &MemoryStore{
		stripes:  make([]sync.Mutex, n),
		accounts: make(map[string]int64),
		txns:     make(map[string][]*Transaction),
	}
}

func (s *MemoryStore) stripe(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.stripes[h.Sum32()%uint32(len(s.stripes))]
}

// OpenAccount implements Store.
func (s *MemoryStore) OpenAccount(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[userID]; ok {
		return ErrAccountExists
	}
	s.accounts[userID] = 0
	return nil
}

// Balance implements Store.
func (s *MemoryStore) Balance(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bal, ok := s.accounts[userID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return bal, nil
}

// WithAccount implements Store. Writes are staged and applied only when fn
// returns nil.
func (s *MemoryStore) WithAccount(ctx context.Context, userID string, fn func(AccountTx) error) error {
	lock := s.stripe(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	bal, ok := s.accounts[userID]
	s.mu.RUnlock()
	if !ok {
		return ErrAccountNotFound
	}

	acct := &memAccountTx{balance: bal}
	if err := fn(acct); err != nil {
		return err
	}

	s.mu.Lock()
	s.accounts[userID] = acct.balance
	s.txns[userID] = append(s.txns[userID], acct.pending...)
	s.mu.Unlock()
	return nil
}

type memAccountTx struct {
	balance int64
	pending []*Transaction
}

func (a *memAccountTx) GetBalance(context.Context) (int64, error) { return a.balance, nil }

func (a *memAccountTx) SetBalance(_ context.Context, balance int64) error {
	if balance < 0 {
		return fmt.Errorf("%w: negative balance %d", ErrInvalidAmount, balance)
	}
	a.balance = balance
	return nil
}

func (a *memAccountTx) InsertTransaction(_ context.Context, tx *Transaction) error {
	cp := *tx
	a.pending = append(a.pending, &cp)
	return nil
}

// ListTransactions implements Store.
func (s *MemoryStore) ListTransactions(_ context.Context, q TransactionQuery) ([]*Transaction, string, error) {
	limit := cursor.Limit(q.Limit)

	var curTS time.Time
	var curID string
	if q.Cursor != "" {
		var err error
		curTS, curID, err = cursor.Decode(q.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
	}

	s.mu.RLock()
	var matched []*Transaction
	for _, tx := range s.txns[q.UserID] {
		if q.Type != "" && tx.Type != q.Type {
			continue
		}
		if !inRange(tx.CreatedAt, q.From, q.To) {
			continue
		}
		if q.Cursor != "" && !cursor.Before(tx.CreatedAt, tx.ID, curTS, curID) {
			continue
		}
		cp := *tx
		matched = append(matched, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	var next string
	if len(matched) > limit {
		last := matched[limit-1]
		next = cursor.Encode(last.CreatedAt, last.ID)
		matched = matched[:limit]
	}
	return matched, next, nil
}

// SumByType implements Store.
func (s *MemoryStore) SumByType(_ context.Context, userID string, from, to time.Time) (map[TxType]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[TxType]int64)
	for _, tx := range s.txns[userID] {
		if inRange(tx.CreatedAt, from, to) {
			out[tx.Type] += tx.Amount
		}
	}
	return out, nil
}

func inRange(ts, from, to time.Time) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && ts.After(to) {
		return false
	}
	return true
}
