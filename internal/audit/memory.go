package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alecgard/jeton/internal/cursor"
)

// MemoryStore keeps usage records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*UsageRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// InsertUsageRecord implements Writer.
func (s *MemoryStore) InsertUsageRecord(_ context.Context, rec *UsageRecord) error {
	cp := *rec
	s.mu.Lock()
	s.records = append(s.records, &cp)
	s.mu.Unlock()
	return nil
}

// InsertUsageRecords implements BatchInserter.
func (s *MemoryStore) InsertUsageRecords(ctx context.Context, recs []*UsageRecord) error {
	for _, rec := range recs {
		if err := s.InsertUsageRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// ListUsage implements Reader.
func (s *MemoryStore) ListUsage(_ context.Context, q UsageQuery) ([]*UsageRecord, string, error) {
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
	var matched []*UsageRecord
	for _, rec := range s.records {
		if !s.matches(rec, q) {
			continue
		}
		if q.Cursor != "" && !cursor.Before(rec.CreatedAt, rec.ID, curTS, curID) {
			continue
		}
		cp := *rec
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

func (s *MemoryStore) matches(rec *UsageRecord, q UsageQuery) bool {
	if rec.UserID != q.UserID {
		return false
	}
	if q.Function != "" && rec.FunctionName != q.Function {
		return false
	}
	if q.Status != "" && rec.Status != q.Status {
		return false
	}
	return inRange(rec.CreatedAt, q.From, q.To)
}

// Stats implements Reader.
func (s *MemoryStore) Stats(_ context.Context, userID string) ([]FunctionStats, error) {
	s.mu.RLock()
	byFn := make(map[string]*FunctionStats)
	for _, rec := range s.records {
		if rec.UserID != userID {
			continue
		}
		st, ok := byFn[rec.FunctionName]
		if !ok {
			st = &FunctionStats{FunctionName: rec.FunctionName}
			byFn[rec.FunctionName] = st
		}
		st.UsageCount++
		st.TotalPoints += rec.PointsConsumed
	}
	s.mu.RUnlock()

	out := make([]FunctionStats, 0, len(byFn))
	for _, st := range byFn {
		out = append(out, *st)
	}
	sortStats(out)
	return out, nil
}

// PointsConsumed implements Reader.
func (s *MemoryStore) PointsConsumed(_ context.Context, userID string, from, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, rec := range s.records {
		if rec.UserID == userID && inRange(rec.CreatedAt, from, to) {
			total += rec.PointsConsumed
		}
	}
	return total, nil
}

// sortStats orders by usage count descending, then function name.
func sortStats(stats []FunctionStats) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].UsageCount != stats[j].UsageCount {
			return stats[i].UsageCount > stats[j].UsageCount
		}
		return stats[i].FunctionName < stats[j].FunctionName
	})
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
