package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alecgard/jeton/internal/crypto"
	"github.com/alecgard/jeton/internal/cursor"
)

// SQLiteStore keeps usage records in a SQLite database opened by
// sqlitedb.Open.
type SQLiteStore struct {
	db     *sql.DB
	cipher *crypto.Cipher
}

// NewSQLiteStore creates a store on db. cipher may be nil.
func NewSQLiteStore(db *sql.DB, cipher *crypto.Cipher) *SQLiteStore {
	return &SQLiteStore{db: db, cipher: cipher}
}

// InsertUsageRecord implements Writer.
func (s *SQLiteStore) InsertUsageRecord(ctx context.Context, rec *UsageRecord) error {
	return s.InsertUsageRecords(ctx, []*UsageRecord{rec})
}

// InsertUsageRecords implements BatchInserter. The batch is written in one
// transaction.
func (s *SQLiteStore) InsertUsageRecords(ctx context.Context, recs []*UsageRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ai_usage
		(id, user_id, function_name, input_data, output_data, points_consumed,
		 execution_time_ms, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		input, output, err := sealPayload(s.cipher, rec)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.UserID, rec.FunctionName, input, output, rec.PointsConsumed,
			rec.ExecutionTimeMs, string(rec.Status), rec.ErrorMessage, rec.CreatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("inserting usage record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing usage records: %w", err)
	}
	return nil
}

// ListUsage implements Reader.
func (s *SQLiteStore) ListUsage(ctx context.Context, q UsageQuery) ([]*UsageRecord, string, error) {
	limit := cursor.Limit(q.Limit)

	conditions := []string{"user_id = ?"}
	args := []any{q.UserID}
	if q.Function != "" {
		conditions = append(conditions, "function_name = ?")
		args = append(args, q.Function)
	}
	if q.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(q.Status))
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

	query := `SELECT id, user_id, function_name, input_data, output_data, points_consumed,
		execution_time_ms, status, error_message, created_at
	FROM ai_usage WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing usage: %w", err)
	}
	defer rows.Close()

	var recs []*UsageRecord
	for rows.Next() {
		var rec UsageRecord
		var status string
		var output, errMsg sql.NullString
		var created int64
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.FunctionName, &rec.InputData, &output,
			&rec.PointsConsumed, &rec.ExecutionTimeMs, &status, &errMsg, &created); err != nil {
			return nil, "", fmt.Errorf("scanning usage row: %w", err)
		}
		rec.Status = Status(status)
		rec.CreatedAt = time.Unix(0, created).UTC()
		if output.Valid {
			rec.OutputData = &output.String
		}
		if errMsg.Valid {
			rec.ErrorMessage = &errMsg.String
		}
		if err := openPayload(s.cipher, &rec); err != nil {
			return nil, "", err
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating usage rows: %w", err)
	}

	var next string
	if len(recs) > limit {
		last := recs[limit-1]
		next = cursor.Encode(last.CreatedAt, last.ID)
		recs = recs[:limit]
	}
	return recs, next, nil
}

// Stats implements Reader.
func (s *SQLiteStore) Stats(ctx context.Context, userID string) ([]FunctionStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT function_name, COUNT(*), COALESCE(SUM(points_consumed), 0)
		 FROM ai_usage
		 WHERE user_id = ?
		 GROUP BY function_name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage stats: %w", err)
	}
	defer rows.Close()

	var out []FunctionStats
	for rows.Next() {
		var st FunctionStats
		if err := rows.Scan(&st.FunctionName, &st.UsageCount, &st.TotalPoints); err != nil {
			return nil, fmt.Errorf("scanning usage stats: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortStats(out)
	return out, nil
}

// PointsConsumed implements Reader.
func (s *SQLiteStore) PointsConsumed(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(points_consumed), 0) FROM ai_usage WHERE user_id = ?`
	args := []any{userID}
	if !from.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, from.UnixNano())
	}
	if !to.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, to.UnixNano())
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("summing points consumed: %w", err)
	}
	return total, nil
}
