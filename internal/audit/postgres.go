package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/jeton/internal/crypto"
	"github.com/alecgard/jeton/internal/cursor"
)

// PostgresStore keeps usage records in the ai_usage table. When a cipher is
// set, input and output payloads are encrypted at rest.
type PostgresStore struct {
	pool   *pgxpool.Pool
	cipher *crypto.Cipher
}

// NewPostgresStore creates a new store backed by the given connection pool.
// cipher may be nil.
func NewPostgresStore(pool *pgxpool.Pool, cipher *crypto.Cipher) *PostgresStore {
	return &PostgresStore{pool: pool, cipher: cipher}
}

// InsertUsageRecord implements Writer.
func (s *PostgresStore) InsertUsageRecord(ctx context.Context, rec *UsageRecord) error {
	return s.InsertUsageRecords(ctx, []*UsageRecord{rec})
}

// InsertUsageRecords writes recs in a single multi-row INSERT statement. It is
// a no-op when recs is empty.
func (s *PostgresStore) InsertUsageRecords(ctx context.Context, recs []*UsageRecord) error {
	if len(recs) == 0 {
		return nil
	}

	const cols = 10
	args := make([]any, 0, len(recs)*cols)
	rows := make([]string, 0, len(recs))

	for i, rec := range recs {
		input, output, err := sealPayload(s.cipher, rec)
		if err != nil {
			return err
		}
		base := i * cols
		rows = append(rows, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
			base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			rec.ID,
			rec.UserID,
			rec.FunctionName,
			input,
			output,
			rec.PointsConsumed,
			rec.ExecutionTimeMs,
			string(rec.Status),
			rec.ErrorMessage,
			rec.CreatedAt,
		)
	}

	query := `INSERT INTO ai_usage
		(id, user_id, function_name, input_data, output_data, points_consumed,
		 execution_time_ms, status, error_message, created_at)
		VALUES ` + strings.Join(rows, ", ")

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting usage records: %w", err)
	}
	return nil
}

// ListUsage implements Reader.
func (s *PostgresStore) ListUsage(ctx context.Context, q UsageQuery) ([]*UsageRecord, string, error) {
	limit := cursor.Limit(q.Limit)

	conditions := []string{"user_id = $1"}
	args := []any{q.UserID}
	if q.Function != "" {
		args = append(args, q.Function)
		conditions = append(conditions, "function_name = $"+strconv.Itoa(len(args)))
	}
	if q.Status != "" {
		args = append(args, string(q.Status))
		conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
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

	query := `SELECT id, user_id, function_name, input_data, output_data, points_consumed,
		execution_time_ms, status, error_message, created_at
	FROM ai_usage WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing usage: %w", err)
	}
	defer rows.Close()

	var recs []*UsageRecord
	for rows.Next() {
		var rec UsageRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.FunctionName, &rec.InputData, &rec.OutputData,
			&rec.PointsConsumed, &rec.ExecutionTimeMs, &status, &rec.ErrorMessage, &rec.CreatedAt); err != nil {
			return nil, "", fmt.Errorf("scanning usage row: %w", err)
		}
		rec.Status = Status(status)
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
func (s *PostgresStore) Stats(ctx context.Context, userID string) ([]FunctionStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT function_name, COUNT(*), COALESCE(SUM(points_consumed), 0)::BIGINT
		 FROM ai_usage
		 WHERE user_id = $1
		 GROUP BY function_name
		 ORDER BY COUNT(*) DESC, function_name`,
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
	return out, rows.Err()
}

// PointsConsumed implements Reader.
func (s *PostgresStore) PointsConsumed(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(points_consumed), 0)::BIGINT
		 FROM ai_usage
		 WHERE user_id = $1
		   AND ($2::timestamptz IS NULL OR created_at >= $2)
		   AND ($3::timestamptz IS NULL OR created_at <= $3)`,
		userID, nullTime(from), nullTime(to),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing points consumed: %w", err)
	}
	return total, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// sealPayload returns the stored forms of rec's input and output.
func sealPayload(c *crypto.Cipher, rec *UsageRecord) (string, *string, error) {
	input, err := c.Encrypt(rec.InputData)
	if err != nil {
		return "", nil, fmt.Errorf("encrypting input: %w", err)
	}
	output, err := c.EncryptPtr(rec.OutputData)
	if err != nil {
		return "", nil, fmt.Errorf("encrypting output: %w", err)
	}
	return input, output, nil
}

// openPayload decrypts rec's input and output in place.
func openPayload(c *crypto.Cipher, rec *UsageRecord) error {
	input, err := c.Decrypt(rec.InputData)
	if err != nil {
		return fmt.Errorf("decrypting input: %w", err)
	}
	output, err := c.DecryptPtr(rec.OutputData)
	if err != nil {
		return fmt.Errorf("decrypting output: %w", err)
	}
	rec.InputData, rec.OutputData = input, output
	return nil
}
