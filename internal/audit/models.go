package audit

import (
	"context"
	"time"
)

// Status is the outcome of one invocation attempt.
type Status string

const (
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusProcessing Status = "PROCESSING"
)

// Truncation limits, in characters, for stored payloads.
const (
	MaxInputChars  = 1000
	MaxOutputChars = 2000
)

// UsageRecord is one immutable audit entry. OutputData and ErrorMessage are
// nil when absent.
type UsageRecord struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	FunctionName    string    `json:"function_name"`
	InputData       string    `json:"input_data"`
	OutputData      *string   `json:"output_data,omitempty"`
	PointsConsumed  int64     `json:"points_consumed"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	Status          Status    `json:"status"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// UsageQuery filters and paginates a user's usage history.
type UsageQuery struct {
	UserID   string    `json:"user_id"`
	Function string    `json:"function,omitempty"`
	Status   Status    `json:"status,omitempty"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Cursor   string    `json:"cursor,omitempty"`
	Limit    int       `json:"limit"`
}

// FunctionStats aggregates one user's usage of one function.
type FunctionStats struct {
	FunctionName string `json:"function_name"`
	UsageCount   int64  `json:"usage_count"`
	TotalPoints  int64  `json:"total_points"`
}

// Writer persists a single usage record.
type Writer interface {
	InsertUsageRecord(ctx context.Context, rec *UsageRecord) error
}

// BatchInserter persists many usage records at once. It is used by
// Collector and exists to allow testing without a real database.
type BatchInserter interface {
	InsertUsageRecords(ctx context.Context, recs []*UsageRecord) error
}

// Reader answers usage history queries.
type Reader interface {
	ListUsage(ctx context.Context, q UsageQuery) ([]*UsageRecord, string, error)
	Stats(ctx context.Context, userID string) ([]FunctionStats, error)
	PointsConsumed(ctx context.Context, userID string, from, to time.Time) (int64, error)
}

// Store is a full usage storage backend.
type Store interface {
	Writer
	BatchInserter
	Reader
}
