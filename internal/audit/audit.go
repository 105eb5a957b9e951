// Package audit records one usage record per invocation attempt. Recording
// is best-effort: a failed write is logged and counted, never returned.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// writeTimeout bounds a single synchronous audit write.
const writeTimeout = 5 * time.Second

// MetricsRecorder is an optional interface for recording audit metrics.
type MetricsRecorder interface {
	AddAuditWriteFailures(n int)
	SetAuditBufferSize(n int)
}

// Entry is the input to Record.
type Entry struct {
	UserID          string
	Function        string
	Input           string
	Output          *string
	PointsConsumed  int64
	ExecutionTimeMs int64
	Status          Status
	ErrorMessage    string
}

// Log writes usage records to a Writer.
type Log struct {
	writer  Writer
	logger  *slog.Logger
	metrics MetricsRecorder
	now     func() time.Time
	newID   func() string
}

// New creates a Log. A nil logger uses slog.Default().
func New(w Writer, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		writer: w,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return ulid.Make().String() },
	}
}

// SetMetrics sets the optional metrics recorder.
func (l *Log) SetMetrics(m MetricsRecorder) {
	l.metrics = m
}

// Record appends a usage record for e. Input and output are truncated to
// MaxInputChars and MaxOutputChars. The write survives cancellation of ctx
// and any failure, including a panic in the writer, is logged and dropped.
func (l *Log) Record(ctx context.Context, e Entry) {
	rec := &UsageRecord{
		ID:              l.newID(),
		UserID:          e.UserID,
		FunctionName:    e.Function,
		InputData:       Truncate(e.Input, MaxInputChars),
		PointsConsumed:  e.PointsConsumed,
		ExecutionTimeMs: e.ExecutionTimeMs,
		Status:          e.Status,
		CreatedAt:       l.now(),
	}
	if e.Output != nil {
		out := Truncate(*e.Output, MaxOutputChars)
		rec.OutputData = &out
	}
	if e.ErrorMessage != "" {
		msg := e.ErrorMessage
		rec.ErrorMessage = &msg
	}

	if err := l.write(ctx, rec); err != nil {
		if l.metrics != nil {
			l.metrics.AddAuditWriteFailures(1)
		}
		l.logger.Error("failed to record usage",
			"user_id", rec.UserID, "function", rec.FunctionName, "status", rec.Status, "error", err)
		return
	}
	l.logger.Info("usage recorded",
		"user_id", rec.UserID, "function", rec.FunctionName, "status", rec.Status,
		"execution_time_ms", rec.ExecutionTimeMs)
}

func (l *Log) write(ctx context.Context, rec *UsageRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic writing usage record: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	return l.writer.InsertUsageRecord(ctx, rec)
}

// RecordSuccess records a SUCCESS outcome.
func (l *Log) RecordSuccess(ctx context.Context, userID, function, input, output string, points, elapsedMs int64) {
	l.Record(ctx, Entry{
		UserID:          userID,
		Function:        function,
		Input:           input,
		Output:          &output,
		PointsConsumed:  points,
		ExecutionTimeMs: elapsedMs,
		Status:          StatusSuccess,
	})
}

// RecordFailure records a FAILED outcome with the error message captured.
func (l *Log) RecordFailure(ctx context.Context, userID, function, input string, points, elapsedMs int64, errMsg string) {
	l.Record(ctx, Entry{
		UserID:          userID,
		Function:        function,
		Input:           input,
		PointsConsumed:  points,
		ExecutionTimeMs: elapsedMs,
		Status:          StatusFailed,
		ErrorMessage:    errMsg,
	})
}

// RecordProcessing records an in-flight attempt with zero execution time.
func (l *Log) RecordProcessing(ctx context.Context, userID, function, input string, points int64) {
	l.Record(ctx, Entry{
		UserID:         userID,
		Function:       function,
		Input:          input,
		PointsConsumed: points,
		Status:         StatusProcessing,
	})
}

// Truncate shortens s to at most max characters, ending in "..." when cut.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}
