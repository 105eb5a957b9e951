package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Collector buffers usage records in memory and periodically flushes them to
// the store in batches. It implements Writer, so a Log can write through it.
// It is safe for concurrent use.
//
// A failed flush puts the batch back at the front of the buffer; the buffer
// is capped at maxPending records, beyond which the oldest are dropped.
type Collector struct {
	store         BatchInserter
	logger        *slog.Logger
	metrics       MetricsRecorder
	buffer        []*UsageRecord
	mu            sync.Mutex
	flushMu       sync.Mutex
	batchSize     int
	maxPending    int
	flushInterval time.Duration
	done          chan struct{}
	stopped       chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a new Collector that flushes to the given store when the
// buffer reaches batchSize or every flushInterval, whichever comes first.
func NewCollector(store BatchInserter, batchSize int, flushInterval time.Duration, logger *slog.Logger) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		store:         store,
		logger:        logger,
		buffer:        make([]*UsageRecord, 0, batchSize),
		batchSize:     batchSize,
		maxPending:    batchSize * 10,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// SetMetrics sets the optional metrics recorder.
func (c *Collector) SetMetrics(m MetricsRecorder) {
	c.metrics = m
}

// Start flushes buffered records on a timer. It blocks until Stop is called
// or the context is cancelled, and performs a final flush before returning.
func (c *Collector) Start(ctx context.Context) {
	defer close(c.stopped)

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-ctx.Done():
			c.flush()
			return
		case <-c.done:
			c.flush()
			return
		}
	}
}

// InsertUsageRecord implements Writer by buffering rec. It never fails;
// write failures surface at flush time.
func (c *Collector) InsertUsageRecord(_ context.Context, rec *UsageRecord) error {
	c.Record(rec)
	return nil
}

// Record adds a record to the buffer. If the buffer reaches batchSize,
// a flush is triggered immediately.
func (c *Collector) Record(rec *UsageRecord) {
	c.mu.Lock()
	c.buffer = append(c.buffer, rec)
	n := len(c.buffer)
	c.mu.Unlock()

	c.reportBuffer(n)
	if n >= c.batchSize {
		c.flush()
	}
}

// Pending returns the number of buffered records.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// flush drains all buffered records and writes them to the store. It logs
// errors rather than returning them so callers are not blocked.
func (c *Collector) flush() {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]*UsageRecord, 0, c.batchSize)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.store.InsertUsageRecords(ctx, batch); err != nil {
		if c.metrics != nil {
			c.metrics.AddAuditWriteFailures(len(batch))
		}
		c.logger.Error("failed to flush usage records", "count", len(batch), "error", err)
		c.requeue(batch)
		return
	}
	c.reportBuffer(c.Pending())
}

func (c *Collector) requeue(batch []*UsageRecord) {
	c.mu.Lock()
	merged := append(batch, c.buffer...)
	if over := len(merged) - c.maxPending; over > 0 {
		c.logger.Error("dropping usage records, buffer full", "count", over)
		merged = merged[over:]
	}
	c.buffer = merged
	n := len(c.buffer)
	c.mu.Unlock()
	c.reportBuffer(n)
}

func (c *Collector) reportBuffer(n int) {
	if c.metrics != nil {
		c.metrics.SetAuditBufferSize(n)
	}
}

// Stop signals the background goroutine to exit and waits for its final
// flush. It must only be called after Start.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	<-c.stopped
}
