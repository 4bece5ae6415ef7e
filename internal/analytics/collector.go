package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/kafka"
)

// Publisher is implemented by *kafka.Producer.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// BatchCollector buffers search events and publishes them in batches,
// either when the buffer reaches the batch size or on every flush tick.
// Failed batches are re-queued; the buffer is capped at three batches and
// the oldest overflow is dropped.
type BatchCollector struct {
	publisher     Publisher
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	buffer  []kafka.Event
	dropped int

	inflight sync.WaitGroup
	done     chan struct{}
}

func NewBatchCollector(p Publisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		publisher:     p,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the flush loop. When ctx ends the remaining events are
// flushed once with a short deadline and Close returns.
func (bc *BatchCollector) Start(ctx context.Context) {
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				bc.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				bc.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	bc.logger.Info("analytics collector started",
		"batch_size", bc.batchSize,
		"flush_interval", bc.flushInterval,
	)
}

// Track buffers event keyed by its query. A full buffer triggers a flush
// in the background.
func (bc *BatchCollector) Track(event SearchEvent) {
	bc.mu.Lock()
	bc.buffer = append(bc.buffer, kafka.Event{Key: event.Query, Value: event})
	full := len(bc.buffer) >= bc.batchSize
	if full {
		bc.inflight.Add(1)
	}
	bc.mu.Unlock()

	if full {
		go func() {
			defer bc.inflight.Done()
			bc.flush(context.Background())
		}()
	}
}

// Close waits for the flush loop started by Start and any background
// flushes to exit.
func (bc *BatchCollector) Close() {
	<-bc.done
	bc.inflight.Wait()
}

func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

// Dropped is the number of events discarded on overflow.
func (bc *BatchCollector) Dropped() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.dropped
}

func (bc *BatchCollector) flush(ctx context.Context) {
	bc.mu.Lock()
	if len(bc.buffer) == 0 {
		bc.mu.Unlock()
		return
	}
	batch := bc.buffer
	bc.buffer = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()

	if err := bc.publisher.PublishBatch(ctx, batch); err != nil {
		bc.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		bc.requeue(batch)
		return
	}
	bc.logger.Debug("batch flushed", "events", len(batch))
}

func (bc *BatchCollector) requeue(batch []kafka.Event) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	merged := append(batch, bc.buffer...)
	limit := bc.batchSize * 3
	if over := len(merged) - limit; over > 0 {
		merged = merged[over:]
		bc.dropped += over
		bc.logger.Warn("analytics buffer overflow, oldest events dropped", "dropped", over)
	}
	bc.buffer = merged
}
