// Package ingest buffers incoming telemetry and writes it to storage in
// batches. A buffer flushes on size or interval, whichever comes first,
// and sheds oldest entries under backpressure.
package ingest

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/good-yellow-bee/pulsewatch/internal/metrics"
)

// FlushFunc writes one batch to storage.
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// BufferConfig holds buffer tuning.
type BufferConfig struct {
	// BatchSize is the entry count that triggers a flush.
	BatchSize int

	// FlushInterval is the time that triggers a flush.
	FlushInterval time.Duration

	// MaxSize caps the buffer. When reached, oldest entries are dropped.
	MaxSize int
}

// Buffer batches entries of one telemetry kind.
type Buffer[T any] struct {
	flushFn       FlushFunc[T]
	name          string
	batchSize     int
	flushInterval time.Duration
	maxSize       int

	mu      sync.Mutex
	buffer  []T
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped atomic.Bool
	dropped atomic.Int64
}

// NewBuffer creates a buffer and starts its flush loop. The name only
// appears in log lines.
func NewBuffer[T any](name string, config BufferConfig, flushFn FlushFunc[T]) *Buffer[T] {
	if config.BatchSize == 0 {
		config.BatchSize = 1000
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.MaxSize == 0 {
		config.MaxSize = 100000
	}

	b := &Buffer[T]{
		flushFn:       flushFn,
		name:          name,
		batchSize:     config.BatchSize,
		flushInterval: config.FlushInterval,
		maxSize:       config.MaxSize,
		buffer:        make([]T, 0, config.BatchSize),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	go b.flushLoop()
	return b
}

// Add appends entries to the buffer, dropping the oldest under overflow.
func (b *Buffer[T]) Add(entries ...T) error {
	if b.stopped.Load() || len(entries) == 0 {
		return nil
	}

	b.mu.Lock()
	newLen := len(b.buffer) + len(entries)
	if newLen > b.maxSize {
		toDrop := newLen - b.maxSize
		if toDrop >= len(b.buffer) {
			b.drop(int64(len(b.buffer)))
			b.buffer = b.buffer[:0]
			keep := b.maxSize
			if keep > len(entries) {
				keep = len(entries)
			}
			b.drop(int64(len(entries) - keep))
			entries = entries[len(entries)-keep:]
		} else {
			b.drop(int64(toDrop))
			b.buffer = b.buffer[toDrop:]
		}
		log.Printf("ingest: %s buffer overflow, dropped %d entries", b.name, toDrop)
	}
	b.buffer = append(b.buffer, entries...)
	pending := len(b.buffer)
	b.mu.Unlock()

	metrics.BufferPending.Set(float64(pending))
	if pending >= b.batchSize {
		return b.Flush()
	}
	return nil
}

// Flush writes out everything buffered. On failure the batch is put back
// at the front, still subject to the size cap.
func (b *Buffer[T]) Flush() error {
	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return nil
	}
	toFlush := b.buffer
	b.buffer = make([]T, 0, b.batchSize)
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.flushFn(ctx, toFlush); err != nil {
		metrics.BufferFlushErrors.Inc()
		b.mu.Lock()
		b.buffer = append(toFlush, b.buffer...)
		if len(b.buffer) > b.maxSize {
			excess := len(b.buffer) - b.maxSize
			b.drop(int64(excess))
			b.buffer = b.buffer[excess:]
		}
		pending := len(b.buffer)
		b.mu.Unlock()
		metrics.BufferPending.Set(float64(pending))
		return err
	}

	metrics.BufferFlushesTotal.Inc()
	metrics.BufferInsertedTotal.Add(float64(len(toFlush)))

	// Entries may have arrived while the flush ran unlocked.
	b.mu.Lock()
	pending := len(b.buffer)
	b.mu.Unlock()
	metrics.BufferPending.Set(float64(pending))
	return nil
}

// Dropped returns the number of entries shed under backpressure.
func (b *Buffer[T]) Dropped() int64 {
	return b.dropped.Load()
}

// Stop flushes remaining entries and stops the flush loop.
func (b *Buffer[T]) Stop() error {
	if !b.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

func (b *Buffer[T]) drop(n int64) {
	if n <= 0 {
		return
	}
	b.dropped.Add(n)
	metrics.BufferDroppedTotal.Add(float64(n))
}

func (b *Buffer[T]) flushLoop() {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				log.Printf("ingest: %s buffer flush: %v", b.name, err)
			}
		}
	}
}
