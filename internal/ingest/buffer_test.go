package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/good-yellow-bee/pulsewatch/internal/metrics"
	"github.com/good-yellow-bee/pulsewatch/internal/models"
)

type captureSink struct {
	mu      sync.Mutex
	batches [][]models.MetricSample
	err     error
}

func (c *captureSink) flush(_ context.Context, batch []models.MetricSample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	copied := make([]models.MetricSample, len(batch))
	copy(copied, batch)
	c.batches = append(c.batches, copied)
	return nil
}

func (c *captureSink) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func sample(name string, value float64) models.MetricSample {
	return models.MetricSample{
		ProjectID: "p1",
		ServiceID: "s1",
		Name:      name,
		Value:     value,
		Timestamp: time.Now(),
	}
}

func TestBufferFlushesOnBatchSize(t *testing.T) {
	sink := &captureSink{}
	b := NewBuffer("test", BufferConfig{BatchSize: 3, FlushInterval: time.Hour}, sink.flush)
	t.Cleanup(func() { b.Stop() })

	b.Add(sample("a", 1), sample("b", 2))
	if sink.total() != 0 {
		t.Fatalf("flushed %d entries before batch size reached", sink.total())
	}

	b.Add(sample("c", 3))
	if sink.total() != 3 {
		t.Fatalf("flushed %d entries, want 3", sink.total())
	}
}

func TestBufferPendingTracksArrivalsDuringFlush(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var startOnce sync.Once
	flush := func(_ context.Context, _ []models.MetricSample) error {
		startOnce.Do(func() { close(started) })
		<-release
		return nil
	}
	b := NewBuffer("test", BufferConfig{BatchSize: 3, FlushInterval: time.Hour}, flush)
	t.Cleanup(func() { b.Stop() })

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Add(sample("a", 1), sample("b", 2), sample("c", 3))
	}()

	// An entry lands while the batch is being written out.
	<-started
	b.Add(sample("d", 4))
	close(release)
	<-done

	if got := testutil.ToFloat64(metrics.BufferPending); got != 1 {
		t.Errorf("pending gauge = %v, want the entry added during the flush", got)
	}
}

func TestBufferFlushesOnInterval(t *testing.T) {
	sink := &captureSink{}
	b := NewBuffer("test", BufferConfig{BatchSize: 1000, FlushInterval: 20 * time.Millisecond}, sink.flush)
	t.Cleanup(func() { b.Stop() })

	b.Add(sample("a", 1))

	deadline := time.After(2 * time.Second)
	for sink.total() != 1 {
		select {
		case <-deadline:
			t.Fatalf("interval flush did not happen, got %d entries", sink.total())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestBufferDropsOldestOnOverflow(t *testing.T) {
	sink := &captureSink{}
	b := NewBuffer("test", BufferConfig{BatchSize: 100, FlushInterval: time.Hour, MaxSize: 3}, sink.flush)
	t.Cleanup(func() { b.Stop() })

	b.Add(sample("a", 1), sample("b", 2), sample("c", 3))
	b.Add(sample("d", 4))

	if got := b.Dropped(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}

	if err := b.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(sink.batches) != 1 || len(sink.batches[0]) != 3 {
		t.Fatalf("batches = %+v", sink.batches)
	}
	// Oldest entry was shed; the newest survives.
	names := []string{sink.batches[0][0].Name, sink.batches[0][1].Name, sink.batches[0][2].Name}
	if names[0] != "b" || names[2] != "d" {
		t.Errorf("flushed names = %v, want [b c d]", names)
	}
}

func TestBufferRequeuesOnFlushError(t *testing.T) {
	sink := &captureSink{err: errors.New("storage down")}
	b := NewBuffer("test", BufferConfig{BatchSize: 100, FlushInterval: time.Hour}, sink.flush)

	b.Add(sample("a", 1))
	if err := b.Flush(); err == nil {
		t.Fatal("flush should fail")
	}

	// Recovery: the entry is still buffered and flushes on the next try.
	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	if err := b.Flush(); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if sink.total() != 1 {
		t.Errorf("flushed %d entries after recovery, want 1", sink.total())
	}
	b.Stop()
}

func TestBufferStopFlushesRemainder(t *testing.T) {
	sink := &captureSink{}
	b := NewBuffer("test", BufferConfig{BatchSize: 100, FlushInterval: time.Hour}, sink.flush)

	b.Add(sample("a", 1), sample("b", 2))
	if err := b.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sink.total() != 2 {
		t.Errorf("flushed %d entries on stop, want 2", sink.total())
	}

	// Adds after stop are ignored.
	b.Add(sample("c", 3))
	if sink.total() != 2 {
		t.Errorf("entries after stop = %d, want still 2", sink.total())
	}
}
