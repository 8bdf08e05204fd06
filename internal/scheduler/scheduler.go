package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/good-yellow-bee/pulsewatch/internal/metrics"
	"github.com/good-yellow-bee/pulsewatch/internal/storage"
)

// Scheduler enqueues one evaluation task per enabled rule every tick.
type Scheduler struct {
	rules    storage.RuleRepository
	queue    TaskQueue
	interval time.Duration
	now      func() time.Time
}

// NewScheduler creates a scheduler. A non-positive interval defaults to
// one minute.
func NewScheduler(rules storage.RuleRepository, queue TaskQueue, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		rules:    rules,
		queue:    queue,
		interval: interval,
		now:      time.Now,
	}
}

// Interval returns the tick interval, which is also the evaluation cadence.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Run ticks until ctx is cancelled. Enqueue failures are logged, never
// fatal: a missed cycle heals on the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("scheduler: ticking every %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("scheduler: stopping")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick enqueues an evaluation task for every enabled rule.
func (s *Scheduler) Tick(ctx context.Context) {
	rules, err := s.rules.ListEnabled(ctx)
	if err != nil {
		log.Printf("scheduler: list enabled rules: %v", err)
		return
	}

	enqueued := 0
	for _, rule := range rules {
		task := EvaluationTask{RuleID: rule.ID, EnqueuedAt: s.now()}
		if err := s.queue.Enqueue(ctx, task); err != nil {
			log.Printf("scheduler: enqueue rule %s: %v", rule.ID, err)
			continue
		}
		metrics.EvaluationTasksEnqueued.Inc()
		enqueued++
	}
	if enqueued > 0 {
		log.Printf("scheduler: enqueued %d evaluation tasks", enqueued)
	}
}
