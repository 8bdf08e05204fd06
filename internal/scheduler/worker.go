package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/good-yellow-bee/pulsewatch/internal/alerting"
	"github.com/good-yellow-bee/pulsewatch/internal/metrics"
)

// RuleEvaluator runs one evaluation cycle for a rule.
type RuleEvaluator interface {
	EvaluateRule(ctx context.Context, ruleID string) error
}

// WorkerPool consumes evaluation tasks. A failing task is retried up to
// MaxAttempts times, then moved to the dead letter stream. Tasks for
// deleted rules go straight to the dead letter stream: retrying them can
// never succeed.
type WorkerPool struct {
	queue     TaskQueue
	evaluator RuleEvaluator

	Workers     int
	BatchSize   int
	MaxAttempts int
	TaskTimeout time.Duration
}

// NewWorkerPool creates a pool with defaults: 4 workers, batches of 10,
// 3 attempts, 30s per task.
func NewWorkerPool(queue TaskQueue, evaluator RuleEvaluator) *WorkerPool {
	return &WorkerPool{
		queue:       queue,
		evaluator:   evaluator,
		Workers:     4,
		BatchSize:   10,
		MaxAttempts: 3,
		TaskTimeout: 30 * time.Second,
	}
}

// Run starts the workers and blocks until ctx is cancelled and all
// workers have drained.
func (p *WorkerPool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.Workers; i++ {
		wg.Add(1)
		consumer := fmt.Sprintf("worker-%d", i)
		go func() {
			defer wg.Done()
			p.consume(ctx, consumer)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (p *WorkerPool) consume(ctx context.Context, consumer string) {
	for {
		if ctx.Err() != nil {
			return
		}
		tasks, err := p.queue.ReadBatch(ctx, consumer, p.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("worker %s: read batch: %v", consumer, err)
			time.Sleep(time.Second)
			continue
		}
		for _, task := range tasks {
			p.process(ctx, consumer, task)
		}
	}
}

// process runs one task and decides its fate. The stream entry is always
// acked: retries are explicit re-enqueues with an incremented attempt
// count, so a crashed worker leaves at most one pending delivery.
func (p *WorkerPool) process(ctx context.Context, consumer string, task EvaluationTask) {
	start := time.Now()
	err := p.evaluate(ctx, task)
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.EvaluationsTotal.WithLabelValues("ok").Inc()
		p.ack(ctx, task)
		return
	}
	metrics.EvaluationsTotal.WithLabelValues("error").Inc()

	if errors.Is(err, alerting.ErrRuleNotFound) {
		log.Printf("worker %s: rule %s gone, dead lettering: %v", consumer, task.RuleID, err)
		p.deadLetter(ctx, task, err)
		return
	}

	task.Attempts++
	if task.Attempts >= p.MaxAttempts {
		log.Printf("worker %s: rule %s failed %d times, dead lettering: %v",
			consumer, task.RuleID, task.Attempts, err)
		p.deadLetter(ctx, task, err)
		return
	}

	log.Printf("worker %s: rule %s attempt %d failed, requeueing: %v",
		consumer, task.RuleID, task.Attempts, err)
	requeued := task
	requeued.MessageID = ""
	if err := p.queue.Enqueue(ctx, requeued); err != nil {
		log.Printf("worker %s: requeue rule %s: %v", consumer, task.RuleID, err)
	}
	p.ack(ctx, task)
}

func (p *WorkerPool) evaluate(ctx context.Context, task EvaluationTask) error {
	taskCtx := ctx
	if p.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, p.TaskTimeout)
		defer cancel()
	}
	return p.evaluator.EvaluateRule(taskCtx, task.RuleID)
}

func (p *WorkerPool) deadLetter(ctx context.Context, task EvaluationTask, cause error) {
	if err := p.queue.MoveToDeadLetter(ctx, task, cause.Error()); err != nil {
		log.Printf("worker: dead letter rule %s: %v", task.RuleID, err)
	}
	p.ack(ctx, task)
}

func (p *WorkerPool) ack(ctx context.Context, task EvaluationTask) {
	if task.MessageID == "" {
		return
	}
	if err := p.queue.Ack(ctx, task.MessageID); err != nil {
		log.Printf("worker: ack %s: %v", task.MessageID, err)
	}
}
