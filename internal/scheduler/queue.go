// Package scheduler drives periodic rule evaluation through a Redis
// Streams work queue: a ticker enqueues one task per enabled rule, a
// worker pool consumes them, and repeatedly failing tasks land on a dead
// letter stream.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/good-yellow-bee/pulsewatch/internal/metrics"
)

// EvaluationTask is one unit of work: evaluate one rule now.
type EvaluationTask struct {
	RuleID     string    `json:"rule_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempts   int       `json:"attempts"`

	// MessageID is the stream entry ID, set when the task is read.
	MessageID string `json:"-"`
}

// TaskQueue is the queue surface the scheduler and workers use.
type TaskQueue interface {
	Enqueue(ctx context.Context, task EvaluationTask) error
	ReadBatch(ctx context.Context, consumer string, count int) ([]EvaluationTask, error)
	Ack(ctx context.Context, messageIDs ...string) error
	MoveToDeadLetter(ctx context.Context, task EvaluationTask, reason string) error
}

// Queue is a Redis Streams task queue with a consumer group and a dead
// letter stream.
type Queue struct {
	client    *redis.Client
	stream    string
	group     string
	dlqStream string
}

// NewQueue creates the queue and its consumer group. An already existing
// group is fine.
func NewQueue(ctx context.Context, client *redis.Client, stream, group, dlqStream string) (*Queue, error) {
	q := &Queue{
		client:    client,
		stream:    stream,
		group:     group,
		dlqStream: dlqStream,
	}
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroupError(err) {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return q, nil
}

// Enqueue appends a task to the stream.
func (q *Queue) Enqueue(ctx context.Context, task EvaluationTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{"payload": payload},
	}
	if err := q.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// ReadBatch reads up to count tasks for a consumer, blocking briefly when
// the stream is empty. Returns an empty slice on timeout.
func (q *Queue) ReadBatch(ctx context.Context, consumer string, count int) ([]EvaluationTask, error) {
	args := &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    int64(count),
		Block:    2 * time.Second,
	}
	streams, err := q.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read task batch: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}

	tasks := make([]EvaluationTask, 0, len(streams[0].Messages))
	for _, msg := range streams[0].Messages {
		task, err := taskFromMessage(msg)
		if err != nil {
			// Malformed entry: park it on the dead letter stream where it
			// stays inspectable, instead of redelivering forever.
			q.deadLetterMalformed(ctx, msg, err)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// taskFromMessage decodes one stream entry into a task.
func taskFromMessage(msg redis.XMessage) (EvaluationTask, error) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return EvaluationTask{}, fmt.Errorf("entry %s: payload missing or not a string", msg.ID)
	}
	var task EvaluationTask
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return EvaluationTask{}, fmt.Errorf("entry %s: decode task: %w", msg.ID, err)
	}
	task.MessageID = msg.ID
	return task, nil
}

func (q *Queue) deadLetterMalformed(ctx context.Context, msg redis.XMessage, cause error) {
	args := &redis.XAddArgs{
		Stream: q.dlqStream,
		Values: map[string]interface{}{
			"payload":         fmt.Sprintf("%v", msg.Values["payload"]),
			"reason":          cause.Error(),
			"original_msg_id": msg.ID,
			"failed_at":       time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := q.client.XAdd(ctx, args).Err(); err != nil {
		log.Printf("scheduler: dead letter malformed entry %s: %v", msg.ID, err)
	} else {
		metrics.EvaluationTasksDeadLettered.Inc()
	}
	if err := q.Ack(ctx, msg.ID); err != nil {
		log.Printf("scheduler: ack malformed entry %s: %v", msg.ID, err)
	}
}

// Ack acknowledges processed stream entries.
func (q *Queue) Ack(ctx context.Context, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := q.client.XAck(ctx, q.stream, q.group, messageIDs...).Err(); err != nil {
		return fmt.Errorf("ack tasks: %w", err)
	}
	return nil
}

// MoveToDeadLetter records a task on the dead letter stream with its
// failure reason.
func (q *Queue) MoveToDeadLetter(ctx context.Context, task EvaluationTask, reason string) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal dead letter task: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: q.dlqStream,
		Values: map[string]interface{}{
			"payload":         payload,
			"reason":          reason,
			"original_msg_id": task.MessageID,
			"failed_at":       time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := q.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("move task to dead letter stream: %w", err)
	}
	metrics.EvaluationTasksDeadLettered.Inc()
	return nil
}

func isBusyGroupError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
