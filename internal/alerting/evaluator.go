// Package alerting evaluates alert rules against stored telemetry and
// drives incidents through their lifecycle.
//
// Each evaluation cycle for a rule loads the rule's hysteresis state,
// queries the metric window, updates the firing streak, and asserts or
// resolves the incident for the (project, rule, service) key. Consecutive
// breaches below the rule's duration only advance the streak; the incident
// appears once the streak covers the full duration.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/good-yellow-bee/pulsewatch/internal/incident"
	"github.com/good-yellow-bee/pulsewatch/internal/metrics"
	"github.com/good-yellow-bee/pulsewatch/internal/models"
	"github.com/good-yellow-bee/pulsewatch/internal/notifier"
	"github.com/good-yellow-bee/pulsewatch/internal/storage"
)

// ErrRuleNotFound is returned when the evaluated rule does not exist.
// Callers must not retry it: the rule is gone, not temporarily missing.
var ErrRuleNotFound = errors.New("alert rule not found")

// IncidentManager is the slice of the incident service the evaluator uses.
type IncidentManager interface {
	FindOrCreateOpen(ctx context.Context, projectID, serviceID, ruleID string,
		severity models.Severity, summary string) (*models.Incident, bool, error)
	ResolveOpen(ctx context.Context, projectID, ruleID, serviceID string) (*models.Incident, error)
	TouchOpen(ctx context.Context, inc *models.Incident) error
}

// Dispatcher sends incident notifications. Failures are logged and
// swallowed: notification delivery never fails an evaluation.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *notifier.Request) error
}

// Evaluator runs single-rule evaluation cycles.
type Evaluator struct {
	rules     storage.RuleRepository
	services  storage.ServiceRepository
	states    storage.StateStore
	metrics   storage.MetricQuerier
	incidents IncidentManager
	dispatch  Dispatcher

	// Cadence is the scheduling interval between cycles. A rule's breach
	// duration is converted to a streak length using it, so a 3-minute
	// duration on a 1-minute cadence needs 3 consecutive breaches.
	Cadence time.Duration

	// QueryTimeout bounds the telemetry query within a cycle.
	QueryTimeout time.Duration

	// NotifyTimeout bounds a single notification delivery. Deliveries run
	// in the background on their own context, so a slow channel cannot
	// consume the cycle's deadline or fail the cycle.
	NotifyTimeout time.Duration

	notifyWG sync.WaitGroup
}

// NewEvaluator creates an evaluator with a 1-minute cadence.
func NewEvaluator(store storage.Storage, states storage.StateStore,
	metrics storage.MetricQuerier, incidents IncidentManager, dispatch Dispatcher) *Evaluator {
	return &Evaluator{
		rules:         store.Rules(),
		services:      store.Services(),
		states:        states,
		metrics:       metrics,
		incidents:     incidents,
		dispatch:      dispatch,
		Cadence:       time.Minute,
		QueryTimeout:  10 * time.Second,
		NotifyTimeout: 30 * time.Second,
	}
}

// Wait blocks until in-flight notification deliveries have finished.
// Called on shutdown after the worker pool has drained.
func (e *Evaluator) Wait() {
	e.notifyWG.Wait()
}

// EvaluateRule runs one evaluation cycle for a rule at the current time.
func (e *Evaluator) EvaluateRule(ctx context.Context, ruleID string) error {
	return e.EvaluateRuleAt(ctx, ruleID, time.Now())
}

// EvaluateRuleAt runs one evaluation cycle at an explicit time.
//
// A failed cycle leaves the stored hysteresis state untouched: the state
// is only saved after the incident side effects for this cycle succeed,
// so a redelivered task replays the whole cycle from the previous state.
func (e *Evaluator) EvaluateRuleAt(ctx context.Context, ruleID string, now time.Time) error {
	rule, err := e.rules.GetByID(ctx, ruleID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
	}
	if err != nil {
		return fmt.Errorf("load rule %s: %w", ruleID, err)
	}
	if !rule.Enabled {
		return nil
	}

	state, err := e.loadState(ctx, rule, now)
	if err != nil {
		return err
	}
	prevFiring := state.Firing

	value, met, err := e.checkCondition(ctx, rule, now)
	if err != nil {
		return err
	}

	var next models.AlertState
	if met {
		next = state.WithConditionMet(now)
	} else {
		next = state.WithConditionNotMet(now)
	}

	if met && next.ConsecutiveFiringCount >= e.requiredCycles(rule) {
		if err := e.assertIncident(ctx, rule, value, now); err != nil {
			return err
		}
	}
	if !met && prevFiring {
		if err := e.resolveIncident(ctx, rule, now); err != nil {
			return err
		}
	}

	if err := e.states.Save(ctx, next, models.StateTTLSeconds(rule.DurationMinutes)); err != nil {
		return fmt.Errorf("save alert state for rule %s: %w", rule.ID, err)
	}
	return nil
}

func (e *Evaluator) loadState(ctx context.Context, rule *models.AlertRule, now time.Time) (models.AlertState, error) {
	state, err := e.states.Load(ctx, rule.ProjectID, rule.ID, rule.ServiceID)
	if errors.Is(err, storage.ErrStateNotFound) {
		return models.InitialAlertState(rule.ProjectID, rule.ID, rule.ServiceID, now), nil
	}
	if err != nil {
		return models.AlertState{}, fmt.Errorf("load alert state for rule %s: %w", rule.ID, err)
	}
	return state, nil
}

func (e *Evaluator) checkCondition(ctx context.Context, rule *models.AlertRule, now time.Time) (float64, bool, error) {
	queryCtx := ctx
	if e.QueryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, e.QueryTimeout)
		defer cancel()
	}

	from := now.Add(-time.Duration(rule.WindowMinutes) * time.Minute)
	points, err := e.metrics.Query(queryCtx, rule.ProjectID, rule.MetricName, rule.Aggregation,
		rule.ServiceID, from, now)
	if err != nil {
		return 0, false, fmt.Errorf("query metric %s for rule %s: %w", rule.MetricName, rule.ID, err)
	}

	value, met := conditionMet(points, rule)
	return value, met, nil
}

// requiredCycles converts the rule's breach duration into a consecutive
// cycle count at the evaluator's cadence, rounding up.
func (e *Evaluator) requiredCycles(rule *models.AlertRule) int {
	cadence := e.Cadence
	if cadence <= 0 {
		cadence = time.Minute
	}
	duration := time.Duration(rule.DurationMinutes) * time.Minute
	cycles := int((duration + cadence - 1) / cadence)
	if cycles < 1 {
		cycles = 1
	}
	return cycles
}

func (e *Evaluator) assertIncident(ctx context.Context, rule *models.AlertRule, value float64, now time.Time) error {
	summary := fmt.Sprintf("Alert rule '%s' triggered: %s %s %.2f (threshold: %.2f)",
		rule.Name, rule.MetricName, rule.Operator, value, rule.Threshold)

	inc, created, err := e.incidents.FindOrCreateOpen(ctx, rule.ProjectID, rule.ServiceID, rule.ID,
		rule.Severity, summary)
	if err != nil {
		return fmt.Errorf("assert incident for rule %s: %w", rule.ID, err)
	}

	if !created {
		if err := e.incidents.TouchOpen(ctx, inc); err != nil {
			return fmt.Errorf("touch incident for rule %s: %w", rule.ID, err)
		}
		return nil
	}

	metrics.IncidentsOpenedTotal.Inc()
	e.notify(ctx, rule, inc, notifier.EventIncidentCreated, now)
	return nil
}

func (e *Evaluator) resolveIncident(ctx context.Context, rule *models.AlertRule, now time.Time) error {
	inc, err := e.incidents.ResolveOpen(ctx, rule.ProjectID, rule.ID, rule.ServiceID)
	if errors.Is(err, incident.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve incident for rule %s: %w", rule.ID, err)
	}

	metrics.IncidentsResolvedTotal.Inc()
	e.notify(ctx, rule, inc, notifier.EventIncidentResolved, now)
	return nil
}

func (e *Evaluator) notify(ctx context.Context, rule *models.AlertRule, inc *models.Incident,
	event notifier.Event, now time.Time) {
	if e.dispatch == nil || len(rule.NotifyChannels) == 0 {
		return
	}

	serviceName := rule.ServiceID
	if svc, err := e.services.GetByID(ctx, rule.ServiceID); err == nil {
		serviceName = svc.Name
	}

	req := &notifier.Request{
		Event:       event,
		ProjectID:   rule.ProjectID,
		ServiceName: serviceName,
		RuleName:    rule.Name,
		IncidentID:  inc.ID,
		Severity:    inc.Severity,
		Summary:     inc.Summary,
		Channels:    rule.NotifyChannels,
		OccurredAt:  now,
	}
	ruleID := rule.ID
	e.notifyWG.Add(1)
	go func() {
		defer e.notifyWG.Done()
		dispatchCtx, cancel := context.WithTimeout(context.Background(), e.NotifyTimeout)
		defer cancel()
		if err := e.dispatch.Dispatch(dispatchCtx, req); err != nil {
			log.Printf("alerting: notification for rule %s failed: %v", ruleID, err)
		}
	}()
}
