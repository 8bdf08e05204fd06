// Package notifier delivers incident notifications to a rule's configured
// channels. Channels are routed by shape: addresses containing "@" go out
// over SMTP, http(s) URLs are posted to as webhooks.
package notifier

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/good-yellow-bee/pulsewatch/internal/metrics"
	"github.com/good-yellow-bee/pulsewatch/internal/models"
)

// Event classifies what happened to the incident being notified about.
type Event string

const (
	EventIncidentCreated  Event = "incident_created"
	EventIncidentResolved Event = "incident_resolved"
)

// Request carries everything a sender needs to render a notification.
type Request struct {
	Event       Event
	ProjectID   string
	ServiceName string
	RuleName    string
	IncidentID  string
	Severity    models.Severity
	Summary     string
	Channels    []string
	OccurredAt  time.Time
}

// Sender delivers one notification to one channel.
type Sender interface {
	Send(ctx context.Context, channel string, req *Request) error
	Close() error
}

// ErrRateLimited is returned when a notification is dropped by the limiter.
var ErrRateLimited = fmt.Errorf("notification rate limited")

// Dispatcher fans a request out to each of its channels, picking the
// sender by channel shape. Per-channel failures are aggregated, not fatal
// to the other channels.
type Dispatcher struct {
	email   Sender
	webhook Sender
	limiter *RateLimiter
}

// NewDispatcher creates a dispatcher. Either sender may be nil, in which
// case channels of that shape are skipped with a log line.
func NewDispatcher(email, webhook Sender, config RateLimitConfig) *Dispatcher {
	return &Dispatcher{
		email:   email,
		webhook: webhook,
		limiter: NewRateLimiter(config),
	}
}

// Dispatch sends the request to every channel it names. A request with no
// channels is a no-op. Returns ErrRateLimited when the limiter drops it.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) error {
	if len(req.Channels) == 0 {
		return nil
	}
	if d.limiter != nil && !d.limiter.Allow() {
		return ErrRateLimited
	}

	var errs []error
	for _, channel := range req.Channels {
		sender := d.senderFor(channel)
		if sender == nil {
			log.Printf("notifier: no sender configured for channel %q, skipping", channel)
			continue
		}
		if err := sender.Send(ctx, channel, req); err != nil {
			metrics.NotificationFailures.Inc()
			errs = append(errs, fmt.Errorf("%s: %w", channel, err))
			continue
		}
		metrics.NotificationsSentTotal.WithLabelValues(string(req.Event)).Inc()
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %v", errs)
	}
	return nil
}

// Stats returns the limiter's drop statistics.
func (d *Dispatcher) Stats() RateLimitStats {
	if d.limiter == nil {
		return RateLimitStats{}
	}
	return d.limiter.Stats()
}

// Close releases sender resources.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, s := range []Sender{d.email, d.webhook} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (d *Dispatcher) senderFor(channel string) Sender {
	switch {
	case strings.HasPrefix(channel, "http://"), strings.HasPrefix(channel, "https://"):
		return d.webhook
	case strings.Contains(channel, "@"):
		return d.email
	default:
		return nil
	}
}

// Subject renders the notification subject line shared by senders.
func (r *Request) Subject() string {
	verb := "triggered"
	if r.Event == EventIncidentResolved {
		verb = "resolved"
	}
	return fmt.Sprintf("[%s] PulseWatch: %s %s", strings.ToUpper(string(r.Severity)), r.RuleName, verb)
}

// Body renders a plain-text notification body.
func (r *Request) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", r.Summary)
	fmt.Fprintf(&b, "Incident:  %s\n", r.IncidentID)
	fmt.Fprintf(&b, "Service:   %s\n", r.ServiceName)
	fmt.Fprintf(&b, "Severity:  %s\n", r.Severity)
	fmt.Fprintf(&b, "Event:     %s\n", r.Event)
	fmt.Fprintf(&b, "Time:      %s\n", r.OccurredAt.UTC().Format(time.RFC3339))
	return b.String()
}
