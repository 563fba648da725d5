// Package notify delivers governance and tiering events to whoever needs
// to act on them: reviewers waiting on checkpoints, oversight officers,
// operators watching tier health.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Kind names an event type.
type Kind string

const (
	CheckpointAwaitingReview Kind = "checkpoint.awaiting_review"
	CheckpointEscalated      Kind = "checkpoint.escalated"
	CheckpointTimedOut       Kind = "checkpoint.timed_out"
	OversightSubmitted       Kind = "oversight.submitted"
	OversightEscalated       Kind = "oversight.escalated"
	OversightExpired         Kind = "oversight.expired"
	GovernanceNotifyOnly     Kind = "governance.notify_only"
	TierAlertRaised          Kind = "tier.alert_raised"
)

// Event is a single notification.
type Event struct {
	Kind     Kind           `json:"kind"`
	TenantID string         `json:"tenant_id"`
	Subject  string         `json:"subject"`
	Data     map[string]any `json:"data,omitempty"`
	At       time.Time      `json:"at"`
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Notify(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, e Event) error { return f(ctx, e) }

// Nop discards every event.
var Nop Sink = SinkFunc(func(context.Context, Event) error { return nil })

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Notify implements Sink.
func (s LogSink) Notify(_ context.Context, e Event) error {
	s.Logger.Info("notify: event",
		"kind", string(e.Kind),
		"tenant_id", e.TenantID,
		"subject", e.Subject,
	)
	return nil
}

// Publisher is the subset of storage.DB used to publish on a Postgres channel.
type Publisher interface {
	Notify(ctx context.Context, channel, payload string) error
}

// PGSink publishes events as JSON on Postgres NOTIFY channels, picked by
// the event kind, so any LISTENing process (the SSE broker, external
// workers) sees them.
type PGSink struct {
	pub      Publisher
	channels func(Kind) string
}

// NewPGSink creates a sink publishing through pub. route maps an event
// kind to its channel.
func NewPGSink(pub Publisher, route func(Kind) string) *PGSink {
	return &PGSink{pub: pub, channels: route}
}

// Notify implements Sink. Postgres caps payloads at 8000 bytes, so Data is
// dropped from events that would exceed it.
func (s *PGSink) Notify(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	if len(payload) >= 8000 {
		e.Data = nil
		if payload, err = json.Marshal(e); err != nil {
			return fmt.Errorf("notify: marshal event: %w", err)
		}
	}
	return s.pub.Notify(ctx, s.channels(e.Kind), string(payload))
}

// Fanout sends each event to every sink. All sinks are attempted; their
// errors are joined.
type Fanout []Sink

// Notify implements Sink.
func (f Fanout) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
