// Package oversight holds regulated-domain insights for human review.
//
// An unanswered item is never approved: it escalates after EscalationDays
// and expires, counting as a rejection, after TimeoutDays. Each item gets
// exactly one recorded decision.
package oversight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/radiant-ai/radiant/internal/clock"
	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/notify"
	"github.com/radiant-ai/radiant/internal/storage"
	"github.com/radiant-ai/radiant/internal/telemetry"
)

// ErrItemNotFound is returned for unknown item IDs.
var ErrItemNotFound = fmt.Errorf("oversight: item %w", storage.ErrNotFound)

// DefaultDomains are the regulated domains that require oversight.
var DefaultDomains = []string{"healthcare", "financial", "legal"}

// Store is the slice of storage.DB the queue needs.
type Store interface {
	EnsureTenant(ctx context.Context, tenantID string) error
	InsertOversightItem(ctx context.Context, it model.OversightItem) error
	GetOversightItem(ctx context.Context, id uuid.UUID) (model.OversightItem, error)
	GetOversightDecision(ctx context.Context, itemID uuid.UUID) (model.OversightDecision, error)
	ListOpenOversightItems(ctx context.Context, tenantID string, limit int) ([]model.OversightItem, error)
	DecideOversightItem(ctx context.Context, d model.OversightDecision) (bool, error)
	ExpireOversightItems(ctx context.Context, now time.Time) ([]model.OversightItem, error)
	EscalateOversightItems(ctx context.Context, now time.Time) ([]model.OversightItem, error)
}

// Options configure a Queue. Zero values pick defaults.
type Options struct {
	TimeoutDays    int
	EscalationDays int
	Domains        []string
	Notify         notify.Sink
}

// Result reports the outcome of a decision attempt. Applied is false when
// the item had already been closed; Decision is then the one on record.
type Result struct {
	Applied  bool                    `json:"applied"`
	Item     model.OversightItem     `json:"item"`
	Decision model.OversightDecision `json:"decision"`
}

// Queue is the oversight queue.
type Queue struct {
	store  Store
	clock  clock.Clock
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer

	submitted metric.Int64Counter
	decided   metric.Int64Counter
	swept     metric.Int64Counter
}

// New creates a Queue. EscalationDays is measured from submission and must
// be shorter than TimeoutDays.
func New(store Store, clk clock.Clock, opts Options, logger *slog.Logger) (*Queue, error) {
	if opts.TimeoutDays <= 0 {
		opts.TimeoutDays = 7
	}
	if opts.EscalationDays <= 0 {
		opts.EscalationDays = 3
	}
	if opts.EscalationDays >= opts.TimeoutDays {
		return nil, fmt.Errorf("oversight: escalation days (%d) must be less than timeout days (%d)",
			opts.EscalationDays, opts.TimeoutDays)
	}
	if len(opts.Domains) == 0 {
		opts.Domains = DefaultDomains
	}
	normalized := make([]string, 0, len(opts.Domains))
	for _, d := range opts.Domains {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(d)))
	}
	opts.Domains = normalized
	if opts.Notify == nil {
		opts.Notify = notify.Nop
	}

	meter := telemetry.Meter("radiant/oversight")
	submitted, _ := meter.Int64Counter("radiant.oversight.submitted",
		metric.WithDescription("Items submitted for oversight"))
	decided, _ := meter.Int64Counter("radiant.oversight.decisions",
		metric.WithDescription("Human oversight decisions by outcome"))
	swept, _ := meter.Int64Counter("radiant.oversight.swept",
		metric.WithDescription("Items escalated or expired by the timeout sweep"))
	return &Queue{
		store:     store,
		clock:     clk,
		opts:      opts,
		logger:    logger,
		tracer:    otel.Tracer("radiant/oversight"),
		submitted: submitted,
		decided:   decided,
		swept:     swept,
	}, nil
}

// RequiresOversight reports whether insights in domain must be reviewed.
func (q *Queue) RequiresOversight(domain string) bool {
	return slices.Contains(q.opts.Domains, strings.ToLower(strings.TrimSpace(domain)))
}

// Submit queues an insight for review.
func (q *Queue) Submit(ctx context.Context, sub model.OversightSubmission) (model.OversightItem, error) {
	ctx, span := q.tracer.Start(ctx, "oversight.Submit", trace.WithAttributes(
		attribute.String("radiant.tenant_id", sub.TenantID),
		attribute.String("radiant.domain", sub.Domain),
	))
	defer span.End()

	if err := model.Validate(sub); err != nil {
		return model.OversightItem{}, err
	}
	if err := q.store.EnsureTenant(ctx, sub.TenantID); err != nil {
		return model.OversightItem{}, fmt.Errorf("oversight: %w", err)
	}
	now := q.clock.Now()
	it := model.OversightItem{
		ID:         uuid.New(),
		TenantID:   sub.TenantID,
		InsightID:  sub.InsightID,
		Domain:     strings.ToLower(sub.Domain),
		Payload:    sub.Payload,
		Status:     model.OversightPending,
		CreatedAt:  now,
		// Counted from submission: with the defaults an item escalates on
		// day 3 and expires on day 7.
		EscalateAt: now.Add(days(q.opts.EscalationDays)),
		ExpiresAt:  now.Add(days(q.opts.TimeoutDays)),
	}
	if it.Payload == nil {
		it.Payload = map[string]any{}
	}
	if err := q.store.InsertOversightItem(ctx, it); err != nil {
		return model.OversightItem{}, fmt.Errorf("oversight: submit: %w", err)
	}
	q.submitted.Add(ctx, 1, metric.WithAttributes(attribute.String("domain", it.Domain)))
	q.emit(ctx, notify.OversightSubmitted, it)
	q.logger.Info("oversight: submitted", "tenant_id", it.TenantID, "item_id", it.ID, "insight_id", it.InsightID, "domain", it.Domain)
	return it, nil
}

// Approve records an approval.
func (q *Queue) Approve(ctx context.Context, id uuid.UUID, by string, reason *string) (Result, error) {
	return q.decide(ctx, id, model.OutcomeApproved, by, reason, nil)
}

// Reject records a rejection. A reason is required.
func (q *Queue) Reject(ctx context.Context, id uuid.UUID, by string, reason string) (Result, error) {
	if strings.TrimSpace(reason) == "" {
		return Result{}, fmt.Errorf("%w: rejection reason is required", model.ErrInvalid)
	}
	return q.decide(ctx, id, model.OutcomeRejected, by, &reason, nil)
}

// Modify records an approval with changes to the insight.
func (q *Queue) Modify(ctx context.Context, id uuid.UUID, by string, modifications map[string]any, reason *string) (Result, error) {
	if len(modifications) == 0 {
		return Result{}, fmt.Errorf("%w: modifications are required", model.ErrInvalid)
	}
	return q.decide(ctx, id, model.OutcomeModified, by, reason, modifications)
}

func (q *Queue) decide(ctx context.Context, id uuid.UUID, outcome model.OversightOutcome, by string, reason *string, mods map[string]any) (Result, error) {
	ctx, span := q.tracer.Start(ctx, "oversight.Decide", trace.WithAttributes(
		attribute.String("radiant.item_id", id.String()),
		attribute.String("radiant.outcome", string(outcome)),
	))
	defer span.End()

	if strings.TrimSpace(by) == "" {
		return Result{}, fmt.Errorf("%w: decided_by is required", model.ErrInvalid)
	}
	d := model.OversightDecision{
		ID:            uuid.New(),
		ItemID:        id,
		Outcome:       outcome,
		DecidedBy:     by,
		Reason:        reason,
		Modifications: mods,
		DecidedAt:     q.clock.Now(),
	}
	applied, err := q.store.DecideOversightItem(ctx, d)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		return Result{}, fmt.Errorf("oversight: decide: %w", err)
	}

	it, err := q.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	recorded, err := q.store.GetOversightDecision(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("oversight: load decision: %w", err)
	}
	if applied {
		q.decided.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
		q.logger.Info("oversight: decided", "tenant_id", it.TenantID, "item_id", id, "outcome", outcome, "decided_by", by)
	} else {
		q.logger.Info("oversight: item already closed", "item_id", id, "status", it.Status)
	}
	return Result{Applied: applied, Item: it, Decision: recorded}, nil
}

// ProcessTimeouts runs both sweeps: open items past expiry are expired
// (a rejection), then pending items past their escalation point are
// escalated. Items already escalated or closed are not touched again, so
// repeated runs are harmless.
func (q *Queue) ProcessTimeouts(ctx context.Context) (model.OversightSweep, error) {
	ctx, span := q.tracer.Start(ctx, "oversight.ProcessTimeouts")
	defer span.End()

	now := q.clock.Now()
	expired, err := q.store.ExpireOversightItems(ctx, now)
	if err != nil {
		return model.OversightSweep{}, fmt.Errorf("oversight: expire: %w", err)
	}
	for _, it := range expired {
		q.emit(ctx, notify.OversightExpired, it)
	}
	escalated, err := q.store.EscalateOversightItems(ctx, now)
	if err != nil {
		return model.OversightSweep{Expired: len(expired)}, fmt.Errorf("oversight: escalate: %w", err)
	}
	for _, it := range escalated {
		q.emit(ctx, notify.OversightEscalated, it)
	}

	sweep := model.OversightSweep{Expired: len(expired), Escalated: len(escalated)}
	if sweep.Expired > 0 {
		q.swept.Add(ctx, int64(sweep.Expired), metric.WithAttributes(attribute.String("action", "expired")))
	}
	if sweep.Escalated > 0 {
		q.swept.Add(ctx, int64(sweep.Escalated), metric.WithAttributes(attribute.String("action", "escalated")))
	}
	if sweep.Expired > 0 || sweep.Escalated > 0 {
		q.logger.Info("oversight: timeouts processed", "expired", sweep.Expired, "escalated", sweep.Escalated)
	}
	return sweep, nil
}

// Get loads an item.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) (model.OversightItem, error) {
	it, err := q.store.GetOversightItem(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.OversightItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		return model.OversightItem{}, fmt.Errorf("oversight: get: %w", err)
	}
	return it, nil
}

// Decision returns the decision recorded for an item.
func (q *Queue) Decision(ctx context.Context, id uuid.UUID) (model.OversightDecision, error) {
	d, err := q.store.GetOversightDecision(ctx, id)
	if err != nil {
		return model.OversightDecision{}, fmt.Errorf("oversight: get decision: %w", err)
	}
	return d, nil
}

// ListPending returns a tenant's open items, pending and escalated.
func (q *Queue) ListPending(ctx context.Context, tenantID string, limit int) ([]model.OversightItem, error) {
	if err := model.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalid, err)
	}
	out, err := q.store.ListOpenOversightItems(ctx, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("oversight: list pending: %w", err)
	}
	return out, nil
}

func (q *Queue) emit(ctx context.Context, kind notify.Kind, it model.OversightItem) {
	if err := q.opts.Notify.Notify(ctx, notify.Event{
		Kind:     kind,
		TenantID: it.TenantID,
		Subject:  it.ID.String(),
		Data: map[string]any{
			"insight_id": it.InsightID,
			"domain":     it.Domain,
			"expires_at": it.ExpiresAt,
		},
		At: q.clock.Now(),
	}); err != nil {
		q.logger.Warn("oversight: notification failed", "kind", kind, "item_id", it.ID, "error", err)
	}
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }
