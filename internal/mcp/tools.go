package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/radiant-ai/radiant/internal/auth"
	"github.com/radiant-ai/radiant/internal/authz"
	"github.com/radiant-ai/radiant/internal/ctxutil"
	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/service/oversight"
	"github.com/radiant-ai/radiant/internal/storage"
)

func (s *Server) registerTools() {
	// radiant_pending: what is waiting for a human in the caller's tenant.
	s.mcpServer.AddTool(
		mcplib.NewTool("radiant_pending",
			mcplib.WithDescription(`List checkpoint decisions and oversight items waiting for a human.

WHEN TO USE: At the start of a review session, or after resolving something,
to see what is still open. Checkpoint decisions are ordered by deadline
(soonest first); oversight items by submission time.

WHAT YOU GET BACK:
- checkpoints: PENDING decisions with their deadline and escalation level
- oversight: items still pending or escalated`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum entries of each kind to return"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(20),
			),
		),
		s.handlePending,
	)

	// radiant_resolve_checkpoint: record a reviewer's decision.
	s.mcpServer.AddTool(
		mcplib.NewTool("radiant_resolve_checkpoint",
			mcplib.WithDescription(`Resolve a PENDING checkpoint decision.

The decision is final. If another reviewer or the timeout sweep got there
first, the result has applied=false and shows the decision on record.

decision must be one of APPROVED, REJECTED, MODIFIED. MODIFIED requires
modifications describing what changed.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("decision_id", mcplib.Description("Checkpoint decision ID"), mcplib.Required()),
			mcplib.WithString("decision",
				mcplib.Description("The outcome"),
				mcplib.Enum(string(model.DecisionApproved), string(model.DecisionRejected), string(model.DecisionModified)),
				mcplib.Required(),
			),
			mcplib.WithString("feedback", mcplib.Description("Optional note for the pipeline owner")),
			mcplib.WithObject("modifications", mcplib.Description("Changes to apply when decision is MODIFIED")),
		),
		s.handleResolveCheckpoint,
	)

	// radiant_escalate_checkpoint: hand a decision to the next reviewer level.
	s.mcpServer.AddTool(
		mcplib.NewTool("radiant_escalate_checkpoint",
			mcplib.WithDescription(`Escalate a PENDING checkpoint decision to the next reviewer level.

The current decision is closed as ESCALATED and a successor is opened one
level up with a fresh deadline. Fails once the maximum level is reached.`),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("decision_id", mcplib.Description("Checkpoint decision ID"), mcplib.Required()),
			mcplib.WithString("reason", mcplib.Description("Why this needs a more senior reviewer")),
		),
		s.handleEscalateCheckpoint,
	)

	// radiant_decide_oversight: approve, reject or modify an oversight item.
	s.mcpServer.AddTool(
		mcplib.NewTool("radiant_decide_oversight",
			mcplib.WithDescription(`Decide an oversight item held for regulated-domain review.

outcome approve: the insight may be used as submitted.
outcome reject: the insight is withheld. reason is required.
outcome modify: the insight may be used with modifications applied.

Each item takes exactly one decision; a late call returns applied=false.`),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("item_id", mcplib.Description("Oversight item ID"), mcplib.Required()),
			mcplib.WithString("outcome",
				mcplib.Description("The decision"),
				mcplib.Enum("approve", "reject", "modify"),
				mcplib.Required(),
			),
			mcplib.WithString("reason", mcplib.Description("Reviewer's reason (required for reject)")),
			mcplib.WithObject("modifications", mcplib.Description("Changes to apply (required for modify)")),
		),
		s.handleDecideOversight,
	)
}

// authorize returns the caller's claims when they may perform action in
// their own tenant.
func authorize(ctx context.Context, action authz.Action) (*auth.Claims, *mcplib.CallToolResult) {
	claims := ctxutil.ClaimsFromContext(ctx)
	if claims == nil {
		return nil, errorResult("not authenticated")
	}
	if err := authz.Authorize(claims, claims.TenantID, action); err != nil {
		return nil, errorResult("insufficient permissions")
	}
	return claims, nil
}

// toolError renders a service error. Unexpected failures are logged and
// reported without internals.
func (s *Server) toolError(what string, err error) *mcplib.CallToolResult {
	switch {
	case errors.Is(err, model.ErrInvalid):
		return errorResult(err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return errorResult(what + " not found")
	}
	s.logger.Error("mcp: "+what, "error", err)
	return errorResult(fmt.Sprintf("failed to %s", what))
}

func parseID(request mcplib.CallToolRequest, key string) (uuid.UUID, *mcplib.CallToolResult) {
	raw := request.GetString(key, "")
	if raw == "" {
		return uuid.Nil, errorResult(key + " is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errorResult("invalid " + key)
	}
	return id, nil
}

func optionalString(request mcplib.CallToolRequest, key string) *string {
	if v := request.GetString(key, ""); v != "" {
		return &v
	}
	return nil
}

func objectArg(request mcplib.CallToolRequest, key string) map[string]any {
	if m, ok := request.GetArguments()[key].(map[string]any); ok {
		return m
	}
	return nil
}

func (s *Server) handlePending(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, denied := authorize(ctx, authz.ActionRead)
	if denied != nil {
		return denied, nil
	}
	limit := request.GetInt("limit", 20)

	decisions, err := s.checkpoints.ListPending(ctx, claims.TenantID, limit)
	if err != nil {
		return s.toolError("list pending checkpoints", err), nil
	}
	items, err := s.oversight.ListPending(ctx, claims.TenantID, limit)
	if err != nil {
		return s.toolError("list pending oversight items", err), nil
	}
	if decisions == nil {
		decisions = []model.CheckpointDecision{}
	}
	if items == nil {
		items = []model.OversightItem{}
	}
	return jsonResult(map[string]any{
		"checkpoints": decisions,
		"oversight":   items,
	}), nil
}

// ownedDecision loads a decision, hiding other tenants' rows.
func (s *Server) ownedDecision(ctx context.Context, claims *auth.Claims, id uuid.UUID) (model.CheckpointDecision, *mcplib.CallToolResult) {
	d, err := s.checkpoints.Get(ctx, id)
	if err != nil {
		return model.CheckpointDecision{}, s.toolError("checkpoint decision", err)
	}
	if d.TenantID != claims.TenantID {
		return model.CheckpointDecision{}, errorResult("checkpoint decision not found")
	}
	return d, nil
}

func (s *Server) handleResolveCheckpoint(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, denied := authorize(ctx, authz.ActionDecide)
	if denied != nil {
		return denied, nil
	}
	id, bad := parseID(request, "decision_id")
	if bad != nil {
		return bad, nil
	}
	if _, bad := s.ownedDecision(ctx, claims, id); bad != nil {
		return bad, nil
	}

	res, err := s.checkpoints.Resolve(ctx, id, model.Resolution{
		Decision:      model.DecisionValue(request.GetString("decision", "")),
		DecidedBy:     authz.Actor(claims),
		Feedback:      optionalString(request, "feedback"),
		Modifications: objectArg(request, "modifications"),
	})
	if err != nil {
		return s.toolError("resolve checkpoint", err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) handleEscalateCheckpoint(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, denied := authorize(ctx, authz.ActionDecide)
	if denied != nil {
		return denied, nil
	}
	id, bad := parseID(request, "decision_id")
	if bad != nil {
		return bad, nil
	}
	if _, bad := s.ownedDecision(ctx, claims, id); bad != nil {
		return bad, nil
	}

	res, err := s.checkpoints.Escalate(ctx, id, authz.Actor(claims), request.GetString("reason", ""))
	if err != nil {
		return s.toolError("escalate checkpoint", err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) handleDecideOversight(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, denied := authorize(ctx, authz.ActionDecide)
	if denied != nil {
		return denied, nil
	}
	id, bad := parseID(request, "item_id")
	if bad != nil {
		return bad, nil
	}
	it, err := s.oversight.Get(ctx, id)
	if err != nil {
		return s.toolError("oversight item", err), nil
	}
	if it.TenantID != claims.TenantID {
		return errorResult("oversight item not found"), nil
	}

	by := authz.Actor(claims)
	reason := optionalString(request, "reason")
	var res oversight.Result
	switch request.GetString("outcome", "") {
	case "approve":
		res, err = s.oversight.Approve(ctx, id, by, reason)
	case "reject":
		res, err = s.oversight.Reject(ctx, id, by, request.GetString("reason", ""))
	case "modify":
		res, err = s.oversight.Modify(ctx, id, by, objectArg(request, "modifications"), reason)
	default:
		return errorResult("outcome must be approve, reject or modify"), nil
	}
	if err != nil {
		return s.toolError("decide oversight item", err), nil
	}
	return jsonResult(res), nil
}
