package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// review-checkpoint: walks a reviewer through one pending decision.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("review-checkpoint",
			mcplib.WithPromptDescription("Review one pending checkpoint decision and record the outcome"),
			mcplib.WithArgument("decision_id",
				mcplib.ArgumentDescription("The checkpoint decision to review"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleReviewCheckpointPrompt,
	)

	// reviewer-setup: system prompt snippet explaining the review workflow.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("reviewer-setup",
			mcplib.WithPromptDescription("System prompt snippet explaining the Radiant review workflow"),
		),
		s.handleReviewerSetupPrompt,
	)
}

func (s *Server) handleReviewCheckpointPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	decisionID := request.Params.Arguments["decision_id"]
	if decisionID == "" {
		return nil, fmt.Errorf("decision_id argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Review checkpoint decision %s", decisionID),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Review checkpoint decision %s.

1. READ radiant://checkpoints/pending and find the decision. Note its
   checkpoint_type, trigger_reason, deadline and presented_data.

2. JUDGE the presented output:
   - APPROVED when it can proceed as is.
   - MODIFIED when it can proceed with specific changes. List them as
     modifications.
   - REJECTED when it must not proceed. Say why in feedback.
   - Escalate instead when the call is above your authority.

3. RECORD the outcome with radiant_resolve_checkpoint (decision_id="%s")
   or radiant_escalate_checkpoint.

If the result has applied=false, someone else decided first. Report the
decision on record rather than retrying.`, decisionID, decisionID),
				},
			},
		},
	}, nil
}

func (s *Server) handleReviewerSetupPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return &mcplib.GetPromptResult{
		Description: "Radiant review workflow",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: `You are reviewing AI pipeline output held by Radiant.

## Two queues

Checkpoint decisions pause a pipeline at one of five stages (CP1 to CP5).
Each has a deadline; when it passes, the tenant's timeout action applies
or the decision escalates to the next level.

Oversight items are insights in regulated domains such as healthcare,
financial and legal. They wait up to 7 days, escalating after 3, and
expire as rejected if nobody decides.

## Tools

- radiant_pending: what is waiting, checkpoints and oversight together
- radiant_resolve_checkpoint: APPROVED, REJECTED or MODIFIED
- radiant_escalate_checkpoint: hand the decision one level up
- radiant_decide_oversight: approve, reject (reason required) or modify

## Rules

Every decision is final and recorded with your identity. A call that
arrives after another decision returns applied=false with the decision on
record; do not retry it.`,
				},
			},
		},
	}, nil
}
