package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/radiant-ai/radiant/internal/authz"
	"github.com/radiant-ai/radiant/internal/ctxutil"
)

const (
	uriGovernance = "radiant://governance/current"
	uriPending    = "radiant://checkpoints/pending"
)

func (s *Server) registerResources() {
	// radiant://governance/current: the caller's effective governance preset.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			uriGovernance,
			"Governance Preset",
			mcplib.WithResourceDescription("Effective governance preset and per-checkpoint modes for your tenant"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleGovernanceCurrent,
	)

	// radiant://checkpoints/pending: open checkpoint decisions, soonest deadline first.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			uriPending,
			"Pending Checkpoints",
			mcplib.WithResourceDescription("Checkpoint decisions waiting for a reviewer"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handlePendingResource,
	)
}

func resourceTenant(ctx context.Context) (string, error) {
	claims := ctxutil.ClaimsFromContext(ctx)
	if claims == nil {
		return "", errors.New("mcp: not authenticated")
	}
	if err := authz.Authorize(claims, claims.TenantID, authz.ActionRead); err != nil {
		return "", fmt.Errorf("mcp: %w", err)
	}
	return claims.TenantID, nil
}

func (s *Server) handleGovernanceCurrent(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	tenantID, err := resourceTenant(ctx)
	if err != nil {
		return nil, err
	}
	eff, err := s.governance.EffectiveConfig(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("mcp: governance: %w", err)
	}
	return jsonResource(uriGovernance, eff)
}

func (s *Server) handlePendingResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	tenantID, err := resourceTenant(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.checkpoints.ListPending(ctx, tenantID, 50)
	if err != nil {
		return nil, fmt.Errorf("mcp: pending checkpoints: %w", err)
	}
	return jsonResource(uriPending, pending)
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
