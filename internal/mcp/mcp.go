// Package mcp implements the Model Context Protocol server for Radiant.
//
// Reviewers drive the human side of the governance loop from an MCP client:
// they see what is waiting for them, resolve or escalate checkpoint
// decisions, and decide oversight items. Every tool authorizes against the
// JWT claims the HTTP auth middleware placed on the request context.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/service/oversight"
)

// Checkpoints is the slice of the checkpoint engine the tools drive.
type Checkpoints interface {
	ListPending(ctx context.Context, tenantID string, limit int) ([]model.CheckpointDecision, error)
	Get(ctx context.Context, id uuid.UUID) (model.CheckpointDecision, error)
	Resolve(ctx context.Context, id uuid.UUID, res model.Resolution) (model.ResolveResult, error)
	Escalate(ctx context.Context, id uuid.UUID, by, reason string) (model.ResolveResult, error)
}

// Oversight is the slice of the oversight queue the tools drive.
type Oversight interface {
	ListPending(ctx context.Context, tenantID string, limit int) ([]model.OversightItem, error)
	Get(ctx context.Context, id uuid.UUID) (model.OversightItem, error)
	Approve(ctx context.Context, id uuid.UUID, by string, reason *string) (oversight.Result, error)
	Reject(ctx context.Context, id uuid.UUID, by string, reason string) (oversight.Result, error)
	Modify(ctx context.Context, id uuid.UUID, by string, modifications map[string]any, reason *string) (oversight.Result, error)
}

// Governance reads a tenant's effective preset.
type Governance interface {
	EffectiveConfig(ctx context.Context, tenantID string) (model.EffectiveGovernance, error)
}

// Server wraps the MCP server with Radiant's service layer.
type Server struct {
	mcpServer   *mcpserver.MCPServer
	checkpoints Checkpoints
	oversight   Oversight
	governance  Governance
	logger      *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools
// and prompts.
func New(checkpoints Checkpoints, queue Oversight, governance Governance, logger *slog.Logger, version string) *Server {
	s := &Server{
		checkpoints: checkpoints,
		oversight:   queue,
		governance:  governance,
		logger:      logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"radiant",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithInstructions("Radiant holds AI pipeline output for human review. "+
			"Call radiant_pending to see what is waiting, then resolve checkpoints "+
			"or decide oversight items. Decisions are final; a decision someone else "+
			"already made is reported back with applied=false."),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
