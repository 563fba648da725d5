package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/radiant-ai/radiant/internal/auth"
	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/ratelimit"
)

// Server is the Radiant HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, MCPServer, and the optional fields of
// HandlersDeps.
type ServerConfig struct {
	HandlersDeps

	JWTMgr *auth.JWTManager

	// Limiter guards write paths: evaluation, memory writes and reviewer
	// decisions. Admins are exempt.
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(cfg.HandlersDeps)
	logger := cfg.Logger

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	guard := ratelimit.NewGuard(cfg.Limiter, callerKeyFunc, reqIDFunc, logger)

	mux := http.NewServeMux()

	// Memory tiers.
	mux.Handle("POST /v1/memory", guard.Wrap(ratelimit.ClassMemory, http.HandlerFunc(h.HandleRemember)))
	mux.HandleFunc("GET /v1/memory/{node_id}", h.HandleRecall)
	mux.Handle("POST /v1/memory/retrieve", guard.Wrap(ratelimit.ClassMemory, http.HandlerFunc(h.HandleRetrieve)))
	mux.HandleFunc("GET /v1/tiers/config", h.HandleGetTierConfig)
	mux.HandleFunc("PUT /v1/tiers/config", h.HandleSetTierConfig)
	mux.HandleFunc("GET /v1/tiers/metrics", h.HandleFlowMetrics)
	mux.HandleFunc("GET /v1/tiers/alerts", h.HandleListAlerts)
	mux.HandleFunc("POST /v1/tiers/health", h.HandleCheckTierHealth)
	mux.HandleFunc("POST /v1/tiers/alerts/{alert_id}/ack", h.HandleAcknowledgeAlert)

	// Erasure.
	mux.HandleFunc("POST /v1/erasure", h.HandleRequestErasure)
	mux.HandleFunc("GET /v1/erasure/{request_id}", h.HandleGetErasure)
	mux.HandleFunc("POST /v1/erasure/{request_id}/process", h.HandleProcessErasure)

	// Checkpoints.
	mux.Handle("POST /v1/checkpoints/evaluate", guard.Wrap(ratelimit.ClassEvaluate, http.HandlerFunc(h.HandleEvaluateCheckpoint)))
	mux.HandleFunc("GET /v1/checkpoints/pending", h.HandleListPendingCheckpoints)
	mux.HandleFunc("GET /v1/checkpoints/config", h.HandleListCheckpointConfigs)
	mux.HandleFunc("PUT /v1/checkpoints/config", h.HandleSetCheckpointConfig)
	mux.HandleFunc("DELETE /v1/checkpoints/config", h.HandleDeleteCheckpointConfig)
	mux.HandleFunc("GET /v1/checkpoints/predicates", h.HandleListPredicates)
	mux.HandleFunc("GET /v1/checkpoints/{decision_id}", h.HandleGetCheckpoint)
	mux.Handle("POST /v1/checkpoints/{decision_id}/resolve", guard.Wrap(ratelimit.ClassDecide, http.HandlerFunc(h.HandleResolveCheckpoint)))
	mux.Handle("POST /v1/checkpoints/{decision_id}/escalate", guard.Wrap(ratelimit.ClassDecide, http.HandlerFunc(h.HandleEscalateCheckpoint)))

	// Governance presets.
	mux.HandleFunc("GET /v1/governance", h.HandleGetGovernance)
	mux.HandleFunc("PUT /v1/governance/preset", h.HandleSetPreset)
	mux.HandleFunc("PUT /v1/governance/overrides", h.HandleSetOverrides)
	mux.Handle("POST /v1/governance/should-checkpoint", guard.Wrap(ratelimit.ClassEvaluate, http.HandlerFunc(h.HandleShouldCheckpoint)))
	mux.HandleFunc("GET /v1/governance/history", h.HandleGovernanceHistory)

	// Oversight queue.
	mux.Handle("POST /v1/oversight", guard.Wrap(ratelimit.ClassSubmit, http.HandlerFunc(h.HandleSubmitOversight)))
	mux.HandleFunc("GET /v1/oversight/pending", h.HandleListPendingOversight)
	mux.HandleFunc("GET /v1/oversight/{item_id}", h.HandleGetOversightItem)
	mux.HandleFunc("GET /v1/oversight/{item_id}/decision", h.HandleGetOversightDecision)
	mux.Handle("POST /v1/oversight/{item_id}/approve", guard.Wrap(ratelimit.ClassDecide, h.HandleDecideOversight(model.OutcomeApproved)))
	mux.Handle("POST /v1/oversight/{item_id}/reject", guard.Wrap(ratelimit.ClassDecide, h.HandleDecideOversight(model.OutcomeRejected)))
	mux.Handle("POST /v1/oversight/{item_id}/modify", guard.Wrap(ratelimit.ClassDecide, h.HandleDecideOversight(model.OutcomeModified)))

	// Live notifications (long-lived, not rate limited).
	mux.HandleFunc("GET /v1/subscribe", h.HandleSubscribe)

	// MCP StreamableHTTP transport. Tools authorize per call from the
	// claims the auth middleware placed on the request context.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   logger,
	}
}

// callerKeyFunc keys rate limits by tenant and subject. Admins are exempt.
func callerKeyFunc(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if model.RoleAtLeast(claims.Role, model.RoleAdmin) {
		return ""
	}
	return claims.TenantID + "/" + claims.Subject
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
