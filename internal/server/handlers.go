package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/radiant-ai/radiant/internal/auth"
	"github.com/radiant-ai/radiant/internal/authz"
	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/service/checkpoint"
	"github.com/radiant-ai/radiant/internal/service/governance"
	"github.com/radiant-ai/radiant/internal/service/oversight"
	"github.com/radiant-ai/radiant/internal/service/tiering"
	"github.com/radiant-ai/radiant/internal/storage"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports whether an optional dependency is healthy.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  Pinger
	cache               Pinger
	vectors             HealthChecker
	tiering             *tiering.Coordinator
	checkpoints         *checkpoint.Engine
	governance          *governance.Service
	oversight           *oversight.Queue
	broker              *Broker
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Cache, Vectors, Broker.
type HandlersDeps struct {
	DB                  Pinger
	Cache               Pinger
	Vectors             HealthChecker
	Tiering             *tiering.Coordinator
	Checkpoints         *checkpoint.Engine
	Governance          *governance.Service
	Oversight           *oversight.Queue
	Broker              *Broker
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	if d.MaxRequestBodyBytes <= 0 {
		d.MaxRequestBodyBytes = 1 << 20
	}
	return &Handlers{
		db:                  d.DB,
		cache:               d.Cache,
		vectors:             d.Vectors,
		tiering:             d.Tiering,
		checkpoints:         d.Checkpoints,
		governance:          d.Governance,
		oversight:           d.Oversight,
		broker:              d.Broker,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// authorize checks the caller may perform action in their own tenant and
// returns the claims. It writes the error response itself.
func (h *Handlers) authorize(w http.ResponseWriter, r *http.Request, action authz.Action) (*auth.Claims, bool) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return nil, false
	}
	if err := authz.Authorize(claims, claims.TenantID, action); err != nil {
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "insufficient permissions")
		return nil, false
	}
	return claims, true
}

// ownedBy hides resources of other tenants behind a 404 so IDs cannot be
// probed across tenants.
func ownedBy(w http.ResponseWriter, r *http.Request, claims *auth.Claims, tenantID, what string) bool {
	if tenantID != claims.TenantID {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, what+" not found")
		return false
	}
	return true
}

// writeServiceError maps a service error onto an HTTP status.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, what string, err error) {
	switch {
	case errors.Is(err, model.ErrInvalid):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, what+" not found")
	case errors.Is(err, checkpoint.ErrMaxEscalation):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, err.Error())
	case errors.Is(err, authz.ErrForbidden):
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "insufficient permissions")
	default:
		h.writeInternalError(w, r, "failed to "+what, err)
	}
}

// writeInternalError logs err and writes a generic 500.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error("http: "+msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

// HandleSubscribe handles GET /v1/subscribe (SSE).
func (h *Handlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r, authz.ActionRead)
	if !ok {
		return
	}
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError,
			"SSE not available (LISTEN/NOTIFY not configured)")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// SSE connections outlive the server's WriteTimeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	ch := h.broker.Subscribe(claims.TenantID)
	defer h.broker.Unsubscribe(ch)

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{
		Status:   "healthy",
		Version:  h.version,
		Postgres: "connected",
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	}
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		resp.Postgres = "disconnected"
		resp.Status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}
	if h.cache != nil {
		resp.Cache = "connected"
		if err := h.cache.Ping(r.Context()); err != nil {
			resp.Cache = "disconnected"
			if resp.Status == "healthy" {
				resp.Status = "degraded"
			}
		}
	}
	if h.vectors != nil {
		resp.Qdrant = "connected"
		if err := h.vectors.Healthy(r.Context()); err != nil {
			resp.Qdrant = "disconnected"
			if resp.Status == "healthy" {
				resp.Status = "degraded"
			}
		}
	}
	writeJSON(w, r, httpStatus, resp)
}

// --- Shared helpers ---

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	v := r.PathValue(key)
	if v == "" {
		return uuid.Nil, fmt.Errorf("%s is required", key)
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %s", key, v)
	}
	return id, nil
}

// maxQueryLimit is the maximum allowed value for limit query parameters.
const maxQueryLimit = 1000

func queryInt(r *http.Request, key string, defaultVal int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// queryLimit returns a limit clamped to [1, maxQueryLimit].
func queryLimit(r *http.Request, defaultVal int) int {
	return min(max(queryInt(r, "limit", defaultVal), 1), maxQueryLimit)
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: expected RFC3339 format (e.g. 2026-01-01T00:00:00Z)", key)
	}
	return &t, nil
}
