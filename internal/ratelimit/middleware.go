package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/radiant-ai/radiant/internal/model"
)

// KeyFunc identifies the caller of a request. An empty key exempts the
// request.
type KeyFunc func(r *http.Request) string

// RequestIDFunc extracts the request ID from the request context.
// Injected by the caller to avoid a dependency on the server package.
type RequestIDFunc func(r *http.Request) string

// Guard wraps handlers with a per-caller, per-class limit.
type Guard struct {
	limiter Limiter
	caller  KeyFunc
	reqID   RequestIDFunc
	logger  *slog.Logger
}

// NewGuard creates a Guard. A nil limiter passes every request through.
func NewGuard(limiter Limiter, caller KeyFunc, reqID RequestIDFunc, logger *slog.Logger) *Guard {
	return &Guard{limiter: limiter, caller: caller, reqID: reqID, logger: logger}
}

// Wrap limits next under class. Limiter errors are logged and the request
// proceeds.
func (g *Guard) Wrap(class Class, next http.Handler) http.Handler {
	if g == nil || g.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := g.caller(r)
		if caller == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := string(class) + ":" + caller

		ok, err := g.limiter.Allow(r.Context(), key)
		if err != nil {
			g.logger.Warn("ratelimit: limiter error, allowing request", "key", key, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			g.logger.Debug("ratelimit: rejected", "class", class, "caller", caller)
			w.Header().Set("Retry-After", strconv.Itoa(g.retryAfterSeconds()))
			var requestID string
			if g.reqID != nil {
				requestID = g.reqID(r)
			}
			writeRateLimitError(w, class, requestID)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds rounds the limiter's advice up to whole seconds, with
// a floor of one.
func (g *Guard) retryAfterSeconds() int {
	adv, ok := g.limiter.(RetryAdvisor)
	if !ok {
		return 1
	}
	secs := int(math.Ceil(adv.RetryAfter().Seconds()))
	return max(secs, 1)
}

func writeRateLimitError(w http.ResponseWriter, class Class, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Error: model.ErrorDetail{
			Code:    model.ErrCodeRateLimited,
			Message: "too many " + string(class) + " requests",
		},
		Meta: model.ResponseMeta{
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
		},
	})
}
