package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	apperrors "github.com/wanderly/identity/pkg/errors"
	"github.com/wanderly/identity/pkg/httputil"
	"github.com/wanderly/identity/pkg/logger"
	"github.com/wanderly/identity/pkg/middleware"
)

// Recorder is told about every rejected request. *metrics.Metrics
// satisfies it.
type Recorder interface {
	RateLimited(scope string)
}

// Middleware limits requests per client IP within scope. When the limiter
// itself fails the request is let through and the failure is logged.
func Middleware(l Limiter, scope string, rec Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := middleware.ClientIP(r)

			res, err := l.Allow(r.Context(), scope+":"+ip)
			if err != nil {
				logger.FromContext(r.Context()).WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					slog.String("scope", scope),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !res.Allowed {
				if rec != nil {
					rec.RateLimited(scope)
				}
				logger.FromContext(r.Context()).WarnContext(r.Context(), "rate limit exceeded",
					slog.String("scope", scope),
					slog.String("ip", ip),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(res)))
				httputil.WriteError(w, r, apperrors.TooManyRequests("too many requests, try again later"), nil)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(res Result) int {
	secs := int(math.Ceil(res.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
