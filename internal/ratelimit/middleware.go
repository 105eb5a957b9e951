package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/alecgard/jeton/internal/auth"
)

// MetricsRecorder is an optional interface for counting rejected requests.
type MetricsRecorder interface {
	IncRateLimitRejection()
}

// Middleware returns an HTTP middleware that enforces rate limits using the
// provided Limiter. It expects an authenticated account in the request
// context (set by auth.UserAuthMiddleware). The account's ID is used as the
// bucket key and its RateLimit field as the custom rate override.
//
// Rate-limit headers are set on every limited response:
//
//	X-RateLimit-Limit     maximum requests allowed in the window
//	X-RateLimit-Remaining tokens remaining in the current window
//	X-RateLimit-Reset     Unix timestamp when the bucket is fully replenished
//
// When the limit is exceeded the middleware responds with HTTP 429, a
// Retry-After header and a JSON error body. m may be nil.
func Middleware(limiter *Limiter, m MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acct := auth.AccountFromContext(r.Context())
			if acct == nil {
				next.ServeHTTP(w, r)
				return
			}

			d := limiter.Take(acct.ID, acct.RateLimit)
			if d.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			}

			if !d.Allowed {
				if m != nil {
					m.IncRateLimitRejection()
				}
				retry := int(math.Ceil(limiter.window.Seconds() / float64(d.Limit)))
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{
						"code":    "rate_limited",
						"message": "Rate limit exceeded. Try again later.",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
