package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/honeynil/LibraryAuthService/internal/config"
	"github.com/honeynil/LibraryAuthService/internal/infrastructure/auth"
	"github.com/honeynil/LibraryAuthService/internal/infrastructure/observability"
	"github.com/honeynil/LibraryAuthService/internal/models"
)

// KeyFunc picks the bucket a request is counted in.
type KeyFunc func(r *http.Request) string

// Middleware applies rule to every request, keyed by key under name.
// Store failures let the request through.
func Middleware(limiter Limiter, name string, rule config.RateLimitRule, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket := name + ":" + key(r)
			res, err := limiter.Allow(r.Context(), bucket, rule)
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request", "rule", name, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if res.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			}
			if !res.Allowed {
				retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				observability.RateLimited.WithLabelValues(name).Inc()
				slog.Warn("rate limit exceeded", "rule", name, "path", r.URL.Path, "retry_after", retryAfter)

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"success": false,
					"message": "Rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey counts requests carrying a valid access token per user and
// everything else per remote address. A bearer value that fails
// verification never selects the bucket.
func ClientKey(verifier auth.TokenVerifier) KeyFunc {
	return func(r *http.Request) string {
		if token, ok := auth.BearerToken(r); ok && verifier != nil {
			if claims, err := verifier.VerifyToken(r.Context(), token, models.TokenTypeAccess); err == nil {
				return "user:" + strconv.FormatInt(claims.UserID, 10)
			}
		}
		return RemoteIP(r)
	}
}

// RemoteIP keys on the connection address alone.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
