package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"milltrack/internal/auth"
)

// LoggingMiddleware logs request method, path, and duration. Also sets CORS headers.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// SecurityHeaders adds security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(401)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

// RequireAuth checks the session cookie on /api/ routes, extends the
// session on activity, and stores user identity in the request context.
// Login and the WebSocket upgrade stay open.
func RequireAuth(dbConn *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path

			if !strings.HasPrefix(path, "/api/") ||
				path == "/api/v1/auth/login" ||
				path == "/api/v1/health" {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil {
				unauthorized(w, "Unauthorized", "UNAUTHORIZED")
				return
			}

			var userID int
			var username, role string
			var active int
			var lastActivity string
			err = dbConn.QueryRow(`SELECT s.user_id, u.username, u.role, u.active, COALESCE(s.last_activity, s.created_at)
				FROM sessions s JOIN users u ON s.user_id = u.id
				WHERE s.token = ? AND s.expires_at > CURRENT_TIMESTAMP`, cookie.Value).
				Scan(&userID, &username, &role, &active, &lastActivity)
			if err != nil {
				unauthorized(w, "Unauthorized", "UNAUTHORIZED")
				return
			}

			// Inactivity timeout (30 minutes).
			if lastActivity != "" {
				lastActivityTime, err := time.Parse("2006-01-02 15:04:05", lastActivity)
				if err == nil && time.Since(lastActivityTime) > 30*time.Minute {
					dbConn.Exec("DELETE FROM sessions WHERE token = ?", cookie.Value)
					unauthorized(w, "Session expired due to inactivity", "SESSION_TIMEOUT")
					return
				}
			}

			if active == 0 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(403)
				json.NewEncoder(w).Encode(map[string]string{"error": "Account deactivated", "code": "FORBIDDEN"})
				return
			}

			// Sliding window: extend session expiry.
			newExpiry := time.Now().UTC().Add(auth.SessionDuration)
			dbConn.Exec("UPDATE sessions SET expires_at = ?, last_activity = ? WHERE token = ?",
				newExpiry.Format("2006-01-02 15:04:05"), time.Now().UTC().Format("2006-01-02 15:04:05"), cookie.Value)

			http.SetCookie(w, &http.Cookie{
				Name:     auth.SessionCookie,
				Value:    cookie.Value,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				Expires:  newExpiry,
			})

			ctx := context.WithValue(r.Context(), CtxUserID, userID)
			ctx = context.WithValue(ctx, CtxUsername, username)
			ctx = context.WithValue(ctx, CtxRole, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects the request unless the session role is admin.
func RequireAdmin(w http.ResponseWriter, r *http.Request) bool {
	role, _ := r.Context().Value(CtxRole).(string)
	if role != "admin" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(403)
		json.NewEncoder(w).Encode(map[string]string{"error": "Admin access required", "code": "FORBIDDEN"})
		return false
	}
	return true
}

// RateLimiter tracks request rates per key.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.RWMutex
}

// NewRateLimiter creates a new RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
	}
}

// Reset clears all rate limit state (for testing).
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	rl.requests = make(map[string][]time.Time)
	rl.mu.Unlock()
}

func (rl *RateLimiter) cleanupOldRequests(key string, window time.Duration) {
	now := time.Now()
	cutoff := now.Add(-window)

	requests := rl.requests[key]
	validRequests := make([]time.Time, 0)

	for _, reqTime := range requests {
		if reqTime.After(cutoff) {
			validRequests = append(validRequests, reqTime)
		}
	}

	if len(validRequests) > 0 {
		rl.requests[key] = validRequests
	} else {
		delete(rl.requests, key)
	}
}

// CheckRateLimit checks if the request should be rate limited.
func (rl *RateLimiter) CheckRateLimit(key string, limit int, window time.Duration) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.cleanupOldRequests(key, window)

	requests := rl.requests[key]
	currentCount := len(requests)

	var resetTime time.Time
	if len(requests) > 0 {
		resetTime = requests[0].Add(window)
	} else {
		resetTime = now.Add(window)
	}

	if currentCount >= limit {
		return true, 0, resetTime
	}

	rl.requests[key] = append(requests, now)
	remaining := limit - currentCount - 1

	return false, remaining, resetTime
}

// RateLimitMiddleware implements rate limiting per IP address. Login
// attempts get a tight limit, the rest of the API a loose one.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := r.RemoteAddr
			if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
				clientIP = strings.Split(forwarded, ",")[0]
			}
			if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
				clientIP = realIP
			}

			if idx := strings.LastIndex(clientIP, ":"); idx != -1 {
				clientIP = clientIP[:idx]
			}

			path := r.URL.Path

			var limit int
			var window time.Duration
			var limitKey string

			if path == "/api/v1/auth/login" {
				limit = 5
				window = time.Minute
				limitKey = "login:" + clientIP
			} else if strings.HasPrefix(path, "/api/") {
				limit = 100
				window = time.Minute
				limitKey = "api:" + clientIP
			} else {
				next.ServeHTTP(w, r)
				return
			}

			exceeded, remaining, resetTime := rl.CheckRateLimit(limitKey, limit, window)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime.Unix()))

			if exceeded {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(resetTime).Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error":      "Rate limit exceeded",
					"code":       "RATE_LIMIT_EXCEEDED",
					"retryAfter": int(time.Until(resetTime).Seconds()),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
