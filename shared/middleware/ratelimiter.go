package middleware

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// UserRateLimiter keeps one token bucket per identity and forgets identities that
// have been idle for longer than expiration.
type UserRateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*entry
	limit      rate.Limit
	burst      int
	expiration time.Duration
	now        func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewUserRateLimiter(perSecond float64, burst int, expiration time.Duration) *UserRateLimiter {
	return &UserRateLimiter{
		limiters:   make(map[string]*entry),
		limit:      rate.Limit(perSecond),
		burst:      burst,
		expiration: expiration,
		now:        time.Now,
	}
}

func (u *UserRateLimiter) Allow(identity string) bool {
	u.mu.Lock()
	now := u.now()
	e, ok := u.limiters[identity]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(u.limit, u.burst)}
		u.limiters[identity] = e
	}
	e.lastSeen = now
	u.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

// Sweep drops identities idle for longer than the expiration. Returns how many were removed.
func (u *UserRateLimiter) Sweep() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	cutoff := u.now().Add(-u.expiration)
	removed := 0
	for id, e := range u.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(u.limiters, id)
			removed++
		}
	}
	return removed
}

func RateLimit(rl *UserRateLimiter, getIdentity func(r *http.Request) (string, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := getIdentity(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if !rl.Allow(identity) {
				http.Error(w, "Rate limit exceeded, try again later", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIP extracts the real client IP from RemoteAddr
// Does NOT trust X-Real-IP or X-Forwarded-For headers (no reverse proxy)
func GetIP(r *http.Request) (string, error) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// Fallback: if RemoteAddr doesn't have port, use it directly
		ip = r.RemoteAddr
	}
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("invalid IP address: %s", ip)
	}
	return ip, nil
}
