package httpapi

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"

	"github.com/sparkleops/dbdistrib/internal/common"
	"github.com/sparkleops/dbdistrib/internal/logging"
	"github.com/sparkleops/dbdistrib/internal/server/auth"
	"github.com/sparkleops/dbdistrib/internal/server/config"
)

// requestIDMiddleware assigns each request a correlation id, echoed in the
// X-Request-Id response header and attached to error logs. An id supplied by
// the caller is kept so a runner can correlate retries.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// humanAuthMiddleware authenticates a human bearer token and resolves the
// principal's role from group membership. Handlers read both from the
// request context and never see the token itself.
func humanAuthMiddleware(a auth.Authenticator, cfg *config.Config, log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.Authenticate(r.Context(), bearerToken(r))
			if err != nil {
				writeError(r.Context(), log, w, err)
				return
			}
			role := auth.ResolveRole(p, cfg.AdminGroups, cfg.AuditorGroups)
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p, role)))
		})
	}
}

// requireAdmin gates an endpoint to principals with the admin role. It runs
// after humanAuthMiddleware.
func requireAdmin(log logging.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, role, ok := principalFrom(r.Context())
		if !ok {
			writeError(r.Context(), log, w, common.ErrUnauthenticated)
			return
		}
		if role != auth.RoleAdmin {
			writeError(r.Context(), log, w, common.ErrForbidden)
			return
		}
		next(w, r)
	}
}

// runnerAuthMiddleware verifies the runner shared secret.
func runnerAuthMiddleware(ra *auth.RunnerAuthenticator, log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := ra.Verify(bearerToken(r)); err != nil {
				writeError(r.Context(), log, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter throttles runner traffic per remote address. Limiters are kept
// in a TTL cache so idle runners do not accumulate state.
type rateLimiter struct {
	limiters *ttlcache.Cache[string, *rate.Limiter]
	rps      float64
	burst    int
	log      logging.Logger
}

func newRateLimiter(rps float64, burst int, log logging.Logger) *rateLimiter {
	cache := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](time.Minute),
		ttlcache.WithDisableTouchOnHit[string, *rate.Limiter](),
	)
	go cache.Start()
	return &rateLimiter{limiters: cache, rps: rps, burst: burst, log: log}
}

// stop terminates the cache janitor goroutine started by newRateLimiter.
func (rl *rateLimiter) stop() {
	rl.limiters.Stop()
}

func (rl *rateLimiter) get(r *http.Request) *rate.Limiter {
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if item := rl.limiters.Get(addr); item != nil {
		return item.Value()
	}
	limiter := rate.NewLimiter(rate.Limit(rl.rps), rl.burst)
	rl.limiters.Set(addr, limiter, ttlcache.DefaultTTL)
	return limiter
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := rl.get(r).Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			rl.log.Warn(r.Context(), "rate limit exceeded", "path", r.URL.Path, "remoteAddr", r.RemoteAddr)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			writeJSON(w, http.StatusTooManyRequests, errorBody{
				StatusCode: http.StatusTooManyRequests,
				Error:      "Too Many Requests",
				Message:    "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
