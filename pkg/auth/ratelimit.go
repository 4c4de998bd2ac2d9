package auth

import (
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// ActorLimiter holds one token bucket per authenticated actor, falling back
// to the remote address for unauthenticated requests.
type ActorLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewActorLimiter(perSecond float64, burst int) *ActorLimiter {
	return &ActorLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *ActorLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// Middleware enforces the per-actor rate limit, answering 429 with a
// Retry-After header when the bucket is empty.
func (l *ActorLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if actor, err := ActorFrom(r.Context()); err == nil {
			key = actor.UserID
		}
		if !l.limiterFor(key).Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(1))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
