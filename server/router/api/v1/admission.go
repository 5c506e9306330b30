package v1

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	// Idle limiters are swept once the map grows past this size.
	maxTrackedOwners = 10000
	limiterIdleTTL   = 10 * time.Minute
)

type ownerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ownerLimiters hands out one token bucket per owner.
type ownerLimiters struct {
	mu       sync.Mutex
	limiters map[string]*ownerLimiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func newOwnerLimiters(perMinute, burst int) *ownerLimiters {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &ownerLimiters{
		limiters: make(map[string]*ownerLimiter),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

func (l *ownerLimiters) allow(ownerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.limiters[ownerID]
	if !ok {
		if len(l.limiters) >= maxTrackedOwners {
			l.sweep(now)
		}
		entry = &ownerLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ownerID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *ownerLimiters) sweep(now time.Time) {
	for id, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.limiters, id)
		}
	}
}

// admit applies the per-owner rate limit and the global concurrency bound.
// Rejections happen before any state is touched. The returned release func
// must be called once the exchange has finished.
func (s *APIV1Service) admit(c echo.Context, ownerID string) (func(), error) {
	if !s.limiters.allow(ownerID) {
		s.recordRejection("rate_limited")
		return nil, echo.NewHTTPError(http.StatusTooManyRequests, "too many exchanges, slow down")
	}
	if err := s.exchangeSemaphore.Acquire(c.Request().Context(), 1); err != nil {
		s.recordRejection("overloaded")
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "server is busy, try again")
	}
	return func() { s.exchangeSemaphore.Release(1) }, nil
}
