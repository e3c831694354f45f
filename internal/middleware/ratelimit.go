package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/kit/log"
	"golang.org/x/time/rate"

	"github.com/mbeoliero/tradechat/internal/config"
	"github.com/mbeoliero/tradechat/pkg/errcode"
	"github.com/mbeoliero/tradechat/pkg/response"
)

// limiterIdle is how long an unused party limiter is kept
const limiterIdle = 10 * time.Minute

type partyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PartyLimiter hands out one token bucket per party. It is shared by the
// REST submission routes and the websocket send request.
type PartyLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*partyLimiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

// NewPartyLimiter creates a PartyLimiter, nil when rate limiting is disabled
func NewPartyLimiter(cfg *config.RateLimitConfig) *PartyLimiter {
	if !cfg.Enabled {
		return nil
	}
	return &PartyLimiter{
		limiters:  make(map[string]*partyLimiter),
		limit:     rate.Limit(cfg.SendPerSecond),
		burst:     cfg.Burst,
		lastSweep: time.Now(),
	}
}

// Allow reports whether partyId may perform one more submission now.
// A nil limiter allows everything.
func (l *PartyLimiter) Allow(partyId string) bool {
	if l == nil {
		return true
	}

	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterIdle {
		for id, pl := range l.limiters {
			if now.Sub(pl.lastSeen) > limiterIdle {
				delete(l.limiters, id)
			}
		}
		l.lastSweep = now
	}

	pl, ok := l.limiters[partyId]
	if !ok {
		pl = &partyLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[partyId] = pl
	}
	pl.lastSeen = now
	return pl.limiter.AllowN(now, 1)
}

// RateLimit rejects requests once the caller's bucket is empty. It must run
// after JWTAuth.
func RateLimit(l *PartyLimiter) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		partyId := GetPartyId(c)
		if !l.Allow(partyId) {
			log.CtxWarn(ctx, "rate limited: party_id=%s, path=%s", partyId, string(c.Path()))
			response.ErrorWithCode(ctx, c, errcode.ErrTooManyRequests)
			c.Abort()
			return
		}
		c.Next(ctx)
	}
}
