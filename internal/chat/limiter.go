package chat

import (
	"sync"

	"github.com/uber/jaeger-client-go/utils"
)

// floodGuard 为每个会话维护一个令牌桶，rate 为 0 时不限流。
type floodGuard struct {
	rate  float64
	burst float64

	mu       sync.Mutex
	limiters map[uint64]utils.RateLimiter
}

func newFloodGuard(rate, burst float64) *floodGuard {
	if burst < 1 {
		burst = 1
	}
	return &floodGuard{
		rate:     rate,
		burst:    burst,
		limiters: make(map[uint64]utils.RateLimiter),
	}
}

func (g *floodGuard) enabled() bool {
	return g.rate > 0
}

// allow 消耗一个令牌，令牌不足时返回 false。
func (g *floodGuard) allow(sessionID uint64) bool {
	if !g.enabled() {
		return true
	}
	g.mu.Lock()
	rl, ok := g.limiters[sessionID]
	if !ok {
		rl = utils.NewRateLimiter(g.rate, g.burst)
		g.limiters[sessionID] = rl
	}
	g.mu.Unlock()
	return rl.CheckCredit(1)
}

func (g *floodGuard) forget(sessionID uint64) {
	g.mu.Lock()
	delete(g.limiters, sessionID)
	g.mu.Unlock()
}
