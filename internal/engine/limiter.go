package engine

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter spaces out requests to the same host with a jittered delay.
// It is shared by every unit of a batch.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	jitter   time.Duration
}

// NewHostLimiter creates a limiter allowing rps requests per second per host,
// each followed by up to jitter of extra random delay. rps <= 0 disables pacing.
func NewHostLimiter(rps float64, jitter time.Duration) *HostLimiter {
	l := rate.Inf
	if rps > 0 {
		l = rate.Limit(rps)
	}
	return &HostLimiter{limiters: make(map[string]*rate.Limiter), rps: l, jitter: jitter}
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.rps, 1)
		h.limiters[host] = l
	}
	return l
}

// Wait blocks until host may be contacted again or ctx ends.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil || host == "" {
		return nil
	}
	if err := h.limiterFor(host).Wait(ctx); err != nil {
		return err
	}
	if h.jitter <= 0 {
		return nil
	}
	d := time.Duration(rand.Int64N(int64(h.jitter)))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Hosts returns the number of hosts seen so far.
func (h *HostLimiter) Hosts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.limiters)
}
