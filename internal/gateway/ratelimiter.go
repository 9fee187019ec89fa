package gateway

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultRateLimitPermits is the per-connection permit pool size: a Client may dispatch at most this many frames in
// a single replenish period before receiving RateLimited.
const DefaultRateLimitPermits = 10

// DefaultRateLimitReplenishPeriod is how often the replenisher tops every Client's pool back up.
const DefaultRateLimitReplenishPeriod = time.Second

// permitPool is a per-Client rate-limit bucket. acquire is non-blocking: callers that fail must not increment any
// counter, matching the spec's "failure ⇒ RateLimited reply, frame dropped" contract (a failed acquire does not
// itself consume the message counter).
type permitPool struct {
	permits atomic.Int32
	max     int32
}

func newPermitPool(max int) *permitPool {
	p := &permitPool{max: int32(max)}
	p.permits.Store(p.max)
	return p
}

// acquire attempts to take one permit, returning false if the pool is empty.
func (p *permitPool) acquire() bool {
	for {
		cur := p.permits.Load()
		if cur <= 0 {
			return false
		}
		if p.permits.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// refill tops the pool back up to max, never exceeding it.
func (p *permitPool) refill() {
	p.permits.Store(p.max)
}

// Replenisher is the single process-wide ticker task that iterates the registry at a fixed cadence and tops every
// Client's permit pool back up. Starting it twice is harmless: only the first Run call owns a ticker; later calls
// return at once.
type Replenisher struct {
	registry *Registry
	period   time.Duration
	stop     chan struct{}
	started  atomic.Bool
}

// NewReplenisher constructs a Replenisher bound to registry, using period as the refill cadence (defaulting to
// DefaultRateLimitReplenishPeriod when zero or negative).
func NewReplenisher(registry *Registry, period time.Duration) *Replenisher {
	if period <= 0 {
		period = DefaultRateLimitReplenishPeriod
	}
	return &Replenisher{registry: registry, period: period, stop: make(chan struct{})}
}

// Run blocks, refilling every Client's permit pool once per period, until ctx is cancelled or Stop is called.
// Starting it more than once is a no-op: the first call owns the loop.
func (rp *Replenisher) Run(ctx context.Context) {
	if !rp.started.CompareAndSwap(false, true) {
		return
	}

	ticker := time.NewTicker(rp.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rp.stop:
			return
		case <-ticker.C:
			rp.registry.refillAll()
		}
	}
}

// Stop halts a running Replenisher.
func (rp *Replenisher) Stop() {
	select {
	case <-rp.stop:
	default:
		close(rp.stop)
	}
}

// refillAll iterates every Client currently known to the registry and refills its permit pool. O(total clients),
// negligible at 1 Hz per the component design notes.
func (r *Registry) refillAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[*Client]struct{})
	for _, occupants := range r.rooms {
		for _, c := range occupants {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			c.rateLimit.refill()
		}
	}
}
