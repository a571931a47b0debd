// Package ratelimit spaces out calls to the upstream price API.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kjannette/cryptodash/internal/metrics"
)

// DefaultInterval is the minimum spacing CoinGecko's public tier tolerates.
const DefaultInterval = 1200 * time.Millisecond

var errReservation = errors.New("ratelimit: reservation refused")

// Gate is a process-wide gate: the starts of any two operations passed
// through the same Gate are at least Interval apart, whatever coin they are
// for. Waiting callers hold a reservation, not a lock, so other work keeps
// running while they sleep.
type Gate struct {
	interval time.Duration
	limiter  *rate.Limiter
	log      *logrus.Entry

	// The limiter counts in float tokens and can open a few nanoseconds
	// early; lastOpen holds the spacing exact on the monotonic clock.
	mu       sync.Mutex
	lastOpen time.Time
	opened   func(time.Time) // test hook, called under mu
}

func NewGate(interval time.Duration) *Gate {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Gate{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		log:      logrus.WithField("component", "ratelimit"),
	}
}

func (g *Gate) Interval() time.Duration { return g.interval }

// Wait blocks until the caller may start its operation. It returns the
// context's error if ctx ends first; the slot is then released.
func (g *Gate) Wait(ctx context.Context) error {
	r := g.limiter.Reserve()
	if !r.OK() {
		// Only possible with burst 0.
		return errReservation
	}

	if delay := r.Delay(); delay > 0 {
		g.log.Debugf("rate limiting: waiting %s", delay)
		metrics.GateWaits.Inc()
		metrics.GateWaitSeconds.Observe(delay.Seconds())

		if err := sleep(ctx, delay); err != nil {
			r.Cancel()
			return err
		}
	}
	return g.open(ctx)
}

func (g *Gate) open(ctx context.Context) error {
	for {
		g.mu.Lock()
		now := time.Now()
		since := now.Sub(g.lastOpen)
		if g.lastOpen.IsZero() || since >= g.interval {
			g.lastOpen = now
			if g.opened != nil {
				g.opened(now)
			}
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		if err := sleep(ctx, g.interval-since); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op once the gate opens. op's result and error are returned
// unchanged.
func Do[T any](ctx context.Context, g *Gate, op func(context.Context) (T, error)) (T, error) {
	if err := g.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return op(ctx)
}
