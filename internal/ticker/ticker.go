// Package ticker re-runs a refresh on a fixed interval for as long as the
// view that owns it is alive.
package ticker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultInterval = 30 * time.Second

// RefreshFunc is one pass of the fetch-through-cache pipeline.
type RefreshFunc func(ctx context.Context) error

type Ticker struct {
	interval time.Duration
	refresh  RefreshFunc
	timeout  time.Duration
	log      *logrus.Entry

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

func New(name string, interval time.Duration, refresh RefreshFunc) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{
		interval: interval,
		refresh:  refresh,
		timeout:  90 * time.Second,
		log:      logrus.WithFields(logrus.Fields{"component": "ticker", "ticker": name}),
	}
}

// Start runs refresh immediately and then every interval in the background
// until ctx ends or Stop is called.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		t.log.Warn("already running")
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.done = make(chan struct{})
	stopCh, done := t.stopCh, t.done
	t.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
		}()

		t.runOnce(ctx)

		tk := time.NewTicker(t.interval)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-tk.C:
				t.runOnce(ctx)
			}
		}
	}()

	t.log.Infof("started (every %s)", t.interval)
}

// Stop cancels the timer and waits for an in-flight refresh to return.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	close(t.stopCh)
	t.running = false
	done := t.done
	t.mu.Unlock()

	<-done
	t.log.Info("stopped")
}

// Wait blocks until the loop has exited.
func (t *Ticker) Wait() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Ticker) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.refresh(rctx); err != nil {
		t.log.Warnf("refresh failed: %v", err)
	}
}
