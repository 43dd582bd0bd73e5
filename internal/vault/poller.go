package vault

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the poll period between background refreshes.
const DefaultInterval = 10 * time.Second

// Poller invokes Store.Refresh on a fixed interval while the vault view
// is open. Refresh failures are logged and swallowed: background polling
// must never interrupt an active session.
type Poller struct {
	store    *Store
	interval time.Duration
	log      *zap.Logger

	mu   sync.Mutex
	stop chan struct{}
}

// NewPoller constructs a Poller. A non-positive interval selects
// DefaultInterval.
func NewPoller(store *Store, interval time.Duration, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{store: store, interval: interval, log: log}
}

// Start begins polling. Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	stop := make(chan struct{})
	p.stop = stop
	go p.run(ctx, stop)
}

func (p *Poller) run(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.store.Refresh(ctx); err != nil {
				p.log.Warn("background refresh failed", zap.Error(err))
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop clears the timer. Safe to call repeatedly or when never started.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == nil {
		return
	}
	close(p.stop)
	p.stop = nil
}

// Running reports whether the poller is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}
