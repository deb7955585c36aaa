package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultRefreshInterval = 5 * time.Second

// refresher is the synchronizer surface the loop drives.
type refresher interface {
	RefreshRoster(ctx context.Context)
	RefreshSummaries(ctx context.Context)
	RefreshConversation(ctx context.Context, peerID string) error
	SelectedPeer() string
}

// Loop periodically reconciles local state against the server: summaries
// on every tick, the active conversation when one is selected, and the
// roster every few ticks since accounts change rarely.
type Loop struct {
	syncer   refresher
	logger   *zap.Logger
	interval time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// NewLoop creates a refresh loop. It does nothing until Start is called.
func NewLoop(s refresher, logger *zap.Logger, interval time.Duration) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	return &Loop{syncer: s, logger: logger, interval: interval}
}

// Start launches the ticker goroutine. Calling Start on a running loop
// is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop != nil {
		return
	}
	l.stop = make(chan struct{})
	l.stopped = make(chan struct{})
	go l.run(ctx, l.stop, l.stopped)
	l.logger.Info("refresh loop started", zap.Duration("interval", l.interval))
}

// Stop halts the loop and waits for the current tick to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	stop, stopped := l.stop, l.stopped
	l.stop = nil
	l.stopped = nil
	l.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-stopped
	l.logger.Info("refresh loop stopped")
}

const rosterRefreshEvery = 6

func (l *Loop) run(ctx context.Context, stop, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			l.syncer.RefreshSummaries(ctx)
			if peer := l.syncer.SelectedPeer(); peer != "" {
				if err := l.syncer.RefreshConversation(ctx, peer); err != nil {
					l.logger.Warn("background conversation refresh failed", zap.Error(err))
				}
			}
			if tick%rosterRefreshEvery == 0 {
				l.syncer.RefreshRoster(ctx)
			}
		}
	}
}
