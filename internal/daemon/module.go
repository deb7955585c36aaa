package daemon

import (
	"context"

	"github.com/securechat/schat/internal/bus"
	"github.com/securechat/schat/internal/chat"
	"github.com/securechat/schat/internal/config"
	"github.com/securechat/schat/internal/gateway"
	"github.com/securechat/schat/internal/identity"
	"github.com/securechat/schat/internal/lock"
	"github.com/securechat/schat/internal/logging"
	"github.com/securechat/schat/internal/profile"
	"github.com/securechat/schat/internal/status"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideIdentityStore,
			provideGateway,
			provideSynchronizer,
			provideLoop,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() *config.Config {
	return config.LoadOrDefault(profile.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideIdentityStore(p Params, _ *lock.Lock, logger *zap.Logger) (*identity.Store, error) {
	dbPath := profile.IdentityDBPath(p.ProfileName)
	store, err := identity.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := store.Migrate()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("identity store initialized", zap.String("path", dbPath))
	return store, nil
}

func provideGateway(cfg *config.Config, logger *zap.Logger) *gateway.Client {
	logger.Info("gateway configured", zap.String("server_url", cfg.ServerURL))
	return gateway.New(cfg.ServerURL, cfg.RequestTimeout())
}

func provideSynchronizer(gw *gateway.Client, store *identity.Store, machine *status.Machine, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *chat.Synchronizer {
	return chat.New(gw, store, machine, b, logger, cfg.DeliveryDelay())
}

func provideLoop(sync *chat.Synchronizer, logger *zap.Logger) *Loop {
	return NewLoop(sync, logger, defaultRefreshInterval)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, store *identity.Store, sync *chat.Synchronizer, loop *Loop, b *bus.Bus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Log bus traffic for diagnostics. The empty prefix matches
			// every event kind; the subscription lives as long as the daemon.
			events, _ := b.Subscribe("", 64)
			go func() {
				for evt := range events {
					logger.Debug("event", zap.String("kind", evt.Kind))
				}
			}()

			go func() {
				sync.Bootstrap(context.Background())
				loop.Start(context.Background())
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			loop.Stop()
			if err := store.Close(); err != nil {
				logger.Warn("error closing identity store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
