package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/meshchat/internal/bus"
	"github.com/matheus3301/meshchat/internal/config"
	"github.com/matheus3301/meshchat/internal/control"
	"github.com/matheus3301/meshchat/internal/delivery"
	"github.com/matheus3301/meshchat/internal/device"
	"github.com/matheus3301/meshchat/internal/link"
	"github.com/matheus3301/meshchat/internal/lock"
	"github.com/matheus3301/meshchat/internal/logging"
	"github.com/matheus3301/meshchat/internal/status"
	"github.com/matheus3301/meshchat/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Params holds the resolved device configuration passed to the fx module.
type Params struct {
	DeviceName string
	SocketPath string // optional override for testing; empty = use default
	HubURL     string // optional override; empty = config file or environment
}

// Module returns the fx module for the client daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideLink,
			providePipeline,
			provideHandler,
			NewServer,
			NewNotifier,
		),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(device.LogPath(p.DeviceName), p.DeviceName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := device.EnsureDir(p.DeviceName); err != nil {
		return nil, err
	}
	logger.Info("acquiring device lock", zap.String("device", p.DeviceName))
	l, err := lock.Acquire(device.Dir(p.DeviceName), p.DeviceName)
	if err != nil {
		return nil, err
	}
	logger.Info("device lock acquired", zap.Int("pid", l.Holder().PID))
	return l, nil
}

// provideStore depends on the lock so the database is never opened by a
// second daemon for the same device.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := device.DBPath(p.DeviceName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideLink(p Params, db *store.DB, m *status.Machine, b *bus.Bus, logger *zap.Logger) (*link.Manager, error) {
	base := p.HubURL
	if base == "" {
		resolved, err := config.ResolveHubURL(device.ConfigPath())
		if err != nil {
			return nil, err
		}
		base = resolved
	}
	url, err := link.HubURL(base)
	if err != nil {
		return nil, fmt.Errorf("hub url: %w", err)
	}
	logger.Info("hub configured", zap.String("url", url))
	return link.NewManager(link.Options{
		URL:      url,
		Dialer:   link.WebSocketDialer{},
		Identity: db.GetProfile,
	}, m, b, logger.Named("link")), nil
}

func providePipeline(db *store.DB, lm *link.Manager, b *bus.Bus, logger *zap.Logger) *delivery.Pipeline {
	return delivery.New(db, lm, b, logger.Named("delivery"))
}

func provideHandler(p Params, pipeline *delivery.Pipeline, lm *link.Manager, logger *zap.Logger) *control.Handler {
	return control.NewHandler(p.DeviceName, pipeline, lm, logger.Named("control"))
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	db *store.DB,
	lm *link.Manager,
	pipeline *delivery.Pipeline,
	notifier *Notifier,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			profile, err := pipeline.EnsureIdentity()
			if err != nil {
				return err
			}
			logger.Info("identity loaded", zap.String("id", profile.ID), zap.String("name", profile.Name))

			notifier.Start(context.Background())
			lm.SetHandler(pipeline.HandleFrame)
			pipeline.Start(context.Background())

			// Start control server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control server error", zap.Error(err))
				}
			}()

			if pipeline.Settings().AutoConnect {
				lm.Connect()
			} else {
				logger.Info("auto-connect disabled, link stays down")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			lm.Teardown()
			pipeline.Stop()
			notifier.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
