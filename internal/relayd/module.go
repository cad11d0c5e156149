package relayd

import (
	"context"

	"github.com/matheus3301/meshchat/internal/config"
	"github.com/matheus3301/meshchat/internal/hub"
	"github.com/matheus3301/meshchat/internal/logging"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Params holds the command-line inputs passed to the fx module.
type Params struct {
	ConfigPath string
}

// Module returns the fx module for the relay, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("relayd",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			hub.NewRegistry,
			hub.New,
			NewServer,
			NewHealthServer,
		),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Relay, error) {
	return config.LoadRelay(p.ConfigPath)
}

func provideLogger(cfg *config.Relay) (*zap.Logger, error) {
	return logging.NewConsole(cfg.LogLevel)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, healthSrv *HealthServer, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			if healthSrv != nil {
				go func() {
					if err := healthSrv.Start(); err != nil {
						logger.Error("grpc health server error", zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			healthSrv.Stop()
			srv.Stop(ctx)
			_ = logger.Sync()
			return nil
		},
	})
}
