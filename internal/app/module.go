package app

import (
	"context"
	"time"

	"github.com/matheus3301/peerchat/internal/bus"
	"github.com/matheus3301/peerchat/internal/config"
	"github.com/matheus3301/peerchat/internal/lock"
	"github.com/matheus3301/peerchat/internal/logging"
	"github.com/matheus3301/peerchat/internal/outbox"
	"github.com/matheus3301/peerchat/internal/profile"
	"github.com/matheus3301/peerchat/internal/store"
	intsync "github.com/matheus3301/peerchat/internal/sync"
	"github.com/matheus3301/peerchat/internal/transport/httpapi"
	"github.com/matheus3301/peerchat/internal/transport/socket"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// StartTimeout bounds fx start and stop for a chat session.
const StartTimeout = 15 * time.Second

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	Config      *config.Config
	// Console mirrors logs to stderr. Off while the TUI owns the terminal.
	Console bool
	// Exclusive holds the profile lock for the life of the app.
	Exclusive bool
	// Logger overrides the file logger; used by tests.
	Logger *zap.Logger
}

// Module returns the fx module for a chat session, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("peerchat",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			store.New,
			provideAPIClient,
			providePush,
			provideAcker,
			provideSynchronizer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(lc fx.Lifecycle, p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger, closeFn, err := logging.New(profile.LogPath(p.ProfileName), p.ProfileName, logging.Options{Console: p.Console})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(closeFn))
	return logger, nil
}

func provideLock(lc fx.Lifecycle, p Params, logger *zap.Logger) (*lock.Lock, error) {
	if !p.Exclusive {
		return nil, nil
	}
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired", zap.String("path", l.Path()))
	lc.Append(fx.StopHook(func() {
		if err := l.Release(); err != nil {
			logger.Warn("error releasing lock", zap.Error(err))
		}
	}))
	return l, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideAPIClient(p Params, logger *zap.Logger) (*httpapi.Client, error) {
	return httpapi.New(httpapi.Options{
		BaseURL: p.Config.ServerURL,
		Token:   p.Config.Token,
		Timeout: p.Config.RequestTimeout.Duration,
	}, logger.Named("api"))
}

func providePush(p Params, logger *zap.Logger) (*socket.Client, error) {
	return socket.New(socket.Options{
		URL:        p.Config.PushURL(),
		UserID:     p.Config.UserID,
		Token:      p.Config.Token,
		MaxBackoff: p.Config.ReconnectMaxInterval.Duration,
	}, logger.Named("push"))
}

func provideAcker(p Params, api *httpapi.Client, logger *zap.Logger) *outbox.Acker {
	return outbox.NewAcker(api, outbox.Options{
		QueueSize:     p.Config.AckQueueSize,
		RatePerSecond: p.Config.AckRatePerSecond,
		Burst:         p.Config.AckBurst,
		Timeout:       p.Config.RequestTimeout.Duration,
	}, logger.Named("outbox"))
}

func provideSynchronizer(p Params, st *store.Store, api *httpapi.Client, push *socket.Client, acker *outbox.Acker, b *bus.Bus, logger *zap.Logger) (*intsync.Synchronizer, error) {
	return intsync.NewSynchronizer(st, api, push, acker, b, logger.Named("sync"), p.Config.DedupeWindow)
}

func registerLifecycle(lc fx.Lifecycle, p Params, _ *lock.Lock, syncer *intsync.Synchronizer, push *socket.Client, acker *outbox.Acker, b *bus.Bus, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	timeout := p.Config.RequestTimeout.Duration

	loadRoster := func() {
		rctx, rcancel := context.WithTimeout(ctx, timeout)
		defer rcancel()
		// Failures already reach the user as a notice.
		_ = syncer.LoadRoster(rctx)
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			acker.Start(ctx)

			// Called from the push goroutine only.
			reconnected := false
			push.OnStateChange(func(connected bool) {
				if !connected {
					syncer.Detach()
					b.Emit(bus.KindPushDisconnected, nil)
					return
				}
				if err := syncer.Attach(); err != nil {
					logger.Warn("attach push handler", zap.Error(err))
					return
				}
				b.Emit(bus.KindPushConnected, nil)
				if reconnected {
					// Counts may have moved while the connection was down.
					go loadRoster()
				}
				reconnected = true
			})
			push.OnGiveUp(func(err error) {
				logger.Error("push stopped retrying", zap.Error(err))
				b.Emit(bus.KindNotice, intsync.Notice{Op: intsync.OpPush, Err: err})
			})
			push.Start(ctx)

			go loadRoster()
			logger.Info("session started",
				zap.String("server", p.Config.ServerURL),
				zap.String("user", p.Config.UserID),
			)
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			push.Stop()
			syncer.Teardown()
			acker.Stop()
			logger.Info("session stopped")
			return nil
		},
	})
}
