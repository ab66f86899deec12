package scheduler

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(provideLocker),
	fx.Provide(New),
	fx.Invoke(register),
)

type lockerParams struct {
	fx.In

	Redis *redis.Client `optional:"true"`
}

func provideLocker(p lockerParams, cfg Config) *Locker {
	return NewLocker(p.Redis, cfg.LockTTL)
}

func register(lc fx.Lifecycle, cfg Config, sched *Scheduler, log *zap.Logger) {
	if !cfg.Enabled {
		log.Info("scheduler disabled")
		return
	}
	if sched.locker == nil {
		log.Warn("scheduler running without redis lock; run a single replica")
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return sched.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			sched.Stop(stopCtx)
			return nil
		},
	})
}
