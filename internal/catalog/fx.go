package catalog

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/allotment/internal/config"
	"github.com/smallbiznis/allotment/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("catalog",
	fx.Provide(provide),
	fx.Invoke(registerBootRefresh),
)

type params struct {
	fx.In

	DB      *gorm.DB
	Redis   *redis.Client `optional:"true"`
	Log     *zap.Logger
	Config  config.Config
	Metrics *metrics.Metrics `optional:"true"`
}

func provide(p params) *Catalog {
	return New(p.Log, NewDBSource(p.DB), NewRedisSnapshot(p.Redis), p.Metrics, p.Config.Catalog.TTL)
}

func registerBootRefresh(lc fx.Lifecycle, c *Catalog, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := c.Start(ctx); err != nil && ctx.Err() == nil {
					log.Error("catalog boot refresh stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
