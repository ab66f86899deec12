package treasury

import (
	"github.com/smallbiznis/allotment/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("treasury",
	fx.Provide(func(cfg config.Config, log *zap.Logger) Gateway {
		return NewClient(ClientConfigFrom(cfg), log)
	}),
)
