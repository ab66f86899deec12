package identity

import (
	"github.com/smallbiznis/allotment/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("identity",
	fx.Provide(func(cfg config.Config) (*Tokens, error) {
		return NewTokens(cfg.AuthJWTSecret)
	}),
)
