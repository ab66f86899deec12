package pricemodifier

import (
	"github.com/smallbiznis/allotment/internal/pricemodifier/repository"
	"github.com/smallbiznis/allotment/internal/pricemodifier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricemodifier.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
