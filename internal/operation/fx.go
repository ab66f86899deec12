package operation

import (
	"github.com/smallbiznis/allotment/internal/operation/repository"
	"github.com/smallbiznis/allotment/internal/operation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("operation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
