package billing

import (
	"github.com/smallbiznis/allotment/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(service.New),
)
