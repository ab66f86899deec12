package paymenthistory

import (
	"github.com/smallbiznis/allotment/internal/paymenthistory/repository"
	"github.com/smallbiznis/allotment/internal/paymenthistory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("paymenthistory.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
