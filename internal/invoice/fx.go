package invoice

import (
	"context"

	"github.com/smallbiznis/allotment/internal/config"
	"github.com/smallbiznis/allotment/internal/invoice/domain"
	"github.com/smallbiznis/allotment/internal/invoice/render"
	"github.com/smallbiznis/allotment/internal/invoice/service"
	"github.com/smallbiznis/allotment/internal/invoice/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("invoice.service",
	fx.Provide(provideStore),
	fx.Provide(render.NewRenderer),
	fx.Provide(service.New),
)

func provideStore(cfg config.Config, log *zap.Logger) (domain.Store, error) {
	s3, err := store.NewS3(context.Background(), cfg.Invoice)
	if err != nil {
		return nil, err
	}
	if s3 == nil {
		log.Warn("invoice bucket not configured, invoices are kept in memory")
		return store.NewMemory("memory://invoices"), nil
	}
	return s3, nil
}
