package migration

import (
	"strings"

	"github.com/smallbiznis/allotment/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(run),
)

func run(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if !cfg.DBRunMigrations {
		return nil
	}
	// Only the postgres schema is versioned.
	if !strings.EqualFold(cfg.DBType, "postgres") {
		log.Info("skipping migrations", zap.String("db_type", cfg.DBType))
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := RunMigrations(sqlDB); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}
