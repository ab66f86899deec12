package db

import (
	"context"
	"strings"

	"github.com/smallbiznis/allotment/internal/config"
	"github.com/smallbiznis/allotment/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	gormprom "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(New),
	fx.Provide(NewRedis),
)

// New opens the database, attaches tracing and pool metrics, and closes the
// pool on shutdown.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	gormCfg := logger.DefaultGormLoggerConfig()
	if !cfg.IsProduction() {
		gormCfg.Level = gormlogger.Info
	}

	conn, err := Open(dialector, gormCfg)
	if err != nil {
		return nil, err
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.DBName), otelgorm.WithoutQueryVariables())); err != nil {
		return nil, err
	}
	if strings.EqualFold(cfg.DBType, "postgres") {
		if err := conn.Use(gormprom.New(gormprom.Config{
			DBName:          cfg.DBName,
			RefreshInterval: 15,
			StartServer:     false,
		})); err != nil {
			return nil, err
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	pool := poolConfig(cfg)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConn)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConn)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return sqlDB.PingContext(ctx)
			},
			OnStop: func(ctx context.Context) error {
				log.Info("closing database pool")
				return sqlDB.Close()
			},
		})
	}

	return conn, nil
}

// Open opens a gorm connection with the zap query logger.
func Open(dialector gorm.Dialector, logCfg logger.GormLoggerConfig) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		Logger:         logger.NewGormLogger(logCfg),
		TranslateError: true,
	})
}
