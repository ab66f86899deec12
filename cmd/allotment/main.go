package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/allotment/internal/authorization"
	"github.com/smallbiznis/allotment/internal/billing"
	"github.com/smallbiznis/allotment/internal/catalog"
	"github.com/smallbiznis/allotment/internal/clock"
	"github.com/smallbiznis/allotment/internal/config"
	"github.com/smallbiznis/allotment/internal/identity"
	"github.com/smallbiznis/allotment/internal/invoice"
	"github.com/smallbiznis/allotment/internal/migration"
	"github.com/smallbiznis/allotment/internal/observability"
	"github.com/smallbiznis/allotment/internal/operation"
	"github.com/smallbiznis/allotment/internal/paymenthistory"
	"github.com/smallbiznis/allotment/internal/price"
	"github.com/smallbiznis/allotment/internal/pricemodifier"
	"github.com/smallbiznis/allotment/internal/processing"
	"github.com/smallbiznis/allotment/internal/scheduler"
	"github.com/smallbiznis/allotment/internal/server"
	"github.com/smallbiznis/allotment/internal/subscription"
	"github.com/smallbiznis/allotment/internal/treasury"
	"github.com/smallbiznis/allotment/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		identity.Module,
		authorization.Module,
		catalog.Module,
		treasury.Module,

		// Domains
		subscription.Module,
		price.Module,
		pricemodifier.Module,
		operation.Module,
		paymenthistory.Module,
		processing.Module,
		invoice.Module,
		billing.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
