// Package testutil builds throwaway databases for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	operationdomain "github.com/smallbiznis/allotment/internal/operation/domain"
	paymenthistorydomain "github.com/smallbiznis/allotment/internal/paymenthistory/domain"
	pricedomain "github.com/smallbiznis/allotment/internal/price/domain"
	pricemodifierdomain "github.com/smallbiznis/allotment/internal/pricemodifier/domain"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// Models is every table the billing engine reads or writes.
func Models() []any {
	return []any{
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.Allocation{},
		&subscriptiondomain.Suballocation{},
		&pricedomain.Price{},
		&pricedomain.PriceItem{},
		&pricemodifierdomain.Modifier{},
		&pricemodifierdomain.ModifierItem{},
		&operationdomain.Record{},
		&paymenthistorydomain.PaymentHistory{},
	}
}

// NewDB opens a private in-memory sqlite database migrated with Models and
// any extra models.
func NewDB(t testing.TB, extra ...any) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(append(Models(), extra...)...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Exec(`CREATE TABLE billing_services (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		core BOOLEAN NOT NULL DEFAULT FALSE
	)`).Error; err != nil {
		t.Fatalf("create billing_services: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// Shared-cache memory databases vanish with their last connection.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Node returns a snowflake node for ids in tests.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}
