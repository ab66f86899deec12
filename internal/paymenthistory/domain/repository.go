package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *PaymentHistory) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentHistory, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*PaymentHistory, error)
	LinkTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID, transactionID, status string, at time.Time) (bool, error)
	LinkInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID, invoice Invoice, at time.Time) (bool, error)
}
