package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, price *Price) error
	Update(ctx context.Context, db *gorm.DB, price *Price) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Price, error)
	List(ctx context.Context, db *gorm.DB, service string) ([]Price, error)
	// ListEffective returns documents owned by, or shared with, any of
	// services whose start date is not after now, newest first.
	ListEffective(ctx context.Context, db *gorm.DB, services []string, now time.Time) ([]Price, error)
	CountEffective(ctx context.Context, db *gorm.DB, service string, now time.Time) (int64, error)
}
