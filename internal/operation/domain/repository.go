package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *Record) error
	// FindByID returns nil, nil when no record exists.
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Record, error)
}
