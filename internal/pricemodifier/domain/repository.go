package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, modifier *Modifier) error
	Update(ctx context.Context, db *gorm.DB, modifier *Modifier) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Modifier, error)
	List(ctx context.Context, db *gorm.DB, service string) ([]Modifier, error)
	// ListActive returns modifiers of services active at now that are general
	// or target exactly (entity, entityReference), newest first.
	ListActive(ctx context.Context, db *gorm.DB, services []string, entity subscriptiondomain.Entity, entityReference string, now time.Time) ([]Modifier, error)
}
