package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository reads and writes subscriptions with their allocation tree.
// Finders return nil, nil when nothing matches. Update methods return the
// number of rows matched by the id and version predicate; a version of 0
// skips the version check.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	InsertAllocation(ctx context.Context, db *gorm.DB, allocation *Allocation) error
	InsertSuballocation(ctx context.Context, db *gorm.DB, suballocation *Suballocation) error

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByOwner(ctx context.Context, db *gorm.DB, entity Entity, entityReference, service string) ([]Subscription, error)
	ListByOwner(ctx context.Context, db *gorm.DB, entity Entity, entityReference string) ([]Subscription, error)
	ListRenewable(ctx context.Context, db *gorm.DB, renewedBefore time.Time, after snowflake.ID, limit int) ([]Subscription, error)

	UpdateAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, change AllocationChange) (int64, error)
	TouchAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID, lastRenewDate time.Time) (int64, error)
	UpdateSuballocation(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, quantityDelta int64) (int64, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status SubscriptionStatus, at time.Time) (int64, error)

	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	DeleteAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	DeleteSuballocation(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	// AllocationUsage returns the quantity of an allocation and the total
	// lent out through its suballocations.
	AllocationUsage(ctx context.Context, db *gorm.DB, id snowflake.ID) (quantity int64, lent int64, err error)
}

// AllocationChange is a partial allocation update. Nil fields are kept;
// QuantityDelta is added to the stored quantity.
type AllocationChange struct {
	QuantityDelta *int64
	LastRenewDate *time.Time
}
