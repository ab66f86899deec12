package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Record is an immutable, stored list of operations. It is written before
// the charge and replayed only after the charge succeeds.
type Record struct {
	ID         snowflake.ID                         `gorm:"primaryKey" json:"id"`
	Operations datatypes.JSONSlice[UpdateOperation] `gorm:"not null" json:"operations"`
	CreatedAt  time.Time                            `gorm:"not null" json:"createdAt"`
}

func (Record) TableName() string { return "billing_subscription_operations" }
