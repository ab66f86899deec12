// Package domain contains promotional price overrides.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	pricedomain "github.com/smallbiznis/allotment/internal/price/domain"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"gorm.io/datatypes"
)

// Modifier overrides item prices of a service for a time window. A
// modifier without entity applies to everyone; otherwise it applies to the
// one (entity, entityReference) owner only.
type Modifier struct {
	ID              snowflake.ID              `gorm:"primaryKey" json:"id"`
	Service         string                    `gorm:"type:text;not null;index" json:"service"`
	Entity          subscriptiondomain.Entity `gorm:"type:text;not null;default:''" json:"entity,omitempty"`
	EntityReference string                    `gorm:"type:text;not null;default:''" json:"entityReference,omitempty"`
	StartDate       time.Time                 `gorm:"not null" json:"startDate"`
	EndDate         *time.Time                `json:"endDate,omitempty"`
	Description     string                    `gorm:"type:text" json:"description,omitempty"`
	Version         int64                     `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time                 `gorm:"not null" json:"createdAt"`
	UpdatedAt       time.Time                 `gorm:"not null" json:"updatedAt"`

	Items []ModifierItem `gorm:"-" json:"items"`
}

func (Modifier) TableName() string { return "billing_subscription_price_modifiers" }

// IsGeneral reports whether the modifier applies to every owner.
func (m Modifier) IsGeneral() bool {
	return m.Entity == "" && m.EntityReference == ""
}

// ActiveAt reports whether now falls in [StartDate, EndDate).
func (m Modifier) ActiveAt(now time.Time) bool {
	if m.StartDate.After(now) {
		return false
	}
	return m.EndDate == nil || m.EndDate.After(now)
}

type ModifierItem struct {
	ID              snowflake.ID                              `gorm:"primaryKey" json:"id"`
	ModifierID      snowflake.ID                              `gorm:"not null;index" json:"modifierId"`
	BillingInterval int                                       `gorm:"not null" json:"billingInterval"`
	ItemType        subscriptiondomain.ItemType               `gorm:"type:text;not null" json:"itemType"`
	ItemReference   string                                    `gorm:"type:text;not null" json:"itemReference"`
	Description     string                                    `gorm:"type:text" json:"description,omitempty"`
	ItemPrice       datatypes.JSONType[pricedomain.ItemPrice] `gorm:"not null" json:"itemPrice"`
}

func (ModifierItem) TableName() string { return "billing_subscription_price_modifier_items" }

func (i ModifierItem) Key() subscriptiondomain.ItemKey {
	return subscriptiondomain.NewItemKey(i.BillingInterval, i.ItemReference, i.ItemType)
}
