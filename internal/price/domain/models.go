// Package domain contains the effective-dated subscription price catalogue.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"gorm.io/datatypes"
)

// StrategyType names the pricing strategy of an item.
type StrategyType string

const (
	StrategyQuantity StrategyType = "QUANTITY"
)

// InclusivityLowerClosed is the only supported tier boundary rule: a tier
// covers [ranges[i], ranges[i+1]).
const InclusivityLowerClosed = "[)"

// ItemPrice is the tiered price shape stored with each item. Every
// prices[i] holds one flat price or a [min, max] pair interpolated across
// the tier.
type ItemPrice struct {
	Type        StrategyType `json:"type"`
	Ranges      []float64    `json:"ranges"`
	Prices      [][]float64  `json:"prices"`
	Inclusivity string       `json:"inclusivity,omitempty"`
}

// Price is a dated price document for one service. The most recent document
// whose start date has passed is the one in effect.
type Price struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Service     string       `gorm:"type:text;not null;index" json:"service"`
	StartDate   time.Time    `gorm:"not null;index" json:"startDate"`
	Description string       `gorm:"type:text" json:"description,omitempty"`
	Version     int64        `gorm:"not null;default:1" json:"version"`
	CreatedAt   time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updatedAt"`

	Items []PriceItem `gorm:"-" json:"items"`
}

func (Price) TableName() string { return "billing_subscription_prices" }

type PriceItem struct {
	ID              snowflake.ID                  `gorm:"primaryKey" json:"id"`
	PriceID         snowflake.ID                  `gorm:"not null;index" json:"priceId"`
	BillingInterval int                           `gorm:"not null" json:"billingInterval"`
	ItemType        subscriptiondomain.ItemType   `gorm:"type:text;not null" json:"itemType"`
	ItemReference   string                        `gorm:"type:text;not null" json:"itemReference"`
	Currency        string                        `gorm:"type:text;not null" json:"currency"`
	UsableBy        datatypes.JSONSlice[string]   `json:"usableBy"`
	Description     string                        `gorm:"type:text" json:"description,omitempty"`
	ItemPrice       datatypes.JSONType[ItemPrice] `gorm:"not null" json:"itemPrice"`
}

func (PriceItem) TableName() string { return "billing_subscription_price_items" }

// Key returns the item key the price applies to.
func (i PriceItem) Key() subscriptiondomain.ItemKey {
	return subscriptiondomain.NewItemKey(i.BillingInterval, i.ItemReference, i.ItemType)
}

// IsUsableBy reports whether service may bill this item.
func (i PriceItem) IsUsableBy(service string) bool {
	for _, s := range i.UsableBy {
		if s == service {
			return true
		}
	}
	return false
}
