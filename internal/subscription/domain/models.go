// Package domain contains persistence models for subscriptions, their
// allocations and suballocations.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Entity is the kind of owner a subscription belongs to.
type Entity string

const (
	EntityUser         Entity = "USER"
	EntityOrganization Entity = "ORGANIZATION"
)

func (e Entity) Valid() bool {
	return e == EntityUser || e == EntityOrganization
}

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPaused    SubscriptionStatus = "PAUSED"
	SubscriptionStatusSuspended SubscriptionStatus = "SUSPENDED"
	SubscriptionStatusFrozen    SubscriptionStatus = "FROZEN"
	SubscriptionStatusCanceled  SubscriptionStatus = "CANCELED"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusPaused, SubscriptionStatusSuspended,
		SubscriptionStatusFrozen, SubscriptionStatusCanceled:
		return true
	}
	return false
}

// ItemType is the billable platform item an allocation counts.
type ItemType string

const (
	ItemTypeUser           ItemType = "USER"
	ItemTypeDevice         ItemType = "DEVICE"
	ItemTypeRobot          ItemType = "ROBOT"
	ItemTypeTag            ItemType = "TAG"
	ItemTypeInfrastructure ItemType = "INFRASTRUCTURE"
	ItemTypeStorage        ItemType = "STORAGE"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeUser, ItemTypeDevice, ItemTypeRobot, ItemTypeTag, ItemTypeInfrastructure, ItemTypeStorage:
		return true
	}
	return false
}

const (
	MinBillingInterval = 1
	MaxBillingInterval = 12
)

func ValidBillingInterval(months int) bool {
	return months >= MinBillingInterval && months <= MaxBillingInterval
}

// Subscription is one (entity, entityReference, service) billing agreement.
type Subscription struct {
	ID              snowflake.ID       `gorm:"primaryKey" json:"id"`
	Service         string             `gorm:"type:text;not null;uniqueIndex:ux_billing_subscriptions_owner" json:"service"`
	Entity          Entity             `gorm:"type:text;not null;uniqueIndex:ux_billing_subscriptions_owner" json:"entity"`
	EntityReference string             `gorm:"type:text;not null;uniqueIndex:ux_billing_subscriptions_owner" json:"entityReference"`
	Status          SubscriptionStatus `gorm:"type:text;not null" json:"status"`
	Version         int64              `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time          `gorm:"not null" json:"createdAt"`
	UpdatedAt       time.Time          `gorm:"not null" json:"updatedAt"`

	Allocations []Allocation `gorm:"-" json:"allocations"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "billing_subscriptions" }

// Allocation is a purchased quantity of one item key. A placeholder
// allocation names the Service that owns the item instead of carrying a
// quantity; its quota lives in a suballocation of the owner's allocation.
type Allocation struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	SubscriptionID  snowflake.ID `gorm:"not null;uniqueIndex:ux_billing_subscription_allocations_key" json:"subscriptionId"`
	Position        int          `gorm:"not null;default:0" json:"position"`
	BillingInterval int          `gorm:"not null;uniqueIndex:ux_billing_subscription_allocations_key" json:"billingInterval"`
	ItemType        ItemType     `gorm:"type:text;not null;uniqueIndex:ux_billing_subscription_allocations_key" json:"itemType"`
	ItemReference   string       `gorm:"type:text;not null;uniqueIndex:ux_billing_subscription_allocations_key" json:"itemReference"`
	Quantity        int64        `gorm:"not null;default:0" json:"quantity"`
	Service         string       `gorm:"type:text;not null;default:''" json:"service,omitempty"`
	LastRenewDate   time.Time    `gorm:"not null" json:"lastRenewDate"`
	Version         int64        `gorm:"not null;default:1" json:"version"`

	Suballocations []Suballocation `gorm:"-" json:"suballocations,omitempty"`
}

func (Allocation) TableName() string { return "billing_subscription_allocations" }

// Key returns the item key of the allocation.
func (a Allocation) Key() ItemKey {
	return NewItemKey(a.BillingInterval, a.ItemReference, a.ItemType)
}

// IsPlaceholder reports whether the allocation borrows from another service.
func (a Allocation) IsPlaceholder() bool {
	return a.Service != ""
}

// Suballocated is the quantity lent to other services.
func (a Allocation) Suballocated() int64 {
	var total int64
	for _, sub := range a.Suballocations {
		total += sub.Quantity
	}
	return total
}

// Available is the owned quantity not lent out.
func (a Allocation) Available() int64 {
	return a.Quantity - a.Suballocated()
}

// SuballocationFor returns the suballocation held by service, if any.
func (a Allocation) SuballocationFor(service string) *Suballocation {
	for i := range a.Suballocations {
		if a.Suballocations[i].Service == service {
			return &a.Suballocations[i]
		}
	}
	return nil
}

// Suballocation is quota of an allocation lent to another service.
type Suballocation struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	AllocationID snowflake.ID `gorm:"not null;index" json:"allocationId"`
	Service      string       `gorm:"type:text;not null" json:"service"`
	Quantity     int64        `gorm:"not null;default:0" json:"quantity"`
	Version      int64        `gorm:"not null;default:1" json:"version"`
}

func (Suballocation) TableName() string { return "billing_subscription_suballocations" }

// AllocationFor returns the allocation with key, if any.
func (s *Subscription) AllocationFor(key ItemKey) *Allocation {
	if s == nil {
		return nil
	}
	for i := range s.Allocations {
		if s.Allocations[i].Key() == key {
			return &s.Allocations[i]
		}
	}
	return nil
}

// AllocationsByKey indexes the subscription's allocations by item key.
func (s *Subscription) AllocationsByKey() map[ItemKey]Allocation {
	out := make(map[ItemKey]Allocation)
	if s == nil {
		return out
	}
	for _, allocation := range s.Allocations {
		out[allocation.Key()] = allocation
	}
	return out
}
