package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateSubscriptionRequest struct {
	Service         string             `json:"service"`
	Entity          Entity             `json:"entity,omitempty"`
	EntityReference string             `json:"entityReference,omitempty"`
	Status          SubscriptionStatus `json:"status,omitempty"`
}

type TransitionStatusRequest struct {
	Status SubscriptionStatus `json:"status"`
}

// SubscriptionDetails is the read model behind GET /subscriptions/info.
type SubscriptionDetails struct {
	Organization           string                    `json:"organization"`
	Services               map[string]ServiceDetails `json:"services"`
	MonthlyPriceMultiplier string                    `json:"monthlyPriceMultiplier"`
}

type ServiceDetails struct {
	Service     string          `json:"service"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	URL         string          `json:"url,omitempty"`
	Core        bool            `json:"core"`
	Enabled     bool            `json:"enabled"`
	Billing     *BillingDetails `json:"billing"`
}

// BillingDetails holds either the allocations of a service or the error that
// prevented computing them.
type BillingDetails struct {
	Allocations []AllocationDetails `json:"allocations,omitempty"`
	Error       string              `json:"error,omitempty"`
	Service     string              `json:"service,omitempty"`
}

type AllocationDetails struct {
	BillingInterval int               `json:"billingInterval"`
	ItemType        ItemType          `json:"itemType"`
	ItemReference   string            `json:"itemReference"`
	Quantity        int64             `json:"quantity"`
	Available       *int64            `json:"available,omitempty"`
	Service         string            `json:"service,omitempty"`
	LastRenewDate   *time.Time        `json:"lastRenewDate,omitempty"`
	ItemPrice       *ItemPriceDetails `json:"itemPrice,omitempty"`
}

type ItemPriceDetails struct {
	CalculatedPrice string      `json:"calculatedPrice"`
	Currency        string      `json:"currency"`
	Ranges          []float64   `json:"ranges"`
	Prices          [][]float64 `json:"prices"`
}

type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (Subscription, error)
	Get(ctx context.Context, id string) (Subscription, error)
	List(ctx context.Context, entity Entity, entityReference string) ([]Subscription, error)
	Delete(ctx context.Context, id string) error
	TransitionStatus(ctx context.Context, id string, status SubscriptionStatus) (Subscription, error)

	// GetSubscription returns nil when the owner has no subscription to service.
	GetSubscription(ctx context.Context, entity Entity, entityReference, service string) (*Subscription, error)
	// ResolveSuballocations maps every placeholder allocation id to the origin
	// allocation it borrows from.
	ResolveSuballocations(ctx context.Context, subscription *Subscription) (map[snowflake.ID]Allocation, error)
	ListRenewable(ctx context.Context, renewedBefore time.Time, after snowflake.ID, limit int) ([]Subscription, error)

	Details(ctx context.Context, organizationID, service string) (SubscriptionDetails, error)
}

var (
	ErrInvalidID               = errors.New("invalid_subscription_id")
	ErrInvalidService          = errors.New("invalid_service")
	ErrInvalidEntity           = errors.New("invalid_entity")
	ErrInvalidEntityReference  = errors.New("invalid_entity_reference")
	ErrInvalidStatus           = errors.New("invalid_status")
	ErrSubscriptionNotFound    = errors.New("subscription_not_found")
	ErrSubscriptionExists      = errors.New("subscription_exists")
	ErrTooManySubscriptions    = errors.New("too many subscription entries")
	ErrUnresolvedSuballocation = errors.New("unable to derive suballocation")
)
