package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/allotment/internal/identity"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
)

type AllocationUpdate struct {
	BillingInterval int                         `json:"billingInterval" binding:"required,min=1,max=12"`
	ItemReference   string                      `json:"itemReference" binding:"required"`
	ItemType        subscriptiondomain.ItemType `json:"itemType" binding:"required"`
	ChangedQuantity int64                       `json:"changedQuantity" binding:"required,gt=0"`
}

// SubscriptionUpdatePayload buys more of the listed items for one service.
type SubscriptionUpdatePayload struct {
	Service                 string             `json:"service"`
	Allocations             []AllocationUpdate `json:"allocations" binding:"required,min=1,dive"`
	UpdateOneTimeTotalPrice decimal.Decimal    `json:"updateOneTimeTotalPrice"`
	AccountID               string             `json:"accountId" binding:"required"`
}

type ServiceSeats struct {
	Service                 string                      `json:"service" binding:"required"`
	BillingInterval         int                         `json:"billingInterval" binding:"required,min=1,max=12"`
	ItemReference           string                      `json:"itemReference" binding:"required"`
	ItemType                subscriptiondomain.ItemType `json:"itemType" binding:"required"`
	ChangedQuantity         int64                       `json:"changedQuantity" binding:"required,gt=0"`
	UpdateOneTimeTotalPrice decimal.Decimal             `json:"updateOneTimeTotalPrice"`
}

// SubscriptionAddUsers buys seats in several services with a single charge.
// Amount is the sum the client expects to pay over all services.
type SubscriptionAddUsers struct {
	Services  []ServiceSeats  `json:"services" binding:"required,min=1,dive"`
	Amount    decimal.Decimal `json:"amount"`
	AccountID string          `json:"accountId" binding:"required"`
}

// RenewalResult counts what one renewal sweep did.
type RenewalResult struct {
	Renewed   int `json:"renewed"`
	Suspended int `json:"suspended"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type Service interface {
	UpdateSubscription(ctx context.Context, actor identity.Actor, serviceID string, payload SubscriptionUpdatePayload) error
	UpdateSeatsCount(ctx context.Context, actor identity.Actor, payload SubscriptionAddUsers) error
	SubscriptionInfo(ctx context.Context, actor identity.Actor, service string) (subscriptiondomain.SubscriptionDetails, error)
	// RenewDue charges every active subscription with allocations not yet
	// renewed for the period containing now.
	RenewDue(ctx context.Context, now time.Time) (RenewalResult, error)
}

var (
	ErrMissingOrganization = errors.New("missing_organization")
	ErrServiceMismatch     = errors.New("service_mismatch")
	ErrTransactionFailed   = errors.New("transaction_unsuccessful")
	ErrNoRenewalAccount    = errors.New("no_renewal_account")
)
