package domain

import (
	"context"
	"errors"
	"time"

	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
)

type Service interface {
	// GetApplicablePrices returns, per service, the most recent price document
	// in effect at now that is owned by or shared with one of services.
	GetApplicablePrices(ctx context.Context, services []string, now time.Time) ([]Price, error)

	Create(ctx context.Context, req CreateRequest) (*Price, error)
	Update(ctx context.Context, id string, req CreateRequest) (*Price, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Price, error)
	List(ctx context.Context, service string) ([]Price, error)
}

type CreateRequest struct {
	Service     string              `json:"service" binding:"required"`
	StartDate   time.Time           `json:"startDate" binding:"required"`
	Description string              `json:"description"`
	Items       []CreateItemRequest `json:"items" binding:"required,min=1,dive"`
}

type CreateItemRequest struct {
	BillingInterval int                         `json:"billingInterval" binding:"required,min=1,max=12"`
	ItemType        subscriptiondomain.ItemType `json:"itemType" binding:"required"`
	ItemReference   string                      `json:"itemReference" binding:"required"`
	Currency        string                      `json:"currency" binding:"required"`
	UsableBy        []string                    `json:"usableBy"`
	Description     string                      `json:"description"`
	ItemPrice       ItemPrice                   `json:"itemPrice"`
}

var (
	ErrInvalidID          = errors.New("invalid_price_id")
	ErrInvalidService     = errors.New("invalid_price_service")
	ErrInvalidStartDate   = errors.New("start date must be in the future")
	ErrInvalidItem        = errors.New("invalid_price_item")
	ErrDuplicateItem      = errors.New("duplicate_price_item")
	ErrPriceNotFound      = errors.New("price_not_found")
	ErrPriceAlreadyActive = errors.New("price already in effect")
	ErrLastEffectivePrice = errors.New("deleting this price leaves the service without a price for the period")
)
