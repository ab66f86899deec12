package domain

import (
	"context"
	"errors"
	"time"

	pricedomain "github.com/smallbiznis/allotment/internal/price/domain"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
)

type Service interface {
	GetApplicableModifiers(ctx context.Context, services []string, entity subscriptiondomain.Entity, entityReference string, now time.Time) ([]Modifier, error)

	Create(ctx context.Context, req CreateRequest) (*Modifier, error)
	Update(ctx context.Context, id string, req CreateRequest) (*Modifier, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Modifier, error)
	List(ctx context.Context, service string) ([]Modifier, error)
}

type CreateRequest struct {
	Service         string                    `json:"service" binding:"required"`
	Entity          subscriptiondomain.Entity `json:"entity"`
	EntityReference string                    `json:"entityReference"`
	StartDate       time.Time                 `json:"startDate" binding:"required"`
	EndDate         *time.Time                `json:"endDate"`
	Description     string                    `json:"description"`
	Items           []CreateItemRequest       `json:"items" binding:"required,min=1,dive"`
}

type CreateItemRequest struct {
	BillingInterval int                         `json:"billingInterval" binding:"required,min=1,max=12"`
	ItemType        subscriptiondomain.ItemType `json:"itemType" binding:"required"`
	ItemReference   string                      `json:"itemReference" binding:"required"`
	Description     string                      `json:"description"`
	ItemPrice       pricedomain.ItemPrice       `json:"itemPrice"`
}

var (
	ErrInvalidID        = errors.New("invalid_modifier_id")
	ErrInvalidService   = errors.New("invalid_modifier_service")
	ErrInvalidEntity    = errors.New("invalid_modifier_entity")
	ErrInvalidPeriod    = errors.New("end date must be after start date")
	ErrInvalidItem      = errors.New("invalid_modifier_item")
	ErrModifierNotFound = errors.New("modifier_not_found")
)
