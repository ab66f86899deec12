package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"github.com/smallbiznis/allotment/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, entry *PaymentHistory) error
	Get(ctx context.Context, id snowflake.ID) (*PaymentHistory, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	LinkTransaction(ctx context.Context, id snowflake.ID, transactionID, status string) error
	LinkInvoice(ctx context.Context, id snowflake.ID, invoice Invoice) error
}

type ListRequest struct {
	Entity          subscriptiondomain.Entity
	EntityReference string
	PageToken       string
	PageSize        int
}

type ListResponse struct {
	Entries  []PaymentHistory    `json:"entries"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

var (
	ErrNotFound         = errors.New("payment_history_not_found")
	ErrEmptyCharges     = errors.New("payment_history_without_charges")
	ErrInvalidOwner     = errors.New("invalid_owner")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
