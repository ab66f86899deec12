// Package treasury talks to the external treasury that charges customer
// accounts.
package treasury

//go:generate mockgen -destination=mock/gateway.go -package=mock github.com/smallbiznis/allotment/internal/treasury Gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusPending Status = "PENDING"
	StatusError   Status = "ERROR"
	StatusTimeout Status = "TIMEOUT"
)

type Transaction struct {
	ID     string          `json:"_id"`
	Status Status          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

func (t *Transaction) Succeeded() bool {
	return t != nil && t.Status == StatusSuccess
}

type AdditionalInfo struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ChargeMeta tells the treasury which module asked for a charge.
type ChargeMeta struct {
	Service        string           `json:"service"`
	Module         string           `json:"module"`
	Description    string           `json:"description,omitempty"`
	AdditionalInfo []AdditionalInfo `json:"additionalInfo,omitempty"`
}

type Account struct {
	ID       string          `json:"_id"`
	Name     string          `json:"name"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
	Default  bool            `json:"default"`
}

type ExchangeRate struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Gateway charges accounts. A charge is sent once; whether and how it is
// retried is up to the treasury.
type Gateway interface {
	ChargeAccount(ctx context.Context, accountID string, amount decimal.Decimal, meta ChargeMeta) (*Transaction, error)
	CurrentExchangeRate(ctx context.Context) (*ExchangeRate, error)
	ListAccounts(ctx context.Context, organizationID string) ([]Account, error)
	ListFiatAccounts(ctx context.Context, organizationID string) ([]Account, error)
}

var (
	ErrInvalidAccount = errors.New("invalid_account")
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrUnavailable    = errors.New("treasury_unavailable")
)
