// Package domain holds the audit trail of subscription charges.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"gorm.io/datatypes"
)

type CreatedByKind string

const (
	CreatedByUser   CreatedByKind = "USER"
	CreatedByWorker CreatedByKind = "WORKER"
)

// Charge is the snapshot of one priced item at the time it was billed.
type Charge struct {
	ItemType        subscriptiondomain.ItemType `json:"itemType"`
	ItemReference   string                      `json:"itemReference"`
	ItemPrice       decimal.Decimal             `json:"itemPrice"`
	FinalPrice      decimal.Decimal             `json:"finalPrice"`
	Quantity        int64                       `json:"quantity"`
	Name            string                      `json:"name,omitempty"`
	Service         string                      `json:"service"`
	SuballocationID string                      `json:"suballocationId,omitempty"`
	BillingInterval int                         `json:"billingInterval"`
	Period          []string                    `json:"period"`
}

// Invoice points at the rendered invoice of a paid entry.
type Invoice struct {
	ID        string `json:"id"`
	Number    string `json:"number"`
	SignedURL string `json:"signedUrl"`
}

// PaymentHistory records one charge attempt. It is written before the
// treasury is called; the transaction and invoice are linked afterwards.
type PaymentHistory struct {
	ID                snowflake.ID                      `gorm:"primaryKey" json:"id"`
	Entity            subscriptiondomain.Entity         `gorm:"type:text;not null;index:ix_billing_payment_history_owner" json:"entity"`
	EntityReference   string                            `gorm:"type:text;not null;index:ix_billing_payment_history_owner" json:"entityReference"`
	PriceIDs          datatypes.JSONSlice[snowflake.ID] `gorm:"not null" json:"priceIds"`
	Charges           datatypes.JSONSlice[Charge]       `gorm:"not null" json:"charges"`
	TotalBillAmount   decimal.Decimal                   `gorm:"type:numeric(20,8);not null" json:"totalBillAmount"`
	Currency          string                            `gorm:"type:text;not null" json:"currency"`
	CreatedByKind     CreatedByKind                     `gorm:"type:text;not null" json:"createdByKind"`
	CreatedByUserID   string                            `gorm:"type:text;not null;default:''" json:"createdByUserId,omitempty"`
	OperationsID      snowflake.ID                      `gorm:"not null;index" json:"operationsId"`
	TransactionID     *string                           `gorm:"type:text" json:"transactionId,omitempty"`
	TransactionStatus string                            `gorm:"type:text;not null;default:''" json:"transactionStatus,omitempty"`
	Invoice           *datatypes.JSONType[Invoice]      `json:"invoice,omitempty"`
	CreatedAt         time.Time                         `gorm:"not null" json:"createdAt"`
	UpdatedAt         time.Time                         `gorm:"not null" json:"updatedAt"`
}

func (PaymentHistory) TableName() string { return "billing_payment_history" }

// Period returns the start of the first charge and the end of the last.
func (p PaymentHistory) Period() (from, to string) {
	for _, charge := range p.Charges {
		if len(charge.Period) != 2 {
			continue
		}
		if from == "" {
			from, to = charge.Period[0], charge.Period[1]
			continue
		}
		to = charge.Period[1]
	}
	return from, to
}

type ListFilter struct {
	Entity          subscriptiondomain.Entity
	EntityReference string
	Cursor          *Cursor
	Limit           int
}

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}
