package domain

import (
	"context"
	"errors"

	paymenthistorydomain "github.com/smallbiznis/allotment/internal/paymenthistory/domain"
)

type Service interface {
	Generate(ctx context.Context, kind Kind, entry *paymenthistorydomain.PaymentHistory) (*Document, error)
}

var (
	ErrNothingToInvoice  = errors.New("nothing_to_invoice")
	ErrStoreUnconfigured = errors.New("invoice_store_unconfigured")
	ErrDocumentNotFound  = errors.New("invoice_document_not_found")
)
