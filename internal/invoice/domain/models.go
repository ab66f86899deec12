// Package domain describes rendered subscription invoices.
package domain

import (
	"context"
	"time"
)

// Kind is why an invoice was issued.
type Kind string

const (
	KindUpdate  Kind = "UPDATE"
	KindRenewal Kind = "RENEWAL"
)

func (k Kind) Title() string {
	if k == KindRenewal {
		return "Subscription renewal"
	}
	return "Subscription update"
}

// Document is a stored invoice PDF.
type Document struct {
	ID        string    `json:"id"`
	Number    string    `json:"number"`
	Key       string    `json:"key"`
	SignedURL string    `json:"signedUrl"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// Store keeps invoice PDFs and hands out links to them.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	SignedURL(ctx context.Context, key string) (string, error)
}
