package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/allotment/internal/clock"
	"github.com/smallbiznis/allotment/internal/config"
	"github.com/smallbiznis/allotment/internal/invoice/domain"
	"github.com/smallbiznis/allotment/internal/invoice/format"
	"github.com/smallbiznis/allotment/internal/invoice/render"
	paymenthistorydomain "github.com/smallbiznis/allotment/internal/paymenthistory/domain"
	"github.com/smallbiznis/allotment/internal/treasury"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Billing  *config.BillingConfigHolder
	Renderer render.Renderer
	Store    domain.Store `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	clock    clock.Clock
	billing  *config.BillingConfigHolder
	renderer render.Renderer
	store    domain.Store

	mu      sync.Mutex
	entropy io.Reader
}

func New(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("invoice.service"),
		clock:    p.Clock,
		billing:  p.Billing,
		renderer: p.Renderer,
		store:    p.Store,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

func (s *Service) Generate(ctx context.Context, kind domain.Kind, entry *paymenthistorydomain.PaymentHistory) (*domain.Document, error) {
	if entry == nil || len(entry.Charges) == 0 {
		return nil, domain.ErrNothingToInvoice
	}
	if s.store == nil {
		return nil, domain.ErrStoreUnconfigured
	}

	now := s.clock.Now()
	id, err := s.newID(now)
	if err != nil {
		return nil, err
	}
	number, err := format.FormatInvoiceNumber(format.DefaultInvoiceNumberTemplate, now, id)
	if err != nil {
		return nil, err
	}

	data, err := s.renderer.RenderPDF(s.input(kind, entry, number, now.Format("Jan, 02 2006")))
	if err != nil {
		return nil, err
	}

	key := format.ObjectKey(entry.EntityReference, number)
	if err := s.store.Put(ctx, key, data); err != nil {
		return nil, err
	}
	url, err := s.store.SignedURL(ctx, key)
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice generated",
		zap.String("invoice_number", number),
		zap.String("payment_history_id", entry.ID.String()),
		zap.String("kind", string(kind)),
		zap.Int("bytes", len(data)),
	)
	return &domain.Document{
		ID:        id.String(),
		Number:    number,
		Key:       key,
		SignedURL: url,
		IssuedAt:  now,
	}, nil
}

func (s *Service) newID(now time.Time) (ulid.ULID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.New(ulid.Timestamp(now), s.entropy)
}

func (s *Service) input(kind domain.Kind, entry *paymenthistorydomain.PaymentHistory, number, issued string) render.Input {
	issuer := s.billing.Get().Issuer
	from, to := entry.Period()

	input := render.Input{
		Title:         kind.Title(),
		Number:        number,
		IssueDate:     issued,
		ServicePeriod: from + " - " + to,
		Issuer: render.Party{
			Name:    issuer.Name,
			Address: issuer.Address,
			Email:   issuer.Email,
		},
		BillTo: render.Party{Name: fmt.Sprintf("%s %s", strings.ToLower(string(entry.Entity)), entry.EntityReference)},
		Total:  format.Money(entry.TotalBillAmount, entry.Currency),
		Paid:   entry.TransactionStatus == string(treasury.StatusSuccess),
	}
	if entry.TransactionID != nil {
		input.Transaction = *entry.TransactionID
	}
	for _, charge := range entry.Charges {
		description := charge.Name
		if description == "" {
			description = fmt.Sprintf("%s %s", charge.ItemType, charge.ItemReference)
		}
		input.Lines = append(input.Lines, render.Line{
			Description: description + " (" + charge.Service + ")",
			Period:      strings.Join(charge.Period, " - "),
			Quantity:    charge.Quantity,
			UnitPrice:   format.Money(charge.ItemPrice, ""),
			Amount:      format.Money(charge.FinalPrice, entry.Currency),
		})
	}
	return input
}
