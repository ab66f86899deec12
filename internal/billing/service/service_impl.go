package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/allotment/internal/billing/domain"
	"github.com/smallbiznis/allotment/internal/clock"
	"github.com/smallbiznis/allotment/internal/config"
	"github.com/smallbiznis/allotment/internal/identity"
	invoicedomain "github.com/smallbiznis/allotment/internal/invoice/domain"
	"github.com/smallbiznis/allotment/internal/observability/metrics"
	"github.com/smallbiznis/allotment/internal/observability/tracing"
	operationdomain "github.com/smallbiznis/allotment/internal/operation/domain"
	paymenthistorydomain "github.com/smallbiznis/allotment/internal/paymenthistory/domain"
	paymenthistoryservice "github.com/smallbiznis/allotment/internal/paymenthistory/service"
	"github.com/smallbiznis/allotment/internal/pricing"
	"github.com/smallbiznis/allotment/internal/processing"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"github.com/smallbiznis/allotment/internal/treasury"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	chargeService = "BILLING_MANAGER_WORKER"
	chargeModule  = "BILLING"
)

type Params struct {
	fx.In

	Log            *zap.Logger
	Clock          clock.Clock
	Cfg            config.Config
	Billing        *config.BillingConfigHolder
	Metrics        *metrics.Metrics `optional:"true"`
	Loader         *processing.Loader
	Subscriptions  subscriptiondomain.Service
	Operations     operationdomain.Service
	PaymentHistory paymenthistorydomain.Service
	Treasury       treasury.Gateway
	Invoices       invoicedomain.Service `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	clock   clock.Clock
	billing *config.BillingConfigHolder
	metrics *metrics.Metrics

	renewalAccount string
	renewalBatch   int

	loader        *processing.Loader
	subscriptions subscriptiondomain.Service
	operations    operationdomain.Service
	history       paymenthistorydomain.Service
	treasury      treasury.Gateway
	invoices      invoicedomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("billing.service"),
		clock:   p.Clock,
		billing: p.Billing,
		metrics: p.Metrics,

		renewalAccount: strings.TrimSpace(p.Cfg.Schedule.RenewalAccount),
		renewalBatch:   p.Cfg.Schedule.RenewalBatch,

		loader:        p.Loader,
		subscriptions: p.Subscriptions,
		operations:    p.Operations,
		history:       p.PaymentHistory,
		treasury:      p.Treasury,
		invoices:      p.Invoices,
	}
}

func (s *Service) UpdateSubscription(ctx context.Context, actor identity.Actor, serviceID string, payload domain.SubscriptionUpdatePayload) error {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return apperr.BadInput("Service id is required")
	}
	if payload.Service != "" && payload.Service != serviceID {
		return apperr.Mark(domain.ErrServiceMismatch, apperr.ErrBadInput)
	}
	if strings.TrimSpace(actor.OrganizationID) == "" {
		return apperr.Mark(domain.ErrMissingOrganization, apperr.ErrNotAuthorized)
	}

	log := s.log.With(
		zap.String("tx_id", uuid.NewString()),
		zap.String("service", serviceID),
		zap.String("org_id", actor.OrganizationID),
		zap.String("user_id", actor.UserID),
	)
	ctx, span := tracing.StartSpan(ctx, "billing.update_subscription",
		attribute.String("service", serviceID),
		attribute.String("org_id", actor.OrganizationID),
	)
	defer span.End()

	err := s.updateSubscription(ctx, log, actor, serviceID, payload)
	if err != nil {
		log.Warn("subscription update failed", zap.Error(err))
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

func (s *Service) updateSubscription(ctx context.Context, log *zap.Logger, actor identity.Actor, serviceID string, payload domain.SubscriptionUpdatePayload) error {
	log.Info("subscription update started", zap.Int("allocations", len(payload.Allocations)))

	now := s.clock.Now()
	multiplier, err := monthlyMultiplier(now)
	if err != nil {
		return err
	}

	update := processing.Update{OneTimeTotalPrice: payload.UpdateOneTimeTotalPrice}
	for _, allocation := range payload.Allocations {
		update.Allocations = append(update.Allocations, processing.AllocationChange{
			BillingInterval: allocation.BillingInterval,
			ItemType:        allocation.ItemType,
			ItemReference:   allocation.ItemReference,
			ChangedQuantity: allocation.ChangedQuantity,
		})
	}

	formed, err := s.form(ctx, log, actor, serviceID, update, multiplier, now)
	if err != nil {
		return err
	}
	return s.commit(ctx, log, actor, []*processing.Formed{formed}, payload.AccountID, invoicedomain.KindUpdate)
}

func (s *Service) UpdateSeatsCount(ctx context.Context, actor identity.Actor, payload domain.SubscriptionAddUsers) error {
	if len(payload.Services) == 0 {
		return apperr.BadInput("No services to update")
	}
	if strings.TrimSpace(actor.OrganizationID) == "" {
		return apperr.Mark(domain.ErrMissingOrganization, apperr.ErrNotAuthorized)
	}
	seen := make(map[string]struct{}, len(payload.Services))
	for _, seats := range payload.Services {
		if strings.TrimSpace(seats.Service) == "" {
			return apperr.BadInput("Service id is required")
		}
		if _, dup := seen[seats.Service]; dup {
			return apperr.BadInput("Duplicate service: %s", seats.Service)
		}
		seen[seats.Service] = struct{}{}
	}

	log := s.log.With(
		zap.String("tx_id", uuid.NewString()),
		zap.String("org_id", actor.OrganizationID),
		zap.String("user_id", actor.UserID),
	)
	ctx, span := tracing.StartSpan(ctx, "billing.update_seats",
		attribute.String("org_id", actor.OrganizationID),
		attribute.Int("services", len(payload.Services)),
	)
	defer span.End()

	err := s.updateSeatsCount(ctx, log, actor, payload)
	if err != nil {
		log.Warn("seats update failed", zap.Error(err))
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

func (s *Service) updateSeatsCount(ctx context.Context, log *zap.Logger, actor identity.Actor, payload domain.SubscriptionAddUsers) error {
	log.Info("seats update started", zap.Int("services", len(payload.Services)))

	now := s.clock.Now()
	multiplier, err := monthlyMultiplier(now)
	if err != nil {
		return err
	}

	formed := make([]*processing.Formed, len(payload.Services))
	g, gctx := errgroup.WithContext(ctx)
	for i, seats := range payload.Services {
		g.Go(func() error {
			update := processing.Update{
				Allocations: []processing.AllocationChange{{
					BillingInterval: seats.BillingInterval,
					ItemType:        seats.ItemType,
					ItemReference:   seats.ItemReference,
					ChangedQuantity: seats.ChangedQuantity,
				}},
				OneTimeTotalPrice: seats.UpdateOneTimeTotalPrice,
			}
			f, err := s.form(gctx, log.With(zap.String("service", seats.Service)), actor, seats.Service, update, multiplier, now)
			if err != nil {
				return err
			}
			formed[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("seats update contexts derived")

	if !payload.Amount.IsZero() {
		total := pricing.Round(sumTotals(formed))
		if !total.Equal(payload.Amount) {
			return apperr.BadInput(
				"Incorrect total amount: calculated=%s, incoming=%s",
				total.StringFixed(pricing.Precision),
				payload.Amount.StringFixed(pricing.Precision),
			)
		}
	}
	return s.commit(ctx, log, actor, formed, payload.AccountID, invoicedomain.KindUpdate)
}

func (s *Service) SubscriptionInfo(ctx context.Context, actor identity.Actor, service string) (subscriptiondomain.SubscriptionDetails, error) {
	if strings.TrimSpace(actor.OrganizationID) == "" {
		return subscriptiondomain.SubscriptionDetails{}, apperr.Mark(domain.ErrMissingOrganization, apperr.ErrNotAuthorized)
	}
	return s.subscriptions.Details(ctx, actor.OrganizationID, strings.TrimSpace(service))
}

// form runs one service through the processing states up to derived
// operations.
func (s *Service) form(ctx context.Context, log *zap.Logger, actor identity.Actor, service string, update processing.Update, multiplier decimal.Decimal, now time.Time) (*processing.Formed, error) {
	subscription, err := s.subscriptions.GetSubscription(ctx, subscriptiondomain.EntityOrganization, actor.OrganizationID, service)
	if err != nil {
		return nil, err
	}
	existing := ""
	if subscription != nil {
		existing = subscription.ID.String()
	}
	log.Info("existing subscription loaded", zap.String("subscription_id", existing))

	initial, err := s.loader.Load(ctx, processing.Subject{
		Service:         service,
		Entity:          subscriptiondomain.EntityOrganization,
		EntityReference: actor.OrganizationID,
		Subscription:    subscription,
		Now:             now,
	})
	if err != nil {
		return nil, err
	}
	resolved, err := initial.ResolvePrices()
	if err != nil {
		return nil, err
	}
	log.Info("prices resolved", zap.Int("prices", len(resolved.ResolvedPrices())))

	calculated, err := resolved.CalculateUpdate(ctx, update, multiplier)
	if err != nil {
		return nil, err
	}
	log.Info("allocations calculated", zap.String("total", calculated.Values().Total.StringFixed(pricing.Precision)))

	formed := calculated.DeriveOperations()
	log.Info("operations derived", zap.Int("operations", len(formed.Operations())))
	return formed, nil
}

// commit stores the operations and payment history of formed, charges the
// account and replays the operations once the charge succeeded.
func (s *Service) commit(ctx context.Context, log *zap.Logger, actor identity.Actor, formed []*processing.Formed, accountID string, kind invoicedomain.Kind) error {
	var ops []operationdomain.UpdateOperation
	for _, f := range formed {
		ops = append(ops, f.Operations()...)
	}
	// Services of one batch are derived against the same rows, so the merged
	// operations must apply before anything is charged.
	if err := s.operations.Check(ctx, ops); err != nil {
		log.Warn("operations rejected before charge", zap.Error(err))
		return err
	}
	record, err := s.operations.Create(ctx, ops)
	if err != nil {
		return err
	}
	log = log.With(zap.String("operations_id", record.ID.String()))
	log.Info("operations entry created", zap.Int("operations", len(ops)))

	entry, err := paymenthistoryservice.Make(formed, record.ID, actor, s.billing.Get().DefaultCurrency)
	if err != nil {
		return err
	}
	if err := s.history.Create(ctx, entry); err != nil {
		return err
	}
	log = log.With(zap.String("payment_history_id", entry.ID.String()))
	log.Info("payment history entry created", zap.String("total", entry.TotalBillAmount.StringFixed(pricing.Precision)))

	tx, err := s.charge(ctx, accountID, entry)
	if err != nil {
		return err
	}
	log.Info("transaction status", zap.String("transaction_id", tx.ID), zap.String("status", string(tx.Status)))

	if err := s.history.LinkTransaction(ctx, entry.ID, tx.ID, string(tx.Status)); err != nil {
		log.Error("link transaction failed", zap.Error(err))
	}
	entry.TransactionID = &tx.ID
	entry.TransactionStatus = string(tx.Status)

	if !tx.Succeeded() {
		return apperr.Wrap(domain.ErrTransactionFailed, apperr.ErrUndefinedState, fmt.Sprintf("Transaction unsuccessful: %s", tx.Status))
	}

	if err := s.replay(ctx, record.ID); err != nil {
		log.Error("replay after successful charge failed", zap.Error(err))
		return err
	}
	log.Info("operations applied")

	s.invoice(ctx, log, kind, entry)
	return nil
}

func (s *Service) charge(ctx context.Context, accountID string, entry *paymenthistorydomain.PaymentHistory) (*treasury.Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "billing.charge", attribute.String("currency", entry.Currency))
	defer span.End()

	tx, err := s.treasury.ChargeAccount(ctx, accountID, entry.TotalBillAmount, treasury.ChargeMeta{
		Service: chargeService,
		Module:  chargeModule,
		AdditionalInfo: []treasury.AdditionalInfo{
			{Name: "paymentHistory", Value: entry.ID.String()},
		},
	})
	if err != nil {
		s.metrics.RecordCharge(ctx, entry.Currency, string(treasury.StatusError), 0)
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "charge failed")
		return nil, err
	}
	if tx == nil {
		return nil, apperr.UndefinedState("Transaction unsuccessful: no transaction")
	}
	s.metrics.RecordCharge(ctx, entry.Currency, string(tx.Status), entry.TotalBillAmount.InexactFloat64())
	span.SetAttributes(attribute.String("status", string(tx.Status)))
	return tx, nil
}

func (s *Service) replay(ctx context.Context, id snowflake.ID) error {
	ctx, span := tracing.StartSpan(ctx, "billing.replay")
	defer span.End()

	if err := s.operations.Replay(ctx, id); err != nil {
		s.metrics.RecordReplay(ctx, "failed")
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "replay failed")
		return err
	}
	s.metrics.RecordReplay(ctx, "applied")
	return nil
}

// invoice renders and links the invoice of a paid entry. Failures are only
// logged; the charge already went through.
func (s *Service) invoice(ctx context.Context, log *zap.Logger, kind invoicedomain.Kind, entry *paymenthistorydomain.PaymentHistory) {
	if s.invoices == nil {
		return
	}
	doc, err := s.invoices.Generate(ctx, kind, entry)
	if err != nil {
		s.metrics.RecordInvoiceFailure(ctx, "generate")
		log.Error("error generating invoice", zap.Error(err))
		return
	}
	err = s.history.LinkInvoice(ctx, entry.ID, paymenthistorydomain.Invoice{
		ID:        doc.ID,
		Number:    doc.Number,
		SignedURL: doc.SignedURL,
	})
	if err != nil {
		s.metrics.RecordInvoiceFailure(ctx, "link")
		log.Error("error linking invoice", zap.Error(err))
		return
	}
	log.Info("invoice linked", zap.String("invoice_number", doc.Number))
}

// monthlyMultiplier is the prorating multiplier at now, rounded to the
// precision amounts are compared at.
func monthlyMultiplier(now time.Time) (decimal.Decimal, error) {
	multiplier, err := pricing.MonthlyPriceMultiplier(now)
	if err != nil {
		return decimal.Zero, err
	}
	return pricing.Round(multiplier), nil
}

func sumTotals(formed []*processing.Formed) decimal.Decimal {
	total := decimal.Zero
	for _, f := range formed {
		total = total.Add(f.Values().Total)
	}
	return total
}
