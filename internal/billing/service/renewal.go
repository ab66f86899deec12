package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/allotment/internal/billing/domain"
	"github.com/smallbiznis/allotment/internal/identity"
	invoicedomain "github.com/smallbiznis/allotment/internal/invoice/domain"
	"github.com/smallbiznis/allotment/internal/observability/tracing"
	"github.com/smallbiznis/allotment/internal/pricing"
	"github.com/smallbiznis/allotment/internal/processing"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultRenewalBatch = 500

type renewalOutcome int

const (
	renewed renewalOutcome = iota
	suspended
	skipped
)

func (s *Service) RenewDue(ctx context.Context, now time.Time) (domain.RenewalResult, error) {
	log := s.log.With(zap.String("tx_id", uuid.NewString()))
	ctx, span := tracing.StartSpan(ctx, "billing.renew_due")
	defer span.End()

	batch := s.renewalBatch
	if batch <= 0 {
		batch = defaultRenewalBatch
	}
	renewedBefore := pricing.StartOfMonth(now)
	log.Info("renewal sweep started", zap.Int("batch", batch))

	// Skipped and failed subscriptions stay listed, so the sweep pages by id.
	var result domain.RenewalResult
	var after snowflake.ID
	for {
		subscriptions, err := s.subscriptions.ListRenewable(ctx, renewedBefore, after, batch)
		if err != nil {
			return result, err
		}
		for i := range subscriptions {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			s.renewOne(ctx, log, &subscriptions[i], now, &result)
		}
		if len(subscriptions) < batch {
			break
		}
		after = subscriptions[len(subscriptions)-1].ID
	}

	span.SetAttributes(
		attribute.Int("renewed", result.Renewed),
		attribute.Int("suspended", result.Suspended),
		attribute.Int("failed", result.Failed),
	)
	log.Info("renewal sweep finished",
		zap.Int("renewed", result.Renewed),
		zap.Int("suspended", result.Suspended),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *Service) renewOne(ctx context.Context, log *zap.Logger, subscription *subscriptiondomain.Subscription, now time.Time, result *domain.RenewalResult) {
	sublog := log.With(
		zap.String("subscription_id", subscription.ID.String()),
		zap.String("service", subscription.Service),
		zap.String("entity_reference", subscription.EntityReference),
	)

	outcome, err := s.renew(ctx, sublog, subscription, now)
	if err != nil {
		result.Failed++
		sublog.Error("renewal failed", zap.Error(err))
		return
	}
	switch outcome {
	case renewed:
		result.Renewed++
	case suspended:
		result.Suspended++
	case skipped:
		result.Skipped++
	}
}

func (s *Service) renew(ctx context.Context, log *zap.Logger, subscription *subscriptiondomain.Subscription, now time.Time) (renewalOutcome, error) {
	initial, err := s.loader.Load(ctx, processing.Subject{
		Service:         subscription.Service,
		Entity:          subscription.Entity,
		EntityReference: subscription.EntityReference,
		Subscription:    subscription,
		Now:             now,
	})
	if err != nil {
		return 0, err
	}
	resolved, err := initial.ResolvePrices()
	if err != nil {
		return 0, err
	}
	calculated, err := resolved.CalculateRenewal(decimal.NewFromInt(1), func(allocation subscriptiondomain.Allocation) bool {
		return processing.Due(allocation, now)
	})
	if err != nil {
		return 0, err
	}
	if len(calculated.Values().Order) == 0 {
		return skipped, nil
	}
	formed := calculated.DeriveOperations()

	account, err := s.renewalAccountFor(ctx, subscription)
	if errors.Is(err, domain.ErrNoRenewalAccount) {
		log.Warn("no account to charge for renewal")
		return suspended, s.suspend(ctx, log, subscription)
	}
	if err != nil {
		return 0, err
	}

	err = s.commit(ctx, log, identity.Worker(), []*processing.Formed{formed}, account, invoicedomain.KindRenewal)
	if errors.Is(err, domain.ErrTransactionFailed) {
		return suspended, s.suspend(ctx, log, subscription)
	}
	if err != nil {
		return 0, err
	}
	return renewed, nil
}

// renewalAccountFor picks the default fiat account of an organization, and
// the configured renewal account otherwise.
func (s *Service) renewalAccountFor(ctx context.Context, subscription *subscriptiondomain.Subscription) (string, error) {
	if subscription.Entity == subscriptiondomain.EntityOrganization {
		accounts, err := s.treasury.ListFiatAccounts(ctx, subscription.EntityReference)
		if err != nil {
			return "", err
		}
		for _, account := range accounts {
			if account.Default {
				return account.ID, nil
			}
		}
	}
	if s.renewalAccount != "" {
		return s.renewalAccount, nil
	}
	return "", domain.ErrNoRenewalAccount
}

func (s *Service) suspend(ctx context.Context, log *zap.Logger, subscription *subscriptiondomain.Subscription) error {
	if _, err := s.subscriptions.TransitionStatus(ctx, subscription.ID.String(), subscriptiondomain.SubscriptionStatusSuspended); err != nil {
		return err
	}
	log.Info("subscription suspended")
	return nil
}
