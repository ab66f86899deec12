package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/allotment/internal/catalog"
	"github.com/smallbiznis/allotment/internal/clock"
	"github.com/smallbiznis/allotment/internal/config"
	"github.com/smallbiznis/allotment/internal/identity"
	pricedomain "github.com/smallbiznis/allotment/internal/price/domain"
	pricemodifierdomain "github.com/smallbiznis/allotment/internal/pricemodifier/domain"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"github.com/smallbiznis/allotment/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    subscriptiondomain.Repository
	catalog *catalog.Catalog
	billing *config.BillingConfigHolder

	pricesvc    pricedomain.Service
	modifiersvc pricemodifierdomain.Service
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    subscriptiondomain.Repository
	Catalog *catalog.Catalog
	Billing *config.BillingConfigHolder

	Pricesvc    pricedomain.Service
	Modifiersvc pricemodifierdomain.Service
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
		billing: p.Billing,

		pricesvc:    p.Pricesvc,
		modifiersvc: p.Modifiersvc,
	}
}

// Create opens an empty subscription. The owner defaults to the caller's
// organization, or the caller itself when it acts without one.
func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (subscriptiondomain.Subscription, error) {
	service := strings.TrimSpace(req.Service)
	if service == "" {
		return subscriptiondomain.Subscription{}, apperr.Mark(subscriptiondomain.ErrInvalidService, apperr.ErrBadInput)
	}

	entity, reference := req.Entity, strings.TrimSpace(req.EntityReference)
	if reference == "" {
		actor, ok := identity.ActorFromContext(ctx)
		if !ok {
			return subscriptiondomain.Subscription{}, apperr.Mark(subscriptiondomain.ErrInvalidEntityReference, apperr.ErrBadInput)
		}
		switch {
		case actor.OrganizationID != "" && entity != subscriptiondomain.EntityUser:
			entity, reference = subscriptiondomain.EntityOrganization, actor.OrganizationID
		case actor.UserID != "":
			entity, reference = subscriptiondomain.EntityUser, actor.UserID
		default:
			return subscriptiondomain.Subscription{}, apperr.Mark(subscriptiondomain.ErrInvalidEntityReference, apperr.ErrBadInput)
		}
	}
	if !entity.Valid() {
		return subscriptiondomain.Subscription{}, apperr.Mark(subscriptiondomain.ErrInvalidEntity, apperr.ErrBadInput)
	}

	status := req.Status
	if status == "" {
		status = subscriptiondomain.SubscriptionStatusActive
	}
	if !status.Valid() {
		return subscriptiondomain.Subscription{}, apperr.Mark(subscriptiondomain.ErrInvalidStatus, apperr.ErrBadInput)
	}

	existing, err := s.GetSubscription(ctx, entity, reference, service)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if existing != nil {
		return subscriptiondomain.Subscription{}, apperr.Mark(subscriptiondomain.ErrSubscriptionExists, apperr.ErrConflict)
	}

	now := s.clock.Now()
	subscription := subscriptiondomain.Subscription{
		ID:              s.genID.Generate(),
		Service:         service,
		Entity:          entity,
		EntityReference: reference,
		Status:          status,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, s.db, &subscription); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return subscriptiondomain.Subscription{}, apperr.Mark(subscriptiondomain.ErrSubscriptionExists, apperr.ErrConflict)
		}
		return subscriptiondomain.Subscription{}, err
	}

	s.log.Info("subscription created",
		zap.String("subscription_id", subscription.ID.String()),
		zap.String("service", service),
		zap.String("entity", string(entity)),
	)
	return subscription, nil
}

func (s *Service) Get(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	subscriptionID, err := parseID(id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	subscription, err := s.repo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if subscription == nil {
		return subscriptiondomain.Subscription{}, apperr.Mark(subscriptiondomain.ErrSubscriptionNotFound, apperr.ErrNotFound)
	}
	return *subscription, nil
}

func (s *Service) List(ctx context.Context, entity subscriptiondomain.Entity, entityReference string) ([]subscriptiondomain.Subscription, error) {
	if !entity.Valid() {
		return nil, apperr.Mark(subscriptiondomain.ErrInvalidEntity, apperr.ErrBadInput)
	}
	entityReference = strings.TrimSpace(entityReference)
	if entityReference == "" {
		return nil, apperr.Mark(subscriptiondomain.ErrInvalidEntityReference, apperr.ErrBadInput)
	}
	return s.repo.ListByOwner(ctx, s.db, entity, entityReference)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	subscription, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, s.db, subscription.ID); err != nil {
		return err
	}
	s.log.Info("subscription deleted", zap.String("subscription_id", subscription.ID.String()))
	return nil
}

func (s *Service) TransitionStatus(ctx context.Context, id string, status subscriptiondomain.SubscriptionStatus) (subscriptiondomain.Subscription, error) {
	if !status.Valid() {
		return subscriptiondomain.Subscription{}, apperr.Mark(subscriptiondomain.ErrInvalidStatus, apperr.ErrBadInput)
	}
	subscription, err := s.Get(ctx, id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if subscription.Status == status {
		return subscription, nil
	}

	now := s.clock.Now()
	if _, err := s.repo.UpdateStatus(ctx, s.db, subscription.ID, status, now); err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	s.log.Info("subscription status changed",
		zap.String("subscription_id", subscription.ID.String()),
		zap.String("from", string(subscription.Status)),
		zap.String("to", string(status)),
	)
	subscription.Status = status
	subscription.UpdatedAt = now
	subscription.Version++
	return subscription, nil
}

func (s *Service) GetSubscription(ctx context.Context, entity subscriptiondomain.Entity, entityReference, service string) (*subscriptiondomain.Subscription, error) {
	subscriptions, err := s.repo.FindByOwner(ctx, s.db, entity, entityReference, service)
	if err != nil {
		return nil, err
	}
	switch len(subscriptions) {
	case 0:
		return nil, nil
	case 1:
		return &subscriptions[0], nil
	default:
		return nil, apperr.Mark(subscriptiondomain.ErrTooManySubscriptions, apperr.ErrUndefinedState)
	}
}

func (s *Service) ResolveSuballocations(ctx context.Context, subscription *subscriptiondomain.Subscription) (map[snowflake.ID]subscriptiondomain.Allocation, error) {
	resolved := make(map[snowflake.ID]subscriptiondomain.Allocation)
	if subscription == nil {
		return resolved, nil
	}

	origins := make(map[string]*subscriptiondomain.Subscription)
	for _, allocation := range subscription.Allocations {
		if !allocation.IsPlaceholder() {
			continue
		}
		origin, seen := origins[allocation.Service]
		if !seen {
			var err error
			origin, err = s.GetSubscription(ctx, subscription.Entity, subscription.EntityReference, allocation.Service)
			if err != nil {
				return nil, err
			}
			origins[allocation.Service] = origin
		}
		if origin == nil {
			return nil, unresolved(allocation)
		}
		originAllocation := origin.AllocationFor(allocation.Key())
		if originAllocation == nil {
			return nil, unresolved(allocation)
		}
		resolved[allocation.ID] = *originAllocation
	}
	return resolved, nil
}

func (s *Service) ListRenewable(ctx context.Context, renewedBefore time.Time, after snowflake.ID, limit int) ([]subscriptiondomain.Subscription, error) {
	return s.repo.ListRenewable(ctx, s.db, renewedBefore, after, limit)
}

func unresolved(allocation subscriptiondomain.Allocation) error {
	return apperr.Wrap(
		subscriptiondomain.ErrUnresolvedSuballocation,
		apperr.ErrUndefinedState,
		"unable to derive suballocation "+allocation.Key().String()+" from "+allocation.Service,
	)
}

func parseID(id string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return 0, apperr.Mark(subscriptiondomain.ErrInvalidID, apperr.ErrBadInput)
	}
	return parsed, nil
}
