package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/allotment/internal/clock"
	pricedomain "github.com/smallbiznis/allotment/internal/price/domain"
	"github.com/smallbiznis/allotment/internal/pricing"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  pricedomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  pricedomain.Repository
}

func New(p Params) pricedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("price.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) GetApplicablePrices(ctx context.Context, services []string, now time.Time) ([]pricedomain.Price, error) {
	services = lo.Uniq(lo.Compact(services))
	prices, err := s.repo.ListEffective(ctx, s.db, services, now)
	if err != nil {
		return nil, err
	}

	// Keep documents that really concern services; the query over-matches
	// shared items.
	prices = lo.Filter(prices, func(price pricedomain.Price, _ int) bool {
		if lo.Contains(services, price.Service) {
			return true
		}
		return lo.SomeBy(price.Items, func(item pricedomain.PriceItem) bool {
			return lo.Some(item.UsableBy, services)
		})
	})

	// Newest first, so the first document of each service is the one in effect.
	return lo.UniqBy(prices, func(price pricedomain.Price) string {
		return price.Service
	}), nil
}

func (s *Service) Create(ctx context.Context, req pricedomain.CreateRequest) (*pricedomain.Price, error) {
	now := s.clock.Now()
	price, err := s.buildPrice(req, now)
	if err != nil {
		return nil, err
	}
	price.ID = s.genID.Generate()
	price.Version = 1
	price.CreatedAt = now
	price.UpdatedAt = now
	for i := range price.Items {
		price.Items[i].ID = s.genID.Generate()
		price.Items[i].PriceID = price.ID
	}

	if err := s.repo.Insert(ctx, s.db, price); err != nil {
		return nil, err
	}
	s.log.Info("price created",
		zap.String("price_id", price.ID.String()),
		zap.String("service", price.Service),
		zap.Time("start_date", price.StartDate),
	)
	return price, nil
}

func (s *Service) Update(ctx context.Context, id string, req pricedomain.CreateRequest) (*pricedomain.Price, error) {
	priceID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.FindByID(ctx, s.db, priceID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperr.Mark(pricedomain.ErrPriceNotFound, apperr.ErrNotFound)
	}

	now := s.clock.Now()
	if !existing.StartDate.After(now) {
		return nil, apperr.Mark(pricedomain.ErrPriceAlreadyActive, apperr.ErrConflict)
	}
	if req.Service != "" && req.Service != existing.Service {
		return nil, apperr.Mark(pricedomain.ErrInvalidService, apperr.ErrBadInput)
	}
	req.Service = existing.Service

	price, err := s.buildPrice(req, now)
	if err != nil {
		return nil, err
	}
	price.ID = existing.ID
	price.Version = existing.Version
	price.CreatedAt = existing.CreatedAt
	price.UpdatedAt = now
	for i := range price.Items {
		price.Items[i].ID = s.genID.Generate()
		price.Items[i].PriceID = price.ID
	}

	if err := s.repo.Update(ctx, s.db, price); err != nil {
		if apperr.Is(err, pricedomain.ErrPriceNotFound) {
			return nil, apperr.Mark(err, apperr.ErrConflict)
		}
		return nil, err
	}
	price.Version++
	return price, nil
}

// Delete removes a price document unless it is the last one in effect for
// its service.
func (s *Service) Delete(ctx context.Context, id string) error {
	priceID, err := parseID(id)
	if err != nil {
		return err
	}
	existing, err := s.repo.FindByID(ctx, s.db, priceID)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperr.Mark(pricedomain.ErrPriceNotFound, apperr.ErrNotFound)
	}

	now := s.clock.Now()
	if !existing.StartDate.After(now) {
		count, err := s.repo.CountEffective(ctx, s.db, existing.Service, now)
		if err != nil {
			return err
		}
		if count <= 1 {
			return apperr.Mark(pricedomain.ErrLastEffectivePrice, apperr.ErrConflict)
		}
	}

	if err := s.repo.Delete(ctx, s.db, priceID); err != nil {
		return err
	}
	s.log.Info("price deleted", zap.String("price_id", priceID.String()), zap.String("service", existing.Service))
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*pricedomain.Price, error) {
	priceID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	price, err := s.repo.FindByID(ctx, s.db, priceID)
	if err != nil {
		return nil, err
	}
	if price == nil {
		return nil, apperr.Mark(pricedomain.ErrPriceNotFound, apperr.ErrNotFound)
	}
	return price, nil
}

func (s *Service) List(ctx context.Context, service string) ([]pricedomain.Price, error) {
	return s.repo.List(ctx, s.db, strings.TrimSpace(service))
}

func (s *Service) buildPrice(req pricedomain.CreateRequest, now time.Time) (*pricedomain.Price, error) {
	service := strings.TrimSpace(req.Service)
	if service == "" {
		return nil, apperr.Mark(pricedomain.ErrInvalidService, apperr.ErrBadInput)
	}
	if !req.StartDate.After(now) {
		return nil, apperr.Mark(pricedomain.ErrInvalidStartDate, apperr.ErrBadInput)
	}
	if len(req.Items) == 0 {
		return nil, apperr.Mark(pricedomain.ErrInvalidItem, apperr.ErrBadInput)
	}

	price := &pricedomain.Price{
		Service:     service,
		StartDate:   req.StartDate.UTC(),
		Description: strings.TrimSpace(req.Description),
	}
	seen := make(map[subscriptiondomain.ItemKey]struct{}, len(req.Items))
	for _, item := range req.Items {
		if err := validateItem(item); err != nil {
			return nil, err
		}
		key := subscriptiondomain.NewItemKey(item.BillingInterval, item.ItemReference, item.ItemType)
		if _, dup := seen[key]; dup {
			return nil, apperr.Wrap(pricedomain.ErrDuplicateItem, apperr.ErrBadInput, "duplicate item "+key.String())
		}
		seen[key] = struct{}{}

		price.Items = append(price.Items, pricedomain.PriceItem{
			BillingInterval: item.BillingInterval,
			ItemType:        item.ItemType,
			ItemReference:   strings.TrimSpace(item.ItemReference),
			Currency:        strings.ToUpper(strings.TrimSpace(item.Currency)),
			UsableBy:        datatypes.NewJSONSlice(lo.Uniq(lo.Compact(item.UsableBy))),
			Description:     strings.TrimSpace(item.Description),
			ItemPrice:       datatypes.NewJSONType(item.ItemPrice),
		})
	}
	return price, nil
}

func validateItem(item pricedomain.CreateItemRequest) error {
	switch {
	case !subscriptiondomain.ValidBillingInterval(item.BillingInterval):
		return apperr.Wrap(pricedomain.ErrInvalidItem, apperr.ErrBadInput, "billingInterval must be between 1 and 12")
	case !item.ItemType.Valid():
		return apperr.Wrap(pricedomain.ErrInvalidItem, apperr.ErrBadInput, "unknown itemType "+string(item.ItemType))
	case strings.TrimSpace(item.ItemReference) == "":
		return apperr.Wrap(pricedomain.ErrInvalidItem, apperr.ErrBadInput, "itemReference is required")
	case strings.TrimSpace(item.Currency) == "":
		return apperr.Wrap(pricedomain.ErrInvalidItem, apperr.ErrBadInput, "currency is required")
	}
	if _, err := pricing.NewStrategy(item.ItemPrice); err != nil {
		return apperr.Wrap(err, apperr.ErrPldInvalid, "invalid itemPrice: "+err.Error())
	}
	return nil
}

func parseID(id string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return 0, apperr.Mark(pricedomain.ErrInvalidID, apperr.ErrBadInput)
	}
	return parsed, nil
}
