package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/allotment/internal/clock"
	pricemodifierdomain "github.com/smallbiznis/allotment/internal/pricemodifier/domain"
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
	Repo  pricemodifierdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  pricemodifierdomain.Repository
}

func New(p Params) pricemodifierdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("pricemodifier.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) GetApplicableModifiers(ctx context.Context, services []string, entity subscriptiondomain.Entity, entityReference string, now time.Time) ([]pricemodifierdomain.Modifier, error) {
	services = lo.Uniq(lo.Compact(services))
	modifiers, err := s.repo.ListActive(ctx, s.db, services, entity, entityReference, now)
	if err != nil {
		return nil, err
	}
	return lo.Filter(modifiers, func(modifier pricemodifierdomain.Modifier, _ int) bool {
		return modifier.ActiveAt(now)
	}), nil
}

func (s *Service) Create(ctx context.Context, req pricemodifierdomain.CreateRequest) (*pricemodifierdomain.Modifier, error) {
	modifier, err := s.buildModifier(req)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	modifier.ID = s.genID.Generate()
	modifier.Version = 1
	modifier.CreatedAt = now
	modifier.UpdatedAt = now
	s.assignItemIDs(modifier)

	if err := s.repo.Insert(ctx, s.db, modifier); err != nil {
		return nil, err
	}
	s.log.Info("price modifier created",
		zap.String("modifier_id", modifier.ID.String()),
		zap.String("service", modifier.Service),
		zap.Bool("general", modifier.IsGeneral()),
	)
	return modifier, nil
}

func (s *Service) Update(ctx context.Context, id string, req pricemodifierdomain.CreateRequest) (*pricemodifierdomain.Modifier, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Service != "" && req.Service != existing.Service {
		return nil, apperr.Mark(pricemodifierdomain.ErrInvalidService, apperr.ErrBadInput)
	}
	req.Service = existing.Service

	modifier, err := s.buildModifier(req)
	if err != nil {
		return nil, err
	}
	modifier.ID = existing.ID
	modifier.Version = existing.Version
	modifier.CreatedAt = existing.CreatedAt
	modifier.UpdatedAt = s.clock.Now()
	s.assignItemIDs(modifier)

	if err := s.repo.Update(ctx, s.db, modifier); err != nil {
		if apperr.Is(err, pricemodifierdomain.ErrModifierNotFound) {
			return nil, apperr.Mark(err, apperr.ErrConflict)
		}
		return nil, err
	}
	modifier.Version++
	return modifier, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, s.db, existing.ID); err != nil {
		return err
	}
	s.log.Info("price modifier deleted", zap.String("modifier_id", existing.ID.String()))
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*pricemodifierdomain.Modifier, error) {
	modifierID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || modifierID == 0 {
		return nil, apperr.Mark(pricemodifierdomain.ErrInvalidID, apperr.ErrBadInput)
	}
	modifier, err := s.repo.FindByID(ctx, s.db, modifierID)
	if err != nil {
		return nil, err
	}
	if modifier == nil {
		return nil, apperr.Mark(pricemodifierdomain.ErrModifierNotFound, apperr.ErrNotFound)
	}
	return modifier, nil
}

func (s *Service) List(ctx context.Context, service string) ([]pricemodifierdomain.Modifier, error) {
	return s.repo.List(ctx, s.db, strings.TrimSpace(service))
}

func (s *Service) buildModifier(req pricemodifierdomain.CreateRequest) (*pricemodifierdomain.Modifier, error) {
	service := strings.TrimSpace(req.Service)
	if service == "" {
		return nil, apperr.Mark(pricemodifierdomain.ErrInvalidService, apperr.ErrBadInput)
	}
	reference := strings.TrimSpace(req.EntityReference)
	// Either both owner fields are set or neither.
	if (req.Entity == "") != (reference == "") || (req.Entity != "" && !req.Entity.Valid()) {
		return nil, apperr.Mark(pricemodifierdomain.ErrInvalidEntity, apperr.ErrBadInput)
	}
	if req.StartDate.IsZero() || (req.EndDate != nil && !req.EndDate.After(req.StartDate)) {
		return nil, apperr.Mark(pricemodifierdomain.ErrInvalidPeriod, apperr.ErrBadInput)
	}
	if len(req.Items) == 0 {
		return nil, apperr.Mark(pricemodifierdomain.ErrInvalidItem, apperr.ErrBadInput)
	}

	modifier := &pricemodifierdomain.Modifier{
		Service:         service,
		Entity:          req.Entity,
		EntityReference: reference,
		StartDate:       req.StartDate.UTC(),
		Description:     strings.TrimSpace(req.Description),
	}
	if req.EndDate != nil {
		end := req.EndDate.UTC()
		modifier.EndDate = &end
	}

	seen := make(map[subscriptiondomain.ItemKey]struct{}, len(req.Items))
	for _, item := range req.Items {
		if !subscriptiondomain.ValidBillingInterval(item.BillingInterval) || !item.ItemType.Valid() ||
			strings.TrimSpace(item.ItemReference) == "" {
			return nil, apperr.Mark(pricemodifierdomain.ErrInvalidItem, apperr.ErrBadInput)
		}
		if _, err := pricing.NewStrategy(item.ItemPrice); err != nil {
			return nil, apperr.Wrap(err, apperr.ErrPldInvalid, "invalid itemPrice: "+err.Error())
		}
		key := subscriptiondomain.NewItemKey(item.BillingInterval, item.ItemReference, item.ItemType)
		if _, dup := seen[key]; dup {
			return nil, apperr.Wrap(pricemodifierdomain.ErrInvalidItem, apperr.ErrBadInput, "duplicate item "+key.String())
		}
		seen[key] = struct{}{}

		modifier.Items = append(modifier.Items, pricemodifierdomain.ModifierItem{
			BillingInterval: item.BillingInterval,
			ItemType:        item.ItemType,
			ItemReference:   strings.TrimSpace(item.ItemReference),
			Description:     strings.TrimSpace(item.Description),
			ItemPrice:       datatypes.NewJSONType(item.ItemPrice),
		})
	}
	return modifier, nil
}

func (s *Service) assignItemIDs(modifier *pricemodifierdomain.Modifier) {
	for i := range modifier.Items {
		modifier.Items[i].ID = s.genID.Generate()
		modifier.Items[i].ModifierID = modifier.ID
	}
}
