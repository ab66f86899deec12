package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/allotment/internal/clock"
	"github.com/smallbiznis/allotment/internal/paymenthistory/domain"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"github.com/smallbiznis/allotment/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("paymenthistory.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, entry *domain.PaymentHistory) error {
	if entry == nil || len(entry.Charges) == 0 {
		return apperr.Mark(domain.ErrEmptyCharges, apperr.ErrUndefinedState)
	}
	if entry.Entity == "" || strings.TrimSpace(entry.EntityReference) == "" {
		return apperr.Mark(domain.ErrInvalidOwner, apperr.ErrBadInput)
	}
	now := s.clock.Now()
	if entry.ID == 0 {
		entry.ID = s.genID.Generate()
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		return err
	}
	s.log.Info("payment history created",
		zap.String("payment_history_id", entry.ID.String()),
		zap.String("operations_id", entry.OperationsID.String()),
		zap.String("total", entry.TotalBillAmount.String()),
		zap.String("created_by", string(entry.CreatedByKind)),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.PaymentHistory, error) {
	entry, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperr.Mark(domain.ErrNotFound, apperr.ErrNotFound)
	}
	return entry, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if req.Entity == "" || strings.TrimSpace(req.EntityReference) == "" {
		return domain.ListResponse{}, apperr.Mark(domain.ErrInvalidOwner, apperr.ErrBadInput)
	}

	var cursor *domain.Cursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListResponse{}, apperr.Mark(domain.ErrInvalidPageToken, apperr.ErrBadInput)
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return domain.ListResponse{}, apperr.Mark(domain.ErrInvalidPageToken, apperr.ErrBadInput)
		}
		cursor = &domain.Cursor{ID: id, CreatedAt: decoded.CreatedAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		Entity:          req.Entity,
		EntityReference: req.EntityReference,
		Cursor:          cursor,
		Limit:           pageSize,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	items, pageInfo, err := pagination.Page(items, pageSize, func(item *domain.PaymentHistory) pagination.Cursor {
		return pagination.Cursor{ID: item.ID.String(), CreatedAt: item.CreatedAt}
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	entries := make([]domain.PaymentHistory, 0, len(items))
	for _, item := range items {
		entries = append(entries, *item)
	}
	return domain.ListResponse{Entries: entries, PageInfo: pageInfo}, nil
}

func (s *Service) LinkTransaction(ctx context.Context, id snowflake.ID, transactionID, status string) error {
	ok, err := s.repo.LinkTransaction(ctx, s.db, id, transactionID, status, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Mark(domain.ErrNotFound, apperr.ErrNotFound)
	}
	return nil
}

func (s *Service) LinkInvoice(ctx context.Context, id snowflake.ID, invoice domain.Invoice) error {
	ok, err := s.repo.LinkInvoice(ctx, s.db, id, invoice, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Mark(domain.ErrNotFound, apperr.ErrNotFound)
	}
	return nil
}
