package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/allotment/internal/paymenthistory/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.PaymentHistory) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentHistory, error) {
	var entries []domain.PaymentHistory
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.PaymentHistory, error) {
	var entries []*domain.PaymentHistory
	stmt := db.WithContext(ctx).Model(&domain.PaymentHistory{}).
		Where("entity = ? AND entity_reference = ?", filter.Entity, filter.EntityReference)

	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) LinkTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID, transactionID, status string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.PaymentHistory{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"transaction_id":     transactionID,
			"transaction_status": status,
			"updated_at":         at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) LinkInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID, invoice domain.Invoice, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.PaymentHistory{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"invoice":    datatypes.NewJSONType(invoice),
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
