package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	operationdomain "github.com/smallbiznis/allotment/internal/operation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() operationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *operationdomain.Record) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*operationdomain.Record, error) {
	var records []operationdomain.Record
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}
