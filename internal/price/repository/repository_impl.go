package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	pricedomain "github.com/smallbiznis/allotment/internal/price/domain"
	"gorm.io/gorm"
)

const priceColumns = `p.id, p.service, p.start_date, p.description, p.version, p.created_at, p.updated_at`

type repo struct{}

func Provide() pricedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, price *pricedomain.Price) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT INTO billing_subscription_prices (
				id, service, start_date, description, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			price.ID,
			price.Service,
			price.StartDate,
			price.Description,
			1,
			price.CreatedAt,
			price.UpdatedAt,
		).Error; err != nil {
			return err
		}
		return insertItems(ctx, tx, price.Items)
	})
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, price *pricedomain.Price) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			`UPDATE billing_subscription_prices
			 SET start_date = ?, description = ?, updated_at = ?, version = version + 1
			 WHERE id = ? AND version = ?`,
			price.StartDate,
			price.Description,
			price.UpdatedAt,
			price.ID,
			price.Version,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return pricedomain.ErrPriceNotFound
		}
		if err := tx.Exec(`DELETE FROM billing_subscription_price_items WHERE price_id = ?`, price.ID).Error; err != nil {
			return err
		}
		return insertItems(ctx, tx, price.Items)
	})
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM billing_subscription_price_items WHERE price_id = ?`, id).Error; err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM billing_subscription_prices WHERE id = ?`, id).Error
	})
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*pricedomain.Price, error) {
	var prices []pricedomain.Price
	err := db.WithContext(ctx).Raw(
		`SELECT `+priceColumns+` FROM billing_subscription_prices p WHERE p.id = ?`,
		id,
	).Scan(&prices).Error
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, nil
	}
	if err := loadItems(ctx, db, prices); err != nil {
		return nil, err
	}
	return &prices[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, service string) ([]pricedomain.Price, error) {
	query := db.WithContext(ctx).
		Table("billing_subscription_prices p").
		Select(priceColumns).
		Order("p.service ASC, p.start_date DESC")
	if service != "" {
		query = query.Where("p.service = ?", service)
	}

	var prices []pricedomain.Price
	if err := query.Scan(&prices).Error; err != nil {
		return nil, err
	}
	if err := loadItems(ctx, db, prices); err != nil {
		return nil, err
	}
	return prices, nil
}

func (r *repo) ListEffective(ctx context.Context, db *gorm.DB, services []string, now time.Time) ([]pricedomain.Price, error) {
	if len(services) == 0 {
		return nil, nil
	}

	owned := db.Session(&gorm.Session{NewDB: true}).Where("p.service IN ?", services)
	for _, service := range services {
		// Candidates only; callers match usableBy exactly.
		owned = owned.Or(
			`EXISTS (SELECT 1 FROM billing_subscription_price_items i
			 WHERE i.price_id = p.id AND CAST(i.usable_by AS TEXT) LIKE ?)`,
			usableByPattern(service),
		)
	}

	var prices []pricedomain.Price
	err := db.WithContext(ctx).
		Table("billing_subscription_prices p").
		Select(priceColumns).
		Where("p.start_date <= ?", now).
		Where(owned).
		Order("p.start_date DESC, p.id DESC").
		Scan(&prices).Error
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, db, prices); err != nil {
		return nil, err
	}
	return prices, nil
}

func (r *repo) CountEffective(ctx context.Context, db *gorm.DB, service string, now time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM billing_subscription_prices WHERE service = ? AND start_date <= ?`,
		service,
		now,
	).Scan(&count).Error
	return count, err
}

func insertItems(ctx context.Context, db *gorm.DB, items []pricedomain.PriceItem) error {
	for _, item := range items {
		usableBy, err := item.UsableBy.Value()
		if err != nil {
			return err
		}
		itemPrice, err := item.ItemPrice.Value()
		if err != nil {
			return err
		}
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO billing_subscription_price_items (
				id, price_id, billing_interval, item_type, item_reference, currency,
				usable_by, description, item_price
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.PriceID,
			item.BillingInterval,
			item.ItemType,
			item.ItemReference,
			item.Currency,
			usableBy,
			item.Description,
			itemPrice,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func loadItems(ctx context.Context, db *gorm.DB, prices []pricedomain.Price) error {
	if len(prices) == 0 {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(prices))
	for _, price := range prices {
		ids = append(ids, price.ID)
	}

	var items []pricedomain.PriceItem
	if err := db.WithContext(ctx).Raw(
		`SELECT id, price_id, billing_interval, item_type, item_reference, currency,
		 usable_by, description, item_price
		 FROM billing_subscription_price_items
		 WHERE price_id IN ?
		 ORDER BY id ASC`,
		ids,
	).Scan(&items).Error; err != nil {
		return err
	}

	byPrice := make(map[snowflake.ID][]pricedomain.PriceItem, len(prices))
	for _, item := range items {
		byPrice[item.PriceID] = append(byPrice[item.PriceID], item)
	}
	for i := range prices {
		prices[i].Items = byPrice[prices[i].ID]
	}
	return nil
}

func usableByPattern(service string) string {
	return fmt.Sprintf("%%%q%%", service)
}
