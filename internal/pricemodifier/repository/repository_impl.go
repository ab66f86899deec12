package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	pricemodifierdomain "github.com/smallbiznis/allotment/internal/pricemodifier/domain"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"gorm.io/gorm"
)

const modifierColumns = `m.id, m.service, m.entity, m.entity_reference, m.start_date, m.end_date,
	m.description, m.version, m.created_at, m.updated_at`

type repo struct{}

func Provide() pricemodifierdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, modifier *pricemodifierdomain.Modifier) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT INTO billing_subscription_price_modifiers (
				id, service, entity, entity_reference, start_date, end_date,
				description, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			modifier.ID,
			modifier.Service,
			modifier.Entity,
			modifier.EntityReference,
			modifier.StartDate,
			modifier.EndDate,
			modifier.Description,
			1,
			modifier.CreatedAt,
			modifier.UpdatedAt,
		).Error; err != nil {
			return err
		}
		return insertItems(ctx, tx, modifier.Items)
	})
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, modifier *pricemodifierdomain.Modifier) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			`UPDATE billing_subscription_price_modifiers
			 SET entity = ?, entity_reference = ?, start_date = ?, end_date = ?,
			 description = ?, updated_at = ?, version = version + 1
			 WHERE id = ? AND version = ?`,
			modifier.Entity,
			modifier.EntityReference,
			modifier.StartDate,
			modifier.EndDate,
			modifier.Description,
			modifier.UpdatedAt,
			modifier.ID,
			modifier.Version,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return pricemodifierdomain.ErrModifierNotFound
		}
		if err := tx.Exec(`DELETE FROM billing_subscription_price_modifier_items WHERE modifier_id = ?`, modifier.ID).Error; err != nil {
			return err
		}
		return insertItems(ctx, tx, modifier.Items)
	})
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM billing_subscription_price_modifier_items WHERE modifier_id = ?`, id).Error; err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM billing_subscription_price_modifiers WHERE id = ?`, id).Error
	})
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*pricemodifierdomain.Modifier, error) {
	var modifiers []pricemodifierdomain.Modifier
	err := db.WithContext(ctx).Raw(
		`SELECT `+modifierColumns+` FROM billing_subscription_price_modifiers m WHERE m.id = ?`,
		id,
	).Scan(&modifiers).Error
	if err != nil {
		return nil, err
	}
	if len(modifiers) == 0 {
		return nil, nil
	}
	if err := loadItems(ctx, db, modifiers); err != nil {
		return nil, err
	}
	return &modifiers[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, service string) ([]pricemodifierdomain.Modifier, error) {
	query := db.WithContext(ctx).
		Table("billing_subscription_price_modifiers m").
		Select(modifierColumns).
		Order("m.service ASC, m.start_date DESC")
	if service != "" {
		query = query.Where("m.service = ?", service)
	}

	var modifiers []pricemodifierdomain.Modifier
	if err := query.Scan(&modifiers).Error; err != nil {
		return nil, err
	}
	if err := loadItems(ctx, db, modifiers); err != nil {
		return nil, err
	}
	return modifiers, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, services []string, entity subscriptiondomain.Entity, entityReference string, now time.Time) ([]pricemodifierdomain.Modifier, error) {
	if len(services) == 0 {
		return nil, nil
	}

	var modifiers []pricemodifierdomain.Modifier
	err := db.WithContext(ctx).Raw(
		`SELECT `+modifierColumns+`
		 FROM billing_subscription_price_modifiers m
		 WHERE m.service IN ?
		 AND m.start_date <= ?
		 AND (m.end_date IS NULL OR m.end_date > ?)
		 AND ((m.entity = '' AND m.entity_reference = '') OR (m.entity = ? AND m.entity_reference = ?))
		 ORDER BY m.start_date DESC, m.id DESC`,
		services,
		now,
		now,
		entity,
		entityReference,
	).Scan(&modifiers).Error
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, db, modifiers); err != nil {
		return nil, err
	}
	return modifiers, nil
}

func insertItems(ctx context.Context, db *gorm.DB, items []pricemodifierdomain.ModifierItem) error {
	for _, item := range items {
		itemPrice, err := item.ItemPrice.Value()
		if err != nil {
			return err
		}
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO billing_subscription_price_modifier_items (
				id, modifier_id, billing_interval, item_type, item_reference, description, item_price
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.ModifierID,
			item.BillingInterval,
			item.ItemType,
			item.ItemReference,
			item.Description,
			itemPrice,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func loadItems(ctx context.Context, db *gorm.DB, modifiers []pricemodifierdomain.Modifier) error {
	if len(modifiers) == 0 {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(modifiers))
	for _, modifier := range modifiers {
		ids = append(ids, modifier.ID)
	}

	var items []pricemodifierdomain.ModifierItem
	if err := db.WithContext(ctx).Raw(
		`SELECT id, modifier_id, billing_interval, item_type, item_reference, description, item_price
		 FROM billing_subscription_price_modifier_items
		 WHERE modifier_id IN ?
		 ORDER BY id ASC`,
		ids,
	).Scan(&items).Error; err != nil {
		return err
	}

	byModifier := make(map[snowflake.ID][]pricemodifierdomain.ModifierItem, len(modifiers))
	for _, item := range items {
		byModifier[item.ModifierID] = append(byModifier[item.ModifierID], item)
	}
	for i := range modifiers {
		modifiers[i].Items = byModifier[modifiers[i].ID]
	}
	return nil
}
