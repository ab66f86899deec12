package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_subscriptions (
			id, service, entity, entity_reference, status, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.Service,
		subscription.Entity,
		subscription.EntityReference,
		subscription.Status,
		versionOrInitial(subscription.Version),
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) InsertAllocation(ctx context.Context, db *gorm.DB, allocation *subscriptiondomain.Allocation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_subscription_allocations (
			id, subscription_id, position, billing_interval, item_type, item_reference,
			quantity, service, last_renew_date, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		allocation.ID,
		allocation.SubscriptionID,
		allocation.Position,
		allocation.BillingInterval,
		allocation.ItemType,
		allocation.ItemReference,
		allocation.Quantity,
		allocation.Service,
		allocation.LastRenewDate,
		versionOrInitial(allocation.Version),
	).Error
}

func (r *repo) InsertSuballocation(ctx context.Context, db *gorm.DB, suballocation *subscriptiondomain.Suballocation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_subscription_suballocations (
			id, allocation_id, service, quantity, version
		) VALUES (?, ?, ?, ?, ?)`,
		suballocation.ID,
		suballocation.AllocationID,
		suballocation.Service,
		suballocation.Quantity,
		versionOrInitial(suballocation.Version),
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, service, entity, entity_reference, status, version, created_at, updated_at
		 FROM billing_subscriptions WHERE id = ?`,
		id,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	if len(subscriptions) == 0 {
		return nil, nil
	}
	if err := r.loadAllocations(ctx, db, subscriptions); err != nil {
		return nil, err
	}
	return &subscriptions[0], nil
}

func (r *repo) FindByOwner(ctx context.Context, db *gorm.DB, entity subscriptiondomain.Entity, entityReference, service string) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, service, entity, entity_reference, status, version, created_at, updated_at
		 FROM billing_subscriptions
		 WHERE entity = ? AND entity_reference = ? AND service = ?
		 ORDER BY created_at ASC`,
		entity,
		entityReference,
		service,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	if err := r.loadAllocations(ctx, db, subscriptions); err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, entity subscriptiondomain.Entity, entityReference string) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, service, entity, entity_reference, status, version, created_at, updated_at
		 FROM billing_subscriptions
		 WHERE entity = ? AND entity_reference = ?
		 ORDER BY service ASC`,
		entity,
		entityReference,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	if err := r.loadAllocations(ctx, db, subscriptions); err != nil {
		return nil, err
	}
	return subscriptions, nil
}

// ListRenewable returns active subscriptions with an id above after holding
// at least one allocation not renewed since renewedBefore.
func (r *repo) ListRenewable(ctx context.Context, db *gorm.DB, renewedBefore time.Time, after snowflake.ID, limit int) ([]subscriptiondomain.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT s.id, s.service, s.entity, s.entity_reference, s.status, s.version, s.created_at, s.updated_at
		 FROM billing_subscriptions s
		 WHERE s.status = ?
		 AND s.id > ?
		 AND EXISTS (
			SELECT 1 FROM billing_subscription_allocations a
			WHERE a.subscription_id = s.id AND a.last_renew_date < ?
		 )
		 ORDER BY s.id ASC
		 LIMIT ?`,
		subscriptiondomain.SubscriptionStatusActive,
		after,
		renewedBefore,
		limit,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	if err := r.loadAllocations(ctx, db, subscriptions); err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) UpdateAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, change subscriptiondomain.AllocationChange) (int64, error) {
	updates := map[string]any{"version": gorm.Expr("version + 1")}
	if change.QuantityDelta != nil {
		updates["quantity"] = gorm.Expr("quantity + ?", *change.QuantityDelta)
	}
	if change.LastRenewDate != nil {
		updates["last_renew_date"] = *change.LastRenewDate
	}
	query := db.WithContext(ctx).
		Table("billing_subscription_allocations").
		Where("id = ?", id)
	if version > 0 {
		query = query.Where("version = ?", version)
	}
	result := query.Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *repo) TouchAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID, lastRenewDate time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE billing_subscription_allocations
		 SET last_renew_date = ?, version = version + 1
		 WHERE id = ?`,
		lastRenewDate,
		id,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) UpdateSuballocation(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, quantityDelta int64) (int64, error) {
	query := db.WithContext(ctx).
		Table("billing_subscription_suballocations").
		Where("id = ?", id)
	if version > 0 {
		query = query.Where("version = ?", version)
	}
	result := query.Updates(map[string]any{
		"quantity": gorm.Expr("quantity + ?", quantityDelta),
		"version":  gorm.Expr("version + 1"),
	})
	return result.RowsAffected, result.Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status subscriptiondomain.SubscriptionStatus, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE billing_subscriptions
		 SET status = ?, updated_at = ?, version = version + 1
		 WHERE id = ?`,
		status,
		at,
		id,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`DELETE FROM billing_subscription_suballocations WHERE allocation_id IN (
				SELECT id FROM billing_subscription_allocations WHERE subscription_id = ?
			)`,
			id,
		).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM billing_subscription_allocations WHERE subscription_id = ?`, id).Error; err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM billing_subscriptions WHERE id = ?`, id).Error
	})
}

func (r *repo) DeleteAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	if err := db.WithContext(ctx).Exec(`DELETE FROM billing_subscription_suballocations WHERE allocation_id = ?`, id).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(`DELETE FROM billing_subscription_allocations WHERE id = ?`, id).Error
}

func (r *repo) DeleteSuballocation(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM billing_subscription_suballocations WHERE id = ?`, id).Error
}

func (r *repo) AllocationUsage(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, int64, error) {
	var row struct {
		Quantity int64
		Lent     int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT a.quantity AS quantity, COALESCE(SUM(s.quantity), 0) AS lent
		 FROM billing_subscription_allocations a
		 LEFT JOIN billing_subscription_suballocations s ON s.allocation_id = a.id
		 WHERE a.id = ?
		 GROUP BY a.quantity`,
		id,
	).Scan(&row).Error
	return row.Quantity, row.Lent, err
}

func (r *repo) loadAllocations(ctx context.Context, db *gorm.DB, subscriptions []subscriptiondomain.Subscription) error {
	if len(subscriptions) == 0 {
		return nil
	}

	ids := make([]snowflake.ID, 0, len(subscriptions))
	for _, subscription := range subscriptions {
		ids = append(ids, subscription.ID)
	}

	var allocations []subscriptiondomain.Allocation
	if err := db.WithContext(ctx).Raw(
		`SELECT id, subscription_id, position, billing_interval, item_type, item_reference,
		 quantity, service, last_renew_date, version
		 FROM billing_subscription_allocations
		 WHERE subscription_id IN ?
		 ORDER BY subscription_id ASC, position ASC, id ASC`,
		ids,
	).Scan(&allocations).Error; err != nil {
		return err
	}
	if len(allocations) == 0 {
		return nil
	}

	allocationIDs := make([]snowflake.ID, 0, len(allocations))
	for _, allocation := range allocations {
		allocationIDs = append(allocationIDs, allocation.ID)
	}

	var suballocations []subscriptiondomain.Suballocation
	if err := db.WithContext(ctx).Raw(
		`SELECT id, allocation_id, service, quantity, version
		 FROM billing_subscription_suballocations
		 WHERE allocation_id IN ?
		 ORDER BY id ASC`,
		allocationIDs,
	).Scan(&suballocations).Error; err != nil {
		return err
	}

	subsByAllocation := make(map[snowflake.ID][]subscriptiondomain.Suballocation, len(allocations))
	for _, sub := range suballocations {
		subsByAllocation[sub.AllocationID] = append(subsByAllocation[sub.AllocationID], sub)
	}

	bySubscription := make(map[snowflake.ID][]subscriptiondomain.Allocation, len(subscriptions))
	for _, allocation := range allocations {
		allocation.Suballocations = subsByAllocation[allocation.ID]
		bySubscription[allocation.SubscriptionID] = append(bySubscription[allocation.SubscriptionID], allocation)
	}

	for i := range subscriptions {
		subscriptions[i].Allocations = bySubscription[subscriptions[i].ID]
	}
	return nil
}

func versionOrInitial(version int64) int64 {
	if version <= 0 {
		return 1
	}
	return version
}
