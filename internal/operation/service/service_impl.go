package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/allotment/internal/clock"
	operationdomain "github.com/smallbiznis/allotment/internal/operation/domain"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"github.com/smallbiznis/allotment/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             operationdomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	repo             operationdomain.Repository
	subscriptionRepo subscriptiondomain.Repository
}

func New(p Params) operationdomain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("operation.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		subscriptionRepo: p.SubscriptionRepo,
	}
}

func (s *Service) Create(ctx context.Context, ops []operationdomain.UpdateOperation) (*operationdomain.Record, error) {
	if len(ops) == 0 {
		return nil, apperr.Mark(operationdomain.ErrEmptyOperations, apperr.ErrUndefinedState)
	}
	record := &operationdomain.Record{
		ID:         s.genID.Generate(),
		Operations: datatypes.NewJSONSlice(ops),
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*operationdomain.Record, error) {
	record, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, apperr.Mark(operationdomain.ErrRecordNotFound, apperr.ErrNotFound)
	}
	return record, nil
}

func (s *Service) Replay(ctx context.Context, id snowflake.ID) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.applyAll(ctx, tx, id.String(), record.Operations)
	})
	if err != nil {
		return err
	}

	s.log.Info("operations replayed",
		zap.String("operations_id", id.String()),
		zap.Int("count", len(record.Operations)),
	)
	return nil
}

// Check applies ops like Replay does and rolls them back. It reports the
// error Replay would return against the current rows.
func (s *Service) Check(ctx context.Context, ops []operationdomain.UpdateOperation) error {
	if len(ops) == 0 {
		return apperr.Mark(operationdomain.ErrEmptyOperations, apperr.ErrUndefinedState)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.applyAll(ctx, tx, "check", ops); err != nil {
			return err
		}
		return errRollback
	})
	if errors.Is(err, errRollback) {
		return nil
	}
	return err
}

var errRollback = errors.New("rollback")

func (s *Service) applyAll(ctx context.Context, tx *gorm.DB, label string, ops []operationdomain.UpdateOperation) error {
	r := newReplay(tx, s.subscriptionRepo)
	for i, op := range ops {
		if err := r.apply(ctx, op); err != nil {
			s.log.Warn("operation failed",
				zap.String("operations_id", label),
				zap.Int("index", i),
				zap.String("description", op.Description),
				zap.Error(err),
			)
			return err
		}
	}
	return r.checkCapacity(ctx)
}

// replay applies operations of one record. Versions in update queries are
// the ones observed at derive time, so the bumps made earlier in the same
// replay are added before comparing.
type replay struct {
	tx    *gorm.DB
	repo  subscriptiondomain.Repository
	bumps map[snowflake.ID]int64

	// allocations whose lent quantity may have changed
	lenders []snowflake.ID
	seen    map[snowflake.ID]struct{}
}

func newReplay(tx *gorm.DB, repo subscriptiondomain.Repository) *replay {
	return &replay{
		tx:    tx,
		repo:  repo,
		bumps: make(map[snowflake.ID]int64),
		seen:  make(map[snowflake.ID]struct{}),
	}
}

func (r *replay) apply(ctx context.Context, op operationdomain.UpdateOperation) error {
	var err error
	switch op.Op {
	case operationdomain.OpCreate:
		err = r.create(ctx, op)
	case operationdomain.OpUpdate:
		err = r.update(ctx, op)
	case operationdomain.OpDelete:
		err = r.delete(ctx, op)
	default:
		return apperr.Wrap(operationdomain.ErrUnknownOp, apperr.ErrUndefinedState, "unknown operation "+string(op.Op))
	}
	switch {
	case db.IsDuplicateKeyErr(err):
		return apperr.Wrap(err, apperr.ErrConflict, op.Description+" already exists")
	case db.IsForeignKeyErr(err):
		return apperr.Wrap(err, apperr.ErrConflict, op.Description+" refers to a removed record")
	}
	return err
}

func (r *replay) create(ctx context.Context, op operationdomain.UpdateOperation) error {
	set, err := op.Set.Decode()
	if err != nil {
		return malformed(op, err)
	}

	switch op.Target {
	case operationdomain.TargetSubscription:
		createdAt := dateField(set, operationdomain.FieldCreatedAt)
		subscription := &subscriptiondomain.Subscription{
			ID:              idField(set, operationdomain.FieldID),
			Service:         stringField(set, operationdomain.FieldService),
			Entity:          subscriptiondomain.Entity(stringField(set, operationdomain.FieldEntity)),
			EntityReference: stringField(set, operationdomain.FieldEntityReference),
			Status:          subscriptiondomain.SubscriptionStatus(stringField(set, operationdomain.FieldStatus)),
			Version:         1,
			CreatedAt:       createdAt,
			UpdatedAt:       createdAt,
		}
		return r.repo.Insert(ctx, r.tx, subscription)

	case operationdomain.TargetAllocation:
		renewed := dateField(set, operationdomain.FieldLastRenewDate)
		allocation := &subscriptiondomain.Allocation{
			ID:              idField(set, operationdomain.FieldID),
			SubscriptionID:  idField(set, operationdomain.FieldSubscriptionID),
			BillingInterval: int(intField(set, operationdomain.FieldBillingInterval)),
			ItemType:        subscriptiondomain.ItemType(stringField(set, operationdomain.FieldItemType)),
			ItemReference:   stringField(set, operationdomain.FieldItemReference),
			Quantity:        intField(set, operationdomain.FieldQuantity),
			Service:         stringField(set, operationdomain.FieldService),
			LastRenewDate:   renewed,
			Version:         1,
		}
		return r.repo.InsertAllocation(ctx, r.tx, allocation)

	case operationdomain.TargetSuballocation:
		suballocation := &subscriptiondomain.Suballocation{
			ID:           idField(set, operationdomain.FieldID),
			AllocationID: idField(set, operationdomain.FieldAllocationID),
			Service:      stringField(set, operationdomain.FieldService),
			Quantity:     intField(set, operationdomain.FieldQuantity),
			Version:      1,
		}
		if err := r.repo.InsertSuballocation(ctx, r.tx, suballocation); err != nil {
			return err
		}
		r.lent(suballocation.AllocationID)
		return nil
	}
	return malformed(op, operationdomain.ErrUnknownOp)
}

func (r *replay) update(ctx context.Context, op operationdomain.UpdateOperation) error {
	rowID, err := op.Query.ID(operationdomain.FieldID)
	if err != nil {
		return malformed(op, err)
	}
	version, err := r.expected(op.Query, rowID)
	if err != nil {
		return malformed(op, err)
	}

	switch op.Target {
	case operationdomain.TargetSubscription:
		status, err := op.Set.String(operationdomain.FieldStatus)
		if err != nil {
			return malformed(op, err)
		}
		at, err := op.Set.Date(operationdomain.FieldUpdatedAt)
		if err != nil {
			return malformed(op, err)
		}
		rows, err := r.repo.UpdateStatus(ctx, r.tx, rowID, subscriptiondomain.SubscriptionStatus(status), at)
		return r.applied(op, rowID, rows, err)

	case operationdomain.TargetAllocation:
		var change subscriptiondomain.AllocationChange
		if op.Set.Has(operationdomain.FieldQuantityDelta) {
			delta, err := op.Set.Int(operationdomain.FieldQuantityDelta)
			if err != nil {
				return malformed(op, err)
			}
			change.QuantityDelta = &delta
		}
		if op.Set.Has(operationdomain.FieldLastRenewDate) {
			renewed, err := op.Set.Date(operationdomain.FieldLastRenewDate)
			if err != nil {
				return malformed(op, err)
			}
			change.LastRenewDate = &renewed
		}
		rows, err := r.repo.UpdateAllocation(ctx, r.tx, rowID, version, change)
		if err := r.applied(op, rowID, rows, err); err != nil {
			return err
		}
		if change.QuantityDelta != nil {
			r.lent(rowID)
		}
		return nil

	case operationdomain.TargetSuballocation:
		delta, err := op.Set.Int(operationdomain.FieldQuantityDelta)
		if err != nil {
			return malformed(op, err)
		}
		parentID, err := op.Set.ID(operationdomain.FieldAllocationID)
		if err != nil {
			return malformed(op, err)
		}
		rows, err := r.repo.UpdateSuballocation(ctx, r.tx, rowID, version, delta)
		if err := r.applied(op, rowID, rows, err); err != nil {
			return err
		}
		r.lent(parentID)
		if !op.Set.Has(operationdomain.FieldLastRenewDate) {
			return nil
		}
		renewed, err := op.Set.Date(operationdomain.FieldLastRenewDate)
		if err != nil {
			return malformed(op, err)
		}
		rows, err = r.repo.TouchAllocation(ctx, r.tx, parentID, renewed)
		return r.applied(op, parentID, rows, err)
	}
	return malformed(op, operationdomain.ErrUnknownOp)
}

func (r *replay) delete(ctx context.Context, op operationdomain.UpdateOperation) error {
	rowID, err := op.Query.ID(operationdomain.FieldID)
	if err != nil {
		return malformed(op, err)
	}
	switch op.Target {
	case operationdomain.TargetSubscription:
		return r.repo.Delete(ctx, r.tx, rowID)
	case operationdomain.TargetAllocation:
		return r.repo.DeleteAllocation(ctx, r.tx, rowID)
	case operationdomain.TargetSuballocation:
		return r.repo.DeleteSuballocation(ctx, r.tx, rowID)
	}
	return malformed(op, operationdomain.ErrUnknownOp)
}

func (r *replay) expected(query operationdomain.Fields, rowID snowflake.ID) (int64, error) {
	if !query.Has(operationdomain.FieldVersion) {
		return 0, nil
	}
	observed, err := query.Int(operationdomain.FieldVersion)
	if err != nil {
		return 0, err
	}
	return observed + r.bumps[rowID], nil
}

func (r *replay) applied(op operationdomain.UpdateOperation, rowID snowflake.ID, rows int64, err error) error {
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.Wrap(operationdomain.ErrVersionConflict, apperr.ErrConflict, op.Description+": row changed or missing")
	}
	r.bumps[rowID]++
	return nil
}

func (r *replay) lent(allocationID snowflake.ID) {
	if _, ok := r.seen[allocationID]; ok {
		return
	}
	r.seen[allocationID] = struct{}{}
	r.lenders = append(r.lenders, allocationID)
}

// checkCapacity verifies that no touched allocation lends more than it
// holds.
func (r *replay) checkCapacity(ctx context.Context) error {
	for _, allocationID := range r.lenders {
		quantity, lent, err := r.repo.AllocationUsage(ctx, r.tx, allocationID)
		if err != nil {
			return err
		}
		if lent > quantity {
			return apperr.Wrap(
				operationdomain.ErrOverAllocated,
				apperr.ErrConflict,
				"allocation "+allocationID.String()+" lends more than it holds",
			)
		}
	}
	return nil
}

func malformed(op operationdomain.UpdateOperation, err error) error {
	return apperr.Wrap(err, apperr.ErrUndefinedState, "malformed operation: "+op.Description)
}

func idField(set map[string]any, name string) snowflake.ID {
	v, _ := set[name].(snowflake.ID)
	return v
}

func stringField(set map[string]any, name string) string {
	v, _ := set[name].(string)
	return v
}

func intField(set map[string]any, name string) int64 {
	v, _ := set[name].(int64)
	return v
}

func dateField(set map[string]any, name string) time.Time {
	v, _ := set[name].(time.Time)
	return v
}
