package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/allotment/internal/clock"
	operationdomain "github.com/smallbiznis/allotment/internal/operation/domain"
	operationrepo "github.com/smallbiznis/allotment/internal/operation/repository"
	operationservice "github.com/smallbiznis/allotment/internal/operation/service"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/allotment/internal/subscription/repository"
	"github.com/smallbiznis/allotment/internal/testutil"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

var device = operationdomain.Item{
	BillingInterval: 1,
	ItemType:        subscriptiondomain.ItemTypeDevice,
	ItemReference:   "d1",
}

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	repo subscriptiondomain.Repository
	svc  operationdomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.Node(t)
	repo := subscriptionrepo.Provide()
	svc := operationservice.New(operationservice.Params{
		DB:               db,
		Log:              zap.NewNop(),
		GenID:            node,
		Clock:            clock.NewFakeClock(now),
		Repo:             operationrepo.Provide(),
		SubscriptionRepo: repo,
	})
	return &fixture{db: db, node: node, repo: repo, svc: svc}
}

func (f *fixture) seed(t *testing.T, service string, allocations ...subscriptiondomain.Allocation) *subscriptiondomain.Subscription {
	t.Helper()
	ctx := context.Background()
	sub := subscriptiondomain.Subscription{
		ID:              f.node.Generate(),
		Service:         service,
		Entity:          subscriptiondomain.EntityOrganization,
		EntityReference: "org-1",
		Status:          subscriptiondomain.SubscriptionStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, f.repo.Insert(ctx, f.db, &sub))
	for _, allocation := range allocations {
		allocation.ID = f.node.Generate()
		allocation.SubscriptionID = sub.ID
		allocation.LastRenewDate = now.AddDate(0, -1, 0)
		subs := allocation.Suballocations
		require.NoError(t, f.repo.InsertAllocation(ctx, f.db, &allocation))
		for _, suballocation := range subs {
			suballocation.ID = f.node.Generate()
			suballocation.AllocationID = allocation.ID
			require.NoError(t, f.repo.InsertSuballocation(ctx, f.db, &suballocation))
		}
	}
	return f.load(t, sub.ID)
}

func (f *fixture) load(t *testing.T, id snowflake.ID) *subscriptiondomain.Subscription {
	t.Helper()
	sub, err := f.repo.FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}

func (f *fixture) store(t *testing.T, ops []operationdomain.UpdateOperation) snowflake.ID {
	t.Helper()
	record, err := f.svc.Create(context.Background(), ops)
	require.NoError(t, err)
	return record.ID
}

func devices(quantity int64, subs ...subscriptiondomain.Suballocation) subscriptiondomain.Allocation {
	return subscriptiondomain.Allocation{
		BillingInterval: device.BillingInterval,
		ItemType:        device.ItemType,
		ItemReference:   device.ItemReference,
		Quantity:        quantity,
		Suballocations:  subs,
	}
}

func borrow(service string, target, origin *subscriptiondomain.Subscription, quantity int64) operationdomain.DeriveInput {
	return operationdomain.DeriveInput{
		Service:         service,
		Entity:          subscriptiondomain.EntityOrganization,
		EntityReference: "org-1",
		Subscription:    target,
		Items: []operationdomain.DeriveItem{{
			Item:               device,
			PriceService:       origin.Service,
			CalculatedQuantity: quantity,
			Origin:             origin,
		}},
	}
}

func TestReplayBorrowShortfall(t *testing.T) {
	f := newFixture(t)
	origin := f.seed(t, "DEVICE_MANAGER", devices(10, subscriptiondomain.Suballocation{Service: "OTHER", Quantity: 7}))
	hr := f.seed(t, "HR")

	ops := operationdomain.Derive(borrow("HR", hr, origin, 5), f.node, now)
	require.NoError(t, f.svc.Replay(context.Background(), f.store(t, ops)))

	origin = f.load(t, origin.ID)
	allocation := origin.AllocationFor(device.Key())
	require.NotNil(t, allocation)
	assert.Equal(t, int64(12), allocation.Quantity)
	require.NotNil(t, allocation.SuballocationFor("HR"))
	assert.Equal(t, int64(5), allocation.SuballocationFor("HR").Quantity)
	assert.Equal(t, int64(0), allocation.Available())

	hr = f.load(t, hr.ID)
	placeholder := hr.AllocationFor(device.Key())
	require.NotNil(t, placeholder)
	assert.True(t, placeholder.IsPlaceholder())
	assert.Equal(t, "DEVICE_MANAGER", placeholder.Service)
}

func TestReplayExistingSuballocationStampsParent(t *testing.T) {
	f := newFixture(t)
	origin := f.seed(t, "DEVICE_MANAGER", devices(10, subscriptiondomain.Suballocation{Service: "HR", Quantity: 8}))
	hr := f.seed(t, "HR", subscriptiondomain.Allocation{
		BillingInterval: device.BillingInterval,
		ItemType:        device.ItemType,
		ItemReference:   device.ItemReference,
		Service:         "DEVICE_MANAGER",
	})

	ops := operationdomain.Derive(borrow("HR", hr, origin, 4), f.node, now)
	require.NoError(t, f.svc.Replay(context.Background(), f.store(t, ops)))

	allocation := f.load(t, origin.ID).AllocationFor(device.Key())
	require.NotNil(t, allocation)
	assert.Equal(t, int64(12), allocation.Quantity)
	assert.Equal(t, int64(12), allocation.SuballocationFor("HR").Quantity)
	assert.True(t, allocation.LastRenewDate.Equal(now))
	// one bump for the quantity, one for the stamp
	assert.Equal(t, int64(3), allocation.Version)
}

func TestReplayVersionConflictRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dm := f.seed(t, "DEVICE_MANAGER", devices(5))

	ops := operationdomain.Derive(operationdomain.DeriveInput{
		Service:         "DEVICE_MANAGER",
		Entity:          subscriptiondomain.EntityOrganization,
		EntityReference: "org-1",
		Subscription:    dm,
		Items: []operationdomain.DeriveItem{
			{Item: device, PriceService: "DEVICE_MANAGER", CalculatedQuantity: 3},
			{
				Item:               operationdomain.Item{BillingInterval: 1, ItemType: subscriptiondomain.ItemTypeRobot, ItemReference: "r1"},
				PriceService:       "DEVICE_MANAGER",
				CalculatedQuantity: 1,
			},
		},
	}, f.node, now)
	id := f.store(t, ops)

	// a concurrent write lands between derive and replay
	allocation := dm.AllocationFor(device.Key())
	_, err := f.repo.TouchAllocation(ctx, f.db, allocation.ID, now)
	require.NoError(t, err)

	err = f.svc.Replay(ctx, id)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrConflict))
	assert.True(t, apperr.Is(err, operationdomain.ErrVersionConflict))

	dm = f.load(t, dm.ID)
	assert.Equal(t, int64(5), dm.AllocationFor(device.Key()).Quantity)
	assert.Len(t, dm.Allocations, 1)
}

func TestReplayRejectsOverAllocatedBatch(t *testing.T) {
	f := newFixture(t)
	origin := f.seed(t, "DEVICE_MANAGER", devices(10))
	hr := f.seed(t, "HR")
	ops := f.seed(t, "OPS")

	// each borrow fits the observed slack on its own
	merged := operationdomain.Derive(borrow("HR", hr, origin, 6), f.node, now)
	merged = append(merged, operationdomain.Derive(borrow("OPS", ops, origin, 6), f.node, now)...)

	err := f.svc.Replay(context.Background(), f.store(t, merged))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrConflict))
	assert.True(t, apperr.Is(err, operationdomain.ErrOverAllocated))

	allocation := f.load(t, origin.ID).AllocationFor(device.Key())
	assert.Empty(t, allocation.Suballocations)
	assert.Empty(t, f.load(t, hr.ID).Allocations)
}

func TestReplayRenewalReactivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dm := f.seed(t, "DEVICE_MANAGER", devices(5))
	_, err := f.repo.UpdateStatus(ctx, f.db, dm.ID, subscriptiondomain.SubscriptionStatusSuspended, now)
	require.NoError(t, err)

	renewedAt := now.Add(time.Hour)
	ops := operationdomain.RenewSubscription(dm.ID, []snowflake.ID{dm.Allocations[0].ID}, renewedAt)
	require.NoError(t, f.svc.Replay(ctx, f.store(t, ops)))

	dm = f.load(t, dm.ID)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, dm.Status)
	assert.True(t, dm.Allocations[0].LastRenewDate.Equal(renewedAt))
	assert.Equal(t, int64(5), dm.Allocations[0].Quantity)
}

func TestReplayDelete(t *testing.T) {
	f := newFixture(t)
	dm := f.seed(t, "DEVICE_MANAGER", devices(5))

	ops := []operationdomain.UpdateOperation{
		operationdomain.Delete(operationdomain.TargetAllocation, dm.Allocations[0].ID),
	}
	require.NoError(t, f.svc.Replay(context.Background(), f.store(t, ops)))
	assert.Empty(t, f.load(t, dm.ID).Allocations)
}

func TestReplayUnknownRecord(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Replay(context.Background(), f.node.Generate())
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
}

func TestCreateRejectsEmptyOperations(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), nil)
	assert.True(t, apperr.Is(err, operationdomain.ErrEmptyOperations))
}

func TestGetReadsStoredOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subscriptionID := f.node.Generate()

	id := f.store(t, []operationdomain.UpdateOperation{
		operationdomain.SetStatus(subscriptionID, subscriptiondomain.SubscriptionStatusSuspended, now),
	})

	record, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, record.Operations, 1)
	op := record.Operations[0]
	assert.Equal(t, operationdomain.TargetSubscription, op.Target)
	gotID, err := op.Query.ID(operationdomain.FieldID)
	require.NoError(t, err)
	assert.Equal(t, subscriptionID, gotID)
	status, err := op.Set.String(operationdomain.FieldStatus)
	require.NoError(t, err)
	assert.Equal(t, string(subscriptiondomain.SubscriptionStatusSuspended), status)

	_, err = f.svc.Get(ctx, f.node.Generate())
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
}

func TestCheckRejectsOverAllocatedBatchWithoutWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	origin := f.seed(t, "DEVICE_MANAGER", devices(10))
	hr := f.seed(t, "HR")
	ops := f.seed(t, "OPS")

	merged := operationdomain.Derive(borrow("HR", hr, origin, 6), f.node, now)
	merged = append(merged, operationdomain.Derive(borrow("OPS", ops, origin, 6), f.node, now)...)

	err := f.svc.Check(ctx, merged)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, operationdomain.ErrOverAllocated))

	allocation := f.load(t, origin.ID).AllocationFor(device.Key())
	assert.Empty(t, allocation.Suballocations)
	assert.Empty(t, f.load(t, hr.ID).Allocations)
}

func TestCheckLeavesValidOperationsUnapplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	origin := f.seed(t, "DEVICE_MANAGER", devices(10, subscriptiondomain.Suballocation{Service: "OTHER", Quantity: 7}))
	hr := f.seed(t, "HR")

	ops := operationdomain.Derive(borrow("HR", hr, origin, 5), f.node, now)
	require.NoError(t, f.svc.Check(ctx, ops))

	allocation := f.load(t, origin.ID).AllocationFor(device.Key())
	assert.Equal(t, int64(10), allocation.Quantity)
	assert.Equal(t, int64(7), allocation.Suballocated())
	assert.Empty(t, f.load(t, hr.ID).Allocations)

	// the rows are untouched, so the same operations still replay
	require.NoError(t, f.svc.Replay(ctx, f.store(t, ops)))
	assert.Equal(t, int64(12), f.load(t, origin.ID).AllocationFor(device.Key()).Quantity)

	err := f.svc.Check(ctx, nil)
	assert.True(t, apperr.Is(err, operationdomain.ErrEmptyOperations))
}
