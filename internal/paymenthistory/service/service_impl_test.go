package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/allotment/internal/identity"
	"github.com/smallbiznis/allotment/internal/paymenthistory/domain"
	paymenthistoryservice "github.com/smallbiznis/allotment/internal/paymenthistory/service"
	"github.com/smallbiznis/allotment/internal/processing"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"github.com/smallbiznis/allotment/internal/testutil"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func formed(t *testing.T, s *testutil.Stack, service string, changed int64, total string) *processing.Formed {
	t.Helper()
	ctx := context.Background()
	sub, err := s.Subscriptions.GetSubscription(ctx, subscriptiondomain.EntityOrganization, "org-1", service)
	require.NoError(t, err)
	initial, err := s.Loader.Load(ctx, processing.Subject{
		Service:         service,
		Entity:          subscriptiondomain.EntityOrganization,
		EntityReference: "org-1",
		Subscription:    sub,
		Now:             now,
	})
	require.NoError(t, err)
	resolved, err := initial.ResolvePrices()
	require.NoError(t, err)
	calculated, err := resolved.CalculateUpdate(ctx, processing.Update{
		Allocations: []processing.AllocationChange{{
			BillingInterval: 1,
			ItemType:        subscriptiondomain.ItemTypeDevice,
			ItemReference:   "d-" + service,
			ChangedQuantity: changed,
		}},
		OneTimeTotalPrice: decimal.RequireFromString(total),
	}, decimal.NewFromInt(1))
	require.NoError(t, err)
	return calculated.DeriveOperations()
}

func TestMakeMergesContexts(t *testing.T) {
	s := testutil.NewStack(t, now)
	dm := s.SeedPrice(t, "DEVICE_MANAGER", testutil.PriceItem(subscriptiondomain.ItemTypeDevice, "d-DEVICE_MANAGER",
		testutil.Tiered([]float64{0}, [][]float64{{2.5}})))
	hr := s.SeedPrice(t, "HR", testutil.PriceItem(subscriptiondomain.ItemTypeDevice, "d-HR",
		testutil.Tiered([]float64{0}, [][]float64{{4}})))

	contexts := []*processing.Formed{
		formed(t, s, "DEVICE_MANAGER", 2, "5"),
		formed(t, s, "HR", 3, "12"),
	}
	opsID := s.Node.Generate()

	entry, err := paymenthistoryservice.Make(contexts, opsID, identity.Actor{Kind: identity.ActorUser, UserID: "u-1"}, "EUR")
	require.NoError(t, err)

	assert.Equal(t, subscriptiondomain.EntityOrganization, entry.Entity)
	assert.Equal(t, "org-1", entry.EntityReference)
	assert.Equal(t, opsID, entry.OperationsID)
	assert.Equal(t, domain.CreatedByUser, entry.CreatedByKind)
	assert.Equal(t, "u-1", entry.CreatedByUserID)
	assert.Equal(t, "USD", entry.Currency)
	assert.ElementsMatch(t, []any{dm.ID, hr.ID}, []any{entry.PriceIDs[0], entry.PriceIDs[1]})
	assert.True(t, entry.TotalBillAmount.Equal(decimal.NewFromInt(17)))

	require.Len(t, entry.Charges, 2)
	first := entry.Charges[0]
	assert.Equal(t, "DEVICE_MANAGER", first.Service)
	assert.Equal(t, int64(2), first.Quantity)
	assert.True(t, first.ItemPrice.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, first.FinalPrice.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, []string{"Mar, 15 2026", "Apr, 01 2026"}, first.Period)
	assert.Empty(t, first.SuballocationID)
}

func TestMakeByWorker(t *testing.T) {
	s := testutil.NewStack(t, now)
	s.SeedPrice(t, "HR", testutil.PriceItem(subscriptiondomain.ItemTypeDevice, "d-HR",
		testutil.Tiered([]float64{0}, [][]float64{{4}})))

	entry, err := paymenthistoryservice.Make([]*processing.Formed{formed(t, s, "HR", 1, "4")}, s.Node.Generate(), identity.Worker(), "EUR")
	require.NoError(t, err)
	assert.Equal(t, domain.CreatedByWorker, entry.CreatedByKind)
	assert.Empty(t, entry.CreatedByUserID)
}

func TestMakeWithoutContexts(t *testing.T) {
	_, err := paymenthistoryservice.Make(nil, 1, identity.Worker(), "USD")
	assert.True(t, apperr.Is(err, domain.ErrEmptyCharges))
}

func entry(s *testutil.Stack, reference string) *domain.PaymentHistory {
	return &domain.PaymentHistory{
		Entity:          subscriptiondomain.EntityOrganization,
		EntityReference: reference,
		OperationsID:    s.Node.Generate(),
		Charges: []domain.Charge{{
			ItemType:        subscriptiondomain.ItemTypeDevice,
			ItemReference:   "d1",
			ItemPrice:       decimal.NewFromInt(3),
			FinalPrice:      decimal.NewFromInt(9),
			Quantity:        3,
			Service:         "HR",
			BillingInterval: 1,
			Period:          []string{"Mar, 15 2026", "Apr, 01 2026"},
		}},
		TotalBillAmount: decimal.RequireFromString("9.12345678"),
		Currency:        "USD",
		CreatedByKind:   domain.CreatedByUser,
		CreatedByUserID: "u-1",
	}
}

func TestCreateAndLink(t *testing.T) {
	s := testutil.NewStack(t, now)
	ctx := context.Background()

	created := entry(s, "org-1")
	require.NoError(t, s.PaymentHistory.Create(ctx, created))
	require.NotZero(t, created.ID)

	require.NoError(t, s.PaymentHistory.LinkTransaction(ctx, created.ID, "tx-1", "SUCCESS"))
	require.NoError(t, s.PaymentHistory.LinkInvoice(ctx, created.ID, domain.Invoice{ID: "inv-1", Number: "N1", SignedURL: "https://example.test/inv-1.pdf"}))

	stored, err := s.PaymentHistory.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TransactionID)
	assert.Equal(t, "tx-1", *stored.TransactionID)
	assert.Equal(t, "SUCCESS", stored.TransactionStatus)
	require.NotNil(t, stored.Invoice)
	assert.Equal(t, "inv-1", stored.Invoice.Data().ID)
	assert.True(t, stored.TotalBillAmount.Equal(decimal.RequireFromString("9.12345678")))
	require.Len(t, stored.Charges, 1)
	assert.Equal(t, int64(3), stored.Charges[0].Quantity)
}

func TestCreateRejectsEmptyCharges(t *testing.T) {
	s := testutil.NewStack(t, now)
	empty := entry(s, "org-1")
	empty.Charges = nil
	err := s.PaymentHistory.Create(context.Background(), empty)
	assert.True(t, apperr.Is(err, domain.ErrEmptyCharges))
}

func TestLinkUnknownEntry(t *testing.T) {
	s := testutil.NewStack(t, now)
	err := s.PaymentHistory.LinkTransaction(context.Background(), s.Node.Generate(), "tx", "ERROR")
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
}

func TestListPaginatesNewestFirst(t *testing.T) {
	s := testutil.NewStack(t, now)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		e := entry(s, "org-1")
		require.NoError(t, s.PaymentHistory.Create(ctx, e))
		ids = append(ids, e.ID.String())
		s.Clock.Advance(time.Minute)
	}
	require.NoError(t, s.PaymentHistory.Create(ctx, entry(s, "org-2")))

	page, err := s.PaymentHistory.List(ctx, domain.ListRequest{
		Entity:          subscriptiondomain.EntityOrganization,
		EntityReference: "org-1",
		PageSize:        2,
	})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.True(t, page.PageInfo.HasMore)
	assert.Equal(t, ids[2], page.Entries[0].ID.String())
	assert.Equal(t, ids[1], page.Entries[1].ID.String())

	next, err := s.PaymentHistory.List(ctx, domain.ListRequest{
		Entity:          subscriptiondomain.EntityOrganization,
		EntityReference: "org-1",
		PageSize:        2,
		PageToken:       page.PageInfo.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, next.Entries, 1)
	assert.False(t, next.PageInfo.HasMore)
	assert.Equal(t, ids[0], next.Entries[0].ID.String())
}

func TestListRejectsBadToken(t *testing.T) {
	s := testutil.NewStack(t, now)
	_, err := s.PaymentHistory.List(context.Background(), domain.ListRequest{
		Entity:          subscriptiondomain.EntityOrganization,
		EntityReference: "org-1",
		PageToken:       "not-base64!",
	})
	assert.True(t, apperr.Is(err, apperr.ErrBadInput))
}
