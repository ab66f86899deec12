package service_test

import (
	"context"
	"testing"
	"time"

	pricedomain "github.com/smallbiznis/allotment/internal/price/domain"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"github.com/smallbiznis/allotment/internal/testutil"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func createRequest(service string, start time.Time, items ...pricedomain.CreateItemRequest) pricedomain.CreateRequest {
	return pricedomain.CreateRequest{Service: service, StartDate: start, Items: items}
}

func userItem(flat float64, usableBy ...string) pricedomain.CreateItemRequest {
	return pricedomain.CreateItemRequest{
		BillingInterval: 1,
		ItemType:        subscriptiondomain.ItemTypeUser,
		ItemReference:   "u1",
		Currency:        "usd",
		UsableBy:        usableBy,
		ItemPrice:       testutil.Tiered([]float64{0}, [][]float64{{flat}}),
	}
}

func TestCreateNormalizesPrice(t *testing.T) {
	s := testutil.NewStack(t, now)

	price, err := s.Prices.Create(context.Background(), createRequest(" HR ", now.Add(24*time.Hour), userItem(5, "PAYROLL", "PAYROLL", "")))
	require.NoError(t, err)

	assert.Equal(t, "HR", price.Service)
	require.Len(t, price.Items, 1)
	assert.Equal(t, "USD", price.Items[0].Currency)
	assert.Equal(t, []string{"PAYROLL"}, []string(price.Items[0].UsableBy))
	assert.Equal(t, price.ID, price.Items[0].PriceID)

	stored, err := s.Prices.Get(context.Background(), price.ID.String())
	require.NoError(t, err)
	assert.Equal(t, price.Service, stored.Service)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, pricedomain.StrategyQuantity, stored.Items[0].ItemPrice.Data().Type)
}

func TestCreateRejectsInvalidRequests(t *testing.T) {
	s := testutil.NewStack(t, now)
	future := now.Add(time.Hour)

	badType := userItem(5)
	badType.ItemType = "SPACESHIP"
	badPrice := userItem(5)
	badPrice.ItemPrice = pricedomain.ItemPrice{Type: "FLAT"}

	cases := []struct {
		name string
		req  pricedomain.CreateRequest
		kind error
	}{
		{"past start date", createRequest("HR", now.Add(-time.Hour), userItem(5)), apperr.ErrBadInput},
		{"missing service", createRequest(" ", future, userItem(5)), apperr.ErrBadInput},
		{"no items", createRequest("HR", future), apperr.ErrBadInput},
		{"unknown item type", createRequest("HR", future, badType), apperr.ErrBadInput},
		{"duplicate item", createRequest("HR", future, userItem(5), userItem(6)), apperr.ErrBadInput},
		{"unknown strategy", createRequest("HR", future, badPrice), apperr.ErrPldInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Prices.Create(context.Background(), tc.req)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, tc.kind), "got %v", err)
		})
	}
}

func TestGetApplicablePricesPicksNewestDocument(t *testing.T) {
	s := testutil.NewStack(t, now)
	ctx := context.Background()

	s.SeedPrice(t, "HR", testutil.PriceItem(subscriptiondomain.ItemTypeUser, "u1", testutil.Tiered([]float64{0}, [][]float64{{5}})))
	next, err := s.Prices.Create(ctx, createRequest("HR", now.Add(24*time.Hour), userItem(7)))
	require.NoError(t, err)

	prices, err := s.Prices.GetApplicablePrices(ctx, []string{"HR"}, s.Clock.Now())
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.NotEqual(t, next.ID, prices[0].ID)

	s.Clock.Advance(48 * time.Hour)
	prices, err = s.Prices.GetApplicablePrices(ctx, []string{"HR"}, s.Clock.Now())
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, next.ID, prices[0].ID)
}

func TestGetApplicablePricesIncludesSharedItems(t *testing.T) {
	s := testutil.NewStack(t, now)
	tiers := testutil.Tiered([]float64{0}, [][]float64{{2}})

	s.SeedPrice(t, "HR", testutil.PriceItem(subscriptiondomain.ItemTypeUser, "u1", tiers))
	shared := s.SeedPrice(t, "DEVICE_MANAGER", testutil.PriceItem(subscriptiondomain.ItemTypeDevice, "d1", tiers, "HR"))
	s.SeedPrice(t, "PAYROLL", testutil.PriceItem(subscriptiondomain.ItemTypeDevice, "d1", tiers, "HRX"))

	prices, err := s.Prices.GetApplicablePrices(context.Background(), []string{"HR"}, now)
	require.NoError(t, err)

	services := make([]string, 0, len(prices))
	for _, price := range prices {
		services = append(services, price.Service)
	}
	assert.ElementsMatch(t, []string{"HR", "DEVICE_MANAGER"}, services)
	for _, price := range prices {
		if price.Service == "DEVICE_MANAGER" {
			assert.Equal(t, shared.ID, price.ID)
			assert.True(t, price.Items[0].IsUsableBy("HR"))
		}
	}
}

func TestUpdateOnlyFuturePrices(t *testing.T) {
	s := testutil.NewStack(t, now)
	ctx := context.Background()

	active := s.SeedPrice(t, "HR", testutil.PriceItem(subscriptiondomain.ItemTypeUser, "u1", testutil.Tiered([]float64{0}, [][]float64{{5}})))
	_, err := s.Prices.Update(ctx, active.ID.String(), createRequest("HR", now.Add(time.Hour), userItem(6)))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrConflict))

	future, err := s.Prices.Create(ctx, createRequest("HR", now.Add(time.Hour), userItem(6)))
	require.NoError(t, err)

	_, err = s.Prices.Update(ctx, future.ID.String(), createRequest("PAYROLL", now.Add(time.Hour), userItem(6)))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrBadInput))

	updated, err := s.Prices.Update(ctx, future.ID.String(), createRequest("", now.Add(2*time.Hour), userItem(9)))
	require.NoError(t, err)
	assert.Equal(t, future.Version+1, updated.Version)

	stored, err := s.Prices.Get(ctx, future.ID.String())
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, [][]float64{{9}}, stored.Items[0].ItemPrice.Data().Prices)
}

func TestDeleteKeepsLastEffectivePrice(t *testing.T) {
	s := testutil.NewStack(t, now)
	ctx := context.Background()

	active := s.SeedPrice(t, "HR", testutil.PriceItem(subscriptiondomain.ItemTypeUser, "u1", testutil.Tiered([]float64{0}, [][]float64{{5}})))
	err := s.Prices.Delete(ctx, active.ID.String())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrConflict))

	future, err := s.Prices.Create(ctx, createRequest("HR", now.Add(time.Hour), userItem(6)))
	require.NoError(t, err)
	require.NoError(t, s.Prices.Delete(ctx, future.ID.String()))

	_, err = s.Prices.Get(ctx, future.ID.String())
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))

	_, err = s.Prices.Get(ctx, "not-an-id")
	assert.True(t, apperr.Is(err, apperr.ErrBadInput))
}
