package pricing

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	pricedomain "github.com/smallbiznis/allotment/internal/price/domain"
	pricemodifierdomain "github.com/smallbiznis/allotment/internal/pricemodifier/domain"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func flat(p float64) datatypes.JSONType[pricedomain.ItemPrice] {
	return datatypes.NewJSONType(pricedomain.ItemPrice{
		Type:        pricedomain.StrategyQuantity,
		Ranges:      []float64{0},
		Prices:      [][]float64{{p}},
		Inclusivity: pricedomain.InclusivityLowerClosed,
	})
}

func priceItem(ref string, p float64, usableBy ...string) pricedomain.PriceItem {
	return pricedomain.PriceItem{
		BillingInterval: 1,
		ItemType:        subscriptiondomain.ItemTypeUser,
		ItemReference:   ref,
		Currency:        "USD",
		UsableBy:        datatypes.NewJSONSlice(usableBy),
		ItemPrice:       flat(p),
	}
}

func TestPreparePricesIncludesSharedItems(t *testing.T) {
	prices := []pricedomain.Price{
		{ID: 1, Service: "FLEET", Items: []pricedomain.PriceItem{priceItem("seat", 5)}},
		{ID: 2, Service: "CORE", Items: []pricedomain.PriceItem{
			priceItem("user", 3, "FLEET"),
			priceItem("admin", 9),
		}},
	}

	out, err := PreparePrices(prices, "FLEET")
	require.NoError(t, err)
	require.Len(t, out, 2)

	shared := out[subscriptiondomain.NewItemKey(1, "user", subscriptiondomain.ItemTypeUser)]
	assert.Equal(t, "CORE", shared.Service)
	assert.Equal(t, snowflake.ID(2), shared.PriceID)
	_, hasAdmin := out[subscriptiondomain.NewItemKey(1, "admin", subscriptiondomain.ItemTypeUser)]
	assert.False(t, hasAdmin)
}

func TestPreparePricesDuplicateKeyIsUndefinedState(t *testing.T) {
	prices := []pricedomain.Price{
		{ID: 1, Service: "FLEET", Items: []pricedomain.PriceItem{priceItem("seat", 5)}},
		{ID: 2, Service: "CORE", Items: []pricedomain.PriceItem{priceItem("seat", 3, "FLEET")}},
	}
	_, err := PreparePrices(prices, "FLEET")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrUndefinedState))
}

func TestPrepareModifiersSpecificBeatsGeneral(t *testing.T) {
	key := subscriptiondomain.NewItemKey(1, "seat", subscriptiondomain.ItemTypeUser)
	item := func(p float64, desc string) pricemodifierdomain.ModifierItem {
		return pricemodifierdomain.ModifierItem{
			BillingInterval: 1,
			ItemType:        subscriptiondomain.ItemTypeUser,
			ItemReference:   "seat",
			Description:     desc,
			ItemPrice:       flat(p),
		}
	}
	now := time.Now()
	modifiers := []pricemodifierdomain.Modifier{
		{ID: 10, Service: "FLEET", StartDate: now, Items: []pricemodifierdomain.ModifierItem{item(1, "general first")}},
		{ID: 11, Service: "FLEET", StartDate: now, Items: []pricemodifierdomain.ModifierItem{item(2, "general second")}},
		{ID: 12, Service: "FLEET", Entity: subscriptiondomain.EntityOrganization, EntityReference: "acme", StartDate: now,
			Items: []pricemodifierdomain.ModifierItem{item(4, "acme promo")}},
	}

	prepared := PrepareModifiers(modifiers)
	require.Contains(t, prepared, key)
	assert.Equal(t, snowflake.ID(12), prepared[key].ModifierID)

	general := PrepareModifiers(modifiers[:2])
	assert.Equal(t, "general first", general[key].Item.Description)
}

func TestApplyModifiersAndResolveStrategies(t *testing.T) {
	prices, err := PreparePrices([]pricedomain.Price{
		{ID: 1, Service: "FLEET", Items: []pricedomain.PriceItem{priceItem("seat", 5), priceItem("robot", 7)}},
	}, "FLEET")
	require.NoError(t, err)

	seat := subscriptiondomain.NewItemKey(1, "seat", subscriptiondomain.ItemTypeUser)
	modifiers := map[subscriptiondomain.ItemKey]PreparedModifier{
		seat: {ModifierID: 99, Item: pricemodifierdomain.ModifierItem{Description: "half price", ItemPrice: flat(2.5)}},
	}

	resolved, err := ResolveStrategies(ApplyModifiers(prices, modifiers))
	require.NoError(t, err)

	unit, err := resolved[seat].Strategy.GetPrice(3)
	require.NoError(t, err)
	assert.Equal(t, "2.5", unit.String())
	assert.Equal(t, "half price", resolved[seat].Description)
	require.NotNil(t, resolved[seat].ModifierID)

	robot := subscriptiondomain.NewItemKey(1, "robot", subscriptiondomain.ItemTypeUser)
	assert.Nil(t, resolved[robot].ModifierID)
}

func TestResolveStrategiesRejectsMalformedPrice(t *testing.T) {
	key := subscriptiondomain.NewItemKey(1, "seat", subscriptiondomain.ItemTypeUser)
	_, err := ResolveStrategies(map[subscriptiondomain.ItemKey]ResolvedPrice{
		key: {ItemPrice: pricedomain.ItemPrice{Ranges: []float64{0, 1}, Prices: [][]float64{{1}}}},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrPldInvalid))
}
