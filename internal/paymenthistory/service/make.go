package service

import (
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/allotment/internal/identity"
	"github.com/smallbiznis/allotment/internal/paymenthistory/domain"
	"github.com/smallbiznis/allotment/internal/pricing"
	"github.com/smallbiznis/allotment/internal/processing"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"gorm.io/datatypes"
)

// Make builds the entry for formed contexts that are charged together. The
// contexts share one owner; currency falls back to defaultCurrency when no
// price names one.
func Make(formed []*processing.Formed, operationsID snowflake.ID, actor identity.Actor, defaultCurrency string) (*domain.PaymentHistory, error) {
	if len(formed) == 0 {
		return nil, apperr.Mark(domain.ErrEmptyCharges, apperr.ErrUndefinedState)
	}

	entry := &domain.PaymentHistory{
		Entity:          formed[0].Entity,
		EntityReference: formed[0].EntityReference,
		OperationsID:    operationsID,
		CreatedByKind:   domain.CreatedByUser,
		CreatedByUserID: actor.UserID,
	}
	if actor.IsWorker() {
		entry.CreatedByKind = domain.CreatedByWorker
		entry.CreatedByUserID = ""
	}

	var (
		priceIDs []snowflake.ID
		charges  []domain.Charge
		total    = decimal.Zero
	)
	for _, f := range formed {
		prices := f.ResolvedPrices()
		for _, key := range sortedKeys(prices) {
			price := prices[key]
			priceIDs = append(priceIDs, price.PriceID)
			if entry.Currency == "" {
				entry.Currency = price.Currency
			}
		}

		values := f.Values()
		for _, value := range values.Ordered() {
			charge := domain.Charge{
				ItemType:        value.Item.ItemType,
				ItemReference:   value.Item.ItemReference,
				ItemPrice:       value.CalculatedOne,
				FinalPrice:      pricing.Round(value.CalculatedTotal),
				Quantity:        value.CalculatedQuantity,
				Name:            prices[value.Key()].Description,
				Service:         f.Service,
				BillingInterval: value.Item.BillingInterval,
				Period:          value.Period.Strings(),
			}
			if value.SuballocationID != 0 {
				charge.SuballocationID = value.SuballocationID.String()
			}
			charges = append(charges, charge)
		}
		total = total.Add(values.Total)
	}
	if len(charges) == 0 {
		return nil, apperr.Mark(domain.ErrEmptyCharges, apperr.ErrUndefinedState)
	}
	if entry.Currency == "" {
		entry.Currency = defaultCurrency
	}

	entry.PriceIDs = datatypes.NewJSONSlice(lo.Uniq(priceIDs))
	entry.Charges = datatypes.NewJSONSlice(charges)
	entry.TotalBillAmount = pricing.Round(total)
	return entry, nil
}

func sortedKeys(prices map[subscriptiondomain.ItemKey]pricing.ResolvedPrice) []subscriptiondomain.ItemKey {
	keys := lo.Keys(prices)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
