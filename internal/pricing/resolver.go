package pricing

import (
	"github.com/bwmarrin/snowflake"
	pricedomain "github.com/smallbiznis/allotment/internal/price/domain"
	pricemodifierdomain "github.com/smallbiznis/allotment/internal/pricemodifier/domain"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"github.com/smallbiznis/allotment/pkg/apperr"
)

// ResolvedPrice is the price in effect for one item key, after modifiers.
// Service is the service that owns the price document, which differs from
// the billing service when the item is borrowed through usableBy.
type ResolvedPrice struct {
	PriceID         snowflake.ID
	Service         string
	Currency        string
	BillingInterval int
	ItemType        subscriptiondomain.ItemType
	ItemReference   string
	UsableBy        []string
	Description     string
	ItemPrice       pricedomain.ItemPrice
	ModifierID      *snowflake.ID
	Strategy        Strategy
}

// Key returns the item key of the price.
func (p ResolvedPrice) Key() subscriptiondomain.ItemKey {
	return subscriptiondomain.NewItemKey(p.BillingInterval, p.ItemReference, p.ItemType)
}

// PreparePrices indexes every item service may bill: items of its own
// documents and items other services share with it.
func PreparePrices(prices []pricedomain.Price, service string) (map[subscriptiondomain.ItemKey]ResolvedPrice, error) {
	out := make(map[subscriptiondomain.ItemKey]ResolvedPrice)
	for _, price := range prices {
		for _, item := range price.Items {
			if price.Service != service && !item.IsUsableBy(service) {
				continue
			}
			key := item.Key()
			if _, exists := out[key]; exists {
				return nil, apperr.UndefinedState("duplicate price entry for %s", key)
			}
			out[key] = ResolvedPrice{
				PriceID:         price.ID,
				Service:         price.Service,
				Currency:        item.Currency,
				BillingInterval: item.BillingInterval,
				ItemType:        item.ItemType,
				ItemReference:   item.ItemReference,
				UsableBy:        append([]string(nil), item.UsableBy...),
				Description:     item.Description,
				ItemPrice:       item.ItemPrice.Data(),
			}
		}
	}
	return out, nil
}

// PreparedModifier is the modifier item chosen for a key.
type PreparedModifier struct {
	ModifierID snowflake.ID
	Item       pricemodifierdomain.ModifierItem
}

// PrepareModifiers picks one modifier item per key. The first owner
// specific item wins; the first general item is used only for keys no
// specific modifier covers.
func PrepareModifiers(modifiers []pricemodifierdomain.Modifier) map[subscriptiondomain.ItemKey]PreparedModifier {
	specific := make(map[subscriptiondomain.ItemKey]PreparedModifier)
	general := make(map[subscriptiondomain.ItemKey]PreparedModifier)
	for _, modifier := range modifiers {
		target := specific
		if modifier.IsGeneral() {
			target = general
		}
		for _, item := range modifier.Items {
			key := item.Key()
			if _, exists := target[key]; exists {
				continue
			}
			target[key] = PreparedModifier{ModifierID: modifier.ID, Item: item}
		}
	}
	for key, prepared := range general {
		if _, exists := specific[key]; !exists {
			specific[key] = prepared
		}
	}
	return specific
}

// ApplyModifiers replaces the price shape and description of every price
// with a modifier for its key.
func ApplyModifiers(prices map[subscriptiondomain.ItemKey]ResolvedPrice, modifiers map[subscriptiondomain.ItemKey]PreparedModifier) map[subscriptiondomain.ItemKey]ResolvedPrice {
	out := make(map[subscriptiondomain.ItemKey]ResolvedPrice, len(prices))
	for key, price := range prices {
		if prepared, ok := modifiers[key]; ok {
			modifierID := prepared.ModifierID
			price.ItemPrice = prepared.Item.ItemPrice.Data()
			price.Description = prepared.Item.Description
			price.ModifierID = &modifierID
		}
		out[key] = price
	}
	return out
}

// ResolveStrategies instantiates and validates the strategy of every price.
func ResolveStrategies(prices map[subscriptiondomain.ItemKey]ResolvedPrice) (map[subscriptiondomain.ItemKey]ResolvedPrice, error) {
	out := make(map[subscriptiondomain.ItemKey]ResolvedPrice, len(prices))
	for key, price := range prices {
		strategy, err := NewStrategy(price.ItemPrice)
		if err != nil {
			return nil, apperr.PldInvalid("invalid price for %s: %s", key, err.Error())
		}
		price.Strategy = strategy
		out[key] = price
	}
	return out, nil
}
