package processing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	operationdomain "github.com/smallbiznis/allotment/internal/operation/domain"
	"github.com/smallbiznis/allotment/internal/pricing"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"github.com/smallbiznis/allotment/pkg/apperr"
)

// PeriodLayout formats billing period bounds.
const PeriodLayout = "Jan, 02 2006"

type Period struct {
	From time.Time
	To   time.Time
}

func (p Period) Strings() []string {
	return []string{p.From.Format(PeriodLayout), p.To.Format(PeriodLayout)}
}

// periodFrom is the span a charge at now covers: the rest of the month for
// monthly items, billingInterval months otherwise.
func periodFrom(now time.Time, billingInterval int) Period {
	if billingInterval == 1 {
		return Period{From: now, To: pricing.StartOfMonth(now).AddDate(0, 1, 0)}
	}
	return Period{From: now, To: now.AddDate(0, billingInterval, 0)}
}

// CalculatedAllocation is the priced change of one item key.
type CalculatedAllocation struct {
	Item         operationdomain.Item
	PriceID      snowflake.ID
	PriceService string
	Currency     string

	// CalculatedOne is the unit price, CalculatedTotal the charge for
	// CalculatedQuantity over Period.
	CalculatedOne      decimal.Decimal
	CalculatedTotal    decimal.Decimal
	CalculatedQuantity int64
	Period             Period

	// AllocationID is the renewed allocation; SuballocationID the
	// suballocation (or origin allocation on renewal) a borrowed item draws
	// from.
	AllocationID    snowflake.ID
	SuballocationID snowflake.ID
	// Origin is the owning service's subscription observed while pricing a
	// borrowed item.
	Origin *subscriptiondomain.Subscription
}

func (a CalculatedAllocation) Key() subscriptiondomain.ItemKey {
	return a.Item.Key()
}

// Values are the calculated allocations in request order and their total.
type Values struct {
	Allocations map[subscriptiondomain.ItemKey]CalculatedAllocation
	Order       []subscriptiondomain.ItemKey
	Total       decimal.Decimal
}

func (v Values) Ordered() []CalculatedAllocation {
	out := make([]CalculatedAllocation, 0, len(v.Order))
	for _, key := range v.Order {
		out = append(out, v.Allocations[key])
	}
	return out
}

func (v *Values) add(value CalculatedAllocation) {
	if v.Allocations == nil {
		v.Allocations = make(map[subscriptiondomain.ItemKey]CalculatedAllocation)
	}
	key := value.Key()
	v.Allocations[key] = value
	v.Order = append(v.Order, key)
}

// AllocationChange asks for ChangedQuantity more of one item.
type AllocationChange struct {
	BillingInterval int
	ItemType        subscriptiondomain.ItemType
	ItemReference   string
	ChangedQuantity int64
}

func (c AllocationChange) Key() subscriptiondomain.ItemKey {
	return subscriptiondomain.NewItemKey(c.BillingInterval, c.ItemReference, c.ItemType)
}

// Update is a requested change and the one-time total the client expects
// to pay for it.
type Update struct {
	Allocations       []AllocationChange
	OneTimeTotalPrice decimal.Decimal
}

func (u Update) validate() error {
	if len(u.Allocations) == 0 {
		return apperr.BadInput("No allocations to update")
	}
	seen := make(map[subscriptiondomain.ItemKey]struct{}, len(u.Allocations))
	for _, change := range u.Allocations {
		switch {
		case !subscriptiondomain.ValidBillingInterval(change.BillingInterval):
			return apperr.BadInput("Invalid billing interval: %d", change.BillingInterval)
		case !change.ItemType.Valid():
			return apperr.BadInput("Invalid item type: %s", change.ItemType)
		case change.ItemReference == "":
			return apperr.BadInput("Item reference is required")
		case change.ChangedQuantity <= 0:
			return apperr.BadInput("Changed quantity must be positive: %s", change.Key())
		}
		if _, dup := seen[change.Key()]; dup {
			return apperr.BadInput("Duplicate allocation: %s", change.Key())
		}
		seen[change.Key()] = struct{}{}
	}
	return nil
}

// CalculateUpdate prices update. A borrowed item is priced at the tier of
// the origin allocation after the change but only charged for the part the
// origin's free quantity does not cover. The total must equal the client's
// total exactly.
func (r *Resolved) CalculateUpdate(ctx context.Context, update Update, multiplier decimal.Decimal) (*Calculated, error) {
	if err := update.validate(); err != nil {
		return nil, err
	}

	origins := make(map[string]*subscriptiondomain.Subscription)
	origin := func(service string) (*subscriptiondomain.Subscription, error) {
		if sub, ok := origins[service]; ok {
			return sub, nil
		}
		sub, err := r.loader.subscriptions.GetSubscription(ctx, r.Entity, r.EntityReference, service)
		if err != nil {
			return nil, err
		}
		origins[service] = sub
		return sub, nil
	}

	var values Values
	total := decimal.Zero
	for _, change := range update.Allocations {
		key := change.Key()
		price, ok := r.prices[key]
		if !ok {
			return nil, apperr.BadInput("Could not derive price for item: %s", key)
		}

		value := CalculatedAllocation{
			Item: operationdomain.Item{
				BillingInterval: change.BillingInterval,
				ItemType:        change.ItemType,
				ItemReference:   change.ItemReference,
			},
			PriceID:            price.PriceID,
			PriceService:       price.Service,
			Currency:           price.Currency,
			CalculatedQuantity: change.ChangedQuantity,
			Period:             periodFrom(r.Now, change.BillingInterval),
		}

		var charged, atTier int64
		if price.Service != r.Service {
			owner, err := origin(price.Service)
			if err != nil {
				return nil, err
			}
			value.Origin = owner
			if allocation := owner.AllocationFor(key); allocation != nil {
				if sub := allocation.SuballocationFor(r.Service); sub != nil {
					value.SuballocationID = sub.ID
				}
				charged = change.ChangedQuantity - allocation.Available()
				atTier = allocation.Quantity + change.ChangedQuantity
			} else {
				charged = change.ChangedQuantity
				atTier = change.ChangedQuantity
			}
			if value.SuballocationID == 0 {
				value.SuballocationID = r.loader.genID.Generate()
			}
		} else {
			charged = change.ChangedQuantity
			atTier = change.ChangedQuantity
			if existing, ok := r.allocations[key]; ok {
				atTier += existing.Quantity
			}
		}
		if charged < 0 {
			charged = 0
		}

		one, err := price.Strategy.GetPrice(atTier)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrUndefinedState, "Could not derive price for item: "+key.String())
		}
		value.CalculatedOne = one
		value.CalculatedTotal = one.Mul(pricing.Quantity(charged)).Mul(multiplier)
		total = total.Add(value.CalculatedTotal)
		values.add(value)
	}
	values.Total = pricing.Round(total)

	if !values.Total.Equal(update.OneTimeTotalPrice) {
		return nil, apperr.BadInput(
			"Incorrect total one time amount: calculated=%s, incoming=%s",
			values.Total.StringFixed(pricing.Precision),
			update.OneTimeTotalPrice.StringFixed(pricing.Precision),
		)
	}
	return &Calculated{Subject: r.Subject, prices: r.prices, values: values, genID: r.loader.genID}, nil
}

// CalculateRenewal prices the allocations the subscription holds for the
// next period. Allocations rejected by due are skipped.
func (r *Resolved) CalculateRenewal(multiplier decimal.Decimal, due func(subscriptiondomain.Allocation) bool) (*Calculated, error) {
	if r.Subscription == nil {
		return nil, apperr.UndefinedState("No subscription to renew for %s", r.Service)
	}

	var values Values
	total := decimal.Zero
	for _, allocation := range r.Subscription.Allocations {
		if due != nil && !due(allocation) {
			continue
		}
		key := allocation.Key()
		price, ok := r.prices[key]
		if !ok {
			return nil, apperr.BadInput("Could not derive price for item: %s", key)
		}

		value := CalculatedAllocation{
			Item: operationdomain.Item{
				BillingInterval: allocation.BillingInterval,
				ItemType:        allocation.ItemType,
				ItemReference:   allocation.ItemReference,
			},
			PriceID:      price.PriceID,
			PriceService: price.Service,
			Currency:     price.Currency,
			AllocationID: allocation.ID,
			Period:       Period{From: r.Now, To: r.Now.AddDate(0, allocation.BillingInterval, 0)},
		}

		quantity := allocation.Quantity
		switch {
		case len(allocation.Suballocations) > 0:
			quantity = allocation.Available()
		case allocation.IsPlaceholder():
			origin, ok := r.origins[allocation.ID]
			if !ok {
				return nil, apperr.UndefinedState("Was not able to derive origin allocation for %s", key)
			}
			sub := origin.SuballocationFor(r.Service)
			if sub == nil {
				return nil, apperr.UndefinedState("Was not able to derive suballocation for %s", key)
			}
			quantity = sub.Quantity
			value.SuballocationID = origin.ID
		}

		one, err := price.Strategy.GetPrice(quantity)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrUndefinedState, "Could not derive price for item: "+key.String())
		}
		value.CalculatedOne = pricing.Round(one)
		value.CalculatedTotal = pricing.Round(value.CalculatedOne.Mul(pricing.Quantity(quantity)).Mul(multiplier))
		value.CalculatedQuantity = quantity
		total = total.Add(value.CalculatedTotal)
		values.add(value)
	}
	values.Total = pricing.Round(total)

	return &Calculated{Subject: r.Subject, prices: r.prices, values: values, renewal: true, genID: r.loader.genID}, nil
}

// Due reports whether allocation has not been renewed for the period
// containing now. Monthly items renew with the calendar month, longer
// intervals billingInterval months after their last renewal.
func Due(allocation subscriptiondomain.Allocation, now time.Time) bool {
	if allocation.BillingInterval <= 1 {
		return allocation.LastRenewDate.Before(pricing.StartOfMonth(now))
	}
	return !allocation.LastRenewDate.AddDate(0, allocation.BillingInterval, 0).After(now)
}
