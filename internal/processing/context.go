// Package processing prices a subscription change. A context moves through
// Initial, Resolved, Calculated and Formed; each state is its own type and
// only exposes the data it owns.
package processing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	operationdomain "github.com/smallbiznis/allotment/internal/operation/domain"
	pricedomain "github.com/smallbiznis/allotment/internal/price/domain"
	pricemodifierdomain "github.com/smallbiznis/allotment/internal/pricemodifier/domain"
	"github.com/smallbiznis/allotment/internal/pricing"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"go.uber.org/fx"
)

// Subject is the owner and service a context processes. Subscription is nil
// when the owner has not subscribed to Service yet.
type Subject struct {
	Service         string
	Entity          subscriptiondomain.Entity
	EntityReference string
	Subscription    *subscriptiondomain.Subscription
	Now             time.Time
}

// SubscriptionID returns 0 when there is no subscription yet.
func (s Subject) SubscriptionID() snowflake.ID {
	if s.Subscription == nil {
		return 0
	}
	return s.Subscription.ID
}

type LoaderParams struct {
	fx.In

	GenID         *snowflake.Node
	Subscriptions subscriptiondomain.Service
	Prices        pricedomain.Service
	Modifiers     pricemodifierdomain.Service
}

// Loader builds Initial contexts.
type Loader struct {
	genID         *snowflake.Node
	subscriptions subscriptiondomain.Service
	prices        pricedomain.Service
	modifiers     pricemodifierdomain.Service
}

func NewLoader(p LoaderParams) *Loader {
	return &Loader{
		genID:         p.GenID,
		subscriptions: p.Subscriptions,
		prices:        p.Prices,
		modifiers:     p.Modifiers,
	}
}

// Initial holds everything read from storage for one subject.
type Initial struct {
	Subject

	Allocations            map[subscriptiondomain.ItemKey]subscriptiondomain.Allocation
	ResolvedSuballocations map[snowflake.ID]subscriptiondomain.Allocation
	Prices                 []pricedomain.Price
	Modifiers              []pricemodifierdomain.Modifier

	loader *Loader
}

// Load reads the prices, modifiers and borrowed origins that apply to
// subject at subject.Now.
func (l *Loader) Load(ctx context.Context, subject Subject) (*Initial, error) {
	resolved, err := l.subscriptions.ResolveSuballocations(ctx, subject.Subscription)
	if err != nil {
		return nil, err
	}

	prices, err := l.prices.GetApplicablePrices(ctx, []string{subject.Service}, subject.Now)
	if err != nil {
		return nil, err
	}

	services := []string{subject.Service}
	if subject.Subscription != nil {
		for _, allocation := range subject.Subscription.Allocations {
			if allocation.IsPlaceholder() {
				services = append(services, allocation.Service)
			}
		}
	}
	modifiers, err := l.modifiers.GetApplicableModifiers(ctx, services, subject.Entity, subject.EntityReference, subject.Now)
	if err != nil {
		return nil, err
	}

	return &Initial{
		Subject:                subject,
		Allocations:            subject.Subscription.AllocationsByKey(),
		ResolvedSuballocations: resolved,
		Prices:                 prices,
		Modifiers:              modifiers,
		loader:                 l,
	}, nil
}

// Resolved carries the price in effect for every item key.
type Resolved struct {
	Subject

	allocations map[subscriptiondomain.ItemKey]subscriptiondomain.Allocation
	origins     map[snowflake.ID]subscriptiondomain.Allocation
	prices      map[subscriptiondomain.ItemKey]pricing.ResolvedPrice
	loader      *Loader
}

func (i *Initial) ResolvePrices() (*Resolved, error) {
	prepared, err := pricing.PreparePrices(i.Prices, i.Service)
	if err != nil {
		return nil, err
	}
	prices, err := pricing.ResolveStrategies(pricing.ApplyModifiers(prepared, pricing.PrepareModifiers(i.Modifiers)))
	if err != nil {
		return nil, err
	}
	return &Resolved{
		Subject:     i.Subject,
		allocations: i.Allocations,
		origins:     i.ResolvedSuballocations,
		prices:      prices,
		loader:      i.loader,
	}, nil
}

func (r *Resolved) ResolvedPrices() map[subscriptiondomain.ItemKey]pricing.ResolvedPrice {
	return r.prices
}

// Calculated carries the priced allocations of a change or renewal.
type Calculated struct {
	Subject

	prices  map[subscriptiondomain.ItemKey]pricing.ResolvedPrice
	values  Values
	renewal bool
	genID   *snowflake.Node
}

func (c *Calculated) ResolvedPrices() map[subscriptiondomain.ItemKey]pricing.ResolvedPrice {
	return c.prices
}

func (c *Calculated) Values() Values {
	return c.values
}

// IsRenewal reports whether the values renew existing allocations rather
// than change them.
func (c *Calculated) IsRenewal() bool {
	return c.renewal
}

// DeriveOperations turns the calculated values into replayable operations.
func (c *Calculated) DeriveOperations() *Formed {
	var ops []operationdomain.UpdateOperation
	if c.renewal {
		ids := make([]snowflake.ID, 0, len(c.values.Order))
		for _, key := range c.values.Order {
			ids = append(ids, c.values.Allocations[key].AllocationID)
		}
		ops = operationdomain.RenewSubscription(c.SubscriptionID(), ids, c.Now)
	} else {
		input := operationdomain.DeriveInput{
			Service:         c.Service,
			Entity:          c.Entity,
			EntityReference: c.EntityReference,
			Subscription:    c.Subscription,
		}
		for _, key := range c.values.Order {
			value := c.values.Allocations[key]
			input.Items = append(input.Items, operationdomain.DeriveItem{
				Item:               value.Item,
				PriceService:       value.PriceService,
				CalculatedQuantity: value.CalculatedQuantity,
				SuballocationID:    value.SuballocationID,
				Origin:             value.Origin,
			})
		}
		ops = operationdomain.Derive(input, c.genID, c.Now)
	}
	return &Formed{Subject: c.Subject, prices: c.prices, values: c.values, ops: ops}
}

// Formed is a fully processed context.
type Formed struct {
	Subject

	prices map[subscriptiondomain.ItemKey]pricing.ResolvedPrice
	values Values
	ops    []operationdomain.UpdateOperation
}

func (f *Formed) ResolvedPrices() map[subscriptiondomain.ItemKey]pricing.ResolvedPrice {
	return f.prices
}

func (f *Formed) Values() Values {
	return f.values
}

func (f *Formed) Operations() []operationdomain.UpdateOperation {
	return f.ops
}
