package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
)

// DeriveInput is a calculated change of one service subscription.
type DeriveInput struct {
	Service         string
	Entity          subscriptiondomain.Entity
	EntityReference string
	// Subscription is nil when the owner has no subscription to Service yet.
	Subscription *subscriptiondomain.Subscription
	Items        []DeriveItem
}

// DeriveItem is one calculated allocation change.
type DeriveItem struct {
	Item Item
	// PriceService owns the price of the item. It differs from the
	// subscription service when the item is borrowed.
	PriceService       string
	CalculatedQuantity int64
	SuballocationID    snowflake.ID
	// Origin is the owning service's subscription as observed during
	// calculation, nil when it does not exist.
	Origin *subscriptiondomain.Subscription
}

// Derive returns the operations that apply in to the stored subscriptions.
// Quantities are increments; rows that existed carry the version observed
// in in.
func Derive(in DeriveInput, genID *snowflake.Node, now time.Time) []UpdateOperation {
	d := &deriver{
		in:      in,
		genID:   genID,
		now:     now,
		pending: make(map[string]snowflake.ID),
	}
	for _, item := range in.Items {
		if item.PriceService == in.Service {
			d.own(item)
			continue
		}
		d.borrow(item)
	}
	return d.ops
}

type deriver struct {
	in    DeriveInput
	genID *snowflake.Node
	now   time.Time

	// subscriptions queued for creation, keyed entity|entityReference|service
	pending map[string]snowflake.ID
	ops     []UpdateOperation
}

func (d *deriver) emit(ops ...UpdateOperation) {
	d.ops = append(d.ops, ops...)
}

// subscriptionID returns the id of the service subscription, queueing its
// creation once when existing is nil.
func (d *deriver) subscriptionID(existing *subscriptiondomain.Subscription, service string) snowflake.ID {
	if existing != nil {
		return existing.ID
	}
	key := string(d.in.Entity) + "|" + d.in.EntityReference + "|" + service
	if id, ok := d.pending[key]; ok {
		return id
	}
	id := d.genID.Generate()
	d.pending[key] = id
	d.emit(CreateSubscription(id, service, d.in.Entity, d.in.EntityReference, d.now))
	return id
}

func (d *deriver) own(item DeriveItem) {
	subscriptionID := d.subscriptionID(d.in.Subscription, d.in.Service)
	existing := d.in.Subscription.AllocationFor(item.Item.Key())
	if existing == nil {
		d.emit(CreateAllocation(d.genID.Generate(), subscriptionID, item.Item, item.CalculatedQuantity, d.now))
		return
	}
	delta := item.CalculatedQuantity
	renewed := d.now
	d.emit(UpdateAllocation(existing.ID, existing.Version, &delta, &renewed))
}

func (d *deriver) borrow(item DeriveItem) {
	key := item.Item.Key()
	quantity := item.CalculatedQuantity

	subscriptionID := d.subscriptionID(d.in.Subscription, d.in.Service)
	if target := d.in.Subscription.AllocationFor(key); target == nil {
		d.emit(CreatePlaceholder(d.genID.Generate(), subscriptionID, item.Item, item.PriceService, d.now))
	} else {
		renewed := d.now
		d.emit(UpdateAllocation(target.ID, target.Version, nil, &renewed))
	}

	suballocationID := item.SuballocationID
	if suballocationID == 0 {
		suballocationID = d.genID.Generate()
	}

	originID := d.subscriptionID(item.Origin, item.PriceService)
	origin := item.Origin.AllocationFor(key)
	if origin == nil {
		allocationID := d.genID.Generate()
		d.emit(
			CreateOriginAllocation(allocationID, originID, item.Item, quantity, d.now),
			CreateSuballocation(suballocationID, allocationID, d.in.Service, quantity),
		)
		return
	}

	available := origin.Available()
	shortfall := quantity - available
	grow := func() {
		renewed := d.now
		d.emit(UpdateAllocation(origin.ID, origin.Version, &shortfall, &renewed))
	}

	sub := origin.SuballocationFor(d.in.Service)
	if sub == nil {
		d.emit(CreateSuballocation(suballocationID, origin.ID, d.in.Service, quantity))
		if shortfall > 0 {
			grow()
		}
		return
	}
	if shortfall > 0 {
		grow()
	}
	d.emit(UpdateSuballocation(sub.ID, sub.Version, origin.ID, quantity, d.now))
}
