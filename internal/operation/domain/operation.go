// Package domain describes deferred subscription mutations: the operations
// derived from a priced change and the immutable records they are stored in
// until payment succeeds.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type Target string

const (
	TargetSubscription  Target = "subscription"
	TargetAllocation    Target = "allocation"
	TargetSuballocation Target = "suballocation"
)

// Field names used in Query and Set.
const (
	FieldID              = "id"
	FieldVersion         = "version"
	FieldService         = "service"
	FieldEntity          = "entity"
	FieldEntityReference = "entityReference"
	FieldStatus          = "status"
	FieldSubscriptionID  = "subscriptionId"
	FieldAllocationID    = "allocationId"
	FieldBillingInterval = "billingInterval"
	FieldItemType        = "itemType"
	FieldItemReference   = "itemReference"
	FieldQuantity        = "quantity"
	FieldQuantityDelta   = "quantityDelta"
	FieldLastRenewDate   = "lastRenewDate"
	FieldCreatedAt       = "createdAt"
	FieldUpdatedAt       = "updatedAt"
)

// UpdateOperation is one replayable mutation. Query selects the row, Set
// carries the values to write. A Version in Query is the version observed
// when the operation was derived.
type UpdateOperation struct {
	Op          Op     `json:"op"`
	Target      Target `json:"target"`
	Query       Fields `json:"query,omitempty"`
	Set         Fields `json:"set,omitempty"`
	Description string `json:"description,omitempty"`
}

// Item identifies the allocation key an operation writes.
type Item struct {
	BillingInterval int
	ItemType        subscriptiondomain.ItemType
	ItemReference   string
}

func ItemFromKey(key subscriptiondomain.ItemKey) (Item, error) {
	interval, reference, itemType, err := subscriptiondomain.ParseItemKey(key)
	if err != nil {
		return Item{}, err
	}
	return Item{BillingInterval: interval, ItemType: itemType, ItemReference: reference}, nil
}

func (i Item) Key() subscriptiondomain.ItemKey {
	return subscriptiondomain.NewItemKey(i.BillingInterval, i.ItemReference, i.ItemType)
}

func (i Item) fields() Fields {
	return Fields{
		FieldBillingInterval: Int(int64(i.BillingInterval)),
		FieldItemType:        String(string(i.ItemType)),
		FieldItemReference:   String(i.ItemReference),
	}
}

func CreateSubscription(id snowflake.ID, service string, entity subscriptiondomain.Entity, entityReference string, at time.Time) UpdateOperation {
	return UpdateOperation{
		Op:     OpCreate,
		Target: TargetSubscription,
		Set: Fields{
			FieldID:              ID(id),
			FieldService:         String(service),
			FieldEntity:          String(string(entity)),
			FieldEntityReference: String(entityReference),
			FieldStatus:          String(string(subscriptiondomain.SubscriptionStatusActive)),
			FieldCreatedAt:       Date(at),
		},
		Description: "create subscription " + service + " for " + string(entity) + " " + entityReference,
	}
}

func CreateAllocation(id, subscriptionID snowflake.ID, item Item, quantity int64, at time.Time) UpdateOperation {
	set := item.fields()
	set[FieldID] = ID(id)
	set[FieldSubscriptionID] = ID(subscriptionID)
	set[FieldQuantity] = Int(quantity)
	set[FieldLastRenewDate] = Date(at)
	return UpdateOperation{
		Op:          OpCreate,
		Target:      TargetAllocation,
		Set:         set,
		Description: "create allocation " + item.Key().String(),
	}
}

// CreateOriginAllocation creates the allocation of the owning service that
// suballocations are carved from.
func CreateOriginAllocation(id, subscriptionID snowflake.ID, item Item, quantity int64, at time.Time) UpdateOperation {
	op := CreateAllocation(id, subscriptionID, item, quantity, at)
	op.Description = "create origin allocation " + item.Key().String()
	return op
}

// CreatePlaceholder creates an allocation that borrows item from service.
func CreatePlaceholder(id, subscriptionID snowflake.ID, item Item, service string, at time.Time) UpdateOperation {
	set := item.fields()
	set[FieldID] = ID(id)
	set[FieldSubscriptionID] = ID(subscriptionID)
	set[FieldService] = String(service)
	set[FieldLastRenewDate] = Date(at)
	return UpdateOperation{
		Op:          OpCreate,
		Target:      TargetAllocation,
		Set:         set,
		Description: "create placeholder " + item.Key().String() + " borrowing from " + service,
	}
}

func CreateSuballocation(id, allocationID snowflake.ID, service string, quantity int64) UpdateOperation {
	return UpdateOperation{
		Op:     OpCreate,
		Target: TargetSuballocation,
		Set: Fields{
			FieldID:           ID(id),
			FieldAllocationID: ID(allocationID),
			FieldService:      String(service),
			FieldQuantity:     Int(quantity),
		},
		Description: "create suballocation for " + service,
	}
}

// UpdateAllocation adds delta to the allocation quantity (when non nil) and
// sets its last renew date (when non nil). A version of 0 marks a row that
// did not exist when the operation was derived.
func UpdateAllocation(id snowflake.ID, version int64, delta *int64, lastRenewDate *time.Time) UpdateOperation {
	op := UpdateOperation{
		Op:          OpUpdate,
		Target:      TargetAllocation,
		Query:       query(id, version),
		Set:         Fields{},
		Description: "update allocation " + id.String(),
	}
	if delta != nil {
		op.Set[FieldQuantityDelta] = Int(*delta)
	}
	if lastRenewDate != nil {
		op.Set[FieldLastRenewDate] = Date(*lastRenewDate)
	}
	return op
}

// UpdateSuballocation adds delta to a suballocation and stamps its parent
// allocation with at.
func UpdateSuballocation(id snowflake.ID, version int64, allocationID snowflake.ID, delta int64, at time.Time) UpdateOperation {
	return UpdateOperation{
		Op:     OpUpdate,
		Target: TargetSuballocation,
		Query:  query(id, version),
		Set: Fields{
			FieldAllocationID:  ID(allocationID),
			FieldQuantityDelta: Int(delta),
			FieldLastRenewDate: Date(at),
		},
		Description: "update suballocation " + id.String(),
	}
}

func SetStatus(subscriptionID snowflake.ID, status subscriptiondomain.SubscriptionStatus, at time.Time) UpdateOperation {
	return UpdateOperation{
		Op:     OpUpdate,
		Target: TargetSubscription,
		Query:  Fields{FieldID: ID(subscriptionID)},
		Set: Fields{
			FieldStatus:    String(string(status)),
			FieldUpdatedAt: Date(at),
		},
		Description: "set subscription " + subscriptionID.String() + " " + string(status),
	}
}

// RenewSubscription reactivates a subscription and stamps the renewed
// allocations.
func RenewSubscription(subscriptionID snowflake.ID, allocationIDs []snowflake.ID, at time.Time) []UpdateOperation {
	ops := make([]UpdateOperation, 0, len(allocationIDs)+1)
	ops = append(ops, SetStatus(subscriptionID, subscriptiondomain.SubscriptionStatusActive, at))
	for _, id := range allocationIDs {
		renewed := at
		op := UpdateAllocation(id, 0, nil, &renewed)
		op.Description = "renew allocation " + id.String()
		ops = append(ops, op)
	}
	return ops
}

func query(id snowflake.ID, version int64) Fields {
	q := Fields{FieldID: ID(id)}
	if version > 0 {
		q[FieldVersion] = Int(version)
	}
	return q
}

func Delete(target Target, id snowflake.ID) UpdateOperation {
	return UpdateOperation{
		Op:          OpDelete,
		Target:      target,
		Query:       Fields{FieldID: ID(id)},
		Description: "delete " + string(target) + " " + id.String(),
	}
}
