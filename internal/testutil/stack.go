package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/allotment/internal/catalog"
	"github.com/smallbiznis/allotment/internal/clock"
	"github.com/smallbiznis/allotment/internal/config"
	operationdomain "github.com/smallbiznis/allotment/internal/operation/domain"
	operationrepo "github.com/smallbiznis/allotment/internal/operation/repository"
	operationservice "github.com/smallbiznis/allotment/internal/operation/service"
	paymenthistorydomain "github.com/smallbiznis/allotment/internal/paymenthistory/domain"
	paymenthistoryrepo "github.com/smallbiznis/allotment/internal/paymenthistory/repository"
	paymenthistoryservice "github.com/smallbiznis/allotment/internal/paymenthistory/service"
	pricedomain "github.com/smallbiznis/allotment/internal/price/domain"
	pricerepo "github.com/smallbiznis/allotment/internal/price/repository"
	priceservice "github.com/smallbiznis/allotment/internal/price/service"
	pricemodifierdomain "github.com/smallbiznis/allotment/internal/pricemodifier/domain"
	modifierrepo "github.com/smallbiznis/allotment/internal/pricemodifier/repository"
	modifierservice "github.com/smallbiznis/allotment/internal/pricemodifier/service"
	"github.com/smallbiznis/allotment/internal/processing"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/allotment/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/allotment/internal/subscription/service"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Stack wires the billing services over one test database.
type Stack struct {
	DB    *gorm.DB
	Node  *snowflake.Node
	Clock *clock.FakeClock
	Log   *zap.Logger

	Catalog          *catalog.Catalog
	SubscriptionRepo subscriptiondomain.Repository
	Prices           pricedomain.Service
	Modifiers        pricemodifierdomain.Service
	Subscriptions    subscriptiondomain.Service
	Operations       operationdomain.Service
	PaymentHistory   paymenthistorydomain.Service
	Loader           *processing.Loader
}

func NewStack(t testing.TB, now time.Time, extra ...any) *Stack {
	t.Helper()
	db := NewDB(t, extra...)
	node := Node(t)
	fake := clock.NewFakeClock(now)
	log := zap.NewNop()

	s := &Stack{DB: db, Node: node, Clock: fake, Log: log}
	s.Catalog = catalog.New(log, catalog.NewDBSource(db), nil, nil, time.Minute)
	s.SubscriptionRepo = subscriptionrepo.Provide()
	s.Prices = priceservice.New(priceservice.Params{DB: db, Log: log, GenID: node, Clock: fake, Repo: pricerepo.Provide()})
	s.Modifiers = modifierservice.New(modifierservice.Params{DB: db, Log: log, GenID: node, Clock: fake, Repo: modifierrepo.Provide()})
	s.Subscriptions = subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fake,
		Repo:        s.SubscriptionRepo,
		Catalog:     s.Catalog,
		Billing:     config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Pricesvc:    s.Prices,
		Modifiersvc: s.Modifiers,
	})
	s.Operations = operationservice.New(operationservice.Params{
		DB:               db,
		Log:              log,
		GenID:            node,
		Clock:            fake,
		Repo:             operationrepo.Provide(),
		SubscriptionRepo: s.SubscriptionRepo,
	})
	s.PaymentHistory = paymenthistoryservice.New(paymenthistoryservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  paymenthistoryrepo.Provide(),
	})
	s.Loader = processing.NewLoader(processing.LoaderParams{
		GenID:         node,
		Subscriptions: s.Subscriptions,
		Prices:        s.Prices,
		Modifiers:     s.Modifiers,
	})
	return s
}

// SeedSubscription stores an active ORGANIZATION org-1 subscription with
// allocations renewed a month before the clock.
func (s *Stack) SeedSubscription(t testing.TB, service string, allocations ...subscriptiondomain.Allocation) *subscriptiondomain.Subscription {
	t.Helper()
	ctx := context.Background()
	now := s.Clock.Now()
	sub := subscriptiondomain.Subscription{
		ID:              s.Node.Generate(),
		Service:         service,
		Entity:          subscriptiondomain.EntityOrganization,
		EntityReference: "org-1",
		Status:          subscriptiondomain.SubscriptionStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.SubscriptionRepo.Insert(ctx, s.DB, &sub); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	for i, allocation := range allocations {
		allocation.ID = s.Node.Generate()
		allocation.SubscriptionID = sub.ID
		allocation.Position = i
		if allocation.LastRenewDate.IsZero() {
			allocation.LastRenewDate = now.AddDate(0, -1, 0)
		}
		subs := allocation.Suballocations
		if err := s.SubscriptionRepo.InsertAllocation(ctx, s.DB, &allocation); err != nil {
			t.Fatalf("seed allocation: %v", err)
		}
		for _, suballocation := range subs {
			suballocation.ID = s.Node.Generate()
			suballocation.AllocationID = allocation.ID
			if err := s.SubscriptionRepo.InsertSuballocation(ctx, s.DB, &suballocation); err != nil {
				t.Fatalf("seed suballocation: %v", err)
			}
		}
	}
	return s.Load(t, sub.ID)
}

func (s *Stack) Load(t testing.TB, id snowflake.ID) *subscriptiondomain.Subscription {
	t.Helper()
	sub, err := s.SubscriptionRepo.FindByID(context.Background(), s.DB, id)
	if err != nil || sub == nil {
		t.Fatalf("load subscription %s: %v", id, err)
	}
	return sub
}

// SeedPrice stores a price document that took effect a month before the
// clock.
func (s *Stack) SeedPrice(t testing.TB, service string, items ...pricedomain.PriceItem) *pricedomain.Price {
	t.Helper()
	now := s.Clock.Now()
	price := pricedomain.Price{
		ID:        s.Node.Generate(),
		Service:   service,
		StartDate: now.AddDate(0, -1, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, item := range items {
		item.ID = s.Node.Generate()
		item.PriceID = price.ID
		price.Items = append(price.Items, item)
	}
	if err := pricerepo.Provide().Insert(context.Background(), s.DB, &price); err != nil {
		t.Fatalf("seed price: %v", err)
	}
	return &price
}

// SeedModifier stores a modifier active since a month before the clock.
func (s *Stack) SeedModifier(t testing.TB, modifier pricemodifierdomain.Modifier) *pricemodifierdomain.Modifier {
	t.Helper()
	now := s.Clock.Now()
	modifier.ID = s.Node.Generate()
	modifier.StartDate = now.AddDate(0, -1, 0)
	modifier.CreatedAt = now
	modifier.UpdatedAt = now
	for i := range modifier.Items {
		modifier.Items[i].ID = s.Node.Generate()
		modifier.Items[i].ModifierID = modifier.ID
	}
	if err := modifierrepo.Provide().Insert(context.Background(), s.DB, &modifier); err != nil {
		t.Fatalf("seed modifier: %v", err)
	}
	return &modifier
}

// Tiered returns an item price of the QUANTITY strategy.
func Tiered(ranges []float64, prices [][]float64) pricedomain.ItemPrice {
	return pricedomain.ItemPrice{
		Type:        pricedomain.StrategyQuantity,
		Ranges:      ranges,
		Prices:      prices,
		Inclusivity: pricedomain.InclusivityLowerClosed,
	}
}

// PriceItem returns a monthly USD price item.
func PriceItem(itemType subscriptiondomain.ItemType, reference string, price pricedomain.ItemPrice, usableBy ...string) pricedomain.PriceItem {
	return pricedomain.PriceItem{
		BillingInterval: 1,
		ItemType:        itemType,
		ItemReference:   reference,
		Currency:        "USD",
		UsableBy:        datatypes.NewJSONSlice(usableBy),
		ItemPrice:       datatypes.NewJSONType(price),
	}
}

// Allocation returns a monthly allocation of quantity items.
func Allocation(itemType subscriptiondomain.ItemType, reference string, quantity int64, subs ...subscriptiondomain.Suballocation) subscriptiondomain.Allocation {
	return subscriptiondomain.Allocation{
		BillingInterval: 1,
		ItemType:        itemType,
		ItemReference:   reference,
		Quantity:        quantity,
		Suballocations:  subs,
	}
}
