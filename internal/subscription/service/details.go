package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/smallbiznis/allotment/internal/catalog"
	"github.com/smallbiznis/allotment/internal/pricing"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"go.uber.org/zap"
)

// Details describes every catalog service for an organization together
// with its allocations and their current prices. A service whose billing
// cannot be computed carries the error instead of failing the response.
func (s *Service) Details(ctx context.Context, organizationID, service string) (subscriptiondomain.SubscriptionDetails, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return subscriptiondomain.SubscriptionDetails{}, apperr.BadInput("Organization not found")
	}
	service = strings.TrimSpace(service)

	now := s.clock.Now()
	multiplier, err := pricing.MonthlyPriceMultiplier(now)
	if err != nil {
		return subscriptiondomain.SubscriptionDetails{}, err
	}

	services, err := s.catalog.Services(ctx)
	if err != nil {
		return subscriptiondomain.SubscriptionDetails{}, err
	}
	billingCfg := s.billing.Get()
	services = lo.Filter(services, func(svc catalog.Service, _ int) bool {
		return !billingCfg.Ignored(svc.ID) && (service == "" || svc.ID == service)
	})

	subscriptions, err := s.repo.ListByOwner(ctx, s.db, subscriptiondomain.EntityOrganization, organizationID)
	if err != nil {
		return subscriptiondomain.SubscriptionDetails{}, err
	}
	byService := lo.KeyBy(subscriptions, func(sub subscriptiondomain.Subscription) string {
		return sub.Service
	})

	details := subscriptiondomain.SubscriptionDetails{
		Organization:           organizationID,
		Services:               make(map[string]subscriptiondomain.ServiceDetails, len(services)),
		MonthlyPriceMultiplier: multiplier.StringFixed(pricing.Precision),
	}
	for _, svc := range services {
		subscription, enabled := byService[svc.ID]
		var current *subscriptiondomain.Subscription
		if enabled {
			current = &subscription
		}

		billing, err := s.billingDetails(ctx, svc.ID, organizationID, current, now)
		if err != nil {
			s.log.Warn("subscription details unavailable",
				zap.String("service", svc.ID),
				zap.String("org_id", organizationID),
				zap.Error(err),
			)
			billing = &subscriptiondomain.BillingDetails{Error: apperr.Message(err), Service: svc.ID}
		}

		details.Services[svc.ID] = subscriptiondomain.ServiceDetails{
			Service:     svc.ID,
			Name:        svc.Name,
			Description: svc.Description,
			URL:         svc.URL,
			Core:        svc.Core,
			Enabled:     enabled,
			Billing:     billing,
		}
	}
	return details, nil
}

func (s *Service) billingDetails(ctx context.Context, service, organizationID string, subscription *subscriptiondomain.Subscription, now time.Time) (*subscriptiondomain.BillingDetails, error) {
	modifierServices := []string{service}
	var origins map[subscriptiondomain.ItemKey]subscriptiondomain.Allocation
	if subscription != nil {
		for _, allocation := range subscription.Allocations {
			if allocation.IsPlaceholder() {
				modifierServices = append(modifierServices, allocation.Service)
			}
		}
		resolved, err := s.ResolveSuballocations(ctx, subscription)
		if err != nil {
			return nil, err
		}
		origins = make(map[subscriptiondomain.ItemKey]subscriptiondomain.Allocation, len(resolved))
		for _, allocation := range subscription.Allocations {
			if origin, ok := resolved[allocation.ID]; ok {
				origins[allocation.Key()] = origin
			}
		}
	}

	prices, err := s.pricesvc.GetApplicablePrices(ctx, []string{service}, now)
	if err != nil {
		return nil, err
	}
	modifiers, err := s.modifiersvc.GetApplicableModifiers(ctx, modifierServices, subscriptiondomain.EntityOrganization, organizationID, now)
	if err != nil {
		return nil, err
	}
	prepared, err := pricing.PreparePrices(prices, service)
	if err != nil {
		return nil, err
	}
	resolvedPrices, err := pricing.ResolveStrategies(pricing.ApplyModifiers(prepared, pricing.PrepareModifiers(modifiers)))
	if err != nil {
		return nil, err
	}

	billing := &subscriptiondomain.BillingDetails{Allocations: []subscriptiondomain.AllocationDetails{}}
	index := make(map[subscriptiondomain.ItemKey]int)
	if subscription != nil {
		for _, allocation := range subscription.Allocations {
			entry := subscriptiondomain.AllocationDetails{
				BillingInterval: allocation.BillingInterval,
				ItemType:        allocation.ItemType,
				ItemReference:   allocation.ItemReference,
				Quantity:        allocation.Quantity,
				Service:         allocation.Service,
			}
			if !allocation.LastRenewDate.IsZero() {
				renewed := allocation.LastRenewDate
				entry.LastRenewDate = &renewed
			}
			if allocation.IsPlaceholder() {
				origin := origins[allocation.Key()]
				entry.Quantity = 0
				if sub := origin.SuballocationFor(service); sub != nil {
					entry.Quantity = sub.Quantity
				}
				available := origin.Available()
				entry.Available = &available
			}
			index[allocation.Key()] = len(billing.Allocations)
			billing.Allocations = append(billing.Allocations, entry)
		}
	}

	keys := lo.Keys(resolvedPrices)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, key := range keys {
		price := resolvedPrices[key]
		position, ok := index[key]
		if !ok {
			billing.Allocations = append(billing.Allocations, subscriptiondomain.AllocationDetails{
				BillingInterval: price.BillingInterval,
				ItemType:        price.ItemType,
				ItemReference:   price.ItemReference,
			})
			position = len(billing.Allocations) - 1
		}

		entry := &billing.Allocations[position]
		unit, err := price.Strategy.GetPrice(entry.Quantity)
		if err != nil {
			return nil, err
		}
		entry.ItemPrice = &subscriptiondomain.ItemPriceDetails{
			CalculatedPrice: pricing.Round(unit.Mul(pricing.Quantity(entry.Quantity))).String(),
			Currency:        price.Currency,
			Ranges:          price.ItemPrice.Ranges,
			Prices:          price.ItemPrice.Prices,
		}
	}
	return billing, nil
}
