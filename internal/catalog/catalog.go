// Package catalog keeps the list of platform services that can be
// subscribed to.
package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/smallbiznis/allotment/internal/observability/metrics"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"go.uber.org/zap"
)

const servicesKey = "services"

var (
	ErrCatalogNotReady = errors.New("service catalog not ready")
	ErrServiceNotFound = errors.New("service not found")
)

// Service is one platform service.
type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Core        bool   `json:"core"`
}

// Source loads the authoritative service list.
type Source interface {
	LoadServices(ctx context.Context) ([]Service, error)
}

// Snapshot shares the last loaded list between replicas. Load returns nil,
// nil when no snapshot exists.
type Snapshot interface {
	Load(ctx context.Context) ([]Service, error)
	Save(ctx context.Context, services []Service, ttl time.Duration) error
}

// Catalog is a read-through cache in front of Source: process memory first,
// then the shared snapshot, then the source itself. Reads fail with
// ErrCatalogNotReady until one refresh has succeeded.
type Catalog struct {
	log      *zap.Logger
	source   Source
	snapshot Snapshot
	metrics  *metrics.Metrics
	local    *gocache.Cache
	ttl      time.Duration

	ready     chan struct{}
	readyOnce sync.Once
	refreshMu sync.Mutex
}

func New(log *zap.Logger, source Source, snapshot Snapshot, m *metrics.Metrics, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Catalog{
		log:      log.Named("catalog"),
		source:   source,
		snapshot: snapshot,
		metrics:  m,
		local:    gocache.New(ttl, 2*ttl),
		ttl:      ttl,
		ready:    make(chan struct{}),
	}
}

// Services returns every known service.
func (c *Catalog) Services(ctx context.Context) ([]Service, error) {
	if cached, ok := c.local.Get(servicesKey); ok {
		return clone(cached.([]Service)), nil
	}

	if c.snapshot != nil {
		services, err := c.snapshot.Load(ctx)
		if err != nil {
			c.log.Warn("catalog snapshot read failed", zap.Error(err))
		} else if services != nil {
			c.local.Set(servicesKey, services, c.ttl)
			c.markReady()
			return clone(services), nil
		}
	}

	if !c.IsReady() {
		return nil, apperr.Mark(ErrCatalogNotReady, apperr.ErrUndefinedState)
	}
	services, err := c.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return clone(services), nil
}

// Get returns one service by id.
func (c *Catalog) Get(ctx context.Context, id string) (Service, error) {
	services, err := c.Services(ctx)
	if err != nil {
		return Service{}, err
	}
	for _, service := range services {
		if service.ID == id {
			return service, nil
		}
	}
	return Service{}, apperr.Mark(ErrServiceNotFound, apperr.ErrNotFound)
}

// Refresh reloads the list from the source and publishes it.
func (c *Catalog) Refresh(ctx context.Context) ([]Service, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	services, err := c.source.LoadServices(ctx)
	if err != nil {
		c.metrics.RecordCatalogRefresh(ctx, "source", false)
		return nil, err
	}
	if services == nil {
		services = []Service{}
	}
	c.local.Set(servicesKey, services, c.ttl)
	if c.snapshot != nil {
		if err := c.snapshot.Save(ctx, services, c.ttl); err != nil {
			c.log.Warn("catalog snapshot write failed", zap.Error(err))
		}
	}
	c.metrics.RecordCatalogRefresh(ctx, "source", true)
	c.markReady()
	return services, nil
}

// Start refreshes until the first success or until ctx is done.
func (c *Catalog) Start(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	return backoff.RetryNotify(
		func() error {
			_, err := c.Refresh(ctx)
			return err
		},
		backoff.WithContext(policy, ctx),
		func(err error, wait time.Duration) {
			c.log.Warn("catalog refresh failed, retrying", zap.Error(err), zap.Duration("wait", wait))
		},
	)
}

// Ready is closed after the first successful load.
func (c *Catalog) Ready() <-chan struct{} {
	return c.ready
}

func (c *Catalog) IsReady() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the catalog is ready or ctx is done.
func (c *Catalog) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return apperr.Mark(ErrCatalogNotReady, apperr.ErrUndefinedState)
	}
}

func (c *Catalog) markReady() {
	c.readyOnce.Do(func() {
		close(c.ready)
		c.log.Info("service catalog ready")
	})
}

func clone(services []Service) []Service {
	return append([]Service(nil), services...)
}
