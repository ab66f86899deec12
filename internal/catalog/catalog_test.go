package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	services []Service
	failures int32
	calls    int32
}

func (s *fakeSource) LoadServices(context.Context) ([]Service, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if n <= atomic.LoadInt32(&s.failures) {
		return nil, errors.New("source unavailable")
	}
	return s.services, nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestServicesBeforeReady(t *testing.T) {
	c := New(zap.NewNop(), &fakeSource{}, nil, nil, time.Minute)

	_, err := c.Services(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, ErrCatalogNotReady))
	assert.True(t, apperr.Is(err, apperr.ErrUndefinedState))
	assert.False(t, c.IsReady())
}

func TestRefreshPublishesSnapshot(t *testing.T) {
	ctx := context.Background()
	client := newRedis(t)
	source := &fakeSource{services: []Service{{ID: "HR", Name: "HR"}, {ID: "SMART_INFRASTRUCTURE", Name: "Infra", Core: true}}}

	c := New(zap.NewNop(), source, NewRedisSnapshot(client), nil, time.Minute)
	_, err := c.Refresh(ctx)
	require.NoError(t, err)
	<-c.Ready()

	services, err := c.Services(ctx)
	require.NoError(t, err)
	assert.Len(t, services, 2)

	// A second replica starts from the shared snapshot without touching
	// its own source.
	other := &fakeSource{}
	replica := New(zap.NewNop(), other, NewRedisSnapshot(client), nil, time.Minute)
	services, err = replica.Services(ctx)
	require.NoError(t, err)
	assert.Len(t, services, 2)
	assert.True(t, replica.IsReady())
	assert.Equal(t, int32(0), atomic.LoadInt32(&other.calls))

	infra, err := replica.Get(ctx, "SMART_INFRASTRUCTURE")
	require.NoError(t, err)
	assert.True(t, infra.Core)

	_, err = replica.Get(ctx, "MISSING")
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
}

func TestStartRetriesUntilSuccess(t *testing.T) {
	source := &fakeSource{services: []Service{{ID: "HR"}}, failures: 2}
	c := New(zap.NewNop(), source, nil, nil, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.WaitReady(ctx))
	assert.Equal(t, int32(3), atomic.LoadInt32(&source.calls))
}

func TestWaitReadyHonoursContext(t *testing.T) {
	c := New(zap.NewNop(), &fakeSource{}, nil, nil, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.WaitReady(ctx)
	assert.True(t, apperr.Is(err, ErrCatalogNotReady))
}
