package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	billingdomain "github.com/smallbiznis/allotment/internal/billing/domain"
	"github.com/smallbiznis/allotment/internal/catalog"
	"github.com/smallbiznis/allotment/internal/clock"
	"github.com/smallbiznis/allotment/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2026, time.April, 1, 0, 5, 0, 0, time.UTC)

type fakeBilling struct {
	billingdomain.Service

	calls  int
	at     time.Time
	worker bool
	result billingdomain.RenewalResult
	err    error
}

func (f *fakeBilling) RenewDue(ctx context.Context, at time.Time) (billingdomain.RenewalResult, error) {
	f.calls++
	f.at = at
	actor, _ := identity.ActorFromContext(ctx)
	f.worker = actor.IsWorker()
	return f.result, f.err
}

type fakeSource struct {
	loads int
	err   error
}

func (s *fakeSource) LoadServices(context.Context) ([]catalog.Service, error) {
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return []catalog.Service{{ID: "HR", Name: "HR"}}, nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newScheduler(t *testing.T, billing *fakeBilling, source *fakeSource, locker *Locker) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s, err := New(Params{
		Log:     zap.NewNop(),
		Clock:   clock.NewFakeClock(now),
		GenID:   node,
		Billing: billing,
		Catalog: catalog.New(zap.NewNop(), source, nil, nil, time.Minute),
		Locker:  locker,
		Config:  Config{LockTTL: time.Minute, JobTimeout: 10 * time.Second},
	})
	require.NoError(t, err)
	return s
}

func TestLockerLeasesAreExclusive(t *testing.T) {
	ctx := context.Background()
	client := newRedis(t)
	locker := NewLocker(client, time.Minute)

	lease, err := locker.Acquire(ctx, JobRenewal)
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, JobRenewal, lease.Job())

	held, err := locker.Acquire(ctx, JobRenewal)
	require.NoError(t, err)
	assert.Nil(t, held)

	other, err := locker.Acquire(ctx, JobCatalog)
	require.NoError(t, err)
	assert.NotNil(t, other, "jobs lock independently")

	ttl, err := client.TTL(ctx, "allotment:scheduler:"+JobRenewal).Result()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	require.NoError(t, lease.Release(ctx))
	lease, err = locker.Acquire(ctx, JobRenewal)
	require.NoError(t, err)
	assert.NotNil(t, lease)
}

func TestStaleLeaseDoesNotReleaseNewHolder(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client, time.Minute)

	stale, err := locker.Acquire(ctx, JobRenewal)
	require.NoError(t, err)
	require.NotNil(t, stale)

	mr.FastForward(2 * time.Minute)
	current, err := locker.Acquire(ctx, JobRenewal)
	require.NoError(t, err)
	require.NotNil(t, current)

	require.NoError(t, stale.Release(ctx))
	held, err := locker.Acquire(ctx, JobRenewal)
	require.NoError(t, err)
	assert.Nil(t, held)
}

func TestNewLockerWithoutRedis(t *testing.T) {
	assert.Nil(t, NewLocker(nil, time.Minute))
}

func TestRunOnceRefreshesCatalogThenRenews(t *testing.T) {
	billing := &fakeBilling{result: billingdomain.RenewalResult{Renewed: 2}}
	source := &fakeSource{}
	s := newScheduler(t, billing, source, NewLocker(newRedis(t), time.Minute))

	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, 1, source.loads)
	assert.True(t, s.catalog.IsReady())
	assert.Equal(t, 1, billing.calls)
	assert.Equal(t, now, billing.at)
	assert.True(t, billing.worker)
}

func TestRunJobSkipsWhileAnotherReplicaHoldsTheLock(t *testing.T) {
	client := newRedis(t)
	other := NewLocker(client, time.Minute)
	lease, err := other.Acquire(context.Background(), JobCatalog)
	require.NoError(t, err)
	require.NotNil(t, lease)

	source := &fakeSource{}
	s := newScheduler(t, &fakeBilling{}, source, NewLocker(client, time.Minute))

	require.NoError(t, s.runJob(context.Background(), JobCatalog, s.CatalogJob))
	assert.Zero(t, source.loads)
}

func TestRenewalJobReportsFailures(t *testing.T) {
	billing := &fakeBilling{result: billingdomain.RenewalResult{Renewed: 1, Failed: 1}}
	s := newScheduler(t, billing, &fakeSource{}, nil)
	_, err := s.catalog.Refresh(context.Background())
	require.NoError(t, err)

	err = s.runJob(context.Background(), JobRenewal, s.RenewalJob)
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobRenewal)
}

func TestRenewalJobWaitsForCatalog(t *testing.T) {
	billing := &fakeBilling{}
	s := newScheduler(t, billing, &fakeSource{err: errors.New("db down")}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.RenewalJob(ctx)
	require.ErrorIs(t, err, catalog.ErrCatalogNotReady)
	assert.Zero(t, billing.calls)
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := newScheduler(t, &fakeBilling{}, &fakeSource{}, nil)
	s.cfg.RenewalSpec = "not a spec"

	err := s.Start(context.Background())
	require.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, "0 5 1 * *", cfg.RenewalSpec)
	assert.Equal(t, "@every 5m", cfg.CatalogSpec)
	assert.Less(t, cfg.JobTimeout, cfg.LockTTL)

	cfg = Config{LockTTL: time.Minute, JobTimeout: time.Hour}.withDefaults()
	assert.Equal(t, time.Minute-time.Second, cfg.JobTimeout)
}
