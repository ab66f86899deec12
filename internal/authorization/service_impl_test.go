package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/allotment/internal/identity"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func user(roles ...string) identity.Actor {
	return identity.Actor{Kind: identity.ActorUser, UserID: "u-1", OrganizationID: "org-1", Roles: roles}
}

func TestAuthorizeRoles(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		actor  identity.Actor
		object string
		action string
		allow  bool
	}{
		{"member views subscriptions", user(), ObjectSubscription, ActionView, true},
		{"member cannot update", user(), ObjectSubscription, ActionUpdate, false},
		{"member cannot read payment history", user(), ObjectPaymentHistory, ActionView, false},
		{"owner updates", user("Owner"), ObjectSubscription, ActionUpdate, true},
		{"owner inherits member", user("Owner"), ObjectTreasury, ActionView, true},
		{"superadmin inherits owner", user("SuperAdmin"), ObjectPaymentHistory, ActionView, true},
		{"superadmin cannot edit prices", user("SuperAdmin"), ObjectPrice, ActionCreate, false},
		{"sysadmin edits prices", user("sysadmin"), ObjectPrice, ActionUpdate, true},
		{"sysadmin edits modifiers", user("sysadmin"), ObjectPriceModifier, ActionDelete, true},
		{"owner cannot force status", user("Owner"), ObjectSubscription, ActionStatus, false},
		{"worker sets status", identity.Worker(), ObjectSubscription, ActionStatus, true},
		{"worker cannot edit prices", identity.Worker(), ObjectPrice, ActionCreate, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.actor, tc.object, tc.action)
			if tc.allow {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrForbidden)
			assert.True(t, apperr.Is(err, apperr.ErrForbidden))
		})
	}
}

func TestAuthorizeAnonymous(t *testing.T) {
	svc := newService(t)
	err := svc.Authorize(context.Background(), identity.Actor{Kind: identity.ActorUser}, ObjectSubscription, ActionView)
	assert.True(t, apperr.Is(err, apperr.ErrNotAuthorized))
}
