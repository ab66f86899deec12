package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/smallbiznis/allotment/internal/identity"
	"github.com/smallbiznis/allotment/pkg/apperr"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

const (
	ObjectSubscription   = "subscription"
	ObjectPrice          = "subscription_price"
	ObjectPriceModifier  = "subscription_price_modifier"
	ObjectPaymentHistory = "payment_history"
	ObjectTreasury       = "treasury"
)

const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionStatus = "status"
)

const (
	RoleMember     = "member"
	RoleOwner      = "owner"
	RoleSuperAdmin = "superadmin"
	RoleSysadmin   = "sysadmin"
	RoleWorker     = "worker"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidActor = errors.New("invalid_actor")
)

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

type Service interface {
	// Authorize returns nil when any role of actor may perform action on
	// object.
	Authorize(ctx context.Context, actor identity.Actor, object, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds an in-memory enforcer holding the role policies.
func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor identity.Actor, object string, action string) error {
	subjects := subjectsOf(actor)
	if len(subjects) == 0 {
		return apperr.Mark(ErrInvalidActor, apperr.ErrNotAuthorized)
	}
	for _, subject := range subjects {
		allowed, err := s.enforcer.Enforce(subject, object, action)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
	}

	s.log.Info("authorization denied",
		zap.String("user_id", actor.UserID),
		zap.String("org_id", actor.OrganizationID),
		zap.String("object", object),
		zap.String("action", action),
	)
	return apperr.Wrap(ErrForbidden, apperr.ErrForbidden, fmt.Sprintf("Action %s on %s is not allowed", action, object))
}

func subjectsOf(actor identity.Actor) []string {
	if actor.IsWorker() {
		return []string{"role:" + RoleWorker}
	}
	if strings.TrimSpace(actor.UserID) == "" {
		return nil
	}
	subjects := []string{"role:" + RoleMember}
	for _, role := range actor.Roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		subjects = append(subjects, "role:"+role)
	}
	return subjects
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Member permissions (read-only)
		{"role:member", ObjectSubscription, ActionView},
		{"role:member", ObjectPrice, ActionView},
		{"role:member", ObjectPriceModifier, ActionView},
		{"role:member", ObjectTreasury, ActionView},

		// Owner permissions
		{"role:owner", ObjectSubscription, ActionCreate},
		{"role:owner", ObjectSubscription, ActionUpdate},
		{"role:owner", ObjectSubscription, ActionDelete},
		{"role:owner", ObjectPaymentHistory, ActionView},

		// Sysadmin manages the catalogue and subscription states
		{"role:sysadmin", ObjectPrice, ActionCreate},
		{"role:sysadmin", ObjectPrice, ActionUpdate},
		{"role:sysadmin", ObjectPrice, ActionDelete},
		{"role:sysadmin", ObjectPriceModifier, ActionCreate},
		{"role:sysadmin", ObjectPriceModifier, ActionUpdate},
		{"role:sysadmin", ObjectPriceModifier, ActionDelete},
		{"role:sysadmin", ObjectSubscription, ActionStatus},

		// Scheduled jobs
		{"role:worker", ObjectSubscription, ActionUpdate},
		{"role:worker", ObjectSubscription, ActionStatus},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	groupings := [][]string{
		{"role:owner", "role:member"},
		{"role:superadmin", "role:owner"},
		{"role:sysadmin", "role:superadmin"},
	}
	for _, grouping := range groupings {
		if _, err := enforcer.AddGroupingPolicy(grouping); err != nil {
			return err
		}
	}
	return nil
}
