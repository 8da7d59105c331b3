package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vreid/wager/internal/pkg/chain"
	wcommon "github.com/vreid/wager/internal/pkg/common"
)

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}

	return common.Hash(r).Hex()
}

// ParseRole accepts a role name (ROOT_ADMIN, ADMIN, UPGRADER) or a 32-byte hex id.
func ParseRole(s string) (Role, error) {
	for role, name := range roleNames {
		if strings.EqualFold(s, name) {
			return role, nil
		}
	}

	raw := strings.TrimPrefix(s, "0x")
	if len(raw) != 2*common.HashLength {
		return Role{}, fmt.Errorf("%w: unknown role %q", wcommon.ErrInvalidArgument, s)
	}

	return Role(common.HexToHash(raw)), nil
}

// Registry tracks role membership and the role-admin hierarchy.
type Registry struct {
	rt      *chain.Runtime
	emitter common.Address

	initialized bool
	members     map[membership]bool
	admins      map[Role]Role
}

func New(rt *chain.Runtime, emitter common.Address) *Registry {
	return &Registry{
		rt:      rt,
		emitter: emitter,
		members: map[membership]bool{},
		admins:  map[Role]Role{},
	}
}

// Initialize grants every role to deployer and wires Upgrader under Admin.
// It succeeds exactly once.
func (r *Registry) Initialize(ctx context.Context, deployer common.Address) error {
	return r.rt.Execute(ctx, func(ctx context.Context) error {
		if r.initialized {
			return wcommon.ErrAlreadyInitialized
		}

		chain.Set(ctx, &r.initialized, true)
		r.setAdmin(ctx, AdminRole, RootAdminRole)
		r.setAdmin(ctx, UpgraderRole, AdminRole)

		for _, role := range []Role{RootAdminRole, AdminRole, UpgraderRole} {
			r.grant(ctx, role, deployer, deployer)
		}

		return nil
	})
}

func (r *Registry) Initialized() bool {
	return r.initialized
}

func (r *Registry) HasRole(role Role, account common.Address) bool {
	return r.members[membership{role, account}]
}

// AdminOf returns the role administering role. Roles without an explicit
// admin fall under RootAdminRole.
func (r *Registry) AdminOf(role Role) Role {
	return r.admins[role]
}

// CheckRole is the capability check every gated operation runs first.
func (r *Registry) CheckRole(caller common.Address, role Role) error {
	if !r.HasRole(role, caller) {
		return fmt.Errorf("%w: %s lacks role %s", wcommon.ErrUnauthorized, caller.Hex(), role)
	}

	return nil
}

func (r *Registry) GrantRole(ctx context.Context, caller common.Address, role Role, account common.Address) error {
	return r.rt.Execute(ctx, func(ctx context.Context) error {
		err := r.CheckRole(caller, r.AdminOf(role))
		if err != nil {
			return err
		}

		r.grant(ctx, role, account, caller)

		return nil
	})
}

func (r *Registry) RevokeRole(ctx context.Context, caller common.Address, role Role, account common.Address) error {
	return r.rt.Execute(ctx, func(ctx context.Context) error {
		err := r.CheckRole(caller, r.AdminOf(role))
		if err != nil {
			return err
		}

		r.revoke(ctx, role, account, caller)

		return nil
	})
}

// RenounceRole drops one of the caller's own roles.
func (r *Registry) RenounceRole(ctx context.Context, caller common.Address, role Role, account common.Address) error {
	return r.rt.Execute(ctx, func(ctx context.Context) error {
		if caller != account {
			return fmt.Errorf("%w: can only renounce roles for self", wcommon.ErrUnauthorized)
		}

		r.revoke(ctx, role, account, caller)

		return nil
	})
}

func (r *Registry) setAdmin(ctx context.Context, role, admin Role) {
	chain.Put(ctx, r.admins, role, admin)
}

func (r *Registry) grant(ctx context.Context, role Role, account, sender common.Address) {
	if r.HasRole(role, account) {
		return
	}

	chain.Put(ctx, r.members, membership{role, account}, true)
	chain.Emit(ctx, r.roleEvent("RoleGranted", role, account, sender))
}

func (r *Registry) revoke(ctx context.Context, role Role, account, sender common.Address) {
	if !r.HasRole(role, account) {
		return
	}

	chain.Put(ctx, r.members, membership{role, account}, false)
	chain.Emit(ctx, r.roleEvent("RoleRevoked", role, account, sender))
}

func (r *Registry) roleEvent(name string, role Role, account, sender common.Address) chain.Event {
	return chain.Event{
		Name:    name,
		Emitter: r.emitter,
		Attributes: map[string]string{
			"role":    role.String(),
			"account": account.Hex(),
			"sender":  sender.Hex(),
		},
	}
}
