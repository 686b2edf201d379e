/*

This file contains the permission registry: per-pool role authorities and
per-(pool,user) role bitfields. Every mutating operation in the ledger and
strategy registries consults this component before touching its own state.

Two invariants are load-bearing and enforced here:
  - the super-admin fixed at initialization always holds the Admin bit and
    no revoke path can clear it, including the super-admin revoking itself;
  - the emergency pause suppresses every affirmative permission check before
    any role bit is consulted, so no role bypasses it.

*/

package rbac

import (
	"errors"
	"sync"

	"github.com/openyield/yvm/internal/logger"
	"github.com/openyield/yvm/internal/types"
	"github.com/rs/zerolog"
)

var (
	ErrUnauthorized           = errors.New("caller does not have the required role")
	ErrInvalidRole            = errors.New("invalid role value")
	ErrCannotRevokeSuperAdmin = errors.New("cannot revoke super admin role")
	ErrMustHaveAdmin          = errors.New("must maintain at least one admin")
	ErrAlreadyInitialized     = errors.New("role authority already initialized")
	ErrNotInitialized         = errors.New("role authority not initialized")
	ErrEmergencyPaused        = errors.New("system is under emergency pause")
)

type roleKey struct {
	pool types.PoolID
	user types.Identity
}

// Registry owns all role authorities and user role records, keyed by pool
// and (pool,user). Access is serialized per registry; operations never span
// pools.
type Registry struct {
	mu          sync.RWMutex
	authorities map[types.PoolID]*types.RoleAuthority
	roles       map[roleKey]*types.UserRole
	logger      zerolog.Logger
}

// NewRegistry creates an empty permission registry.
func NewRegistry() *Registry {
	return &Registry{
		authorities: make(map[types.PoolID]*types.RoleAuthority),
		roles:       make(map[roleKey]*types.UserRole),
		logger:      logger.GetForComponent("rbac_registry"),
	}
}

// InitializeAuthority creates the role authority for a pool, records the
// caller as the permanent super-admin and grants them the Admin bit. Fails
// with ErrAlreadyInitialized on a second call for the same pool.
func (r *Registry) InitializeAuthority(pool types.PoolID, caller types.Identity, now int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.authorities[pool]; exists {
		return ErrAlreadyInitialized
	}

	r.authorities[pool] = &types.RoleAuthority{
		Pool:           pool,
		SuperAdmin:     caller,
		Initialized:    true,
		EmergencyPause: false,
	}
	r.roles[roleKey{pool, caller}] = &types.UserRole{
		User:       caller,
		Pool:       pool,
		Roles:      types.RoleAdmin,
		AssignedAt: now,
		AssignedBy: caller,
	}

	r.logger.Info().
		Uint64("pool", uint64(pool)).
		Str("superAdmin", string(caller)).
		Msg("Role authority initialized")
	return nil
}

// AssignRole merges role into the target's bitfield, creating the record if
// absent. Only holders of the Admin bit may assign, and nothing is assigned
// while the pool is paused.
func (r *Registry) AssignRole(pool types.PoolID, caller, target types.Identity, role types.Role, now int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.checkAdminGate(pool, caller); err != nil {
		return err
	}
	if !role.Valid() {
		return ErrInvalidRole
	}

	key := roleKey{pool, target}
	record, exists := r.roles[key]
	if !exists {
		record = &types.UserRole{
			User:  target,
			Pool:  pool,
			Roles: role,
		}
		r.roles[key] = record
	} else {
		record.Add(role)
	}
	record.AssignedAt = now
	record.AssignedBy = caller

	r.logger.Info().
		Uint64("pool", uint64(pool)).
		Str("target", string(target)).
		Uint8("role", uint8(role)).
		Uint8("roles", uint8(record.Roles)).
		Str("assignedBy", string(caller)).
		Msg("Role assigned")
	return nil
}

// RevokeRole clears the given bits from the target's bitfield. The
// super-admin's Admin bit is protected twice: the revoke is rejected up
// front, and the resulting bitfield is re-checked before committing so the
// designated super-admin can never end up without Admin.
func (r *Registry) RevokeRole(pool types.PoolID, caller, target types.Identity, role types.Role, now int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	authority, err := r.checkAdminGate(pool, caller)
	if err != nil {
		return err
	}
	if !role.Valid() {
		return ErrInvalidRole
	}

	if target == authority.SuperAdmin && role&types.RoleAdmin != 0 {
		return ErrCannotRevokeSuperAdmin
	}

	record, exists := r.roles[roleKey{pool, target}]
	if !exists {
		// Nothing to clear; treated as a no-op revoke of a zero bitfield.
		return nil
	}

	// Compute the result before committing so a violated invariant leaves
	// the record exactly as it was.
	newRoles := record.Roles &^ role
	if role&types.RoleAdmin != 0 && target == authority.SuperAdmin && newRoles&types.RoleAdmin == 0 {
		return ErrMustHaveAdmin
	}

	record.Roles = newRoles
	record.AssignedAt = now
	record.AssignedBy = caller

	r.logger.Info().
		Uint64("pool", uint64(pool)).
		Str("target", string(target)).
		Uint8("role", uint8(role)).
		Uint8("roles", uint8(record.Roles)).
		Str("revokedBy", string(caller)).
		Msg("Role revoked")
	return nil
}

// HasRole reports whether user holds any of the queried bits. While the
// pool is paused this returns false regardless of the stored bitfield; the
// underlying records are untouched and reappear once unpaused.
func (r *Registry) HasRole(pool types.PoolID, user types.Identity, role types.Role) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authority, exists := r.authorities[pool]
	if !exists || !authority.Initialized {
		return false, ErrNotInitialized
	}
	if authority.EmergencyPause {
		return false, nil
	}

	record, exists := r.roles[roleKey{pool, user}]
	if !exists {
		return false, nil
	}
	return record.Has(role), nil
}

// ToggleEmergencyPause flips the pool's pause switch. Only the recorded
// super-admin may call this; Admin role holders cannot.
func (r *Registry) ToggleEmergencyPause(pool types.PoolID, caller types.Identity) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	authority, exists := r.authorities[pool]
	if !exists || !authority.Initialized {
		return false, ErrNotInitialized
	}
	if caller != authority.SuperAdmin {
		return false, ErrUnauthorized
	}

	authority.EmergencyPause = !authority.EmergencyPause

	r.logger.Warn().
		Uint64("pool", uint64(pool)).
		Bool("paused", authority.EmergencyPause).
		Msg("Emergency pause toggled")
	return authority.EmergencyPause, nil
}

// Authority returns a copy of the pool's authority record.
func (r *Registry) Authority(pool types.PoolID) (types.RoleAuthority, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authority, exists := r.authorities[pool]
	if !exists || !authority.Initialized {
		return types.RoleAuthority{}, ErrNotInitialized
	}
	return *authority, nil
}

// Roles returns a copy of the user's role record for the pool. A missing
// record comes back as a zero bitfield, which is equivalent.
func (r *Registry) Roles(pool types.PoolID, user types.Identity) (types.UserRole, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if authority, exists := r.authorities[pool]; !exists || !authority.Initialized {
		return types.UserRole{}, ErrNotInitialized
	}
	record, exists := r.roles[roleKey{pool, user}]
	if !exists {
		return types.UserRole{User: user, Pool: pool}, nil
	}
	return *record, nil
}

// checkAdminGate runs the shared assign/revoke gating: the authority must
// exist, the pool must not be paused, and the caller must hold the Admin
// bit. The pause check precedes the role check so no role, Admin included,
// can act through a pause.
func (r *Registry) checkAdminGate(pool types.PoolID, caller types.Identity) (*types.RoleAuthority, error) {
	authority, exists := r.authorities[pool]
	if !exists || !authority.Initialized {
		return nil, ErrNotInitialized
	}
	if authority.EmergencyPause {
		return nil, ErrEmergencyPaused
	}
	callerRecord, exists := r.roles[roleKey{pool, caller}]
	if !exists || !callerRecord.Has(types.RoleAdmin) {
		return nil, ErrUnauthorized
	}
	return authority, nil
}
