/*

This file contains the RBAC types: the role bitfield, per-user role records,
and the per-pool role authority with its unrevokable super-admin.

*/

package types

// Role is a bitfield over the four grantable capabilities. Roles combine
// with bitwise OR; a user may hold any subset.
type Role uint8

const (
	// RoleRegularUser can deposit and withdraw
	RoleRegularUser Role = 1 << 0
	// RoleAdmin can harvest, update settings and manage roles
	RoleAdmin Role = 1 << 1
	// RoleStrategyManager can register opportunities and rebalance
	RoleStrategyManager Role = 1 << 2
	// RoleTreasury can withdraw accumulated fees
	RoleTreasury Role = 1 << 3

	// RoleMax is the highest valid bitfield value (all four bits set)
	RoleMax Role = 15
)

// Valid reports whether the value is a non-empty combination inside the
// 4-bit role space.
func (r Role) Valid() bool {
	return r != 0 && r <= RoleMax
}

// UserRole is one user's role assignment for one pool. A zero bitfield is
// equivalent to having no record at all.
type UserRole struct {
	User  Identity `json:"user"`
	Pool  PoolID   `json:"pool_id"`
	Roles Role     `json:"roles"`
	// Unix time of the most recent assign or revoke touching this record
	AssignedAt int64 `json:"assigned_at"`
	// Admin who performed the most recent change
	AssignedBy Identity `json:"assigned_by"`
}

// Has reports whether the record carries any bit in role.
func (u *UserRole) Has(role Role) bool {
	return u.Roles&role != 0
}

// Add merges role into the bitfield. Additive; never clears existing bits.
func (u *UserRole) Add(role Role) {
	u.Roles |= role
}

// Remove clears the given bits, leaving unrelated bits untouched.
func (u *UserRole) Remove(role Role) {
	u.Roles &^= role
}

// RoleAuthority is the per-pool authority record. SuperAdmin is fixed at
// initialization and can never be reassigned or stripped of the Admin bit.
type RoleAuthority struct {
	Pool       PoolID   `json:"pool_id"`
	SuperAdmin Identity `json:"super_admin"`
	Initialized bool    `json:"initialized"`
	// Global kill switch: while set, every affirmative permission check
	// reports no permission, for every role including Admin.
	EmergencyPause bool `json:"emergency_pause"`
}
