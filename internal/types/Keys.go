/*

This file contains the key types that scope every record in the system.

*/

package types

// Identity is an authenticated principal. The surrounding transport layer is
// responsible for verifying signatures before an Identity reaches the core;
// the core treats it as already proven.
type Identity string

// Zero reports whether the identity is unset.
func (id Identity) Zero() bool {
	return id == ""
}

// PoolID identifies the pool that vault, strategy and role records are
// scoped to. Each pool's state is fully independent of every other pool's.
type PoolID uint64
