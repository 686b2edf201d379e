/*

This file contains the record types persisted by the state package:
per-cycle vault snapshots, executed rebalance decisions, and the role
change audit trail.

*/

package types

import "time"

// CycleSnapshot captures the vault and strategy state observed during a
// single keeper cycle.
type CycleSnapshot struct {
	SnapshotID int64     `json:"snapshot_id"`
	CycleID    string    `json:"cycle_id"`
	Pool       PoolID    `json:"pool_id"`
	Timestamp  time.Time `json:"timestamp"`

	// Vault accounting at the time of the snapshot.
	TotalAssets     uint64 `json:"total_assets"`
	TotalShares     uint64 `json:"total_shares"`
	SharePrice      uint64 `json:"share_price"`
	TotalYield      uint64 `json:"total_yield"`
	AccumulatedFees uint64 `json:"accumulated_fees"`
	NumUsers        uint64 `json:"num_users"`

	// Strategy state.
	CurrentOpportunity uint8  `json:"current_opportunity"`
	BestOpportunity    uint8  `json:"best_opportunity"`
	CurrentScore       uint16 `json:"current_score"`
	BestScore          uint16 `json:"best_score"`
	HarvestedYield     uint64 `json:"harvested_yield"`
	Rebalanced         bool   `json:"rebalanced"`
}

// RebalanceRecord is a persisted rebalance decision.
type RebalanceRecord struct {
	RecordID     int64     `json:"record_id"`
	CycleID      string    `json:"cycle_id"`
	Pool         PoolID    `json:"pool_id"`
	FromIndex    uint8     `json:"from_index"`
	ToIndex      uint8     `json:"to_index"`
	FromProtocol string    `json:"from_protocol"`
	ToProtocol   string    `json:"to_protocol"`
	FromScore    uint16    `json:"from_score"`
	ToScore      uint16    `json:"to_score"`
	DecidedAt    time.Time `json:"decided_at"`
}

// RoleAuditEntry records a single role assignment, revocation, or pause
// toggle for later review.
type RoleAuditEntry struct {
	EntryID   int64     `json:"entry_id"`
	Pool      PoolID    `json:"pool_id"`
	Actor     Identity  `json:"actor"`
	Subject   Identity  `json:"subject"`
	Role      Role      `json:"role"`
	Action    string    `json:"action"` // "assign", "revoke", "pause", "unpause"
	Timestamp time.Time `json:"timestamp"`
}
