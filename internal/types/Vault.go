/*

This file contains the vault ledger types: the per-pool Vault record and the
per-user position. Share conversion math lives here so every caller uses the
same rounding rules.

*/

package types

import (
	"github.com/openyield/yvm/internal/utils"
)

// Vault holds the pooled-asset accounting for a single pool. Shares are a
// proportional claim on TotalAssets; the share price is TotalAssets/TotalShares.
type Vault struct {
	Pool PoolID `json:"pool_id"`
	// Total base units deposited in the vault
	TotalAssets uint64 `json:"total_assets"`
	// Total shares outstanding
	TotalShares uint64 `json:"total_shares"`
	// Vault administrator
	Admin Identity `json:"admin"`
	// Portion of assets deployed to the active strategy (0-100)
	StrategyAllocationPct uint8 `json:"strategy_allocation_pct"`
	// Net yield accrued over the vault's lifetime
	TotalYield uint64 `json:"total_yield"`
	// Performance fees accrued and not yet withdrawn by treasury
	AccumulatedFees uint64 `json:"accumulated_fees"`
	// Number of distinct depositors
	NumUsers uint64 `json:"num_users"`
}

// SharePrice returns assets per share, floored. An empty vault prices shares
// 1:1 so the first depositor sets the baseline.
func (v *Vault) SharePrice() uint64 {
	if v.TotalShares == 0 {
		return 1
	}
	return v.TotalAssets / v.TotalShares
}

// SharesForDeposit returns the shares minted for depositing amount.
// First deposit is 1:1; afterwards floor(amount * TotalShares / TotalAssets).
// ok is false if the intermediate product overflows the conversion.
func (v *Vault) SharesForDeposit(amount uint64) (uint64, bool) {
	if v.TotalShares == 0 {
		return amount, true
	}
	if v.TotalAssets == 0 {
		// Shares exist but assets are zero; minting here would be unbacked.
		return 0, true
	}
	return utils.MulDivU64(amount, v.TotalShares, v.TotalAssets)
}

// AssetsForShares returns the assets redeemable for the given share count,
// floor(shares * TotalAssets / TotalShares). Zero outstanding shares redeem
// nothing.
func (v *Vault) AssetsForShares(shares uint64) (uint64, bool) {
	if v.TotalShares == 0 {
		return 0, true
	}
	return utils.MulDivU64(shares, v.TotalAssets, v.TotalShares)
}

// UserPosition tracks a single user's claim on one pool's vault.
type UserPosition struct {
	User Identity `json:"user"`
	Pool PoolID   `json:"pool_id"`
	// Shares currently owned
	Shares uint64 `json:"shares"`
	// Unix time of the latest deposit. Every deposit resets this, which
	// re-arms the withdrawal time lock for the whole balance.
	DepositTimestamp int64 `json:"deposit_timestamp"`
	// Cumulative amount ever deposited, monotonic
	TotalDeposited uint64 `json:"total_deposited"`
}

// VaultSummary is the read-model served by the web layer.
type VaultSummary struct {
	Pool                  PoolID `json:"pool_id"`
	TotalAssets           uint64 `json:"total_assets"`
	TotalShares           uint64 `json:"total_shares"`
	SharePrice            uint64 `json:"share_price"`
	TotalYield            uint64 `json:"total_yield"`
	AccumulatedFees       uint64 `json:"accumulated_fees"`
	NumUsers              uint64 `json:"num_users"`
	StrategyAllocationPct uint8  `json:"strategy_allocation_pct"`
}
