/*

This file contains the vault ledger: per-pool share accounting, per-user
positions, the withdrawal time lock, and performance-fee accrual.

All conversions between assets and shares use integer floor division, and
every counter update is checked arithmetic — an overflow fails the whole
operation instead of corrupting a balance. Validation and the external
transfer both complete before any counter is touched, so an error always
leaves the ledger exactly as it was.

*/

package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/openyield/yvm/internal/logger"
	"github.com/openyield/yvm/internal/types"
	"github.com/openyield/yvm/internal/utils"
	"github.com/rs/zerolog"
)

var (
	ErrUnauthorized        = errors.New("only admin can perform this action")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAllocation   = errors.New("invalid strategy allocation")
	ErrTimeLockActive      = errors.New("time lock not satisfied")
	ErrInvalidShares       = errors.New("invalid shares amount")
	ErrOverflow            = errors.New("overflow in calculation")
	ErrNoYield             = errors.New("no yield available to harvest")
	ErrVaultExists         = errors.New("vault already initialized for pool")
	ErrVaultNotFound       = errors.New("vault not found for pool")
	ErrTransferFailed      = errors.New("transfer failed")
)

// TimeLockDuration is how long after the latest deposit a position stays
// locked. Every deposit re-arms the lock for the whole balance.
const TimeLockDuration int64 = 24 * 60 * 60

// DefaultStrategyAllocationPct is the initial portion of assets deployed
// to the active strategy.
const DefaultStrategyAllocationPct uint8 = 50

// performanceFeeDivisor takes a fixed 10% cut of harvested yield.
const performanceFeeDivisor = 10

// Bank moves value between custodial accounts. The ledger treats a failed
// transfer as fatal to the enclosing operation; no counters are updated.
type Bank interface {
	Transfer(from, to types.Identity, amount uint64) error
}

// PermissionChecker is the slice of the permission registry the ledger
// needs for role-gated operations.
type PermissionChecker interface {
	HasRole(pool types.PoolID, user types.Identity, role types.Role) (bool, error)
}

type positionKey struct {
	pool types.PoolID
	user types.Identity
}

// Ledger owns all vault records and user positions, keyed by pool and
// (pool,user).
type Ledger struct {
	mu        sync.RWMutex
	vaults    map[types.PoolID]*types.Vault
	positions map[positionKey]*types.UserPosition
	bank      Bank
	perm      PermissionChecker
	logger    zerolog.Logger
}

// NewLedger creates an empty ledger backed by the given transfer
// collaborator and permission registry.
func NewLedger(bank Bank, perm PermissionChecker) *Ledger {
	return &Ledger{
		vaults:    make(map[types.PoolID]*types.Vault),
		positions: make(map[positionKey]*types.UserPosition),
		bank:      bank,
		perm:      perm,
		logger:    logger.GetForComponent("vault_ledger"),
	}
}

// VaultAccount is the custodial account identity holding a pool's funds.
func VaultAccount(pool types.PoolID) types.Identity {
	return types.Identity(fmt.Sprintf("vault/%d", pool))
}

// Initialize creates the vault record for a pool with zeroed counters and
// the default strategy allocation.
func (l *Ledger) Initialize(pool types.PoolID, admin types.Identity) (*types.Vault, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.vaults[pool]; exists {
		return nil, ErrVaultExists
	}

	vault := &types.Vault{
		Pool:                  pool,
		Admin:                 admin,
		StrategyAllocationPct: DefaultStrategyAllocationPct,
	}
	l.vaults[pool] = vault

	l.logger.Info().
		Uint64("pool", uint64(pool)).
		Str("admin", string(admin)).
		Msg("Vault initialized")
	return vault, nil
}

// Deposit converts amount into shares at the current share price and mints
// them to the caller. A deposit so small that it rounds down to zero shares
// is rejected rather than silently diluting the depositor.
func (l *Ledger) Deposit(pool types.PoolID, user types.Identity, amount uint64, now int64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	vault, exists := l.vaults[pool]
	if !exists {
		return 0, ErrVaultNotFound
	}

	shares, ok := vault.SharesForDeposit(amount)
	if !ok {
		return 0, ErrOverflow
	}
	if shares == 0 {
		return 0, ErrInvalidShares
	}

	newAssets, ok := utils.AddU64(vault.TotalAssets, amount)
	if !ok {
		return 0, ErrOverflow
	}
	newShares, ok := utils.AddU64(vault.TotalShares, shares)
	if !ok {
		return 0, ErrOverflow
	}

	key := positionKey{pool, user}
	position, hasPosition := l.positions[key]

	var newDeposited, newPositionShares, newNumUsers uint64
	if hasPosition && position.Shares > 0 {
		newDeposited, ok = utils.AddU64(position.TotalDeposited, amount)
		if !ok {
			return 0, ErrOverflow
		}
		newPositionShares, ok = utils.AddU64(position.Shares, shares)
		if !ok {
			return 0, ErrOverflow
		}
		newNumUsers = vault.NumUsers
	} else {
		newDeposited = amount
		newPositionShares = shares
		newNumUsers, ok = utils.AddU64(vault.NumUsers, 1)
		if !ok {
			return 0, ErrOverflow
		}
	}

	if err := l.bank.Transfer(user, VaultAccount(pool), amount); err != nil {
		return 0, errors.Join(ErrTransferFailed, err)
	}

	vault.TotalAssets = newAssets
	vault.TotalShares = newShares
	vault.NumUsers = newNumUsers

	if !hasPosition {
		position = &types.UserPosition{User: user, Pool: pool}
		l.positions[key] = position
	}
	position.Shares = newPositionShares
	position.TotalDeposited = newDeposited
	// Re-arms the time lock for the entire balance, not just this deposit.
	position.DepositTimestamp = now

	l.logger.Info().
		Uint64("pool", uint64(pool)).
		Str("user", string(user)).
		Uint64("amount", amount).
		Uint64("shares", shares).
		Msg("Deposit accepted")
	return shares, nil
}

// Withdraw burns shares and returns the proportional assets, provided the
// time lock has elapsed and the caller owns enough shares.
func (l *Ledger) Withdraw(pool types.PoolID, user types.Identity, shares uint64, now int64) (uint64, error) {
	if shares == 0 {
		return 0, ErrInvalidShares
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	vault, exists := l.vaults[pool]
	if !exists {
		return 0, ErrVaultNotFound
	}
	position, exists := l.positions[positionKey{pool, user}]
	if !exists {
		return 0, ErrInsufficientBalance
	}

	// A clock running behind the deposit timestamp is accounting corruption,
	// not a time lock condition.
	elapsed := now - position.DepositTimestamp
	if elapsed < 0 {
		return 0, ErrOverflow
	}
	if elapsed < TimeLockDuration {
		return 0, ErrTimeLockActive
	}

	if shares > position.Shares {
		return 0, ErrInsufficientBalance
	}

	assets, ok := vault.AssetsForShares(shares)
	if !ok {
		return 0, ErrOverflow
	}
	if assets == 0 {
		return 0, ErrInvalidAmount
	}

	newAssets, ok := utils.SubU64(vault.TotalAssets, assets)
	if !ok {
		return 0, ErrOverflow
	}
	newShares, ok := utils.SubU64(vault.TotalShares, shares)
	if !ok {
		return 0, ErrOverflow
	}
	newPositionShares, ok := utils.SubU64(position.Shares, shares)
	if !ok {
		return 0, ErrOverflow
	}

	if err := l.bank.Transfer(VaultAccount(pool), user, assets); err != nil {
		return 0, errors.Join(ErrTransferFailed, err)
	}

	vault.TotalAssets = newAssets
	vault.TotalShares = newShares
	position.Shares = newPositionShares

	l.logger.Info().
		Uint64("pool", uint64(pool)).
		Str("user", string(user)).
		Uint64("shares", shares).
		Uint64("assets", assets).
		Msg("Withdrawal completed")
	return assets, nil
}

// Harvest realizes external yield into the vault: a fixed 10% performance
// fee is carved off, and the net remainder raises TotalAssets without
// minting shares — this is what lifts the share price for every holder.
// Returns (netYield, fee).
func (l *Ledger) Harvest(pool types.PoolID, caller types.Identity, yieldAmount uint64) (uint64, uint64, error) {
	if yieldAmount == 0 {
		return 0, 0, ErrNoYield
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	vault, exists := l.vaults[pool]
	if !exists {
		return 0, 0, ErrVaultNotFound
	}
	if !l.callerIsAdmin(vault, caller) {
		return 0, 0, ErrUnauthorized
	}

	fee := yieldAmount / performanceFeeDivisor
	netYield, ok := utils.SubU64(yieldAmount, fee)
	if !ok {
		return 0, 0, ErrOverflow
	}

	newYield, ok := utils.AddU64(vault.TotalYield, netYield)
	if !ok {
		return 0, 0, ErrOverflow
	}
	newFees, ok := utils.AddU64(vault.AccumulatedFees, fee)
	if !ok {
		return 0, 0, ErrOverflow
	}
	newAssets, ok := utils.AddU64(vault.TotalAssets, netYield)
	if !ok {
		return 0, 0, ErrOverflow
	}

	vault.TotalYield = newYield
	vault.AccumulatedFees = newFees
	vault.TotalAssets = newAssets

	l.logger.Info().
		Uint64("pool", uint64(pool)).
		Uint64("yield", yieldAmount).
		Uint64("net", netYield).
		Uint64("fee", fee).
		Msg("Yield harvested")
	return netYield, fee, nil
}

// WithdrawFees pays out the accumulated performance fees to the caller,
// who must hold the Treasury role.
func (l *Ledger) WithdrawFees(pool types.PoolID, caller types.Identity) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	vault, exists := l.vaults[pool]
	if !exists {
		return 0, ErrVaultNotFound
	}

	isTreasury, err := l.perm.HasRole(pool, caller, types.RoleTreasury)
	if err != nil {
		return 0, err
	}
	if !isTreasury {
		return 0, ErrUnauthorized
	}

	if vault.AccumulatedFees == 0 {
		return 0, ErrInvalidAmount
	}
	feeAmount := vault.AccumulatedFees

	if err := l.bank.Transfer(VaultAccount(pool), caller, feeAmount); err != nil {
		return 0, errors.Join(ErrTransferFailed, err)
	}

	vault.AccumulatedFees = 0

	l.logger.Info().
		Uint64("pool", uint64(pool)).
		Str("treasury", string(caller)).
		Uint64("amount", feeAmount).
		Msg("Fees withdrawn")
	return feeAmount, nil
}

// UpdateSettings changes the strategy allocation percentage. A nil value
// leaves the setting untouched.
func (l *Ledger) UpdateSettings(pool types.PoolID, caller types.Identity, allocationPct *uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	vault, exists := l.vaults[pool]
	if !exists {
		return ErrVaultNotFound
	}
	if !l.callerIsAdmin(vault, caller) {
		return ErrUnauthorized
	}

	if allocationPct != nil {
		if *allocationPct > 100 {
			return ErrInvalidAllocation
		}
		vault.StrategyAllocationPct = *allocationPct

		l.logger.Info().
			Uint64("pool", uint64(pool)).
			Uint8("allocationPct", *allocationPct).
			Msg("Strategy allocation updated")
	}
	return nil
}

// Vault returns a copy of the pool's vault record.
func (l *Ledger) Vault(pool types.PoolID) (types.Vault, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	vault, exists := l.vaults[pool]
	if !exists {
		return types.Vault{}, ErrVaultNotFound
	}
	return *vault, nil
}

// Position returns a copy of the user's position. Users without one get a
// zero-balance position.
func (l *Ledger) Position(pool types.PoolID, user types.Identity) (types.UserPosition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, exists := l.vaults[pool]; !exists {
		return types.UserPosition{}, ErrVaultNotFound
	}
	position, exists := l.positions[positionKey{pool, user}]
	if !exists {
		return types.UserPosition{User: user, Pool: pool}, nil
	}
	return *position, nil
}

// Summary returns the read-model for the web layer.
func (l *Ledger) Summary(pool types.PoolID) (types.VaultSummary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	vault, exists := l.vaults[pool]
	if !exists {
		return types.VaultSummary{}, ErrVaultNotFound
	}
	return types.VaultSummary{
		Pool:                  pool,
		TotalAssets:           vault.TotalAssets,
		TotalShares:           vault.TotalShares,
		SharePrice:            vault.SharePrice(),
		TotalYield:            vault.TotalYield,
		AccumulatedFees:       vault.AccumulatedFees,
		NumUsers:              vault.NumUsers,
		StrategyAllocationPct: vault.StrategyAllocationPct,
	}, nil
}

// callerIsAdmin accepts the vault's recorded admin directly, or any holder
// of the Admin role bit. A paused or uninitialized permission registry
// grants nothing beyond the recorded admin.
func (l *Ledger) callerIsAdmin(vault *types.Vault, caller types.Identity) bool {
	if caller == vault.Admin {
		return true
	}
	if l.perm == nil {
		return false
	}
	ok, err := l.perm.HasRole(vault.Pool, caller, types.RoleAdmin)
	return err == nil && ok
}
