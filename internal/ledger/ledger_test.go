package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openyield/yvm/internal/types"
)

const testPool = types.PoolID(1)

const (
	admin    = types.Identity("admin")
	alice    = types.Identity("alice")
	bob      = types.Identity("bob")
	treasury = types.Identity("treasury")
)

// fakeBank records transfers and can be told to fail the next one.
type fakeBank struct {
	transfers []transfer
	failNext  error
}

type transfer struct {
	from, to types.Identity
	amount   uint64
}

func (b *fakeBank) Transfer(from, to types.Identity, amount uint64) error {
	if b.failNext != nil {
		err := b.failNext
		b.failNext = nil
		return err
	}
	b.transfers = append(b.transfers, transfer{from, to, amount})
	return nil
}

// fakePerm grants roles from a static map.
type fakePerm struct {
	grants map[types.Identity]types.Role
	err    error
}

func (p *fakePerm) HasRole(pool types.PoolID, user types.Identity, role types.Role) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	return p.grants[user]&role != 0, nil
}

func newTestLedger(t *testing.T) (*Ledger, *fakeBank, *fakePerm) {
	t.Helper()
	bank := &fakeBank{}
	perm := &fakePerm{grants: map[types.Identity]types.Role{
		admin:    types.RoleAdmin,
		treasury: types.RoleTreasury,
	}}
	l := NewLedger(bank, perm)
	_, err := l.Initialize(testPool, admin)
	require.NoError(t, err)
	return l, bank, perm
}

func TestInitialize(t *testing.T) {
	l, _, _ := newTestLedger(t)

	vault, err := l.Vault(testPool)
	require.NoError(t, err)
	assert.Equal(t, admin, vault.Admin)
	assert.Equal(t, uint64(0), vault.TotalAssets)
	assert.Equal(t, uint64(0), vault.TotalShares)
	assert.Equal(t, DefaultStrategyAllocationPct, vault.StrategyAllocationPct)

	_, err = l.Initialize(testPool, admin)
	assert.ErrorIs(t, err, ErrVaultExists)
}

func TestFirstDepositMintsOneToOne(t *testing.T) {
	l, bank, _ := newTestLedger(t)

	shares, err := l.Deposit(testPool, alice, 1000, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), shares)

	vault, err := l.Vault(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), vault.TotalAssets)
	assert.Equal(t, uint64(1000), vault.TotalShares)
	assert.Equal(t, uint64(1), vault.NumUsers)
	assert.Equal(t, uint64(1), vault.SharePrice())

	require.Len(t, bank.transfers, 1)
	assert.Equal(t, alice, bank.transfers[0].from)
	assert.Equal(t, VaultAccount(testPool), bank.transfers[0].to)
	assert.Equal(t, uint64(1000), bank.transfers[0].amount)
}

func TestDepositProportionalShares(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.Deposit(testPool, alice, 1000, 100)
	require.NoError(t, err)

	// Double the assets without minting: share price rises to 2.
	_, _, err = l.Harvest(testPool, admin, 1111)
	require.NoError(t, err)

	// Bob's 500 buys floor(500 * 1000 / 2000) = 250 shares.
	shares, err := l.Deposit(testPool, bob, 500, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), shares)

	vault, err := l.Vault(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), vault.NumUsers)
}

func TestDepositRejectsZeroAmount(t *testing.T) {
	l, _, _ := newTestLedger(t)
	_, err := l.Deposit(testPool, alice, 0, 100)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDepositRejectsZeroShareMint(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.Deposit(testPool, alice, 10, 100)
	require.NoError(t, err)

	// Lift the share price well above the deposit so it rounds to zero shares.
	_, _, err = l.Harvest(testPool, admin, 1112)
	require.NoError(t, err)

	_, err = l.Deposit(testPool, bob, 1, 200)
	assert.ErrorIs(t, err, ErrInvalidShares)

	// Nothing was committed for the rejected deposit.
	vault, err := l.Vault(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), vault.NumUsers)
}

func TestDepositFailedTransferLeavesStateUntouched(t *testing.T) {
	l, bank, _ := newTestLedger(t)

	bank.failNext = errors.New("bank offline")
	_, err := l.Deposit(testPool, alice, 1000, 100)
	assert.ErrorIs(t, err, ErrTransferFailed)

	vault, err := l.Vault(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), vault.TotalAssets)
	assert.Equal(t, uint64(0), vault.TotalShares)
	assert.Equal(t, uint64(0), vault.NumUsers)
}

func TestWithdrawTimeLock(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.Deposit(testPool, alice, 1000, 100)
	require.NoError(t, err)

	// One second before the lock expires.
	_, err = l.Withdraw(testPool, alice, 1000, 100+TimeLockDuration-1)
	assert.ErrorIs(t, err, ErrTimeLockActive)

	// Exactly at expiry.
	assets, err := l.Withdraw(testPool, alice, 1000, 100+TimeLockDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), assets)
}

func TestDepositReArmsTimeLock(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.Deposit(testPool, alice, 1000, 100)
	require.NoError(t, err)

	// A later deposit re-locks the whole balance.
	_, err = l.Deposit(testPool, alice, 10, 100+TimeLockDuration)
	require.NoError(t, err)

	_, err = l.Withdraw(testPool, alice, 1000, 100+2*TimeLockDuration-1)
	assert.ErrorIs(t, err, ErrTimeLockActive)

	_, err = l.Withdraw(testPool, alice, 1000, 100+2*TimeLockDuration)
	assert.NoError(t, err)
}

func TestWithdrawClockRegressionFails(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.Deposit(testPool, alice, 1000, 100)
	require.NoError(t, err)

	_, err = l.Withdraw(testPool, alice, 1000, 99)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestWithdrawValidation(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.Deposit(testPool, alice, 1000, 100)
	require.NoError(t, err)
	unlocked := 100 + TimeLockDuration

	_, err = l.Withdraw(testPool, alice, 0, unlocked)
	assert.ErrorIs(t, err, ErrInvalidShares)

	_, err = l.Withdraw(testPool, alice, 1001, unlocked)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = l.Withdraw(testPool, bob, 1, unlocked)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestWithdrawRoundTrip(t *testing.T) {
	l, bank, _ := newTestLedger(t)

	shares, err := l.Deposit(testPool, alice, 12345, 100)
	require.NoError(t, err)

	assets, err := l.Withdraw(testPool, alice, shares, 100+TimeLockDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), assets)

	vault, err := l.Vault(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), vault.TotalAssets)
	assert.Equal(t, uint64(0), vault.TotalShares)

	require.Len(t, bank.transfers, 2)
	assert.Equal(t, VaultAccount(testPool), bank.transfers[1].from)
	assert.Equal(t, alice, bank.transfers[1].to)
}

func TestHarvestFeeSplit(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.Deposit(testPool, alice, 1000, 100)
	require.NoError(t, err)

	net, fee, err := l.Harvest(testPool, admin, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), net)
	assert.Equal(t, uint64(100), fee)

	vault, err := l.Vault(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint64(1900), vault.TotalAssets)
	assert.Equal(t, uint64(1000), vault.TotalShares)
	assert.Equal(t, uint64(900), vault.TotalYield)
	assert.Equal(t, uint64(100), vault.AccumulatedFees)
	assert.Equal(t, uint64(1), vault.SharePrice()) // floor(1900/1000)
}

func TestHarvestSmallYieldRoundsFeeToZero(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.Deposit(testPool, alice, 1000, 100)
	require.NoError(t, err)

	net, fee, err := l.Harvest(testPool, admin, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), net)
	assert.Equal(t, uint64(0), fee)
}

func TestHarvestAuthorization(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.Deposit(testPool, alice, 1000, 100)
	require.NoError(t, err)

	_, _, err = l.Harvest(testPool, alice, 100)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, _, err = l.Harvest(testPool, admin, 0)
	assert.ErrorIs(t, err, ErrNoYield)
}

func TestSharePriceNeverDecreasesOnHarvest(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.Deposit(testPool, alice, 1000, 100)
	require.NoError(t, err)

	prev := uint64(0)
	for i := 0; i < 5; i++ {
		_, _, err := l.Harvest(testPool, admin, 500)
		require.NoError(t, err)
		vault, err := l.Vault(testPool)
		require.NoError(t, err)
		price := vault.SharePrice()
		assert.GreaterOrEqual(t, price, prev)
		prev = price
	}
}

func TestWithdrawFees(t *testing.T) {
	l, bank, _ := newTestLedger(t)

	_, err := l.Deposit(testPool, alice, 1000, 100)
	require.NoError(t, err)
	_, _, err = l.Harvest(testPool, admin, 1000)
	require.NoError(t, err)

	// Only the Treasury role may collect.
	_, err = l.WithdrawFees(testPool, admin)
	assert.ErrorIs(t, err, ErrUnauthorized)

	amount, err := l.WithdrawFees(testPool, treasury)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), amount)

	last := bank.transfers[len(bank.transfers)-1]
	assert.Equal(t, VaultAccount(testPool), last.from)
	assert.Equal(t, treasury, last.to)

	// Fees are zeroed; a second collection has nothing to pay.
	_, err = l.WithdrawFees(testPool, treasury)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestWithdrawFeesPropagatesPermissionError(t *testing.T) {
	l, _, perm := newTestLedger(t)

	_, err := l.Deposit(testPool, alice, 1000, 100)
	require.NoError(t, err)
	_, _, err = l.Harvest(testPool, admin, 1000)
	require.NoError(t, err)

	permErr := errors.New("registry unavailable")
	perm.err = permErr
	_, err = l.WithdrawFees(testPool, treasury)
	assert.ErrorIs(t, err, permErr)
}

func TestUpdateSettings(t *testing.T) {
	l, _, _ := newTestLedger(t)

	pct := uint8(80)
	require.NoError(t, l.UpdateSettings(testPool, admin, &pct))

	vault, err := l.Vault(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint8(80), vault.StrategyAllocationPct)

	// Nil leaves the setting untouched.
	require.NoError(t, l.UpdateSettings(testPool, admin, nil))
	vault, err = l.Vault(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint8(80), vault.StrategyAllocationPct)

	bad := uint8(101)
	assert.ErrorIs(t, l.UpdateSettings(testPool, admin, &bad), ErrInvalidAllocation)
	assert.ErrorIs(t, l.UpdateSettings(testPool, alice, &pct), ErrUnauthorized)
}

func TestVaultNotFound(t *testing.T) {
	l, _, _ := newTestLedger(t)
	missing := types.PoolID(99)

	_, err := l.Deposit(missing, alice, 100, 100)
	assert.ErrorIs(t, err, ErrVaultNotFound)
	_, err = l.Withdraw(missing, alice, 100, 100)
	assert.ErrorIs(t, err, ErrVaultNotFound)
	_, _, err = l.Harvest(missing, admin, 100)
	assert.ErrorIs(t, err, ErrVaultNotFound)
	_, err = l.Summary(missing)
	assert.ErrorIs(t, err, ErrVaultNotFound)
}

func TestSummary(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.Deposit(testPool, alice, 1000, 100)
	require.NoError(t, err)
	_, _, err = l.Harvest(testPool, admin, 1000)
	require.NoError(t, err)

	summary, err := l.Summary(testPool)
	require.NoError(t, err)
	assert.Equal(t, testPool, summary.Pool)
	assert.Equal(t, uint64(1900), summary.TotalAssets)
	assert.Equal(t, uint64(1000), summary.TotalShares)
	assert.Equal(t, uint64(900), summary.TotalYield)
	assert.Equal(t, uint64(100), summary.AccumulatedFees)
	assert.Equal(t, uint64(1), summary.NumUsers)
}
