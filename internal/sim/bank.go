/*

This file contains an in-memory bank implementing the ledger's transfer
collaborator. Accounts are created on first credit; a debit past the
account's balance fails the transfer, which the ledger treats as fatal to
the enclosing operation.

*/

package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/openyield/yvm/internal/types"
	"github.com/openyield/yvm/internal/utils"
)

var ErrInsufficientFunds = errors.New("insufficient funds for transfer")

// Bank is an in-memory account store with atomic transfers.
type Bank struct {
	mu       sync.Mutex
	balances map[types.Identity]uint64
}

// NewBank creates a bank preloaded with the given balances.
func NewBank(initial map[types.Identity]uint64) *Bank {
	balances := make(map[types.Identity]uint64, len(initial))
	for account, balance := range initial {
		balances[account] = balance
	}
	return &Bank{balances: balances}
}

// Transfer moves amount from one account to another, atomically.
func (b *Bank) Transfer(from, to types.Identity, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fromBalance := b.balances[from]
	if fromBalance < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, fromBalance, amount)
	}
	toBalance, ok := utils.AddU64(b.balances[to], amount)
	if !ok {
		return fmt.Errorf("credit overflow on %s", to)
	}

	b.balances[from] = fromBalance - amount
	b.balances[to] = toBalance
	return nil
}

// Credit mints amount into an account. Used to seed yield realized by the
// protocol simulators.
func (b *Bank) Credit(account types.Identity, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	balance, ok := utils.AddU64(b.balances[account], amount)
	if !ok {
		return fmt.Errorf("credit overflow on %s", account)
	}
	b.balances[account] = balance
	return nil
}

// Balance returns an account's balance; missing accounts hold zero.
func (b *Bank) Balance(account types.Identity) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account]
}
