/*

This file contains a mock lending integration: simple interest accrues on
the deployed amount as a function of elapsed time. No impermanent loss and
no volatility, which is what differentiates it from the AMM venue when the
two are scored against each other.

*/

package sim

import (
	"github.com/openyield/yvm/internal/types"
	"github.com/openyield/yvm/internal/utils"
)

const secondsPerYear = 365 * 24 * 60 * 60

// MockLending simulates supplying to a lending market.
type MockLending struct {
	// ProtocolID identifies this venue to the strategy registry
	ProtocolID string
	// Deployed principal
	Deposited uint64
	// Interest accrued and not yet collected
	InterestEarned uint64
	// Annual rate as percentage x100 (1050 = 10.50%)
	AnnualRate uint16
	// Unix time of the latest deposit
	DepositTimestamp int64
	// Protocol safety rating (0-100)
	SafetyScore uint8
}

// NewMockLending creates a lending venue with the given annual rate.
func NewMockLending(protocolID string, annualRate uint16, safetyScore uint8) *MockLending {
	return &MockLending{
		ProtocolID:  protocolID,
		AnnualRate:  annualRate,
		SafetyScore: safetyScore,
	}
}

// Deposit supplies principal at the given time.
func (l *MockLending) Deposit(amount uint64, timestamp int64) error {
	if amount == 0 {
		return ErrInvalidDeposit
	}

	deposited, ok := utils.AddU64(l.Deposited, amount)
	if !ok {
		return ErrSimOverflow
	}
	l.Deposited = deposited
	l.DepositTimestamp = timestamp
	return nil
}

// Withdraw removes principal.
func (l *MockLending) Withdraw(amount uint64) (uint64, error) {
	if amount > l.Deposited {
		return 0, ErrInsufficientDeposit
	}
	l.Deposited -= amount
	return amount, nil
}

// CalculateInterest returns the simple interest accrued between the
// deposit time and now: principal * rate * elapsed / (10000 * year),
// where rate is percentage x100.
func (l *MockLending) CalculateInterest(now int64) uint64 {
	if l.Deposited == 0 || now <= l.DepositTimestamp {
		return 0
	}

	elapsed := uint64(now - l.DepositTimestamp)
	scaled, ok := utils.MulDivU64(l.Deposited, uint64(l.AnnualRate), 10_000)
	if !ok {
		return 0
	}
	interest, ok := utils.MulDivU64(scaled, elapsed, secondsPerYear)
	if !ok {
		return 0
	}
	return interest
}

// AccrueInterest brings the earned-interest counter up to now.
func (l *MockLending) AccrueInterest(now int64) {
	accrued := l.CalculateInterest(now)
	if accrued > l.InterestEarned {
		l.InterestEarned = accrued
	}
}

// CollectYield drains the accrued interest, resetting the accrual window.
func (l *MockLending) CollectYield(now int64) uint64 {
	l.AccrueInterest(now)
	collected := l.InterestEarned
	l.InterestEarned = 0
	l.DepositTimestamp = now
	return collected
}

// Balance is principal plus accrued interest.
func (l *MockLending) Balance() uint64 {
	if balance, ok := utils.AddU64(l.Deposited, l.InterestEarned); ok {
		return balance
	}
	return 1<<64 - 1
}

// Metrics reports the venue's scoring inputs. Lending carries no IL and
// low volatility by construction.
func (l *MockLending) Metrics() types.OpportunityMetrics {
	return types.OpportunityMetrics{
		APY:         l.AnnualRate,
		Volatility:  10,
		ILRisk:      0,
		SafetyScore: l.SafetyScore,
	}
}
