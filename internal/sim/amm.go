/*

This file contains a mock AMM integration. It stands in for a real
liquidity-pool protocol: swap fees accrue on the deployed amount and a
simplified impermanent-loss model eats into the position as volatility
rises. The keeper uses it as a yield source and as a metrics feed for the
strategy registry.

*/

package sim

import (
	"errors"

	"github.com/openyield/yvm/internal/types"
	"github.com/openyield/yvm/internal/utils"
)

var (
	ErrInvalidDeposit      = errors.New("deposit amount must be greater than zero")
	ErrInsufficientDeposit = errors.New("insufficient deposited balance")
	ErrSimOverflow         = errors.New("overflow in simulation")
)

// MockAMM simulates providing liquidity to an automated market maker.
type MockAMM struct {
	// ProtocolID identifies this venue to the strategy registry
	ProtocolID string
	// Total liquidity in the simulated pool
	PoolLiquidity uint64
	// Amount we have deployed
	Deposited uint64
	// Fees accrued and not yet collected
	YieldEarned uint64
	// Swap fee rate in basis points (500 = 5%)
	FeeRate uint16
	// Accumulated impermanent loss
	ILLoss uint64
	// Volatility of the simulated pair (0-100), drives IL and scoring
	Volatility uint8
	// Protocol safety rating (0-100)
	SafetyScore uint8
}

// NewMockAMM creates an AMM venue with the given pool depth and fee rate.
func NewMockAMM(protocolID string, poolLiquidity uint64, feeRate uint16, volatility, safetyScore uint8) *MockAMM {
	return &MockAMM{
		ProtocolID:    protocolID,
		PoolLiquidity: poolLiquidity,
		FeeRate:       feeRate,
		Volatility:    volatility,
		SafetyScore:   safetyScore,
	}
}

// Deposit adds liquidity. Returns the LP share count, 1:1 for simplicity.
func (a *MockAMM) Deposit(amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidDeposit
	}

	deposited, ok := utils.AddU64(a.Deposited, amount)
	if !ok {
		return 0, ErrSimOverflow
	}
	liquidity, ok := utils.AddU64(a.PoolLiquidity, amount)
	if !ok {
		return 0, ErrSimOverflow
	}

	a.Deposited = deposited
	a.PoolLiquidity = liquidity
	return amount, nil
}

// Withdraw removes liquidity.
func (a *MockAMM) Withdraw(amount uint64) (uint64, error) {
	if amount > a.Deposited {
		return 0, ErrInsufficientDeposit
	}

	a.Deposited -= amount
	a.PoolLiquidity -= amount
	return amount, nil
}

// AccrueFees simulates one period of swap-fee income on the deployed
// amount and returns the fees earned this period.
func (a *MockAMM) AccrueFees() uint64 {
	if a.Deposited == 0 {
		return 0
	}

	fees, ok := utils.MulDivU64(a.Deposited, uint64(a.FeeRate), 10_000)
	if !ok {
		return 0
	}
	if earned, ok := utils.AddU64(a.YieldEarned, fees); ok {
		a.YieldEarned = earned
	}
	return fees
}

// SimulateIL applies one period of impermanent loss, roughly 0.5% of the
// deployed amount per 10 points of volatility.
func (a *MockAMM) SimulateIL() {
	if a.Deposited == 0 {
		return
	}

	il := a.Deposited * uint64(a.Volatility) / 100 / 200
	if loss, ok := utils.AddU64(a.ILLoss, il); ok {
		a.ILLoss = loss
	}
}

// CollectYield drains the accrued fees, returning the collected amount.
func (a *MockAMM) CollectYield() uint64 {
	collected := a.YieldEarned
	a.YieldEarned = 0
	return collected
}

// NetValue is the deployed amount plus earned fees minus accumulated IL.
func (a *MockAMM) NetValue() uint64 {
	gross, ok := utils.AddU64(a.Deposited, a.YieldEarned)
	if !ok {
		gross = 1<<64 - 1
	}
	if gross < a.ILLoss {
		return 0
	}
	return gross - a.ILLoss
}

// APY estimates the venue's advertised APY (percentage x100) from the fee
// rate, assuming one fee period per day.
func (a *MockAMM) APY() uint16 {
	// FeeRate bps per period, 365 periods, on a percentage-x100 scale.
	apy := uint64(a.FeeRate) * 365 / 100
	if apy > 1<<16-1 {
		apy = 1<<16 - 1
	}
	return uint16(apy)
}

// Metrics reports the venue's current scoring inputs. IL risk follows the
// pair's volatility.
func (a *MockAMM) Metrics() types.OpportunityMetrics {
	return types.OpportunityMetrics{
		APY:         a.APY(),
		Volatility:  a.Volatility,
		ILRisk:      a.Volatility / 2,
		SafetyScore: a.SafetyScore,
	}
}
