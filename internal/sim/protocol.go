/*

This file contains the Protocol interface the keeper drives each cycle,
plus the adapter methods that let both simulators satisfy it.

*/

package sim

import (
	"github.com/openyield/yvm/internal/types"
)

// Protocol is a yield venue the keeper can deploy capital into.
type Protocol interface {
	// ID returns the protocol identifier.
	ID() string
	// Step advances the simulation by one cycle at the given time.
	Step(now int64)
	// Collect drains and returns yield accrued since the last collection.
	Collect(now int64) uint64
	// Place deploys capital into the protocol.
	Place(amount uint64, now int64) error
	// Pull withdraws capital from the protocol.
	Pull(amount uint64) (uint64, error)
	// Balance returns the capital currently deployed.
	Balance() uint64
	// Metrics returns the current risk and return profile.
	Metrics() types.OpportunityMetrics
}

var (
	_ Protocol = (*MockAMM)(nil)
	_ Protocol = (*MockLending)(nil)
)

// ID returns the protocol identifier.
func (a *MockAMM) ID() string {
	return a.ProtocolID
}

// Step accrues one cycle of trading fees and drifts impermanent loss.
func (a *MockAMM) Step(_ int64) {
	a.AccrueFees()
	a.SimulateIL()
}

// Collect drains accrued fee yield.
func (a *MockAMM) Collect(_ int64) uint64 {
	return a.CollectYield()
}

// Place deploys capital as pool liquidity.
func (a *MockAMM) Place(amount uint64, _ int64) error {
	_, err := a.Deposit(amount)
	return err
}

// Pull withdraws deployed liquidity.
func (a *MockAMM) Pull(amount uint64) (uint64, error) {
	return a.Withdraw(amount)
}

// Balance returns the net value of the deployed position.
func (a *MockAMM) Balance() uint64 {
	return a.NetValue()
}

// ID returns the protocol identifier.
func (l *MockLending) ID() string {
	return l.ProtocolID
}

// Step accrues interest up to the given time.
func (l *MockLending) Step(now int64) {
	l.AccrueInterest(now)
}

// Collect drains accrued interest.
func (l *MockLending) Collect(now int64) uint64 {
	return l.CollectYield(now)
}

// Place deposits capital into the lending market.
func (l *MockLending) Place(amount uint64, now int64) error {
	return l.Deposit(amount, now)
}

// Pull withdraws supplied capital.
func (l *MockLending) Pull(amount uint64) (uint64, error) {
	return l.Withdraw(amount)
}
