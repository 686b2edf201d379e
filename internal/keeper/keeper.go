/*

This file contains the Keeper, the autonomous cycle driver. Each cycle it
advances the protocol simulations, refreshes opportunity metrics, harvests
realized yield into the vault, attempts a rebalance, and persists a
snapshot of the resulting state.

*/

package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openyield/yvm/internal/ledger"
	"github.com/openyield/yvm/internal/logger"
	"github.com/openyield/yvm/internal/sim"
	"github.com/openyield/yvm/internal/state"
	"github.com/openyield/yvm/internal/strategy"
	"github.com/openyield/yvm/internal/types"
)

// Keeper drives the vault through its operating cycle.
type Keeper struct {
	logger    zerolog.Logger
	ledger    *ledger.Ledger
	strategy  *strategy.Registry
	bank      *sim.Bank
	protocols []sim.Protocol

	pool     types.PoolID
	operator types.Identity

	cycleCount int
}

// Config holds the dependencies for creating a new Keeper.
type Config struct {
	Pool      types.PoolID
	Operator  types.Identity
	Ledger    *ledger.Ledger
	Strategy  *strategy.Registry
	Bank      *sim.Bank
	Protocols []sim.Protocol
}

// NewKeeper creates a Keeper after validating its dependencies. The
// protocol slice must be index-aligned with the opportunities registered
// in the strategy registry.
func NewKeeper(cfg Config) (*Keeper, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("keeper configuration validation failed: %w", err)
	}

	k := &Keeper{
		logger:    logger.GetForComponent("keeper"),
		ledger:    cfg.Ledger,
		strategy:  cfg.Strategy,
		bank:      cfg.Bank,
		protocols: cfg.Protocols,
		pool:      cfg.Pool,
		operator:  cfg.Operator,
	}

	k.logger.Info().
		Uint64("pool", uint64(k.pool)).
		Int("protocols", len(k.protocols)).
		Msg("Keeper created")
	return k, nil
}

func validateConfig(cfg Config) error {
	if cfg.Ledger == nil {
		return fmt.Errorf("ledger cannot be nil")
	}
	if cfg.Strategy == nil {
		return fmt.Errorf("strategy registry cannot be nil")
	}
	if cfg.Bank == nil {
		return fmt.Errorf("bank cannot be nil")
	}
	if len(cfg.Protocols) == 0 {
		return fmt.Errorf("at least one protocol is required")
	}
	if cfg.Operator.Zero() {
		return fmt.Errorf("operator identity cannot be empty")
	}
	return nil
}

// RunLoop starts the main keeper loop with the specified interval.
func (k *Keeper) RunLoop(ctx context.Context, interval time.Duration) {
	k.logger.Info().Dur("interval", interval).Msg("Starting keeper main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first cycle immediately
	k.cycleCount++
	k.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return
		case <-ticker.C:
			k.cycleCount++
			k.RunCycle(ctx)
		}
	}
}

// RunCycle executes one complete keeper cycle.
func (k *Keeper) RunCycle(ctx context.Context) {
	now := time.Now().Unix()
	cycleID := uuid.New().String()
	cycleLogger := k.logger.With().Str("cycle_id", cycleID).Int("cycle", k.cycleCount).Logger()

	cycleLogger.Info().Msg("--- Starting keeper cycle ---")

	// Step 1: advance the protocol simulations.
	for _, proto := range k.protocols {
		proto.Step(now)
	}

	// Step 2: refresh opportunity metrics in the strategy registry.
	for i, proto := range k.protocols {
		if _, err := k.strategy.Evaluate(k.pool, k.operator, uint8(i), proto.Metrics(), now); err != nil {
			cycleLogger.Error().Err(err).Str("protocol", proto.ID()).Msg("Failed to evaluate opportunity")
			return
		}
	}

	// Step 3: harvest realized yield from the active venue.
	harvested := k.harvestYield(cycleLogger, now)

	// Step 4: attempt a rebalance and execute the decision if one is made.
	rebalanced := k.tryRebalance(cycleLogger, cycleID, now)

	// Step 5: keep the deployed-value figure current.
	stratState, err := k.strategy.State(k.pool)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to read strategy state")
		return
	}
	deployed := k.protocols[stratState.CurrentOpportunity].Balance()
	if err := k.strategy.RecordDeployment(k.pool, k.operator, deployed); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to record deployment")
		return
	}

	// Step 6: persist the cycle snapshot.
	k.saveSnapshot(cycleLogger, cycleID, harvested, rebalanced)

	cycleLogger.Info().Msg("--- Keeper cycle completed ---")
}

// harvestYield collects accrued yield from the active protocol, credits it
// to the vault's account, and books it through the ledger. Returns the net
// yield credited to depositors.
func (k *Keeper) harvestYield(cycleLogger zerolog.Logger, now int64) uint64 {
	stratState, err := k.strategy.State(k.pool)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to read strategy state for harvest")
		return 0
	}

	active := k.protocols[stratState.CurrentOpportunity]
	collected := active.Collect(now)
	if collected == 0 {
		cycleLogger.Debug().Str("protocol", active.ID()).Msg("No yield to harvest")
		return 0
	}

	// The simulated venue pays out into the vault's bank account so the
	// ledger's accounting stays backed by transferable funds.
	if err := k.bank.Credit(ledger.VaultAccount(k.pool), collected); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to credit harvested yield")
		return 0
	}

	netYield, fee, err := k.ledger.Harvest(k.pool, k.operator, collected)
	if err != nil {
		cycleLogger.Error().Err(err).Uint64("collected", collected).Msg("Harvest failed")
		return 0
	}

	cycleLogger.Info().
		Str("protocol", active.ID()).
		Uint64("collected", collected).
		Uint64("net_yield", netYield).
		Uint64("fee", fee).
		Msg("Yield harvested")
	return netYield
}

// tryRebalance asks the strategy registry for a decision and, when one is
// made, moves the deployed capital between venues and persists the record.
// A cooldown or an insufficient score gap is a normal outcome, not an error.
func (k *Keeper) tryRebalance(cycleLogger zerolog.Logger, cycleID string, now int64) bool {
	decision, err := k.strategy.Rebalance(k.pool, k.operator, now)
	if err != nil {
		switch {
		case errors.Is(err, strategy.ErrRebalanceCooldown):
			cycleLogger.Debug().Msg("Rebalance skipped: cooldown active")
		case errors.Is(err, strategy.ErrScoreTooLow):
			cycleLogger.Debug().Msg("Rebalance skipped: score gap below threshold")
		default:
			cycleLogger.Error().Err(err).Msg("Rebalance attempt failed")
		}
		return false
	}

	from := k.protocols[decision.FromIndex]
	to := k.protocols[decision.ToIndex]

	if amount := from.Balance(); amount > 0 {
		withdrawn, err := from.Pull(amount)
		if err != nil {
			cycleLogger.Error().Err(err).Str("protocol", from.ID()).Msg("Failed to withdraw from venue")
			return false
		}
		if err := to.Place(withdrawn, now); err != nil {
			cycleLogger.Error().Err(err).Str("protocol", to.ID()).Msg("Failed to deploy to venue")
			return false
		}
	}

	record := types.RebalanceRecord{
		CycleID:      cycleID,
		Pool:         decision.Pool,
		FromIndex:    decision.FromIndex,
		ToIndex:      decision.ToIndex,
		FromProtocol: decision.FromProtocol,
		ToProtocol:   decision.ToProtocol,
		FromScore:    decision.FromScore,
		ToScore:      decision.ToScore,
		DecidedAt:    time.Unix(decision.DecidedAt, 0).UTC(),
	}
	if _, err := state.SaveRebalanceDecision(record); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to persist rebalance decision")
	}

	cycleLogger.Info().
		Str("from", decision.FromProtocol).
		Str("to", decision.ToProtocol).
		Uint16("from_score", decision.FromScore).
		Uint16("to_score", decision.ToScore).
		Msg("Rebalance executed")
	return true
}

// saveSnapshot persists the post-cycle vault and strategy state.
func (k *Keeper) saveSnapshot(cycleLogger zerolog.Logger, cycleID string, harvested uint64, rebalanced bool) {
	summary, err := k.ledger.Summary(k.pool)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to read vault summary for snapshot")
		return
	}
	stratState, err := k.strategy.State(k.pool)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to read strategy state for snapshot")
		return
	}
	opportunities, err := k.strategy.Opportunities(k.pool)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to read opportunities for snapshot")
		return
	}

	snapshot := types.CycleSnapshot{
		CycleID:            cycleID,
		Pool:               k.pool,
		Timestamp:          time.Now().UTC(),
		TotalAssets:        summary.TotalAssets,
		TotalShares:        summary.TotalShares,
		SharePrice:         summary.SharePrice,
		TotalYield:         summary.TotalYield,
		AccumulatedFees:    summary.AccumulatedFees,
		NumUsers:           summary.NumUsers,
		CurrentOpportunity: stratState.CurrentOpportunity,
		BestOpportunity:    stratState.BestOpportunity,
		CurrentScore:       opportunities[stratState.CurrentOpportunity].Score,
		BestScore:          opportunities[stratState.BestOpportunity].Score,
		HarvestedYield:     harvested,
		Rebalanced:         rebalanced,
	}

	if _, err := state.SaveCycleSnapshot(snapshot); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to persist cycle snapshot")
	}
}
