/*

This file contains the strategy registry: the bounded collection of yield
opportunities per pool, best-score tracking, and the rebalance decision.

Rebalancing is deliberately two-phase. decide() is pure: it looks at the
cooldown and the score gap and either returns a typed RebalanceDecision or
an error. Rebalance() wraps it with authorization and commits the state
change. Actually moving funds between venues belongs to the executor
consuming the decision, never to this registry.

*/

package strategy

import (
	"errors"
	"sync"

	"github.com/openyield/yvm/internal/logger"
	"github.com/openyield/yvm/internal/scoring"
	"github.com/openyield/yvm/internal/types"
	"github.com/rs/zerolog"
)

var (
	ErrUnauthorized       = errors.New("caller may not manage strategies")
	ErrInvalidOpportunity = errors.New("invalid opportunity data")
	ErrNoOpportunities    = errors.New("no opportunities available")
	ErrScoreTooLow        = errors.New("opportunity score gap below threshold")
	ErrRebalanceCooldown  = errors.New("rebalance cooldown not satisfied")
	ErrOverflow           = errors.New("overflow in calculation")
	ErrStrategyExists     = errors.New("strategy already initialized for pool")
	ErrStrategyNotFound   = errors.New("strategy not found for pool")
	ErrUnknownOpportunity = errors.New("unknown opportunity index")
)

// RebalanceCooldown is the minimum spacing between rebalance decisions.
const RebalanceCooldown int64 = 3600

// counterSaturation is where NumOpportunities stops counting. Storage is
// not bounded by it; only the counter freezes.
const counterSaturation = 255

// PermissionChecker is the slice of the permission registry the strategy
// registry needs.
type PermissionChecker interface {
	HasRole(pool types.PoolID, user types.Identity, role types.Role) (bool, error)
}

type poolStrategy struct {
	state         types.StrategyState
	opportunities []*types.Opportunity
}

// Registry owns the strategy state and opportunity set for every pool.
type Registry struct {
	mu     sync.RWMutex
	pools  map[types.PoolID]*poolStrategy
	perm   PermissionChecker
	logger zerolog.Logger
}

// NewRegistry creates an empty strategy registry gated by the given
// permission registry.
func NewRegistry(perm PermissionChecker) *Registry {
	return &Registry{
		pools:  make(map[types.PoolID]*poolStrategy),
		perm:   perm,
		logger: logger.GetForComponent("strategy_registry"),
	}
}

// Initialize creates the strategy state for a pool. The cooldown window
// starts at now so the first rebalance cannot fire immediately.
func (r *Registry) Initialize(pool types.PoolID, rebalanceThreshold uint16, now int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pools[pool]; exists {
		return ErrStrategyExists
	}

	r.pools[pool] = &poolStrategy{
		state: types.StrategyState{
			Pool:               pool,
			RebalanceThreshold: rebalanceThreshold,
			LastRebalance:      now,
		},
	}

	r.logger.Info().
		Uint64("pool", uint64(pool)).
		Uint16("threshold", rebalanceThreshold).
		Msg("Strategy state initialized")
	return nil
}

// RegisterOpportunity validates the metric bounds, scores the opportunity
// and appends it. The best index moves only when the new score strictly
// beats the current best (or nothing was registered yet).
func (r *Registry) RegisterOpportunity(pool types.PoolID, caller types.Identity, protocolID string, metrics types.OpportunityMetrics, now int64) (uint8, error) {
	if err := validateMetrics(metrics); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ps, exists := r.pools[pool]
	if !exists {
		return 0, ErrStrategyNotFound
	}
	if err := r.checkManager(pool, caller); err != nil {
		return 0, err
	}

	score := scoring.Score(metrics.APY, metrics.Volatility, metrics.ILRisk, metrics.SafetyScore)
	opportunity := &types.Opportunity{
		ProtocolID:  protocolID,
		APY:         metrics.APY,
		Volatility:  metrics.Volatility,
		ILRisk:      metrics.ILRisk,
		SafetyScore: metrics.SafetyScore,
		Score:       score,
		Active:      true,
		LastUpdated: now,
	}

	index := len(ps.opportunities)
	ps.opportunities = append(ps.opportunities, opportunity)
	if ps.state.NumOpportunities < counterSaturation {
		ps.state.NumOpportunities++
	}

	if index == 0 || score > ps.opportunities[ps.state.BestOpportunity].Score {
		ps.state.BestOpportunity = uint8(index)
	}

	r.logger.Info().
		Uint64("pool", uint64(pool)).
		Str("protocol", protocolID).
		Int("index", index).
		Uint16("score", score).
		Uint8("best", ps.state.BestOpportunity).
		Msg("Opportunity registered")
	return uint8(index), nil
}

// Evaluate refreshes one opportunity's metrics and recomputes its score,
// promoting it to best when it now beats the tracked best.
func (r *Registry) Evaluate(pool types.PoolID, caller types.Identity, index uint8, metrics types.OpportunityMetrics, now int64) (uint16, error) {
	if err := validateMetrics(metrics); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ps, exists := r.pools[pool]
	if !exists {
		return 0, ErrStrategyNotFound
	}
	if err := r.checkManager(pool, caller); err != nil {
		return 0, err
	}
	if int(index) >= len(ps.opportunities) {
		return 0, ErrUnknownOpportunity
	}

	opportunity := ps.opportunities[index]
	score := scoring.Score(metrics.APY, metrics.Volatility, metrics.ILRisk, metrics.SafetyScore)

	opportunity.APY = metrics.APY
	opportunity.Volatility = metrics.Volatility
	opportunity.ILRisk = metrics.ILRisk
	opportunity.SafetyScore = metrics.SafetyScore
	opportunity.Score = score
	opportunity.LastUpdated = now

	if score > ps.opportunities[ps.state.BestOpportunity].Score {
		ps.state.BestOpportunity = index
	}

	r.logger.Debug().
		Uint64("pool", uint64(pool)).
		Uint8("index", index).
		Uint16("score", score).
		Uint8("best", ps.state.BestOpportunity).
		Msg("Opportunity evaluated")
	return score, nil
}

// Rebalance runs the pure decision and, when it passes, commits the move:
// the best opportunity becomes current and the cooldown restarts. The
// returned decision names both venues for the executor.
func (r *Registry) Rebalance(pool types.PoolID, caller types.Identity, now int64) (types.RebalanceDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps, exists := r.pools[pool]
	if !exists {
		return types.RebalanceDecision{}, ErrStrategyNotFound
	}
	if err := r.checkManager(pool, caller); err != nil {
		return types.RebalanceDecision{}, err
	}

	decision, err := decide(ps, now)
	if err != nil {
		return types.RebalanceDecision{}, err
	}

	ps.state.LastRebalance = now
	ps.state.CurrentOpportunity = decision.ToIndex

	r.logger.Info().
		Uint64("pool", uint64(pool)).
		Str("from", decision.FromProtocol).
		Str("to", decision.ToProtocol).
		Uint16("fromScore", decision.FromScore).
		Uint16("toScore", decision.ToScore).
		Msg("Rebalance decided")
	return decision, nil
}

// decide is the pure rebalance decision: cooldown first, then the score
// gap. It never mutates state.
func decide(ps *poolStrategy, now int64) (types.RebalanceDecision, error) {
	if len(ps.opportunities) == 0 {
		return types.RebalanceDecision{}, ErrNoOpportunities
	}

	// A clock behind the last rebalance is surfaced, not ignored.
	sinceLast := now - ps.state.LastRebalance
	if sinceLast < 0 {
		return types.RebalanceDecision{}, ErrOverflow
	}
	if sinceLast < RebalanceCooldown {
		return types.RebalanceDecision{}, ErrRebalanceCooldown
	}

	current := ps.opportunities[ps.state.CurrentOpportunity]
	best := ps.opportunities[ps.state.BestOpportunity]
	if !scoring.ShouldRebalance(current.Score, best.Score, ps.state.RebalanceThreshold) {
		return types.RebalanceDecision{}, ErrScoreTooLow
	}

	return types.RebalanceDecision{
		Pool:         ps.state.Pool,
		FromIndex:    ps.state.CurrentOpportunity,
		ToIndex:      ps.state.BestOpportunity,
		FromProtocol: current.ProtocolID,
		ToProtocol:   best.ProtocolID,
		FromScore:    current.Score,
		ToScore:      best.Score,
		DecidedAt:    now,
	}, nil
}

// RecordDeployment updates the value deployed to the active opportunity
// after the executor has moved funds.
func (r *Registry) RecordDeployment(pool types.PoolID, caller types.Identity, value uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps, exists := r.pools[pool]
	if !exists {
		return ErrStrategyNotFound
	}
	if err := r.checkManager(pool, caller); err != nil {
		return err
	}

	ps.state.DeployedValue = value
	return nil
}

// State returns a copy of the pool's strategy state.
func (r *Registry) State(pool types.PoolID) (types.StrategyState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ps, exists := r.pools[pool]
	if !exists {
		return types.StrategyState{}, ErrStrategyNotFound
	}
	return ps.state, nil
}

// Opportunities returns copies of every registered opportunity for a pool.
func (r *Registry) Opportunities(pool types.PoolID) ([]types.Opportunity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ps, exists := r.pools[pool]
	if !exists {
		return nil, ErrStrategyNotFound
	}
	out := make([]types.Opportunity, len(ps.opportunities))
	for i, o := range ps.opportunities {
		out[i] = *o
	}
	return out, nil
}

// TotalScore sums all active opportunity scores, for allocation weighting.
func (r *Registry) TotalScore(pool types.PoolID) (uint16, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ps, exists := r.pools[pool]
	if !exists {
		return 0, ErrStrategyNotFound
	}
	var total uint16
	for _, o := range ps.opportunities {
		if o.Active {
			total += o.Score
		}
	}
	return total, nil
}

// validateMetrics rejects any 0-100-bounded metric above 100. APY has no
// upper bound here; scoring clamps it.
func validateMetrics(m types.OpportunityMetrics) error {
	if m.Volatility > 100 || m.ILRisk > 100 || m.SafetyScore > 100 {
		return ErrInvalidOpportunity
	}
	return nil
}

// checkManager authorizes strategy mutations: StrategyManager or Admin.
func (r *Registry) checkManager(pool types.PoolID, caller types.Identity) error {
	ok, err := r.perm.HasRole(pool, caller, types.RoleStrategyManager|types.RoleAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}
