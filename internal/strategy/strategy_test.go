package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openyield/yvm/internal/types"
)

const testPool = types.PoolID(1)

const (
	manager  = types.Identity("manager")
	outsider = types.Identity("outsider")
)

// allowAll grants every role to the manager identity only.
type fakePerm struct{}

func (fakePerm) HasRole(pool types.PoolID, user types.Identity, role types.Role) (bool, error) {
	return user == manager, nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(fakePerm{})
	require.NoError(t, r.Initialize(testPool, 10, 1000))
	return r
}

func safeMetrics() types.OpportunityMetrics {
	return types.OpportunityMetrics{APY: 1000, Volatility: 10, ILRisk: 0, SafetyScore: 90}
}

func TestInitialize(t *testing.T) {
	r := newTestRegistry(t)

	state, err := r.State(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint16(10), state.RebalanceThreshold)
	assert.Equal(t, int64(1000), state.LastRebalance)
	assert.Equal(t, uint8(0), state.NumOpportunities)

	assert.ErrorIs(t, r.Initialize(testPool, 10, 1000), ErrStrategyExists)
}

func TestRegisterOpportunity(t *testing.T) {
	r := newTestRegistry(t)

	index, err := r.RegisterOpportunity(testPool, manager, "amm_one", safeMetrics(), 1001)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), index)

	index, err = r.RegisterOpportunity(testPool, manager, "lending_one", safeMetrics(), 1002)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), index)

	state, err := r.State(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), state.NumOpportunities)

	opportunities, err := r.Opportunities(testPool)
	require.NoError(t, err)
	require.Len(t, opportunities, 2)
	assert.Equal(t, "amm_one", opportunities[0].ProtocolID)
	assert.True(t, opportunities[0].Active)
}

func TestRegisterOpportunityValidation(t *testing.T) {
	r := newTestRegistry(t)

	for _, m := range []types.OpportunityMetrics{
		{Volatility: 101},
		{ILRisk: 101},
		{SafetyScore: 101},
	} {
		_, err := r.RegisterOpportunity(testPool, manager, "bad", m, 1001)
		assert.ErrorIs(t, err, ErrInvalidOpportunity)
	}

	// APY has no upper bound; scoring clamps it.
	_, err := r.RegisterOpportunity(testPool, manager, "high_apy", types.OpportunityMetrics{APY: 65535}, 1001)
	assert.NoError(t, err)
}

func TestRegisterOpportunityAuthorization(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.RegisterOpportunity(testPool, outsider, "amm_one", safeMetrics(), 1001)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestBestOpportunityTracking(t *testing.T) {
	r := newTestRegistry(t)

	// First registration becomes best regardless of score.
	_, err := r.RegisterOpportunity(testPool, manager, "weak", types.OpportunityMetrics{APY: 0, SafetyScore: 10}, 1001)
	require.NoError(t, err)
	state, err := r.State(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), state.BestOpportunity)

	// A strictly better score takes over.
	_, err = r.RegisterOpportunity(testPool, manager, "strong", types.OpportunityMetrics{APY: 8000, SafetyScore: 90}, 1002)
	require.NoError(t, err)
	state, err = r.State(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), state.BestOpportunity)

	// An equal score does not displace the incumbent.
	_, err = r.RegisterOpportunity(testPool, manager, "equal", types.OpportunityMetrics{APY: 8000, SafetyScore: 90}, 1003)
	require.NoError(t, err)
	state, err = r.State(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), state.BestOpportunity)
}

func TestEvaluate(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.RegisterOpportunity(testPool, manager, "amm_one", safeMetrics(), 1001)
	require.NoError(t, err)
	_, err = r.RegisterOpportunity(testPool, manager, "lending_one", types.OpportunityMetrics{APY: 500, SafetyScore: 50}, 1002)
	require.NoError(t, err)

	// Refresh the second opportunity with much better metrics: it becomes best.
	score, err := r.Evaluate(testPool, manager, 1, types.OpportunityMetrics{APY: 9000, SafetyScore: 100}, 1003)
	require.NoError(t, err)

	state, err := r.State(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), state.BestOpportunity)

	opportunities, err := r.Opportunities(testPool)
	require.NoError(t, err)
	assert.Equal(t, score, opportunities[1].Score)
	assert.Equal(t, int64(1003), opportunities[1].LastUpdated)

	_, err = r.Evaluate(testPool, manager, 2, safeMetrics(), 1004)
	assert.ErrorIs(t, err, ErrUnknownOpportunity)
}

func TestRebalanceCooldown(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.RegisterOpportunity(testPool, manager, "weak", types.OpportunityMetrics{APY: 0, SafetyScore: 10}, 1001)
	require.NoError(t, err)
	_, err = r.RegisterOpportunity(testPool, manager, "strong", types.OpportunityMetrics{APY: 9000, SafetyScore: 100}, 1002)
	require.NoError(t, err)

	// Initialized at 1000; the window is not open one second early.
	_, err = r.Rebalance(testPool, manager, 1000+RebalanceCooldown-1)
	assert.ErrorIs(t, err, ErrRebalanceCooldown)

	// Exactly at the boundary the cooldown is satisfied.
	decision, err := r.Rebalance(testPool, manager, 1000+RebalanceCooldown)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), decision.FromIndex)
	assert.Equal(t, uint8(1), decision.ToIndex)
}

func TestRebalanceClockRegressionFails(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.RegisterOpportunity(testPool, manager, "only", safeMetrics(), 1001)
	require.NoError(t, err)

	_, err = r.Rebalance(testPool, manager, 999)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestRebalanceScoreGate(t *testing.T) {
	r := newTestRegistry(t)

	// Two near-identical venues: the gap never clears the threshold of 10.
	_, err := r.RegisterOpportunity(testPool, manager, "a", types.OpportunityMetrics{APY: 4000, SafetyScore: 50}, 1001)
	require.NoError(t, err)
	_, err = r.RegisterOpportunity(testPool, manager, "b", types.OpportunityMetrics{APY: 4200, SafetyScore: 50}, 1002)
	require.NoError(t, err)

	_, err = r.Rebalance(testPool, manager, 1000+RebalanceCooldown)
	assert.ErrorIs(t, err, ErrScoreTooLow)
}

func TestRebalanceCommitsAndRestartsCooldown(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.RegisterOpportunity(testPool, manager, "weak", types.OpportunityMetrics{APY: 0, SafetyScore: 10}, 1001)
	require.NoError(t, err)
	_, err = r.RegisterOpportunity(testPool, manager, "strong", types.OpportunityMetrics{APY: 9000, SafetyScore: 100}, 1002)
	require.NoError(t, err)

	rebalanceAt := 1000 + RebalanceCooldown
	decision, err := r.Rebalance(testPool, manager, rebalanceAt)
	require.NoError(t, err)
	assert.Equal(t, "weak", decision.FromProtocol)
	assert.Equal(t, "strong", decision.ToProtocol)
	assert.Greater(t, decision.ToScore, decision.FromScore)
	assert.Equal(t, rebalanceAt, decision.DecidedAt)

	state, err := r.State(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), state.CurrentOpportunity)
	assert.Equal(t, rebalanceAt, state.LastRebalance)

	// Already on the best venue: the gap is zero now.
	_, err = r.Rebalance(testPool, manager, rebalanceAt+RebalanceCooldown)
	assert.ErrorIs(t, err, ErrScoreTooLow)
}

func TestRebalanceNoOpportunities(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Rebalance(testPool, manager, 1000+RebalanceCooldown)
	assert.ErrorIs(t, err, ErrNoOpportunities)
}

func TestRebalanceAuthorization(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.RegisterOpportunity(testPool, manager, "only", safeMetrics(), 1001)
	require.NoError(t, err)

	_, err = r.Rebalance(testPool, outsider, 1000+RebalanceCooldown)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRecordDeployment(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.RegisterOpportunity(testPool, manager, "only", safeMetrics(), 1001)
	require.NoError(t, err)

	require.NoError(t, r.RecordDeployment(testPool, manager, 5000))
	state, err := r.State(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), state.DeployedValue)

	assert.ErrorIs(t, r.RecordDeployment(testPool, outsider, 1), ErrUnauthorized)
}

func TestTotalScore(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.RegisterOpportunity(testPool, manager, "a", types.OpportunityMetrics{APY: 4000, SafetyScore: 50}, 1001)
	require.NoError(t, err)
	_, err = r.RegisterOpportunity(testPool, manager, "b", types.OpportunityMetrics{APY: 8000, SafetyScore: 100}, 1002)
	require.NoError(t, err)

	opportunities, err := r.Opportunities(testPool)
	require.NoError(t, err)

	total, err := r.TotalScore(testPool)
	require.NoError(t, err)
	assert.Equal(t, opportunities[0].Score+opportunities[1].Score, total)
}

func TestUnknownPool(t *testing.T) {
	r := newTestRegistry(t)
	missing := types.PoolID(99)

	_, err := r.RegisterOpportunity(missing, manager, "x", safeMetrics(), 1001)
	assert.ErrorIs(t, err, ErrStrategyNotFound)
	_, err = r.State(missing)
	assert.ErrorIs(t, err, ErrStrategyNotFound)
	_, err = r.Rebalance(missing, manager, 1001)
	assert.ErrorIs(t, err, ErrStrategyNotFound)
}
