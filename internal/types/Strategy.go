/*

This file contains the strategy-side types: yield opportunities, the per-pool
strategy state, and the rebalance decision record emitted when the registry
decides to move capital.

*/

package types

// OpportunityMetrics are the raw risk/return inputs for one yield venue.
// APY is supplied as percentage x100 (1050 = 10.50%); the other three are
// bounded 0-100.
type OpportunityMetrics struct {
	APY         uint16 `json:"apy"`
	Volatility  uint8  `json:"volatility"`
	ILRisk      uint8  `json:"il_risk"`
	SafetyScore uint8  `json:"safety_score"`
}

// Opportunity is one registered yield venue and its derived score. Score is
// always recomputed from the metrics, never set directly.
type Opportunity struct {
	// Protocol identifier, e.g. "meteora_amm" or "kamino_lending"
	ProtocolID  string `json:"protocol_id"`
	APY         uint16 `json:"apy"`
	Volatility  uint8  `json:"volatility"`
	ILRisk      uint8  `json:"il_risk"`
	SafetyScore uint8  `json:"safety_score"`
	Score       uint16 `json:"score"`
	Active      bool   `json:"active"`
	LastUpdated int64  `json:"last_updated"`
}

// Metrics returns the raw metric tuple the score was derived from.
func (o *Opportunity) Metrics() OpportunityMetrics {
	return OpportunityMetrics{
		APY:         o.APY,
		Volatility:  o.Volatility,
		ILRisk:      o.ILRisk,
		SafetyScore: o.SafetyScore,
	}
}

// StrategyState is the per-pool strategy bookkeeping record.
type StrategyState struct {
	Pool PoolID `json:"pool_id"`
	// Index of the opportunity capital is currently deployed to
	CurrentOpportunity uint8 `json:"current_opportunity"`
	// Index of the highest-scored opportunity seen so far
	BestOpportunity uint8 `json:"best_opportunity"`
	// Registration counter. Saturates at 255; registrations past that are
	// still stored, the counter just stops incrementing.
	NumOpportunities uint8 `json:"num_opportunities"`
	// Minimum score gap required before a rebalance is justified
	RebalanceThreshold uint16 `json:"rebalance_threshold"`
	// Unix time of the last rebalance decision
	LastRebalance int64 `json:"last_rebalance"`
	// Value currently deployed to the active opportunity
	DeployedValue uint64 `json:"deployed_value"`
}

// RebalanceDecision is the typed record a successful rebalance emits. The
// registry only decides; moving funds between venues is the executor's job.
type RebalanceDecision struct {
	Pool         PoolID `json:"pool_id"`
	FromIndex    uint8  `json:"from_index"`
	ToIndex      uint8  `json:"to_index"`
	FromProtocol string `json:"from_protocol"`
	ToProtocol   string `json:"to_protocol"`
	FromScore    uint16 `json:"from_score"`
	ToScore      uint16 `json:"to_score"`
	DecidedAt    int64  `json:"decided_at"`
}
