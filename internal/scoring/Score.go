/*

This file contains the risk-adjusted scoring math for yield opportunities.

Score = (APY x 0.5) - (Volatility x 0.3) - (IL risk x 0.2) + (Safety x 0.1)

The weights are fixed: higher APY is rewarded, volatility and impermanent
loss risk are penalized, and safer protocols get a small bonus. Everything
here is pure computation over the caller's inputs; no state, no I/O.

*/

package scoring

import (
	"github.com/openyield/yvm/internal/utils"
)

// Fixed component weights, in percent.
const (
	apyWeight        = 50
	volatilityWeight = 30
	ilRiskWeight     = 20
	safetyWeight     = 10
)

// maxScore is the upper clamp for every computed score.
const maxScore uint16 = 100

// Score converts raw opportunity metrics into a comparable 0-100 score.
// apy is percentage x100 (1050 = 10.50%) and is normalized onto a 0-100
// scale first; anything above 100% APY scores the same as exactly 100%.
// The other three metrics are expected in 0-100. Intermediate subtraction
// saturates at zero so a risky opportunity bottoms out rather than wrapping.
func Score(apy uint16, volatility, ilRisk, safety uint8) uint16 {
	apyNormalized := apy / 100
	if apyNormalized > 100 {
		apyNormalized = 100
	}

	apyComponent := apyNormalized * apyWeight / 100
	volatilityComponent := uint16(volatility) * volatilityWeight / 100
	ilComponent := uint16(ilRisk) * ilRiskWeight / 100
	safetyComponent := uint16(safety) * safetyWeight / 100

	score := utils.SatSubU16(apyComponent, volatilityComponent)
	score = utils.SatSubU16(score, ilComponent)
	score = utils.SatAddU16(score, safetyComponent)

	if score > maxScore {
		score = maxScore
	}
	return score
}

// ShouldRebalance reports whether the gap between the best available score
// and the currently deployed score justifies moving capital. When best is
// not better than current the gap is zero and never triggers.
func ShouldRebalance(currentScore, bestScore, threshold uint16) bool {
	return utils.SatSubU16(bestScore, currentScore) > threshold
}

// AllocationPct returns the percentage of capital a score earns out of the
// combined score of all opportunities, capped at 100. A zero total
// allocates nothing.
func AllocationPct(score, totalScore uint16) uint8 {
	if totalScore == 0 {
		return 0
	}
	allocation := uint32(score) * 100 / uint32(totalScore)
	if allocation > 100 {
		allocation = 100
	}
	return uint8(allocation)
}
