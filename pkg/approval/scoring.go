package approval

import (
	"math"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

// deviationEpsilon guards the deviation denominator when the expected
// result is zero.
const deviationEpsilon = 1e-9

// resultDeviation measures relative distance between what happened and what
// the suggestion predicted.
func resultDeviation(actual, expected float64) float64 {
	return math.Abs(actual-expected) / math.Max(math.Abs(expected), deviationEpsilon)
}

// trustScore derives a score in (0, 1] from the resolution and its outcome.
//
// APPROVED and MODIFIED decisions are scored on how closely reality tracked
// the executed payload's prediction: the score is strictly decreasing in
// deviation, scaled by the AI's stated confidence. MODIFIED decisions use
// the deviation of the modified payload's outcome, which is what actual and
// expected measure by the time it is recorded.
//
// REJECTED decisions score the human, not the model: a rejection that
// avoided a bad outcome scores near 1.0 regardless of AI confidence.
func trustScore(status contracts.DecisionStatus, confidence, deviation float64, outcome contracts.DecisionOutcome) float64 {
	switch status {
	case contracts.DecisionApproved, contracts.DecisionModified:
		base := 1.0 / (1.0 + deviation)
		weight := 0.5 + 0.5*clamp01(confidence)
		return base * weight
	case contracts.DecisionRejected:
		switch outcome {
		case contracts.OutcomeFailure:
			return 0.95
		case contracts.OutcomePartial:
			return 0.6
		default:
			return 0.3
		}
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
