package approval

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

func TestResultDeviation(t *testing.T) {
	assert.InDelta(t, 0.0, resultDeviation(100, 100), 1e-9)
	assert.InDelta(t, 0.5, resultDeviation(50, 100), 1e-9)
	assert.InDelta(t, 0.5, resultDeviation(150, 100), 1e-9)
	// Zero expectation does not divide by zero.
	assert.Greater(t, resultDeviation(1, 0), 1.0)
}

func TestTrustScoreRejections(t *testing.T) {
	avoided := trustScore(contracts.DecisionRejected, 0.1, 0, contracts.OutcomeFailure)
	assert.InDelta(t, 0.95, avoided, 1e-9, "a correct rejection scores near 1.0 regardless of AI confidence")

	wrong := trustScore(contracts.DecisionRejected, 0.9, 0, contracts.OutcomeSuccess)
	assert.Less(t, wrong, avoided)
}

func TestTrustScoreProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("score decreases as deviation grows", prop.ForAll(
		func(confidence, d1, delta float64) bool {
			d2 := d1 + delta
			s1 := trustScore(contracts.DecisionApproved, confidence, d1, contracts.OutcomeSuccess)
			s2 := trustScore(contracts.DecisionApproved, confidence, d2, contracts.OutcomeSuccess)
			return s1 >= s2
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 10),
		gen.Float64Range(0, 10),
	))

	properties.Property("score stays within (0, 1]", prop.ForAll(
		func(confidence, deviation float64) bool {
			s := trustScore(contracts.DecisionModified, confidence, deviation, contracts.OutcomeSuccess)
			return s > 0 && s <= 1
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 100),
	))

	properties.Property("perfect prediction with full confidence scores 1.0", prop.ForAll(
		func(expected float64) bool {
			dev := resultDeviation(expected, expected)
			return trustScore(contracts.DecisionApproved, 1.0, dev, contracts.OutcomeSuccess) == 1.0
		},
		gen.Float64Range(1, 1e6),
	))

	properties.TestingRun(t)
}
