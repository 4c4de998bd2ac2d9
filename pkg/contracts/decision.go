package contracts

import "time"

// DecisionStatus is the lifecycle state of a human governance decision.
type DecisionStatus string

const (
	DecisionPending  DecisionStatus = "PENDING"
	DecisionApproved DecisionStatus = "APPROVED"
	DecisionRejected DecisionStatus = "REJECTED"
	DecisionModified DecisionStatus = "MODIFIED"
)

// Terminal reports whether the status permits no further transition.
func (s DecisionStatus) Terminal() bool {
	return s == DecisionApproved || s == DecisionRejected || s == DecisionModified
}

// DecisionOutcome records how the executed decision played out against
// ground truth, once it becomes available.
type DecisionOutcome string

const (
	OutcomeSuccess DecisionOutcome = "SUCCESS"
	OutcomeFailure DecisionOutcome = "FAILURE"
	OutcomePartial DecisionOutcome = "PARTIAL"
)

// ChainEntry is one step in a decision's approval chain.
type ChainEntry struct {
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

// DecisionLog is the unit of human governance. Created PENDING when the
// executor defers a command to approval; mutated exactly once on
// approve/reject/modify; outcome fields set at most once later.
// Never deleted.
type DecisionLog struct {
	ID             string         `json:"id"`
	DecisionType   string         `json:"decision_type"`
	AISuggestion   map[string]any `json:"ai_suggestion"`
	AIReasoning    string         `json:"ai_reasoning"`
	AIConfidence   float64        `json:"ai_confidence"`
	AIAlternatives []map[string]any `json:"ai_alternatives,omitempty"`

	StoreID         string         `json:"store_id"`
	ManagerID       string         `json:"manager_id,omitempty"`
	ManagerDecision map[string]any `json:"manager_decision,omitempty"`
	ManagerFeedback string         `json:"manager_feedback,omitempty"`

	Status        DecisionStatus `json:"decision_status"`
	ApprovalChain []ChainEntry   `json:"approval_chain"`
	ApprovedAt    *time.Time     `json:"approved_at,omitempty"`
	ExecutedAt    *time.Time     `json:"executed_at,omitempty"`

	Outcome         DecisionOutcome `json:"outcome,omitempty"`
	ActualResult    float64         `json:"actual_result"`
	ExpectedResult  float64         `json:"expected_result"`
	BusinessImpact  string          `json:"business_impact,omitempty"`
	ResultDeviation *float64        `json:"result_deviation,omitempty"`
	TrustScore      *float64        `json:"trust_score,omitempty"`

	// IsTrainingData flips to 1 on REJECTED or MODIFIED: the human disagreed
	// with the AI, which is the feedback signal for model improvement.
	IsTrainingData int `json:"is_training_data"`

	CreatedAt time.Time `json:"created_at"`
}
