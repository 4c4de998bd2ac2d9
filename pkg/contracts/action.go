package contracts

import "time"

// ActionState is the lifecycle state of a dispatched remediation action.
type ActionState string

const (
	ActionCreated      ActionState = "CREATED"
	ActionPushed       ActionState = "PUSHED"
	ActionAcknowledged ActionState = "ACKNOWLEDGED"
	ActionProcessing   ActionState = "PROCESSING"
	ActionResolved     ActionState = "RESOLVED"
	ActionEscalated    ActionState = "ESCALATED"
	ActionClosed       ActionState = "CLOSED"
)

// Terminal reports whether the state accepts no further events.
func (s ActionState) Terminal() bool {
	return s == ActionResolved || s == ActionClosed
}

// ActionEvent is an input to the dispatch state machine.
type ActionEvent string

const (
	EventPush            ActionEvent = "push"
	EventAcknowledge     ActionEvent = "acknowledge"
	EventStartProcessing ActionEvent = "start_processing"
	EventResolve         ActionEvent = "resolve"
	EventEscalate        ActionEvent = "escalate"
	EventClose           ActionEvent = "close"
)

// Priority ranks action urgency. P0 is the most urgent.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// Upgrade returns the next more urgent priority. P0 stays P0.
func (p Priority) Upgrade() Priority {
	switch p {
	case PriorityP3:
		return PriorityP2
	case PriorityP2:
		return PriorityP1
	default:
		return PriorityP0
	}
}

// ActionRecord tracks one external-facing remediation action from creation
// through acknowledgement and resolution. Lifecycle is driven only by the
// dispatch state machine's transition table.
type ActionRecord struct {
	ActionID         string      `json:"action_id"`
	StoreID          string      `json:"store_id"`
	Category         string      `json:"category"`
	Priority         Priority    `json:"priority"`
	Title            string      `json:"title"`
	Content          string      `json:"content"`
	ReceiverID       string      `json:"receiver_id"`
	EscalationUserID string      `json:"escalation_user_id"`
	SourceEventID    string      `json:"source_event_id,omitempty"`
	State            ActionState `json:"state"`

	CreatedAt      time.Time  `json:"created_at"`
	PushedAt       *time.Time `json:"pushed_at,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	EscalatedAt    *time.Time `json:"escalated_at,omitempty"`

	ResolutionNotes string `json:"resolution_notes,omitempty"`
}
