package contracts

import "time"

// TrustLevel is the per-command-type policy deciding whether the executor
// may run a command immediately or must defer to human approval.
type TrustLevel string

const (
	TrustAuto    TrustLevel = "AUTO"
	TrustApprove TrustLevel = "APPROVE"
)

// Execution record statuses.
const (
	ExecStatusExecuted        = "executed"
	ExecStatusFailed          = "failed"
	ExecStatusPendingApproval = "pending_approval"
)

// Actor is the authenticated identity invoking a command. Identity is
// supplied by the session collaborator; this core trusts it as given.
type Actor struct {
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
	StoreID string `json:"store_id"`
	BrandID string `json:"brand_id,omitempty"`
}

// ExecutionRecord is one append-only audit row. Exactly one record is
// written per Execute call that passes the permission check, including
// calls that only request approval. The backing table must have
// UPDATE/DELETE revoked at the infrastructure level; the application-level
// contract is that no store implementation ever issues either statement.
//
// Records are hash-chained: EntryHash covers the canonicalized record plus
// PrevHash, so any retroactive edit breaks VerifyChain.
type ExecutionRecord struct {
	ID          string         `json:"id"`
	CommandType string         `json:"command_type"`
	Payload     map[string]any `json:"payload"`
	ActorID     string         `json:"actor_id"`
	ActorRole   string         `json:"actor_role"`
	StoreID     string         `json:"store_id"`
	BrandID     string         `json:"brand_id,omitempty"`
	Status      string         `json:"status"`
	Level       TrustLevel     `json:"level"`
	Amount      *float64       `json:"amount,omitempty"`
	Result      string         `json:"result,omitempty"`

	RollbackID   string     `json:"rollback_id,omitempty"`
	RolledBackBy string     `json:"rolled_back_by,omitempty"`
	RolledBackAt *time.Time `json:"rolled_back_at,omitempty"`

	PayloadHash string `json:"payload_hash"`
	PrevHash    string `json:"prev_hash"`
	EntryHash   string `json:"entry_hash"`

	CreatedAt time.Time `json:"created_at"`
}

// ExecutionReceipt is what Execute returns to its caller on the AUTO path.
type ExecutionReceipt struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
	Result      string `json:"result,omitempty"`
}
