// Package store persists the governance entities: decision logs, the
// append-only execution audit trail, and dispatched action records.
//
// Three implementations ship: in-memory (tests, dev), SQLite
// (single-node), and PostgreSQL (production). All durable state
// transitions are conditional writes: an update names the state it
// expects and fails with ErrConflict when another writer got there first.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

// ErrConflict is returned when a conditional update matched zero rows: the
// entity was not in the expected state. Callers translate this into an
// InvalidStateError for their entity.
var ErrConflict = errors.New("conditional update conflict")

// DecisionStore owns DecisionLog rows. Rows are never deleted.
type DecisionStore interface {
	CreateDecision(ctx context.Context, d *contracts.DecisionLog) error
	GetDecision(ctx context.Context, id string) (*contracts.DecisionLog, error)

	// UpdateDecisionIf persists d only if the stored status still equals
	// expect. Exactly one of two racing transitions succeeds.
	UpdateDecisionIf(ctx context.Context, d *contracts.DecisionLog, expect contracts.DecisionStatus) error

	// RecordOutcomeIf persists d's outcome fields only if no outcome has
	// been recorded yet.
	RecordOutcomeIf(ctx context.Context, d *contracts.DecisionLog) error

	ListDecisions(ctx context.Context, f DecisionFilter) ([]*contracts.DecisionLog, error)
}

// DecisionFilter selects decisions for listing and statistics.
type DecisionFilter struct {
	StoreID string
	Status  contracts.DecisionStatus
	Since   *time.Time
	Until   *time.Time
}

// AuditStore is the append-only execution audit trail. The interface has
// no update or delete on purpose: tamper-evidence relies on the backing
// table having UPDATE/DELETE revoked at the infrastructure level, and on
// the hash chain carried by each record.
type AuditStore interface {
	// AppendExecution links rec into the hash chain and persists it.
	AppendExecution(ctx context.Context, rec *contracts.ExecutionRecord) error
	GetExecution(ctx context.Context, id string) (*contracts.ExecutionRecord, error)
	QueryExecutions(ctx context.Context, f AuditFilter) ([]*contracts.ExecutionRecord, error)

	// VerifyExecutionChain recomputes every entry hash in order and reports
	// the first break.
	VerifyExecutionChain(ctx context.Context) error
}

// AuditFilter selects execution records.
type AuditFilter struct {
	CommandType string
	ActorID     string
	StoreID     string
	Status      string
	Limit       int
}

// ActionStore owns dispatched remediation actions.
type ActionStore interface {
	CreateAction(ctx context.Context, a *contracts.ActionRecord) error
	GetAction(ctx context.Context, id string) (*contracts.ActionRecord, error)

	// UpdateActionIf persists a only if the stored state still equals expect.
	UpdateActionIf(ctx context.Context, a *contracts.ActionRecord, expect contracts.ActionState) error

	ListActions(ctx context.Context, f ActionFilter) ([]*contracts.ActionRecord, error)
}

// ActionFilter selects action records.
type ActionFilter struct {
	StoreID    string
	State      contracts.ActionState
	Priority   contracts.Priority
	ReceiverID string
}
