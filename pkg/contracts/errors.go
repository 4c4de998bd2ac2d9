package contracts

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline.
var (
	// ErrPermissionDenied: the actor's role is not entitled to the command
	// type. Terminal; never retried; leaves no audit trace.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrSignatureInvalid: an inbound webhook callback failed signature
	// verification. Rejected with no side effect.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrNonceReplayed: a webhook nonce was seen before within its window.
	ErrNonceReplayed = errors.New("nonce already used")

	// ErrNotFound: the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrOutcomeRecorded: the decision's outcome fields were already set.
	ErrOutcomeRecorded = errors.New("outcome already recorded")
)

// ApprovalRequiredError is a control-flow signal, not a failure: the command
// was accepted but deferred to human approval. Callers must branch on it
// and surface it as a deferred acceptance, never as an error condition.
type ApprovalRequiredError struct {
	DecisionID  string
	ExecutionID string
	CommandType string
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("command %q requires approval (decision %s)", e.CommandType, e.DecisionID)
}

// InvalidStateError reports an attempted transition from a state that does
// not permit it. The entity is left unchanged.
type InvalidStateError struct {
	Entity    string // "decision" or "action"
	ID        string
	State     string
	Attempted string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s: cannot %s from state %s", e.Entity, e.ID, e.Attempted, e.State)
}

// CommandExecutionError wraps a command handler failure on the AUTO path.
// By the time it propagates, a failed audit record has already been written.
type CommandExecutionError struct {
	CommandType string
	ExecutionID string
	Err         error
}

func (e *CommandExecutionError) Error() string {
	return fmt.Sprintf("command %q (execution %s) failed: %v", e.CommandType, e.ExecutionID, e.Err)
}

func (e *CommandExecutionError) Unwrap() error { return e.Err }
