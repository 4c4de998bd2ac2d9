// Package executor runs governed commands: every invocation is checked
// against the permission matrix, routed by trust level, and leaves exactly
// one audit record once it passes the permission gate.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
	"github.com/Storemind-AI/trustcore/pkg/store"
)

// ErrNoHandler is returned (wrapped in *CommandExecutionError) when an AUTO
// command type has no registered handler.
var ErrNoHandler = errors.New("no handler registered")

// CommandHandler performs the side effect of one command type and returns a
// human-readable result summary.
type CommandHandler func(ctx context.Context, payload map[string]any) (string, error)

// ApprovalOpener creates the PENDING decision paired with a deferred
// execution. Implemented by the approval service; bound after construction
// because the approval service in turn executes through this package.
type ApprovalOpener interface {
	OpenApproval(ctx context.Context, actor contracts.Actor, commandType string, payload map[string]any, executionID string) (string, error)
}

// Executor is the trusted execution gateway.
type Executor struct {
	matrix    *PermissionMatrix
	levels    map[string]contracts.TrustLevel
	handlers  map[string]CommandHandler
	audit     store.AuditStore
	approvals ApprovalOpener
	logger    *slog.Logger
	now       func() time.Time

	execCounter metric.Int64Counter
}

// New creates an executor. levels maps command types to their trust level;
// unlisted command types default to APPROVE.
func New(matrix *PermissionMatrix, levels map[string]contracts.TrustLevel, audit store.AuditStore) *Executor {
	meter := otel.Meter("github.com/Storemind-AI/trustcore/pkg/executor")
	counter, _ := meter.Int64Counter("trustcore.executions",
		metric.WithDescription("Commands processed by the trusted executor"))
	return &Executor{
		matrix:      matrix,
		levels:      levels,
		handlers:    make(map[string]CommandHandler),
		audit:       audit,
		logger:      slog.Default().With("component", "executor"),
		now:         time.Now,
		execCounter: counter,
	}
}

// RegisterHandler binds a handler to a command type, replacing any previous
// binding.
func (e *Executor) RegisterHandler(commandType string, h CommandHandler) {
	e.handlers[commandType] = h
}

// BindApprovals attaches the approval service. Must be called before any
// APPROVE-level command is executed.
func (e *Executor) BindApprovals(a ApprovalOpener) { e.approvals = a }

// TrustLevelFor resolves the trust level of a command type. Unknown command
// types are held to APPROVE.
func (e *Executor) TrustLevelFor(commandType string) contracts.TrustLevel {
	if lvl, ok := e.levels[commandType]; ok {
		return lvl
	}
	return contracts.TrustApprove
}

// Execute runs commandType with payload on behalf of actor.
//
// A permission denial returns ErrPermissionDenied and writes nothing. Past
// the permission gate exactly one audit record is appended: executed, failed
// or pending_approval. The APPROVE path returns *ApprovalRequiredError with
// the paired decision id; the command itself has not run.
func (e *Executor) Execute(ctx context.Context, commandType string, payload map[string]any, actor contracts.Actor) (*contracts.ExecutionReceipt, error) {
	if !e.matrix.Allowed(actor.Role, commandType) {
		e.count(ctx, commandType, "denied")
		return nil, fmt.Errorf("role %q, command %q: %w", actor.Role, commandType, contracts.ErrPermissionDenied)
	}

	level := e.TrustLevelFor(commandType)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate execution id: %w", err)
	}

	rec := &contracts.ExecutionRecord{
		ID:          id.String(),
		CommandType: commandType,
		Payload:     payload,
		ActorID:     actor.UserID,
		ActorRole:   actor.Role,
		StoreID:     actor.StoreID,
		BrandID:     actor.BrandID,
		Level:       level,
		Amount:      extractAmount(payload),
		CreatedAt:   e.now().UTC(),
	}

	if level == contracts.TrustApprove {
		return e.deferToApproval(ctx, rec, actor)
	}
	return e.runHandler(ctx, rec)
}

// ExecuteApproved runs an already-approved command, bypassing the trust
// level gate but not the permission gate or the audit trail. Called by the
// approval service once a human has resolved the paired decision.
func (e *Executor) ExecuteApproved(ctx context.Context, commandType string, payload map[string]any, actor contracts.Actor) (*contracts.ExecutionReceipt, error) {
	if !e.matrix.Allowed(actor.Role, commandType) {
		return nil, fmt.Errorf("role %q, command %q: %w", actor.Role, commandType, contracts.ErrPermissionDenied)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate execution id: %w", err)
	}
	rec := &contracts.ExecutionRecord{
		ID:          id.String(),
		CommandType: commandType,
		Payload:     payload,
		ActorID:     actor.UserID,
		ActorRole:   actor.Role,
		StoreID:     actor.StoreID,
		BrandID:     actor.BrandID,
		Level:       contracts.TrustApprove,
		Amount:      extractAmount(payload),
		CreatedAt:   e.now().UTC(),
	}
	return e.runHandler(ctx, rec)
}

func (e *Executor) deferToApproval(ctx context.Context, rec *contracts.ExecutionRecord, actor contracts.Actor) (*contracts.ExecutionReceipt, error) {
	if e.approvals == nil {
		return nil, fmt.Errorf("command %q: approval service not bound", rec.CommandType)
	}
	rec.Status = contracts.ExecStatusPendingApproval
	if err := e.audit.AppendExecution(ctx, rec); err != nil {
		return nil, fmt.Errorf("audit pending execution: %w", err)
	}
	decisionID, err := e.approvals.OpenApproval(ctx, actor, rec.CommandType, rec.Payload, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("open approval for execution %s: %w", rec.ID, err)
	}
	e.count(ctx, rec.CommandType, contracts.ExecStatusPendingApproval)
	e.logger.Info("command deferred to approval",
		"command_type", rec.CommandType, "execution_id", rec.ID, "decision_id", decisionID)
	return nil, &contracts.ApprovalRequiredError{
		DecisionID:  decisionID,
		ExecutionID: rec.ID,
		CommandType: rec.CommandType,
	}
}

func (e *Executor) runHandler(ctx context.Context, rec *contracts.ExecutionRecord) (*contracts.ExecutionReceipt, error) {
	handler, ok := e.handlers[rec.CommandType]

	var result string
	var handlerErr error
	if !ok {
		handlerErr = fmt.Errorf("command %q: %w", rec.CommandType, ErrNoHandler)
	} else {
		result, handlerErr = handler(ctx, rec.Payload)
	}

	// The audit row reflects what the handler actually did, so it is
	// written only after the handler returns.
	if handlerErr != nil {
		rec.Status = contracts.ExecStatusFailed
		rec.Result = handlerErr.Error()
		if err := e.audit.AppendExecution(ctx, rec); err != nil {
			e.logger.Error("audit write failed after handler error",
				"execution_id", rec.ID, "error", err)
		}
		e.count(ctx, rec.CommandType, contracts.ExecStatusFailed)
		e.logger.Warn("command failed",
			"command_type", rec.CommandType, "execution_id", rec.ID, "error", handlerErr)
		return nil, &contracts.CommandExecutionError{
			CommandType: rec.CommandType,
			ExecutionID: rec.ID,
			Err:         handlerErr,
		}
	}

	rec.Status = contracts.ExecStatusExecuted
	rec.Result = result
	if err := e.audit.AppendExecution(ctx, rec); err != nil {
		return nil, fmt.Errorf("audit executed command %s: %w", rec.ID, err)
	}
	e.count(ctx, rec.CommandType, contracts.ExecStatusExecuted)
	e.logger.Info("command executed",
		"command_type", rec.CommandType, "execution_id", rec.ID)
	return &contracts.ExecutionReceipt{
		ExecutionID: rec.ID,
		Status:      contracts.ExecStatusExecuted,
		Result:      result,
	}, nil
}

func (e *Executor) count(ctx context.Context, commandType, status string) {
	e.execCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command_type", commandType),
			attribute.String("status", status),
		))
}

func extractAmount(payload map[string]any) *float64 {
	raw, ok := payload["amount"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return &f
		}
	}
	return nil
}
