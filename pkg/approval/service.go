// Package approval owns the human-in-the-loop side of the pipeline: pending
// decision records, their resolution by a manager, and the outcome feedback
// loop that turns resolved decisions into trust scores and training data.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
	"github.com/Storemind-AI/trustcore/pkg/notify"
	"github.com/Storemind-AI/trustcore/pkg/store"
)

// CommandRunner executes a command whose approval has been resolved.
// Implemented by the trusted executor.
type CommandRunner interface {
	ExecuteApproved(ctx context.Context, commandType string, payload map[string]any, actor contracts.Actor) (*contracts.ExecutionReceipt, error)
}

// Dispatcher queues an approval card for delivery. Implemented by the
// notification outbox.
type Dispatcher interface {
	Enqueue(msg *notify.Message)
}

// CreateRequest carries everything needed to open an approval.
type CreateRequest struct {
	DecisionType string
	AISuggestion map[string]any
	AIReasoning  string
	AIConfidence float64
	Alternatives []map[string]any
	StoreID      string
	ReceiverID   string
	Urgency      string
}

// Service implements the approval workflow over a DecisionStore.
type Service struct {
	decisions store.DecisionStore
	runner    CommandRunner
	outbox    Dispatcher
	logger    *slog.Logger
	now       func() time.Time

	decisionCounter metric.Int64Counter
}

// New creates the service. runner may be bound later via BindRunner when
// construction order requires it.
func New(decisions store.DecisionStore, outbox Dispatcher) *Service {
	meter := otel.Meter("github.com/Storemind-AI/trustcore/pkg/approval")
	counter, _ := meter.Int64Counter("trustcore.decisions",
		metric.WithDescription("Approval decisions resolved, by terminal status"))
	return &Service{
		decisions:       decisions,
		outbox:          outbox,
		logger:          slog.Default().With("component", "approval"),
		now:             time.Now,
		decisionCounter: counter,
	}
}

// BindRunner attaches the executor used to run resolved decisions.
func (s *Service) BindRunner(r CommandRunner) { s.runner = r }

// CreateApprovalRequest opens a PENDING decision and dispatches its approval
// card. It never executes anything.
func (s *Service) CreateApprovalRequest(ctx context.Context, req CreateRequest) (*contracts.DecisionLog, error) {
	d := &contracts.DecisionLog{
		ID:             uuid.NewString(),
		DecisionType:   req.DecisionType,
		AISuggestion:   req.AISuggestion,
		AIReasoning:    req.AIReasoning,
		AIConfidence:   req.AIConfidence,
		AIAlternatives: req.Alternatives,
		StoreID:        req.StoreID,
		Status:         contracts.DecisionPending,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.decisions.CreateDecision(ctx, d); err != nil {
		return nil, fmt.Errorf("create decision: %w", err)
	}
	if s.outbox != nil {
		s.outbox.Enqueue(buildCard(d, req.ReceiverID, req.Urgency))
	}
	s.logger.Info("approval requested",
		"decision_id", d.ID, "decision_type", d.DecisionType, "store_id", d.StoreID)
	return d, nil
}

// OpenApproval is the executor-facing entry point for the deferred path.
func (s *Service) OpenApproval(ctx context.Context, actor contracts.Actor, commandType string, payload map[string]any, executionID string) (string, error) {
	d, err := s.CreateApprovalRequest(ctx, CreateRequest{
		DecisionType: commandType,
		AISuggestion: payload,
		AIReasoning:  fmt.Sprintf("deferred execution %s requested by %s", executionID, actor.UserID),
		StoreID:      actor.StoreID,
		ReceiverID:   actor.UserID,
	})
	if err != nil {
		return "", err
	}
	return d.ID, nil
}

// ApproveDecision moves a PENDING decision to APPROVED and executes the
// underlying command. Any other starting status yields *InvalidStateError
// and leaves the record untouched.
func (s *Service) ApproveDecision(ctx context.Context, decisionID string, approver contracts.Actor, note string) (*contracts.DecisionLog, error) {
	d, err := s.transition(ctx, decisionID, approver, note, contracts.DecisionApproved, "approved")
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, d, approver, d.AISuggestion)
}

// RejectDecision moves a PENDING decision to REJECTED. Nothing executes; the
// record is flagged as training data.
func (s *Service) RejectDecision(ctx context.Context, decisionID string, approver contracts.Actor, note string) (*contracts.DecisionLog, error) {
	return s.transition(ctx, decisionID, approver, note, contracts.DecisionRejected, "rejected")
}

// ModifyDecision moves a PENDING decision to MODIFIED, stores the manager's
// payload and executes that payload instead of the original suggestion.
func (s *Service) ModifyDecision(ctx context.Context, decisionID string, approver contracts.Actor, modified map[string]any, note string) (*contracts.DecisionLog, error) {
	d, err := s.transitionWith(ctx, decisionID, approver, note, contracts.DecisionModified, "modified", func(d *contracts.DecisionLog) {
		d.ManagerDecision = modified
	})
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, d, approver, modified)
}

func (s *Service) transition(ctx context.Context, decisionID string, approver contracts.Actor, note string, to contracts.DecisionStatus, chainAction string) (*contracts.DecisionLog, error) {
	return s.transitionWith(ctx, decisionID, approver, note, to, chainAction, nil)
}

func (s *Service) transitionWith(ctx context.Context, decisionID string, approver contracts.Actor, note string, to contracts.DecisionStatus, chainAction string, mutate func(*contracts.DecisionLog)) (*contracts.DecisionLog, error) {
	d, err := s.decisions.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if d.Status != contracts.DecisionPending {
		return nil, &contracts.InvalidStateError{
			Entity: "decision", ID: decisionID, State: string(d.Status), Attempted: chainAction,
		}
	}

	now := s.now().UTC()
	d.Status = to
	d.ManagerID = approver.UserID
	d.ManagerFeedback = note
	d.ApprovalChain = append(d.ApprovalChain, contracts.ChainEntry{
		Actor: approver.UserID, Action: chainAction, At: now, Note: note,
	})
	if to == contracts.DecisionApproved {
		d.ApprovedAt = &now
	}
	if to == contracts.DecisionRejected || to == contracts.DecisionModified {
		d.IsTrainingData = 1
	}
	if mutate != nil {
		mutate(d)
	}

	// A single guarded update decides the race: of two concurrent
	// resolutions exactly one sees PENDING.
	if err := s.decisions.UpdateDecisionIf(ctx, d, contracts.DecisionPending); err != nil {
		if errors.Is(err, store.ErrConflict) {
			cur, getErr := s.decisions.GetDecision(ctx, decisionID)
			state := "unknown"
			if getErr == nil {
				state = string(cur.Status)
			}
			return nil, &contracts.InvalidStateError{
				Entity: "decision", ID: decisionID, State: state, Attempted: chainAction,
			}
		}
		return nil, fmt.Errorf("update decision %s: %w", decisionID, err)
	}
	if s.decisionCounter != nil {
		s.decisionCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(to)),
			attribute.String("decision_type", d.DecisionType),
		))
	}
	s.logger.Info("decision resolved",
		"decision_id", decisionID, "status", string(to), "manager_id", approver.UserID)
	return d, nil
}

func (s *Service) execute(ctx context.Context, d *contracts.DecisionLog, approver contracts.Actor, payload map[string]any) (*contracts.DecisionLog, error) {
	if s.runner == nil {
		return nil, fmt.Errorf("decision %s: command runner not bound", d.ID)
	}
	if _, err := s.runner.ExecuteApproved(ctx, d.DecisionType, payload, approver); err != nil {
		s.logger.Error("approved command failed",
			"decision_id", d.ID, "decision_type", d.DecisionType, "error", err)
		return d, fmt.Errorf("execute decision %s: %w", d.ID, err)
	}
	now := s.now().UTC()
	d.ExecutedAt = &now
	if err := s.decisions.UpdateDecisionIf(ctx, d, d.Status); err != nil {
		return d, fmt.Errorf("record execution time for %s: %w", d.ID, err)
	}
	return d, nil
}

// RecordDecisionOutcome stores the measured outcome exactly once and derives
// the result deviation and trust score from it.
func (s *Service) RecordDecisionOutcome(ctx context.Context, decisionID string, actual, expected float64, outcome contracts.DecisionOutcome, businessImpact string) (*contracts.DecisionLog, error) {
	d, err := s.decisions.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if d.Outcome != "" {
		return nil, fmt.Errorf("decision %s: %w", decisionID, contracts.ErrOutcomeRecorded)
	}

	deviation := resultDeviation(actual, expected)
	score := trustScore(d.Status, d.AIConfidence, deviation, outcome)

	d.Outcome = outcome
	d.ActualResult = actual
	d.ExpectedResult = expected
	d.BusinessImpact = businessImpact
	d.ResultDeviation = &deviation
	d.TrustScore = &score

	if err := s.decisions.RecordOutcomeIf(ctx, d); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("decision %s: %w", decisionID, contracts.ErrOutcomeRecorded)
		}
		return nil, fmt.Errorf("record outcome %s: %w", decisionID, err)
	}
	s.logger.Info("outcome recorded",
		"decision_id", decisionID, "outcome", string(outcome),
		"deviation", deviation, "trust_score", score)
	return d, nil
}

// PendingApprovals lists PENDING decisions, optionally scoped to a store.
func (s *Service) PendingApprovals(ctx context.Context, storeID string) ([]*contracts.DecisionLog, error) {
	return s.decisions.ListDecisions(ctx, store.DecisionFilter{
		StoreID: storeID,
		Status:  contracts.DecisionPending,
	})
}

// TypeBreakdown counts terminal resolutions of one decision type.
type TypeBreakdown struct {
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Modified int `json:"modified"`
}

// Statistics summarizes terminal decisions over a period. PENDING decisions
// are excluded from every denominator.
type Statistics struct {
	Total            int                      `json:"total"`
	ApprovalRate     float64                  `json:"approval_rate"`
	RejectionRate    float64                  `json:"rejection_rate"`
	ModificationRate float64                  `json:"modification_rate"`
	ByType           map[string]TypeBreakdown `json:"by_type"`
}

// DecisionStatistics computes resolution rates for storeID ("" for all
// stores) between since and until (nil for unbounded).
func (s *Service) DecisionStatistics(ctx context.Context, storeID string, since, until *time.Time) (*Statistics, error) {
	all, err := s.decisions.ListDecisions(ctx, store.DecisionFilter{
		StoreID: storeID, Since: since, Until: until,
	})
	if err != nil {
		return nil, err
	}

	stats := &Statistics{ByType: make(map[string]TypeBreakdown)}
	var approved, rejected, modified int
	for _, d := range all {
		if !d.Status.Terminal() {
			continue
		}
		stats.Total++
		bt := stats.ByType[d.DecisionType]
		switch d.Status {
		case contracts.DecisionApproved:
			approved++
			bt.Approved++
		case contracts.DecisionRejected:
			rejected++
			bt.Rejected++
		case contracts.DecisionModified:
			modified++
			bt.Modified++
		}
		stats.ByType[d.DecisionType] = bt
	}
	if stats.Total > 0 {
		n := float64(stats.Total)
		stats.ApprovalRate = float64(approved) / n
		stats.RejectionRate = float64(rejected) / n
		stats.ModificationRate = float64(modified) / n
	}
	return stats, nil
}
