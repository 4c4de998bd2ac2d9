package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
	"github.com/Storemind-AI/trustcore/pkg/notify"
	"github.com/Storemind-AI/trustcore/pkg/store"
)

// Pusher queues outbound action notifications. Implemented by the
// notification outbox.
type Pusher interface {
	Enqueue(msg *notify.Message)
}

// DefaultTimeouts are the per-priority escalation deadlines. Higher
// priority, shorter patience.
var DefaultTimeouts = map[contracts.Priority]time.Duration{
	contracts.PriorityP0: 15 * time.Minute,
	contracts.PriorityP1: 30 * time.Minute,
	contracts.PriorityP2: 2 * time.Hour,
	contracts.PriorityP3: 24 * time.Hour,
}

// CreateActionRequest describes a new remediation action.
type CreateActionRequest struct {
	StoreID          string
	Category         string
	Priority         contracts.Priority
	Title            string
	Content          string
	ReceiverID       string
	EscalationUserID string
	SourceEventID    string
}

// Service applies lifecycle events to action records. Every state change is
// a guarded update against the store, so two workers racing on the same
// action cannot both win.
type Service struct {
	actions  store.ActionStore
	pusher   Pusher
	timeouts map[contracts.Priority]time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New builds the dispatch service. timeouts may be nil to use
// DefaultTimeouts.
func New(actions store.ActionStore, pusher Pusher, timeouts map[contracts.Priority]time.Duration) *Service {
	if timeouts == nil {
		timeouts = DefaultTimeouts
	}
	return &Service{
		actions:  actions,
		pusher:   pusher,
		timeouts: timeouts,
		logger:   slog.Default().With("component", "dispatch"),
		now:      time.Now,
	}
}

// CreateAction persists a new action in CREATED.
func (s *Service) CreateAction(ctx context.Context, req CreateActionRequest) (*contracts.ActionRecord, error) {
	if req.Priority == "" {
		req.Priority = contracts.PriorityP2
	}
	a := &contracts.ActionRecord{
		ActionID:         uuid.NewString(),
		StoreID:          req.StoreID,
		Category:         req.Category,
		Priority:         req.Priority,
		Title:            req.Title,
		Content:          req.Content,
		ReceiverID:       req.ReceiverID,
		EscalationUserID: req.EscalationUserID,
		SourceEventID:    req.SourceEventID,
		State:            contracts.ActionCreated,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.actions.CreateAction(ctx, a); err != nil {
		return nil, fmt.Errorf("create action: %w", err)
	}
	return a, nil
}

// Push delivers the action to its receiver.
func (s *Service) Push(ctx context.Context, actionID string) (*contracts.ActionRecord, error) {
	a, err := s.apply(ctx, actionID, contracts.EventPush, func(a *contracts.ActionRecord, now time.Time) {
		a.PushedAt = &now
	})
	if err != nil {
		return nil, err
	}
	s.notifyReceiver(a, a.ReceiverID)
	return a, nil
}

// Acknowledge marks the action as seen by its receiver. Valid from PUSHED
// and from ESCALATED.
func (s *Service) Acknowledge(ctx context.Context, actionID string) (*contracts.ActionRecord, error) {
	return s.apply(ctx, actionID, contracts.EventAcknowledge, func(a *contracts.ActionRecord, now time.Time) {
		a.AcknowledgedAt = &now
	})
}

// StartProcessing marks work as begun.
func (s *Service) StartProcessing(ctx context.Context, actionID string) (*contracts.ActionRecord, error) {
	return s.apply(ctx, actionID, contracts.EventStartProcessing, nil)
}

// Resolve terminates the action. Resolving an already-terminal action
// returns false with no mutation and no error.
func (s *Service) Resolve(ctx context.Context, actionID, notes string) (bool, error) {
	a, err := s.actions.GetAction(ctx, actionID)
	if err != nil {
		return false, err
	}
	if a.State.Terminal() {
		return false, nil
	}
	_, err = s.apply(ctx, actionID, contracts.EventResolve, func(a *contracts.ActionRecord, now time.Time) {
		a.ResolvedAt = &now
		a.ResolutionNotes = notes
	})
	if err != nil {
		// A concurrent resolve got there first; the action is done either way.
		var stateErr *contracts.InvalidStateError
		if errors.As(err, &stateErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Close administratively terminates the action without resolution.
func (s *Service) Close(ctx context.Context, actionID string) (*contracts.ActionRecord, error) {
	return s.apply(ctx, actionID, contracts.EventClose, nil)
}

// Escalate moves the action to ESCALATED and opens a fresh action for the
// escalation receiver at upgraded priority. The new action starts in PUSHED
// so its own deadline clock is running from the hand-off. Returns the new
// action.
//
// The chain is bounded: once an action is already P0 and addressed to its
// escalation contact there is nowhere left to route, so the action is
// marked ESCALATED without a follow-up record.
func (s *Service) Escalate(ctx context.Context, actionID, reason string) (*contracts.ActionRecord, error) {
	original, err := s.apply(ctx, actionID, contracts.EventEscalate, func(a *contracts.ActionRecord, now time.Time) {
		a.EscalatedAt = &now
	})
	if err != nil {
		return nil, err
	}

	if original.EscalationUserID == "" ||
		(original.Priority == contracts.PriorityP0 && original.ReceiverID == original.EscalationUserID) {
		s.logger.Warn("escalation chain topped out",
			"action_id", actionID, "priority", string(original.Priority), "reason", reason)
		return original, nil
	}

	now := s.now().UTC()
	escalated := &contracts.ActionRecord{
		ActionID:         uuid.NewString(),
		StoreID:          original.StoreID,
		Category:         original.Category,
		Priority:         original.Priority.Upgrade(),
		Title:            "[ESCALATED] " + original.Title,
		Content:          fmt.Sprintf("%s\nEscalated from %s: %s", original.Content, original.ActionID, reason),
		ReceiverID:       original.EscalationUserID,
		EscalationUserID: original.EscalationUserID,
		SourceEventID:    original.SourceEventID,
		State:            contracts.ActionPushed,
		CreatedAt:        now,
		PushedAt:         &now,
	}
	if err := s.actions.CreateAction(ctx, escalated); err != nil {
		return nil, fmt.Errorf("create escalation for %s: %w", actionID, err)
	}
	s.notifyReceiver(escalated, escalated.ReceiverID)
	s.logger.Warn("action escalated",
		"action_id", actionID, "escalation_id", escalated.ActionID,
		"priority", string(escalated.Priority), "reason", reason)
	return escalated, nil
}

func (s *Service) apply(ctx context.Context, actionID string, event contracts.ActionEvent, mutate func(*contracts.ActionRecord, time.Time)) (*contracts.ActionRecord, error) {
	a, err := s.actions.GetAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	from := a.State
	next, ok := Next(from, event)
	if !ok {
		return nil, &contracts.InvalidStateError{
			Entity: "action", ID: actionID, State: string(from), Attempted: string(event),
		}
	}

	now := s.now().UTC()
	a.State = next
	if mutate != nil {
		mutate(a, now)
	}
	if err := s.actions.UpdateActionIf(ctx, a, from); err != nil {
		if errors.Is(err, store.ErrConflict) {
			cur, getErr := s.actions.GetAction(ctx, actionID)
			state := "unknown"
			if getErr == nil {
				state = string(cur.State)
			}
			return nil, &contracts.InvalidStateError{
				Entity: "action", ID: actionID, State: state, Attempted: string(event),
			}
		}
		return nil, fmt.Errorf("update action %s: %w", actionID, err)
	}
	return a, nil
}

func (s *Service) notifyReceiver(a *contracts.ActionRecord, receiverID string) {
	if s.pusher == nil {
		return
	}
	s.pusher.Enqueue(&notify.Message{
		ReceiverID: receiverID,
		Title:      fmt.Sprintf("[%s] %s", a.Priority, a.Title),
		Body:       a.Content,
		Priority:   string(a.Priority),
		Metadata:   map[string]string{"action_id": a.ActionID},
	})
}

// IsExpired reports whether the action has outlived its priority's
// escalation deadline at instant now. Terminal actions never expire. The
// clock starts at push time, or creation time if never pushed.
func (s *Service) IsExpired(a *contracts.ActionRecord, now time.Time) bool {
	if a.State.Terminal() {
		return false
	}
	timeout, ok := s.timeouts[a.Priority]
	if !ok {
		timeout = DefaultTimeouts[contracts.PriorityP2]
	}
	start := a.CreatedAt
	if a.PushedAt != nil {
		start = *a.PushedAt
	}
	return now.Sub(start) > timeout
}

// ExpiredActions lists non-terminal actions past their deadline. Polled by
// the escalation worker; this method never mutates anything.
func (s *Service) ExpiredActions(ctx context.Context, now time.Time) ([]*contracts.ActionRecord, error) {
	all, err := s.actions.ListActions(ctx, store.ActionFilter{})
	if err != nil {
		return nil, err
	}
	var out []*contracts.ActionRecord
	for _, a := range all {
		// An ESCALATED action has already been handed off; its follow-up
		// record carries the live deadline. Skipping it keeps the poller
		// from escalating the same action every scan.
		if a.State == contracts.ActionEscalated {
			continue
		}
		if s.IsExpired(a, now) {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListActions is a read-only projection over the action store.
func (s *Service) ListActions(ctx context.Context, f store.ActionFilter) ([]*contracts.ActionRecord, error) {
	return s.actions.ListActions(ctx, f)
}

// Stats summarizes the action population.
type Stats struct {
	ByState             map[string]int `json:"by_state"`
	ByPriority          map[string]int `json:"by_priority"`
	AvgResolutionSecs   float64        `json:"avg_resolution_seconds"`
	ResolvedCount       int            `json:"resolved_count"`
	OpenCount           int            `json:"open_count"`
	EscalatedOpenCount  int            `json:"escalated_open_count"`
}

// GetStats computes state and priority distributions and the mean
// creation-to-resolution latency, optionally scoped to a store.
func (s *Service) GetStats(ctx context.Context, storeID string) (*Stats, error) {
	all, err := s.actions.ListActions(ctx, store.ActionFilter{StoreID: storeID})
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		ByState:    make(map[string]int),
		ByPriority: make(map[string]int),
	}
	var totalLatency time.Duration
	for _, a := range all {
		stats.ByState[string(a.State)]++
		stats.ByPriority[string(a.Priority)]++
		switch {
		case a.State == contracts.ActionResolved && a.ResolvedAt != nil:
			stats.ResolvedCount++
			totalLatency += a.ResolvedAt.Sub(a.CreatedAt)
		case !a.State.Terminal():
			stats.OpenCount++
			if a.State == contracts.ActionEscalated {
				stats.EscalatedOpenCount++
			}
		}
	}
	if stats.ResolvedCount > 0 {
		stats.AvgResolutionSecs = totalLatency.Seconds() / float64(stats.ResolvedCount)
	}
	return stats, nil
}
