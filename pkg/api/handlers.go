package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Storemind-AI/trustcore/pkg/approval"
	"github.com/Storemind-AI/trustcore/pkg/auth"
	"github.com/Storemind-AI/trustcore/pkg/contracts"
	"github.com/Storemind-AI/trustcore/pkg/dispatch"
	"github.com/Storemind-AI/trustcore/pkg/executor"
	"github.com/Storemind-AI/trustcore/pkg/guardrail"
	"github.com/Storemind-AI/trustcore/pkg/store"
	"github.com/Storemind-AI/trustcore/pkg/webhook"
)

// Server wires the pipeline components to their HTTP surface.
type Server struct {
	engine    *guardrail.Engine
	exec      *executor.Executor
	approvals *approval.Service
	dispatch  *dispatch.Service
	webhook   *webhook.Processor
	audit     store.AuditStore
	validator *auth.JWTValidator
	limiter   *auth.ActorLimiter
	logger    *slog.Logger
}

func NewServer(
	engine *guardrail.Engine,
	exec *executor.Executor,
	approvals *approval.Service,
	d *dispatch.Service,
	wh *webhook.Processor,
	audit store.AuditStore,
	validator *auth.JWTValidator,
	limiter *auth.ActorLimiter,
) *Server {
	return &Server{
		engine:    engine,
		exec:      exec,
		approvals: approvals,
		dispatch:  d,
		webhook:   wh,
		audit:     audit,
		validator: validator,
		limiter:   limiter,
		logger:    slog.Default().With("component", "api"),
	}
}

// Handler assembles the route table. The webhook callback authenticates by
// signature, not bearer token, so it bypasses the JWT middleware; everything
// else under /v1/ requires an authenticated actor.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/webhook/callback", s.handleWebhookCallback)

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/proposals/evaluate", s.handleEvaluate)
	protected.HandleFunc("GET /v1/guardrails/stats", s.handleGuardrailStats)
	protected.HandleFunc("POST /v1/execute", s.handleExecute)
	protected.HandleFunc("GET /v1/decisions/pending", s.handlePendingDecisions)
	protected.HandleFunc("GET /v1/decisions/stats", s.handleDecisionStats)
	protected.HandleFunc("POST /v1/decisions/{id}/approve", s.handleApprove)
	protected.HandleFunc("POST /v1/decisions/{id}/reject", s.handleReject)
	protected.HandleFunc("POST /v1/decisions/{id}/modify", s.handleModify)
	protected.HandleFunc("POST /v1/decisions/{id}/outcome", s.handleOutcome)
	protected.HandleFunc("POST /v1/actions", s.handleCreateAction)
	protected.HandleFunc("GET /v1/actions", s.handleListActions)
	protected.HandleFunc("GET /v1/actions/stats", s.handleActionStats)
	protected.HandleFunc("POST /v1/actions/{id}/push", s.handleActionPush)
	protected.HandleFunc("POST /v1/actions/{id}/acknowledge", s.handleActionAcknowledge)
	protected.HandleFunc("POST /v1/actions/{id}/resolve", s.handleActionResolve)
	protected.HandleFunc("POST /v1/actions/{id}/escalate", s.handleActionEscalate)
	protected.HandleFunc("GET /v1/audit/executions", s.handleAuditQuery)
	protected.HandleFunc("GET /v1/audit/verify", s.handleAuditVerify)

	var chain http.Handler = protected
	if s.limiter != nil {
		chain = s.limiter.Middleware(chain)
	}
	if s.validator != nil {
		chain = s.validator.Middleware(chain)
	}
	mux.Handle("/v1/", chain)

	return auth.RequestIDMiddleware(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type evaluateRequest struct {
	Proposal json.RawMessage `json:"proposal"`
	Context  map[string]any  `json:"context"`
	AutoFix  bool            `json:"auto_fix"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}

	var doc any
	if err := json.Unmarshal(req.Proposal, &doc); err != nil {
		WriteBadRequest(w, "invalid proposal")
		return
	}
	if err := validateProposal(doc); err != nil {
		WriteBadRequest(w, "proposal failed schema validation: "+err.Error())
		return
	}

	var proposal contracts.Proposal
	if err := json.Unmarshal(req.Proposal, &proposal); err != nil {
		WriteBadRequest(w, "invalid proposal")
		return
	}

	result := s.engine.Evaluate(&proposal, req.Context)
	if req.AutoFix {
		result = s.engine.AutoFixProposal(&proposal, result, req.Context)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGuardrailStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.RuleStatistics())
}

type executeRequest struct {
	CommandType string         `json:"command_type"`
	Payload     map[string]any `json:"payload"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFrom(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	if req.CommandType == "" {
		WriteBadRequest(w, "command_type is required")
		return
	}

	receipt, err := s.exec.Execute(r.Context(), req.CommandType, req.Payload, actor)
	if err != nil {
		var approvalErr *contracts.ApprovalRequiredError
		if errors.As(err, &approvalErr) {
			// Deferred acceptance, not a failure.
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":       contracts.ExecStatusPendingApproval,
				"decision_id":  approvalErr.DecisionID,
				"execution_id": approvalErr.ExecutionID,
			})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handlePendingDecisions(w http.ResponseWriter, r *http.Request) {
	pending, err := s.approvals.PendingApprovals(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleDecisionStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var since, until *time.Time
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteBadRequest(w, "since must be RFC 3339")
			return
		}
		since = &t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteBadRequest(w, "until must be RFC 3339")
			return
		}
		until = &t
	}
	stats, err := s.approvals.DecisionStatistics(r.Context(), q.Get("store_id"), since, until)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type resolveDecisionRequest struct {
	Note    string         `json:"note"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.resolveDecision(w, r, func(actor contracts.Actor, req resolveDecisionRequest) (*contracts.DecisionLog, error) {
		return s.approvals.ApproveDecision(r.Context(), r.PathValue("id"), actor, req.Note)
	})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.resolveDecision(w, r, func(actor contracts.Actor, req resolveDecisionRequest) (*contracts.DecisionLog, error) {
		return s.approvals.RejectDecision(r.Context(), r.PathValue("id"), actor, req.Note)
	})
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFrom(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}
	var req resolveDecisionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if len(req.Payload) == 0 {
		WriteBadRequest(w, "modify requires a non-empty payload")
		return
	}
	d, err := s.approvals.ModifyDecision(r.Context(), r.PathValue("id"), actor, req.Payload, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) resolveDecision(w http.ResponseWriter, r *http.Request, fn func(contracts.Actor, resolveDecisionRequest) (*contracts.DecisionLog, error)) {
	actor, err := auth.ActorFrom(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}
	var req resolveDecisionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	d, err := fn(actor, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type outcomeRequest struct {
	ActualResult   float64 `json:"actual_result"`
	ExpectedResult float64 `json:"expected_result"`
	Outcome        string  `json:"outcome"`
	BusinessImpact string  `json:"business_impact"`
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	outcome := contracts.DecisionOutcome(req.Outcome)
	switch outcome {
	case contracts.OutcomeSuccess, contracts.OutcomeFailure, contracts.OutcomePartial:
	default:
		WriteBadRequest(w, "outcome must be SUCCESS, FAILURE or PARTIAL")
		return
	}
	d, err := s.approvals.RecordDecisionOutcome(r.Context(), r.PathValue("id"),
		req.ActualResult, req.ExpectedResult, outcome, req.BusinessImpact)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type createActionRequest struct {
	StoreID          string `json:"store_id"`
	Category         string `json:"category"`
	Priority         string `json:"priority"`
	Title            string `json:"title"`
	Content          string `json:"content"`
	ReceiverID       string `json:"receiver_id"`
	EscalationUserID string `json:"escalation_user_id"`
	SourceEventID    string `json:"source_event_id"`
	Push             bool   `json:"push"`
}

func (s *Server) handleCreateAction(w http.ResponseWriter, r *http.Request) {
	var req createActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	if req.StoreID == "" || req.ReceiverID == "" {
		WriteBadRequest(w, "store_id and receiver_id are required")
		return
	}
	a, err := s.dispatch.CreateAction(r.Context(), dispatch.CreateActionRequest{
		StoreID:          req.StoreID,
		Category:         req.Category,
		Priority:         contracts.Priority(req.Priority),
		Title:            req.Title,
		Content:          req.Content,
		ReceiverID:       req.ReceiverID,
		EscalationUserID: req.EscalationUserID,
		SourceEventID:    req.SourceEventID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Push {
		if a, err = s.dispatch.Push(r.Context(), a.ActionID); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	actions, err := s.dispatch.ListActions(r.Context(), store.ActionFilter{
		StoreID:    q.Get("store_id"),
		State:      contracts.ActionState(q.Get("state")),
		Priority:   contracts.Priority(q.Get("priority")),
		ReceiverID: q.Get("receiver_id"),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

func (s *Server) handleActionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.dispatch.GetStats(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleActionPush(w http.ResponseWriter, r *http.Request) {
	a, err := s.dispatch.Push(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleActionAcknowledge(w http.ResponseWriter, r *http.Request) {
	a, err := s.dispatch.Acknowledge(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type resolveActionRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleActionResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveActionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	done, err := s.dispatch.Resolve(r.Context(), r.PathValue("id"), req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"resolved": done})
}

type escalateActionRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleActionEscalate(w http.ResponseWriter, r *http.Request) {
	var req escalateActionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	escalated, err := s.dispatch.Escalate(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, escalated)
}

func (s *Server) handleWebhookCallback(w http.ResponseWriter, r *http.Request) {
	var cb webhook.Callback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	disposition, err := s.webhook.Handle(r.Context(), cb)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"disposition": string(disposition)})
}

func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records, err := s.audit.QueryExecutions(r.Context(), store.AuditFilter{
		CommandType: q.Get("command_type"),
		ActorID:     q.Get("actor_id"),
		StoreID:     q.Get("store_id"),
		Status:      q.Get("status"),
		Limit:       limit,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if err := s.audit.VerifyExecutionChain(r.Context()); err != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"valid": false, "detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}
