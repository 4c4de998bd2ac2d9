package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func decisionArgs(d *contracts.DecisionLog) ([]any, error) {
	suggestion, err := jsonOrNull(d.AISuggestion)
	if err != nil {
		return nil, err
	}
	alternatives, err := jsonOrNull(d.AIAlternatives)
	if err != nil {
		return nil, err
	}
	managerDecision, err := jsonOrNull(d.ManagerDecision)
	if err != nil {
		return nil, err
	}
	chain, err := json.Marshal(d.ApprovalChain)
	if err != nil {
		return nil, fmt.Errorf("marshal approval chain: %w", err)
	}
	return []any{
		d.ID, d.DecisionType, suggestion, nullString(d.AIReasoning), d.AIConfidence, alternatives,
		d.StoreID, nullString(d.ManagerID), managerDecision, nullString(d.ManagerFeedback),
		string(d.Status), string(chain),
		nullTime(d.ApprovedAt), nullTime(d.ExecutedAt), string(d.Outcome),
		d.ActualResult, d.ExpectedResult, nullString(d.BusinessImpact),
		nullFloat(d.ResultDeviation), nullFloat(d.TrustScore), d.IsTrainingData,
		d.CreatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func scanDecision(row rowScanner) (*contracts.DecisionLog, error) {
	var (
		suggestion, alternatives, managerDecision, chain sql.NullString
		reasoning, managerID, feedback, impact           sql.NullString
		approvedAtN, executedAtN                         sql.NullString
		deviation, trustScore                            sql.NullFloat64
		createdAt, status, outcome                       string
		d                                                contracts.DecisionLog
	)
	err := row.Scan(
		&d.ID, &d.DecisionType, &suggestion, &reasoning, &d.AIConfidence, &alternatives,
		&d.StoreID, &managerID, &managerDecision, &feedback, &status, &chain,
		&approvedAtN, &executedAtN, &outcome,
		&d.ActualResult, &d.ExpectedResult, &impact,
		&deviation, &trustScore, &d.IsTrainingData, &createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, contracts.ErrNotFound
		}
		return nil, err
	}
	d.Status = contracts.DecisionStatus(status)
	d.Outcome = contracts.DecisionOutcome(outcome)
	d.AIReasoning = reasoning.String
	d.ManagerID = managerID.String
	d.ManagerFeedback = feedback.String
	d.BusinessImpact = impact.String
	d.CreatedAt = parseTime(createdAt)
	d.ApprovedAt = parseTimePtr(approvedAtN)
	d.ExecutedAt = parseTimePtr(executedAtN)
	if deviation.Valid {
		v := deviation.Float64
		d.ResultDeviation = &v
	}
	if trustScore.Valid {
		v := trustScore.Float64
		d.TrustScore = &v
	}
	if suggestion.Valid && suggestion.String != "" {
		_ = json.Unmarshal([]byte(suggestion.String), &d.AISuggestion)
	}
	if alternatives.Valid && alternatives.String != "" {
		_ = json.Unmarshal([]byte(alternatives.String), &d.AIAlternatives)
	}
	if managerDecision.Valid && managerDecision.String != "" {
		_ = json.Unmarshal([]byte(managerDecision.String), &d.ManagerDecision)
	}
	if chain.Valid && chain.String != "" {
		_ = json.Unmarshal([]byte(chain.String), &d.ApprovalChain)
	}
	return &d, nil
}

func scanExecution(row rowScanner) (*contracts.ExecutionRecord, error) {
	var (
		payload, brandID, storeID, result, rollbackID, rolledBackBy sql.NullString
		rolledBackAt                                                sql.NullString
		amount                                                      sql.NullFloat64
		createdAt, level                                            string
		rec                                                         contracts.ExecutionRecord
	)
	err := row.Scan(
		&rec.ID, &rec.CommandType, &payload, &rec.ActorID, &rec.ActorRole, &storeID, &brandID,
		&rec.Status, &level, &amount, &result, &rollbackID, &rolledBackBy, &rolledBackAt,
		&rec.PayloadHash, &rec.PrevHash, &rec.EntryHash, &createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, contracts.ErrNotFound
		}
		return nil, err
	}
	rec.Level = contracts.TrustLevel(level)
	rec.StoreID = storeID.String
	rec.BrandID = brandID.String
	rec.Result = result.String
	rec.RollbackID = rollbackID.String
	rec.RolledBackBy = rolledBackBy.String
	rec.RolledBackAt = parseTimePtr(rolledBackAt)
	rec.CreatedAt = parseTime(createdAt)
	if amount.Valid {
		v := amount.Float64
		rec.Amount = &v
	}
	if payload.Valid && payload.String != "" {
		_ = json.Unmarshal([]byte(payload.String), &rec.Payload)
	}
	return &rec, nil
}

func scanAction(row rowScanner) (*contracts.ActionRecord, error) {
	var (
		category, title, content, escalationUser, sourceEvent, notes sql.NullString
		pushedAt, acknowledgedAt, resolvedAt, escalatedAt            sql.NullString
		createdAt, priority, state                                   string
		a                                                            contracts.ActionRecord
	)
	err := row.Scan(
		&a.ActionID, &a.StoreID, &category, &priority, &title, &content, &a.ReceiverID,
		&escalationUser, &sourceEvent, &state, &createdAt,
		&pushedAt, &acknowledgedAt, &resolvedAt, &escalatedAt, &notes,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, contracts.ErrNotFound
		}
		return nil, err
	}
	a.Priority = contracts.Priority(priority)
	a.State = contracts.ActionState(state)
	a.Category = category.String
	a.Title = title.String
	a.Content = content.String
	a.EscalationUserID = escalationUser.String
	a.SourceEventID = sourceEvent.String
	a.ResolutionNotes = notes.String
	a.CreatedAt = parseTime(createdAt)
	a.PushedAt = parseTimePtr(pushedAt)
	a.AcknowledgedAt = parseTimePtr(acknowledgedAt)
	a.ResolvedAt = parseTimePtr(resolvedAt)
	a.EscalatedAt = parseTimePtr(escalatedAt)
	return &a, nil
}

func jsonOrNull(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return nil, nil
		}
	case []map[string]any:
		if t == nil {
			return nil, nil
		}
	case nil:
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return string(b), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

func parseTimePtr(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t := parseTime(v.String)
	if t.IsZero() {
		return nil
	}
	return &t
}
