package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

// SQLite implements the three stores over a single SQLite database.
type SQLite struct {
	db *sql.DB

	// appendMu serializes audit appends so the chain head read and the
	// insert form one unit. SQLite has a single writer anyway; the mutex
	// keeps the read-seal-insert sequence coherent inside this process.
	appendMu sync.Mutex
}

// NewSQLite bootstraps the schema and returns the store.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

var (
	_ DecisionStore = (*SQLite)(nil)
	_ AuditStore    = (*SQLite)(nil)
	_ ActionStore   = (*SQLite)(nil)
)

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decision_logs (
			id TEXT PRIMARY KEY,
			decision_type TEXT NOT NULL,
			ai_suggestion JSON,
			ai_reasoning TEXT,
			ai_confidence REAL,
			ai_alternatives JSON,
			store_id TEXT NOT NULL,
			manager_id TEXT,
			manager_decision JSON,
			manager_feedback TEXT,
			decision_status TEXT NOT NULL,
			approval_chain JSON,
			approved_at TEXT,
			executed_at TEXT,
			outcome TEXT NOT NULL DEFAULT '',
			actual_result REAL NOT NULL DEFAULT 0,
			expected_result REAL NOT NULL DEFAULT 0,
			business_impact TEXT,
			result_deviation REAL,
			trust_score REAL,
			is_training_data INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS execution_records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			command_type TEXT NOT NULL,
			payload JSON,
			actor_id TEXT NOT NULL,
			actor_role TEXT NOT NULL,
			store_id TEXT,
			brand_id TEXT,
			status TEXT NOT NULL,
			level TEXT NOT NULL,
			amount REAL,
			result TEXT,
			rollback_id TEXT,
			rolled_back_by TEXT,
			rolled_back_at TEXT,
			payload_hash TEXT NOT NULL,
			prev_hash TEXT NOT NULL,
			entry_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS action_records (
			action_id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL,
			category TEXT,
			priority TEXT NOT NULL,
			title TEXT,
			content TEXT,
			receiver_id TEXT NOT NULL,
			escalation_user_id TEXT,
			source_event_id TEXT,
			state TEXT NOT NULL,
			created_at TEXT NOT NULL,
			pushed_at TEXT,
			acknowledged_at TEXT,
			resolved_at TEXT,
			escalated_at TEXT,
			resolution_notes TEXT
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(context.Background(), q); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

// --- DecisionStore ---

const decisionColumns = `id, decision_type, ai_suggestion, ai_reasoning, ai_confidence, ai_alternatives,
	store_id, manager_id, manager_decision, manager_feedback, decision_status, approval_chain,
	approved_at, executed_at, outcome, actual_result, expected_result, business_impact,
	result_deviation, trust_score, is_training_data, created_at`

func (s *SQLite) CreateDecision(ctx context.Context, d *contracts.DecisionLog) error {
	query := `INSERT INTO decision_logs (` + decisionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args, err := decisionArgs(d)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert decision %s: %w", d.ID, err)
	}
	return nil
}

func (s *SQLite) GetDecision(ctx context.Context, id string) (*contracts.DecisionLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decision_logs WHERE id = ?`, id)
	return scanDecision(row)
}

func (s *SQLite) UpdateDecisionIf(ctx context.Context, d *contracts.DecisionLog, expect contracts.DecisionStatus) error {
	query := `UPDATE decision_logs SET
		manager_id = ?, manager_decision = ?, manager_feedback = ?, decision_status = ?,
		approval_chain = ?, approved_at = ?, executed_at = ?, is_training_data = ?
		WHERE id = ? AND decision_status = ?`
	managerDecision, err := jsonOrNull(d.ManagerDecision)
	if err != nil {
		return err
	}
	chain, err := json.Marshal(d.ApprovalChain)
	if err != nil {
		return fmt.Errorf("marshal approval chain: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query,
		nullString(d.ManagerID), managerDecision, nullString(d.ManagerFeedback), string(d.Status),
		string(chain), nullTime(d.ApprovedAt), nullTime(d.ExecutedAt), d.IsTrainingData,
		d.ID, string(expect))
	if err != nil {
		return fmt.Errorf("update decision %s: %w", d.ID, err)
	}
	return s.checkDecisionAffected(ctx, res, d.ID)
}

func (s *SQLite) RecordOutcomeIf(ctx context.Context, d *contracts.DecisionLog) error {
	query := `UPDATE decision_logs SET
		outcome = ?, actual_result = ?, expected_result = ?, business_impact = ?,
		result_deviation = ?, trust_score = ?
		WHERE id = ? AND outcome = ''`
	res, err := s.db.ExecContext(ctx, query,
		string(d.Outcome), d.ActualResult, d.ExpectedResult, nullString(d.BusinessImpact),
		nullFloat(d.ResultDeviation), nullFloat(d.TrustScore), d.ID)
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", d.ID, err)
	}
	return s.checkDecisionAffected(ctx, res, d.ID)
}

func (s *SQLite) checkDecisionAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetDecision(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}

func (s *SQLite) ListDecisions(ctx context.Context, f DecisionFilter) ([]*contracts.DecisionLog, error) {
	query := `SELECT ` + decisionColumns + ` FROM decision_logs WHERE 1=1`
	args := []any{}
	if f.StoreID != "" {
		query += ` AND store_id = ?`
		args = append(args, f.StoreID)
	}
	if f.Status != "" {
		query += ` AND decision_status = ?`
		args = append(args, string(f.Status))
	}
	if f.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	if f.Until != nil {
		query += ` AND created_at <= ?`
		args = append(args, f.Until.UTC().Format(time.RFC3339Nano))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.DecisionLog
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- AuditStore ---

const executionColumns = `id, command_type, payload, actor_id, actor_role, store_id, brand_id,
	status, level, amount, result, rollback_id, rolled_back_by, rolled_back_at,
	payload_hash, prev_hash, entry_hash, created_at`

func (s *SQLite) AppendExecution(ctx context.Context, rec *contracts.ExecutionRecord) error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	var prev sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT entry_hash FROM execution_records ORDER BY seq DESC LIMIT 1`).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read chain head: %w", err)
	}
	if err := sealExecution(rec, prev.String); err != nil {
		return err
	}

	payload, err := jsonOrNull(rec.Payload)
	if err != nil {
		return err
	}
	query := `INSERT INTO execution_records (` + executionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.CommandType, payload, rec.ActorID, rec.ActorRole,
		nullString(rec.StoreID), nullString(rec.BrandID), rec.Status, string(rec.Level),
		nullFloat(rec.Amount), nullString(rec.Result), nullString(rec.RollbackID),
		nullString(rec.RolledBackBy), nullTime(rec.RolledBackAt),
		rec.PayloadHash, rec.PrevHash, rec.EntryHash,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append execution %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLite) GetExecution(ctx context.Context, id string) (*contracts.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM execution_records WHERE id = ?`, id)
	return scanExecution(row)
}

func (s *SQLite) QueryExecutions(ctx context.Context, f AuditFilter) ([]*contracts.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM execution_records WHERE 1=1`
	args := []any{}
	if f.CommandType != "" {
		query += ` AND command_type = ?`
		args = append(args, f.CommandType)
	}
	if f.ActorID != "" {
		query += ` AND actor_id = ?`
		args = append(args, f.ActorID)
	}
	if f.StoreID != "" {
		query += ` AND store_id = ?`
		args = append(args, f.StoreID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY seq ASC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) VerifyExecutionChain(ctx context.Context) error {
	records, err := s.QueryExecutions(ctx, AuditFilter{})
	if err != nil {
		return err
	}
	return verifyChain(records)
}

// --- ActionStore ---

const actionColumns = `action_id, store_id, category, priority, title, content, receiver_id,
	escalation_user_id, source_event_id, state, created_at, pushed_at, acknowledged_at,
	resolved_at, escalated_at, resolution_notes`

func (s *SQLite) CreateAction(ctx context.Context, a *contracts.ActionRecord) error {
	query := `INSERT INTO action_records (` + actionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		a.ActionID, a.StoreID, nullString(a.Category), string(a.Priority), nullString(a.Title),
		nullString(a.Content), a.ReceiverID, nullString(a.EscalationUserID),
		nullString(a.SourceEventID), string(a.State),
		a.CreatedAt.UTC().Format(time.RFC3339Nano),
		nullTime(a.PushedAt), nullTime(a.AcknowledgedAt), nullTime(a.ResolvedAt),
		nullTime(a.EscalatedAt), nullString(a.ResolutionNotes))
	if err != nil {
		return fmt.Errorf("insert action %s: %w", a.ActionID, err)
	}
	return nil
}

func (s *SQLite) GetAction(ctx context.Context, id string) (*contracts.ActionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM action_records WHERE action_id = ?`, id)
	return scanAction(row)
}

func (s *SQLite) UpdateActionIf(ctx context.Context, a *contracts.ActionRecord, expect contracts.ActionState) error {
	query := `UPDATE action_records SET
		priority = ?, state = ?, pushed_at = ?, acknowledged_at = ?, resolved_at = ?,
		escalated_at = ?, resolution_notes = ?
		WHERE action_id = ? AND state = ?`
	res, err := s.db.ExecContext(ctx, query,
		string(a.Priority), string(a.State),
		nullTime(a.PushedAt), nullTime(a.AcknowledgedAt), nullTime(a.ResolvedAt),
		nullTime(a.EscalatedAt), nullString(a.ResolutionNotes),
		a.ActionID, string(expect))
	if err != nil {
		return fmt.Errorf("update action %s: %w", a.ActionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetAction(ctx, a.ActionID); err != nil {
		return err
	}
	return ErrConflict
}

func (s *SQLite) ListActions(ctx context.Context, f ActionFilter) ([]*contracts.ActionRecord, error) {
	query := `SELECT ` + actionColumns + ` FROM action_records WHERE 1=1`
	args := []any{}
	if f.StoreID != "" {
		query += ` AND store_id = ?`
		args = append(args, f.StoreID)
	}
	if f.State != "" {
		query += ` AND state = ?`
		args = append(args, string(f.State))
	}
	if f.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(f.Priority))
	}
	if f.ReceiverID != "" {
		query += ` AND receiver_id = ?`
		args = append(args, f.ReceiverID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*contracts.ActionRecord
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
