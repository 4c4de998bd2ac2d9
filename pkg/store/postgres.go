package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

// Postgres implements the three stores over PostgreSQL.
//
// Timestamps are stored as RFC 3339 UTC text so the scan path is shared
// with the SQLite store; lexicographic order equals chronological order.
//
// The execution_records table is the tamper-evident audit trail: the
// application role must have UPDATE and DELETE revoked on it
// (REVOKE UPDATE, DELETE ON execution_records FROM trustcore_app). That
// grant is infrastructure policy; this store never issues either statement.
type Postgres struct {
	db       *sql.DB
	appendMu sync.Mutex
}

// NewPostgres bootstraps the schema and returns the store.
func NewPostgres(db *sql.DB) (*Postgres, error) {
	s := &Postgres{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

var (
	_ DecisionStore = (*Postgres)(nil)
	_ AuditStore    = (*Postgres)(nil)
	_ ActionStore   = (*Postgres)(nil)
)

func (s *Postgres) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decision_logs (
			id TEXT PRIMARY KEY,
			decision_type TEXT NOT NULL,
			ai_suggestion JSONB,
			ai_reasoning TEXT,
			ai_confidence DOUBLE PRECISION,
			ai_alternatives JSONB,
			store_id TEXT NOT NULL,
			manager_id TEXT,
			manager_decision JSONB,
			manager_feedback TEXT,
			decision_status TEXT NOT NULL,
			approval_chain JSONB,
			approved_at TEXT,
			executed_at TEXT,
			outcome TEXT NOT NULL DEFAULT '',
			actual_result DOUBLE PRECISION NOT NULL DEFAULT 0,
			expected_result DOUBLE PRECISION NOT NULL DEFAULT 0,
			business_impact TEXT,
			result_deviation DOUBLE PRECISION,
			trust_score DOUBLE PRECISION,
			is_training_data INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS execution_records (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			command_type TEXT NOT NULL,
			payload JSONB,
			actor_id TEXT NOT NULL,
			actor_role TEXT NOT NULL,
			store_id TEXT,
			brand_id TEXT,
			status TEXT NOT NULL,
			level TEXT NOT NULL,
			amount DOUBLE PRECISION,
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
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}

// --- DecisionStore ---

func (s *Postgres) CreateDecision(ctx context.Context, d *contracts.DecisionLog) error {
	query := `INSERT INTO decision_logs (` + decisionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	args, err := decisionArgs(d)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert decision %s: %w", d.ID, err)
	}
	return nil
}

func (s *Postgres) GetDecision(ctx context.Context, id string) (*contracts.DecisionLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decision_logs WHERE id = $1`, id)
	return scanDecision(row)
}

func (s *Postgres) UpdateDecisionIf(ctx context.Context, d *contracts.DecisionLog, expect contracts.DecisionStatus) error {
	query := `UPDATE decision_logs SET
		manager_id = $1, manager_decision = $2, manager_feedback = $3, decision_status = $4,
		approval_chain = $5, approved_at = $6, executed_at = $7, is_training_data = $8
		WHERE id = $9 AND decision_status = $10`
	managerDecision, err := jsonOrNull(d.ManagerDecision)
	if err != nil {
		return err
	}
	chain, err := jsonOrNull(append([]contracts.ChainEntry(nil), d.ApprovalChain...))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query,
		nullString(d.ManagerID), managerDecision, nullString(d.ManagerFeedback), string(d.Status),
		chain, nullTime(d.ApprovedAt), nullTime(d.ExecutedAt), d.IsTrainingData,
		d.ID, string(expect))
	if err != nil {
		return fmt.Errorf("update decision %s: %w", d.ID, err)
	}
	return s.checkDecisionAffected(ctx, res, d.ID)
}

func (s *Postgres) RecordOutcomeIf(ctx context.Context, d *contracts.DecisionLog) error {
	query := `UPDATE decision_logs SET
		outcome = $1, actual_result = $2, expected_result = $3, business_impact = $4,
		result_deviation = $5, trust_score = $6
		WHERE id = $7 AND outcome = ''`
	res, err := s.db.ExecContext(ctx, query,
		string(d.Outcome), d.ActualResult, d.ExpectedResult, nullString(d.BusinessImpact),
		nullFloat(d.ResultDeviation), nullFloat(d.TrustScore), d.ID)
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", d.ID, err)
	}
	return s.checkDecisionAffected(ctx, res, d.ID)
}

func (s *Postgres) checkDecisionAffected(ctx context.Context, res sql.Result, id string) error {
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

func (s *Postgres) ListDecisions(ctx context.Context, f DecisionFilter) ([]*contracts.DecisionLog, error) {
	query := `SELECT ` + decisionColumns + ` FROM decision_logs WHERE 1=1`
	args := []any{}
	if f.StoreID != "" {
		args = append(args, f.StoreID)
		query += fmt.Sprintf(` AND store_id = $%d`, len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(` AND decision_status = $%d`, len(args))
	}
	if f.Since != nil {
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
		query += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if f.Until != nil {
		args = append(args, f.Until.UTC().Format(time.RFC3339Nano))
		query += fmt.Sprintf(` AND created_at <= $%d`, len(args))
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

func (s *Postgres) AppendExecution(ctx context.Context, rec *contracts.ExecutionRecord) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
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

func (s *Postgres) GetExecution(ctx context.Context, id string) (*contracts.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM execution_records WHERE id = $1`, id)
	return scanExecution(row)
}

func (s *Postgres) QueryExecutions(ctx context.Context, f AuditFilter) ([]*contracts.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM execution_records WHERE 1=1`
	args := []any{}
	if f.CommandType != "" {
		args = append(args, f.CommandType)
		query += fmt.Sprintf(` AND command_type = $%d`, len(args))
	}
	if f.ActorID != "" {
		args = append(args, f.ActorID)
		query += fmt.Sprintf(` AND actor_id = $%d`, len(args))
	}
	if f.StoreID != "" {
		args = append(args, f.StoreID)
		query += fmt.Sprintf(` AND store_id = $%d`, len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
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

func (s *Postgres) VerifyExecutionChain(ctx context.Context) error {
	records, err := s.QueryExecutions(ctx, AuditFilter{})
	if err != nil {
		return err
	}
	return verifyChain(records)
}

// --- ActionStore ---

func (s *Postgres) CreateAction(ctx context.Context, a *contracts.ActionRecord) error {
	query := `INSERT INTO action_records (` + actionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
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

func (s *Postgres) GetAction(ctx context.Context, id string) (*contracts.ActionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM action_records WHERE action_id = $1`, id)
	return scanAction(row)
}

func (s *Postgres) UpdateActionIf(ctx context.Context, a *contracts.ActionRecord, expect contracts.ActionState) error {
	query := `UPDATE action_records SET
		priority = $1, state = $2, pushed_at = $3, acknowledged_at = $4, resolved_at = $5,
		escalated_at = $6, resolution_notes = $7
		WHERE action_id = $8 AND state = $9`
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

func (s *Postgres) ListActions(ctx context.Context, f ActionFilter) ([]*contracts.ActionRecord, error) {
	query := `SELECT ` + actionColumns + ` FROM action_records WHERE 1=1`
	args := []any{}
	if f.StoreID != "" {
		args = append(args, f.StoreID)
		query += fmt.Sprintf(` AND store_id = $%d`, len(args))
	}
	if f.State != "" {
		args = append(args, string(f.State))
		query += fmt.Sprintf(` AND state = $%d`, len(args))
	}
	if f.Priority != "" {
		args = append(args, string(f.Priority))
		query += fmt.Sprintf(` AND priority = $%d`, len(args))
	}
	if f.ReceiverID != "" {
		args = append(args, f.ReceiverID)
		query += fmt.Sprintf(` AND receiver_id = $%d`, len(args))
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
