package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

// Memory is the in-memory implementation of all three stores. It backs
// unit tests and single-process development runs.
type Memory struct {
	mu         sync.RWMutex
	decisions  map[string]*contracts.DecisionLog
	executions []*contracts.ExecutionRecord
	execByID   map[string]*contracts.ExecutionRecord
	chainHead  string
	actions    map[string]*contracts.ActionRecord
	actionSeq  []string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		decisions: make(map[string]*contracts.DecisionLog),
		execByID:  make(map[string]*contracts.ExecutionRecord),
		chainHead: chainGenesis,
		actions:   make(map[string]*contracts.ActionRecord),
	}
}

var (
	_ DecisionStore = (*Memory)(nil)
	_ AuditStore    = (*Memory)(nil)
	_ ActionStore   = (*Memory)(nil)
)

// --- DecisionStore ---

func (m *Memory) CreateDecision(ctx context.Context, d *contracts.DecisionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.decisions[d.ID] = &cp
	return nil
}

func (m *Memory) GetDecision(ctx context.Context, id string) (*contracts.DecisionLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.decisions[id]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *Memory) UpdateDecisionIf(ctx context.Context, d *contracts.DecisionLog, expect contracts.DecisionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.decisions[d.ID]
	if !ok {
		return contracts.ErrNotFound
	}
	if cur.Status != expect {
		return ErrConflict
	}
	cp := *d
	m.decisions[d.ID] = &cp
	return nil
}

func (m *Memory) RecordOutcomeIf(ctx context.Context, d *contracts.DecisionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.decisions[d.ID]
	if !ok {
		return contracts.ErrNotFound
	}
	if cur.Outcome != "" {
		return ErrConflict
	}
	cp := *d
	m.decisions[d.ID] = &cp
	return nil
}

func (m *Memory) ListDecisions(ctx context.Context, f DecisionFilter) ([]*contracts.DecisionLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*contracts.DecisionLog, 0)
	for _, d := range m.decisions {
		if f.StoreID != "" && d.StoreID != f.StoreID {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.Since != nil && d.CreatedAt.Before(*f.Since) {
			continue
		}
		if f.Until != nil && d.CreatedAt.After(*f.Until) {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- AuditStore ---

func (m *Memory) AppendExecution(ctx context.Context, rec *contracts.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	if err := sealExecution(&cp, m.chainHead); err != nil {
		return err
	}
	m.executions = append(m.executions, &cp)
	m.execByID[cp.ID] = &cp
	m.chainHead = cp.EntryHash
	*rec = cp
	return nil
}

func (m *Memory) GetExecution(ctx context.Context, id string) (*contracts.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.execByID[id]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) QueryExecutions(ctx context.Context, f AuditFilter) ([]*contracts.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*contracts.ExecutionRecord, 0)
	for _, rec := range m.executions {
		if f.CommandType != "" && rec.CommandType != f.CommandType {
			continue
		}
		if f.ActorID != "" && rec.ActorID != f.ActorID {
			continue
		}
		if f.StoreID != "" && rec.StoreID != f.StoreID {
			continue
		}
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		cp := *rec
		out = append(out, &cp)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) VerifyExecutionChain(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return verifyChain(m.executions)
}

// --- ActionStore ---

func (m *Memory) CreateAction(ctx context.Context, a *contracts.ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.actions[a.ActionID] = &cp
	m.actionSeq = append(m.actionSeq, a.ActionID)
	return nil
}

func (m *Memory) GetAction(ctx context.Context, id string) (*contracts.ActionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) UpdateActionIf(ctx context.Context, a *contracts.ActionRecord, expect contracts.ActionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.actions[a.ActionID]
	if !ok {
		return contracts.ErrNotFound
	}
	if cur.State != expect {
		return ErrConflict
	}
	cp := *a
	m.actions[a.ActionID] = &cp
	return nil
}

func (m *Memory) ListActions(ctx context.Context, f ActionFilter) ([]*contracts.ActionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*contracts.ActionRecord, 0)
	for _, id := range m.actionSeq {
		a := m.actions[id]
		if f.StoreID != "" && a.StoreID != f.StoreID {
			continue
		}
		if f.State != "" && a.State != f.State {
			continue
		}
		if f.Priority != "" && a.Priority != f.Priority {
			continue
		}
		if f.ReceiverID != "" && a.ReceiverID != f.ReceiverID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}
