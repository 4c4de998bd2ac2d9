// Package contracts defines the shared data model of the trust/execution
// governance pipeline: AI proposals, guardrail verdicts, human decision
// logs, immutable execution records, and dispatched remediation actions.
//
// Entities cross-reference each other by id only. No live object is shared
// mutable across components.
package contracts

import "time"

// Proposal is an AI-generated suggestion produced by an upstream model.
// It is immutable once created; the pipeline never mutates a Proposal in
// place; auto-fixes operate on a copy of Content.
type Proposal struct {
	ProposalID string         `json:"proposal_id"`
	Type       string         `json:"proposal_type"`
	Content    map[string]any `json:"content"`
	Confidence float64        `json:"confidence"` // [0,1]
	Reasoning  string         `json:"reasoning"`
	CreatedAt  time.Time      `json:"created_at"`
}

// CloneContent returns a deep-enough copy of the proposal content for
// auto-fixing. Nested maps are copied one level deep; scalar leaves are
// shared, which is safe because fixes replace values rather than mutate them.
func (p *Proposal) CloneContent() map[string]any {
	if p.Content == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(p.Content))
	for k, v := range p.Content {
		if m, ok := v.(map[string]any); ok {
			inner := make(map[string]any, len(m))
			for ik, iv := range m {
				inner[ik] = iv
			}
			out[k] = inner
			continue
		}
		out[k] = v
	}
	return out
}
