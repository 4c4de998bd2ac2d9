package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Semantic convention attributes for the trust pipeline.
var (
	// Guardrail attributes
	AttrProposalID   = attribute.Key("trustcore.proposal.id")
	AttrProposalType = attribute.Key("trustcore.proposal.type")
	AttrVerdict      = attribute.Key("trustcore.guardrail.verdict")
	AttrRuleID       = attribute.Key("trustcore.guardrail.rule_id")

	// Execution attributes
	AttrExecutionID = attribute.Key("trustcore.execution.id")
	AttrCommandType = attribute.Key("trustcore.command.type")
	AttrTrustLevel  = attribute.Key("trustcore.command.trust_level")
	AttrActorID     = attribute.Key("trustcore.actor.id")
	AttrStoreID     = attribute.Key("trustcore.store.id")

	// Approval attributes
	AttrDecisionID     = attribute.Key("trustcore.decision.id")
	AttrDecisionStatus = attribute.Key("trustcore.decision.status")
	AttrManagerID      = attribute.Key("trustcore.decision.manager_id")

	// Action dispatch attributes
	AttrActionID    = attribute.Key("trustcore.action.id")
	AttrActionState = attribute.Key("trustcore.action.state")
	AttrPriority    = attribute.Key("trustcore.action.priority")
)

// GuardrailOperation creates attributes for a proposal evaluation.
func GuardrailOperation(proposalID, proposalType, verdict string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProposalID.String(proposalID),
		AttrProposalType.String(proposalType),
		AttrVerdict.String(verdict),
	}
}

// ExecutionOperation creates attributes for a command execution.
func ExecutionOperation(executionID, commandType, trustLevel, actorID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrExecutionID.String(executionID),
		AttrCommandType.String(commandType),
		AttrTrustLevel.String(trustLevel),
		AttrActorID.String(actorID),
	}
}

// DecisionOperation creates attributes for an approval decision transition.
func DecisionOperation(decisionID, status, managerID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrDecisionID.String(decisionID),
		AttrDecisionStatus.String(status),
		AttrManagerID.String(managerID),
	}
}

// ActionOperation creates attributes for an action dispatch transition.
func ActionOperation(actionID, state, priority string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrActionID.String(actionID),
		AttrActionState.String(state),
		AttrPriority.String(priority),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span when non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
}
