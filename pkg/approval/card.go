package approval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
	"github.com/Storemind-AI/trustcore/pkg/notify"
)

const defaultUrgency = "P2"

// buildCard renders a decision into a push message a manager can act on.
// The title carries the urgency prefix; the metadata carries the decision id
// and the action verbs the client should render as buttons.
func buildCard(d *contracts.DecisionLog, receiverID, urgency string) *notify.Message {
	if urgency == "" {
		urgency = defaultUrgency
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Store %s requests approval for %s.\n", d.StoreID, d.DecisionType)
	if len(d.AISuggestion) > 0 {
		fmt.Fprintf(&body, "Suggestion: %s\n", summarize(d.AISuggestion))
	}
	if d.AIReasoning != "" {
		fmt.Fprintf(&body, "Reasoning: %s\n", d.AIReasoning)
	}
	fmt.Fprintf(&body, "Confidence: %.0f%%", d.AIConfidence*100)

	return &notify.Message{
		ReceiverID: receiverID,
		Title:      fmt.Sprintf("[%s] Approval needed: %s", urgency, d.DecisionType),
		Body:       body.String(),
		Priority:   urgency,
		Metadata: map[string]string{
			"decision_id": d.ID,
			"actions":     "approve,modify,reject",
		},
	}
}

func summarize(payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
	}
	return strings.Join(parts, ", ")
}
