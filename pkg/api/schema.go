package api

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// proposalSchema gates inbound proposals before they reach the guardrail
// engine. Content stays an open object; the rules decide what is inside it.
var proposalSchema = jsonschema.MustCompileString("proposal.json", `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["proposal_id", "proposal_type", "content"],
	"properties": {
		"proposal_id": {"type": "string", "minLength": 1},
		"proposal_type": {"type": "string", "minLength": 1},
		"content": {"type": "object"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reasoning": {"type": "string"},
		"created_at": {"type": "string"}
	}
}`)

func validateProposal(doc any) error {
	return proposalSchema.Validate(doc)
}
