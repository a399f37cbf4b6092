// internal/extract/schema.go
package extract

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// parsedProposalSchema is deliberately permissive: every field is
// optional and extra fields are allowed, but a field that is present must
// carry the right shape, so a hallucinated structure fails fast instead
// of poisoning the scoring engine.
const parsedProposalSchema = `{
	"type": "object",
	"properties": {
		"vendorName": {"type": ["string", "null"]},
		"cost": {"type": ["number", "null"]},
		"timeline_days": {"type": ["number", "null"]},
		"quality": {
			"type": ["object", "null"],
			"properties": {
				"defectRate": {"type": ["number", "null"]},
				"returnRate": {"type": ["number", "null"]}
			}
		},
		"support": {
			"type": ["object", "null"],
			"properties": {
				"slaRespHours": {"type": ["number", "null"]}
			}
		},
		"reliability": {
			"type": ["object", "null"],
			"properties": {
				"failureRate": {"type": ["number", "null"]}
			}
		},
		"compliance": {
			"type": ["object", "null"],
			"additionalProperties": {"type": "boolean"}
		},
		"business": {
			"type": ["object", "null"],
			"properties": {
				"yearsInOperation": {"type": ["number", "null"]},
				"clientRetentionRate": {"type": ["number", "null"]}
			}
		},
		"notes": {"type": ["string", "null"]}
	}
}`

var proposalSchemaLoader = gojsonschema.NewStringLoader(parsedProposalSchema)

// ValidateParsedProposal checks an extracted document against the
// proposal field schema.
func ValidateParsedProposal(doc json.RawMessage) error {
	result, err := gojsonschema.Validate(proposalSchemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("extracted proposal failed validation: %v", errs)
	}
	return nil
}
