package tools

import (
	"github.com/mnemoslabs/mnemos/core"
)

// SearchPlanTool returns the definition the enrichment planner forces to get
// a structured search plan back from the model.
func SearchPlanTool() core.ToolDefinition {
	return core.ToolDefinition{
		Name:        "create_search_plan",
		Description: "Record the memory search plan for answering the user. Each query pairs a semantic search phrase with the key concepts it involves.",
		Properties: map[string]interface{}{
			"queries": ArrayProperty(
				"Search queries to run against memory, most important first.",
				ObjectSchema(map[string]interface{}{
					"semantic_query": StringProperty("A short phrase capturing what to look for, phrased for similarity search."),
					"concepts":       ArrayProperty("Key concepts (single words or short noun phrases) this query revolves around.", StringProperty("")),
				}, "semantic_query", "concepts"),
			),
		},
		Required: []string{"queries"},
	}
}

// ConceptPairsTool returns the definition the crystallizer forces to extract
// related concept pairs from a completed exchange.
func ConceptPairsTool() core.ToolDefinition {
	return core.ToolDefinition{
		Name:        "extract_concept_pairs",
		Description: "Record the pairs of concepts whose relationship this exchange demonstrates. Only pair concepts that are genuinely related in the exchange.",
		Properties: map[string]interface{}{
			"pairs": ArrayProperty(
				"Related concept pairs found in the exchange.",
				ObjectSchema(map[string]interface{}{
					"concept_a": StringProperty("First concept of the pair."),
					"concept_b": StringProperty("Second concept of the pair."),
				}, "concept_a", "concept_b"),
			),
		},
		Required: []string{"pairs"},
	}
}

// ConceptListTool returns the definition used to pull the key concepts out of
// a single piece of text, for fact ingestion and archive distillation.
func ConceptListTool() core.ToolDefinition {
	return core.ToolDefinition{
		Name:        "extract_concepts",
		Description: "Record the key concepts present in the text. Concepts are single words or short noun phrases, lowercased.",
		Properties: map[string]interface{}{
			"concepts": ArrayProperty("Key concepts in the text.", StringProperty("")),
		},
		Required: []string{"concepts"},
	}
}
