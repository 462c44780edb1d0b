package core

// ToolDefinition describes a structured-output tool offered to the language
// model. The cognitive services force a single tool to get schema-constrained
// JSON back instead of free text.
type ToolDefinition struct {
	Name        string
	Description string
	Properties  map[string]interface{}
	Required    []string
}
