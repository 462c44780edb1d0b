package services

import "github.com/mnemoslabs/mnemos/core"

// Task types routed through the orchestrator.
const (
	TaskInstinct    = "generate_instinctive_response"
	TaskAcknowledge = "synthesize_acknowledgement"
	TaskCreatePlan  = "create_enrichment_plan"
	TaskRecall      = "recall_request"
	TaskSynthesize  = "synthesize_final_response"
	TaskCompress    = "compress_memory_chunk"
	TaskIngestFact  = "ingest_fact"
	TaskReflect     = "run_deep_reflection"
)

// stringField reads a string payload field, empty when absent or mistyped.
func stringField(task *core.Task, key string) string {
	s, _ := task.Payload[key].(string)
	return s
}

// stringsField reads a []string payload field, tolerating []any payloads that
// crossed a JSON boundary.
func stringsField(task *core.Task, key string) []string {
	switch v := task.Payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// messagesField reads a []core.Message payload field.
func messagesField(task *core.Task, key string) []core.Message {
	msgs, _ := task.Payload[key].([]core.Message)
	return msgs
}
