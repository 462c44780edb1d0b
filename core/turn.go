package core

// Message is a role-tagged message in an LLM conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn is one entry of the orchestrator's conversation cache. NodeID points
// at the graph node the turn's content was recorded under, so evicted turns
// can be archived with full traceability.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	NodeID  string `json:"node_id"`
}

// Messages converts cached turns into plain LLM messages, dropping node IDs.
func Messages(turns []Turn) []Message {
	msgs := make([]Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, Message{Role: t.Role, Content: t.Content})
	}
	return msgs
}
