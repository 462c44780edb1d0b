package core

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNoRoute is returned when no service is registered for a task type.
var ErrNoRoute = errors.New("no service registered for task type")

// Report status values. A service reports exactly one of these per task.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// LinkDirective instructs the memory store to link a newly created node
// to an existing node in the graph.
type LinkDirective struct {
	TargetID string `json:"target_id"`
	Label    string `json:"label"`
}

// Task is a unit of work sent from the orchestrator to a cognitive service.
// CorrelationID groups a multi-task chain; ID is unique per task instance.
type Task struct {
	Type          string         `json:"type"`
	Payload       map[string]any `json:"payload"`
	CorrelationID string         `json:"correlation_id"`
	ID            string         `json:"task_id"`
	LinkTo        *LinkDirective `json:"link_to,omitempty"`
}

// NewTask creates a task with a fresh task ID and correlation ID.
func NewTask(taskType string, payload map[string]any) *Task {
	return &Task{
		Type:          taskType,
		Payload:       payload,
		CorrelationID: NewCorrelationID(),
		ID:            fmt.Sprintf("task_%s", uuid.New().String()[:12]),
	}
}

// WithLink attaches a link directive and returns the task for chaining.
func (t *Task) WithLink(targetID, label string) *Task {
	t.LinkTo = &LinkDirective{TargetID: targetID, Label: label}
	return t
}

// WithCorrelation propagates an existing correlation ID onto the task.
func (t *Task) WithCorrelation(correlationID string) *Task {
	t.CorrelationID = correlationID
	return t
}

// NewCorrelationID generates an ID used to trace a chain of related
// operations across services.
func NewCorrelationID() string {
	return uuid.New().String()
}

// Report is the result of a completed task, sent back to the orchestrator.
// ReportNodeID is populated by the orchestrator once the report itself has
// been recorded as a graph node.
type Report struct {
	Status         string         `json:"status"`
	SourceTaskType string         `json:"source_task_type"`
	Data           map[string]any `json:"data"`
	CorrelationID  string         `json:"correlation_id"`
	SourceTaskID   string         `json:"source_task_id"`
	LinkTo         *LinkDirective `json:"link_to,omitempty"`
	ReportNodeID   string         `json:"report_node_id,omitempty"`
}

// NewReport creates a report carrying the identity of its source task.
func NewReport(task *Task, status string, data map[string]any) *Report {
	if data == nil {
		data = map[string]any{}
	}
	return &Report{
		Status:         status,
		SourceTaskType: task.Type,
		Data:           data,
		CorrelationID:  task.CorrelationID,
		SourceTaskID:   task.ID,
	}
}

// FailureReport creates a FAILURE report carrying an error description.
func FailureReport(task *Task, err error, details string) *Report {
	data := map[string]any{"error": err.Error()}
	if details != "" {
		data["details"] = details
	}
	return NewReport(task, StatusFailure, data)
}

// Succeeded reports whether the report carries a SUCCESS status.
func (r *Report) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// Text returns the "response" field of the report data, or fallback when
// absent or empty.
func (r *Report) Text(fallback string) string {
	if r == nil {
		return fallback
	}
	if s, ok := r.Data["response"].(string); ok && s != "" {
		return s
	}
	return fallback
}
