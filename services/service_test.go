package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemoslabs/mnemos/core"
)

// scriptedHandler fails, panics, or succeeds depending on the task payload.
type scriptedHandler struct{}

func (scriptedHandler) Name() string             { return "scripted" }
func (scriptedHandler) SupportedTasks() []string { return []string{"scripted_task"} }

func (scriptedHandler) HandleTask(_ context.Context, task *core.Task) (*core.Report, error) {
	switch task.Payload["mode"] {
	case "error":
		return nil, fmt.Errorf("scripted failure")
	case "panic":
		panic("scripted panic")
	case "nil":
		return nil, nil
	default:
		return core.NewReport(task, core.StatusSuccess, map[string]any{"response": "ok"}), nil
	}
}

type chanSink struct {
	reports chan *core.Report
}

func (s *chanSink) ReceiveReport(_ context.Context, report *core.Report) {
	s.reports <- report
}

func TestWorkerDeliversExactlyOneReportPerTask(t *testing.T) {
	sink := &chanSink{reports: make(chan *core.Report, 16)}
	worker := NewWorker(scriptedHandler{}, sink, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	modes := []string{"ok", "error", "panic", "nil", "ok"}
	tasks := make(map[string]string, len(modes))
	for _, mode := range modes {
		task := core.NewTask("scripted_task", map[string]any{"mode": mode})
		tasks[task.ID] = mode
		worker.Submit(task)
	}

	received := make(map[string]*core.Report)
	for range modes {
		select {
		case report := <-sink.reports:
			_, dup := received[report.SourceTaskID]
			require.False(t, dup, "duplicate report for task %s", report.SourceTaskID)
			received[report.SourceTaskID] = report
		case <-time.After(5 * time.Second):
			t.Fatal("missing reports")
		}
	}

	for id, mode := range tasks {
		report := received[id]
		require.NotNil(t, report)
		assert.Equal(t, "scripted_task", report.SourceTaskType)
		if mode == "ok" {
			assert.Equal(t, core.StatusSuccess, report.Status)
		} else {
			assert.Equal(t, core.StatusFailure, report.Status)
			assert.NotEmpty(t, report.Data["error"])
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	// No stragglers after drain.
	select {
	case report := <-sink.reports:
		t.Fatalf("unexpected extra report for %s", report.SourceTaskID)
	default:
	}
}

func TestWorkerSurvivesFailuresIndefinitely(t *testing.T) {
	sink := &chanSink{reports: make(chan *core.Report, 8)}
	worker := NewWorker(scriptedHandler{}, sink, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	worker.Submit(core.NewTask("scripted_task", map[string]any{"mode": "panic"}))
	worker.Submit(core.NewTask("scripted_task", map[string]any{"mode": "ok"}))

	var statuses []string
	for i := 0; i < 2; i++ {
		select {
		case report := <-sink.reports:
			statuses = append(statuses, report.Status)
		case <-time.After(5 * time.Second):
			t.Fatal("worker stopped after a panic")
		}
	}
	assert.ElementsMatch(t, []string{core.StatusFailure, core.StatusSuccess}, statuses)
}
