package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/mnemoslabs/mnemos/core"
	"github.com/mnemoslabs/mnemos/llm"
)

// LanguageModel is the slice of the LLM client the cognitive services use.
type LanguageModel interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
	GenerateStructured(ctx context.Context, req llm.Request, tool core.ToolDefinition, out any) error
	CountTokens(ctx context.Context, system string, messages []core.Message) int
	ContextLimit() int
}

// Handler processes tasks of its supported types. Implementations return
// either a report or an error; the worker guarantees the orchestrator sees
// exactly one report per task regardless.
type Handler interface {
	// Name identifies the service in logs and routing.
	Name() string

	// SupportedTasks lists the task types this service handles.
	SupportedTasks() []string

	// HandleTask processes one task to completion.
	HandleTask(ctx context.Context, task *core.Task) (*core.Report, error)
}

// ReportSink receives completed reports. The orchestrator implements it.
type ReportSink interface {
	ReceiveReport(ctx context.Context, report *core.Report)
}

// Worker drives a Handler: it accepts tasks without blocking the submitter,
// dispatches each on its own goroutine, and converts errors, panics and nil
// reports into FAILURE reports so no task ever goes unanswered.
type Worker struct {
	handler Handler
	sink    ReportSink
	logger  *log.Logger

	mu     sync.Mutex
	queue  []*core.Task
	notify chan struct{}
	wg     sync.WaitGroup
}

// NewWorker wraps handler, delivering reports to sink.
func NewWorker(handler Handler, sink ReportSink, logger *log.Logger) *Worker {
	return &Worker{
		handler: handler,
		sink:    sink,
		logger:  logger.With("service", handler.Name()),
		notify:  make(chan struct{}, 1),
	}
}

// Name returns the wrapped handler's service name.
func (w *Worker) Name() string { return w.handler.Name() }

// SupportedTasks returns the wrapped handler's task types.
func (w *Worker) SupportedTasks() []string { return w.handler.SupportedTasks() }

// Submit enqueues a task. Never blocks; the queue is unbounded.
func (w *Worker) Submit(task *core.Task) {
	w.mu.Lock()
	w.queue = append(w.queue, task)
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Run dispatches queued tasks until ctx is canceled, then waits for in-flight
// tasks to finish.
func (w *Worker) Run(ctx context.Context) {
	defer w.wg.Wait()
	for {
		task := w.pop()
		if task == nil {
			select {
			case <-ctx.Done():
				return
			case <-w.notify:
				continue
			}
		}
		w.wg.Add(1)
		go w.dispatch(ctx, task)
	}
}

func (w *Worker) pop() *core.Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return nil
	}
	task := w.queue[0]
	w.queue = w.queue[1:]
	return task
}

func (w *Worker) dispatch(ctx context.Context, task *core.Task) {
	defer w.wg.Done()
	report := w.execute(ctx, task)
	w.sink.ReceiveReport(ctx, report)
}

func (w *Worker) execute(ctx context.Context, task *core.Task) (report *core.Report) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("task handler panicked", "task", task.Type, "task_id", task.ID, "panic", r)
			report = core.FailureReport(task, fmt.Errorf("panic: %v", r), "")
		}
	}()

	w.logger.Debug("handling task", "task", task.Type, "task_id", task.ID)
	result, err := w.handler.HandleTask(ctx, task)
	if err != nil {
		w.logger.Error("task failed", "task", task.Type, "task_id", task.ID, "error", err)
		return core.FailureReport(task, err, "")
	}
	if result == nil {
		return core.FailureReport(task, fmt.Errorf("handler returned no report"), "")
	}
	return result
}
