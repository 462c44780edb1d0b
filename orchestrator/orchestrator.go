// Package orchestrator routes tasks to cognitive services, tracks their
// reports through pending completion handles, and drives the per-impulse
// cognitive cycle.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/mnemoslabs/mnemos/config"
	"github.com/mnemoslabs/mnemos/core"
	"github.com/mnemoslabs/mnemos/jobs"
	"github.com/mnemoslabs/mnemos/memory"
	"github.com/mnemoslabs/mnemos/services"
)

// Tokenizer is the slice of the LLM client the orchestrator needs for
// context budgeting.
type Tokenizer interface {
	CountTokens(ctx context.Context, system string, messages []core.Message) int
	ContextLimit() int
}

// Orchestrator owns the routing table, the pending-report map, the
// conversation cache, and the supervised background pool.
type Orchestrator struct {
	store     *memory.Store
	tokenizer Tokenizer
	queue     *jobs.Queue
	cfg       config.ContextConfig
	logger    *log.Logger

	// Routing is write-once per service at registration, read-many after.
	routes  map[string]*services.Worker
	workers []*services.Worker

	pendingMu sync.Mutex
	pending   map[string]chan *core.Report

	cacheMu sync.Mutex
	cache   []core.Turn

	bgCtx context.Context
	bg    sync.WaitGroup
}

// New builds an orchestrator over the store, tokenizer and jobs queue.
func New(store *memory.Store, tokenizer Tokenizer, queue *jobs.Queue, cfg config.ContextConfig, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		tokenizer: tokenizer,
		queue:     queue,
		cfg:       cfg,
		logger:    logger,
		routes:    make(map[string]*services.Worker),
		pending:   make(map[string]chan *core.Report),
	}
}

// RegisterService adds a worker to the routing table. Claiming a task type
// that is already routed is a configuration error and fails loudly.
func (o *Orchestrator) RegisterService(w *services.Worker) error {
	for _, taskType := range w.SupportedTasks() {
		if owner, taken := o.routes[taskType]; taken {
			return fmt.Errorf("task type %q already registered to %s", taskType, owner.Name())
		}
	}
	for _, taskType := range w.SupportedTasks() {
		o.routes[taskType] = w
	}
	o.workers = append(o.workers, w)
	o.logger.Info("service registered", "service", w.Name(), "tasks", w.SupportedTasks())
	return nil
}

// Start launches every registered worker loop under the supervised pool.
// Registration must be complete before Start; the routing table is read
// without locking afterwards.
func (o *Orchestrator) Start(ctx context.Context) {
	o.bgCtx = ctx
	for _, w := range o.workers {
		w := w
		o.bg.Add(1)
		go func() {
			defer o.bg.Done()
			w.Run(ctx)
		}()
	}
}

// Shutdown waits for the worker loops and background tasks to drain. The
// context passed to Start must already be canceled.
func (o *Orchestrator) Shutdown() {
	o.bg.Wait()
}

// SubmitTask routes the task and returns the completion handle its report
// will arrive on. A missing route returns core.ErrNoRoute with nothing added
// to the pending map.
func (o *Orchestrator) SubmitTask(task *core.Task) (<-chan *core.Report, error) {
	worker, ok := o.routes[task.Type]
	if !ok {
		o.logger.Error("no route for task", "task", task.Type, "task_id", task.ID)
		return nil, fmt.Errorf("%w: %s", core.ErrNoRoute, task.Type)
	}
	ch := make(chan *core.Report, 1)
	o.pendingMu.Lock()
	o.pending[task.ID] = ch
	o.pendingMu.Unlock()
	worker.Submit(task)
	return ch, nil
}

// ExecuteTask records the task as a graph node, submits it, and awaits its
// report. Routing failures come back as local FAILURE reports rather than
// errors; cancellation abandons the pending handle, and a late report for it
// is dropped on arrival.
func (o *Orchestrator) ExecuteTask(ctx context.Context, task *core.Task) *core.Report {
	taskNodeID := o.recordTaskNode(ctx, task)

	ch, err := o.SubmitTask(task)
	if err != nil {
		return core.FailureReport(task, err, "")
	}

	select {
	case <-ctx.Done():
		o.dropPending(task.ID)
		return core.FailureReport(task, ctx.Err(), "canceled while awaiting report")
	case report := <-ch:
		if report.ReportNodeID != "" && taskNodeID != "" {
			if err := o.store.AddEdge(report.ReportNodeID, taskNodeID, core.EdgeIsResultOf); err != nil {
				o.logger.Warn("result edge failed", "report", report.ReportNodeID, "task", taskNodeID, "error", err)
			}
		}
		return report
	}
}

// ReceiveReport records the report as a graph node and resolves its pending
// handle. Reports for unknown or expired task IDs are dropped silently.
func (o *Orchestrator) ReceiveReport(ctx context.Context, report *core.Report) {
	report.ReportNodeID = o.recordReportNode(ctx, report)

	o.pendingMu.Lock()
	ch, ok := o.pending[report.SourceTaskID]
	if ok {
		delete(o.pending, report.SourceTaskID)
	}
	o.pendingMu.Unlock()
	if !ok {
		o.logger.Debug("report for unknown task dropped", "task_id", report.SourceTaskID)
		return
	}
	ch <- report
}

// PendingCount reports how many tasks are awaiting completion.
func (o *Orchestrator) PendingCount() int {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	return len(o.pending)
}

// TraceChain returns the cognitive chain reachable from a node over process
// edges.
func (o *Orchestrator) TraceChain(rootID string) []string {
	return o.store.Trace(rootID, core.EdgeKindProcess)
}

// Save flushes the memory store to disk.
func (o *Orchestrator) Save() error {
	return o.store.Flush()
}

func (o *Orchestrator) dropPending(taskID string) {
	o.pendingMu.Lock()
	delete(o.pending, taskID)
	o.pendingMu.Unlock()
}

// spawn runs fn on the supervised background pool; Shutdown awaits it.
func (o *Orchestrator) spawn(fn func(ctx context.Context)) {
	ctx := o.bgCtx
	if ctx == nil {
		ctx = context.Background()
	}
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		fn(ctx)
	}()
}

func (o *Orchestrator) recordTaskNode(ctx context.Context, task *core.Task) string {
	var links []core.LinkDirective
	if task.LinkTo != nil {
		links = append(links, *task.LinkTo)
	}
	id, err := o.store.RecordEntry(ctx, core.NodeTask, task.Type, map[string]any{
		"task_id":        task.ID,
		"correlation_id": task.CorrelationID,
	}, links)
	if err != nil {
		o.logger.Warn("task node not recorded", "task", task.Type, "error", err)
		return ""
	}
	return id
}

func (o *Orchestrator) recordReportNode(ctx context.Context, report *core.Report) string {
	content := report.Status
	if data, err := json.Marshal(report.Data); err == nil {
		content = string(data)
	}
	var links []core.LinkDirective
	if report.LinkTo != nil {
		links = append(links, *report.LinkTo)
	}
	id, err := o.store.RecordEntry(ctx, core.NodeReport, content, map[string]any{
		"status":           report.Status,
		"source_task_type": report.SourceTaskType,
		"source_task_id":   report.SourceTaskID,
		"correlation_id":   report.CorrelationID,
	}, links)
	if err != nil {
		o.logger.Warn("report node not recorded", "task_id", report.SourceTaskID, "error", err)
		return ""
	}
	return id
}
