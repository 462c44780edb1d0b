package orchestrator

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemoslabs/mnemos/config"
	"github.com/mnemoslabs/mnemos/core"
	"github.com/mnemoslabs/mnemos/jobs"
	"github.com/mnemoslabs/mnemos/memory"
	"github.com/mnemoslabs/mnemos/memory/embedder/mock"
	"github.com/mnemoslabs/mnemos/services"
)

// stubTokenizer keeps every conversation far under budget.
type stubTokenizer struct{}

func (s *stubTokenizer) CountTokens(_ context.Context, _ string, _ []core.Message) int {
	return 10
}

func (s *stubTokenizer) ContextLimit() int { return 8192 }

// charTokenizer counts one token per byte of prompt content, making budget
// arithmetic exact in tests.
type charTokenizer struct{ limit int }

func (c *charTokenizer) CountTokens(_ context.Context, system string, messages []core.Message) int {
	n := len(system)
	for _, m := range messages {
		n += len(m.Content)
	}
	return n
}

func (c *charTokenizer) ContextLimit() int { return c.limit }

// stubHandler routes a fixed set of task types to a scripted function.
type stubHandler struct {
	name  string
	tasks []string
	fn    func(task *core.Task) (*core.Report, error)
}

func (h *stubHandler) Name() string             { return h.name }
func (h *stubHandler) SupportedTasks() []string { return h.tasks }
func (h *stubHandler) HandleTask(_ context.Context, task *core.Task) (*core.Report, error) {
	return h.fn(task)
}

func testLogger() *log.Logger { return log.New(os.Stderr) }

func newTestOrchestrator(t *testing.T, tokenizer Tokenizer) (*Orchestrator, *memory.Store, *jobs.Queue) {
	t.Helper()
	store, err := memory.Open(memory.Config{}, mock.New(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	queue, err := jobs.Open("")
	require.NoError(t, err)

	orch := New(store, tokenizer, queue, config.ContextConfig{TriggerFraction: 0.7}, testLogger())
	return orch, store, queue
}

func register(t *testing.T, orch *Orchestrator, h services.Handler) {
	t.Helper()
	require.NoError(t, orch.RegisterService(services.NewWorker(h, orch, testLogger())))
}

func TestExecuteTaskNoRouteFailsSynchronously(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &stubTokenizer{})

	task := core.NewTask("unrouted_task", nil)
	report := orch.ExecuteTask(context.Background(), task)

	require.NotNil(t, report)
	assert.Equal(t, core.StatusFailure, report.Status)
	assert.Equal(t, task.ID, report.SourceTaskID)
	assert.Equal(t, 0, orch.PendingCount(), "no pending entry may remain after a routing failure")
}

func TestRegisterServiceRejectsDuplicateTaskType(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &stubTokenizer{})

	ok := &stubHandler{name: "first", tasks: []string{"shared_task"},
		fn: func(task *core.Task) (*core.Report, error) {
			return core.NewReport(task, core.StatusSuccess, nil), nil
		}}
	register(t, orch, ok)

	dup := services.NewWorker(&stubHandler{name: "second", tasks: []string{"shared_task"}, fn: ok.fn}, orch, testLogger())
	err := orch.RegisterService(dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shared_task")
}

func TestExecuteTaskRecordsChain(t *testing.T) {
	orch, store, _ := newTestOrchestrator(t, &stubTokenizer{})
	register(t, orch, &stubHandler{name: "echo", tasks: []string{"echo_task"},
		fn: func(task *core.Task) (*core.Report, error) {
			return core.NewReport(task, core.StatusSuccess, map[string]any{"response": "done"}), nil
		}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch.Start(ctx)

	report := orch.ExecuteTask(ctx, core.NewTask("echo_task", nil))
	require.True(t, report.Succeeded())
	require.NotEmpty(t, report.ReportNodeID)

	// The report node points at the task node through IS_RESULT_OF.
	results := store.SuccessorsByLabel(report.ReportNodeID, core.EdgeIsResultOf)
	require.Len(t, results, 1)
	taskNode := store.Node(results[0])
	require.NotNil(t, taskNode)
	assert.Equal(t, core.NodeTask, taskNode.Type)
	assert.Equal(t, report.SourceTaskID, taskNode.Attrs["task_id"])
}

func TestReceiveReportForUnknownTaskIsDropped(t *testing.T) {
	orch, store, _ := newTestOrchestrator(t, &stubTokenizer{})

	report := core.NewReport(core.NewTask("echo_task", nil), core.StatusSuccess, nil)
	orch.ReceiveReport(context.Background(), report)

	assert.Equal(t, 0, orch.PendingCount())
	// The report is still durably recorded.
	assert.Len(t, store.NodesByType(core.NodeReport), 1)
}

func TestEvictionArchivesEveryPair(t *testing.T) {
	// Cached pairs hold 7+15 = 22 tokens against a safe limit of 40*0.7 = 28,
	// so only the 9-token incoming impulse pushes the total over.
	orch, store, _ := newTestOrchestrator(t, &charTokenizer{limit: 40})
	register(t, orch, &stubHandler{name: "compressor", tasks: []string{services.TaskCompress},
		fn: func(task *core.Task) (*core.Report, error) {
			return core.NewReport(task, core.StatusSuccess, map[string]any{"summary": "greeting exchange"}), nil
		}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch.Start(ctx)

	impulseID, err := store.RecordEntry(ctx, core.NodeUserImpulse, "hello", nil, nil)
	require.NoError(t, err)
	responseID, err := store.RecordEntry(ctx, core.NodeFinalResponse, "hi", nil, nil)
	require.NoError(t, err)
	conceptID, err := store.GetOrCreateConcept(ctx, "greeting")
	require.NoError(t, err)
	require.NoError(t, store.AddEdge(impulseID, conceptID, core.EdgeContainsConcept))

	orch.appendTurns(
		core.Turn{Role: "user", Content: "hello", NodeID: impulseID},
		core.Turn{Role: "assistant", Content: "hi", NodeID: responseID},
		core.Turn{Role: "user", Content: "how are you", NodeID: ""},
		core.Turn{Role: "assistant", Content: "fine", NodeID: ""},
	)

	// The cache alone fits; no incoming impulse, no eviction.
	orch.evictIfNeeded(ctx, "")
	assert.Equal(t, 4, orch.CacheLen(), "cache under budget must not evict")

	// Cache plus impulse exceeds the safe limit; evicting the oldest pair
	// brings 15+9 = 24 back under it.
	orch.evictIfNeeded(ctx, "remind me")
	assert.Equal(t, 2, orch.CacheLen(), "exactly one pair evicted")

	require.Eventually(t, func() bool {
		return len(store.NodesByType(core.NodeDialogueTurn)) == 1
	}, 5*time.Second, 10*time.Millisecond, "evicted pair must be archived")

	turn := store.NodesByType(core.NodeDialogueTurn)[0]
	assert.Equal(t, "greeting exchange", turn.Content)
	assert.Equal(t, []string{impulseID}, store.SuccessorsByLabel(turn.ID, core.EdgeArchivesImpulse))
	assert.Equal(t, []string{responseID}, store.SuccessorsByLabel(turn.ID, core.EdgeArchivesResponse))
	// The archive inherits the impulse's concept edges.
	assert.Equal(t, []string{conceptID}, store.SuccessorsByLabel(turn.ID, core.EdgeContainsConcept))

	// The compress task itself is anchored to the archived impulse.
	taskNodes := store.NodesByType(core.NodeTask)
	require.Len(t, taskNodes, 1)
	assert.Equal(t, []string{impulseID}, store.SuccessorsByLabel(taskNodes[0].ID, core.EdgeIsTaskFor))
}

func TestHandleImpulseFullCycle(t *testing.T) {
	orch, store, queue := newTestOrchestrator(t, &stubTokenizer{})

	plan := services.SearchPlan{Queries: []services.SearchQuery{
		{SemanticQuery: "любимый цвет", Concepts: []string{"цвет"}},
	}}
	register(t, orch, &stubHandler{name: "executor", tasks: []string{services.TaskInstinct},
		fn: func(task *core.Task) (*core.Report, error) {
			return core.NewReport(task, core.StatusSuccess, map[string]any{"response": "кажется, синий"}), nil
		}})
	register(t, orch, &stubHandler{name: "planner", tasks: []string{services.TaskCreatePlan},
		fn: func(task *core.Task) (*core.Report, error) {
			return core.NewReport(task, core.StatusSuccess, map[string]any{"plan": plan}), nil
		}})
	register(t, orch, &stubHandler{name: "recall", tasks: []string{services.TaskRecall},
		fn: func(task *core.Task) (*core.Report, error) {
			findings := []services.Finding{{NodeID: "fact_1", NodeType: core.NodeFact,
				Content: "любимый цвет — синий", RelevanceScore: 50}}
			return core.NewReport(task, core.StatusSuccess, map[string]any{"found_nodes": findings}), nil
		}})
	register(t, orch, &stubHandler{name: "synthesis", tasks: []string{services.TaskSynthesize},
		fn: func(task *core.Task) (*core.Report, error) {
			findings, _ := task.Payload["findings"].([]services.Finding)
			if len(findings) != 1 {
				return nil, fmt.Errorf("expected merged findings, got %d", len(findings))
			}
			return core.NewReport(task, core.StatusSuccess, map[string]any{"response": "Твой любимый цвет — синий."}), nil
		}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch.Start(ctx)

	answer, err := orch.HandleImpulse(ctx, "Напомни мой любимый цвет")
	require.NoError(t, err)
	assert.Equal(t, "Твой любимый цвет — синий.", answer)

	impulses := store.NodesByType(core.NodeUserImpulse)
	require.Len(t, impulses, 1)
	impulseID := impulses[0].ID

	// Instinct and final response hang off the impulse.
	assert.Len(t, store.PredecessorsByLabel(impulseID, core.EdgeIsInstinctFor), 1)
	finals := store.PredecessorsByLabel(impulseID, core.EdgeIsResponseTo)
	require.Len(t, finals, 1)
	assert.Equal(t, "Твой любимый цвет — синий.", store.Node(finals[0]).Content)

	// The plan was persisted and the concept materialized.
	assert.Len(t, store.PredecessorsByLabel(impulseID, core.EdgeContainsPlan), 1)
	concepts := store.SuccessorsByLabel(impulseID, core.EdgeContainsConcept)
	require.Len(t, concepts, 1)
	assert.Equal(t, "цвет", store.Node(concepts[0]).Content)

	// Closure: cached exchange and a queued crystallization job.
	assert.Equal(t, 2, orch.CacheLen())
	assert.Equal(t, 1, queue.Len())
	job, ok := queue.Pop(ctx, time.Second)
	require.True(t, ok)
	assert.Equal(t, impulseID, job.ImpulseID)

	// The cognitive chain is traceable from the impulse over process edges:
	// the final response plus every task and report node of the cycle.
	chain := orch.TraceChain(impulseID)
	assert.Contains(t, chain, finals[0])
	reachable := make(map[string]bool, len(chain))
	for _, id := range chain {
		reachable[id] = true
	}
	taskNodes := store.NodesByType(core.NodeTask)
	require.NotEmpty(t, taskNodes)
	for _, n := range taskNodes {
		assert.True(t, reachable[n.ID], "task node %s (%s) disconnected from the impulse chain", n.ID, n.Content)
	}
	for _, n := range store.NodesByType(core.NodeReport) {
		assert.True(t, reachable[n.ID], "report node %s disconnected from the impulse chain", n.ID)
	}
}

func TestIngestFactFlow(t *testing.T) {
	orch, store, _ := newTestOrchestrator(t, &stubTokenizer{})
	register(t, orch, &stubHandler{name: "facts", tasks: []string{services.TaskIngestFact},
		fn: func(task *core.Task) (*core.Report, error) {
			return core.NewReport(task, core.StatusSuccess, map[string]any{"fact_node_id": "fact_x"}), nil
		}})
	register(t, orch, &stubHandler{name: "executor", tasks: []string{services.TaskAcknowledge},
		fn: func(task *core.Task) (*core.Report, error) {
			return core.NewReport(task, core.StatusSuccess, map[string]any{"response": "Запомнил."}), nil
		}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch.Start(ctx)

	ack, err := orch.IngestFact(ctx, "любимый цвет — синий")
	require.NoError(t, err)
	assert.Equal(t, "Запомнил.", ack)
	assert.Len(t, store.NodesByType(core.NodeUserImpulse), 1)
}
