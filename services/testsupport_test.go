package services

import (
	"context"
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/mnemoslabs/mnemos/core"
	"github.com/mnemoslabs/mnemos/llm"
	"github.com/mnemoslabs/mnemos/memory"
	"github.com/mnemoslabs/mnemos/memory/embedder/mock"
)

// fakeModel scripts the language model for tests. Unset hooks return zero
// values so tests only script what they assert on.
type fakeModel struct {
	generate   func(req llm.Request) (string, error)
	structured func(req llm.Request, tool core.ToolDefinition, out any) error
	limit      int
}

func (f *fakeModel) Generate(_ context.Context, req llm.Request) (string, error) {
	if f.generate == nil {
		return "", nil
	}
	return f.generate(req)
}

func (f *fakeModel) GenerateStructured(_ context.Context, req llm.Request, tool core.ToolDefinition, out any) error {
	if f.structured == nil {
		return nil
	}
	return f.structured(req, tool, out)
}

func (f *fakeModel) CountTokens(_ context.Context, system string, messages []core.Message) int {
	chars := len(system)
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / 3
}

func (f *fakeModel) ContextLimit() int {
	if f.limit == 0 {
		return 8192
	}
	return f.limit
}

func testLogger() *log.Logger {
	return log.New(os.Stderr)
}

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.Open(memory.Config{}, mock.New(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}
