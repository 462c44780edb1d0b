package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemoslabs/mnemos/core"
	"github.com/mnemoslabs/mnemos/jobs"
	"github.com/mnemoslabs/mnemos/llm"
	"github.com/mnemoslabs/mnemos/memory"
)

// seedExchange records an impulse with a final response and the given linked
// concepts, returning the impulse ID and concept IDs by name.
func seedExchange(t *testing.T, store *memory.Store, concepts ...string) (string, map[string]string) {
	t.Helper()
	ctx := context.Background()

	impulseID, err := store.RecordEntry(ctx, core.NodeUserImpulse, "как варить кофе?", nil, nil)
	require.NoError(t, err)
	_, err = store.RecordEntry(ctx, core.NodeFinalResponse, "Используй френч-пресс.", nil,
		[]core.LinkDirective{{TargetID: impulseID, Label: core.EdgeIsResponseTo}})
	require.NoError(t, err)

	ids := make(map[string]string, len(concepts))
	for _, name := range concepts {
		conceptID, err := store.GetOrCreateConcept(ctx, name)
		require.NoError(t, err)
		require.NoError(t, store.AddEdge(impulseID, conceptID, core.EdgeContainsConcept))
		ids[name] = conceptID
	}
	return impulseID, ids
}

func TestCrystallizeProducesInsightPerPair(t *testing.T) {
	store := newTestStore(t)
	impulseID, conceptIDs := seedExchange(t, store, "кофе", "пресс")

	model := &fakeModel{
		structured: func(_ llm.Request, _ core.ToolDefinition, out any) error {
			return json.Unmarshal([]byte(`{"pairs":[{"concept_a":"кофе","concept_b":"пресс"}]}`), out)
		},
		generate: func(_ llm.Request) (string, error) {
			return "Кофе заваривается во френч-прессе.", nil
		},
	}
	queue, err := jobs.Open("")
	require.NoError(t, err)
	c := NewCrystallizer(store, model, queue, testLogger())

	require.NoError(t, c.Crystallize(context.Background(), impulseID))

	crystals := store.NodesByType(core.NodeKnowledgeCrystal)
	require.Len(t, crystals, 1)
	crystal := crystals[0]
	assert.Equal(t, 1, attrInt(crystal, "active_status", 0))
	assert.Equal(t, 1, attrInt(crystal, "strength", 0))
	assert.Equal(t, CrystalTopic("пресс", "кофе"), attrString(crystal, "source_concepts"))

	linked := store.SuccessorsByLabel(crystal.ID, core.EdgeInsightFromConcept)
	assert.ElementsMatch(t, []string{conceptIDs["кофе"], conceptIDs["пресс"]}, linked)
}

func TestCrystallizeNoOpsBelowTwoConcepts(t *testing.T) {
	store := newTestStore(t)
	impulseID, _ := seedExchange(t, store, "кофе")

	model := &fakeModel{
		structured: func(_ llm.Request, _ core.ToolDefinition, _ any) error {
			t.Fatal("no model call expected for a single concept")
			return nil
		},
	}
	queue, err := jobs.Open("")
	require.NoError(t, err)
	c := NewCrystallizer(store, model, queue, testLogger())

	require.NoError(t, c.Crystallize(context.Background(), impulseID))
	assert.Empty(t, store.NodesByType(core.NodeKnowledgeCrystal))
}

func TestCrystallizeDropsUnknownAndDegeneratePairs(t *testing.T) {
	store := newTestStore(t)
	impulseID, _ := seedExchange(t, store, "кофе", "пресс")

	model := &fakeModel{
		structured: func(_ llm.Request, _ core.ToolDefinition, out any) error {
			return json.Unmarshal([]byte(`{"pairs":[
				{"concept_a":"кофе","concept_b":"кофе"},
				{"concept_a":"кофе","concept_b":"чайник"}
			]}`), out)
		},
	}
	queue, err := jobs.Open("")
	require.NoError(t, err)
	c := NewCrystallizer(store, model, queue, testLogger())

	require.NoError(t, c.Crystallize(context.Background(), impulseID))
	assert.Empty(t, store.NodesByType(core.NodeKnowledgeCrystal))
}

func TestCrystallizerRunStopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	queue, err := jobs.Open("")
	require.NoError(t, err)
	c := NewCrystallizer(store, &fakeModel{}, queue, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("consumer loop did not stop after cancellation")
	}
}

func TestCrystallizeUnknownImpulse(t *testing.T) {
	store := newTestStore(t)
	queue, err := jobs.Open("")
	require.NoError(t, err)
	c := NewCrystallizer(store, &fakeModel{}, queue, testLogger())

	err = c.Crystallize(context.Background(), "missing_impulse")
	require.ErrorIs(t, err, memory.ErrUnknownNode)
}
