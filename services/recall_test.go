package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemoslabs/mnemos/config"
	"github.com/mnemoslabs/mnemos/core"
)

func testRecallConfig() config.RecallConfig {
	return config.RecallConfig{
		SemanticTopK:          50,
		RecallLimit:           30,
		FinalTopN:             5,
		SemanticMultiplier:    15,
		ConceptualBonus:       10,
		AssociativeBonus:      20,
		CrossValidationBonus:  40,
		SelfReferenceDampener: 0.7,
	}
}

func newTestRecall(t *testing.T) *RecallService {
	return NewRecallService(newTestStore(t), testRecallConfig(), testLogger())
}

func TestRankMonotonicInSemanticScore(t *testing.T) {
	r := newTestRecall(t)

	pool := []*candidate{
		{id: "low", nodeType: core.NodeFact, semantic: 0.3, conceptual: 2},
		{id: "high", nodeType: core.NodeFact, semantic: 0.9, conceptual: 2},
	}
	ranked := r.rank(pool)
	require.Len(t, ranked, 2)
	assert.Equal(t, "high", ranked[0].NodeID)
	assert.Greater(t, ranked[0].RelevanceScore, ranked[1].RelevanceScore)
}

func TestRankCrossValidationDominates(t *testing.T) {
	r := newTestRecall(t)

	pool := []*candidate{
		{id: "both", nodeType: core.NodeFact, semantic: 0.5, conceptual: 1},
		{id: "semantic_only", nodeType: core.NodeFact, semantic: 0.5},
		{id: "conceptual_only", nodeType: core.NodeFact, conceptual: 1},
	}
	ranked := r.rank(pool)
	require.Len(t, ranked, 3)

	scores := make(map[string]float64)
	for _, f := range ranked {
		scores[f.NodeID] = f.RelevanceScore
	}
	// both = 0.5*15 + 1*10 + 40; the bonus strictly beats either capture alone.
	assert.InDelta(t, 57.5, scores["both"], 1e-9)
	assert.Greater(t, scores["both"], scores["semantic_only"]+scores["conceptual_only"])
}

func TestRankDampensSelfReferentialImpulses(t *testing.T) {
	r := newTestRecall(t)

	pool := []*candidate{
		{id: "fact", nodeType: core.NodeFact, semantic: 1},
		{id: "impulse", nodeType: core.NodeUserImpulse, semantic: 1},
	}
	ranked := r.rank(pool)
	require.Len(t, ranked, 2)
	assert.Equal(t, "fact", ranked[0].NodeID)
	assert.InDelta(t, 15.0, ranked[0].RelevanceScore, 1e-9)
	assert.InDelta(t, 10.5, ranked[1].RelevanceScore, 1e-9)
}

func TestRankAssociativeBonus(t *testing.T) {
	r := newTestRecall(t)

	pool := []*candidate{
		{id: "plain", nodeType: core.NodeFact, conceptual: 1},
		{id: "associated", nodeType: core.NodeFact, conceptual: 1, associative: true},
	}
	ranked := r.rank(pool)
	assert.Equal(t, "associated", ranked[0].NodeID)
	assert.InDelta(t, 30.0, ranked[0].RelevanceScore, 1e-9)
}

func TestRecallEmptyQueryShortCircuits(t *testing.T) {
	r := newTestRecall(t)
	assert.Nil(t, r.Recall(context.Background(), "", nil))
}

func TestRecallSurfacesFactThroughConceptCapture(t *testing.T) {
	store := newTestStore(t)
	r := NewRecallService(store, testRecallConfig(), testLogger())
	ctx := context.Background()

	factID, err := store.RecordEntry(ctx, core.NodeFact, "любимый цвет — синий",
		map[string]any{"verification_status": "VERIFIED"}, nil)
	require.NoError(t, err)
	conceptID, err := store.GetOrCreateConcept(ctx, "цвет")
	require.NoError(t, err)
	require.NoError(t, store.AddEdge(factID, conceptID, core.EdgeContainsConcept))

	findings := r.Recall(ctx, "Напомни мой любимый цвет", []string{"цвет"})
	require.NotEmpty(t, findings)

	var fact *Finding
	for i := range findings {
		if findings[i].NodeID == factID {
			fact = &findings[i]
		}
	}
	require.NotNil(t, fact, "fact must be recalled via its concept")
	assert.Equal(t, core.NodeFact, fact.NodeType)
	assert.Equal(t, "любимый цвет — синий", fact.Content)
	// The conceptual bonus must be reflected in the score.
	assert.Greater(t, fact.RelevanceScore, 5.0)
}

func TestConceptualCaptureCountsDistinctConcepts(t *testing.T) {
	store := newTestStore(t)
	r := NewRecallService(store, testRecallConfig(), testLogger())
	ctx := context.Background()

	factID, err := store.RecordEntry(ctx, core.NodeFact, "кофе варится во френч-прессе", nil, nil)
	require.NoError(t, err)
	for _, name := range []string{"кофе", "пресс"} {
		conceptID, err := store.GetOrCreateConcept(ctx, name)
		require.NoError(t, err)
		require.NoError(t, store.AddEdge(factID, conceptID, core.EdgeContainsConcept))
	}

	counts := r.conceptualCapture([]string{"кофе", "пресс", "unknown"})
	assert.Equal(t, map[string]int{factID: 2}, counts)

	// Terms arrive from planner output in arbitrary casing; capture matches
	// the normalized ConceptNode contents anyway.
	counts = r.conceptualCapture([]string{" Кофе ", "ПРЕСС"})
	assert.Equal(t, map[string]int{factID: 2}, counts)
}
