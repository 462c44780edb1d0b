package core

// Node types recorded into the knowledge graph.
const (
	NodeUserImpulse         = "UserImpulse"
	NodeInstinctiveResponse = "InstinctiveResponseNode"
	NodeTask                = "TaskNode"
	NodeReport              = "ReportNode"
	NodeSearchPlan          = "SearchPlanNode"
	NodeConcept             = "ConceptNode"
	NodeFact                = "FactNode"
	NodeKnowledgeCrystal    = "KnowledgeCrystalNode"
	NodeFinalResponse       = "FinalResponseNode"
	NodeDialogueTurn        = "DialogueTurnNode"
	NodeConversationSummary = "ConversationSummaryNode"
	NodeTheme               = "ThemeNode"
	NodeQuery               = "QueryNode"
)

// EdgeKind distinguishes the two logical edge sets that share one node
// arena: process edges form the cognitive chain, semantic edges form the
// conceptual index.
type EdgeKind int

const (
	EdgeKindProcess EdgeKind = iota
	EdgeKindSemantic
)

// Process edge labels.
const (
	EdgeIsTaskFor          = "IS_TASK_FOR"
	EdgeIsResultOf         = "IS_RESULT_OF"
	EdgeIsResponseTo       = "IS_RESPONSE_TO"
	EdgeWasSynthesizedFrom = "WAS_SYNTHESIZED_FROM"
	EdgeIsInstinctFor      = "IS_INSTINCT_FOR"
	EdgeContainsPlan       = "CONTAINS_PLAN"
	EdgeSourcedFrom        = "SOURCED_FROM"
	EdgeSupersedes         = "SUPERSEDES"
	EdgeArchivesImpulse    = "ARCHIVES_IMPULSE"
	EdgeArchivesResponse   = "ARCHIVES_RESPONSE"
)

// Semantic edge labels.
const (
	EdgeContainsConcept    = "CONTAINS_CONCEPT"
	EdgeInsightFromConcept = "INSIGHT_FROM_CONCEPT"
)

// edgeKinds maps every known label to its kind. Unknown labels are rejected
// by the schema.
var edgeKinds = map[string]EdgeKind{
	EdgeIsTaskFor:          EdgeKindProcess,
	EdgeIsResultOf:         EdgeKindProcess,
	EdgeIsResponseTo:       EdgeKindProcess,
	EdgeWasSynthesizedFrom: EdgeKindProcess,
	EdgeIsInstinctFor:      EdgeKindProcess,
	EdgeContainsPlan:       EdgeKindProcess,
	EdgeSourcedFrom:        EdgeKindProcess,
	EdgeSupersedes:         EdgeKindProcess,
	EdgeArchivesImpulse:    EdgeKindProcess,
	EdgeArchivesResponse:   EdgeKindProcess,
	EdgeContainsConcept:    EdgeKindSemantic,
	EdgeInsightFromConcept: EdgeKindSemantic,
}

// KindOfEdge returns the kind of a known edge label.
func KindOfEdge(label string) (EdgeKind, bool) {
	k, ok := edgeKinds[label]
	return k, ok
}

// KnownNodeTypes returns the full node type vocabulary.
func KnownNodeTypes() []string {
	return []string{
		NodeUserImpulse,
		NodeInstinctiveResponse,
		NodeTask,
		NodeReport,
		NodeSearchPlan,
		NodeConcept,
		NodeFact,
		NodeKnowledgeCrystal,
		NodeFinalResponse,
		NodeDialogueTurn,
		NodeConversationSummary,
		NodeTheme,
		NodeQuery,
	}
}

// RecallNodeTypes is the allow-list of node types eligible as recall
// candidates.
var RecallNodeTypes = []string{
	NodeFact,
	NodeKnowledgeCrystal,
	NodeFinalResponse,
	NodeUserImpulse,
}
