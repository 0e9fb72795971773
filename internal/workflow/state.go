package workflow

import (
	"context"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/graph"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/retrieval"
)

// State is a workflow state. Classify is the unique initial state;
// Synthesize, RagFallback, Hybrid and Escalate are the only states
// with an edge to Done.
type State int

const (
	StateClassify State = iota
	StatePlan
	StateExecute
	StateSynthesize
	StateRagFallback
	StateHybrid
	StateEscalate
	StateDone
)

func (s State) String() string {
	switch s {
	case StateClassify:
		return "classify"
	case StatePlan:
		return "plan"
	case StateExecute:
		return "execute"
	case StateSynthesize:
		return "synthesize"
	case StateRagFallback:
		return "rag_fallback"
	case StateHybrid:
		return "hybrid"
	case StateEscalate:
		return "escalate"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Recognized intents
const (
	IntentCoverageCheck      = "coverage_check"
	IntentHospitalFinder     = "hospital_finder"
	IntentClaimHistory       = "claim_history"
	IntentPolicyUtilization  = "policy_utilization"
	IntentMedicationCoverage = "medication_coverage"
	IntentGeneralQuestion    = "general_question"
	IntentGreeting           = "greeting"
	IntentEscalationRequest  = "escalation_request"
)

// Classification is the classifier's verdict for one query.
// Immutable once produced.
type Classification struct {
	Intent      string
	Confidence  float64
	Parameters  map[string]interface{}
	NeedsHybrid bool
}

// WorkflowState is the request-scoped bag threaded through the state
// machine. Owned exclusively by the router for one Process call.
type WorkflowState struct {
	Query              string
	CustomerID         string
	SessionID          string
	RecentContext      string
	Classification     Classification
	Planned            *graph.PlannedQuery
	StructuredResults  []graph.Row
	SemanticResults    []retrieval.Snippet
	FinalResponse      string
	LastErr            error
	AttemptCount       int
	RequiresEscalation bool
}

// Collaborator contracts. Failures never propagate out of Process;
// every error becomes a routing decision.

// Classifier produces a Classification for a query given recent
// conversation context.
type Classifier interface {
	Classify(ctx context.Context, query, recentContext string) (Classification, error)
}

// Planner maps an intent onto a structured query, nil when none applies.
type Planner interface {
	Plan(intent string, params map[string]interface{}, customerID string) (*graph.PlannedQuery, error)
}

// Executor runs a structured query against the graph store.
type Executor interface {
	Execute(ctx context.Context, query string, params map[string]interface{}) ([]graph.Row, error)
}

// Retriever performs semantic search over unstructured documents.
type Retriever interface {
	Search(ctx context.Context, text string, k int) ([]retrieval.Snippet, error)
}

// Generator produces free text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
