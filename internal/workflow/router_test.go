package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/graph"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/retrieval"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/session"
)

type fakeClassifier struct {
	result     Classification
	err        error
	gotQuery   string
	gotContext string
}

func (f *fakeClassifier) Classify(_ context.Context, query, recentContext string) (Classification, error) {
	f.gotQuery = query
	f.gotContext = recentContext
	if f.err != nil {
		return Classification{}, f.err
	}
	return f.result, nil
}

type fakePlanner struct {
	planned *graph.PlannedQuery
	err     error
	calls   int
}

func (f *fakePlanner) Plan(intent string, params map[string]interface{}, customerID string) (*graph.PlannedQuery, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.planned, nil
}

type execResult struct {
	rows []graph.Row
	err  error
}

type fakeExecutor struct {
	results []execResult
	calls   int
}

func (f *fakeExecutor) Execute(_ context.Context, query string, params map[string]interface{}) ([]graph.Row, error) {
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i].rows, f.results[i].err
}

type fakeRetriever struct {
	snippets []retrieval.Snippet
	err      error
	calls    int
	gotK     int
}

func (f *fakeRetriever) Search(_ context.Context, text string, k int) ([]retrieval.Snippet, error) {
	f.calls++
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.snippets, nil
}

type fakeGenerator struct {
	text    string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func coverageRow() graph.Row {
	return graph.Row{
		Columns: []string{"policy_plan", "treatment_name", "hospital_name", "covered", "sub_limit", "copay"},
		Values: map[string]interface{}{
			"policy_plan":    "Gold",
			"treatment_name": "Knee Replacement",
			"hospital_name":  "Apollo",
			"covered":        true,
			"sub_limit":      150000,
			"copay":          10,
		},
	}
}

func newTestRouter(t *testing.T, c Classifier, p Planner, e Executor, ret Retriever, g Generator) (*Router, *session.Store) {
	t.Helper()
	store, err := session.NewStore(20, 30*time.Minute, t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	r := NewRouter(c, p, e, ret, g, store, Options{}, zaptest.NewLogger(t))
	return r, store
}

func TestStructuredPathSynthesizes(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentCoverageCheck,
		Confidence: 0.9,
		Parameters: map[string]interface{}{"treatment_name": "knee replacement"},
	}}
	planner := &fakePlanner{planned: &graph.PlannedQuery{Query: "MATCH ...", Params: map[string]interface{}{"customer_id": "CUST001"}}}
	executor := &fakeExecutor{results: []execResult{{rows: []graph.Row{coverageRow()}}}}
	generator := &fakeGenerator{text: "Great news! Your Gold policy covers knee replacement at Apollo."}

	r, _ := newTestRouter(t, classifier, planner, executor, &fakeRetriever{}, generator)
	resp := r.Process(context.Background(), "Does my policy cover knee replacement?", "CUST001", "")

	assert.Equal(t, "Great news! Your Gold policy covers knee replacement at Apollo.", resp)
	assert.Equal(t, 1, planner.calls)
	assert.Equal(t, 1, executor.calls)
	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], "Knee Replacement")
	assert.Contains(t, generator.prompts[0], IntentCoverageCheck)
}

func TestLowConfidenceFallsBack(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentCoverageCheck,
		Confidence: 0.4,
	}}
	planner := &fakePlanner{}
	retriever := &fakeRetriever{snippets: []retrieval.Snippet{{Content: "Pre-authorization is required for planned surgeries."}}}
	generator := &fakeGenerator{text: "You would typically need pre-authorization."}

	r, _ := newTestRouter(t, classifier, planner, &fakeExecutor{}, retriever, generator)
	resp := r.Process(context.Background(), "Something about surgery maybe?", "CUST001", "")

	assert.Equal(t, "You would typically need pre-authorization.", resp)
	assert.Zero(t, planner.calls, "low confidence must not reach the planner")
	assert.Equal(t, 1, retriever.calls)
	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], "Pre-authorization is required")
}

func TestGeneralQuestionUsesFallbackEvenWhenConfident(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentGeneralQuestion,
		Confidence: 0.95,
	}}
	planner := &fakePlanner{}
	generator := &fakeGenerator{text: "A co-pay is the share of costs you pay."}

	r, _ := newTestRouter(t, classifier, planner, &fakeExecutor{}, &fakeRetriever{}, generator)
	resp := r.Process(context.Background(), "What is a co-pay?", "CUST001", "")

	assert.Equal(t, "A co-pay is the share of costs you pay.", resp)
	assert.Zero(t, planner.calls)
}

func TestEscalationRequestShortCircuits(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentEscalationRequest,
		Confidence: 0.99,
	}}
	planner := &fakePlanner{}
	generator := &fakeGenerator{text: "should not be used"}

	r, _ := newTestRouter(t, classifier, planner, &fakeExecutor{}, &fakeRetriever{}, generator)
	resp := r.Process(context.Background(), "I want to talk to a human", "CUST001", "")

	assert.Equal(t, escalationResponse, resp)
	assert.Zero(t, planner.calls)
	assert.Empty(t, generator.prompts)
}

func TestMissingCustomerIDEscalatesStructuredIntent(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentClaimHistory,
		Confidence: 0.9,
	}}
	planner := &fakePlanner{}

	r, _ := newTestRouter(t, classifier, planner, &fakeExecutor{}, &fakeRetriever{}, &fakeGenerator{})
	resp := r.Process(context.Background(), "Show my recent claims", "", "")

	assert.Equal(t, escalationResponse, resp)
	assert.Zero(t, planner.calls)
}

func TestExecutionRetriesAreBounded(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentPolicyUtilization,
		Confidence: 0.85,
	}}
	planner := &fakePlanner{planned: &graph.PlannedQuery{Query: "MATCH ...", Params: map[string]interface{}{}}}
	executor := &fakeExecutor{results: []execResult{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
	}}
	generator := &fakeGenerator{text: "fallback answer"}

	r, _ := newTestRouter(t, classifier, planner, executor, &fakeRetriever{}, generator)
	resp := r.Process(context.Background(), "How much of my sum insured is left?", "CUST001", "")

	assert.Equal(t, "fallback answer", resp)
	assert.Equal(t, 2, executor.calls, "exactly one retry after the first failure")
	assert.Equal(t, 2, planner.calls)
}

func TestExecutionRecoversOnRetry(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentCoverageCheck,
		Confidence: 0.85,
	}}
	planner := &fakePlanner{planned: &graph.PlannedQuery{Query: "MATCH ...", Params: map[string]interface{}{}}}
	executor := &fakeExecutor{results: []execResult{
		{err: errors.New("timeout")},
		{rows: []graph.Row{coverageRow()}},
	}}
	generator := &fakeGenerator{text: "Covered at Apollo."}

	r, _ := newTestRouter(t, classifier, planner, executor, &fakeRetriever{}, generator)
	resp := r.Process(context.Background(), "Is knee surgery covered?", "CUST001", "")

	assert.Equal(t, "Covered at Apollo.", resp)
	assert.Equal(t, 2, executor.calls)
}

func TestEmptyResultsFallBack(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentMedicationCoverage,
		Confidence: 0.9,
	}}
	planner := &fakePlanner{planned: &graph.PlannedQuery{Query: "MATCH ...", Params: map[string]interface{}{}}}
	executor := &fakeExecutor{results: []execResult{{rows: nil}}}
	generator := &fakeGenerator{text: "I couldn't find that medication in your plan."}

	r, _ := newTestRouter(t, classifier, planner, executor, &fakeRetriever{}, generator)
	resp := r.Process(context.Background(), "Is insulin covered?", "CUST001", "")

	assert.Equal(t, "I couldn't find that medication in your plan.", resp)
	assert.Equal(t, 1, executor.calls, "empty results must not trigger a retry")
}

func TestPlanningFailureFallsBack(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentCoverageCheck,
		Confidence: 0.9,
	}}
	planner := &fakePlanner{err: errors.New("unknown intent")}
	executor := &fakeExecutor{results: []execResult{{rows: []graph.Row{coverageRow()}}}}
	generator := &fakeGenerator{text: "fallback answer"}

	r, _ := newTestRouter(t, classifier, planner, executor, &fakeRetriever{}, generator)
	resp := r.Process(context.Background(), "coverage?", "CUST001", "")

	assert.Equal(t, "fallback answer", resp)
	assert.Zero(t, executor.calls)
}

func TestClassifierFailureDegradesToFallback(t *testing.T) {
	classifier := &fakeClassifier{err: errors.New("llm unavailable")}
	planner := &fakePlanner{}
	generator := &fakeGenerator{text: "best effort answer"}

	r, _ := newTestRouter(t, classifier, planner, &fakeExecutor{}, &fakeRetriever{}, generator)
	resp := r.Process(context.Background(), "anything", "CUST001", "")

	assert.Equal(t, "best effort answer", resp)
	assert.Zero(t, planner.calls)
}

func TestSynthesisGeneratorFailureUsesTemplate(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentCoverageCheck,
		Confidence: 0.9,
	}}
	planner := &fakePlanner{planned: &graph.PlannedQuery{Query: "MATCH ...", Params: map[string]interface{}{}}}
	executor := &fakeExecutor{results: []execResult{{rows: []graph.Row{coverageRow()}}}}
	generator := &fakeGenerator{err: errors.New("llm down")}

	r, _ := newTestRouter(t, classifier, planner, executor, &fakeRetriever{}, generator)
	resp := r.Process(context.Background(), "Is knee surgery covered?", "CUST001", "")

	assert.Contains(t, resp, "Your Gold policy covers Knee Replacement at Apollo.")
	assert.Contains(t, resp, "Sub-limit: ₹150000")
}

func TestFallbackGeneratorFailureReturnsCannedText(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentGreeting,
		Confidence: 0.9,
	}}
	generator := &fakeGenerator{err: errors.New("llm down")}

	r, _ := newTestRouter(t, classifier, &fakePlanner{}, &fakeExecutor{}, &fakeRetriever{}, generator)
	resp := r.Process(context.Background(), "hello", "", "")

	assert.Equal(t, fallbackErrorResponse, resp)
}

func TestFallbackSurvivesRetrieverFailure(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentGeneralQuestion,
		Confidence: 0.9,
	}}
	retriever := &fakeRetriever{err: errors.New("qdrant down")}
	generator := &fakeGenerator{text: "general knowledge answer"}

	r, _ := newTestRouter(t, classifier, &fakePlanner{}, &fakeExecutor{}, retriever, generator)
	resp := r.Process(context.Background(), "What is a deductible?", "", "")

	assert.Equal(t, "general knowledge answer", resp)
}

func TestFallbackWithNilRetriever(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentGeneralQuestion,
		Confidence: 0.9,
	}}
	generator := &fakeGenerator{text: "answer without documents"}

	r, _ := newTestRouter(t, classifier, &fakePlanner{}, &fakeExecutor{}, nil, generator)
	resp := r.Process(context.Background(), "What is co-insurance?", "", "")

	assert.Equal(t, "answer without documents", resp)
}

func TestHybridMergesBothSources(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:      IntentCoverageCheck,
		Confidence:  0.9,
		NeedsHybrid: true,
	}}
	planner := &fakePlanner{planned: &graph.PlannedQuery{Query: "MATCH ...", Params: map[string]interface{}{}}}
	executor := &fakeExecutor{results: []execResult{{rows: []graph.Row{coverageRow()}}}}
	retriever := &fakeRetriever{snippets: []retrieval.Snippet{{Content: "Knee replacement requires 48h pre-authorization."}}}
	generator := &fakeGenerator{text: "Covered, with pre-authorization required."}

	r, _ := newTestRouter(t, classifier, planner, executor, retriever, generator)
	resp := r.Process(context.Background(), "Is knee replacement covered and what are the conditions?", "CUST001", "")

	assert.Equal(t, "Covered, with pre-authorization required.", resp)
	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], "=== Policy Records ===")
	assert.Contains(t, generator.prompts[0], "=== Policy Documentation ===")
	assert.Contains(t, generator.prompts[0], "Knee Replacement")
	assert.Contains(t, generator.prompts[0], "48h pre-authorization")
}

func TestHybridSurvivesStructuredFailure(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:      IntentCoverageCheck,
		Confidence:  0.9,
		NeedsHybrid: true,
	}}
	planner := &fakePlanner{planned: &graph.PlannedQuery{Query: "MATCH ...", Params: map[string]interface{}{}}}
	executor := &fakeExecutor{results: []execResult{{err: errors.New("neo4j down")}}}
	retriever := &fakeRetriever{snippets: []retrieval.Snippet{{Content: "Documentation only."}}}
	generator := &fakeGenerator{text: "Answer from documentation."}

	r, _ := newTestRouter(t, classifier, planner, executor, retriever, generator)
	resp := r.Process(context.Background(), "coverage and conditions?", "CUST001", "")

	assert.Equal(t, "Answer from documentation.", resp)
	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], "(none found)")
	assert.Contains(t, generator.prompts[0], "Documentation only.")
}

func TestHybridBothSourcesEmpty(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:      IntentCoverageCheck,
		Confidence:  0.9,
		NeedsHybrid: true,
	}}
	planner := &fakePlanner{planned: &graph.PlannedQuery{Query: "MATCH ...", Params: map[string]interface{}{}}}
	executor := &fakeExecutor{results: []execResult{{rows: nil}}}
	generator := &fakeGenerator{text: "should not run"}

	r, _ := newTestRouter(t, classifier, planner, executor, &fakeRetriever{}, generator)
	resp := r.Process(context.Background(), "coverage and conditions?", "CUST001", "")

	assert.Equal(t, emptyHybridResponse, resp)
	assert.Empty(t, generator.prompts)
}

func TestHybridGeneratorFailureReturnsRawContext(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:      IntentCoverageCheck,
		Confidence:  0.9,
		NeedsHybrid: true,
	}}
	planner := &fakePlanner{planned: &graph.PlannedQuery{Query: "MATCH ...", Params: map[string]interface{}{}}}
	executor := &fakeExecutor{results: []execResult{{rows: []graph.Row{coverageRow()}}}}
	retriever := &fakeRetriever{snippets: []retrieval.Snippet{{Content: "Snippet text."}}}
	generator := &fakeGenerator{err: errors.New("llm down")}

	r, _ := newTestRouter(t, classifier, planner, executor, retriever, generator)
	resp := r.Process(context.Background(), "coverage?", "CUST001", "")

	assert.Contains(t, resp, "Snippet text.")
	assert.Contains(t, resp, "Matching policy records:")
}

func TestSessionContextReachesClassifierAndPrompts(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentGeneralQuestion,
		Confidence: 0.9,
	}}
	generator := &fakeGenerator{text: "It means the amount you pay first."}

	r, store := newTestRouter(t, classifier, &fakePlanner{}, &fakeExecutor{}, &fakeRetriever{}, generator)
	store.CreateSession("sess-1", "CUST001")
	store.AddMessage("sess-1", session.RoleUser, "What is a deductible?", nil)
	store.AddMessage("sess-1", session.RoleAssistant, "A deductible is what you pay before coverage starts.", nil)

	r.Process(context.Background(), "And what about for dental?", "CUST001", "sess-1")

	assert.Contains(t, classifier.gotContext, "User: What is a deductible?")
	assert.Contains(t, classifier.gotContext, "Assistant: A deductible is what you pay before coverage starts.")
	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], "What is a deductible?")
}

func TestTurnIsRecordedInSession(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentGreeting,
		Confidence: 0.95,
	}}
	generator := &fakeGenerator{text: "Hello! How can I help with your insurance today?"}

	r, store := newTestRouter(t, classifier, &fakePlanner{}, &fakeExecutor{}, &fakeRetriever{}, generator)
	store.CreateSession("sess-2", "")

	r.Process(context.Background(), "hi there", "", "sess-2")

	history := store.GetHistory("sess-2", 0)
	require.Len(t, history, 2)
	assert.Equal(t, session.RoleUser, history[0].Role)
	assert.Equal(t, "hi there", history[0].Content)
	assert.Equal(t, IntentGreeting, history[0].Metadata["intent"])
	assert.Equal(t, session.RoleAssistant, history[1].Role)
	assert.Equal(t, "Hello! How can I help with your insurance today?", history[1].Content)
	assert.Equal(t, "rag_fallback", history[1].Metadata["route"])
}

func TestTurnObserverSeesCompletedTurn(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentEscalationRequest,
		Confidence: 0.99,
	}}

	r, _ := newTestRouter(t, classifier, &fakePlanner{}, &fakeExecutor{}, &fakeRetriever{}, &fakeGenerator{})
	var got Turn
	r.SetTurnObserver(func(tn Turn) { got = tn })

	r.Process(context.Background(), "get me a human", "CUST001", "")

	assert.Equal(t, IntentEscalationRequest, got.Intent)
	assert.Equal(t, "escalate", got.Route)
	assert.True(t, got.Escalated)
	assert.Equal(t, escalationResponse, got.Response)
	assert.Greater(t, got.Duration, time.Duration(0))
}

func TestSetConfidenceThreshold(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentCoverageCheck,
		Confidence: 0.75,
	}}
	planner := &fakePlanner{planned: &graph.PlannedQuery{Query: "MATCH ...", Params: map[string]interface{}{}}}
	executor := &fakeExecutor{results: []execResult{{rows: []graph.Row{coverageRow()}}}}
	generator := &fakeGenerator{text: "structured answer"}

	r, _ := newTestRouter(t, classifier, planner, executor, &fakeRetriever{}, generator)

	resp := r.Process(context.Background(), "coverage?", "CUST001", "")
	assert.Equal(t, "structured answer", resp)

	r.SetConfidenceThreshold(0.8)
	generator.text = "fallback answer"
	resp = r.Process(context.Background(), "coverage?", "CUST001", "")
	assert.Equal(t, "fallback answer", resp)

	// Out-of-range updates are ignored
	r.SetConfidenceThreshold(1.5)
	resp = r.Process(context.Background(), "coverage?", "CUST001", "")
	assert.Equal(t, "fallback answer", resp)
}

func TestFallbackTopKPassedToRetriever(t *testing.T) {
	classifier := &fakeClassifier{result: Classification{
		Intent:     IntentGeneralQuestion,
		Confidence: 0.9,
	}}
	retriever := &fakeRetriever{}
	generator := &fakeGenerator{text: "ok"}

	r, _ := newTestRouter(t, classifier, &fakePlanner{}, &fakeExecutor{}, retriever, generator)
	r.Process(context.Background(), "what is ncb?", "", "")

	assert.Equal(t, 3, retriever.gotK)
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(0, 2))
	assert.True(t, ShouldRetry(1, 2))
	assert.False(t, ShouldRetry(2, 2))
	assert.False(t, ShouldRetry(3, 2))
	assert.False(t, ShouldRetry(0, 0))
}

func TestTemplatedResponseHospitalFinder(t *testing.T) {
	rows := []graph.Row{
		{Columns: []string{"hospital_name", "discount"}, Values: map[string]interface{}{"hospital_name": "Apollo", "discount": 15}},
		{Columns: []string{"hospital_name", "discount"}, Values: map[string]interface{}{"hospital_name": "Fortis", "discount": 10}},
		{Columns: []string{"hospital_name", "discount"}, Values: map[string]interface{}{"hospital_name": "Max", "discount": 12}},
		{Columns: []string{"hospital_name", "discount"}, Values: map[string]interface{}{"hospital_name": "Medanta", "discount": 8}},
	}
	resp := templatedResponse(IntentHospitalFinder, rows)
	assert.Contains(t, resp, "Apollo (15% discount)")
	assert.Contains(t, resp, "Max (12% discount)")
	assert.NotContains(t, resp, "Medanta", "list is capped at three hospitals")
}

func TestTemplatedResponseDefault(t *testing.T) {
	rows := []graph.Row{{Columns: []string{"x"}, Values: map[string]interface{}{"x": 1}}}
	assert.Equal(t, "Found 1 result(s) for your query.", templatedResponse(IntentClaimHistory, rows))
}

func TestMergeResultsCaps(t *testing.T) {
	rows := make([]graph.Row, 8)
	for i := range rows {
		rows[i] = graph.Row{Columns: []string{"n"}, Values: map[string]interface{}{"n": i}}
	}
	snippets := []retrieval.Snippet{{Content: "one"}, {Content: "two"}, {Content: "three"}}

	combined, ok := mergeResults(rows, snippets, 5, 2)
	require.True(t, ok)
	assert.Contains(t, combined, "n: 4")
	assert.NotContains(t, combined, "n: 5")
	assert.Contains(t, combined, "two")
	assert.NotContains(t, combined, "three")

	_, ok = mergeResults(nil, nil, 5, 2)
	assert.False(t, ok)
}

func TestRenderRowsTablePreservesColumnOrder(t *testing.T) {
	row := graph.Row{
		Columns: []string{"b", "a"},
		Values:  map[string]interface{}{"a": 1, "b": 2},
	}
	out := renderRowsTable([]graph.Row{row})
	bIdx := strings.Index(out, "b: 2")
	aIdx := strings.Index(out, "a: 1")
	require.GreaterOrEqual(t, bIdx, 0)
	require.GreaterOrEqual(t, aIdx, 0)
	assert.Less(t, bIdx, aIdx)
}
