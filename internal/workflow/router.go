package workflow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/metrics"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/retrieval"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/session"
)

// Options holds router tunables
type Options struct {
	ConfidenceThreshold float64
	MaxRetries          int
	ContextMessages     int
	HybridSnippets      int
	FallbackTopK        int
	MaxContextRows      int
}

func (o *Options) fillDefaults() {
	if o.ConfidenceThreshold == 0 {
		o.ConfidenceThreshold = 0.7
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 2
	}
	if o.ContextMessages == 0 {
		o.ContextMessages = 2
	}
	if o.HybridSnippets == 0 {
		o.HybridSnippets = 2
	}
	if o.FallbackTopK == 0 {
		o.FallbackTopK = 3
	}
	if o.MaxContextRows == 0 {
		o.MaxContextRows = 5
	}
}

// Turn summarizes one completed request for observers
type Turn struct {
	SessionID  string
	CustomerID string
	Query      string
	Intent     string
	Confidence float64
	Route      string
	Response   string
	Retries    int
	Escalated  bool
	Duration   time.Duration
}

// Router drives one query through the classification state machine.
// Collaborators are injected; their lifecycle belongs to the caller.
type Router struct {
	classifier Classifier
	planner    Planner
	executor   Executor
	retriever  Retriever
	generator  Generator
	sessions   *session.Store
	logger     *zap.Logger
	opts       Options

	mu        sync.RWMutex // guards threshold (hot-reloadable) and observer
	threshold float64
	observer  func(Turn)
}

// NewRouter creates a router. retriever may be nil when semantic search
// is disabled; every other collaborator is required.
func NewRouter(classifier Classifier, planner Planner, executor Executor, retriever Retriever, generator Generator, sessions *session.Store, opts Options, logger *zap.Logger) *Router {
	opts.fillDefaults()
	return &Router{
		classifier: classifier,
		planner:    planner,
		executor:   executor,
		retriever:  retriever,
		generator:  generator,
		sessions:   sessions,
		logger:     logger,
		opts:       opts,
		threshold:  opts.ConfidenceThreshold,
	}
}

// SetConfidenceThreshold updates the routing threshold at runtime
func (r *Router) SetConfidenceThreshold(v float64) {
	if v < 0 || v > 1 {
		return
	}
	r.mu.Lock()
	r.threshold = v
	r.mu.Unlock()
	r.logger.Info("Confidence threshold updated", zap.Float64("threshold", v))
}

func (r *Router) confidenceThreshold() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threshold
}

// SetTurnObserver registers a callback invoked after every completed
// turn, outside the request's critical path.
func (r *Router) SetTurnObserver(fn func(Turn)) {
	r.mu.Lock()
	r.observer = fn
	r.mu.Unlock()
}

// Process runs one query to completion and returns the response text.
// It never returns an error: every collaborator failure is absorbed
// into a routing decision.
func (r *Router) Process(ctx context.Context, query, customerID, sessionID string) string {
	start := time.Now()

	st := &WorkflowState{
		Query:      query,
		CustomerID: customerID,
		SessionID:  sessionID,
	}
	if sessionID != "" {
		st.RecentContext = r.sessions.GetContextString(sessionID, r.opts.ContextMessages)
	}

	state := StateClassify
	route := ""
	for state != StateDone {
		next := r.step(ctx, state, st)
		metrics.RecordStateTransition(state.String(), next.String())
		if next == StateDone {
			route = state.String()
		}
		state = next
	}

	if st.RequiresEscalation {
		metrics.Escalations.Inc()
	}
	metrics.RecordQuery(st.Classification.Intent, route, time.Since(start).Seconds())

	// Session writes happen only after the state machine completes, so
	// an abandoned request never leaves a partial turn behind.
	if sessionID != "" {
		r.sessions.AddMessage(sessionID, session.RoleUser, query, map[string]interface{}{
			"intent":     st.Classification.Intent,
			"confidence": st.Classification.Confidence,
		})
		r.sessions.AddMessage(sessionID, session.RoleAssistant, st.FinalResponse, map[string]interface{}{
			"route": route,
		})
	}

	r.mu.RLock()
	observer := r.observer
	r.mu.RUnlock()
	if observer != nil {
		observer(Turn{
			SessionID:  sessionID,
			CustomerID: customerID,
			Query:      query,
			Intent:     st.Classification.Intent,
			Confidence: st.Classification.Confidence,
			Route:      route,
			Response:   st.FinalResponse,
			Retries:    st.AttemptCount,
			Escalated:  st.RequiresEscalation,
			Duration:   time.Since(start),
		})
	}

	r.logger.Info("Query processed",
		zap.String("intent", st.Classification.Intent),
		zap.String("route", route),
		zap.Int("retries", st.AttemptCount),
		zap.Duration("took", time.Since(start)),
	)
	return st.FinalResponse
}

// step runs one state handler and returns the next state
func (r *Router) step(ctx context.Context, state State, st *WorkflowState) State {
	switch state {
	case StateClassify:
		r.handleClassify(ctx, st)
		return r.routeAfterClassify(st)
	case StatePlan:
		r.handlePlan(st)
		return r.routeAfterPlan(st)
	case StateExecute:
		r.handleExecute(ctx, st)
		return r.routeAfterExecute(st)
	case StateSynthesize:
		r.handleSynthesize(ctx, st)
		return StateDone
	case StateRagFallback:
		r.handleRagFallback(ctx, st)
		return StateDone
	case StateHybrid:
		r.handleHybrid(ctx, st)
		return StateDone
	case StateEscalate:
		r.handleEscalate(st)
		return StateDone
	default:
		// Unreachable with a closed enum; escalate defensively
		r.handleEscalate(st)
		return StateDone
	}
}

// ========== state handlers ==========

func (r *Router) handleClassify(ctx context.Context, st *WorkflowState) {
	c, err := r.classifier.Classify(ctx, st.Query, st.RecentContext)
	if err != nil {
		// Degrade to a low-confidence general intent so the request
		// still gets an answer via the fallback path.
		r.logger.Warn("Classification failed, using default intent", zap.Error(err))
		st.Classification = Classification{
			Intent:     IntentGeneralQuestion,
			Confidence: 0.3,
			Parameters: map[string]interface{}{},
		}
		st.LastErr = err
		return
	}
	st.Classification = c
	r.logger.Debug("Query classified",
		zap.String("intent", c.Intent),
		zap.Float64("confidence", c.Confidence),
		zap.Bool("needs_hybrid", c.NeedsHybrid),
	)
}

func (r *Router) handlePlan(st *WorkflowState) {
	st.LastErr = nil
	planned, err := r.planner.Plan(st.Classification.Intent, st.Classification.Parameters, st.CustomerID)
	if err != nil {
		r.logger.Warn("Planning failed", zap.Error(err))
		st.LastErr = err
		st.Planned = nil
		return
	}
	st.Planned = planned
}

func (r *Router) handleExecute(ctx context.Context, st *WorkflowState) {
	st.LastErr = nil
	rows, err := r.executor.Execute(ctx, st.Planned.Query, st.Planned.Params)
	if err != nil {
		r.logger.Warn("Structured execution failed",
			zap.Error(err),
			zap.Int("attempt", st.AttemptCount+1),
		)
		st.LastErr = err
		return
	}
	st.StructuredResults = rows
}

func (r *Router) handleSynthesize(ctx context.Context, st *WorkflowState) {
	if len(st.StructuredResults) == 0 {
		st.FinalResponse = noResultsResponse
		return
	}

	prompt := synthesisPrompt(st.Query, st.Classification.Intent, st.StructuredResults, r.opts.MaxContextRows)
	text, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		// Deterministic answer from the first row beats failing the request
		r.logger.Warn("Generation failed, using templated response", zap.Error(err))
		st.FinalResponse = templatedResponse(st.Classification.Intent, st.StructuredResults)
		return
	}
	st.FinalResponse = text
}

func (r *Router) handleRagFallback(ctx context.Context, st *WorkflowState) {
	docs := r.searchSnippets(ctx, st.Query, r.opts.FallbackTopK)
	st.SemanticResults = docs

	prompt := fallbackPrompt(st.Query, st.RecentContext, docs)
	text, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		r.logger.Warn("Fallback generation failed", zap.Error(err))
		st.FinalResponse = fallbackErrorResponse
		return
	}
	st.FinalResponse = text
}

func (r *Router) handleHybrid(ctx context.Context, st *WorkflowState) {
	// Structured path, best-effort: its failure must not sink the turn
	if planned, err := r.planner.Plan(st.Classification.Intent, st.Classification.Parameters, st.CustomerID); err == nil && planned != nil {
		if rows, err := r.executor.Execute(ctx, planned.Query, planned.Params); err == nil {
			st.StructuredResults = rows
		} else {
			r.logger.Warn("Hybrid structured path failed, continuing with documents", zap.Error(err))
		}
	}

	// Semantic path, independently best-effort
	st.SemanticResults = r.searchSnippets(ctx, st.Query, r.opts.HybridSnippets)

	combined, ok := mergeResults(st.StructuredResults, st.SemanticResults, r.opts.MaxContextRows, r.opts.HybridSnippets)
	if !ok {
		st.FinalResponse = emptyHybridResponse
		return
	}

	text, err := r.generator.Generate(ctx, hybridPrompt(st.Query, combined))
	if err != nil {
		r.logger.Warn("Hybrid generation failed, returning raw context", zap.Error(err))
		st.FinalResponse = rawCombined(st.StructuredResults, st.SemanticResults, r.opts.MaxContextRows, r.opts.HybridSnippets)
		return
	}
	st.FinalResponse = text
}

func (r *Router) handleEscalate(st *WorkflowState) {
	st.FinalResponse = escalationResponse
	st.RequiresEscalation = true
}

// searchSnippets wraps the retriever, absorbing unavailability and errors
func (r *Router) searchSnippets(ctx context.Context, text string, k int) []retrieval.Snippet {
	if r.retriever == nil {
		return nil
	}
	snippets, err := r.retriever.Search(ctx, text, k)
	if err != nil {
		r.logger.Warn("Semantic search failed", zap.Error(err))
		return nil
	}
	return snippets
}

// ========== transition rules ==========

func (r *Router) routeAfterClassify(st *WorkflowState) State {
	c := st.Classification

	if c.Intent == IntentEscalationRequest {
		return StateEscalate
	}
	if c.NeedsHybrid {
		return StateHybrid
	}
	if c.Confidence < r.confidenceThreshold() {
		metrics.RecordFallback("low_confidence")
		return StateRagFallback
	}
	if c.Intent == IntentGeneralQuestion || c.Intent == IntentGreeting {
		metrics.RecordFallback("general_intent")
		return StateRagFallback
	}
	if st.CustomerID == "" {
		// Structured intents need customer data we don't have
		r.logger.Debug("Customer id required, escalating", zap.String("intent", c.Intent))
		return StateEscalate
	}
	return StatePlan
}

func (r *Router) routeAfterPlan(st *WorkflowState) State {
	if st.LastErr != nil || st.Planned == nil {
		metrics.RecordFallback("planning_failed")
		return StateRagFallback
	}
	return StateExecute
}

func (r *Router) routeAfterExecute(st *WorkflowState) State {
	if st.LastErr != nil {
		st.AttemptCount++
		if ShouldRetry(st.AttemptCount, r.opts.MaxRetries) {
			metrics.RetryAttempts.Inc()
			return StatePlan
		}
		metrics.RecordFallback("execution_failed")
		return StateRagFallback
	}
	if len(st.StructuredResults) == 0 {
		// Zero rows is a routing signal, not an error
		metrics.RecordFallback("empty_results")
		return StateRagFallback
	}
	return StateSynthesize
}
