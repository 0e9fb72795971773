package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/workflow"
)

// schemaContext summarizes the knowledge graph so the model grounds its
// parameter extraction in real labels and properties.
const schemaContext = `Nodes:
- Customer(id, name, age, city, pre_existing)
- Policy(id, plan_type, sum_insured, copay_pct, renewal_date, premium, deductible)
- Hospital(id, name, city, tier, cashless_enabled, specialties)
- Treatment(code, category, name, avg_cost, sub_limit, requires_preauth)
- Medication(id, name, generic, formulary_tier, requires_preauth)
- Claim(id, status, amount, approved_amount, date, rejection_reason)
Relationships:
- (Customer)-[:HAS_POLICY]->(Policy)
- (Policy)-[:COVERS {sub_limit, waiting_period, copay, coverage_pct}]->(Treatment)
- (Policy)-[:IN_NETWORK {cashless_eligible, tier, discount_pct}]->(Hospital)
- (Policy)-[:IN_FORMULARY {coverage_pct, requires_preauth, tier}]->(Medication)
- (Customer)-[:FILED_CLAIM]->(Claim)-[:AT_HOSPITAL]->(Hospital)`

var jsonFenceRe = regexp.MustCompile("```json\\s*|\\s*```")

// Classifier derives intent, parameters and confidence from a user
// query via the LLM service.
type Classifier struct {
	client *Client
	logger *zap.Logger
}

func NewClassifier(client *Client, logger *zap.Logger) *Classifier {
	return &Classifier{client: client, logger: logger}
}

type classifierVerdict struct {
	Intent             string                 `json:"intent"`
	Confidence         float64                `json:"confidence"`
	Parameters         map[string]interface{} `json:"parameters"`
	NeedsHybrid        bool                   `json:"needs_hybrid"`
	RequiresCustomerID bool                   `json:"requires_customer_id"`
}

func classifierPrompt(query, recentContext string) string {
	var b strings.Builder
	b.WriteString(`You are an intent classifier for a healthcare insurance system.
Analyze the user query and extract:
1. Intent (one of: coverage_check, hospital_finder, claim_history, policy_utilization, medication_coverage, general_question, greeting, escalation_request)
2. Required parameters
3. Confidence score (0.0-1.0)
4. Whether answering needs BOTH policy records AND policy documentation (needs_hybrid)

Schema Context:
`)
	b.WriteString(schemaContext)
	b.WriteString("\n")
	if recentContext != "" {
		b.WriteString("\nConversation so far:\n")
		b.WriteString(recentContext)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nUser Query: %q\n", query)
	b.WriteString(`
Respond ONLY with valid JSON:
{
    "intent": "coverage_check|hospital_finder|claim_history|policy_utilization|medication_coverage|general_question|greeting|escalation_request",
    "confidence": 0.0-1.0,
    "parameters": {
        "treatment_code": "E11|I10|M17|etc or null",
        "treatment_name": "extracted name or null",
        "hospital_name": "extracted name or null",
        "medication_name": "extracted name or null",
        "city": "extracted city or null",
        "min_discount": "integer or null"
    },
    "needs_hybrid": true|false,
    "requires_customer_id": true|false
}
`)
	return b.String()
}

// Classify implements workflow.Classifier.
func (c *Classifier) Classify(ctx context.Context, query, recentContext string) (workflow.Classification, error) {
	text, err := c.client.complete(ctx, "classify", classifierPrompt(query, recentContext))
	if err != nil {
		return workflow.Classification{}, err
	}

	// Models wrap JSON in markdown fences more often than not
	text = strings.TrimSpace(jsonFenceRe.ReplaceAllString(text, ""))

	var verdict classifierVerdict
	if err := json.Unmarshal([]byte(text), &verdict); err != nil {
		return workflow.Classification{}, fmt.Errorf("parse classifier verdict: %w", err)
	}
	if verdict.Intent == "" {
		return workflow.Classification{}, fmt.Errorf("classifier verdict missing intent")
	}

	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}
	params := verdict.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	// Null-valued slots are absent slots
	for k, v := range params {
		if v == nil {
			delete(params, k)
		}
	}

	c.logger.Debug("Classifier verdict",
		zap.String("intent", verdict.Intent),
		zap.Float64("confidence", verdict.Confidence),
		zap.Bool("needs_hybrid", verdict.NeedsHybrid),
	)

	return workflow.Classification{
		Intent:      verdict.Intent,
		Confidence:  verdict.Confidence,
		Parameters:  params,
		NeedsHybrid: verdict.NeedsHybrid,
	}, nil
}
