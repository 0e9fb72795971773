package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/graph"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/retrieval"
)

// escalationResponse is the fixed handoff text for the Escalate state
const escalationResponse = `I want to make sure you get the most accurate information for your query.
Let me connect you with one of our insurance specialists who can provide personalized assistance.

Would you like me to:
1. Transfer you to a live agent
2. Schedule a callback
3. Try rephrasing your question

Please let me know how you'd like to proceed.`

const noResultsResponse = "I couldn't find any information matching your query. Could you provide more details?"

const fallbackErrorResponse = "I'm having trouble processing that question. Could you rephrase it or provide more details?"

const emptyHybridResponse = "I couldn't find any policy data or documentation matching your question. Could you rephrase it or provide more details?"

// synthesisPrompt asks the generator for a natural answer grounded in
// structured rows.
func synthesisPrompt(query, intent string, rows []graph.Row, maxRows int) string {
	return fmt.Sprintf(`You are a friendly healthcare insurance assistant.
Generate a natural, empathetic response based on the user's question and data from our knowledge graph.

User Question: %q
Intent: %s

Data from Knowledge Graph:
%s

Guidelines:
- Be friendly and professional
- Explain coverage clearly with amounts in ₹ (rupees)
- Highlight important conditions (co-pay, pre-authorization, sub-limits)
- If coverage is available, emphasize the positive
- If there are restrictions, explain them clearly
- Keep response concise (2-4 sentences)
- End with an offer to help with more questions

Generate response:`, query, intent, renderRowsJSON(rows, maxRows))
}

// fallbackPrompt asks the generator for a general-knowledge answer,
// optionally grounded in retrieved document snippets and conversation
// history.
func fallbackPrompt(query, recentContext string, snippets []retrieval.Snippet) string {
	var b strings.Builder
	b.WriteString(`You are a knowledgeable healthcare insurance assistant.
Answer the following question based on general healthcare insurance knowledge.

If the question requires specific policy or customer data, politely explain that you need more information.
`)
	if recentContext != "" {
		b.WriteString("\nConversation so far:\n")
		b.WriteString(recentContext)
		b.WriteString("\n")
	}
	if len(snippets) > 0 {
		b.WriteString("\nRelevant policy documentation:\n")
		for _, s := range snippets {
			b.WriteString("- ")
			b.WriteString(s.Content)
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "\nQuestion: %q\n\nProvide a helpful, accurate response:", query)
	return b.String()
}

// hybridPrompt combines structured rows and document snippets into two
// labeled sections for the generator.
func hybridPrompt(query, combinedContext string) string {
	return fmt.Sprintf(`You are a friendly healthcare insurance assistant.
Answer the user's question using the two context sections below. Prefer the
policy records for amounts and eligibility; use the documentation for
conditions and explanations.

%s

User Question: %q

Keep the response concise (2-4 sentences) and state amounts in ₹ (rupees).

Generate response:`, combinedContext, query)
}

func renderRowsJSON(rows []graph.Row, maxRows int) string {
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	out := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Values)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
