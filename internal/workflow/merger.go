package workflow

import (
	"fmt"
	"strings"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/graph"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/retrieval"
)

// mergeResults combines structured rows and semantic snippets into one
// labeled context for generation. Rows are capped at maxRows, snippets
// at maxSnippets. The bool reports whether any content survived.
func mergeResults(rows []graph.Row, snippets []retrieval.Snippet, maxRows, maxSnippets int) (string, bool) {
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	if maxSnippets > 0 && len(snippets) > maxSnippets {
		snippets = snippets[:maxSnippets]
	}
	if len(rows) == 0 && len(snippets) == 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString("=== Policy Records ===\n")
	if len(rows) == 0 {
		b.WriteString("(none found)\n")
	} else {
		b.WriteString(renderRowsTable(rows))
	}

	b.WriteString("\n=== Policy Documentation ===\n")
	if len(snippets) == 0 {
		b.WriteString("(none found)\n")
	} else {
		for _, s := range snippets {
			b.WriteString(s.Content)
			b.WriteString("\n")
		}
	}
	return b.String(), true
}

// rawCombined renders both sources directly, used when generation fails
// so the answer is not lost entirely.
func rawCombined(rows []graph.Row, snippets []retrieval.Snippet, maxRows, maxSnippets int) string {
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	if maxSnippets > 0 && len(snippets) > maxSnippets {
		snippets = snippets[:maxSnippets]
	}

	var parts []string
	for _, s := range snippets {
		parts = append(parts, s.Content)
	}
	if len(rows) > 0 {
		parts = append(parts, "Matching policy records:\n"+renderRowsTable(rows))
	}
	return strings.Join(parts, "\n\n")
}

// renderRowsTable renders rows as "col: value" lines preserving the
// result's column order, one block per row.
func renderRowsTable(rows []graph.Row) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteString("---\n")
		}
		for _, col := range row.Columns {
			v, ok := row.Values[col]
			if !ok || v == nil {
				continue
			}
			fmt.Fprintf(&b, "%s: %v\n", col, v)
		}
	}
	return b.String()
}
