package workflow

import (
	"fmt"
	"strings"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/graph"
)

// templatedResponse builds a deterministic answer straight from the
// structured rows when the generator is unavailable.
func templatedResponse(intent string, rows []graph.Row) string {
	if len(rows) == 0 {
		return "I couldn't find information matching your query."
	}

	switch intent {
	case IntentCoverageCheck:
		r := rows[0].Values
		return fmt.Sprintf("Your %v policy covers %v at %v. Sub-limit: ₹%v, Co-pay: %v%%.",
			r["policy_plan"], r["treatment_name"], r["hospital_name"], r["sub_limit"], r["copay"])

	case IntentHospitalFinder:
		var hospitals []string
		for i, row := range rows {
			if i >= 3 {
				break
			}
			hospitals = append(hospitals, fmt.Sprintf("%v (%v%% discount)",
				row.Values["hospital_name"], row.Values["discount"]))
		}
		return fmt.Sprintf("Here are your in-network hospitals: %s.", strings.Join(hospitals, ", "))
	}

	return fmt.Sprintf("Found %d result(s) for your query.", len(rows))
}
