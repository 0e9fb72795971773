package graph

import (
	"strings"

	"go.uber.org/zap"
)

// PlannedQuery is a parameterized query ready for execution
type PlannedQuery struct {
	Query  string
	Params map[string]interface{}
}

// Planner maps a classified intent and its extracted parameters onto a
// parameterized query template. A nil result with nil error means the
// intent has no structured query for the given inputs.
type Planner struct {
	logger *zap.Logger
}

// NewPlanner creates a query planner
func NewPlanner(logger *zap.Logger) *Planner {
	return &Planner{logger: logger}
}

// treatmentCodes maps treatment keywords to ICD-10 codes
var treatmentCodes = []struct {
	keyword string
	code    string
}{
	{"diabetes", "E11"},
	{"hypertension", "I10"},
	{"blood pressure", "I10"},
	{"knee", "M17"},
	{"surgery", "M17"},
	{"asthma", "J45"},
}

// TreatmentCode resolves a treatment name to its ICD-10 code, empty when unknown
func TreatmentCode(treatmentName string) string {
	name := strings.ToLower(treatmentName)
	for _, tc := range treatmentCodes {
		if strings.Contains(name, tc.keyword) {
			return tc.code
		}
	}
	return ""
}

// Plan builds the structured query for an intent. Missing prerequisites
// (customer id, unmapped treatment, absent medication name) yield nil.
func (p *Planner) Plan(intent string, params map[string]interface{}, customerID string) (*PlannedQuery, error) {
	switch intent {
	case "coverage_check":
		treatmentCode := stringParam(params, "treatment_code")
		if treatmentCode == "" {
			treatmentCode = TreatmentCode(stringParam(params, "treatment_name"))
		}
		if treatmentCode == "" || customerID == "" {
			p.logger.Debug("No structured query for coverage check",
				zap.String("customer_id", customerID))
			return nil, nil
		}
		hospitalName := stringParam(params, "hospital_name")
		if hospitalName == "" {
			hospitalName = "Apollo"
		}
		return &PlannedQuery{
			Query: queryCoverageCheck,
			Params: map[string]interface{}{
				"customer_id":    customerID,
				"treatment_code": treatmentCode,
				"hospital_name":  hospitalName,
			},
		}, nil

	case "hospital_finder":
		if customerID == "" {
			return nil, nil
		}
		query := queryHospitalFinderBase
		qp := map[string]interface{}{"customer_id": customerID}
		if city := stringParam(params, "city"); city != "" {
			query += "\n  AND toLower(h.city) = toLower($city)"
			qp["city"] = city
		}
		if minDiscount, ok := intParam(params, "min_discount"); ok {
			query += "\n  AND net.discount_pct >= $min_discount"
			qp["min_discount"] = minDiscount
		}
		query += queryHospitalFinderReturn
		return &PlannedQuery{Query: query, Params: qp}, nil

	case "claim_history":
		if customerID == "" {
			return nil, nil
		}
		return &PlannedQuery{
			Query:  queryClaimHistory,
			Params: map[string]interface{}{"customer_id": customerID, "limit": 5},
		}, nil

	case "policy_utilization":
		if customerID == "" {
			return nil, nil
		}
		return &PlannedQuery{
			Query:  queryPolicyUtilization,
			Params: map[string]interface{}{"customer_id": customerID},
		}, nil

	case "medication_coverage":
		medication := stringParam(params, "medication_name")
		if customerID == "" || medication == "" {
			return nil, nil
		}
		return &PlannedQuery{
			Query: queryMedicationCoverage,
			Params: map[string]interface{}{
				"customer_id":     customerID,
				"medication_name": medication,
			},
		}, nil
	}

	p.logger.Debug("No query template for intent", zap.String("intent", intent))
	return nil, nil
}

func stringParam(params map[string]interface{}, key string) string {
	if params == nil {
		return ""
	}
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func intParam(params map[string]interface{}, key string) (int, bool) {
	if params == nil {
		return 0, false
	}
	switch v := params[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case string:
		if v == "" {
			return 0, false
		}
		n := 0
		for _, r := range v {
			if r < '0' || r > '9' {
				return 0, false
			}
			n = n*10 + int(r-'0')
		}
		return n, true
	}
	return 0, false
}
