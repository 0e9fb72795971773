package graph

// Parameterized query templates against the insurance knowledge graph.
// Parameter binding happens server-side; templates never interpolate input.

const queryCoverageCheck = `
MATCH (c:Customer {id: $customer_id})-[:HAS_POLICY]->(p:Policy),
      (p)-[cov:COVERS]->(t:Treatment {code: $treatment_code}),
      (p)-[net:IN_NETWORK]->(h:Hospital)
WHERE toLower(h.name) CONTAINS toLower($hospital_name)
  AND net.cashless_eligible = true
RETURN p.plan_type as policy_plan,
       t.name as treatment_name,
       h.name as hospital_name,
       h.city as city,
       cov.sub_limit as sub_limit,
       cov.copay as copay,
       t.avg_cost as estimated_cost,
       net.cashless_eligible as cashless
LIMIT 1`

const queryHospitalFinderBase = `
MATCH (c:Customer {id: $customer_id})-[:HAS_POLICY]->(p:Policy)-[net:IN_NETWORK]->(h:Hospital)
WHERE net.cashless_eligible = true`

const queryHospitalFinderReturn = `
RETURN h.name as hospital_name,
       h.city as city,
       h.tier as tier,
       h.specialties as specialties,
       net.discount_pct as discount
ORDER BY net.discount_pct DESC, h.tier, h.name`

const queryClaimHistory = `
MATCH (c:Customer {id: $customer_id})-[:FILED_CLAIM]->(cl:Claim)
OPTIONAL MATCH (cl)-[:AT_HOSPITAL]->(h:Hospital)
OPTIONAL MATCH (cl)-[:FOR_TREATMENT]->(t:Treatment)
RETURN cl.id as claim_id,
       cl.status as status,
       cl.amount as claimed_amount,
       cl.approved_amount as approved_amount,
       cl.rejection_reason as rejection_reason,
       cl.remaining_eligible as remaining_eligible,
       cl.date as claim_date,
       h.name as hospital_name,
       t.name as treatment_name
ORDER BY cl.date DESC
LIMIT $limit`

const queryPolicyUtilization = `
MATCH (c:Customer {id: $customer_id})-[hp:HAS_POLICY]->(p:Policy)
WHERE hp.is_active = true
OPTIONAL MATCH (c)-[:FILED_CLAIM]->(cl:Claim)
WHERE cl.status = 'Approved' OR cl.status = 'Partially Approved'
WITH p, hp, sum(cl.approved_amount) as total_utilized
RETURN p.id as policy_id,
       p.plan_type as plan_type,
       p.sum_insured as total_cover,
       COALESCE(total_utilized, 0) as amount_utilized,
       p.sum_insured - COALESCE(total_utilized, 0) as remaining_cover,
       hp.start_date as policy_start,
       hp.end_date as policy_end,
       p.renewal_date as renewal_date`

const queryMedicationCoverage = `
MATCH (c:Customer {id: $customer_id})-[:HAS_POLICY]->(p:Policy)-[form:IN_FORMULARY]->(m:Medication)
WHERE toLower(m.name) CONTAINS toLower($medication_name) OR toLower(m.generic) CONTAINS toLower($medication_name)
OPTIONAL MATCH (m)-[:TREATS]->(t:Treatment)
RETURN m.name as medication_name,
       m.generic as generic_name,
       m.formulary_tier as tier,
       form.coverage_pct as coverage_percentage,
       form.requires_preauth as requires_preauth,
       t.name as treats_condition`
