package roster

import "sort"

// ViolationKind separates rules that invalidate a schedule from rules that
// only degrade it.
type ViolationKind string

const (
	Hard ViolationKind = "hard"
	Soft ViolationKind = "soft"
)

// Rule identifiers. One per constraint the validator checks.
const (
	RuleAvailability    = "availability"
	RuleSkill           = "skill_match"
	RuleHourCap         = "hour_cap"
	RuleRestPeriod      = "rest_period"
	RuleConsecutiveDays = "consecutive_days"
	RuleMinStaffing     = "min_staffing"
	RuleUnderstaffed    = "understaffed"
	RuleMinTargetHours  = "min_target_hours"
	RulePeakCoverage    = "peak_coverage"
	RuleFairness        = "fairness_variance"
	RulePreference      = "preference_satisfaction"
)

// Violation is one broken rule, tied to the employee and/or shift involved.
type Violation struct {
	Kind        ViolationKind
	Rule        string
	EmployeeID  string
	ShiftID     string
	Station     Station
	Description string
	Severity    float64
}

// ComplianceResult is a schedule's ordered violation list plus the overall
// score managers see. Hard violations sort first, each group by severity
// descending; ties break on rule, shift and employee so repeated validation
// of the same schedule reproduces the identical result.
type ComplianceResult struct {
	StoreID    string
	Violations []Violation
	Score      float64
}

// NewComplianceResult orders the violations and derives the score: 100 minus
// 15 per hard and 3 per soft violation, floored at zero.
func NewComplianceResult(storeID string, violations []Violation) *ComplianceResult {
	sort.SliceStable(violations, func(i, j int) bool {
		vi, vj := violations[i], violations[j]
		if vi.Kind != vj.Kind {
			return vi.Kind == Hard
		}
		if vi.Severity != vj.Severity {
			return vi.Severity > vj.Severity
		}
		if vi.Rule != vj.Rule {
			return vi.Rule < vj.Rule
		}
		if vi.ShiftID != vj.ShiftID {
			return vi.ShiftID < vj.ShiftID
		}
		return vi.EmployeeID < vj.EmployeeID
	})
	score := 100.0
	for _, v := range violations {
		if v.Kind == Hard {
			score -= 15
		} else {
			score -= 3
		}
	}
	if score < 0 {
		score = 0
	}
	return &ComplianceResult{StoreID: storeID, Violations: violations, Score: score}
}

// Hard returns only the hard violations, preserving order.
func (c *ComplianceResult) Hard() []Violation {
	var out []Violation
	for _, v := range c.Violations {
		if v.Kind == Hard {
			out = append(out, v)
		}
	}
	return out
}

// Soft returns only the soft violations, preserving order.
func (c *ComplianceResult) Soft() []Violation {
	var out []Violation
	for _, v := range c.Violations {
		if v.Kind == Soft {
			out = append(out, v)
		}
	}
	return out
}

// IsCompliant reports whether the schedule is deployable: no hard violations.
func (c *ComplianceResult) IsCompliant() bool {
	return len(c.Hard()) == 0
}
