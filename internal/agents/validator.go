package agents

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"rosterforge/internal/bus"
	"rosterforge/internal/roster"
)

// Soft-rule thresholds. These are quality targets, not legal limits.
const (
	peakCoverageTarget = 0.9
	giniThreshold      = 0.35
	preferenceTarget   = 0.6
)

// Minimum rest between two consecutive shifts, hours.
const minRestHours = 10.0

// Longest permitted run of consecutive working days.
const maxConsecutiveDays = 6

// ComplianceValidator evaluates a schedule against the fixed rule set. It is
// stateless and side-effect free: everything it reports is derived from the
// schedule snapshot it was handed, so re-validating an unchanged schedule
// reproduces the identical result.
type ComplianceValidator struct {
	BaseAgent
}

// NewComplianceValidator builds the validator.
func NewComplianceValidator(b *bus.Bus, log *zap.SugaredLogger) *ComplianceValidator {
	return &ComplianceValidator{BaseAgent: NewBaseAgent(NameValidator, b, log)}
}

// Validate checks every hard and soft rule and records each breach
// independently; nothing short-circuits.
func (v *ComplianceValidator) Validate(sched *roster.Schedule, r *roster.Roster) *roster.ComplianceResult {
	var violations []roster.Violation
	violations = append(violations, v.checkAssignments(sched, r)...)
	violations = append(violations, v.checkHourCaps(sched, r)...)
	violations = append(violations, v.checkRestPeriods(sched, r)...)
	violations = append(violations, v.checkConsecutiveDays(sched, r)...)
	violations = append(violations, v.checkStaffing(sched)...)
	violations = append(violations, v.checkTargetHours(sched, r)...)
	violations = append(violations, v.checkPeakCoverage(sched)...)
	violations = append(violations, v.checkFairness(sched, r)...)
	violations = append(violations, v.checkPreferences(sched, r)...)
	return roster.NewComplianceResult(sched.StoreID, violations)
}

// checkAssignments verifies availability and station skill per committed
// assignment.
func (v *ComplianceValidator) checkAssignments(sched *roster.Schedule, r *roster.Roster) []roster.Violation {
	var out []roster.Violation
	for _, a := range sched.Committed() {
		e, ok := r.Get(a.EmployeeID)
		if !ok {
			continue
		}
		shift := sched.Shifts[a.ShiftID]
		if !e.AvailableFor(shift) {
			out = append(out, roster.Violation{
				Kind:        roster.Hard,
				Rule:        roster.RuleAvailability,
				EmployeeID:  e.ID,
				ShiftID:     shift.ID,
				Station:     a.Station,
				Description: fmt.Sprintf("%s is not available for shift %s", e.ID, shift.ID),
				Severity:    6,
			})
		}
		if _, canWork := e.CanWork(a.Station); !canWork {
			out = append(out, roster.Violation{
				Kind:        roster.Hard,
				Rule:        roster.RuleSkill,
				EmployeeID:  e.ID,
				ShiftID:     shift.ID,
				Station:     a.Station,
				Description: fmt.Sprintf("%s is not trained for %s", e.ID, a.Station),
				Severity:    7,
			})
		}
	}
	return out
}

// scheduleHours recomputes per-employee weekly hours from the committed
// assignments, keeping the validator independent of the live counters.
func (v *ComplianceValidator) scheduleHours(sched *roster.Schedule) map[string]map[string]float64 {
	hours := make(map[string]map[string]float64)
	for _, a := range sched.Committed() {
		shift := sched.Shifts[a.ShiftID]
		if hours[a.EmployeeID] == nil {
			hours[a.EmployeeID] = make(map[string]float64)
		}
		hours[a.EmployeeID][shift.WeekKey()] += shift.Hours()
	}
	return hours
}

func (v *ComplianceValidator) checkHourCaps(sched *roster.Schedule, r *roster.Roster) []roster.Violation {
	var out []roster.Violation
	hours := v.scheduleHours(sched)
	for _, e := range r.Employees() {
		weeks := make([]string, 0, len(hours[e.ID]))
		for wk := range hours[e.ID] {
			weeks = append(weeks, wk)
		}
		sort.Strings(weeks)
		for _, wk := range weeks {
			if h := hours[e.ID][wk]; h > e.Type.MaxWeeklyHours() {
				out = append(out, roster.Violation{
					Kind:        roster.Hard,
					Rule:        roster.RuleHourCap,
					EmployeeID:  e.ID,
					Description: fmt.Sprintf("%s has %.1fh in %s, cap for %s is %.0fh", e.ID, h, wk, e.Type, e.Type.MaxWeeklyHours()),
					Severity:    8,
				})
			}
		}
	}
	return out
}

func (v *ComplianceValidator) checkRestPeriods(sched *roster.Schedule, r *roster.Roster) []roster.Violation {
	var out []roster.Violation
	for _, e := range r.Employees() {
		assignments := sched.CommittedFor(e.ID)
		for i := 1; i < len(assignments); i++ {
			prev := sched.Shifts[assignments[i-1].ShiftID]
			next := sched.Shifts[assignments[i].ShiftID]
			// Negative rest means the shifts overlap outright; that is the
			// worst possible turnaround and must be flagged, not skipped.
			rest := next.StartTime().Sub(prev.EndTime()).Hours()
			if rest < minRestHours {
				out = append(out, roster.Violation{
					Kind:        roster.Hard,
					Rule:        roster.RuleRestPeriod,
					EmployeeID:  e.ID,
					ShiftID:     next.ID,
					Description: fmt.Sprintf("%s has %.1fh rest before shift %s, minimum is %.0fh", e.ID, rest, next.ID, minRestHours),
					Severity:    7,
				})
			}
		}
	}
	return out
}

func (v *ComplianceValidator) checkConsecutiveDays(sched *roster.Schedule, r *roster.Roster) []roster.Violation {
	var out []roster.Violation
	for _, e := range r.Employees() {
		days := make(map[string]bool)
		for _, a := range sched.CommittedFor(e.ID) {
			days[sched.Shifts[a.ShiftID].Date.Format("2006-01-02")] = true
		}
		ordered := make([]string, 0, len(days))
		for d := range days {
			ordered = append(ordered, d)
		}
		sort.Strings(ordered)

		streak := 0
		var prev string
		for _, d := range ordered {
			if prev != "" && nextDay(prev) == d {
				streak++
			} else {
				// Close out the previous streak before starting over.
				if streak > maxConsecutiveDays {
					out = append(out, v.consecutiveDaysViolation(e.ID, streak))
				}
				streak = 1
			}
			prev = d
		}
		if streak > maxConsecutiveDays {
			out = append(out, v.consecutiveDaysViolation(e.ID, streak))
		}
	}
	return out
}

func (v *ComplianceValidator) consecutiveDaysViolation(employeeID string, streak int) roster.Violation {
	return roster.Violation{
		Kind:        roster.Hard,
		Rule:        roster.RuleConsecutiveDays,
		EmployeeID:  employeeID,
		Description: fmt.Sprintf("%s works %d consecutive days, maximum is %d", employeeID, streak, maxConsecutiveDays),
		Severity:    8,
	}
}

func nextDay(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, 1).Format("2006-01-02")
}

// checkStaffing enforces the operational floor on every shift with demand:
// at least two staff on duty, at least one on each station with a target,
// and flags every seat still missing against the target.
func (v *ComplianceValidator) checkStaffing(sched *roster.Schedule) []roster.Violation {
	var out []roster.Violation
	for _, shift := range sched.ShiftsByDate() {
		if shift.TotalRequired() == 0 {
			continue
		}
		if total := sched.StaffOnShift(shift.ID, ""); total < roster.MinStaffPerShift {
			out = append(out, roster.Violation{
				Kind:        roster.Hard,
				Rule:        roster.RuleMinStaffing,
				ShiftID:     shift.ID,
				Description: fmt.Sprintf("shift %s has %d staff on duty, minimum is %d", shift.ID, total, roster.MinStaffPerShift),
				Severity:    9,
			})
		}
		for _, st := range roster.Stations {
			required := shift.Required[st]
			if required == 0 {
				continue
			}
			staffed := sched.StaffOnShift(shift.ID, st)
			if staffed == 0 {
				out = append(out, roster.Violation{
					Kind:        roster.Hard,
					Rule:        roster.RuleMinStaffing,
					ShiftID:     shift.ID,
					Station:     st,
					Description: fmt.Sprintf("shift %s has nobody on %s", shift.ID, st),
					Severity:    8,
				})
			} else if staffed < required {
				severity := 6.0
				if shift.Type() == roster.Peak {
					severity = 8.0
				}
				out = append(out, roster.Violation{
					Kind:        roster.Hard,
					Rule:        roster.RuleUnderstaffed,
					ShiftID:     shift.ID,
					Station:     st,
					Description: fmt.Sprintf("shift %s has %d of %d on %s", shift.ID, staffed, required, st),
					Severity:    severity,
				})
			}
		}
	}
	return out
}

func (v *ComplianceValidator) checkTargetHours(sched *roster.Schedule, r *roster.Roster) []roster.Violation {
	var out []roster.Violation
	hours := v.scheduleHours(sched)
	for _, e := range r.Employees() {
		var total float64
		for _, h := range hours[e.ID] {
			total += h
		}
		if target := e.Type.MinTargetHours(); total < target {
			out = append(out, roster.Violation{
				Kind:        roster.Soft,
				Rule:        roster.RuleMinTargetHours,
				EmployeeID:  e.ID,
				Description: fmt.Sprintf("%s has %.1fh, target for %s is %.0fh", e.ID, total, e.Type, target),
				Severity:    3,
			})
		}
	}
	return out
}

func (v *ComplianceValidator) checkPeakCoverage(sched *roster.Schedule) []roster.Violation {
	var required, filled int
	for _, shift := range sched.ShiftsByDate() {
		if shift.Type() != roster.Peak {
			continue
		}
		required += shift.TotalRequired()
		filled += sched.StaffOnShift(shift.ID, "")
	}
	if required == 0 {
		return nil
	}
	ratio := float64(filled) / float64(required)
	if ratio >= peakCoverageTarget {
		return nil
	}
	return []roster.Violation{{
		Kind:        roster.Soft,
		Rule:        roster.RulePeakCoverage,
		Description: fmt.Sprintf("peak coverage %.0f%%, target %.0f%%", ratio*100, peakCoverageTarget*100),
		Severity:    4,
	}}
}

func (v *ComplianceValidator) checkFairness(sched *roster.Schedule, r *roster.Roster) []roster.Violation {
	// Gini over schedule-derived totals, not the live counters.
	hours := v.scheduleHours(sched)
	n := len(r.Employees())
	if n == 0 {
		return nil
	}
	values := make([]float64, 0, n)
	var sum float64
	for _, e := range r.Employees() {
		var total float64
		for _, h := range hours[e.ID] {
			total += h
		}
		values = append(values, total)
		sum += total
	}
	if sum == 0 {
		return nil
	}
	sort.Float64s(values)
	var weighted float64
	for i, val := range values {
		weighted += float64(2*(i+1)-n-1) * val
	}
	gini := weighted / (float64(n) * sum)
	if gini <= giniThreshold {
		return nil
	}
	return []roster.Violation{{
		Kind:        roster.Soft,
		Rule:        roster.RuleFairness,
		Description: fmt.Sprintf("hours dispersion (Gini %.2f) exceeds %.2f", gini, giniThreshold),
		Severity:    3,
	}}
}

func (v *ComplianceValidator) checkPreferences(sched *roster.Schedule, r *roster.Roster) []roster.Violation {
	committed := sched.Committed()
	if len(committed) == 0 {
		return nil
	}
	satisfied := 0
	for _, a := range committed {
		e, ok := r.Get(a.EmployeeID)
		if !ok {
			continue
		}
		if e.Preference(sched.Shifts[a.ShiftID].Type()) >= 0.5 {
			satisfied++
		}
	}
	ratio := float64(satisfied) / float64(len(committed))
	if ratio >= preferenceTarget {
		return nil
	}
	return []roster.Violation{{
		Kind:        roster.Soft,
		Rule:        roster.RulePreference,
		Description: fmt.Sprintf("only %.0f%% of assignments match preferences, target %.0f%%", ratio*100, preferenceTarget*100),
		Severity:    2,
	}}
}
