package agents

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"rosterforge/internal/bus"
	"rosterforge/internal/config"
	"rosterforge/internal/roster"
)

// Bounds on candidate generation per violation.
const (
	maxReassignCandidates = 3
	maxSwapCandidates     = 3
	maxAddCandidates      = 3
)

// ResolveReport is the outcome of one resolver pass.
type ResolveReport struct {
	Applied    []*roster.Resolution
	Deferred   []roster.Violation    // touched by an earlier fix this pass, retry next iteration
	Unresolved []roster.Violation    // no feasible candidate found
	PartialFix []*roster.Resolution  // best-known candidate per unresolved violation, nil when none
}

// ConflictResolver generates, ranks and applies candidate fixes for hard
// violations. At most one resolution is applied per violation per pass;
// violations whose employees or shifts were already touched this pass are
// deferred, since one fix can resolve or create adjacent violations.
type ConflictResolver struct {
	BaseAgent
	scoring   config.Scoring
	validator *ComplianceValidator
}

// NewConflictResolver builds the resolver. It shares the validator so
// candidate impact is predicted with exactly the rules the refinement loop
// enforces.
func NewConflictResolver(b *bus.Bus, log *zap.SugaredLogger, scoring config.Scoring, validator *ComplianceValidator) *ConflictResolver {
	return &ConflictResolver{
		BaseAgent: NewBaseAgent(NameResolver, b, log),
		scoring:   scoring,
		validator: validator,
	}
}

// Resolve works through the hard violations in order, mutating the schedule
// and roster through their atomic commit/retract operations. Candidates are
// evaluated on snapshots first; only the best-ranked feasible one is applied.
func (cr *ConflictResolver) Resolve(sched *roster.Schedule, r *roster.Roster, violations []roster.Violation, correlationID string) ResolveReport {
	var report ResolveReport
	touched := make(map[string]bool)
	baseHard := len(violations)

	for _, viol := range violations {
		if cr.touches(viol, touched) {
			report.Deferred = append(report.Deferred, viol)
			continue
		}

		candidates := cr.candidates(sched, r, viol)
		for _, c := range candidates {
			cr.predict(sched, r, viol, c, baseHard)
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].ViolationDelta != candidates[j].ViolationDelta {
				return candidates[i].ViolationDelta < candidates[j].ViolationDelta
			}
			return candidates[i].FairnessDelta < candidates[j].FairnessDelta
		})

		applied := false
		for _, c := range candidates {
			if c.ViolationDelta > 0 || !c.resolved {
				continue
			}
			if c.Kind == roster.Reassign && !cr.negotiate(sched, r, c, correlationID) {
				continue
			}
			if err := cr.apply(sched, r, c); err != nil {
				cr.log.Errorw("apply failed", "resolution", c.Describe(), "error", err)
				continue
			}
			cr.markTouched(c, touched)
			report.Applied = append(report.Applied, c.Resolution)
			baseHard += c.ViolationDelta
			cr.log.Infow("resolution applied", "move", c.Describe(), "delta", c.ViolationDelta)
			applied = true
			break
		}
		if !applied {
			report.Unresolved = append(report.Unresolved, viol)
			var best *roster.Resolution
			if len(candidates) > 0 {
				best = candidates[0].Resolution
			}
			report.PartialFix = append(report.PartialFix, best)
		}
	}
	return report
}

// candidate wraps a Resolution with prediction state.
type candidate struct {
	*roster.Resolution
	resolved bool // the prediction no longer contains the target violation
}

func (cr *ConflictResolver) touches(v roster.Violation, touched map[string]bool) bool {
	return (v.EmployeeID != "" && touched[v.EmployeeID]) || (v.ShiftID != "" && touched[v.ShiftID])
}

func (cr *ConflictResolver) markTouched(c *candidate, touched map[string]bool) {
	for _, k := range []string{c.ShiftID, c.SwapShiftID, c.EmployeeID, c.TargetID} {
		if k != "" {
			touched[k] = true
		}
	}
}

// candidates builds the bounded move set for one violation.
func (cr *ConflictResolver) candidates(sched *roster.Schedule, r *roster.Roster, viol roster.Violation) []*candidate {
	switch viol.Rule {
	case roster.RuleUnderstaffed, roster.RuleMinStaffing:
		return cr.staffingCandidates(sched, r, viol)
	default:
		return cr.assignmentCandidates(sched, r, viol)
	}
}

// staffingCandidates fills empty seats from the eligible pool, which already
// includes cross-trained employees.
func (cr *ConflictResolver) staffingCandidates(sched *roster.Schedule, r *roster.Roster, viol roster.Violation) []*candidate {
	shift, ok := sched.Shifts[viol.ShiftID]
	if !ok {
		return nil
	}
	stations := []roster.Station{viol.Station}
	if viol.Station == "" {
		// Whole-shift shortfall: try every station still below target. When
		// all targets are met but the two-person floor is not, double-staff
		// any station with demand.
		stations = stations[:0]
		for _, st := range roster.Stations {
			if sched.StaffOnShift(shift.ID, st) < shift.Required[st] {
				stations = append(stations, st)
			}
		}
		if len(stations) == 0 {
			for _, st := range roster.Stations {
				if shift.Required[st] > 0 {
					stations = append(stations, st)
				}
			}
		}
	}
	var out []*candidate
	for _, st := range stations {
		bids := collectBids(cr.scoring, shift, st, sched, r)
		sortBids(bids, r)
		for i := 0; i < len(bids) && i < maxAddCandidates; i++ {
			out = append(out, &candidate{Resolution: &roster.Resolution{
				Kind:     roster.Add,
				Rule:     viol.Rule,
				ShiftID:  shift.ID,
				Station:  st,
				TargetID: bids[i].EmployeeID,
				Outcome:  roster.OutcomeNone,
			}})
		}
	}
	return out
}

// assignmentCandidates handles violations pinned to one employee's
// assignment: reassign it, swap it, or drop it.
func (cr *ConflictResolver) assignmentCandidates(sched *roster.Schedule, r *roster.Roster, viol roster.Violation) []*candidate {
	a := cr.offendingAssignment(sched, r, viol)
	if a == nil {
		return nil
	}
	shift := sched.Shifts[a.ShiftID]
	var out []*candidate

	// Reassign to another eligible employee. The incumbent is excluded from
	// its own slot's bid set by the overlap check only after retraction, so
	// filter explicitly.
	bids := collectBids(cr.scoring, shift, a.Station, sched, r)
	sortBids(bids, r)
	added := 0
	for _, b := range bids {
		if b.EmployeeID == a.EmployeeID || added == maxReassignCandidates {
			continue
		}
		out = append(out, &candidate{Resolution: &roster.Resolution{
			Kind:       roster.Reassign,
			Rule:       viol.Rule,
			ShiftID:    a.ShiftID,
			Station:    a.Station,
			EmployeeID: a.EmployeeID,
			TargetID:   b.EmployeeID,
			Outcome:    roster.OutcomeNone,
		}})
		added++
	}

	// Swap with another employee's assignment on a different shift.
	swaps := 0
	for _, other := range sched.Committed() {
		if swaps == maxSwapCandidates {
			break
		}
		if other.EmployeeID == a.EmployeeID || other.ShiftID == a.ShiftID {
			continue
		}
		offender, _ := r.Get(a.EmployeeID)
		counterpart, ok := r.Get(other.EmployeeID)
		if !ok || offender == nil {
			continue
		}
		otherShift := sched.Shifts[other.ShiftID]
		if _, ok := counterpart.CanWork(a.Station); !ok || !counterpart.AvailableFor(shift) {
			continue
		}
		if _, ok := offender.CanWork(other.Station); !ok || !offender.AvailableFor(otherShift) {
			continue
		}
		// Each party must be free for the shift they are walking into, not
		// counting the assignment they are walking out of.
		if overlapsExcluding(sched, counterpart.ID, shift, other.ShiftID) ||
			overlapsExcluding(sched, offender.ID, otherShift, a.ShiftID) {
			continue
		}
		out = append(out, &candidate{Resolution: &roster.Resolution{
			Kind:        roster.Swap,
			Rule:        viol.Rule,
			ShiftID:     a.ShiftID,
			Station:     a.Station,
			EmployeeID:  a.EmployeeID,
			TargetID:    other.EmployeeID,
			SwapShiftID: other.ShiftID,
			SwapStation: other.Station,
			Outcome:     roster.OutcomeNone,
		}})
		swaps++
	}

	// Drop last: losing coverage is acceptable only when nothing else works.
	out = append(out, &candidate{Resolution: &roster.Resolution{
		Kind:       roster.Drop,
		Rule:       viol.Rule,
		ShiftID:    a.ShiftID,
		Station:    a.Station,
		EmployeeID: a.EmployeeID,
		Outcome:    roster.OutcomeNone,
	}})
	return out
}

// overlapsExcluding reports whether the employee holds a committed assignment
// overlapping the target shift, ignoring the one on excludeShiftID.
func overlapsExcluding(sched *roster.Schedule, employeeID string, target *roster.Shift, excludeShiftID string) bool {
	for _, a := range sched.CommittedFor(employeeID) {
		if a.ShiftID == excludeShiftID {
			continue
		}
		if sh, ok := sched.Shifts[a.ShiftID]; ok && sh.Overlaps(target) {
			return true
		}
	}
	return false
}

// offendingAssignment locates the assignment a violation points at. For
// rules without a shift reference (hour cap, consecutive days) it picks the
// employee's latest assignment in the offending window, which is the one
// whose removal relieves the rule.
func (cr *ConflictResolver) offendingAssignment(sched *roster.Schedule, r *roster.Roster, viol roster.Violation) *roster.Assignment {
	assignments := sched.CommittedFor(viol.EmployeeID)
	if len(assignments) == 0 {
		return nil
	}
	if viol.ShiftID != "" {
		for _, a := range assignments {
			if a.ShiftID == viol.ShiftID {
				return a
			}
		}
		return nil
	}
	if viol.Rule == roster.RuleHourCap {
		if a := cr.overCapAssignment(sched, r, viol.EmployeeID, assignments); a != nil {
			return a
		}
	}
	// Consecutive days and rest: relieving the latest assignment breaks the
	// streak or the short turnaround.
	return assignments[len(assignments)-1]
}

// overCapAssignment finds the last assignment in the earliest week whose
// hours exceed the employee's cap.
func (cr *ConflictResolver) overCapAssignment(sched *roster.Schedule, r *roster.Roster, employeeID string, assignments []*roster.Assignment) *roster.Assignment {
	e, ok := r.Get(employeeID)
	if !ok {
		return nil
	}
	weeks := make(map[string]float64)
	for _, a := range assignments {
		sh := sched.Shifts[a.ShiftID]
		weeks[sh.WeekKey()] += sh.Hours()
	}
	keys := make([]string, 0, len(weeks))
	for k := range weeks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if weeks[k] <= e.Type.MaxWeeklyHours() {
			continue
		}
		for i := len(assignments) - 1; i >= 0; i-- {
			if sched.Shifts[assignments[i].ShiftID].WeekKey() == k {
				return assignments[i]
			}
		}
	}
	return nil
}

// predict applies the candidate to snapshots and records its impact: net
// change in hard violations, fairness drift, and whether the target
// violation actually disappears.
func (cr *ConflictResolver) predict(sched *roster.Schedule, r *roster.Roster, viol roster.Violation, c *candidate, baseHard int) {
	schedCopy := sched.Clone()
	rosterCopy := r.Clone()
	if err := cr.apply(schedCopy, rosterCopy, c); err != nil {
		c.ViolationDelta = len(sched.Assignments) + 1 // infeasible, sorts last
		return
	}
	before := r.Gini()
	result := cr.validator.Validate(schedCopy, rosterCopy)
	c.ViolationDelta = len(result.Hard()) - baseHard
	c.FairnessDelta = rosterCopy.Gini() - before
	c.resolved = true
	for _, v := range result.Hard() {
		if v.Rule == viol.Rule && v.EmployeeID == viol.EmployeeID && v.ShiftID == viol.ShiftID && v.Station == viol.Station {
			c.resolved = false
			break
		}
	}
}

// apply executes the move through the roster's atomic operations. It works
// identically on live state and on prediction snapshots.
func (cr *ConflictResolver) apply(sched *roster.Schedule, r *roster.Roster, c *candidate) error {
	switch c.Kind {
	case roster.Add:
		return r.Commit(sched, &roster.Assignment{
			ID:         roster.AssignmentID(c.ShiftID, c.Station, c.TargetID),
			EmployeeID: c.TargetID,
			ShiftID:    c.ShiftID,
			Station:    c.Station,
		})
	case roster.Drop:
		return r.Retract(sched, roster.AssignmentID(c.ShiftID, c.Station, c.EmployeeID))
	case roster.Reassign:
		if err := r.Retract(sched, roster.AssignmentID(c.ShiftID, c.Station, c.EmployeeID)); err != nil {
			return err
		}
		return r.Commit(sched, &roster.Assignment{
			ID:         roster.AssignmentID(c.ShiftID, c.Station, c.TargetID),
			EmployeeID: c.TargetID,
			ShiftID:    c.ShiftID,
			Station:    c.Station,
		})
	case roster.Swap:
		if err := r.Retract(sched, roster.AssignmentID(c.ShiftID, c.Station, c.EmployeeID)); err != nil {
			return err
		}
		if err := r.Retract(sched, roster.AssignmentID(c.SwapShiftID, c.SwapStation, c.TargetID)); err != nil {
			return err
		}
		if err := r.Commit(sched, &roster.Assignment{
			ID:         roster.AssignmentID(c.ShiftID, c.Station, c.TargetID),
			EmployeeID: c.TargetID,
			ShiftID:    c.ShiftID,
			Station:    c.Station,
		}); err != nil {
			return err
		}
		return r.Commit(sched, &roster.Assignment{
			ID:         roster.AssignmentID(c.SwapShiftID, c.SwapStation, c.EmployeeID),
			EmployeeID: c.EmployeeID,
			ShiftID:    c.SwapShiftID,
			Station:    c.SwapStation,
		})
	default:
		return fmt.Errorf("unknown resolution kind %q", c.Kind)
	}
}

// negotiate runs the counter-bid protocol for a contested reassignment.
// Both parties are asked to re-bid with fairness pressure recomputed from
// the current counters; the incumbent gets the configured retention bonus.
// Returns true when the contender wins and the move may proceed.
func (cr *ConflictResolver) negotiate(sched *roster.Schedule, r *roster.Roster, c *candidate, correlationID string) bool {
	shift := sched.Shifts[c.ShiftID]
	incumbent, ok1 := r.Get(c.EmployeeID)
	contender, ok2 := r.Get(c.TargetID)
	if !ok1 || !ok2 {
		return false
	}

	cr.Send(bus.TypeRequest, c.EmployeeID, correlationID, bus.RequestPayload{Resource: "counter_bid", StoreID: sched.StoreID})
	cr.Send(bus.TypeRequest, c.TargetID, correlationID, bus.RequestPayload{Resource: "counter_bid", StoreID: sched.StoreID})

	incumbentBid := scoreBid(cr.scoring, incumbent, shift, c.Station, r)
	incumbentBid.Score += cr.scoring.IncumbentBonus
	contenderBid := scoreBid(cr.scoring, contender, shift, c.Station, r)

	winner, loser := c.EmployeeID, c.TargetID
	winning, losing := incumbentBid.Score, contenderBid.Score
	if contenderBid.Beats(incumbentBid, r.TotalHours(c.TargetID), r.TotalHours(c.EmployeeID)) {
		winner, loser = c.TargetID, c.EmployeeID
		winning, losing = contenderBid.Score, incumbentBid.Score
		c.Outcome = roster.OutcomeContenderWon
	} else {
		c.Outcome = roster.OutcomeIncumbentHeld
	}

	cr.Send(bus.TypeResolutionSelected, NameCoordinator, correlationID, bus.ResolutionPayload{
		Resolution:   c.Resolution,
		WinnerID:     winner,
		LoserID:      loser,
		WinningScore: winning,
		LosingScore:  losing,
	})
	return c.Outcome == roster.OutcomeContenderWon
}

func sortBids(bids []roster.Bid, r *roster.Roster) {
	sort.SliceStable(bids, func(i, j int) bool {
		return bids[i].Beats(bids[j], r.TotalHours(bids[i].EmployeeID), r.TotalHours(bids[j].EmployeeID))
	})
}
