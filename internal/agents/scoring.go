package agents

import (
	"rosterforge/internal/config"
	"rosterforge/internal/roster"
)

// eligible reports whether the employee may bid on the (shift, station)
// slot: trained for the station (directly or via cross-training), available
// for the window, no overlapping committed assignment, and under the weekly
// hour cap.
func eligible(e *roster.Employee, shift *roster.Shift, st roster.Station, sched *roster.Schedule, r *roster.Roster) bool {
	if _, ok := e.CanWork(st); !ok {
		return false
	}
	if !e.AvailableFor(shift) {
		return false
	}
	if sched.HasOverlapCommitted(e.ID, shift) {
		return false
	}
	return r.UnderCap(e, shift)
}

// scoreBid computes the sealed bid for an eligible employee. The score is a
// weighted sum of skill match (direct training beats cross-training),
// fairness pressure (employees below their target minimum bid higher),
// preference alignment with the shift type, and availability margin.
func scoreBid(sc config.Scoring, e *roster.Employee, shift *roster.Shift, st roster.Station, r *roster.Roster) roster.Bid {
	direct, _ := e.CanWork(st)
	skill := sc.CrossTrainFactor
	if direct {
		skill = 1.0
	}
	fairness := r.FairnessPressure(e)
	preference := e.Preference(shift.Type())
	margin := e.AvailabilityMargin(shift)

	return roster.Bid{
		EmployeeID: e.ID,
		ShiftID:    shift.ID,
		Station:    st,
		Skill:      skill,
		Fairness:   fairness,
		Preference: preference,
		Margin:     margin,
		Score: sc.SkillWeight*skill +
			sc.FairnessWeight*fairness +
			sc.PreferenceWeight*preference +
			sc.AvailabilityWeight*margin,
	}
}

// collectBids gathers bids from every eligible employee, in employee ID
// order so two identical runs see identical bid sets.
func collectBids(sc config.Scoring, shift *roster.Shift, st roster.Station, sched *roster.Schedule, r *roster.Roster) []roster.Bid {
	var bids []roster.Bid
	for _, e := range r.Employees() {
		if !eligible(e, shift, st, sched, r) {
			continue
		}
		bids = append(bids, scoreBid(sc, e, shift, st, r))
	}
	return bids
}

// bestBid returns the winning bid under the deterministic tie-break rule:
// highest score, then lowest committed hours, then lowest employee ID.
func bestBid(bids []roster.Bid, r *roster.Roster) (roster.Bid, bool) {
	if len(bids) == 0 {
		return roster.Bid{}, false
	}
	best := bids[0]
	for _, b := range bids[1:] {
		if b.Beats(best, r.TotalHours(b.EmployeeID), r.TotalHours(best.EmployeeID)) {
			best = b
		}
	}
	return best, true
}
