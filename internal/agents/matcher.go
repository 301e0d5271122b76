package agents

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"rosterforge/internal/bus"
	"rosterforge/internal/config"
	"rosterforge/internal/roster"
)

// StaffMatcher produces the initial schedule by running a sealed-bid
// auction, one round per (shift, station) seat. Rounds are strictly
// sequential: a winner's hours are committed before the next seat opens, so
// later rounds see updated fairness pressure.
type StaffMatcher struct {
	BaseAgent
	scoring config.Scoring
}

// NewStaffMatcher builds the matcher with the configured bid weights.
func NewStaffMatcher(b *bus.Bus, log *zap.SugaredLogger, scoring config.Scoring) *StaffMatcher {
	return &StaffMatcher{
		BaseAgent: NewBaseAgent(NameMatcher, b, log),
		scoring:   scoring,
	}
}

// auctionSlot is one seat up for auction.
type auctionSlot struct {
	shift   *roster.Shift
	station roster.Station
}

// Match fills the schedule skeleton in place. Seats that attract no eligible
// bidder are left unfilled and returned as pending understaffing violations;
// the run never fails here. Given identical inputs the result is identical.
func (m *StaffMatcher) Match(sched *roster.Schedule, r *roster.Roster) []roster.Violation {
	slots := m.prioritizedSlots(sched)
	unfilled := make(map[roster.Slot]int)

	for _, slot := range slots {
		bids := collectBids(m.scoring, slot.shift, slot.station, sched, r)
		winner, ok := bestBid(bids, r)
		if !ok {
			unfilled[roster.Slot{ShiftID: slot.shift.ID, Station: slot.station}]++
			m.log.Debugw("slot unfilled", "shift", slot.shift.ID, "station", slot.station)
			continue
		}
		a := &roster.Assignment{
			ID:         roster.AssignmentID(slot.shift.ID, slot.station, winner.EmployeeID),
			EmployeeID: winner.EmployeeID,
			ShiftID:    slot.shift.ID,
			Station:    slot.station,
		}
		if err := r.Commit(sched, a); err != nil {
			// Commit can only fail on a malformed skeleton; treat the
			// seat as unfilled rather than aborting the auction.
			m.log.Errorw("commit failed", "assignment", a.ID, "error", err)
			unfilled[roster.Slot{ShiftID: slot.shift.ID, Station: slot.station}]++
			continue
		}
		m.log.Debugw("slot awarded",
			"shift", slot.shift.ID, "station", slot.station,
			"employee", winner.EmployeeID, "score", winner.Score)
	}

	return m.pendingViolations(sched, unfilled)
}

// prioritizedSlots expands the staffing targets into seats and orders them:
// peak shifts first, then higher required counts, then earlier dates. The
// trailing station tie-break keeps the expansion deterministic.
func (m *StaffMatcher) prioritizedSlots(sched *roster.Schedule) []auctionSlot {
	var slots []auctionSlot
	for _, shift := range sched.ShiftsByDate() {
		for _, st := range roster.Stations {
			for i := 0; i < shift.Required[st]; i++ {
				slots = append(slots, auctionSlot{shift: shift, station: st})
			}
		}
	}
	sort.SliceStable(slots, func(i, j int) bool {
		si, sj := slots[i].shift, slots[j].shift
		ti, tj := si.Type(), sj.Type()
		if ti != tj {
			return ti == roster.Peak
		}
		if si.TotalRequired() != sj.TotalRequired() {
			return si.TotalRequired() > sj.TotalRequired()
		}
		if !si.StartTime().Equal(sj.StartTime()) {
			return si.StartTime().Before(sj.StartTime())
		}
		if si.ID != sj.ID {
			return si.ID < sj.ID
		}
		return slots[i].station < slots[j].station
	})
	return slots
}

func (m *StaffMatcher) pendingViolations(sched *roster.Schedule, unfilled map[roster.Slot]int) []roster.Violation {
	var violations []roster.Violation
	for _, shift := range sched.ShiftsByDate() {
		for _, st := range roster.Stations {
			n := unfilled[roster.Slot{ShiftID: shift.ID, Station: st}]
			if n == 0 {
				continue
			}
			severity := 7.0
			if shift.Type() == roster.Peak {
				severity = 9.0
			}
			violations = append(violations, roster.Violation{
				Kind:        roster.Hard,
				Rule:        roster.RuleUnderstaffed,
				ShiftID:     shift.ID,
				Station:     st,
				Description: fmt.Sprintf("%d of %d %s seats unfilled on shift %s", n, shift.Required[st], st, shift.ID),
				Severity:    severity,
			})
		}
	}
	return violations
}
