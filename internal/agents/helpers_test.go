package agents

import (
	"time"

	"go.uber.org/zap"

	"rosterforge/internal/bus"
	"rosterforge/internal/config"
	"rosterforge/internal/roster"
)

// Monday 2025-03-03; fixtures build the horizon from here.
var baseDate = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func testBus() *bus.Bus {
	return bus.New(testLogger())
}

func testScoring() config.Scoring {
	return config.Default().Scoring
}

// makeShift builds a shift on baseDate+day with the given required staffing.
func makeShift(id string, day, start, end int, required map[roster.Station]int) *roster.Shift {
	if required == nil {
		required = map[roster.Station]int{}
	}
	return &roster.Shift{
		ID:       id,
		StoreID:  "store-1",
		Date:     baseDate.AddDate(0, 0, day),
		Start:    start,
		End:      end,
		Required: required,
	}
}

// makeEmployee builds a fully-available employee.
func makeEmployee(id string, typ roster.EmployeeType, stations ...roster.Station) *roster.Employee {
	avail := make(map[time.Weekday][]roster.Window)
	for d := time.Sunday; d <= time.Saturday; d++ {
		avail[d] = []roster.Window{{Start: 0, End: 24 * 60}}
	}
	return &roster.Employee{
		ID:           id,
		Name:         "Test " + id,
		Type:         typ,
		Stations:     stations,
		Availability: avail,
	}
}

// commit force-places an employee on a shift, bypassing the auction. Used to
// construct violating schedules.
func commit(r *roster.Roster, sched *roster.Schedule, e *roster.Employee, shift *roster.Shift, st roster.Station) error {
	return r.Commit(sched, &roster.Assignment{
		ID:         roster.AssignmentID(shift.ID, st, e.ID),
		EmployeeID: e.ID,
		ShiftID:    shift.ID,
		Station:    st,
	})
}
