package agents

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterforge/internal/roster"
)

func newValidator() *ComplianceValidator {
	return NewComplianceValidator(testBus(), testLogger())
}

func violationsOf(result *roster.ComplianceResult, rule string) []roster.Violation {
	var out []roster.Violation
	for _, v := range result.Violations {
		if v.Rule == rule {
			out = append(out, v)
		}
	}
	return out
}

func TestValidateFlagsAvailabilityAndSkill(t *testing.T) {
	shift := makeShift("s1", 0, 9*60, 17*60, map[roster.Station]int{roster.StationKitchen: 1, roster.StationCounter: 1})
	// Trained but never available on Mondays.
	unavailable := makeEmployee("emp-a", roster.FullTime, roster.StationKitchen)
	unavailable.Availability[baseDate.Weekday()] = nil
	// Available but only Dessert-trained, which covers nothing else.
	unskilled := makeEmployee("emp-b", roster.FullTime, roster.StationDessert)

	r := roster.NewRoster([]*roster.Employee{unavailable, unskilled})
	sched := roster.NewSchedule("store-1", []*roster.Shift{shift})
	require.NoError(t, commit(r, sched, unavailable, shift, roster.StationKitchen))
	require.NoError(t, commit(r, sched, unskilled, shift, roster.StationCounter))

	result := newValidator().Validate(sched, r)
	require.Len(t, violationsOf(result, roster.RuleAvailability), 1)
	require.Len(t, violationsOf(result, roster.RuleSkill), 1)
	assert.Equal(t, "emp-a", violationsOf(result, roster.RuleAvailability)[0].EmployeeID)
	assert.Equal(t, "emp-b", violationsOf(result, roster.RuleSkill)[0].EmployeeID)
}

func TestValidateFlagsWeeklyHourCap(t *testing.T) {
	// Four 8h shifts in one ISO week for a casual: 32h against a 24h cap.
	var shifts []*roster.Shift
	for i := 0; i < 4; i++ {
		shifts = append(shifts, makeShift(string(rune('a'+i)), i, 9*60, 17*60,
			map[roster.Station]int{roster.StationCounter: 1}))
	}
	e := makeEmployee("emp-a", roster.Casual, roster.StationCounter)
	r := roster.NewRoster([]*roster.Employee{e})
	sched := roster.NewSchedule("store-1", shifts)
	for _, s := range shifts {
		require.NoError(t, commit(r, sched, e, s, roster.StationCounter))
	}

	caps := violationsOf(newValidator().Validate(sched, r), roster.RuleHourCap)
	require.Len(t, caps, 1)
	assert.Equal(t, roster.Hard, caps[0].Kind)
	assert.Equal(t, "emp-a", caps[0].EmployeeID)
}

func TestValidateFlagsShortRest(t *testing.T) {
	// Close at 23:00, open at 08:00 next day: 9h rest.
	late := makeShift("late", 0, 15*60, 23*60, map[roster.Station]int{roster.StationCounter: 1})
	early := makeShift("early", 1, 8*60, 16*60, map[roster.Station]int{roster.StationCounter: 1})
	e := makeEmployee("emp-a", roster.FullTime, roster.StationCounter)
	r := roster.NewRoster([]*roster.Employee{e})
	sched := roster.NewSchedule("store-1", []*roster.Shift{late, early})
	require.NoError(t, commit(r, sched, e, late, roster.StationCounter))
	require.NoError(t, commit(r, sched, e, early, roster.StationCounter))

	rests := violationsOf(newValidator().Validate(sched, r), roster.RuleRestPeriod)
	require.Len(t, rests, 1)
	assert.Equal(t, "early", rests[0].ShiftID)
}

func TestValidateFlagsOverlappingAssignments(t *testing.T) {
	// Double-booked in the same window: the rest between the shifts is
	// negative and must still surface as a hard violation.
	first := makeShift("first", 0, 9*60, 17*60, map[roster.Station]int{roster.StationCounter: 1})
	second := makeShift("second", 0, 12*60, 20*60, map[roster.Station]int{roster.StationCounter: 1})
	e := makeEmployee("emp-a", roster.FullTime, roster.StationCounter)
	r := roster.NewRoster([]*roster.Employee{e})
	sched := roster.NewSchedule("store-1", []*roster.Shift{first, second})
	require.NoError(t, commit(r, sched, e, first, roster.StationCounter))
	require.NoError(t, commit(r, sched, e, second, roster.StationCounter))

	rests := violationsOf(newValidator().Validate(sched, r), roster.RuleRestPeriod)
	require.Len(t, rests, 1)
	assert.Equal(t, roster.Hard, rests[0].Kind)
	assert.Equal(t, "emp-a", rests[0].EmployeeID)
	assert.Equal(t, "second", rests[0].ShiftID)
}

func TestValidateFlagsSevenConsecutiveDaysOnce(t *testing.T) {
	// Short shifts keep the weekly caps out of the picture.
	e := makeEmployee("emp-a", roster.FullTime, roster.StationCounter)
	r := roster.NewRoster([]*roster.Employee{e})

	var shifts []*roster.Shift
	for i := 0; i < 7; i++ {
		shifts = append(shifts, makeShift(fmt.Sprintf("d%d", i), i, 9*60, 13*60,
			map[roster.Station]int{roster.StationCounter: 1}))
	}
	sched := roster.NewSchedule("store-1", shifts)
	for _, s := range shifts {
		require.NoError(t, commit(r, sched, e, s, roster.StationCounter))
	}

	streaks := violationsOf(newValidator().Validate(sched, r), roster.RuleConsecutiveDays)
	require.Len(t, streaks, 1)
	assert.Equal(t, roster.Hard, streaks[0].Kind)
	assert.Equal(t, "emp-a", streaks[0].EmployeeID)
}

func TestValidateAllowsSixConsecutiveDays(t *testing.T) {
	e := makeEmployee("emp-a", roster.FullTime, roster.StationCounter)
	r := roster.NewRoster([]*roster.Employee{e})
	var shifts []*roster.Shift
	for i := 0; i < 6; i++ {
		shifts = append(shifts, makeShift(fmt.Sprintf("d%d", i), i, 9*60, 13*60,
			map[roster.Station]int{roster.StationCounter: 1}))
	}
	sched := roster.NewSchedule("store-1", shifts)
	for _, s := range shifts {
		require.NoError(t, commit(r, sched, e, s, roster.StationCounter))
	}
	assert.Empty(t, violationsOf(newValidator().Validate(sched, r), roster.RuleConsecutiveDays))
}

func TestValidateFlagsStaffingShortfalls(t *testing.T) {
	shift := makeShift("s1", 0, 9*60, 17*60, map[roster.Station]int{
		roster.StationCounter: 2,
		roster.StationKitchen: 1,
	})
	e := makeEmployee("emp-a", roster.FullTime, roster.StationCounter)
	r := roster.NewRoster([]*roster.Employee{e})
	sched := roster.NewSchedule("store-1", []*roster.Shift{shift})
	require.NoError(t, commit(r, sched, e, shift, roster.StationCounter))

	result := newValidator().Validate(sched, r)
	// One person on a shift that needs two on duty.
	require.Len(t, violationsOf(result, roster.RuleMinStaffing), 2)
	// Counter has one of two.
	under := violationsOf(result, roster.RuleUnderstaffed)
	require.Len(t, under, 1)
	assert.Equal(t, roster.StationCounter, under[0].Station)
}

func TestValidateSoftRules(t *testing.T) {
	// A full-timer with a single 4h shift: under target hours, and peak
	// coverage suffers because the peak seats are mostly empty.
	shift := makeShift("s1", 0, 11*60, 15*60, map[roster.Station]int{roster.StationCounter: 3})
	e := makeEmployee("emp-a", roster.FullTime, roster.StationCounter)
	idle := makeEmployee("emp-b", roster.FullTime, roster.StationCounter)
	r := roster.NewRoster([]*roster.Employee{e, idle})
	sched := roster.NewSchedule("store-1", []*roster.Shift{shift})
	require.NoError(t, commit(r, sched, e, shift, roster.StationCounter))

	result := newValidator().Validate(sched, r)
	assert.NotEmpty(t, violationsOf(result, roster.RuleMinTargetHours))
	assert.NotEmpty(t, violationsOf(result, roster.RulePeakCoverage))
	// One of two employees holds all hours: Gini 0.5 exceeds the threshold.
	assert.NotEmpty(t, violationsOf(result, roster.RuleFairness))
	for _, rule := range []string{roster.RuleMinTargetHours, roster.RulePeakCoverage, roster.RuleFairness} {
		for _, v := range violationsOf(result, rule) {
			assert.Equal(t, roster.Soft, v.Kind)
		}
	}
}

func TestValidateFlagsPreferenceMismatch(t *testing.T) {
	shift := makeShift("s1", 0, 11*60, 15*60, map[roster.Station]int{roster.StationCounter: 1})
	e := makeEmployee("emp-a", roster.FullTime, roster.StationCounter)
	e.Preferences = map[roster.ShiftType]float64{roster.Peak: 0.1}
	r := roster.NewRoster([]*roster.Employee{e})
	sched := roster.NewSchedule("store-1", []*roster.Shift{shift})
	require.NoError(t, commit(r, sched, e, shift, roster.StationCounter))

	result := newValidator().Validate(sched, r)
	assert.NotEmpty(t, violationsOf(result, roster.RulePreference))
}

func TestValidateIsIdempotent(t *testing.T) {
	shift := makeShift("s1", 0, 9*60, 17*60, map[roster.Station]int{roster.StationCounter: 2})
	e := makeEmployee("emp-a", roster.FullTime, roster.StationCounter)
	r := roster.NewRoster([]*roster.Employee{e})
	sched := roster.NewSchedule("store-1", []*roster.Shift{shift})
	require.NoError(t, commit(r, sched, e, shift, roster.StationCounter))

	v := newValidator()
	first := v.Validate(sched, r)
	second := v.Validate(sched, r)
	assert.Equal(t, first.Violations, second.Violations)
	assert.Equal(t, first.Score, second.Score)
}

func TestCleanScheduleIsCompliant(t *testing.T) {
	shift := makeShift("s1", 0, 9*60, 17*60, map[roster.Station]int{
		roster.StationCounter: 1,
		roster.StationKitchen: 1,
	})
	a := makeEmployee("emp-a", roster.FullTime, roster.StationCounter)
	b := makeEmployee("emp-b", roster.FullTime, roster.StationKitchen)
	r := roster.NewRoster([]*roster.Employee{a, b})
	sched := roster.NewSchedule("store-1", []*roster.Shift{shift})
	require.NoError(t, commit(r, sched, a, shift, roster.StationCounter))
	require.NoError(t, commit(r, sched, b, shift, roster.StationKitchen))

	result := newValidator().Validate(sched, r)
	assert.True(t, result.IsCompliant())
	assert.Empty(t, result.Hard())
}
