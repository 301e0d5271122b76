package agents

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterforge/internal/bus"
	"rosterforge/internal/roster"
)

func newResolver(b *bus.Bus) *ConflictResolver {
	return NewConflictResolver(b, testLogger(), testScoring(), NewComplianceValidator(b, testLogger()))
}

func TestResolveFillsUnderstaffedSeat(t *testing.T) {
	shift := makeShift("s1", 0, 9*60, 17*60, map[roster.Station]int{roster.StationCounter: 2})
	a := makeEmployee("emp-a", roster.FullTime, roster.StationCounter)
	b := makeEmployee("emp-b", roster.FullTime, roster.StationCounter)
	r := roster.NewRoster([]*roster.Employee{a, b})
	sched := roster.NewSchedule("store-1", []*roster.Shift{shift})
	require.NoError(t, commit(r, sched, a, shift, roster.StationCounter))

	eventBus := testBus()
	validator := NewComplianceValidator(eventBus, testLogger())
	resolver := newResolver(eventBus)

	hard := validator.Validate(sched, r).Hard()
	require.NotEmpty(t, hard)

	report := resolver.Resolve(sched, r, hard, "corr-1")
	require.NotEmpty(t, report.Applied)
	assert.Equal(t, roster.Add, report.Applied[0].Kind)
	assert.Equal(t, "emp-b", report.Applied[0].TargetID)
	assert.True(t, validator.Validate(sched, r).IsCompliant())
}

func TestResolveBreaksSevenDayStreak(t *testing.T) {
	// emp-a works seven straight days. emp-c and emp-d cover the second seat
	// without streaks of their own, and emp-b is free to take a day over.
	var shifts []*roster.Shift
	for i := 0; i < 7; i++ {
		shifts = append(shifts, makeShift(fmt.Sprintf("d%d", i), i, 9*60, 13*60,
			map[roster.Station]int{roster.StationCounter: 2}))
	}
	a := makeEmployee("emp-a", roster.FullTime, roster.StationCounter)
	b := makeEmployee("emp-b", roster.FullTime, roster.StationCounter)
	c := makeEmployee("emp-c", roster.FullTime, roster.StationCounter)
	d := makeEmployee("emp-d", roster.FullTime, roster.StationCounter)
	r := roster.NewRoster([]*roster.Employee{a, b, c, d})
	sched := roster.NewSchedule("store-1", shifts)
	for _, s := range shifts {
		require.NoError(t, commit(r, sched, a, s, roster.StationCounter))
	}
	for i := 0; i < 6; i++ {
		require.NoError(t, commit(r, sched, c, shifts[i], roster.StationCounter))
	}
	require.NoError(t, commit(r, sched, d, shifts[6], roster.StationCounter))

	eventBus := testBus()
	validator := NewComplianceValidator(eventBus, testLogger())
	resolver := newResolver(eventBus)

	hard := validator.Validate(sched, r).Hard()
	require.Len(t, hard, 1)
	require.Equal(t, roster.RuleConsecutiveDays, hard[0].Rule)

	report := resolver.Resolve(sched, r, hard, "corr-1")
	require.Len(t, report.Applied, 1)

	after := validator.Validate(sched, r)
	assert.Empty(t, violationsOf(after, roster.RuleConsecutiveDays))
	assert.True(t, after.IsCompliant())
}

func TestResolveNeverIncreasesHardViolations(t *testing.T) {
	// A deliberately messy schedule: streak plus an understaffed peak seat.
	var shifts []*roster.Shift
	for i := 0; i < 7; i++ {
		shifts = append(shifts, makeShift(fmt.Sprintf("d%d", i), i, 9*60, 13*60,
			map[roster.Station]int{roster.StationCounter: 1}))
	}
	extra := makeShift("extra", 8, 11*60, 19*60, map[roster.Station]int{roster.StationKitchen: 1})
	shifts = append(shifts, extra)

	a := makeEmployee("emp-a", roster.FullTime, roster.StationCounter)
	b := makeEmployee("emp-b", roster.PartTime, roster.StationCounter, roster.StationKitchen)
	r := roster.NewRoster([]*roster.Employee{a, b})
	sched := roster.NewSchedule("store-1", shifts)
	for i := 0; i < 7; i++ {
		require.NoError(t, commit(r, sched, a, shifts[i], roster.StationCounter))
	}

	eventBus := testBus()
	validator := NewComplianceValidator(eventBus, testLogger())
	resolver := newResolver(eventBus)

	before := len(validator.Validate(sched, r).Hard())
	hard := validator.Validate(sched, r).Hard()
	resolver.Resolve(sched, r, hard, "corr-1")
	after := len(validator.Validate(sched, r).Hard())
	assert.LessOrEqual(t, after, before)
}

func TestResolveReportsUnresolvableViolations(t *testing.T) {
	// Nobody else is trained for Kitchen, so the empty seat cannot be fixed.
	shift := makeShift("s1", 0, 9*60, 17*60, map[roster.Station]int{
		roster.StationKitchen: 2,
		roster.StationCounter: 1,
	})
	a := makeEmployee("emp-a", roster.FullTime, roster.StationKitchen)
	c := makeEmployee("emp-c", roster.FullTime, roster.StationCounter)
	r := roster.NewRoster([]*roster.Employee{a, c})
	sched := roster.NewSchedule("store-1", []*roster.Shift{shift})
	require.NoError(t, commit(r, sched, a, shift, roster.StationKitchen))
	require.NoError(t, commit(r, sched, c, shift, roster.StationCounter))

	eventBus := testBus()
	validator := NewComplianceValidator(eventBus, testLogger())
	resolver := newResolver(eventBus)

	hard := validator.Validate(sched, r).Hard()
	require.NotEmpty(t, hard)

	report := resolver.Resolve(sched, r, hard, "corr-1")
	assert.Empty(t, report.Applied)
	assert.NotEmpty(t, report.Unresolved)
	assert.Len(t, report.PartialFix, len(report.Unresolved))
}

func TestReassignNegotiationPublishesOutcome(t *testing.T) {
	// emp-a holds a seat they are not available for; emp-c can take it. The
	// contested reassignment must go through a counter-bid round and announce
	// the outcome on the bus.
	shift := makeShift("s1", 0, 9*60, 17*60, map[roster.Station]int{roster.StationCounter: 2})
	a := makeEmployee("emp-a", roster.FullTime, roster.StationCounter)
	a.Availability[baseDate.Weekday()] = nil
	b := makeEmployee("emp-b", roster.FullTime, roster.StationCounter)
	c := makeEmployee("emp-c", roster.FullTime, roster.StationCounter)
	r := roster.NewRoster([]*roster.Employee{a, b, c})
	sched := roster.NewSchedule("store-1", []*roster.Shift{shift})
	require.NoError(t, commit(r, sched, a, shift, roster.StationCounter))
	require.NoError(t, commit(r, sched, b, shift, roster.StationCounter))

	eventBus := testBus()
	var outcomes []bus.ResolutionPayload
	eventBus.Subscribe(bus.TypeResolutionSelected, func(m bus.Message) {
		outcomes = append(outcomes, m.Payload.(bus.ResolutionPayload))
	})

	validator := NewComplianceValidator(eventBus, testLogger())
	resolver := newResolver(eventBus)

	hard := validator.Validate(sched, r).Hard()
	report := resolver.Resolve(sched, r, hard, "corr-1")

	require.NotEmpty(t, report.Applied)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "emp-c", outcomes[0].WinnerID)
	assert.Equal(t, "emp-a", outcomes[0].LoserID)
	assert.Greater(t, outcomes[0].WinningScore, outcomes[0].LosingScore)

	// The seat changed hands and the hours moved with it.
	committed := sched.Committed()
	require.Len(t, committed, 2)
	assert.Equal(t, 0.0, r.TotalHours("emp-a"))
	assert.Equal(t, 8.0, r.TotalHours("emp-c"))
}

func TestResolveNeverDoubleBooksOnSwap(t *testing.T) {
	// emp-a is unavailable for s1. The only swap partners hold s3 the next
	// day but also s2 in the same window as s1, so trading into s1 would
	// double-book them; the resolver must refuse the swap and fall back.
	s1 := makeShift("s1", 0, 9*60, 17*60, map[roster.Station]int{roster.StationCounter: 2})
	s2 := makeShift("s2", 0, 9*60, 17*60, map[roster.Station]int{roster.StationCounter: 2})
	s3 := makeShift("s3", 1, 9*60, 17*60, map[roster.Station]int{roster.StationCounter: 2})
	a := makeEmployee("emp-a", roster.FullTime, roster.StationCounter)
	a.Availability[baseDate.Weekday()] = nil
	b := makeEmployee("emp-b", roster.FullTime, roster.StationCounter)
	x := makeEmployee("emp-x", roster.FullTime, roster.StationCounter)
	y := makeEmployee("emp-y", roster.FullTime, roster.StationCounter)
	r := roster.NewRoster([]*roster.Employee{a, b, x, y})
	sched := roster.NewSchedule("store-1", []*roster.Shift{s1, s2, s3})
	require.NoError(t, commit(r, sched, a, s1, roster.StationCounter))
	require.NoError(t, commit(r, sched, x, s1, roster.StationCounter))
	require.NoError(t, commit(r, sched, b, s2, roster.StationCounter))
	require.NoError(t, commit(r, sched, y, s2, roster.StationCounter))
	require.NoError(t, commit(r, sched, b, s3, roster.StationCounter))
	require.NoError(t, commit(r, sched, y, s3, roster.StationCounter))

	eventBus := testBus()
	validator := NewComplianceValidator(eventBus, testLogger())
	resolver := newResolver(eventBus)

	hard := validator.Validate(sched, r).Hard()
	require.Len(t, hard, 1)
	require.Equal(t, roster.RuleAvailability, hard[0].Rule)

	report := resolver.Resolve(sched, r, hard, "corr-1")
	for _, res := range report.Applied {
		assert.NotEqual(t, roster.Swap, res.Kind)
	}
	for _, e := range r.Employees() {
		assignments := sched.CommittedFor(e.ID)
		for i := 1; i < len(assignments); i++ {
			prev := sched.Shifts[assignments[i-1].ShiftID]
			next := sched.Shifts[assignments[i].ShiftID]
			assert.False(t, prev.Overlaps(next), "%s holds both %s and %s", e.ID, prev.ID, next.ID)
		}
	}
	assert.Empty(t, violationsOf(validator.Validate(sched, r), roster.RuleRestPeriod))
}

func TestResolveDefersTouchedViolations(t *testing.T) {
	// Two violations on the same employee: the first fix freezes emp-a, the
	// second violation is deferred to the next iteration.
	late := makeShift("late", 0, 15*60, 23*60, map[roster.Station]int{roster.StationCounter: 1})
	early := makeShift("early", 1, 8*60, 16*60, map[roster.Station]int{roster.StationCounter: 1})
	a := makeEmployee("emp-a", roster.FullTime, roster.StationCounter)
	b := makeEmployee("emp-b", roster.FullTime, roster.StationCounter)
	r := roster.NewRoster([]*roster.Employee{a, b})
	sched := roster.NewSchedule("store-1", []*roster.Shift{late, early})
	require.NoError(t, commit(r, sched, a, late, roster.StationCounter))
	require.NoError(t, commit(r, sched, a, early, roster.StationCounter))

	eventBus := testBus()
	validator := NewComplianceValidator(eventBus, testLogger())
	resolver := newResolver(eventBus)

	// Hand the resolver two synthetic violations naming the same employee.
	hard := validator.Validate(sched, r).Hard()
	second := hard[0]
	doubled := append(hard, second)

	report := resolver.Resolve(sched, r, doubled, "corr-1")
	assert.NotEmpty(t, report.Deferred)
}
