package roster

import (
	"fmt"
	"time"
)

// ShiftType classifies a shift by the demand windows it overlaps.
type ShiftType string

const (
	Peak    ShiftType = "peak"
	OffPeak ShiftType = "off_peak"
)

// Fixed peak windows, minutes from midnight.
const (
	lunchStart  = 11 * 60
	lunchEnd    = 14 * 60
	dinnerStart = 17 * 60
	dinnerEnd   = 21 * 60
)

// MinStaffPerShift is the operational floor: at least two people on duty.
const MinStaffPerShift = 2

// Shift is one time-bounded block of work at a store. Start and End are
// minutes from midnight on Date; Required holds the per-station staffing
// targets set by the demand planner.
type Shift struct {
	ID       string
	StoreID  string
	Date     time.Time
	Start    int
	End      int
	Required map[Station]int
}

// Type derives the peak/off-peak classification from the fixed lunch and
// dinner windows.
func (s *Shift) Type() ShiftType {
	if s.overlapsWindow(lunchStart, lunchEnd) || s.overlapsWindow(dinnerStart, dinnerEnd) {
		return Peak
	}
	return OffPeak
}

func (s *Shift) overlapsWindow(start, end int) bool {
	return s.Start < end && start < s.End
}

// Hours returns the shift length in hours.
func (s *Shift) Hours() float64 {
	return float64(s.End-s.Start) / 60
}

// StartTime and EndTime anchor the shift on its calendar date.
func (s *Shift) StartTime() time.Time { return s.Date.Add(time.Duration(s.Start) * time.Minute) }
func (s *Shift) EndTime() time.Time   { return s.Date.Add(time.Duration(s.End) * time.Minute) }

// Overlaps reports whether the two shifts share any wall-clock time.
func (s *Shift) Overlaps(o *Shift) bool {
	return s.StartTime().Before(o.EndTime()) && o.StartTime().Before(s.EndTime())
}

// TotalRequired sums the per-station staffing targets.
func (s *Shift) TotalRequired() int {
	total := 0
	for _, n := range s.Required {
		total += n
	}
	return total
}

// WeekKey buckets the shift into its ISO week, the unit the hour caps
// apply to.
func (s *Shift) WeekKey() string {
	year, week := s.Date.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// Validate checks the fields the data contract requires. Required counts are
// set later by the demand planner and are not checked here.
func (s *Shift) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("shift with empty id")
	}
	if s.StoreID == "" {
		return fmt.Errorf("shift %s: empty store id", s.ID)
	}
	if s.Date.IsZero() {
		return fmt.Errorf("shift %s: missing date", s.ID)
	}
	if s.Start < 0 || s.End > 24*60 || s.Start >= s.End {
		return fmt.Errorf("shift %s: bad time range %d-%d", s.ID, s.Start, s.End)
	}
	return nil
}

// DemandProfile holds a store's fixed demand multipliers. The demand planner
// applies them to the base per-station staffing to produce shift targets.
type DemandProfile struct {
	BaseStaff      map[Station]int
	PeakMultiplier float64
	WeekendUplift  float64
}

// Store is a retail location with its demand profile and shift templates for
// the horizon.
type Store struct {
	ID     string
	Name   string
	Demand DemandProfile
	Shifts []*Shift
}

// Validate checks the fields the data contract requires.
func (st *Store) Validate() error {
	if st.ID == "" {
		return fmt.Errorf("store with empty id")
	}
	if st.Name == "" {
		return fmt.Errorf("store %s: empty name", st.ID)
	}
	if len(st.Demand.BaseStaff) == 0 {
		return fmt.Errorf("store %s: no base staffing profile", st.ID)
	}
	return nil
}
