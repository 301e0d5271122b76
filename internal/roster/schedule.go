package roster

import (
	"fmt"
	"sort"
)

// AssignmentStatus tracks an assignment through its lifecycle.
type AssignmentStatus string

const (
	StatusProposed  AssignmentStatus = "proposed"
	StatusCommitted AssignmentStatus = "committed"
	StatusRetracted AssignmentStatus = "retracted"
)

// Assignment binds an employee to a station on one shift.
type Assignment struct {
	ID         string
	EmployeeID string
	ShiftID    string
	Station    Station
	Status     AssignmentStatus
}

// AssignmentID builds the deterministic identifier for a slot holder.
func AssignmentID(shiftID string, st Station, employeeID string) string {
	return fmt.Sprintf("%s/%s/%s", shiftID, st, employeeID)
}

// Slot is one required seat at a (shift, station) pair.
type Slot struct {
	ShiftID string
	Station Station
}

// Schedule is the date-ordered set of assignments for one store over the
// horizon. It owns its assignments exclusively during a run; mutation goes
// through Roster.Commit and Roster.Retract so hour counters stay in step.
type Schedule struct {
	StoreID     string
	Shifts      map[string]*Shift
	Assignments []*Assignment
}

// NewSchedule builds an empty schedule skeleton over the given shifts.
func NewSchedule(storeID string, shifts []*Shift) *Schedule {
	s := &Schedule{
		StoreID: storeID,
		Shifts:  make(map[string]*Shift, len(shifts)),
	}
	for _, sh := range shifts {
		s.Shifts[sh.ID] = sh
	}
	return s
}

// ShiftsByDate returns the shifts ordered by start time, then ID.
func (s *Schedule) ShiftsByDate() []*Shift {
	shifts := make([]*Shift, 0, len(s.Shifts))
	for _, sh := range s.Shifts {
		shifts = append(shifts, sh)
	}
	sort.Slice(shifts, func(i, j int) bool {
		if !shifts[i].StartTime().Equal(shifts[j].StartTime()) {
			return shifts[i].StartTime().Before(shifts[j].StartTime())
		}
		return shifts[i].ID < shifts[j].ID
	})
	return shifts
}

// Committed returns the committed assignments in deterministic order:
// shift start, then station, then employee.
func (s *Schedule) Committed() []*Assignment {
	out := make([]*Assignment, 0, len(s.Assignments))
	for _, a := range s.Assignments {
		if a.Status == StatusCommitted {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := s.Shifts[out[i].ShiftID], s.Shifts[out[j].ShiftID]
		if !si.StartTime().Equal(sj.StartTime()) {
			return si.StartTime().Before(sj.StartTime())
		}
		if out[i].Station != out[j].Station {
			return out[i].Station < out[j].Station
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out
}

// CommittedFor returns the employee's committed assignments ordered by
// shift start.
func (s *Schedule) CommittedFor(employeeID string) []*Assignment {
	var out []*Assignment
	for _, a := range s.Committed() {
		if a.EmployeeID == employeeID {
			out = append(out, a)
		}
	}
	return out
}

// StaffOnShift counts committed assignments for a shift, optionally narrowed
// to one station (pass "" for all stations).
func (s *Schedule) StaffOnShift(shiftID string, st Station) int {
	n := 0
	for _, a := range s.Assignments {
		if a.Status != StatusCommitted || a.ShiftID != shiftID {
			continue
		}
		if st == "" || a.Station == st {
			n++
		}
	}
	return n
}

// HasOverlapCommitted reports whether the employee already holds a committed
// assignment overlapping the shift.
func (s *Schedule) HasOverlapCommitted(employeeID string, shift *Shift) bool {
	for _, a := range s.Assignments {
		if a.Status != StatusCommitted || a.EmployeeID != employeeID {
			continue
		}
		if other, ok := s.Shifts[a.ShiftID]; ok && other.Overlaps(shift) {
			return true
		}
	}
	return false
}

// Unfilled returns the slots where committed staffing is below the required
// count, one entry per missing seat, in deterministic order.
func (s *Schedule) Unfilled() []Slot {
	var slots []Slot
	for _, sh := range s.ShiftsByDate() {
		for _, st := range Stations {
			missing := sh.Required[st] - s.StaffOnShift(sh.ID, st)
			for i := 0; i < missing; i++ {
				slots = append(slots, Slot{ShiftID: sh.ID, Station: st})
			}
		}
	}
	return slots
}

// Lookup finds an assignment by ID regardless of status.
func (s *Schedule) Lookup(assignmentID string) (*Assignment, bool) {
	for _, a := range s.Assignments {
		if a.ID == assignmentID {
			return a, true
		}
	}
	return nil, false
}

// Clone deep-copies the schedule. Shifts are shared: they are read-only
// during a run.
func (s *Schedule) Clone() *Schedule {
	c := &Schedule{
		StoreID:     s.StoreID,
		Shifts:      s.Shifts,
		Assignments: make([]*Assignment, len(s.Assignments)),
	}
	for i, a := range s.Assignments {
		cp := *a
		c.Assignments[i] = &cp
	}
	return c
}
