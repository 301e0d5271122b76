package roster

import (
	"fmt"
	"time"
)

// EmployeeType is the employment category. It governs the weekly hour cap
// and the minimum target hours used by the fairness rules.
type EmployeeType string

const (
	FullTime EmployeeType = "full_time"
	PartTime EmployeeType = "part_time"
	Casual   EmployeeType = "casual"
)

// MaxWeeklyHours returns the legal hour cap for the category.
func (t EmployeeType) MaxWeeklyHours() float64 {
	switch t {
	case FullTime:
		return 38
	case PartTime:
		return 32
	case Casual:
		return 24
	default:
		return 0
	}
}

// MinTargetHours returns the weekly hours the scheduler aims to give each
// category. Falling short is a soft violation, not a blocker.
func (t EmployeeType) MinTargetHours() float64 {
	switch t {
	case FullTime:
		return 30
	case PartTime:
		return 20
	case Casual:
		return 8
	default:
		return 0
	}
}

// Valid reports whether the category is one of the known employment types.
func (t EmployeeType) Valid() bool {
	switch t {
	case FullTime, PartTime, Casual:
		return true
	}
	return false
}

// Station is a work area within a store.
type Station string

const (
	StationKitchen Station = "Kitchen"
	StationCounter Station = "Counter"
	StationMcCafe  Station = "McCafe"
	StationDessert Station = "Dessert"
)

// Stations lists all stations in a fixed, deterministic order.
var Stations = []Station{StationKitchen, StationCounter, StationMcCafe, StationDessert}

// crossTraining maps a trained station to the stations it can additionally
// cover. The relation is fixed and non-symmetric: Dessert staff cannot cover
// Counter or McCafe.
var crossTraining = map[Station][]Station{
	StationMcCafe:  {StationDessert},
	StationCounter: {StationDessert},
}

// Covers reports whether training in s qualifies an employee to work target,
// either directly or through cross-training.
func (s Station) Covers(target Station) bool {
	if s == target {
		return true
	}
	for _, t := range crossTraining[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Valid reports whether the station is one of the known work areas.
func (s Station) Valid() bool {
	for _, st := range Stations {
		if s == st {
			return true
		}
	}
	return false
}

// Window is a daily availability window in minutes from midnight.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether the window fully covers [start, end).
func (w Window) Contains(start, end int) bool {
	return w.Start <= start && end <= w.End
}

// Employee is a worker loaded once per run. Assigned-hours counters live on
// the Roster, not here, so schedule snapshots can be cloned cheaply.
type Employee struct {
	ID           string
	Name         string
	Type         EmployeeType
	Stations     []Station
	Availability map[time.Weekday][]Window
	Preferences  map[ShiftType]float64
}

// CanWork reports whether the employee may staff the station, and whether
// that is direct training rather than cross-training.
func (e *Employee) CanWork(st Station) (direct, ok bool) {
	for _, trained := range e.Stations {
		if trained == st {
			return true, true
		}
		if trained.Covers(st) {
			ok = true
		}
	}
	return false, ok
}

// AvailableFor reports whether one of the employee's windows on the shift's
// weekday fully covers the shift.
func (e *Employee) AvailableFor(s *Shift) bool {
	_, ok := e.availabilityWindow(s)
	return ok
}

// AvailabilityMargin returns the fraction of the covering window left over
// around the shift, in [0,1]. Zero when the shift exactly fills the window
// or the employee is unavailable.
func (e *Employee) AvailabilityMargin(s *Shift) float64 {
	w, ok := e.availabilityWindow(s)
	if !ok {
		return 0
	}
	windowLen := float64(w.End - w.Start)
	if windowLen <= 0 {
		return 0
	}
	return (windowLen - float64(s.End-s.Start)) / windowLen
}

func (e *Employee) availabilityWindow(s *Shift) (Window, bool) {
	for _, w := range e.Availability[s.Date.Weekday()] {
		if w.Contains(s.Start, s.End) {
			return w, true
		}
	}
	return Window{}, false
}

// Preference returns the employee's weight for a shift type, defaulting to a
// neutral 0.5 when none was supplied.
func (e *Employee) Preference(t ShiftType) float64 {
	if p, ok := e.Preferences[t]; ok {
		return p
	}
	return 0.5
}

// Validate checks the fields the data contract requires.
func (e *Employee) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("employee with empty id")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("employee %s: unknown employment type %q", e.ID, e.Type)
	}
	if len(e.Stations) == 0 {
		return fmt.Errorf("employee %s: no trained stations", e.ID)
	}
	for _, st := range e.Stations {
		if !st.Valid() {
			return fmt.Errorf("employee %s: unknown station %q", e.ID, st)
		}
	}
	for day, windows := range e.Availability {
		for _, w := range windows {
			if w.Start < 0 || w.End > 24*60 || w.Start >= w.End {
				return fmt.Errorf("employee %s: bad availability window %d-%d on %s", e.ID, w.Start, w.End, day)
			}
		}
	}
	return nil
}
