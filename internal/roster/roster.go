package roster

import (
	"fmt"
	"sort"
)

// Roster owns the employee collection and the per-week assigned-hours
// counters for one store run. It is never shared across concurrent store
// runs. Commit and Retract are the only mutation points: they update the
// schedule and the counters together, so a committed schedule can never be
// half-applied.
type Roster struct {
	employees map[string]*Employee
	order     []string
	hours     map[string]map[string]float64 // employee ID -> week key -> hours
}

// NewRoster builds a roster over the given employees. Iteration order is by
// employee ID so every pass over the roster is deterministic.
func NewRoster(employees []*Employee) *Roster {
	r := &Roster{
		employees: make(map[string]*Employee, len(employees)),
		hours:     make(map[string]map[string]float64, len(employees)),
	}
	for _, e := range employees {
		r.employees[e.ID] = e
		r.order = append(r.order, e.ID)
	}
	sort.Strings(r.order)
	return r
}

// Employees returns the employees in ID order.
func (r *Roster) Employees() []*Employee {
	out := make([]*Employee, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.employees[id])
	}
	return out
}

// Get looks up an employee by ID.
func (r *Roster) Get(id string) (*Employee, bool) {
	e, ok := r.employees[id]
	return e, ok
}

// WeekHours returns the employee's committed hours in the given ISO week.
func (r *Roster) WeekHours(employeeID, weekKey string) float64 {
	return r.hours[employeeID][weekKey]
}

// TotalHours returns the employee's committed hours across the horizon.
func (r *Roster) TotalHours(employeeID string) float64 {
	var total float64
	for _, h := range r.hours[employeeID] {
		total += h
	}
	return total
}

// UnderCap reports whether adding the shift would keep the employee within
// the weekly cap for their category.
func (r *Roster) UnderCap(e *Employee, s *Shift) bool {
	return r.WeekHours(e.ID, s.WeekKey())+s.Hours() <= e.Type.MaxWeeklyHours()
}

// FairnessPressure returns how far below the minimum target the employee
// sits, in [0,1]. Employees with no hours yet bid at full pressure.
func (r *Roster) FairnessPressure(e *Employee) float64 {
	target := e.Type.MinTargetHours()
	if target <= 0 {
		return 0
	}
	p := 1 - r.TotalHours(e.ID)/target
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Commit atomically adds the assignment to the schedule and charges the
// shift's hours to the employee's weekly counter.
func (r *Roster) Commit(s *Schedule, a *Assignment) error {
	shift, ok := s.Shifts[a.ShiftID]
	if !ok {
		return fmt.Errorf("commit %s: unknown shift %s", a.ID, a.ShiftID)
	}
	if _, ok := r.employees[a.EmployeeID]; !ok {
		return fmt.Errorf("commit %s: unknown employee %s", a.ID, a.EmployeeID)
	}
	if existing, ok := s.Lookup(a.ID); ok && existing.Status == StatusCommitted {
		return fmt.Errorf("commit %s: already committed", a.ID)
	}
	a.Status = StatusCommitted
	s.Assignments = append(s.Assignments, a)
	if r.hours[a.EmployeeID] == nil {
		r.hours[a.EmployeeID] = make(map[string]float64)
	}
	r.hours[a.EmployeeID][shift.WeekKey()] += shift.Hours()
	return nil
}

// Retract atomically marks the assignment retracted and refunds its hours.
func (r *Roster) Retract(s *Schedule, assignmentID string) error {
	a, ok := s.Lookup(assignmentID)
	if !ok {
		return fmt.Errorf("retract %s: not found", assignmentID)
	}
	if a.Status != StatusCommitted {
		return fmt.Errorf("retract %s: not committed", assignmentID)
	}
	shift, ok := s.Shifts[a.ShiftID]
	if !ok {
		return fmt.Errorf("retract %s: unknown shift %s", assignmentID, a.ShiftID)
	}
	a.Status = StatusRetracted
	r.hours[a.EmployeeID][shift.WeekKey()] -= shift.Hours()
	return nil
}

// Gini returns the Gini coefficient of total assigned hours across the
// roster: 0 is perfectly even, 1 is maximally skewed.
func (r *Roster) Gini() float64 {
	n := len(r.order)
	if n == 0 {
		return 0
	}
	values := make([]float64, 0, n)
	var sum float64
	for _, id := range r.order {
		h := r.TotalHours(id)
		values = append(values, h)
		sum += h
	}
	if sum == 0 {
		return 0
	}
	sort.Float64s(values)
	var weighted float64
	for i, v := range values {
		weighted += float64(2*(i+1)-n-1) * v
	}
	return weighted / (float64(n) * sum)
}

// Clone copies the hour counters so candidate resolutions can be evaluated
// without touching the live run. Employees are shared: they are read-only.
func (r *Roster) Clone() *Roster {
	c := &Roster{
		employees: r.employees,
		order:     r.order,
		hours:     make(map[string]map[string]float64, len(r.hours)),
	}
	for id, weeks := range r.hours {
		cp := make(map[string]float64, len(weeks))
		for k, v := range weeks {
			cp[k] = v
		}
		c.hours[id] = cp
	}
	return c
}
