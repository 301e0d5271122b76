package roster

// Bid is one employee's sealed offer for a (shift, station) slot. The
// component terms are kept so explanations and negotiations can show how the
// score was built.
type Bid struct {
	EmployeeID string
	ShiftID    string
	Station    Station
	Score      float64
	Skill      float64
	Fairness   float64
	Preference float64
	Margin     float64
}

// Beats implements the deterministic ordering between two bids for the same
// slot: higher score wins; ties go to the employee with fewer committed
// hours, then to the lower employee ID.
func (b Bid) Beats(o Bid, hoursB, hoursO float64) bool {
	if b.Score != o.Score {
		return b.Score > o.Score
	}
	if hoursB != hoursO {
		return hoursB < hoursO
	}
	return b.EmployeeID < o.EmployeeID
}
