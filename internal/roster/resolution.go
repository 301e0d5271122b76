package roster

import "fmt"

// ResolutionKind names the move patterns the resolver can propose.
type ResolutionKind string

const (
	Reassign ResolutionKind = "reassign" // move a slot to a different eligible employee
	Swap     ResolutionKind = "swap"     // exchange two assignments between employees
	Add      ResolutionKind = "add"      // fill a seat from the eligible or cross-trained pool
	Drop     ResolutionKind = "drop"     // give up a non-critical assignment
)

// NegotiationOutcome records how a contested reassignment ended.
type NegotiationOutcome string

const (
	OutcomeNone          NegotiationOutcome = "none"           // no negotiation needed
	OutcomeContenderWon  NegotiationOutcome = "contender_won"  // slot moved, incumbent retracted
	OutcomeIncumbentHeld NegotiationOutcome = "incumbent_held" // candidate rejected
)

// Resolution is one candidate mutation to a schedule, with its predicted
// impact. ViolationDelta is the net change in hard violations when applied
// to a snapshot (negative is better); FairnessDelta is the change in the
// Gini coefficient.
type Resolution struct {
	Kind           ResolutionKind
	Rule           string // the violated rule this addresses
	ShiftID        string
	Station        Station
	EmployeeID     string // current holder (reassign, swap, drop)
	TargetID       string // incoming employee (reassign, add, swap counterpart)
	SwapShiftID    string
	SwapStation    Station
	ViolationDelta int
	FairnessDelta  float64
	Outcome        NegotiationOutcome
}

// Describe renders the move for logs, approval requests and explanations.
func (r *Resolution) Describe() string {
	switch r.Kind {
	case Reassign:
		return fmt.Sprintf("reassign %s on shift %s from %s to %s", r.Station, r.ShiftID, r.EmployeeID, r.TargetID)
	case Swap:
		return fmt.Sprintf("swap %s (shift %s, %s) with %s (shift %s, %s)",
			r.EmployeeID, r.ShiftID, r.Station, r.TargetID, r.SwapShiftID, r.SwapStation)
	case Add:
		return fmt.Sprintf("add %s to %s on shift %s", r.TargetID, r.Station, r.ShiftID)
	case Drop:
		return fmt.Sprintf("drop %s from %s on shift %s", r.EmployeeID, r.Station, r.ShiftID)
	default:
		return string(r.Kind)
	}
}
