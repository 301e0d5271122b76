package bus

import (
	"time"

	"github.com/google/uuid"

	"rosterforge/internal/roster"
)

// MessageType is the routing key for bus subscriptions.
type MessageType string

const (
	TypeRequest            MessageType = "request"
	TypeData               MessageType = "data"
	TypeViolation          MessageType = "violation"
	TypeComplete           MessageType = "complete"
	TypeSchedule           MessageType = "schedule"
	TypeApproval           MessageType = "approval"
	TypeStatus             MessageType = "status"
	TypeResolutionSelected MessageType = "resolution_selected"
	TypeExplanation        MessageType = "explanation"
)

// Payload is the tagged union carried by a Message. Each variant has a fixed
// schema so handlers can switch exhaustively instead of digging through
// untyped maps.
type Payload interface{ payload() }

// RequestPayload asks a collaborator for a resource ("roster", "demand",
// "counter_bid"). Demand requests carry the store whose profile drives the
// targets.
type RequestPayload struct {
	Resource string
	StoreID  string
	Store    *roster.Store
}

// RosterPayload is the data source's reply: the loaded configuration.
type RosterPayload struct {
	Employees []*roster.Employee
	Stores    []*roster.Store
}

// DemandPayload carries per-shift, per-station staffing targets.
type DemandPayload struct {
	Targets map[string]map[roster.Station]int
}

// SchedulePayload publishes a schedule with its compliance result and the
// resolutions applied along the way.
type SchedulePayload struct {
	Schedule    *roster.Schedule
	Compliance  *roster.ComplianceResult
	Resolutions []*roster.Resolution
	HourTotals  map[string]float64
}

// ViolationPayload lists unresolved violations, each with its best-known
// partial fix (nil when none was found).
type ViolationPayload struct {
	Violations []roster.Violation
	PartialFix []*roster.Resolution
}

// ApprovalPayload is the human decision that resumes an escalated run.
type ApprovalPayload struct {
	Approved  bool
	DecidedBy string
	Note      string
}

// StatusPayload reports a phase transition or a component status. Err is
// empty unless the status reports a failure.
type StatusPayload struct {
	Phase  string
	Detail string
	Err    string
}

// ResolutionPayload announces the outcome of a counter-bid negotiation.
type ResolutionPayload struct {
	Resolution   *roster.Resolution
	WinnerID     string
	LoserID      string
	WinningScore float64
	LosingScore  float64
}

// ExplanationPayload is the explainer's plain-language summary of a run.
// Generated reports whether a language model produced the text; a false
// value means the deterministic template was used.
type ExplanationPayload struct {
	StoreID   string
	Text      string
	Generated bool
}

// CompletePayload marks the end of a run for a store.
type CompletePayload struct {
	StoreID      string
	AcceptedRisk bool
}

func (RequestPayload) payload()     {}
func (RosterPayload) payload()      {}
func (DemandPayload) payload()      {}
func (SchedulePayload) payload()    {}
func (ViolationPayload) payload()   {}
func (ApprovalPayload) payload()    {}
func (StatusPayload) payload()      {}
func (ResolutionPayload) payload()  {}
func (ExplanationPayload) payload() {}
func (CompletePayload) payload()    {}

// Message is the bus envelope. Immutable once published; responses echo the
// request's CorrelationID so the coordinator can match concurrent exchanges.
type Message struct {
	Type          MessageType
	Sender        string
	Recipient     string
	CorrelationID string
	Payload       Payload
	Timestamp     time.Time
}

// NewCorrelationID mints the opaque token linking a request to its replies.
func NewCorrelationID() string {
	return uuid.NewString()
}
