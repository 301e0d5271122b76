package agents

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rosterforge/internal/bus"
	"rosterforge/internal/config"
	"rosterforge/internal/monitoring"
	"rosterforge/internal/roster"
)

// Phase names the coordinator's run states, in order.
type Phase string

const (
	PhaseDataReady         Phase = "data_ready"
	PhaseDemandReady       Phase = "demand_ready"
	PhaseInitialMatch      Phase = "initial_match"
	PhaseRefining          Phase = "refining"
	PhaseFinalValidation   Phase = "final_validation"
	PhaseEscalationPending Phase = "escalation_pending"
	PhaseExplaining        Phase = "explaining"
	PhaseExported          Phase = "exported"
)

// NameApprovals is the bus address of the human approval surface.
const NameApprovals = "approvals"

const (
	collaboratorTimeout = 10 * time.Second
	explainTimeout      = 45 * time.Second
)

// RunResult is everything a finished run produced.
type RunResult struct {
	StoreID      string
	Schedule     *roster.Schedule
	Compliance   *roster.ComplianceResult
	Resolutions  []*roster.Resolution
	Iterations   int
	Escalated    bool
	AcceptedRisk bool
	Explanation  string
}

// Coordinator drives one store's scheduling run through its phases: load
// data, plan demand, auction, refine, validate, escalate if needed, explain,
// export. It owns the run's mutable state; the matcher, validator and
// resolver only ever see it through Coordinator calls.
type Coordinator struct {
	BaseAgent
	cfg       *config.Config
	metrics   *monitoring.Metrics
	matcher   *StaffMatcher
	validator *ComplianceValidator
	resolver  *ConflictResolver
	inbox     chan bus.Message
}

// NewCoordinator wires the coordinator and subscribes its inbox to the
// message types addressed to it.
func NewCoordinator(b *bus.Bus, log *zap.SugaredLogger, cfg *config.Config, metrics *monitoring.Metrics,
	matcher *StaffMatcher, validator *ComplianceValidator, resolver *ConflictResolver) *Coordinator {
	c := &Coordinator{
		BaseAgent: NewBaseAgent(NameCoordinator, b, log),
		cfg:       cfg,
		metrics:   metrics,
		matcher:   matcher,
		validator: validator,
		resolver:  resolver,
		inbox:     make(chan bus.Message, 128),
	}
	for _, t := range []bus.MessageType{bus.TypeData, bus.TypeApproval, bus.TypeStatus, bus.TypeExplanation} {
		b.Subscribe(t, c.intake)
	}
	return c
}

// intake routes messages addressed to the coordinator into the inbox.
// Dropping on overflow is safe: await treats a missing reply as a timeout.
func (c *Coordinator) intake(msg bus.Message) {
	if msg.Recipient != NameCoordinator {
		return
	}
	select {
	case c.inbox <- msg:
	default:
		c.log.Warnw("inbox full, dropping message", "type", msg.Type, "sender", msg.Sender)
	}
}

// Run executes a full scheduling run for one store. The returned result is
// non-nil whenever a schedule was produced, even alongside an error.
func (c *Coordinator) Run(ctx context.Context, storeID string) (*RunResult, error) {
	started := time.Now()
	defer func() { c.metrics.RunDuration.Observe(time.Since(started).Seconds()) }()

	corr := bus.NewCorrelationID()
	c.log.Infow("run starting", "store", storeID, "correlation", corr)

	employees, store, err := c.loadData(ctx, corr, storeID)
	if err != nil {
		return nil, err
	}
	c.transition(PhaseDataReady, storeID)

	if err := c.planDemand(ctx, corr, store); err != nil {
		return nil, err
	}
	c.transition(PhaseDemandReady, storeID)

	r := roster.NewRoster(employees)
	sched := roster.NewSchedule(storeID, store.Shifts)
	pending := c.matcher.Match(sched, r)
	c.metrics.UnfilledSlots.WithLabelValues(storeID).Set(float64(len(sched.Unfilled())))
	c.transition(PhaseInitialMatch, fmt.Sprintf("%d assignments, %d seats pending", len(sched.Committed()), len(pending)))

	result, resolutions, iterations := c.refine(sched, r, corr)
	c.metrics.RefineIterations.Observe(float64(iterations))
	c.metrics.HardViolations.WithLabelValues(storeID).Set(float64(len(result.Hard())))
	c.transition(PhaseFinalValidation, fmt.Sprintf("score %.0f, %d hard remaining", result.Score, len(result.Hard())))

	run := &RunResult{
		StoreID:     storeID,
		Schedule:    sched,
		Compliance:  result,
		Resolutions: resolutions,
		Iterations:  iterations,
	}

	if !result.IsCompliant() {
		run.Escalated = true
		accepted, err := c.escalate(ctx, corr, result, resolutions)
		if err != nil {
			return run, err
		}
		run.AcceptedRisk = accepted
	}

	payload := bus.SchedulePayload{
		Schedule:    sched,
		Compliance:  result,
		Resolutions: resolutions,
		HourTotals:  c.hourTotals(r),
	}

	c.transition(PhaseExplaining, storeID)
	run.Explanation = c.explain(ctx, corr, payload)

	if err := c.export(ctx, corr, payload); err != nil {
		return run, err
	}
	c.transition(PhaseExported, storeID)

	c.Send(bus.TypeComplete, "", corr, bus.CompletePayload{StoreID: storeID, AcceptedRisk: run.AcceptedRisk})
	c.log.Infow("run complete", "store", storeID, "iterations", iterations, "score", result.Score)
	return run, nil
}

func (c *Coordinator) loadData(ctx context.Context, corr, storeID string) ([]*roster.Employee, *roster.Store, error) {
	c.Send(bus.TypeRequest, NameDataSource, corr, bus.RequestPayload{Resource: "roster", StoreID: storeID})
	msg, err := c.await(ctx, corr, collaboratorTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("roster request: %w", err)
	}
	data, err := c.asData(msg)
	if err != nil {
		return nil, nil, fmt.Errorf("roster request: %w", err)
	}
	p, ok := data.(bus.RosterPayload)
	if !ok {
		return nil, nil, fmt.Errorf("roster request: unexpected payload %T", data)
	}
	for _, st := range p.Stores {
		if st.ID == storeID {
			return p.Employees, st, nil
		}
	}
	return nil, nil, fmt.Errorf("store %s not found", storeID)
}

func (c *Coordinator) planDemand(ctx context.Context, corr string, store *roster.Store) error {
	c.Send(bus.TypeRequest, NameDemand, corr, bus.RequestPayload{Resource: "demand", StoreID: store.ID, Store: store})
	msg, err := c.await(ctx, corr, collaboratorTimeout)
	if err != nil {
		return fmt.Errorf("demand request: %w", err)
	}
	data, err := c.asData(msg)
	if err != nil {
		return fmt.Errorf("demand request: %w", err)
	}
	p, ok := data.(bus.DemandPayload)
	if !ok {
		return fmt.Errorf("demand request: unexpected payload %T", data)
	}
	for _, shift := range store.Shifts {
		targets, ok := p.Targets[shift.ID]
		if !ok {
			return fmt.Errorf("demand request: no targets for shift %s", shift.ID)
		}
		for st, n := range targets {
			if n < 0 {
				n = 0
			}
			shift.Required[st] = n
		}
	}
	return nil
}

// refine alternates validation and resolution until the schedule is clean,
// the resolver stops making progress, or the iteration cap is hit. Only
// resolutions predicted not to increase the hard count are ever applied, so
// the hard count never rises between iterations.
func (c *Coordinator) refine(sched *roster.Schedule, r *roster.Roster, corr string) (*roster.ComplianceResult, []*roster.Resolution, int) {
	var applied []*roster.Resolution
	iterations := 0
	result := c.validator.Validate(sched, r)

	for i := 1; i <= c.cfg.Refinement.MaxIterations; i++ {
		hard := result.Hard()
		if len(hard) == 0 {
			// Observers still see the phase even when there is nothing to do.
			if i == 1 {
				c.transition(PhaseRefining, "0 hard violations, nothing to refine")
			}
			break
		}
		iterations = i
		c.transition(PhaseRefining, fmt.Sprintf("iteration %d, %d hard violations", i, len(hard)))

		report := c.resolver.Resolve(sched, r, hard, corr)
		applied = append(applied, report.Applied...)
		result = c.validator.Validate(sched, r)

		if len(report.Applied) == 0 {
			c.log.Infow("refinement stalled", "iteration", i, "unresolved", len(report.Unresolved))
			break
		}
	}
	return result, applied, iterations
}

// escalate hands the remaining hard violations to a human and waits for the
// decision. The correlation ID doubles as the resumption token the approval
// surface posts back.
func (c *Coordinator) escalate(ctx context.Context, corr string, result *roster.ComplianceResult, fixes []*roster.Resolution) (bool, error) {
	c.metrics.Escalations.Inc()
	c.transition(PhaseEscalationPending, fmt.Sprintf("%d hard violations need a decision", len(result.Hard())))
	c.Send(bus.TypeViolation, NameApprovals, corr, bus.ViolationPayload{
		Violations: result.Hard(),
		PartialFix: fixes,
	})

	msg, err := c.await(ctx, corr, c.cfg.Escalation.Timeout)
	if err != nil {
		if c.cfg.Escalation.OnTimeout == "proceed" {
			c.log.Warnw("escalation timed out, proceeding with accepted risk", "correlation", corr)
			return true, nil
		}
		return false, fmt.Errorf("escalation: %w", err)
	}
	p, ok := msg.Payload.(bus.ApprovalPayload)
	if !ok {
		return false, fmt.Errorf("escalation: unexpected payload %T", msg.Payload)
	}
	if !p.Approved {
		return false, fmt.Errorf("schedule rejected by %s: %s", p.DecidedBy, p.Note)
	}
	c.log.Infow("schedule approved with remaining violations", "by", p.DecidedBy, "note", p.Note)
	return true, nil
}

// explain asks the explainer for the summary. Failure here never fails the
// run; the export still carries the raw numbers.
func (c *Coordinator) explain(ctx context.Context, corr string, payload bus.SchedulePayload) string {
	c.Send(bus.TypeSchedule, NameExplainer, corr, payload)
	msg, err := c.await(ctx, corr, explainTimeout)
	if err != nil {
		c.log.Warnw("no explanation produced", "error", err)
		return ""
	}
	if p, ok := msg.Payload.(bus.ExplanationPayload); ok {
		return p.Text
	}
	return ""
}

func (c *Coordinator) export(ctx context.Context, corr string, payload bus.SchedulePayload) error {
	c.Send(bus.TypeSchedule, NameExporter, corr, payload)
	msg, err := c.await(ctx, corr, collaboratorTimeout)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if p, ok := msg.Payload.(bus.StatusPayload); ok && p.Err != "" {
		return fmt.Errorf("export: %s", p.Err)
	}
	return nil
}

// await blocks until a message with the given correlation ID arrives, the
// timeout lapses, or the context ends. Messages for other correlations are
// stale replies from abandoned exchanges and are discarded.
func (c *Coordinator) await(ctx context.Context, corr string, timeout time.Duration) (bus.Message, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case msg := <-c.inbox:
			if msg.CorrelationID != corr {
				c.log.Debugw("discarding stale message", "type", msg.Type, "correlation", msg.CorrelationID)
				continue
			}
			return msg, nil
		case <-deadline.C:
			return bus.Message{}, fmt.Errorf("timed out after %s waiting for reply", timeout)
		case <-ctx.Done():
			return bus.Message{}, ctx.Err()
		}
	}
}

// asData unwraps a collaborator reply, turning an error status into an error.
func (c *Coordinator) asData(msg bus.Message) (bus.Payload, error) {
	if p, ok := msg.Payload.(bus.StatusPayload); ok {
		if p.Err != "" {
			return nil, fmt.Errorf("%s reported: %s", msg.Sender, p.Err)
		}
		return nil, fmt.Errorf("%s sent status instead of data", msg.Sender)
	}
	return msg.Payload, nil
}

func (c *Coordinator) hourTotals(r *roster.Roster) map[string]float64 {
	totals := make(map[string]float64)
	for _, e := range r.Employees() {
		totals[e.ID] = r.TotalHours(e.ID)
	}
	return totals
}

// transition records a phase change on the bus, the metrics and the log.
func (c *Coordinator) transition(phase Phase, detail string) {
	c.metrics.PhaseTransitions.WithLabelValues(string(phase)).Inc()
	c.log.Infow("phase", "phase", phase, "detail", detail)
	c.Send(bus.TypeStatus, "", "", bus.StatusPayload{Phase: string(phase), Detail: detail})
}
