// Package agents holds the scheduling engine's workers: the coordinator that
// drives the phased run, the matcher/validator/resolver core, and the thin
// collaborator agents (data source, demand planner, explainer, exporter).
// All of them communicate through the message bus.
package agents

import (
	"go.uber.org/zap"

	"rosterforge/internal/bus"
)

// Agent names used as bus sender/recipient addresses.
const (
	NameCoordinator = "coordinator"
	NameMatcher     = "matcher"
	NameValidator   = "validator"
	NameResolver    = "resolver"
	NameDataSource  = "datasource"
	NameDemand      = "demand"
	NameExplainer   = "explainer"
	NameExporter    = "exporter"
)

// BaseAgent provides the bus handle, logger and send helpers every agent
// embeds.
type BaseAgent struct {
	name string
	bus  *bus.Bus
	log  *zap.SugaredLogger
}

// NewBaseAgent wires an agent name to the bus and a named logger.
func NewBaseAgent(name string, b *bus.Bus, log *zap.SugaredLogger) BaseAgent {
	return BaseAgent{name: name, bus: b, log: log.Named(name)}
}

// Name returns the agent's bus address.
func (a *BaseAgent) Name() string { return a.name }

// Send publishes a message from this agent.
func (a *BaseAgent) Send(t bus.MessageType, recipient, correlationID string, p bus.Payload) {
	a.bus.Publish(bus.Message{
		Type:          t,
		Sender:        a.name,
		Recipient:     recipient,
		CorrelationID: correlationID,
		Payload:       p,
	})
}

// Reply answers a request, echoing its correlation identifier back to the
// sender as the bus contract requires.
func (a *BaseAgent) Reply(to bus.Message, t bus.MessageType, p bus.Payload) {
	a.Send(t, to.Sender, to.CorrelationID, p)
}
