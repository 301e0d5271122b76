package agents

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"rosterforge/internal/bus"
	"rosterforge/internal/roster"
)

// DemandPlanner turns a store's demand profile into per-shift, per-station
// staffing targets. It answers "demand" requests on the bus.
type DemandPlanner struct {
	BaseAgent
}

// NewDemandPlanner wires the planner to the bus and subscribes it to demand
// requests.
func NewDemandPlanner(b *bus.Bus, log *zap.SugaredLogger) *DemandPlanner {
	p := &DemandPlanner{BaseAgent: NewBaseAgent(NameDemand, b, log)}
	b.Subscribe(bus.TypeRequest, p.handleRequest)
	return p
}

func (p *DemandPlanner) handleRequest(msg bus.Message) {
	req, ok := msg.Payload.(bus.RequestPayload)
	if !ok || req.Resource != "demand" || msg.Recipient != NameDemand {
		return
	}
	if req.Store == nil {
		p.Reply(msg, bus.TypeStatus, bus.StatusPayload{Err: fmt.Sprintf("demand request for %s carries no store", req.StoreID)})
		return
	}
	p.Reply(msg, bus.TypeData, bus.DemandPayload{Targets: p.Plan(req.Store)})
}

// Plan computes the staffing targets for every shift in the store's horizon.
// Peak shifts take the peak multiplier, weekend shifts the weekend uplift,
// both rounded up. Targets never go below zero, and each shift keeps a total
// of at least the minimum staffing floor.
func (p *DemandPlanner) Plan(store *roster.Store) map[string]map[roster.Station]int {
	targets := make(map[string]map[roster.Station]int, len(store.Shifts))
	for _, shift := range store.Shifts {
		factor := 1.0
		if shift.Type() == roster.Peak {
			factor *= store.Demand.PeakMultiplier
		}
		if wd := shift.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			factor *= store.Demand.WeekendUplift
		}

		required := make(map[roster.Station]int, len(store.Demand.BaseStaff))
		total := 0
		for _, st := range roster.Stations {
			base, ok := store.Demand.BaseStaff[st]
			if !ok {
				continue
			}
			n := int(math.Ceil(float64(base) * factor))
			if n < 0 {
				n = 0
			}
			required[st] = n
			total += n
		}

		// Pad the busiest station up to the operational floor.
		for total < roster.MinStaffPerShift {
			st := p.busiestStation(store.Demand.BaseStaff)
			required[st]++
			total++
		}

		targets[shift.ID] = required
		p.log.Debugw("demand planned", "shift", shift.ID, "factor", factor, "total", total)
	}
	return targets
}

func (p *DemandPlanner) busiestStation(base map[roster.Station]int) roster.Station {
	best := roster.Stations[0]
	for _, st := range roster.Stations {
		if base[st] > base[best] {
			best = st
		}
	}
	return best
}
