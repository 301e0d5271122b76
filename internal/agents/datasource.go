package agents

import (
	"github.com/jinzhu/gorm"
	"go.uber.org/zap"

	"rosterforge/internal/bus"
	"rosterforge/internal/database"
)

// DataSource serves the employee roster and store configuration from the
// database. It answers "roster" requests on the bus.
type DataSource struct {
	BaseAgent
	db *gorm.DB
}

// NewDataSource wires the agent to the database handle and subscribes it to
// roster requests.
func NewDataSource(b *bus.Bus, log *zap.SugaredLogger, db *gorm.DB) *DataSource {
	ds := &DataSource{BaseAgent: NewBaseAgent(NameDataSource, b, log), db: db}
	b.Subscribe(bus.TypeRequest, ds.handleRequest)
	return ds
}

func (ds *DataSource) handleRequest(msg bus.Message) {
	req, ok := msg.Payload.(bus.RequestPayload)
	if !ok || req.Resource != "roster" || msg.Recipient != NameDataSource {
		return
	}
	employees, err := database.LoadEmployees(ds.db)
	if err != nil {
		ds.log.Errorw("roster load failed", "error", err)
		ds.Reply(msg, bus.TypeStatus, bus.StatusPayload{Err: err.Error()})
		return
	}
	stores, err := database.LoadStores(ds.db)
	if err != nil {
		ds.log.Errorw("store load failed", "error", err)
		ds.Reply(msg, bus.TypeStatus, bus.StatusPayload{Err: err.Error()})
		return
	}
	ds.log.Infow("roster loaded", "employees", len(employees), "stores", len(stores))
	ds.Reply(msg, bus.TypeData, bus.RosterPayload{Employees: employees, Stores: stores})
}
