package agents

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"rosterforge/internal/bus"
	"rosterforge/internal/roster"
)

// Exporter writes the final schedule to disk: a CSV managers can print and a
// JSON report downstream systems can ingest. It answers schedule messages
// addressed to it.
type Exporter struct {
	BaseAgent
	dir string
}

// exportReport is the JSON document written per store run.
type exportReport struct {
	StoreID     string               `json:"store_id"`
	Assignments []exportAssignment   `json:"assignments"`
	HourTotals  map[string]float64   `json:"hour_totals"`
	Score       float64              `json:"compliance_score"`
	Violations  []roster.Violation   `json:"violations,omitempty"`
	Resolutions []*roster.Resolution `json:"resolutions,omitempty"`
	Unfilled    []roster.Slot        `json:"unfilled,omitempty"`
}

type exportAssignment struct {
	Date       string  `json:"date"`
	Start      string  `json:"start"`
	End        string  `json:"end"`
	ShiftID    string  `json:"shift_id"`
	Station    string  `json:"station"`
	EmployeeID string  `json:"employee_id"`
	Hours      float64 `json:"hours"`
	ShiftType  string  `json:"shift_type"`
}

// NewExporter wires the exporter to the bus with its output directory.
func NewExporter(b *bus.Bus, log *zap.SugaredLogger, dir string) *Exporter {
	ex := &Exporter{BaseAgent: NewBaseAgent(NameExporter, b, log), dir: dir}
	b.Subscribe(bus.TypeSchedule, ex.handleSchedule)
	return ex
}

func (ex *Exporter) handleSchedule(msg bus.Message) {
	if msg.Recipient != NameExporter {
		return
	}
	p, ok := msg.Payload.(bus.SchedulePayload)
	if !ok {
		return
	}
	csvPath, jsonPath, err := ex.Export(p)
	if err != nil {
		ex.log.Errorw("export failed", "store", p.Schedule.StoreID, "error", err)
		ex.Reply(msg, bus.TypeStatus, bus.StatusPayload{Err: err.Error()})
		return
	}
	ex.log.Infow("schedule exported", "csv", csvPath, "json", jsonPath)
	ex.Reply(msg, bus.TypeStatus, bus.StatusPayload{Phase: "exported", Detail: csvPath})
}

// Export writes both artifacts and returns their paths.
func (ex *Exporter) Export(p bus.SchedulePayload) (string, string, error) {
	if err := os.MkdirAll(ex.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("export dir: %w", err)
	}
	rows := ex.rows(p.Schedule)

	csvPath := filepath.Join(ex.dir, fmt.Sprintf("schedule_%s.csv", p.Schedule.StoreID))
	if err := ex.writeCSV(csvPath, rows); err != nil {
		return "", "", err
	}

	jsonPath := filepath.Join(ex.dir, fmt.Sprintf("report_%s.json", p.Schedule.StoreID))
	if err := ex.writeJSON(jsonPath, p, rows); err != nil {
		return "", "", err
	}
	return csvPath, jsonPath, nil
}

func (ex *Exporter) rows(sched *roster.Schedule) []exportAssignment {
	committed := sched.Committed()
	rows := make([]exportAssignment, 0, len(committed))
	for _, a := range committed {
		sh := sched.Shifts[a.ShiftID]
		rows = append(rows, exportAssignment{
			Date:       sh.Date.Format("2006-01-02"),
			Start:      minutesToClock(sh.Start),
			End:        minutesToClock(sh.End),
			ShiftID:    a.ShiftID,
			Station:    string(a.Station),
			EmployeeID: a.EmployeeID,
			Hours:      sh.Hours(),
			ShiftType:  string(sh.Type()),
		})
	}
	return rows
}

func (ex *Exporter) writeCSV(path string, rows []exportAssignment) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "start", "end", "shift_id", "station", "employee_id", "hours", "shift_type"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Date, r.Start, r.End, r.ShiftID, r.Station, r.EmployeeID,
			strconv.FormatFloat(r.Hours, 'f', 1, 64), r.ShiftType,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func (ex *Exporter) writeJSON(path string, p bus.SchedulePayload, rows []exportAssignment) error {
	report := exportReport{
		StoreID:     p.Schedule.StoreID,
		Assignments: rows,
		HourTotals:  p.HourTotals,
		Resolutions: p.Resolutions,
		Unfilled:    p.Schedule.Unfilled(),
	}
	if p.Compliance != nil {
		report.Score = p.Compliance.Score
		report.Violations = p.Compliance.Violations
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func minutesToClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
