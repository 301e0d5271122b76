package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jinzhu/gorm"

	"rosterforge/internal/roster"
)

// EmployeeRecord is the stored form of an employee. Availability and
// preferences are JSON columns; stations a comma-separated list.
type EmployeeRecord struct {
	ID           string `gorm:"primary_key"`
	Name         string
	Type         string
	Stations     string
	Availability string `gorm:"type:text"`
	Preferences  string `gorm:"type:text"`
}

// StoreRecord is the stored form of a store and its demand profile.
type StoreRecord struct {
	ID             string `gorm:"primary_key"`
	Name           string
	BaseStaff      string `gorm:"type:text"`
	PeakMultiplier float64
	WeekendUplift  float64
}

// ShiftRecord is the stored form of a shift template. Date is ISO 8601
// (YYYY-MM-DD); times are minutes from midnight.
type ShiftRecord struct {
	ID           string `gorm:"primary_key"`
	StoreID      string `gorm:"index"`
	Date         string
	StartMinutes int
	EndMinutes   int
}

// LoadEmployees reads and validates all employee records.
func LoadEmployees(db *gorm.DB) ([]*roster.Employee, error) {
	var records []EmployeeRecord
	if err := db.Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load employees: %w", err)
	}
	employees := make([]*roster.Employee, 0, len(records))
	for _, rec := range records {
		e, err := rec.toEmployee()
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, nil
}

// LoadStores reads all stores with their shift templates attached.
func LoadStores(db *gorm.DB) ([]*roster.Store, error) {
	var records []StoreRecord
	if err := db.Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load stores: %w", err)
	}
	stores := make([]*roster.Store, 0, len(records))
	for _, rec := range records {
		st, err := rec.toStore()
		if err != nil {
			return nil, err
		}
		var shiftRecords []ShiftRecord
		if err := db.Where("store_id = ?", st.ID).Order("id").Find(&shiftRecords).Error; err != nil {
			return nil, fmt.Errorf("load shifts for store %s: %w", st.ID, err)
		}
		for _, sr := range shiftRecords {
			shift, err := sr.toShift()
			if err != nil {
				return nil, err
			}
			if err := shift.Validate(); err != nil {
				return nil, err
			}
			st.Shifts = append(st.Shifts, shift)
		}
		stores = append(stores, st)
	}
	return stores, nil
}

func (rec EmployeeRecord) toEmployee() (*roster.Employee, error) {
	e := &roster.Employee{
		ID:   rec.ID,
		Name: rec.Name,
		Type: roster.EmployeeType(rec.Type),
	}
	for _, s := range strings.Split(rec.Stations, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			e.Stations = append(e.Stations, roster.Station(s))
		}
	}
	if rec.Availability != "" {
		byDay := map[string][]roster.Window{}
		if err := json.Unmarshal([]byte(rec.Availability), &byDay); err != nil {
			return nil, fmt.Errorf("employee %s: bad availability JSON: %w", rec.ID, err)
		}
		e.Availability = make(map[time.Weekday][]roster.Window, len(byDay))
		for name, windows := range byDay {
			day, err := parseWeekday(name)
			if err != nil {
				return nil, fmt.Errorf("employee %s: %w", rec.ID, err)
			}
			e.Availability[day] = windows
		}
	}
	if rec.Preferences != "" {
		prefs := map[roster.ShiftType]float64{}
		if err := json.Unmarshal([]byte(rec.Preferences), &prefs); err != nil {
			return nil, fmt.Errorf("employee %s: bad preferences JSON: %w", rec.ID, err)
		}
		e.Preferences = prefs
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (rec StoreRecord) toStore() (*roster.Store, error) {
	st := &roster.Store{
		ID:   rec.ID,
		Name: rec.Name,
		Demand: roster.DemandProfile{
			PeakMultiplier: rec.PeakMultiplier,
			WeekendUplift:  rec.WeekendUplift,
		},
	}
	if rec.BaseStaff != "" {
		base := map[roster.Station]int{}
		if err := json.Unmarshal([]byte(rec.BaseStaff), &base); err != nil {
			return nil, fmt.Errorf("store %s: bad base staffing JSON: %w", rec.ID, err)
		}
		st.Demand.BaseStaff = base
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return st, nil
}

func (rec ShiftRecord) toShift() (*roster.Shift, error) {
	date, err := time.Parse("2006-01-02", rec.Date)
	if err != nil {
		return nil, fmt.Errorf("shift %s: bad date %q: %w", rec.ID, rec.Date, err)
	}
	return &roster.Shift{
		ID:       rec.ID,
		StoreID:  rec.StoreID,
		Date:     date,
		Start:    rec.StartMinutes,
		End:      rec.EndMinutes,
		Required: make(map[roster.Station]int),
	}, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}
