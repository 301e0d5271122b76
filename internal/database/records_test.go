package database

import (
	"testing"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterforge/internal/roster"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoadEmployeesRoundTrip(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&EmployeeRecord{
		ID:           "emp-a",
		Name:         "Avery",
		Type:         "part_time",
		Stations:     "Counter, McCafe",
		Availability: `{"Monday":[{"start":540,"end":1020}]}`,
		Preferences:  `{"peak":0.8}`,
	}).Error)

	employees, err := LoadEmployees(db)
	require.NoError(t, err)
	require.Len(t, employees, 1)

	e := employees[0]
	assert.Equal(t, roster.PartTime, e.Type)
	assert.Equal(t, []roster.Station{roster.StationCounter, roster.StationMcCafe}, e.Stations)
	require.Len(t, e.Availability[time.Monday], 1)
	assert.Equal(t, roster.Window{Start: 540, End: 1020}, e.Availability[time.Monday][0])
	assert.Equal(t, 0.8, e.Preference(roster.Peak))
}

func TestLoadEmployeesRejectsBadRecords(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&EmployeeRecord{
		ID:       "emp-x",
		Name:     "Broken",
		Type:     "zero_hours", // unknown category
		Stations: "Counter",
	}).Error)

	_, err := LoadEmployees(db)
	assert.Error(t, err)
}

func TestLoadStoresAttachesShifts(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&StoreRecord{
		ID:             "store-1",
		Name:           "High Street",
		BaseStaff:      `{"Counter":2,"Kitchen":1}`,
		PeakMultiplier: 1.5,
		WeekendUplift:  1.2,
	}).Error)
	require.NoError(t, db.Create(&ShiftRecord{
		ID: "s1", StoreID: "store-1", Date: "2025-03-03", StartMinutes: 540, EndMinutes: 1020,
	}).Error)
	require.NoError(t, db.Create(&ShiftRecord{
		ID: "s2", StoreID: "store-1", Date: "2025-03-04", StartMinutes: 540, EndMinutes: 1020,
	}).Error)

	stores, err := LoadStores(db)
	require.NoError(t, err)
	require.Len(t, stores, 1)

	st := stores[0]
	assert.Equal(t, 2, st.Demand.BaseStaff[roster.StationCounter])
	assert.Equal(t, 1.5, st.Demand.PeakMultiplier)
	require.Len(t, st.Shifts, 2)
	assert.Equal(t, "s1", st.Shifts[0].ID)
	assert.Equal(t, 540, st.Shifts[0].Start)
	assert.Equal(t, time.March, st.Shifts[0].Date.Month())
}

func TestLoadStoresRejectsBadShiftDates(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&StoreRecord{
		ID: "store-1", Name: "High Street", BaseStaff: `{"Counter":1}`,
		PeakMultiplier: 1, WeekendUplift: 1,
	}).Error)
	require.NoError(t, db.Create(&ShiftRecord{
		ID: "s1", StoreID: "store-1", Date: "03/03/2025", StartMinutes: 540, EndMinutes: 1020,
	}).Error)

	_, err := LoadStores(db)
	assert.Error(t, err)
}
