package database

import (
	"fmt"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres" // PostgreSQL dialect
	_ "github.com/jinzhu/gorm/dialects/sqlite"   // SQLite dialect
)

// Open connects to the roster configuration store and migrates the record
// schema. Dialect is "sqlite3" or "postgres".
func Open(dialect, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if err := db.AutoMigrate(&EmployeeRecord{}, &StoreRecord{}, &ShiftRecord{}).Error; err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}
