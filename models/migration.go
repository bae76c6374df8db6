package models

import (
	"gorm.io/gorm"
)

// RebuildTables lists the tables owned by the rebuild engine.
func RebuildTables() []interface{} {
	return []interface{}{
		&Invoice{},
		&InvoiceLineItem{},
		&Payment{},
		&LegacyReceiptMapping{},
		&BatchRun{},
	}
}

// MigrateTables creates or updates the rebuild engine's tables.
// Student and term tables belong to the enrollment domain and are not migrated here.
func MigrateTables(db *gorm.DB) error {
	return db.AutoMigrate(RebuildTables()...)
}
