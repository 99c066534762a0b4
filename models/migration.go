package models

import (
	"log"

	"github.com/cellsync/fiscal_backend/config"
	"gorm.io/gorm"
)

func MigrateTable() {
	if err := AutoMigrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Product{},
		&StockMovement{},
		&ImportedInvoice{},
	)
}
