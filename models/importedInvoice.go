package models

import (
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

// ImportedInvoice backs NF-e idempotency.
// Unique constraint: (tenant_id, invoice_key).
type ImportedInvoice struct {
	ID            int       `gorm:"primary_key" json:"id"`
	TenantId      string    `gorm:"size:64;not null;index:uniq_imported_invoice,unique" json:"tenant_id"`
	InvoiceKey    string    `gorm:"size:64;not null;index:uniq_imported_invoice,unique" json:"invoice_key"`
	InvoiceNumber string    `gorm:"size:20" json:"invoice_number"`
	SupplierName  string    `gorm:"size:255" json:"supplier_name"`
	UserId        int       `json:"user_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
