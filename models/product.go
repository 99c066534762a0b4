package models

import (
	"errors"
	"time"

	"github.com/cellsync/fiscal_backend/reconcile"
	"gorm.io/gorm"
)

// Product is a tenant catalog row. Prices are stored in cents.
type Product struct {
	ID           int       `gorm:"primary_key" json:"id"`
	TenantId     string    `gorm:"size:64;not null;index:idx_products_tenant_sku,priority:1;index:idx_products_tenant_name,priority:1" json:"tenant_id"`
	Sku          string    `gorm:"size:100;not null;index:idx_products_tenant_sku,priority:2" json:"sku"`
	Name         string    `gorm:"size:255;not null;index:idx_products_tenant_name,priority:2" json:"name"`
	Barcode      string    `gorm:"size:100;index" json:"barcode"`
	Ncm          string    `gorm:"size:20" json:"ncm"`
	Unit         string    `gorm:"size:20" json:"unit"`
	Category     string    `gorm:"size:100" json:"category"`
	Supplier     string    `gorm:"size:255" json:"supplier"`
	SalePrice    int64     `gorm:"not null;default:0" json:"sale_price"`
	CostPrice    int64     `gorm:"not null;default:0" json:"cost_price"`
	CurrentStock int       `gorm:"not null;default:0" json:"current_stock"`
	MinStock     int       `gorm:"not null;default:0" json:"min_stock"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeSave enforces catalog invariants on whole-row writes.
// Stock increments go through UpdateColumn and skip this hook.
func (p *Product) BeforeSave(tx *gorm.DB) error {
	_ = tx // signature required by gorm; tx may be nil in tests
	if p == nil {
		return nil
	}
	if p.TenantId == "" {
		return errors.New("product: tenant_id is required")
	}
	if p.Sku == "" && p.Name == "" {
		return errors.New("product: sku or name is required")
	}
	if p.SalePrice < 0 || p.CostPrice < 0 {
		return errors.New("product: prices cannot be negative")
	}
	if p.CurrentStock < 0 {
		return errors.New("product: current_stock cannot be negative")
	}
	return nil
}

func (p *Product) toDomain() *reconcile.Product {
	return &reconcile.Product{
		ID:           p.ID,
		Sku:          p.Sku,
		Name:         p.Name,
		CurrentStock: p.CurrentStock,
		SalePrice:    p.SalePrice,
		CostPrice:    p.CostPrice,
	}
}

func newProductRow(tenantId string, np reconcile.NewProduct) *Product {
	return &Product{
		TenantId:     tenantId,
		Sku:          np.Sku,
		Name:         np.Name,
		Barcode:      np.Barcode,
		Ncm:          np.Ncm,
		Unit:         np.Unit,
		Category:     np.Category,
		Supplier:     np.Supplier,
		SalePrice:    np.SalePrice,
		CostPrice:    np.CostPrice,
		CurrentStock: np.CurrentStock,
		MinStock:     np.MinStock,
		IsActive:     true,
	}
}
