package models

import (
	"errors"
	"time"

	"github.com/cellsync/fiscal_backend/reconcile"
	"gorm.io/gorm"
)

// StockMovement is one append-only ledger entry.
type StockMovement struct {
	ID              int       `gorm:"primary_key" json:"id"`
	TenantId        string    `gorm:"size:64;not null;index:idx_movements_tenant_ref,priority:1" json:"tenant_id"`
	ProductId       int       `gorm:"index;not null" json:"product_id"`
	Type            string    `gorm:"size:20;not null" json:"type"`
	Quantity        int       `gorm:"not null" json:"quantity"`
	SourceReference string    `gorm:"size:500;not null" json:"source_reference"`
	ReferenceType   string    `gorm:"size:20" json:"reference_type"`
	ReferenceKey    string    `gorm:"size:64;index:idx_movements_tenant_ref,priority:2" json:"reference_key"`
	OccurredAt      time.Time `gorm:"not null" json:"occurred_at"`
	UserId          int       `json:"user_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (m *StockMovement) BeforeCreate(tx *gorm.DB) error {
	if m.Quantity <= 0 {
		return errors.New("stock movement: quantity must be positive")
	}
	return nil
}

// Ledger immutability guardrails: stock_movements are append-only.

func (m *StockMovement) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("immutable ledger: stock_movements cannot be updated")
}

func (m *StockMovement) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable ledger: stock_movements cannot be deleted")
}

func (m *StockMovement) toDomain() reconcile.Movement {
	return reconcile.Movement{
		ID:              m.ID,
		ProductId:       m.ProductId,
		Type:            m.Type,
		Quantity:        m.Quantity,
		SourceReference: m.SourceReference,
		ReferenceKey:    m.ReferenceKey,
		OccurredAt:      m.OccurredAt,
		UserId:          m.UserId,
	}
}
