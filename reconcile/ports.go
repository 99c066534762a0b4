package reconcile

import (
	"context"
	"time"
)

const (
	MovementTypeInbound = "inbound"
	ReferenceTypeNFe    = "nfe"
	CategoryImported    = "Importado"
	DefaultMinStock     = 5
)

// Product is the catalog view this subsystem reads and writes. Prices are cents.
type Product struct {
	ID           int    `json:"id"`
	Sku          string `json:"sku"`
	Name         string `json:"name"`
	CurrentStock int    `json:"current_stock"`
	SalePrice    int64  `json:"sale_price"`
	CostPrice    int64  `json:"cost_price"`
}

type NewProduct struct {
	Sku          string
	Name         string
	Barcode      string
	Ncm          string
	Unit         string
	SalePrice    int64
	CostPrice    int64
	CurrentStock int
	MinStock     int
	Category     string
	Supplier     string
}

type Movement struct {
	ID              int       `json:"id"`
	ProductId       int       `json:"product_id"`
	Type            string    `json:"type"`
	Quantity        int       `json:"quantity"`
	SourceReference string    `json:"source_reference"`
	ReferenceKey    string    `json:"reference_key"`
	OccurredAt      time.Time `json:"occurred_at"`
	UserId          int       `json:"user_id"`
}

type NewMovement struct {
	TenantId        string
	ProductId       int
	Type            string
	Quantity        int
	SourceReference string
	ReferenceType   string
	ReferenceKey    string
	OccurredAt      time.Time
	UserId          int
}

// InvoiceClaim is the unique (tenant, invoice key) row that backs the duplicate check.
type InvoiceClaim struct {
	InvoiceKey    string
	InvoiceNumber string
	SupplierName  string
}

// CatalogPort finders return (nil, nil) when nothing matches.
type CatalogPort interface {
	FindProductBySku(ctx context.Context, tenantId, sku string) (*Product, error)
	FindProductByName(ctx context.Context, tenantId, name string) (*Product, error)
	CreateProduct(ctx context.Context, tenantId string, p NewProduct) (*Product, error)
	IncrementStock(ctx context.Context, productId int, delta int) error
	UpdatePrices(ctx context.Context, productId int, sale, cost int64) error
}

type LedgerPort interface {
	FindMovementsByInvoiceKeyFragment(ctx context.Context, tenantId, key string) ([]Movement, error)
	AppendMovement(ctx context.Context, m NewMovement) error
	// ClaimInvoiceKey returns ErrDuplicateImport when the key is already claimed.
	ClaimInvoiceKey(ctx context.Context, tenantId string, claim InvoiceClaim) error
}

// Store owns transactions. WithinImport must serialize imports of one tenant and
// roll back every mutation when fn returns an error.
type Store interface {
	View(ctx context.Context, tenantId string, fn func(ctx context.Context, catalog CatalogPort, ledger LedgerPort) error) error
	WithinImport(ctx context.Context, tenantId string, fn func(ctx context.Context, catalog CatalogPort, ledger LedgerPort) error) error
}

// Locker is a best-effort cross-instance lock. The store constraint stays authoritative.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Archiver keeps a copy of the raw document once it has been imported.
type Archiver interface {
	Archive(ctx context.Context, tenantId, invoiceKey string, raw []byte) error
}

type ImportedEvent struct {
	TenantId      string    `json:"tenant_id"`
	InvoiceKey    string    `json:"invoice_key"`
	InvoiceNumber string    `json:"invoice_number"`
	SupplierName  string    `json:"supplier_name"`
	NewCount      int       `json:"new_count"`
	UpdatedCount  int       `json:"updated_count"`
	ImportedAt    time.Time `json:"imported_at"`
	CorrelationId string    `json:"correlation_id,omitempty"`
}

type Publisher interface {
	PublishImported(ctx context.Context, ev ImportedEvent) error
}
