package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cellsync/fiscal_backend/reconcile"
	"github.com/cellsync/fiscal_backend/utils"
	"gorm.io/gorm"
)

var errProductNotUpdated = errors.New("product row not found for update")

// CatalogStore is the MySQL-backed reconcile.Store.
type CatalogStore struct {
	db *gorm.DB
}

func NewCatalogStore(db *gorm.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

func (s *CatalogStore) View(ctx context.Context, tenantId string, fn func(ctx context.Context, catalog reconcile.CatalogPort, ledger reconcile.LedgerPort) error) error {
	tx := &catalogTx{db: s.db.WithContext(ctx), tenantId: tenantId}
	return fn(ctx, tx, tx)
}

// WithinImport pins one connection, takes the tenant's advisory lock on it and runs fn
// in a transaction on that same connection. GET_LOCK is connection-scoped, so the lock
// and the transaction must share the connection.
func (s *CatalogStore) WithinImport(ctx context.Context, tenantId string, fn func(ctx context.Context, catalog reconcile.CatalogPort, ledger reconcile.LedgerPort) error) error {
	return s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := AcquireTenantImportLock(conn, tenantId); err != nil {
			return &reconcile.PersistenceError{Op: "acquire import lock", Err: err}
		}
		defer ReleaseTenantImportLock(conn, tenantId)

		return conn.Transaction(func(tx *gorm.DB) error {
			t := &catalogTx{db: tx, tenantId: tenantId}
			return fn(ctx, t, t)
		})
	})
}

// AcquireTenantImportLock serializes NF-e imports per tenant across instances using MySQL advisory locks.
func AcquireTenantImportLock(conn *gorm.DB, tenantId string) error {
	lockName := tenantImportLockName(tenantId)
	var ok int
	if err := conn.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire import lock for tenant_id=%s", tenantId)
	}
	return nil
}

func ReleaseTenantImportLock(conn *gorm.DB, tenantId string) {
	lockName := tenantImportLockName(tenantId)
	var _ok int
	_ = conn.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// tenantImportLockName hashes the tenant id because MySQL caps lock names at 64 characters.
func tenantImportLockName(tenantId string) string {
	sum := sha256.Sum256([]byte(tenantId))
	return "nfe-import:" + hex.EncodeToString(sum[:16])
}

// LoadCatalogSnapshot copies a tenant's catalog, used to seed dry runs.
// The tenant predicate comes from the tenant guard installed on db.
func LoadCatalogSnapshot(ctx context.Context, db *gorm.DB, tenantId string) ([]reconcile.Product, error) {
	var rows []Product
	if err := db.WithContext(utils.SetTenantIdInContext(ctx, tenantId)).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]reconcile.Product, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toDomain())
	}
	return out, nil
}

type catalogTx struct {
	db       *gorm.DB
	tenantId string
}

func (t *catalogTx) FindProductBySku(ctx context.Context, tenantId, sku string) (*reconcile.Product, error) {
	return t.firstProduct(ctx, "tenant_id = ? AND sku = ?", tenantId, sku)
}

func (t *catalogTx) FindProductByName(ctx context.Context, tenantId, name string) (*reconcile.Product, error) {
	return t.firstProduct(ctx, "tenant_id = ? AND LOWER(name) = LOWER(?)", tenantId, name)
}

func (t *catalogTx) firstProduct(ctx context.Context, cond string, args ...interface{}) (*reconcile.Product, error) {
	var p Product
	err := t.db.WithContext(ctx).Where(cond, args...).Order("id").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p.toDomain(), nil
}

func (t *catalogTx) CreateProduct(ctx context.Context, tenantId string, np reconcile.NewProduct) (*reconcile.Product, error) {
	row := newProductRow(tenantId, np)
	if err := t.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// IncrementStock is a single relative UPDATE so concurrent writers never lose an increment.
func (t *catalogTx) IncrementStock(ctx context.Context, productId int, delta int) error {
	res := t.db.WithContext(ctx).Model(&Product{}).
		Where("tenant_id = ? AND id = ?", t.tenantId, productId).
		UpdateColumn("current_stock", gorm.Expr("current_stock + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errProductNotUpdated
	}
	return nil
}

func (t *catalogTx) UpdatePrices(ctx context.Context, productId int, sale, cost int64) error {
	return t.db.WithContext(ctx).Model(&Product{}).
		Where("tenant_id = ? AND id = ?", t.tenantId, productId).
		UpdateColumns(map[string]interface{}{"sale_price": sale, "cost_price": cost}).Error
}

func (t *catalogTx) FindMovementsByInvoiceKeyFragment(ctx context.Context, tenantId, key string) ([]reconcile.Movement, error) {
	var rows []StockMovement
	err := t.db.WithContext(ctx).
		Where("tenant_id = ? AND (reference_key = ? OR source_reference LIKE ?)", tenantId, key, "%"+key+"%").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]reconcile.Movement, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (t *catalogTx) AppendMovement(ctx context.Context, m reconcile.NewMovement) error {
	return t.db.WithContext(ctx).Create(&StockMovement{
		TenantId:        m.TenantId,
		ProductId:       m.ProductId,
		Type:            m.Type,
		Quantity:        m.Quantity,
		SourceReference: m.SourceReference,
		ReferenceType:   m.ReferenceType,
		ReferenceKey:    m.ReferenceKey,
		OccurredAt:      m.OccurredAt,
		UserId:          m.UserId,
	}).Error
}

func (t *catalogTx) ClaimInvoiceKey(ctx context.Context, tenantId string, claim reconcile.InvoiceClaim) error {
	userId, _ := utils.GetUserIdFromContext(ctx)
	err := t.db.WithContext(ctx).Create(&ImportedInvoice{
		TenantId:      tenantId,
		InvoiceKey:    claim.InvoiceKey,
		InvoiceNumber: claim.InvoiceNumber,
		SupplierName:  claim.SupplierName,
		UserId:        userId,
	}).Error
	if isDuplicateKeyErr(err) {
		return reconcile.ErrDuplicateImport
	}
	return err
}
