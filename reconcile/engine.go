package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cellsync/fiscal_backend/config"
	"github.com/cellsync/fiscal_backend/nfe"
	"github.com/cellsync/fiscal_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const moduleName = "reconcile"

var tracer = otel.Tracer("nfe-reconcile")

// grand total vs. item sum drift tolerated before a warning is attached
var totalsTolerance = decimal.RequireFromString("0.05")

var maxStockQuantity = decimal.NewFromInt(math.MaxInt32)

// errNothingImported rolls back the key claim when no line item produced a movement,
// so the invoice can be imported again once the catalog is fixed.
var errNothingImported = errors.New("no line item imported")

type Options struct {
	CreateNewProducts bool `json:"create_new_products"`
	UpdatePrices      bool `json:"update_prices"`
}

type ImportedProduct struct {
	Id       int    `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	IsNew    bool   `json:"is_new"`
}

type Totals struct {
	NewCount     int             `json:"new_count"`
	UpdatedCount int             `json:"updated_count"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

type Result struct {
	InvoiceKey       string            `json:"invoice_key"`
	InvoiceNumber    string            `json:"invoice_number"`
	SupplierName     string            `json:"supplier_name"`
	TotalItems       int               `json:"total_items"`
	ImportedProducts []ImportedProduct `json:"imported_products"`
	Errors           []*ItemError      `json:"errors"`
	Warnings         []string          `json:"warnings"`
	Totals           Totals            `json:"summary"`
}

func (r *Result) ErrorMessages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Error())
	}
	return out
}

type Engine struct {
	store     Store
	logger    *logrus.Logger
	locker    Locker
	archiver  Archiver
	publisher Publisher
	now       func() time.Time
}

type EngineOption func(*Engine)

func WithLocker(l Locker) EngineOption       { return func(e *Engine) { e.locker = l } }
func WithArchiver(a Archiver) EngineOption   { return func(e *Engine) { e.archiver = a } }
func WithPublisher(p Publisher) EngineOption { return func(e *Engine) { e.publisher = p } }

func NewEngine(store Store, logger *logrus.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = config.GetLogger()
	}
	e := &Engine{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile applies one parsed invoice to the tenant's catalog and ledger.
// A duplicate key is rejected before any mutation; unmatched or unstockable items
// are collected in Result.Errors and never abort the rest of the invoice.
func (e *Engine) Reconcile(ctx context.Context, inv *nfe.Invoice, opts Options) (*Result, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok {
		return nil, ErrMissingTenant
	}
	if strings.TrimSpace(inv.Key) == "" {
		return nil, fmt.Errorf("%w: missing access key", nfe.ErrMalformedDocument)
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	ctx, span := tracer.Start(ctx, "reconcile.Reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantId),
		attribute.String("nfe.key", inv.Key),
		attribute.Int("nfe.items", len(inv.Items)),
	)

	if e.locker != nil {
		release, err := e.locker.Lock(ctx, fmt.Sprintf("nfe-import:%s:%s", tenantId, inv.Key))
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"module":    moduleName,
				"tenant_id": tenantId,
				"nfe_key":   inv.Key,
			}).Warn("could not obtain import lock; relying on store constraint: " + err.Error())
		} else {
			defer release()
		}
	}

	result := newResult(inv)
	var imported []ImportedProduct
	var itemErrors []*ItemError

	err := e.store.WithinImport(ctx, tenantId, func(ctx context.Context, catalog CatalogPort, ledger LedgerPort) error {
		// a retried transaction must not accumulate items from the failed attempt
		imported, itemErrors = nil, nil

		if err := checkNotImported(ctx, ledger, tenantId, inv.Key); err != nil {
			return err
		}
		claim := InvoiceClaim{InvoiceKey: inv.Key, InvoiceNumber: inv.Number, SupplierName: inv.Supplier.Name}
		if err := ledger.ClaimInvoiceKey(ctx, tenantId, claim); err != nil {
			return persistence("claim invoice key", err)
		}

		for i, item := range inv.Items {
			p, itemErr, err := e.applyItem(ctx, catalog, ledger, tenantId, userId, inv, i, item, opts)
			if err != nil {
				return err
			}
			if itemErr != nil {
				itemErrors = append(itemErrors, itemErr)
				continue
			}
			imported = append(imported, *p)
		}
		if len(imported) == 0 {
			return errNothingImported
		}
		return nil
	})

	switch {
	case err == nil, errors.Is(err, errNothingImported):
	case errors.Is(err, ErrDuplicateImport):
		e.logger.WithFields(logrus.Fields{
			"module":    moduleName,
			"tenant_id": tenantId,
			"nfe_key":   inv.Key,
		}).Info("nf-e already imported; skipping")
		span.SetAttributes(attribute.Bool("nfe.duplicate", true))
		return nil, err
	default:
		config.LogError(e.logger, moduleName, "Reconcile", "WithinImport", inv.Key, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result.ImportedProducts = append(result.ImportedProducts, imported...)
	result.Errors = append(result.Errors, itemErrors...)
	for _, p := range imported {
		if p.IsNew {
			result.Totals.NewCount++
		} else {
			result.Totals.UpdatedCount++
		}
	}
	return result, nil
}

func newResult(inv *nfe.Invoice) *Result {
	r := &Result{
		InvoiceKey:       inv.Key,
		InvoiceNumber:    inv.Number,
		SupplierName:     inv.Supplier.Name,
		TotalItems:       len(inv.Items),
		ImportedProducts: []ImportedProduct{},
		Errors:           []*ItemError{},
		Warnings:         []string{},
		Totals:           Totals{TotalValue: inv.Totals.GrandTotal},
	}
	if diff, bad := inv.TotalsMismatch(totalsTolerance); bad {
		r.Warnings = append(r.Warnings, fmt.Sprintf(
			"grand total %s differs from item sum %s by %s",
			inv.Totals.GrandTotal.StringFixed(2), inv.ItemsTotal().StringFixed(2), diff.StringFixed(2)))
	}
	return r
}

func checkNotImported(ctx context.Context, ledger LedgerPort, tenantId, key string) error {
	existing, err := ledger.FindMovementsByInvoiceKeyFragment(ctx, tenantId, key)
	if err != nil {
		return persistence("find movements by invoice key", err)
	}
	if len(existing) > 0 {
		return ErrDuplicateImport
	}
	return nil
}

// applyItem returns either the imported product, a per-item error, or a fatal store error.
func (e *Engine) applyItem(ctx context.Context, catalog CatalogPort, ledger LedgerPort, tenantId string, userId int, inv *nfe.Invoice, index int, item nfe.Item, opts Options) (*ImportedProduct, *ItemError, error) {
	qty, err := StockQuantity(item.Quantity)
	if err != nil {
		return nil, &ItemError{Index: index, Code: item.Code, Name: item.Name, Err: err}, nil
	}
	price := ToCents(item.UnitPrice)

	product, err := findProduct(ctx, catalog, tenantId, item)
	if err != nil {
		return nil, nil, err
	}

	isNew := false
	switch {
	case product != nil:
		if err := catalog.IncrementStock(ctx, product.ID, qty); err != nil {
			return nil, nil, persistence("increment stock", err)
		}
		if opts.UpdatePrices {
			if err := catalog.UpdatePrices(ctx, product.ID, price, price); err != nil {
				return nil, nil, persistence("update prices", err)
			}
		}
	case opts.CreateNewProducts:
		product, err = catalog.CreateProduct(ctx, tenantId, NewProduct{
			Sku:          item.Code,
			Name:         item.Name,
			Barcode:      item.Barcode,
			Ncm:          item.Ncm,
			Unit:         item.Unit,
			SalePrice:    price,
			CostPrice:    price,
			CurrentStock: qty,
			MinStock:     DefaultMinStock,
			Category:     CategoryImported,
			Supplier:     inv.Supplier.Name,
		})
		if err != nil {
			return nil, nil, persistence("create product", err)
		}
		isNew = true
	default:
		return nil, &ItemError{Index: index, Code: item.Code, Name: item.Name, Err: ErrProductNotFound}, nil
	}

	if err := ledger.AppendMovement(ctx, NewMovement{
		TenantId:        tenantId,
		ProductId:       product.ID,
		Type:            MovementTypeInbound,
		Quantity:        qty,
		SourceReference: SourceReference(inv),
		ReferenceType:   ReferenceTypeNFe,
		ReferenceKey:    inv.Key,
		OccurredAt:      inv.IssueDate,
		UserId:          userId,
	}); err != nil {
		return nil, nil, persistence("append movement", err)
	}

	return &ImportedProduct{Id: product.ID, Name: item.Name, Quantity: qty, IsNew: isNew}, nil, nil
}

func findProduct(ctx context.Context, catalog CatalogPort, tenantId string, item nfe.Item) (*Product, error) {
	if item.Code != "" {
		p, err := catalog.FindProductBySku(ctx, tenantId, item.Code)
		if err != nil {
			return nil, persistence("find product by sku", err)
		}
		if p != nil {
			return p, nil
		}
	}
	if item.Name == "" {
		return nil, nil
	}
	p, err := catalog.FindProductByName(ctx, tenantId, item.Name)
	if err != nil {
		return nil, persistence("find product by name", err)
	}
	return p, nil
}

// SourceReference is the ledger text that embeds the invoice key; duplicate
// detection matches on the key fragment, so the key must appear verbatim.
func SourceReference(inv *nfe.Invoice) string {
	return fmt.Sprintf("NF-e %s import - key: %s - supplier: %s", inv.Number, inv.Key, inv.Supplier.Name)
}

// StockQuantity converts a document quantity into whole stock units.
// Fractional quantities are rejected rather than truncated, and so is anything
// the int stock column cannot hold.
func StockQuantity(q decimal.Decimal) (int, error) {
	if !q.IsPositive() || q.GreaterThan(maxStockQuantity) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidQuantity, q.String())
	}
	if !q.Equal(q.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", ErrFractionalQuantity, q.String())
	}
	return int(q.IntPart()), nil
}

// ToCents rounds a unit price to minor currency units (half away from zero).
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
