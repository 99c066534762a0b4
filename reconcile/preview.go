package reconcile

import (
	"context"

	"github.com/cellsync/fiscal_backend/nfe"
	"github.com/cellsync/fiscal_backend/utils"
	"github.com/shopspring/decimal"
)

type PreviewItem struct {
	nfe.Item
	Exists        bool   `json:"exists"`
	ExistingId    int    `json:"existing_id,omitempty"`
	ExistingName  string `json:"existing_name,omitempty"`
	ExistingPrice int64  `json:"existing_price"`
}

type PreviewSummary struct {
	TotalProducts    int             `json:"total_products"`
	NewProducts      int             `json:"new_products"`
	ExistingProducts int             `json:"existing_products"`
	TotalValue       decimal.Decimal `json:"total_value"`
}

type Preview struct {
	Invoice     *nfe.Invoice   `json:"nfe"`
	Items       []PreviewItem  `json:"products"`
	IsDuplicate bool           `json:"is_duplicate"`
	Warnings    []string       `json:"warnings"`
	Summary     PreviewSummary `json:"summary"`
}

// Preview parses a document and reports how each item would match the catalog,
// without writing anything.
func (e *Engine) Preview(ctx context.Context, raw []byte) (*Preview, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok {
		return nil, ErrMissingTenant
	}
	inv, err := nfe.Parse(raw)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "reconcile.Preview")
	defer span.End()

	out := &Preview{
		Invoice:  inv,
		Items:    make([]PreviewItem, 0, len(inv.Items)),
		Warnings: newResult(inv).Warnings,
		Summary: PreviewSummary{
			TotalProducts: len(inv.Items),
			TotalValue:    inv.Totals.GrandTotal,
		},
	}

	err = e.store.View(ctx, tenantId, func(ctx context.Context, catalog CatalogPort, ledger LedgerPort) error {
		existing, err := ledger.FindMovementsByInvoiceKeyFragment(ctx, tenantId, inv.Key)
		if err != nil {
			return persistence("find movements by invoice key", err)
		}
		out.IsDuplicate = len(existing) > 0

		for _, item := range inv.Items {
			p, err := findProduct(ctx, catalog, tenantId, item)
			if err != nil {
				return err
			}
			pi := PreviewItem{Item: item}
			if p != nil {
				pi.Exists = true
				pi.ExistingId = p.ID
				pi.ExistingName = p.Name
				pi.ExistingPrice = p.SalePrice
				out.Summary.ExistingProducts++
			} else {
				out.Summary.NewProducts++
			}
			out.Items = append(out.Items, pi)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
