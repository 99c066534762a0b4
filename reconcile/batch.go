package reconcile

import (
	"context"
	"errors"

	"github.com/cellsync/fiscal_backend/config"
	"github.com/cellsync/fiscal_backend/nfe"
	"github.com/cellsync/fiscal_backend/utils"
	"go.opentelemetry.io/otel/attribute"
)

const (
	msgInvalidDocument = "invalid XML or not an NF-e document"
	msgDuplicate       = "NF-e already imported"
)

type File struct {
	Label   string
	Content []byte
}

type FileResult struct {
	Label            string   `json:"filename"`
	Success          bool     `json:"success"`
	Duplicate        bool     `json:"duplicate,omitempty"`
	InvoiceKey       string   `json:"invoice_key,omitempty"`
	InvoiceNumber    string   `json:"invoice_number,omitempty"`
	Error            string   `json:"error,omitempty"`
	ProductsImported int      `json:"products_imported"`
	ItemErrors       []string `json:"item_errors,omitempty"`
}

// ReconcileBatch imports files one after another so two files can never both create
// the same unmatched SKU. A failing file is reported and the loop moves on; only an
// unreachable ledger during the duplicate pre-check aborts the batch.
func (e *Engine) ReconcileBatch(ctx context.Context, files []File, opts Options) ([]FileResult, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok {
		return nil, ErrMissingTenant
	}

	ctx, span := tracer.Start(ctx, "reconcile.ReconcileBatch")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantId), attribute.Int("nfe.files", len(files)))

	results := make([]FileResult, 0, len(files))
	for _, f := range files {
		res := FileResult{Label: f.Label}

		if !nfe.IsValidDocument(f.Content) {
			res.Error = msgInvalidDocument
			results = append(results, res)
			continue
		}

		if key, ok := nfe.ExtractKey(f.Content); ok {
			res.InvoiceKey = key
			dup, err := e.alreadyImported(ctx, tenantId, key)
			if err != nil {
				config.LogError(e.logger, moduleName, "ReconcileBatch", "duplicate pre-check", f.Label, err)
				return results, err
			}
			if dup {
				res.Duplicate = true
				res.Error = msgDuplicate
				results = append(results, res)
				continue
			}
		}

		out, err := e.ImportXML(ctx, f.Content, opts)
		switch {
		case errors.Is(err, ErrDuplicateImport):
			res.Duplicate = true
			res.Error = msgDuplicate
		case err != nil:
			res.Error = err.Error()
		default:
			res.Success = true
			res.InvoiceKey = out.InvoiceKey
			res.InvoiceNumber = out.InvoiceNumber
			res.ProductsImported = len(out.ImportedProducts)
			res.ItemErrors = out.ErrorMessages()
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) alreadyImported(ctx context.Context, tenantId, key string) (bool, error) {
	dup := false
	err := e.store.View(ctx, tenantId, func(ctx context.Context, _ CatalogPort, ledger LedgerPort) error {
		err := checkNotImported(ctx, ledger, tenantId, key)
		if errors.Is(err, ErrDuplicateImport) {
			dup = true
			return nil
		}
		return err
	})
	return dup, err
}

// Counts returns the (success, failure) split of a batch.
func Counts(results []FileResult) (int, int) {
	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	return ok, len(results) - ok
}
