package reconcile

import (
	"context"

	"github.com/cellsync/fiscal_backend/nfe"
	"github.com/cellsync/fiscal_backend/utils"
	"github.com/sirupsen/logrus"
)

// ImportXML parses and reconciles one raw document, then archives it and announces
// the import. Archive and publish run after commit and only log on failure.
func (e *Engine) ImportXML(ctx context.Context, raw []byte, opts Options) (*Result, error) {
	inv, err := nfe.Parse(raw)
	if err != nil {
		return nil, err
	}
	result, err := e.Reconcile(ctx, inv, opts)
	if err != nil {
		return nil, err
	}
	if len(result.ImportedProducts) == 0 {
		return result, nil
	}

	tenantId, _ := utils.GetTenantIdFromContext(ctx)
	fields := logrus.Fields{
		"module":    moduleName,
		"tenant_id": tenantId,
		"nfe_key":   inv.Key,
	}

	if e.archiver != nil {
		if err := e.archiver.Archive(ctx, tenantId, inv.Key, raw); err != nil {
			e.logger.WithFields(fields).Warn("failed to archive nf-e xml: " + err.Error())
		}
	}
	if e.publisher != nil {
		correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
		ev := ImportedEvent{
			TenantId:      tenantId,
			InvoiceKey:    inv.Key,
			InvoiceNumber: inv.Number,
			SupplierName:  inv.Supplier.Name,
			NewCount:      result.Totals.NewCount,
			UpdatedCount:  result.Totals.UpdatedCount,
			ImportedAt:    e.now().UTC(),
			CorrelationId: correlationId,
		}
		if err := e.publisher.PublishImported(ctx, ev); err != nil {
			e.logger.WithFields(fields).Warn("failed to publish nf-e imported event: " + err.Error())
		}
	}

	e.logger.WithFields(logrus.Fields{
		"module":    moduleName,
		"tenant_id": tenantId,
		"nfe_key":   inv.Key,
		"new":       result.Totals.NewCount,
		"updated":   result.Totals.UpdatedCount,
		"errors":    len(result.Errors),
	}).Info("nf-e imported")
	return result, nil
}
