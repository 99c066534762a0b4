package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cellsync/fiscal_backend/config"
	"github.com/cellsync/fiscal_backend/models"
	"github.com/cellsync/fiscal_backend/reconcile"
	"github.com/cellsync/fiscal_backend/utils"
	"github.com/google/uuid"
)

func main() {
	defaultCreate, defaultUpdate := config.ImportDefaults()

	tenantID := flag.String("tenant", "", "Required: tenant id")
	dir := flag.String("dir", "", "Required: directory with NF-e *.xml files")
	userID := flag.Int("user-id", 0, "Optional: user id recorded on stock movements")
	dryRun := flag.Bool("dry-run", false, "Reconcile against an in-memory copy of the tenant catalog; nothing is written")
	reportPath := flag.String("report", "", "Optional: write an xlsx batch report to this path")
	createNew := flag.Bool("create", defaultCreate, "Create products for unmatched items")
	updatePrices := flag.Bool("update-prices", defaultUpdate, "Overwrite prices of matched products")
	flag.Parse()

	if strings.TrimSpace(*tenantID) == "" || strings.TrimSpace(*dir) == "" {
		fmt.Fprintln(os.Stderr, "--tenant and --dir are required")
		os.Exit(1)
	}

	paths, err := filepath.Glob(filepath.Join(*dir, "*.xml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "list files: %v\n", err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "no *.xml files in %s\n", *dir)
		os.Exit(1)
	}
	files := make([]reconcile.File, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", p, err)
			os.Exit(1)
		}
		files = append(files, reconcile.File{Label: filepath.Base(p), Content: content})
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	ctx := utils.SetTenantIdInContext(context.Background(), *tenantID)
	ctx = utils.SetUserIdInContext(ctx, *userID)
	ctx = utils.SetCorrelationIdInContext(ctx, uuid.NewString())

	var store reconcile.Store = models.NewCatalogStore(db)
	if *dryRun {
		products, err := models.LoadCatalogSnapshot(ctx, db, *tenantID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
			os.Exit(1)
		}
		mem := reconcile.NewMemoryStore()
		mem.Seed(*tenantID, products...)
		store = mem
		fmt.Printf("DRY RUN: %d catalog products loaded; invoices already in the ledger are not detected\n", len(products))
	}

	engine := reconcile.NewEngine(store, logger)
	results, err := engine.ReconcileBatch(ctx, files, reconcile.Options{
		CreateNewProducts: *createNew,
		UpdatePrices:      *updatePrices,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "batch aborted after %d files: %v\n", len(results), err)
	}

	for _, r := range results {
		switch {
		case r.Success:
			fmt.Printf("OK    %s nf=%s key=%s products=%d\n", r.Label, r.InvoiceNumber, r.InvoiceKey, r.ProductsImported)
			for _, ie := range r.ItemErrors {
				fmt.Printf("      item error: %s\n", ie)
			}
		case r.Duplicate:
			fmt.Printf("DUP   %s key=%s\n", r.Label, r.InvoiceKey)
		default:
			fmt.Printf("FAIL  %s %s\n", r.Label, r.Error)
		}
	}
	ok, failed := reconcile.Counts(results)
	fmt.Printf("%d imported, %d failed\n", ok, failed)

	if *reportPath != "" {
		f, ferr := os.Create(*reportPath)
		if ferr != nil {
			fmt.Fprintf(os.Stderr, "create report: %v\n", ferr)
			os.Exit(1)
		}
		if werr := reconcile.WriteBatchReport(f, results); werr != nil {
			_ = f.Close()
			fmt.Fprintf(os.Stderr, "write report: %v\n", werr)
			os.Exit(1)
		}
		if cerr := f.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "close report: %v\n", cerr)
			os.Exit(1)
		}
		fmt.Printf("report written to %s\n", *reportPath)
	}

	if err != nil {
		os.Exit(1)
	}
}
