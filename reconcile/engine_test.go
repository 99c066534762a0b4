package reconcile

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cellsync/fiscal_backend/nfe"
	"github.com/cellsync/fiscal_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTenant = "tenant-a"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func tenantCtx(tenantId string) context.Context {
	ctx := utils.SetTenantIdInContext(context.Background(), tenantId)
	return utils.SetUserIdInContext(ctx, 7)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func item(code, name, qty, price string) nfe.Item {
	q, p := dec(qty), dec(price)
	return nfe.Item{Code: code, Name: name, Quantity: q, UnitPrice: p, LineTotal: q.Mul(p), Unit: "UN"}
}

func invoice(key string, items ...nfe.Item) *nfe.Invoice {
	inv := &nfe.Invoice{
		Key:       key,
		Number:    "1234",
		Series:    "1",
		Version:   "4.00",
		IssueDate: time.Date(2025, 12, 2, 13, 30, 0, 0, time.UTC),
		Supplier:  nfe.Supplier{TaxId: "12345678000190", Name: "Distribuidora Mobile LTDA"},
		Items:     items,
	}
	inv.Totals.GrandTotal = inv.ItemsTotal()
	return inv
}

func stockOf(t *testing.T, s *MemoryStore, tenantId, sku string) int {
	t.Helper()
	for _, p := range s.Products(tenantId) {
		if p.Sku == sku {
			return p.CurrentStock
		}
	}
	t.Fatalf("sku %s not in catalog", sku)
	return 0
}

var createOpts = Options{CreateNewProducts: true}

func TestReconcile_CreatesProductsAndMovements(t *testing.T) {
	store := NewMemoryStore()
	eng := NewEngine(store, quietLogger())
	inv := invoice("KEY-1", item("A1", "Cabo USB-C", "3", "10.50"), item("B2", "Capinha", "2", "300"))

	res, err := eng.Reconcile(tenantCtx(testTenant), inv, createOpts)
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalItems)
	require.Len(t, res.ImportedProducts, 2)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.Totals.NewCount)
	assert.Equal(t, 0, res.Totals.UpdatedCount)
	assert.True(t, res.Totals.TotalValue.Equal(dec("631.50")))

	products := store.Products(testTenant)
	require.Len(t, products, 2)
	assert.Equal(t, int64(1050), products[0].SalePrice)
	assert.Equal(t, int64(1050), products[0].CostPrice)
	assert.Equal(t, 3, products[0].CurrentStock)

	movements := store.Movements(testTenant)
	require.Len(t, movements, 2)
	for _, m := range movements {
		assert.Equal(t, MovementTypeInbound, m.Type)
		assert.Equal(t, "KEY-1", m.ReferenceKey)
		assert.Contains(t, m.SourceReference, "KEY-1")
		assert.Equal(t, 7, m.UserId)
		assert.Equal(t, inv.IssueDate, m.OccurredAt)
	}
	assert.Equal(t, "NF-e 1234 import - key: KEY-1 - supplier: Distribuidora Mobile LTDA", movements[0].SourceReference)
}

func TestReconcile_SecondImportIsDuplicateAndChangesNothing(t *testing.T) {
	store := NewMemoryStore()
	eng := NewEngine(store, quietLogger())
	ctx := tenantCtx(testTenant)
	inv := invoice("KEY-DUP", item("A1", "Cabo", "4", "1"))

	_, err := eng.Reconcile(ctx, inv, createOpts)
	require.NoError(t, err)
	stock := stockOf(t, store, testTenant, "A1")
	movements := len(store.Movements(testTenant))

	res, err := eng.Reconcile(ctx, inv, createOpts)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrDuplicateImport)
	assert.Equal(t, stock, stockOf(t, store, testTenant, "A1"))
	assert.Len(t, store.Movements(testTenant), movements)
}

func TestReconcile_DuplicateIsScopedPerTenant(t *testing.T) {
	store := NewMemoryStore()
	eng := NewEngine(store, quietLogger())
	inv := invoice("KEY-SHARED", item("A1", "Cabo", "1", "1"))

	_, err := eng.Reconcile(tenantCtx("tenant-a"), inv, createOpts)
	require.NoError(t, err)
	_, err = eng.Reconcile(tenantCtx("tenant-b"), inv, createOpts)
	require.NoError(t, err)
	assert.Len(t, store.Movements("tenant-b"), 1)
}

func TestReconcile_StockAccumulatesAcrossInvoices(t *testing.T) {
	store := NewMemoryStore()
	eng := NewEngine(store, quietLogger())
	ctx := tenantCtx(testTenant)

	_, err := eng.Reconcile(ctx, invoice("KEY-M1", item("A1", "Cabo", "3", "10")), createOpts)
	require.NoError(t, err)
	res, err := eng.Reconcile(ctx, invoice("KEY-M2", item("A1", "Cabo", "5", "10")), createOpts)
	require.NoError(t, err)

	require.Len(t, res.ImportedProducts, 1)
	assert.False(t, res.ImportedProducts[0].IsNew)
	assert.Equal(t, 1, res.Totals.UpdatedCount)
	assert.Len(t, store.Products(testTenant), 1)
	assert.Equal(t, 8, stockOf(t, store, testTenant, "A1"))
	assert.Len(t, store.Movements(testTenant), 2)
}

func TestReconcile_UnmatchedItemDoesNotAbortInvoice(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(testTenant,
		Product{Sku: "A1", Name: "Cabo", CurrentStock: 10, SalePrice: 100, CostPrice: 80},
		Product{Sku: "C3", Name: "Fonte", CurrentStock: 1, SalePrice: 5000, CostPrice: 4000},
	)
	eng := NewEngine(store, quietLogger())
	inv := invoice("KEY-PARTIAL",
		item("A1", "Cabo", "5", "1.20"),
		item("ZZ", "Desconhecido", "1", "9"),
		item("C3", "Fonte", "2", "45"),
	)

	res, err := eng.Reconcile(tenantCtx(testTenant), inv, Options{})
	require.NoError(t, err)

	require.Len(t, res.ImportedProducts, 2)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.ErrorIs(t, res.Errors[0], ErrProductNotFound)
	assert.Contains(t, res.ErrorMessages()[0], "item 2 (ZZ) Desconhecido")
	assert.Equal(t, 2, res.Totals.UpdatedCount)

	assert.Equal(t, 15, stockOf(t, store, testTenant, "A1"))
	assert.Equal(t, 3, stockOf(t, store, testTenant, "C3"))
	assert.Len(t, store.Products(testTenant), 2)
	assert.Len(t, store.Movements(testTenant), 2)
}

func TestReconcile_MatchesByNameIgnoringCase(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(testTenant, Product{Sku: "OTHER", Name: "Capinha Silicone", CurrentStock: 2})
	eng := NewEngine(store, quietLogger())

	res, err := eng.Reconcile(tenantCtx(testTenant), invoice("KEY-NAME", item("CAP-SIL-01", "CAPINHA SILICONE", "3", "3")), createOpts)
	require.NoError(t, err)

	require.Len(t, res.ImportedProducts, 1)
	assert.False(t, res.ImportedProducts[0].IsNew)
	assert.Equal(t, 5, stockOf(t, store, testTenant, "OTHER"))
	assert.Len(t, store.Products(testTenant), 1)
}

func TestReconcile_UpdatePricesOnlyWhenAsked(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(testTenant, Product{Sku: "A1", Name: "Cabo", CurrentStock: 1, SalePrice: 999, CostPrice: 500})
	eng := NewEngine(store, quietLogger())
	ctx := tenantCtx(testTenant)

	_, err := eng.Reconcile(ctx, invoice("KEY-P1", item("A1", "Cabo", "1", "12.345")), Options{})
	require.NoError(t, err)
	p := store.Products(testTenant)[0]
	assert.Equal(t, int64(999), p.SalePrice)
	assert.Equal(t, int64(500), p.CostPrice)

	_, err = eng.Reconcile(ctx, invoice("KEY-P2", item("A1", "Cabo", "1", "12.345")), Options{UpdatePrices: true})
	require.NoError(t, err)
	p = store.Products(testTenant)[0]
	assert.Equal(t, int64(1235), p.SalePrice)
	assert.Equal(t, int64(1235), p.CostPrice)
	assert.Equal(t, 3, p.CurrentStock)
}

func TestReconcile_RejectsFractionalAndNonPositiveQuantities(t *testing.T) {
	store := NewMemoryStore()
	eng := NewEngine(store, quietLogger())
	inv := invoice("KEY-FRAC",
		item("A1", "Cabo", "2.5", "1"),
		item("B2", "Fonte", "0", "1"),
		item("C3", "Pelicula", "4.000", "1"),
	)

	res, err := eng.Reconcile(tenantCtx(testTenant), inv, createOpts)
	require.NoError(t, err)

	require.Len(t, res.Errors, 2)
	assert.ErrorIs(t, res.Errors[0], ErrFractionalQuantity)
	assert.ErrorIs(t, res.Errors[1], ErrInvalidQuantity)
	require.Len(t, res.ImportedProducts, 1)
	assert.Equal(t, 4, res.ImportedProducts[0].Quantity)
	assert.Len(t, store.Products(testTenant), 1)
}

func TestReconcile_NothingImportedLeavesKeyUnclaimed(t *testing.T) {
	store := NewMemoryStore()
	eng := NewEngine(store, quietLogger())
	ctx := tenantCtx(testTenant)
	inv := invoice("KEY-NONE", item("A1", "Cabo", "1", "1"))

	res, err := eng.Reconcile(ctx, inv, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.ImportedProducts)
	require.Len(t, res.Errors, 1)
	assert.Empty(t, store.Movements(testTenant))

	res, err = eng.Reconcile(ctx, inv, createOpts)
	require.NoError(t, err)
	assert.Len(t, res.ImportedProducts, 1)
}

func TestReconcile_TotalsMismatchWarns(t *testing.T) {
	eng := NewEngine(NewMemoryStore(), quietLogger())
	inv := invoice("KEY-WARN", item("A1", "Cabo", "1", "10"))
	inv.Totals.GrandTotal = dec("10.50")

	res, err := eng.Reconcile(tenantCtx(testTenant), inv, createOpts)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "0.50")

	inv = invoice("KEY-NOWARN", item("A1", "Cabo", "1", "10"))
	inv.Totals.GrandTotal = dec("10.04")
	res, err = eng.Reconcile(tenantCtx(testTenant), inv, createOpts)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestReconcile_MissingTenant(t *testing.T) {
	eng := NewEngine(NewMemoryStore(), quietLogger())
	_, err := eng.Reconcile(context.Background(), invoice("K", item("A", "a", "1", "1")), createOpts)
	assert.ErrorIs(t, err, ErrMissingTenant)
}

// failingStore forwards to a MemoryStore and fails AppendMovement on the nth call.
type failingStore struct {
	*MemoryStore
	failOn int
	calls  int
}

type failingLedger struct {
	LedgerPort
	s *failingStore
}

func (l failingLedger) AppendMovement(ctx context.Context, m NewMovement) error {
	l.s.calls++
	if l.s.calls == l.s.failOn {
		return errors.New("connection reset")
	}
	return l.LedgerPort.AppendMovement(ctx, m)
}

func (s *failingStore) WithinImport(ctx context.Context, tenantId string, fn func(ctx context.Context, catalog CatalogPort, ledger LedgerPort) error) error {
	return s.MemoryStore.WithinImport(ctx, tenantId, func(ctx context.Context, catalog CatalogPort, ledger LedgerPort) error {
		return fn(ctx, catalog, failingLedger{LedgerPort: ledger, s: s})
	})
}

func TestReconcile_PersistenceFailureRollsBackEverything(t *testing.T) {
	mem := NewMemoryStore()
	mem.Seed(testTenant, Product{Sku: "A1", Name: "Cabo", CurrentStock: 10})
	store := &failingStore{MemoryStore: mem, failOn: 2}
	eng := NewEngine(store, quietLogger())
	inv := invoice("KEY-FAIL", item("A1", "Cabo", "5", "1"), item("B2", "Fonte", "1", "1"))

	res, err := eng.Reconcile(tenantCtx(testTenant), inv, createOpts)
	assert.Nil(t, res)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "append movement", pe.Op)

	assert.Equal(t, 10, stockOf(t, mem, testTenant, "A1"))
	assert.Len(t, mem.Products(testTenant), 1)
	assert.Empty(t, mem.Movements(testTenant))

	// key stays importable after the failure
	store.failOn = 0
	_, err = eng.Reconcile(tenantCtx(testTenant), inv, createOpts)
	require.NoError(t, err)
	assert.Equal(t, 15, stockOf(t, mem, testTenant, "A1"))
}

func TestReconcile_ConcurrentIdenticalImports(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(testTenant, Product{Sku: "A1", Name: "Cabo", CurrentStock: 0})
	eng := NewEngine(store, quietLogger())
	inv := invoice("KEY-RACE", item("A1", "Cabo", "3", "1"))

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Reconcile(tenantCtx(testTenant), inv, createOpts)
		}(i)
	}
	wg.Wait()

	ok, dup := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateImport):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, dup)
	assert.Equal(t, 3, stockOf(t, store, testTenant, "A1"))
}

type recordingLocker struct {
	mu       sync.Mutex
	keys     []string
	released int
	err      error
}

func (l *recordingLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

func TestReconcile_UsesLockerAndToleratesLockFailure(t *testing.T) {
	locker := &recordingLocker{}
	eng := NewEngine(NewMemoryStore(), quietLogger(), WithLocker(locker))

	_, err := eng.Reconcile(tenantCtx(testTenant), invoice("KEY-L", item("A1", "Cabo", "1", "1")), createOpts)
	require.NoError(t, err)
	assert.Equal(t, []string{"nfe-import:tenant-a:KEY-L"}, locker.keys)
	assert.Equal(t, 1, locker.released)

	locker.err = errors.New("redis down")
	_, err = eng.Reconcile(tenantCtx(testTenant), invoice("KEY-L2", item("A1", "Cabo", "1", "1")), createOpts)
	assert.NoError(t, err)
}

func TestStockQuantity(t *testing.T) {
	n, err := StockQuantity(dec("12.0000"))
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = StockQuantity(dec("0.5"))
	assert.ErrorIs(t, err, ErrFractionalQuantity)
	_, err = StockQuantity(dec("-1"))
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	// 2^64+1 must not wrap around to 1
	_, err = StockQuantity(dec("18446744073709551617"))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = StockQuantity(dec("2147483648"))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	n, err = StockQuantity(dec("2147483647"))
	require.NoError(t, err)
	assert.Equal(t, 2147483647, n)
}

func TestToCents(t *testing.T) {
	assert.Equal(t, int64(760000), ToCents(dec("7600.00")))
	assert.Equal(t, int64(1235), ToCents(dec("12.345")))
	assert.Equal(t, int64(1234), ToCents(dec("12.3449")))
	assert.Equal(t, int64(30000), ToCents(dec("300.0000000000")))
}

type fakeArchiver struct {
	keys []string
	err  error
}

func (a *fakeArchiver) Archive(_ context.Context, tenantId, key string, raw []byte) error {
	a.keys = append(a.keys, tenantId+"/"+key)
	return a.err
}

type fakePublisher struct {
	events []ImportedEvent
	err    error
}

func (p *fakePublisher) PublishImported(_ context.Context, ev ImportedEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	raw, err := os.ReadFile("../nfe/testdata/" + name)
	require.NoError(t, err)
	return raw
}

func TestImportXML_ArchivesAndPublishesAfterCommit(t *testing.T) {
	store := NewMemoryStore()
	archiver := &fakeArchiver{}
	publisher := &fakePublisher{err: errors.New("topic not found")}
	eng := NewEngine(store, quietLogger(), WithArchiver(archiver), WithPublisher(publisher))
	ctx := utils.SetCorrelationIdInContext(tenantCtx(testTenant), "corr-1")

	res, err := eng.ImportXML(ctx, readFixture(t, "nfe_two_items.xml"), createOpts)
	require.NoError(t, err)

	const key = "35251212345678000190550010000012341000012345"
	assert.Equal(t, key, res.InvoiceKey)
	assert.Equal(t, "1234", res.InvoiceNumber)
	assert.Equal(t, 2, res.Totals.NewCount)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, []string{testTenant + "/" + key}, archiver.keys)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, "corr-1", publisher.events[0].CorrelationId)
	assert.Equal(t, 2, publisher.events[0].NewCount)
	assert.Equal(t, 2, stockOf(t, store, testTenant, "CAP-SIL-01"))
}

func TestImportXML_NoSideEffectsWhenNothingImported(t *testing.T) {
	archiver := &fakeArchiver{}
	publisher := &fakePublisher{}
	eng := NewEngine(NewMemoryStore(), quietLogger(), WithArchiver(archiver), WithPublisher(publisher))

	res, err := eng.ImportXML(tenantCtx(testTenant), readFixture(t, "nfe_two_items.xml"), Options{})
	require.NoError(t, err)
	assert.Len(t, res.Errors, 2)
	assert.Empty(t, archiver.keys)
	assert.Empty(t, publisher.events)
}

func TestImportXML_KeylessDocumentIsMalformedNotDuplicate(t *testing.T) {
	store := NewMemoryStore()
	eng := NewEngine(store, quietLogger())
	raw := readFixture(t, "nfe_two_items.xml")

	_, err := eng.ImportXML(tenantCtx(testTenant), raw, createOpts)
	require.NoError(t, err)

	keyless := strings.Replace(string(raw), `Id="NFe35251212345678000190550010000012341000012345"`, `Id="NFe"`, 1)
	res, err := eng.ImportXML(tenantCtx(testTenant), []byte(keyless), createOpts)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, nfe.ErrMalformedDocument)
	assert.NotErrorIs(t, err, ErrDuplicateImport)

	// a fresh tenant must not claim an empty key either
	_, err = eng.ImportXML(tenantCtx("tenant-b"), []byte(keyless), createOpts)
	assert.ErrorIs(t, err, nfe.ErrMalformedDocument)
	assert.Empty(t, store.Movements("tenant-b"))
}

func TestReconcile_RejectsEmptyKey(t *testing.T) {
	store := NewMemoryStore()
	eng := NewEngine(store, quietLogger())
	_, err := eng.Reconcile(tenantCtx(testTenant), invoice("", item("A1", "Cabo", "1", "10.00")), createOpts)
	assert.ErrorIs(t, err, nfe.ErrMalformedDocument)
	assert.Empty(t, store.Movements(testTenant))
}

func TestImportXML_ParseErrorsPassThrough(t *testing.T) {
	eng := NewEngine(NewMemoryStore(), quietLogger())
	_, err := eng.ImportXML(tenantCtx(testTenant), []byte("<NFe><infNFe Id=\"NFe1\"></infNFe></NFe>"), createOpts)
	assert.ErrorIs(t, err, nfe.ErrMalformedDocument)
}
