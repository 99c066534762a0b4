package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var errUnknownProduct = errors.New("unknown product id")

// MemoryStore is an in-process Store. It backs dry runs against a catalog snapshot
// and the engine tests. Imports are serialized per tenant and rolled back by
// restoring a copy of the tenant state taken before fn runs. Ids are never
// handed out twice; a rolled back import leaves a gap.
type MemoryStore struct {
	mu      sync.Mutex
	tenants map[string]*tenantLock
	state   map[string]*memTenant
	nextId  int
}

type tenantLock struct{ sync.Mutex }

type memTenant struct {
	products  []Product
	movements []Movement
	claims    map[string]InvoiceClaim
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: map[string]*tenantLock{},
		state:   map[string]*memTenant{},
	}
}

// Seed adds products to a tenant catalog, assigning ids where missing.
func (s *MemoryStore) Seed(tenantId string, products ...Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(tenantId)
	for _, p := range products {
		if p.ID == 0 {
			s.nextId++
			p.ID = s.nextId
		} else if p.ID > s.nextId {
			s.nextId = p.ID
		}
		t.products = append(t.products, p)
	}
}

// Products returns a copy of the tenant catalog.
func (s *MemoryStore) Products(tenantId string) []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Product(nil), s.tenant(tenantId).products...)
}

// Movements returns a copy of the tenant ledger.
func (s *MemoryStore) Movements(tenantId string) []Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Movement(nil), s.tenant(tenantId).movements...)
}

func (s *MemoryStore) View(ctx context.Context, tenantId string, fn func(ctx context.Context, catalog CatalogPort, ledger LedgerPort) error) error {
	tx := &memTx{store: s, tenantId: tenantId}
	return fn(ctx, tx, tx)
}

func (s *MemoryStore) WithinImport(ctx context.Context, tenantId string, fn func(ctx context.Context, catalog CatalogPort, ledger LedgerPort) error) error {
	lock := s.lockFor(tenantId)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	backup := s.tenant(tenantId).clone()
	s.mu.Unlock()

	tx := &memTx{store: s, tenantId: tenantId}
	if err := fn(ctx, tx, tx); err != nil {
		s.mu.Lock()
		s.state[tenantId] = backup
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) lockFor(tenantId string) *tenantLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.tenants[tenantId]
	if !ok {
		l = &tenantLock{}
		s.tenants[tenantId] = l
	}
	return l
}

// caller holds s.mu
func (s *MemoryStore) tenant(tenantId string) *memTenant {
	t, ok := s.state[tenantId]
	if !ok {
		t = &memTenant{claims: map[string]InvoiceClaim{}}
		s.state[tenantId] = t
	}
	return t
}

func (t *memTenant) clone() *memTenant {
	c := &memTenant{
		products:  append([]Product(nil), t.products...),
		movements: append([]Movement(nil), t.movements...),
		claims:    make(map[string]InvoiceClaim, len(t.claims)),
	}
	for k, v := range t.claims {
		c.claims[k] = v
	}
	return c
}

type memTx struct {
	store    *MemoryStore
	tenantId string
}

func (tx *memTx) FindProductBySku(_ context.Context, tenantId, sku string) (*Product, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, p := range tx.store.tenant(tenantId).products {
		if p.Sku == sku {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (tx *memTx) FindProductByName(_ context.Context, tenantId, name string) (*Product, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, p := range tx.store.tenant(tenantId).products {
		if strings.EqualFold(p.Name, name) {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (tx *memTx) CreateProduct(_ context.Context, tenantId string, np NewProduct) (*Product, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	tx.store.nextId++
	p := Product{
		ID:           tx.store.nextId,
		Sku:          np.Sku,
		Name:         np.Name,
		CurrentStock: np.CurrentStock,
		SalePrice:    np.SalePrice,
		CostPrice:    np.CostPrice,
	}
	t := tx.store.tenant(tenantId)
	t.products = append(t.products, p)
	return &p, nil
}

func (tx *memTx) IncrementStock(_ context.Context, productId int, delta int) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	t := tx.store.tenant(tx.tenantId)
	for i := range t.products {
		if t.products[i].ID == productId {
			t.products[i].CurrentStock += delta
			return nil
		}
	}
	return errUnknownProduct
}

func (tx *memTx) UpdatePrices(_ context.Context, productId int, sale, cost int64) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	t := tx.store.tenant(tx.tenantId)
	for i := range t.products {
		if t.products[i].ID == productId {
			t.products[i].SalePrice = sale
			t.products[i].CostPrice = cost
			return nil
		}
	}
	return errUnknownProduct
}

func (tx *memTx) FindMovementsByInvoiceKeyFragment(_ context.Context, tenantId, key string) ([]Movement, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	var out []Movement
	for _, m := range tx.store.tenant(tenantId).movements {
		if m.ReferenceKey == key || strings.Contains(m.SourceReference, key) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (tx *memTx) AppendMovement(_ context.Context, nm NewMovement) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	t := tx.store.tenant(nm.TenantId)
	t.movements = append(t.movements, Movement{
		ID:              len(t.movements) + 1,
		ProductId:       nm.ProductId,
		Type:            nm.Type,
		Quantity:        nm.Quantity,
		SourceReference: nm.SourceReference,
		ReferenceKey:    nm.ReferenceKey,
		OccurredAt:      nm.OccurredAt,
		UserId:          nm.UserId,
	})
	return nil
}

func (tx *memTx) ClaimInvoiceKey(_ context.Context, tenantId string, claim InvoiceClaim) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	t := tx.store.tenant(tenantId)
	if _, ok := t.claims[claim.InvoiceKey]; ok {
		return ErrDuplicateImport
	}
	t.claims[claim.InvoiceKey] = claim
	return nil
}
