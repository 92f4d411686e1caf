package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raqibtech/converse/internal/domain"
)

// MemoryStore is an in-memory Repository used by tests and local
// development. It applies the same order-commit semantics as the SQLite
// store: idempotency replay, conditional stock decrement and in-commit
// loyalty recompute.
type MemoryStore struct {
	mu        sync.Mutex
	products  map[string]*domain.Product
	customers map[string]*domain.Customer
	orders    map[string]*domain.OrderResult // keyed by idempotency key
	blobs     map[string]memBlob
}

type memBlob struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		products:  make(map[string]*domain.Product),
		customers: make(map[string]*domain.Customer),
		orders:    make(map[string]*domain.OrderResult),
		blobs:     make(map[string]memBlob),
	}
}

func (m *MemoryStore) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) SearchProducts(_ context.Context, tokens []string, limit int) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}

	var out []*domain.Product
	for _, p := range m.products {
		haystack := strings.ToLower(p.Name + " " + p.Category + " " + p.Brand)
		for _, tok := range tokens {
			if tok != "" && strings.Contains(haystack, strings.ToLower(tok)) {
				cp := *p
				out = append(out, &cp)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) UpsertProduct(_ context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.products[p.ProductID] = &cp
	return nil
}

func (m *MemoryStore) CountProducts(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.products)), nil
}

func (m *MemoryStore) GetCustomer(_ context.Context, customerID string) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[customerID]
	if !ok {
		return nil, nil
	}
	cp := *c
	if c.SavedAddress != nil {
		addr := *c.SavedAddress
		cp.SavedAddress = &addr
	}
	return &cp, nil
}

func (m *MemoryStore) UpsertCustomer(_ context.Context, c *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	if cp.Tier == "" {
		cp.Tier = domain.TierBronze
	}
	m.customers[c.CustomerID] = &cp
	return nil
}

func (m *MemoryStore) CreateOrder(_ context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("create order: no items")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if req.IdempotencyKey != "" {
		if prev, ok := m.orders[req.IdempotencyKey]; ok {
			cp := *prev
			cp.Replayed = true
			return &cp, nil
		}
	}

	// Validate every line before mutating anything so a failure leaves
	// stock untouched.
	var subtotal float64
	for _, item := range req.Items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		p, ok := m.products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, item.ProductID)
		}
		if p.StockQuantity < quantity {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientStock, item.ProductID)
		}
		subtotal += p.UnitPrice * float64(quantity)
	}

	tier := domain.TierBronze
	customer := m.customers[req.CustomerID]
	if customer != nil {
		tier = customer.Tier
	}

	tierDiscount := subtotal * domain.TierDiscountRate(tier)
	deliveryFee := deliveryFeeFor(req.DeliveryAddress.State, subtotal)
	total := subtotal - tierDiscount + deliveryFee

	for _, item := range req.Items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		m.products[item.ProductID].StockQuantity -= quantity
	}

	if customer != nil {
		customer.TotalSpent += total
		customer.Tier = domain.TierFor(customer.TotalSpent)
		addr := req.DeliveryAddress
		customer.SavedAddress = &addr
		customer.SavedPaymentMethod = req.PaymentMethod
		customer.UpdatedAt = time.Now().UTC()
	}

	result := &domain.OrderResult{
		OrderID:      "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10]),
		TotalAmount:  total,
		DeliveryFee:  deliveryFee,
		TierDiscount: tierDiscount,
	}
	if req.IdempotencyKey != "" {
		cp := *result
		m.orders[req.IdempotencyKey] = &cp
	}
	return result, nil
}

func (m *MemoryStore) GetBlob(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok || time.Now().After(b.expiresAt) {
		return nil, nil
	}
	out := make([]byte, len(b.value))
	copy(out, b.value)
	return out, nil
}

func (m *MemoryStore) PutBlob(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.blobs[key] = memBlob{value: cp, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryStore) DeleteBlob(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *MemoryStore) CleanupExpiredBlobs(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	now := time.Now()
	for key, b := range m.blobs {
		if now.After(b.expiresAt) {
			delete(m.blobs, key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
