// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/raqibtech/converse/internal/domain"
)

// Typed errors surfaced by the order transaction. Callers map these to
// user-safe replies; the raw errors never cross the API boundary.
var (
	// ErrInsufficientStock means at least one requested line could not
	// be covered by current inventory. The transaction rolled back.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrUnknownProduct means an order line referenced a product id not
	// present in the catalog. The transaction rolled back.
	ErrUnknownProduct = errors.New("unknown product")
)

// Repository defines persistence for the catalog, customers, orders and
// the TTL key-value cache backing conversation memory.
type Repository interface {
	// GetProduct retrieves a product by id. Returns (nil, nil) on miss.
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// SearchProducts returns products whose name, category or brand
	// matches any of the given tokens.
	SearchProducts(ctx context.Context, tokens []string, limit int) ([]*domain.Product, error)

	// UpsertProduct creates or updates a catalog record.
	UpsertProduct(ctx context.Context, p *domain.Product) error

	// CountProducts reports catalog size (used to decide whether the
	// seed file should be loaded).
	CountProducts(ctx context.Context) (int64, error)

	// GetCustomer retrieves a customer by id. Returns (nil, nil) on miss.
	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)

	// UpsertCustomer creates or updates a customer record.
	UpsertCustomer(ctx context.Context, c *domain.Customer) error

	// CreateOrder commits an order atomically: idempotency-key check,
	// stock decrement, order insert and loyalty-tier recompute happen in
	// one transaction that either fully applies or fully rolls back.
	CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error)

	// GetBlob reads a cache value. Returns (nil, nil) on miss or expiry.
	GetBlob(ctx context.Context, key string) ([]byte, error)

	// PutBlob writes a cache value with a TTL.
	PutBlob(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeleteBlob removes a cache value.
	DeleteBlob(ctx context.Context, key string) error

	// CleanupExpiredBlobs removes cache entries past their TTL and
	// returns how many were deleted.
	CleanupExpiredBlobs(ctx context.Context) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
