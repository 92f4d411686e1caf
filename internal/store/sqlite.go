package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raqibtech/converse/internal/domain"
	"github.com/raqibtech/converse/internal/shared"
	_ "modernc.org/sqlite"
)

// blobWriteRetries is how many times a cache write is retried when the
// database is briefly locked by a concurrent writer.
const blobWriteRetries = 3

// Delivery fee schedule (NGN). Orders at or above the free-delivery
// threshold ship for nothing regardless of destination.
const (
	freeDeliveryThreshold = 100_000
	feeLagos              = 1_500
	feeFCT                = 2_000
	feeDefault            = 2_500
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	orderMu sync.Mutex // Serializes order commits to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS products (
		product_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		brand TEXT NOT NULL DEFAULT '',
		unit_price REAL NOT NULL,
		stock_quantity INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);

	CREATE TABLE IF NOT EXISTS customers (
		customer_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		tier TEXT NOT NULL DEFAULT 'Bronze',
		total_spent REAL NOT NULL DEFAULT 0,
		saved_address TEXT,
		saved_city TEXT,
		saved_state TEXT,
		saved_payment_method TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS orders (
		order_id TEXT PRIMARY KEY,
		idempotency_key TEXT UNIQUE,
		customer_id TEXT,
		subtotal REAL NOT NULL,
		delivery_fee REAL NOT NULL,
		tier_discount REAL NOT NULL,
		total_amount REAL NOT NULL,
		delivery_state TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id);

	CREATE TABLE IF NOT EXISTS order_items (
		order_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		unit_price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		subtotal REAL NOT NULL,
		PRIMARY KEY (order_id, product_id)
	);

	CREATE TABLE IF NOT EXISTS kv_cache (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv_cache(expires_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetProduct retrieves a product by id.
func (s *SQLiteStore) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	query := `
		SELECT product_id, name, category, brand, unit_price, stock_quantity
		FROM products WHERE product_id = ?`

	var p domain.Product
	err := s.db.QueryRowContext(ctx, query, productID).Scan(
		&p.ProductID, &p.Name, &p.Category, &p.Brand, &p.UnitPrice, &p.StockQuantity,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan product row: %w", err)
	}
	return &p, nil
}

// SearchProducts returns products whose name, category or brand matches
// any of the given tokens (case-insensitive substring match).
func (s *SQLiteStore) SearchProducts(ctx context.Context, tokens []string, limit int) ([]*domain.Product, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var clauses []string
	var args []interface{}
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		like := "%" + strings.ToLower(tok) + "%"
		clauses = append(clauses, `(LOWER(name) LIKE ? OR LOWER(category) LIKE ? OR LOWER(brand) LIKE ?)`)
		args = append(args, like, like, like)
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	args = append(args, limit)

	query := `
		SELECT product_id, name, category, brand, unit_price, stock_quantity
		FROM products WHERE ` + strings.Join(clauses, " OR ") + `
		ORDER BY stock_quantity DESC, name ASC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close product rows", "error", closeErr)
		}
	}()

	var products []*domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Category, &p.Brand, &p.UnitPrice, &p.StockQuantity); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

// UpsertProduct creates or updates a catalog record.
func (s *SQLiteStore) UpsertProduct(ctx context.Context, p *domain.Product) error {
	query := `
	INSERT INTO products (product_id, name, category, brand, unit_price, stock_quantity)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(product_id) DO UPDATE SET
		name = excluded.name,
		category = excluded.category,
		brand = excluded.brand,
		unit_price = excluded.unit_price,
		stock_quantity = excluded.stock_quantity`

	_, err := s.db.ExecContext(ctx, query,
		p.ProductID, p.Name, p.Category, p.Brand, p.UnitPrice, p.StockQuantity,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// CountProducts reports catalog size.
func (s *SQLiteStore) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// GetCustomer retrieves a customer by id.
func (s *SQLiteStore) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	query := `
		SELECT customer_id, name, state, tier, total_spent,
		       saved_address, saved_city, saved_state, saved_payment_method,
		       created_at, updated_at
		FROM customers WHERE customer_id = ?`

	var c domain.Customer
	var savedAddress, savedCity, savedState, savedPayment sql.NullString
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, customerID).Scan(
		&c.CustomerID, &c.Name, &c.State, &c.Tier, &c.TotalSpent,
		&savedAddress, &savedCity, &savedState, &savedPayment,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan customer row: %w", err)
	}

	c.CreatedAt = time.Unix(createdAt, 0)
	c.UpdatedAt = time.Unix(updatedAt, 0)
	c.SavedPaymentMethod = savedPayment.String
	if savedAddress.Valid && savedAddress.String != "" {
		c.SavedAddress = &domain.DeliveryAddress{
			FullAddress: savedAddress.String,
			City:        savedCity.String,
			State:       savedState.String,
			RawText:     savedAddress.String,
		}
	}
	return &c, nil
}

// UpsertCustomer creates or updates a customer record.
func (s *SQLiteStore) UpsertCustomer(ctx context.Context, c *domain.Customer) error {
	query := `
	INSERT INTO customers (
		customer_id, name, state, tier, total_spent,
		saved_address, saved_city, saved_state, saved_payment_method,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(customer_id) DO UPDATE SET
		name = excluded.name,
		state = excluded.state,
		tier = excluded.tier,
		total_spent = excluded.total_spent,
		saved_address = COALESCE(excluded.saved_address, customers.saved_address),
		saved_city = COALESCE(excluded.saved_city, customers.saved_city),
		saved_state = COALESCE(excluded.saved_state, customers.saved_state),
		saved_payment_method = COALESCE(excluded.saved_payment_method, customers.saved_payment_method),
		updated_at = excluded.updated_at`

	var savedAddress, savedCity, savedState, savedPayment interface{}
	if c.SavedAddress != nil {
		savedAddress = c.SavedAddress.FullAddress
		savedCity = c.SavedAddress.City
		savedState = c.SavedAddress.State
	}
	if c.SavedPaymentMethod != "" {
		savedPayment = c.SavedPaymentMethod
	}
	if c.Tier == "" {
		c.Tier = domain.TierBronze
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		c.CustomerID, c.Name, c.State, c.Tier, c.TotalSpent,
		savedAddress, savedCity, savedState, savedPayment,
		createdAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

// CreateOrder commits an order in a single transaction. The idempotency
// key makes the commit retry-safe: replaying a key returns the original
// result without decrementing stock a second time.
func (s *SQLiteStore) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("create order: no items")
	}

	s.orderMu.Lock()
	defer s.orderMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin order transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Warn("order transaction rollback failed", "error", rbErr)
		}
	}()

	// Idempotency replay: a retried commit must not touch stock again.
	if req.IdempotencyKey != "" {
		var result domain.OrderResult
		err := tx.QueryRowContext(ctx,
			`SELECT order_id, total_amount, delivery_fee, tier_discount
			 FROM orders WHERE idempotency_key = ?`, req.IdempotencyKey,
		).Scan(&result.OrderID, &result.TotalAmount, &result.DeliveryFee, &result.TierDiscount)
		if err == nil {
			result.Replayed = true
			slog.Info("order commit replayed", "order_id", result.OrderID, "idempotency_key", req.IdempotencyKey)
			return &result, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	tier := domain.TierBronze
	var customer *domain.Customer
	if req.CustomerID != "" {
		customer, err = s.getCustomerTx(ctx, tx, req.CustomerID)
		if err != nil {
			return nil, err
		}
		if customer != nil {
			tier = customer.Tier
		}
	}

	var subtotal float64
	for _, item := range req.Items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}

		var unitPrice float64
		err := tx.QueryRowContext(ctx,
			`SELECT unit_price FROM products WHERE product_id = ?`, item.ProductID,
		).Scan(&unitPrice)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, item.ProductID)
		}
		if err != nil {
			return nil, fmt.Errorf("scan product price: %w", err)
		}

		// Conditional decrement: fails the whole transaction when stock
		// cannot cover the line.
		res, err := tx.ExecContext(ctx,
			`UPDATE products SET stock_quantity = stock_quantity - ?
			 WHERE product_id = ? AND stock_quantity >= ?`,
			quantity, item.ProductID, quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("decrement stock: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("decrement stock rows affected: %w", err)
		}
		if rows == 0 {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientStock, item.ProductID)
		}

		subtotal += unitPrice * float64(quantity)
	}

	tierDiscount := subtotal * domain.TierDiscountRate(tier)
	deliveryFee := deliveryFeeFor(req.DeliveryAddress.State, subtotal)
	total := subtotal - tierDiscount + deliveryFee

	orderID := "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	now := time.Now()

	var idempotencyKey interface{}
	if req.IdempotencyKey != "" {
		idempotencyKey = req.IdempotencyKey
	}
	var customerID interface{}
	if req.CustomerID != "" {
		customerID = req.CustomerID
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (
			order_id, idempotency_key, customer_id, subtotal, delivery_fee,
			tier_discount, total_amount, delivery_state, payment_method, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		orderID, idempotencyKey, customerID, subtotal, deliveryFee,
		tierDiscount, total, req.DeliveryAddress.State, req.PaymentMethod,
		domain.OrderStatusConfirmed, now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range req.Items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		var name string
		var unitPrice float64
		if err := tx.QueryRowContext(ctx,
			`SELECT name, unit_price FROM products WHERE product_id = ?`, item.ProductID,
		).Scan(&name, &unitPrice); err != nil {
			return nil, fmt.Errorf("scan order item product: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, product_name, unit_price, quantity, subtotal)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			orderID, item.ProductID, name, unitPrice, quantity, unitPrice*float64(quantity),
		); err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
	}

	// Loyalty tier recompute rides in the same transaction so a rollback
	// undoes it together with the stock decrement.
	if customer != nil {
		newSpent := customer.TotalSpent + total
		_, err = tx.ExecContext(ctx,
			`UPDATE customers SET
				total_spent = ?,
				tier = ?,
				saved_address = ?,
				saved_city = ?,
				saved_state = ?,
				saved_payment_method = ?,
				updated_at = ?
			 WHERE customer_id = ?`,
			newSpent, domain.TierFor(newSpent),
			req.DeliveryAddress.FullAddress, req.DeliveryAddress.City,
			req.DeliveryAddress.State, req.PaymentMethod,
			now.Unix(), req.CustomerID,
		)
		if err != nil {
			return nil, fmt.Errorf("update customer tier: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit order transaction: %w", err)
	}

	slog.Info("order committed",
		"order_id", orderID,
		"customer_id", req.CustomerID,
		"total", total,
		"delivery_fee", deliveryFee,
		"tier_discount", tierDiscount)

	return &domain.OrderResult{
		OrderID:      orderID,
		TotalAmount:  total,
		DeliveryFee:  deliveryFee,
		TierDiscount: tierDiscount,
	}, nil
}

func (s *SQLiteStore) getCustomerTx(ctx context.Context, tx *sql.Tx, customerID string) (*domain.Customer, error) {
	var c domain.Customer
	err := tx.QueryRowContext(ctx,
		`SELECT customer_id, tier, total_spent FROM customers WHERE customer_id = ?`, customerID,
	).Scan(&c.CustomerID, &c.Tier, &c.TotalSpent)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan customer in transaction: %w", err)
	}
	return &c, nil
}

func deliveryFeeFor(state string, subtotal float64) float64 {
	if subtotal >= freeDeliveryThreshold {
		return 0
	}
	switch state {
	case "Lagos":
		return feeLagos
	case "FCT":
		return feeFCT
	default:
		return feeDefault
	}
}

// GetBlob reads a cache value, treating expired entries as misses.
func (s *SQLiteStore) GetBlob(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_cache WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan cache row: %w", err)
	}
	if time.Now().Unix() >= expiresAt {
		return nil, nil
	}
	return value, nil
}

// PutBlob writes a cache value with a TTL.
func (s *SQLiteStore) PutBlob(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	query := `
	INSERT INTO kv_cache (key, value, expires_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		expires_at = excluded.expires_at`

	var err error
	for attempt := 0; attempt < blobWriteRetries; attempt++ {
		_, err = s.db.ExecContext(ctx, query, key, value, time.Now().Add(ttl).Unix())
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return fmt.Errorf("put cache value: %w", err)
}

// DeleteBlob removes a cache value.
func (s *SQLiteStore) DeleteBlob(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete cache value: %w", err)
	}
	return nil
}

// CleanupExpiredBlobs removes cache entries past their TTL.
func (s *SQLiteStore) CleanupExpiredBlobs(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_cache WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired cache entries: %w", err)
	}
	return res.RowsAffected()
}
