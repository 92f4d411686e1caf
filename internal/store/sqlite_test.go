package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/raqibtech/converse/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return repo
}

func seedProduct(t *testing.T, repo Repository, id string, price float64, stock int) {
	t.Helper()
	err := repo.UpsertProduct(context.Background(), &domain.Product{
		ProductID: id, Name: "Product " + id, Category: "Test", Brand: "Brand",
		UnitPrice: price, StockQuantity: stock,
	})
	if err != nil {
		t.Fatalf("UpsertProduct(%s): %v", id, err)
	}
}

func TestProductRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	seedProduct(t, repo, "p1", 1000, 5)

	got, err := repo.GetProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got == nil || got.UnitPrice != 1000 || got.StockQuantity != 5 {
		t.Errorf("GetProduct = %+v", got)
	}

	missing, err := repo.GetProduct(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("missing product should be (nil, nil), got (%+v, %v)", missing, err)
	}
}

func TestSearchProducts(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.UpsertProduct(ctx, &domain.Product{
		ProductID: "p1", Name: "Samsung Galaxy Phone", Category: "Phones",
		Brand: "Samsung", UnitPrice: 1000, StockQuantity: 5,
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpsertProduct(ctx, &domain.Product{
		ProductID: "p2", Name: "LG Television", Category: "Televisions",
		Brand: "LG", UnitPrice: 2000, StockQuantity: 3,
	}); err != nil {
		t.Fatal(err)
	}

	results, err := repo.SearchProducts(ctx, []string{"samsung"}, 10)
	if err != nil {
		t.Fatalf("SearchProducts: %v", err)
	}
	if len(results) != 1 || results[0].ProductID != "p1" {
		t.Errorf("search samsung = %+v", results)
	}

	results, err = repo.SearchProducts(ctx, []string{"television", "phone"}, 10)
	if err != nil {
		t.Fatalf("SearchProducts: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}

func TestCreateOrderCommits(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	seedProduct(t, repo, "p1", 50_000, 10)
	if err := repo.UpsertCustomer(ctx, &domain.Customer{
		CustomerID: "c1", Name: "Ada", Tier: domain.TierGold, TotalSpent: 600_000,
	}); err != nil {
		t.Fatal(err)
	}

	result, err := repo.CreateOrder(ctx, domain.OrderRequest{
		IdempotencyKey:  "key-1",
		CustomerID:      "c1",
		Items:           []domain.OrderItem{{ProductID: "p1", Quantity: 2}},
		DeliveryAddress: domain.DeliveryAddress{FullAddress: "Lekki, Lagos", State: "Lagos"},
		PaymentMethod:   domain.PaymentCard,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	// subtotal 100k hits the free-delivery threshold; gold discount 5%.
	if result.DeliveryFee != 0 {
		t.Errorf("DeliveryFee = %v, want 0", result.DeliveryFee)
	}
	if result.TierDiscount != 5000 {
		t.Errorf("TierDiscount = %v, want 5000", result.TierDiscount)
	}
	if result.TotalAmount != 95_000 {
		t.Errorf("TotalAmount = %v, want 95000", result.TotalAmount)
	}

	p, err := repo.GetProduct(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.StockQuantity != 8 {
		t.Errorf("stock = %d, want 8", p.StockQuantity)
	}

	c, err := repo.GetCustomer(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if c.TotalSpent != 695_000 {
		t.Errorf("TotalSpent = %v, want 695000", c.TotalSpent)
	}
	if c.SavedPaymentMethod != domain.PaymentCard {
		t.Errorf("SavedPaymentMethod = %q", c.SavedPaymentMethod)
	}
	if c.SavedAddress == nil || c.SavedAddress.State != "Lagos" {
		t.Errorf("SavedAddress = %+v", c.SavedAddress)
	}
}

func TestCreateOrderDeliveryFees(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	seedProduct(t, repo, "p1", 10_000, 100)

	tests := []struct {
		state string
		fee   float64
	}{
		{"Lagos", 1500},
		{"FCT", 2000},
		{"Kano", 2500},
	}
	for _, tt := range tests {
		result, err := repo.CreateOrder(ctx, domain.OrderRequest{
			Items:           []domain.OrderItem{{ProductID: "p1", Quantity: 1}},
			DeliveryAddress: domain.DeliveryAddress{State: tt.state},
			PaymentMethod:   domain.PaymentUSSD,
		})
		if err != nil {
			t.Fatalf("CreateOrder(%s): %v", tt.state, err)
		}
		if result.DeliveryFee != tt.fee {
			t.Errorf("fee for %s = %v, want %v", tt.state, result.DeliveryFee, tt.fee)
		}
	}
}

func TestCreateOrderIdempotencyReplay(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	seedProduct(t, repo, "p1", 10_000, 5)

	req := domain.OrderRequest{
		IdempotencyKey:  "retry-key",
		Items:           []domain.OrderItem{{ProductID: "p1", Quantity: 2}},
		DeliveryAddress: domain.DeliveryAddress{State: "Lagos"},
		PaymentMethod:   domain.PaymentRaqibTechPay,
	}

	first, err := repo.CreateOrder(ctx, req)
	if err != nil {
		t.Fatalf("first CreateOrder: %v", err)
	}
	second, err := repo.CreateOrder(ctx, req)
	if err != nil {
		t.Fatalf("second CreateOrder: %v", err)
	}

	if !second.Replayed {
		t.Errorf("second commit should be flagged as replayed")
	}
	if second.OrderID != first.OrderID {
		t.Errorf("replayed order id = %s, want %s", second.OrderID, first.OrderID)
	}

	p, err := repo.GetProduct(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.StockQuantity != 3 {
		t.Errorf("stock = %d, want 3 (decremented exactly once)", p.StockQuantity)
	}
}

func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	seedProduct(t, repo, "p1", 10_000, 5)
	seedProduct(t, repo, "p2", 20_000, 1)

	_, err := repo.CreateOrder(ctx, domain.OrderRequest{
		Items: []domain.OrderItem{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 3},
		},
		DeliveryAddress: domain.DeliveryAddress{State: "Lagos"},
		PaymentMethod:   domain.PaymentCard,
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	// The first line's decrement must have been rolled back with the rest.
	p1, err := repo.GetProduct(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p1.StockQuantity != 5 {
		t.Errorf("p1 stock = %d, want 5 (rollback)", p1.StockQuantity)
	}
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	repo := newTestStore(t)
	_, err := repo.CreateOrder(context.Background(), domain.OrderRequest{
		Items:           []domain.OrderItem{{ProductID: "ghost", Quantity: 1}},
		DeliveryAddress: domain.DeliveryAddress{State: "Lagos"},
		PaymentMethod:   domain.PaymentCard,
	})
	if !errors.Is(err, ErrUnknownProduct) {
		t.Fatalf("err = %v, want ErrUnknownProduct", err)
	}
}

func TestBlobTTL(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.PutBlob(ctx, "k1", []byte("fresh"), time.Hour); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	if err := repo.PutBlob(ctx, "k2", []byte("stale"), -time.Second); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}

	got, err := repo.GetBlob(ctx, "k1")
	if err != nil || string(got) != "fresh" {
		t.Errorf("GetBlob(k1) = (%q, %v)", got, err)
	}
	got, err = repo.GetBlob(ctx, "k2")
	if err != nil || got != nil {
		t.Errorf("expired blob should read as a miss, got (%q, %v)", got, err)
	}

	deleted, err := repo.CleanupExpiredBlobs(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredBlobs: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

func TestMemoryStoreMatchesContract(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()

	seedProduct(t, repo, "p1", 10_000, 2)

	req := domain.OrderRequest{
		IdempotencyKey:  "k",
		Items:           []domain.OrderItem{{ProductID: "p1", Quantity: 1}},
		DeliveryAddress: domain.DeliveryAddress{State: "Lagos"},
		PaymentMethod:   domain.PaymentCard,
	}
	first, err := repo.CreateOrder(ctx, req)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	second, err := repo.CreateOrder(ctx, req)
	if err != nil || !second.Replayed || second.OrderID != first.OrderID {
		t.Errorf("replay = (%+v, %v)", second, err)
	}

	_, err = repo.CreateOrder(ctx, domain.OrderRequest{
		Items:           []domain.OrderItem{{ProductID: "p1", Quantity: 5}},
		DeliveryAddress: domain.DeliveryAddress{State: "Lagos"},
		PaymentMethod:   domain.PaymentCard,
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("err = %v, want ErrInsufficientStock", err)
	}
}
