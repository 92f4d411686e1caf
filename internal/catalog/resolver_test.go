package catalog

import (
	"context"
	"reflect"
	"testing"

	"github.com/raqibtech/converse/internal/domain"
	"github.com/raqibtech/converse/internal/store"
)

func seededRepo(t *testing.T) *store.MemoryStore {
	t.Helper()
	repo := store.NewMemory()
	ctx := context.Background()
	products := []*domain.Product{
		{ProductID: "p1", Name: "Samsung Galaxy A15 Phone", Category: "Phones", Brand: "Samsung", UnitPrice: 185_000, StockQuantity: 10},
		{ProductID: "p2", Name: "Tecno Spark 20 Phone", Category: "Phones", Brand: "Tecno", UnitPrice: 145_000, StockQuantity: 5},
		{ProductID: "p3", Name: "LG 43 Inch Smart Television", Category: "Televisions", Brand: "LG", UnitPrice: 310_000, StockQuantity: 3},
		{ProductID: "p4", Name: "Apple Watch SE", Category: "Wearables", Brand: "Apple", UnitPrice: 390_000, StockQuantity: 0},
	}
	for _, p := range products {
		if err := repo.UpsertProduct(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	return repo
}

func TestResolveMatches(t *testing.T) {
	r := NewResolver(seededRepo(t))
	ctx := context.Background()

	tests := []struct {
		text string
		want string
	}{
		{"samsung phone", "p1"},
		{"tecno spark", "p2"},
		{"lg tv", "p3"},
		{"television", "p3"},
	}
	for _, tt := range tests {
		got, err := r.Resolve(ctx, tt.text, "")
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.text, err)
		}
		if got == nil || got.ProductID != tt.want {
			t.Errorf("Resolve(%q) = %+v, want %s", tt.text, got, tt.want)
		}
	}
}

func TestResolveWeakMatchIsMiss(t *testing.T) {
	r := NewResolver(seededRepo(t))
	got, err := r.Resolve(context.Background(), "quantum flux capacitor", "")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("weak match should resolve to nil, got %+v", got)
	}
}

func TestResolveSkipsOutOfStock(t *testing.T) {
	r := NewResolver(seededRepo(t))
	got, err := r.Resolve(context.Background(), "apple watch", "")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("out-of-stock product should not resolve, got %+v", got)
	}
}

func TestResolveHintBreaksTies(t *testing.T) {
	r := NewResolver(seededRepo(t))
	got, err := r.Resolve(context.Background(), "phone", "Tecno Spark 20 Phone")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ProductID != "p2" {
		t.Errorf("hinted resolve = %+v, want p2", got)
	}
}

func TestTokens(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"a Samsung phone please", []string{"samsung", "phone"}},
		{"the best cheap TV", []string{"television"}},
		{"fridges", []string{"refrigerator"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := Tokens(tt.text); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokens(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
