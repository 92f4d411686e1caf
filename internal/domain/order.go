package domain

import "time"

// Order status values persisted with each order row.
const (
	OrderStatusConfirmed = "confirmed"
)

// OrderItem is a single requested line in an order commit.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// OrderRequest is the input shape of the atomic order transaction.
// IdempotencyKey is minted once per checkout attempt; replaying the same
// key returns the originally committed order without touching stock again.
type OrderRequest struct {
	IdempotencyKey  string
	CustomerID      string
	Items           []OrderItem
	DeliveryAddress DeliveryAddress
	PaymentMethod   string
}

// OrderResult is returned by a successful (or replayed) order commit.
type OrderResult struct {
	OrderID      string  `json:"order_id"`
	TotalAmount  float64 `json:"total_amount"`
	DeliveryFee  float64 `json:"delivery_fee"`
	TierDiscount float64 `json:"tier_discount"`
	// Replayed is true when the idempotency key matched an existing
	// order and no new state was written.
	Replayed bool `json:"-"`
}

// Order is a persisted order header.
type Order struct {
	OrderID       string    `json:"order_id"`
	CustomerID    string    `json:"customer_id,omitempty"`
	Subtotal      float64   `json:"subtotal"`
	DeliveryFee   float64   `json:"delivery_fee"`
	TierDiscount  float64   `json:"tier_discount"`
	TotalAmount   float64   `json:"total_amount"`
	DeliveryState string    `json:"delivery_state"`
	PaymentMethod string    `json:"payment_method"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}
