// Package domain defines the core data model for the conversational
// commerce engine.
package domain

import (
	"time"
)

// Stage identifies the session's position in the shopping and checkout flow.
type Stage string

const (
	StageBrowsing                    Stage = "browsing"
	StageProductDiscussed            Stage = "product_discussed"
	StageCartUpdated                 Stage = "cart_updated"
	StageCartEmptyCheckoutAttempt    Stage = "cart_empty_checkout_attempt"
	StageNeedAddress                 Stage = "checkout_initiated_need_address"
	StageAwaitingAddressConfirmation Stage = "awaiting_address_confirmation"
	StageAddressSet                  Stage = "address_set"
	StageNeedPayment                 Stage = "address_set_need_payment"
	StageAwaitingPaymentConfirmation Stage = "awaiting_payment_confirmation"
	StagePaymentMethodSet            Stage = "payment_method_set"
	StageAwaitingOrderConfirmation   Stage = "awaiting_order_confirmation"
	StageOrderPlaced                 Stage = "order_placed"
)

// CheckoutStages lists the stages that belong to an active checkout.
// Affirmative/negative turns are only routed to the checkout flow while
// the session sits in one of these.
var CheckoutStages = map[Stage]bool{
	StageNeedAddress:                 true,
	StageAwaitingAddressConfirmation: true,
	StageAddressSet:                  true,
	StageNeedPayment:                 true,
	StageAwaitingPaymentConfirmation: true,
	StagePaymentMethodSet:            true,
	StageAwaitingOrderConfirmation:   true,
}

// CartItem is a single line in the session cart. At most one CartItem
// exists per product; repeated adds increment Quantity.
type CartItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	Subtotal    float64 `json:"subtotal"`
}

// DeliveryAddress holds a parsed delivery destination. It is immutable
// once set on a session and cleared only by an explicit rejection while
// the address is being confirmed.
type DeliveryAddress struct {
	FullAddress string `json:"full_address"`
	City        string `json:"city,omitempty"`
	State       string `json:"state"`
	RawText     string `json:"raw_text"`
}

// ProductRef is the lightweight product reference kept on a session so
// follow-up turns ("add it to cart") can resolve pronouns without a
// fresh catalog lookup.
type ProductRef struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
}

// CheckoutState carries the checkout bookkeeping that survives between
// turns: the idempotency key minted for the current commit attempt and
// the id of the last successfully placed order.
type CheckoutState struct {
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	PlacedOrderID  string `json:"placed_order_id,omitempty"`
}

// Session is the per-conversation record. It is exclusively owned by the
// conversation engine, lives under a TTL in the session store, and is
// reconstructed (never hard-failed) on a cache miss.
//
// Unknown fields in a stored blob default on decode so that older blobs
// keep loading as the schema evolves.
type Session struct {
	SessionID            string           `json:"session_id"`
	CustomerID           string           `json:"customer_id,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
	Stage                Stage            `json:"conversation_stage"`
	LastProductMentioned *ProductRef      `json:"last_product_mentioned,omitempty"`
	DeliveryAddress      *DeliveryAddress `json:"delivery_address,omitempty"`
	PaymentMethod        string           `json:"payment_method,omitempty"`
	CartItems            []CartItem       `json:"cart_items"`
	Checkout             CheckoutState    `json:"checkout_state"`
	Version              int64            `json:"version"`
}

// NewSession creates a fresh session in the browsing stage.
func NewSession(sessionID, customerID string) *Session {
	now := time.Now().UTC()
	return &Session{
		SessionID:  sessionID,
		CustomerID: customerID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Stage:      StageBrowsing,
	}
}

// AddItem merges a product into the cart: an existing line for the same
// product is incremented, otherwise a new line is appended. Subtotals are
// recomputed so Subtotal == UnitPrice * Quantity holds after every call.
func (s *Session) AddItem(ref ProductRef, quantity int) {
	if quantity <= 0 {
		quantity = 1
	}
	for i := range s.CartItems {
		if s.CartItems[i].ProductID == ref.ProductID {
			s.CartItems[i].Quantity += quantity
			s.CartItems[i].Subtotal = s.CartItems[i].UnitPrice * float64(s.CartItems[i].Quantity)
			return
		}
	}
	s.CartItems = append(s.CartItems, CartItem{
		ProductID:   ref.ProductID,
		ProductName: ref.Name,
		UnitPrice:   ref.UnitPrice,
		Quantity:    quantity,
		Subtotal:    ref.UnitPrice * float64(quantity),
	})
}

// CartTotal returns the sum of all line subtotals.
func (s *Session) CartTotal() float64 {
	var total float64
	for _, item := range s.CartItems {
		total += item.Subtotal
	}
	return total
}

// ClearCart drops all cart lines.
func (s *Session) ClearCart() {
	s.CartItems = nil
}

// ResetCycle clears the cart and checkout sub-state after a placed order
// so the next shopping message starts a fresh cycle instead of hitting a
// stale "cart empty" dead end. The delivery address, payment method and
// customer binding survive.
func (s *Session) ResetCycle() {
	s.CartItems = nil
	s.Checkout = CheckoutState{}
	s.Stage = StageBrowsing
}

// InCheckout reports whether the session is inside an active checkout.
func (s *Session) InCheckout() bool {
	return CheckoutStages[s.Stage]
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing internal slices to mutation.
func (s *Session) Clone() *Session {
	cp := *s
	if s.LastProductMentioned != nil {
		ref := *s.LastProductMentioned
		cp.LastProductMentioned = &ref
	}
	if s.DeliveryAddress != nil {
		addr := *s.DeliveryAddress
		cp.DeliveryAddress = &addr
	}
	if s.CartItems != nil {
		cp.CartItems = make([]CartItem, len(s.CartItems))
		copy(cp.CartItems, s.CartItems)
	}
	return &cp
}
