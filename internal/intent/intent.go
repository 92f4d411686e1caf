// Package intent classifies free-text shopper messages into a single
// (intent, entities, confidence) triple. Classification is stateless and
// never fatal: text that matches no rule falls back to a general inquiry.
package intent

// Intent is the classified purpose of a single user message.
type Intent string

const (
	ProductInquiry         Intent = "product_inquiry"
	AddToCart              Intent = "add_to_cart"
	ViewCart               Intent = "view_cart"
	ClearCart              Intent = "clear_cart"
	SetDeliveryAddress     Intent = "set_delivery_address"
	PaymentMethodSelection Intent = "payment_method_selection"
	Checkout               Intent = "checkout"
	PlaceOrder             Intent = "place_order"
	Affirmative            Intent = "affirmative_confirmation"
	Negative               Intent = "negative_rejection"
	AccountManagement      Intent = "account_management"
	GeneralInquiry         Intent = "general_inquiry"
)

// Entity keys used in Result.Entities.
const (
	EntityProduct  = "product_text"
	EntityQuantity = "quantity"
	EntityPayment  = "payment_method"
	EntityAddress  = "address_text"
)

// Result is the outcome of classifying one message.
type Result struct {
	Intent     Intent            `json:"intent"`
	Entities   map[string]string `json:"entities,omitempty"`
	Confidence float64           `json:"confidence"`
}

// Entity returns the named entity or "" when absent.
func (r Result) Entity(key string) string {
	if r.Entities == nil {
		return ""
	}
	return r.Entities[key]
}
