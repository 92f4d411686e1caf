// Package checkout sequences the checkout flow: address collection,
// payment collection, order confirmation and the atomic commit.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/raqibtech/converse/internal/domain"
	"github.com/raqibtech/converse/internal/intent"
	"github.com/raqibtech/converse/internal/store"
)

// Machine-readable action tags returned to the presentation layer.
// These, plus a user-safe message, are all that crosses the boundary.
const (
	ActionEmptyCart           = "empty_cart"
	ActionPromptAddress       = "prompt_address"
	ActionConfirmSavedAddress = "confirm_saved_address"
	ActionAddressRejected     = "address_rejected"
	ActionPromptPayment       = "prompt_payment"
	ActionConfirmSavedPayment = "confirm_saved_payment"
	ActionInvalidPayment      = "invalid_payment_method"
	ActionPaymentRejected     = "payment_rejected"
	ActionOrderSummary        = "order_summary"
	ActionOrderPlaced         = "order_placed"
	ActionOrderCancelled      = "order_cancelled"
	ActionOutOfStock          = "out_of_stock"
	ActionOrderFailed         = "order_failed_retryable"
)

// StepResult is the outcome of one checkout turn.
type StepResult struct {
	Action  string
	Message string
	Order   *domain.OrderResult
}

// Orchestrator drives a session through the checkout state machine. It
// mutates the session it is handed; persisting the session afterwards is
// the caller's responsibility.
type Orchestrator struct {
	repo store.Repository
}

// NewOrchestrator creates a checkout orchestrator.
func NewOrchestrator(repo store.Repository) *Orchestrator {
	return &Orchestrator{repo: repo}
}

// Advance processes one checkout-stage turn. Checks run in order: cart
// non-empty, then address, then payment, then an explicit confirmation
// turn before the commit. An order is never placed on the same turn that
// first completes address and payment collection.
func (o *Orchestrator) Advance(ctx context.Context, text string, parsed intent.Result, sess *domain.Session) StepResult {
	if len(sess.CartItems) == 0 {
		sess.Stage = domain.StageCartEmptyCheckoutAttempt
		return StepResult{
			Action:  ActionEmptyCart,
			Message: "Your cart is empty. Add some products before checking out.",
		}
	}

	// Rejections cancel only the field currently being confirmed, never
	// the whole checkout.
	if parsed.Intent == intent.Negative {
		switch sess.Stage {
		case domain.StageAwaitingAddressConfirmation:
			sess.DeliveryAddress = nil
			sess.Stage = domain.StageNeedAddress
			return StepResult{
				Action:  ActionAddressRejected,
				Message: "No problem. What delivery address should I use?",
			}
		case domain.StageAwaitingPaymentConfirmation:
			sess.PaymentMethod = ""
			sess.Stage = domain.StageNeedPayment
			return StepResult{
				Action:  ActionPaymentRejected,
				Message: "No problem. How would you like to pay? Options: " + paymentOptions() + ".",
			}
		case domain.StageAwaitingOrderConfirmation:
			sess.Stage = domain.StageCartUpdated
			return StepResult{
				Action:  ActionOrderCancelled,
				Message: "Order not placed. Your cart is unchanged whenever you are ready.",
			}
		}
	}

	// Confirmations advance past the stage being confirmed.
	if parsed.Intent == intent.Affirmative {
		switch sess.Stage {
		case domain.StageAwaitingAddressConfirmation:
			sess.Stage = domain.StageAddressSet
		case domain.StageAwaitingPaymentConfirmation:
			sess.Stage = domain.StagePaymentMethodSet
		}
	}

	confirming := sess.Stage == domain.StageAwaitingOrderConfirmation &&
		(parsed.Intent == intent.Affirmative ||
			parsed.Intent == intent.PlaceOrder ||
			parsed.Intent == intent.Checkout)
	if confirming {
		return o.commit(ctx, sess)
	}

	customer := o.customer(ctx, sess.CustomerID)

	// Payment details sometimes arrive before the address is settled;
	// capture them now so they are not lost while we prompt for the
	// address.
	if sess.PaymentMethod == "" {
		if candidate := paymentFrom(text, parsed); candidate != "" {
			if canonical, ok := domain.ValidPaymentMethod(candidate); ok {
				sess.PaymentMethod = canonical
			}
		}
	}

	if sess.DeliveryAddress == nil {
		if result, resolved := o.resolveAddress(text, parsed, customer, sess); !resolved {
			return result
		}
	}

	if sess.PaymentMethod == "" {
		if result, resolved := o.resolvePayment(text, parsed, customer, sess); !resolved {
			return result
		}
	}

	// Both collected: show the summary and require an explicit
	// confirmation turn.
	sess.Stage = domain.StageAwaitingOrderConfirmation
	return StepResult{
		Action:  ActionOrderSummary,
		Message: renderSummary(sess),
	}
}

// resolveAddress applies the three-way address resolution: parse one
// from the message, else offer the customer's saved address for
// confirmation, else prompt. resolved is true when the session now has a
// confirmed address and the flow should continue.
func (o *Orchestrator) resolveAddress(text string, parsed intent.Result, customer *domain.Customer, sess *domain.Session) (StepResult, bool) {
	source := parsed.Entity(intent.EntityAddress)
	if source == "" {
		source = text
	}
	if addr := intent.ParseAddress(source); addr != nil {
		sess.DeliveryAddress = addr
		sess.Stage = domain.StageAddressSet
		return StepResult{}, true
	}

	if customer != nil && customer.SavedAddress != nil {
		saved := *customer.SavedAddress
		sess.DeliveryAddress = &saved
		sess.Stage = domain.StageAwaitingAddressConfirmation
		return StepResult{
			Action: ActionConfirmSavedAddress,
			Message: fmt.Sprintf("Should I deliver to your saved address: %s? Reply yes to confirm or no to use a different one.",
				saved.FullAddress),
		}, false
	}

	sess.Stage = domain.StageNeedAddress
	return StepResult{
		Action:  ActionPromptAddress,
		Message: "What delivery address should I use? You can send a street address or just your city/state.",
	}, false
}

// resolvePayment mirrors resolveAddress for the payment method.
func (o *Orchestrator) resolvePayment(text string, parsed intent.Result, customer *domain.Customer, sess *domain.Session) (StepResult, bool) {
	if candidate := paymentFrom(text, parsed); candidate != "" {
		if canonical, ok := domain.ValidPaymentMethod(candidate); ok {
			sess.PaymentMethod = canonical
			sess.Stage = domain.StagePaymentMethodSet
			return StepResult{}, true
		}
	}

	if customer != nil && customer.SavedPaymentMethod != "" {
		if canonical, ok := domain.ValidPaymentMethod(customer.SavedPaymentMethod); ok {
			sess.PaymentMethod = canonical
			sess.Stage = domain.StageAwaitingPaymentConfirmation
			return StepResult{
				Action: ActionConfirmSavedPayment,
				Message: fmt.Sprintf("Should I use your usual payment method, %s? Reply yes to confirm or no to pick another.",
					canonical),
			}, false
		}
	}

	// An unrecognized answer while we were collecting payment is a
	// validation miss: re-prompt without touching the address.
	if sess.Stage == domain.StageNeedPayment && parsed.Intent == intent.GeneralInquiry {
		return StepResult{
			Action:  ActionInvalidPayment,
			Message: "I didn't recognize that payment method. Options: " + paymentOptions() + ".",
		}, false
	}

	sess.Stage = domain.StageNeedPayment
	return StepResult{
		Action:  ActionPromptPayment,
		Message: "How would you like to pay? Options: " + paymentOptions() + ".",
	}, false
}

// commit converts the cart into an order request and delegates to the
// atomic order transaction. On failure the cart, address and payment
// method are left untouched so the shopper can retry from this point.
func (o *Orchestrator) commit(ctx context.Context, sess *domain.Session) StepResult {
	// The idempotency key survives across retries of the same attempt
	// so a timed-out commit cannot double-decrement stock.
	if sess.Checkout.IdempotencyKey == "" {
		sess.Checkout.IdempotencyKey = uuid.NewString()
	}

	items := make([]domain.OrderItem, 0, len(sess.CartItems))
	for _, line := range sess.CartItems {
		items = append(items, domain.OrderItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	result, err := o.repo.CreateOrder(ctx, domain.OrderRequest{
		IdempotencyKey:  sess.Checkout.IdempotencyKey,
		CustomerID:      sess.CustomerID,
		Items:           items,
		DeliveryAddress: *sess.DeliveryAddress,
		PaymentMethod:   sess.PaymentMethod,
	})
	if err != nil {
		slog.Error("order commit failed", "session_id", sess.SessionID, "error", err)
		if errors.Is(err, store.ErrInsufficientStock) {
			return StepResult{
				Action:  ActionOutOfStock,
				Message: "One of the items just sold out. Your cart and details are saved — remove the item or try again shortly.",
			}
		}
		return StepResult{
			Action:  ActionOrderFailed,
			Message: "Something went wrong placing your order. Nothing was charged — your cart and details are saved, please try again.",
		}
	}

	sess.ClearCart()
	sess.Checkout.PlacedOrderID = result.OrderID
	sess.Checkout.IdempotencyKey = ""
	sess.Stage = domain.StageOrderPlaced

	return StepResult{
		Action: ActionOrderPlaced,
		Order:  result,
		Message: fmt.Sprintf("Order %s placed! Total %s (delivery %s, discount %s). Thank you for shopping with us.",
			result.OrderID, naira(result.TotalAmount), naira(result.DeliveryFee), naira(result.TierDiscount)),
	}
}

func (o *Orchestrator) customer(ctx context.Context, customerID string) *domain.Customer {
	if customerID == "" {
		return nil
	}
	customer, err := o.repo.GetCustomer(ctx, customerID)
	if err != nil {
		slog.Warn("customer lookup failed", "customer_id", customerID, "error", err)
		return nil
	}
	return customer
}

func paymentFrom(text string, parsed intent.Result) string {
	if p := parsed.Entity(intent.EntityPayment); p != "" {
		return p
	}
	if canonical, ok := intent.NormalizePayment(text); ok {
		return canonical
	}
	return ""
}

func paymentOptions() string {
	return strings.Join(domain.PaymentMethods, ", ")
}

// renderSummary produces the deterministic order summary shown before
// the confirmation turn.
func renderSummary(sess *domain.Session) string {
	var b strings.Builder
	b.WriteString("Order summary:\n")
	for _, item := range sess.CartItems {
		fmt.Fprintf(&b, "- %d x %s — %s\n", item.Quantity, item.ProductName, naira(item.Subtotal))
	}
	fmt.Fprintf(&b, "Subtotal: %s\n", naira(sess.CartTotal()))
	fmt.Fprintf(&b, "Deliver to: %s\n", sess.DeliveryAddress.FullAddress)
	fmt.Fprintf(&b, "Payment: %s\n", sess.PaymentMethod)
	b.WriteString("Reply yes to place your order.")
	return b.String()
}

func naira(amount float64) string {
	return fmt.Sprintf("₦%.2f", amount)
}
