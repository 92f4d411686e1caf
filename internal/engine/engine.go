// Package engine is the conversation core: it classifies each message,
// walks the session state machine and produces the reply. All shopper
// effects (cart changes, checkout progress, order placement) flow
// through HandleMessage.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raqibtech/converse/internal/catalog"
	"github.com/raqibtech/converse/internal/checkout"
	"github.com/raqibtech/converse/internal/domain"
	"github.com/raqibtech/converse/internal/intent"
	"github.com/raqibtech/converse/internal/memory"
)

// Action tags minted by the engine itself. Checkout turns carry the
// orchestrator's tags instead.
const (
	ActionProductInfo     = "product_info"
	ActionProductNotFound = "product_not_found"
	ActionAddedToCart     = "added_to_cart"
	ActionRequireProduct  = "require_specific_product"
	ActionOutOfStock      = "out_of_stock"
	ActionCartContents    = "cart_contents"
	ActionCartEmpty       = "cart_empty"
	ActionCartCleared     = "cart_cleared"
	ActionAcknowledged    = "acknowledged"
	ActionAccountHelp     = "account_management"
	ActionGeneralInquiry  = "general_inquiry"
)

// Reply is what one handled message produces. Internal errors never
// appear here: failures map to an action tag and a user-safe message.
type Reply struct {
	SessionID              string            `json:"session_id"`
	Success                bool              `json:"success"`
	Action                 string            `json:"action"`
	Message                string            `json:"message"`
	Intent                 string            `json:"intent"`
	RequireSpecificProduct bool              `json:"require_specific_product,omitempty"`
	Stage                  domain.Stage      `json:"conversation_stage"`
	CartItems              []domain.CartItem `json:"cart_items,omitempty"`
	CartTotal              float64           `json:"cart_total"`
	OrderID                string            `json:"order_id,omitempty"`
}

// Engine owns sessions and drives one message through classification,
// dispatch and persistence. Concurrent messages for the same session are
// serialized; different sessions proceed in parallel.
type Engine struct {
	sessions *memory.SessionStore
	mem      *memory.Coordinator
	resolver *catalog.Resolver
	checkout *checkout.Orchestrator
	locks    *keyedMutex
}

// New wires the conversation engine.
func New(sessions *memory.SessionStore, mem *memory.Coordinator, resolver *catalog.Resolver, orch *checkout.Orchestrator) *Engine {
	return &Engine{
		sessions: sessions,
		mem:      mem,
		resolver: resolver,
		checkout: orch,
		locks:    newKeyedMutex(),
	}
}

// HandleMessage processes one shopper message end to end. An empty
// sessionID starts a new conversation.
func (e *Engine) HandleMessage(ctx context.Context, sessionID, customerID, text string) (*Reply, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty message")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	unlock := e.locks.lock(sessionID)
	defer unlock()

	parsed := intent.Parse(text)

	sess, err := e.sessions.Load(ctx, sessionID)
	if err != nil {
		// Session storage trouble degrades to a fresh session for this
		// turn rather than failing the message.
		slog.Warn("session load failed, starting fresh", "session_id", sessionID, "error", err)
		sess = nil
	}
	if sess == nil {
		sess = domain.NewSession(sessionID, customerID)
	}
	if customerID != "" && sess.CustomerID == "" {
		sess.CustomerID = customerID
	}

	// A placed order ends the cycle; the next shopping message starts a
	// new one instead of tripping over the emptied cart.
	if sess.Stage == domain.StageOrderPlaced && startsNewCycle(parsed.Intent) {
		sess.ResetCycle()
	}

	prevStage := sess.Stage
	reply := e.dispatch(ctx, text, parsed, sess)

	if !CanTransition(prevStage, sess.Stage) {
		slog.Warn("undefined stage transition",
			"session_id", sessionID, "from", prevStage, "to", sess.Stage, "intent", parsed.Intent)
	}

	if err := e.sessions.Save(ctx, sess); err != nil {
		slog.Error("session save failed", "session_id", sessionID, "error", err)
	}

	e.mem.StoreTurn(ctx, sessionID, domain.Turn{
		Timestamp:  time.Now().UTC(),
		UserInput:  text,
		Response:   reply.Message,
		Intent:     string(parsed.Intent),
		Entities:   parsed.Entities,
		StageAfter: sess.Stage,
	}, sess)

	reply.SessionID = sessionID
	reply.Intent = string(parsed.Intent)
	reply.Stage = sess.Stage
	reply.CartItems = sess.Clone().CartItems
	reply.CartTotal = sess.CartTotal()
	return reply, nil
}

// Session returns a snapshot of the stored session, or nil when the
// session is unknown or expired.
func (e *Engine) Session(ctx context.Context, sessionID string) (*domain.Session, error) {
	unlock := e.locks.lock(sessionID)
	defer unlock()

	sess, err := e.sessions.Load(ctx, sessionID)
	if err != nil || sess == nil {
		return nil, err
	}
	return sess.Clone(), nil
}

func (e *Engine) dispatch(ctx context.Context, text string, parsed intent.Result, sess *domain.Session) *Reply {
	switch parsed.Intent {
	case intent.ProductInquiry:
		return e.handleProductInquiry(ctx, text, parsed, sess)
	case intent.AddToCart:
		return e.handleAddToCart(ctx, text, parsed, sess)
	case intent.ViewCart:
		return e.handleViewCart(sess)
	case intent.ClearCart:
		return e.handleClearCart(sess)
	case intent.SetDeliveryAddress, intent.PaymentMethodSelection, intent.Checkout, intent.PlaceOrder:
		return e.handleCheckout(ctx, text, parsed, sess)
	case intent.Affirmative, intent.Negative:
		if sess.InCheckout() {
			return e.handleCheckout(ctx, text, parsed, sess)
		}
		return &Reply{Success: true, Action: ActionAcknowledged, Message: "Alright! Let me know what you would like to do next."}
	case intent.AccountManagement:
		return &Reply{
			Success: true,
			Action:  ActionAccountHelp,
			Message: "Account changes are handled on your profile page. I can help you find products and place orders here.",
		}
	default:
		// While collecting an address or payment method, free text is
		// usually the answer to our last prompt.
		if sess.InCheckout() {
			return e.handleCheckout(ctx, text, parsed, sess)
		}
		return &Reply{
			Success: true,
			Action:  ActionGeneralInquiry,
			Message: "I can help you find products, manage your cart and place orders. What are you looking for?",
		}
	}
}

// handleProductInquiry answers a product question. It only reads the
// catalog and records what was discussed; the cart is never touched.
func (e *Engine) handleProductInquiry(ctx context.Context, text string, parsed intent.Result, sess *domain.Session) *Reply {
	mention := parsed.Entity(intent.EntityProduct)
	if mention == "" {
		mention = text
	}

	if intent.IsBareReference(mention) {
		ref := e.lastProduct(ctx, sess)
		if ref == nil {
			return clarifyProduct()
		}
		product, err := e.resolver.Lookup(ctx, ref.ProductID)
		if err != nil || product == nil {
			return clarifyProduct()
		}
		return e.describeProduct(product, sess)
	}

	product, err := e.resolver.Resolve(ctx, mention, e.hint(sess))
	if err != nil {
		slog.Error("product resolution failed", "session_id", sess.SessionID, "error", err)
		return &Reply{
			Action:  ActionProductNotFound,
			Message: "I could not check the catalog just now. Please try again in a moment.",
		}
	}
	if product == nil {
		return &Reply{
			Success: true,
			Action:  ActionProductNotFound,
			Message: fmt.Sprintf("I could not find %q in our catalog. Could you give me the brand or a more specific name?", strings.TrimSpace(mention)),
		}
	}
	return e.describeProduct(product, sess)
}

func (e *Engine) describeProduct(product *domain.Product, sess *domain.Session) *Reply {
	ref := product.Ref()
	sess.LastProductMentioned = &ref
	if sess.Stage == domain.StageBrowsing || sess.Stage == domain.StageCartEmptyCheckoutAttempt {
		sess.Stage = domain.StageProductDiscussed
	}
	return &Reply{
		Success: true,
		Action:  ActionProductInfo,
		Message: fmt.Sprintf("%s is %s. We have %d in stock. Want me to add it to your cart?",
			product.Name, naira(product.UnitPrice), product.StockQuantity),
	}
}

// handleAddToCart adds a product to the cart. Pronoun references resolve
// only through conversation state; a reference with no grounding is a
// clarification, never a guess, and the cart is not mutated.
func (e *Engine) handleAddToCart(ctx context.Context, text string, parsed intent.Result, sess *domain.Session) *Reply {
	quantity := 1
	if q := parsed.Entity(intent.EntityQuantity); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			quantity = n
		}
	}

	mention := parsed.Entity(intent.EntityProduct)
	if mention == "" || intent.IsBareReference(mention) {
		ref := e.lastProduct(ctx, sess)
		if ref == nil {
			return &Reply{
				Action:                 ActionRequireProduct,
				RequireSpecificProduct: true,
				Message:                "Which product would you like to add? Tell me the name and I'll take care of it.",
			}
		}
		product, err := e.resolver.Lookup(ctx, ref.ProductID)
		if err != nil {
			slog.Error("product lookup failed", "session_id", sess.SessionID, "product_id", ref.ProductID, "error", err)
			return &Reply{Action: ActionOutOfStock, Message: "I could not check stock just now. Please try again in a moment."}
		}
		if product == nil || !product.InStock() {
			return &Reply{
				Action:  ActionOutOfStock,
				Message: fmt.Sprintf("%s is out of stock right now, so I have not added it. Anything else?", ref.Name),
			}
		}
		return e.addLine(product, quantity, sess)
	}

	product, err := e.resolver.Resolve(ctx, mention, e.hint(sess))
	if err != nil {
		slog.Error("product resolution failed", "session_id", sess.SessionID, "error", err)
		return &Reply{Action: ActionProductNotFound, Message: "I could not check the catalog just now. Please try again in a moment."}
	}
	if product == nil {
		return &Reply{
			Action:                 ActionRequireProduct,
			RequireSpecificProduct: true,
			Message:                fmt.Sprintf("I could not match %q to a product we stock. Could you give me the exact name or brand?", strings.TrimSpace(mention)),
		}
	}
	return e.addLine(product, quantity, sess)
}

func (e *Engine) addLine(product *domain.Product, quantity int, sess *domain.Session) *Reply {
	ref := product.Ref()
	sess.AddItem(ref, quantity)
	sess.LastProductMentioned = &ref
	sess.Stage = domain.StageCartUpdated
	return &Reply{
		Success: true,
		Action:  ActionAddedToCart,
		Message: fmt.Sprintf("Added %d x %s to your cart. Cart total: %s. Ready to checkout?",
			quantity, product.Name, naira(sess.CartTotal())),
	}
}

func (e *Engine) handleViewCart(sess *domain.Session) *Reply {
	if len(sess.CartItems) == 0 {
		msg := "Your cart is empty. Tell me what you are looking for and I'll find it."
		if sess.Stage == domain.StageOrderPlaced && sess.Checkout.PlacedOrderID != "" {
			msg = fmt.Sprintf("Your cart is empty. Order %s has been placed. Start a new order anytime.",
				sess.Checkout.PlacedOrderID)
		}
		return &Reply{Success: true, Action: ActionCartEmpty, Message: msg}
	}

	var b strings.Builder
	b.WriteString("Your cart:\n")
	for _, item := range sess.CartItems {
		fmt.Fprintf(&b, "- %d x %s — %s\n", item.Quantity, item.ProductName, naira(item.Subtotal))
	}
	fmt.Fprintf(&b, "Total: %s", naira(sess.CartTotal()))
	return &Reply{Success: true, Action: ActionCartContents, Message: b.String()}
}

func (e *Engine) handleClearCart(sess *domain.Session) *Reply {
	sess.ClearCart()
	sess.Stage = domain.StageBrowsing
	return &Reply{Success: true, Action: ActionCartCleared, Message: "Done, your cart is now empty."}
}

func (e *Engine) handleCheckout(ctx context.Context, text string, parsed intent.Result, sess *domain.Session) *Reply {
	step := e.checkout.Advance(ctx, text, parsed, sess)
	reply := &Reply{
		Success: step.Action != checkout.ActionOutOfStock && step.Action != checkout.ActionOrderFailed,
		Action:  step.Action,
		Message: step.Message,
	}
	if step.Order != nil {
		reply.OrderID = step.Order.OrderID
	}
	return reply
}

// lastProduct resolves "it"/"that one" to a concrete product reference:
// first the live session, then the entity memory tier for sessions that
// were reconstructed mid-conversation.
func (e *Engine) lastProduct(ctx context.Context, sess *domain.Session) *domain.ProductRef {
	if sess.LastProductMentioned != nil {
		return sess.LastProductMentioned
	}
	mem := e.mem.GetContext(ctx, sess.SessionID, "")
	return mem.LastProduct
}

func (e *Engine) hint(sess *domain.Session) string {
	if sess.LastProductMentioned == nil {
		return ""
	}
	return sess.LastProductMentioned.Name
}

func clarifyProduct() *Reply {
	return &Reply{
		Success: true,
		Action:  ActionProductNotFound,
		Message: "Which product do you mean? Give me the name and I'll pull it up.",
	}
}

// startsNewCycle reports whether an intent should roll an order_placed
// session into a fresh shopping cycle.
func startsNewCycle(in intent.Intent) bool {
	switch in {
	case intent.ProductInquiry, intent.AddToCart, intent.Checkout, intent.PlaceOrder:
		return true
	}
	return false
}

func naira(amount float64) string {
	return fmt.Sprintf("₦%.2f", amount)
}
