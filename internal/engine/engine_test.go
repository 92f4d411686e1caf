package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raqibtech/converse/internal/catalog"
	"github.com/raqibtech/converse/internal/checkout"
	"github.com/raqibtech/converse/internal/config"
	"github.com/raqibtech/converse/internal/domain"
	"github.com/raqibtech/converse/internal/memory"
	"github.com/raqibtech/converse/internal/store"
)

// mapKV is a minimal memory.Store for tests.
type mapKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapKV() *mapKV { return &mapKV{data: make(map[string][]byte)} }

func (s *mapKV) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *mapKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

func (s *mapKV) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// failingOrderRepo wraps a Repository and fails every order commit.
type failingOrderRepo struct {
	store.Repository
}

func (f *failingOrderRepo) CreateOrder(context.Context, domain.OrderRequest) (*domain.OrderResult, error) {
	return nil, errors.New("database gone away")
}

func seededRepo(t *testing.T) *store.MemoryStore {
	t.Helper()
	repo := store.NewMemory()
	ctx := context.Background()
	products := []*domain.Product{
		{ProductID: "p1", Name: "Samsung Galaxy A15 Phone", Category: "Phones", Brand: "Samsung", UnitPrice: 185_000, StockQuantity: 10},
		{ProductID: "p2", Name: "LG 43 Inch Smart Television", Category: "Televisions", Brand: "LG", UnitPrice: 310_000, StockQuantity: 5},
		{ProductID: "p3", Name: "Apple Watch SE", Category: "Wearables", Brand: "Apple", UnitPrice: 390_000, StockQuantity: 0},
	}
	for _, p := range products {
		require.NoError(t, repo.UpsertProduct(ctx, p))
	}
	return repo
}

func newTestEngine(t *testing.T, repo store.Repository) *Engine {
	t.Helper()
	kv := newMapKV()
	cfg := config.MemoryConfig{
		SessionTTL: time.Hour, BufferTTL: time.Hour, EntityTTL: time.Hour,
		SummaryTTL: time.Hour, BufferSize: 10, SweepInterval: time.Minute,
	}
	sessions := memory.NewSessionStore(kv, cfg.SessionTTL)
	coordinator := memory.NewCoordinator(sessions, kv, memory.NewSemanticIndex(nil), cfg)
	return New(sessions, coordinator, catalog.NewResolver(repo), checkout.NewOrchestrator(repo))
}

func say(t *testing.T, e *Engine, sessionID, msg string) *Reply {
	t.Helper()
	reply, err := e.HandleMessage(context.Background(), sessionID, "", msg)
	require.NoError(t, err, "message %q", msg)
	return reply
}

// The reference conversation: inquiry, pronoun add, address, payment,
// confirmation. It must end with exactly one order placed for one unit.
func TestFullConversationScenario(t *testing.T) {
	repo := seededRepo(t)
	e := newTestEngine(t, repo)

	reply := say(t, e, "", "I want a Samsung phone")
	sid := reply.SessionID
	require.NotEmpty(t, sid)
	assert.Equal(t, ActionProductInfo, reply.Action)
	assert.Equal(t, domain.StageProductDiscussed, reply.Stage)
	assert.Empty(t, reply.CartItems)

	reply = say(t, e, sid, "add it to cart")
	assert.Equal(t, ActionAddedToCart, reply.Action)
	assert.Equal(t, domain.StageCartUpdated, reply.Stage)
	require.Len(t, reply.CartItems, 1)
	assert.Equal(t, "p1", reply.CartItems[0].ProductID)
	assert.Equal(t, 1, reply.CartItems[0].Quantity)

	reply = say(t, e, sid, "Lagos")
	assert.Equal(t, checkout.ActionPromptPayment, reply.Action)

	reply = say(t, e, sid, "RaqibTechPay")
	assert.Equal(t, checkout.ActionOrderSummary, reply.Action)
	assert.Equal(t, domain.StageAwaitingOrderConfirmation, reply.Stage)

	reply = say(t, e, sid, "yes")
	assert.Equal(t, checkout.ActionOrderPlaced, reply.Action)
	assert.Equal(t, domain.StageOrderPlaced, reply.Stage)
	assert.NotEmpty(t, reply.OrderID)
	assert.Empty(t, reply.CartItems)

	p, err := repo.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 9, p.StockQuantity, "exactly one unit committed")
}

// A pronoun with nothing to refer to must ask, never guess, and never
// mutate the cart.
func TestPronounOnFreshSession(t *testing.T) {
	e := newTestEngine(t, seededRepo(t))

	reply := say(t, e, "", "add it to cart")
	assert.Equal(t, ActionRequireProduct, reply.Action)
	assert.True(t, reply.RequireSpecificProduct)
	assert.False(t, reply.Success)
	assert.Empty(t, reply.CartItems)
}

func TestUnmatchedProductNeverInvented(t *testing.T) {
	e := newTestEngine(t, seededRepo(t))

	reply := say(t, e, "", "add a quantum hoverboard to my cart")
	assert.Equal(t, ActionRequireProduct, reply.Action)
	assert.True(t, reply.RequireSpecificProduct)
	assert.Empty(t, reply.CartItems)
}

func TestInquiryNeverMutatesCart(t *testing.T) {
	e := newTestEngine(t, seededRepo(t))

	reply := say(t, e, "", "how much is the LG television")
	sid := reply.SessionID
	assert.Equal(t, ActionProductInfo, reply.Action)
	assert.Empty(t, reply.CartItems)

	reply = say(t, e, sid, "do you have samsung phones?")
	assert.Empty(t, reply.CartItems)
}

func TestRepeatedAddMergesLine(t *testing.T) {
	e := newTestEngine(t, seededRepo(t))

	reply := say(t, e, "", "add a samsung phone to my cart")
	sid := reply.SessionID
	reply = say(t, e, sid, "add a samsung phone to my cart")

	require.Len(t, reply.CartItems, 1)
	assert.Equal(t, 2, reply.CartItems[0].Quantity)
	assert.Equal(t, 2*185_000.0, reply.CartTotal)
}

func TestQuantityAdd(t *testing.T) {
	e := newTestEngine(t, seededRepo(t))

	reply := say(t, e, "", "add 3 samsung phones to cart")
	require.Len(t, reply.CartItems, 1)
	assert.Equal(t, 3, reply.CartItems[0].Quantity)
}

func TestOutOfStockProductNotAdded(t *testing.T) {
	e := newTestEngine(t, seededRepo(t))

	reply := say(t, e, "", "add an apple watch to my cart")
	assert.Empty(t, reply.CartItems)
	assert.NotEqual(t, ActionAddedToCart, reply.Action)
}

func TestViewAndClearCart(t *testing.T) {
	e := newTestEngine(t, seededRepo(t))

	reply := say(t, e, "", "what's in my cart?")
	sid := reply.SessionID
	assert.Equal(t, ActionCartEmpty, reply.Action)

	say(t, e, sid, "add a samsung phone to my cart")
	reply = say(t, e, sid, "show my cart")
	assert.Equal(t, ActionCartContents, reply.Action)
	assert.Len(t, reply.CartItems, 1)

	reply = say(t, e, sid, "clear my cart")
	assert.Equal(t, ActionCartCleared, reply.Action)
	assert.Empty(t, reply.CartItems)
	assert.Equal(t, domain.StageBrowsing, reply.Stage)
}

func TestEmptyCartPlaceOrder(t *testing.T) {
	e := newTestEngine(t, seededRepo(t))

	reply := say(t, e, "", "place my order")
	assert.Equal(t, checkout.ActionEmptyCart, reply.Action)
	assert.Equal(t, domain.StageCartEmptyCheckoutAttempt, reply.Stage)
}

// A shopping message after a placed order starts a new cycle instead of
// tripping over the emptied cart.
func TestNewCycleAfterOrder(t *testing.T) {
	e := newTestEngine(t, seededRepo(t))

	reply := say(t, e, "", "add a samsung phone to my cart")
	sid := reply.SessionID
	say(t, e, sid, "Lagos")
	say(t, e, sid, "card")
	reply = say(t, e, sid, "yes")
	require.Equal(t, checkout.ActionOrderPlaced, reply.Action)

	reply = say(t, e, sid, "I want an LG television")
	assert.Equal(t, ActionProductInfo, reply.Action)
	assert.Equal(t, domain.StageProductDiscussed, reply.Stage)

	reply = say(t, e, sid, "add it to cart")
	assert.Equal(t, ActionAddedToCart, reply.Action)
	require.Len(t, reply.CartItems, 1)
	assert.Equal(t, "p2", reply.CartItems[0].ProductID)
}

// A failed commit keeps cart and checkout details so the shopper can
// retry; a later retry succeeds without double-charging.
func TestCommitFailureKeepsState(t *testing.T) {
	repo := seededRepo(t)
	flaky := &failingOrderRepo{Repository: repo}
	e := newTestEngine(t, flaky)

	reply := say(t, e, "", "add a samsung phone to my cart")
	sid := reply.SessionID
	say(t, e, sid, "Lagos")
	say(t, e, sid, "card")

	reply = say(t, e, sid, "yes")
	assert.Equal(t, checkout.ActionOrderFailed, reply.Action)
	assert.False(t, reply.Success)
	assert.Len(t, reply.CartItems, 1)
	assert.NotEqual(t, domain.StageOrderPlaced, reply.Stage)
}

func TestAffirmativeOutsideCheckout(t *testing.T) {
	e := newTestEngine(t, seededRepo(t))

	reply := say(t, e, "", "yes")
	assert.Equal(t, ActionAcknowledged, reply.Action)
	assert.Equal(t, domain.StageBrowsing, reply.Stage)
}

func TestAccountManagementHandOff(t *testing.T) {
	e := newTestEngine(t, seededRepo(t))

	reply := say(t, e, "", "update my phone number")
	assert.Equal(t, ActionAccountHelp, reply.Action)
	assert.Empty(t, reply.CartItems)
}

func TestSessionPersistsAcrossMessages(t *testing.T) {
	e := newTestEngine(t, seededRepo(t))

	reply := say(t, e, "", "add a samsung phone to my cart")
	sid := reply.SessionID

	sess, err := e.Session(context.Background(), sid)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Len(t, sess.CartItems, 1)
	assert.Greater(t, sess.Version, int64(0))
}

func TestConcurrentMessagesSameSession(t *testing.T) {
	e := newTestEngine(t, seededRepo(t))

	reply := say(t, e, "", "hello there")
	sid := reply.SessionID

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.HandleMessage(context.Background(), sid, "", "add a samsung phone to my cart")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := e.Session(context.Background(), sid)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Len(t, sess.CartItems, 1)
	assert.Equal(t, 8, sess.CartItems[0].Quantity)
}

func TestEmptyMessageRejected(t *testing.T) {
	e := newTestEngine(t, seededRepo(t))
	_, err := e.HandleMessage(context.Background(), "", "", "   ")
	assert.Error(t, err)
}
