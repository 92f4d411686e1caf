package domain

import "testing"

func TestAddItemMergesLines(t *testing.T) {
	sess := NewSession("s1", "")
	phone := ProductRef{ProductID: "p1", Name: "Phone", UnitPrice: 100}

	sess.AddItem(phone, 1)
	sess.AddItem(phone, 2)

	if len(sess.CartItems) != 1 {
		t.Fatalf("expected 1 cart line, got %d", len(sess.CartItems))
	}
	line := sess.CartItems[0]
	if line.Quantity != 3 {
		t.Errorf("quantity = %d, want 3", line.Quantity)
	}
	if line.Subtotal != 300 {
		t.Errorf("subtotal = %v, want 300", line.Subtotal)
	}
}

func TestAddItemDefaultsQuantity(t *testing.T) {
	sess := NewSession("s1", "")
	sess.AddItem(ProductRef{ProductID: "p1", UnitPrice: 50}, 0)
	if sess.CartItems[0].Quantity != 1 {
		t.Errorf("quantity = %d, want 1", sess.CartItems[0].Quantity)
	}
}

func TestCartTotal(t *testing.T) {
	sess := NewSession("s1", "")
	sess.AddItem(ProductRef{ProductID: "p1", UnitPrice: 100}, 2)
	sess.AddItem(ProductRef{ProductID: "p2", UnitPrice: 50}, 1)
	if total := sess.CartTotal(); total != 250 {
		t.Errorf("CartTotal() = %v, want 250", total)
	}
}

func TestResetCycle(t *testing.T) {
	sess := NewSession("s1", "c1")
	sess.AddItem(ProductRef{ProductID: "p1", UnitPrice: 100}, 1)
	sess.DeliveryAddress = &DeliveryAddress{State: "Lagos"}
	sess.PaymentMethod = PaymentCard
	sess.Checkout = CheckoutState{PlacedOrderID: "ORD-1"}
	sess.Stage = StageOrderPlaced

	sess.ResetCycle()

	if len(sess.CartItems) != 0 {
		t.Errorf("cart not cleared")
	}
	if sess.Stage != StageBrowsing {
		t.Errorf("stage = %s, want %s", sess.Stage, StageBrowsing)
	}
	if sess.Checkout.PlacedOrderID != "" {
		t.Errorf("checkout state not reset")
	}
	if sess.DeliveryAddress == nil || sess.PaymentMethod != PaymentCard {
		t.Errorf("address and payment should survive a reset")
	}
}

func TestCloneIsolatesCart(t *testing.T) {
	sess := NewSession("s1", "")
	sess.AddItem(ProductRef{ProductID: "p1", UnitPrice: 100}, 1)

	cp := sess.Clone()
	cp.CartItems[0].Quantity = 99

	if sess.CartItems[0].Quantity != 1 {
		t.Errorf("mutating a clone leaked into the original")
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		spent float64
		tier  string
	}{
		{0, TierBronze},
		{99_999, TierBronze},
		{100_000, TierSilver},
		{499_999, TierSilver},
		{500_000, TierGold},
		{2_000_000, TierPlatinum},
	}
	for _, tt := range tests {
		if got := TierFor(tt.spent); got != tt.tier {
			t.Errorf("TierFor(%v) = %s, want %s", tt.spent, got, tt.tier)
		}
	}
}

func TestValidPaymentMethod(t *testing.T) {
	if canonical, ok := ValidPaymentMethod("raqibtechpay"); !ok || canonical != PaymentRaqibTechPay {
		t.Errorf("ValidPaymentMethod(raqibtechpay) = (%q, %v)", canonical, ok)
	}
	if _, ok := ValidPaymentMethod("bitcoin"); ok {
		t.Errorf("bitcoin should not validate")
	}
}
