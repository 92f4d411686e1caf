package domain

import "time"

// Loyalty tiers, ordered by cumulative spend.
const (
	TierBronze   = "Bronze"
	TierSilver   = "Silver"
	TierGold     = "Gold"
	TierPlatinum = "Platinum"
)

// Cumulative-spend thresholds (NGN) for each tier.
const (
	silverThreshold   = 100_000
	goldThreshold     = 500_000
	platinumThreshold = 2_000_000
)

// TierFor returns the loyalty tier for a cumulative spend amount.
func TierFor(totalSpent float64) string {
	switch {
	case totalSpent >= platinumThreshold:
		return TierPlatinum
	case totalSpent >= goldThreshold:
		return TierGold
	case totalSpent >= silverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}

// TierDiscountRate returns the order discount rate for a tier.
func TierDiscountRate(tier string) float64 {
	switch tier {
	case TierPlatinum:
		return 0.08
	case TierGold:
		return 0.05
	case TierSilver:
		return 0.02
	default:
		return 0
	}
}

// Customer is a registered shopper. SavedAddress and SavedPaymentMethod
// feed the checkout flow's "offer the last saved value" resolution step.
type Customer struct {
	CustomerID         string           `json:"customer_id"`
	Name               string           `json:"name"`
	State              string           `json:"state,omitempty"`
	Tier               string           `json:"tier"`
	TotalSpent         float64          `json:"total_spent"`
	SavedAddress       *DeliveryAddress `json:"saved_address,omitempty"`
	SavedPaymentMethod string           `json:"saved_payment_method,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}
