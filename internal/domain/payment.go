package domain

import "strings"

// Canonical payment method names. The intent parser normalizes every
// recognized literal to one of these before it crosses a package boundary.
const (
	PaymentRaqibTechPay   = "RaqibTechPay"
	PaymentCard           = "Card"
	PaymentBankTransfer   = "Bank Transfer"
	PaymentCashOnDelivery = "Cash on Delivery"
	PaymentUSSD           = "USSD"
)

// PaymentMethods is the fixed set of accepted payment methods.
var PaymentMethods = []string{
	PaymentRaqibTechPay,
	PaymentCard,
	PaymentBankTransfer,
	PaymentCashOnDelivery,
	PaymentUSSD,
}

// ValidPaymentMethod reports whether name is a member of the fixed set.
// Comparison is case-insensitive; the canonical spelling is returned.
func ValidPaymentMethod(name string) (string, bool) {
	for _, m := range PaymentMethods {
		if strings.EqualFold(m, name) {
			return m, true
		}
	}
	return "", false
}
