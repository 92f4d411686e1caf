package engine

import "github.com/raqibtech/converse/internal/domain"

// transitions defines the legal edges of the conversation state machine.
// Staying in the current stage is always legal and not listed.
var transitions = map[domain.Stage][]domain.Stage{
	domain.StageBrowsing: {
		domain.StageProductDiscussed,
		domain.StageCartUpdated,
		domain.StageCartEmptyCheckoutAttempt,
	},
	domain.StageProductDiscussed: {
		domain.StageBrowsing,
		domain.StageCartUpdated,
		domain.StageCartEmptyCheckoutAttempt,
	},
	domain.StageCartUpdated: {
		domain.StageBrowsing,
		domain.StageProductDiscussed,
		domain.StageNeedAddress,
		domain.StageAwaitingAddressConfirmation,
		domain.StageAddressSet,
		domain.StageNeedPayment,
		domain.StageAwaitingPaymentConfirmation,
		domain.StagePaymentMethodSet,
		domain.StageAwaitingOrderConfirmation,
	},
	domain.StageCartEmptyCheckoutAttempt: {
		domain.StageBrowsing,
		domain.StageProductDiscussed,
		domain.StageCartUpdated,
	},
	domain.StageNeedAddress: {
		domain.StageBrowsing,
		domain.StageProductDiscussed,
		domain.StageCartUpdated,
		domain.StageAwaitingAddressConfirmation,
		domain.StageAddressSet,
		domain.StageNeedPayment,
		domain.StageAwaitingPaymentConfirmation,
		domain.StagePaymentMethodSet,
		domain.StageAwaitingOrderConfirmation,
		domain.StageCartEmptyCheckoutAttempt,
	},
	domain.StageAwaitingAddressConfirmation: {
		domain.StageNeedAddress,
		domain.StageAddressSet,
		domain.StageNeedPayment,
		domain.StageAwaitingPaymentConfirmation,
		domain.StagePaymentMethodSet,
		domain.StageAwaitingOrderConfirmation,
		domain.StageCartUpdated,
	},
	domain.StageAddressSet: {
		domain.StageNeedPayment,
		domain.StageAwaitingPaymentConfirmation,
		domain.StagePaymentMethodSet,
		domain.StageAwaitingOrderConfirmation,
		domain.StageCartUpdated,
		domain.StageProductDiscussed,
	},
	domain.StageNeedPayment: {
		domain.StageBrowsing,
		domain.StageProductDiscussed,
		domain.StageCartUpdated,
		domain.StageAwaitingPaymentConfirmation,
		domain.StagePaymentMethodSet,
		domain.StageAwaitingOrderConfirmation,
		domain.StageCartEmptyCheckoutAttempt,
	},
	domain.StageAwaitingPaymentConfirmation: {
		domain.StageNeedPayment,
		domain.StagePaymentMethodSet,
		domain.StageAwaitingOrderConfirmation,
		domain.StageCartUpdated,
	},
	domain.StagePaymentMethodSet: {
		domain.StageAwaitingOrderConfirmation,
		domain.StageCartUpdated,
		domain.StageProductDiscussed,
	},
	domain.StageAwaitingOrderConfirmation: {
		domain.StageOrderPlaced,
		domain.StageCartUpdated,
		domain.StageProductDiscussed,
	},
	domain.StageOrderPlaced: {
		domain.StageBrowsing,
		domain.StageProductDiscussed,
		domain.StageCartUpdated,
		domain.StageCartEmptyCheckoutAttempt,
	},
}

// CanTransition reports whether moving from one stage to another is a
// defined edge. Remaining in place is always allowed.
func CanTransition(from, to domain.Stage) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
