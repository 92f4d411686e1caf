package intent

import (
	"regexp"
	"strings"

	"github.com/raqibtech/converse/internal/domain"
)

// matchFunc inspects a normalized message. ok is true when the rule
// claims the message; entities may be nil.
type matchFunc func(msg string) (entities map[string]string, ok bool)

// rule is one entry in the ordered classification table. Rules are
// evaluated top to bottom and the first match wins, so table order is
// part of the parser contract and is exercised directly by tests.
type rule struct {
	name       string
	intent     Intent
	confidence float64
	match      matchFunc
}

// rules is the classification table. Ordering constraints:
//
//   - account management runs first so "update my phone number" is never
//     read as a product search
//   - payment-method literals run before the generic "i want ..." phrases
//   - explicit place-order/checkout phrases run before add-to-cart
//   - exact affirmative/negative tokens run before any free-text fallback
//   - the shipping-rate exclusion runs before bare place names are
//     accepted as implicit delivery addresses
var rules = []rule{
	{
		name:       "account_management",
		intent:     AccountManagement,
		confidence: 0.9,
		match: reMatch(`(?:update|change|edit|reset)\s+my\s+(?:phone|email|password|name|profile|account|details)\b|\bmy\s+account\b|\baccount\s+settings\b|\bmy\s+(?:past\s+|previous\s+)?orders\b`),
	},
	{
		name:       "payment_method",
		intent:     PaymentMethodSelection,
		confidence: 0.9,
		match:      matchPayment,
	},
	{
		name:       "place_order",
		intent:     PlaceOrder,
		confidence: 0.95,
		match: reMatch(`\bplace\s+(?:my\s+|the\s+)?order\b|\bconfirm\s+(?:my\s+|the\s+)?order\b|\bcomplete\s+(?:my\s+)?(?:order|purchase)\b|\bfinalize\s+(?:my\s+|the\s+)?order\b`),
	},
	{
		name:       "checkout",
		intent:     Checkout,
		confidence: 0.9,
		match: reMatch(`\bcheck\s*out\b|\bproceed\s+to\s+pay(?:ment)?\b|\bready\s+to\s+pay\b|\bi(?:'m| am)\s+done\s+shopping\b|\blet'?s\s+pay\b`),
	},
	{
		name:       "clear_cart",
		intent:     ClearCart,
		confidence: 0.9,
		match: reMatch(`\b(?:clear|empty|reset)\s+(?:my\s+|the\s+)?cart\b|\bremove\s+everything\b|\bstart\s+over\b`),
	},
	{
		name:       "view_cart",
		intent:     ViewCart,
		confidence: 0.9,
		match: reMatch(`\b(?:view|show|see|open|check)\s+(?:me\s+)?(?:my\s+|the\s+)?cart\b|\bwhat(?:'s| is)\s+in\s+(?:my\s+|the\s+)?cart\b|^(?:my\s+)?cart\??$`),
	},
	{
		name:       "add_to_cart",
		intent:     AddToCart,
		confidence: 0.85,
		match:      matchAddToCart,
	},
	{
		name:       "affirmative",
		intent:     Affirmative,
		confidence: 0.95,
		match: reMatch(`^(?:yes|yeah|yep|yup|sure|ok|okay|confirm|confirmed|correct|go ahead|proceed|sounds good|please do|that'?s right|y)$`),
	},
	{
		name:       "negative",
		intent:     Negative,
		confidence: 0.95,
		match: reMatch(`^(?:no|nope|nah|cancel|not now|never\s?mind|don'?t|do not|stop|wrong|n)$`),
	},
	{
		// Shipping-rate questions mention places but are not addresses.
		// This exclusion must claim the message before the address rule.
		name:       "shipping_rate_inquiry",
		intent:     GeneralInquiry,
		confidence: 0.7,
		match: reMatch(`(?:how\s+much|what(?:'s| is)|cost|fee|charge|rate)s?\b[^?]*\b(?:deliver\w*|ship\w*)\b|\b(?:deliver\w*|ship\w*)\b[^?]*\b(?:cost|fee|charge|rate)s?\b`),
	},
	{
		name:       "delivery_address",
		intent:     SetDeliveryAddress,
		confidence: 0.85,
		match:      matchAddress,
	},
	{
		name:       "product_inquiry",
		intent:     ProductInquiry,
		confidence: 0.8,
		match:      matchProductInquiry,
	},
}

func reMatch(pattern string) matchFunc {
	re := regexp.MustCompile(pattern)
	return func(msg string) (map[string]string, bool) {
		return nil, re.MatchString(msg)
	}
}

// paymentLiterals maps spoken payment phrases to canonical names,
// ordered longest-first so the most specific literal wins ties
// ("debit card" before "card", "pay on delivery" before "pay").
var paymentLiterals = []struct {
	literal   string
	canonical string
}{
	{"cash on delivery", domain.PaymentCashOnDelivery},
	{"pay on delivery", domain.PaymentCashOnDelivery},
	{"payment on delivery", domain.PaymentCashOnDelivery},
	{"raqibtechpay", domain.PaymentRaqibTechPay},
	{"raqib tech pay", domain.PaymentRaqibTechPay},
	{"bank transfer", domain.PaymentBankTransfer},
	{"raqibpay", domain.PaymentRaqibTechPay},
	{"credit card", domain.PaymentCard},
	{"debit card", domain.PaymentCard},
	{"atm card", domain.PaymentCard},
	{"transfer", domain.PaymentBankTransfer},
	{"ussd", domain.PaymentUSSD},
	{"card", domain.PaymentCard},
	{"cod", domain.PaymentCashOnDelivery},
}

// NormalizePayment maps a payment mention to its canonical method name.
// The longest matching literal wins.
func NormalizePayment(text string) (string, bool) {
	msg := " " + normalize(text) + " "
	for _, pl := range paymentLiterals {
		if strings.Contains(msg, " "+pl.literal+" ") {
			return pl.canonical, true
		}
	}
	return "", false
}

var payContextRe = regexp.MustCompile(`\bpay(?:ing)?\s+(?:with|via|using|by|through)\b|\bi(?:'ll| will)\s+use\b|\buse\s+my\b`)

// matchPayment claims messages that name a concrete payment method,
// either bare ("raqibtechpay") or in a pay-with phrase. The bare literal
// check runs first so method mentions beat generic "want" phrasing.
func matchPayment(msg string) (map[string]string, bool) {
	canonical, ok := NormalizePayment(msg)
	if !ok {
		return nil, false
	}
	// A bare method name or short selection is unambiguous. Longer
	// sentences must carry pay-phrasing so "add a card reader to cart"
	// is not misread as a payment choice.
	if len(strings.Fields(msg)) <= 3 || payContextRe.MatchString(msg) {
		return map[string]string{EntityPayment: canonical}, true
	}
	return nil, false
}

var addToCartRes = []*regexp.Regexp{
	regexp.MustCompile(`\badd\s+(.+?)\s+to\s+(?:my\s+|the\s+)?cart\b`),
	regexp.MustCompile(`\bput\s+(.+?)\s+in(?:to)?\s+(?:my\s+|the\s+)?cart\b`),
	regexp.MustCompile(`\badd\s+(.+)$`),
	regexp.MustCompile(`\bi(?:'ll| will)\s+take\s+(.+)$`),
	regexp.MustCompile(`\bbuy\s+(.+)$`),
}

func matchAddToCart(msg string) (map[string]string, bool) {
	for _, re := range addToCartRes {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		product, quantity := splitQuantity(cleanProductText(m[1]))
		entities := map[string]string{EntityProduct: product}
		if quantity != "" {
			entities[EntityQuantity] = quantity
		}
		return entities, true
	}
	return nil, false
}

var productInquiryRes = []*regexp.Regexp{
	regexp.MustCompile(`\bdo\s+you\s+(?:have|sell|stock)\s+(.+)$`),
	regexp.MustCompile(`\bi(?:'m| am)\s+looking\s+for\s+(.+)$`),
	regexp.MustCompile(`\bi\s+(?:want|need)\s+(?:to\s+buy\s+)?(.+)$`),
	regexp.MustCompile(`\bhow\s+much\s+is\s+(.+)$`),
	regexp.MustCompile(`\bprice\s+of\s+(.+)$`),
	regexp.MustCompile(`\b(?:show|find)\s+me\s+(.+)$`),
	regexp.MustCompile(`\bsearch\s+for\s+(.+)$`),
	regexp.MustCompile(`\bany\s+(.+?)\s+(?:available|in stock)\??$`),
}

func matchProductInquiry(msg string) (map[string]string, bool) {
	for _, re := range productInquiryRes {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		product, _ := splitQuantity(cleanProductText(m[1]))
		if product == "" {
			continue
		}
		return map[string]string{EntityProduct: product}, true
	}
	return nil, false
}

var addressRes = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:deliver|ship|send)\s+(?:it\s+|them\s+|everything\s+)?to\s+(.+)$`),
	regexp.MustCompile(`\bmy\s+(?:delivery\s+)?address\s+is\s+(.+)$`),
	regexp.MustCompile(`\baddress:\s*(.+)$`),
	regexp.MustCompile(`\bi\s+live\s+(?:in|at)\s+(.+)$`),
}

// matchAddress claims explicit delivery phrasing, plus short messages
// that consist of a known place name ("Lagos", "ikeja, lagos"). The
// shipping-rate exclusion rule has already run by the time this fires.
func matchAddress(msg string) (map[string]string, bool) {
	for _, re := range addressRes {
		if m := re.FindStringSubmatch(msg); m != nil {
			return map[string]string{EntityAddress: strings.TrimSpace(m[1])}, true
		}
	}
	if len(strings.Fields(msg)) <= 4 && KnownPlace(msg) {
		return map[string]string{EntityAddress: msg}, true
	}
	return nil, false
}

var (
	articleRe   = regexp.MustCompile(`^(?:a|an|the|some|my)\s+`)
	trailPuncRe = regexp.MustCompile(`[?!.,\s]+$`)
	qtyPrefixRe = regexp.MustCompile(`^(\d+)\s*x?\s+`)
)

var numberWords = map[string]string{
	"one": "1", "two": "2", "three": "3", "four": "4", "five": "5",
	"six": "6", "seven": "7", "eight": "8", "nine": "9", "ten": "10",
	"a couple of": "2", "a pair of": "2",
}

func cleanProductText(text string) string {
	text = trailPuncRe.ReplaceAllString(strings.TrimSpace(text), "")
	text = strings.TrimSuffix(text, " please")
	text = strings.TrimSuffix(text, " for me")
	return strings.TrimSpace(text)
}

// splitQuantity peels a leading quantity off a product mention:
// "2 samsung phones" -> ("samsung phones", "2").
func splitQuantity(text string) (product, quantity string) {
	for phrase, digit := range numberWords {
		if strings.HasPrefix(text, phrase+" ") {
			return strings.TrimSpace(articleRe.ReplaceAllString(text[len(phrase)+1:], "")), digit
		}
	}
	if m := qtyPrefixRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(text[len(m[0]):]), m[1]
	}
	return strings.TrimSpace(articleRe.ReplaceAllString(text, "")), ""
}

var bareReferenceRe = regexp.MustCompile(`^(?:it|them|that|this|those|these|one|the same|same|both)$`)

// IsBareReference reports whether a product mention is only a pronoun or
// similar back-reference. Such mentions must be resolved from session
// context, never sent to the catalog.
func IsBareReference(productText string) bool {
	text := strings.TrimSpace(articleRe.ReplaceAllString(strings.ToLower(productText), ""))
	return text == "" || bareReferenceRe.MatchString(text)
}
