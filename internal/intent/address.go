package intent

import (
	"regexp"
	"strings"

	"github.com/raqibtech/converse/internal/domain"
)

// nigerianStates is the set of delivery destinations the engine can
// quote fees for. Keys are lowercase.
var nigerianStates = map[string]string{
	"lagos": "Lagos", "abuja": "FCT", "fct": "FCT", "kano": "Kano",
	"rivers": "Rivers", "oyo": "Oyo", "kaduna": "Kaduna", "enugu": "Enugu",
	"ogun": "Ogun", "anambra": "Anambra", "delta": "Delta", "edo": "Edo",
	"imo": "Imo", "plateau": "Plateau", "akwa ibom": "Akwa Ibom",
	"abia": "Abia", "osun": "Osun", "ondo": "Ondo", "kwara": "Kwara",
	"benue": "Benue", "bayelsa": "Bayelsa", "cross river": "Cross River",
	"sokoto": "Sokoto", "katsina": "Katsina", "borno": "Borno",
	"niger": "Niger", "ekiti": "Ekiti", "kogi": "Kogi",
}

// cityToState maps well-known cities to their state.
var cityToState = map[string]string{
	"ikeja": "Lagos", "lekki": "Lagos", "surulere": "Lagos",
	"victoria island": "Lagos", "yaba": "Lagos", "ikorodu": "Lagos",
	"port harcourt": "Rivers", "ibadan": "Oyo", "benin city": "Edo",
	"benin": "Edo", "abeokuta": "Ogun", "onitsha": "Anambra",
	"awka": "Anambra", "jos": "Plateau", "warri": "Delta",
	"asaba": "Delta", "uyo": "Akwa Ibom", "owerri": "Imo",
	"calabar": "Cross River", "makurdi": "Benue", "ilorin": "Kwara",
	"akure": "Ondo", "oshogbo": "Osun", "yenagoa": "Bayelsa",
	"maiduguri": "Borno", "lokoja": "Kogi", "minna": "Niger",
	"ado ekiti": "Ekiti", "aba": "Abia", "nsukka": "Enugu",
	"zaria": "Kaduna", "garki": "FCT", "wuse": "FCT", "gwarinpa": "FCT",
}

// KnownPlace reports whether text contains a recognized Nigerian state
// or city name.
func KnownPlace(text string) bool {
	return findState(normalize(text)) != "" || findCity(normalize(text)) != ""
}

func findState(msg string) string {
	padded := " " + msg + " "
	for key, canonical := range nigerianStates {
		if strings.Contains(padded, " "+key+" ") {
			return canonical
		}
	}
	return ""
}

// findCity returns the longest matching city so "Port Harcourt" beats
// the embedded "Aba" in "5 Aba Road, Port Harcourt".
func findCity(msg string) string {
	padded := " " + msg + " "
	best := ""
	for key := range cityToState {
		if strings.Contains(padded, " "+key+" ") && len(key) > len(best) {
			best = key
		}
	}
	return best
}

var streetLikeRe = regexp.MustCompile(`\d+.*\b(?:street|road|avenue|close|crescent|estate|way|drive)\b`)

// ParseAddress extracts a delivery address from free text. It returns
// nil when the text names no recognized place and does not look like a
// street address; callers then fall back to prompting the shopper.
func ParseAddress(text string) *domain.DeliveryAddress {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil
	}
	msg := normalize(strings.ReplaceAll(raw, ",", " "))

	state := findState(msg)
	city := findCity(msg)
	if state == "" && city != "" {
		state = cityToState[city]
	}

	if state == "" && !streetLikeRe.MatchString(msg) {
		return nil
	}

	return &domain.DeliveryAddress{
		FullAddress: titleCase(strings.TrimRight(raw, "?!. ")),
		City:        titleCase(city),
		State:       state,
		RawText:     text,
	}
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
