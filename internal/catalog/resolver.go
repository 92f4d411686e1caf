// Package catalog resolves free-text product mentions against the
// product catalog and loads the seed catalog file.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/raqibtech/converse/internal/domain"
	"github.com/raqibtech/converse/internal/store"
)

// minScore is the lowest candidate score accepted as a positive match.
// One category/brand hit scores 2; anything below that is a miss.
const minScore = 2

// stopwords are stripped from product mentions before matching.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "for": true,
	"me": true, "my": true, "please": true, "cart": true, "some": true,
	"of": true, "in": true, "on": true, "and": true, "with": true,
	"new": true, "good": true, "nice": true, "cheap": true, "best": true,
}

// synonyms expands common abbreviations to catalog vocabulary.
var synonyms = map[string][]string{
	"tv":      {"television"},
	"telly":   {"television"},
	"fridge":  {"refrigerator"},
	"ac":      {"air", "conditioner"},
	"aircon":  {"air", "conditioner"},
	"fone":    {"phone"},
	"laptops": {"laptop"},
	"buds":    {"earbuds"},
	"gen":     {"generator"},
	"pc":      {"computer"},
}

// Resolver maps fuzzy product text to canonical catalog records. It is
// stateless: pronoun resolution is the caller's job, using the session's
// last mentioned product, and never reaches the catalog.
type Resolver struct {
	repo store.Repository
}

// NewResolver creates a resolver over the given repository.
func NewResolver(repo store.Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve finds the best in-stock catalog match for a product mention.
// hint (typically the last mentioned product name) breaks ties toward
// what the conversation was already about. Returns (nil, nil) when
// nothing matches well enough: a weak match is treated as no match so
// the engine asks for clarification instead of guessing.
func (r *Resolver) Resolve(ctx context.Context, text, hint string) (*domain.Product, error) {
	tokens := Tokens(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	candidates, err := r.repo.SearchProducts(ctx, tokens, 20)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}

	hintTokens := Tokens(hint)

	var best *domain.Product
	bestScore := 0
	for _, p := range candidates {
		// Out-of-stock products are never a positive match.
		if !p.InStock() {
			continue
		}
		score := scoreCandidate(p, tokens, hintTokens)
		if score > bestScore {
			best = p
			bestScore = score
		}
	}

	if bestScore < minScore {
		return nil, nil
	}
	return best, nil
}

// Lookup fetches a product by id. Returns (nil, nil) when the id is
// unknown, mirroring the repository contract.
func (r *Resolver) Lookup(ctx context.Context, productID string) (*domain.Product, error) {
	p, err := r.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	return p, nil
}

func scoreCandidate(p *domain.Product, tokens, hintTokens []string) int {
	name := strings.ToLower(p.Name)
	brand := strings.ToLower(p.Brand)
	category := strings.ToLower(p.Category)

	score := 0
	for _, tok := range tokens {
		switch {
		case strings.Contains(name, tok):
			score += 3
		case strings.Contains(brand, tok):
			score += 2
		case strings.Contains(category, tok):
			score += 2
		}
	}
	for _, tok := range hintTokens {
		if strings.Contains(name, tok) {
			score++
		}
	}
	return score
}

// Tokens normalizes a product mention into search tokens: lowercased,
// stopwords removed, synonyms expanded, naive plurals trimmed.
func Tokens(text string) []string {
	var tokens []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?\"'")
		if word == "" || stopwords[word] {
			continue
		}
		if expansions, ok := synonyms[word]; ok {
			tokens = append(tokens, expansions...)
			continue
		}
		if len(word) > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") {
			word = strings.TrimSuffix(word, "s")
			// "fridges" -> "fridge" still needs the synonym expansion.
			if expansions, ok := synonyms[word]; ok {
				tokens = append(tokens, expansions...)
				continue
			}
		}
		tokens = append(tokens, word)
	}
	return tokens
}
