package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

const embeddingDim = 128

// SemanticIndex is the semantic memory tier: an embedded vector index of
// past turns, queried to surface related earlier conversation when the
// current message is ambiguous. One collection per session.
type SemanticIndex struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc
	mu    sync.Mutex
}

// NewSemanticIndex creates an in-process semantic index. The default
// embedder is a local deterministic token-hash embedding; a remote
// embedding service can be swapped in through embed.
func NewSemanticIndex(embed chromem.EmbeddingFunc) *SemanticIndex {
	if embed == nil {
		embed = localEmbedding
	}
	return &SemanticIndex{db: chromem.NewDB(), embed: embed}
}

func (s *SemanticIndex) collection(sessionID string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.db.GetOrCreateCollection("turns-"+sessionID, nil, s.embed)
	if err != nil {
		return nil, fmt.Errorf("semantic collection for %s: %w", sessionID, err)
	}
	return col, nil
}

// Add indexes one turn's text.
func (s *SemanticIndex) Add(ctx context.Context, sessionID, id, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	col, err := s.collection(sessionID)
	if err != nil {
		return err
	}
	if err := col.AddDocument(ctx, chromem.Document{ID: id, Content: text}); err != nil {
		return fmt.Errorf("index turn %s: %w", id, err)
	}
	return nil
}

// Query returns up to k related past turns for the given text, most
// similar first.
func (s *SemanticIndex) Query(ctx context.Context, sessionID, text string, k int) ([]string, error) {
	col, err := s.collection(sessionID)
	if err != nil {
		return nil, err
	}
	count := col.Count()
	if count == 0 || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := col.Query(ctx, text, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("semantic query: %w", err)
	}
	related := make([]string, 0, len(results))
	for _, res := range results {
		related = append(related, res.Content)
	}
	return related, nil
}

// localEmbedding is a deterministic bag-of-tokens hash embedding. It
// stands in for an external embedding service: token overlap still maps
// to vector similarity, which is enough for recalling related turns
// within a single shopping conversation.
func localEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?\"'")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%embeddingDim]++
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		// chromem rejects zero vectors; give empty text a fixed direction.
		vec[0] = 1
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}
