package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/raqibtech/converse/internal/config"
	"github.com/raqibtech/converse/internal/domain"
)

const (
	bufferKeyPrefix  = "mem:buffer:"
	summaryKeyPrefix = "mem:summary:"
	productKeyPrefix = "mem:entity:product:"
	addressKeyPrefix = "mem:entity:address:"
	paymentKeyPrefix = "mem:entity:payment:"

	maxTopics  = 8
	relatedTop = 3
)

// Summary is the derived summary tier: cheap counters and topics that
// outlive the raw turn buffer.
type Summary struct {
	TurnCount    int            `json:"turn_count"`
	IntentCounts map[string]int `json:"intent_counts,omitempty"`
	Topics       []string       `json:"topics,omitempty"`
}

// Context is the merged read across all advisory tiers. Any tier that
// failed to load is simply zero-valued here.
type Context struct {
	Session     *domain.Session
	RecentTurns []domain.Turn
	Summary     Summary
	LastProduct *domain.ProductRef
	LastAddress *domain.DeliveryAddress
	LastPayment string
	Related     []string
}

// Coordinator fans conversation turns out to the five memory tiers and
// merges them back on read. Tiers fail independently: a write error in
// one tier never blocks the others, and a read error degrades that tier
// to its zero value instead of failing the whole read.
type Coordinator struct {
	sessions *SessionStore
	kv       Store
	semantic *SemanticIndex
	cfg      config.MemoryConfig
}

// NewCoordinator wires the tiers together.
func NewCoordinator(sessions *SessionStore, kv Store, semantic *SemanticIndex, cfg config.MemoryConfig) *Coordinator {
	return &Coordinator{sessions: sessions, kv: kv, semantic: semantic, cfg: cfg}
}

// StoreTurn records one completed exchange across the buffer, summary,
// entity and semantic tiers. The session tier is written separately by
// the engine through the SessionStore; sess is only snapshotted here for
// the entity tier.
func (c *Coordinator) StoreTurn(ctx context.Context, sessionID string, turn domain.Turn, sess *domain.Session) {
	if err := c.pushBuffer(ctx, sessionID, turn); err != nil {
		slog.Warn("memory tier write failed", "tier", "buffer", "session_id", sessionID, "error", err)
	}
	if err := c.updateSummary(ctx, sessionID, turn); err != nil {
		slog.Warn("memory tier write failed", "tier", "summary", "session_id", sessionID, "error", err)
	}
	if err := c.updateEntities(ctx, sessionID, sess); err != nil {
		slog.Warn("memory tier write failed", "tier", "entity", "session_id", sessionID, "error", err)
	}
	if c.semantic != nil {
		id := fmt.Sprintf("%s-%d", sessionID, turn.Timestamp.UnixNano())
		if err := c.semantic.Add(ctx, sessionID, id, turn.UserInput); err != nil {
			slog.Warn("memory tier write failed", "tier", "semantic", "session_id", sessionID, "error", err)
		}
	}
}

// GetContext reads every tier and merges the results. query is the
// current message, used for semantic recall.
func (c *Coordinator) GetContext(ctx context.Context, sessionID, query string) Context {
	var merged Context

	sess, err := c.sessions.Load(ctx, sessionID)
	if err != nil {
		slog.Warn("memory tier read failed", "tier", "session", "session_id", sessionID, "error", err)
	} else {
		merged.Session = sess
	}

	if turns, err := c.loadBuffer(ctx, sessionID); err != nil {
		slog.Warn("memory tier read failed", "tier", "buffer", "session_id", sessionID, "error", err)
	} else {
		merged.RecentTurns = turns
	}

	if summary, err := c.loadSummary(ctx, sessionID); err != nil {
		slog.Warn("memory tier read failed", "tier", "summary", "session_id", sessionID, "error", err)
	} else {
		merged.Summary = summary
	}

	merged.LastProduct = loadJSON[domain.ProductRef](ctx, c.kv, productKeyPrefix+sessionID)
	merged.LastAddress = loadJSON[domain.DeliveryAddress](ctx, c.kv, addressKeyPrefix+sessionID)
	if payment := loadJSON[string](ctx, c.kv, paymentKeyPrefix+sessionID); payment != nil {
		merged.LastPayment = *payment
	}

	if c.semantic != nil {
		if related, err := c.semantic.Query(ctx, sessionID, query, relatedTop); err != nil {
			slog.Warn("memory tier read failed", "tier", "semantic", "session_id", sessionID, "error", err)
		} else {
			merged.Related = related
		}
	}

	return merged
}

func (c *Coordinator) pushBuffer(ctx context.Context, sessionID string, turn domain.Turn) error {
	turns, err := c.loadBuffer(ctx, sessionID)
	if err != nil {
		// A broken buffer restarts empty rather than blocking the write.
		turns = nil
	}
	turns = append(turns, turn)
	if len(turns) > c.cfg.BufferSize {
		turns = turns[len(turns)-c.cfg.BufferSize:]
	}
	blob, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal buffer: %w", err)
	}
	return c.kv.Set(ctx, bufferKeyPrefix+sessionID, blob, c.cfg.BufferTTL)
}

func (c *Coordinator) loadBuffer(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	blob, err := c.kv.Get(ctx, bufferKeyPrefix+sessionID)
	if err != nil || blob == nil {
		return nil, err
	}
	var turns []domain.Turn
	if err := json.Unmarshal(blob, &turns); err != nil {
		return nil, fmt.Errorf("unmarshal buffer: %w", err)
	}
	return turns, nil
}

func (c *Coordinator) updateSummary(ctx context.Context, sessionID string, turn domain.Turn) error {
	summary, err := c.loadSummary(ctx, sessionID)
	if err != nil {
		summary = Summary{}
	}
	summary.TurnCount++
	if summary.IntentCounts == nil {
		summary.IntentCounts = make(map[string]int)
	}
	summary.IntentCounts[turn.Intent]++
	if topic := turn.Entities["product_text"]; topic != "" {
		summary.Topics = appendTopic(summary.Topics, topic)
	}

	blob, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return c.kv.Set(ctx, summaryKeyPrefix+sessionID, blob, c.cfg.SummaryTTL)
}

func (c *Coordinator) loadSummary(ctx context.Context, sessionID string) (Summary, error) {
	var summary Summary
	blob, err := c.kv.Get(ctx, summaryKeyPrefix+sessionID)
	if err != nil || blob == nil {
		return summary, err
	}
	if err := json.Unmarshal(blob, &summary); err != nil {
		return Summary{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	return summary, nil
}

// updateEntities mirrors the session's structured values into the
// entity tier, each under its own TTL.
func (c *Coordinator) updateEntities(ctx context.Context, sessionID string, sess *domain.Session) error {
	if sess == nil {
		return nil
	}
	var firstErr error
	record := func(key string, v interface{}, ttl time.Duration) {
		blob, err := json.Marshal(v)
		if err == nil {
			err = c.kv.Set(ctx, key, blob, ttl)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if sess.LastProductMentioned != nil {
		record(productKeyPrefix+sessionID, sess.LastProductMentioned, c.cfg.EntityTTL)
	}
	if sess.DeliveryAddress != nil {
		record(addressKeyPrefix+sessionID, sess.DeliveryAddress, c.cfg.SummaryTTL)
	}
	if sess.PaymentMethod != "" {
		record(paymentKeyPrefix+sessionID, sess.PaymentMethod, c.cfg.SummaryTTL)
	}
	return firstErr
}

func appendTopic(topics []string, topic string) []string {
	for _, t := range topics {
		if t == topic {
			return topics
		}
	}
	topics = append(topics, topic)
	if len(topics) > maxTopics {
		topics = topics[len(topics)-maxTopics:]
	}
	return topics
}

func loadJSON[T any](ctx context.Context, kv Store, key string) *T {
	blob, err := kv.Get(ctx, key)
	if err != nil {
		slog.Warn("memory tier read failed", "tier", "entity", "key", key, "error", err)
		return nil
	}
	if blob == nil {
		return nil
	}
	var v T
	if err := json.Unmarshal(blob, &v); err != nil {
		slog.Warn("entity record corrupt", "key", key, "error", err)
		return nil
	}
	return &v
}
