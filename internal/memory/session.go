package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/raqibtech/converse/internal/domain"
)

const sessionKeyPrefix = "mem:session:"

// SessionStore persists the canonical Session blob. It is the only tier
// the conversation engine writes directly; all other tiers are advisory.
type SessionStore struct {
	kv  Store
	ttl time.Duration
}

// NewSessionStore creates a session store with the given TTL.
func NewSessionStore(kv Store, ttl time.Duration) *SessionStore {
	return &SessionStore{kv: kv, ttl: ttl}
}

// Load reads a session. A miss returns (nil, nil); a corrupt blob is
// logged and treated as a miss so the caller reconstructs the session
// instead of failing the turn.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	blob, err := s.kv.Get(ctx, sessionKeyPrefix+sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if blob == nil {
		return nil, nil
	}

	var sess domain.Session
	// Unknown fields are dropped and missing fields default, so older
	// blobs keep loading as the schema evolves.
	if err := json.Unmarshal(blob, &sess); err != nil {
		slog.Warn("session blob corrupt, reconstructing", "session_id", sessionID, "error", err)
		return nil, nil
	}
	if sess.SessionID == "" {
		sess.SessionID = sessionID
	}
	if sess.Stage == "" {
		sess.Stage = domain.StageBrowsing
	}
	return &sess, nil
}

// Save writes the session blob under the store TTL and bumps the
// optimistic version stamp.
func (s *SessionStore) Save(ctx context.Context, sess *domain.Session) error {
	sess.Version++
	sess.UpdatedAt = time.Now().UTC()

	blob, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.SessionID, err)
	}
	if err := s.kv.Set(ctx, sessionKeyPrefix+sess.SessionID, blob, s.ttl); err != nil {
		return fmt.Errorf("save session %s: %w", sess.SessionID, err)
	}
	return nil
}
