// Package identity provides anonymous per-device shopper identity.
// Shoppers get a long-lived cookie on first contact; the id doubles as
// the customer id so saved addresses and loyalty spend accrue without a
// signup step.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/raqibtech/converse/internal/domain"
	"github.com/raqibtech/converse/internal/store"
)

const (
	AnonCookieName        = "converse_anon_id"
	SessionHeaderName     = "X-Converse-Session-ID"
	DefaultSessionIDValue = ""
	anonCookieMaxAge      = 30 * 24 * time.Hour
)

type contextKey int

const (
	customerIDKey contextKey = iota
	sessionIDKey
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// CustomerIDFromContext extracts the shopper id from the request context.
func CustomerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(customerIDKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the conversation session id supplied by
// the client, or "" when the client wants a new conversation.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

func deriveName(customerID string) string {
	if len(customerID) > 13 {
		return "Guest " + customerID[len(customerID)-6:]
	}
	return "Guest"
}

func ensureCustomer(ctx context.Context, repo store.Repository, customerID string) error {
	customer, err := repo.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if customer != nil {
		return nil
	}

	now := time.Now().UTC()
	return repo.UpsertCustomer(ctx, &domain.Customer{
		CustomerID: customerID,
		Name:       deriveName(customerID),
		Tier:       domain.TierBronze,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	setCookie := func(id string) {
		http.SetCookie(w, &http.Cookie{
			Name:     AnonCookieName,
			Value:    id,
			Path:     "/",
			MaxAge:   int(anonCookieMaxAge.Seconds()),
			Expires:  time.Now().Add(anonCookieMaxAge),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   !isDev,
		})
	}

	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setCookie(c.Value)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setCookie(id)
	return id, nil
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

// Middleware injects anonymous per-device shopper identity and the
// client-supplied conversation session id.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			customerID, err := getOrCreateAnonID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensureCustomer(r.Context(), repo, customerID); err != nil {
				http.Error(w, `{"error":"failed to initialize shopper profile"}`, http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), customerIDKey, customerID)
			ctx = context.WithValue(ctx, sessionIDKey, sessionIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
