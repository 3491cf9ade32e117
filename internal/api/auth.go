package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// tokenIssuer is the iss claim of tokens minted by IssueToken.
const tokenIssuer = "lcdcanvas"

// ErrInvalidToken is returned by ParseToken for any rejected token.
var ErrInvalidToken = errors.New("api: invalid token")

// IssueToken mints an HS256 token for subject. A zero ttl means the token
// never expires.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("api: empty jwt secret")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:   tokenIssuer,
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.NewString(),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates an HS256 token and returns its subject.
func ParseToken(secret, raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims.Subject, nil
}

func (s *Server) authEnabled() bool {
	return s.secCfg.JWT.Secret != ""
}

// ticketStore holds pending WebSocket tickets. Tickets are single-use and
// expire after ticketTTL.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]time.Time
	now     func() time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]time.Time), now: time.Now}
}

func (t *ticketStore) issue() string {
	ticket := uuid.NewString()
	t.mu.Lock()
	t.tickets[ticket] = t.now().Add(ticketTTL)
	t.mu.Unlock()
	return ticket
}

// redeem consumes ticket and reports whether it was valid.
func (t *ticketStore) redeem(ticket string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	expires, ok := t.tickets[ticket]
	if !ok {
		return false
	}
	delete(t.tickets, ticket)
	return t.now().Before(expires)
}

func (t *ticketStore) clean() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for k, exp := range t.tickets {
		if !now.Before(exp) {
			delete(t.tickets, k)
		}
	}
}

func (t *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.clean()
		}
	}
}

// handleWSTicket issues a single-use ticket for GET /ws?ticket=...
func (s *Server) handleWSTicket(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     s.tickets.issue(),
		"expires_in": int(ticketTTL.Seconds()),
	})
}
