package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dealerhub/showroom/pkg/config"
	redisclient "github.com/dealerhub/showroom/pkg/redis"
	"github.com/dealerhub/showroom/pkg/security"
	"github.com/google/uuid"
)

const refreshTokenBytes = 32

var ErrInvalidRefreshToken = errors.New("invalid refresh token")

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type sessionKeyer interface {
	AccessSessionKey(accessID string) string
}

// record is the refresh session persisted per access id. Only the token hash
// is stored. Generation counts rotations since sign-in so logs can tell a long
// lived showroom session from a fresh one.
type record struct {
	UserID     string    `json:"user_id"`
	TokenHash  string    `json:"token_hash"`
	IssuedAt   time.Time `json:"issued_at"`
	Generation int       `json:"generation"`
}

// Manager issues, rotates and revokes refresh sessions. Each access token id
// (the JWT jti) owns exactly one refresh session.
type Manager struct {
	store sessionStore
	keyer sessionKeyer
	ttl   time.Duration
	now   func() time.Time
}

// AccessSessionChecker exposes the read-only surface needed by middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// NewManager constructs a session manager backed by Redis.
func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	ttl := cfg.RefreshTokenTTL()
	if ttl <= 0 {
		return nil, fmt.Errorf("refresh token ttl must be positive")
	}
	if accessTTL := cfg.AccessTokenTTL(); ttl <= accessTTL {
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", ttl, accessTTL)
	}

	return &Manager{
		store: client,
		keyer: client,
		ttl:   ttl,
		now:   time.Now,
	}, nil
}

// Generate creates a refresh token bound to userID and stores its hash under accessID.
func (m *Manager) Generate(ctx context.Context, userID uuid.UUID, accessID string) (string, error) {
	if strings.TrimSpace(accessID) == "" {
		return "", fmt.Errorf("access id is required")
	}
	if userID == uuid.Nil {
		return "", fmt.Errorf("user id is required")
	}
	token, err := generateRefreshToken()
	if err != nil {
		return "", err
	}
	if err := m.put(ctx, accessID, userID, token, 0); err != nil {
		return "", err
	}
	return token, nil
}

// Rotate exchanges the refresh token of oldAccessID for a new access id and
// refresh token. The old session is removed, so a token can be rotated once.
func (m *Manager) Rotate(ctx context.Context, userID uuid.UUID, oldAccessID, provided string) (string, string, error) {
	if strings.TrimSpace(oldAccessID) == "" || strings.TrimSpace(provided) == "" {
		return "", "", ErrInvalidRefreshToken
	}

	key := m.keyer.AccessSessionKey(oldAccessID)
	stored, err := m.load(ctx, key)
	if err != nil {
		return "", "", err
	}
	if stored.UserID != userID.String() {
		return "", "", ErrInvalidRefreshToken
	}
	if subtle.ConstantTimeCompare([]byte(stored.TokenHash), []byte(security.HashToken(provided))) != 1 {
		return "", "", ErrInvalidRefreshToken
	}

	newAccessID := NewAccessID()
	newToken, err := generateRefreshToken()
	if err != nil {
		return "", "", err
	}
	if err := m.put(ctx, newAccessID, userID, newToken, stored.Generation+1); err != nil {
		return "", "", err
	}
	if err := m.store.Del(ctx, key); err != nil {
		return "", "", err
	}

	return newAccessID, newToken, nil
}

// Revoke deletes the refresh mapping tied to the access identifier.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return fmt.Errorf("access id is required")
	}
	return m.store.Del(ctx, m.keyer.AccessSessionKey(accessID))
}

// HasSession reports whether the provided access ID still has an active refresh session.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, fmt.Errorf("access id is required")
	}
	if _, err := m.load(ctx, m.keyer.AccessSessionKey(accessID)); err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NewAccessID produces a stable identifier used as the JWT jti/Redis key.
func NewAccessID() string {
	return uuid.NewString()
}

func (m *Manager) put(ctx context.Context, accessID string, userID uuid.UUID, token string, generation int) error {
	payload, err := json.Marshal(record{
		UserID:     userID.String(),
		TokenHash:  security.HashToken(token),
		IssuedAt:   m.now().UTC(),
		Generation: generation,
	})
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return m.store.Set(ctx, m.keyer.AccessSessionKey(accessID), string(payload), m.ttl)
}

func (m *Manager) load(ctx context.Context, key string) (record, error) {
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redisclient.Nil) {
			return record{}, ErrInvalidRefreshToken
		}
		return record{}, err
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.TokenHash == "" {
		// Unreadable sessions can never rotate, drop them.
		_ = m.store.Del(ctx, key)
		return record{}, ErrInvalidRefreshToken
	}
	return rec, nil
}

func generateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
