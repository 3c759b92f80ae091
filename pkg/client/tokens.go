package client

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dealerhub/showroom/internal/account"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
)

// TokenStorageKey is where the token pair lives in local storage.
const TokenStorageKey = "showroom.auth.token"

// TokenPair is the persisted session.
type TokenPair struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	ExpiresAt    time.Time         `json:"expires_at"`
	User         *account.Identity `json:"user,omitempty"`
}

// TokenStore reads and writes the token pair through any LocalStorage.
type TokenStore struct {
	storage account.LocalStorage
}

func NewTokenStore(storage account.LocalStorage) *TokenStore {
	return &TokenStore{storage: storage}
}

// Load returns nil when no session is stored. A corrupt value is dropped.
func (s *TokenStore) Load(ctx context.Context) (*TokenPair, error) {
	raw, ok, err := s.storage.Get(ctx, TokenStorageKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read token")
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var pair TokenPair
	if err := json.Unmarshal([]byte(raw), &pair); err != nil || pair.AccessToken == "" {
		_ = s.storage.Remove(ctx, TokenStorageKey)
		return nil, nil
	}
	return &pair, nil
}

func (s *TokenStore) Save(ctx context.Context, pair TokenPair) error {
	raw, err := json.Marshal(pair)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode token")
	}
	if err := s.storage.Set(ctx, TokenStorageKey, string(raw)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write token")
	}
	return nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	if err := s.storage.Remove(ctx, TokenStorageKey); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear token")
	}
	return nil
}
