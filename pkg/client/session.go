package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dealerhub/showroom/internal/account"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
)

type tokenResponse struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	ExpiresAt    time.Time         `json:"expires_at"`
	User         *account.Identity `json:"user"`
}

func (t tokenResponse) pair() TokenPair {
	return TokenPair{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken, ExpiresAt: t.ExpiresAt, User: t.User}
}

func (c *Client) SignUp(ctx context.Context, creds account.Credentials, profile account.Profile) (*account.Identity, error) {
	body := map[string]any{
		"email":     strings.TrimSpace(creds.Email),
		"password":  creds.Password,
		"full_name": strings.TrimSpace(profile.FullName),
	}
	if phone := strings.TrimSpace(profile.Phone); phone != "" {
		body["phone"] = phone
	}
	return c.startSession(ctx, "/api/v1/auth/signup", body)
}

func (c *Client) SignInWithPassword(ctx context.Context, creds account.Credentials) (*account.Identity, error) {
	return c.startSession(ctx, "/api/v1/auth/login", map[string]any{
		"email":    strings.TrimSpace(creds.Email),
		"password": creds.Password,
	})
}

func (c *Client) startSession(ctx context.Context, path string, body map[string]any) (*account.Identity, error) {
	var resp tokenResponse
	if err := c.do(ctx, call{method: http.MethodPost, path: path, body: body}, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil || resp.AccessToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "auth response missing session")
	}
	if err := c.tokens.Save(ctx, resp.pair()); err != nil {
		return nil, err
	}
	c.logg.Debug(c.logg.WithUserID(ctx, resp.User.UserID), "client.signed_in")
	c.emit(account.EventSignedIn, resp.User)
	return resp.User, nil
}

// SignOut revokes the server session when there is one. The local token is
// cleared once the server confirms or reports the session already gone. A
// transport failure keeps the token and the signed in identity.
func (c *Client) SignOut(ctx context.Context) error {
	pair, err := c.tokens.Load(ctx)
	if err != nil {
		return err
	}
	if pair != nil {
		err := c.do(ctx, call{method: http.MethodPost, path: "/api/v1/auth/logout", authed: true}, nil)
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			return err
		}
	}
	if err := c.tokens.Clear(ctx); err != nil {
		return err
	}
	c.emit(account.EventSignedOut, nil)
	return nil
}

// GetCurrentSession returns nil when nobody is signed in or the stored session
// can no longer be refreshed.
func (c *Client) GetCurrentSession(ctx context.Context) (*account.Identity, error) {
	pair, err := c.tokens.Load(ctx)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		return nil, nil
	}
	var ident account.Identity
	if err := c.do(ctx, call{method: http.MethodGet, path: "/api/v1/auth/user", authed: true}, &ident); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			_ = c.tokens.Clear(ctx)
			return nil, nil
		}
		return nil, err
	}
	c.storeUser(ctx, &ident)
	return &ident, nil
}

func (c *Client) UpdateIdentityMetadata(ctx context.Context, patch map[string]any) error {
	if len(patch) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "metadata patch is required")
	}
	var ident account.Identity
	req := call{method: http.MethodPatch, path: "/api/v1/auth/user", body: map[string]any{"metadata": patch}, authed: true}
	if err := c.do(ctx, req, &ident); err != nil {
		return err
	}
	c.storeUser(ctx, &ident)
	c.emit(account.EventUserUpdated, &ident)
	return nil
}

// refresh rotates the token pair and returns the new access token. stale is
// the token that was rejected; when another call already replaced it the
// stored token is returned as is. A rejected refresh ends the session.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	token, event, ident, err := c.rotate(ctx, stale)
	if event != "" {
		c.emit(event, ident)
	}
	return token, err
}

// rotate holds refreshMu; events are emitted by the caller once it is released.
func (c *Client) rotate(ctx context.Context, stale string) (string, account.EventKind, *account.Identity, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	pair, err := c.tokens.Load(ctx)
	if err != nil {
		return "", "", nil, err
	}
	if pair == nil || pair.RefreshToken == "" {
		return "", "", nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "no refresh token")
	}
	if pair.AccessToken != stale {
		return pair.AccessToken, "", nil, nil
	}

	status, body, err := c.send(ctx, call{method: http.MethodPost, path: "/api/v1/auth/refresh"}, pair.AccessToken,
		mustJSON(map[string]string{"refresh_token": pair.RefreshToken}))
	if err != nil {
		return "", "", nil, err
	}
	if status != http.StatusOK {
		if status == http.StatusUnauthorized {
			c.logg.Warn(c.logg.WithField(ctx, "status", status), "client.refresh_rejected")
			_ = c.tokens.Clear(ctx)
			return "", account.EventSignedOut, nil, decodeError(status, body)
		}
		return "", "", nil, decodeError(status, body)
	}

	var resp tokenResponse
	if err := decodeData(body, &resp); err != nil {
		return "", "", nil, err
	}
	if err := c.tokens.Save(ctx, resp.pair()); err != nil {
		return "", "", nil, err
	}
	c.logg.Debug(ctx, "client.token_refreshed")
	return resp.AccessToken, account.EventTokenRefreshed, resp.User, nil
}

func (c *Client) storeUser(ctx context.Context, ident *account.Identity) {
	pair, err := c.tokens.Load(ctx)
	if err != nil || pair == nil {
		return
	}
	pair.User = ident
	_ = c.tokens.Save(ctx, *pair)
}
