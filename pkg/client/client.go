// Package client is the shopper-side SDK for the showroom API. It implements
// the account core's SessionService, RecordStore and CatalogReader.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dealerhub/showroom/internal/account"
	"github.com/dealerhub/showroom/internal/localstore"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
	"github.com/dealerhub/showroom/pkg/types"
)

const (
	defaultBaseURL           = "http://localhost:8080"
	errorBodyReadLimit int64 = 4096
	idempotencyHeader        = "Idempotency-Key"
)

// Client talks to the showroom API on behalf of one shopper.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     *TokenStore
	logg       *logger.Logger

	// refreshMu serializes token refreshes so concurrent 401s rotate once.
	refreshMu sync.Mutex

	mu        sync.Mutex
	listeners map[int]func(account.IdentityEvent)
	nextID    int
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTokenStore persists the token pair in storage instead of memory.
func WithTokenStore(storage account.LocalStorage) Option {
	return func(c *Client) {
		if storage != nil {
			c.tokens = NewTokenStore(storage)
		}
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		if logg != nil {
			c.logg = logg
		}
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
		logg:       logger.Nop(),
		listeners:  map[int]func(account.IdentityEvent){},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.tokens == nil {
		c.tokens = NewTokenStore(localstore.NewMemory())
	}
	return c
}

// OnIdentityChange registers fn for identity events emitted by this client.
// Callbacks run synchronously on the goroutine that caused the change.
func (c *Client) OnIdentityChange(fn func(account.IdentityEvent)) account.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return subscription(func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	})
}

type subscription func()

func (s subscription) Unsubscribe() { s() }

func (c *Client) emit(kind account.EventKind, ident *account.Identity) {
	c.mu.Lock()
	fns := make([]func(account.IdentityEvent), 0, len(c.listeners))
	for i := 0; i < c.nextID; i++ {
		if fn, ok := c.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		var copyIdent *account.Identity
		if ident != nil {
			cp := *ident
			copyIdent = &cp
		}
		fn(account.IdentityEvent{Kind: kind, Identity: copyIdent})
	}
}

type call struct {
	method  string
	path    string
	body    any
	headers map[string]string
	// authed attaches the bearer token and enables refresh-and-retry on 401.
	authed bool
}

// do executes req and decodes the data envelope into out when out is non-nil.
func (c *Client) do(ctx context.Context, req call, out any) error {
	var payload []byte
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode request body")
		}
		payload = raw
	}

	bearer := ""
	if req.authed {
		pair, err := c.tokens.Load(ctx)
		if err != nil {
			return err
		}
		if pair == nil {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "not signed in")
		}
		bearer = pair.AccessToken
	}

	status, body, err := c.send(ctx, req, bearer, payload)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized && req.authed {
		if fresh, refreshErr := c.refresh(ctx, bearer); refreshErr == nil {
			status, body, err = c.send(ctx, req, fresh, payload)
			if err != nil {
				return err
			}
		}
	}
	if status < 200 || status > 299 {
		return decodeError(status, body)
	}
	if out == nil || status == http.StatusNoContent || len(body) == 0 {
		return nil
	}
	return decodeData(body, out)
}

func (c *Client) send(ctx context.Context, req call, bearer string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, reader)
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build request")
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read response")
	}
	return resp.StatusCode, body, nil
}

// decodeError maps an error envelope back onto a typed error. Bodies that are
// not envelopes keep the status code and a truncated body.
func decodeError(status int, body []byte) error {
	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		code := pkgerrors.Code(envelope.Error.Code)
		if pkgerrors.MetadataFor(code).HTTPStatus != status {
			code = pkgerrors.CodeForStatus(status)
		}
		return pkgerrors.New(code, envelope.Error.Message).WithDetails(envelope.Error.Details)
	}
	if int64(len(body)) > errorBodyReadLimit {
		body = body[:errorBodyReadLimit]
	}
	return pkgerrors.Wrap(pkgerrors.CodeForStatus(status), fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(body))), "request failed")
}
