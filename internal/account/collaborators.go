package account

import (
	"context"
)

// Record store collections used by the account core.
const (
	CollectionWishlist       = "wishlist_items"
	CollectionCustomRequests = "custom_requests"
)

// Local storage keys owned by the coordinator. No other component may touch them.
const (
	StorageKeyGuestWishlist = "guest_wishlist"
	StorageKeyCart          = "cart"
)

// GuestOwner is the owner sentinel for anonymous wishlist entries.
const GuestOwner = "guest"

// Subscription is returned by SessionService.OnIdentityChange.
type Subscription interface {
	Unsubscribe()
}

// SessionService is the backend identity provider.
type SessionService interface {
	SignUp(ctx context.Context, creds Credentials, profile Profile) (*Identity, error)
	SignInWithPassword(ctx context.Context, creds Credentials) (*Identity, error)
	SignOut(ctx context.Context) error
	GetCurrentSession(ctx context.Context) (*Identity, error)
	OnIdentityChange(fn func(IdentityEvent)) Subscription
	UpdateIdentityMetadata(ctx context.Context, patch map[string]any) error
}

// Row is a generic record as exchanged with the record store.
type Row map[string]any

// Filter selects rows by column equality.
type Filter map[string]any

// InsertOptions tune a single insert.
type InsertOptions struct {
	// IdempotencyKey lets the store collapse retried inserts into one record.
	IdempotencyKey string
}

type InsertOption func(*InsertOptions)

func WithIdempotencyKey(key string) InsertOption {
	return func(o *InsertOptions) {
		o.IdempotencyKey = key
	}
}

// ApplyInsertOptions folds options for RecordStore implementations.
func ApplyInsertOptions(opts ...InsertOption) InsertOptions {
	var out InsertOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	return out
}

// RecordStore is generic CRUD over named collections, scoped to the caller.
type RecordStore interface {
	Select(ctx context.Context, collection string, filter Filter) ([]Row, error)
	Insert(ctx context.Context, collection string, row Row, opts ...InsertOption) (Row, error)
	Update(ctx context.Context, collection string, filter Filter, patch Row) error
	Delete(ctx context.Context, collection string, filter Filter) error
}

// LocalStorage is durable key/value storage on the shopper side.
type LocalStorage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// CatalogReader resolves vehicle snapshots for guest wishlist entries.
type CatalogReader interface {
	GetVehicle(ctx context.Context, id string) (*Vehicle, error)
}

// IdentitySource is the read side of the identity manager used by the coordinator.
type IdentitySource interface {
	Current() Identity
	Initializing() bool
	Subscribe(fn func(Transition)) (unsubscribe func())
}
