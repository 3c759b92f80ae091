package localstore

import (
	"context"
	"errors"

	redisclient "github.com/dealerhub/showroom/pkg/redis"
)

// Redis stores values under a per-visitor namespace so one server can host
// many shopper sessions.
type Redis struct {
	client    *redisclient.Client
	visitorID string
}

func NewRedis(client *redisclient.Client, visitorID string) *Redis {
	return &Redis{client: client, visitorID: visitorID}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.client.LocalStoreKey(r.visitorID, key))
	if errors.Is(err, redisclient.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores without expiry. Shopper state lives until removed.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.client.LocalStoreKey(r.visitorID, key), value, 0)
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.client.LocalStoreKey(r.visitorID, key))
}

func (r *Redis) Close() error {
	return r.client.Close()
}
