package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dealerhub/showroom/internal/account"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/types"
	"github.com/google/uuid"
)

const pageLimit = 100

var collectionPaths = map[string]string{
	account.CollectionWishlist:       "/api/v1/wishlist",
	account.CollectionCustomRequests: "/api/v1/requests",
}

func collectionPath(collection string) (string, error) {
	path, ok := collectionPaths[collection]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown collection %q", collection))
	}
	return path, nil
}

// Select pages through the caller's rows and applies filter locally. The API
// already scopes every collection to the signed-in user.
func (c *Client) Select(ctx context.Context, collection string, filter account.Filter) ([]account.Row, error) {
	path, err := collectionPath(collection)
	if err != nil {
		return nil, err
	}
	var out []account.Row
	cursor := ""
	for {
		query := url.Values{"limit": {fmt.Sprint(pageLimit)}}
		if cursor != "" {
			query.Set("cursor", cursor)
		}
		var page types.Page[account.Row]
		if err := c.do(ctx, call{method: http.MethodGet, path: path + "?" + query.Encode(), authed: true}, &page); err != nil {
			return nil, err
		}
		for _, row := range page.Items {
			if matches(row, filter) {
				out = append(out, row)
			}
		}
		if page.Last() || page.NextCursor == cursor {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

// Insert creates one row. Inquiry inserts always carry an Idempotency-Key so a
// retried submit collapses onto the first record.
func (c *Client) Insert(ctx context.Context, collection string, row account.Row, opts ...account.InsertOption) (account.Row, error) {
	path, err := collectionPath(collection)
	if err != nil {
		return nil, err
	}
	options := account.ApplyInsertOptions(opts...)
	body := account.Row{}
	for k, v := range row {
		if k != "user_id" {
			body[k] = v
		}
	}

	headers := map[string]string{}
	key := options.IdempotencyKey
	if key == "" && collection == account.CollectionCustomRequests {
		key = uuid.NewString()
	}
	if key != "" {
		headers[idempotencyHeader] = key
	}
	if collection == account.CollectionWishlist {
		body = account.Row{"vehicle_id": row["vehicle_id"]}
	}

	var created account.Row
	if err := c.do(ctx, call{method: http.MethodPost, path: path, body: body, headers: headers, authed: true}, &created); err != nil {
		return nil, err
	}
	return created, nil
}

// Update patches inquiry rows selected by id.
func (c *Client) Update(ctx context.Context, collection string, filter account.Filter, patch account.Row) error {
	if collection != account.CollectionCustomRequests {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("collection %q does not support updates", collection))
	}
	ids, err := c.resolveIDs(ctx, collection, filter)
	if err != nil {
		return err
	}
	for _, id := range ids {
		req := call{method: http.MethodPatch, path: "/api/v1/requests/" + url.PathEscape(id), body: patch, authed: true}
		if err := c.do(ctx, req, nil); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes wishlist rows selected by filter. Deleting nothing succeeds.
func (c *Client) Delete(ctx context.Context, collection string, filter account.Filter) error {
	if collection != account.CollectionWishlist {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("collection %q does not support deletes", collection))
	}
	ids, err := c.resolveIDs(ctx, collection, filter)
	if err != nil {
		return err
	}
	for _, id := range ids {
		req := call{method: http.MethodDelete, path: "/api/v1/wishlist/" + url.PathEscape(id), authed: true}
		if err := c.do(ctx, req, nil); err != nil {
			return err
		}
	}
	return nil
}

// resolveIDs short-circuits a filter on id alone, otherwise selects first.
func (c *Client) resolveIDs(ctx context.Context, collection string, filter account.Filter) ([]string, error) {
	if len(filter) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "filter is required")
	}
	if id, ok := filter["id"]; ok && len(filter) == 1 {
		return []string{fmt.Sprint(id)}, nil
	}
	rows, err := c.Select(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["id"]; ok {
			ids = append(ids, fmt.Sprint(id))
		}
	}
	return ids, nil
}

func matches(row account.Row, filter account.Filter) bool {
	for k, want := range filter {
		got, ok := row[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
