package account

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dealerhub/showroom/pkg/enums"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/google/uuid"
)

// CartItem is one vehicle in the inquiry cart.
type CartItem struct {
	Vehicle     Vehicle           `json:"vehicle"`
	Quantity    int               `json:"quantity"`
	Notes       string            `json:"notes,omitempty"`
	InquiryType enums.InquiryType `json:"inquiry_type"`
	// SubmissionKey is sent as the idempotency key when the item is submitted.
	// It is replaced whenever a submitted field changes.
	SubmissionKey string    `json:"submission_key"`
	AddedAt       time.Time `json:"added_at"`
}

// CartItemPatch updates selected fields of a cart item. Nil fields are left alone.
type CartItemPatch struct {
	Quantity    *int
	Notes       *string
	InquiryType *enums.InquiryType
}

// Cart returns a copy of the inquiry cart.
func (c *Coordinator) Cart() []CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneCart(c.cart)
}

// CartCount is the total quantity across cart items.
func (c *Coordinator) CartCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return countCart(c.cart)
}

// AddToCart adds vehicle or bumps its quantity. A repeat add overwrites the
// inquiry type and only replaces notes when new notes are given.
func (c *Coordinator) AddToCart(ctx context.Context, vehicle Vehicle, inquiryType enums.InquiryType, notes string) error {
	if vehicle.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "vehicle id is required")
	}
	inquiryType, err := normalizeInquiryType(inquiryType)
	if err != nil {
		return err
	}
	notes = strings.TrimSpace(notes)
	return c.mutateCart(ctx, "add", func(items []CartItem) ([]CartItem, error) {
		for i := range items {
			if items[i].Vehicle.ID != vehicle.ID {
				continue
			}
			items[i].Quantity++
			items[i].InquiryType = inquiryType
			if notes != "" {
				items[i].Notes = notes
			}
			items[i].Vehicle = vehicle
			items[i].SubmissionKey = uuid.NewString()
			return items, nil
		}
		return append(items, CartItem{
			Vehicle:       vehicle,
			Quantity:      1,
			Notes:         notes,
			InquiryType:   inquiryType,
			SubmissionKey: uuid.NewString(),
			AddedAt:       c.now().UTC(),
		}), nil
	})
}

// RemoveFromCart drops itemID. Missing items are ignored.
func (c *Coordinator) RemoveFromCart(ctx context.Context, itemID string) error {
	return c.mutateCart(ctx, "remove", func(items []CartItem) ([]CartItem, error) {
		out := items[:0]
		for _, item := range items {
			if item.Vehicle.ID != itemID {
				out = append(out, item)
			}
		}
		return out, nil
	})
}

// UpdateCartItem applies patch to itemID. Quantity is clamped to at least 1.
func (c *Coordinator) UpdateCartItem(ctx context.Context, itemID string, patch CartItemPatch) error {
	var inquiryType enums.InquiryType
	if patch.InquiryType != nil {
		normalized, err := normalizeInquiryType(*patch.InquiryType)
		if err != nil {
			return err
		}
		inquiryType = normalized
	}
	return c.mutateCart(ctx, "update", func(items []CartItem) ([]CartItem, error) {
		for i := range items {
			if items[i].Vehicle.ID != itemID {
				continue
			}
			before := items[i]
			if patch.Quantity != nil {
				items[i].Quantity = max(*patch.Quantity, 1)
			}
			if patch.Notes != nil {
				items[i].Notes = strings.TrimSpace(*patch.Notes)
			}
			if patch.InquiryType != nil {
				items[i].InquiryType = inquiryType
			}
			if before.Quantity != items[i].Quantity || before.Notes != items[i].Notes || before.InquiryType != items[i].InquiryType {
				items[i].SubmissionKey = uuid.NewString()
			}
			return items, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vehicle is not in the inquiry cart")
	})
}

// ClearCart empties the cart.
func (c *Coordinator) ClearCart(ctx context.Context) error {
	return c.mutateCart(ctx, "clear", func([]CartItem) ([]CartItem, error) {
		return nil, nil
	})
}

// SubmitInquiry creates one custom request per cart item and clears the cart
// once every insert succeeded. It returns the number of requests created.
func (c *Coordinator) SubmitInquiry(ctx context.Context) (int, error) {
	c.cartMu.Lock()
	defer c.cartMu.Unlock()
	if c.isClosed() {
		return 0, ErrClosed
	}
	if err := c.ensureCartLocked(ctx); err != nil {
		return 0, err
	}

	items := c.Cart()
	if len(items) == 0 {
		err := pkgerrors.New(pkgerrors.CodeValidation, MsgInquiryEmpty)
		c.notify(NoticeError, MsgInquiryEmpty, err)
		return 0, err
	}
	ident := c.identity.Current()
	if c.identity.Initializing() || ident.IsAnonymous() {
		err := pkgerrors.New(pkgerrors.CodeUnauthorized, MsgInquirySignIn)
		c.notify(NoticeError, MsgInquirySignIn, err)
		return 0, err
	}

	ctx = c.logg.WithUserID(ctx, ident.UserID)
	for _, item := range items {
		row := inquiryRow(ident, item)
		if _, err := c.records.Insert(ctx, CollectionCustomRequests, row, WithIdempotencyKey(item.SubmissionKey)); err != nil {
			c.metrics.Inquiry(err)
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{"vehicle_id": item.Vehicle.ID, "error": err.Error()}), "inquiry.submit_failed")
			wrapped := userFacing(err, MsgInquiryFailed)
			c.notify(NoticeError, MsgInquiryFailed, wrapped)
			return 0, wrapped
		}
	}
	c.metrics.Inquiry(nil)

	// Records are created. A failed clear leaves the stored cart behind, and
	// resubmitting it is deduplicated by the submission keys.
	if err := c.writeCart(ctx, nil); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "cart.clear_after_submit_failed")
	}
	c.mu.Lock()
	c.cart = nil
	c.mu.Unlock()
	c.publish()

	c.logg.Info(c.logg.WithField(ctx, "requests", len(items)), "inquiry.submitted")
	c.notify(NoticeSuccess, MsgInquirySubmitted, nil)
	return len(items), nil
}

func inquiryRow(ident Identity, item CartItem) Row {
	title := item.Vehicle.Title()
	message := item.Notes
	if message == "" {
		message = fmt.Sprintf("I would like more information about the %s.", title)
	}
	return Row{
		"user_id":         ident.UserID,
		"vehicle_id":      item.Vehicle.ID,
		"inquiry_type":    string(item.InquiryType),
		"subject":         fmt.Sprintf("%s: %s", item.InquiryType.Label(), title),
		"message":         message,
		"vehicle_summary": item.Vehicle.Summary(),
		"quantity":        item.Quantity,
	}
}

// mutateCart applies fn to a copy of the cart and commits only after the new
// cart is persisted.
func (c *Coordinator) mutateCart(ctx context.Context, op string, fn func([]CartItem) ([]CartItem, error)) error {
	c.cartMu.Lock()
	defer c.cartMu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.ensureCartLocked(ctx); err != nil {
		return err
	}

	next, err := fn(c.Cart())
	if err != nil {
		return err
	}
	if err := c.writeCart(ctx, next); err != nil {
		c.metrics.CartOp(op, err)
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{"op": op, "error": err.Error()}), "cart.persist_failed")
		wrapped := userFacing(err, MsgCartUpdate)
		c.notify(NoticeError, MsgCartUpdate, wrapped)
		return wrapped
	}
	c.metrics.CartOp(op, nil)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.cart = cloneCart(next)
	c.mu.Unlock()
	c.publish()
	return nil
}

// ensureCartLocked loads the stored cart once. Corrupt data yields an empty
// cart. A failed storage read leaves the cart unloaded and is returned, so the
// stored cart is never overwritten from an unread state. Callers hold cartMu.
func (c *Coordinator) ensureCartLocked(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.cartLoaded
	c.mu.Unlock()
	if loaded {
		return nil
	}

	raw, ok, err := c.storage.Get(ctx, StorageKeyCart)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "cart.load_failed")
		wrapped := userFacing(err, MsgCartLoad)
		c.notify(NoticeError, MsgCartLoad, wrapped)
		return wrapped
	}
	items, rekeyed, err := decodeCart(raw, ok)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "cart.decode_failed")
		c.notify(NoticeError, MsgCartLoad, userFacing(err, MsgCartLoad))
		items, rekeyed = nil, false
	}
	if rekeyed {
		// Keys assigned here must survive a restart to dedupe a resubmit.
		if err := c.writeCart(ctx, items); err != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "cart.rekey_persist_failed")
		}
	}
	c.mu.Lock()
	c.cart = items
	c.cartLoaded = true
	c.mu.Unlock()
	return nil
}

// decodeCart parses a stored cart, dropping duplicates and items without a
// vehicle. rekeyed reports that an item was missing its submission key.
func decodeCart(raw string, ok bool) (items []CartItem, rekeyed bool, err error) {
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, false, nil
	}
	var stored []CartItem
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, false, fmt.Errorf("decode cart: %w", err)
	}

	items = make([]CartItem, 0, len(stored))
	seen := map[string]bool{}
	for _, item := range stored {
		if item.Vehicle.ID == "" || seen[item.Vehicle.ID] {
			continue
		}
		seen[item.Vehicle.ID] = true
		item.Quantity = max(item.Quantity, 1)
		if !item.InquiryType.IsValid() {
			item.InquiryType = enums.InquiryTypeGeneral
		}
		if item.SubmissionKey == "" {
			item.SubmissionKey = uuid.NewString()
			rekeyed = true
		}
		items = append(items, item)
	}
	return items, rekeyed, nil
}

func (c *Coordinator) writeCart(ctx context.Context, items []CartItem) error {
	if len(items) == 0 {
		return c.storage.Remove(ctx, StorageKeyCart)
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return c.storage.Set(ctx, StorageKeyCart, string(raw))
}

func normalizeInquiryType(t enums.InquiryType) (enums.InquiryType, error) {
	if t == "" {
		return enums.InquiryTypeGeneral, nil
	}
	if !t.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid inquiry type %q", t))
	}
	return t, nil
}

func cloneCart(items []CartItem) []CartItem {
	if items == nil {
		return nil
	}
	out := make([]CartItem, len(items))
	copy(out, items)
	return out
}

func countCart(items []CartItem) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}
