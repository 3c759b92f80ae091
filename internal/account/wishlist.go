package account

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dealerhub/showroom/pkg/logger"
)

const guestEntryPrefix = "guest-"

// WishlistEntry is either a GuestEntry or an AccountEntry.
type WishlistEntry interface {
	// EntryID is the client-side key: "guest-<item>" or the server row id.
	EntryID() string
	OwnerID() string
	// ItemRef is the referenced item id, present even without a snapshot.
	ItemRef() string
	Snapshot() *Vehicle
	CreatedAt() time.Time

	wishlistEntry()
}

// GuestEntry lives only in local storage as an item id.
type GuestEntry struct {
	ItemID  string
	Vehicle *Vehicle
	AddedAt time.Time
}

func (g GuestEntry) EntryID() string      { return guestEntryPrefix + g.ItemID }
func (g GuestEntry) OwnerID() string      { return GuestOwner }
func (g GuestEntry) ItemRef() string      { return g.ItemID }
func (g GuestEntry) Snapshot() *Vehicle   { return g.Vehicle }
func (g GuestEntry) CreatedAt() time.Time { return g.AddedAt }
func (GuestEntry) wishlistEntry()         {}

// AccountEntry is a wishlist_items row owned by a signed-in user.
type AccountEntry struct {
	RowID   string
	UserID  string
	ItemID  string
	Vehicle *Vehicle
	AddedAt time.Time
}

func (a AccountEntry) EntryID() string      { return a.RowID }
func (a AccountEntry) OwnerID() string      { return a.UserID }
func (a AccountEntry) ItemRef() string      { return a.ItemID }
func (a AccountEntry) Snapshot() *Vehicle   { return a.Vehicle }
func (a AccountEntry) CreatedAt() time.Time { return a.AddedAt }
func (AccountEntry) wishlistEntry()         {}

// EntryItemID is the single membership key for any entry: the embedded
// snapshot id when present, else the reference id.
func EntryItemID(e WishlistEntry) string {
	if e == nil {
		return ""
	}
	if v := e.Snapshot(); v != nil && v.ID != "" {
		return v.ID
	}
	return e.ItemRef()
}

func findEntry(entries []WishlistEntry, itemID string) (WishlistEntry, bool) {
	for _, e := range entries {
		if EntryItemID(e) == itemID {
			return e, true
		}
	}
	return nil, false
}

// wishlistBackend hides where entries live. save and remove return the
// complete list after the mutation.
type wishlistBackend interface {
	name() string
	owner() string
	load(ctx context.Context) ([]WishlistEntry, error)
	save(ctx context.Context, vehicle Vehicle, current []WishlistEntry) ([]WishlistEntry, error)
	remove(ctx context.Context, entry WishlistEntry, current []WishlistEntry) ([]WishlistEntry, error)
}

// localWishlist keeps the guest id list in local storage.
type localWishlist struct {
	storage LocalStorage
	catalog CatalogReader
	logg    *logger.Logger
	now     func() time.Time
}

func (l *localWishlist) name() string  { return "local" }
func (l *localWishlist) owner() string { return GuestOwner }

func (l *localWishlist) load(ctx context.Context) ([]WishlistEntry, error) {
	ids, err := readGuestIDs(ctx, l.storage, l.logg)
	if err != nil {
		return nil, err
	}
	return l.entriesFor(ctx, ids, nil), nil
}

// entriesFor builds one entry per stored id. Entries already in known are
// reused, the rest get a catalog snapshot when a catalog is configured.
func (l *localWishlist) entriesFor(ctx context.Context, ids []string, known []WishlistEntry) []WishlistEntry {
	entries := make([]WishlistEntry, 0, len(ids))
	for _, id := range ids {
		if e, ok := findEntry(known, id); ok {
			entries = append(entries, e)
			continue
		}
		entry := GuestEntry{ItemID: id, AddedAt: l.now()}
		if l.catalog != nil {
			v, err := l.catalog.GetVehicle(ctx, id)
			if err != nil {
				l.logg.Warn(l.logg.WithFields(ctx, map[string]any{"vehicle_id": id, "error": err.Error()}), "wishlist.guest_snapshot_failed")
			} else {
				entry.Vehicle = v
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

func (l *localWishlist) save(ctx context.Context, vehicle Vehicle, current []WishlistEntry) ([]WishlistEntry, error) {
	ids, err := readGuestIDs(ctx, l.storage, l.logg)
	if err != nil {
		return nil, err
	}
	if !containsID(ids, vehicle.ID) {
		ids = append(ids, vehicle.ID)
	}
	if err := writeGuestIDs(ctx, l.storage, ids); err != nil {
		return nil, err
	}
	known := current
	if _, ok := findEntry(current, vehicle.ID); !ok {
		snapshot := vehicle
		known = append(cloneEntries(current), GuestEntry{ItemID: vehicle.ID, Vehicle: &snapshot, AddedAt: l.now()})
	}
	return l.entriesFor(ctx, ids, known), nil
}

func (l *localWishlist) remove(ctx context.Context, entry WishlistEntry, current []WishlistEntry) ([]WishlistEntry, error) {
	itemID := EntryItemID(entry)
	ids, err := readGuestIDs(ctx, l.storage, l.logg)
	if err != nil {
		return nil, err
	}
	kept := ids[:0]
	for _, id := range ids {
		if id != itemID {
			kept = append(kept, id)
		}
	}
	if err := writeGuestIDs(ctx, l.storage, kept); err != nil {
		return nil, err
	}
	return l.entriesFor(ctx, kept, current), nil
}

// remoteWishlist stores entries in the record store and reloads after every write.
type remoteWishlist struct {
	records RecordStore
	userID  string
}

type wishlistRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	VehicleID string    `json:"vehicle_id"`
	CreatedAt time.Time `json:"created_at"`
	Vehicle   *Vehicle  `json:"vehicle,omitempty"`
}

func (r *remoteWishlist) name() string  { return "remote" }
func (r *remoteWishlist) owner() string { return r.userID }

func (r *remoteWishlist) load(ctx context.Context) ([]WishlistEntry, error) {
	rows, err := r.records.Select(ctx, CollectionWishlist, Filter{"user_id": r.userID})
	if err != nil {
		return nil, err
	}
	entries := make([]WishlistEntry, 0, len(rows))
	for _, row := range rows {
		var decoded wishlistRow
		if err := decodeRow(row, &decoded); err != nil {
			return nil, err
		}
		if decoded.ID == "" || decoded.VehicleID == "" {
			return nil, fmt.Errorf("wishlist row missing id or vehicle_id")
		}
		entries = append(entries, AccountEntry{
			RowID:   decoded.ID,
			UserID:  r.userID,
			ItemID:  decoded.VehicleID,
			Vehicle: decoded.Vehicle,
			AddedAt: decoded.CreatedAt,
		})
	}
	return entries, nil
}

func (r *remoteWishlist) insert(ctx context.Context, itemID string) (Row, error) {
	return r.records.Insert(ctx, CollectionWishlist, Row{"user_id": r.userID, "vehicle_id": itemID})
}

// save reloads after the insert. If only the reload fails, the inserted row is
// merged into current so a confirmed write is never reported as a failure.
func (r *remoteWishlist) save(ctx context.Context, vehicle Vehicle, current []WishlistEntry) ([]WishlistEntry, error) {
	row, err := r.insert(ctx, vehicle.ID)
	if err != nil {
		return nil, err
	}
	entries, err := r.load(ctx)
	if err == nil {
		return entries, nil
	}
	if _, ok := findEntry(current, vehicle.ID); ok {
		return current, nil
	}
	var decoded wishlistRow
	if row == nil || decodeRow(row, &decoded) != nil || decoded.ID == "" {
		return nil, err
	}
	snapshot := vehicle
	return append(cloneEntries(current), AccountEntry{
		RowID:   decoded.ID,
		UserID:  r.userID,
		ItemID:  vehicle.ID,
		Vehicle: &snapshot,
		AddedAt: decoded.CreatedAt,
	}), nil
}

func (r *remoteWishlist) remove(ctx context.Context, entry WishlistEntry, current []WishlistEntry) ([]WishlistEntry, error) {
	account, ok := entry.(AccountEntry)
	if !ok || account.RowID == "" {
		return nil, fmt.Errorf("wishlist entry %q has no server row id", entry.EntryID())
	}
	if err := r.records.Delete(ctx, CollectionWishlist, Filter{"id": account.RowID}); err != nil {
		return nil, err
	}
	entries, err := r.load(ctx)
	if err == nil {
		return entries, nil
	}
	out := make([]WishlistEntry, 0, len(current))
	for _, e := range current {
		if e.EntryID() != account.RowID {
			out = append(out, e)
		}
	}
	return out, nil
}

// readGuestIDs decodes guest_wishlist. Corrupt values are logged and reset.
func readGuestIDs(ctx context.Context, storage LocalStorage, logg *logger.Logger) ([]string, error) {
	raw, ok, err := storage.Get(ctx, StorageKeyGuestWishlist)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "wishlist.guest_list_corrupt")
		return nil, nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !containsID(out, id) {
			out = append(out, id)
		}
	}
	return out, nil
}

func writeGuestIDs(ctx context.Context, storage LocalStorage, ids []string) error {
	if len(ids) == 0 {
		return storage.Remove(ctx, StorageKeyGuestWishlist)
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return storage.Set(ctx, StorageKeyGuestWishlist, string(raw))
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func cloneEntries(entries []WishlistEntry) []WishlistEntry {
	out := make([]WishlistEntry, len(entries))
	copy(out, entries)
	return out
}
