package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
	"github.com/dealerhub/showroom/pkg/metrics"
	"go.uber.org/multierr"
)

// ErrClosed is returned by coordinator operations after Close.
var ErrClosed = pkgerrors.New(pkgerrors.CodeConflict, "account session closed")

// CoordinatorParams groups dependencies for the account coordinator.
type CoordinatorParams struct {
	Identity IdentitySource
	Records  RecordStore
	Storage  LocalStorage
	// Catalog is optional. Without it guest entries carry no vehicle snapshot.
	Catalog  CatalogReader
	Notifier Notifier
	Logger   *logger.Logger
	Metrics  *metrics.AccountMetrics
	Now      func() time.Time
}

// AccountState is the published view of the coordinator.
type AccountState struct {
	Identity        Identity
	Initializing    bool
	Wishlist        []WishlistEntry
	WishlistLoading bool
	Cart            []CartItem
	CartCount       int
	Migrating       bool
}

// MigrationReport summarizes one guest-to-account wishlist migration.
type MigrationReport struct {
	UserID   string
	Migrated []string
	Failed   []string
	Err      error
}

// Coordinator owns the wishlist and the inquiry cart for one visitor.
type Coordinator struct {
	identity IdentitySource
	records  RecordStore
	storage  LocalStorage
	catalog  CatalogReader
	notifier Notifier
	logg     *logger.Logger
	metrics  *metrics.AccountMetrics
	now      func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	queue   *taskQueue
	done    chan struct{}

	// opMu serializes wishlist writes, reloads and migration.
	opMu sync.Mutex
	// cartMu serializes cart writes and their persistence.
	cartMu sync.Mutex

	mu              sync.Mutex
	initialized     bool
	closed          bool
	unsubscribe     func()
	wishlist        []WishlistEntry
	wishlistOwner   string
	wishlistLoading bool
	cart            []CartItem
	cartLoaded      bool
	migrating       bool
	migratedFor     map[string]bool
	lastMigration   *MigrationReport
	listeners       []stateListener
	nextListenerID  int
}

type stateListener struct {
	id int
	fn func(AccountState)
}

// NewCoordinator validates dependencies and starts the transition worker.
func NewCoordinator(params CoordinatorParams) (*Coordinator, error) {
	if params.Identity == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "identity source is required")
	}
	if params.Records == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "record store is required")
	}
	if params.Storage == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "local storage is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = LogNotifier{Logger: logg}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		identity:    params.Identity,
		records:     params.Records,
		storage:     params.Storage,
		catalog:     params.Catalog,
		notifier:    notifier,
		logg:        logg,
		metrics:     params.Metrics,
		now:         now,
		baseCtx:     ctx,
		cancel:      cancel,
		queue:       newTaskQueue(),
		done:        make(chan struct{}),
		migratedFor: map[string]bool{},
	}
	go c.run()
	return c, nil
}

func (c *Coordinator) run() {
	defer close(c.done)
	for {
		next, ok := c.queue.pop()
		if !ok {
			return
		}
		next(c.baseCtx)
	}
}

// Init loads the cart, subscribes to identity transitions and, when identity is
// already known, loads the wishlist and runs any pending migration.
func (c *Coordinator) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.initialized = true
	c.mu.Unlock()

	c.cartMu.Lock()
	// A failed read is retried by the first cart operation.
	_ = c.ensureCartLocked(ctx)
	c.cartMu.Unlock()

	unsubscribe := c.identity.Subscribe(c.onTransition)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	if !c.identity.Initializing() {
		c.queue.push(func(ctx context.Context) {
			c.handleIdentity(ctx, c.identity.Current())
		})
	}
	c.publish()
	return nil
}

// Sync blocks until every transition queued before the call has been handled
// and its state published. It must not be called from a Subscribe callback.
func (c *Coordinator) Sync(ctx context.Context) error {
	reached := make(chan struct{})
	if !c.queue.push(func(context.Context) { close(reached) }) {
		return ErrClosed
	}
	select {
	case <-reached:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close unsubscribes from identity, stops the worker and turns every later
// completion into a no-op. It must not be called from a Subscribe callback.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.listeners = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.cancel()
	c.queue.close()
	<-c.done
}

// State returns a copy of the current coordinator state.
func (c *Coordinator) State() AccountState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Coordinator) stateLocked() AccountState {
	cart := cloneCart(c.cart)
	return AccountState{
		Identity:        c.identity.Current(),
		Initializing:    c.identity.Initializing(),
		Wishlist:        cloneEntries(c.wishlist),
		WishlistLoading: c.wishlistLoading,
		Cart:            cart,
		CartCount:       countCart(cart),
		Migrating:       c.migrating,
	}
}

// Subscribe registers fn for state changes. Callbacks run on the coordinator
// worker, one at a time. The returned func is idempotent.
func (c *Coordinator) Subscribe(fn func(AccountState)) func() {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	id := c.nextListenerID
	c.nextListenerID++
	c.listeners = append(c.listeners, stateListener{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Coordinator) publish() {
	c.queue.push(func(context.Context) {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		snapshot := c.stateLocked()
		listeners := make([]stateListener, len(c.listeners))
		copy(listeners, c.listeners)
		c.mu.Unlock()

		for _, l := range listeners {
			l.fn(snapshot)
		}
	})
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Coordinator) notify(level NoticeLevel, msg string, err error) {
	if c.isClosed() {
		return
	}
	c.notifier.Notify(Notice{Level: level, Message: msg, Err: err})
}

// onTransition runs on the identity manager's delivery path and must not block.
func (c *Coordinator) onTransition(tr Transition) {
	next := tr.Next
	c.queue.push(func(ctx context.Context) {
		c.handleIdentity(ctx, next)
	})
	c.publish()
}

// handleIdentity reconciles the wishlist with an identity. Each call is
// authoritative: the owner is re-read when reload results are committed.
func (c *Coordinator) handleIdentity(ctx context.Context, next Identity) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.isClosed() || c.identity.Initializing() {
		return
	}

	if next.IsAnonymous() {
		c.mu.Lock()
		c.migratedFor = map[string]bool{}
		c.mu.Unlock()
	} else {
		c.migrateLocked(ctx, next)
	}

	c.ensureWishlistLocked(ctx)
}

func (c *Coordinator) backendFor(ident Identity) wishlistBackend {
	if ident.IsAnonymous() {
		return &localWishlist{storage: c.storage, catalog: c.catalog, logg: c.logg, now: c.now}
	}
	return &remoteWishlist{records: c.records, userID: ident.UserID}
}

// entriesFor returns the committed wishlist when it belongs to owner.
func (c *Coordinator) entriesFor(owner string) []WishlistEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wishlistOwner != owner {
		return nil
	}
	return cloneEntries(c.wishlist)
}

// commitWishlist applies entries only if owner is still current.
func (c *Coordinator) commitWishlist(owner string, entries []WishlistEntry) bool {
	c.mu.Lock()
	if c.closed || c.identity.Current().Owner() != owner {
		c.mu.Unlock()
		return false
	}
	c.wishlist = cloneEntries(entries)
	c.wishlistOwner = owner
	c.wishlistLoading = false
	c.mu.Unlock()
	c.publish()
	return true
}

// Wishlist returns the committed wishlist entries.
func (c *Coordinator) Wishlist() []WishlistEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneEntries(c.wishlist)
}

// IsSaved reports wishlist membership for itemID.
func (c *Coordinator) IsSaved(itemID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := findEntry(c.wishlist, itemID)
	return ok
}

// ReloadWishlist re-reads the wishlist for the current owner. A read failure
// leaves an empty list and is reported through the notifier.
func (c *Coordinator) ReloadWishlist(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}
	return c.reloadLocked(ctx)
}

func (c *Coordinator) reloadLocked(ctx context.Context) error {
	ident := c.identity.Current()
	backend := c.backendFor(ident)

	c.mu.Lock()
	c.wishlistLoading = true
	c.mu.Unlock()
	c.publish()

	entries, err := backend.load(ctx)
	if err != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{"backend": backend.name(), "owner": backend.owner()})
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "wishlist.load_failed")
		entries = nil
	}
	if !c.commitWishlist(backend.owner(), entries) {
		c.mu.Lock()
		c.wishlistLoading = false
		c.mu.Unlock()
		c.publish()
		return nil
	}
	if err != nil {
		wrapped := userFacing(err, MsgWishlistLoad)
		c.notify(NoticeError, MsgWishlistLoad, wrapped)
		return wrapped
	}
	return nil
}

// Save adds vehicle to the wishlist of the current owner.
func (c *Coordinator) Save(ctx context.Context, vehicle Vehicle) error {
	if vehicle.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "vehicle id is required")
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}
	c.ensureWishlistLocked(ctx)
	return c.saveLocked(ctx, vehicle)
}

// ensureWishlistLocked loads the wishlist when the committed list belongs to
// another owner or was never loaded, so mutations and membership checks see
// every stored item. Callers hold opMu.
func (c *Coordinator) ensureWishlistLocked(ctx context.Context) {
	c.mu.Lock()
	stale := c.wishlistOwner != c.identity.Current().Owner()
	c.mu.Unlock()
	if stale {
		_ = c.reloadLocked(ctx)
	}
}

func (c *Coordinator) saveLocked(ctx context.Context, vehicle Vehicle) error {
	backend := c.backendFor(c.identity.Current())
	entries, err := backend.save(ctx, vehicle, c.entriesFor(backend.owner()))
	c.metrics.WishlistOp(backend.name(), "save", err)
	if err != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{"backend": backend.name(), "vehicle_id": vehicle.ID})
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "wishlist.save_failed")
		wrapped := userFacing(err, MsgWishlistSave)
		c.notify(NoticeError, MsgWishlistSave, wrapped)
		return wrapped
	}
	c.commitWishlist(backend.owner(), entries)
	c.notify(NoticeSuccess, MsgWishlistSaved, nil)
	return nil
}

// Unsave removes itemID from the wishlist. Removing an unsaved item succeeds.
func (c *Coordinator) Unsave(ctx context.Context, itemID string) error {
	if itemID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "vehicle id is required")
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}
	c.ensureWishlistLocked(ctx)
	return c.unsaveLocked(ctx, itemID)
}

func (c *Coordinator) unsaveLocked(ctx context.Context, itemID string) error {
	backend := c.backendFor(c.identity.Current())
	current := c.entriesFor(backend.owner())
	entry, ok := findEntry(current, itemID)
	if !ok {
		if backend.owner() != GuestOwner {
			return nil
		}
		// The guest id list may hold ids that never made it into memory.
		entry = GuestEntry{ItemID: itemID}
	}

	entries, err := backend.remove(ctx, entry, current)
	c.metrics.WishlistOp(backend.name(), "remove", err)
	if err != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{"backend": backend.name(), "vehicle_id": itemID})
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "wishlist.remove_failed")
		wrapped := userFacing(err, MsgWishlistRemove)
		c.notify(NoticeError, MsgWishlistRemove, wrapped)
		return wrapped
	}
	c.commitWishlist(backend.owner(), entries)
	if ok {
		c.notify(NoticeSuccess, MsgWishlistRemoved, nil)
	}
	return nil
}

// Toggle saves or unsaves vehicle based on one membership check taken before
// any mutation. It returns the resulting membership.
func (c *Coordinator) Toggle(ctx context.Context, vehicle Vehicle) (bool, error) {
	if vehicle.ID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id is required")
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.isClosed() {
		return false, ErrClosed
	}
	c.ensureWishlistLocked(ctx)
	if c.IsSaved(vehicle.ID) {
		if err := c.unsaveLocked(ctx, vehicle.ID); err != nil {
			return true, err
		}
		return false, nil
	}
	if err := c.saveLocked(ctx, vehicle); err != nil {
		return false, err
	}
	return true, nil
}

// LastMigration returns the most recent migration report, if any.
func (c *Coordinator) LastMigration() *MigrationReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastMigration == nil {
		return nil
	}
	report := *c.lastMigration
	return &report
}

// migrateLocked copies the guest id list into ident's account once per
// sign-in. Items that fail stay in the guest list for a later attempt.
func (c *Coordinator) migrateLocked(ctx context.Context, ident Identity) {
	c.mu.Lock()
	if c.migrating || c.migratedFor[ident.UserID] {
		c.mu.Unlock()
		return
	}
	c.migrating = true
	c.migratedFor[ident.UserID] = true
	c.mu.Unlock()

	ctx = c.logg.WithUserID(ctx, ident.UserID)
	report := c.copyGuestWishlist(ctx, ident)

	c.mu.Lock()
	c.migrating = false
	if len(report.Migrated) > 0 || len(report.Failed) > 0 || report.Err != nil {
		c.lastMigration = &report
	}
	c.mu.Unlock()

	if len(report.Migrated) == 0 && len(report.Failed) == 0 && report.Err == nil {
		return
	}
	c.metrics.Migration(len(report.Migrated), report.Err)
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"migrated": len(report.Migrated),
		"failed":   len(report.Failed),
	}), "wishlist.guest_migrated")
	if report.Err != nil {
		c.notify(NoticeError, MsgWishlistMigrate, userFacing(report.Err, MsgWishlistMigrate))
	}
	// Force a reload so the account list reflects the copied rows.
	c.mu.Lock()
	c.wishlistOwner = ""
	c.mu.Unlock()
}

func (c *Coordinator) copyGuestWishlist(ctx context.Context, ident Identity) MigrationReport {
	report := MigrationReport{UserID: ident.UserID}
	ids, err := readGuestIDs(ctx, c.storage, c.logg)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "wishlist.guest_read_failed")
		report.Err = err
		return report
	}
	if len(ids) == 0 {
		return report
	}

	c.mu.Lock()
	c.wishlistLoading = true
	c.mu.Unlock()
	c.publish()

	remote := &remoteWishlist{records: c.records, userID: ident.UserID}
	for i, id := range ids {
		// A sign-out or account switch mid-pass leaves the rest for the next sign-in.
		if c.isClosed() || c.identity.Current().UserID != ident.UserID {
			report.Failed = append(report.Failed, ids[i:]...)
			report.Err = multierr.Append(report.Err, fmt.Errorf("migration interrupted before %s", id))
			break
		}
		if _, err := remote.insert(ctx, id); err != nil {
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{"vehicle_id": id, "error": err.Error()}), "wishlist.migrate_item_failed")
			report.Failed = append(report.Failed, id)
			report.Err = multierr.Append(report.Err, fmt.Errorf("vehicle %s: %w", id, err))
			continue
		}
		report.Migrated = append(report.Migrated, id)
	}

	if err := writeGuestIDs(ctx, c.storage, report.Failed); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "wishlist.guest_clear_failed")
		report.Err = multierr.Append(report.Err, err)
	}
	return report
}
