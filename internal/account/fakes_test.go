package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dealerhub/showroom/pkg/enums"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var errUnreachable = errors.New("dial tcp: connection refused")

type fakeUser struct {
	identity Identity
	password string
}

// fakeSessions emits identity events in-process the way the SDK does.
type fakeSessions struct {
	mu        sync.Mutex
	users     map[string]*fakeUser
	current   *Identity
	listeners map[int]func(IdentityEvent)
	nextID    int

	subscribeCalls int
	updates        []map[string]any

	getErr     error
	signInErr  error
	signOutErr error
	updateErr  error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{users: map[string]*fakeUser{}, listeners: map[int]func(IdentityEvent){}}
}

func (f *fakeSessions) addUser(id, email, password string, role enums.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email] = &fakeUser{identity: Identity{UserID: id, Email: email, Role: role}, password: password}
}

func (f *fakeSessions) emit(ev IdentityEvent) {
	f.mu.Lock()
	ids := make([]int, 0, len(f.listeners))
	for id := range f.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(IdentityEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, f.listeners[id])
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeSessions) snapshot() *Identity {
	if f.current == nil {
		return nil
	}
	cp := f.current.clone()
	return &cp
}

func (f *fakeSessions) SignUp(_ context.Context, creds Credentials, profile Profile) (*Identity, error) {
	f.mu.Lock()
	if _, exists := f.users[creds.Email]; exists {
		f.mu.Unlock()
		return nil, errors.New("user already exists")
	}
	ident := Identity{UserID: "user-" + creds.Email, Email: creds.Email, Metadata: map[string]any{"full_name": profile.FullName}}
	f.users[creds.Email] = &fakeUser{identity: ident, password: creds.Password}
	f.current = &ident
	out := f.snapshot()
	f.mu.Unlock()
	f.emit(IdentityEvent{Kind: EventSignedIn, Identity: out})
	return out, nil
}

func (f *fakeSessions) SignInWithPassword(_ context.Context, creds Credentials) (*Identity, error) {
	f.mu.Lock()
	if f.signInErr != nil {
		err := f.signInErr
		f.mu.Unlock()
		return nil, err
	}
	user, ok := f.users[creds.Email]
	if !ok || user.password != creds.Password {
		f.mu.Unlock()
		return nil, errors.New("invalid login credentials")
	}
	ident := user.identity.clone()
	f.current = &ident
	out := f.snapshot()
	f.mu.Unlock()
	f.emit(IdentityEvent{Kind: EventSignedIn, Identity: out})
	return out, nil
}

func (f *fakeSessions) SignOut(context.Context) error {
	f.mu.Lock()
	if f.signOutErr != nil {
		err := f.signOutErr
		f.mu.Unlock()
		return err
	}
	f.current = nil
	f.mu.Unlock()
	f.emit(IdentityEvent{Kind: EventSignedOut})
	return nil
}

func (f *fakeSessions) GetCurrentSession(context.Context) (*Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.snapshot(), nil
}

func (f *fakeSessions) OnIdentityChange(fn func(IdentityEvent)) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return fakeSubscription(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	})
}

func (f *fakeSessions) UpdateIdentityMetadata(_ context.Context, patch map[string]any) error {
	f.mu.Lock()
	f.updates = append(f.updates, patch)
	if f.updateErr != nil {
		err := f.updateErr
		f.mu.Unlock()
		return err
	}
	if f.current == nil {
		f.mu.Unlock()
		return errors.New("not signed in")
	}
	next := f.current.clone()
	if next.Metadata == nil {
		next.Metadata = map[string]any{}
	}
	for k, v := range patch {
		next.Metadata[k] = v
	}
	if role, ok := patch["role"].(string); ok {
		next.Role = enums.Role(role)
	}
	f.current = &next
	for _, u := range f.users {
		if u.identity.UserID == next.UserID {
			u.identity = next.clone()
		}
	}
	out := f.snapshot()
	f.mu.Unlock()
	f.emit(IdentityEvent{Kind: EventUserUpdated, Identity: out})
	return nil
}

func (f *fakeSessions) refreshToken() {
	f.mu.Lock()
	out := f.snapshot()
	f.mu.Unlock()
	f.emit(IdentityEvent{Kind: EventTokenRefreshed, Identity: out})
}

func (f *fakeSessions) setSignOutErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutErr = err
}

func (f *fakeSessions) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

type fakeSubscription func()

func (s fakeSubscription) Unsubscribe() { s() }

// fakeRecords is an in-memory record store with per-call failure injection.
type fakeRecords struct {
	mu       sync.Mutex
	rows     map[string][]Row
	seq      int
	calls    []string
	idemKeys map[string]Row

	failSelect error
	failDelete error
	// failInsert fails inserts whose vehicle_id matches the key.
	failInsert map[string]error
	onSelect   func()
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{rows: map[string][]Row{}, idemKeys: map[string]Row{}, failInsert: map[string]error{}}
}

func matches(row Row, filter Filter) bool {
	for k, v := range filter {
		if fmt.Sprint(row[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func copyRow(row Row) Row {
	out := Row{}
	for k, v := range row {
		out[k] = v
	}
	return out
}

func (f *fakeRecords) Select(_ context.Context, collection string, filter Filter) ([]Row, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "select:"+collection)
	hook := f.onSelect
	f.onSelect = nil
	err := f.failSelect
	var out []Row
	for _, row := range f.rows[collection] {
		if matches(row, filter) {
			out = append(out, copyRow(row))
		}
	}
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeRecords) Insert(_ context.Context, collection string, row Row, opts ...InsertOption) (Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "insert:"+collection)
	if err := f.failInsert[fmt.Sprint(row["vehicle_id"])]; err != nil {
		return nil, err
	}
	options := ApplyInsertOptions(opts...)
	if options.IdempotencyKey != "" {
		if existing, ok := f.idemKeys[options.IdempotencyKey]; ok {
			// The API replays a key only for the same request body.
			for k, v := range row {
				if fmt.Sprint(existing[k]) != fmt.Sprint(v) {
					return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different payload")
				}
			}
			return copyRow(existing), nil
		}
	}
	if collection == CollectionWishlist {
		for _, existing := range f.rows[collection] {
			if matches(existing, Filter{"user_id": row["user_id"], "vehicle_id": row["vehicle_id"]}) {
				return copyRow(existing), nil
			}
		}
	}
	f.seq++
	stored := copyRow(row)
	stored["id"] = fmt.Sprintf("row-%d", f.seq)
	stored["created_at"] = time.Date(2026, 10, 1, 12, 0, f.seq, 0, time.UTC)
	f.rows[collection] = append(f.rows[collection], stored)
	if options.IdempotencyKey != "" {
		f.idemKeys[options.IdempotencyKey] = stored
	}
	return copyRow(stored), nil
}

func (f *fakeRecords) Update(_ context.Context, collection string, filter Filter, patch Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update:"+collection)
	for _, row := range f.rows[collection] {
		if matches(row, filter) {
			for k, v := range patch {
				row[k] = v
			}
		}
	}
	return nil
}

func (f *fakeRecords) Delete(_ context.Context, collection string, filter Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete:"+collection)
	if f.failDelete != nil {
		return f.failDelete
	}
	kept := f.rows[collection][:0]
	for _, row := range f.rows[collection] {
		if !matches(row, filter) {
			kept = append(kept, row)
		}
	}
	f.rows[collection] = kept
	return nil
}

func (f *fakeRecords) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRecords) rowsFor(collection string, filter Filter) []Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Row
	for _, row := range f.rows[collection] {
		if matches(row, filter) {
			out = append(out, copyRow(row))
		}
	}
	return out
}

func (f *fakeRecords) setFailInsert(vehicleID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failInsert, vehicleID)
		return
	}
	f.failInsert[vehicleID] = err
}

func (f *fakeRecords) setFailSelect(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSelect = err
}

// fakeStorage is a map-backed LocalStorage with write failure injection.
type fakeStorage struct {
	mu      sync.Mutex
	values  map[string]string
	failSet error
	failGet error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{values: map[string]string{}}
}

func (s *fakeStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return "", false, s.failGet
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *fakeStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet != nil {
		return s.failSet
	}
	s.values[key] = value
	return nil
}

func (s *fakeStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *fakeStorage) raw(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *fakeStorage) setFailGet(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet = err
}

func (s *fakeStorage) setFailSet(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSet = err
}

type fakeCatalog map[string]Vehicle

func (c fakeCatalog) GetVehicle(_ context.Context, id string) (*Vehicle, error) {
	v, ok := c[id]
	if !ok {
		return nil, errors.New("vehicle not found")
	}
	return &v, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.notices {
		if n.Level == NoticeError {
			out = append(out, n.Message)
		}
	}
	return out
}

func testVehicle(id string) Vehicle {
	return Vehicle{
		ID:          id,
		StockNumber: "STK-" + id,
		Make:        "Toyota",
		Model:       "Camry",
		Year:        2024,
		Trim:        "XSE",
		Price:       decimal.RequireFromString("31995.00"),
		Condition:   string(enums.VehicleConditionUsed),
		Status:      string(enums.VehicleStatusAvailable),
	}
}

type harness struct {
	sessions *fakeSessions
	records  *fakeRecords
	storage  *fakeStorage
	notifier *recordingNotifier
	manager  *IdentityManager
	coord    *Coordinator
}

const (
	testEmail    = "shopper@example.com"
	testPassword = "hunter22"
	testUserID   = "user-1"
)

// newHarness wires a manager and coordinator over fakes. The default user
// already carries a role so no background metadata update races the test.
func newHarness(t *testing.T, setup ...func(*harness)) *harness {
	t.Helper()
	h := &harness{
		sessions: newFakeSessions(),
		records:  newFakeRecords(),
		storage:  newFakeStorage(),
		notifier: &recordingNotifier{},
	}
	h.sessions.addUser(testUserID, testEmail, testPassword, enums.RoleUser)
	for _, fn := range setup {
		fn(h)
	}

	manager, err := NewIdentityManager(IdentityManagerParams{Sessions: h.sessions})
	require.NoError(t, err)
	h.manager = manager

	coord, err := NewCoordinator(CoordinatorParams{
		Identity: manager,
		Records:  h.records,
		Storage:  h.storage,
		Catalog:  fakeCatalog{"C1": testVehicle("C1"), "A": testVehicle("A"), "B": testVehicle("B")},
		Notifier: h.notifier,
		Now:      func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	h.coord = coord

	ctx := context.Background()
	manager.Init(ctx)
	require.NoError(t, coord.Init(ctx))
	require.NoError(t, coord.Sync(ctx))

	t.Cleanup(func() {
		coord.Close()
		manager.Close()
	})
	return h
}

func (h *harness) signIn(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := h.manager.SignIn(ctx, Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.NoError(t, h.coord.Sync(ctx))
}

func (h *harness) signOut(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.manager.SignOut(ctx))
	require.NoError(t, h.coord.Sync(ctx))
}
