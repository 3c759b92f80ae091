package account

import (
	"context"
	"sync"

	"github.com/dealerhub/showroom/pkg/enums"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
	"github.com/dealerhub/showroom/pkg/metrics"
)

// IdentityManagerParams groups dependencies for the identity manager.
type IdentityManagerParams struct {
	Sessions SessionService
	Logger   *logger.Logger
	Metrics  *metrics.AccountMetrics
}

// IdentityManager owns the current identity and fans identity transitions out
// to subscribers in the order the session service emits them.
type IdentityManager struct {
	sessions SessionService
	logg     *logger.Logger
	metrics  *metrics.AccountMetrics

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu          sync.Mutex
	state       State
	current     Identity
	listeners   []listenerEntry
	nextID      int
	sub         Subscription
	initialized bool
	closed      bool
	roleEnsured map[string]bool
	// serviceSeq counts events delivered by the service subscription.
	serviceSeq uint64

	// pending events are applied one at a time by whichever caller owns draining.
	pending  []IdentityEvent
	draining bool
}

type listenerEntry struct {
	id int
	fn func(Transition)
}

// NewIdentityManager builds a manager in the Initializing state.
func NewIdentityManager(params IdentityManagerParams) (*IdentityManager, error) {
	if params.Sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session service is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &IdentityManager{
		sessions:    params.Sessions,
		logg:        logg,
		metrics:     params.Metrics,
		baseCtx:     ctx,
		cancel:      cancel,
		state:       StateInitializing,
		roleEnsured: map[string]bool{},
	}, nil
}

// Init fetches the current session and then subscribes to identity changes.
// Failures degrade to Anonymous so public browsing keeps working.
func (m *IdentityManager) Init(ctx context.Context) {
	m.mu.Lock()
	if m.initialized || m.closed {
		m.mu.Unlock()
		return
	}
	m.initialized = true
	m.mu.Unlock()

	current, err := m.sessions.GetCurrentSession(ctx)
	if err != nil {
		m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "identity.init_failed")
		current = nil
	}
	m.apply(IdentityEvent{Kind: EventInitialSession, Identity: current})

	sub := m.sessions.OnIdentityChange(m.onServiceEvent)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		if sub != nil {
			sub.Unsubscribe()
		}
		return
	}
	m.sub = sub
}

// Current returns the last known identity. Check Initializing first: before
// init completes the zero identity means loading, not anonymous.
func (m *IdentityManager) Current() Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.clone()
}

func (m *IdentityManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *IdentityManager) Initializing() bool {
	return m.State() == StateInitializing
}

// Subscribe registers fn for every published transition. The returned func is
// idempotent and safe to call from inside fn.
func (m *IdentityManager) Subscribe(fn func(Transition)) func() {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, l := range m.listeners {
				if l.id == id {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// SignIn authenticates with email and password.
func (m *IdentityManager) SignIn(ctx context.Context, creds Credentials) (Identity, error) {
	seq := m.seq()
	ident, err := m.sessions.SignInWithPassword(ctx, creds)
	if err != nil {
		return Identity{}, userFacing(err, MsgSignInFailed)
	}
	if ident == nil {
		return Identity{}, pkgerrors.New(pkgerrors.CodeDependency, MsgSignInFailed)
	}
	m.applyUnlessSuperseded(seq, IdentityEvent{Kind: EventSignedIn, Identity: ident})
	return m.Current(), nil
}

// SignUp creates an account. Services that require confirmation return no
// identity, in which case the visitor stays anonymous.
func (m *IdentityManager) SignUp(ctx context.Context, creds Credentials, profile Profile) (Identity, error) {
	seq := m.seq()
	ident, err := m.sessions.SignUp(ctx, creds, profile)
	if err != nil {
		return Identity{}, userFacing(err, MsgSignUpFailed)
	}
	if ident != nil {
		m.applyUnlessSuperseded(seq, IdentityEvent{Kind: EventSignedIn, Identity: ident})
	}
	return m.Current(), nil
}

// SignOut asks the service first. Local identity is only cleared on success.
func (m *IdentityManager) SignOut(ctx context.Context) error {
	seq := m.seq()
	if err := m.sessions.SignOut(ctx); err != nil {
		m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "identity.sign_out_failed")
		return userFacing(err, MsgSignOutFailed)
	}
	m.applyUnlessSuperseded(seq, IdentityEvent{Kind: EventSignedOut})
	return nil
}

// Refresh re-reads the session from the service and publishes any change.
func (m *IdentityManager) Refresh(ctx context.Context) error {
	seq := m.seq()
	ident, err := m.sessions.GetCurrentSession(ctx)
	if err != nil {
		return userFacing(err, "Failed to refresh session")
	}
	m.applyUnlessSuperseded(seq, IdentityEvent{Kind: EventUserUpdated, Identity: ident})
	return nil
}

// Close drops the service subscription and waits for background role updates.
// Events arriving afterwards are ignored.
func (m *IdentityManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sub := m.sub
	m.sub = nil
	m.listeners = nil
	m.mu.Unlock()

	m.cancel()
	if sub != nil {
		sub.Unsubscribe()
	}
	m.wg.Wait()
}

func (m *IdentityManager) seq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serviceSeq
}

func (m *IdentityManager) onServiceEvent(ev IdentityEvent) {
	m.mu.Lock()
	m.serviceSeq++
	m.mu.Unlock()
	m.apply(ev)
}

// applyUnlessSuperseded applies a direct call result only when the service has
// not emitted anything since the call started. Emitted events are authoritative.
func (m *IdentityManager) applyUnlessSuperseded(seq uint64, ev IdentityEvent) {
	m.enqueue(ev, &seq)
}

func (m *IdentityManager) apply(ev IdentityEvent) {
	m.enqueue(ev, nil)
}

func (m *IdentityManager) enqueue(ev IdentityEvent, seq *uint64) {
	m.mu.Lock()
	if m.closed || (seq != nil && *seq != m.serviceSeq) {
		m.mu.Unlock()
		return
	}
	m.pending = append(m.pending, ev)
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true

	for len(m.pending) > 0 {
		next := m.pending[0]
		m.pending = m.pending[1:]

		tr, publish := m.transitionLocked(next)
		if !publish {
			continue
		}
		listeners := make([]listenerEntry, len(m.listeners))
		copy(listeners, m.listeners)
		ensureRole := m.needsRoleLocked(tr.Next)
		m.mu.Unlock()

		m.metrics.IdentityEvent(string(tr.Event))
		m.logTransition(tr)
		for _, l := range listeners {
			l.fn(tr)
		}
		if ensureRole {
			m.ensureRole(tr.Next)
		}

		m.mu.Lock()
		if m.closed {
			m.pending = nil
		}
	}
	m.draining = false
	m.mu.Unlock()
}

func (m *IdentityManager) transitionLocked(ev IdentityEvent) (Transition, bool) {
	next := Anonymous
	nextState := StateAnonymous
	if ev.Kind != EventSignedOut && ev.Identity != nil && ev.Identity.UserID != "" {
		next = ev.Identity.clone()
		nextState = StateAuthenticated
	}

	tr := Transition{
		Event:     ev.Kind,
		Prev:      m.current.clone(),
		Next:      next,
		PrevState: m.state,
		NextState: nextState,
	}
	changed := m.state != nextState || !m.current.Equal(next)
	if !changed && ev.Kind != EventTokenRefreshed {
		return tr, false
	}
	m.current = next
	m.state = nextState
	return tr, true
}

func (m *IdentityManager) needsRoleLocked(next Identity) bool {
	if next.IsAnonymous() || next.HasRole() || m.roleEnsured[next.UserID] {
		return false
	}
	m.roleEnsured[next.UserID] = true
	m.wg.Add(1)
	return true
}

// ensureRole assigns the default role once per user in the background.
// The WaitGroup slot is reserved by needsRoleLocked.
func (m *IdentityManager) ensureRole(ident Identity) {
	go func() {
		defer m.wg.Done()
		ctx := m.logg.WithUserID(m.baseCtx, ident.UserID)
		if err := m.sessions.UpdateIdentityMetadata(ctx, map[string]any{"role": string(enums.RoleUser)}); err != nil {
			m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "identity.role_assign_failed")
			return
		}
		refreshed, err := m.sessions.GetCurrentSession(ctx)
		if err != nil {
			m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "identity.role_refetch_failed")
			return
		}
		if refreshed == nil || refreshed.UserID != ident.UserID {
			return
		}
		m.apply(IdentityEvent{Kind: EventUserUpdated, Identity: refreshed})
	}()
}

func (m *IdentityManager) logTransition(tr Transition) {
	ctx := m.logg.WithFields(context.Background(), map[string]any{
		"event":      string(tr.Event),
		"prev_state": string(tr.PrevState),
		"next_state": string(tr.NextState),
	})
	if !tr.Next.IsAnonymous() {
		ctx = m.logg.WithUserID(ctx, tr.Next.UserID)
	}
	switch {
	case tr.SignedIn():
		m.logg.Info(ctx, "identity.signed_in")
	case tr.SignedOut():
		m.logg.Info(ctx, "identity.signed_out")
	default:
		m.logg.Debug(ctx, "identity.transition")
	}
}
