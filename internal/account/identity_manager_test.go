package account

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/dealerhub/showroom/pkg/enums"
	pkgerrors "github.com/dealerhub/showroom/pkg/errors"
	"github.com/dealerhub/showroom/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, sessions *fakeSessions) *IdentityManager {
	t.Helper()
	m, err := NewIdentityManager(IdentityManagerParams{Sessions: sessions})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

type transitionLog struct {
	mu     sync.Mutex
	events []Transition
}

func (l *transitionLog) record(tr Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, tr)
}

func (l *transitionLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, 0, len(l.events))
	for _, tr := range l.events {
		out = append(out, tr.Event)
	}
	return out
}

func TestNewIdentityManagerRequiresSessions(t *testing.T) {
	_, err := NewIdentityManager(IdentityManagerParams{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestIdentityManagerStartsInitializing(t *testing.T) {
	m := newManager(t, newFakeSessions())
	assert.True(t, m.Initializing())
	assert.True(t, m.Current().IsAnonymous())
}

func TestIdentityManagerInitRestoresSession(t *testing.T) {
	sessions := newFakeSessions()
	sessions.current = &Identity{UserID: testUserID, Email: testEmail, Role: enums.RoleUser}
	m := newManager(t, sessions)

	log := &transitionLog{}
	m.Subscribe(log.record)
	m.Init(context.Background())

	assert.Equal(t, StateAuthenticated, m.State())
	assert.Equal(t, testUserID, m.Current().UserID)
	require.Equal(t, []EventKind{EventInitialSession}, log.kinds())
	assert.Equal(t, StateInitializing, log.events[0].PrevState)
}

func TestIdentityManagerInitFailureDegradesToAnonymous(t *testing.T) {
	sessions := newFakeSessions()
	sessions.getErr = errUnreachable
	m := newManager(t, sessions)

	m.Init(context.Background())

	assert.Equal(t, StateAnonymous, m.State())
	assert.False(t, m.Initializing())
	assert.Equal(t, 1, sessions.subscribeCalls)
}

func TestIdentityManagerSubscribesToServiceOnce(t *testing.T) {
	sessions := newFakeSessions()
	m := newManager(t, sessions)

	m.Init(context.Background())
	m.Init(context.Background())

	assert.Equal(t, 1, sessions.subscribeCalls)
}

func TestIdentityManagerSignInPublishesOnce(t *testing.T) {
	sessions := newFakeSessions()
	sessions.addUser(testUserID, testEmail, testPassword, enums.RoleUser)
	m := newManager(t, sessions)
	m.Init(context.Background())

	log := &transitionLog{}
	m.Subscribe(log.record)

	ident, err := m.SignIn(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, testUserID, ident.UserID)
	// The service event and the direct result describe the same change.
	require.Equal(t, []EventKind{EventSignedIn}, log.kinds())
	assert.True(t, log.events[0].SignedIn())
	assert.True(t, log.events[0].Prev.IsAnonymous())
}

func TestIdentityManagerSignInErrorIsUserFacing(t *testing.T) {
	sessions := newFakeSessions()
	m := newManager(t, sessions)
	m.Init(context.Background())

	_, err := m.SignIn(context.Background(), Credentials{Email: "nobody@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), MsgSignInFailed)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.True(t, m.Current().IsAnonymous())
}

func TestIdentityManagerSignOutFailureKeepsIdentity(t *testing.T) {
	sessions := newFakeSessions()
	sessions.addUser(testUserID, testEmail, testPassword, enums.RoleUser)
	m := newManager(t, sessions)
	m.Init(context.Background())
	_, err := m.SignIn(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	sessions.setSignOutErr(errUnreachable)
	err = m.SignOut(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), MsgSignOutFailed)
	assert.Equal(t, testUserID, m.Current().UserID)
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestIdentityManagerSignOutClearsIdentity(t *testing.T) {
	sessions := newFakeSessions()
	sessions.addUser(testUserID, testEmail, testPassword, enums.RoleUser)
	m := newManager(t, sessions)
	m.Init(context.Background())
	_, err := m.SignIn(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	log := &transitionLog{}
	m.Subscribe(log.record)
	require.NoError(t, m.SignOut(context.Background()))

	assert.True(t, m.Current().IsAnonymous())
	require.Equal(t, []EventKind{EventSignedOut}, log.kinds())
	assert.True(t, log.events[0].SignedOut())
}

func TestIdentityManagerAssignsDefaultRoleOnce(t *testing.T) {
	sessions := newFakeSessions()
	sessions.addUser(testUserID, testEmail, testPassword, "")
	m, err := NewIdentityManager(IdentityManagerParams{Sessions: sessions})
	require.NoError(t, err)
	m.Init(context.Background())

	_, err = m.SignIn(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.Current().HasRole() }, testWait, testTick)

	require.NoError(t, m.SignOut(context.Background()))
	_, err = m.SignIn(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	m.Close()

	assert.Equal(t, 1, sessions.updateCount())
	assert.Equal(t, string(enums.RoleUser), sessions.updates[0]["role"])
}

func TestIdentityManagerRoleFailureDoesNotBlockSignIn(t *testing.T) {
	sessions := newFakeSessions()
	sessions.addUser(testUserID, testEmail, testPassword, "")
	sessions.updateErr = errUnreachable
	m, err := NewIdentityManager(IdentityManagerParams{Sessions: sessions})
	require.NoError(t, err)
	m.Init(context.Background())

	ident, err := m.SignIn(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	m.Close()

	assert.Equal(t, testUserID, ident.UserID)
	assert.Equal(t, enums.RoleUser, ident.EffectiveRole())
	assert.Equal(t, 1, sessions.updateCount())
}

func TestIdentityManagerQueuesEventsRaisedBySubscribers(t *testing.T) {
	sessions := newFakeSessions()
	sessions.addUser(testUserID, testEmail, testPassword, enums.RoleUser)
	m := newManager(t, sessions)
	m.Init(context.Background())

	log := &transitionLog{}
	var once sync.Once
	m.Subscribe(func(tr Transition) {
		log.record(tr)
		if tr.Event == EventSignedIn {
			once.Do(func() {
				// Nested sign-out must be delivered after the sign-in fan-out.
				require.NoError(t, m.SignOut(context.Background()))
			})
		}
	})
	second := &transitionLog{}
	m.Subscribe(second.record)

	_, err := m.SignIn(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	assert.Equal(t, []EventKind{EventSignedIn, EventSignedOut}, log.kinds())
	assert.Equal(t, []EventKind{EventSignedIn, EventSignedOut}, second.kinds())
	assert.True(t, m.Current().IsAnonymous())
}

func TestIdentityManagerRepublishesTokenRefresh(t *testing.T) {
	sessions := newFakeSessions()
	sessions.addUser(testUserID, testEmail, testPassword, enums.RoleUser)
	m := newManager(t, sessions)
	m.Init(context.Background())
	_, err := m.SignIn(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	log := &transitionLog{}
	m.Subscribe(log.record)
	sessions.refreshToken()
	require.NoError(t, m.Refresh(context.Background()))

	// Refresh re-reads an unchanged identity and is not published.
	assert.Equal(t, []EventKind{EventTokenRefreshed}, log.kinds())
}

func TestIdentityManagerUnsubscribeIsIdempotent(t *testing.T) {
	sessions := newFakeSessions()
	sessions.addUser(testUserID, testEmail, testPassword, enums.RoleUser)
	m := newManager(t, sessions)
	m.Init(context.Background())

	log := &transitionLog{}
	unsubscribe := m.Subscribe(log.record)
	unsubscribe()
	unsubscribe()

	_, err := m.SignIn(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	assert.Empty(t, log.kinds())
}

func TestIdentityManagerUnsubscribeInsideCallback(t *testing.T) {
	sessions := newFakeSessions()
	sessions.addUser(testUserID, testEmail, testPassword, enums.RoleUser)
	m := newManager(t, sessions)
	m.Init(context.Background())

	calls := 0
	var unsubscribe func()
	unsubscribe = m.Subscribe(func(Transition) {
		calls++
		unsubscribe()
	})

	_, err := m.SignIn(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.NoError(t, m.SignOut(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestIdentityManagerIgnoresEventsAfterClose(t *testing.T) {
	sessions := newFakeSessions()
	sessions.addUser(testUserID, testEmail, testPassword, enums.RoleUser)
	m, err := NewIdentityManager(IdentityManagerParams{Sessions: sessions})
	require.NoError(t, err)
	m.Init(context.Background())

	log := &transitionLog{}
	m.Subscribe(log.record)
	m.Close()
	m.Close()

	m.apply(IdentityEvent{Kind: EventSignedIn, Identity: &Identity{UserID: testUserID}})
	assert.Empty(t, log.kinds())
	assert.True(t, m.Current().IsAnonymous())
	assert.Empty(t, sessions.listeners)
}

func TestIdentityManagerLogsSignInAndSignOut(t *testing.T) {
	var buf bytes.Buffer
	sessions := newFakeSessions()
	sessions.addUser(testUserID, testEmail, testPassword, enums.RoleUser)
	m, err := NewIdentityManager(IdentityManagerParams{
		Sessions: sessions,
		Logger:   logger.New(logger.Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: &buf, Format: "json"}),
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	m.Init(context.Background())

	_, err = m.SignIn(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "identity.signed_in")
	assert.NotContains(t, buf.String(), "identity.transition")

	require.NoError(t, m.SignOut(context.Background()))
	assert.Contains(t, buf.String(), "identity.signed_out")
}
