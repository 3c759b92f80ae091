package account

import (
	"reflect"

	"github.com/dealerhub/showroom/pkg/enums"
)

// Identity is the signed-in user as seen by the shopper client. The zero value
// is the anonymous visitor.
type Identity struct {
	UserID   string         `json:"id"`
	Email    string         `json:"email"`
	Role     enums.Role     `json:"role,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Anonymous is the "no identity" sentinel.
var Anonymous = Identity{}

func (i Identity) IsAnonymous() bool {
	return i.UserID == ""
}

// HasRole reports whether a role tag has been assigned.
func (i Identity) HasRole() bool {
	return i.Role != ""
}

// EffectiveRole treats a missing role as user.
func (i Identity) EffectiveRole() enums.Role {
	return enums.RoleOrDefault(string(i.Role))
}

// Owner returns the wishlist owner key for this identity.
func (i Identity) Owner() string {
	if i.IsAnonymous() {
		return GuestOwner
	}
	return i.UserID
}

// Equal compares every field including metadata.
func (i Identity) Equal(other Identity) bool {
	if i.UserID != other.UserID || i.Email != other.Email || i.Role != other.Role {
		return false
	}
	if len(i.Metadata) == 0 && len(other.Metadata) == 0 {
		return true
	}
	return reflect.DeepEqual(i.Metadata, other.Metadata)
}

func (i Identity) clone() Identity {
	if i.Metadata == nil {
		return i
	}
	meta := make(map[string]any, len(i.Metadata))
	for k, v := range i.Metadata {
		meta[k] = v
	}
	i.Metadata = meta
	return i
}

// Credentials used for password sign-in and sign-up.
type Credentials struct {
	Email    string
	Password string
}

// Profile carries sign-up profile fields.
type Profile struct {
	FullName string
	Phone    string
}

// EventKind names an identity change emitted by the session service.
type EventKind string

const (
	EventInitialSession EventKind = "initial_session"
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
	EventTokenRefreshed EventKind = "token_refreshed"
	EventUserUpdated    EventKind = "user_updated"
)

// IdentityEvent is delivered by SessionService.OnIdentityChange. A nil Identity
// means there is no session.
type IdentityEvent struct {
	Kind     EventKind
	Identity *Identity
}

// State of the identity manager.
type State string

const (
	StateInitializing  State = "initializing"
	StateAnonymous     State = "anonymous"
	StateAuthenticated State = "authenticated"
)

// Transition is published to identity subscribers.
type Transition struct {
	Event     EventKind
	Prev      Identity
	Next      Identity
	PrevState State
	NextState State
}

// SignedIn reports an Anonymous (or initializing) to Authenticated edge, or a
// switch between two different accounts.
func (t Transition) SignedIn() bool {
	return !t.Next.IsAnonymous() && t.Prev.UserID != t.Next.UserID
}

// SignedOut reports an Authenticated to Anonymous edge.
func (t Transition) SignedOut() bool {
	return t.Next.IsAnonymous() && t.PrevState == StateAuthenticated
}
