package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AccountMetrics instruments the shopper account core.
type AccountMetrics struct {
	wishlistOps    *prometheus.CounterVec
	cartOps        *prometheus.CounterVec
	migrations     *prometheus.CounterVec
	migratedItems  prometheus.Counter
	inquiries      *prometheus.CounterVec
	identityEvents *prometheus.CounterVec
}

// NewAccountMetrics registers the account metrics on the provided registerer.
func NewAccountMetrics(reg prometheus.Registerer) *AccountMetrics {
	if reg == nil {
		return &AccountMetrics{}
	}
	m := &AccountMetrics{
		wishlistOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "account_wishlist_operations_total",
			Help: "Wishlist mutations by backend, operation and outcome.",
		}, []string{"backend", "op", "outcome"}),
		cartOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "account_cart_operations_total",
			Help: "Inquiry cart mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "account_guest_migrations_total",
			Help: "Guest wishlist migrations by outcome.",
		}, []string{"outcome"}),
		migratedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "account_guest_migrated_items_total",
			Help: "Guest wishlist items copied into accounts.",
		}),
		inquiries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "account_inquiry_submissions_total",
			Help: "Inquiry cart submissions by outcome.",
		}, []string{"outcome"}),
		identityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "account_identity_events_total",
			Help: "Identity transitions observed by the session manager.",
		}, []string{"event"}),
	}
	reg.MustRegister(m.wishlistOps, m.cartOps, m.migrations, m.migratedItems, m.inquiries, m.identityEvents)
	return m
}

func (m *AccountMetrics) WishlistOp(backend, op string, err error) {
	if m == nil || m.wishlistOps == nil {
		return
	}
	m.wishlistOps.WithLabelValues(normalizeLabel(backend), op, outcome(err)).Inc()
}

func (m *AccountMetrics) CartOp(op string, err error) {
	if m == nil || m.cartOps == nil {
		return
	}
	m.cartOps.WithLabelValues(op, outcome(err)).Inc()
}

// Migration records one migration pass and how many items made it across.
func (m *AccountMetrics) Migration(migrated int, err error) {
	if m == nil || m.migrations == nil {
		return
	}
	m.migrations.WithLabelValues(outcome(err)).Inc()
	m.migratedItems.Add(float64(migrated))
}

func (m *AccountMetrics) Inquiry(err error) {
	if m == nil || m.inquiries == nil {
		return
	}
	m.inquiries.WithLabelValues(outcome(err)).Inc()
}

func (m *AccountMetrics) IdentityEvent(event string) {
	if m == nil || m.identityEvents == nil {
		return
	}
	m.identityEvents.WithLabelValues(normalizeLabel(event)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
