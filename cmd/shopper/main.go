package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dealerhub/showroom/internal/account"
	"github.com/dealerhub/showroom/internal/localstore"
	"github.com/dealerhub/showroom/pkg/client"
	"github.com/dealerhub/showroom/pkg/config"
	"github.com/dealerhub/showroom/pkg/enums"
	"github.com/dealerhub/showroom/pkg/logger"
	"github.com/dealerhub/showroom/pkg/metrics"
)

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, strings.TrimSpace(v))
	return nil
}

type cartFlag struct {
	vehicleID   string
	inquiryType enums.InquiryType
}

func parseCartFlag(raw string) (cartFlag, error) {
	id, kind, found := strings.Cut(raw, ":")
	if !found {
		kind = string(enums.InquiryTypeGeneral)
	}
	inquiryType, err := enums.ParseInquiryType(kind)
	if err != nil {
		return cartFlag{}, fmt.Errorf("-cart %q: %w", raw, err)
	}
	if strings.TrimSpace(id) == "" {
		return cartFlag{}, fmt.Errorf("-cart %q: vehicle id is required", raw)
	}
	return cartFlag{vehicleID: strings.TrimSpace(id), inquiryType: inquiryType}, nil
}

func main() {
	var saves, carts listFlag
	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "account password")
	signup := flag.Bool("signup", false, "create the account instead of signing in")
	fullName := flag.String("name", "", "full name used with -signup")
	notes := flag.String("notes", "", "notes attached to every -cart item")
	flag.Var(&saves, "save", "vehicle id to save to the wishlist (repeatable)")
	flag.Var(&carts, "cart", "vehicle id and inquiry type to add to the cart, as <id>:<type> (repeatable)")
	submit := flag.Bool("submit", false, "submit the inquiry cart")
	signOut := flag.Bool("signout", false, "sign out before exiting")
	flag.Parse()

	_ = godotenv.Load()
	bootLog := logger.New(logger.Options{ServiceName: "shopper"})
	cfg, err := config.LoadClient()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load client config", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "shopper",
		Level:       logger.ParseLevel(cfg.LogLevel),
		WarnStack:   cfg.LogWarnStack,
		Output:      os.Stderr,
	})

	cartItems := make([]cartFlag, 0, len(carts))
	for _, raw := range carts {
		item, err := parseCartFlag(raw)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		cartItems = append(cartItems, item)
	}

	ctx := logg.WithVisitorID(context.Background(), cfg.VisitorID)
	if err := run(ctx, logg, cfg, options{
		email:    *email,
		password: *password,
		signup:   *signup,
		fullName: *fullName,
		notes:    *notes,
		saves:    saves,
		carts:    cartItems,
		submit:   *submit,
		signOut:  *signOut,
	}); err != nil {
		logg.Error(ctx, "shopper run failed", err)
		os.Exit(1)
	}
}

type options struct {
	email, password string
	signup          bool
	fullName        string
	notes           string
	saves           []string
	carts           []cartFlag
	submit          bool
	signOut         bool
}

func run(ctx context.Context, logg *logger.Logger, cfg *config.ClientConfig, opts options) error {
	store, err := localstore.Open(ctx, *cfg, logg)
	if err != nil {
		return err
	}
	defer store.Close()

	sdk := client.New(
		client.WithBaseURL(cfg.APIBaseURL),
		client.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		client.WithTokenStore(store),
		client.WithLogger(logg),
	)
	accountMetrics := metrics.NewAccountMetrics(prometheus.NewRegistry())

	identity, err := account.NewIdentityManager(account.IdentityManagerParams{
		Sessions: sdk,
		Logger:   logg,
		Metrics:  accountMetrics,
	})
	if err != nil {
		return err
	}
	defer identity.Close()

	coordinator, err := account.NewCoordinator(account.CoordinatorParams{
		Identity: identity,
		Records:  sdk,
		Storage:  store,
		Catalog:  sdk,
		Notifier: shopperNotices(logg),
		Logger:   logg,
		Metrics:  accountMetrics,
	})
	if err != nil {
		return err
	}
	defer coordinator.Close()

	identity.Init(ctx)
	if err := coordinator.Init(ctx); err != nil {
		return err
	}
	if err := coordinator.Sync(ctx); err != nil {
		return err
	}

	if opts.email != "" {
		creds := account.Credentials{Email: opts.email, Password: opts.password}
		if opts.signup {
			_, err = identity.SignUp(ctx, creds, account.Profile{FullName: opts.fullName})
		} else {
			_, err = identity.SignIn(ctx, creds)
		}
		if err != nil {
			return err
		}
		if err := coordinator.Sync(ctx); err != nil {
			return err
		}
	}

	for _, id := range opts.saves {
		vehicle, err := sdk.GetVehicle(ctx, id)
		if err != nil {
			return err
		}
		if err := coordinator.Save(ctx, *vehicle); err != nil {
			return err
		}
	}
	for _, item := range opts.carts {
		vehicle, err := sdk.GetVehicle(ctx, item.vehicleID)
		if err != nil {
			return err
		}
		if err := coordinator.AddToCart(ctx, *vehicle, item.inquiryType, opts.notes); err != nil {
			return err
		}
	}
	if opts.submit {
		submitted, err := coordinator.SubmitInquiry(ctx)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "submitted", submitted), "shopper.inquiry_submitted")
	}

	if err := coordinator.Sync(ctx); err != nil {
		return err
	}
	if err := printState(coordinator.State(), coordinator.LastMigration()); err != nil {
		return err
	}

	if opts.signOut {
		if err := identity.SignOut(ctx); err != nil {
			return err
		}
		syncCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return coordinator.Sync(syncCtx)
	}
	return nil
}

type wishlistLine struct {
	Entry   string `json:"entry"`
	Vehicle string `json:"vehicle"`
	Title   string `json:"title,omitempty"`
}

type cartLine struct {
	Vehicle     string `json:"vehicle"`
	Title       string `json:"title"`
	InquiryType string `json:"inquiry_type"`
	Quantity    int    `json:"quantity"`
}

type migrationLine struct {
	Migrated []string `json:"migrated"`
	Failed   []string `json:"failed,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func printState(state account.AccountState, migration *account.MigrationReport) error {
	out := struct {
		User      string         `json:"user,omitempty"`
		Role      string         `json:"role,omitempty"`
		Wishlist  []wishlistLine `json:"wishlist"`
		Cart      []cartLine     `json:"cart"`
		CartCount int            `json:"cart_count"`
		Migration *migrationLine `json:"migration,omitempty"`
	}{
		User:      state.Identity.Email,
		Role:      string(state.Identity.Role),
		CartCount: state.CartCount,
	}
	if migration != nil {
		out.Migration = &migrationLine{Migrated: migration.Migrated, Failed: migration.Failed}
		if migration.Err != nil {
			out.Migration.Error = migration.Err.Error()
		}
	}
	for _, e := range state.Wishlist {
		line := wishlistLine{Entry: e.EntryID(), Vehicle: account.EntryItemID(e)}
		if v := e.Snapshot(); v != nil {
			line.Title = v.Title()
		}
		out.Wishlist = append(out.Wishlist, line)
	}
	for _, item := range state.Cart {
		out.Cart = append(out.Cart, cartLine{
			Vehicle:     item.Vehicle.ID,
			Title:       item.Vehicle.Title(),
			InquiryType: item.InquiryType.Label(),
			Quantity:    item.Quantity,
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// shopperNotices echoes coordinator notices to stderr and the log.
func shopperNotices(logg *logger.Logger) account.Notifier {
	logged := account.LogNotifier{Logger: logg}
	return account.NotifierFunc(func(n account.Notice) {
		fmt.Fprintf(os.Stderr, "%s: %s\n", n.Level, n.Message)
		logged.Notify(n)
	})
}
