package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/coursehub/coursehub/api"
	"github.com/coursehub/coursehub/api/background"
	"github.com/coursehub/coursehub/config"
	"github.com/coursehub/coursehub/core/claims"
	"github.com/coursehub/coursehub/core/user"
	"github.com/coursehub/coursehub/database"
	"github.com/coursehub/coursehub/rate"
	"github.com/coursehub/coursehub/validate"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"golang.org/x/crypto/bcrypt"
)

// TestEnv is a fully wired API backed by its own database and by local fakes
// of the payment providers.
type TestEnv struct {
	DB     *sqlx.DB
	Server *httptest.Server
	URL    string

	UserID     string
	UserEmail  string
	UserPass   string
	AdminID    string
	AdminEmail string
	AdminPass  string

	WebhookSecret string
	Paypal        *mockPaypal
	Stripe        *mockStripe
}

// noopMailer drops all outgoing mail.
type noopMailer struct{}

func (noopMailer) SendActivation(to string, token string, timeout string) error { return nil }
func (noopMailer) SendRecovery(to string, token string) error                   { return nil }
func (noopMailer) SendReceipt(to string, orderID string, total int) error       { return nil }
func (noopMailer) SendRefund(to string, orderID string, total int) error        { return nil }
func (noopMailer) SendSale(to string, orderID string, total int) error          { return nil }

// NewTestEnv spins up the API against a dedicated database named after the
// test. Everything is torn down via t.Cleanup.
func NewTestEnv(t *testing.T, name string) (*TestEnv, error) {
	ctx := context.Background()

	master, err := database.Open(config.DB{
		User:       "postgres",
		Password:   "postgres",
		Host:       dbHost,
		Name:       "postgres",
		DisableTLS: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening master connection: %w", err)
	}
	defer master.Close()

	if _, err := master.ExecContext(ctx, "CREATE DATABASE "+name); err != nil {
		return nil, fmt.Errorf("creating database %s: %w", name, err)
	}

	db, err := database.Open(config.DB{
		User:       "postgres",
		Password:   "postgres",
		Host:       dbHost,
		Name:       name,
		DisableTLS: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening test connection: %w", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrating: %w", err)
	}

	env := &TestEnv{
		DB:            db,
		UserEmail:     "user@test.io",
		UserPass:      "userpass123",
		AdminEmail:    "admin@test.io",
		AdminPass:     "adminpass123",
		WebhookSecret: "whsec_test",
		Paypal:        &mockPaypal{},
		Stripe:        &mockStripe{},
	}

	env.UserID, err = seedUser(ctx, db, "Test User", env.UserEmail, env.UserPass, claims.RoleUser)
	if err != nil {
		return nil, err
	}
	env.AdminID, err = seedUser(ctx, db, "Test Admin", env.AdminEmail, env.AdminPass, claims.RoleAdmin)
	if err != nil {
		return nil, err
	}

	ppSrv := httptest.NewServer(env.Paypal.handle())
	t.Cleanup(ppSrv.Close)

	pp, err := paypal.NewClient("test-client", "test-secret", ppSrv.URL)
	if err != nil {
		return nil, fmt.Errorf("building paypal client: %w", err)
	}
	if _, err := pp.GetAccessToken(ctx); err != nil {
		return nil, fmt.Errorf("getting paypal token: %w", err)
	}

	strpSrv := httptest.NewServer(env.Stripe.handle())
	t.Cleanup(strpSrv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:           stripe.String(strpSrv.URL),
		LeveledLogger: &stripe.LeveledLogger{Level: stripe.LevelError},
	})
	strp := &stripecl.API{}
	strp.Init("sk_test", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	bg := background.New(logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		bg.Shutdown(ctx)
	})

	session := scs.New()
	session.Lifetime = time.Hour

	mux := api.APIMux(api.APIConfig{
		Log:            logger,
		DB:             db,
		Session:        session,
		Mailer:         noopMailer{},
		Notifier:       noopMailer{},
		TokenTimeout:   15 * time.Minute,
		Background:     bg,
		Paypal:         pp,
		Stripe:         strp,
		StripeCfg:      config.Stripe{APISecret: "sk_test", WebhookSecret: env.WebhookSecret},
		EmailCfg:       config.Email{SalesAddress: "sales@test.io"},
		VideoUploadDir: t.TempDir(),
		Limiter:        rate.NewLimiter(1000, 1000, rate.Every(time.Second)),
	})

	env.Server = httptest.NewServer(mux)
	t.Cleanup(env.Server.Close)
	env.URL = env.Server.URL

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	env.Server.Client().Jar = jar

	return env, nil
}

// Client returns the http client bound to the test server, carrying the
// session cookie across requests.
func (env *TestEnv) Client() *http.Client {
	return env.Server.Client()
}

func seedUser(ctx context.Context, db *sqlx.DB, name, email, pass, role string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.MinCost)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	usr := user.User{
		ID:           validate.GenerateID(),
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := user.Create(ctx, db, usr); err != nil {
		return "", fmt.Errorf("seeding user %s: %w", email, err)
	}
	return usr.ID, nil
}

func Login(srv *httptest.Server, email string, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}

	w, err := srv.Client().Post(srv.URL+"/auth/login", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		return fmt.Errorf("login as %s: status code %s", email, w.Status)
	}
	return nil
}

func Logout(srv *httptest.Server) error {
	w, err := srv.Client().Post(srv.URL+"/auth/logout", "application/json", nil)
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		return fmt.Errorf("logout: status code %s", w.Status)
	}
	return nil
}
