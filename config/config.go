package config

import "time"

type Config struct {
	Web    Web
	DB     DB
	Cors   Cors
	Auth   Auth
	Email  Email
	Paypal Paypal
	Stripe Stripe
	Oauth  Oauth
	Sweep  Sweep
	Video  Video
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:10s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type DB struct {
	User         string `conf:"default:postgres"`
	Password     string `conf:"default:postgres,mask"`
	Host         string `conf:"default:localhost"`
	Name         string `conf:"default:coursehub"`
	MaxIdleConns int    `conf:"default:2"`
	MaxOpenConns int    `conf:"default:0"`
	DisableTLS   bool   `conf:"default:true"`
}

type Cors struct {
	Origin string
}

type Auth struct {
	ActivationRequired bool `conf:"default:false"`
}

type Email struct {
	Host          string
	Port          string `conf:"default:587"`
	Address       string
	Password      string `conf:",mask"`
	SalesAddress  string
	ActivationURL string
	RecoveryURL   string
	TokenTimeout  time.Duration `conf:"default:15m"`
}

type Paypal struct {
	ClientID string
	Secret   string `conf:",mask"`
	URL      string `conf:"default:https://api.sandbox.paypal.com"`
}

type Stripe struct {
	APISecret     string `conf:",mask"`
	WebhookSecret string `conf:",mask"`
}

type Oauth struct {
	DiscoveryTimeout time.Duration `conf:"default:30s"`
	LoginRedirectURL string
	Google           OauthProvider
}

type OauthProvider struct {
	Client      string
	Secret      string `conf:",mask"`
	URL         string `conf:"default:https://accounts.google.com"`
	RedirectURL string
}

// Sweep drives the periodic reconciliation of stale rows: pending orders
// older than OrderTTL are expired, expired orders older than OrderGrace are
// deleted, incomplete subscriptions older than SubscriptionTTL are purged.
type Sweep struct {
	Interval        time.Duration `conf:"default:1h"`
	OrderTTL        time.Duration `conf:"default:24h"`
	OrderGrace      time.Duration `conf:"default:168h"`
	SubscriptionTTL time.Duration `conf:"default:48h"`
}

type Video struct {
	UploadDir string `conf:"default:/tmp/coursehub-uploads"`
}
