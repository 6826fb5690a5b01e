package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/coursehub/coursehub/api/web"
	"github.com/coursehub/coursehub/api/weberr"
	"github.com/coursehub/coursehub/core/claims"
	"github.com/coursehub/coursehub/core/user"
	"github.com/coursehub/coursehub/random"
	"github.com/coursehub/coursehub/validate"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

const stateKey = "oauth_state"

type ProviderConfig struct {
	Name        string
	Client      string
	Secret      string
	URL         string
	RedirectURL string
}

type Provider struct {
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func MakeProviders(ctx context.Context, cfgs []ProviderConfig) (map[string]Provider, error) {
	provs := make(map[string]Provider, len(cfgs))

	for _, cfg := range cfgs {
		p, err := oidc.NewProvider(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("discovering provider[%s]: %w", cfg.Name, err)
		}

		provs[cfg.Name] = Provider{
			config: oauth2.Config{
				ClientID:     cfg.Client,
				ClientSecret: cfg.Secret,
				Endpoint:     p.Endpoint(),
				RedirectURL:  cfg.RedirectURL,
				Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
			},
			verifier: p.Verifier(&oidc.Config{ClientID: cfg.Client}),
		}
	}

	return provs, nil
}

func HandleOauthLogin(session *scs.SessionManager, provs map[string]Provider) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		prov, ok := provs[web.Param(r, "provider")]
		if !ok {
			return weberr.NotFound(errors.New("unknown oauth provider"))
		}

		state := random.String(32)
		session.Put(ctx, stateKey, state)

		http.Redirect(w, r, prov.config.AuthCodeURL(state), http.StatusTemporaryRedirect)
		return nil
	}
}

func HandleOauthCallback(db *sqlx.DB, session *scs.SessionManager, provs map[string]Provider, redirectURL string) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		prov, ok := provs[web.Param(r, "provider")]
		if !ok {
			return weberr.NotFound(errors.New("unknown oauth provider"))
		}

		state := session.PopString(ctx, stateKey)
		if state == "" || state != r.URL.Query().Get("state") {
			return weberr.BadRequest(errors.New("oauth state mismatch"))
		}

		tok, err := prov.config.Exchange(ctx, r.URL.Query().Get("code"))
		if err != nil {
			return fmt.Errorf("exchanging oauth code: %w", err)
		}

		rawID, ok := tok.Extra("id_token").(string)
		if !ok {
			return weberr.BadRequest(errors.New("oauth token has no id_token"))
		}

		idTok, err := prov.verifier.Verify(ctx, rawID)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("verifying id token: %w", err))
		}

		var profile struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		}
		if err := idTok.Claims(&profile); err != nil {
			return fmt.Errorf("decoding id token claims: %w", err)
		}

		usr, err := user.FetchByEmail(ctx, db, profile.Email)
		if errors.Is(err, user.ErrNotFound) {
			usr, err = signupOauthUser(ctx, db, profile.Name, profile.Email)
		}
		if err != nil {
			return err
		}

		if err := login(ctx, session, usr.ID, usr.Role); err != nil {
			return err
		}

		http.Redirect(w, r, redirectURL, http.StatusTemporaryRedirect)
		return nil
	}
}

// signupOauthUser provisions an account for a first oauth login. The password
// is random and never disclosed; recovery is the only way to set one.
func signupOauthUser(ctx context.Context, db *sqlx.DB, name string, email string) (user.User, error) {
	pass, err := random.StringSecure(32)
	if err != nil {
		return user.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, err
	}

	now := time.Now().UTC()
	usr := user.User{
		ID:           validate.GenerateID(),
		Name:         name,
		Email:        email,
		Role:         claims.RoleUser,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := user.Create(ctx, db, usr); err != nil {
		return user.User{}, err
	}

	return usr, nil
}
