package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/coursehub/coursehub/api/web"
	"github.com/coursehub/coursehub/api/weberr"
	"github.com/coursehub/coursehub/core/claims"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// LoadAndSave adapts the scs middleware to the web.Handler chain and loads
// the session identity into the request context as claims.
func LoadAndSave(session *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			var err error

			sh := session.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := r.Context()

				if id := session.GetString(ctx, userIDKey); id != "" {
					clm := claims.Claims{
						UserID: id,
						Role:   session.GetString(ctx, roleKey),
					}
					ctx = claims.Set(ctx, clm)
				}

				err = handler(ctx, w, r)
			}))

			sh.ServeHTTP(w, r)
			return err
		}
		return h
	}
	return m
}

func Authenticate(session *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if _, err := claims.Get(ctx); err != nil {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

func Admin(session *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if !claims.IsAdmin(ctx) {
				return weberr.NotAuthorized(errors.New("user is not an admin"))
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

// login binds the session to the given user, renewing the token to prevent
// session fixation.
func login(ctx context.Context, session *scs.SessionManager, userID string, role string) error {
	if err := session.RenewToken(ctx); err != nil {
		return err
	}

	session.Put(ctx, userIDKey, userID)
	session.Put(ctx, roleKey, role)
	return nil
}
