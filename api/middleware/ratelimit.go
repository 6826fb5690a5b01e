package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/coursehub/coursehub/api/web"
	"github.com/coursehub/coursehub/api/weberr"
	"github.com/coursehub/coursehub/rate"
)

// RateLimit throttles by client IP using the given limiter.
func RateLimit(lim *rate.Limiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if !lim.Check(ip) {
				err := errors.New("rate limit exceeded")
				return weberr.NewError(err, "too many requests", http.StatusTooManyRequests)
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
