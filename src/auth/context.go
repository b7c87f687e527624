// Package auth carries the caller identity reported by the upstream gateway.
package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const RequesterKey contextKey = "requester"

// RequesterHeader is set by the gateway to the authenticated principal.
const RequesterHeader = "X-Requested-By"

func WithRequester(ctx context.Context, requester string) context.Context {
	return context.WithValue(ctx, RequesterKey, requester)
}

func GetRequesterFromContext(ctx context.Context) (string, bool) {
	requester, ok := ctx.Value(RequesterKey).(string)
	return requester, ok && requester != ""
}

// RequesterMiddleware copies RequesterHeader into the request context.
func RequesterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requester := strings.TrimSpace(r.Header.Get(RequesterHeader)); requester != "" {
			r = r.WithContext(WithRequester(r.Context(), requester))
		}
		next.ServeHTTP(w, r)
	})
}
