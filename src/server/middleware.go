package server

import (
	"context"
	"net/http"
	"strings"

	"membershare/src/apperr"
	"membershare/src/models"
)

type principalKey struct{}

func principalFrom(ctx context.Context) models.Principal {
	p, _ := ctx.Value(principalKey{}).(models.Principal)
	return p
}

// authenticate resolves the bearer token, if any, into the request's
// principal. Requests without a token proceed anonymously.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeError(w, a.Logger, apperr.New(apperr.CodeUnauthenticated, "malformed authorization header"))
			return
		}
		p, err := a.Sessions.Parse(strings.TrimSpace(token))
		if err != nil {
			writeError(w, a.Logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r.Context())
		if p.Anonymous() {
			writeError(w, a.Logger, apperr.New(apperr.CodeUnauthenticated, "sign in required"))
			return
		}
		if !p.Admin {
			writeError(w, a.Logger, apperr.Forbidden("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
