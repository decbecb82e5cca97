// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package web

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"tempora.dev/tempora/arcade/auth"
	"tempora.dev/tempora/arcade/users"
)

type contextKey int

const grantKey contextKey = iota

// grantFrom returns the access grant attached by withBearer, nil on
// unauthenticated routes.
func grantFrom(ctx context.Context) *auth.Grant {
	grant, _ := ctx.Value(grantKey).(*auth.Grant)
	return grant
}

// bearerToken extracts the access token; the WebSocket endpoint also
// accepts it through query parameters because browsers cannot set
// headers on upgrade requests.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return token
		}
		return ""
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return r.URL.Query().Get("access_token")
}

// withBearer authenticates the request and attaches the grant and the
// user to the context.
func (server *Server) withBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := bearerToken(r)
		if token == "" {
			server.serveError(w, r, auth.ErrInvalidGrant.New("missing bearer token"))
			return
		}
		grant, err := server.services.Auth.VerifyAccess(ctx, token)
		if err != nil {
			server.serveError(w, r, err)
			return
		}
		user, err := server.services.Users.Get(ctx, grant.UserID)
		if err != nil {
			server.serveError(w, r, auth.ErrInvalidGrant.New("token owner is gone"))
			return
		}

		ctx = users.WithUser(ctx, user)
		ctx = context.WithValue(ctx, grantKey, grant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withVerifiedSession rejects grants whose login session has not
// completed mail verification yet. Client-credentials grants carry no
// session and pass through.
func (server *Server) withVerifiedSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grant := grantFrom(r.Context())
		if grant != nil && grant.SessionID != 0 && !grant.SessionVerified {
			server.serveError(w, r, auth.ErrUnverifiedSession.New("session awaiting verification"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireScope enforces a token scope inside a handler; it writes the
// response itself when the scope is missing.
func (server *Server) requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	grant := grantFrom(r.Context())
	if grant == nil || !grant.Scopes.Has(scope) {
		server.serveError(w, r, auth.ErrInvalidScope.New("scope %q required", scope))
		return false
	}
	return true
}

// withBodyLimit caps request bodies so a client cannot stream without
// bound into JSON decoding or blob uploads.
func (server *Server) withBodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && server.config.MaxBodySize > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, server.config.MaxBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// withLIOSecret guards the internal surface with the shared secret the
// spectator server presents.
func (server *Server) withLIOSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get("X-Tempora-Secret")
		if server.config.LIOSecret == "" ||
			subtle.ConstantTimeCompare([]byte(presented), []byte(server.config.LIOSecret)) != 1 {
			server.serveError(w, r, auth.ErrInvalidGrant.New("bad internal secret"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port; the reverse proxy's forwarded header wins
// when present.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
