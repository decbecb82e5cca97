// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package web

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/auth"
	"tempora.dev/tempora/arcade/users"
)

// oauthError is the wire shape of token endpoint failures, following
// the OAuth convention rather than the api envelope.
type oauthError struct {
	Err         string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Hint        string `json:"hint,omitempty"`
}

func (server *Server) serveOAuthError(w http.ResponseWriter, err error) {
	switch {
	case auth.ErrInvalidClient.Has(err):
		server.serveJSON(w, http.StatusUnauthorized, oauthError{
			Err:         "invalid_client",
			Description: "client authentication failed",
		})
	case auth.ErrInvalidGrant.Has(err):
		server.serveJSON(w, http.StatusBadRequest, oauthError{
			Err:         "invalid_grant",
			Description: "the provided authorization grant is invalid",
			Hint:        hintOf(err),
		})
	case auth.ErrInvalidScope.Has(err):
		server.serveJSON(w, http.StatusBadRequest, oauthError{
			Err:         "invalid_scope",
			Description: err.Error(),
		})
	case auth.ErrInvalidRequest.Has(err):
		server.serveJSON(w, http.StatusBadRequest, oauthError{
			Err:         "invalid_request",
			Description: err.Error(),
		})
	case auth.ErrRateLimited.Has(err):
		w.Header().Set("Retry-After", "60")
		server.serveJSON(w, http.StatusTooManyRequests, oauthError{
			Err:         "rate_limited",
			Description: "too many token requests",
		})
	default:
		server.log.Error("token grant failed", zap.Error(err))
		server.serveJSON(w, http.StatusInternalServerError, oauthError{Err: "server_error"})
	}
}

// hintOf surfaces second-factor prompts to the client without leaking
// anything about credential validity.
func hintOf(err error) string {
	text := err.Error()
	if strings.Contains(text, "totp") {
		return "totp"
	}
	return ""
}

func (server *Server) oauthToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if err = r.ParseForm(); err != nil {
		server.serveOAuthError(w, auth.ErrInvalidRequest.New("malformed form body"))
		return
	}
	clientID, _ := strconv.ParseInt(r.PostFormValue("client_id"), 10, 64)
	apiVersion, _ := strconv.Atoi(r.Header.Get("x-api-version"))

	resp, err := server.services.Auth.Token(ctx, auth.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		ClientID:     clientID,
		ClientSecret: r.PostFormValue("client_secret"),
		Username:     r.PostFormValue("username"),
		Password:     r.PostFormValue("password"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		Scope:        r.PostFormValue("scope"),
		APIVersion:   apiVersion,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		server.serveOAuthError(w, err)
		return
	}
	server.serveJSON(w, http.StatusOK, resp)
}

type registerPayload struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"cf_turnstile_response"`
}

// formError is the per-field validation shape the game client renders
// on the registration screen.
type formError struct {
	FormError struct {
		User map[string][]string `json:"user"`
	} `json:"form_error"`
}

func (server *Server) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	payload := registerPayload{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err = decodeJSON(r, &payload); err != nil {
			server.serveError(w, r, err)
			return
		}
	} else {
		if err = r.ParseForm(); err != nil {
			server.serveError(w, r, ErrBadRequest.New("malformed form body"))
			return
		}
		payload.Username = r.PostFormValue("user[username]")
		payload.Email = r.PostFormValue("user[user_email]")
		payload.Password = r.PostFormValue("user[password]")
		payload.CaptchaToken = r.PostFormValue("cf_turnstile_response")
	}

	user, err := server.services.Auth.Register(ctx, auth.RegisterRequest{
		Username:     payload.Username,
		Email:        payload.Email,
		Password:     payload.Password,
		CaptchaToken: payload.CaptchaToken,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
		Country:      r.Header.Get("CF-IPCountry"),
	})
	if err != nil {
		if field := registrationField(err); field != "" {
			body := formError{}
			body.FormError.User = map[string][]string{field: {err.Error()}}
			server.serveJSON(w, http.StatusUnprocessableEntity, body)
			return
		}
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, user)
}

// registrationField attributes a registration failure to the form field
// it concerns, empty when the failure is not field-shaped.
func registrationField(err error) string {
	switch {
	case users.ErrUsernameTaken.Has(err):
		return "username"
	case users.ErrEmailTaken.Has(err):
		return "user_email"
	case users.ErrValidation.Has(err):
		text := err.Error()
		switch {
		case strings.Contains(text, "username"):
			return "username"
		case strings.Contains(text, "email"):
			return "user_email"
		case strings.Contains(text, "password"):
			return "password"
		}
	}
	return ""
}

func (server *Server) passwordResetRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	var payload struct {
		Email string `json:"email"`
	}
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}

	// Always report success so the endpoint cannot be used to probe
	// which addresses have accounts.
	if err = server.services.Auth.RequestPasswordReset(ctx, payload.Email); err != nil {
		if auth.ErrRateLimited.Has(err) {
			server.serveError(w, r, err)
			return
		}
		server.log.Info("password reset request failed", zap.Error(err))
	}
	server.serveJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (server *Server) passwordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	var payload struct {
		Email       string `json:"email"`
		Code        string `json:"code"`
		NewPassword string `json:"new_password"`
	}
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = server.services.Auth.ResetPassword(ctx, payload.Email, payload.Code, payload.NewPassword); err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (server *Server) sessionVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	grant := grantFrom(ctx)
	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	var key string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var payload struct {
			Key string `json:"verification_key"`
		}
		if err = decodeJSON(r, &payload); err != nil {
			server.serveError(w, r, err)
			return
		}
		key = payload.Key
	} else {
		key = r.PostFormValue("verification_key")
	}

	if err = server.services.Auth.VerifySession(ctx, user.ID, grant.SessionID, key); err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, nil)
}

func (server *Server) sessionVerifyReissue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	grant := grantFrom(ctx)
	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = server.services.Auth.ReissueVerification(ctx, user.ID, grant.SessionID); err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, nil)
}

// sessionVerifyMailFallback re-sends the verification code by mail for
// clients that cannot receive it through the first channel.
func (server *Server) sessionVerifyMailFallback(w http.ResponseWriter, r *http.Request) {
	server.sessionVerifyReissue(w, r)
}
