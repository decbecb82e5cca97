// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/eventhub"
	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/users"
	"tempora.dev/tempora/storage/redis"
)

// Structured verification failure reasons.
var (
	ErrIncorrectLength = errs.Class("incorrect_length")
	ErrIncorrectFormat = errs.Class("incorrect_format")
	ErrIncorrectKey    = errs.Class("incorrect_key")
)

const (
	refreshTokenLen = 64
	mailCodeLen     = 8
	alnumAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	digitAlphabet   = "0123456789"

	totpReplayTTL  = 120 * time.Second
	totpSetupTTL   = 300 * time.Second
	oauthCodeTTL   = 300 * time.Second
	totpSetupFails = 3
)

// Mailer delivers the second-factor and recovery codes.
type Mailer interface {
	SendVerificationCode(ctx context.Context, email, code string) error
	SendPasswordResetCode(ctx context.Context, email, code string) error
}

// CaptchaVerifier validates registration captcha tokens.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, ip string) (bool, error)
}

// DailyStatsInitializer seeds the daily-challenge stats row for a fresh
// account.
type DailyStatsInitializer interface {
	EnsureRow(ctx context.Context, userID int64) error
}

// Service implements token issuance and the login trust state machine.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	db     DB
	users  users.DB
	redis  *redis.Client
	mail   Mailer
	events *eventhub.Hub
	signer *TokenSigner

	captcha    CaptchaVerifier
	dailyStats DailyStatsInitializer
	limiter    *Limiter

	config Config
	nowFn  func() time.Time
}

// NewService returns a new auth service.
func NewService(log *zap.Logger, db DB, userdb users.DB, redisClient *redis.Client, mail Mailer, events *eventhub.Hub, config Config) (*Service, error) {
	if db == nil || userdb == nil {
		return nil, errs.New("database can't be nil")
	}
	if redisClient == nil {
		return nil, errs.New("redis can't be nil")
	}
	signer, err := NewTokenSigner(config.TokenSecret, config.TokenIssuer, config.TokenAudience)
	if err != nil {
		return nil, err
	}
	return &Service{
		log:     log,
		db:      db,
		users:   userdb,
		redis:   redisClient,
		mail:    mail,
		events:  events,
		signer:  signer,
		limiter: NewLimiter(config.LoginRateLimit, config.LoginRateBurst, 10*time.Minute),
		config:  config,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetCaptcha wires an optional captcha verifier.
func (s *Service) SetCaptcha(captcha CaptchaVerifier) { s.captcha = captcha }

// SetDailyStatsInitializer wires the daily-challenge bootstrap hook.
func (s *Service) SetDailyStatsInitializer(init DailyStatsInitializer) { s.dailyStats = init }

// TestSetNow overrides the clock.
func (s *Service) TestSetNow(now func() time.Time) { s.nowFn = now }

// Run keeps the limiter's cleanup loop alive.
func (s *Service) Run(ctx context.Context) error {
	return s.limiter.Run(ctx)
}

// Close stops background loops.
func (s *Service) Close() error {
	s.limiter.Close()
	return nil
}

// RegisterRequest carries the registration form.
type RegisterRequest struct {
	Username     string
	Email        string
	Password     string
	CaptchaToken string
	IP           string
	UserAgent    string
	Country      string
}

// Register creates the account with its per-ruleset statistics rows.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (user *users.User, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := users.ValidateUsername(req.Username); err != nil {
		return nil, err
	}
	if err := users.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := users.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	if s.captcha != nil {
		ok, err := s.captcha.Verify(ctx, req.CaptchaToken, req.IP)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		if !ok {
			return nil, users.ErrValidation.New("captcha verification failed")
		}
	}

	if _, err := s.users.Users().GetByUsername(ctx, req.Username); err == nil {
		return nil, users.ErrUsernameTaken.New("%q", req.Username)
	}
	if _, err := s.users.Users().GetByEmail(ctx, req.Email); err == nil {
		return nil, users.ErrEmailTaken.New("%q", req.Email)
	}

	digest, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	country := req.Country
	if country == "" {
		country = "XX"
	}
	user = &users.User{
		Username:       req.Username,
		Email:          req.Email,
		PasswordDigest: digest,
		Country:        country,
		Privileges:     users.PrivilegeNormal,
		CreatedAt:      now,
		LastVisitAt:    now,
		PlayMode:       rulesets.Osu,
	}
	if err := s.users.Users().Insert(ctx, user); err != nil {
		return nil, Error.Wrap(err)
	}

	for _, ruleset := range rulesets.All() {
		if err := s.users.Statistics().Insert(ctx, user.ID, ruleset); err != nil {
			return nil, Error.Wrap(err)
		}
	}
	if s.dailyStats != nil {
		if err := s.dailyStats.EnsureRow(ctx, user.ID); err != nil {
			return nil, Error.Wrap(err)
		}
	}

	s.recordLogin(ctx, user.ID, req.IP, req.UserAgent, true, "registered")
	s.events.Publish(ctx, eventhub.KindUserRegistered, eventhub.UserRegistered{
		UserID:   user.ID,
		Username: user.Username,
		IP:       req.IP,
	})

	s.log.Info("user registered",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username))
	return user, nil
}

// TokenRequest carries one token-endpoint call.
type TokenRequest struct {
	GrantType    string
	ClientID     int64
	ClientSecret string
	Username     string
	Password     string
	RefreshToken string
	Code         string
	RedirectURI  string
	Scope        string
	APIVersion   int
	IP           string
	UserAgent    string
}

// Token dispatches on grant type and returns the issued pair.
func (s *Service) Token(ctx context.Context, req TokenRequest) (resp *TokenResponse, err error) {
	defer mon.Task()(&ctx)(&err)

	if req.IP != "" && !s.limiter.Allow(req.IP) {
		mon.Event("auth_token_rate_limited")
		return nil, ErrRateLimited.New("too many token requests")
	}

	switch req.GrantType {
	case GrantPassword:
		return s.passwordGrant(ctx, req)
	case GrantRefreshToken:
		return s.refreshGrant(ctx, req)
	case GrantAuthorizationCode:
		return s.authorizationCodeGrant(ctx, req)
	case GrantClientCredentials:
		return s.clientCredentialsGrant(ctx, req)
	default:
		return nil, ErrInvalidRequest.New("unsupported grant type %q", req.GrantType)
	}
}

func (s *Service) verifyClient(ctx context.Context, id int64, secret string) error {
	if id == s.config.GameClientID && s.config.GameClientSecret != "" {
		if secret == s.config.GameClientSecret {
			return nil
		}
		return ErrInvalidClient.New("bad secret")
	}
	client, err := s.db.Clients().Get(ctx, id)
	if err != nil {
		return ErrInvalidClient.New("unknown client")
	}
	if !client.SecretMatches(secret) {
		return ErrInvalidClient.New("bad secret")
	}
	return nil
}

func (s *Service) passwordGrant(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if err := s.verifyClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}
	scopes, err := ParseScopes(req.Scope)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Users().GetByUsernameOrEmail(ctx, req.Username)
	if err != nil || !VerifyPassword(user.PasswordDigest, req.Password) {
		if user != nil {
			s.recordLogin(ctx, user.ID, req.IP, req.UserAgent, false, "bad password")
		}
		mon.Event("auth_login_failed")
		return nil, ErrInvalidGrant.New("incorrect credentials")
	}

	method, err := s.pickVerification(ctx, user, req)
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	session := &Session{
		UserID:    user.ID,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		Method:    method,
		Verified:  method == VerifyNone,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.SessionTTL),
	}
	if session.Verified {
		session.VerifiedAt = &now
	}
	if err := s.db.Sessions().Insert(ctx, session); err != nil {
		return nil, Error.Wrap(err)
	}

	if method == VerifyMail {
		if err := s.sendSessionCode(ctx, user.Email, session.ID); err != nil {
			return nil, err
		}
	}

	resp, token, err := s.issue(ctx, user.ID, req.ClientID, scopes, session.ID)
	if err != nil {
		return nil, err
	}

	if !s.config.MultiDevice {
		if err := s.db.Tokens().RevokeAllForUser(ctx, user.ID, token.ID); err != nil {
			return nil, Error.Wrap(err)
		}
	}

	s.recordLogin(ctx, user.ID, req.IP, req.UserAgent, true, "password grant, method="+string(method))
	s.events.Publish(ctx, eventhub.KindUserLoggedIn, eventhub.UserLoggedIn{
		UserID: user.ID,
		IP:     req.IP,
	})
	return resp, nil
}

// pickVerification decides the second factor required for this login.
func (s *Service) pickVerification(ctx context.Context, user *users.User, req TokenRequest) (VerificationMethod, error) {
	if req.APIVersion >= s.config.TOTPSupportVersion {
		if _, err := s.db.TOTP().Get(ctx, user.ID); err == nil {
			return VerifyTOTP, nil
		}
	}
	if s.config.EmailVerification {
		trusted, err := s.db.Devices().Trusted(ctx, user.ID, DeviceFingerprint(req.IP, req.UserAgent))
		if err != nil {
			return VerifyNone, Error.Wrap(err)
		}
		if !trusted {
			return VerifyMail, nil
		}
	}
	return VerifyNone, nil
}

func (s *Service) refreshGrant(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if err := s.verifyClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}

	token, err := s.db.Tokens().GetByRefresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, ErrInvalidGrant.New("unknown refresh token")
	}
	now := s.nowFn()
	if !token.Refreshable(now) {
		return nil, ErrInvalidGrant.New("refresh token expired")
	}

	jti := NewJTI()
	refresh, err := randomString(refreshTokenLen, alnumAlphabet)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	accessExpires := now.Add(s.config.AccessTokenTTL)
	refreshExpires := now.Add(s.config.RefreshTokenTTL)
	if err := s.db.Tokens().Rotate(ctx, token.ID, jti, refresh, accessExpires, refreshExpires); err != nil {
		return nil, Error.Wrap(err)
	}

	access, err := s.signer.Sign(token.UserID, jti, accessExpires)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.config.AccessTokenTTL.Seconds()),
	}, nil
}

// authorizationCode is the Redis payload behind oauth:code keys.
type authorizationCode struct {
	UserID int64  `json:"user_id"`
	Scopes Scopes `json:"scopes"`
}

func oauthCodeKey(clientID int64, code string) string {
	return fmt.Sprintf("oauth:code:%d:%s", clientID, code)
}

// CreateAuthorizationCode stores a single-use code for the client.
func (s *Service) CreateAuthorizationCode(ctx context.Context, clientID, userID int64, scope string) (code string, err error) {
	defer mon.Task()(&ctx)(&err)

	scopes, err := ParseScopes(scope)
	if err != nil {
		return "", err
	}
	if _, err := s.db.Clients().Get(ctx, clientID); err != nil {
		return "", ErrInvalidClient.New("unknown client")
	}

	code, err = randomString(40, alnumAlphabet)
	if err != nil {
		return "", Error.Wrap(err)
	}
	err = s.redis.SetJSON(ctx, oauthCodeKey(clientID, code), authorizationCode{
		UserID: userID,
		Scopes: scopes,
	}, oauthCodeTTL)
	if err != nil {
		return "", err
	}
	return code, nil
}

func (s *Service) authorizationCodeGrant(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if err := s.verifyClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}

	key := oauthCodeKey(req.ClientID, req.Code)
	var stored authorizationCode
	found, err := s.redis.GetJSON(ctx, key, &stored)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if !found {
		return nil, ErrInvalidGrant.New("unknown or expired code")
	}
	if err := s.redis.DeleteAll(ctx, key); err != nil {
		return nil, Error.Wrap(err)
	}

	// the code was approved from an existing verified session
	now := s.nowFn()
	session := &Session{
		UserID:     stored.UserID,
		IP:         req.IP,
		UserAgent:  req.UserAgent,
		Verified:   true,
		VerifiedAt: &now,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.config.SessionTTL),
	}
	if err := s.db.Sessions().Insert(ctx, session); err != nil {
		return nil, Error.Wrap(err)
	}

	resp, _, err := s.issue(ctx, stored.UserID, req.ClientID, stored.Scopes, session.ID)
	return resp, err
}

func (s *Service) clientCredentialsGrant(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if err := s.verifyClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}
	scopes, err := ParseScopes(req.Scope)
	if err != nil {
		return nil, err
	}
	if len(scopes) != 1 || scopes[0] != ScopePublic {
		return nil, ErrInvalidScope.New("client_credentials allows only %q", ScopePublic)
	}
	resp, _, err := s.issue(ctx, 0, req.ClientID, scopes, 0)
	return resp, err
}

// issue mints and persists one access/refresh pair.
func (s *Service) issue(ctx context.Context, userID, clientID int64, scopes Scopes, sessionID int64) (*TokenResponse, *Token, error) {
	now := s.nowFn()
	jti := NewJTI()
	refresh, err := randomString(refreshTokenLen, alnumAlphabet)
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}

	token := &Token{
		UserID:           userID,
		ClientID:         clientID,
		JTI:              jti,
		Refresh:          refresh,
		Scopes:           scopes,
		SessionID:        sessionID,
		AccessExpiresAt:  now.Add(s.config.AccessTokenTTL),
		RefreshExpiresAt: now.Add(s.config.RefreshTokenTTL),
		CreatedAt:        now,
	}
	if err := s.db.Tokens().Insert(ctx, token); err != nil {
		return nil, nil, Error.Wrap(err)
	}

	access, err := s.signer.Sign(userID, jti, token.AccessExpiresAt)
	if err != nil {
		return nil, nil, err
	}
	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.config.AccessTokenTTL.Seconds()),
	}, token, nil
}

// Grant is the verified identity attached to a request.
type Grant struct {
	UserID          int64
	ClientID        int64
	Scopes          Scopes
	SessionID       int64
	SessionVerified bool
	TokenID         int64
}

// VerifyAccess checks a bearer token against the full contract: live
// stored token, valid signature, and the session's verification state.
func (s *Service) VerifyAccess(ctx context.Context, bearer string) (grant *Grant, err error) {
	defer mon.Task()(&ctx)(&err)

	claims, err := s.signer.Parse(bearer)
	if err != nil {
		return nil, err
	}
	token, err := s.db.Tokens().GetByJTI(ctx, claims.JTI)
	if err != nil {
		return nil, ErrInvalidGrant.New("unknown token")
	}
	if !token.Live(s.nowFn()) {
		return nil, ErrInvalidGrant.New("token revoked or expired")
	}

	grant = &Grant{
		UserID:    token.UserID,
		ClientID:  token.ClientID,
		Scopes:    token.Scopes,
		SessionID: token.SessionID,
		TokenID:   token.ID,
	}
	if token.SessionID != 0 {
		session, err := s.db.Sessions().Get(ctx, token.SessionID)
		if err != nil {
			return nil, ErrInvalidGrant.New("session gone")
		}
		grant.SessionVerified = session.Verified
	} else {
		grant.SessionVerified = true
	}
	return grant, nil
}

func verificationKey(sessionID int64) string {
	return fmt.Sprintf("verification:%d", sessionID)
}

func totpReplayKey(userID int64, code string) string {
	return fmt.Sprintf("totp:%d:%s", userID, code)
}

func (s *Service) sendSessionCode(ctx context.Context, email string, sessionID int64) error {
	code, err := randomString(mailCodeLen, digitAlphabet)
	if err != nil {
		return Error.Wrap(err)
	}
	if err := s.redis.SetJSON(ctx, verificationKey(sessionID), code, s.config.MailCodeTTL); err != nil {
		return err
	}
	if s.mail == nil {
		s.log.Warn("mailer not configured, dropping verification code", zap.Int64("session_id", sessionID))
		return nil
	}
	return Error.Wrap(s.mail.SendVerificationCode(ctx, email, code))
}

// VerifySession completes the second factor for a pending session.
func (s *Service) VerifySession(ctx context.Context, userID, sessionID int64, key string) (err error) {
	defer mon.Task()(&ctx)(&err)

	session, err := s.db.Sessions().Get(ctx, sessionID)
	if err != nil {
		return ErrInvalidGrant.New("unknown session")
	}
	if session.UserID != userID {
		return ErrInvalidGrant.New("session does not belong to caller")
	}
	if session.Verified {
		return nil
	}

	switch session.Method {
	case VerifyTOTP:
		err = s.verifyTOTPKey(ctx, session, key)
	case VerifyMail:
		err = s.verifyMailKey(ctx, session, key)
	default:
		return ErrInvalidRequest.New("session does not require verification")
	}
	if err != nil {
		mon.Event("auth_session_verify_failed")
		return err
	}

	if err := s.db.Sessions().MarkVerified(ctx, session.ID); err != nil {
		return Error.Wrap(err)
	}
	now := s.nowFn()
	err = s.db.Devices().Upsert(ctx, &Device{
		UserID:      session.UserID,
		Fingerprint: DeviceFingerprint(session.IP, session.UserAgent),
		IP:          session.IP,
		UserAgent:   session.UserAgent,
		CreatedAt:   now,
		LastSeenAt:  now,
	})
	if err != nil {
		return Error.Wrap(err)
	}
	s.recordLogin(ctx, session.UserID, session.IP, session.UserAgent, true, "session verified")
	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func (s *Service) verifyTOTPKey(ctx context.Context, session *Session, key string) error {
	cred, err := s.db.TOTP().Get(ctx, session.UserID)
	if err != nil {
		// credential removed mid-flight: fall back to a mail code
		user, uerr := s.users.Users().Get(ctx, session.UserID)
		if uerr != nil {
			return Error.Wrap(uerr)
		}
		if err := s.db.Sessions().SetMethod(ctx, session.ID, VerifyMail); err != nil {
			return Error.Wrap(err)
		}
		if err := s.sendSessionCode(ctx, user.Email, session.ID); err != nil {
			return err
		}
		return ErrIncorrectKey.New("verification method changed")
	}

	if len(key) == backupCodeLen {
		hash := MatchBackupCode(key, cred.BackupCodes)
		if hash == "" {
			return ErrIncorrectKey.New("backup code rejected")
		}
		return Error.Wrap(s.db.TOTP().RemoveBackupCode(ctx, session.UserID, hash))
	}

	if len(key) != 6 {
		return ErrIncorrectLength.New("expected 6 digits")
	}
	if !isDigits(key) {
		return ErrIncorrectFormat.New("expected digits only")
	}

	// replay guard: each code is accepted once per two windows
	set, err := s.redis.SetNX(ctx, totpReplayKey(session.UserID, key), 1, totpReplayTTL).Result()
	if err != nil {
		return Error.Wrap(err)
	}
	if !set {
		return ErrIncorrectKey.New("code already used")
	}
	if !ValidateTOTP(key, cred.Secret, s.nowFn()) {
		return ErrIncorrectKey.New("totp rejected")
	}
	return nil
}

func (s *Service) verifyMailKey(ctx context.Context, session *Session, key string) error {
	if len(key) != mailCodeLen {
		return ErrIncorrectLength.New("expected %d digits", mailCodeLen)
	}
	if !isDigits(key) {
		return ErrIncorrectFormat.New("expected digits only")
	}
	var stored string
	found, err := s.redis.GetJSON(ctx, verificationKey(session.ID), &stored)
	if err != nil {
		return Error.Wrap(err)
	}
	if !found || stored != key {
		return ErrIncorrectKey.New("mail code rejected")
	}
	return Error.Wrap(s.redis.DeleteAll(ctx, verificationKey(session.ID)))
}

// ReissueVerification resends the mail code, switching a totp session to
// mail verification for good.
func (s *Service) ReissueVerification(ctx context.Context, userID, sessionID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	session, err := s.db.Sessions().Get(ctx, sessionID)
	if err != nil {
		return ErrInvalidGrant.New("unknown session")
	}
	if session.UserID != userID {
		return ErrInvalidGrant.New("session does not belong to caller")
	}
	if session.Verified {
		return nil
	}

	user, err := s.users.Users().Get(ctx, userID)
	if err != nil {
		return Error.Wrap(err)
	}
	if !s.limiter.Allow("reissue:" + user.Email) {
		return ErrRateLimited.New("verification mail recently sent")
	}

	if session.Method == VerifyTOTP {
		if err := s.db.Sessions().SetMethod(ctx, session.ID, VerifyMail); err != nil {
			return Error.Wrap(err)
		}
	}
	return s.sendSessionCode(ctx, user.Email, session.ID)
}

func passwordResetKey(email string) string {
	return "password_reset:code:" + email
}

// RequestPasswordReset mails an 8 digit reset code. Unknown addresses
// are silently accepted.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer mon.Task()(&ctx)(&err)

	user, err := s.users.Users().GetByEmail(ctx, email)
	if err != nil {
		// no disclosure of which addresses exist
		return nil
	}

	lockKey := "password_reset:lock:" + email
	set, err := s.redis.SetNX(ctx, lockKey, 1, s.config.PasswordResetEvery).Result()
	if err != nil {
		return Error.Wrap(err)
	}
	if !set {
		return ErrRateLimited.New("reset code recently sent")
	}

	code, err := randomString(mailCodeLen, digitAlphabet)
	if err != nil {
		return Error.Wrap(err)
	}
	if err := s.redis.SetJSON(ctx, passwordResetKey(email), code, s.config.PasswordResetTTL); err != nil {
		return err
	}
	if s.mail == nil {
		s.log.Warn("mailer not configured, dropping reset code", zap.Int64("user_id", user.ID))
		return nil
	}
	return Error.Wrap(s.mail.SendPasswordResetCode(ctx, email, code))
}

// ResetPassword completes a reset, revoking everything the account had.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := users.ValidatePassword(newPassword); err != nil {
		return err
	}
	var stored string
	found, err := s.redis.GetJSON(ctx, passwordResetKey(email), &stored)
	if err != nil {
		return Error.Wrap(err)
	}
	if !found || stored != code {
		return ErrIncorrectKey.New("reset code rejected")
	}

	user, err := s.users.Users().GetByEmail(ctx, email)
	if err != nil {
		return ErrInvalidGrant.New("unknown account")
	}
	digest, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.Users().Update(ctx, user.ID, users.UpdateUserRequest{PasswordDigest: digest}); err != nil {
		return Error.Wrap(err)
	}
	if err := s.revokeEverything(ctx, user.ID); err != nil {
		return err
	}
	if err := s.redis.DeleteAll(ctx, passwordResetKey(email)); err != nil {
		return Error.Wrap(err)
	}
	s.log.Info("password reset completed", zap.Int64("user_id", user.ID))
	return nil
}

// ChangePassword rotates the digest for an authenticated user. With TOTP
// enrolled a code or backup code is required, otherwise the current
// password is.
func (s *Service) ChangePassword(ctx context.Context, userID int64, currentPassword, totpKey, newPassword string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := users.ValidatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.users.Users().Get(ctx, userID)
	if err != nil {
		return Error.Wrap(err)
	}

	cred, credErr := s.db.TOTP().Get(ctx, userID)
	if credErr == nil {
		ok := ValidateTOTP(totpKey, cred.Secret, s.nowFn())
		if !ok && len(totpKey) == backupCodeLen {
			if hash := MatchBackupCode(totpKey, cred.BackupCodes); hash != "" {
				if err := s.db.TOTP().RemoveBackupCode(ctx, userID, hash); err != nil {
					return Error.Wrap(err)
				}
				ok = true
			}
		}
		if !ok {
			return ErrIncorrectKey.New("second factor rejected")
		}
	} else if !VerifyPassword(user.PasswordDigest, currentPassword) {
		return ErrInvalidGrant.New("current password rejected")
	}

	digest, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.Users().Update(ctx, userID, users.UpdateUserRequest{PasswordDigest: digest}); err != nil {
		return Error.Wrap(err)
	}
	return s.revokeEverything(ctx, userID)
}

func (s *Service) revokeEverything(ctx context.Context, userID int64) error {
	if err := s.db.Tokens().RevokeAllForUser(ctx, userID, 0); err != nil {
		return Error.Wrap(err)
	}
	if err := s.db.Sessions().RevokeAllForUser(ctx, userID); err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(s.db.Devices().DeleteAllForUser(ctx, userID))
}

// totpSetup is the Redis bucket behind a pending enrollment.
type totpSetup struct {
	Secret string `json:"secret"`
	Fails  int    `json:"fails"`
}

func totpSetupKey(email string) string {
	return "totp:setup:" + email
}

// TOTPSetup is returned by StartTOTPEnrollment for the authenticator app.
type TOTPSetup struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

// StartTOTPEnrollment mints a fresh secret and parks it in Redis until
// the user proves they stored it.
func (s *Service) StartTOTPEnrollment(ctx context.Context, userID int64) (setup *TOTPSetup, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := s.db.TOTP().Get(ctx, userID); err == nil {
		return nil, ErrInvalidRequest.New("totp already enabled")
	}
	user, err := s.users.Users().Get(ctx, userID)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	secret, uri, err := GenerateTOTPKey(s.config.TokenIssuer, user.Email)
	if err != nil {
		return nil, err
	}
	err = s.redis.SetJSON(ctx, totpSetupKey(user.Email), totpSetup{Secret: secret}, totpSetupTTL)
	if err != nil {
		return nil, err
	}
	return &TOTPSetup{Secret: secret, URI: uri}, nil
}

// FinishTOTPEnrollment verifies the first code and persists the
// credential. Returns the plaintext backup codes exactly once.
func (s *Service) FinishTOTPEnrollment(ctx context.Context, userID int64, code string) (backupCodes []string, err error) {
	defer mon.Task()(&ctx)(&err)

	user, err := s.users.Users().Get(ctx, userID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	key := totpSetupKey(user.Email)

	var bucket totpSetup
	found, err := s.redis.GetJSON(ctx, key, &bucket)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if !found {
		return nil, ErrInvalidRequest.New("enrollment expired")
	}

	if !ValidateTOTP(code, bucket.Secret, s.nowFn()) {
		bucket.Fails++
		if bucket.Fails >= totpSetupFails {
			if err := s.redis.DeleteAll(ctx, key); err != nil {
				return nil, Error.Wrap(err)
			}
			return nil, ErrIncorrectKey.New("too many attempts, enrollment aborted")
		}
		data, err := json.Marshal(bucket)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		if err := s.redis.Set(ctx, key, data, goredis.KeepTTL).Err(); err != nil {
			return nil, Error.Wrap(err)
		}
		return nil, ErrIncorrectKey.New("code rejected")
	}

	plain, hashed, err := GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	err = s.db.TOTP().Insert(ctx, &TOTPCredential{
		UserID:      userID,
		Secret:      bucket.Secret,
		BackupCodes: hashed,
		CreatedAt:   s.nowFn(),
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := s.redis.DeleteAll(ctx, key); err != nil {
		return nil, Error.Wrap(err)
	}
	s.log.Info("totp enabled", zap.Int64("user_id", userID))
	return plain, nil
}

// DisableTOTP removes the credential after a final proof.
func (s *Service) DisableTOTP(ctx context.Context, userID int64, key string) (err error) {
	defer mon.Task()(&ctx)(&err)

	cred, err := s.db.TOTP().Get(ctx, userID)
	if err != nil {
		return ErrInvalidRequest.New("totp not enabled")
	}
	ok := ValidateTOTP(key, cred.Secret, s.nowFn())
	if !ok && len(key) == backupCodeLen {
		ok = MatchBackupCode(key, cred.BackupCodes) != ""
	}
	if !ok {
		return ErrIncorrectKey.New("second factor rejected")
	}
	if err := s.db.TOTP().Delete(ctx, userID); err != nil {
		return Error.Wrap(err)
	}
	s.log.Info("totp disabled", zap.Int64("user_id", userID))
	return nil
}

// CreateAPIKey mints a personal key, returning the plaintext once.
func (s *Service) CreateAPIKey(ctx context.Context, userID int64, name string) (plain string, key *APIKey, err error) {
	defer mon.Task()(&ctx)(&err)

	if name == "" {
		return "", nil, ErrInvalidRequest.New("key name required")
	}
	plain, hash, err := NewAPIKeySecret()
	if err != nil {
		return "", nil, err
	}
	key = &APIKey{
		UserID:    userID,
		Name:      name,
		Hash:      hash,
		CreatedAt: s.nowFn(),
	}
	if err := s.db.APIKeys().Insert(ctx, key); err != nil {
		return "", nil, Error.Wrap(err)
	}
	return plain, key, nil
}

// ListAPIKeys returns the caller's keys.
func (s *Service) ListAPIKeys(ctx context.Context, userID int64) (keys []*APIKey, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.db.APIKeys().ListByUser(ctx, userID)
}

// DeleteAPIKey removes one of the caller's keys.
func (s *Service) DeleteAPIKey(ctx context.Context, userID, keyID int64) (err error) {
	defer mon.Task()(&ctx)(&err)
	return Error.Wrap(s.db.APIKeys().Delete(ctx, userID, keyID))
}

// AuthenticateAPIKey resolves a presented key to its owner.
func (s *Service) AuthenticateAPIKey(ctx context.Context, plain string) (key *APIKey, err error) {
	defer mon.Task()(&ctx)(&err)

	key, err = s.db.APIKeys().GetByHash(ctx, HashAPIKey(plain))
	if err != nil {
		return nil, ErrInvalidGrant.New("unknown api key")
	}
	if err := s.db.APIKeys().TouchLastUsed(ctx, key.ID, s.nowFn()); err != nil {
		s.log.Warn("failed to touch api key", zap.Int64("key_id", key.ID), zap.Error(err))
	}
	return key, nil
}

func (s *Service) recordLogin(ctx context.Context, userID int64, ip, userAgent string, success bool, notes string) {
	err := s.db.LoginLog().Insert(ctx, &LoginAttempt{
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
		Success:   success,
		Notes:     notes,
		CreatedAt: s.nowFn(),
	})
	if err != nil {
		s.log.Warn("failed to record login attempt", zap.Int64("user_id", userID), zap.Error(err))
	}
}
