// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tempora.dev/tempora/arcade"
	"tempora.dev/tempora/arcade/arcadedb/testdb"
	"tempora.dev/tempora/arcade/auth"
	"tempora.dev/tempora/arcade/eventhub"
	"tempora.dev/tempora/internal/testcontext"
	"tempora.dev/tempora/storage/redis"
	"tempora.dev/tempora/storage/redis/redisserver"
)

// captureMailer keeps the delivered codes instead of sending mail.
type captureMailer struct {
	mu            sync.Mutex
	verifications []string
	resets        []string
}

func (m *captureMailer) SendVerificationCode(ctx context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications = append(m.verifications, code)
	return nil
}

func (m *captureMailer) SendPasswordResetCode(ctx context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, code)
	return nil
}

func (m *captureMailer) lastVerification(t *testing.T) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.verifications)
	return m.verifications[len(m.verifications)-1]
}

func (m *captureMailer) verificationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.verifications)
}

const (
	testClientID     = int64(5)
	testClientSecret = "insecure-game-secret"
)

func newAuthService(ctx *testcontext.Context, t *testing.T, db arcade.DB) (*auth.Service, *captureMailer) {
	addr, cleanup, err := redisserver.Mini()
	require.NoError(t, err)
	t.Cleanup(cleanup)

	client, err := redis.NewClient(ctx, addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	log := zaptest.NewLogger(t)
	mailer := &captureMailer{}

	service, err := auth.NewService(log, db.Auth(), db.Users(), client, mailer, eventhub.NewHub(log), auth.Config{
		TokenSecret:       "insecure-test-secret",
		TokenIssuer:       "tempora",
		AccessTokenTTL:    time.Hour,
		RefreshTokenTTL:   24 * time.Hour,
		SessionTTL:        24 * time.Hour,
		GameClientID:      testClientID,
		GameClientSecret:  testClientSecret,
		EmailVerification: true,
		MultiDevice:       true,

		TOTPSupportVersion: 20220425,
		MailCodeTTL:        10 * time.Minute,

		// generous limits so the scenarios below never trip them
		LoginRateLimit: 1000,
		LoginRateBurst: 1000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = service.Close() })
	return service, mailer
}

func registerPlayer(ctx *testcontext.Context, t *testing.T, service *auth.Service, username string) int64 {
	user, err := service.Register(ctx, auth.RegisterRequest{
		Username:  username,
		Email:     username + "@example.test",
		Password:  "correct horse battery",
		IP:        "203.0.113.7",
		UserAgent: "lazer/2026.801.0",
		Country:   "DE",
	})
	require.NoError(t, err)
	return user.ID
}

func passwordLogin(ctx *testcontext.Context, t *testing.T, service *auth.Service, username string, apiVersion int) (*auth.TokenResponse, *auth.Grant) {
	resp, err := service.Token(ctx, auth.TokenRequest{
		GrantType:    auth.GrantPassword,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		Username:     username,
		Password:     "correct horse battery",
		APIVersion:   apiVersion,
		IP:           "203.0.113.7",
		UserAgent:    "lazer/2026.801.0",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)

	grant, err := service.VerifyAccess(ctx, resp.AccessToken)
	require.NoError(t, err)
	return resp, grant
}

func TestPasswordGrantMailVerification(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		service, mailer := newAuthService(ctx, t, db)
		userID := registerPlayer(ctx, t, service, "newcomer")

		// unknown device: tokens are issued, but the session waits on a
		// mailed code
		resp, grant := passwordLogin(ctx, t, service, "newcomer", 0)
		require.Equal(t, userID, grant.UserID)
		require.False(t, grant.SessionVerified)
		require.Equal(t, 1, mailer.verificationCount())

		require.True(t, auth.ErrIncorrectKey.Has(service.VerifySession(ctx, userID, grant.SessionID, "00000000")))
		require.NoError(t, service.VerifySession(ctx, userID, grant.SessionID, mailer.lastVerification(t)))

		// the original bearer now reports a verified session
		grant, err := service.VerifyAccess(ctx, resp.AccessToken)
		require.NoError(t, err)
		require.True(t, grant.SessionVerified)

		// the same device is now trusted and logs in fully verified
		_, grant = passwordLogin(ctx, t, service, "newcomer", 0)
		require.True(t, grant.SessionVerified)
		require.Equal(t, 1, mailer.verificationCount())

		// wrong password never issues anything
		_, err = service.Token(ctx, auth.TokenRequest{
			GrantType:    auth.GrantPassword,
			ClientID:     testClientID,
			ClientSecret: testClientSecret,
			Username:     "newcomer",
			Password:     "wrong",
			IP:           "203.0.113.7",
		})
		require.True(t, auth.ErrInvalidGrant.Has(err))

		// and neither does a bad client secret
		_, err = service.Token(ctx, auth.TokenRequest{
			GrantType:    auth.GrantPassword,
			ClientID:     testClientID,
			ClientSecret: "not the secret",
			Username:     "newcomer",
			Password:     "correct horse battery",
		})
		require.True(t, auth.ErrInvalidClient.Has(err))
	})
}

func TestRefreshGrantRotates(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		service, _ := newAuthService(ctx, t, db)
		registerPlayer(ctx, t, service, "rotator")

		first, _ := passwordLogin(ctx, t, service, "rotator", 0)

		second, err := service.Token(ctx, auth.TokenRequest{
			GrantType:    auth.GrantRefreshToken,
			ClientID:     testClientID,
			ClientSecret: testClientSecret,
			RefreshToken: first.RefreshToken,
		})
		require.NoError(t, err)
		require.NotEqual(t, first.RefreshToken, second.RefreshToken)

		_, err = service.VerifyAccess(ctx, second.AccessToken)
		require.NoError(t, err)

		// rotation retired both halves of the first pair
		_, err = service.Token(ctx, auth.TokenRequest{
			GrantType:    auth.GrantRefreshToken,
			ClientID:     testClientID,
			ClientSecret: testClientSecret,
			RefreshToken: first.RefreshToken,
		})
		require.True(t, auth.ErrInvalidGrant.Has(err))
		_, err = service.VerifyAccess(ctx, first.AccessToken)
		require.True(t, auth.ErrInvalidGrant.Has(err))
	})
}

func TestTOTPSessionVerification(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		service, mailer := newAuthService(ctx, t, db)
		userID := registerPlayer(ctx, t, service, "keyholder")

		now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
		service.TestSetNow(func() time.Time { return now })

		setup, err := service.StartTOTPEnrollment(ctx, userID)
		require.NoError(t, err)

		code, err := totp.GenerateCode(setup.Secret, now)
		require.NoError(t, err)
		backupCodes, err := service.FinishTOTPEnrollment(ctx, userID, code)
		require.NoError(t, err)
		require.Len(t, backupCodes, 10)

		// a totp-capable client gets a totp session, no mail involved
		_, grant := passwordLogin(ctx, t, service, "keyholder", 20220425)
		require.False(t, grant.SessionVerified)
		require.Zero(t, mailer.verificationCount())

		require.True(t, auth.ErrIncorrectLength.Has(service.VerifySession(ctx, userID, grant.SessionID, "12345")))
		require.True(t, auth.ErrIncorrectFormat.Has(service.VerifySession(ctx, userID, grant.SessionID, "12a456")))

		loginCode, err := totp.GenerateCode(setup.Secret, now)
		require.NoError(t, err)
		require.NoError(t, service.VerifySession(ctx, userID, grant.SessionID, loginCode))

		// the consumed code cannot unlock a second session
		_, replayed := passwordLogin(ctx, t, service, "keyholder", 20220425)
		require.False(t, replayed.SessionVerified)
		err = service.VerifySession(ctx, userID, replayed.SessionID, loginCode)
		require.True(t, auth.ErrIncorrectKey.Has(err))

		// a fresh window's code still does
		now = now.Add(90 * time.Second)
		nextCode, err := totp.GenerateCode(setup.Secret, now)
		require.NoError(t, err)
		require.NoError(t, service.VerifySession(ctx, userID, replayed.SessionID, nextCode))

		// backup codes are single use as well
		_, rescue := passwordLogin(ctx, t, service, "keyholder", 20220425)
		require.NoError(t, service.VerifySession(ctx, userID, rescue.SessionID, backupCodes[0]))
		_, rescue = passwordLogin(ctx, t, service, "keyholder", 20220425)
		err = service.VerifySession(ctx, userID, rescue.SessionID, backupCodes[0])
		require.True(t, auth.ErrIncorrectKey.Has(err))
	})
}
