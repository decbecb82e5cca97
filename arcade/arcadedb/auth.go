// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package arcadedb

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"tempora.dev/tempora/arcade/auth"
)

// authDB implements auth.DB.
type authDB struct {
	db *arcadeDB
}

func (db *authDB) Clients() auth.Clients       { return &clientsTable{db.db} }
func (db *authDB) Tokens() auth.Tokens         { return &tokensTable{db.db} }
func (db *authDB) Sessions() auth.Sessions     { return &sessionsTable{db.db} }
func (db *authDB) Devices() auth.Devices       { return &devicesTable{db.db} }
func (db *authDB) TOTP() auth.TOTPCredentials  { return &totpTable{db.db} }
func (db *authDB) LoginLog() auth.LoginLog     { return &loginLogTable{db.db} }
func (db *authDB) APIKeys() auth.APIKeys       { return &apiKeysTable{db.db} }

type clientsTable struct {
	db *arcadeDB
}

func (t *clientsTable) Get(ctx context.Context, id int64) (*auth.Client, error) {
	var client auth.Client
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT id, owner_id, name, secret, redirect_uri, created_at
		FROM oauth_clients WHERE id = ?`),
		id).Scan(&client.ID, &client.OwnerID, &client.Name, &client.Secret,
		&client.RedirectURI, &client.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Error.New("client %d not found", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &client, nil
}

func (t *clientsTable) Insert(ctx context.Context, client *auth.Client) error {
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	if client.ID != 0 {
		// Seeded clients keep their configured id.
		_, err := t.db.ExecContext(ctx, t.db.Rebind(`
			INSERT INTO oauth_clients (id, owner_id, name, secret, redirect_uri, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING`),
			client.ID, client.OwnerID, client.Name, client.Secret, client.RedirectURI, client.CreatedAt)
		return Error.Wrap(err)
	}
	id, err := t.db.execInsertID(ctx, `
		INSERT INTO oauth_clients (owner_id, name, secret, redirect_uri, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		client.OwnerID, client.Name, client.Secret, client.RedirectURI, client.CreatedAt)
	if err != nil {
		return Error.Wrap(err)
	}
	client.ID = id
	return nil
}

func (t *clientsTable) ListByOwner(ctx context.Context, ownerID int64) ([]*auth.Client, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT id, owner_id, name, secret, redirect_uri, created_at
		FROM oauth_clients WHERE owner_id = ? ORDER BY id`), ownerID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*auth.Client
	for rows.Next() {
		var client auth.Client
		if err := rows.Scan(&client.ID, &client.OwnerID, &client.Name, &client.Secret,
			&client.RedirectURI, &client.CreatedAt); err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, &client)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *clientsTable) Delete(ctx context.Context, id int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`DELETE FROM oauth_clients WHERE id = ?`), id)
	return Error.Wrap(err)
}

type tokensTable struct {
	db *arcadeDB
}

const tokenColumns = `id, user_id, client_id, jti, refresh, scopes, session_id,
	access_expires_at, refresh_expires_at, created_at, revoked_at`

func scanToken(row interface{ Scan(...any) error }) (*auth.Token, error) {
	var (
		token     auth.Token
		scopes    string
		revokedAt sql.NullTime
	)
	err := row.Scan(&token.ID, &token.UserID, &token.ClientID, &token.JTI,
		&token.Refresh, &scopes, &token.SessionID,
		&token.AccessExpiresAt, &token.RefreshExpiresAt, &token.CreatedAt, &revokedAt)
	if err != nil {
		return nil, err
	}
	if scopes != "" {
		token.Scopes = auth.Scopes(strings.Fields(scopes))
	}
	token.RevokedAt = timePtr(revokedAt)
	return &token, nil
}

func (t *tokensTable) Insert(ctx context.Context, token *auth.Token) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	id, err := t.db.execInsertID(ctx, `
		INSERT INTO oauth_tokens (user_id, client_id, jti, refresh, scopes, session_id,
			access_expires_at, refresh_expires_at, created_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token.UserID, token.ClientID, token.JTI, token.Refresh, token.Scopes.String(),
		token.SessionID, token.AccessExpiresAt, token.RefreshExpiresAt,
		token.CreatedAt, nullTime(token.RevokedAt))
	if err != nil {
		return Error.Wrap(err)
	}
	token.ID = id
	return nil
}

func (t *tokensTable) getWhere(ctx context.Context, clause string, args ...any) (*auth.Token, error) {
	row := t.db.QueryRowContext(ctx,
		t.db.Rebind(`SELECT `+tokenColumns+` FROM oauth_tokens WHERE `+clause), args...)
	token, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Error.New("token not found")
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return token, nil
}

func (t *tokensTable) GetByJTI(ctx context.Context, jti string) (*auth.Token, error) {
	return t.getWhere(ctx, `jti = ?`, jti)
}

func (t *tokensTable) GetByRefresh(ctx context.Context, refresh string) (*auth.Token, error) {
	return t.getWhere(ctx, `refresh = ?`, refresh)
}

func (t *tokensTable) Rotate(ctx context.Context, id int64, jti, refresh string, accessExpiresAt, refreshExpiresAt time.Time) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		UPDATE oauth_tokens
		SET jti = ?, refresh = ?, access_expires_at = ?, refresh_expires_at = ?
		WHERE id = ?`),
		jti, refresh, accessExpiresAt, refreshExpiresAt, id)
	return Error.Wrap(err)
}

func (t *tokensTable) Revoke(ctx context.Context, id int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		UPDATE oauth_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`),
		time.Now().UTC(), id)
	return Error.Wrap(err)
}

func (t *tokensTable) RevokeAllForUser(ctx context.Context, userID int64, keepID int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		UPDATE oauth_tokens SET revoked_at = ?
		WHERE user_id = ? AND id <> ? AND revoked_at IS NULL`),
		time.Now().UTC(), userID, keepID)
	return Error.Wrap(err)
}

func (t *tokensTable) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := t.db.ExecContext(ctx, t.db.Rebind(
		`DELETE FROM oauth_tokens WHERE refresh_expires_at < ?`), cutoff)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	deleted, err := res.RowsAffected()
	return deleted, Error.Wrap(err)
}

type sessionsTable struct {
	db *arcadeDB
}

func (t *sessionsTable) Insert(ctx context.Context, session *auth.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	id, err := t.db.execInsertID(ctx, `
		INSERT INTO login_sessions (user_id, ip, user_agent, method, verified, verified_at, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.UserID, session.IP, session.UserAgent, string(session.Method),
		session.Verified, nullTime(session.VerifiedAt), session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return Error.Wrap(err)
	}
	session.ID = id
	return nil
}

func (t *sessionsTable) Get(ctx context.Context, id int64) (*auth.Session, error) {
	var (
		session    auth.Session
		method     string
		verifiedAt sql.NullTime
	)
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT id, user_id, ip, user_agent, method, verified, verified_at, created_at, expires_at
		FROM login_sessions WHERE id = ?`),
		id).Scan(&session.ID, &session.UserID, &session.IP, &session.UserAgent,
		&method, &session.Verified, &verifiedAt, &session.CreatedAt, &session.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Error.New("session %d not found", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	session.Method = auth.VerificationMethod(method)
	session.VerifiedAt = timePtr(verifiedAt)
	return &session, nil
}

func (t *sessionsTable) MarkVerified(ctx context.Context, id int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		UPDATE login_sessions SET verified = TRUE, verified_at = ?, method = '' WHERE id = ?`),
		time.Now().UTC(), id)
	return Error.Wrap(err)
}

func (t *sessionsTable) SetMethod(ctx context.Context, id int64, method auth.VerificationMethod) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`UPDATE login_sessions SET method = ? WHERE id = ?`), string(method), id)
	return Error.Wrap(err)
}

func (t *sessionsTable) RevokeAllForUser(ctx context.Context, userID int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`DELETE FROM login_sessions WHERE user_id = ?`), userID)
	return Error.Wrap(err)
}

func (t *sessionsTable) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := t.db.ExecContext(ctx, t.db.Rebind(
		`DELETE FROM login_sessions WHERE expires_at < ?`), cutoff)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	deleted, err := res.RowsAffected()
	return deleted, Error.Wrap(err)
}

type devicesTable struct {
	db *arcadeDB
}

func (t *devicesTable) Upsert(ctx context.Context, device *auth.Device) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO trusted_devices (user_id, fingerprint, ip, user_agent, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, fingerprint) DO UPDATE SET
			ip = EXCLUDED.ip,
			user_agent = EXCLUDED.user_agent,
			last_seen_at = EXCLUDED.last_seen_at`),
		device.UserID, device.Fingerprint, device.IP, device.UserAgent,
		device.CreatedAt, device.LastSeenAt)
	return Error.Wrap(err)
}

func (t *devicesTable) Trusted(ctx context.Context, userID int64, fingerprint string) (bool, error) {
	var trusted bool
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT EXISTS (
			SELECT 1 FROM trusted_devices WHERE user_id = ? AND fingerprint = ?
		)`), userID, fingerprint).Scan(&trusted)
	return trusted, Error.Wrap(err)
}

func (t *devicesTable) DeleteAllForUser(ctx context.Context, userID int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`DELETE FROM trusted_devices WHERE user_id = ?`), userID)
	return Error.Wrap(err)
}

type totpTable struct {
	db *arcadeDB
}

func (t *totpTable) Get(ctx context.Context, userID int64) (*auth.TOTPCredential, error) {
	var (
		cred  auth.TOTPCredential
		codes string
	)
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT user_id, secret, backup_codes, created_at
		FROM totp_credentials WHERE user_id = ?`),
		userID).Scan(&cred.UserID, &cred.Secret, &codes, &cred.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNoCredential.New("user %d", userID)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := decodeJSON(codes, &cred.BackupCodes); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (t *totpTable) Insert(ctx context.Context, cred *auth.TOTPCredential) error {
	codes, err := encodeJSON(cred.BackupCodes)
	if err != nil {
		return err
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	_, err = t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO totp_credentials (user_id, secret, backup_codes, created_at)
		VALUES (?, ?, ?, ?)`),
		cred.UserID, cred.Secret, codes, cred.CreatedAt)
	return Error.Wrap(err)
}

func (t *totpTable) RemoveBackupCode(ctx context.Context, userID int64, hash string) error {
	cred, err := t.Get(ctx, userID)
	if err != nil {
		return err
	}
	remaining := cred.BackupCodes[:0]
	for _, stored := range cred.BackupCodes {
		if stored != hash {
			remaining = append(remaining, stored)
		}
	}
	codes, err := encodeJSON(remaining)
	if err != nil {
		return err
	}
	_, err = t.db.ExecContext(ctx, t.db.Rebind(
		`UPDATE totp_credentials SET backup_codes = ? WHERE user_id = ?`),
		codes, userID)
	return Error.Wrap(err)
}

func (t *totpTable) Delete(ctx context.Context, userID int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`DELETE FROM totp_credentials WHERE user_id = ?`), userID)
	return Error.Wrap(err)
}

type loginLogTable struct {
	db *arcadeDB
}

func (t *loginLogTable) Insert(ctx context.Context, attempt *auth.LoginAttempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	id, err := t.db.execInsertID(ctx, `
		INSERT INTO login_log (user_id, ip, user_agent, success, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		attempt.UserID, attempt.IP, attempt.UserAgent, attempt.Success,
		attempt.Notes, attempt.CreatedAt)
	if err != nil {
		return Error.Wrap(err)
	}
	attempt.ID = id
	return nil
}

func (t *loginLogTable) Recent(ctx context.Context, userID int64, limit int) ([]*auth.LoginAttempt, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT id, user_id, ip, user_agent, success, notes, created_at
		FROM login_log WHERE user_id = ?
		ORDER BY id DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*auth.LoginAttempt
	for rows.Next() {
		var attempt auth.LoginAttempt
		if err := rows.Scan(&attempt.ID, &attempt.UserID, &attempt.IP, &attempt.UserAgent,
			&attempt.Success, &attempt.Notes, &attempt.CreatedAt); err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, &attempt)
	}
	return list, Error.Wrap(rows.Err())
}

type apiKeysTable struct {
	db *arcadeDB
}

func (t *apiKeysTable) Insert(ctx context.Context, key *auth.APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	id, err := t.db.execInsertID(ctx, `
		INSERT INTO api_keys (user_id, name, hash, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?)`,
		key.UserID, key.Name, key.Hash, key.CreatedAt, nullTime(key.LastUsedAt))
	if err != nil {
		return Error.Wrap(err)
	}
	key.ID = id
	return nil
}

func (t *apiKeysTable) GetByHash(ctx context.Context, hash string) (*auth.APIKey, error) {
	var (
		key      auth.APIKey
		lastUsed sql.NullTime
	)
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT id, user_id, name, hash, created_at, last_used_at
		FROM api_keys WHERE hash = ?`),
		hash).Scan(&key.ID, &key.UserID, &key.Name, &key.Hash, &key.CreatedAt, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Error.New("api key not found")
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	key.LastUsedAt = timePtr(lastUsed)
	return &key, nil
}

func (t *apiKeysTable) ListByUser(ctx context.Context, userID int64) ([]*auth.APIKey, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT id, user_id, name, hash, created_at, last_used_at
		FROM api_keys WHERE user_id = ? ORDER BY id DESC`), userID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*auth.APIKey
	for rows.Next() {
		var (
			key      auth.APIKey
			lastUsed sql.NullTime
		)
		if err := rows.Scan(&key.ID, &key.UserID, &key.Name, &key.Hash,
			&key.CreatedAt, &lastUsed); err != nil {
			return nil, Error.Wrap(err)
		}
		key.LastUsedAt = timePtr(lastUsed)
		list = append(list, &key)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *apiKeysTable) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`), at, id)
	return Error.Wrap(err)
}

func (t *apiKeysTable) Delete(ctx context.Context, userID, id int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`DELETE FROM api_keys WHERE user_id = ? AND id = ?`), userID, id)
	return Error.Wrap(err)
}
