// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dashtam/dashtam/internal/platform/apperr"
)

// pgUniqueViolation is the PostgreSQL error code for unique-constraint hits.
const pgUniqueViolation = "23505"

// # Users

// userColumns is the SELECT list shared by every account read.
const userColumns = `
	id, email, password_hash, is_verified, is_active,
	failed_login_attempts, locked_until,
	session_tier, min_token_version, roles,
	created_at, updated_at, deleted_at`

// PostgresUserRepository implements [UserRepository] using pgx.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresUserRepository creates the PostgreSQL user repository.
func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

/*
Create inserts a new account into auth.account.

Description: The unique index on email turns duplicates into
apperr.Conflict so the service layer can collapse the response.

Parameters:
  - ctx: context.Context
  - user: *User (CreatedAt/UpdatedAt are stamped if zero)

Returns:
  - error: apperr.Conflict on duplicate email, otherwise wrapped pg errors
*/
func (repository *PostgresUserRepository) Create(ctx context.Context, user *User) error {
	const query = `
		INSERT INTO auth.account (
			id, email, password_hash, is_verified, is_active,
			failed_login_attempts, locked_until,
			session_tier, min_token_version, roles,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	_, err := repository.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.IsVerified,
		user.IsActive,
		user.FailedLoginAttempts,
		user.LockedUntil,
		string(user.SessionTier),
		user.MinTokenVersion,
		user.Roles,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperr.Conflict("Email already registered")
		}
		return fmt.Errorf("postgres_user_repo_create_failed: %w", err)
	}

	return nil
}

// FindByEmail retrieves a non-deleted account by normalized email.
func (repository *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := "SELECT " + userColumns + " FROM auth.account WHERE email = $1 AND deleted_at IS NULL"

	user, err := scanUser(repository.pool.QueryRow(ctx, query, NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_email_failed: %w", err)
	}

	return user, nil
}

// FindByID retrieves a non-deleted account by primary key.
func (repository *PostgresUserRepository) FindByID(ctx context.Context, userID string) (*User, error) {
	query := "SELECT " + userColumns + " FROM auth.account WHERE id = $1 AND deleted_at IS NULL"

	user, err := scanUser(repository.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_id_failed: %w", err)
	}

	return user, nil
}

// Update persists mutable account state.
func (repository *PostgresUserRepository) Update(ctx context.Context, user *User) error {
	const query = `
		UPDATE auth.account
		SET is_verified = $2, is_active = $3,
		    failed_login_attempts = $4, locked_until = $5,
		    session_tier = $6, roles = $7,
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := repository.pool.Exec(ctx, query,
		user.ID,
		user.IsVerified,
		user.IsActive,
		user.FailedLoginAttempts,
		user.LockedUntil,
		string(user.SessionTier),
		user.Roles,
	)
	if err != nil {
		return fmt.Errorf("postgres_user_repo_update_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}

	return nil
}

// UpdatePassword replaces the password hash only.
func (repository *PostgresUserRepository) UpdatePassword(ctx context.Context, userID, newHash string) error {
	const query = `
		UPDATE auth.account
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := repository.pool.Exec(ctx, query, userID, newHash)
	if err != nil {
		return fmt.Errorf("postgres_user_repo_update_password_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}

	return nil
}

// MarkVerified flips is_verified. Idempotent.
func (repository *PostgresUserRepository) MarkVerified(ctx context.Context, userID string) error {
	const query = `
		UPDATE auth.account
		SET is_verified = TRUE, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := repository.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("postgres_user_repo_mark_verified_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}

	return nil
}

/*
UpdateMinTokenVersion advances the per-user rotation floor.

Description: The GREATEST guard keeps the version monotonic even under
concurrent rotations; RETURNING hands back the pre-update value for the
completion event.

Returns:
  - int: The version before the update
  - error: apperr.NotFound when the account is gone
*/
func (repository *PostgresUserRepository) UpdateMinTokenVersion(ctx context.Context, userID string, newVersion int) (int, error) {
	const query = `
		UPDATE auth.account
		SET min_token_version = GREATEST(min_token_version, $2), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING (SELECT min_token_version FROM auth.account WHERE id = $1)`

	var previous int
	err := repository.pool.QueryRow(ctx, query, userID, newVersion).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperr.NotFound("User")
		}
		return 0, fmt.Errorf("postgres_user_repo_rotate_failed: %w", err)
	}

	return previous, nil
}

// scanUser hydrates one row into a User.
func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	var tier string

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.IsVerified,
		&user.IsActive,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&tier,
		&user.MinTokenVersion,
		&user.Roles,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	user.SessionTier = SessionTier(tier)
	return user, nil
}

// # Refresh Tokens

// refreshTokenColumns is the SELECT list shared by refresh-token reads.
const refreshTokenColumns = `
	id, user_id, token_digest, token_hash, session_id,
	expires_at, revoked_at,
	token_version, global_version_at_issuance, created_at`

// PostgresRefreshTokenRepository implements [RefreshTokenRepository] using pgx.
type PostgresRefreshTokenRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRefreshTokenRepository creates the PostgreSQL refresh-token repository.
func NewPostgresRefreshTokenRepository(pool *pgxpool.Pool) *PostgresRefreshTokenRepository {
	return &PostgresRefreshTokenRepository{pool: pool}
}

// Create inserts one refresh-token record.
func (repository *PostgresRefreshTokenRepository) Create(ctx context.Context, token *RefreshTokenData) error {
	const query = `
		INSERT INTO auth.refresh_token (
			id, user_id, token_digest, token_hash, session_id,
			expires_at, revoked_at,
			token_version, global_version_at_issuance, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	_, err := repository.pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.TokenDigest,
		token.TokenHash,
		token.SessionID,
		token.ExpiresAt,
		token.RevokedAt,
		token.TokenVersion,
		token.GlobalVersionAtIssuance,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_refresh_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByDigest resolves a refresh token by its deterministic digest.

Description: The digest carries a unique index, so the lookup is a
single indexed read regardless of how many live tokens exist. Expired
and revoked rows are still returned; the workflow names the precise
failure after the bcrypt verification.

Returns:
  - *RefreshTokenData: The matching record
  - error: apperr.NotFound for an unknown digest
*/
func (repository *PostgresRefreshTokenRepository) FindByDigest(ctx context.Context, digest string) (*RefreshTokenData, error) {
	query := "SELECT " + refreshTokenColumns + " FROM auth.refresh_token WHERE token_digest = $1"

	token, err := scanRefreshToken(repository.pool.QueryRow(ctx, query, digest))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Refresh token")
		}
		return nil, fmt.Errorf("postgres_refresh_repo_find_failed: %w", err)
	}

	return token, nil
}

/*
Rotate atomically replaces a refresh token with its successor.

Description: Delete-then-insert inside one transaction. A concurrent
rotation of the same token loses the delete race (zero rows affected)
and the transaction rolls back, so the old token is spendable once.

Returns:
  - error: apperr.NotFound when the old record was already consumed
*/
func (repository *PostgresRefreshTokenRepository) Rotate(ctx context.Context, oldTokenID string, next *RefreshTokenData) error {
	tx, err := repository.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres_refresh_repo_rotate_begin_failed: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, "DELETE FROM auth.refresh_token WHERE id = $1", oldTokenID)
	if err != nil {
		return fmt.Errorf("postgres_refresh_repo_rotate_delete_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Refresh token")
	}

	const insert = `
		INSERT INTO auth.refresh_token (
			id, user_id, token_digest, token_hash, session_id,
			expires_at, revoked_at,
			token_version, global_version_at_issuance, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	if next.CreatedAt.IsZero() {
		next.CreatedAt = time.Now()
	}

	_, err = tx.Exec(ctx, insert,
		next.ID,
		next.UserID,
		next.TokenDigest,
		next.TokenHash,
		next.SessionID,
		next.ExpiresAt,
		next.RevokedAt,
		next.TokenVersion,
		next.GlobalVersionAtIssuance,
		next.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_refresh_repo_rotate_insert_failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres_refresh_repo_rotate_commit_failed: %w", err)
	}

	return nil
}

// RevokeAllForUser stamps revoked_at on the user's live tokens.
func (repository *PostgresRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	const query = `
		UPDATE auth.refresh_token
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL`

	tag, err := repository.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("postgres_refresh_repo_revoke_all_failed: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// RevokeAllForSession stamps revoked_at on the session's live tokens.
func (repository *PostgresRefreshTokenRepository) RevokeAllForSession(ctx context.Context, sessionID string) (int, error) {
	const query = `
		UPDATE auth.refresh_token
		SET revoked_at = NOW()
		WHERE session_id = $1 AND revoked_at IS NULL`

	tag, err := repository.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return 0, fmt.Errorf("postgres_refresh_repo_revoke_session_failed: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// DeleteExpired reclaims storage from tokens expired before the cutoff.
func (repository *PostgresRefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	const query = "DELETE FROM auth.refresh_token WHERE expires_at <= $1"

	tag, err := repository.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("postgres_refresh_repo_cleanup_failed: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// scanRefreshToken hydrates one row into a RefreshTokenData.
func scanRefreshToken(row pgx.Row) (*RefreshTokenData, error) {
	token := &RefreshTokenData{}

	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenDigest,
		&token.TokenHash,
		&token.SessionID,
		&token.ExpiresAt,
		&token.RevokedAt,
		&token.TokenVersion,
		&token.GlobalVersionAtIssuance,
		&token.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return token, nil
}

// # One-Shot Tokens

// oneShotColumns is the SELECT list shared by one-shot token reads.
const oneShotColumns = `
	id, user_id, token, expires_at, used_at,
	request_ip, request_user_agent, created_at`

// PostgresOneShotTokenRepository implements [OneShotTokenRepository] for a
// specific table (email verification or password reset tokens).
type PostgresOneShotTokenRepository struct {
	pool  *pgxpool.Pool
	table string
}

// NewVerificationTokenRepository creates the email-verification token repository.
func NewVerificationTokenRepository(pool *pgxpool.Pool) *PostgresOneShotTokenRepository {
	return &PostgresOneShotTokenRepository{pool: pool, table: "auth.email_verification_token"}
}

// NewResetTokenRepository creates the password-reset token repository.
func NewResetTokenRepository(pool *pgxpool.Pool) *PostgresOneShotTokenRepository {
	return &PostgresOneShotTokenRepository{pool: pool, table: "auth.password_reset_token"}
}

// Create inserts one token record. Hex tokens are unguessable, so the
// literal token is stored and indexed.
func (repository *PostgresOneShotTokenRepository) Create(ctx context.Context, token *OneShotToken) error {
	query := `
		INSERT INTO ` + repository.table + ` (
			id, user_id, token, expires_at, used_at,
			request_ip, request_user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	_, err := repository.pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.Token,
		token.ExpiresAt,
		token.UsedAt,
		nullIfEmpty(token.RequestIP),
		nullIfEmpty(token.RequestUserAgent),
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_oneshot_repo_create_failed: %w", err)
	}

	return nil
}

// FindByToken resolves the literal token string. Used and expired rows
// are still returned so the workflow can name the precise failure.
func (repository *PostgresOneShotTokenRepository) FindByToken(ctx context.Context, tokenValue string) (*OneShotToken, error) {
	query := "SELECT " + oneShotColumns + " FROM " + repository.table + " WHERE token = $1"

	token := &OneShotToken{}
	var requestIP, requestUserAgent *string

	err := repository.pool.QueryRow(ctx, query, tokenValue).Scan(
		&token.ID,
		&token.UserID,
		&token.Token,
		&token.ExpiresAt,
		&token.UsedAt,
		&requestIP,
		&requestUserAgent,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Token")
		}
		return nil, fmt.Errorf("postgres_oneshot_repo_find_failed: %w", err)
	}

	if requestIP != nil {
		token.RequestIP = *requestIP
	}
	if requestUserAgent != nil {
		token.RequestUserAgent = *requestUserAgent
	}

	return token, nil
}

// MarkUsed stamps used_at, consuming the token.
func (repository *PostgresOneShotTokenRepository) MarkUsed(ctx context.Context, tokenID string) error {
	query := "UPDATE " + repository.table + " SET used_at = NOW() WHERE id = $1 AND used_at IS NULL"

	tag, err := repository.pool.Exec(ctx, query, tokenID)
	if err != nil {
		return fmt.Errorf("postgres_oneshot_repo_mark_used_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("Token already used")
	}

	return nil
}

// # Security Config

// PostgresSecurityConfigRepository implements [SecurityConfigRepository]
// over the auth.security_config singleton row.
type PostgresSecurityConfigRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSecurityConfigRepository creates the security-config repository.
func NewPostgresSecurityConfigRepository(pool *pgxpool.Pool) *PostgresSecurityConfigRepository {
	return &PostgresSecurityConfigRepository{pool: pool}
}

// Get reads the singleton row. The migration seeds it, so a missing row
// is a deployment fault and surfaces as an error.
func (repository *PostgresSecurityConfigRepository) Get(ctx context.Context) (*SecurityConfig, error) {
	const query = `
		SELECT global_min_token_version, last_rotation_at, grace_period_seconds, reason, updated_at
		FROM auth.security_config
		WHERE id = 1`

	config, err := scanSecurityConfig(repository.pool.QueryRow(ctx, query))
	if err != nil {
		return nil, fmt.Errorf("postgres_security_config_get_failed: %w", err)
	}

	return config, nil
}

/*
UpdateGlobalVersion advances the global rotation floor.

Description: SELECT ... FOR UPDATE serializes concurrent rotations on
the singleton row; the GREATEST guard keeps the version monotonic. The
grace window restarts from this rotation's timestamp.

Returns:
  - *SecurityConfig: The post-update state
  - error: Transaction or scan failures
*/
func (repository *PostgresSecurityConfigRepository) UpdateGlobalVersion(ctx context.Context, newVersion int, reason string) (*SecurityConfig, error) {
	tx, err := repository.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres_security_config_begin_failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var current int
	err = tx.QueryRow(ctx, "SELECT global_min_token_version FROM auth.security_config WHERE id = 1 FOR UPDATE").Scan(&current)
	if err != nil {
		return nil, fmt.Errorf("postgres_security_config_lock_failed: %w", err)
	}

	const update = `
		UPDATE auth.security_config
		SET global_min_token_version = GREATEST(global_min_token_version, $1),
		    last_rotation_at = NOW(),
		    reason = $2,
		    updated_at = NOW()
		WHERE id = 1
		RETURNING global_min_token_version, last_rotation_at, grace_period_seconds, reason, updated_at`

	config, err := scanSecurityConfig(tx.QueryRow(ctx, update, newVersion, reason))
	if err != nil {
		return nil, fmt.Errorf("postgres_security_config_update_failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres_security_config_commit_failed: %w", err)
	}

	return config, nil
}

// scanSecurityConfig hydrates the singleton row.
func scanSecurityConfig(row pgx.Row) (*SecurityConfig, error) {
	config := &SecurityConfig{}
	var lastRotation *time.Time
	var reason *string

	err := row.Scan(
		&config.GlobalMinTokenVersion,
		&lastRotation,
		&config.GracePeriodSeconds,
		&reason,
		&config.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastRotation != nil {
		config.LastRotationAt = *lastRotation
	}
	if reason != nil {
		config.Reason = *reason
	}

	return config, nil
}

// nullIfEmpty maps "" onto SQL NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
