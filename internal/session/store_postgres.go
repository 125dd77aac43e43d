// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dashtam/dashtam/internal/platform/apperr"
)

// sessionColumns is the SELECT list shared by every read query.
const sessionColumns = `
	id, user_id, device_info, user_agent, ip_address, last_ip_address, location,
	created_at, last_activity_at, expires_at,
	is_revoked, revoked_at, revoked_reason, is_trusted,
	refresh_token_id, suspicious_activity_count`

// PostgresRepository implements [Repository] using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates the PostgreSQL session repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

/*
Save upserts the session record into auth.session.

Description: Insert-or-update keyed on the session ID. The upsert shape
lets revocation and activity updates reuse one write path.

Parameters:
  - ctx: context.Context
  - session: *SessionData

Returns:
  - error: Constraint violations or connectivity errors
*/
func (repository *PostgresRepository) Save(ctx context.Context, session *SessionData) error {
	const query = `
		INSERT INTO auth.session (
			id, user_id, device_info, user_agent, ip_address, last_ip_address, location,
			created_at, last_activity_at, expires_at,
			is_revoked, revoked_at, revoked_reason, is_trusted,
			refresh_token_id, suspicious_activity_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			last_ip_address = EXCLUDED.last_ip_address,
			last_activity_at = EXCLUDED.last_activity_at,
			expires_at = EXCLUDED.expires_at,
			is_revoked = EXCLUDED.is_revoked,
			revoked_at = EXCLUDED.revoked_at,
			revoked_reason = EXCLUDED.revoked_reason,
			is_trusted = EXCLUDED.is_trusted,
			refresh_token_id = EXCLUDED.refresh_token_id,
			suspicious_activity_count = EXCLUDED.suspicious_activity_count`

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = session.CreatedAt
	}

	_, err := repository.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.DeviceInfo,
		session.UserAgent,
		session.IPAddress,
		session.LastIPAddress,
		session.Location,
		session.CreatedAt,
		session.LastActivityAt,
		session.ExpiresAt,
		session.IsRevoked,
		session.RevokedAt,
		nullIfEmpty(session.RevokedReason),
		session.IsTrusted,
		nullIfEmpty(session.RefreshTokenID),
		session.SuspiciousActivityCount,
	)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_save_failed: %w", err)
	}

	return nil
}

// FindByID retrieves a session by primary key.
func (repository *PostgresRepository) FindByID(ctx context.Context, sessionID string) (*SessionData, error) {
	query := "SELECT " + sessionColumns + " FROM auth.session WHERE id = $1"

	session, err := scanSession(repository.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("postgres_session_repo_find_by_id_failed: %w", err)
	}

	return session, nil
}

/*
FindByUserID lists a user's sessions, newest first.

Parameters:
  - ctx: context.Context
  - userID: string
  - activeOnly: bool (filter out revoked and expired sessions)

Returns:
  - []*SessionData: Possibly empty slice
  - error: Query failures
*/
func (repository *PostgresRepository) FindByUserID(ctx context.Context, userID string, activeOnly bool) ([]*SessionData, error) {
	query := "SELECT " + sessionColumns + " FROM auth.session WHERE user_id = $1"
	if activeOnly {
		query += " AND is_revoked = FALSE AND expires_at > NOW()"
	}
	query += " ORDER BY created_at DESC"

	rows, err := repository.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_find_by_user_failed: %w", err)
	}
	defer rows.Close()

	var sessions []*SessionData
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_session_repo_scan_failed: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_session_repo_rows_failed: %w", err)
	}

	return sessions, nil
}

// FindByRefreshTokenID resolves the session bound to a refresh token record.
func (repository *PostgresRepository) FindByRefreshTokenID(ctx context.Context, refreshTokenID string) (*SessionData, error) {
	query := "SELECT " + sessionColumns + " FROM auth.session WHERE refresh_token_id = $1"

	session, err := scanSession(repository.pool.QueryRow(ctx, query, refreshTokenID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("postgres_session_repo_find_by_token_failed: %w", err)
	}

	return session, nil
}

// CountActiveSessions counts non-revoked, non-expired sessions for the user.
func (repository *PostgresRepository) CountActiveSessions(ctx context.Context, userID string) (int, error) {
	const query = `
		SELECT COUNT(*) FROM auth.session
		WHERE user_id = $1 AND is_revoked = FALSE AND expires_at > NOW()`

	var count int
	if err := repository.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres_session_repo_count_failed: %w", err)
	}

	return count, nil
}

// GetOldestActiveSession returns the FIFO eviction candidate.
func (repository *PostgresRepository) GetOldestActiveSession(ctx context.Context, userID string) (*SessionData, error) {
	query := "SELECT " + sessionColumns + ` FROM auth.session
		WHERE user_id = $1 AND is_revoked = FALSE AND expires_at > NOW()
		ORDER BY created_at ASC
		LIMIT 1`

	session, err := scanSession(repository.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("postgres_session_repo_oldest_failed: %w", err)
	}

	return session, nil
}

/*
RevokeAllForUser bulk-revokes the user's active sessions.

Description: Single UPDATE; the exceptSessionID escape hatch supports
"sign out everywhere else".

Returns:
  - int: Number of sessions revoked
  - error: Execution errors
*/
func (repository *PostgresRepository) RevokeAllForUser(ctx context.Context, userID, reason, exceptSessionID string) (int, error) {
	const query = `
		UPDATE auth.session
		SET is_revoked = TRUE, revoked_at = NOW(), revoked_reason = $2
		WHERE user_id = $1 AND is_revoked = FALSE AND ($3 = '' OR id != $3)`

	tag, err := repository.pool.Exec(ctx, query, userID, reason, exceptSessionID)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_revoke_all_failed: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// Delete removes one session record.
func (repository *PostgresRepository) Delete(ctx context.Context, sessionID string) error {
	const query = "DELETE FROM auth.session WHERE id = $1"
	if _, err := repository.pool.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("postgres_session_repo_delete_failed: %w", err)
	}
	return nil
}

// DeleteAllForUser removes every session record of the user.
func (repository *PostgresRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	const query = "DELETE FROM auth.session WHERE user_id = $1"
	if _, err := repository.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("postgres_session_repo_delete_all_failed: %w", err)
	}
	return nil
}

// CleanupExpiredSessions reclaims storage from sessions expired before the cutoff.
func (repository *PostgresRepository) CleanupExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	const query = "DELETE FROM auth.session WHERE expires_at <= $1"

	tag, err := repository.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_cleanup_failed: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// scanSession hydrates one row into a SessionData.
func scanSession(row pgx.Row) (*SessionData, error) {
	session := &SessionData{}
	var revokedReason, refreshTokenID *string

	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.DeviceInfo,
		&session.UserAgent,
		&session.IPAddress,
		&session.LastIPAddress,
		&session.Location,
		&session.CreatedAt,
		&session.LastActivityAt,
		&session.ExpiresAt,
		&session.IsRevoked,
		&session.RevokedAt,
		&revokedReason,
		&session.IsTrusted,
		&refreshTokenID,
		&session.SuspiciousActivityCount,
	)
	if err != nil {
		return nil, err
	}

	if revokedReason != nil {
		session.RevokedReason = *revokedReason
	}
	if refreshTokenID != nil {
		session.RefreshTokenID = *refreshTokenID
	}

	return session, nil
}

// nullIfEmpty maps "" onto SQL NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
