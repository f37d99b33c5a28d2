package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"aftervisit.org/internal/auth"
)

const userColumns = `
	id, coalesce(tenant_id, ''), username, name, coalesce(email, ''), role,
	coalesce(linked_patient_id, ''), password_hash, active, locked, locked_at,
	coalesce(lock_reason, ''), failed_attempts, last_failed_at, last_login_at,
	created_at, updated_at, coalesce(created_by, ''), coalesce(updated_by, '')`

// FindByTenantAndUsername resolves a user within a tenant. System
// administrators have no tenant row value and match any declared tenant.
func (s *Store) FindByTenantAndUsername(ctx context.Context, tenantID, username string) (*auth.User, error) {
	tenantID = strings.TrimSpace(tenantID)
	username = strings.TrimSpace(strings.ToLower(username))
	row := s.db.QueryRowContext(ctx, `
		select`+userColumns+`
		from users
		where username = $2
		  and (tenant_id = $1 or (tenant_id is null and role = 'system_admin'))
	`, tenantID, username)
	return scanUser(row)
}

// Find resolves a user by id.
func (s *Store) Find(ctx context.Context, userID string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select`+userColumns+`
		from users
		where id = $1
	`, userID)
	return scanUser(row)
}

// RecordFailure bumps the failed-attempt counter and trips the lock at
// threshold in a single statement, so concurrent wrong-password attempts
// cannot race past the lock.
func (s *Store) RecordFailure(ctx context.Context, userID string, threshold int, lockReason string) (int, bool, error) {
	var (
		attempts int
		locked   bool
	)
	err := s.db.QueryRowContext(ctx, `
		update users set
			failed_attempts = failed_attempts + 1,
			last_failed_at  = now(),
			locked_at       = case when not locked and failed_attempts + 1 >= $2 then now() else locked_at end,
			lock_reason     = case when not locked and failed_attempts + 1 >= $2 then $3 else lock_reason end,
			locked          = locked or failed_attempts + 1 >= $2,
			updated_at      = now()
		where id = $1
		returning failed_attempts, locked
	`, userID, threshold, lockReason).Scan(&attempts, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, auth.ErrNotFound
	}
	if err != nil {
		return 0, false, err
	}
	return attempts, locked, nil
}

// RecordSuccess resets the failure counter and stamps the login time.
func (s *Store) RecordSuccess(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set
			failed_attempts = 0,
			last_login_at   = now(),
			updated_at      = now()
		where id = $1
	`, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Unlock clears the lock state and counter on behalf of an administrator.
func (s *Store) Unlock(ctx context.Context, userID, actor string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set
			locked          = false,
			locked_at       = null,
			lock_reason     = null,
			failed_attempts = 0,
			updated_at      = now(),
			updated_by      = $2
		where id = $1
	`, userID, actor)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*auth.User, error) {
	var (
		u            auth.User
		role         string
		lockedAt     sql.NullTime
		lastFailedAt sql.NullTime
		lastLoginAt  sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.TenantID, &u.Username, &u.Name, &u.Email, &role,
		&u.LinkedPatientID, &u.PasswordHash, &u.Active, &u.Locked, &lockedAt,
		&u.LockReason, &u.FailedAttempts, &lastFailedAt, &lastLoginAt,
		&u.CreatedAt, &u.UpdatedAt, &u.CreatedBy, &u.UpdatedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	if lockedAt.Valid {
		t := lockedAt.Time
		u.LockedAt = &t
	}
	if lastFailedAt.Valid {
		t := lastFailedAt.Time
		u.LastFailedAt = &t
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}
