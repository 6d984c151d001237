package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
)

// GetCredential retrieves the calendar credential of an owner
func (r *SQLiteRepository) GetCredential(ctx context.Context, ownerID int64) (*entities.Credential, error) {
	var c entities.Credential
	var expiry, updatedAt sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT owner_id, access_token, refresh_token, expiry, updated_at
		FROM credentials WHERE owner_id = ?`, ownerID,
	).Scan(&c.OwnerID, &c.AccessToken, &c.RefreshToken, &expiry, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential of owner %d: %w", ownerID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get credential of owner %d: %w", ownerID, err)
	}

	if c.Expiry, err = parseTime(expiry); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCredential stores the tokens of an owner, replacing previous ones
func (r *SQLiteRepository) SaveCredential(ctx context.Context, c entities.Credential) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials(owner_id, access_token, refresh_token, expiry, updated_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
		access_token=excluded.access_token,
		refresh_token=excluded.refresh_token,
		expiry=excluded.expiry,
		updated_at=excluded.updated_at`,
		c.OwnerID, c.AccessToken, c.RefreshToken, formatTime(c.Expiry), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save credential of owner %d: %w", c.OwnerID, err)
	}
	return nil
}

// DeleteCredential removes every token of an owner
func (r *SQLiteRepository) DeleteCredential(ctx context.Context, ownerID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to delete credential of owner %d: %w", ownerID, err)
	}
	return nil
}
