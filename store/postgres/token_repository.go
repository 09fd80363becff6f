// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oauthhub/authhub/grant"
)

// TokenRepository implements grant.TokenRepository over PostgreSQL.
//
// Access and refresh tokens share a single row per spec.md §3: a Token is
// one combined entity, not the teacher's separate access/refresh tables.
type TokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new token repository.
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

const tokenColumns = `id, access_token, refresh_token, client_id, user_id, username, scope,
	issued_at, expires_in, refresh_token_expires_in,
	access_token_revoked_at, refresh_token_revoked_at, metadata`

func scanToken(row pgx.Row) (*grant.Token, error) {
	var t grant.Token
	var refreshToken *string
	var accessRevoked, refreshRevoked *time.Time
	var meta []byte

	err := row.Scan(
		&t.ID, &t.AccessToken, &refreshToken, &t.ClientID, &t.UserID, &t.Username, &t.Scope,
		&t.IssuedAt, &t.ExpiresIn, &t.RefreshTokenExpiresIn,
		&accessRevoked, &refreshRevoked, &meta,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, grant.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	if refreshToken != nil {
		t.RefreshToken = *refreshToken
	}
	t.AccessTokenRevokedAt = accessRevoked
	t.RefreshTokenRevokedAt = refreshRevoked
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal token metadata: %w", err)
		}
	}
	return &t, nil
}

// Create persists a new Token row.
func (r *TokenRepository) Create(ctx context.Context, t *grant.Token) error {
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal token metadata: %w", err)
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO tokens (
			id, access_token, refresh_token, client_id, user_id, username, scope,
			issued_at, expires_in, refresh_token_expires_in, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		t.ID, t.AccessToken, nullableString(t.RefreshToken), t.ClientID, t.UserID, t.Username, t.Scope,
		t.IssuedAt, t.ExpiresIn, t.RefreshTokenExpiresIn, meta,
	)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

// GetByAccessToken retrieves a Token row by its access_token value.
func (r *TokenRepository) GetByAccessToken(ctx context.Context, accessToken string) (*grant.Token, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE access_token = $1`, accessToken)
	return scanToken(row)
}

// GetLiveRefreshToken returns the token only if its refresh side is not
// revoked and not expired (spec.md §9(b), the corrected polarity).
func (r *TokenRepository) GetLiveRefreshToken(ctx context.Context, refreshToken string) (*grant.Token, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+tokenColumns+` FROM tokens
		WHERE refresh_token = $1
			AND (refresh_token_revoked_at IS NULL OR refresh_token_revoked_at > NOW())
	`, refreshToken)
	t, err := scanToken(row)
	if err != nil {
		return nil, err
	}
	if t.RefreshTokenExpiresAt().Before(time.Now()) {
		return nil, grant.ErrTokenNotFound
	}
	return t, nil
}

// Rotate replaces access_token/issued_at/expires_in/metadata in place,
// advancing a refresh grant (spec.md §4.6).
func (r *TokenRepository) Rotate(ctx context.Context, t *grant.Token) error {
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal token metadata: %w", err)
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE tokens SET access_token = $2, issued_at = $3, expires_in = $4, metadata = $5
		WHERE id = $1
	`, t.ID, t.AccessToken, t.IssuedAt, t.ExpiresIn, meta)
	if err != nil {
		return fmt.Errorf("failed to rotate token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return grant.ErrTokenNotFound
	}
	return nil
}

// RevokeByAccessToken soft-revokes the access side of a token.
func (r *TokenRepository) RevokeByAccessToken(ctx context.Context, accessToken string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE tokens SET access_token_revoked_at = NOW() WHERE access_token = $1
	`, accessToken)
	if err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return grant.ErrTokenNotFound
	}
	return nil
}

// RevokeByRefreshToken soft-revokes the refresh side of a token.
func (r *TokenRepository) RevokeByRefreshToken(ctx context.Context, refreshToken string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE tokens SET refresh_token_revoked_at = NOW() WHERE refresh_token = $1
	`, refreshToken)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return grant.ErrTokenNotFound
	}
	return nil
}

// DeleteAllByUsername deletes every Token row for username, used by
// application_logout (spec.md §4.4).
func (r *TokenRepository) DeleteAllByUsername(ctx context.Context, username string) error {
	_, err := r.db.pool.Exec(ctx, `DELETE FROM tokens WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("failed to delete tokens for user: %w", err)
	}
	return nil
}
