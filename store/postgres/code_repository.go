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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oauthhub/authhub/grant"
)

// AuthorizationCodeRepository implements grant.CodeRepository over
// PostgreSQL.
//
// Invariant enforced here, not just in Go: expiry is observed at read
// time — GetByCode deletes an expired row and reports it absent
// (spec.md §4.6, the corrected polarity from spec.md §9(a)).
type AuthorizationCodeRepository struct {
	db *DB
}

// NewAuthorizationCodeRepository creates a new authorization code repository.
func NewAuthorizationCodeRepository(db *DB) *AuthorizationCodeRepository {
	return &AuthorizationCodeRepository{db: db}
}

// Create inserts a new authorization code, rejecting a duplicate
// (code, client_id) pair.
func (r *AuthorizationCodeRepository) Create(ctx context.Context, c *grant.AuthorizationCode) error {
	var exists bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM authorization_codes WHERE code = $1 AND client_id = $2)`,
		c.Code, c.ClientID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check code uniqueness: %w", err)
	}
	if exists {
		return grant.ErrCodeAlreadyExists
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO authorization_codes (
			id, code, client_id, redirect_uri, scope, username,
			code_challenge, code_challenge_method, nonce, issued_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		c.ID, c.Code, c.ClientID, c.RedirectURI, c.Scope, c.Username,
		nullableString(c.CodeChallenge), nullableString(c.CodeChallengeMethod), nullableString(c.Nonce), c.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create authorization code: %w", err)
	}
	return nil
}

// GetByCode returns the code only if it has not expired; an expired row
// is deleted and reported absent in the same call.
func (r *AuthorizationCodeRepository) GetByCode(ctx context.Context, code, clientID string) (*grant.AuthorizationCode, error) {
	var c grant.AuthorizationCode
	var codeChallenge, codeChallengeMethod, nonce *string

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, code, client_id, redirect_uri, scope, username,
			code_challenge, code_challenge_method, nonce, issued_at
		FROM authorization_codes WHERE code = $1 AND client_id = $2
	`, code, clientID).Scan(
		&c.ID, &c.Code, &c.ClientID, &c.RedirectURI, &c.Scope, &c.Username,
		&codeChallenge, &codeChallengeMethod, &nonce, &c.IssuedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, grant.ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}
	if codeChallenge != nil {
		c.CodeChallenge = *codeChallenge
	}
	if codeChallengeMethod != nil {
		c.CodeChallengeMethod = *codeChallengeMethod
	}
	if nonce != nil {
		c.Nonce = *nonce
	}

	if c.Expired(time.Now()) {
		if _, delErr := r.db.pool.Exec(ctx, `DELETE FROM authorization_codes WHERE code = $1 AND client_id = $2`, code, clientID); delErr != nil {
			return nil, fmt.Errorf("failed to delete expired code: %w", delErr)
		}
		return nil, grant.ErrCodeNotFound
	}

	return &c, nil
}

// ExistsByNonce reports whether (client_id, nonce) is already bound to a
// code, used for duplicate-nonce detection on openid requests.
func (r *AuthorizationCodeRepository) ExistsByNonce(ctx context.Context, clientID, nonce string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM authorization_codes WHERE client_id = $1 AND nonce = $2)`,
		clientID, nonce,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check nonce uniqueness: %w", err)
	}
	return exists, nil
}

// Delete removes a code, used on successful exchange.
func (r *AuthorizationCodeRepository) Delete(ctx context.Context, code, clientID string) error {
	_, err := r.db.pool.Exec(ctx, `DELETE FROM authorization_codes WHERE code = $1 AND client_id = $2`, code, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete code: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
