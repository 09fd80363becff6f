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

	"github.com/jackc/pgx/v5"
	"github.com/oauthhub/authhub/grant"
)

// ScopeGrantRepository implements grant.ScopeGrantRepository over PostgreSQL.
type ScopeGrantRepository struct {
	db *DB
}

// NewScopeGrantRepository creates a new client scope grant repository.
func NewScopeGrantRepository(db *DB) *ScopeGrantRepository {
	return &ScopeGrantRepository{db: db}
}

// Get returns the ClientScopeGrant for (username, clientID), if any.
func (r *ScopeGrantRepository) Get(ctx context.Context, username, clientID string) (*grant.ClientScopeGrant, error) {
	var g grant.ClientScopeGrant
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, username, client_id, scopes, granted_at, expires_in
		FROM client_scope_grants WHERE username = $1 AND client_id = $2
	`, username, clientID).Scan(&g.ID, &g.Username, &g.ClientID, &g.Scopes, &g.GrantedAt, &g.ExpiresIn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get client scope grant: %w", err)
	}
	return &g, nil
}

// Upsert inserts or replaces a ClientScopeGrant for (username, clientID).
func (r *ScopeGrantRepository) Upsert(ctx context.Context, g *grant.ClientScopeGrant) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO client_scope_grants (id, username, client_id, scopes, granted_at, expires_in)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (username, client_id) DO UPDATE
		SET scopes = EXCLUDED.scopes, granted_at = EXCLUDED.granted_at, expires_in = EXCLUDED.expires_in
	`, g.ID, g.Username, g.ClientID, g.Scopes, g.GrantedAt, g.ExpiresIn)
	if err != nil {
		return fmt.Errorf("failed to upsert client scope grant: %w", err)
	}
	return nil
}

// Delete removes the ClientScopeGrant for (username, clientID), used when
// a user revokes a previously granted consent.
func (r *ScopeGrantRepository) Delete(ctx context.Context, username, clientID string) error {
	_, err := r.db.pool.Exec(ctx, `DELETE FROM client_scope_grants WHERE username = $1 AND client_id = $2`, username, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete client scope grant: %w", err)
	}
	return nil
}
