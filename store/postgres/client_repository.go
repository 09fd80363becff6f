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

	"github.com/jackc/pgx/v5"
	"github.com/oauthhub/authhub/client"
)

// ClientRepository implements client.Repository over PostgreSQL.
type ClientRepository struct {
	db *DB
}

// NewClientRepository creates a new client repository.
func NewClientRepository(db *DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// Create inserts a new OAuth2 client, with Metadata stored as a single
// JSON column (spec.md §4.5: "full JSON replacement under the same key").
func (r *ClientRepository) Create(ctx context.Context, c *client.Client) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO oauth2_clients (id, client_id, client_secret, app_name, owner_username, issued_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.ClientID, c.ClientSecret, c.AppName, c.OwnerUsername, c.IssuedAt, meta)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func scanClient(row pgx.Row) (*client.Client, error) {
	var c client.Client
	var meta []byte
	err := row.Scan(&c.ID, &c.ClientID, &c.ClientSecret, &c.AppName, &c.OwnerUsername, &c.IssuedAt, &meta)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, client.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	if err := json.Unmarshal(meta, &c.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &c, nil
}

const clientColumns = `id, client_id, client_secret, app_name, owner_username, issued_at, metadata`

// GetByClientID retrieves a client by its external client_id.
func (r *ClientRepository) GetByClientID(ctx context.Context, clientID string) (*client.Client, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM oauth2_clients WHERE client_id = $1`, clientID)
	return scanClient(row)
}

// GetByAppNameAndOwner retrieves a client scoped to its owning admin.
func (r *ClientRepository) GetByAppNameAndOwner(ctx context.Context, ownerUsername, clientID string) (*client.Client, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+clientColumns+` FROM oauth2_clients WHERE client_id = $1 AND owner_username = $2
	`, clientID, ownerUsername)
	return scanClient(row)
}

// AppNameExists reports whether appName is already registered.
func (r *ClientRepository) AppNameExists(ctx context.Context, appName string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM oauth2_clients WHERE app_name = $1)`, appName,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check app_name: %w", err)
	}
	return exists, nil
}

// Update replaces a client's Metadata document wholesale.
func (r *ClientRepository) Update(ctx context.Context, c *client.Client) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE oauth2_clients SET metadata = $3 WHERE client_id = $1 AND owner_username = $2
	`, c.ClientID, c.OwnerUsername, meta)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return client.ErrClientNotFound
	}
	return nil
}

// Delete cascades to Tokens and AuthorizationCodes via foreign key
// constraints defined in the schema (spec.md §4.5).
func (r *ClientRepository) Delete(ctx context.Context, ownerUsername, clientID string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM oauth2_clients WHERE client_id = $1 AND owner_username = $2
	`, clientID, ownerUsername)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return client.ErrClientNotFound
	}
	return nil
}

// ListByOwner retrieves all clients registered by ownerUsername.
func (r *ClientRepository) ListByOwner(ctx context.Context, ownerUsername string) ([]*client.Client, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+clientColumns+` FROM oauth2_clients WHERE owner_username = $1 ORDER BY issued_at DESC
	`, ownerUsername)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()
	return scanClients(rows)
}

// ListAll retrieves every registered client, used for registration
// callback fan-out (spec.md §4.4).
func (r *ClientRepository) ListAll(ctx context.Context) ([]*client.Client, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT `+clientColumns+` FROM oauth2_clients`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()
	return scanClients(rows)
}

func scanClients(rows pgx.Rows) ([]*client.Client, error) {
	var clients []*client.Client
	for rows.Next() {
		var c client.Client
		var meta []byte
		if err := rows.Scan(&c.ID, &c.ClientID, &c.ClientSecret, &c.AppName, &c.OwnerUsername, &c.IssuedAt, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		clients = append(clients, &c)
	}
	return clients, rows.Err()
}
