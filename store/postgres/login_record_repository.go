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
	"fmt"

	"github.com/oauthhub/authhub/sso"
)

// LoginRecordRepository implements sso.Repository over PostgreSQL.
//
// Adapted from the teacher's session_repository.go CRUD idiom; the
// teacher's DB-backed browser session table itself is superseded by
// sessioncache's Redis store (spec.md §4.3 treats sessions as an
// abstract key/value store, not a relational entity).
type LoginRecordRepository struct {
	db *DB
}

// NewLoginRecordRepository creates a new LoginRecord repository.
func NewLoginRecordRepository(db *DB) *LoginRecordRepository {
	return &LoginRecordRepository{db: db}
}

// Exists reports whether a LoginRecord for (username, clientID) already
// exists, making introspection's record creation idempotent.
func (r *LoginRecordRepository) Exists(ctx context.Context, username, clientID string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM login_records WHERE username = $1 AND client_id = $2)`,
		username, clientID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check login record: %w", err)
	}
	return exists, nil
}

// Create inserts a new LoginRecord.
func (r *LoginRecordRepository) Create(ctx context.Context, rec *sso.LoginRecord) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO login_records (id, username, client_id, logout_url, login_time)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.Username, rec.ClientID, rec.LogoutURL, rec.LoginTime)
	if err != nil {
		return fmt.Errorf("failed to create login record: %w", err)
	}
	return nil
}

// ListByUsername retrieves every LoginRecord for username.
func (r *LoginRecordRepository) ListByUsername(ctx context.Context, username string) ([]*sso.LoginRecord, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, username, client_id, logout_url, login_time FROM login_records WHERE username = $1
	`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to query login records: %w", err)
	}
	defer rows.Close()

	var records []*sso.LoginRecord
	for rows.Next() {
		var rec sso.LoginRecord
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.ClientID, &rec.LogoutURL, &rec.LoginTime); err != nil {
			return nil, fmt.Errorf("failed to scan login record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// DeleteAllByUsername removes every LoginRecord for username, used by
// application_logout (spec.md §4.4).
func (r *LoginRecordRepository) DeleteAllByUsername(ctx context.Context, username string) error {
	_, err := r.db.pool.Exec(ctx, `DELETE FROM login_records WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("failed to delete login records: %w", err)
	}
	return nil
}
