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
	"github.com/oauthhub/authhub/user"
)

// UserRepository implements user.Repository over PostgreSQL.
//
// Purpose: Persistence for end-user identities.
// Domain: Identity (Infrastructure)
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create persists a new user identity.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, email, phone)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Username, u.PasswordHash, u.Email, u.Phone)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	var u user.User
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, email, phone FROM users WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// UpdatePassword overwrites a user's password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2 WHERE username = $1
	`, username, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

// Exists reports whether username is already registered.
func (r *UserRepository) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// AdminRepository implements user.AdminRepository over PostgreSQL.
//
// Purpose: Persistence for platform administrator identities, a
// namespace disjoint from User.
// Domain: Identity (Infrastructure)
type AdminRepository struct {
	db *DB
}

// NewAdminRepository creates a new admin user repository.
func NewAdminRepository(db *DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// GetByUsername retrieves an admin user by username.
func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*user.AdminUser, error) {
	var a user.AdminUser
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, username, password_hash FROM admin_users WHERE username = $1
	`, username).Scan(&a.ID, &a.Username, &a.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin user: %w", err)
	}
	return &a, nil
}
