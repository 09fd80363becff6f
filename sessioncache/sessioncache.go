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

// Package sessioncache provides the Redis-backed key/value store behind
// the Session Cache component (C3): short-lived JWT storage compared
// byte-exactly on request authentication.
package sessioncache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key is absent or has expired.
var ErrNotFound = errors.New("sessioncache: key not found")

const (
	// UserTokenTTL is the lifetime of an end-user session token (spec.md §4.3).
	UserTokenTTL = 30 * 24 * time.Hour
	// AdminTokenTTL is the lifetime of an admin session token (spec.md §4.3).
	AdminTokenTTL = 2 * time.Hour
	// bearerPrefix is prepended literally to admin token values before storage.
	bearerPrefix = "bearer "
)

// Store wraps a Redis client with the key schema used for login sessions.
//
// Purpose: Implementation of the Session Cache component (C3).
// Domain: OAuth2
type Store struct {
	rdb *redis.Client
}

// New creates a new session cache store over an existing Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func userKey(username string) string    { return fmt.Sprintf("%s-token", username) }
func managerKey(username string) string { return fmt.Sprintf("%s-manager-token", username) }

// PutUserToken stores an end-user session token with the standard 30-day TTL.
func (s *Store) PutUserToken(ctx context.Context, username, token string) error {
	return s.rdb.Set(ctx, userKey(username), token, UserTokenTTL).Err()
}

// PutAdminToken stores an admin session token, literally prefixed with
// "bearer ", with the standard 2-hour TTL.
func (s *Store) PutAdminToken(ctx context.Context, username, token string) error {
	return s.rdb.Set(ctx, managerKey(username), bearerPrefix+token, AdminTokenTTL).Err()
}

// GetUserToken retrieves the cached end-user session token.
func (s *Store) GetUserToken(ctx context.Context, username string) (string, error) {
	return s.get(ctx, userKey(username))
}

// GetAdminToken retrieves the cached admin session token, including its
// literal "bearer " prefix.
func (s *Store) GetAdminToken(ctx context.Context, username string) (string, error) {
	return s.get(ctx, managerKey(username))
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// DeleteUserToken removes the cached end-user session token (logout).
func (s *Store) DeleteUserToken(ctx context.Context, username string) error {
	return s.rdb.Del(ctx, userKey(username)).Err()
}

// DeleteAdminToken removes the cached admin session token (logout).
func (s *Store) DeleteAdminToken(ctx context.Context, username string) error {
	return s.rdb.Del(ctx, managerKey(username)).Err()
}

// AuthenticateUser reports whether presented equals the cached end-user
// token exactly (spec.md §4.3: "compared byte-exactly").
func (s *Store) AuthenticateUser(ctx context.Context, username, presented string) bool {
	cached, err := s.GetUserToken(ctx, username)
	return err == nil && cached == presented
}

// AuthenticateAdmin reports whether presented equals the cached admin
// token exactly, including the "bearer " prefix.
func (s *Store) AuthenticateAdmin(ctx context.Context, username, presented string) bool {
	cached, err := s.GetAdminToken(ctx, username)
	return err == nil && cached == presented
}
