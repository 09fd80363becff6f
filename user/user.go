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

package user

import (
	"context"
	"errors"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrAdminNotFound      = errors.New("admin user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPermissionDenied   = errors.New("permission denied")
)

// User represents an end-user identity.
//
// Purpose: Core identity entity authenticated via the account manager.
// Domain: Identity
// Invariants: Username is unique. PasswordHash is never the plaintext password.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Email        string
	Phone        string
}

// AdminUser represents a platform administrator, a namespace disjoint from User.
//
// Purpose: Grants the reset_password capability over ordinary users.
// Domain: Identity
// Invariants: Username is unique within the admin table, independent of User.Username.
type AdminUser struct {
	ID           string
	Username     string
	PasswordHash string
}

// Repository defines persistence for User records.
//
// Purpose: Abstraction over storage of end-user identities.
// Domain: Identity
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	Exists(ctx context.Context, username string) (bool, error)
}

// AdminRepository defines persistence for AdminUser records.
//
// Purpose: Abstraction over storage of administrator identities.
// Domain: Identity
type AdminRepository interface {
	GetByUsername(ctx context.Context, username string) (*AdminUser, error)
}
