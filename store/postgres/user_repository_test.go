// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"testing"

	"github.com/oauthhub/authhub/user"
)

func TestUserRepository(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewUserRepository(db)

	u := &user.User{
		ID:           "00000000-0000-0000-0000-000000000101",
		Username:     "user1",
		PasswordHash: "argon2id$...",
		Email:        "user1@example.com",
	}

	t.Run("Create and Get", func(t *testing.T) {
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		got, err := repo.GetByUsername(ctx, u.Username)
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if got.Email != u.Email {
			t.Errorf("expected email %s, got %s", u.Email, got.Email)
		}
	})

	t.Run("Exists", func(t *testing.T) {
		exists, err := repo.Exists(ctx, u.Username)
		if err != nil {
			t.Fatalf("failed to check existence: %v", err)
		}
		if !exists {
			t.Error("expected user to exist")
		}

		exists, err = repo.Exists(ctx, "nobody")
		if err != nil {
			t.Fatalf("failed to check existence: %v", err)
		}
		if exists {
			t.Error("expected user to not exist")
		}
	})

	t.Run("UpdatePassword", func(t *testing.T) {
		if err := repo.UpdatePassword(ctx, u.Username, "newhash"); err != nil {
			t.Fatalf("failed to update password: %v", err)
		}

		got, err := repo.GetByUsername(ctx, u.Username)
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if got.PasswordHash != "newhash" {
			t.Errorf("expected updated password hash, got %s", got.PasswordHash)
		}
	})

	t.Run("GetByUsername not found", func(t *testing.T) {
		_, err := repo.GetByUsername(ctx, "ghost")
		if err != user.ErrUserNotFound {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})
}

func TestAdminRepository(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	_, err := db.pool.Exec(ctx, `
		INSERT INTO admin_users (id, username, password_hash) VALUES ($1, $2, $3)
	`, "00000000-0000-0000-0000-000000000201", "root-admin", "argon2id$...")
	if err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}

	repo := NewAdminRepository(db)

	admin, err := repo.GetByUsername(ctx, "root-admin")
	if err != nil {
		t.Fatalf("failed to get admin: %v", err)
	}
	if admin.Username != "root-admin" {
		t.Errorf("expected username root-admin, got %s", admin.Username)
	}

	_, err = repo.GetByUsername(ctx, "ghost")
	if err != user.ErrAdminNotFound {
		t.Errorf("expected ErrAdminNotFound, got %v", err)
	}
}
