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
	"testing"

	"github.com/oauthhub/authhub/audit"
	"github.com/oauthhub/authhub/client"
	"github.com/oauthhub/authhub/password"
)

type fakeRepo struct {
	byUsername map[string]*User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byUsername: make(map[string]*User)}
}

func (f *fakeRepo) Create(ctx context.Context, u *User) error {
	f.byUsername[u.Username] = u
	return nil
}

func (f *fakeRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, ok := f.byUsername[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeRepo) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	u, ok := f.byUsername[username]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeRepo) Exists(ctx context.Context, username string) (bool, error) {
	_, ok := f.byUsername[username]
	return ok, nil
}

type fakeAdminRepo struct {
	byUsername map[string]*AdminUser
}

func (f *fakeAdminRepo) GetByUsername(ctx context.Context, username string) (*AdminUser, error) {
	a, ok := f.byUsername[username]
	if !ok {
		return nil, ErrAdminNotFound
	}
	return a, nil
}

type fakeClientRepo struct{}

func (fakeClientRepo) Create(ctx context.Context, c *client.Client) error { return nil }
func (fakeClientRepo) GetByClientID(ctx context.Context, clientID string) (*client.Client, error) {
	return nil, errors.New("not found")
}
func (fakeClientRepo) GetByAppNameAndOwner(ctx context.Context, ownerUsername, clientID string) (*client.Client, error) {
	return nil, errors.New("not found")
}
func (fakeClientRepo) AppNameExists(ctx context.Context, appName string) (bool, error) {
	return false, nil
}
func (fakeClientRepo) Update(ctx context.Context, c *client.Client) error { return nil }
func (fakeClientRepo) Delete(ctx context.Context, ownerUsername, clientID string) error {
	return nil
}
func (fakeClientRepo) ListByOwner(ctx context.Context, ownerUsername string) ([]*client.Client, error) {
	return nil, nil
}
func (fakeClientRepo) ListAll(ctx context.Context) ([]*client.Client, error) {
	return nil, nil
}

type discardAuditLogger struct{}

func (discardAuditLogger) Log(ctx context.Context, event audit.Event) {}

func testHasher() *password.Hasher {
	return password.NewHasher(64*1024, 1, 1, 16, 32)
}

func newTestService(repo *fakeRepo, adminRepo *fakeAdminRepo) *Service {
	clients := client.NewService(fakeClientRepo{}, discardAuditLogger{})
	return NewService(repo, adminRepo, testHasher(), discardAuditLogger{}, clients, nil, nil, nil, nil, "")
}

func TestRegister(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAdminRepo{byUsername: map[string]*AdminUser{}})

	u, err := svc.Register(context.Background(), "alice", "s3cret-pw", "alice@example.com")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Username != "alice" {
		t.Errorf("expected username alice, got %s", u.Username)
	}
	if u.PasswordHash == "s3cret-pw" {
		t.Error("password was not hashed")
	}

	if _, err := svc.Register(context.Background(), "alice", "other-pw", ""); !errors.Is(err, ErrUserAlreadyExists) {
		t.Errorf("expected ErrUserAlreadyExists, got %v", err)
	}
}

func TestLoginUserNotFound(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAdminRepo{byUsername: map[string]*AdminUser{}})

	if _, err := svc.Login(context.Background(), KindUser, "ghost", "whatever"); !errors.Is(err, ErrLoginNotFound) {
		t.Errorf("expected ErrLoginNotFound, got %v", err)
	}
}

func TestLoginBadPassword(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAdminRepo{byUsername: map[string]*AdminUser{}})

	if _, err := svc.Register(context.Background(), "bob", "correct-horse", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Login(context.Background(), KindUser, "bob", "wrong-password"); !errors.Is(err, ErrLoginBadPassword) {
		t.Errorf("expected ErrLoginBadPassword, got %v", err)
	}
}

func TestResetPasswordRequiresAdmin(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAdminRepo{byUsername: map[string]*AdminUser{}})

	if _, err := svc.Register(context.Background(), "carol", "s3cret-pw", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.ResetPassword(context.Background(), "not-an-admin", "carol"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestResetPasswordSuccess(t *testing.T) {
	repo := newFakeRepo()
	hasher := testHasher()
	adminHash, err := hasher.Hash("admin-pw")
	if err != nil {
		t.Fatalf("hashing admin password: %v", err)
	}
	adminRepo := &fakeAdminRepo{byUsername: map[string]*AdminUser{
		"root": {ID: "admin-1", Username: "root", PasswordHash: adminHash},
	}}
	svc := newTestService(repo, adminRepo)

	if _, err := svc.Register(context.Background(), "dave", "original-pw", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.ResetPassword(context.Background(), "root", "dave"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	u, err := repo.GetByUsername(context.Background(), "dave")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	ok, err := hasher.Verify(DefaultPassword, u.PasswordHash)
	if err != nil || !ok {
		t.Errorf("expected password reset to DefaultPassword, verify ok=%v err=%v", ok, err)
	}
}
