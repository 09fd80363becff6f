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
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/oauthhub/authhub/audit"
	"github.com/oauthhub/authhub/callback"
	"github.com/oauthhub/authhub/client"
	"github.com/oauthhub/authhub/id"
	"github.com/oauthhub/authhub/jwtcodec"
	"github.com/oauthhub/authhub/password"
	"github.com/oauthhub/authhub/sessioncache"
	"github.com/oauthhub/authhub/sso"
)

// DefaultPassword is the fixed credential an AdminUser's reset_password
// resets a target user's password to (spec.md §4.4).
const DefaultPassword = "Ch@ngeMe123"

// Session kinds accepted by Login.
const (
	KindUser  = "user"
	KindAdmin = "admin"
)

// Session token lifetimes (spec.md §4.4).
const (
	UserTokenTTL  = 5 * 24 * time.Hour
	AdminTokenTTL = 2 * time.Hour
)

// Sentinel login errors, mapped to LOGIN_ERROR / PASSWORD_ERROR (spec.md §7).
var (
	ErrLoginNotFound   = errors.New("login: account not found")
	ErrLoginBadPassword = errors.New("login: password mismatch")
)

// ErrPartialSuccess signals that a register or logout fan-out had at
// least one failing callback, while the core mutation committed.
var ErrPartialSuccess = errors.New("user: partial success")

// TokenStore is implemented by the Grant Engine's token repository. It is
// declared locally to avoid an import cycle: the grant package depends on
// user for password-grant authentication, so user cannot import grant back.
type TokenStore interface {
	DeleteAllByUsername(ctx context.Context, username string) error
}

// Service implements the Account Manager component (C4).
//
// Purpose: Registration, login, password reset, and logout fan-out.
// Domain: Identity / OAuth2
type Service struct {
	repo          Repository
	adminRepo     AdminRepository
	hasher        *password.Hasher
	auditLogger   audit.Logger
	clients       *client.Service
	notifier      *callback.Notifier
	loginRecords  sso.Repository
	tokens        TokenStore
	cache         *sessioncache.Store
	jwtKey        string
}

// NewService creates a new Account Manager service.
func NewService(
	repo Repository,
	adminRepo AdminRepository,
	hasher *password.Hasher,
	auditLogger audit.Logger,
	clients *client.Service,
	notifier *callback.Notifier,
	loginRecords sso.Repository,
	tokens TokenStore,
	cache *sessioncache.Store,
	jwtKey string,
) *Service {
	return &Service{
		repo:         repo,
		adminRepo:    adminRepo,
		hasher:       hasher,
		auditLogger:  auditLogger,
		clients:      clients,
		notifier:     notifier,
		loginRecords: loginRecords,
		tokens:       tokens,
		cache:        cache,
		jwtKey:       jwtKey,
	}
}

// Register creates a new User and fans the registration out to every
// registered client's register_callback_uris (spec.md §4.4).
//
// Purpose: Account creation with downstream client notification.
// Domain: Identity
// Audited: Yes (UserCreated)
// Errors: ErrUserAlreadyExists, ErrPartialSuccess (non-fatal)
func (s *Service) Register(ctx context.Context, username, plainPassword, email string) (*User, error) {
	exists, err := s.repo.Exists(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserAlreadyExists
	}

	hash, err := s.hasher.Hash(plainPassword)
	if err != nil {
		return nil, err
	}

	u := &User{ID: id.New(), Username: username, PasswordHash: hash, Email: email}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeUserCreated,
		ActorID:    u.ID,
		Resource:   audit.ResourceUser,
		TargetName: username,
		TargetID:   u.ID,
	})

	if err := s.notifyRegistration(ctx, u); err != nil {
		return u, err
	}
	return u, nil
}

// notifyRegistration projects {username, email} through each client's
// stored scope allow-list and POSTs it to register_callback_uris. A
// callback failure never rolls back the insert: it surfaces
// ErrPartialSuccess instead (spec.md §4.4).
func (s *Service) notifyRegistration(ctx context.Context, u *User) error {
	clients, err := s.clients.ListAll(ctx)
	if err != nil {
		return err
	}

	allOK := true
	for _, c := range clients {
		uris := c.Metadata.RegisterCallbackURIs
		if len(uris) == 0 {
			continue
		}
		payload := map[string]any{"username": u.Username}
		for _, scope := range c.Metadata.ScopeList() {
			if scope == client.ScopeEmail {
				payload["email"] = u.Email
			}
		}
		if !s.notifier.FanOut(ctx, uris, payload) {
			allOK = false
		}
	}
	if !allOK {
		return ErrPartialSuccess
	}
	return nil
}

// Login authenticates against the User or AdminUser table and, on
// success, mints and caches a session JWT (spec.md §4.3, §4.4).
//
// Purpose: Credential check plus session token issuance.
// Domain: Identity
// Audited: Yes (LoginSuccess / LoginFailed)
// Errors: ErrLoginNotFound, ErrLoginBadPassword
func (s *Service) Login(ctx context.Context, kind, username, plainPassword string) (string, error) {
	var storedHash string
	switch kind {
	case KindAdmin:
		admin, err := s.adminRepo.GetByUsername(ctx, username)
		if err != nil {
			s.auditFailedLogin(ctx, username, "not_found")
			return "", ErrLoginNotFound
		}
		storedHash = admin.PasswordHash
	default:
		u, err := s.repo.GetByUsername(ctx, username)
		if err != nil {
			s.auditFailedLogin(ctx, username, "not_found")
			return "", ErrLoginNotFound
		}
		storedHash = u.PasswordHash
	}

	valid, err := s.hasher.Verify(plainPassword, storedHash)
	if err != nil || !valid {
		s.auditFailedLogin(ctx, username, "bad_password")
		return "", ErrLoginBadPassword
	}

	now := time.Now()
	ttl := UserTokenTTL
	if kind == KindAdmin {
		ttl = AdminTokenTTL
	}
	token, err := jwtcodec.Generate(s.jwtKey, jwtcodec.Claims{
		Subject:   username,
		Audience:  kind,
		Issuer:    "oauthhub",
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return "", err
	}

	if kind == KindAdmin {
		err = s.cache.PutAdminToken(ctx, username, token)
	} else {
		err = s.cache.PutUserToken(ctx, username, token)
	}
	if err != nil {
		return "", err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		ActorID:  username,
		Resource: "login",
		TargetID: username,
	})
	return token, nil
}

func (s *Service) auditFailedLogin(ctx context.Context, username, reason string) {
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginFailed,
		ActorID:  username,
		Resource: "login",
		Metadata: map[string]any{audit.AttrReason: reason},
	})
}

// Logout deletes a cached session token (spec.md §4.3).
func (s *Service) Logout(ctx context.Context, kind, username string) error {
	if kind == KindAdmin {
		return s.cache.DeleteAdminToken(ctx, username)
	}
	return s.cache.DeleteUserToken(ctx, username)
}

// ResetPassword sets target's password to DefaultPassword. Permitted only
// when the acting subject is an AdminUser (spec.md §4.4).
//
// Audited: Yes (PasswordChanged)
// Errors: ErrPermissionDenied, ErrUserNotFound
func (s *Service) ResetPassword(ctx context.Context, actingAdminUsername, targetUsername string) error {
	if _, err := s.adminRepo.GetByUsername(ctx, actingAdminUsername); err != nil {
		return ErrPermissionDenied
	}

	hash, err := s.hasher.Hash(DefaultPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, targetUsername, hash); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypePasswordChanged,
		ActorID:    actingAdminUsername,
		Resource:   audit.ResourceUserCredentials,
		TargetName: targetUsername,
	})
	return nil
}

// ApplicationLogout fans single-logout notifications out to every client
// the user has a LoginRecord with, then deletes all of that user's Tokens
// and LoginRecords (spec.md §4.4).
//
// Purpose: Single-logout (SLO) across every client the user signed into.
// Domain: OAuth2
// Audited: Yes (Logout)
// Errors: ErrPartialSuccess (non-fatal)
func (s *Service) ApplicationLogout(ctx context.Context, username string) error {
	records, err := s.loginRecords.ListByUsername(ctx, username)
	if err != nil {
		return err
	}

	allOK := true
	for _, r := range records {
		c, err := s.clients.GetByClientID(ctx, r.ClientID)
		if err != nil {
			allOK = false
			continue
		}
		encrypted, err := encryptedClientSecret(c.ClientID, c.ClientSecret)
		if err != nil {
			allOK = false
			continue
		}
		payload := map[string]any{"username": username, "encrypted_string": encrypted}
		if !s.notifier.FanOut(ctx, r.LogoutURLs(), payload) {
			allOK = false
		}
	}

	if err := s.tokens.DeleteAllByUsername(ctx, username); err != nil {
		return err
	}
	if err := s.loginRecords.DeleteAllByUsername(ctx, username); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLogout,
		ActorID:  username,
		Resource: audit.ResourceSession,
	})

	if !allOK {
		return ErrPartialSuccess
	}
	return nil
}

// encryptedClientSecret builds the base64(utf8(stringify({client_id:
// client_secret}))) payload the original source sends on logout fan-out
// (spec.md §4.4). It is not cryptographic encryption, only the wire
// encoding the upstream clients expect.
func encryptedClientSecret(clientID, clientSecret string) (string, error) {
	b, err := json.Marshal(map[string]string{clientID: clientSecret})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
