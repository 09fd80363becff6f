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

package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/oauthhub/authhub/audit"
	"github.com/oauthhub/authhub/id"
)

// Service provides OAuth2 client registry business logic (C5).
//
// Purpose: Implementation of client registration, validation, and lifecycle rules.
// Domain: OAuth2
type Service struct {
	repo        Repository
	auditLogger audit.Logger
}

// NewService creates a new client registry service.
func NewService(repo Repository, auditLogger audit.Logger) *Service {
	return &Service{repo: repo, auditLogger: auditLogger}
}

// Create validates and registers a new OAuth2 client (spec.md §4.5).
//
// Purpose: Enforces system rules on new client registrations and persists them.
// Domain: OAuth2
// Audited: Yes (ClientCreated)
// Errors: ErrClientAlreadyExists, ErrInvalidClientURI, ErrInvalidRedirectURI, ErrDomainInvalidScope
func (s *Service) Create(ctx context.Context, ownerUsername string, meta Metadata) (*Client, error) {
	if err := validateMetadata(meta); err != nil {
		return nil, err
	}

	exists, err := s.repo.AppNameExists(ctx, meta.ClientName)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrClientAlreadyExists
	}

	meta.Scope = canonicalScope(meta.ScopeList())

	c := &Client{
		ID:            id.New(),
		ClientID:      GenerateClientID(),
		ClientSecret:  GenerateClientSecret(),
		AppName:       meta.ClientName,
		OwnerUsername: ownerUsername,
		IssuedAt:      time.Now(),
		Metadata:      meta,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeClientCreated,
		ActorID:    ownerUsername,
		Resource:   audit.ResourceClient,
		TargetName: c.AppName,
		TargetID:   c.ClientID,
		Metadata:   map[string]any{"client_id": c.ClientID, "app_name": c.AppName},
	})

	return c, nil
}

// ListByOwner retrieves all clients owned by ownerUsername.
func (s *Service) ListByOwner(ctx context.Context, ownerUsername string) ([]*Client, error) {
	return s.repo.ListByOwner(ctx, ownerUsername)
}

// Get retrieves a client owned by ownerUsername by its client_id.
func (s *Service) Get(ctx context.Context, ownerUsername, clientID string) (*Client, error) {
	return s.repo.GetByAppNameAndOwner(ctx, ownerUsername, clientID)
}

// GetByClientID retrieves a client by its external client_id, regardless of owner.
func (s *Service) GetByClientID(ctx context.Context, clientID string) (*Client, error) {
	return s.repo.GetByClientID(ctx, clientID)
}

// ListAll retrieves every registered client, used for registration callback fan-out.
func (s *Service) ListAll(ctx context.Context) ([]*Client, error) {
	return s.repo.ListAll(ctx)
}

// Update replaces a client's metadata (full JSON replacement, spec.md §4.5).
//
// Purpose: Read-modify-write of client metadata.
// Domain: OAuth2
// Audited: Yes (ClientUpdated)
func (s *Service) Update(ctx context.Context, ownerUsername, clientID string, meta Metadata) (*Client, error) {
	c, err := s.repo.GetByAppNameAndOwner(ctx, ownerUsername, clientID)
	if err != nil {
		return nil, err
	}

	if err := validateMetadata(meta); err != nil {
		return nil, err
	}
	meta.Scope = canonicalScope(meta.ScopeList())

	c.Metadata = meta
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeClientUpdated,
		ActorID:    ownerUsername,
		Resource:   audit.ResourceClient,
		TargetName: c.AppName,
		TargetID:   c.ClientID,
		Metadata:   map[string]any{"client_id": c.ClientID},
	})
	return c, nil
}

// Delete cascades to Tokens and AuthorizationCodes via the persistence
// gateway's foreign-key constraints (spec.md §4.5).
//
// Audited: Yes (ClientDeleted)
func (s *Service) Delete(ctx context.Context, ownerUsername, clientID string) error {
	c, err := s.repo.GetByAppNameAndOwner(ctx, ownerUsername, clientID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, ownerUsername, clientID); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeClientDeleted,
		ActorID:    ownerUsername,
		Resource:   audit.ResourceClient,
		TargetName: c.AppName,
		TargetID:   c.ClientID,
		Metadata:   map[string]any{"client_id": c.ClientID},
	})
	return nil
}

// canonicalScope unions the requested scopes with BaselineScopes and
// returns a space-delimited string (spec.md §4.5).
func canonicalScope(requested []string) string {
	set := toSet(BaselineScopes)
	for _, s := range requested {
		set[s] = true
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return joinSorted(out)
}

func validateMetadata(meta Metadata) error {
	if meta.ClientURI != "" {
		if _, err := url.ParseRequestURI(meta.ClientURI); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidClientURI, meta.ClientURI)
		}
	}
	for _, uri := range meta.RedirectURIs {
		if _, err := url.ParseRequestURI(uri); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidRedirectURI, uri)
		}
	}
	for _, s := range meta.ScopeList() {
		if !allowedScopes[s] {
			return fmt.Errorf("%w: %s", ErrDomainInvalidScope, s)
		}
	}
	for _, gt := range meta.GrantTypes {
		if !AllowedGrantTypes[gt] {
			return fmt.Errorf("%w: %s", ErrDomainInvalidGrantType, gt)
		}
	}
	if meta.TokenEndpointAuthMethod != "" && !AllowedAuthMethods[meta.TokenEndpointAuthMethod] {
		return fmt.Errorf("%w: auth method %s", ErrDomainInvalidClient, meta.TokenEndpointAuthMethod)
	}
	return nil
}
