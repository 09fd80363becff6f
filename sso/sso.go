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

// Package sso tracks LoginRecords, the join entity between a user and the
// clients they have visibly authenticated at, used to drive single
// sign-on and fan out single-logout notifications.
package sso

import (
	"context"
	"strings"
	"time"
)

// LoginRecord represents a user's recorded login at a single client
// (spec.md §3). It is created the first time a token is introspected at a
// client ("first visible use") and deleted in bulk on application_logout.
type LoginRecord struct {
	ID        string
	Username  string
	ClientID  string
	LogoutURL string
	LoginTime time.Time
}

// LogoutURLs splits the comma-joined LogoutURL field.
func (r LoginRecord) LogoutURLs() []string {
	if r.LogoutURL == "" {
		return nil
	}
	parts := strings.Split(r.LogoutURL, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Repository defines persistence for LoginRecord entries.
//
// Purpose: Abstraction over storage of SSO login tracking records.
// Domain: OAuth2
type Repository interface {
	// Exists reports whether a LoginRecord for (username, clientID) is
	// already present, used to make introspection's record creation
	// idempotent.
	Exists(ctx context.Context, username, clientID string) (bool, error)
	Create(ctx context.Context, r *LoginRecord) error
	ListByUsername(ctx context.Context, username string) ([]*LoginRecord, error)
	DeleteAllByUsername(ctx context.Context, username string) error
}
