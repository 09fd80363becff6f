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

// Package grant implements the Grant Engine (C6) and Token Service (C7):
// OAuth2/OIDC grant state machines, authorization-code lifecycle, bearer
// token issuance, refresh rotation, introspection, and revocation.
package grant

import (
	"context"
	"errors"
	"time"
)

// CodeTTL bounds an AuthorizationCode's lifetime (spec.md §3: "≤ 10 min").
const CodeTTL = 10 * time.Minute

// Domain errors
var (
	ErrCodeNotFound       = errors.New("grant: authorization code not found or expired")
	ErrCodeAlreadyExists  = errors.New("grant: authorization code already exists for this client")
	ErrInvalidScope       = errors.New("grant: requested scope exceeds the effective allow-list")
	ErrInvalidGrant       = errors.New("grant: invalid or expired grant")
	ErrInvalidPKCE        = errors.New("grant: PKCE verification failed")
	ErrDuplicateNonce     = errors.New("grant: nonce already bound to a code for this client")
	ErrTokenNotFound      = errors.New("grant: token not found")
	ErrUnsupportedGrant   = errors.New("grant: client does not support this grant type")
	ErrUnsupportedRequest = errors.New("grant: unsupported response_type or request shape")
)

// AuthorizationCode represents a single-use code issued by the
// authorization endpoint (spec.md §3).
type AuthorizationCode struct {
	ID                  string
	Code                string
	ClientID            string
	RedirectURI         string
	Scope               string
	Username            string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
	IssuedAt            time.Time
}

// Expired reports whether the code is past CodeTTL relative to now.
func (c AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.IssuedAt.Add(CodeTTL))
}

// CodeRepository defines persistence for AuthorizationCode rows.
type CodeRepository interface {
	// Create rejects a duplicate (code, client_id) pair (ErrCodeAlreadyExists).
	Create(ctx context.Context, c *AuthorizationCode) error
	// GetByCode returns the code only if not expired; an expired code is
	// deleted and ErrCodeNotFound is returned instead (spec.md §9(a)).
	GetByCode(ctx context.Context, code, clientID string) (*AuthorizationCode, error)
	ExistsByNonce(ctx context.Context, clientID, nonce string) (bool, error)
	Delete(ctx context.Context, code, clientID string) error
}

// Token represents a bearer access/refresh token pair (spec.md §3).
//
// Invariant: AccessToken and RefreshToken are themselves the signed JWTs
// carrying {iat, exp, sub=username, aud=client_id, iss, scope?}.
type Token struct {
	ID                    string
	AccessToken           string
	RefreshToken          string
	ClientID              string
	UserID                string
	Username              string
	Scope                 string
	IssuedAt              time.Time
	ExpiresIn             int64
	RefreshTokenExpiresIn int64
	AccessTokenRevokedAt  *time.Time
	RefreshTokenRevokedAt *time.Time
	Metadata              map[string]any
}

// AccessTokenExpiresAt returns the wall-clock expiry of the access token.
func (t Token) AccessTokenExpiresAt() time.Time {
	return t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// RefreshTokenExpiresAt returns the wall-clock expiry of the refresh token.
func (t Token) RefreshTokenExpiresAt() time.Time {
	return t.IssuedAt.Add(time.Duration(t.RefreshTokenExpiresIn) * time.Second)
}

// RefreshTokenRevoked reports whether the refresh side has been revoked
// (spec.md §9(b): returns true only when actually revoked — the source's
// inverted check is not reproduced).
func (t Token) RefreshTokenRevoked(now time.Time) bool {
	return t.RefreshTokenRevokedAt != nil && !t.RefreshTokenRevokedAt.After(now)
}

// TokenRepository defines persistence for Token rows.
type TokenRepository interface {
	Create(ctx context.Context, t *Token) error
	GetByAccessToken(ctx context.Context, accessToken string) (*Token, error)
	// GetLiveRefreshToken returns the token only when its refresh side is
	// not revoked and not expired (spec.md §9(b) corrected polarity).
	GetLiveRefreshToken(ctx context.Context, refreshToken string) (*Token, error)
	// Rotate replaces a token's access_token/issued_at/metadata in place,
	// advancing the refresh grant (spec.md §4.6).
	Rotate(ctx context.Context, t *Token) error
	RevokeByAccessToken(ctx context.Context, accessToken string) error
	RevokeByRefreshToken(ctx context.Context, refreshToken string) error
	DeleteAllByUsername(ctx context.Context, username string) error
}

// ClientScopeGrant records that a user consented to a scope set for a
// client (spec.md §3).
type ClientScopeGrant struct {
	ID        string
	Username  string
	ClientID  string
	Scopes    string
	GrantedAt time.Time
	ExpiresIn int64
}

// Expired reports whether the grant has expired. ExpiresIn == 0 means "no
// expiry" — treated as not yet expired (spec.md §3).
func (g ClientScopeGrant) Expired(now time.Time) bool {
	if g.ExpiresIn == 0 {
		return false
	}
	return now.After(g.GrantedAt.Add(time.Duration(g.ExpiresIn) * time.Second))
}

// ScopeGrantRepository defines persistence for ClientScopeGrant rows.
type ScopeGrantRepository interface {
	Get(ctx context.Context, username, clientID string) (*ClientScopeGrant, error)
	Upsert(ctx context.Context, g *ClientScopeGrant) error
	Delete(ctx context.Context, username, clientID string) error
}
