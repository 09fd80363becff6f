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

// Package jwtcodec implements the Token Codec component (C1): HMAC-signed
// JWT issuance and validation shared by session tokens (login/admin login)
// and OAuth2 access/refresh/ID tokens.
package jwtcodec

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrExpired is returned when a token decodes successfully but has expired.
var ErrExpired = errors.New("jwtcodec: token expired")

// ErrInvalid is returned for malformed tokens, bad signatures, or missing
// required claims.
var ErrInvalid = errors.New("jwtcodec: invalid token")

// shanghai is the fixed zone used to compute exp the way the original
// source does, via wall-clock arithmetic in Asia/Shanghai rather than a
// straight UTC offset from time.Now.
var shanghai = mustLoadLocation("Asia/Shanghai")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone(name, 8*60*60)
	}
	return loc
}

// ExpiryInShanghai returns now advanced by ttl, computed via wall-clock
// arithmetic in Asia/Shanghai (mirrors the original source's use of
// pytz.timezone("Asia/Shanghai") + time.mktime before truncating back to
// a Unix timestamp).
func ExpiryInShanghai(now time.Time, ttl time.Duration) time.Time {
	local := now.In(shanghai)
	return local.Add(ttl)
}

// Claims is the claim set shared by every token this codec issues.
//
// Required: iat, exp, sub, aud. Optional: iss, scope, jti. Extra carries
// domain claims (e.g. OIDC user info: id, username, email).
type Claims struct {
	Subject   string
	Audience  string
	Issuer    string
	Scope     string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

// Generate signs claims with key using HS256.
func Generate(key string, c Claims) (string, error) {
	mc := jwt.MapClaims{
		"iat": jwt.NewNumericDate(c.IssuedAt),
		"exp": jwt.NewNumericDate(c.ExpiresAt),
		"sub": c.Subject,
		"aud": c.Audience,
	}
	if c.Issuer != "" {
		mc["iss"] = c.Issuer
	}
	if c.Scope != "" {
		mc["scope"] = c.Scope
	}
	if c.JTI != "" {
		mc["jti"] = c.JTI
	}
	for k, v := range c.Extra {
		mc[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mc)
	return token.SignedString([]byte(key))
}

// Decode verifies the signature and required claims, distinguishing
// expiry from other forms of invalidity.
func Decode(key, tokenString string) (*Claims, error) {
	mc := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, mc, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalid
		}
		return []byte(key), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if !parsed.Valid {
		return nil, ErrInvalid
	}

	sub, _ := mc.GetSubject()
	aud, _ := mc.GetAudience()
	exp, errExp := mc.GetExpirationTime()
	iat, errIat := mc.GetIssuedAt()
	if sub == "" || len(aud) == 0 || errExp != nil || exp == nil || errIat != nil || iat == nil {
		return nil, ErrInvalid
	}

	out := &Claims{
		Subject:   sub,
		Audience:  aud[0],
		ExpiresAt: exp.Time,
		IssuedAt:  iat.Time,
		Extra:     map[string]any{},
	}
	if iss, ok := mc["iss"].(string); ok {
		out.Issuer = iss
	}
	if scope, ok := mc["scope"].(string); ok {
		out.Scope = scope
	}
	if jti, ok := mc["jti"].(string); ok {
		out.JTI = jti
	}
	for k, v := range mc {
		switch k {
		case "iat", "exp", "sub", "aud", "iss", "scope", "jti", "nbf":
			continue
		}
		out.Extra[k] = v
	}
	return out, nil
}
