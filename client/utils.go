// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"crypto/rand"
	"errors"
	"math/big"
	"sort"
	"strings"
)

const saltAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// genSalt returns a random alphanumeric string of the given length,
// mirroring the original source's werkzeug.security.gen_salt.
func genSalt(length int) string {
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(saltAlphabet))))
		if err != nil {
			panic(err)
		}
		b[i] = saltAlphabet[n.Int64()]
	}
	return string(b)
}

// GenerateClientID returns a new 24-character client_id salt (spec.md §3).
func GenerateClientID() string {
	return genSalt(24)
}

// GenerateClientSecret returns a new 48-character client_secret salt (spec.md §3).
//
// The secret is stored and used in the clear: it signs the client's OAuth2
// access/refresh/ID tokens directly (spec.md §6), so it cannot be a
// one-way hash.
func GenerateClientSecret() string {
	return genSalt(48)
}

// Validation errors
var (
	ErrInvalidRedirectURI = errors.New("invalid redirect_uri format")
	ErrInvalidClientURI   = errors.New("invalid client_uri format")
)

// joinSorted sorts values and joins them into a space-delimited scope string.
func joinSorted(values []string) string {
	sort.Strings(values)
	return strings.Join(values, " ")
}
