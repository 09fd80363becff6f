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

package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes an HMAC-SHA256 tag over value using key, hex-encoded.
//
// Purpose: Makes a continuation value (e.g. a redirect URI carried
// through a login/consent round trip) tamper-evident.
// Domain: OAuth2
// Invariants: Verify(key, value, Sign(key, value)) is always true.
// Audited: No
// Errors: None
func Sign(key, value string) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether tag is the HMAC-SHA256 signature of value under key.
//
// Purpose: Validates a continuation value returned by the client was not altered.
// Domain: OAuth2
// Audited: No
// Errors: None
func Verify(key, value, tag string) bool {
	expected := Sign(key, value)
	return hmac.Equal([]byte(expected), []byte(tag))
}
