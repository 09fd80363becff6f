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

package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// decodeBody JSON-decodes r.Body into dst, writing a PARAM_ERROR envelope
// and reporting false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		writeEnvelope(w, http.StatusBadRequest, StateParamError, "empty request body", nil)
		return false
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeEnvelope(w, http.StatusBadRequest, StateParamError, "malformed JSON body: "+err.Error(), nil)
		return false
	}
	return true
}

// decodeQueryLiteral coerces GET query arguments into a string-keyed map,
// parsing any value that looks like a JSON array or object literal
// (`"[...]"`, `"{...}"`) into its parsed form instead of leaving it as a
// raw string (spec.md §6: "the validator for POST+GET coerces bracketed
// strings ... into parsed literals before schema validation"). net/url
// has already percent-decoded the raw query by the time r.URL.Query()
// runs, so the percent-encoded bracket forms the original source handled
// explicitly collapse to the same plain-bracket case here.
func decodeQueryLiteral(r *http.Request) map[string]any {
	out := make(map[string]any, len(r.URL.Query()))
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		v := values[0]
		out[key] = literalOrString(v)
	}
	return out
}

func literalOrString(v string) any {
	trimmed := strings.TrimSpace(v)
	looksBracketed := (strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) ||
		(strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}"))
	if !looksBracketed {
		return v
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return v
	}
	return parsed
}
