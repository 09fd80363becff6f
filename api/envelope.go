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
)

// Envelope is the uniform response body every handler writes (spec.md §6).
type Envelope struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, httpStatus int, code, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(Envelope{Code: code, Message: message, Data: data})
}

func writeOK(w http.ResponseWriter, data any) {
	writeEnvelope(w, http.StatusOK, StateSucceed, "", data)
}

func writePartial(w http.ResponseWriter, data any) {
	writeEnvelope(w, http.StatusOK, StatePartialSucceed, "partial success: one or more callbacks failed", data)
}

// writeErr maps err to a response code via codeFor and writes the envelope.
func writeErr(w http.ResponseWriter, err error) {
	code, httpStatus := codeFor(err)
	writeEnvelope(w, httpStatus, code, err.Error(), nil)
}
