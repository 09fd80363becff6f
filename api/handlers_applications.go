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
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oauthhub/authhub/client"
)

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	owner := usernameFromContext(r.Context())
	apps, err := s.clients.ListByOwner(r.Context(), owner)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"number": len(apps), "applications": apps})
}

func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var meta client.Metadata
	if !decodeBody(w, r, &meta) {
		return
	}
	owner := usernameFromContext(r.Context())

	c, err := s.clients.Create(r.Context(), owner, meta)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, c)
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	owner := usernameFromContext(r.Context())
	clientID := chi.URLParam(r, "client_id")

	c, err := s.clients.Get(r.Context(), owner, clientID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, c)
}

func (s *Server) handleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	var meta client.Metadata
	if !decodeBody(w, r, &meta) {
		return
	}
	owner := usernameFromContext(r.Context())
	clientID := chi.URLParam(r, "client_id")

	c, err := s.clients.Update(r.Context(), owner, clientID, meta)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, c)
}

func (s *Server) handleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	owner := usernameFromContext(r.Context())
	clientID := chi.URLParam(r, "client_id")

	if err := s.clients.Delete(r.Context(), owner, clientID); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}
