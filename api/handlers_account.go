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
	"errors"
	"net/http"

	"github.com/oauthhub/authhub/user"
)

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeEnvelope(w, http.StatusBadRequest, StateParamError, "username and password are required", nil)
		return
	}

	_, err := s.users.Register(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		if errors.Is(err, user.ErrPartialSuccess) {
			writePartial(w, nil)
			return
		}
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	token, err := s.users.Login(r.Context(), user.KindUser, req.Username, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "Authorization",
		Value:    token,
		Path:     "/",
		MaxAge:   int(user.UserTokenTTL.Seconds()),
		HttpOnly: true,
	})
	writeOK(w, map[string]string{"user_token": token})
}

func (s *Server) handleManagerLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	token, err := s.users.Login(r.Context(), user.KindAdmin, req.Username, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeOK(w, map[string]string{"user_token": bearerPrefix + token})
}

// handleLogout fans single-logout notifications out (end-user session) or
// simply clears the cached token (admin session), then 302s to the
// caller's redirect_uri (spec.md §4.8).
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	username := usernameFromContext(r.Context())
	isAdmin := isAdminFromContext(r.Context())

	if isAdmin {
		if err := s.users.Logout(r.Context(), user.KindAdmin, username); err != nil {
			writeErr(w, err)
			return
		}
	} else {
		if err := s.users.ApplicationLogout(r.Context(), username); err != nil && !errors.Is(err, user.ErrPartialSuccess) {
			writeErr(w, err)
			return
		}
		if err := s.users.Logout(r.Context(), user.KindUser, username); err != nil {
			writeErr(w, err)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "Authorization", Value: "", Path: "/", MaxAge: -1})
	}

	redirectURI := r.URL.Query().Get("redirect_uri")
	if redirectURI == "" {
		writeOK(w, nil)
		return
	}
	http.Redirect(w, r, redirectURI, http.StatusFound)
}

type resetPasswordRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	actingAdmin := usernameFromContext(r.Context())
	if err := s.users.ResetPassword(r.Context(), actingAdmin, req.Username); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}
