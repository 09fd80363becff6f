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
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/oauthhub/authhub/client"
	"github.com/oauthhub/authhub/grant"
	"github.com/oauthhub/authhub/sessioncache"
	"github.com/oauthhub/authhub/user"
)

// Server holds every dependency the HTTP Surface (C8) calls into.
//
// Purpose: Wires the Account Manager, Client Registry, and Grant Engine to
// a chi.Router.
// Domain: OAuth2
type Server struct {
	users   *user.Service
	clients *client.Service
	engine  *grant.Engine
	cache   *sessioncache.Store
	jwtKey  string
	logger  *slog.Logger
}

// NewServer creates the HTTP Surface over the given services. jwtKey is the
// process-wide shared secret that signs user/admin session tokens
// (spec.md §6 "Process-wide shared secret").
func NewServer(users *user.Service, clients *client.Service, engine *grant.Engine, cache *sessioncache.Store, jwtKey string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{users: users, clients: clients, engine: engine, cache: cache, jwtKey: jwtKey, logger: logger}
}

// Routes returns a chi.Router with every endpoint of spec.md §6 mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/oauth2", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/manager-login", s.handleManagerLogin)
		r.With(s.requireSession).Get("/logout", s.handleLogout)
		r.With(s.requireAdmin).Post("/password", s.handleResetPassword)

		r.With(s.requireAdmin).Get("/applications", s.handleListApplications)
		r.With(s.requireAdmin).Post("/applications/register", s.handleCreateApplication)
		r.Route("/applications/{client_id}", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/", s.handleGetApplication)
			r.Put("/", s.handleUpdateApplication)
			r.Delete("/", s.handleDeleteApplication)
		})

		r.Get("/authorize", s.handleAuthorize)
		r.Get("/authorize/continue", s.handleAuthorizeContinue)
		r.Post("/token", s.handleToken)
		r.With(s.requireSession).Post("/revoke-token", s.handleRevokeToken)
		r.Post("/introspect", s.handleIntrospect)
		r.Post("/refresh-token", s.handleRefreshToken)
	})

	return r
}
