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

// Command server wires every component of the authorization server
// together and serves the HTTP Surface (C8).
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oauthhub/authhub/api"
	"github.com/oauthhub/authhub/audit"
	"github.com/oauthhub/authhub/callback"
	"github.com/oauthhub/authhub/client"
	"github.com/oauthhub/authhub/config"
	"github.com/oauthhub/authhub/grant"
	"github.com/oauthhub/authhub/password"
	"github.com/oauthhub/authhub/sessioncache"
	"github.com/oauthhub/authhub/store/postgres"
	"github.com/oauthhub/authhub/user"
)

func main() {
	configPath := flag.String("config", "", "path to oauthhub.toml")
	host := flag.String("host", "", "override server.host")
	port := flag.String("port", "", "override server.port")
	jwtSecret := flag.String("jwt-secret", "", "override auth.jwt_secret")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath, map[string]string{
		"host":       *host,
		"port":       *port,
		"jwt-secret": *jwtSecret,
	})
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		logger.Error("connecting to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		logger.Error("running migrations", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	cache := sessioncache.New(rdb)

	hasher := password.NewHasherFromConfig(cfg.Password)

	auditLogger := audit.NewRepositoryLogger(postgres.NewAuditRepository(db))
	notifier := callback.New(10 * time.Second)
	loginRecords := postgres.NewLoginRecordRepository(db)

	clients := client.NewService(postgres.NewClientRepository(db), auditLogger)

	grantCfg := grant.Config{
		TokenExpiresIn:        time.Duration(cfg.Auth.TokenExpiresIn) * time.Second,
		RefreshTokenExpiresIn: time.Duration(cfg.Auth.RefreshTokenExpiresIn) * time.Second,
		IDTokenExpiresIn:      time.Duration(cfg.Auth.IDTokenExpiresIn) * time.Second,
	}
	users := postgres.NewUserRepository(db)
	engine := grant.NewEngine(
		clients,
		postgres.NewAuthorizationCodeRepository(db),
		postgres.NewTokenRepository(db),
		postgres.NewScopeGrantRepository(db),
		loginRecords,
		users,
		hasher,
		grantCfg,
	)

	userService := user.NewService(
		users,
		postgres.NewAdminRepository(db),
		hasher,
		auditLogger,
		clients,
		notifier,
		loginRecords,
		engine,
		cache,
		cfg.Auth.JWTSecret,
	)

	srv := api.NewServer(userService, clients, engine, cache, cfg.Auth.JWTSecret, logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler: srv.Routes(),
	}

	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", "error", err)
		os.Exit(1)
	}
}

