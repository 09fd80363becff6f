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

// Package config loads server configuration from a TOML file, then layers
// environment variable and CLI flag overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level server configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Auth     AuthConfig     `toml:"auth"`
	Password PasswordConfig `toml:"password"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	ShutdownTimeout int    `toml:"shutdown_timeout"`
}

// DatabaseConfig controls the PostgreSQL connection.
type DatabaseConfig struct {
	Host         string `toml:"host"`
	Port         string `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	Database     string `toml:"database"`
	SSLMode      string `toml:"ssl_mode"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// RedisConfig controls the session cache connection.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// AuthConfig controls token minting.
type AuthConfig struct {
	JWTSecret                string `toml:"jwt_secret"`
	TokenExpiresIn           int64  `toml:"token_expires_in"`
	RefreshTokenExpiresIn    int64  `toml:"refresh_token_expires_in"`
	IDTokenExpiresIn         int64  `toml:"id_token_expires_in"`
	AuthorizationCodeExpires int64  `toml:"authorization_code_expires_in"`
}

// PasswordConfig tunes the Argon2id cost parameters behind the `password`
// package (SPEC_FULL.md §4.11). The teacher's NewHasher constructor
// already takes these as plain arguments; this just gives operators a
// config surface instead of hardcoding them at the call site.
type PasswordConfig struct {
	Memory      uint32 `toml:"memory"`
	Iterations  uint32 `toml:"iterations"`
	Parallelism uint8  `toml:"parallelism"`
	SaltLength  uint32 `toml:"salt_length"`
	KeyLength   uint32 `toml:"key_length"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10,
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         "5432",
			User:         "oauthhub",
			Database:     "oauthhub",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Auth: AuthConfig{
			TokenExpiresIn:           7 * 24 * 60 * 60,
			RefreshTokenExpiresIn:    30 * 24 * 60 * 60,
			IDTokenExpiresIn:         7 * 24 * 60 * 60,
			AuthorizationCodeExpires: 600,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Iterations:  3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
	}
}

// Load reads configuration with priority: defaults → file → env vars → flags.
func Load(configPath string, flags map[string]string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = "oauthhub.toml"
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyFlags(cfg, flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1, got %d", c.Database.MaxOpenConns)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters, got %d", len(c.Auth.JWTSecret))
	}
	if c.Auth.TokenExpiresIn < 1 {
		return fmt.Errorf("auth.token_expires_in must be positive, got %d", c.Auth.TokenExpiresIn)
	}
	if c.Auth.RefreshTokenExpiresIn < 1 {
		return fmt.Errorf("auth.refresh_token_expires_in must be positive, got %d", c.Auth.RefreshTokenExpiresIn)
	}
	return nil
}

func envInt(name string, dest *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q is not an integer", name, v)
	}
	*dest = n
	return nil
}

func envInt64(name string, dest *int64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q is not an integer", name, v)
	}
	*dest = n
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("OAUTHHUB_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if err := envInt("OAUTHHUB_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if v := os.Getenv("OAUTHHUB_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("OAUTHHUB_DB_PORT"); v != "" {
		cfg.Database.Port = v
	}
	if v := os.Getenv("OAUTHHUB_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("OAUTHHUB_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("OAUTHHUB_DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("OAUTHHUB_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("OAUTHHUB_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("OAUTHHUB_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if err := envInt64("OAUTHHUB_TOKEN_EXPIRES_IN", &cfg.Auth.TokenExpiresIn); err != nil {
		return err
	}
	if err := envInt64("OAUTHHUB_REFRESH_TOKEN_EXPIRES_IN", &cfg.Auth.RefreshTokenExpiresIn); err != nil {
		return err
	}
	return nil
}

func applyFlags(cfg *Config, flags map[string]string) {
	if flags == nil {
		return
	}
	if v, ok := flags["host"]; ok && v != "" {
		cfg.Server.Host = v
	}
	if v, ok := flags["port"]; ok && v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v, ok := flags["jwt-secret"]; ok && v != "" {
		cfg.Auth.JWTSecret = v
	}
}
