// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package config loads runtime configuration for the nstree command
// binaries from environment variables, the way the teacher's gateway
// loads its own: a .env file is sourced best-effort, environment
// variables take priority, and defaults fill in the rest.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures the runtime configuration shared by the cmd/
// binaries: how verbose to log, and default namespace- and
// diskspace-quota caps (-1 meaning unlimited). Only the log level is
// read by a cmd/ binary; no code applies the quota caps.
type Config struct {
	LogLevel slog.Level

	DefaultNSQuota int64
	DefaultDSQuota int64
}

const (
	defaultLogLevel = "info"
	defaultNSQuota  = int64(-1)
	defaultDSQuota  = int64(-1)
)

// Load reads configuration from the environment, sourcing a .env file
// first if one is present in the working directory or either of its
// two parents. Missing settings fall back to defaults; a setting that
// is present but malformed (an unknown log level, a non-integer quota)
// makes Load return an error.
func Load() (Config, error) {
	_ = godotenv.Load(".env", "../.env", "../../.env")

	cfg := Config{
		DefaultNSQuota: defaultNSQuota,
		DefaultDSQuota: defaultDSQuota,
	}

	level, err := parseLogLevel(firstNonEmpty(os.Getenv("NSTREE_LOG_LEVEL"), defaultLogLevel))
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	if raw := strings.TrimSpace(os.Getenv("NSTREE_DEFAULT_NS_QUOTA")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid NSTREE_DEFAULT_NS_QUOTA: %w", err)
		}
		cfg.DefaultNSQuota = v
	}
	if raw := strings.TrimSpace(os.Getenv("NSTREE_DEFAULT_DS_QUOTA")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid NSTREE_DEFAULT_DS_QUOTA: %w", err)
		}
		cfg.DefaultDSQuota = v
	}

	return cfg, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid NSTREE_LOG_LEVEL %q", raw)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
