// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"zonesync/pkg/log"

	"os"
	"strconv"
	"strings"

	"github.com/subosito/gotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return err
	}
	log.Debug("[config/env] Loaded environment from %s", path)
	return nil
}

// LoadFromEnvironment overrides file values with the environment variables
// the bot has always been configured with
func LoadFromEnvironment(cfg *ConfigFile) {
	overrides := []struct {
		key    string
		target *string
	}{
		{"BOT_TOKEN", &cfg.Telegram.BotToken},
		{"ADMIN_PASSWORD", &cfg.General.AdminPassword},
		{"WEBHOOK_DOMAIN", &cfg.API.Domain},
		{"WEBHOOK_PORT", &cfg.API.Port},
		{"WEBHOOK_PATH", &cfg.API.Path},
		{"SECRET_TOKEN", &cfg.API.SecretToken},
		{"LOG_LEVEL", &cfg.General.LogLevel},
		{"LOG_FILE", &cfg.General.LogFile},
		{"DATA_DIR", &cfg.General.DataDir},
		{"SUCCESS_ANIMATION", &cfg.Telegram.SuccessAnimation},
	}
	for _, o := range overrides {
		if value := GetEnvVar(o.key, ""); value != "" {
			*o.target = value
			log.Trace("[config/env] %s set from environment", o.key)
		}
	}

	if os.Getenv("LOG_TIMESTAMPS") != "" {
		enabled := EnvToBool("LOG_TIMESTAMPS", true)
		cfg.General.LogTimestamps = &enabled
	}

	log.Debug("[config/env] Applied environment overrides")
}

// GetEnvVar gets an environment variable with a default value
func GetEnvVar(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

// EnvToBool converts an environment variable to a boolean value
// Supports "true", "false", "1", "0", "yes", "no" (case-insensitive)
func EnvToBool(key string, defaultValue bool) bool {
	switch strings.ToLower(GetEnvVar(key, "")) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// EnvToInt converts an environment variable to an integer value
func EnvToInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(GetEnvVar(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// ApplyLoggingConfig configures the default logger from the effective settings
func ApplyLoggingConfig(cfg *ConfigFile) error {
	timestamps := true
	if cfg.General.LogTimestamps != nil {
		timestamps = *cfg.General.LogTimestamps
	}
	logger := log.GetLogger()
	logger.SetLevel(cfg.General.LogLevel)
	logger.SetShowTimestamps(timestamps)
	if cfg.General.LogFile != "" {
		return logger.SetLogFile(cfg.General.LogFile)
	}
	return nil
}
