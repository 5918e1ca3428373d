// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"zonesync/pkg/log"
	"zonesync/pkg/util"

	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up when no path is given
const DefaultConfigFile = "zonesync.yml"

// ConfigSearchPaths are the directories searched for a relative config file
var ConfigSearchPaths = []string{".", "./config", "/etc/zonesync"}

// SecretRegex matches references like ${ENV_VAR} or ${file:/path}
var SecretRegex = regexp.MustCompile(`\${([^}]+)}`)

var ErrConfigNotFound = errors.New("configuration file not found")

type ConfigFile struct {
	General    GeneralConfig    `yaml:"general"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Cloudflare CloudflareConfig `yaml:"cloudflare"`
	Sync       SyncConfig       `yaml:"sync"`
	API        APIConfig        `yaml:"api"`
}

type GeneralConfig struct {
	LogLevel      string `yaml:"log_level"`
	LogTimestamps *bool  `yaml:"log_timestamps"`
	LogFile       string `yaml:"log_file"`
	DataDir       string `yaml:"data_dir"`
	AdminPassword string `yaml:"admin_password"`
}

type TelegramConfig struct {
	BotToken         string `yaml:"bot_token"`
	APIURL           string `yaml:"api_url"`
	Timeout          string `yaml:"timeout"`
	PollTimeout      string `yaml:"poll_timeout"`
	SendDelay        string `yaml:"send_delay"`
	SuccessAnimation string `yaml:"success_animation"`
	LogLevel         string `yaml:"log_level"`
}

// CloudflareConfig carries provider options, passed through as strings
type CloudflareConfig struct {
	APIURL    string `yaml:"api_url"`
	RateLimit string `yaml:"rate_limit"`
	Retries   string `yaml:"retries"`
	Timeout   string `yaml:"timeout"`
	LogLevel  string `yaml:"log_level"`
}

type SyncConfig struct {
	BatchSize        int    `yaml:"batch_size"`
	ItemTimeout      string `yaml:"item_timeout"`
	BatchDelay       string `yaml:"batch_delay"`
	ProgressInterval string `yaml:"progress_interval"`
	FlushEvery       int    `yaml:"flush_every"`
	LogLevel         string `yaml:"log_level"`
}

// APIConfig configures the webhook receiver. Without a domain the bot uses
// long polling and the server is not started.
type APIConfig struct {
	Domain      string        `yaml:"domain"`
	Listen      string        `yaml:"listen"`
	Port        string        `yaml:"port"`
	Path        string        `yaml:"path"`
	SecretToken string        `yaml:"secret_token"`
	TLS         *APITLSConfig `yaml:"tls"`
	LogLevel    string        `yaml:"log_level"`
}

// APITLSConfig defines TLS configuration for the webhook server
type APITLSConfig struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

// WebhookEnabled reports whether updates are delivered by webhook
func (a APIConfig) WebhookEnabled() bool {
	return a.Domain != ""
}

// WebhookURL is the public URL registered with setWebhook
func (a APIConfig) WebhookURL() string {
	domain := strings.TrimSuffix(a.Domain, "/")
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	return domain + a.Path
}

// Address is the local listen address
func (a APIConfig) Address() string {
	if strings.Contains(a.Listen, ":") {
		return a.Listen
	}
	return a.Listen + ":" + a.Port
}

// Options returns the provider options map
func (c CloudflareConfig) Options() map[string]string {
	options := make(map[string]string)
	for key, value := range map[string]string{
		"api_url":    c.APIURL,
		"rate_limit": c.RateLimit,
		"retries":    c.Retries,
		"timeout":    c.Timeout,
		"log_level":  c.LogLevel,
	} {
		if value != "" {
			options[key] = value
		}
	}
	return options
}

// SessionFile is the JSON session store inside the data directory
func (g GeneralConfig) SessionFile() string {
	if g.DataDir == "" {
		return ""
	}
	return filepath.Join(g.DataDir, "users.json")
}

// FindConfigFile resolves name against ConfigSearchPaths. Absolute paths and
// paths with a directory component are used as given.
func FindConfigFile(name string) (string, error) {
	if name == "" {
		name = DefaultConfigFile
	}
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, name)
		}
		return name, nil
	}

	for _, dir := range ConfigSearchPaths {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s (searched %s)", ErrConfigNotFound, name, strings.Join(ConfigSearchPaths, ", "))
}

// LoadConfigFile reads a YAML config, applies secret substitution, the
// environment overrides and the defaults. An empty path loads from the
// environment only.
func LoadConfigFile(path string) (*ConfigFile, error) {
	var cfg ConfigFile

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Debug("[config] Loading configuration from %s", path)

		processed := processConfigFileSecrets(string(data))
		if err := yaml.Unmarshal([]byte(processed), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	LoadFromEnvironment(&cfg)
	setConfigDefaults(&cfg)
	resolveSecrets(&cfg)

	return &cfg, nil
}

// Validate checks the settings required to run the bot
func (c *ConfigFile) Validate() error {
	if c.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token (BOT_TOKEN) is required")
	}
	if c.General.AdminPassword == "" {
		return errors.New("general.admin_password (ADMIN_PASSWORD) is required")
	}
	if c.API.WebhookEnabled() {
		if _, err := strconv.Atoi(c.API.Port); err != nil {
			return fmt.Errorf("invalid webhook port %q", c.API.Port)
		}
		if !strings.HasPrefix(c.API.Path, "/") {
			return fmt.Errorf("webhook path %q must start with /", c.API.Path)
		}
	}
	for name, value := range map[string]string{
		"telegram.timeout":       c.Telegram.Timeout,
		"telegram.poll_timeout":  c.Telegram.PollTimeout,
		"telegram.send_delay":    c.Telegram.SendDelay,
		"sync.item_timeout":      c.Sync.ItemTimeout,
		"sync.batch_delay":       c.Sync.BatchDelay,
		"sync.progress_interval": c.Sync.ProgressInterval,
	} {
		if _, err := ParseDuration(value, 0); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// setConfigDefaults sets default values for the configuration
func setConfigDefaults(cfg *ConfigFile) {
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogTimestamps == nil {
		enabled := true
		cfg.General.LogTimestamps = &enabled
	}
	if cfg.General.DataDir == "" {
		cfg.General.DataDir = "data"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = "8443"
	}
	if cfg.API.Path == "" {
		cfg.API.Path = "/telegram/webhook"
	}
}

// resolveSecrets expands file:// and env:// references in secret fields
func resolveSecrets(cfg *ConfigFile) {
	cfg.Telegram.BotToken = util.ReadSecretValue(cfg.Telegram.BotToken)
	cfg.General.AdminPassword = util.ReadSecretValue(cfg.General.AdminPassword)
	cfg.API.SecretToken = util.ReadSecretValue(cfg.API.SecretToken)
}

// processConfigFileSecrets replaces environment variable references in the config file
func processConfigFileSecrets(content string) string {
	return SecretRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]

		if strings.HasPrefix(varName, "file:") {
			filePath := strings.TrimPrefix(varName, "file:")
			fileData, err := os.ReadFile(filePath)
			if err != nil {
				log.Error("[config] Failed to read secret file %s: %v", filePath, err)
				return match
			}
			return strings.TrimSpace(string(fileData))
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// ParseDuration accepts Go durations ("1500ms") and bare numbers of seconds.
// An empty value returns def.
func ParseDuration(value string, def time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return d, nil
}
