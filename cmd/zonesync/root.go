// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"zonesync/pkg/bulk"
	"zonesync/pkg/config"
	"zonesync/pkg/dns"
	"zonesync/pkg/dns/providers"
	"zonesync/pkg/log"
	"zonesync/pkg/version"

	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// RootCmd holds the flags shared by every command
type RootCmd struct {
	configFile string
	envFile    string
	logLevel   string

	cobraCommand *cobra.Command
}

var rootCommand = RootCmd{
	cobraCommand: &cobra.Command{
		Use:   "zonesync",
		Short: "Bulk DNS record management over Telegram",
		Long: `zonesync applies one subdomain and IPv4 address to every zone a
Cloudflare API token can reach, driven from a Telegram conversation or
from the command line.`,
		SilenceUsage: true,
	},
}

func init() {
	log.Initialize("info", true)

	cmd := rootCommand.cobraCommand
	cmd.PersistentFlags().StringVarP(&rootCommand.configFile, "config", "c", "", "Path to configuration file (default: "+config.DefaultConfigFile+" in the search path)")
	cmd.PersistentFlags().StringVar(&rootCommand.envFile, "env-file", ".env", "Environment file loaded before the configuration")
	cmd.PersistentFlags().StringVar(&rootCommand.logLevel, "log-level", "", "Set log level (overrides config/env)")
}

// Execute runs the command line
func Execute() {
	if err := rootCommand.cobraCommand.Execute(); err != nil {
		exitWithError(err)
	}
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "\n%v\n", err)
	os.Exit(1)
}

// IsRunningUnderSystemd reports whether the process was started by systemd
func IsRunningUnderSystemd() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("JOURNAL_STREAM") != ""
}

func printBanner() {
	if IsRunningUnderSystemd() {
		return
	}
	fmt.Printf("Starting zonesync version: %s\n", version.String(false))
	fmt.Printf("© 2025 Nfrastack https://nfrastack.com - BSD-3-Clause License\n")
	fmt.Println()
}

// LoadConfig loads the .env file and the configuration, then applies the
// logging settings. The returned path is empty when no config file was found
// and only the environment is used.
func (r *RootCmd) LoadConfig() (*config.ConfigFile, string, error) {
	if err := config.LoadDotEnv(r.envFile); err != nil {
		return nil, "", fmt.Errorf("failed to load %s: %w", r.envFile, err)
	}

	path, err := config.FindConfigFile(r.configFile)
	if err != nil {
		if r.configFile != "" || !errors.Is(err, config.ErrConfigNotFound) {
			return nil, "", err
		}
		path = ""
	}

	cfg, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, "", err
	}
	if r.logLevel != "" {
		cfg.General.LogLevel = r.logLevel
	}
	if IsRunningUnderSystemd() && os.Getenv("LOG_TIMESTAMPS") == "" {
		// journald stamps every line already
		disabled := false
		cfg.General.LogTimestamps = &disabled
	}
	if err := config.ApplyLoggingConfig(cfg); err != nil {
		return nil, "", err
	}

	if path != "" {
		log.Info("[config] Using config file: %s", path)
	} else {
		log.Info("[config] No config file found, using environment only")
	}
	log.Debug("[config] Logger configured with level: %s", cfg.General.LogLevel)
	return cfg, path, nil
}

// newEngine builds the sync engine from the cloudflare and sync sections
func newEngine(cfg *config.ConfigFile) (*bulk.Engine, error) {
	providers.RegisterProviders()
	provider, err := dns.GetProvider("cloudflare", cfg.Cloudflare.Options())
	if err != nil {
		return nil, err
	}

	opts := bulk.Options{
		BatchSize:  cfg.Sync.BatchSize,
		FlushEvery: cfg.Sync.FlushEvery,
		LogLevel:   cfg.Sync.LogLevel,
	}
	if opts.ItemTimeout, err = config.ParseDuration(cfg.Sync.ItemTimeout, bulk.DefaultItemTimeout); err != nil {
		return nil, fmt.Errorf("sync.item_timeout: %w", err)
	}
	if opts.BatchDelay, err = config.ParseDuration(cfg.Sync.BatchDelay, bulk.DefaultBatchDelay); err != nil {
		return nil, fmt.Errorf("sync.batch_delay: %w", err)
	}
	if opts.ProgressInterval, err = config.ParseDuration(cfg.Sync.ProgressInterval, bulk.DefaultProgressInterval); err != nil {
		return nil, fmt.Errorf("sync.progress_interval: %w", err)
	}
	return bulk.New(provider, opts), nil
}
