// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"zonesync/pkg/api"
	"zonesync/pkg/bot"
	"zonesync/pkg/config"
	"zonesync/pkg/log"
	"zonesync/pkg/outbox"
	"zonesync/pkg/session"
	"zonesync/pkg/telegram"

	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// ServeCmd runs the Telegram bot
type ServeCmd struct {
	NoWatch bool
}

var serve ServeCmd

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Long: `Runs the bot. Updates are received through a webhook when
api.domain (WEBHOOK_DOMAIN) is set, and by long polling otherwise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve.Run(cmd.Context())
		},
	}

	rootCommand.cobraCommand.AddCommand(cmd)

	cmd.Flags().BoolVar(&serve.NoWatch, "no-watch", false, "Do not reload the configuration file when it changes")
}

func (c *ServeCmd) Run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, configPath, err := rootCommand.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	printBanner()

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	store, err := session.Open(cfg.General.SessionFile(), "")
	if err != nil {
		return err
	}
	log.Verbose("[session] Loaded %d sessions from %s", store.Len(), store.Path())

	timeout, err := config.ParseDuration(cfg.Telegram.Timeout, telegram.DefaultTimeout)
	if err != nil {
		return err
	}
	client, err := telegram.New(cfg.Telegram.BotToken, telegram.Options{
		APIURL:   cfg.Telegram.APIURL,
		Timeout:  timeout,
		LogLevel: cfg.Telegram.LogLevel,
	})
	if err != nil {
		return err
	}

	sendDelay, err := config.ParseDuration(cfg.Telegram.SendDelay, outbox.DefaultSendDelay)
	if err != nil {
		return err
	}
	if sendDelay == 0 {
		sendDelay = -1
	}
	out := outbox.New(client, sendDelay, cfg.Telegram.LogLevel)

	controller := bot.New(client, store, engine, out, bot.Options{
		AdminPassword:    cfg.General.AdminPassword,
		SuccessAnimation: cfg.Telegram.SuccessAnimation,
		LogLevel:         cfg.General.LogLevel,
	})

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	username, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach the Bot API: %w", err)
	}
	log.Info("[telegram] Connected as @%s", username)

	if configPath != "" && !c.NoWatch {
		go func() {
			err := config.Watch(ctx, configPath, func(updated *config.ConfigFile) {
				if err := config.ApplyLoggingConfig(updated); err != nil {
					log.Error("[config] Failed to apply logging settings: %v", err)
				}
				if updated.General.AdminPassword != "" {
					controller.SetAdminPassword(updated.General.AdminPassword)
				}
				controller.SetSuccessAnimation(updated.Telegram.SuccessAnimation)
			})
			if err != nil {
				log.Error("[config] Configuration watch stopped: %v", err)
			}
		}()
	}

	if cfg.API.WebhookEnabled() {
		err = runWebhook(ctx, cfg, client, controller)
	} else {
		err = runPolling(ctx, cfg, client, controller)
	}

	log.Info("Shutting down zonesync")
	controller.Shutdown()
	out.Wait()
	return err
}

func runWebhook(ctx context.Context, cfg *config.ConfigFile, client *telegram.Client, handler telegram.Handler) error {
	url := cfg.API.WebhookURL()
	if err := client.SetWebhook(ctx, url, cfg.API.SecretToken); err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}
	log.Info("[telegram] Webhook registered at %s", url)
	if cfg.API.SecretToken == "" {
		log.Warn("[api] No secret_token configured - webhook requests are not authenticated")
	}

	return api.NewServer(&cfg.API, handler).ListenAndServe(ctx)
}

func runPolling(ctx context.Context, cfg *config.ConfigFile, client *telegram.Client, handler telegram.Handler) error {
	pollTimeout, err := config.ParseDuration(cfg.Telegram.PollTimeout, telegram.DefaultPollTimeout)
	if err != nil {
		return err
	}

	// getUpdates is refused while a webhook is registered
	if err := client.DeleteWebhook(ctx); err != nil {
		log.Warn("[telegram] Failed to remove webhook: %v", err)
	}

	err = client.Poll(ctx, handler, pollTimeout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
