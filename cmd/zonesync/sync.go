// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"zonesync/pkg/bulk"
	"zonesync/pkg/config"
	"zonesync/pkg/util"

	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// SyncCmd runs one bulk sync from the command line
type SyncCmd struct {
	Token     string
	Name      string
	Subdomain string
	IP        string
}

var syncCommand SyncCmd

func init() {
	cmd := &cobra.Command{
		Use:   "sync --subdomain NAME --ip ADDRESS [--token TOKEN]",
		Short: "Apply a record to every zone of an account",
		Long: `Creates or updates the A record for a subdomain in every zone the
Cloudflare API token can reach. Use @ for the zone apex and * for a
wildcard. The token may be given as file:///path or env://VAR, and defaults
to the CLOUDFLARE_API_TOKEN environment variable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return syncCommand.Run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	rootCommand.cobraCommand.AddCommand(cmd)

	cmd.Flags().StringVar(&syncCommand.Token, "token", "", "Cloudflare API token")
	cmd.Flags().StringVar(&syncCommand.Name, "name", "cli", "Label for the token in logs")
	cmd.Flags().StringVar(&syncCommand.Subdomain, "subdomain", "", "Subdomain to create (@ for root, * for wildcard)")
	cmd.Flags().StringVar(&syncCommand.IP, "ip", "", "Public IPv4 address")
	cmd.MarkFlagRequired("subdomain")
	cmd.MarkFlagRequired("ip")
}

func (c *SyncCmd) Run(parent context.Context, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, _, err := rootCommand.LoadConfig()
	if err != nil {
		return err
	}

	token := c.Token
	if token == "" {
		token = config.GetEnvVar("CLOUDFLARE_API_TOKEN", "")
	}
	token = util.ReadSecretValue(token)
	if token == "" {
		return fmt.Errorf("no API token: use --token or CLOUDFLARE_API_TOKEN")
	}

	req := bulk.Request{
		Subdomain:  c.Subdomain,
		IP:         c.IP,
		Credential: bulk.Credential{ID: "cli", Name: c.Name, Token: token},
	}
	if err := req.Validate(); err != nil {
		return err
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	observer := bulk.ObserverFuncs{
		Progress: func(p bulk.Progress) {
			fmt.Fprintf(out, "[%5.1f%%] %d/%d processed, %d succeeded, %d failed\n",
				p.Percent(), p.Processed, p.Total, p.Succeeded, p.Failed)
		},
		Results: func(lines []string) {
			fmt.Fprintln(out, strings.Join(lines, "\n"))
		},
	}

	result, err := engine.Run(ctx, req, observer)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, result.Summary())

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d zones failed", result.Failed, result.Total)
	}
	return nil
}
