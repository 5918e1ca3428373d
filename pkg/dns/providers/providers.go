// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

// Package providers imports all available DNS providers
package providers

import (
	"zonesync/pkg/dns/providers/cloudflare"
	"zonesync/pkg/log"

	"sync"
)

var registerOnce sync.Once

// RegisterProviders registers all DNS providers. Safe to call more than once.
func RegisterProviders() {
	registerOnce.Do(func() {
		log.Debug("[dns/providers] Registering DNS providers")
		cloudflare.Register()
		log.Debug("[dns/providers] DNS provider registration complete")
	})
}
