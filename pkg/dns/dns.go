// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

// Package dns provides DNS provider interfaces and record naming helpers
package dns

import (
	"zonesync/pkg/log"

	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	mdns "github.com/miekg/dns"
)

// Zone is a DNS zone owned by the account behind a credential
type Zone struct {
	ID   string
	Name string
}

// Provider defines the interface for all DNS providers
type Provider interface {
	// ListZones returns every active zone reachable with the token
	ListZones(ctx context.Context, token string) ([]Zone, error)

	// UpsertRecord creates or updates the address record for subdomain in
	// zoneName. It reports false when the zone is unknown or the provider
	// rejected the change.
	UpsertRecord(ctx context.Context, token, zoneName, subdomain, ip string) (bool, error)
}

// ProviderFactory is a function that creates a new DNS provider
type ProviderFactory func(options map[string]string) (Provider, error)

var (
	providersMu sync.RWMutex
	providers   = make(map[string]ProviderFactory)
)

// RegisterProvider registers a new DNS provider
func RegisterProvider(name string, factory ProviderFactory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	if factory == nil {
		log.Fatal("[dns] RegisterProvider factory is nil")
	}
	if _, dup := providers[name]; dup {
		log.Fatal("[dns] RegisterProvider called twice for provider %s", name)
	}
	log.Verbose("[dns] Registering DNS provider: '%s'", name)
	providers[name] = factory
}

// GetProvider returns a provider by name
func GetProvider(name string, options map[string]string) (Provider, error) {
	providersMu.RLock()
	factory, ok := providers[name]
	providersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("[dns] DNS provider not found: %s (available: %v)", name, AvailableProviders())
	}
	return factory(options)
}

// AvailableProviders lists registered provider names
func AvailableProviders() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RecordName maps a subdomain pattern onto a zone:
// "@" is the bare zone, "*" and "*.*" are wildcards, anything else is
// prefixed. The result is lowercase.
func RecordName(subdomain, zone string) string {
	subdomain = strings.ToLower(subdomain)
	zone = strings.ToLower(zone)
	switch subdomain {
	case "@":
		return zone
	case "*":
		return "*." + zone
	case "*.*":
		return "*.*." + zone
	default:
		return subdomain + "." + zone
	}
}

// SearchName is the name used to look up existing records: the first
// wildcard label is dropped.
func SearchName(recordName string) string {
	return strings.Replace(recordName, "*.", "", 1)
}

// MatchesExisting reports whether an existing record name counts as the
// record we are about to write. Wildcard targets also accept "*." plus the
// search name. This is string matching, not a uniqueness guarantee.
func MatchesExisting(existingName, recordName string) bool {
	if existingName == recordName {
		return true
	}
	return strings.Contains(recordName, "*") && existingName == "*."+SearchName(recordName)
}

// ValidRecordName reports whether name is a syntactically valid DNS name
func ValidRecordName(name string) bool {
	if name == "" || strings.Contains(name, "..") {
		return false
	}
	_, ok := mdns.IsDomainName(mdns.Fqdn(name))
	return ok
}
