// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

// Package cloudflare provides a Cloudflare DNS provider implementation
package cloudflare

import (
	"zonesync/pkg/dns"
	"zonesync/pkg/log"
	"zonesync/pkg/util"
	"zonesync/pkg/version"

	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cloudflare/cloudflare-go"
)

const (
	zonesPerPage = 100
	recordType   = "A"
)

// Register this provider with the DNS registry
func Register() {
	dns.RegisterProvider("cloudflare", NewProvider)
}

// Provider implements the DNS provider interface for Cloudflare. One API
// client is kept per credential so concurrent upserts share its rate limiter.
type Provider struct {
	baseURL   string
	rateLimit float64
	retries   int
	timeout   time.Duration
	logger    *log.ScopedLogger

	mu      sync.Mutex
	clients map[string]*cloudflare.API
}

// NewProvider creates a new Cloudflare DNS provider from string options:
// api_url, rate_limit (requests per second), retries, timeout (seconds), log_level
func NewProvider(options map[string]string) (dns.Provider, error) {
	return New(options)
}

// New is NewProvider returning the concrete type
func New(options map[string]string) (*Provider, error) {
	p := &Provider{
		baseURL:   options["api_url"],
		rateLimit: 4,
		retries:   3,
		timeout:   30 * time.Second,
		logger:    log.NewScopedLogger("[dns/cloudflare]", options["log_level"]),
		clients:   make(map[string]*cloudflare.API),
	}

	if v := options["rate_limit"]; v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			return nil, fmt.Errorf("cloudflare: invalid rate_limit %q", v)
		}
		p.rateLimit = r
	}
	if v := options["retries"]; v != "" {
		r, err := strconv.Atoi(v)
		if err != nil || r < 0 {
			return nil, fmt.Errorf("cloudflare: invalid retries %q", v)
		}
		p.retries = r
	}
	if v := options["timeout"]; v != "" {
		t, err := strconv.Atoi(v)
		if err != nil || t <= 0 {
			return nil, fmt.Errorf("cloudflare: invalid timeout %q", v)
		}
		p.timeout = time.Duration(t) * time.Second
	}

	p.logger.Debug("Cloudflare DNS provider initialized (rate_limit: %.1f/s, retries: %d, timeout: %v)", p.rateLimit, p.retries, p.timeout)
	return p, nil
}

// client returns the API client for a token, creating it on first use
func (p *Provider) client(token string) (*cloudflare.API, error) {
	token = util.ReadSecretValue(token)
	if token == "" {
		return nil, fmt.Errorf("cloudflare: empty API token")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if api, ok := p.clients[token]; ok {
		return api, nil
	}

	opts := []cloudflare.Option{
		cloudflare.HTTPClient(&http.Client{Timeout: p.timeout}),
		cloudflare.UsingRateLimit(p.rateLimit),
		cloudflare.UsingRetryPolicy(p.retries, 1, 30),
		cloudflare.UserAgent(version.UserAgent()),
	}
	if p.baseURL != "" {
		opts = append(opts, cloudflare.BaseURL(strings.TrimSuffix(p.baseURL, "/")))
	}

	api, err := cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: failed to create client: %w", err)
	}
	p.logger.Trace("Created API client for token %s", util.MaskSecret(token))
	p.clients[token] = api
	return api, nil
}

// ListZones pages through the active zones of the account, newest first.
//
// A failed page ends the listing and the zones gathered so far are returned
// without an error.
func (p *Provider) ListZones(ctx context.Context, token string) ([]dns.Zone, error) {
	api, err := p.client(token)
	if err != nil {
		return nil, err
	}

	var zones []dns.Zone
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("direction", "desc")
		params.Set("per_page", strconv.Itoa(zonesPerPage))
		params.Set("page", strconv.Itoa(page))
		params.Set("status", "active")

		raw, err := api.Raw(ctx, http.MethodGet, "/zones?"+params.Encode(), nil, nil)
		if err != nil {
			p.logger.Error("Failed getting zones from Cloudflare (page %d): %v", page, err)
			break
		}
		if !raw.Success {
			p.logger.Error("Failed getting zones from Cloudflare (page %d): %v", page, raw.Errors)
			break
		}

		var result []cloudflare.Zone
		if err := json.Unmarshal(raw.Result, &result); err != nil {
			p.logger.Error("Failed decoding zones page %d: %v", page, err)
			break
		}
		for _, z := range result {
			zones = append(zones, dns.Zone{ID: z.ID, Name: z.Name})
		}

		totalPages := 0
		if raw.ResultInfo != nil {
			totalPages = raw.ResultInfo.TotalPages
		}
		p.logger.Trace("Zones page %d/%d: %d zones", page, totalPages, len(result))
		if page >= totalPages {
			break
		}
	}

	p.logger.Debug("Listed %d zones", len(zones))
	return zones, nil
}

// zoneID resolves a zone name to its identifier; "" means not found
func (p *Provider) zoneID(ctx context.Context, api *cloudflare.API, zoneName string) (string, error) {
	resp, err := api.ListZonesContext(ctx, cloudflare.WithZoneFilters(zoneName, "", ""))
	if err != nil {
		return "", fmt.Errorf("failed to look up zone %s: %w", zoneName, err)
	}
	for _, z := range resp.Result {
		if strings.EqualFold(z.Name, zoneName) {
			return z.ID, nil
		}
	}
	return "", nil
}

// findExistingRecord returns the record that an upsert should overwrite
func (p *Provider) findExistingRecord(ctx context.Context, api *cloudflare.API, zoneID, name string) *cloudflare.DNSRecord {
	records, _, err := api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.ListDNSRecordsParams{
		Name: dns.SearchName(name),
	})
	if err != nil {
		p.logger.Debug("Error searching for existing record %s: %v", name, err)
		return nil
	}
	for i := range records {
		if dns.MatchesExisting(records[i].Name, name) {
			return &records[i]
		}
	}
	return nil
}

type recordBody struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Proxied bool   `json:"proxied"`
}

// UpsertRecord creates or replaces the proxied A record for subdomain in zoneName
func (p *Provider) UpsertRecord(ctx context.Context, token, zoneName, subdomain, ip string) (bool, error) {
	api, err := p.client(token)
	if err != nil {
		p.logger.Error("%v", err)
		return false, nil
	}

	zoneID, err := p.zoneID(ctx, api, zoneName)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		p.logger.Warn("%v", err)
		return false, nil
	}
	if zoneID == "" {
		p.logger.Warn("Zone %s not found", zoneName)
		return false, nil
	}

	name := dns.RecordName(subdomain, zoneName)
	body := recordBody{Type: recordType, Name: name, Content: ip, Proxied: true}

	method := http.MethodPost
	endpoint := fmt.Sprintf("/zones/%s/dns_records", zoneID)
	if existing := p.findExistingRecord(ctx, api, zoneID, name); existing != nil {
		method = http.MethodPut
		endpoint = fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, existing.ID)
		p.logger.Debug("Updating existing record %s (%s) in %s", name, existing.ID, zoneName)
	} else {
		p.logger.Debug("Creating record %s in %s", name, zoneName)
	}

	raw, err := api.Raw(ctx, method, endpoint, body, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		p.logger.Warn("Failed to write record %s: %v", name, err)
		return false, nil
	}
	if !raw.Success {
		p.logger.Warn("Cloudflare rejected record %s: %v", name, raw.Errors)
		return false, nil
	}

	p.logger.Info("Upserted DNS record: %s %s -> %s", name, recordType, ip)
	return true, nil
}
