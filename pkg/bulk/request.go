// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package bulk

import (
	"zonesync/pkg/dns"

	"errors"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidSubdomain = errors.New("invalid subdomain format")
	ErrInvalidIP        = errors.New("invalid IPv4 address")
	ErrPrivateIP        = errors.New("private IPs are not allowed")
)

var (
	subdomainPattern = regexp.MustCompile(`^[@*a-zA-Z0-9.-]+$`)
	ipv4Pattern      = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)

	privateRanges = []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("172.16.0.0/12"),
		netip.MustParsePrefix("192.168.0.0/16"),
	}
)

// Credential is the provider secret a run is executed with
type Credential struct {
	ID    string
	Name  string
	Token string
}

// Request is one subdomain+IP intent to apply to every zone
type Request struct {
	Subdomain  string
	IP         string
	Credential Credential
}

// Validate checks the subdomain and IP before a run starts
func (r Request) Validate() error {
	if err := ValidateSubdomain(r.Subdomain); err != nil {
		return err
	}
	return ValidateIP(r.IP)
}

// ValidateSubdomain accepts "@", wildcards and dotted labels made of
// letters, digits and hyphens
func ValidateSubdomain(subdomain string) error {
	if !subdomainPattern.MatchString(subdomain) {
		return ErrInvalidSubdomain
	}
	// placeholder zone, only the label structure is checked
	if !dns.ValidRecordName(dns.RecordName(subdomain, "example.com")) {
		return ErrInvalidSubdomain
	}
	return nil
}

// ValidateIP accepts a dotted-quad IPv4 literal outside the RFC 1918 ranges
func ValidateIP(ip string) error {
	addr, ok := parseIPv4(ip)
	if !ok {
		return ErrInvalidIP
	}
	for _, prefix := range privateRanges {
		if prefix.Contains(addr) {
			return ErrPrivateIP
		}
	}
	return nil
}

// parseIPv4 tolerates leading zeros in octets, unlike netip.ParseAddr
func parseIPv4(ip string) (netip.Addr, bool) {
	if !ipv4Pattern.MatchString(ip) {
		return netip.Addr{}, false
	}
	var octets [4]byte
	for i, part := range strings.Split(ip, ".") {
		n, err := strconv.Atoi(part)
		if err != nil || n > 255 {
			return netip.Addr{}, false
		}
		octets[i] = byte(n)
	}
	return netip.AddrFrom4(octets), true
}
