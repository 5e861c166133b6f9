// Package urlutil holds URL normalization helpers shared by the crawler,
// detection engine, discovery, and cache key construction.
package urlutil

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Canonicalize standardizes a URL so visited sets and cache lookups treat
// equivalent spellings as one key. It lowercases the scheme and host, strips
// default ports and fragments, sorts query parameters, and normalizes an
// empty path to "/".
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = u.Query().Encode()
	return u.String(), nil
}

// Host returns the lowercase hostname of rawURL, or "" when it does not parse.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// RootDomain reduces a host to its registrable domain, so
// "permits.springfield.gov" and "www.springfield.gov" compare equal. Hosts
// the public suffix list cannot place (IPs, localhost) fall back to their
// last two labels.
func RootDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld1
	}
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// SameSite reports whether two hosts belong to one site, treating every
// subdomain of a registrable domain as part of that site.
func SameSite(hostA, hostB string) bool {
	if hostA == "" || hostB == "" {
		return false
	}
	return RootDomain(hostA) == RootDomain(hostB)
}

// IsGovHost classifies hosts that plausibly belong to a government entity:
// .gov and .us TLDs, or city/county/municipal-named hosts.
func IsGovHost(host string) bool {
	host = strings.ToLower(host)
	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".us") {
		return true
	}
	for _, marker := range []string{"city", "county", "municipal"} {
		if strings.Contains(host, marker) {
			return true
		}
	}
	return false
}
