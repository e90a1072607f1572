package store

import (
	"net/url"
	"strings"
)

const (
	NoDomain      = "(no domain)"
	UnknownDomain = "(unknown)"
)

// NormalizeDomain lowercases and strips any leading "www." labels.
func NormalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	for strings.HasPrefix(domain, "www.") {
		domain = strings.TrimPrefix(domain, "www.")
	}
	return domain
}

// DomainFromURL returns the normalized host (with port) of raw, or one of
// the NoDomain / UnknownDomain placeholders.
func DomainFromURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return UnknownDomain
	}
	domain := NormalizeDomain(parsed.Host)
	if domain == "" {
		return NoDomain
	}
	return domain
}

// IsPlaceholderDomain reports whether domain came from a URL without a host.
func IsPlaceholderDomain(domain string) bool {
	return domain == "" || domain == NoDomain || domain == UnknownDomain
}
