package parse

import (
	"net"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a page URL for comparison and storage.
// It lowercases the scheme and host, removes default ports, trims a trailing slash
// from the path (unless root "/"), and removes fragments and query strings.
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = normalized.Path[:len(normalized.Path)-1]
	}

	normalized.Fragment = ""
	normalized.RawQuery = ""

	return normalized.String()
}

// ParseAndNormalize parses an absolute URL string and normalizes it using NormalizeURL
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(urlStr)
	if err != nil {
		return "", nil, err
	}
	return NormalizeURL(parsed), parsed, nil
}

// ResolvePageURL turns an href found on a page into an absolute, normalized page URL.
// Absolute hrefs are kept; anything else is resolved against base.
func ResolvePageURL(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if !ref.IsAbs() {
		if base == nil {
			return "", false
		}
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" || ref.Host == "" {
		return "", false
	}
	return NormalizeURL(ref), true
}

// JoinPagePath appends a sub-page suffix such as "/specs" to a model page URL
func JoinPagePath(pageURL, suffix string) string {
	return strings.TrimRight(pageURL, "/") + "/" + strings.TrimLeft(suffix, "/")
}
