package parse

import (
	"net/url"
	"strings"

	"github.com/goware/urlx"

	"car-scraper/pkg/models"
)

// ImageURLOptions configures NormalizeImageURL
type ImageURLOptions struct {
	BaseURL             *url.URL // Resolves root-relative paths; nil means "prefix https://"
	ResizeDirective     string   // Query appended to every normalized URL, without the leading '?'
	PlaceholderSuffixes []string // Path suffixes of spacer/placeholder images to reject
}

var rejectedSchemes = []string{"data:", "javascript:", "blob:", "about:", "mailto:"}

// NormalizeImageURL canonicalizes a raw image reference into an absolute https
// URL with no query except the resize directive. It performs no I/O.
// The second result is false when raw is empty, a placeholder, or unusable.
func NormalizeImageURL(raw string, opts ImageURLOptions) (models.NormalizedURL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	// Query and fragment never survive, so drop them before anything else
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || isPlaceholder(raw, opts.PlaceholderSuffixes) {
		return "", false
	}

	lower := strings.ToLower(raw)
	for _, s := range rejectedSchemes {
		if strings.HasPrefix(lower, s) {
			return "", false
		}
	}

	var (
		u   *url.URL
		err error
	)
	switch {
	case strings.HasPrefix(raw, "//"):
		u, err = urlx.ParseWithDefaultScheme("https://"+strings.TrimLeft(raw, "/"), "https")
	case strings.Contains(raw, "://"):
		u, err = urlx.ParseWithDefaultScheme(raw, "https")
	case strings.HasPrefix(raw, "/") && opts.BaseURL != nil:
		ref, perr := url.Parse(raw)
		if perr != nil {
			return "", false
		}
		u = opts.BaseURL.ResolveReference(ref)
	default:
		u, err = urlx.ParseWithDefaultScheme(strings.TrimLeft(raw, "/"), "https")
	}
	if err != nil || u == nil || u.Host == "" {
		return "", false
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", false
	}
	u.Scheme = "https"
	u.Host = stripDefaultPort(strings.ToLower(u.Host))
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = strings.TrimPrefix(opts.ResizeDirective, "?")
	u.ForceQuery = false
	if u.Path == "" {
		u.Path = "/"
	}

	return models.NormalizedURL(u.String()), true
}

func isPlaceholder(path string, suffixes []string) bool {
	lower := strings.ToLower(path)
	for _, s := range suffixes {
		if s != "" && strings.HasSuffix(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func stripDefaultPort(host string) string {
	if strings.HasSuffix(host, ":443") || strings.HasSuffix(host, ":80") {
		return host[:strings.LastIndexByte(host, ':')]
	}
	return host
}
