// Package endpoint derives the request and channel base URLs from the page
// location the application is served from. When the application runs behind
// a Home Assistant ingress proxy, every URL is rooted under the ingress path
// prefix instead of the domain root.
package endpoint

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// IngressMarker identifies the current ingress URL layout, where the page
	// path itself is the prefix.
	IngressMarker = "/api/hassio_ingress/"

	// LegacyIngressMarker identifies the older ingress layout.
	LegacyIngressMarker = "/hassio/ingress/"

	// LegacyIngressBase is the fixed prefix used for the older layout.
	LegacyIngressBase = "/hassio/ingress/local_my_home_devices"

	// ChannelPath is appended to the base to reach the event channel.
	ChannelPath = "/ws"

	// LoginPath is where credential expiry redirects to.
	LoginPath = "/login"
)

// Mode describes how the base path was resolved.
type Mode int

const (
	ModeDirect Mode = iota
	ModeIngress
	ModeLegacyIngress
)

func (m Mode) String() string {
	switch m {
	case ModeIngress:
		return "ingress"
	case ModeLegacyIngress:
		return "legacy-ingress"
	default:
		return "direct"
	}
}

// Resolver resolves URLs relative to a page location.
type Resolver struct {
	page *url.URL
	base string
	mode Mode
}

// NewResolver parses the page URL and resolves its base path.
func NewResolver(pageURL string) (*Resolver, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid page URL %q: scheme and host are required", pageURL)
	}
	if u.Path == "" {
		u.Path = "/"
	}

	base, mode := BasePath(u.Path)
	return &Resolver{page: u, base: base, mode: mode}, nil
}

// BasePath returns the path prefix for a page path, without trailing slash.
// The root prefix is the empty string.
func BasePath(pagePath string) (string, Mode) {
	switch {
	case strings.Contains(pagePath, IngressMarker):
		return strings.TrimSuffix(pagePath, "/"), ModeIngress
	case strings.Contains(pagePath, LegacyIngressMarker):
		return LegacyIngressBase, ModeLegacyIngress
	default:
		return "", ModeDirect
	}
}

// Mode reports how the base path was derived.
func (r *Resolver) Mode() Mode { return r.mode }

// Base returns the path prefix (empty for root).
func (r *Resolver) Base() string { return r.base }

// PagePath returns the current page path, used as the post-login redirect.
func (r *Resolver) PagePath() string { return r.page.Path }

// RouterBase returns the base path with a trailing slash, as used for
// client-side routing.
func (r *Resolver) RouterBase() string {
	switch r.mode {
	case ModeIngress:
		return r.page.Path
	case ModeLegacyIngress:
		return LegacyIngressBase + "/"
	default:
		return "/"
	}
}

// APIPath returns the prefixed path for a request path.
func (r *Resolver) APIPath(path string) string {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return r.base + path
}

// APIURL returns the absolute URL for a request path. The query string of
// path, if any, is preserved.
func (r *Resolver) APIURL(path string) string {
	u := url.URL{Scheme: r.page.Scheme, Host: r.page.Host}
	return u.String() + r.APIPath(path)
}

// ChannelURL returns the event channel URL, using wss when the page is
// served over https.
func (r *Resolver) ChannelURL() string {
	scheme := "ws"
	if r.page.Scheme == "https" {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: r.page.Host, Path: r.base + ChannelPath}
	return u.String()
}
