// Package crawl implements the scoped breadth-first site crawl: URL
// normalization, scope checks, the raw HTML store, and the crawl log.
package crawl

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL strips the query and fragment from a URL.
func NormalizeURL(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// CanonicalURL normalizes and additionally collapses trailing slashes,
// except for the root path. Used for visited-set comparison so /docs and
// /docs/ do not crawl twice.
func CanonicalURL(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.Fragment = ""
	c.RawFragment = ""
	if c.Path != "/" {
		c.Path = strings.TrimRight(c.Path, "/")
		c.RawPath = ""
	}
	return c.String()
}

// ParseNormalized parses raw and returns its normalized form.
func ParseNormalized(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	return NormalizeURL(u), nil
}

// Scope is the (scheme, host, port, path-prefix) tuple bounding a crawl.
type Scope struct {
	Scheme     string
	Host       string // includes the port when explicit
	PathPrefix string
}

// ScopeFor derives the crawl scope from the effective start URL.
func ScopeFor(start *url.URL) Scope {
	prefix := start.Path
	if prefix == "" {
		prefix = "/"
	}
	return Scope{
		Scheme:     start.Scheme,
		Host:       start.Host,
		PathPrefix: prefix,
	}
}

// Contains reports whether u is inside the crawl scope. The prefix "/"
// matches all paths. A prefix ending in "/" is a plain prefix match;
// otherwise the path must equal the prefix or extend it across a "/".
func (s Scope) Contains(u *url.URL) bool {
	if u.Scheme != s.Scheme || u.Host != s.Host {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	switch {
	case s.PathPrefix == "/":
		return true
	case strings.HasSuffix(s.PathPrefix, "/"):
		return strings.HasPrefix(path, s.PathPrefix) ||
			path == strings.TrimRight(s.PathPrefix, "/")
	default:
		return path == s.PathPrefix || strings.HasPrefix(path, s.PathPrefix+"/")
	}
}
