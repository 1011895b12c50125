package crawl

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// RawHTMLPath maps a normalized URL to its on-disk location under outDir:
// html/<host[_port]>/<path segments>/index.html. Path segments equal to ".."
// are rejected so a hostile URL cannot escape the output tree.
func RawHTMLPath(outDir, normalizedURL string) (string, error) {
	u, err := url.Parse(normalizedURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", normalizedURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", normalizedURL)
	}

	hostDir := strings.ReplaceAll(u.Host, ":", "_")
	parts := []string{outDir, "html", hostDir}
	for _, seg := range strings.Split(u.Path, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("refusing path traversal in %q", normalizedURL)
		}
		parts = append(parts, seg)
	}
	parts = append(parts, "index.html")
	return filepath.Join(parts...), nil
}

// SaveRawHTML writes an HTML body to its raw-store path, creating parent
// directories. It refuses to overwrite an existing file.
func SaveRawHTML(outDir, normalizedURL, body string) (string, error) {
	path, err := RawHTMLPath(outDir, normalizedURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create raw dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create raw file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(body); err != nil {
		return "", fmt.Errorf("write raw file: %w", err)
	}
	return path, nil
}

// LooksLikeHTML reports whether a response body should be saved as a page.
func LooksLikeHTML(body string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(body))
	if strings.HasPrefix(trimmed, "<!doctype html") || strings.HasPrefix(trimmed, "<html") {
		return true
	}
	return strings.Contains(trimmed, "<html")
}
