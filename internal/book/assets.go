package book

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// remoteImageRe matches remote image references in Markdown and inline HTML:
// ![alt](https://…) and <img src="https://…">.
var remoteImageRe = regexp.MustCompile(`!\[[^\]]*\]\((https?://[^)\s]+)\)|<img[^>]*\bsrc="(https?://[^"]+)"`)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".avif": true,
}

// AssetFetcher downloads remote images referenced by rendered chapters into
// src/assets and rebases the references. Fetch failures leave the original
// reference in place; localization is best effort.
type AssetFetcher struct {
	Client *http.Client
	Logger *slog.Logger
}

// NewAssetFetcher creates an AssetFetcher with defaults applied.
func NewAssetFetcher(client *http.Client, logger *slog.Logger) *AssetFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetFetcher{Client: client, Logger: logger}
}

// Localize scans every chapter under bookDir for remote images, downloads
// each distinct URL once, and rewrites references to ../assets/<name>.
func (f *AssetFetcher) Localize(ctx context.Context, bookDir string) error {
	chaptersDir := filepath.Join(bookDir, "src", "chapters")
	entries, err := os.ReadDir(chaptersDir)
	if err != nil {
		return fmt.Errorf("read chapters dir: %w", err)
	}

	localized := make(map[string]string) // remote URL -> local name, "" on failure
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		chPath := filepath.Join(chaptersDir, e.Name())
		raw, err := os.ReadFile(chPath)
		if err != nil {
			return fmt.Errorf("read chapter %s: %w", e.Name(), err)
		}
		content := string(raw)

		urls := remoteImageURLs(content)
		changed := false
		for _, u := range urls {
			name, seen := localized[u]
			if !seen {
				name = f.fetch(ctx, bookDir, u)
				localized[u] = name
			}
			if name == "" {
				continue
			}
			content = strings.ReplaceAll(content, u, "../assets/"+name)
			changed = true
		}
		if changed {
			if err := os.WriteFile(chPath, []byte(content), 0o644); err != nil {
				return fmt.Errorf("rewrite chapter %s: %w", e.Name(), err)
			}
		}
	}
	return nil
}

func remoteImageURLs(content string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range remoteImageRe.FindAllStringSubmatch(content, -1) {
		u := m[1]
		if u == "" {
			u = m[2]
		}
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

// fetch downloads one image and returns its local file name, or "" when the
// download failed.
func (f *AssetFetcher) fetch(ctx context.Context, bookDir, rawURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		f.Logger.Warn("asset url rejected", "url", rawURL, "error", err)
		return ""
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		f.Logger.Warn("asset fetch failed", "url", rawURL, "error", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.Logger.Warn("asset fetch failed", "url", rawURL, "status", resp.StatusCode)
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		f.Logger.Warn("asset read failed", "url", rawURL, "error", err)
		return ""
	}

	name := assetName(rawURL, resp.Header.Get("Content-Type"))
	assetsDir := filepath.Join(bookDir, "src", "assets")
	if err := os.MkdirAll(assetsDir, 0o755); err != nil {
		f.Logger.Warn("create assets dir failed", "error", err)
		return ""
	}
	if err := os.WriteFile(filepath.Join(assetsDir, name), body, 0o644); err != nil {
		f.Logger.Warn("asset write failed", "url", rawURL, "error", err)
		return ""
	}
	f.Logger.Info("localized asset", "url", rawURL, "name", name)
	return name
}

// assetName derives a stable local name from the URL hash plus an extension
// taken from the URL path or, failing that, the response content type.
func assetName(rawURL, contentType string) string {
	sum := sha256.Sum256([]byte(rawURL))
	stem := "img_" + hex.EncodeToString(sum[:8])

	ext := strings.ToLower(path.Ext(strings.SplitN(rawURL, "?", 2)[0]))
	if !imageExts[ext] {
		ext = extFromContentType(contentType)
	}
	return stem + ext
}

func extFromContentType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".bin"
	}
	switch mt {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/svg+xml":
		return ".svg"
	case "image/webp":
		return ".webp"
	case "image/avif":
		return ".avif"
	default:
		return ".bin"
	}
}
