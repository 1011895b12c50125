package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/sitebookify/internal/formats"
)

// UserAgent identifies the crawler to origin servers.
const UserAgent = "sitebookify/0.1"

// Config holds crawl knobs. Zero values fall back to the request defaults.
type Config struct {
	MaxPages    int
	MaxDepth    int
	Concurrency int
	DelayMS     int
	Client      *http.Client
	Logger      *slog.Logger
}

// Crawler performs a scoped breadth-first crawl of a site.
type Crawler struct {
	cfg Config
}

// New creates a Crawler, applying defaults for unset knobs.
func New(cfg Config) *Crawler {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = formats.DefaultMaxPages
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = formats.DefaultMaxDepth
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = formats.DefaultConcurrency
	}
	if cfg.DelayMS < 0 {
		cfg.DelayMS = 0
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Crawler{cfg: cfg}
}

type fetched struct {
	url       *url.URL
	status    int
	savedPath string
	links     []*url.URL
}

// Run crawls from startURL and writes the raw HTML tree plus crawl.jsonl
// under outDir. Individual page failures are recorded, not fatal; the stage
// fails only if the crawl log itself cannot be produced.
func (c *Crawler) Run(ctx context.Context, startURL, outDir string) error {
	start, err := c.resolveStartURL(ctx, startURL)
	if err != nil {
		return err
	}
	scope := ScopeFor(start)
	c.cfg.Logger.Info("crawl starting",
		"start", start.String(), "scope_prefix", scope.PathPrefix,
		"max_pages", c.cfg.MaxPages, "max_depth", c.cfg.MaxDepth)

	visited := map[string]bool{CanonicalURL(start): true}
	records := make(map[string]formats.CrawlRecord)
	frontier := []*url.URL{start}
	sem := make(chan struct{}, c.cfg.Concurrency)

	for depth := 0; len(frontier) > 0 && depth <= c.cfg.MaxDepth; depth++ {
		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			results []fetched
		)
		for _, u := range frontier {
			wg.Add(1)
			go func(u *url.URL) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				if c.cfg.DelayMS > 0 {
					select {
					case <-time.After(time.Duration(c.cfg.DelayMS) * time.Millisecond):
					case <-ctx.Done():
						return
					}
				}
				res := c.fetchPage(ctx, u, outDir)
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}(u)
		}
		wg.Wait()

		var next []*url.URL
		for _, res := range results {
			norm := NormalizeURL(res.url)
			records[norm] = formats.CrawlRecord{
				URL:           norm,
				NormalizedURL: CanonicalURL(res.url),
				Depth:         depth,
				Status:        res.status,
				RetrievedAt:   time.Now().UTC().Format(time.RFC3339),
				RawHTMLPath:   res.savedPath,
			}
			for _, link := range res.links {
				if !scope.Contains(link) {
					continue
				}
				key := CanonicalURL(link)
				if visited[key] || len(visited) >= c.cfg.MaxPages {
					continue
				}
				visited[key] = true
				next = append(next, link)
			}
		}
		frontier = next
	}

	return writeCrawlLog(outDir, records)
}

// resolveStartURL applies the trailing-slash probe: when the start path has
// no trailing slash and its last segment has no dot, a 2xx HTML response for
// url+"/" switches the effective start to the probe's final URL.
func (c *Crawler) resolveStartURL(ctx context.Context, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse start url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("start url scheme must be http or https, got %q", u.Scheme)
	}

	path := u.Path
	if path == "" || strings.HasSuffix(path, "/") {
		return u, nil
	}
	last := path[strings.LastIndex(path, "/")+1:]
	if strings.Contains(last, ".") {
		return u, nil
	}

	probe := *u
	probe.Path += "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe.String(), nil)
	if err != nil {
		return u, nil
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html")
	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		return u, nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && htmlContentType(resp.Header.Get("Content-Type")) {
		final := resp.Request.URL
		c.cfg.Logger.Info("start url resolved", "from", raw, "to", final.String())
		return final, nil
	}
	return u, nil
}

func (c *Crawler) fetchPage(ctx context.Context, u *url.URL, outDir string) fetched {
	res := fetched{url: u}

	var body string
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("User-Agent", UserAgent)
			resp, err := c.cfg.Client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			res.status = resp.StatusCode
			body = string(data)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		c.cfg.Logger.Warn("fetch failed", "url", u.String(), "error", err)
		return res
	}

	if res.status < 200 || res.status >= 300 || !LooksLikeHTML(body) {
		return res
	}

	saved, err := SaveRawHTML(outDir, NormalizeURL(u), body)
	if err != nil {
		c.cfg.Logger.Warn("save failed", "url", u.String(), "error", err)
	} else {
		res.savedPath = saved
	}
	res.links = extractLinks(u, body)
	return res
}

// extractLinks parses anchors from an HTML body and resolves them against
// the page URL, dropping fragments and queries.
func extractLinks(base *url.URL, body string) []*url.URL {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}
	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		resolved.RawQuery = ""
		resolved.Fragment = ""
		resolved.RawFragment = ""
		links = append(links, resolved)
	})
	return links
}

func htmlContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// writeCrawlLog writes one CrawlRecord per line, sorted by normalized URL.
// It refuses to overwrite an existing log.
func writeCrawlLog(outDir string, records map[string]formats.CrawlRecord) error {
	sorted := make([]formats.CrawlRecord, 0, len(records))
	for _, rec := range records {
		sorted = append(sorted, rec)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].NormalizedURL < sorted[j].NormalizedURL
	})

	// The directory normally appears when the first page is saved, but a
	// crawl may record failures only and still owes the log.
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create crawl dir: %w", err)
	}
	path := filepath.Join(outDir, "crawl.jsonl")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create crawl log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, rec := range sorted {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("write crawl log: %w", err)
		}
	}
	return nil
}

// ReadCrawlLog loads crawl.jsonl from outDir.
func ReadCrawlLog(outDir string) ([]formats.CrawlRecord, error) {
	path := filepath.Join(outDir, "crawl.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read crawl log: %w", err)
	}
	var out []formats.CrawlRecord
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec formats.CrawlRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("parse crawl log line: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
