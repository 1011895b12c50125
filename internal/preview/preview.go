// Package preview estimates the size and cost of a crawl before a job is
// started, preferring the site's sitemap and falling back to a shallow link
// walk.
package preview

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jackzampolin/sitebookify/internal/crawl"
)

const (
	SourceSitemap = "sitemap"
	SourceCrawl   = "crawl"

	maxPreviewPages    = 200
	maxPreviewDepth    = 2
	maxLinksPerPage    = 200
	maxChildSitemaps   = 5
	avgCharsPerPage    = 5000
	tokensPerCharIn    = 0.25
	tokensPerCharOut   = 0.125
	estimateRangeRatio = 0.15
)

// Estimate is the token projection for a crawl, with a ±15% range.
type Estimate struct {
	TokensInLow   int `json:"tokens_in_low"`
	TokensInHigh  int `json:"tokens_in_high"`
	TokensOutLow  int `json:"tokens_out_low"`
	TokensOutHigh int `json:"tokens_out_high"`
}

// Result is the preview response payload.
type Result struct {
	Source            string   `json:"source"`
	EstimatedPages    int      `json:"estimated_pages"`
	EstimatedChapters int      `json:"estimated_chapters"`
	Estimate          Estimate `json:"estimate"`
}

// Previewer probes a site for page counts.
type Previewer struct {
	Client *http.Client
	Logger *slog.Logger
}

// New creates a Previewer with defaults applied.
func New(client *http.Client, logger *slog.Logger) *Previewer {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Previewer{Client: client, Logger: logger}
}

// Preview estimates pages, chapters, and token usage for a start URL.
func (p *Previewer) Preview(ctx context.Context, rawURL string) (*Result, error) {
	start, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if start.Scheme != "http" && start.Scheme != "https" {
		return nil, fmt.Errorf("url scheme must be http or https, got %q", start.Scheme)
	}
	scope := crawl.ScopeFor(start)

	if pages, ok := p.fromSitemap(ctx, start, scope); ok {
		return buildResult(SourceSitemap, pages), nil
	}

	pages, err := p.fromLinkWalk(ctx, start, scope)
	if err != nil {
		return nil, err
	}
	return buildResult(SourceCrawl, pages), nil
}

func buildResult(source string, pages []string) *Result {
	chars := len(pages) * avgCharsPerPage
	tokensIn := float64(chars) * tokensPerCharIn
	tokensOut := float64(chars) * tokensPerCharOut
	return &Result{
		Source:            source,
		EstimatedPages:    len(pages),
		EstimatedChapters: countChapters(pages),
		Estimate: Estimate{
			TokensInLow:   int(tokensIn * (1 - estimateRangeRatio)),
			TokensInHigh:  int(tokensIn * (1 + estimateRangeRatio)),
			TokensOutLow:  int(tokensOut * (1 - estimateRangeRatio)),
			TokensOutHigh: int(tokensOut * (1 + estimateRangeRatio)),
		},
	}
}

// countChapters groups pages by the first path segment.
func countChapters(pages []string) int {
	segments := make(map[string]bool)
	for _, page := range pages {
		u, err := url.Parse(page)
		if err != nil {
			continue
		}
		seg, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		segments[seg] = true
	}
	return len(segments)
}

type sitemapDoc struct {
	URLs     []loc `xml:"url"`
	Sitemaps []loc `xml:"sitemap"`
}

type loc struct {
	Loc string `xml:"loc"`
}

// fromSitemap fetches /sitemap.xml and counts in-scope URLs. A sitemap index
// is followed one level down, a few children at most.
func (p *Previewer) fromSitemap(ctx context.Context, start *url.URL, scope crawl.Scope) ([]string, bool) {
	sitemapURL := start.Scheme + "://" + start.Host + "/sitemap.xml"

	doc, err := p.fetchSitemap(ctx, sitemapURL)
	if err != nil {
		p.Logger.Info("sitemap unavailable, falling back to link walk", "url", sitemapURL, "error", err)
		return nil, false
	}

	var pages []string
	collect := func(d *sitemapDoc) {
		for _, entry := range d.URLs {
			if len(pages) >= maxPreviewPages {
				return
			}
			u, err := url.Parse(strings.TrimSpace(entry.Loc))
			if err != nil || !scope.Contains(u) {
				continue
			}
			pages = append(pages, crawl.NormalizeURL(u))
		}
	}
	collect(doc)

	for i, child := range doc.Sitemaps {
		if i >= maxChildSitemaps || len(pages) >= maxPreviewPages {
			break
		}
		childDoc, err := p.fetchSitemap(ctx, strings.TrimSpace(child.Loc))
		if err != nil {
			p.Logger.Warn("child sitemap fetch failed", "url", child.Loc, "error", err)
			continue
		}
		collect(childDoc)
	}

	if len(pages) == 0 {
		return nil, false
	}
	return pages, true
}

func (p *Previewer) fetchSitemap(ctx context.Context, sitemapURL string) (*sitemapDoc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", crawl.UserAgent)
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	var doc sitemapDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	return &doc, nil
}

// fromLinkWalk does a shallow breadth-first link walk within scope.
func (p *Previewer) fromLinkWalk(ctx context.Context, start *url.URL, scope crawl.Scope) ([]string, error) {
	startNorm := crawl.NormalizeURL(start)
	seen := map[string]bool{crawl.CanonicalURL(start): true}
	pages := []string{startNorm}
	wave := []string{startNorm}

	for depth := 0; depth < maxPreviewDepth && len(wave) > 0 && len(pages) < maxPreviewPages; depth++ {
		var next []string
		for _, page := range wave {
			links, err := p.pageLinks(ctx, page)
			if err != nil {
				p.Logger.Warn("preview fetch failed", "url", page, "error", err)
				continue
			}
			for _, link := range links {
				if len(pages) >= maxPreviewPages {
					break
				}
				if seen[crawl.CanonicalURL(link)] || !scope.Contains(link) {
					continue
				}
				seen[crawl.CanonicalURL(link)] = true
				n := crawl.NormalizeURL(link)
				pages = append(pages, n)
				next = append(next, n)
			}
		}
		wave = next
	}
	return pages, nil
}

func (p *Previewer) pageLinks(ctx context.Context, pageURL string) ([]*url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", crawl.UserAgent)
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	var links []*url.URL
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(links) >= maxLinksPerPage {
			return false
		}
		href, _ := sel.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return true
		}
		links = append(links, resolved)
		return true
	})
	return links, nil
}
