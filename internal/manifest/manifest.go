// Package manifest builds the line-delimited JSON index of extracted pages.
package manifest

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackzampolin/sitebookify/internal/formats"
)

// Build scans extracted pages under pagesDir and writes one ManifestRecord
// per page to outPath, sorted by URL path. It refuses to overwrite an
// existing manifest.
func Build(pagesDir, outPath string) error {
	records, err := collect(pagesDir)
	if err != nil {
		return err
	}
	return Write(outPath, records)
}

func collect(pagesDir string) ([]formats.ManifestRecord, error) {
	entries, err := os.ReadDir(pagesDir)
	if err != nil {
		return nil, fmt.Errorf("read pages dir: %w", err)
	}

	var records []formats.ManifestRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(pagesDir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read page %s: %w", path, err)
		}
		fm, _, err := formats.SplitPage(string(content))
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", path, err)
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve page path: %w", err)
		}

		records = append(records, formats.ManifestRecord{
			ID:          fm.ID,
			URL:         fm.URL,
			Title:       fm.Title,
			Path:        urlPath(fm.URL),
			ExtractedMD: abs,
			TrustTier:   fm.TrustTier,
		})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records, nil
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// Write persists records as line-delimited JSON. It refuses to overwrite.
func Write(outPath string, records []formats.ManifestRecord) error {
	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("write manifest record: %w", err)
		}
	}
	return nil
}

// Read loads a manifest written by Write.
func Read(path string) ([]formats.ManifestRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var records []formats.ManifestRecord
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec formats.ManifestRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("parse manifest line: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
