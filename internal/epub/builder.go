// Package epub packages a rendered book directory into an EPUB 3 file.
package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

// Options controls EPUB generation.
type Options struct {
	Title       string // overrides the book.toml title when set
	LanguageTag string // BCP-47 tag for <html lang> and <dc:language>
	Force       bool   // overwrite an existing output file
}

type chapter struct {
	stem  string
	title string
	xhtml string
}

// Builder assembles the EPUB container from a rendered book directory.
type Builder struct {
	title      string
	lang       string
	chapters   []chapter
	assets     []string // relative paths under src/assets, sorted
	assetsDir  string
	identifier string
	modified   time.Time
}

// Build reads the book under bookDir and writes an EPUB to outPath.
func Build(bookDir, outPath string, opts Options) error {
	if !opts.Force {
		if _, err := os.Stat(outPath); err == nil {
			return fmt.Errorf("output already exists: %s", outPath)
		}
	}

	b, err := NewBuilder(bookDir, opts)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	if err := b.WriteTo(f); err != nil {
		return err
	}
	return f.Close()
}

// NewBuilder loads chapters and assets from bookDir and prepares the
// container contents.
func NewBuilder(bookDir string, opts Options) (*Builder, error) {
	lang := opts.LanguageTag
	if lang == "" {
		lang = "und"
	}
	b := &Builder{
		title:      opts.Title,
		lang:       lang,
		assetsDir:  filepath.Join(bookDir, "src", "assets"),
		identifier: "urn:uuid:" + uuid.New().String(),
		modified:   time.Now().UTC().Truncate(time.Second),
	}

	if b.title == "" {
		b.title = readBookTitle(bookDir)
	}

	if err := b.loadChapters(filepath.Join(bookDir, "src", "chapters")); err != nil {
		return nil, err
	}
	if err := b.loadAssets(); err != nil {
		return nil, err
	}
	return b, nil
}

func readBookTitle(bookDir string) string {
	raw, err := os.ReadFile(filepath.Join(bookDir, "book.toml"))
	if err != nil {
		return "Book"
	}
	var cfg struct {
		Book struct {
			Title string `toml:"title"`
		} `toml:"book"`
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil || cfg.Book.Title == "" {
		return "Book"
	}
	return cfg.Book.Title
}

func (b *Builder) loadChapters(chaptersDir string) error {
	entries, err := os.ReadDir(chaptersDir)
	if err != nil {
		return fmt.Errorf("read chapters dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no chapters under %s", chaptersDir)
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(chaptersDir, name))
		if err != nil {
			return fmt.Errorf("read chapter %s: %w", name, err)
		}
		stem := strings.TrimSuffix(name, ".md")
		title := chapterTitle(string(raw), stem)
		body, err := markdownToXHTML(string(raw))
		if err != nil {
			return fmt.Errorf("convert chapter %s: %w", name, err)
		}
		b.chapters = append(b.chapters, chapter{
			stem:  stem,
			title: title,
			xhtml: wrapXHTML(title, body, b.lang),
		})
	}
	return nil
}

// chapterTitle returns the chapter's first level-1 heading, or the file stem.
func chapterTitle(md, stem string) string {
	for _, line := range strings.Split(md, "\n") {
		if t, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(t)
		}
	}
	return stem
}

func (b *Builder) loadAssets() error {
	err := filepath.WalkDir(b.assetsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.assetsDir, path)
		if err != nil {
			return err
		}
		b.assets = append(b.assets, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("scan assets: %w", err)
	}
	sort.Strings(b.assets)
	return nil
}

// WriteTo writes the EPUB container. The mimetype entry comes first and is
// stored uncompressed, as the format requires.
func (b *Builder) WriteTo(w io.Writer) error {
	zw := zip.NewWriter(w)

	if err := b.writeMimetype(zw); err != nil {
		return err
	}
	if err := writeEntry(zw, "META-INF/container.xml", containerXML); err != nil {
		return err
	}
	if err := writeEntry(zw, "OEBPS/content.opf", b.generatePackage()); err != nil {
		return err
	}
	if err := writeEntry(zw, "OEBPS/nav.xhtml", b.generateNavigation()); err != nil {
		return err
	}
	if err := writeEntry(zw, "OEBPS/toc.ncx", b.generateNCX()); err != nil {
		return err
	}
	if err := writeEntry(zw, "OEBPS/style.css", defaultStylesheet); err != nil {
		return err
	}
	for _, ch := range b.chapters {
		if err := writeEntry(zw, "OEBPS/"+ch.stem+".xhtml", ch.xhtml); err != nil {
			return fmt.Errorf("write chapter %s: %w", ch.stem, err)
		}
	}
	for _, rel := range b.assets {
		data, err := os.ReadFile(filepath.Join(b.assetsDir, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("read asset %s: %w", rel, err)
		}
		if err := writeEntry(zw, "OEBPS/assets/"+rel, string(data)); err != nil {
			return fmt.Errorf("write asset %s: %w", rel, err)
		}
	}

	return zw.Close()
}

func (b *Builder) writeMimetype(zw *zip.Writer) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		return fmt.Errorf("create mimetype: %w", err)
	}
	_, err = w.Write([]byte("application/epub+zip"))
	return err
}

func writeEntry(zw *zip.Writer, name, content string) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	_, err = w.Write([]byte(content))
	return err
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const defaultStylesheet = `body {
  font-family: Georgia, "Times New Roman", serif;
  font-size: 1em;
  line-height: 1.6;
  margin: 1em;
}

h1, h2, h3, h4, h5, h6 {
  font-family: "Helvetica Neue", Helvetica, Arial, sans-serif;
  font-weight: bold;
  margin-top: 1.5em;
  margin-bottom: 0.5em;
}

h1 {
  font-size: 1.8em;
  border-bottom: 1px solid #ccc;
  padding-bottom: 0.3em;
}

pre {
  background: #f6f6f6;
  padding: 0.8em;
  overflow-x: auto;
  font-size: 0.9em;
}

code {
  font-family: "SF Mono", Menlo, Consolas, monospace;
}

blockquote {
  margin: 1em 2em;
  border-left: 3px solid #ccc;
  padding-left: 1em;
}

img {
  max-width: 100%;
}

table {
  border-collapse: collapse;
}

th, td {
  border: 1px solid #ccc;
  padding: 0.3em 0.6em;
}
`
