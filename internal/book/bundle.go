package book

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jackzampolin/sitebookify/internal/formats"
)

// chapterLinkRe matches intra-book chapter links in rendered Markdown:
// (chapters/ch01.md), (./chapters/ch01.md), (ch01.md), with an optional
// fragment.
var chapterLinkRe = regexp.MustCompile(`\((?:\./)?(?:chapters/)?(ch\d{2})\.md(#[^)]*)?\)`)

// Bundle concatenates the rendered chapters into a single book.md. Chapter
// links collapse to in-document anchors and asset references are rebased so
// the bundle sits next to the assets directory.
func Bundle(toc *formats.Toc, bookDir, outPath string) error {
	var b strings.Builder
	b.WriteString("# " + toc.BookTitle + "\n")

	chaptersDir := filepath.Join(bookDir, "src", "chapters")
	for _, ch := range toc.Chapters() {
		raw, err := os.ReadFile(filepath.Join(chaptersDir, ch.ID+".md"))
		if err != nil {
			return fmt.Errorf("read chapter %s: %w", ch.ID, err)
		}
		content := rebaseLinks(string(raw))
		b.WriteString("\n<a id=\"" + ch.ID + "\"></a>\n\n")
		b.WriteString(strings.TrimRight(content, "\n"))
		b.WriteString("\n")
	}

	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("write bundle: %w", err)
	}
	return f.Close()
}

func rebaseLinks(content string) string {
	content = strings.ReplaceAll(content, "../assets/", "assets/")
	return chapterLinkRe.ReplaceAllStringFunc(content, func(m string) string {
		sub := chapterLinkRe.FindStringSubmatch(m)
		if sub[2] != "" {
			return "(" + sub[2] + ")"
		}
		return "(#" + sub[1] + ")"
	})
}
