package epub

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.Footnote,
		extension.Table,
		extension.TaskList,
		extension.Strikethrough,
	),
	goldmark.WithRendererOptions(
		html.WithXHTML(),
		html.WithUnsafe(),
	),
)

// markdownToXHTML renders chapter Markdown to XHTML-safe HTML: CommonMark
// plus footnotes, tables, task lists, and strikethrough, with relative URLs
// rebased for the container layout and void elements self-closed.
func markdownToXHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	out := rewriteChapterURLs(buf.String())
	return ensureXHTMLVoidTags(out), nil
}

// chapterHrefRe matches relative chapter links in rendered HTML attributes:
// chapters/ch01.md, ./chapters/ch01.md, and bare ch01.md, with an optional
// fragment, in either quote style. Absolute URLs never match because the
// stem may not contain ':' or '/'.
var chapterHrefRe = regexp.MustCompile(`(href=["'])(?:\./)?(?:chapters/)?([^"'/:]+)\.md(#[^"']*)?(["'])`)

func rewriteChapterURLs(s string) string {
	s = strings.ReplaceAll(s, "../assets/", "assets/")
	return chapterHrefRe.ReplaceAllString(s, `$1$2.xhtml$3$4`)
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true,
	"embed": true, "hr": true, "img": true, "input": true,
	"link": true, "meta": true, "param": true, "source": true,
	"track": true, "wbr": true,
}

// ensureXHTMLVoidTags adds self-closing slashes to void elements while
// leaving text, comments, doctypes, end tags, and quoted attribute values
// untouched. The scan is byte-oriented; multi-byte text passes through.
func ensureXHTMLVoidTags(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	i := 0
	for i < len(s) {
		c := s[i]
		if c != '<' {
			out.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(s) {
			out.WriteByte(c)
			i++
			continue
		}
		next := s[i+1]
		if next == '/' || next == '!' || next == '?' {
			end := strings.IndexByte(s[i:], '>')
			if end < 0 {
				out.WriteString(s[i:])
				break
			}
			out.WriteString(s[i : i+end+1])
			i += end + 1
			continue
		}

		// Tag name.
		j := i + 1
		for j < len(s) && isTagNameByte(s[j]) {
			j++
		}
		name := strings.ToLower(s[i+1 : j])

		// Attributes, quote aware.
		k := j
		var quote byte
		for k < len(s) {
			ch := s[k]
			if quote != 0 {
				if ch == quote {
					quote = 0
				}
				k++
				continue
			}
			if ch == '"' || ch == '\'' {
				quote = ch
				k++
				continue
			}
			if ch == '>' {
				break
			}
			k++
		}
		if k >= len(s) {
			out.WriteString(s[i:])
			break
		}

		tag := s[i:k]
		if voidElements[name] && !strings.HasSuffix(strings.TrimRight(tag, " \t\n"), "/") {
			out.WriteString(strings.TrimRight(tag, " \t\n"))
			out.WriteString(" />")
		} else {
			out.WriteString(tag)
			out.WriteByte('>')
		}
		i = k + 1
	}
	return out.String()
}

func isTagNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-'
}

// wrapXHTML wraps a chapter body in a complete XHTML document.
func wrapXHTML(title, body, lang string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" lang="`)
	sb.WriteString(lang)
	sb.WriteString(`" xml:lang="`)
	sb.WriteString(lang)
	sb.WriteString(`">
<head>
  <title>`)
	sb.WriteString(escapeXML(title))
	sb.WriteString(`</title>
  <link rel="stylesheet" type="text/css" href="style.css"/>
</head>
<body>
`)
	sb.WriteString(body)
	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}
