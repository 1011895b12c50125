package epub

import (
	"fmt"
	"path"
	"strings"
)

// generatePackage creates the content.opf package document.
func (b *Builder) generatePackage() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`)
	fmt.Fprintf(&sb, "    <dc:identifier id=\"pub-id\">%s</dc:identifier>\n", b.identifier)
	fmt.Fprintf(&sb, "    <dc:title>%s</dc:title>\n", escapeXML(b.title))
	fmt.Fprintf(&sb, "    <dc:language>%s</dc:language>\n", b.lang)
	fmt.Fprintf(&sb, "    <meta property=\"dcterms:modified\">%s</meta>\n",
		b.modified.Format("2006-01-02T15:04:05Z"))
	sb.WriteString("  </metadata>\n\n")

	sb.WriteString("  <manifest>\n")
	sb.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	sb.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
	sb.WriteString("    <item id=\"style\" href=\"style.css\" media-type=\"text/css\"/>\n")
	for _, ch := range b.chapters {
		fmt.Fprintf(&sb, "    <item id=\"%s\" href=\"%s.xhtml\" media-type=\"application/xhtml+xml\"/>\n",
			ch.stem, ch.stem)
	}
	for i, rel := range b.assets {
		fmt.Fprintf(&sb, "    <item id=\"asset-%d\" href=\"assets/%s\" media-type=\"%s\"/>\n",
			i+1, rel, assetMediaType(rel))
	}
	sb.WriteString("  </manifest>\n\n")

	sb.WriteString("  <spine toc=\"ncx\">\n")
	for _, ch := range b.chapters {
		fmt.Fprintf(&sb, "    <itemref idref=\"%s\"/>\n", ch.stem)
	}
	sb.WriteString("  </spine>\n")
	sb.WriteString("</package>\n")

	return sb.String()
}

// generateNavigation creates the nav.xhtml navigation document.
func (b *Builder) generateNavigation() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops" lang="`)
	sb.WriteString(b.lang)
	sb.WriteString(`" xml:lang="`)
	sb.WriteString(b.lang)
	sb.WriteString(`">
<head>
  <title>`)
	sb.WriteString(escapeXML(b.title))
	sb.WriteString(`</title>
  <link rel="stylesheet" type="text/css" href="style.css"/>
</head>
<body>
  <nav epub:type="toc" id="toc">
    <h1>`)
	sb.WriteString(escapeXML(b.title))
	sb.WriteString("</h1>\n    <ol>\n")
	for _, ch := range b.chapters {
		fmt.Fprintf(&sb, "      <li><a href=\"%s.xhtml\">%s</a></li>\n",
			ch.stem, escapeXML(ch.title))
	}
	sb.WriteString(`    </ol>
  </nav>
</body>
</html>
`)
	return sb.String()
}

// generateNCX creates toc.ncx for older readers.
func (b *Builder) generateNCX() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head>
    <meta name="dtb:uid" content="`)
	sb.WriteString(b.identifier)
	sb.WriteString(`"/>
    <meta name="dtb:depth" content="1"/>
    <meta name="dtb:totalPageCount" content="0"/>
    <meta name="dtb:maxPageNumber" content="0"/>
  </head>
  <docTitle>
    <text>`)
	sb.WriteString(escapeXML(b.title))
	sb.WriteString(`</text>
  </docTitle>
  <navMap>
`)
	for i, ch := range b.chapters {
		fmt.Fprintf(&sb, "    <navPoint id=\"navpoint-%d\" playOrder=\"%d\">\n", i+1, i+1)
		fmt.Fprintf(&sb, "      <navLabel><text>%s</text></navLabel>\n", escapeXML(ch.title))
		fmt.Fprintf(&sb, "      <content src=\"%s.xhtml\"/>\n", ch.stem)
		sb.WriteString("    </navPoint>\n")
	}
	sb.WriteString(`  </navMap>
</ncx>
`)
	return sb.String()
}

// assetMediaType maps an asset file extension to its manifest media type.
func assetMediaType(rel string) string {
	switch strings.ToLower(path.Ext(rel)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	case ".webp":
		return "image/webp"
	case ".avif":
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}

// escapeXML escapes special XML characters.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
