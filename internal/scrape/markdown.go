package scrape

import (
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	blockTags = map[string]bool{
		"p": true, "div": true, "section": true, "article": true, "main": true,
		"header": true, "footer": true, "nav": true, "aside": true, "ul": true,
		"ol": true, "li": true, "tr": true, "form": true, "dl": true, "dt": true,
		"dd": true, "blockquote": true, "pre": true,
	}
	headingLevel = map[string]int{"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6}

	blankRuns = regexp.MustCompile(`\n{3,}`)
)

// HTMLToMarkdown converts a rendered page into the markdown dialect the
// extract parsers expect: links become [text](href) with hrefs resolved
// against base, tables become pipe rows, and images are dropped.
func HTMLToMarkdown(r io.Reader, base *url.URL) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("head, script, style, noscript, svg, img, picture, iframe").Remove()

	m := &mdWriter{base: base}
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	m.children(root)

	lines := strings.Split(m.b.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	out := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out) + "\n", nil
}

type mdWriter struct {
	b    strings.Builder
	base *url.URL
}

func (m *mdWriter) children(s *goquery.Selection) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		m.node(c)
	})
}

func (m *mdWriter) node(s *goquery.Selection) {
	name := goquery.NodeName(s)
	switch {
	case name == "#text":
		m.text(s.Text())
	case name == "br":
		m.b.WriteString("\n")
	case name == "a":
		m.link(s)
	case name == "table":
		m.table(s)
	case headingLevel[name] > 0:
		m.b.WriteString("\n\n" + strings.Repeat("#", headingLevel[name]) + " ")
		m.b.WriteString(inline(s, m.base))
		m.b.WriteString("\n\n")
	case blockTags[name]:
		m.b.WriteString("\n")
		m.children(s)
		m.b.WriteString("\n")
	default:
		m.children(s)
	}
}

func (m *mdWriter) text(t string) {
	if strings.TrimSpace(t) == "" {
		if t != "" {
			m.b.WriteString(" ")
		}
		return
	}
	lead := t[0] == ' ' || t[0] == '\n' || t[0] == '\t'
	trail := strings.HasSuffix(t, " ") || strings.HasSuffix(t, "\n") || strings.HasSuffix(t, "\t")
	if lead {
		m.b.WriteString(" ")
	}
	m.b.WriteString(strings.Join(strings.Fields(t), " "))
	if trail {
		m.b.WriteString(" ")
	}
}

func (m *mdWriter) link(s *goquery.Selection) {
	text := inlineLines(s, m.base)
	href, ok := s.Attr("href")
	if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		m.b.WriteString(text)
		return
	}
	m.b.WriteString("[" + text + "](" + resolve(m.base, href) + ")")
}

func (m *mdWriter) table(s *goquery.Selection) {
	m.b.WriteString("\n\n")
	first := true
	s.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Children().Filter("th, td")
		if cells.Length() == 0 {
			return
		}
		var row []string
		cells.Each(func(_ int, c *goquery.Selection) {
			cell := strings.ReplaceAll(inline(c, m.base), "|", " ")
			row = append(row, strings.TrimSpace(cell))
		})
		m.b.WriteString("| " + strings.Join(row, " | ") + " |\n")
		if first {
			sep := make([]string, len(row))
			for i := range sep {
				sep[i] = "---"
			}
			m.b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
			first = false
		}
	})
	m.b.WriteString("\n")
}

// inline renders s on a single line.
func inline(s *goquery.Selection, base *url.URL) string {
	sub := &mdWriter{base: base}
	sub.children(s)
	return strings.Join(strings.Fields(sub.b.String()), " ")
}

// inlineLines renders s keeping line breaks, as card links wrap whole blocks.
func inlineLines(s *goquery.Selection, base *url.URL) string {
	sub := &mdWriter{base: base}
	sub.children(s)
	var lines []string
	for _, l := range strings.Split(sub.b.String(), "\n") {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

func resolve(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
