// Package article turns a full HTML page into a readable article: the main
// content region, its plain text, and page metadata. It backs the
// /simplify-html endpoint and the markdown output of /goto.
//
// The pipeline: raw HTML → parse → metadata → pick content region (landmarks,
// then text density) → resolve links → sanitise → text.
package article

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// Article mirrors the shape n8n workflows expect. Missing values are null.
type Article struct {
	Title         *string `json:"title"`
	Content       *string `json:"content"`
	TextContent   *string `json:"textContent"`
	Length        *int    `json:"length"`
	Excerpt       *string `json:"excerpt"`
	Byline        *string `json:"byline"`
	Dir           *string `json:"dir"`
	SiteName      *string `json:"siteName"`
	Lang          *string `json:"lang"`
	PublishedTime *string `json:"publishedTime"`
}

// minTextLen is the shortest region accepted as content.
const minTextLen = 50

const excerptLen = 200

var policy = bluemonday.UGCPolicy()

// Extract parses rawHTML and extracts the article. baseURL, when set, is
// used to resolve relative links and images.
func Extract(rawHTML, baseURL string) (*Article, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("article: parse HTML: %w", err)
	}

	var base *url.URL
	if baseURL != "" {
		if base, err = url.Parse(baseURL); err != nil {
			return nil, fmt.Errorf("article: base url: %w", err)
		}
	}

	m := readMeta(doc)
	a := &Article{
		Title:         nonEmpty(cleanTitle(m.title, m.siteName)),
		Byline:        nonEmpty(m.byline),
		Dir:           nonEmpty(m.dir),
		SiteName:      nonEmpty(m.siteName),
		Lang:          nonEmpty(m.lang),
		PublishedTime: nonEmpty(m.published),
	}

	node := findContent(doc, minTextLen)
	if node == nil {
		a.Excerpt = nonEmpty(m.description)
		return a, nil
	}

	if base != nil {
		resolveLinks(node, base)
	}
	content := strings.TrimSpace(policy.Sanitize(renderNode(node)))
	text := cleanText(collectText(node))

	a.Content = nonEmpty(content)
	a.TextContent = nonEmpty(text)
	if text != "" {
		n := utf8.RuneCountInString(text)
		a.Length = &n
	}

	excerpt := m.description
	if excerpt == "" {
		excerpt = truncate(cleanText(firstParagraph(node)), excerptLen)
	}
	a.Excerpt = nonEmpty(excerpt)
	return a, nil
}

// cleanTitle drops a trailing " | Site" or " - Site" suffix naming the site.
func cleanTitle(title, site string) string {
	title = strings.TrimSpace(title)
	if site == "" {
		return title
	}
	for _, sep := range []string{" | ", " - ", " \u2014 ", " · "} {
		if i := strings.LastIndex(title, sep); i > 0 && strings.EqualFold(strings.TrimSpace(title[i+len(sep):]), site) {
			return strings.TrimSpace(title[:i])
		}
	}
	return title
}

// resolveLinks rewrites relative href and src attributes against base.
func resolveLinks(n *html.Node, base *url.URL) {
	if n.Type == html.ElementNode {
		for i, attr := range n.Attr {
			if attr.Key != "href" && attr.Key != "src" {
				continue
			}
			v := strings.TrimSpace(attr.Val)
			if v == "" || strings.HasPrefix(v, "#") {
				continue
			}
			if ref, err := url.Parse(v); err == nil {
				n.Attr[i].Val = base.ResolveReference(ref).String()
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		resolveLinks(c, base)
	}
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max])) + "…"
}
