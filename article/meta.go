package article

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type meta struct {
	title       string
	description string
	byline      string
	siteName    string
	published   string
	lang        string
	dir         string
}

// readMeta collects document metadata. OpenGraph values win over plain
// <title> and description tags.
func readMeta(doc *html.Node) meta {
	var m meta
	var docTitle, ogTitle, twTitle, desc, ogDesc string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Html:
				m.lang = getAttr(n, "lang")
				m.dir = getAttr(n, "dir")
			case atom.Title:
				if docTitle == "" {
					docTitle = cleanText(collectText(n))
				}
			case atom.Meta:
				key := strings.ToLower(getAttr(n, "property"))
				if key == "" {
					key = strings.ToLower(getAttr(n, "name"))
				}
				val := cleanText(getAttr(n, "content"))
				switch key {
				case "og:title":
					ogTitle = val
				case "twitter:title":
					twTitle = val
				case "description":
					desc = val
				case "og:description", "twitter:description":
					if ogDesc == "" {
						ogDesc = val
					}
				case "author", "article:author":
					if m.byline == "" {
						m.byline = val
					}
				case "og:site_name":
					m.siteName = val
				case "article:published_time", "og:published_time":
					if m.published == "" {
						m.published = val
					}
				}
			case atom.A:
				if m.byline == "" && strings.Contains(getAttr(n, "rel"), "author") {
					m.byline = cleanText(collectText(n))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	m.title = firstNonEmpty(ogTitle, twTitle, docTitle)
	m.description = firstNonEmpty(ogDesc, desc)
	return m
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
