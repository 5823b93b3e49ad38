package extract

import (
	"strings"

	"golang.org/x/net/html"
)

const maxCleanedLength = 20000

var droppedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"svg":      true,
	"canvas":   true,
	"link":     true,
	"meta":     true,
}

// chrome elements are kept only when they link to a job page
var chromeElements = map[string]bool{
	"header": true,
	"footer": true,
	"nav":    true,
	"aside":  true,
}

var keptAttributes = map[string]bool{
	"href":  true,
	"title": true,
	"class": true,
	"id":    true,
}

var jobLinkHints = []string{"vaga", "job", "oferta", "career", "carreira", "position"}

// CleanHTML reduces a page to the markup a language model needs to find
// postings and truncates it at a tag boundary.
func CleanHTML(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return truncateAtTag(collapseWhitespace(raw), maxCleanedLength)
	}
	prune(doc)

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return truncateAtTag(collapseWhitespace(raw), maxCleanedLength)
	}
	return truncateAtTag(collapseWhitespace(sb.String()), maxCleanedLength)
}

func prune(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode:
			n.RemoveChild(c)
		case c.Type == html.ElementNode && droppedElements[c.Data]:
			n.RemoveChild(c)
		case c.Type == html.ElementNode && chromeElements[c.Data] && !hasJobLink(c):
			n.RemoveChild(c)
		default:
			if c.Type == html.ElementNode {
				c.Attr = filterAttrs(c.Attr)
			}
			prune(c)
		}
		c = next
	}
}

func filterAttrs(attrs []html.Attribute) []html.Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		if keptAttributes[a.Key] {
			out = append(out, a)
		}
	}
	return out
}

func hasJobLink(n *html.Node) bool {
	if n.Type == html.ElementNode && n.Data == "a" {
		for _, a := range n.Attr {
			if a.Key != "href" {
				continue
			}
			href := strings.ToLower(a.Val)
			for _, hint := range jobLinkHints {
				if strings.Contains(href, hint) {
					return true
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if hasJobLink(c) {
			return true
		}
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateAtTag cuts s to at most limit bytes, backing up to the last '<'
// so no tag is left half open.
func truncateAtTag(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if idx := strings.LastIndexByte(cut, '<'); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}
