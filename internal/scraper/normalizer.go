package scraper

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText flattens an HTML fragment to whitespace-collapsed text. Input
// without markup is returned collapsed as-is.
func PlainText(htmlContent string) string {
	if !strings.ContainsAny(htmlContent, "<&") {
		return strings.Join(strings.Fields(htmlContent), " ")
	}
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return strings.Join(strings.Fields(htmlContent), " ")
	}
	return strings.Join(strings.Fields(ExtractText(doc)), " ")
}

// ExtractText concatenates text nodes below n, skipping script and style.
func ExtractText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return ""
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(ExtractText(c))
		if c.Type == html.ElementNode && blockElement(c.Data) {
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

func blockElement(tag string) bool {
	switch tag {
	case "p", "div", "li", "br", "h1", "h2", "h3", "h4", "tr", "td", "section", "article":
		return true
	}
	return false
}
