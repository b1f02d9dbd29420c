package abcedu

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
)

var durationPattern = regexp.MustCompile(`(?i)(\d+)\s*min`)

// parseListing extracts catalog entries from a subject listing page.
// Topic section headings (h2/h3) label the entries that follow them.
func parseListing(base *url.URL, body []byte, subject string) ([]*domain.ResourceCatalogEntry, bool, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("malformed HTML: %w", err)
	}

	var (
		entries []*domain.ResourceCatalogEntry
		seen    = make(map[string]bool)
		topic   string
		hasMore bool
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "h2", "h3":
				if heading := collapseText(n); heading != "" {
					topic = heading
				}
			case "a", "button":
				if isLoadMore(n) {
					hasMore = true
				}
				if n.Data == "a" {
					if entry := listingEntry(base, n, subject, topic); entry != nil && !seen[entry.URL] {
						seen[entry.URL] = true
						entries = append(entries, entry)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return entries, hasMore, nil
}

// listingEntry converts an anchor into a catalog entry, or nil when the
// link does not point at an education resource.
func listingEntry(base *url.URL, n *html.Node, subject, topic string) *domain.ResourceCatalogEntry {
	href := attr(n, "href")
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""

	if resolved.Host != base.Host {
		return nil
	}
	path := resolved.Path
	if !strings.Contains(path, "/education/") {
		return nil
	}
	// Navigation back into listings is not a resource
	if strings.Contains(path, "/subjects-and-topics/") {
		return nil
	}

	title := collapseText(n)
	if title == "" {
		return nil
	}

	return &domain.ResourceCatalogEntry{
		URL:             resolved.String(),
		Subject:         subject,
		Topic:           topic,
		DiscoveredTitle: title,
	}
}

// isLoadMore reports whether a node is the listing's load-more control.
func isLoadMore(n *html.Node) bool {
	if strings.Contains(attr(n, "class"), "load-more") {
		return true
	}
	if attr(n, "rel") == "next" {
		return true
	}
	return strings.EqualFold(collapseText(n), "load more")
}

// parseResource extracts the raw material for extraction from a
// resource page.
func parseResource(rawURL string, body []byte) (*driven.ResourcePage, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("malformed HTML: %w", err)
	}

	page := &driven.ResourcePage{
		URL:  rawURL,
		HTML: string(body),
	}

	page.Title = firstNonEmpty(
		metaContent(doc, "property", "og:title"),
		elementText(doc, "title"),
		elementText(doc, "h1"),
	)
	page.Description = firstNonEmpty(
		metaContent(doc, "name", "description"),
		metaContent(doc, "property", "og:description"),
	)

	content := findElement(doc, "main")
	if content == nil {
		content = findElement(doc, "article")
	}
	if content == nil {
		content = findElement(doc, "body")
	}
	if content != nil {
		page.Body = bodyText(content)
	}

	if m := durationPattern.FindStringSubmatch(page.Body); m != nil {
		if minutes, err := strconv.Atoi(m[1]); err == nil {
			page.DurationMin = minutes
		}
	}

	return page, nil
}

// bodyText gathers readable text below n, skipping chrome and scripts.
func bodyText(n *html.Node) string {
	var sb strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "nav", "header", "footer":
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return collapseWhitespace(sb.String())
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// collapseText returns the whitespace-collapsed text content of n.
func collapseText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseWhitespace(sb.String())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// metaContent finds <meta key=value content=...>.
func metaContent(doc *html.Node, key, value string) string {
	var found string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" && attr(n, key) == value {
			found = strings.TrimSpace(attr(n, "content"))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

func findElement(doc *html.Node, name string) *html.Node {
	var found *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == name {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

func elementText(doc *html.Node, name string) string {
	if n := findElement(doc, name); n != nil {
		return collapseText(n)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
