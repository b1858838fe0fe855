package kernel

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// parseVersions pulls release tags out of a cgit refs page. cgit renders
// tags as table rows: the tag link text is the version, the third cell is
// the age/date.
func parseVersions(r io.Reader) ([]Version, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tag listing: %w", err)
	}

	var versions []Version
	for _, row := range findAll(doc, "tr") {
		link := findFirst(row, "a")
		if link == nil {
			continue
		}
		text := strings.TrimSpace(nodeText(link))
		if !versionRe.MatchString(text) {
			continue
		}

		var date string
		if cells := findAll(row, "td"); len(cells) >= 3 {
			date = strings.TrimSpace(nodeText(cells[2]))
		}
		versions = append(versions, Version{Version: text, Date: date})
	}

	sortVersions(versions)
	versions = dedupVersions(versions)
	return versions, nil
}

// parseShortlog pulls commit summaries out of a cgit log page. Each data row
// holds date / subject-link / author cells; the commit hash rides in the
// link's ?id= query parameter.
func parseShortlog(r io.Reader) ([]Commit, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse shortlog: %w", err)
	}

	var commits []Commit
	for _, row := range findAll(doc, "tr") {
		cells := findAll(row, "td")
		if len(cells) < 3 {
			continue
		}

		link := findFirst(cells[1], "a")
		if link == nil {
			continue
		}
		subject := strings.TrimSpace(nodeText(link))
		if subject == "" {
			continue
		}

		commits = append(commits, Commit{
			Hash:    hashFromHref(attr(link, "href")),
			Subject: subject,
			Author:  strings.TrimSpace(nodeText(cells[2])),
		})
	}

	return commits, nil
}

func dedupVersions(versions []Version) []Version {
	out := versions[:0]
	for i, v := range versions {
		if i > 0 && versions[i-1].Version == v.Version {
			continue
		}
		out = append(out, v)
	}
	return out
}

func hashFromHref(href string) string {
	_, id, ok := strings.Cut(href, "id=")
	if !ok {
		return ""
	}
	if i := strings.IndexAny(id, "&#"); i >= 0 {
		id = id[:i]
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

// findAll returns every descendant element with the given tag, in document
// order.
func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == tag {
			out = append(out, node)
			if tag == "tr" {
				// Rows don't nest; no need to descend further.
				return
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func findFirst(n *html.Node, tag string) *html.Node {
	if all := findAll(n, tag); len(all) > 0 {
		return all[0]
	}
	return nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
