package subdivx

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// SearchResult is one entry of the SubDivX search page
type SearchResult struct {
	Title        string
	DetailLink   string
	Description  string
	DownloadLink string
}

// parseSearchPage walks the result list in document order. Each result
// starts with a "titulo_menu_izq" anchor, followed by its description block
// and a "bajar.php" download anchor.
func parseSearchPage(r io.Reader, baseURL string) ([]SearchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(baseURL + "/")
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	current := -1

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "titulo_menu_izq"):
				results = append(results, SearchResult{
					Title:      collapse(textContent(n)),
					DetailLink: absolute(base, attr(n, "href")),
				})
				current = len(results) - 1
				return
			case n.Data == "div" && attr(n, "id") == "buscador_detalle_sub" && current >= 0:
				results[current].Description = collapse(textContent(n))
				return
			case n.Data == "a" && strings.Contains(attr(n, "href"), "bajar.php") && current >= 0:
				if results[current].DownloadLink == "" {
					results[current].DownloadLink = absolute(base, attr(n, "href"))
				}
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	complete := results[:0]
	for _, r := range results {
		if r.DownloadLink != "" {
			complete = append(complete, r)
		}
	}
	return complete, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func absolute(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
