package stackoverflow

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"stackharvest/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// resolveAuthor walks the candidate anchors in an answer's signature
// region as an explicit worklist. Detour links (collectives, revision
// history) don't resolve directly; their child anchors are appended to
// the back of the worklist instead.
//
// No anchors at all means the answer was posted anonymously. A spent
// worklist downgrades to ("unknown") rather than failing the page.
func resolveAuthor(block *goquery.Selection) (*int, string, error) {
	worklist := block.Find("div.post-signature div.user-details > a").Nodes
	if len(worklist) == 0 {
		return nil, "anonymous", nil
	}

	for i := 0; i < len(worklist); i++ {
		node := worklist[i]
		href := nodeAttr(node, "href")

		switch {
		case strings.Contains(href, "users"):
			return parseProfile(node, href)
		case strings.Contains(href, "collectives"):
			worklist = append(worklist, childAnchors(node)...)
		case strings.Contains(nodeAttr(node, "title"), "history"):
			worklist = append(worklist, childAnchors(node)...)
		}
	}

	return nil, "unknown", nil
}

// parseProfile extracts the author id and name from a profile link of
// the shape /users/<id> or /users/<id>/<name>. When the name segment
// is absent it falls back to the anchor's visible text.
func parseProfile(node *html.Node, href string) (*int, string, error) {
	parsed, err := url.Parse(href)
	if err != nil {
		return nil, "", fmt.Errorf("malformed profile link %q: %w", href, err)
	}

	segments := strings.Split(strings.Trim(parsed.Path, " /"), "/")
	for i := range segments {
		segments[i] = strings.TrimSpace(segments[i])
	}
	if len(segments) < 2 || !strings.Contains(segments[0], "users") {
		return nil, "", fmt.Errorf("malformed profile path %q", href)
	}

	id, err := strconv.Atoi(segments[1])
	if err != nil {
		return nil, "", fmt.Errorf("malformed profile path %q: %w", href, err)
	}

	name := ""
	if len(segments) > 2 {
		name = segments[2]
	} else {
		name = htmlutil.CleanText(htmlutil.GetText(node))
	}
	return &id, name, nil
}

func childAnchors(node *html.Node) []*html.Node {
	return goquery.NewDocumentFromNode(node).Find("a").Nodes
}

func nodeAttr(node *html.Node, name string) string {
	for _, a := range node.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
