package proxypool

import (
	"strings"

	"golang.org/x/net/html"
)

// countLeafNodes parses html as a DOM tree and counts element nodes with no
// element children (the "leaf_nodes_too_few" check).
func countLeafNodes(raw string) int {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return 0
	}

	var count int
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if !hasElementChild(n) {
				count++
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return count
}

func hasElementChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return true
		}
	}
	return false
}
