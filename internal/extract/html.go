package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

type htmlExtractor struct{}

func (htmlExtractor) Extract(data []byte) (string, string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}
	title := textContent(findElement(doc, "title"))
	root := findElement(doc, "body")
	if root == nil {
		root = doc
	}

	var blocks []string
	var cur strings.Builder
	flush := func() {
		blocks = append(blocks, cur.String())
		cur.Reset()
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			cur.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template", "head":
				return
			}
		}
		block := n.Type == html.ElementNode && isBlockElement(n.Data)
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	walk(root)
	flush()

	for i, b := range blocks {
		blocks[i] = strings.Join(strings.Fields(b), " ")
	}
	return title, joinBlocks(blocks), nil
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "section", "article", "main", "aside", "header", "footer", "nav",
		"h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol", "table", "tr", "td", "th",
		"blockquote", "pre", "br", "hr", "dd", "dt", "figcaption":
		return true
	}
	return false
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}
