// Package dom holds an immutable, queryable snapshot of a page's DOM.
//
// Live pages are snapshotted from the CDP node tree; each element keeps the
// backend node id of the node it was copied from so that actions can be sent
// back to the browser. Static markup can be parsed for tests and tools.
package dom

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"golang.org/x/net/html"
)

// Document is a snapshot of a page.
type Document struct {
	doc     *goquery.Document
	backend map[*html.Node]cdp.BackendNodeID
}

// Element is an element of a snapshot. BackendID is zero for parsed markup.
type Element struct {
	Node      *html.Node
	BackendID cdp.BackendNodeID
}

// Parse builds a Document from markup.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return &Document{doc: doc, backend: map[*html.Node]cdp.BackendNodeID{}}, nil
}

// MustParse parses markup and panics on error. Intended for fixtures.
func MustParse(markup string) *Document {
	d, err := Parse(strings.NewReader(markup))
	if err != nil {
		panic(err)
	}
	return d
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.doc.Selection.Nodes[0]
}

// Find runs a CSS selector against the whole document.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// FindMatcher runs a precompiled matcher against the whole document.
func (d *Document) FindMatcher(m goquery.Matcher) *goquery.Selection {
	return d.doc.FindMatcher(m)
}

// Element wraps n with its backend node id, if it has one.
func (d *Document) Element(n *html.Node) Element {
	return Element{Node: n, BackendID: d.backend[n]}
}

// Title returns the document title with whitespace collapsed, as document.title does.
func (d *Document) Title() string {
	return collapse(d.doc.Find("title").First().Text())
}

// Tag returns the lower-case tag name.
func (e Element) Tag() string {
	if e.Node == nil || e.Node.Type != html.ElementNode {
		return ""
	}
	return e.Node.Data
}

// Text returns the concatenated text of the element and its descendants.
func (e Element) Text() string {
	if e.Node == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.Node)
	return b.String()
}

// Attr returns an attribute value.
func (e Element) Attr(name string) (string, bool) {
	if e.Node == nil {
		return "", false
	}
	for _, a := range e.Node.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// IsZero reports whether e refers to no element.
func (e Element) IsZero() bool { return e.Node == nil }

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
