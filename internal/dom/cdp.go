package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FromCDP copies a populated CDP node tree into a Document. root may be the
// document node or any element; an element root is placed under a fresh
// document node. The live tree is read-locked node by node while copying.
func FromCDP(root *cdp.Node) *Document {
	d := &Document{backend: make(map[*html.Node]cdp.BackendNodeID)}

	doc := &html.Node{Type: html.DocumentNode}
	if root != nil {
		root.RLock()
		isDoc := root.NodeType == cdp.NodeTypeDocument
		children := append([]*cdp.Node(nil), root.Children...)
		root.RUnlock()

		if isDoc {
			for _, c := range children {
				if n := d.convert(c); n != nil {
					doc.AppendChild(n)
				}
			}
		} else if n := d.convert(root); n != nil {
			doc.AppendChild(n)
		}
	}

	d.doc = goquery.NewDocumentFromNode(doc)
	return d
}

func (d *Document) convert(src *cdp.Node) *html.Node {
	src.RLock()
	typ := src.NodeType
	name := strings.ToLower(src.LocalName)
	if name == "" {
		name = strings.ToLower(src.NodeName)
	}
	value := src.NodeValue
	attrs := append([]string(nil), src.Attributes...)
	children := append([]*cdp.Node(nil), src.Children...)
	id := src.BackendNodeID
	src.RUnlock()

	var n *html.Node
	switch typ {
	case cdp.NodeTypeElement:
		n = &html.Node{Type: html.ElementNode, Data: name, DataAtom: atom.Lookup([]byte(name))}
		for i := 0; i+1 < len(attrs); i += 2 {
			n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
		}
		d.backend[n] = id
	case cdp.NodeTypeText:
		return &html.Node{Type: html.TextNode, Data: value}
	case cdp.NodeTypeComment:
		return &html.Node{Type: html.CommentNode, Data: value}
	default:
		return nil
	}

	for _, c := range children {
		if cn := d.convert(c); cn != nil {
			n.AppendChild(cn)
		}
	}
	return n
}
