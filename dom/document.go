// Package dom holds the server-side host page that trackers render into.
//
// The page is a plain golang.org/x/net/html tree. Every read and write goes
// through Document.View or Document.Update so trackers, timers and HTTP
// handlers can share one page.
package dom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ScriptPath is where the host page loads the live update script from
const ScriptPath = "/static/recenttrack.js"

type Document struct {
	mu   sync.RWMutex
	root *html.Node
	doc  *goquery.Document
}

// Tx is the view of a Document handed to View and Update callbacks. It must
// not be retained after the callback returns.
type Tx struct {
	doc *goquery.Document
}

// Parse reads a host page
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("error parsing host page: %w", err)
	}
	return &Document{root: root, doc: goquery.NewDocumentFromNode(root)}, nil
}

// HostPage builds the default page with one container per identity. Ids are
// trimmed, blank and repeated ids get no container.
func HostPage(title string, ids []string) *Document {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>")
	b.WriteString(EscapeHTML(title))
	b.WriteString("</title><style>")
	b.WriteString("body{font-family:sans-serif;font-size:12px}")
	b.WriteString("dl{margin:0 0 12px 0}dd{margin:0;width:125px;overflow:hidden}")
	b.WriteString("dt img{vertical-align:middle;margin-right:4px}")
	b.WriteString("</style><script src=\"")
	b.WriteString(ScriptPath)
	b.WriteString("\" defer></script></head><body>")
	containers := lo.Uniq(lo.FilterMap(ids, func(id string, _ int) (string, bool) {
		id = Trim(id)
		return id, id != ""
	}))
	for _, id := range containers {
		b.WriteString("<div class=\"recenttrack\" id=\"")
		b.WriteString(EscapeHTML(id))
		b.WriteString("\"></div>")
	}
	b.WriteString("</body></html>")

	doc, err := Parse(strings.NewReader(b.String()))
	if err != nil {
		// The tokenizer accepts any input, this only fails on reader errors
		panic(err)
	}
	return doc
}

// View runs fn with the document read locked
func (d *Document) View(fn func(tx *Tx) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return fn(&Tx{doc: d.doc})
}

// Update runs fn with the document write locked
func (d *Document) Update(fn func(tx *Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(&Tx{doc: d.doc})
}

// Render writes the whole page
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return html.Render(w, d.root)
}

// OuterHTML returns the markup of the element with the given id
func (d *Document) OuterHTML(id string) (string, bool) {
	var out string
	var found bool
	_ = d.View(func(tx *Tx) error {
		out, found = tx.OuterHTML(id)
		return nil
	})
	return out, found
}

// Has reports whether an element with the given id exists
func (d *Document) Has(id string) bool {
	found := false
	_ = d.View(func(tx *Tx) error {
		found = tx.ByID(id) != nil
		return nil
	})
	return found
}

// ByID finds an element by its exact id. The id is compared literally so
// identities with CSS metacharacters still match.
func (tx *Tx) ByID(id string) *html.Node {
	sel := tx.byID(id)
	if sel.Length() == 0 {
		return nil
	}
	return sel.Get(0)
}

func (tx *Tx) byID(id string) *goquery.Selection {
	return tx.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("id")
		return v == id
	}).First()
}

// OuterHTML renders the element with the given id
func (tx *Tx) OuterHTML(id string) (string, bool) {
	sel := tx.byID(id)
	if sel.Length() == 0 {
		return "", false
	}
	out, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", false
	}
	return out, true
}

// ReplaceChildren removes every child of parent and appends children
func (tx *Tx) ReplaceChildren(parent *html.Node, children ...*html.Node) {
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		c = next
	}
	for _, c := range children {
		parent.AppendChild(c)
	}
}

// ReplaceChild swaps old for replacement. A nil old appends replacement.
func (tx *Tx) ReplaceChild(parent, replacement, old *html.Node) {
	if old == nil || old.Parent != parent {
		parent.AppendChild(replacement)
		return
	}
	parent.InsertBefore(replacement, old)
	parent.RemoveChild(old)
}

// SetInnerHTML replaces the children of n with the parsed markup. Any text
// interpolated into markup must already be passed through EscapeHTML.
func (tx *Tx) SetInnerHTML(n *html.Node, markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), n)
	if err != nil {
		return fmt.Errorf("error parsing fragment: %w", err)
	}
	tx.ReplaceChildren(n, nodes...)
	return nil
}

// Element creates a detached element node
func Element(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
}

// Text creates a detached text node. The serializer escapes it on render.
func Text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func Attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

// Append adds children to parent and returns parent
func Append(parent *html.Node, children ...*html.Node) *html.Node {
	for _, c := range children {
		parent.AppendChild(c)
	}
	return parent
}

// AttrValue returns the value of the attribute key on n
func AttrValue(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// TextContent concatenates the text nodes below n
func TextContent(n *html.Node) string {
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
	walk(n)
	return b.String()
}
