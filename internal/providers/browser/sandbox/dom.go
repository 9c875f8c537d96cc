package sandbox

import (
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// DOM is a read-mostly document proxy over a parsed page
type DOM struct {
	doc     *goquery.Document
	url     *url.URL
	changes []DOMChange
	mu      sync.Mutex
}

// Element is one matched node exposed to scripts
type Element struct {
	sel      *goquery.Selection
	selector string
	dom      *DOM
}

// NewDOM wraps a parsed page. pageURL feeds the location object.
func NewDOM(doc *goquery.Document, pageURL string) *DOM {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = &url.URL{}
	}
	return &DOM{doc: doc, url: u}
}

// Query returns the elements matching a CSS selector
func (d *DOM) Query(selector string) []*Element {
	var out []*Element
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{sel: s, selector: selector, dom: d})
	})
	return out
}

// Title returns the document title
func (d *DOM) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// URL returns the page address
func (d *DOM) URL() *url.URL {
	return d.url
}

// Changes returns attribute writes made by scripts
func (d *DOM) Changes() []DOMChange {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DOMChange(nil), d.changes...)
}

func (d *DOM) record(change DOMChange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changes = append(d.changes, change)
}

// TagName returns the upper-case element name
func (e *Element) TagName() string {
	return strings.ToUpper(goquery.NodeName(e.sel))
}

// GetAttribute retrieves an attribute value, "" when absent
func (e *Element) GetAttribute(name string) string {
	return e.sel.AttrOr(name, "")
}

// SetAttribute updates the underlying node and records the change
func (e *Element) SetAttribute(name, value string) {
	e.sel.SetAttr(name, value)
	e.dom.record(DOMChange{Selector: e.selector, Property: name, Value: value})
}

// TextContent returns the combined text of the element
func (e *Element) TextContent() string {
	return e.sel.Text()
}

// InnerHTML returns the element markup
func (e *Element) InnerHTML() string {
	h, _ := e.sel.Html()
	return h
}
