package transcode

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/mrmarble/xiinoproxy/internal/budget"
	"github.com/mrmarble/xiinoproxy/internal/device"
)

// hasDescendantTable reports whether n (itself a <table>) contains a
// further nested <table> anywhere below it. Per spec §4.D: "only the
// innermost table in a nesting chain renders as a table; every table
// that itself contains a table is flattened to <br>-delimited cell text
// in document order."
func hasDescendantTable(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && strings.ToLower(c.Data) == "table" {
			return true
		}
		if hasDescendantTable(c) {
			return true
		}
	}
	return false
}

// flattenTable replaces an outer (non-innermost) <table> with its cell
// text joined by <br>, in document order, while any genuinely innermost
// table nested inside it is preserved as a real table and processed
// normally. Grounded on the teacher's pkg/renderer/svg path, which walks
// a tree in document order collecting leaf content into a flat output
// stream rather than preserving the source structure.
func (t *Transcoder) flattenTable(ctx context.Context, parent, table *html.Node, baseURL *url.URL, dev device.Profile, b *budget.Budget) {
	container := &html.Node{Type: html.ElementNode, Data: "div"}

	first := true
	collectFlattenedCells(table, func(cell *html.Node) {
		if innermost := strings.ToLower(cell.Data) == "table" && !hasDescendantTable(cell); innermost {
			if !first {
				container.AppendChild(&html.Node{Type: html.ElementNode, Data: "br"})
			}
			first = false
			table.RemoveChild(cell)
			container.AppendChild(cell)
			// Left for the single t.walk below - it's still an untouched
			// <table> in the allow-list, processed exactly once there.
			return
		}
		if !first {
			container.AppendChild(&html.Node{Type: html.ElementNode, Data: "br"})
		}
		first = false
		for c := cell.FirstChild; c != nil; {
			next := c.NextSibling
			cell.RemoveChild(c)
			container.AppendChild(c)
			c = next
		}
	})

	parent.InsertBefore(container, table)
	parent.RemoveChild(table)
	t.walk(ctx, container, baseURL, dev, b)
}

// collectFlattenedCells visits, in document order, every td/th cell of a
// table plus every innermost nested table encountered along the way
// (which is reported as a whole node, not descended into further),
// invoking visit once per unit.
func collectFlattenedCells(n *html.Node, visit func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(c.Data)
		switch {
		case tag == "table":
			visit(c)
		case tag == "td" || tag == "th":
			visit(c)
		case tableStructureTags[tag]:
			collectFlattenedCells(c, visit)
		default:
			collectFlattenedCells(c, visit)
		}
	}
}
