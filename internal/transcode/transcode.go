package transcode

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/mrmarble/xiinoproxy/internal/budget"
	"github.com/mrmarble/xiinoproxy/internal/device"
	"github.com/mrmarble/xiinoproxy/internal/imageproc"
)

// ImageFetcher retrieves the raw bytes (and content type) of a resolved
// image URL. Implemented by internal/fetch's HTTP client; kept as a
// narrow interface here so transcode never imports the fetcher package
// directly (spec §4.D: "the transcoder calls C, passing the fetched image
// bytes" - D owns the fetch call, not C).
type ImageFetcher interface {
	FetchImage(ctx context.Context, rawURL string) ([]byte, string, error)
}

// Transcoder rewrites a parsed HTML document into the Xiino-legal subset.
type Transcoder struct {
	images  *imageproc.Processor
	fetcher ImageFetcher
}

// New creates a Transcoder.
func New(images *imageproc.Processor, fetcher ImageFetcher) *Transcoder {
	return &Transcoder{images: images, fetcher: fetcher}
}

// Transcode performs the single top-down traversal described in spec
// §4.D, mutating root in place and returning it. Grounded on the
// teacher's pkg/ir/processor.go Process() - a single top-down pass over a
// parsed structure producing a rewritten tree while tracking a running
// tally (there: Stats; here: the request Budget).
func (t *Transcoder) Transcode(ctx context.Context, root *html.Node, baseURL *url.URL, dev device.Profile, b *budget.Budget) *html.Node {
	t.walk(ctx, root, baseURL, dev, b)
	return root
}

func (t *Transcoder) walk(ctx context.Context, parent *html.Node, baseURL *url.URL, dev device.Profile, b *budget.Budget) {
	t.walkRange(ctx, parent, parent.FirstChild, nil, baseURL, dev, b)
}

// walkRange processes parent's children starting at first and stopping
// before stop (stop == nil means "to the end"). Splitting this out from
// walk lets a "strip" (promoteChildren) reprocess only the newly spliced
// children instead of re-walking every already-processed sibling of
// parent from the top.
func (t *Transcoder) walkRange(ctx context.Context, parent, first, stop *html.Node, baseURL *url.URL, dev device.Profile, b *budget.Budget) {
	child := first
	for child != nil && child != stop {
		next := child.NextSibling

		if b.Exhausted() {
			t.truncateFrom(parent, child)
			return
		}

		switch child.Type {
		case html.ElementNode:
			t.processElement(ctx, parent, child, baseURL, dev, b)
		case html.TextNode:
			t.accountText(child, b)
		case html.CommentNode, html.DoctypeNode:
			parent.RemoveChild(child)
		}

		child = next
	}
}

// processElement classifies one element: delete, flatten (nested table),
// strip (not in allow-list), or keep-and-filter-attributes.
func (t *Transcoder) processElement(ctx context.Context, parent, n *html.Node, baseURL *url.URL, dev device.Profile, b *budget.Budget) {
	tag := strings.ToLower(n.Data)

	if tag == "head" {
		t.filterHead(n)
		t.walk(ctx, n, baseURL, dev, b)
		return
	}

	if deletedTags[tag] {
		parent.RemoveChild(n)
		return
	}

	if tag == "meta" {
		t.rewriteMetaRefresh(parent, n, baseURL)
		return
	}

	if tag == "table" && hasDescendantTable(n) {
		t.flattenTable(ctx, parent, n, baseURL, dev, b)
		return
	}

	rule, ok := allowList[tag]
	if !ok {
		first, anchor := promoteChildren(parent, n)
		// Only the newly promoted children need processing - everything
		// before first was already walked by the caller, and anchor marks
		// where the original walk was about to resume.
		t.walkRange(ctx, parent, first, anchor, baseURL, dev, b)
		return
	}

	filterAttributes(n, rule, baseURL)

	switch tag {
	case "img":
		t.inlineImage(ctx, parent, n, baseURL, dev, b)
		return // img is a leaf - no children to recurse into
	case "a":
		t.enforceAnchorScheme(n, baseURL)
	}

	t.walk(ctx, n, baseURL, dev, b)
}

// filterHead keeps only title/base/meta among head children, per spec
// §4.D ("head metadata other than <title> and <base>... are deleted").
func (t *Transcoder) filterHead(head *html.Node) {
	child := head.FirstChild
	for child != nil {
		next := child.NextSibling
		if child.Type == html.ElementNode && !headMetaKeep[strings.ToLower(child.Data)] {
			head.RemoveChild(child)
		}
		child = next
	}
}

// promoteChildren detaches n from parent but splices n's children into
// parent at n's former position - the "strip" operation (spec §4.D). It
// returns the first promoted child (or anchor if n had none) and the
// anchor node the promoted range stops before, so a caller can reprocess
// exactly the spliced-in range instead of re-walking all of parent.
func promoteChildren(parent, n *html.Node) (first, anchor *html.Node) {
	anchor = n.NextSibling
	first = anchor
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		if anchor != nil {
			parent.InsertBefore(c, anchor)
		} else {
			parent.AppendChild(c)
		}
		if first == anchor {
			first = c
		}
		c = next
	}
	parent.RemoveChild(n)
	return first, anchor
}

// filterAttributes drops every attribute not in rule.attrs or whose value
// fails that attribute's validator.
func filterAttributes(n *html.Node, rule tagRule, baseURL *url.URL) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		name := strings.ToLower(a.Key)
		v, ok := rule.attrs[name]
		if !ok {
			continue
		}
		val := a.Val
		if isURLAttr(name) {
			resolved, ok2 := resolveURL(baseURL, val)
			if !ok2 {
				continue
			}
			val = resolved
		} else {
			normalized, ok2 := v(val)
			if !ok2 {
				continue
			}
			val = normalized
		}
		a.Val = val
		kept = append(kept, a)
	}
	n.Attr = kept
}

func isURLAttr(name string) bool {
	switch name {
	case "href", "src", "action", "background":
		return true
	}
	return false
}

// resolveURL resolves value against base and validates its scheme is
// http/https/mailto, or the host ends in .xiino (spec §4.D).
func resolveURL(base *url.URL, value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	if strings.HasPrefix(strings.ToLower(value), "mailto:") {
		return value, true
	}
	u, err := url.Parse(value)
	if err != nil {
		return "", false
	}
	resolved := u
	if !u.IsAbs() && base != nil {
		resolved = base.ResolveReference(u)
	}
	scheme := strings.ToLower(resolved.Scheme)
	if scheme == "http" || scheme == "https" {
		return resolved.String(), true
	}
	if strings.HasSuffix(strings.ToLower(resolved.Hostname()), ".xiino") {
		return resolved.String(), true
	}
	return "", false
}

// enforceAnchorScheme drops href (keeping the anchor's text) when the
// resolved scheme is not http(s)/mailto/.xiino (spec §4.D, and error kind
// UnsupportedScheme in spec §7: "Drop link/image silently").
func (t *Transcoder) enforceAnchorScheme(n *html.Node, baseURL *url.URL) {
	for i, a := range n.Attr {
		if strings.ToLower(a.Key) != "href" {
			continue
		}
		if _, ok := resolveURL(baseURL, a.Val); !ok {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
		}
		return
	}
}

// accountText decrements the budget for a text node's byte weight and
// truncates the containing document when the page budget is exhausted
// mid-node (spec §4.D budget policy).
func (t *Transcoder) accountText(n *html.Node, b *budget.Budget) {
	size := int64(len(n.Data))
	if !b.TryConsumeBytes(size) {
		n.Data = truncateToFit(n.Data, b)
	}
}

// truncateToFit keeps as much of data as the remaining budget allows.
func truncateToFit(data string, b *budget.Budget) string {
	remaining := b.BytesRemaining()
	if remaining <= 0 {
		return ""
	}
	if int64(len(data)) <= remaining {
		b.TryConsumeBytes(int64(len(data)))
		return data
	}
	cut := data[:remaining]
	b.TryConsumeBytes(int64(len(cut)))
	return cut
}

// truncateFrom removes every remaining sibling from child onward and
// appends a short truncation notice, per spec §4.D: "truncate at the next
// element boundary and append a short notice element."
func (t *Transcoder) truncateFrom(parent, child *html.Node) {
	for c := child; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		c = next
	}
	notice := &html.Node{
		Type: html.ElementNode,
		Data: "p",
	}
	notice.AppendChild(&html.Node{
		Type: html.TextNode,
		Data: "[page truncated - size limit reached]",
	})
	parent.AppendChild(notice)
}

// rewriteMetaRefresh converts <meta http-equiv="refresh" content="N;url=...">
// into a <a> pointing at the target URL with link text "Continue" (spec
// §4.D). Any other <meta> is dropped (it carries nothing the Xiino
// renderer can display).
func (t *Transcoder) rewriteMetaRefresh(parent, n *html.Node, baseURL *url.URL) {
	var httpEquiv, content string
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "http-equiv":
			httpEquiv = strings.ToLower(a.Val)
		case "content":
			content = a.Val
		}
	}

	if httpEquiv != "refresh" {
		parent.RemoveChild(n)
		return
	}

	target := parseRefreshURL(content)
	if target == "" {
		parent.RemoveChild(n)
		return
	}
	resolved, ok := resolveURL(baseURL, target)
	if !ok {
		parent.RemoveChild(n)
		return
	}

	anchor := &html.Node{
		Type: html.ElementNode,
		Data: "a",
		Attr: []html.Attribute{{Key: "href", Val: resolved}},
	}
	anchor.AppendChild(&html.Node{Type: html.TextNode, Data: "Continue"})

	parent.InsertBefore(anchor, n)
	parent.RemoveChild(n)
}

// parseRefreshURL extracts the URL out of a refresh content value such as
// "5; url=https://example.com/next".
func parseRefreshURL(content string) string {
	idx := strings.Index(strings.ToLower(content), "url=")
	if idx < 0 {
		return ""
	}
	target := content[idx+4:]
	target = strings.Trim(target, `"' `)
	return target
}

// inlineImage calls the image processor with the fetched bytes (already
// retrieved by this fetch call, owned by D per spec §4.D), rewriting SRC
// to an inline EBDImage reference and adding EBDWIDTH/EBDHEIGHT on
// success, or replacing the element with its ALT text (or deleting it)
// on failure (spec §4.D, §7 "image-level errors are isolated").
func (t *Transcoder) inlineImage(ctx context.Context, parent, n *html.Node, baseURL *url.URL, dev device.Profile, b *budget.Budget) {
	src := attrValue(n, "src")
	alt := attrValue(n, "alt")

	fail := func() {
		if alt != "" {
			parent.InsertBefore(&html.Node{Type: html.TextNode, Data: alt}, n)
		}
		parent.RemoveChild(n)
	}

	if src == "" || t.fetcher == nil || t.images == nil {
		fail()
		return
	}

	resolved, ok := resolveURL(baseURL, src)
	if !ok {
		fail()
		return
	}

	raw, contentType, err := t.fetcher.FetchImage(ctx, resolved)
	if err != nil {
		fail()
		return
	}

	result, err := t.images.Transcode(ctx, raw, contentType, dev, b)
	if err != nil {
		fail()
		return
	}

	setAttr(n, "src", fmt.Sprintf("data:ebd;hex,%s", result.SerializedSource))
	setAttr(n, "ebdwidth", fmt.Sprintf("%d", result.EBDWidth))
	setAttr(n, "ebdheight", fmt.Sprintf("%d", result.EBDHeight))
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}
