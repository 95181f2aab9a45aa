// Package transcode rewrites a parsed modern HTML document into the
// restricted Xiino-legal tag subset (spec §4.D). The allow-list is a
// static table consulted by a single traversal, not per-call reflection
// (spec §9 design note "dynamic parser output -> strict schema"), the
// same enum-of-known-values shape the teacher's pkg/theme uses to
// validate a fixed set of fields.
package transcode

// validator checks whether an attribute value is acceptable for its tag.
// Returns the (possibly normalized) value and whether it is valid.
type validator func(value string) (string, bool)

// attrRule pairs a validator with the attribute name it governs.
type attrRule struct {
	name      string
	validator validator
}

// tagRule is the set of attributes a tag may carry, each validated by its
// own rule.
type tagRule struct {
	attrs map[string]validator
}

// deletedTags are stripped along with their children - they carry no
// content the client can render (spec §4.D: "script, style, head metadata
// other than title/base, and nodes matching no supported content").
var deletedTags = map[string]bool{
	"script": true, "style": true, "applet": true, "embed": true,
	"object": true, "audio": true, "video": true, "iframe": true,
	"canvas": true, "noscript": true, "svg": true,
}

// headMetaKeep are the only <head> children preserved; everything else
// under <head> is deleted.
var headMetaKeep = map[string]bool{
	"title": true, "base": true, "meta": true,
}

// allowList is the per-tag attribute table (spec §TAG). Tags not present
// here are stripped (node removed, children promoted) unless they're in
// deletedTags.
var allowList = map[string]tagRule{
	"a":          {attrs: merge(commonAttrs, map[string]validator{"href": urlAttr, "name": anyString, "target": enum("_blank", "_self", "_top", "_parent", "xiino")}) },
	"address":    {attrs: commonAttrs},
	"area":       {attrs: merge(commonAttrs, map[string]validator{"href": urlAttr, "shape": enum("rect", "circle", "poly", "default"), "coords": anyString, "alt": anyString})},
	"b":          {attrs: commonAttrs},
	"base":       {attrs: map[string]validator{"href": urlAttr}},
	"basefont":   {attrs: map[string]validator{"size": numericAttr}},
	"blink":      {attrs: commonAttrs},
	"blockquote": {attrs: commonAttrs},
	"body":       {attrs: merge(commonAttrs, map[string]validator{"background": urlAttr, "bgcolor": anyString, "text": anyString, "link": anyString})},
	"br":         {attrs: map[string]validator{"clear": enum("left", "right", "all", "none")}},
	"center":     {attrs: commonAttrs},
	"caption":    {attrs: merge(commonAttrs, map[string]validator{"align": enum("top", "bottom", "left", "right")})},
	"cite":       {attrs: commonAttrs},
	"code":       {attrs: commonAttrs},
	"dd":         {attrs: commonAttrs},
	"dir":        {attrs: commonAttrs},
	"div":        {attrs: merge(commonAttrs, map[string]validator{"align": enum("left", "right", "center", "justify")})},
	"dl":         {attrs: commonAttrs},
	"dt":         {attrs: commonAttrs},
	"font":       {attrs: merge(commonAttrs, map[string]validator{"size": numericAttr, "color": anyString, "face": anyString})},
	"form":       {attrs: map[string]validator{"action": urlAttr, "method": enum("get", "post"), "name": anyString}},
	"frame":      {attrs: map[string]validator{"src": urlAttr, "name": anyString}},
	"frameset":   {attrs: map[string]validator{"rows": anyString, "cols": anyString}},
	"h1":         {attrs: alignOnly}, "h2": {attrs: alignOnly}, "h3": {attrs: alignOnly},
	"h4": {attrs: alignOnly}, "h5": {attrs: alignOnly}, "h6": {attrs: alignOnly},
	"hr": {attrs: merge(commonAttrs, map[string]validator{
		"size": numericAttr, "width": numericAttr, "noshade": anyString,
		"align": enum("left", "right", "center"),
	})},
	"i":   {attrs: commonAttrs},
	"img": {attrs: merge(commonAttrs, map[string]validator{
		"src": urlAttr, "alt": anyString, "width": numericAttr, "height": numericAttr,
		"align": enum("top", "middle", "bottom", "left", "right"), "border": numericAttr,
		"ebdwidth": numericAttr, "ebdheight": numericAttr,
	})},
	"input": {attrs: merge(commonAttrs, map[string]validator{
		"type": enum("text", "password", "checkbox", "radio", "submit", "reset", "button", "hidden", "file", "image"),
		"name": anyString, "value": anyString, "size": numericAttr, "maxlength": numericAttr, "checked": anyString,
	})},
	"isindex": {attrs: map[string]validator{"prompt": anyString}},
	"kbd":     {attrs: commonAttrs},
	"li":      {attrs: merge(commonAttrs, map[string]validator{"type": enum("disc", "circle", "square", "1", "a", "A", "i", "I"), "value": numericAttr})},
	"map":     {attrs: map[string]validator{"name": anyString}},
	"meta":    {attrs: map[string]validator{"name": anyString, "content": anyString, "http-equiv": anyString, "charset": anyString}},
	"multicol": {attrs: map[string]validator{"cols": numericAttr, "gutter": numericAttr}},
	"noframes": {attrs: commonAttrs},
	"nobr":     {attrs: commonAttrs},
	"ol":       {attrs: merge(commonAttrs, map[string]validator{"type": enum("1", "a", "A", "i", "I"), "start": numericAttr})},
	"option":   {attrs: map[string]validator{"value": anyString, "selected": anyString}},
	"p":        {attrs: alignOnly},
	"plaintext": {attrs: commonAttrs},
	"pre":      {attrs: commonAttrs},
	"s":        {attrs: commonAttrs},
	"select":   {attrs: map[string]validator{"name": anyString, "size": numericAttr, "multiple": anyString}},
	"small":    {attrs: commonAttrs},
	"strike":   {attrs: commonAttrs},
	"strong":   {attrs: commonAttrs},
	"sub":      {attrs: commonAttrs},
	"sup":      {attrs: commonAttrs},
	"table": {attrs: merge(commonAttrs, map[string]validator{
		"border": numericAttr, "cellpadding": numericAttr, "cellspacing": numericAttr,
		"width": numericAttr, "bgcolor": anyString, "align": enum("left", "right", "center"),
	})},
	"td": {attrs: merge(commonAttrs, map[string]validator{
		"align": enum("left", "right", "center", "justify"), "valign": enum("top", "middle", "bottom", "baseline"),
		"colspan": numericAttr, "rowspan": numericAttr, "width": numericAttr, "bgcolor": anyString, "nowrap": anyString,
	})},
	"th": {attrs: merge(commonAttrs, map[string]validator{
		"align": enum("left", "right", "center", "justify"), "valign": enum("top", "middle", "bottom", "baseline"),
		"colspan": numericAttr, "rowspan": numericAttr, "width": numericAttr,
	})},
	"tr": {attrs: merge(commonAttrs, map[string]validator{
		"align": enum("left", "right", "center"), "valign": enum("top", "middle", "bottom"), "bgcolor": anyString,
	})},
	"tt":  {attrs: commonAttrs},
	"u":   {attrs: commonAttrs},
	"ul":  {attrs: merge(commonAttrs, map[string]validator{"type": enum("disc", "circle", "square")})},
	"var": {attrs: commonAttrs},
	"xmp": {attrs: commonAttrs},
	"wbr": {attrs: map[string]validator{}},
}

var commonAttrs = map[string]validator{
	"id":    anyString,
	"class": anyString,
}

var alignOnly = merge(commonAttrs, map[string]validator{"align": enum("left", "right", "center", "justify")})

func merge(base map[string]validator, extra map[string]validator) map[string]validator {
	out := make(map[string]validator, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// tableStructureTags are the table-structure elements; the
// table-flattening pass descends through them to reach the cells.
var tableStructureTags = map[string]bool{
	"table": true, "tr": true, "td": true, "th": true, "caption": true,
}
