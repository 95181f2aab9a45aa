package transcode

import "regexp"

// tagRe strips every HTML tag, the same single-regexp-substitution idiom
// the teacher's stripansi package uses to strip ANSI escape codes from a
// captured terminal stream before treating it as plain text.
var tagRe = regexp.MustCompile(`(?s)<[^>]*>`)

// entityRe unescapes the handful of entities plain text is likely to
// carry once tags are gone; anything more exotic is left as-is rather
// than pulled in a full HTML-entity table for a best-effort fallback.
var entityRe = regexp.MustCompile(`&(amp|lt|gt|quot|#39|nbsp);`)

var entityReplacements = map[string]string{
	"&amp;": "&", "&lt;": "<", "&gt;": ">", "&quot;": `"`, "&#39;": "'", "&nbsp;": " ",
}

// PlaintextFallback renders raw as a stripped-plaintext page, used when
// the upstream parser reports ParseFailure (spec §7: "ParseFailure ->
// serve a stripped-plaintext fallback"). It never attempts to repair or
// re-parse the document; it degrades to something legible instead of
// an error page.
func PlaintextFallback(raw []byte) string {
	stripped := tagRe.ReplaceAllString(string(raw), "\n")
	return entityRe.ReplaceAllStringFunc(stripped, func(m string) string {
		if r, ok := entityReplacements[m]; ok {
			return r
		}
		return m
	})
}
