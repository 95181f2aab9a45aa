package transcode

import (
	"net/url"
	"strconv"
	"strings"
)

// anyString accepts any value verbatim, including an empty one (spec §4.D attributes
// with no further enumerated/numeric/URL constraint, e.g. NAME, VALUE).
func anyString(v string) (string, bool) {
	return v, true
}

// enum builds a validator that accepts only one of the given values
// (case-insensitive), per spec §4.D "enumerated attributes... must match
// the listed set; mismatches drop the attribute."
func enum(allowed ...string) validator {
	set := make(map[string]string, len(allowed))
	for _, a := range allowed {
		set[strings.ToLower(a)] = a
	}
	return func(v string) (string, bool) {
		norm, ok := set[strings.ToLower(strings.TrimSpace(v))]
		return norm, ok
	}
}

// numericAttr accepts a non-negative integer or a percentage, per spec
// §4.D "Numeric attributes... must parse as a non-negative integer or a
// percentage; otherwise the attribute is dropped."
func numericAttr(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	if strings.HasSuffix(v, "%") {
		n, err := strconv.Atoi(strings.TrimSuffix(v, "%"))
		if err != nil || n < 0 {
			return "", false
		}
		return v, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return "", false
	}
	return v, true
}

// allowedURLSchemes are the schemes a resolved URL attribute may use;
// anything else drops the attribute (spec §4.D).
var allowedURLSchemes = map[string]bool{
	"http": true, "https": true, "mailto": true,
}

// urlAttr marks URL-valued attributes in the allow-list. filterAttributes
// does not call it for href/src/action/background: those values go
// through resolveURL in transcode.go, which resolves them against the
// base URL and checks the scheme. Called directly, urlAttr does no base
// resolution and only rejects absolute URLs with a disallowed scheme.
func urlAttr(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	// Scheme-relative and path-relative values are valid pending base
	// resolution, which happens in resolveURL (transcode.go); here we
	// only reject obviously disallowed absolute schemes and the
	// .xiino pseudo-domain's sibling rule.
	if u, err := url.Parse(v); err == nil && u.IsAbs() {
		if !allowedURLSchemes[strings.ToLower(u.Scheme)] && !strings.HasSuffix(strings.ToLower(u.Hostname()), ".xiino") {
			return "", false
		}
	}
	return v, true
}
