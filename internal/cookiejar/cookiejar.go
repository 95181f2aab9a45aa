// Package cookiejar bridges upstream Set-Cookie headers into the tight
// cookie budget a Xiino client can actually hold: 40 cookies total, 20 per
// site, 4 KB each (spec §4.F).
package cookiejar

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	maxTotal      = 40
	maxPerSite    = 20
	maxCookieSize = 4096
)

// entry is one stored cookie plus the bookkeeping needed for
// least-recently-set eviction - the same Time-stamped-event shape the
// teacher used for terminal input/output events, repurposed here so
// "oldest Set()" is a cheap slice-order property instead of a separate
// priority structure.
type entry struct {
	site   string
	cookie http.Cookie
	setAt  time.Time
}

// Jar stores upstream cookies per site and compiles the subset a
// downstream Xiino request is allowed to carry.
type Jar struct {
	mu      sync.Mutex
	entries []entry // ordered oldest-set-first
}

// New returns an empty Jar.
func New() *Jar {
	return &Jar{}
}

// Set records a cookie set by site (the registered upstream host). To make
// room it evicts the oldest entry for that site when the site is at its
// own cap, and the oldest entry overall when the jar is at its total cap.
func (j *Jar) Set(site string, c *http.Cookie) {
	if c == nil || c.Name == "" {
		return
	}
	if len(c.Name)+len(c.Value) > maxCookieSize {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.removeLocked(site, c.Name)

	for j.countSiteLocked(site) >= maxPerSite {
		j.evictOldestForSiteLocked(site)
	}
	for len(j.entries) >= maxTotal {
		j.evictOldestLocked()
	}

	j.entries = append(j.entries, entry{site: site, cookie: *c, setAt: timeNow()})
}

// timeNow is a seam so tests can be deterministic without depending on
// wall-clock ordering across a single-goroutine sequence of Set calls.
var timeNow = time.Now

// CookieHeader compiles the "Cookie:" header value for a request to site
// over scheme ("http"/"https") at path, joining name=value pairs in a
// stable, sorted order so repeated requests produce byte-identical
// headers - the same sort-then-join idiom the teacher used to compile
// inline style declarations into one CSS string. Only cookies matching
// scheme (Secure cookies are withheld from plain http, spec §4.F) and
// path are included, beyond the existing site/expiry filter.
func (j *Jar) CookieHeader(site, scheme, path string) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	if path == "" {
		path = "/"
	}

	var pairs []string
	now := timeNow()
	for _, e := range j.entries {
		if e.site != site {
			continue
		}
		if !e.cookie.Expires.IsZero() && e.cookie.Expires.Before(now) {
			continue
		}
		if e.cookie.Secure && !strings.EqualFold(scheme, "https") {
			continue
		}
		if !pathMatches(e.cookie.Path, path) {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%s=%s", e.cookie.Name, e.cookie.Value))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "; ")
}

// pathMatches reports whether a cookie scoped to cookiePath applies to a
// request at reqPath, per the standard cookie-path prefix rule: an exact
// match, or a prefix ending in "/", or a prefix followed by "/".
func pathMatches(cookiePath, reqPath string) bool {
	cp := cookiePath
	if cp == "" {
		cp = "/"
	}
	if reqPath == "" {
		reqPath = "/"
	}
	if cp == reqPath {
		return true
	}
	if !strings.HasPrefix(reqPath, cp) {
		return false
	}
	if strings.HasSuffix(cp, "/") {
		return true
	}
	return len(reqPath) > len(cp) && reqPath[len(cp)] == '/'
}

// Len reports the total number of stored cookies, for diagnostics/tests.
func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

func (j *Jar) removeLocked(site, name string) {
	out := j.entries[:0]
	for _, e := range j.entries {
		if e.site == site && e.cookie.Name == name {
			continue
		}
		out = append(out, e)
	}
	j.entries = out
}

func (j *Jar) countSiteLocked(site string) int {
	n := 0
	for _, e := range j.entries {
		if e.site == site {
			n++
		}
	}
	return n
}

func (j *Jar) evictOldestForSiteLocked(site string) {
	for idx, e := range j.entries {
		if e.site == site {
			j.entries = append(j.entries[:idx], j.entries[idx+1:]...)
			return
		}
	}
}

func (j *Jar) evictOldestLocked() {
	if len(j.entries) == 0 {
		return
	}
	j.entries = j.entries[1:]
}
