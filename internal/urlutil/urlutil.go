// internal/urlutil/urlutil.go
//
// Pure string helpers for comparing upload URLs. Uploads are referenced
// under several spellings (absolute, protocol-relative, CDN-prefixed,
// resized variants), so matching happens on relative paths, embedded
// content fingerprints and explicit size suffixes.
package urlutil

import (
	"regexp"
	"strconv"
)

var (
	schemeHostRe = regexp.MustCompile(`^(?:[a-zA-Z][a-zA-Z0-9+.-]*:)?//[^/]+`)
	sha1Re       = regexp.MustCompile(`(?:^|[^0-9a-f])([0-9a-f]{40})(?:[^0-9a-f]|$)`)
	sizeSuffixRe = regexp.MustCompile(`_(\d+)x(\d+)\.[a-zA-Z0-9]+$`)
)

// ToRelative strips a leading scheme://host (or protocol-relative //host)
// prefix, returning a comparable relative path. Input without such a prefix
// is returned unchanged.
func ToRelative(url string) string {
	if loc := schemeHostRe.FindStringIndex(url); loc != nil {
		return url[loc[1]:]
	}
	return url
}

// ExtractSHA1 returns the first 40-character lowercase hex substring in the
// URL, the format of upload content fingerprints. The second return is
// false when the URL carries no fingerprint.
func ExtractSHA1(url string) (string, bool) {
	m := sha1Re.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractRequestedSize parses a trailing _<width>x<height>.<ext> suffix, the
// naming scheme of resized renditions. Returns false when the URL has no
// such suffix or the numbers do not parse.
func ExtractRequestedSize(url string) (width, height int, ok bool) {
	m := sizeSuffixRe.FindStringSubmatch(url)
	if m == nil {
		return 0, 0, false
	}
	w, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	h, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	if w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
