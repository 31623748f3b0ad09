// Package ident cleans Facebook and website identifiers for scraping and
// result matching.
package ident

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/publicsuffix"
)

var (
	// ErrEmpty is returned for blank identifiers.
	ErrEmpty = eris.New("ident: empty identifier")
	// ErrPersonalProfile is returned for profile.php URLs; the page scraper
	// only supports business pages.
	ErrPersonalProfile = eris.New("ident: personal profile url")
	// ErrNotFacebook is returned when the value is not a facebook.com URL.
	ErrNotFacebook = eris.New("ident: not a facebook url")
)

var aboutSuffixRe = regexp.MustCompile(`/about.*$`)

// absentValues are cell values that mean "no identifier".
var absentValues = map[string]bool{
	"":     true,
	"none": true,
	"nan":  true,
	"null": true,
}

// FirstValue collapses a list-valued cell (JSON or Python list literal) to its
// first element. Plain values are returned trimmed.
func FirstValue(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return s
	}

	var list []string
	if err := json.Unmarshal([]byte(s), &list); err == nil {
		if len(list) == 0 {
			return ""
		}
		return strings.TrimSpace(list[0])
	}

	// Python repr: ['a', 'b']
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return ""
	}
	first := strings.SplitN(inner, ",", 2)[0]
	return strings.Trim(strings.TrimSpace(first), `'"`)
}

// CleanFacebook returns the scrapeable page URL for raw, or an error naming
// why the value was excluded.
func CleanFacebook(raw string) (string, error) {
	u := strings.TrimSpace(FirstValue(raw))
	if absentValues[strings.ToLower(u)] {
		return "", ErrEmpty
	}
	if strings.Contains(strings.ToLower(u), "profile.php") {
		return "", ErrPersonalProfile
	}
	u = aboutSuffixRe.ReplaceAllString(u, "")
	if !strings.Contains(strings.ToLower(u), "facebook.com") {
		return "", ErrNotFacebook
	}
	return u, nil
}

// FacebookKey is the matching key for a Facebook URL.
func FacebookKey(u string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(u)), "/")
}

// CleanWebsite returns the trimmed website and false when the value is blank
// or a placeholder such as "None".
func CleanWebsite(raw string) (string, bool) {
	u := strings.TrimSpace(raw)
	if absentValues[strings.ToLower(u)] {
		return "", false
	}
	return u, true
}

// WebsiteKey is the matching key for a website. Results are matched by exact
// equality with the submitted value.
func WebsiteKey(u string) string {
	return strings.TrimSpace(u)
}

// HasScheme reports whether u starts with http:// or https://.
func HasScheme(u string) bool {
	l := strings.ToLower(u)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// EnsureScheme prepends https:// when u has no scheme.
func EnsureScheme(u string) string {
	u = strings.TrimSpace(u)
	if u == "" || HasScheme(u) {
		return u
	}
	return "https://" + strings.TrimLeft(u, "/")
}

// RegistrableDomain returns the eTLD+1 of host with any www. prefix removed.
// Hosts the public suffix list cannot resolve are returned lower-cased.
func RegistrableDomain(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimPrefix(h, "www.")
	if d, err := publicsuffix.EffectiveTLDPlusOne(h); err == nil {
		return d
	}
	return h
}

// SameSite reports whether two absolute URLs share a registrable domain.
func SameSite(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil || ua.Hostname() == "" {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil || ub.Hostname() == "" {
		return false
	}
	return RegistrableDomain(ua.Hostname()) == RegistrableDomain(ub.Hostname())
}
