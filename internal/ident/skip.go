package ident

import "strings"

// DefaultSkipKeywords are directory and registry domains that never carry a
// business's own phone number.
var DefaultSkipKeywords = []string{"mycareersfuture", "recordowl", "bizfile"}

// SkipList excludes websites containing any of its keywords.
type SkipList struct {
	keywords []string
}

// NewSkipList builds a SkipList. Keywords are matched case-insensitively.
func NewSkipList(keywords []string) *SkipList {
	s := &SkipList{}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			s.keywords = append(s.keywords, k)
		}
	}
	return s
}

// Match returns the first keyword contained in u.
func (s *SkipList) Match(u string) (string, bool) {
	if s == nil {
		return "", false
	}
	l := strings.ToLower(u)
	for _, k := range s.keywords {
		if strings.Contains(l, k) {
			return k, true
		}
	}
	return "", false
}
