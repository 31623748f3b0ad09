// Package reconcile reads scraped items and maps them back to the identifiers
// that were submitted.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/sells-group/phone-enrich/internal/jobs"
)

// Fields declares, in priority order, which item keys carry the source
// identifier and which carry phone candidates.
type Fields struct {
	ID     []string
	Phones []string
}

// FacebookFields reads items produced by the Facebook page scraper.
var FacebookFields = Fields{
	ID:     []string{"facebookUrl", "url", "pageUrl"},
	Phones: []string{"phone", "wa_number", "mobile"},
}

// WebsiteFields reads items produced by the website extraction job.
var WebsiteFields = Fields{
	ID:     []string{"website"},
	Phones: []string{"phones"},
}

// Identifier returns the first non-empty identifier field of item.
func (f Fields) Identifier(item jobs.Item) string {
	for _, k := range f.ID {
		if s := stringValue(item[k]); s != "" {
			return s
		}
	}
	return ""
}

// Candidates returns every non-empty phone candidate of item, following the
// declared key order. List-valued fields are flattened.
func (f Fields) Candidates(item jobs.Item) []string {
	var out []string
	for _, k := range f.Phones {
		switch v := item[k].(type) {
		case []any:
			for _, e := range v {
				if s := stringValue(e); s != "" {
					out = append(out, s)
				}
			}
		case []string:
			for _, s := range v {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		default:
			if s := stringValue(v); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// FirstCandidate returns the highest-priority phone candidate, or "".
func (f Fields) FirstCandidate(item jobs.Item) string {
	if c := f.Candidates(item); len(c) > 0 {
		return c[0]
	}
	return ""
}

// Field returns item[key] as a trimmed string.
func Field(item jobs.Item, key string) string {
	return stringValue(item[key])
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		// JSON numbers; phone fields sometimes arrive unquoted.
		return strings.TrimSpace(fmt.Sprintf("%.0f", t))
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Reconcile maps items back onto ids. Items are indexed by key(identifier);
// when two items share a key the one with more phone candidates wins and ties
// keep the first seen. The result has one entry per id, in order, nil where no
// item matched. Duplicate ids each receive the same item.
func (f Fields) Reconcile(items []jobs.Item, ids []string, key func(string) string) []jobs.Item {
	if key == nil {
		key = func(s string) string { return s }
	}

	index := make(map[string]jobs.Item, len(items))
	counts := make(map[string]int, len(items))
	for _, item := range items {
		id := f.Identifier(item)
		if id == "" {
			continue
		}
		k := key(id)
		n := len(f.Candidates(item))
		if prev, ok := index[k]; ok && prev != nil && n <= counts[k] {
			continue
		}
		index[k] = item
		counts[k] = n
	}

	out := make([]jobs.Item, len(ids))
	for i, id := range ids {
		out[i] = index[key(id)]
	}
	return out
}
